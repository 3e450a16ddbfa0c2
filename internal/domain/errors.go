package domain

import "errors"

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotFound            = errors.New("not found")
	ErrMalformedKey        = errors.New("malformed key")
	ErrExhausted           = errors.New("entity could not be resolved")
)
