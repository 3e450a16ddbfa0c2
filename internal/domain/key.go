package domain

import (
	"fmt"
	"strings"
)

// KeySeparator never occurs in ISRS codes or notice ids.
const KeySeparator = "@"

func NewCompositeKey(kind SourceKind, id string) string {
	return string(kind) + KeySeparator + id
}

// ParseCompositeKey splits a key into kind and id. A malformed key names no
// resource, so its error matches both ErrMalformedKey and ErrNotFound.
func ParseCompositeKey(key string) (SourceKind, string, error) {
	kind, id, found := strings.Cut(key, KeySeparator)
	if !found {
		return "", "", fmt.Errorf("%w: %w: missing separator in %q", ErrMalformedKey, ErrNotFound, key)
	}
	if kind == "" || id == "" {
		return "", "", fmt.Errorf("%w: %w: empty kind or id in %q", ErrMalformedKey, ErrNotFound, key)
	}
	if strings.Contains(id, KeySeparator) {
		return "", "", fmt.Errorf("%w: %w: more than one separator in %q", ErrMalformedKey, ErrNotFound, key)
	}
	return SourceKind(kind), id, nil
}
