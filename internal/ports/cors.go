package ports

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Resources are read-only, POST is only used for cache invalidation
const corsAllowedMethods = "GET,POST"

type DomainSuffixes struct {
	suffixes []string
}

func NewDomainSuffixes(suffixes ...string) (*DomainSuffixes, error) {
	normalized := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		if strings.HasPrefix(suffix, ".") {
			return nil, fmt.Errorf("domain suffix %s should not start with a dot", suffix)
		}
		if strings.Contains(suffix, "://") {
			return nil, fmt.Errorf("domain suffix %s should not contain a scheme", suffix)
		}
		normalized = append(normalized, strings.ToLower(suffix))
	}
	return &DomainSuffixes{
		suffixes: normalized,
	}, nil
}

func (suffixes *DomainSuffixes) AnyMatch(origin string) bool {
	if suffixes == nil {
		return false
	}
	for _, suffix := range suffixes.suffixes {
		if originMatchesSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// originMatchesSuffix accepts https origins whose host is the suffix or a
// subdomain of it. Origins carrying a path, query or credentials never match.
func originMatchesSuffix(origin string, suffix string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" || u.User != nil {
		return false
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

// BuildCORSMiddleware answers preflight requests from allowed origins and
// tags their other requests with Access-Control-Allow-Origin.
func BuildCORSMiddleware(allowedSuffixes *DomainSuffixes) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowedSuffixes.AnyMatch(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)

				if r.Method == http.MethodOptions {
					w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}

			next(w, r)
		}
	}
}

func BuildCORSHandler(allowedSuffixes *DomainSuffixes) http.HandlerFunc {
	return BuildCORSMiddleware(allowedSuffixes)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
