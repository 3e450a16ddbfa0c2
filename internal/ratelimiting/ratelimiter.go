// Package ratelimiting limits inbound requests per client.
package ratelimiting

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Consume(key string) bool
}

// tokenBucketRateLimiter keeps one bucket per key. Buckets of idle keys are
// dropped after idleTTL, which refills them completely.
type tokenBucketRateLimiter struct {
	limiterByKey    *ttlcache.Cache[string, *rate.Limiter]
	refillPerSecond float64
	burstSize       int
}

func (rateLimiter *tokenBucketRateLimiter) Consume(key string) bool {
	limiter, _ := rateLimiter.limiterByKey.GetOrSet(key, rate.NewLimiter(rate.Limit(rateLimiter.refillPerSecond), rateLimiter.burstSize))
	return limiter.Value().Allow()
}

type RefillPerSecond float64
type BurstSize int

const idleTTL = 30 * time.Minute

// NewTokenBucketRateLimiter returns the limiter and a function that stops its
// background cleanup.
func NewTokenBucketRateLimiter(refillPerSecond RefillPerSecond, burstSize BurstSize) (RateLimiter, func()) {
	limiterTTLCache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](idleTTL),
	)
	go limiterTTLCache.Start()

	return &tokenBucketRateLimiter{
		limiterByKey:    limiterTTLCache,
		refillPerSecond: float64(refillPerSecond),
		burstSize:       int(burstSize),
	}, limiterTTLCache.Stop
}

type RequestRateLimiter interface {
	Consume(r *http.Request) bool
}

type requestBasedRateLimiter struct {
	limiter RateLimiter
	keyFunc func(r *http.Request) string
}

func (rateLimiter *requestBasedRateLimiter) Consume(r *http.Request) bool {
	return rateLimiter.limiter.Consume(rateLimiter.keyFunc(r))
}

func NewRequestBasedRateLimiter(limiter RateLimiter, keyFunc func(r *http.Request) string) RequestRateLimiter {
	return &requestBasedRateLimiter{
		limiter: limiter,
		keyFunc: keyFunc,
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// No port
		host = r.RemoteAddr
	}
	return host
}

// IPKeyFunc keys on the peer address of the connection. Request headers are
// client controlled and are not consulted.
func IPKeyFunc(r *http.Request) string {
	return fmt.Sprintf("ip: %s", remoteHost(r))
}

// NewForwardedIPKeyFunc keys on the X-Forwarded-For entry written by the
// outermost of trustedHops proxies. Entries left of it come from the client and
// are ignored. Requests that did not pass through every proxy fall back to the
// peer address.
func NewForwardedIPKeyFunc(trustedHops int) func(r *http.Request) string {
	if trustedHops <= 0 {
		return IPKeyFunc
	}
	return func(r *http.Request) string {
		var entries []string
		for _, header := range r.Header.Values("X-Forwarded-For") {
			for entry := range strings.SplitSeq(header, ",") {
				entries = append(entries, strings.TrimSpace(entry))
			}
		}
		if len(entries) < trustedHops || entries[len(entries)-trustedHops] == "" {
			return IPKeyFunc(r)
		}
		return fmt.Sprintf("ip: %s", entries[len(entries)-trustedHops])
	}
}
