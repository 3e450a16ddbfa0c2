package ports

import (
	"log/slog"
	"net/http"

	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/ratelimiting"
	"github.com/inlandnav/euris-resources/internal/reporting"
)

type Middleware = func(http.HandlerFunc) http.HandlerFunc

func NewRateLimitMiddleware(rateLimiter ratelimiting.RequestRateLimiter, onLimitExceeded http.HandlerFunc) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !rateLimiter.Consume(r) {
				onLimitExceeded(w, r)
				return
			}

			next(w, r)
		}
	}
}

func ComposeMiddlewares(middlewares ...Middleware) Middleware {
	if len(middlewares) == 1 {
		return middlewares[0]
	}
	first := middlewares[0]
	rest := ComposeMiddlewares(middlewares[1:]...)
	return func(h http.HandlerFunc) http.HandlerFunc {
		return first(rest(h))
	}
}

func onLimitExceeded(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, "rate limit exceeded", http.StatusTooManyRequests)
}

// BuildPortMiddleware is the chain every resource port runs behind.
func BuildPortMiddleware(
	port string,
	rootLogger *slog.Logger,
	sentryMiddleware Middleware,
	allowedOrigins *DomainSuffixes,
	rateLimiter ratelimiting.RequestRateLimiter,
) Middleware {
	return ComposeMiddlewares(
		buildMetricsMiddleware(port),
		logging.NewRequestLoggerMiddleware(rootLogger.With("port", port)),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware(port),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(rateLimiter, onLimitExceeded),
	)
}
