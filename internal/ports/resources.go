package ports

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inlandnav/euris-resources/internal/adapters/cache"
	"github.com/inlandnav/euris-resources/internal/app"
	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/ratelimiting"
	"github.com/inlandnav/euris-resources/internal/reporting"
)

// MaxDistanceMeters bounds radius queries
const MaxDistanceMeters = 100_000

var errInvalidQuery = errors.New("invalid query")

func parseFloats(raw string, count int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != count {
		return nil, fmt.Errorf("%w: expected %d comma separated numbers, got %q", errInvalidQuery, count, raw)
	}
	values := make([]float64, 0, count)
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errInvalidQuery, part)
		}
		values = append(values, value)
	}
	return values, nil
}

func validPoint(lon, lat float64) bool {
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func ParseBBox(raw string) (domain.BBox, error) {
	values, err := parseFloats(raw, 4)
	if err != nil {
		return domain.BBox{}, err
	}
	bbox := domain.BBox{MinLon: values[0], MinLat: values[1], MaxLon: values[2], MaxLat: values[3]}
	if !validPoint(bbox.MinLon, bbox.MinLat) || !validPoint(bbox.MaxLon, bbox.MaxLat) {
		return domain.BBox{}, fmt.Errorf("%w: bbox %s out of range", errInvalidQuery, bbox)
	}
	if bbox.MinLon > bbox.MaxLon || bbox.MinLat > bbox.MaxLat {
		return domain.BBox{}, fmt.Errorf("%w: bbox %s has min above max", errInvalidQuery, bbox)
	}
	return bbox, nil
}

func ParsePosition(rawPosition, rawDistance string) (domain.Point, float64, error) {
	values, err := parseFloats(rawPosition, 2)
	if err != nil {
		return domain.Point{}, 0, err
	}
	point := domain.Point{Lon: values[0], Lat: values[1]}
	if !validPoint(point.Lon, point.Lat) {
		return domain.Point{}, 0, fmt.Errorf("%w: position %s out of range", errInvalidQuery, point)
	}

	distance, err := strconv.ParseFloat(rawDistance, 64)
	if err != nil || distance <= 0 || distance > MaxDistanceMeters {
		return domain.Point{}, 0, fmt.Errorf("%w: distance must be in (0, %d]", errInvalidQuery, MaxDistanceMeters)
	}
	return point, distance, nil
}

func MakeListResourcesHandler(
	queryRegion app.QueryRegion,
	queryRadius app.QueryRadius,
	queryTimeout time.Duration,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware Middleware,
	rateLimiter ratelimiting.RequestRateLimiter,
) http.HandlerFunc {
	middleware := BuildPortMiddleware("listresources", rootLogger, sentryMiddleware, allowedOrigins, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		mode, err := app.ParseMode(query.Get("mode"))
		if err != nil {
			writeError(ctx, w, err.Error(), http.StatusBadRequest)
			return
		}

		var run func(ctx context.Context) (app.RegionResult, error)
		switch {
		case query.Has("bbox") && query.Has("position"):
			writeError(ctx, w, "bbox and position are mutually exclusive", http.StatusBadRequest)
			return
		case query.Has("bbox"):
			bbox, err := ParseBBox(query.Get("bbox"))
			if err != nil {
				writeError(ctx, w, err.Error(), http.StatusBadRequest)
				return
			}
			ctx = reporting.AddExtrasToContext(ctx, map[string]string{"bbox": bbox.String()})
			run = func(ctx context.Context) (app.RegionResult, error) {
				return queryRegion(ctx, bbox, mode)
			}
		case query.Has("position"):
			point, distance, err := ParsePosition(query.Get("position"), query.Get("distance"))
			if err != nil {
				writeError(ctx, w, err.Error(), http.StatusBadRequest)
				return
			}
			ctx = reporting.AddExtrasToContext(ctx, map[string]string{
				"position": point.String(),
				"distance": strconv.FormatFloat(distance, 'f', -1, 64),
			})
			run = func(ctx context.Context) (app.RegionResult, error) {
				return queryRadius(ctx, point, distance, mode)
			}
		default:
			writeError(ctx, w, "one of bbox or position is required", http.StatusBadRequest)
			return
		}
		ctx = logging.AddMetaToContext(ctx, slog.String("mode", mode.String()))

		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		result, err := run(ctx)
		if app.IsContextEnd(err) {
			writeError(ctx, w, "timed out", http.StatusGatewayTimeout)
			return
		}
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("region query failed: %w", err))
			writeError(ctx, w, "internal server error", http.StatusInternalServerError)
			return
		}

		if result.Partial() {
			logging.FromContext(ctx).WarnContext(ctx, "returning partial result", "failures", result.Failures.Error())
		}

		data, err := ResourcesToResponseData(result.Resources, result.Partial())
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to create resources response: %w", err))
			writeError(ctx, w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, data)
	}

	return middleware(handler)
}

func MakeGetResourceHandler(
	queryOne app.QueryOne,
	queryTimeout time.Duration,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware Middleware,
	rateLimiter ratelimiting.RequestRateLimiter,
) http.HandlerFunc {
	middleware := BuildPortMiddleware("getresource", rootLogger, sentryMiddleware, allowedOrigins, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := r.PathValue("key")

		ctx = logging.AddMetaToContext(ctx, slog.String("key", key))
		ctx = reporting.AddExtrasToContext(ctx, map[string]string{"key": key})

		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		note, err := queryOne(ctx, key)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrMalformedKey):
			writeError(ctx, w, "malformed key", http.StatusBadRequest)
			return
		case errors.Is(err, domain.ErrNotFound):
			writeError(ctx, w, "not found", http.StatusNotFound)
			return
		case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, cache.ErrCacheEnded):
			writeError(ctx, w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		case app.IsContextEnd(err):
			writeError(ctx, w, "timed out", http.StatusGatewayTimeout)
			return
		default:
			reporting.Report(ctx, fmt.Errorf("resource lookup failed: %w", err))
			writeError(ctx, w, "internal server error", http.StatusInternalServerError)
			return
		}

		data, err := NoteToResponseData(note)
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to create resource response: %w", err))
			writeError(ctx, w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, data)
	}

	return middleware(handler)
}

// MakeReadOnlyHandler rejects every attempt to write or delete a resource.
func MakeReadOnlyHandler(
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware Middleware,
	rateLimiter ratelimiting.RequestRateLimiter,
) http.HandlerFunc {
	middleware := BuildPortMiddleware("readonly", rootLogger, sentryMiddleware, allowedOrigins, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", http.MethodGet)
		writeError(r.Context(), w, "read-only", http.StatusMethodNotAllowed)
	}

	return middleware(handler)
}

// authorizedBearer reports whether the request carries adminToken as a bearer
// token. An empty adminToken authorizes nothing.
func authorizedBearer(r *http.Request, adminToken string) bool {
	if adminToken == "" {
		return false
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(adminToken)) == 1
}

// MakeInvalidateResourceHandler drops a resource from every cache. Callers
// must present adminToken as a bearer token.
func MakeInvalidateResourceHandler(
	invalidate app.InvalidateResource,
	adminToken string,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware Middleware,
	rateLimiter ratelimiting.RequestRateLimiter,
) http.HandlerFunc {
	middleware := BuildPortMiddleware("invalidate", rootLogger, sentryMiddleware, allowedOrigins, rateLimiter)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := r.PathValue("key")
		ctx = logging.AddMetaToContext(ctx, slog.String("key", key))

		if !authorizedBearer(r, adminToken) {
			logging.FromContext(ctx).WarnContext(ctx, "rejected unauthorized invalidation")
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(ctx, w, "unauthorized", http.StatusUnauthorized)
			return
		}

		kind, id, err := domain.ParseCompositeKey(key)
		if err != nil {
			writeError(ctx, w, "malformed key", http.StatusBadRequest)
			return
		}

		err = invalidate(kind, id)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(ctx, w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("invalidate failed: %w", err))
			writeError(ctx, w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}

	return middleware(handler)
}
