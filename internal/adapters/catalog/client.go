package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const USER_AGENT = "euris-resources/1.0 (+https://github.com/inlandnav/euris-resources)"

var tracer = otel.Tracer("euris-resources/catalog")

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the EuRIS ArcGIS feature service and the VisuRIS detail API.
type Client struct {
	httpClient HttpClient
	baseURL    string
	limiter    *rate.Limiter
	location   *time.Location
	nowFunc    func() time.Time
}

func NewClient(
	httpClient HttpClient,
	baseURL string,
	requestsPerSecond float64,
	location *time.Location,
	nowFunc func() time.Time,
) *Client {
	if location == nil {
		location = time.Local
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond))),
		location:   location,
		nowFunc:    nowFunc,
	}
}

// NewRetryingHTTPClient returns an instrumented client that retries
// connection errors, 429 and 5xx responses with exponential backoff.
func NewRetryingHTTPClient(timeout time.Duration, retryMax int, logger *slog.Logger) *http.Client {
	rclient := retryablehttp.NewClient()
	rclient.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	rclient.RetryMax = retryMax
	rclient.RetryWaitMin = 200 * time.Millisecond
	rclient.RetryWaitMax = 2 * time.Second
	rclient.Logger = logging.Default(logger).With("component", "retryablehttp")
	return rclient.StandardClient()
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "catalog.get", trace.WithAttributes(attribute.String("catalog.path", path)))
	defer span.End()

	data, err := c.doGet(ctx, path, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return data, err
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	logger := logging.FromContext(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for request slot: %w", domain.ErrUpstreamUnavailable, err)
	}

	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WarnContext(ctx, "catalog request failed", "path", path, "error", err.Error())
		return nil, fmt.Errorf("%w: failed to send request: %w", domain.ErrUpstreamUnavailable, err)
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", domain.ErrUpstreamUnavailable, err)
	}
	logger.InfoContext(ctx, "catalog request completed", "path", path, "status", resp.StatusCode, "duration", time.Since(start).String())

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return data, nil
}

func checkStatus(statusCode int) error {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return fmt.Errorf("%w: catalog returned status code %d", domain.ErrUpstreamUnavailable, statusCode)
	}

	switch statusCode {
	case http.StatusNotFound,
		http.StatusNoContent:
		return domain.ErrNotFound
	}

	if statusCode != http.StatusOK {
		return fmt.Errorf("%w: catalog returned unexpected status code %d", domain.ErrUpstreamUnavailable, statusCode)
	}
	return nil
}

func (c *Client) today() time.Time {
	now := c.nowFunc().In(c.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.location)
}

func (c *Client) parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if parsed, err := time.ParseInLocation(layout, raw, c.location); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
