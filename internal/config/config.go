package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const (
	DefaultBaseURL              = "https://www.eurisportal.eu"
	DefaultPort                 = "8080"
	DefaultCacheDurationMinutes = 60
	DefaultUpstreamRPS          = 5
	DefaultQueryTimeout         = 20 * time.Second
	MinAdminTokenLength         = 16
)

type CacheExpiry string

const (
	ExpireAfterAccess CacheExpiry = "access"
	ExpireAfterWrite  CacheExpiry = "write"
)

// Sources selects which catalog layers are registered
type Sources struct {
	Locks   bool
	Bridges bool
	Berths  bool
	Notices bool
}

type Config struct {
	env           environment
	port          string
	sentryDSN     string
	baseURL       string
	cacheDuration time.Duration
	cacheExpiry   CacheExpiry
	sources       Sources
	resetHour     int
	resetMinute   int
	location      *time.Location
	upstreamRPS   float64
	queryTimeout  time.Duration
	otelEnabled   bool
	origins       []string
	proxyHops     int
	adminToken    string
}

func (c *Config) Environment() string {
	return string(c.env)
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) BaseURL() string {
	return c.baseURL
}

func (c *Config) CacheDuration() time.Duration {
	return c.cacheDuration
}

func (c *Config) CacheExpiry() CacheExpiry {
	return c.cacheExpiry
}

func (c *Config) Sources() Sources {
	return c.sources
}

// ScheduleResetAt is the wall clock time the daily schedules are dropped at
func (c *Config) ScheduleResetAt() (int, int) {
	return c.resetHour, c.resetMinute
}

func (c *Config) Location() *time.Location {
	return c.location
}

func (c *Config) UpstreamRPS() float64 {
	return c.upstreamRPS
}

func (c *Config) QueryTimeout() time.Duration {
	return c.queryTimeout
}

func (c *Config) OTelEnabled() bool {
	return c.otelEnabled
}

// AllowedOrigins are the domain suffixes browsers may call the api from
func (c *Config) AllowedOrigins() []string {
	return c.origins
}

// TrustedProxyHops is the number of proxies in front of the service that
// append to X-Forwarded-For. Zero means clients connect directly.
func (c *Config) TrustedProxyHops() int {
	return c.proxyHops
}

// AdminToken guards the cache invalidation endpoint. Empty disables it.
func (c *Config) AdminToken() string {
	return c.adminToken
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, baseURL: %s, cache: %s after %s, sources: %+v, reset: %02d:%02d %s, ...}",
		string(c.env), c.baseURL, c.cacheDuration, c.cacheExpiry, c.sources, c.resetHour, c.resetMinute, c.location,
	)
}

// LoadDotEnv reads variables from the given files (default .env) into the
// process environment. Variables that are already set win, and missing files
// are ignored.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, filename := range filenames {
		err := godotenv.Load(filename)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", filename, err)
		}
	}
	return nil
}

func ConfigFromEnv() (Config, error) {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key string, value string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, value)
	}
	getenv := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}
	boolOr := func(key string, fallback bool) (bool, bool) {
		raw := getenv(key)
		if raw == "" {
			return fallback, true
		}
		value, err := strconv.ParseBool(raw)
		return value, err == nil
	}

	var env environment
	rawEnv, ok := lookup("EURIS_ENVIRONMENT")
	if !ok {
		return missingKey("EURIS_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return invalidValue("EURIS_ENVIRONMENT", rawEnv)
	}

	port := getenv("PORT")
	if port == "" {
		port = DefaultPort
	}

	baseURL := strings.TrimSuffix(getenv("EURIS_BASE_URL"), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "https://") && !strings.HasPrefix(baseURL, "http://") {
		return invalidValue("EURIS_BASE_URL", baseURL)
	}

	cacheMinutes := DefaultCacheDurationMinutes
	if raw := getenv("EURIS_CACHE_DURATION_MINUTES"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return invalidValue("EURIS_CACHE_DURATION_MINUTES", raw)
		}
		cacheMinutes = parsed
	}

	cacheExpiry := ExpireAfterAccess
	switch raw := getenv("EURIS_CACHE_EXPIRY"); raw {
	case "", string(ExpireAfterAccess):
	case string(ExpireAfterWrite):
		cacheExpiry = ExpireAfterWrite
	default:
		return invalidValue("EURIS_CACHE_EXPIRY", raw)
	}

	var sources Sources
	for key, target := range map[string]*bool{
		"EURIS_ENABLE_LOCKS":   &sources.Locks,
		"EURIS_ENABLE_BRIDGES": &sources.Bridges,
		"EURIS_ENABLE_BERTHS":  &sources.Berths,
		"EURIS_ENABLE_NOTICES": &sources.Notices,
	} {
		value, ok := boolOr(key, true)
		if !ok {
			return invalidValue(key, getenv(key))
		}
		*target = value
	}

	resetHour, resetMinute := 0, 0
	if raw := getenv("EURIS_SCHEDULE_RESET_AT"); raw != "" {
		resetAt, err := time.Parse("15:04", raw)
		if err != nil {
			return invalidValue("EURIS_SCHEDULE_RESET_AT", raw)
		}
		resetHour, resetMinute = resetAt.Hour(), resetAt.Minute()
	}

	location := time.Local
	if raw := getenv("EURIS_TIMEZONE"); raw != "" {
		loaded, err := time.LoadLocation(raw)
		if err != nil {
			return invalidValue("EURIS_TIMEZONE", raw)
		}
		location = loaded
	}

	upstreamRPS := float64(DefaultUpstreamRPS)
	if raw := getenv("EURIS_UPSTREAM_RPS"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			return invalidValue("EURIS_UPSTREAM_RPS", raw)
		}
		upstreamRPS = parsed
	}

	queryTimeout := DefaultQueryTimeout
	if raw := getenv("EURIS_QUERY_TIMEOUT_SECONDS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return invalidValue("EURIS_QUERY_TIMEOUT_SECONDS", raw)
		}
		queryTimeout = time.Duration(parsed) * time.Second
	}

	otelEnabled, ok := boolOr("OTEL_ENABLED", false)
	if !ok {
		return invalidValue("OTEL_ENABLED", getenv("OTEL_ENABLED"))
	}

	var origins []string
	for _, origin := range strings.Split(getenv("EURIS_ALLOWED_ORIGINS"), ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if strings.HasPrefix(origin, ".") || strings.Contains(origin, "://") {
			return invalidValue("EURIS_ALLOWED_ORIGINS", origin)
		}
		origins = append(origins, origin)
	}

	proxyHops := 0
	if raw := getenv("EURIS_TRUSTED_PROXY_HOPS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return invalidValue("EURIS_TRUSTED_PROXY_HOPS", raw)
		}
		proxyHops = parsed
	}

	adminToken := getenv("EURIS_ADMIN_TOKEN")
	if adminToken != "" && len(adminToken) < MinAdminTokenLength {
		return invalidValue("EURIS_ADMIN_TOKEN", "too short")
	}

	sentryDSN := getenv("SENTRY_DSN")
	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	return Config{
		env:           env,
		port:          port,
		sentryDSN:     sentryDSN,
		baseURL:       baseURL,
		cacheDuration: time.Duration(cacheMinutes) * time.Minute,
		cacheExpiry:   cacheExpiry,
		sources:       sources,
		resetHour:     resetHour,
		resetMinute:   resetMinute,
		location:      location,
		upstreamRPS:   upstreamRPS,
		queryTimeout:  queryTimeout,
		otelEnabled:   otelEnabled,
		origins:       origins,
		proxyHops:     proxyHops,
		adminToken:    adminToken,
	}, nil
}
