// Package service wires the catalog, the source registry and the side data
// caches into an aggregator.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inlandnav/euris-resources/internal/adapters/cache"
	"github.com/inlandnav/euris-resources/internal/adapters/catalog"
	"github.com/inlandnav/euris-resources/internal/app"
	"github.com/inlandnav/euris-resources/internal/config"
	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/format"
	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/scheduling"
	"github.com/inlandnav/euris-resources/internal/sources"
)

// Side data changes during the day, so it is never kept longer than this
const sideDataMaxAge = 15 * time.Minute

type Service struct {
	Aggregator  *app.Aggregator
	Invalidator *scheduling.DailyInvalidator
}

func cachePolicy(conf config.Config) cache.Policy {
	mode := cache.ExpireAfterAccess
	if conf.CacheExpiry() == config.ExpireAfterWrite {
		mode = cache.ExpireAfterWrite
	}
	return cache.Policy{Mode: mode, Duration: conf.CacheDuration()}
}

// New builds the aggregator for conf. The invalidator is created but not
// started.
func New(conf config.Config, httpClient catalog.HttpClient, logger *slog.Logger) (*Service, error) {
	logger = logging.Default(logger)

	client := catalog.NewClient(httpClient, conf.BaseURL(), conf.UpstreamRPS(), conf.Location(), time.Now)
	formatter := format.NewFormatter(conf.BaseURL(), time.Now)

	policy := cachePolicy(conf)
	loadTimeout := cache.WithLoadTimeout(conf.QueryTimeout())

	registry, err := sources.Build(client, formatter, sources.Flags(conf.Sources()), policy, loadTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to build source registry: %w", err)
	}

	sidePolicy := cache.Policy{Mode: cache.ExpireAfterWrite, Duration: min(policy.Duration, sideDataMaxAge)}
	sideData := app.SideData{
		Schedules: cache.New("schedules", func(ctx context.Context, id string) (domain.Schedule, error) {
			return client.OperatingTimes(ctx, id, client.Today())
		}, sidePolicy, loadTimeout),
		Notices: cache.New("notices", client.NoticesToSkippers, sidePolicy, loadTimeout),
	}

	hour, minute := conf.ScheduleResetAt()
	invalidator, err := scheduling.NewDailyInvalidator(
		"schedules-reset",
		sideData.Schedules,
		hour, minute,
		conf.Location(),
		logger.With("component", "scheduler"),
	)
	if err != nil {
		sideData.Schedules.End()
		sideData.Notices.End()
		for descriptor := range registry.All() {
			descriptor.Details.End()
		}
		return nil, fmt.Errorf("failed to create schedule invalidator: %w", err)
	}

	aggregator := app.NewAggregator(registry, sideData, logger.With("component", "aggregator"))
	logger.Info("Initialized aggregator", "sources", registry.Kinds(), "policy", policy.Mode.String())

	return &Service{
		Aggregator:  aggregator,
		Invalidator: invalidator,
	}, nil
}

// Shutdown stops the invalidator and ends every cache.
func (s *Service) Shutdown() error {
	err := s.Invalidator.Stop()
	s.Aggregator.Shutdown()
	return err
}
