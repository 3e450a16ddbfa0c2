package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/inlandnav/euris-resources/internal/adapters/cache"
	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/geo"
	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/sources"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("euris-resources/app")

type QueryRegion func(ctx context.Context, bbox domain.BBox, mode Mode) (RegionResult, error)
type QueryRadius func(ctx context.Context, center domain.Point, radiusMeters float64, mode Mode) (RegionResult, error)
type QueryOne func(ctx context.Context, key string) (domain.Note, error)
type InvalidateResource func(kind domain.SourceKind, id string) error

// SideData holds the caches shared by all sources that carry time bound data.
// Either cache may be nil.
type SideData struct {
	Schedules *cache.LoadingCache[string, domain.Schedule]
	Notices   *cache.LoadingCache[string, domain.Notices]
}

// RegionResult is the merged result of a region query. Entities and sources
// that could not be resolved are left out of Resources and listed in Failures.
type RegionResult struct {
	Resources domain.ResourceMap
	Failures  error
}

func (r RegionResult) Partial() bool {
	return r.Failures != nil
}

const (
	// maxKnownEntities bounds the position index. The least recently written
	// entities are dropped first.
	maxKnownEntities = 100_000
	// defaultEntityTTL applies to sources whose detail cache has no duration
	defaultEntityTTL = 15 * time.Minute
)

type Aggregator struct {
	registry *sources.Registry
	sideData SideData
	logger   *slog.Logger

	// Last known position of every entity seen in a region query, used to
	// place single entity lookups. Entries live as long as their source's
	// detail cache entries would.
	entities     *ttlcache.Cache[string, domain.Entity]
	shutdownOnce sync.Once
}

// NewAggregator takes ownership of the registry and seals it.
func NewAggregator(registry *sources.Registry, sideData SideData, logger *slog.Logger) *Aggregator {
	registry.Seal()

	entities := ttlcache.New[string, domain.Entity](
		ttlcache.WithTTL[string, domain.Entity](defaultEntityTTL),
		ttlcache.WithCapacity[string, domain.Entity](maxKnownEntities),
		ttlcache.WithDisableTouchOnHit[string, domain.Entity](),
	)
	go entities.Start()

	return &Aggregator{
		registry: registry,
		sideData: sideData,
		logger:   logging.Default(logger),
		entities: entities,
	}
}

func entityTTL(descriptor sources.Descriptor) time.Duration {
	if duration := descriptor.Details.Policy().Duration; duration > 0 {
		return duration
	}
	return defaultEntityTTL
}

// KnownEntities counts the entities whose position is remembered
func (a *Aggregator) KnownEntities() int {
	return a.entities.Len()
}

func (a *Aggregator) QueryRadius(ctx context.Context, center domain.Point, radiusMeters float64, mode Mode) (RegionResult, error) {
	return a.QueryRegion(ctx, geo.BBoxFromCenter(center, radiusMeters), mode)
}

func (a *Aggregator) QueryRegion(ctx context.Context, bbox domain.BBox, mode Mode) (RegionResult, error) {
	ctx, span := tracer.Start(ctx, "aggregator.QueryRegion", trace.WithAttributes(
		attribute.String("mode", mode.String()),
		attribute.String("bbox", bbox.String()),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	var mu sync.Mutex
	resources := make(domain.ResourceMap)
	var failures *multierror.Error

	insert := func(key string, resource domain.Resource) {
		mu.Lock()
		defer mu.Unlock()
		resources[key] = resource
	}
	fail := func(err error) {
		logger.WarnContext(ctx, "dropping unresolved resource", "error", err.Error())
		mu.Lock()
		defer mu.Unlock()
		failures = multierror.Append(failures, err)
	}

	// Only the end of the caller's context fails the group. Everything else is
	// recorded and skipped.
	g, gctx := errgroup.WithContext(ctx)
	for descriptor := range a.registry.All() {
		g.Go(func() error {
			entities, err := descriptor.List(gctx, bbox)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				fail(fmt.Errorf("%w: failed to list %s: %w", domain.ErrUpstreamUnavailable, descriptor.Kind, err))
				return nil
			}

			seen := make(map[string]struct{}, len(entities))
			for _, entity := range entities {
				entity.Kind = descriptor.Kind
				key := entity.Key()
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				a.entities.Set(key, entity, entityTTL(descriptor))

				g.Go(func() error {
					resource, err := resolve(gctx, descriptor, entity, mode)
					if err != nil {
						if ctxErr := ctx.Err(); ctxErr != nil {
							return ctxErr
						}
						fail(fmt.Errorf("%w: %s: %w", domain.ErrExhausted, key, err))
						return nil
					}
					insert(key, resource)
					return nil
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return RegionResult{}, fmt.Errorf("region query aborted: %w", err)
	}

	result := RegionResult{Resources: resources}
	if failures != nil {
		result.Failures = failures.ErrorOrNil()
	}
	span.SetAttributes(
		attribute.Int("resources", len(resources)),
		attribute.Bool("partial", result.Partial()),
	)
	return result, nil
}

func resolve(ctx context.Context, descriptor sources.Descriptor, entity domain.Entity, mode Mode) (domain.Resource, error) {
	details, err := descriptor.Details.Get(ctx, entity.ID)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeNote:
		note, err := descriptor.ToNote(entity.Point, details, nil, nil)
		if err != nil {
			return nil, err
		}
		note.Kind, note.ID = entity.Kind, entity.ID
		if note.Name == "" {
			note.Name = entity.Name
		}
		return note, nil
	default:
		summary, err := descriptor.ToSummary(entity.Point, details)
		if err != nil {
			return nil, err
		}
		summary.Kind, summary.ID = entity.Kind, entity.ID
		if summary.Name == "" {
			summary.Name = entity.Name
		}
		return summary, nil
	}
}

// QueryOne assembles the note of a single entity together with its schedule
// and notices. Any failure fails the lookup.
func (a *Aggregator) QueryOne(ctx context.Context, key string) (domain.Note, error) {
	ctx, span := tracer.Start(ctx, "aggregator.QueryOne", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	kind, id, err := domain.ParseCompositeKey(key)
	if err != nil {
		return domain.Note{}, err
	}

	descriptor, ok := a.registry.Get(kind)
	if !ok {
		return domain.Note{}, fmt.Errorf("%w: no source registered for %q", domain.ErrNotFound, kind)
	}

	var (
		details  domain.Details
		schedule *domain.Schedule
		notices  domain.Notices
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		details, err = descriptor.Details.Get(gctx, id)
		if err != nil {
			return fmt.Errorf("failed to get details for %s: %w", key, err)
		}
		return nil
	})
	if descriptor.SideData && a.sideData.Schedules != nil {
		g.Go(func() error {
			result, err := a.sideData.Schedules.Get(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to get schedule for %s: %w", key, err)
			}
			schedule = &result
			return nil
		})
	}
	if descriptor.SideData && a.sideData.Notices != nil {
		g.Go(func() error {
			result, err := a.sideData.Notices.Get(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to get notices for %s: %w", key, err)
			}
			notices = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Note{}, err
	}

	entity := domain.Entity{ID: id, Kind: kind}
	if known := a.entities.Get(key); known != nil {
		entity = known.Value()
	}

	note, err := descriptor.ToNote(entity.Point, details, schedule, notices)
	if err != nil {
		return domain.Note{}, fmt.Errorf("failed to render %s: %w", key, err)
	}
	note.Kind, note.ID = kind, id
	if note.Name == "" {
		note.Name = entity.Name
	}
	return note, nil
}

// Invalidate drops one entity from its detail cache and from the side data caches.
func (a *Aggregator) Invalidate(kind domain.SourceKind, id string) error {
	descriptor, ok := a.registry.Get(kind)
	if !ok {
		return fmt.Errorf("%w: no source registered for %q", domain.ErrNotFound, kind)
	}

	descriptor.Details.Invalidate(id)
	a.entities.Delete(domain.NewCompositeKey(kind, id))
	if a.sideData.Schedules != nil {
		a.sideData.Schedules.Invalidate(id)
	}
	if a.sideData.Notices != nil {
		a.sideData.Notices.Invalidate(id)
	}

	a.logger.Info("invalidated resource", "key", domain.NewCompositeKey(kind, id))
	return nil
}

// Shutdown ends every cache owned by the aggregator.
func (a *Aggregator) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.entities.DeleteAll()
		a.entities.Stop()
	})
	for descriptor := range a.registry.All() {
		descriptor.Details.End()
	}
	if a.sideData.Schedules != nil {
		a.sideData.Schedules.End()
	}
	if a.sideData.Notices != nil {
		a.sideData.Notices.End()
	}
	a.logger.Info("aggregator shut down")
}

// IsContextEnd reports whether err comes from a cancelled or expired context.
func IsContextEnd(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
