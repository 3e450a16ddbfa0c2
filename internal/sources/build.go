package sources

import (
	"context"
	"fmt"

	"github.com/inlandnav/euris-resources/internal/adapters/cache"
	"github.com/inlandnav/euris-resources/internal/domain"
)

type Catalog interface {
	List(ctx context.Context, kind domain.SourceKind, bbox domain.BBox) ([]domain.Entity, error)
	Details(ctx context.Context, kind domain.SourceKind, id string) (domain.Details, error)
}

type Formatter interface {
	Summary(point domain.Point, details domain.Details) (domain.Summary, error)
	Note(point domain.Point, details domain.Details, schedule *domain.Schedule, notices domain.Notices) (domain.Note, error)
}

// Flags enables individual catalog sources.
type Flags struct {
	Locks   bool
	Bridges bool
	Berths  bool
	Notices bool
}

// Build registers one descriptor with its own detail cache for every enabled source.
func Build(catalog Catalog, formatter Formatter, flags Flags, policy cache.Policy, opts ...cache.Option) (*Registry, error) {
	registry := NewRegistry()
	if err := registerSources(registry, catalog, formatter, flags, policy, opts...); err != nil {
		return nil, err
	}
	return registry, nil
}

// registerSources adds the enabled sources to registry. On failure every cache
// in registry is ended, including those registered earlier.
func registerSources(registry *Registry, catalog Catalog, formatter Formatter, flags Flags, policy cache.Policy, opts ...cache.Option) error {
	enabled := []struct {
		kind     domain.SourceKind
		enabled  bool
		sideData bool
	}{
		{kind: domain.KindLock, enabled: flags.Locks, sideData: true},
		{kind: domain.KindBridge, enabled: flags.Bridges, sideData: true},
		{kind: domain.KindBerth, enabled: flags.Berths, sideData: true},
		{kind: domain.KindNotice, enabled: flags.Notices, sideData: false},
	}

	for _, source := range enabled {
		if !source.enabled {
			continue
		}

		kind := source.kind
		details := cache.New(
			fmt.Sprintf("%s-details", kind),
			func(ctx context.Context, id string) (domain.Details, error) {
				return catalog.Details(ctx, kind, id)
			},
			policy,
			opts...,
		)

		err := registry.Register(kind, Descriptor{
			List: func(ctx context.Context, bbox domain.BBox) ([]domain.Entity, error) {
				return catalog.List(ctx, kind, bbox)
			},
			Details:   details,
			ToSummary: formatter.Summary,
			ToNote:    formatter.Note,
			SideData:  source.sideData,
		})
		if err != nil {
			details.End()
			for registered := range registry.All() {
				registered.Details.End()
			}
			return fmt.Errorf("failed to register %s: %w", kind, err)
		}
	}

	return nil
}
