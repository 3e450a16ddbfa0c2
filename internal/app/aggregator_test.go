package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/inlandnav/euris-resources/internal/adapters/cache"
	"github.com/inlandnav/euris-resources/internal/app"
	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/sources"
	"github.com/stretchr/testify/require"
)

var policy = cache.Policy{Mode: cache.ExpireAfterWrite, Duration: time.Minute}

var bbox = domain.BBox{MinLon: 4, MinLat: 45, MaxLon: 6, MaxLat: 47}

type fakeSource struct {
	entities []domain.Entity
	listErr  error
	names    map[string]string
	failIDs  map[string]bool

	loads atomic.Int32
}

func (s *fakeSource) list(ctx context.Context, bbox domain.BBox) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.entities, nil
}

func (s *fakeSource) descriptor(t *testing.T, kind domain.SourceKind, sideData bool) sources.Descriptor {
	t.Helper()

	details := cache.New(string(kind), func(ctx context.Context, id string) (domain.Details, error) {
		s.loads.Add(1)
		if s.failIDs[id] {
			return nil, errors.New("detail fetch failed")
		}
		return domain.GenericRisDetails{SourceKind: kind, Code: id, Name: s.names[id]}, nil
	}, policy)
	t.Cleanup(details.End)

	return sources.Descriptor{
		List:    s.list,
		Details: details,
		ToSummary: func(point domain.Point, details domain.Details) (domain.Summary, error) {
			return domain.Summary{
				Kind:        details.Kind(),
				ID:          details.ISRS(),
				Name:        details.(domain.GenericRisDetails).Name,
				Description: "summary",
				Point:       point,
			}, nil
		},
		ToNote: func(point domain.Point, details domain.Details, schedule *domain.Schedule, notices domain.Notices) (domain.Note, error) {
			description := "note"
			if schedule != nil {
				description += " with schedule"
			}
			if notices != nil {
				description += " with notices"
			}
			return domain.Note{
				Kind:        details.Kind(),
				ID:          details.ISRS(),
				Name:        details.(domain.GenericRisDetails).Name,
				Description: description,
				Position:    point,
			}, nil
		},
		SideData: sideData,
	}
}

type registration struct {
	kind     domain.SourceKind
	source   *fakeSource
	sideData bool
}

func newAggregator(t *testing.T, sideData app.SideData, registrations ...registration) *app.Aggregator {
	t.Helper()

	registry := sources.NewRegistry()
	for _, r := range registrations {
		require.NoError(t, registry.Register(r.kind, r.source.descriptor(t, r.kind, r.sideData)))
	}
	aggregator := app.NewAggregator(registry, sideData, logging.Discard())
	t.Cleanup(aggregator.Shutdown)
	return aggregator
}

func TestQueryRegion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("single lock", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{
			entities: []domain.Entity{{ID: "L1", Point: domain.Point{Lon: 5.0, Lat: 46.0}}},
			names:    map[string]string{"L1": "Lock One"},
		}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks})

		result, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.False(t, result.Partial())
		require.Len(t, result.Resources, 1)

		summary, ok := result.Resources["lock@L1"].(domain.Summary)
		require.True(t, ok)
		require.Equal(t, "Lock One", summary.Name)
		require.Equal(t, domain.Point{Lon: 5.0, Lat: 46.0}, summary.Point)
		require.Equal(t, "lock@L1", summary.ResourceKey())
	})

	t.Run("same id in different kinds", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{entities: []domain.Entity{{ID: "42"}}}
		bridges := &fakeSource{entities: []domain.Entity{{ID: "42"}}}
		aggregator := newAggregator(t, app.SideData{},
			registration{kind: domain.KindLock, source: locks},
			registration{kind: domain.KindBridge, source: bridges},
		)

		result, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Len(t, result.Resources, 2)
		require.Contains(t, result.Resources, "lock@42")
		require.Contains(t, result.Resources, "bridge@42")
		require.Equal(t, domain.KindBridge, result.Resources["bridge@42"].(domain.Summary).Kind)
	})

	t.Run("duplicate ids load once", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{entities: []domain.Entity{{ID: "L1"}, {ID: "L1"}, {ID: "L2"}}}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks})

		result, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Len(t, result.Resources, 2)
		require.Equal(t, int32(2), locks.loads.Load())

		// Cached
		_, err = aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Equal(t, int32(2), locks.loads.Load())
	})

	t.Run("list entity name is used when details have none", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{entities: []domain.Entity{{ID: "L1", Name: "Listed name"}}}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks})

		result, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Equal(t, "Listed name", result.Resources["lock@L1"].(domain.Summary).Name)
	})

	t.Run("note mode", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{
			entities: []domain.Entity{{ID: "L1", Point: domain.Point{Lon: 5.0, Lat: 46.0}}},
			names:    map[string]string{"L1": "Lock One"},
		}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks, sideData: true})

		result, err := aggregator.QueryRegion(ctx, bbox, app.ModeNote)
		require.NoError(t, err)

		note, ok := result.Resources["lock@L1"].(domain.Note)
		require.True(t, ok)
		require.Equal(t, "Lock One", note.Name)
		require.Equal(t, "note", note.Description)
		require.Equal(t, domain.Point{Lon: 5.0, Lat: 46.0}, note.Position)
	})

	t.Run("failing source and entity are dropped", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{
			entities: []domain.Entity{{ID: "L1"}, {ID: "L2"}},
			failIDs:  map[string]bool{"L2": true},
		}
		bridges := &fakeSource{listErr: errors.New("connection refused")}
		aggregator := newAggregator(t, app.SideData{},
			registration{kind: domain.KindLock, source: locks},
			registration{kind: domain.KindBridge, source: bridges},
		)

		result, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.True(t, result.Partial())
		require.Len(t, result.Resources, 1)
		require.Contains(t, result.Resources, "lock@L1")

		require.ErrorIs(t, result.Failures, domain.ErrUpstreamUnavailable)
		require.ErrorIs(t, result.Failures, domain.ErrExhausted)

		var merr *multierror.Error
		require.ErrorAs(t, result.Failures, &merr)
		require.Len(t, merr.Errors, 2)
	})

	t.Run("failed entity is retried", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{
			entities: []domain.Entity{{ID: "L1"}},
			failIDs:  map[string]bool{"L1": true},
		}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks})

		for range 2 {
			result, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
			require.NoError(t, err)
			require.Empty(t, result.Resources)
		}
		require.Equal(t, int32(2), locks.loads.Load())
	})

	t.Run("no sources", func(t *testing.T) {
		t.Parallel()

		aggregator := newAggregator(t, app.SideData{})

		result, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Empty(t, result.Resources)
		require.False(t, result.Partial())
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{entities: []domain.Entity{{ID: "L1"}}}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := aggregator.QueryRegion(cancelled, bbox, app.ModeSummary)
		require.ErrorIs(t, err, context.Canceled)
		require.True(t, app.IsContextEnd(err))
	})

	t.Run("radius", func(t *testing.T) {
		t.Parallel()

		var seen domain.BBox
		locks := &fakeSource{}
		registry := sources.NewRegistry()
		descriptor := locks.descriptor(t, domain.KindLock, false)
		descriptor.List = func(ctx context.Context, bbox domain.BBox) ([]domain.Entity, error) {
			seen = bbox
			return nil, nil
		}
		require.NoError(t, registry.Register(domain.KindLock, descriptor))
		aggregator := app.NewAggregator(registry, app.SideData{}, nil)

		center := domain.Point{Lon: 5.0, Lat: 46.0}
		_, err := aggregator.QueryRadius(ctx, center, 10_000, app.ModeSummary)
		require.NoError(t, err)
		require.True(t, seen.Contains(center))
		require.Less(t, seen.MinLon, seen.MaxLon)
		require.Less(t, seen.MinLat, seen.MaxLat)
	})
}

func newSideData(t *testing.T, scheduleErr error) (app.SideData, *atomic.Int32) {
	t.Helper()

	var loads atomic.Int32
	schedules := cache.New("schedules", func(ctx context.Context, id string) (domain.Schedule, error) {
		loads.Add(1)
		if scheduleErr != nil {
			return domain.Schedule{}, scheduleErr
		}
		return domain.Schedule{ObjectID: id}, nil
	}, policy)
	notices := cache.New("notices", func(ctx context.Context, id string) (domain.Notices, error) {
		loads.Add(1)
		return domain.Notices{{ID: "N1"}}, nil
	}, policy)
	t.Cleanup(schedules.End)
	t.Cleanup(notices.End)

	return app.SideData{Schedules: schedules, Notices: notices}, &loads
}

func TestQueryOne(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("with side data", func(t *testing.T) {
		t.Parallel()

		sideData, sideLoads := newSideData(t, nil)
		locks := &fakeSource{names: map[string]string{"L1": "Lock One"}}
		aggregator := newAggregator(t, sideData, registration{kind: domain.KindLock, source: locks, sideData: true})

		note, err := aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, "Lock One", note.Name)
		require.Equal(t, domain.KindLock, note.Kind)
		require.Equal(t, "L1", note.ID)
		require.Equal(t, "note with schedule with notices", note.Description)
		require.Equal(t, int32(2), sideLoads.Load())
	})

	t.Run("sources without side data skip the side caches", func(t *testing.T) {
		t.Parallel()

		sideData, sideLoads := newSideData(t, nil)
		notices := &fakeSource{}
		aggregator := newAggregator(t, sideData, registration{kind: domain.KindNotice, source: notices})

		note, err := aggregator.QueryOne(ctx, "notice@77")
		require.NoError(t, err)
		require.Equal(t, "note", note.Description)
		require.Equal(t, int32(0), sideLoads.Load())
	})

	t.Run("position from region query", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{
			entities: []domain.Entity{{ID: "L1", Name: "Lock One", Point: domain.Point{Lon: 5.0, Lat: 46.0}}},
		}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks})

		note, err := aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, domain.Point{}, note.Position)

		_, err = aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)

		note, err = aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, domain.Point{Lon: 5.0, Lat: 46.0}, note.Position)
		require.Equal(t, "Lock One", note.Name)
	})

	t.Run("unregistered kind", func(t *testing.T) {
		t.Parallel()

		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindBridge, source: &fakeSource{}})

		_, err := aggregator.QueryOne(ctx, "ferry@L1")
		require.ErrorIs(t, err, domain.ErrNotFound)

		_, err = aggregator.QueryOne(ctx, "lock@L1")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("malformed key", func(t *testing.T) {
		t.Parallel()

		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: &fakeSource{}})

		for _, key := range []string{"lockL1", "lock@", "@L1", "lock@L1@x", ""} {
			_, err := aggregator.QueryOne(ctx, key)
			require.ErrorIs(t, err, domain.ErrMalformedKey, key)
			require.ErrorIs(t, err, domain.ErrNotFound, key)
		}
	})

	t.Run("detail failure is total", func(t *testing.T) {
		t.Parallel()

		sideData, _ := newSideData(t, nil)
		locks := &fakeSource{failIDs: map[string]bool{"L1": true}}
		aggregator := newAggregator(t, sideData, registration{kind: domain.KindLock, source: locks, sideData: true})

		_, err := aggregator.QueryOne(ctx, "lock@L1")
		require.ErrorContains(t, err, "detail fetch failed")
	})

	t.Run("side data failure is total", func(t *testing.T) {
		t.Parallel()

		sideData, _ := newSideData(t, domain.ErrUpstreamUnavailable)
		locks := &fakeSource{}
		aggregator := newAggregator(t, sideData, registration{kind: domain.KindLock, source: locks, sideData: true})

		_, err := aggregator.QueryOne(ctx, "lock@L1")
		require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	})
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("next lookup reloads", func(t *testing.T) {
		t.Parallel()

		sideData, sideLoads := newSideData(t, nil)
		locks := &fakeSource{}
		aggregator := newAggregator(t, sideData, registration{kind: domain.KindLock, source: locks, sideData: true})

		_, err := aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		_, err = aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, int32(1), locks.loads.Load())
		require.Equal(t, int32(2), sideLoads.Load())

		require.NoError(t, aggregator.Invalidate(domain.KindLock, "L1"))

		_, err = aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, int32(2), locks.loads.Load())
		require.Equal(t, int32(4), sideLoads.Load())
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		aggregator := newAggregator(t, app.SideData{})
		require.ErrorIs(t, aggregator.Invalidate(domain.KindLock, "L1"), domain.ErrNotFound)
	})

	t.Run("position is forgotten", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{
			entities: []domain.Entity{{ID: "L1", Point: domain.Point{Lon: 5.0, Lat: 46.0}}, {ID: "L2"}},
		}
		aggregator := newAggregator(t, app.SideData{}, registration{kind: domain.KindLock, source: locks})

		_, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Equal(t, 2, aggregator.KnownEntities())

		require.NoError(t, aggregator.Invalidate(domain.KindLock, "L1"))
		require.Equal(t, 1, aggregator.KnownEntities())

		note, err := aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, domain.Point{}, note.Position)
	})
}

func TestKnownEntities(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	newShortLivedAggregator := func(t *testing.T, locks *fakeSource, duration time.Duration) *app.Aggregator {
		t.Helper()

		descriptor := locks.descriptor(t, domain.KindLock, false)
		details := cache.New("lock", func(ctx context.Context, id string) (domain.Details, error) {
			return domain.GenericRisDetails{SourceKind: domain.KindLock, Code: id}, nil
		}, cache.Policy{Mode: cache.ExpireAfterWrite, Duration: duration})
		t.Cleanup(details.End)
		descriptor.Details = details

		registry := sources.NewRegistry()
		require.NoError(t, registry.Register(domain.KindLock, descriptor))
		aggregator := app.NewAggregator(registry, app.SideData{}, nil)
		t.Cleanup(aggregator.Shutdown)
		return aggregator
	}

	t.Run("positions expire with the detail cache", func(t *testing.T) {
		t.Parallel()

		entities := make([]domain.Entity, 0, 500)
		for i := range 500 {
			entities = append(entities, domain.Entity{ID: fmt.Sprintf("L%d", i), Point: domain.Point{Lon: 5.0, Lat: 46.0}})
		}
		aggregator := newShortLivedAggregator(t, &fakeSource{entities: entities}, 50*time.Millisecond)

		_, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Equal(t, 500, aggregator.KnownEntities())

		require.Eventually(t, func() bool {
			return aggregator.KnownEntities() == 0
		}, 2*time.Second, 10*time.Millisecond)

		note, err := aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, domain.Point{}, note.Position)
	})

	t.Run("region queries refresh positions", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{entities: []domain.Entity{{ID: "L1", Point: domain.Point{Lon: 5.0, Lat: 46.0}}}}
		aggregator := newShortLivedAggregator(t, locks, time.Minute)

		_, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)

		locks.entities = []domain.Entity{{ID: "L1", Point: domain.Point{Lon: 5.5, Lat: 46.5}}}
		_, err = aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Equal(t, 1, aggregator.KnownEntities())

		note, err := aggregator.QueryOne(ctx, "lock@L1")
		require.NoError(t, err)
		require.Equal(t, domain.Point{Lon: 5.5, Lat: 46.5}, note.Position)
	})

	t.Run("shutdown clears positions", func(t *testing.T) {
		t.Parallel()

		locks := &fakeSource{entities: []domain.Entity{{ID: "L1"}, {ID: "L2"}}}
		aggregator := newShortLivedAggregator(t, locks, time.Minute)

		_, err := aggregator.QueryRegion(ctx, bbox, app.ModeSummary)
		require.NoError(t, err)
		require.Equal(t, 2, aggregator.KnownEntities())

		aggregator.Shutdown()
		require.Equal(t, 0, aggregator.KnownEntities())
	})
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	sideData, _ := newSideData(t, nil)
	aggregator := newAggregator(t, sideData, registration{kind: domain.KindLock, source: &fakeSource{}, sideData: true})

	aggregator.Shutdown()
	aggregator.Shutdown()

	_, err := aggregator.QueryOne(context.Background(), "lock@L1")
	require.ErrorIs(t, err, cache.ErrCacheEnded)
}

func TestRegistryIsSealed(t *testing.T) {
	t.Parallel()

	registry := sources.NewRegistry()
	app.NewAggregator(registry, app.SideData{}, nil)

	locks := &fakeSource{}
	err := registry.Register(domain.KindLock, locks.descriptor(t, domain.KindLock, false))
	require.ErrorIs(t, err, sources.ErrRegistrySealed)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]app.Mode{"": app.ModeSummary, "summary": app.ModeSummary, "note": app.ModeNote} {
		mode, err := app.ParseMode(raw)
		require.NoError(t, err)
		require.Equal(t, want, mode)
	}

	_, err := app.ParseMode("full")
	require.Error(t, err)
}
