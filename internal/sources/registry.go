// Package sources holds the registry of catalog sources a query fans out to.
package sources

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/inlandnav/euris-resources/internal/adapters/cache"
	"github.com/inlandnav/euris-resources/internal/domain"
)

var ErrDuplicateSource = errors.New("source already registered")
var ErrRegistrySealed = errors.New("registry is sealed")

type ListFunc func(ctx context.Context, bbox domain.BBox) ([]domain.Entity, error)
type SummaryFunc func(point domain.Point, details domain.Details) (domain.Summary, error)
type NoteFunc func(point domain.Point, details domain.Details, schedule *domain.Schedule, notices domain.Notices) (domain.Note, error)

// Descriptor is everything the aggregator needs to query one kind of entity.
type Descriptor struct {
	Kind      domain.SourceKind
	List      ListFunc
	Details   *cache.LoadingCache[string, domain.Details]
	ToSummary SummaryFunc
	ToNote    NoteFunc
	// SideData is set for fixed infrastructure that has an operating
	// schedule and notices to skippers attached to it.
	SideData bool
}

func (d Descriptor) validate() error {
	if d.List == nil || d.Details == nil || d.ToSummary == nil || d.ToNote == nil {
		return fmt.Errorf("incomplete descriptor for %q", d.Kind)
	}
	return nil
}

type Registry struct {
	mu          sync.RWMutex
	descriptors map[domain.SourceKind]Descriptor
	order       []domain.SourceKind
	sealed      bool
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[domain.SourceKind]Descriptor),
	}
}

func (r *Registry) Register(kind domain.SourceKind, descriptor Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, kind)
	}
	if _, ok := r.descriptors[kind]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateSource, kind)
	}

	descriptor.Kind = kind
	if err := descriptor.validate(); err != nil {
		return err
	}

	r.descriptors[kind] = descriptor
	r.order = append(r.order, kind)
	return nil
}

// Seal rejects any further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Get(kind domain.SourceKind) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descriptor, ok := r.descriptors[kind]
	return descriptor, ok
}

// All yields the descriptors in registration order.
func (r *Registry) All() iter.Seq[Descriptor] {
	r.mu.RLock()
	descriptors := make([]Descriptor, 0, len(r.order))
	for _, kind := range r.order {
		descriptors = append(descriptors, r.descriptors[kind])
	}
	r.mu.RUnlock()

	return slices.Values(descriptors)
}

func (r *Registry) Kinds() []domain.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}
