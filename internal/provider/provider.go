// Package provider defines the capability interface remote calendar sources
// implement. Adapters deliver events already shaped like parser output; the
// engine never distinguishes the two beyond the source tag.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"meetsched/internal/model"
)

// Source fetches one account's events for a window. Implementations must
// return events in the same shape the text parser produces, leaving
// normalization and expansion to the calendar processor.
type Source interface {
	// Name identifies the provider ("google", ...), used as the event
	// source tag.
	Name() string

	// Fetch returns the account's events intersecting the window.
	Fetch(ctx context.Context, token string, window model.SearchRange) ([]model.Event, error)
}

// rateLimited decorates a Source with a request rate limit. Applied
// uniformly by the registry instead of being baked into each adapter.
type rateLimited struct {
	inner   Source
	limiter *rate.Limiter
}

// RateLimited wraps src so Fetch calls are paced at r with the given burst.
func RateLimited(src Source, r rate.Limit, burst int) Source {
	return &rateLimited{inner: src, limiter: rate.NewLimiter(r, burst)}
}

func (s *rateLimited) Name() string { return s.inner.Name() }

func (s *rateLimited) Fetch(ctx context.Context, token string, window model.SearchRange) ([]model.Event, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider %s: rate limit wait: %w", s.inner.Name(), err)
	}
	return s.inner.Fetch(ctx, token, window)
}

// Registry holds the available provider sources by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source, replacing any previous source of the same name.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	r.sources[src.Name()] = src
	r.mu.Unlock()
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	return src, ok
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
