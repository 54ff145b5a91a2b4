// Package memory provides an in-process backend with simulated eventual consistency.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jacentio/opendelivery/backend"
)

type state map[string]map[string]backend.Attributes

type mutation struct {
	apply     func(state)
	remaining int
}

// Backend is an in-memory backend.Backend.
//
// Every mutation is applied to a committed state immediately. Eventual reads
// observe a visible state that trails the committed one by a configurable
// number of reads; consistent reads, when enabled, observe the committed state.
type Backend struct {
	mu         sync.Mutex
	committed  state
	visible    state
	pending    []*mutation
	lag        int
	consistent bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithConsistentReads enables or disables honoring the consistent read flag.
// Default: true.
func WithConsistentReads(enabled bool) Option {
	return func(b *Backend) {
		b.consistent = enabled
	}
}

// WithVisibilityLag delays each mutation until n eventual reads have been served.
// Default: 0 (mutations are visible immediately).
func WithVisibilityLag(n int) Option {
	return func(b *Backend) {
		if n < 0 {
			n = 0
		}
		b.lag = n
	}
}

// New creates an empty Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		committed:  state{},
		visible:    state{},
		consistent: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ConsistentReads implements backend.Backend.
func (b *Backend) ConsistentReads() bool {
	return b.consistent
}

// DomainExists implements backend.Backend.
func (b *Backend) DomainExists(_ context.Context, domain string, consistent bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.view(consistent)[domain]
	return ok, nil
}

// CreateDomain implements backend.Backend.
func (b *Backend) CreateDomain(_ context.Context, domain string) error {
	b.mutate(func(st state) {
		if _, ok := st[domain]; !ok {
			st[domain] = map[string]backend.Attributes{}
		}
	})
	return nil
}

// DeleteDomain implements backend.Backend.
func (b *Backend) DeleteDomain(_ context.Context, domain string) error {
	b.mu.Lock()
	_, ok := b.committed[domain]
	b.mu.Unlock()
	if !ok {
		return backend.ErrDomainNotFound
	}

	b.mutate(func(st state) {
		delete(st, domain)
	})
	return nil
}

// GetAttributes implements backend.Backend.
func (b *Backend) GetAttributes(_ context.Context, domain, item string, consistent bool) (backend.Attributes, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, ok := b.view(consistent)[domain]
	if !ok {
		return nil, nil
	}
	attrs, ok := items[item]
	if !ok {
		return nil, nil
	}
	return copyAttributes(attrs), nil
}

// PutAttributes implements backend.Backend. Values already present under a key
// are not duplicated.
func (b *Backend) PutAttributes(_ context.Context, domain, item string, attrs backend.Attributes) error {
	attrs = copyAttributes(attrs)
	b.mutate(func(st state) {
		items, ok := st[domain]
		if !ok {
			items = map[string]backend.Attributes{}
			st[domain] = items
		}
		current, ok := items[item]
		if !ok {
			current = backend.Attributes{}
			items[item] = current
		}
		for key, values := range attrs {
			merged := slices.Clone(current[key])
			for _, v := range values {
				if !slices.Contains(merged, v) {
					merged = append(merged, v)
				}
			}
			current[key] = merged
		}
	})
	return nil
}

// DeleteAttributes implements backend.Backend.
func (b *Backend) DeleteAttributes(_ context.Context, domain, item string, keys []string) error {
	keys = slices.Clone(keys)
	b.mutate(func(st state) {
		items, ok := st[domain]
		if !ok {
			return
		}
		if keys == nil {
			delete(items, item)
			return
		}
		current, ok := items[item]
		if !ok {
			return
		}
		for _, key := range keys {
			delete(current, key)
		}
		if len(current) == 0 {
			delete(items, item)
		}
	})
	return nil
}

// ListItems implements backend.Backend.
func (b *Backend) ListItems(_ context.Context, domain string, consistent bool) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, ok := b.view(consistent)[domain]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Values returns the committed values of one attribute, bypassing visibility lag.
func (b *Backend) Values(domain, item, key string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.committed[domain][item][key])
}

// Pending returns the number of mutations not yet visible to eventual reads.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

func (b *Backend) mutate(apply func(state)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	apply(b.committed)
	if b.lag == 0 && len(b.pending) == 0 {
		apply(b.visible)
		return
	}
	b.pending = append(b.pending, &mutation{apply: apply, remaining: b.lag})
}

// view returns the state a read observes. Must be called with mu held.
func (b *Backend) view(consistent bool) state {
	if consistent && b.consistent {
		return b.committed
	}

	for _, m := range b.pending {
		m.remaining--
	}
	for len(b.pending) > 0 && b.pending[0].remaining <= 0 {
		b.pending[0].apply(b.visible)
		b.pending = b.pending[1:]
	}
	return b.visible
}

func copyAttributes(attrs backend.Attributes) backend.Attributes {
	if attrs == nil {
		return nil
	}
	out := make(backend.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = slices.Clone(v)
	}
	return out
}
