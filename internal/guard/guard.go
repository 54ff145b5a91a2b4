// Package guard masks backend eventual consistency.
//
// Every write issued through a Guard is followed by a bounded, fixed-interval
// poll of a matching visibility check, so the effect is observable by the next
// read issued through the same Guard. Reads use the backend's consistent mode
// when it has one.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jacentio/opendelivery/backend"
)

var (
	// ErrBackendUnavailable wraps any error returned by the backend itself.
	ErrBackendUnavailable = errors.New("opendelivery: backend unavailable")

	// ErrConsistencyTimeout is returned when a write succeeded but could not be
	// confirmed visible within the retry budget.
	ErrConsistencyTimeout = errors.New("opendelivery: write not visible within retry budget")
)

// errNotVisible signals a single failed visibility check.
var errNotVisible = errors.New("not yet visible")

// Operation names reported to the Observer.
const (
	OpCreateDomain     = "create_domain"
	OpDeleteDomain     = "delete_domain"
	OpDeleteItem       = "delete_item"
	OpDeleteAttribute  = "delete_attribute"
	OpReplaceAttribute = "replace_attribute"
)

// Policy bounds the visibility poll.
type Policy struct {
	// Interval is the fixed sleep between visibility checks.
	// Default: 250ms
	Interval time.Duration

	// MaxAttempts is the total number of visibility checks before giving up
	// on an item or attribute write.
	// Default: 40
	MaxAttempts int

	// DomainMaxAttempts bounds the checks for domain creation and deletion,
	// which take much longer on backends that provision storage per domain.
	// Default: 240 (MaxAttempts when only MaxAttempts is set)
	DomainMaxAttempts int
}

// DefaultPolicy returns a policy that waits up to ten seconds for item
// writes and up to a minute for domain writes.
func DefaultPolicy() Policy {
	return Policy{
		Interval:          250 * time.Millisecond,
		MaxAttempts:       40,
		DomainMaxAttempts: 240,
	}
}

func (p *Policy) validate() {
	def := DefaultPolicy()
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
		if p.DomainMaxAttempts < 1 {
			p.DomainMaxAttempts = def.DomainMaxAttempts
		}
	}
	if p.DomainMaxAttempts < 1 {
		p.DomainMaxAttempts = p.MaxAttempts
	}
}

// Observer is notified once per confirmed (or failed) write.
type Observer interface {
	ObserveConfirmation(op string, attempts int, err error)
}

// Option configures a Guard.
type Option func(*Guard)

// WithObserver registers an observer for write confirmations.
func WithObserver(o Observer) Option {
	return func(g *Guard) {
		g.observer = o
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard wraps a backend so its writes are visible to subsequent reads.
type Guard struct {
	backend    backend.Backend
	policy     Policy
	consistent bool
	observer   Observer
	logger     *slog.Logger
}

// New creates a Guard over b.
func New(b backend.Backend, policy Policy, opts ...Option) *Guard {
	policy.validate()
	g := &Guard{
		backend:    b,
		policy:     policy,
		consistent: b.ConsistentReads(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the effective poll policy.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CreateDomain creates the domain and waits until it exists.
func (g *Guard) CreateDomain(ctx context.Context, domain string) error {
	if err := g.backend.CreateDomain(ctx, domain); err != nil {
		return unavailable(err)
	}
	return g.confirm(ctx, OpCreateDomain, g.policy.DomainMaxAttempts, func(ctx context.Context) (bool, error) {
		return g.backend.DomainExists(ctx, domain, g.consistent)
	})
}

// DeleteDomain deletes the domain and waits until it is gone. When the
// backend is a backend.GoneChecker the wait lasts until the domain can be
// created again. A domain that does not exist counts as deleted.
func (g *Guard) DeleteDomain(ctx context.Context, domain string) error {
	err := g.backend.DeleteDomain(ctx, domain)
	if err != nil && !errors.Is(err, backend.ErrDomainNotFound) {
		return unavailable(err)
	}

	check := func(ctx context.Context) (bool, error) {
		exists, err := g.backend.DomainExists(ctx, domain, g.consistent)
		return !exists, err
	}
	if gc, ok := g.backend.(backend.GoneChecker); ok {
		check = func(ctx context.Context) (bool, error) {
			return gc.DomainGone(ctx, domain)
		}
	}
	return g.confirm(ctx, OpDeleteDomain, g.policy.DomainMaxAttempts, check)
}

// DeleteItem deletes every attribute of the item and waits until it reads back empty.
func (g *Guard) DeleteItem(ctx context.Context, domain, item string) error {
	if err := g.backend.DeleteAttributes(ctx, domain, item, nil); err != nil {
		return unavailable(err)
	}
	return g.confirm(ctx, OpDeleteItem, g.policy.MaxAttempts, func(ctx context.Context) (bool, error) {
		attrs, err := g.backend.GetAttributes(ctx, domain, item, g.consistent)
		return attrs.Len() == 0, err
	})
}

// DeleteAttribute removes all values of key and waits until the key reads back absent.
func (g *Guard) DeleteAttribute(ctx context.Context, domain, item, key string) error {
	if err := g.backend.DeleteAttributes(ctx, domain, item, []string{key}); err != nil {
		return unavailable(err)
	}
	return g.confirm(ctx, OpDeleteAttribute, g.policy.MaxAttempts, func(ctx context.Context) (bool, error) {
		attrs, err := g.backend.GetAttributes(ctx, domain, item, g.consistent)
		return len(attrs[key]) == 0, err
	})
}

// ReplaceAttribute sets key to exactly value and waits until the key reads
// back holding that single value.
func (g *Guard) ReplaceAttribute(ctx context.Context, domain, item, key, value string) error {
	if r, ok := g.backend.(backend.Replacer); ok {
		if err := r.ReplaceAttribute(ctx, domain, item, key, value); err != nil {
			return unavailable(err)
		}
	} else {
		if err := g.backend.DeleteAttributes(ctx, domain, item, []string{key}); err != nil {
			return unavailable(err)
		}
		if err := g.backend.PutAttributes(ctx, domain, item, backend.Attributes{key: {value}}); err != nil {
			return unavailable(err)
		}
	}

	want := []string{value}
	return g.confirm(ctx, OpReplaceAttribute, g.policy.MaxAttempts, func(ctx context.Context) (bool, error) {
		attrs, err := g.backend.GetAttributes(ctx, domain, item, g.consistent)
		return slices.Equal(attrs[key], want), err
	})
}

// DomainExists reports whether the domain exists.
func (g *Guard) DomainExists(ctx context.Context, domain string) (bool, error) {
	exists, err := g.backend.DomainExists(ctx, domain, g.consistent)
	if err != nil {
		return false, unavailable(err)
	}
	return exists, nil
}

// Attributes returns all attributes of the item, or nil if it does not exist.
func (g *Guard) Attributes(ctx context.Context, domain, item string) (backend.Attributes, error) {
	attrs, err := g.backend.GetAttributes(ctx, domain, item, g.consistent)
	if err != nil {
		return nil, unavailable(err)
	}
	return attrs, nil
}

// Items returns the item names of the domain, or nil if it does not exist.
func (g *Guard) Items(ctx context.Context, domain string) ([]string, error) {
	items, err := g.backend.ListItems(ctx, domain, g.consistent)
	if err != nil {
		return nil, unavailable(err)
	}
	return items, nil
}

// confirm polls check up to maxAttempts times, stopping early when it reports
// true or ctx is done. Backend errors from check stop the poll immediately.
func (g *Guard) confirm(ctx context.Context, op string, maxAttempts int, check func(context.Context) (bool, error)) error {
	attempts := 0
	operation := func() error {
		attempts++
		ok, err := check(ctx)
		if err != nil {
			return backoff.Permanent(unavailable(err))
		}
		if !ok {
			return errNotVisible
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.policy.Interval), uint64(maxAttempts-1)),
		ctx,
	)

	err := backoff.Retry(operation, policy)
	if errors.Is(err, errNotVisible) {
		err = fmt.Errorf("%w: %s after %d attempts", ErrConsistencyTimeout, op, attempts)
		g.logger.Warn("visibility not confirmed",
			"op", op,
			"attempts", attempts,
		)
	} else if err == nil && attempts > 1 {
		g.logger.Debug("visibility confirmed after retry",
			"op", op,
			"attempts", attempts,
		)
	}

	if g.observer != nil {
		g.observer.ObserveConfirmation(op, attempts, err)
	}
	return err
}

func unavailable(err error) error {
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
