// Package backend defines the key-value backend the attribute store is layered on.
//
// A backend holds domains, each containing named items, each item holding a
// mapping of attribute name to a set of values. Backends may be eventually
// consistent and may append rather than replace values; the domain package
// turns this into single-valued, read-after-write semantics.
package backend

import (
	"context"
	"errors"
)

// ErrDomainNotFound is returned by DeleteDomain when the domain does not exist.
var ErrDomainNotFound = errors.New("opendelivery: domain not found")

// Attributes maps an attribute name to the values stored under it.
type Attributes map[string][]string

// Len returns the number of attribute names that hold at least one value.
func (a Attributes) Len() int {
	n := 0
	for _, values := range a {
		if len(values) > 0 {
			n++
		}
	}
	return n
}

// Backend is the raw key-value service.
type Backend interface {
	// DomainExists reports whether the domain exists and is usable.
	DomainExists(ctx context.Context, domain string, consistent bool) (bool, error)

	// CreateDomain creates the domain. Creating an existing domain is not an error.
	CreateDomain(ctx context.Context, domain string) error

	// DeleteDomain deletes the domain and everything in it.
	// Returns ErrDomainNotFound if the domain does not exist.
	DeleteDomain(ctx context.Context, domain string) error

	// GetAttributes returns all attributes of an item.
	// Returns nil, nil when the domain or item does not exist.
	GetAttributes(ctx context.Context, domain, item string, consistent bool) (Attributes, error)

	// PutAttributes adds values to the item's attributes, creating the item
	// if needed. Existing values are kept.
	PutAttributes(ctx context.Context, domain, item string, attrs Attributes) error

	// DeleteAttributes removes the named attributes with all their values.
	// A nil keys slice deletes the whole item. Missing items are not an error.
	DeleteAttributes(ctx context.Context, domain, item string, keys []string) error

	// ListItems returns the names of all items in the domain.
	// Returns nil, nil when the domain does not exist.
	ListItems(ctx context.Context, domain string, consistent bool) ([]string, error)

	// ConsistentReads reports whether the consistent flag on reads is honored.
	ConsistentReads() bool
}

// Replacer is implemented by backends with a native single-call replace.
type Replacer interface {
	// ReplaceAttribute sets key to exactly value, discarding previous values.
	ReplaceAttribute(ctx context.Context, domain, item, key, value string) error
}

// GoneChecker is implemented by backends where a deleted domain lingers, and
// cannot be recreated, after DomainExists already reports it absent.
type GoneChecker interface {
	// DomainGone reports whether the domain has been removed completely.
	DomainGone(ctx context.Context, domain string) (bool, error)
}
