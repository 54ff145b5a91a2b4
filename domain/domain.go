package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/opendelivery/backend"
	"github.com/jacentio/opendelivery/cipher"
	"github.com/jacentio/opendelivery/internal/canonical"
	"github.com/jacentio/opendelivery/internal/guard"
)

// Store provides single-valued, optionally encrypted attribute access on top
// of a backend.Backend. It holds no data between calls.
type Store struct {
	guard  *guard.Guard
	config Config
	keys   *cipher.KeyPair
	logger *slog.Logger
}

// New creates a Store that performs plain operations only.
func New(b backend.Backend, config Config) *Store {
	return NewWithKeys(b, config, nil)
}

// NewWithKeys creates a Store bound to key material for encrypted properties.
// keys may be nil or hold only a public key.
func NewWithKeys(b backend.Backend, config Config, keys *cipher.KeyPair) *Store {
	config.validate()

	opts := []guard.Option{guard.WithLogger(config.Logger)}
	if config.Observer != nil {
		opts = append(opts, guard.WithObserver(config.Observer))
	}

	return &Store{
		guard: guard.New(b, guard.Policy{
			Interval:          config.PollInterval,
			MaxAttempts:       config.PollAttempts,
			DomainMaxAttempts: config.DomainPollAttempts,
		}, opts...),
		config: config,
		keys:   keys,
		logger: config.Logger,
	}
}

// Region returns the configured region.
func (s *Store) Region() string {
	return s.config.Region
}

// Keys returns the key pair, or nil if none is configured.
func (s *Store) Keys() *cipher.KeyPair {
	return s.keys
}

// Create creates the domain if it does not exist. Existing items are untouched.
// On return the domain is visible to subsequent operations.
func (s *Store) Create(ctx context.Context, name string) error {
	if err := validNames(name); err != nil {
		return err
	}
	if err := s.guard.CreateDomain(ctx, name); err != nil {
		return fmt.Errorf("create domain %s: %w", name, err)
	}
	s.logger.Debug("domain created", "domain", name, "region", s.config.Region)
	return nil
}

// Destroy deletes the domain with all its items. Destroying a missing domain
// is a no-op. On return the domain is absent to subsequent reads.
func (s *Store) Destroy(ctx context.Context, name string) error {
	if err := validNames(name); err != nil {
		return err
	}
	if err := s.guard.DeleteDomain(ctx, name); err != nil {
		return fmt.Errorf("destroy domain %s: %w", name, err)
	}
	s.logger.Debug("domain destroyed", "domain", name, "region", s.config.Region)
	return nil
}

// Exists reports whether the domain exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := validNames(name); err != nil {
		return false, err
	}
	return s.guard.DomainExists(ctx, name)
}

// Items returns the sorted item names of the domain, or nil if it does not exist.
func (s *Store) Items(ctx context.Context, name string) ([]string, error) {
	if err := validNames(name); err != nil {
		return nil, err
	}
	return s.guard.Items(ctx, name)
}

// DestroyItem deletes one item and all its attributes. Missing items are a no-op.
func (s *Store) DestroyItem(ctx context.Context, name, item string) error {
	if err := validNames(name, item); err != nil {
		return err
	}
	if err := s.guard.DeleteItem(ctx, name, item); err != nil {
		return fmt.Errorf("destroy item %s/%s: %w", name, item, err)
	}
	s.logger.Debug("item destroyed", "domain", name, "item", item)
	return nil
}

// GetProperty returns the value stored under key. ok is false when the
// domain, item, or key does not exist. If the backend holds several values
// (written outside this package), the first one reported is returned.
func (s *Store) GetProperty(ctx context.Context, name, item, key string) (value string, ok bool, err error) {
	if err := validNames(name, item, key); err != nil {
		return "", false, err
	}
	attrs, err := s.guard.Attributes(ctx, name, item)
	if err != nil {
		return "", false, fmt.Errorf("get property %s/%s/%s: %w", name, item, key, err)
	}
	values := attrs[key]
	if len(values) == 0 {
		return "", false, nil
	}
	return values[0], true, nil
}

// SetProperty replaces any value(s) of key with exactly value, creating the
// item if needed. On return GetProperty yields value.
func (s *Store) SetProperty(ctx context.Context, name, item, key, value string) error {
	if err := validNames(name, item, key); err != nil {
		return err
	}
	if err := s.guard.ReplaceAttribute(ctx, name, item, key, value); err != nil {
		return fmt.Errorf("set property %s/%s/%s: %w", name, item, key, err)
	}
	s.logger.Debug("property set", "domain", name, "item", item, "key", key)
	return nil
}

// DeleteProperty removes key from the item. Missing keys are a no-op.
func (s *Store) DeleteProperty(ctx context.Context, name, item, key string) error {
	if err := validNames(name, item, key); err != nil {
		return err
	}
	if err := s.guard.DeleteAttribute(ctx, name, item, key); err != nil {
		return fmt.Errorf("delete property %s/%s/%s: %w", name, item, key, err)
	}
	s.logger.Debug("property deleted", "domain", name, "item", item, "key", key)
	return nil
}

// GetEncryptedProperty reads key and decrypts it with the private key.
// Absence is reported as ok == false without touching the key material.
func (s *Store) GetEncryptedProperty(ctx context.Context, name, item, key string) (string, bool, error) {
	ciphertext, ok, err := s.GetProperty(ctx, name, item, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plaintext, err := s.keys.Decrypt(ciphertext)
	if err != nil {
		return "", false, fmt.Errorf("get encrypted property %s/%s/%s: %w", name, item, key, err)
	}
	return plaintext, true, nil
}

// SetEncryptedProperty encrypts value with the public key and stores the
// ciphertext under key with SetProperty semantics.
func (s *Store) SetEncryptedProperty(ctx context.Context, name, item, key, value string) error {
	if err := validNames(name, item, key); err != nil {
		return err
	}
	ciphertext, err := s.keys.Encrypt(value)
	if err != nil {
		return fmt.Errorf("set encrypted property %s/%s/%s: %w", name, item, key, err)
	}
	return s.SetProperty(ctx, name, item, key, ciphertext)
}

// GetItemAttributesJSON returns the item's attributes as
// [{"name":"<key>","value":"<value>"},...], sorted by value descending.
// ok is false when the item does not exist or has no attributes.
func (s *Store) GetItemAttributesJSON(ctx context.Context, name, item string) (string, bool, error) {
	if err := validNames(name, item); err != nil {
		return "", false, err
	}
	attrs, err := s.guard.Attributes(ctx, name, item)
	if err != nil {
		return "", false, fmt.Errorf("get item attributes %s/%s: %w", name, item, err)
	}
	return canonical.Serialize(attrs)
}

func validNames(names ...string) error {
	for _, n := range names {
		if n == "" {
			return ErrInvalidName
		}
	}
	return nil
}
