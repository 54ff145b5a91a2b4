package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Document is a bulk load document: item name -> attribute key -> value.
type Document map[string]map[string]string

// Pair identifies one attribute of one item.
type Pair struct {
	Item string
	Key  string
}

// String returns "item/key".
func (p Pair) String() string {
	return p.Item + "/" + p.Key
}

// FailedPair is a pair whose write failed, with the cause.
type FailedPair struct {
	Pair
	Err error
}

// LoadError reports a bulk load that failed part way. Applied writes are
// not rolled back.
type LoadError struct {
	Domain  string
	Applied []Pair
	Failed  []FailedPair
}

func (e *LoadError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.String()
	}
	return fmt.Sprintf("opendelivery: load domain %s: %d applied, %d failed (%s)",
		e.Domain, len(e.Applied), len(e.Failed), strings.Join(names, ", "))
}

// Is matches ErrLoadPartiallyApplied.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoadPartiallyApplied
}

// Unwrap returns the causes of the failed writes.
func (e *LoadError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// LoadDomain applies every item/key/value of doc with SetProperty semantics.
// Items and keys are processed in sorted order. A failing write does not stop
// the load; the returned *LoadError lists what was and was not applied.
func (s *Store) LoadDomain(ctx context.Context, name string, doc Document) error {
	if err := validNames(name); err != nil {
		return err
	}

	result := &LoadError{Domain: name}
	for _, item := range sortedKeys(doc) {
		attrs := doc[item]
		for _, key := range sortedKeys(attrs) {
			pair := Pair{Item: item, Key: key}
			if err := s.SetProperty(ctx, name, item, key, attrs[key]); err != nil {
				s.logger.Warn("load write failed",
					"domain", name,
					"item", item,
					"key", key,
					"error", err,
				)
				result.Failed = append(result.Failed, FailedPair{Pair: pair, Err: err})
				if ctx.Err() != nil {
					return result
				}
				continue
			}
			result.Applied = append(result.Applied, pair)
		}
	}

	if len(result.Failed) > 0 {
		return result
	}
	s.logger.Debug("domain loaded", "domain", name, "writes", len(result.Applied))
	return nil
}

// LoadDomainFile parses the JSON document at path and loads it into the domain.
// The whole document is validated before any write is issued.
func (s *Store) LoadDomainFile(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open load document: %w", err)
	}
	defer f.Close()

	doc, err := ParseDocument(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return s.LoadDomain(ctx, name, doc)
}

// ParseDocument decodes a JSON object of objects of strings, e.g.
//
//	{"test": {"testFieldOne": "testValueOne", "testFieldTwo": "testValueTwoA"}}
func ParseDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidDocument)
	}
	for item, attrs := range doc {
		if item == "" {
			return nil, fmt.Errorf("%w: empty item name", ErrInvalidDocument)
		}
		for key := range attrs {
			if key == "" {
				return nil, fmt.Errorf("%w: empty key in item %s", ErrInvalidDocument, item)
			}
		}
	}
	return doc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
