package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/opendelivery/backend"
	"github.com/jacentio/opendelivery/backend/memory"
	"github.com/jacentio/opendelivery/domain"
	"github.com/jacentio/opendelivery/stream"
)

const target = "replica"

func newTarget(t *testing.T, b backend.Backend) *domain.Store {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.PollAttempts = 20
	s := domain.New(b, cfg)
	if err := s.Create(context.Background(), target); err != nil {
		t.Fatalf("create target: %v", err)
	}
	return s
}

func keys(item string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"item_name": events.NewStringAttribute(item),
	}
}

func record(eventName, item string, oldImage, newImage map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   eventName + "-" + item,
		EventName: eventName,
		Change: events.DynamoDBStreamRecord{
			Keys:     keys(item),
			OldImage: oldImage,
			NewImage: newImage,
		},
	}
}

func image(item string, props map[string][]string) map[string]events.DynamoDBAttributeValue {
	img := keys(item)
	for k, v := range props {
		img[k] = events.NewStringSetAttribute(v)
	}
	return img
}

func TestNewHandler(t *testing.T) {
	h := stream.NewHandler(nil, target, "", nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandler_HandleReplicate_EmptyEvent(t *testing.T) {
	h := stream.NewHandler(nil, target, "", nil)

	if err := h.HandleReplicate(context.Background(), events.DynamoDBEvent{}); err != nil {
		t.Errorf("expected no error for empty event, got %v", err)
	}
}

func TestHandler_HandleReplicate_Insert(t *testing.T) {
	ctx := context.Background()
	store := newTarget(t, memory.New())
	h := stream.NewHandler(store, target, "", nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "item1", nil, image("item1", map[string][]string{
			"key1": {"value1"},
			"key2": {"value2"},
		})),
	}}

	if err := h.HandleReplicate(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for key, expected := range map[string]string{"key1": "value1", "key2": "value2"} {
		value, ok, err := store.GetProperty(ctx, target, "item1", key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if !ok || value != expected {
			t.Errorf("expected %s=%q, got %q (ok=%v)", key, expected, value, ok)
		}
	}

	if _, ok, _ := store.GetProperty(ctx, target, "item1", "item_name"); ok {
		t.Error("expected item key not to be replicated as a property")
	}
}

func TestHandler_HandleReplicate_Modify(t *testing.T) {
	ctx := context.Background()
	store := newTarget(t, memory.New(memory.WithConsistentReads(false), memory.WithVisibilityLag(2)))
	h := stream.NewHandler(store, target, "", nil)

	old := image("item1", map[string][]string{
		"kept":    {"same"},
		"changed": {"before"},
		"removed": {"gone"},
	})
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "item1", nil, old),
		record("MODIFY", "item1", old, image("item1", map[string][]string{
			"kept":    {"same"},
			"changed": {"after"},
			"added":   {"new"},
		})),
	}}

	if err := h.HandleReplicate(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		key      string
		expected string
		ok       bool
	}{
		{"kept", "same", true},
		{"changed", "after", true},
		{"added", "new", true},
		{"removed", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			value, ok, err := store.GetProperty(ctx, target, "item1", tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.ok || value != tt.expected {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.expected, tt.ok, value, ok)
			}
		})
	}
}

func TestHandler_HandleReplicate_Remove(t *testing.T) {
	ctx := context.Background()
	store := newTarget(t, memory.New())
	h := stream.NewHandler(store, target, "", nil)

	if err := store.SetProperty(ctx, target, "item1", "key", "value"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("REMOVE", "item1", image("item1", map[string][]string{"key": {"value"}}), nil),
	}}
	if err := h.HandleReplicate(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := store.Items(ctx, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items after remove, got %v", items)
	}
}

func TestHandler_HandleReplicate_CustomItemKey(t *testing.T) {
	ctx := context.Background()
	store := newTarget(t, memory.New())
	h := stream.NewHandler(store, target, "pk", nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{{
		EventID:   "1",
		EventName: "INSERT",
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute("item1"),
			},
			NewImage: map[string]events.DynamoDBAttributeValue{
				"pk":  events.NewStringAttribute("item1"),
				"key": events.NewStringAttribute("value"),
			},
		},
	}}}

	if err := h.HandleReplicate(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, ok, err := store.GetProperty(ctx, target, "item1", "key")
	if err != nil || !ok || value != "value" {
		t.Errorf("expected value, got %q (ok=%v, err=%v)", value, ok, err)
	}
}

var errRejected = errors.New("rejected")

// rejectingBackend fails every put for one item.
type rejectingBackend struct {
	*memory.Backend
	item string
}

func (r *rejectingBackend) PutAttributes(ctx context.Context, d, item string, attrs backend.Attributes) error {
	if item == r.item {
		return errRejected
	}
	return r.Backend.PutAttributes(ctx, d, item, attrs)
}

func TestHandler_HandleReplicate_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	b := &rejectingBackend{Backend: memory.New(), item: "bad"}
	store := newTarget(t, b)
	h := stream.NewHandler(store, target, "", nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "good", nil, image("good", map[string][]string{"key": {"1"}})),
		record("INSERT", "bad", nil, image("bad", map[string][]string{"key": {"2"}})),
		record("INSERT", "later", nil, image("later", map[string][]string{"key": {"3"}})),
	}}

	err := h.HandleReplicate(ctx, event)
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected errRejected, got %v", err)
	}

	if v := b.Values(target, "good", "key"); len(v) != 1 || v[0] != "1" {
		t.Errorf("expected record before the failure to be applied, got %v", v)
	}
	if v := b.Values(target, "later", "key"); len(v) != 0 {
		t.Errorf("expected records after the failure to be skipped, got %v", v)
	}
}
