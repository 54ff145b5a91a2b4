package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jacentio/opendelivery/backend"
	"github.com/jacentio/opendelivery/backend/memory"
)

func TestCreateDomain_Idempotent(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	if err := b.CreateDomain(ctx, "d"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.PutAttributes(ctx, "d", "i", backend.Attributes{"k": {"v"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.CreateDomain(ctx, "d"); err != nil {
		t.Fatalf("unexpected error on second create: %v", err)
	}

	if got := b.Values("d", "i", "k"); len(got) != 1 || got[0] != "v" {
		t.Errorf("expected existing attribute to survive re-create, got %v", got)
	}
}

func TestDeleteDomain_Missing(t *testing.T) {
	b := memory.New()

	err := b.DeleteDomain(context.Background(), "missing")
	if !errors.Is(err, backend.ErrDomainNotFound) {
		t.Errorf("expected ErrDomainNotFound, got %v", err)
	}
}

func TestPutAttributes_Appends(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	_ = b.PutAttributes(ctx, "d", "i", backend.Attributes{"k": {"a"}})
	_ = b.PutAttributes(ctx, "d", "i", backend.Attributes{"k": {"b", "a"}})

	got := b.Values("d", "i", "k")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestDeleteAttributes(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_ = b.PutAttributes(ctx, "d", "i", backend.Attributes{"k1": {"a"}, "k2": {"b"}})

	tests := []struct {
		name     string
		keys     []string
		expected int
	}{
		{"missing key", []string{"nope"}, 2},
		{"one key", []string{"k1"}, 1},
		{"last key removes item", []string{"k2"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.DeleteAttributes(ctx, "d", "i", tt.keys); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			attrs, _ := b.GetAttributes(ctx, "d", "i", true)
			if attrs.Len() != tt.expected {
				t.Errorf("expected %d attributes, got %d", tt.expected, attrs.Len())
			}
		})
	}

	items, _ := b.ListItems(ctx, "d", true)
	if len(items) != 0 {
		t.Errorf("expected no items, got %v", items)
	}
}

func TestDeleteAttributes_WholeItem(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_ = b.PutAttributes(ctx, "d", "i", backend.Attributes{"k": {"v"}})

	if err := b.DeleteAttributes(ctx, "d", "i", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	attrs, err := b.GetAttributes(ctx, "d", "i", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs != nil {
		t.Errorf("expected nil attributes after delete, got %v", attrs)
	}
}

func TestVisibilityLag(t *testing.T) {
	ctx := context.Background()
	b := memory.New(memory.WithVisibilityLag(2))

	_ = b.CreateDomain(ctx, "d")

	if ok, _ := b.DomainExists(ctx, "d", true); !ok {
		t.Error("expected consistent read to see the domain immediately")
	}
	if ok, _ := b.DomainExists(ctx, "d", false); ok {
		t.Error("expected first eventual read to miss the domain")
	}
	if ok, _ := b.DomainExists(ctx, "d", false); !ok {
		t.Error("expected second eventual read to see the domain")
	}
	if b.Pending() != 0 {
		t.Errorf("expected no pending mutations, got %d", b.Pending())
	}
}

func TestVisibilityLag_WithoutConsistentReads(t *testing.T) {
	ctx := context.Background()
	b := memory.New(memory.WithVisibilityLag(3), memory.WithConsistentReads(false))

	if b.ConsistentReads() {
		t.Fatal("expected ConsistentReads to be false")
	}

	_ = b.PutAttributes(ctx, "d", "i", backend.Attributes{"k": {"v"}})

	for i := 0; i < 2; i++ {
		attrs, _ := b.GetAttributes(ctx, "d", "i", true)
		if attrs != nil {
			t.Fatalf("read %d: expected stale read, got %v", i, attrs)
		}
	}
	attrs, _ := b.GetAttributes(ctx, "d", "i", true)
	if got := attrs["k"]; len(got) != 1 || got[0] != "v" {
		t.Errorf("expected [v] after lag, got %v", got)
	}
}

func TestGetAttributes_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	_ = b.PutAttributes(ctx, "d", "i", backend.Attributes{"k": {"v"}})

	attrs, _ := b.GetAttributes(ctx, "d", "i", true)
	attrs["k"][0] = "mutated"

	if got := b.Values("d", "i", "k"); got[0] != "v" {
		t.Errorf("expected stored value to be unaffected, got %v", got)
	}
}
