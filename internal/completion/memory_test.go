package completion

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := Record{
		UserID:      "u-1",
		PromptID:    "p-1",
		CompletedAt: time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := store.Set(ctx, rec); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "u-1", "p-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.PromptID != "p-1" || got.UserID != "u-1" {
		t.Errorf("got wrong record: %+v", got)
	}
}

func TestMemoryStore_AbsentIsNilNil(t *testing.T) {
	store := NewMemoryStore()

	got, err := store.Get(context.Background(), "u-1", "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent record, got %+v", got)
	}
}

func TestMemoryStore_ExpiredRecordSwept(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	now := base
	store.now = func() time.Time { return now }

	rec := Record{UserID: "u-1", PromptID: "p-1", CompletedAt: base, ExpiresAt: base.Add(time.Minute)}
	if err := store.Set(ctx, rec); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	now = base.Add(2 * time.Minute)
	got, err := store.Get(ctx, "u-1", "p-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected expired record to be swept")
	}
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, Record{UserID: "u-1", PromptID: "p-1", ExpiresAt: time.Now().Add(time.Hour)})
	if err := store.Delete(ctx, "u-1", "p-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "u-1", "p-1"); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}

	got, _ := store.Get(ctx, "u-1", "p-1")
	if got != nil {
		t.Error("record still present after delete")
	}
}

func TestMemoryStore_UsersIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, Record{UserID: "u-1", PromptID: "p-1", ExpiresAt: time.Now().Add(time.Hour)})

	got, _ := store.Get(ctx, "u-2", "p-1")
	if got != nil {
		t.Error("record leaked across users")
	}
}
