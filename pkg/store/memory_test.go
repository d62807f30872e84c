package store

import (
	"context"
	"testing"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.Set(ctx, "collection:docs", []byte(`{"page":3}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := st.Get(ctx, "collection:docs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"page":3}` {
		t.Errorf("Get = %s, want %s", got, `{"page":3}`)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	st := NewMemoryStore()

	_, err := st.Get(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Set_Replaces(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.Set(ctx, "key", []byte("first")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := st.Set(ctx, "key", []byte("second")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := st.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Get = %s, want second", got)
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := st.Remove(ctx, "key"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := st.Get(ctx, "key"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after Remove, got %v", err)
	}

	// Removing a missing key is not an error
	if err := st.Remove(ctx, "key"); err != nil {
		t.Errorf("Remove of missing key returned error: %v", err)
	}
}

func TestMemoryStore_Get_ReturnsCopy(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.Set(ctx, "key", []byte("original")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	first, err := st.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Mutating the returned slice must not affect the stored value
	first[0] = 'X'

	second, err := st.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(second) != "original" {
		t.Errorf("Stored value mutated through returned slice: got %s", second)
	}
}
