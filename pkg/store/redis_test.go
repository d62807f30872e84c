package store

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client. Tests are skipped when no
// local Redis is available; the integration build tag runs the same
// backend against a containerized instance.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}

func TestRedisStore_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	st := NewRedisStore(client)
	ctx := context.Background()

	if err := st.Set(ctx, "collection:docs", []byte(`{"page":2}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := st.Get(ctx, "collection:docs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"page":2}` {
		t.Errorf("Get = %s, want %s", got, `{"page":2}`)
	}
}

func TestRedisStore_Get_NotFound(t *testing.T) {
	client := setupTestRedis(t)
	st := NewRedisStore(client)

	_, err := st.Get(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_Remove(t *testing.T) {
	client := setupTestRedis(t)
	st := NewRedisStore(client)
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
}

func TestRedisStore_KeysAreNamespaced(t *testing.T) {
	client := setupTestRedis(t)
	st := NewRedisStore(client)
	ctx := context.Background()

	if err := st.Set(ctx, "collection:docs", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// The raw Redis key carries the docpull prefix
	exists, err := client.Exists(ctx, keyPrefix+"collection:docs").Result()
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists != 1 {
		t.Errorf("Expected prefixed key %q in Redis", keyPrefix+"collection:docs")
	}
}
