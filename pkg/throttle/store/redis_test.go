package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newRedisStore connects to the Redis named by THROTTLE_TEST_REDIS (default
// localhost:6379) and skips the test when it is unreachable.
func newRedisStore(t *testing.T) *Redis {
	t.Helper()

	addr := os.Getenv("THROTTLE_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	s := NewRedis(client)
	t.Cleanup(func() { s.Close() })
	return s
}

// testKey returns a key unique to this test run so runs never interfere.
func testKey(t *testing.T, suffix string) string {
	return fmt.Sprintf("throttle-test:%s:%d:%s", t.Name(), time.Now().UnixNano(), suffix)
}

func TestRedisTx_MissingKeyReads(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	tx := s.Tx()
	tx.Get(testKey(t, "missing"))
	tx.TTL(testKey(t, "missing-ttl"))
	results, err := tx.Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].OK {
		t.Error("get on a missing key must report absence")
	}
	if results[1].Value != TTLMissing {
		t.Errorf("missing key ttl = %d, want %d", results[1].Value, TTLMissing)
	}
}

func TestRedisTx_CommitShape(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	staging := testKey(t, "staging")
	counter := testKey(t, "counter")
	expiry := time.Now().Add(time.Minute)

	// The commit sequence a pass issues per window, against a fresh counter:
	// the staged zero is renamed into place, incremented to 1, and carries
	// the window expiry.
	tx := s.Tx()
	tx.Set(staging, 0)
	tx.ExpireAt(staging, expiry)
	tx.RenameNX(staging, counter)
	tx.Incr(counter)
	tx.TTL(counter)
	results, err := tx.Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if !results[2].OK {
		t.Error("expected the rename to apply to a fresh counter")
	}
	if results[3].Value != 1 {
		t.Errorf("count = %d, want 1", results[3].Value)
	}
	ttl := results[4].Value
	if ttl <= 0 || ttl > 61 {
		t.Errorf("ttl = %d, want within the window", ttl)
	}

	// Second pass: the counter exists, so the rename must not apply and the
	// existing count survives.
	tx = s.Tx()
	tx.Set(staging, 0)
	tx.ExpireAt(staging, expiry)
	tx.RenameNX(staging, counter)
	tx.Incr(counter)
	tx.TTL(counter)
	results, err = tx.Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if results[2].OK {
		t.Error("expected the rename to not apply to an existing counter")
	}
	if results[3].Value != 2 {
		t.Errorf("count = %d, want 2", results[3].Value)
	}
}

func TestRedisTx_BareIncrHasNoExpiry(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	key := testKey(t, "bare")

	tx := s.Tx()
	tx.Incr(key)
	tx.TTL(key)
	results, err := tx.Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Value != 1 {
		t.Errorf("count = %d, want 1", results[0].Value)
	}
	if results[1].Value != TTLNone {
		t.Errorf("ttl = %d, want %d", results[1].Value, TTLNone)
	}

	// Direct ExpireAt repairs the missing expiry.
	if err := s.ExpireAt(ctx, key, time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	tx = s.Tx()
	tx.TTL(key)
	results, err = tx.Exec(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Value <= 0 {
		t.Errorf("ttl after repair = %d, want positive", results[0].Value)
	}
}

func TestRedisTx_ExecOnce(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	tx := s.Tx()
	tx.Incr(testKey(t, "once"))
	if _, err := tx.Exec(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx); err == nil {
		t.Error("expected an error when re-executing a transaction")
	}
}
