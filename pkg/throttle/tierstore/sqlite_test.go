package tierstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/serandules/throttle/pkg/throttle"
)

func newSQLiteSource(t *testing.T) *SQLite {
	t.Helper()
	source, err := NewSQLite(filepath.Join(t.TempDir(), "tiers.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { source.Close() })
	return source
}

func TestSQLiteLookup(t *testing.T) {
	ctx := context.Background()
	source := newSQLiteSource(t)

	seed := []struct {
		resource string
		action   throttle.Action
		d        throttle.Duration
		quota    int64
	}{
		{"apis", throttle.ActionCreate, throttle.Second, 2},
		{"apis", throttle.ActionCreate, throttle.Day, 100},
		{"apis", throttle.ActionFind, throttle.Second, 10},
		{"*", throttle.ActionWildcard, throttle.Month, 10000},
	}
	for _, row := range seed {
		if err := source.Put(ctx, "basic", row.resource, row.action, row.d, row.quota); err != nil {
			t.Fatal(err)
		}
	}

	tier, err := source.Lookup(ctx, "basic")
	if err != nil {
		t.Fatal(err)
	}
	if tier.Name != "basic" {
		t.Errorf("tier name = %q, want basic", tier.Name)
	}

	create := tier.Limits["apis"][throttle.ActionCreate]
	if create[throttle.Second] != 2 || create[throttle.Day] != 100 {
		t.Errorf("create limits = %v", create)
	}
	if got := tier.Limits["apis"][throttle.ActionFind][throttle.Second]; got != 10 {
		t.Errorf("find second limit = %d, want 10", got)
	}
	if got := tier.Limits["*"][throttle.ActionWildcard][throttle.Month]; got != 10000 {
		t.Errorf("wildcard month limit = %d, want 10000", got)
	}
}

func TestSQLiteLookupUnknownTier(t *testing.T) {
	ctx := context.Background()
	source := newSQLiteSource(t)

	if err := source.Put(ctx, "basic", "apis", throttle.ActionCreate, throttle.Second, 2); err != nil {
		t.Fatal(err)
	}

	_, err := source.Lookup(ctx, "platinum")
	if !errors.Is(err, throttle.ErrTierNotFound) {
		t.Errorf("expected ErrTierNotFound, got %v", err)
	}
}

func TestSQLitePutUpserts(t *testing.T) {
	ctx := context.Background()
	source := newSQLiteSource(t)

	if err := source.Put(ctx, "basic", "apis", throttle.ActionCreate, throttle.Second, 2); err != nil {
		t.Fatal(err)
	}
	if err := source.Put(ctx, "basic", "apis", throttle.ActionCreate, throttle.Second, 5); err != nil {
		t.Fatal(err)
	}

	tier, err := source.Lookup(ctx, "basic")
	if err != nil {
		t.Fatal(err)
	}
	if got := tier.Limits["apis"][throttle.ActionCreate][throttle.Second]; got != 5 {
		t.Errorf("quota after upsert = %d, want 5", got)
	}
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tiers.db")

	source, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := source.Put(ctx, "basic", "apis", throttle.ActionCreate, throttle.Second, 2); err != nil {
		t.Fatal(err)
	}
	if err := source.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	tier, err := reopened.Lookup(ctx, "basic")
	if err != nil {
		t.Fatal(err)
	}
	if got := tier.Limits["apis"][throttle.ActionCreate][throttle.Second]; got != 2 {
		t.Errorf("quota after reopen = %d, want 2", got)
	}
}

func TestSQLiteEmptyPath(t *testing.T) {
	if _, err := NewSQLite(""); err == nil {
		t.Error("expected an error for an empty path")
	}
}
