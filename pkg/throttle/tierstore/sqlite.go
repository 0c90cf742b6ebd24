package tierstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/serandules/throttle/pkg/throttle"
)

// SQLite serves tiers from a local policy database. Each row defines one
// limit; a tier is the aggregate of its rows. Wildcard entries use "*" in
// the resource or action column, matching the in-memory policy model.
type SQLite struct {
	db         *sql.DB
	lookupStmt *sql.Stmt
}

// NewSQLite opens (and if necessary initializes) the policy database at
// path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("policy db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, int((5 * time.Second).Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy db: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	schema := `
	CREATE TABLE IF NOT EXISTS tier_limits (
		tier     TEXT NOT NULL,
		resource TEXT NOT NULL,
		action   TEXT NOT NULL,
		duration TEXT NOT NULL,
		quota    INTEGER NOT NULL,
		PRIMARY KEY (tier, resource, action, duration)
	);
	CREATE INDEX IF NOT EXISTS idx_tier_limits_tier ON tier_limits(tier);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize policy schema: %w", err)
	}

	stmt, err := db.Prepare(`SELECT resource, action, duration, quota FROM tier_limits WHERE tier = ?`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare lookup statement: %w", err)
	}

	return &SQLite{db: db, lookupStmt: stmt}, nil
}

// Lookup assembles the named tier from its limit rows. A tier with no rows
// is throttle.ErrTierNotFound.
func (s *SQLite) Lookup(ctx context.Context, name string) (*throttle.Tier, error) {
	rows, err := s.lookupStmt.QueryContext(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tier %q: %w", name, err)
	}
	defer rows.Close()

	limits := make(throttle.ResourceLimits)
	found := false
	for rows.Next() {
		var resource, action, duration string
		var quota int64
		if err := rows.Scan(&resource, &action, &duration, &quota); err != nil {
			return nil, fmt.Errorf("failed to scan tier row: %w", err)
		}
		found = true

		al, ok := limits[resource]
		if !ok {
			al = make(throttle.ActionLimits)
			limits[resource] = al
		}
		l, ok := al[throttle.Action(action)]
		if !ok {
			l = make(throttle.Limits)
			al[throttle.Action(action)] = l
		}
		l[throttle.Duration(duration)] = quota
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tier rows: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%q: %w", name, throttle.ErrTierNotFound)
	}

	return &throttle.Tier{Name: name, Limits: limits}, nil
}

// Put upserts one limit row. Used for seeding and by tests.
func (s *SQLite) Put(ctx context.Context, tier, resource string, action throttle.Action, d throttle.Duration, quota int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tier_limits (tier, resource, action, duration, quota)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tier, resource, action, duration) DO UPDATE SET quota = excluded.quota`,
		tier, resource, string(action), string(d), quota)
	if err != nil {
		return fmt.Errorf("failed to upsert tier limit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s.lookupStmt != nil {
		s.lookupStmt.Close()
	}
	return s.db.Close()
}
