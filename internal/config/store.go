package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// descriptorKind is a store table discriminator.
type descriptorKind string

const (
	kindDatabase descriptorKind = "databases"
	kindQuery    descriptorKind = "queries"
	kindEndpoint descriptorKind = "endpoints"
)

// Record is one row of a descriptor-store table: spec.md §6's persisted
// state layout (name PK, body TEXT, created_at, updated_at).
type Record struct {
	Name      string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence contract backing the store-backed loader and
// the management/migration API. Implementations talk to whatever SQL
// database/sql driver is configured (pgx's stdlib adapter for Postgres,
// modernc.org/sqlite for the embedded backend) — the three tables it reads
// and writes are intentionally generic text-body tables, not typed
// per-descriptor schemas, matching spec.md's "user-DB schema migration is
// out of scope" Non-goal.
type Store interface {
	List(ctx context.Context, kind string) ([]Record, error)
	Get(ctx context.Context, kind, name string) (*Record, error)
	Put(ctx context.Context, kind, name, body string) error
	Delete(ctx context.Context, kind, name string) error
}

// SQLStore is a Store backed by database/sql, usable against both the
// Postgres and SQLite backends CORDAL supports.
type SQLStore struct {
	db      *sql.DB
	sqlite  bool // sqlite uses "?" placeholders; postgres uses "$N"
}

// NewSQLStore wraps db. dialect is "postgres" or "sqlite".
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, sqlite: dialect == "sqlite"}
}

// ph returns the positional placeholder for argument index n (1-based) in
// the store's SQL dialect.
func (s *SQLStore) ph(n int) string {
	if s.sqlite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func tableFor(kind string) (string, error) {
	switch descriptorKind(kind) {
	case kindDatabase, kindQuery, kindEndpoint:
		return string(kind), nil
	default:
		return "", fmt.Errorf("unknown descriptor kind %q", kind)
	}
}

func (s *SQLStore) List(ctx context.Context, kind string) ([]Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT name, body, created_at, updated_at FROM %s ORDER BY name", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.Body, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, kind, name string) (*Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var r Record
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT name, body, created_at, updated_at FROM %s WHERE name = %s", table, s.ph(1)), name)
	if err := row.Scan(&r.Name, &r.Body, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) Put(ctx context.Context, kind, name, body string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, body, created_at, updated_at) VALUES (%s, %s, %s, %s)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`, table, s.ph(1), s.ph(2), s.ph(3), s.ph(4)), name, body, now, now)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, kind, name string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE name = %s", table, s.ph(1)), name)
	return err
}

var _ Store = (*SQLStore)(nil)
