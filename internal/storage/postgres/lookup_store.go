// Package postgres persists lookup history in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "estimate_lookups"

// Config controls the Postgres connection pool used for lookup rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// LookupStore writes and reads lookup rows.
type LookupStore struct {
	pool  pool
	table string
}

// NewLookupStore connects to Postgres using cfg.
func NewLookupStore(ctx context.Context, cfg Config) (*LookupStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LookupStore{pool: p, table: table}, nil
}

// NewLookupStoreWithPool constructs a store from an existing pool.
func NewLookupStoreWithPool(p pool, table string) (*LookupStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &LookupStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the lookup table and its cert index when missing.
func (s *LookupStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	psa_cert TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	estimate JSONB,
	duration_ms BIGINT NOT NULL,
	snapshot_uri TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_cert_created_idx ON %[1]s (psa_cert, created_at DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Record inserts a lookup row.
func (s *LookupStore) Record(ctx context.Context, record estimate.LookupRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	var estimateJSON []byte
	if record.Estimate != nil {
		data, err := json.Marshal(record.Estimate)
		if err != nil {
			return fmt.Errorf("marshal estimate: %w", err)
		}
		estimateJSON = data
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	psa_cert,
	outcome,
	detail,
	estimate,
	duration_ms,
	snapshot_uri,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)
	args := []any{
		record.ID,
		record.PSACert,
		string(record.Outcome),
		record.Detail,
		estimateJSON,
		record.DurationMs,
		record.SnapshotURI,
		record.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert lookup: %w", err)
	}
	return nil
}

// Recent returns up to limit rows for cert, newest first.
func (s *LookupStore) Recent(ctx context.Context, cert string, limit int) ([]estimate.LookupRecord, error) {
	query := fmt.Sprintf(`
SELECT id, psa_cert, outcome, detail, estimate, duration_ms, snapshot_uri, created_at
FROM %s
WHERE psa_cert = $1
ORDER BY created_at DESC
LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, cert, limit)
	if err != nil {
		return nil, fmt.Errorf("query lookups: %w", err)
	}
	defer rows.Close()

	out := make([]estimate.LookupRecord, 0, limit)
	for rows.Next() {
		var (
			rec          estimate.LookupRecord
			outcome      string
			estimateJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.PSACert, &outcome, &rec.Detail, &estimateJSON,
			&rec.DurationMs, &rec.SnapshotURI, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lookup: %w", err)
		}
		rec.Outcome = estimate.Outcome(outcome)
		if len(estimateJSON) > 0 {
			var est estimate.Estimate
			if err := json.Unmarshal(estimateJSON, &est); err != nil {
				return nil, fmt.Errorf("decode estimate for %s: %w", rec.ID, err)
			}
			rec.Estimate = &est
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lookups: %w", err)
	}
	return out, nil
}

// Ping verifies the database connection.
func (s *LookupStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *LookupStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
