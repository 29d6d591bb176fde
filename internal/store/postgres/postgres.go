// Package postgres provides the Postgres-backed master/history store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/store"
)

// Backend implements store.Backend on a pgx connection pool.
//
// Expected schema:
//
//	CREATE TABLE master_records (
//	    platform    TEXT NOT NULL,
//	    natural_key TEXT NOT NULL,
//	    title       TEXT NOT NULL DEFAULT '',
//	    keyword     TEXT NOT NULL DEFAULT '',
//	    attrs       JSONB NOT NULL DEFAULT '{}',
//	    metrics     JSONB NOT NULL DEFAULT '{}',
//	    first_seen  TIMESTAMPTZ NOT NULL,
//	    last_seen   TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (platform, natural_key)
//	);
//
//	CREATE TABLE metric_snapshots (
//	    platform    TEXT NOT NULL,
//	    natural_key TEXT NOT NULL,
//	    observed_at TIMESTAMPTZ NOT NULL,
//	    metrics     JSONB NOT NULL,
//	    PRIMARY KEY (platform, natural_key, observed_at)
//	);
type Backend struct {
	pool DB
}

// DB is the pgxpool surface the backend uses; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// New connects a pool and pings it.
func New(ctx context.Context, dsn string, maxConns int) (*Backend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Backend{pool: pool}, nil
}

// NewWithDB wraps an existing DB (tests use pgxmock here).
func NewWithDB(db DB) *Backend {
	return &Backend{pool: db}
}

// GetMaster fetches the master record for one natural key.
func (b *Backend) GetMaster(ctx context.Context, platform, key string) (store.MasterRecord, bool, error) {
	query := `
		SELECT platform, natural_key, title, keyword, attrs, metrics, first_seen, last_seen
		FROM master_records
		WHERE platform = $1 AND natural_key = $2;
	`
	var (
		rec          store.MasterRecord
		attrsBytes   []byte
		metricsBytes []byte
	)
	err := b.pool.QueryRow(ctx, query, platform, key).Scan(
		&rec.Platform,
		&rec.Key,
		&rec.Title,
		&rec.Keyword,
		&attrsBytes,
		&metricsBytes,
		&rec.FirstSeen,
		&rec.LastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.MasterRecord{}, false, nil
		}
		return store.MasterRecord{}, false, fmt.Errorf("get master: %w", err)
	}
	if err := json.Unmarshal(attrsBytes, &rec.Attrs); err != nil {
		return store.MasterRecord{}, false, fmt.Errorf("decode attrs: %w", err)
	}
	if err := json.Unmarshal(metricsBytes, &rec.Metrics); err != nil {
		return store.MasterRecord{}, false, fmt.Errorf("decode metrics: %w", err)
	}
	return rec, true, nil
}

// InsertMaster writes a brand-new master record.
func (b *Backend) InsertMaster(ctx context.Context, rec store.MasterRecord) error {
	attrsBytes, metricsBytes, err := encodeDocs(rec.Attrs, rec.Metrics)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO master_records (platform, natural_key, title, keyword, attrs, metrics, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	if _, err := b.pool.Exec(ctx, query,
		rec.Platform, rec.Key, rec.Title, rec.Keyword,
		attrsBytes, metricsBytes, rec.FirstSeen, rec.LastSeen,
	); err != nil {
		return fmt.Errorf("insert master: %w", err)
	}
	return nil
}

// UpdateMaster writes through the latest metrics and last_seen.
func (b *Backend) UpdateMaster(ctx context.Context, rec store.MasterRecord) error {
	attrsBytes, metricsBytes, err := encodeDocs(rec.Attrs, rec.Metrics)
	if err != nil {
		return err
	}
	query := `
		UPDATE master_records
		SET title = $3, keyword = $4, attrs = $5, metrics = $6, last_seen = $7
		WHERE platform = $1 AND natural_key = $2;
	`
	if _, err := b.pool.Exec(ctx, query,
		rec.Platform, rec.Key, rec.Title, rec.Keyword,
		attrsBytes, metricsBytes, rec.LastSeen,
	); err != nil {
		return fmt.Errorf("update master: %w", err)
	}
	return nil
}

// AppendSnapshot inserts one immutable observation. The composite
// primary key makes identical replays conflict instead of duplicating;
// the engine never replays, so conflicts surface as errors.
func (b *Backend) AppendSnapshot(ctx context.Context, snap store.Snapshot) error {
	metricsBytes, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	query := `
		INSERT INTO metric_snapshots (platform, natural_key, observed_at, metrics)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (platform, natural_key, observed_at) DO NOTHING;
	`
	if _, err := b.pool.Exec(ctx, query, snap.Platform, snap.Key, snap.ObservedAt, metricsBytes); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a key's history in observation order.
func (b *Backend) ListSnapshots(ctx context.Context, platform, key string) ([]store.Snapshot, error) {
	query := `
		SELECT platform, natural_key, observed_at, metrics
		FROM metric_snapshots
		WHERE platform = $1 AND natural_key = $2
		ORDER BY observed_at ASC;
	`
	rows, err := b.pool.Query(ctx, query, platform, key)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []store.Snapshot
	for rows.Next() {
		var (
			snap         store.Snapshot
			metricsBytes []byte
		)
		if err := rows.Scan(&snap.Platform, &snap.Key, &snap.ObservedAt, &metricsBytes); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if err := json.Unmarshal(metricsBytes, &snap.Metrics); err != nil {
			return nil, fmt.Errorf("decode snapshot metrics: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Trending returns the top master records for a platform ordered by a
// numeric metric inside the metrics document.
func (b *Backend) Trending(ctx context.Context, platform, metric string, limit int) ([]store.MasterRecord, error) {
	query := `
		SELECT platform, natural_key, title, keyword, attrs, metrics, first_seen, last_seen
		FROM master_records
		WHERE ($1 = '' OR platform = $1)
		ORDER BY COALESCE((metrics->>$2)::numeric, 0) DESC
		LIMIT $3;
	`
	rows, err := b.pool.Query(ctx, query, platform, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("trending query: %w", err)
	}
	defer rows.Close()

	var recs []store.MasterRecord
	for rows.Next() {
		var (
			rec          store.MasterRecord
			attrsBytes   []byte
			metricsBytes []byte
		)
		if err := rows.Scan(
			&rec.Platform, &rec.Key, &rec.Title, &rec.Keyword,
			&attrsBytes, &metricsBytes, &rec.FirstSeen, &rec.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("scan master row: %w", err)
		}
		if err := json.Unmarshal(attrsBytes, &rec.Attrs); err != nil {
			return nil, fmt.Errorf("decode attrs: %w", err)
		}
		if err := json.Unmarshal(metricsBytes, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close releases the pool.
func (b *Backend) Close() {
	b.pool.Close()
}

func encodeDocs(attrs map[string]string, m entity.Metrics) ([]byte, []byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	if m == nil {
		m = entity.Metrics{}
	}
	attrsBytes, err := json.Marshal(attrs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode attrs: %w", err)
	}
	metricsBytes, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metrics: %w", err)
	}
	return attrsBytes, metricsBytes, nil
}
