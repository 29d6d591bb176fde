package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/metrics"
)

// EngineConfig controls snapshot policy.
type EngineConfig struct {
	// AlwaysSnapshot appends a snapshot on every accepted observation,
	// even when no metric moved.
	AlwaysSnapshot bool
	// MinDelta is the smallest metric change that triggers a snapshot.
	// Zero means any change snapshots.
	MinDelta float64
}

// Engine owns all read-modify-write access to master records and
// snapshots. Upserts for the same natural key are serialized; distinct
// keys proceed concurrently.
type Engine struct {
	backend Backend
	cfg     EngineConfig
	logger  *zap.Logger

	locks [lockShards]sync.Mutex
}

const lockShards = 64

// NewEngine wraps a backend with the dedup/snapshot policy.
func NewEngine(backend Backend, cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backend: backend, cfg: cfg, logger: logger}
}

// Upsert applies one observation of an entity at observedAt.
//
// A new key creates the master record and its first snapshot. A known
// key appends a snapshot when metrics moved (or AlwaysSnapshot is set)
// and advances last_seen. Observations older than the stored last_seen
// are rejected without touching state; replaying the identical
// observation is a no-op reported as unchanged.
func (e *Engine) Upsert(ctx context.Context, ent entity.Entity, observedAt time.Time) (Result, error) {
	if err := ent.Validate(); err != nil {
		return Result{Outcome: OutcomeRejected, Reason: err.Error()}, nil
	}

	lock := e.lockFor(ent.Platform, ent.Key)
	lock.Lock()
	defer lock.Unlock()

	rec, found, err := e.backend.GetMaster(ctx, ent.Platform, ent.Key)
	if err != nil {
		return Result{}, fmt.Errorf("get master %s/%s: %w", ent.Platform, ent.Key, err)
	}

	if !found {
		return e.create(ctx, ent, observedAt)
	}
	return e.merge(ctx, rec, ent, observedAt)
}

func (e *Engine) create(ctx context.Context, ent entity.Entity, observedAt time.Time) (Result, error) {
	rec := MasterRecord{
		Platform:  ent.Platform,
		Key:       ent.Key,
		Title:     ent.Title,
		Keyword:   ent.Keyword,
		Attrs:     ent.Attrs,
		Metrics:   ent.Metrics.Clone(),
		FirstSeen: observedAt,
		LastSeen:  observedAt,
	}
	// Snapshot goes in first. A failed snapshot leaves no state; a
	// failed insert leaves an orphan snapshot that a retried create
	// absorbs, since appends ignore replayed observation times.
	if err := e.appendSnapshot(ctx, ent, observedAt); err != nil {
		return Result{}, err
	}
	if err := e.backend.InsertMaster(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("insert master %s/%s: %w", ent.Platform, ent.Key, err)
	}
	metrics.ObserveUpsert(ent.Platform, string(OutcomeCreated))
	return Result{Outcome: OutcomeCreated}, nil
}

func (e *Engine) merge(ctx context.Context, rec MasterRecord, ent entity.Entity, observedAt time.Time) (Result, error) {
	changed := ent.Metrics.Changed(rec.Metrics, e.cfg.MinDelta)

	switch {
	case observedAt.Before(rec.LastSeen):
		e.logger.Warn("out-of-order observation rejected",
			zap.String("platform", ent.Platform),
			zap.String("key", ent.Key),
			zap.Time("observed_at", observedAt),
			zap.Time("last_seen", rec.LastSeen),
		)
		metrics.ObserveUpsert(ent.Platform, string(OutcomeRejected))
		return Result{Outcome: OutcomeRejected, Reason: ErrOutOfOrderSnapshot.Error()}, nil

	case observedAt.Equal(rec.LastSeen):
		// Replay of the same observation time: identical metrics are a
		// pure no-op, diverging metrics are a conflicting duplicate.
		if !changed {
			return Result{Outcome: OutcomeUnchanged}, nil
		}
		metrics.ObserveUpsert(ent.Platform, string(OutcomeRejected))
		return Result{Outcome: OutcomeRejected, Reason: "conflicting metrics at stored last_seen"}, nil
	}

	snapshot := changed || e.cfg.AlwaysSnapshot

	rec.LastSeen = observedAt
	if changed {
		rec.Metrics = ent.Metrics.Clone()
	}
	if ent.Title != "" {
		rec.Title = ent.Title
	}
	if err := e.backend.UpdateMaster(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("update master %s/%s: %w", ent.Platform, ent.Key, err)
	}
	if snapshot {
		if err := e.appendSnapshot(ctx, ent, observedAt); err != nil {
			return Result{}, err
		}
	}

	if !snapshot {
		return Result{Outcome: OutcomeUnchanged}, nil
	}
	metrics.ObserveUpsert(ent.Platform, string(OutcomeUpdated))
	return Result{Outcome: OutcomeUpdated}, nil
}

func (e *Engine) appendSnapshot(ctx context.Context, ent entity.Entity, observedAt time.Time) error {
	snap := Snapshot{
		Platform:   ent.Platform,
		Key:        ent.Key,
		ObservedAt: observedAt,
		Metrics:    ent.Metrics.Clone(),
	}
	if err := e.backend.AppendSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("append snapshot %s/%s: %w", ent.Platform, ent.Key, err)
	}
	metrics.ObserveSnapshot(ent.Platform)
	return nil
}

// Trending returns the top master records by a metric, for the ops API.
func (e *Engine) Trending(ctx context.Context, platform, metric string, limit int) ([]MasterRecord, error) {
	return e.backend.Trending(ctx, platform, metric, limit)
}

// Close releases the backend.
func (e *Engine) Close() {
	e.backend.Close()
}

func (e *Engine) lockFor(platform, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(platform))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return &e.locks[h.Sum32()%lockShards]
}
