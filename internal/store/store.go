// Package store implements the dedup and persistence engine: one
// master record per natural key plus an append-only history of metric
// snapshots. All storage access goes through Engine.Upsert.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hqnguyen/trendwatch/internal/entity"
)

// Outcome classifies the effect of a single upsert.
type Outcome string

// Upsert outcomes.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRejected  Outcome = "rejected"
)

// Result carries the upsert outcome and, for rejections, the reason.
type Result struct {
	Outcome Outcome
	Reason  string
}

// ErrOutOfOrderSnapshot marks an observation older than the stored
// last_seen; it is rejected rather than applied.
var ErrOutOfOrderSnapshot = errors.New("store: observation older than last_seen")

// MasterRecord is the single current-state document per entity.
type MasterRecord struct {
	Platform  string            `json:"platform"`
	Key       string            `json:"key"`
	Title     string            `json:"title"`
	Keyword   string            `json:"keyword"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Metrics   entity.Metrics    `json:"metrics"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
}

// Snapshot is one immutable observation of an entity's metrics.
type Snapshot struct {
	Platform   string         `json:"platform"`
	Key        string         `json:"key"`
	ObservedAt time.Time      `json:"observed_at"`
	Metrics    entity.Metrics `json:"metrics"`
}

// Backend performs raw master/history I/O. Implementations do not need
// to serialize per-key access; the Engine does that.
type Backend interface {
	GetMaster(ctx context.Context, platform, key string) (MasterRecord, bool, error)
	InsertMaster(ctx context.Context, rec MasterRecord) error
	UpdateMaster(ctx context.Context, rec MasterRecord) error
	AppendSnapshot(ctx context.Context, snap Snapshot) error
	ListSnapshots(ctx context.Context, platform, key string) ([]Snapshot, error)
	Trending(ctx context.Context, platform, metric string, limit int) ([]MasterRecord, error)
	Close()
}
