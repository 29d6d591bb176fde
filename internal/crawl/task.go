// Package crawl contains the platform-independent pagination driver:
// a keyword task walks search pages through a Source, normalizes the
// captured payloads, and feeds entities to the persistence engine.
package crawl

import (
	"context"
	"errors"
	"time"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/store"
)

// Task is one keyword collection assignment on one platform.
type Task struct {
	ID             string
	Platform       string
	Keyword        string
	Variants       []string
	Target         int
	PageCeiling    int
	StallThreshold int
}

// Outcome classifies how a task ended.
type Outcome string

// Task outcomes.
const (
	// OutcomeCompleted means the target entity count was reached.
	OutcomeCompleted Outcome = "completed"
	// OutcomePartial means the task ended early (page ceiling, variant
	// exhaustion, cancellation) with whatever was collected.
	OutcomePartial Outcome = "partial"
	// OutcomeStalled means the platform blocked us or API quota ran dry.
	OutcomeStalled Outcome = "stalled"
	// OutcomeFailed means no variant could even be opened.
	OutcomeFailed Outcome = "failed"
)

// Report summarizes one finished task.
type Report struct {
	TaskID         string   `json:"task_id"`
	Platform       string   `json:"platform"`
	Keyword        string   `json:"keyword"`
	Outcome        Outcome  `json:"outcome"`
	NewCount       int      `json:"new_count"`
	UpdatedCount   int      `json:"updated_count"`
	UnchangedCount int      `json:"unchanged_count"`
	RejectedCount  int      `json:"rejected_count"`
	Pages          int      `json:"pages"`
	Seen           int      `json:"seen"`
	Errors         []string `json:"errors,omitempty"`
}

// Source errors understood by the driver.
var (
	// ErrBlocked means the platform refused service for this session;
	// the driver stops the task rather than hammering on.
	ErrBlocked = errors.New("crawl: platform blocked the session")
	// ErrExhausted means the current variant has no further pages.
	ErrExhausted = errors.New("crawl: variant exhausted")
)

// Source produces raw result-page payloads for one platform. Open
// starts (or restarts) a search for a keyword variant; NextPage blocks
// until the next batch of raw payloads is available or the variant is
// done.
type Source interface {
	Open(ctx context.Context, variant string) error
	NextPage(ctx context.Context) ([][]byte, error)
	Close()
}

// Normalizer turns one raw payload into entities, reporting the records
// it had to drop.
type Normalizer interface {
	Normalize(payload []byte, keyword string) ([]entity.Entity, []string)
}

// Upserter is the slice of the persistence engine the driver needs.
type Upserter interface {
	Upsert(ctx context.Context, ent entity.Entity, observedAt time.Time) (store.Result, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Archiver persists raw payload batches for offline reprocessing.
type Archiver interface {
	Put(ctx context.Context, name string, data []byte) error
}
