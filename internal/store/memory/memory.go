// Package memory provides an in-memory store backend for tests and
// database-less local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hqnguyen/trendwatch/internal/store"
)

// Backend keeps master records and snapshots in maps guarded by one
// mutex. Good enough for tests; the engine serializes per key anyway.
type Backend struct {
	mu        sync.Mutex
	masters   map[string]store.MasterRecord
	snapshots map[string][]store.Snapshot
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{
		masters:   make(map[string]store.MasterRecord),
		snapshots: make(map[string][]store.Snapshot),
	}
}

func recordKey(platform, key string) string {
	return platform + "\x00" + key
}

// GetMaster returns the master record for a key, if present.
func (b *Backend) GetMaster(_ context.Context, platform, key string) (store.MasterRecord, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.masters[recordKey(platform, key)]
	return rec, ok, nil
}

// InsertMaster stores a new master record.
func (b *Backend) InsertMaster(_ context.Context, rec store.MasterRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.masters[recordKey(rec.Platform, rec.Key)] = rec
	return nil
}

// UpdateMaster overwrites an existing master record.
func (b *Backend) UpdateMaster(_ context.Context, rec store.MasterRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.masters[recordKey(rec.Platform, rec.Key)] = rec
	return nil
}

// AppendSnapshot appends one observation to the key's history. A
// replayed observation time is dropped, matching the database's
// conflict rule on the snapshot primary key.
func (b *Backend) AppendSnapshot(_ context.Context, snap store.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := recordKey(snap.Platform, snap.Key)
	for _, existing := range b.snapshots[k] {
		if existing.ObservedAt.Equal(snap.ObservedAt) {
			return nil
		}
	}
	b.snapshots[k] = append(b.snapshots[k], snap)
	return nil
}

// ListSnapshots returns a key's history ordered by observation time.
func (b *Backend) ListSnapshots(_ context.Context, platform, key string) ([]store.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.snapshots[recordKey(platform, key)]
	out := make([]store.Snapshot, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

// Trending returns the top master records for a platform by a metric.
func (b *Backend) Trending(_ context.Context, platform, metric string, limit int) ([]store.MasterRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []store.MasterRecord
	for _, rec := range b.masters {
		if platform != "" && rec.Platform != platform {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metrics[metric] > out[j].Metrics[metric] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory backend.
func (b *Backend) Close() {}
