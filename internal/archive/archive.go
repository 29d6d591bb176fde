// Package archive stores captured raw payloads for offline
// reprocessing. Normalizers evolve faster than crawls can be repeated;
// keeping the raw bodies makes yesterday's pages re-parseable.
package archive

import "context"

// Store writes one named payload.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Noop discards payloads; used when archiving is disabled.
type Noop struct{}

// Put drops the payload.
func (Noop) Put(context.Context, string, []byte) error { return nil }
