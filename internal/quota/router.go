// Package quota rotates API credentials across a shared budget pool.
//
// The router is constructed once per run and discarded with it; budget
// resets are external (time-based) and out of scope.
package quota

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/metrics"
)

// ErrQuotaExhausted signals that no credential has budget left. Drivers
// treat it as a terminal stall for the current task, not a retry.
var ErrQuotaExhausted = errors.New("quota: all credentials exhausted")

// Credential pairs an opaque key with its remaining call budget.
type Credential struct {
	Key    string
	Budget int
}

type credState struct {
	key       string
	remaining int
}

// Router hands out credentials round-robin and retires them when their
// budget runs out or the platform reports them exhausted.
type Router struct {
	mu     sync.Mutex
	creds  []*credState
	next   int
	logger *zap.Logger
}

// NewRouter builds a router over an ordered credential set. Credentials
// with a non-positive budget are skipped.
func NewRouter(creds []Credential, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{logger: logger}
	for _, c := range creds {
		if c.Key == "" || c.Budget <= 0 {
			continue
		}
		r.creds = append(r.creds, &credState{key: c.Key, remaining: c.Budget})
	}
	return r
}

// Acquire returns the next credential with remaining budget and charges
// one unit against it. Every outbound call must go through Acquire so
// accounting stays conservative regardless of call success.
func (r *Router) Acquire() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.creds) == 0 {
		return "", ErrQuotaExhausted
	}

	if r.next >= len(r.creds) {
		r.next = 0
	}
	c := r.creds[r.next]
	c.remaining--
	if c.remaining <= 0 {
		r.retireLocked(r.next)
	} else {
		r.next = (r.next + 1) % len(r.creds)
	}
	return c.key, nil
}

// ReportExhausted removes a credential from rotation for the remainder
// of the run, regardless of its tracked budget.
func (r *Router) ReportExhausted(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.creds {
		if c.key == key {
			r.logger.Warn("credential reported exhausted", zap.Int("remaining_pool", len(r.creds)-1))
			r.retireLocked(i)
			return
		}
	}
}

// Remaining returns how many credentials are still in rotation.
func (r *Router) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creds)
}

func (r *Router) retireLocked(i int) {
	r.creds = append(r.creds[:i], r.creds[i+1:]...)
	if r.next > i {
		r.next--
	}
	if len(r.creds) > 0 {
		r.next %= len(r.creds)
	} else {
		r.next = 0
	}
	metrics.ObserveQuotaRotation()
}
