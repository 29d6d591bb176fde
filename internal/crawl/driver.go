package crawl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hqnguyen/trendwatch/internal/metrics"
	"github.com/hqnguyen/trendwatch/internal/quota"
	"github.com/hqnguyen/trendwatch/internal/store"
)

// state tracks where the driver is inside one task.
type state int

const (
	stateIdle state = iota
	stateSearching
	stateCollecting
	stateExpandingVariant
	stateDone
	stateStalled
)

// Driver walks search pages for one platform. It is platform-agnostic;
// all platform knowledge lives in the Source and Normalizer.
type Driver struct {
	source     Source
	normalizer Normalizer
	upserter   Upserter
	clock      Clock
	limiter    *rate.Limiter
	archive    Archiver
	logger     *zap.Logger
}

// DriverConfig wires one driver instance.
type DriverConfig struct {
	Source     Source
	Normalizer Normalizer
	Upserter   Upserter
	Clock      Clock
	// PageRPS bounds page turns; zero disables pacing.
	PageRPS float64
	// Archive, when set, receives every captured raw payload.
	Archive Archiver
	Logger  *zap.Logger
}

// NewDriver builds a driver.
func NewDriver(cfg DriverConfig) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.PageRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PageRPS), 1)
	}
	return &Driver{
		source:     cfg.Source,
		normalizer: cfg.Normalizer,
		upserter:   cfg.Upserter,
		clock:      cfg.Clock,
		limiter:    limiter,
		archive:    cfg.Archive,
		logger:     logger,
	}
}

// run carries the mutable state of one task execution.
type run struct {
	task    Task
	report  Report
	seen    map[string]struct{}
	pages   int
	stall   int
	variant int
	opened  int
	state   state
}

// Run executes one task to completion and always returns a report; the
// report's Errors field carries whatever went wrong along the way.
func (d *Driver) Run(ctx context.Context, task Task) Report {
	r := &run{
		task: task,
		report: Report{
			TaskID:   task.ID,
			Platform: task.Platform,
			Keyword:  task.Keyword,
		},
		seen:  make(map[string]struct{}),
		state: stateIdle,
	}
	defer d.source.Close()

	if task.Target <= 0 || len(task.Variants) == 0 {
		r.report.Outcome = OutcomePartial
		d.finish(r)
		return r.report
	}

	outcome := d.walkVariants(ctx, r)
	r.report.Outcome = outcome
	d.finish(r)
	return r.report
}

func (d *Driver) walkVariants(ctx context.Context, r *run) Outcome {
	for r.variant = 0; r.variant < len(r.task.Variants); r.variant++ {
		variant := r.task.Variants[r.variant]
		r.state = stateSearching

		if err := d.source.Open(ctx, variant); err != nil {
			if isStallErr(err) {
				r.state = stateStalled
				r.addError(fmt.Errorf("open %q: %w", variant, err))
				return OutcomeStalled
			}
			r.addError(fmt.Errorf("open %q: %w", variant, err))
			continue
		}
		r.opened++
		r.stall = 0

		outcome, next := d.collect(ctx, r, variant)
		if !next {
			return outcome
		}
	}

	if r.opened == 0 {
		return OutcomeFailed
	}
	// Every variant walked without hitting the target.
	return OutcomePartial
}

// collect pages through one variant. It returns next=true when the
// driver should move on to the following variant.
func (d *Driver) collect(ctx context.Context, r *run, variant string) (Outcome, bool) {
	r.state = stateCollecting
	for {
		if err := ctx.Err(); err != nil {
			r.addError(fmt.Errorf("run canceled: %w", err))
			return OutcomePartial, false
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				r.addError(fmt.Errorf("pacing wait: %w", err))
				return OutcomePartial, false
			}
		}

		payloads, err := d.source.NextPage(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrExhausted):
				return "", true
			case isStallErr(err):
				r.state = stateStalled
				r.addError(fmt.Errorf("variant %q: %w", variant, err))
				return OutcomeStalled, false
			default:
				r.addError(fmt.Errorf("variant %q page: %w", variant, err))
				return "", true
			}
		}

		r.pages++
		r.report.Pages++
		metrics.ObservePage(r.task.Platform)

		newOnPage := d.absorbPage(ctx, r, payloads)

		if len(r.seen) >= r.task.Target {
			r.state = stateDone
			return OutcomeCompleted, false
		}
		if r.pages >= r.task.PageCeiling {
			r.addError(fmt.Errorf("page ceiling %d reached", r.task.PageCeiling))
			return OutcomePartial, false
		}

		if newOnPage == 0 {
			r.stall++
			if r.stall >= r.task.StallThreshold {
				r.state = stateExpandingVariant
				r.stall = 0
				metrics.ObserveStallExpansion(r.task.Platform)
				d.logger.Info("variant stalled, expanding",
					zap.String("platform", r.task.Platform),
					zap.String("variant", variant),
				)
				return "", true
			}
		} else {
			r.stall = 0
		}
	}
}

// absorbPage normalizes and upserts one page's payloads, returning the
// number of entities not seen earlier in this run.
func (d *Driver) absorbPage(ctx context.Context, r *run, payloads [][]byte) int {
	newOnPage := 0
	for i, payload := range payloads {
		d.archivePayload(ctx, r, i, payload)

		entities, rejects := d.normalizer.Normalize(payload, r.task.Keyword)
		r.report.RejectedCount += len(rejects)
		for range rejects {
			metrics.ObserveRejection(r.task.Platform)
		}

		for _, ent := range entities {
			if _, dup := r.seen[ent.Key]; dup {
				// First observation in the run wins.
				continue
			}
			r.seen[ent.Key] = struct{}{}
			newOnPage++

			res, err := d.upserter.Upsert(ctx, ent, d.clock.Now())
			if err != nil {
				r.addError(fmt.Errorf("upsert %s: %w", ent.Key, err))
				continue
			}
			switch res.Outcome {
			case store.OutcomeCreated:
				r.report.NewCount++
			case store.OutcomeUpdated:
				r.report.UpdatedCount++
			case store.OutcomeUnchanged:
				r.report.UnchangedCount++
			case store.OutcomeRejected:
				r.report.RejectedCount++
			}
		}
	}
	return newOnPage
}

func (d *Driver) archivePayload(ctx context.Context, r *run, idx int, payload []byte) {
	if d.archive == nil {
		return
	}
	name := fmt.Sprintf("%s/%s/%s/page%04d_%d.json",
		r.task.Platform, r.task.ID, sanitize(r.task.Keyword), r.pages, idx)
	if err := d.archive.Put(ctx, name, payload); err != nil {
		d.logger.Warn("payload archive failed", zap.String("name", name), zap.Error(err))
	}
}

func (d *Driver) finish(r *run) {
	r.report.Seen = len(r.seen)
	metrics.ObserveTask(r.task.Platform, string(r.report.Outcome))
	d.logger.Info("task finished",
		zap.String("task_id", r.task.ID),
		zap.String("platform", r.task.Platform),
		zap.String("keyword", r.task.Keyword),
		zap.String("outcome", string(r.report.Outcome)),
		zap.Int("seen", r.report.Seen),
		zap.Int("new", r.report.NewCount),
		zap.Int("updated", r.report.UpdatedCount),
		zap.Int("pages", r.report.Pages),
		zap.Int("errors", len(r.report.Errors)),
	)
}

func (r *run) addError(err error) {
	r.report.Errors = append(r.report.Errors, err.Error())
}

func isStallErr(err error) bool {
	return errors.Is(err, ErrBlocked) || errors.Is(err, quota.ErrQuotaExhausted)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			out = append(out, '_')
		case r == '/' || r == '\\':
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
