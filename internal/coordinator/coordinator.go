// Package coordinator fans a crawl run out across platforms: one
// collector per platform running concurrently, tasks sequential inside
// each platform, failures isolated so one blocked platform never takes
// the others down.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/crawl"
	"github.com/hqnguyen/trendwatch/internal/publisher"
)

// Collector gathers everything one platform produces in a run.
type Collector interface {
	Platform() string
	Collect(ctx context.Context) ([]crawl.Report, error)
}

// Summary aggregates one whole run.
type Summary struct {
	RunID          string            `json:"run_id"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Reports        []crawl.Report    `json:"reports"`
	PlatformErrors map[string]string `json:"platform_errors,omitempty"`
}

// AnyPlatformFailed reports whether at least one platform produced a
// setup error or only failed tasks.
func (s Summary) AnyPlatformFailed() bool {
	if len(s.PlatformErrors) > 0 {
		return true
	}
	failedByPlatform := map[string]bool{}
	for _, r := range s.Reports {
		if _, seen := failedByPlatform[r.Platform]; !seen {
			failedByPlatform[r.Platform] = true
		}
		if r.Outcome != crawl.OutcomeFailed {
			failedByPlatform[r.Platform] = false
		}
	}
	for _, allFailed := range failedByPlatform {
		if allFailed {
			return true
		}
	}
	return false
}

// IDGenerator supplies run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Coordinator executes one run over a set of collectors.
type Coordinator struct {
	collectors []Collector
	pub        publisher.Publisher
	topic      string
	clock      crawl.Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// Config wires a Coordinator.
type Config struct {
	Collectors []Collector
	// Publisher receives the run summary; nil disables publishing.
	Publisher publisher.Publisher
	Topic     string
	Clock     crawl.Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = publisher.Noop{}
	}
	return &Coordinator{
		collectors: cfg.Collectors,
		pub:        pub,
		topic:      cfg.Topic,
		clock:      cfg.Clock,
		ids:        cfg.IDs,
		logger:     logger,
	}
}

// Run executes all collectors and returns the aggregated summary. The
// summary is always returned; the error covers run-level failures like
// ID generation, not platform failures.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}

	summary := Summary{
		RunID:          runID,
		StartedAt:      c.clock.Now(),
		PlatformErrors: map[string]string{},
	}
	c.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("platforms", len(c.collectors)),
	)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, col := range c.collectors {
		wg.Add(1)
		go func(col Collector) {
			defer wg.Done()
			reports, err := col.Collect(ctx)

			mu.Lock()
			defer mu.Unlock()
			summary.Reports = append(summary.Reports, reports...)
			if err != nil {
				summary.PlatformErrors[col.Platform()] = err.Error()
				c.logger.Error("platform collection failed",
					zap.String("platform", col.Platform()),
					zap.Error(err),
				)
			}
		}(col)
	}
	wg.Wait()

	summary.FinishedAt = c.clock.Now()
	c.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("reports", len(summary.Reports)),
		zap.Int("platform_errors", len(summary.PlatformErrors)),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	if c.topic != "" {
		if _, err := c.pub.Publish(ctx, c.topic, summary); err != nil {
			c.logger.Warn("summary publish failed", zap.Error(err))
		}
	}
	return summary, nil
}

// Platform is the standard Collector: a fixed task list executed
// sequentially, each task on a fresh driver.
type Platform struct {
	Name  string
	Tasks []crawl.Task
	// Preflight, when set, runs once before any task; its error aborts
	// the whole platform.
	Preflight func(ctx context.Context) error
	// NewDriver builds the driver (and its source) for one task.
	NewDriver func(ctx context.Context) (*crawl.Driver, error)
}

// Platform returns the platform name.
func (p *Platform) Platform() string { return p.Name }

// Collect runs the platform's tasks in order.
func (p *Platform) Collect(ctx context.Context) ([]crawl.Report, error) {
	if p.Preflight != nil {
		if err := p.Preflight(ctx); err != nil {
			return nil, fmt.Errorf("preflight: %w", err)
		}
	}

	var reports []crawl.Report
	for _, task := range p.Tasks {
		// A run-level cancel or timeout forfeits the remaining tasks but
		// is a partial yield, not a platform failure; what was collected
		// stands.
		if ctx.Err() != nil {
			break
		}
		driver, err := p.NewDriver(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return reports, fmt.Errorf("driver for task %s: %w", task.ID, err)
		}
		reports = append(reports, driver.Run(ctx, task))
	}
	return reports, nil
}
