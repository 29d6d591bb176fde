package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hqnguyen/trendwatch/internal/crawl"
	"github.com/hqnguyen/trendwatch/internal/entity"
	pubmemory "github.com/hqnguyen/trendwatch/internal/publisher/memory"
	"github.com/hqnguyen/trendwatch/internal/store"
	"github.com/hqnguyen/trendwatch/internal/store/memory"
)

type fakeCollector struct {
	name    string
	reports []crawl.Report
	err     error
	calls   atomic.Int32
}

func (f *fakeCollector) Platform() string { return f.name }

func (f *fakeCollector) Collect(context.Context) ([]crawl.Report, error) {
	f.calls.Add(1)
	return f.reports, f.err
}

type fakeIDs struct{ err error }

func (f fakeIDs) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func report(platform string, outcome crawl.Outcome) crawl.Report {
	return crawl.Report{TaskID: platform + "-t1", Platform: platform, Outcome: outcome}
}

func TestRunAggregatesAllPlatforms(t *testing.T) {
	t.Parallel()

	shopee := &fakeCollector{name: "shopee", reports: []crawl.Report{report("shopee", crawl.OutcomeCompleted)}}
	tiktok := &fakeCollector{name: "tiktok", reports: []crawl.Report{report("tiktok", crawl.OutcomePartial)}}

	c := New(Config{
		Collectors: []Collector{shopee, tiktok},
		Clock:      fixedClock{at: time.Unix(1700000000, 0).UTC()},
		IDs:        fakeIDs{},
	})

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Reports, 2)
	require.Empty(t, summary.PlatformErrors)
	require.False(t, summary.AnyPlatformFailed())
}

func TestRunIsolatesPlatformFailures(t *testing.T) {
	t.Parallel()

	broken := &fakeCollector{name: "facebook", err: fmt.Errorf("cookie expired")}
	healthy := &fakeCollector{name: "youtube", reports: []crawl.Report{report("youtube", crawl.OutcomeCompleted)}}

	c := New(Config{
		Collectors: []Collector{broken, healthy},
		Clock:      fixedClock{at: time.Unix(1700000000, 0).UTC()},
		IDs:        fakeIDs{},
	})

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), healthy.calls.Load())
	require.Len(t, summary.Reports, 1)
	require.Contains(t, summary.PlatformErrors["facebook"], "cookie expired")
	require.True(t, summary.AnyPlatformFailed())
}

func TestRunPublishesSummary(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	c := New(Config{
		Collectors: []Collector{&fakeCollector{name: "shopee"}},
		Publisher:  pub,
		Topic:      "crawl-summaries",
		Clock:      fixedClock{at: time.Unix(1700000000, 0).UTC()},
		IDs:        fakeIDs{},
	})

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "crawl-summaries", msgs[0].Topic)
	require.Equal(t, "run-1", msgs[0].Payload.(Summary).RunID)
}

func TestRunSurvivesPublishFailure(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	pub.FailWith = fmt.Errorf("topic gone")
	c := New(Config{
		Collectors: []Collector{&fakeCollector{name: "shopee"}},
		Publisher:  pub,
		Topic:      "crawl-summaries",
		Clock:      fixedClock{at: time.Unix(1700000000, 0).UTC()},
		IDs:        fakeIDs{},
	})

	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", summary.RunID)
}

func TestRunIDGenerationFailureAborts(t *testing.T) {
	t.Parallel()

	c := New(Config{
		Collectors: []Collector{&fakeCollector{name: "shopee"}},
		Clock:      fixedClock{at: time.Unix(1700000000, 0).UTC()},
		IDs:        fakeIDs{err: fmt.Errorf("entropy drained")},
	})

	_, err := c.Run(context.Background())
	require.Error(t, err)
}

func TestAnyPlatformFailedAllTasksFailed(t *testing.T) {
	t.Parallel()

	s := Summary{Reports: []crawl.Report{
		report("shopee", crawl.OutcomeFailed),
		report("tiktok", crawl.OutcomeCompleted),
	}}
	require.True(t, s.AnyPlatformFailed())

	s = Summary{Reports: []crawl.Report{
		{TaskID: "a", Platform: "shopee", Outcome: crawl.OutcomeFailed},
		{TaskID: "b", Platform: "shopee", Outcome: crawl.OutcomePartial},
	}}
	require.False(t, s.AnyPlatformFailed())
}

func TestPlatformCollectorRunsTasksSequentially(t *testing.T) {
	t.Parallel()

	var order []string
	p := &Platform{
		Name: "shopee",
		Tasks: []crawl.Task{
			{ID: "t1", Platform: "shopee", Keyword: "a", Variants: []string{"a"}, Target: 1, PageCeiling: 1, StallThreshold: 1},
			{ID: "t2", Platform: "shopee", Keyword: "b", Variants: []string{"b"}, Target: 1, PageCeiling: 1, StallThreshold: 1},
		},
		NewDriver: func(context.Context) (*crawl.Driver, error) {
			order = append(order, "driver")
			return crawl.NewDriver(crawl.DriverConfig{
				Source:     emptySource{},
				Normalizer: nilNormalizer{},
				Upserter:   store.NewEngine(memory.New(), store.EngineConfig{}, nil),
				Clock:      fixedClock{at: time.Unix(1700000000, 0).UTC()},
			}), nil
		},
	}

	reports, err := p.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.Len(t, order, 2)
}

func TestPlatformCollectorCancelMidRunYieldsPartial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var drivers int
	p := &Platform{
		Name: "shopee",
		Tasks: []crawl.Task{
			{ID: "t1", Platform: "shopee", Keyword: "a", Variants: []string{"a"}, Target: 1, PageCeiling: 1, StallThreshold: 1},
			{ID: "t2", Platform: "shopee", Keyword: "b", Variants: []string{"b"}, Target: 1, PageCeiling: 1, StallThreshold: 1},
		},
		NewDriver: func(context.Context) (*crawl.Driver, error) {
			drivers++
			// Cancellation lands while the first task is in flight.
			cancel()
			return crawl.NewDriver(crawl.DriverConfig{
				Source:     emptySource{},
				Normalizer: nilNormalizer{},
				Upserter:   store.NewEngine(memory.New(), store.EngineConfig{}, nil),
				Clock:      fixedClock{at: time.Unix(1700000000, 0).UTC()},
			}), nil
		},
	}

	reports, err := p.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, drivers)
	require.Len(t, reports, 1)

	summary := Summary{Reports: reports}
	require.False(t, summary.AnyPlatformFailed())
}

func TestPlatformCollectorPreflightFailureAborts(t *testing.T) {
	t.Parallel()

	p := &Platform{
		Name:      "facebook",
		Tasks:     []crawl.Task{{ID: "t1"}},
		Preflight: func(context.Context) error { return fmt.Errorf("blocked") },
		NewDriver: func(context.Context) (*crawl.Driver, error) {
			t.Fatal("driver must not be built after failed preflight")
			return nil, nil
		},
	}

	_, err := p.Collect(context.Background())
	require.Error(t, err)
}

type emptySource struct{}

func (emptySource) Open(context.Context, string) error         { return nil }
func (emptySource) NextPage(context.Context) ([][]byte, error) { return nil, crawl.ErrExhausted }
func (emptySource) Close()                                     {}

type nilNormalizer struct{}

func (nilNormalizer) Normalize([]byte, string) ([]entity.Entity, []string) { return nil, nil }
