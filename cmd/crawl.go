package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/archive"
	gcsarchive "github.com/hqnguyen/trendwatch/internal/archive/gcs"
	localarchive "github.com/hqnguyen/trendwatch/internal/archive/local"
	"github.com/hqnguyen/trendwatch/internal/browser"
	systemclock "github.com/hqnguyen/trendwatch/internal/clock/system"
	"github.com/hqnguyen/trendwatch/internal/config"
	"github.com/hqnguyen/trendwatch/internal/coordinator"
	"github.com/hqnguyen/trendwatch/internal/crawl"
	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/id/uuid"
	"github.com/hqnguyen/trendwatch/internal/logging"
	"github.com/hqnguyen/trendwatch/internal/metrics"
	"github.com/hqnguyen/trendwatch/internal/ops"
	"github.com/hqnguyen/trendwatch/internal/platform/facebook"
	"github.com/hqnguyen/trendwatch/internal/platform/shopee"
	"github.com/hqnguyen/trendwatch/internal/platform/tiktok"
	"github.com/hqnguyen/trendwatch/internal/platform/youtube"
	"github.com/hqnguyen/trendwatch/internal/probe"
	"github.com/hqnguyen/trendwatch/internal/publisher"
	pubsubpublisher "github.com/hqnguyen/trendwatch/internal/publisher/pubsub"
	"github.com/hqnguyen/trendwatch/internal/quota"
	"github.com/hqnguyen/trendwatch/internal/session"
	"github.com/hqnguyen/trendwatch/internal/store"
	"github.com/hqnguyen/trendwatch/internal/store/memory"
	"github.com/hqnguyen/trendwatch/internal/store/postgres"
)

const (
	platformAll = "all"

	facebookHomeURL = "https://www.facebook.com/"
	shopeeHomeURL   = "https://shopee.vn/"
	tiktokHomeURL   = "https://www.tiktok.com/"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [platform]",
		Short: "Runs one collection pass",
		Long: `Runs one collection pass over the given platform, or over every
enabled platform when the argument is "all" or omitted. Exits non-zero
when any platform fails completely.`,
		Args: cobra.MaximumNArgs(1),
		ValidArgs: []string{
			entity.PlatformFacebook, entity.PlatformShopee,
			entity.PlatformTikTok, entity.PlatformYouTube, platformAll,
		},
		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	selected := platformAll
	if len(args) == 1 {
		selected = args[0]
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout := cfg.Crawl.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	backend, err := openBackend(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	engine := store.NewEngine(backend, store.EngineConfig{
		AlwaysSnapshot: cfg.Store.AlwaysSnapshot,
		MinDelta:       cfg.Store.SnapshotMinDelta,
	}, logger)
	defer engine.Close()

	archiver, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	pub, closePub, err := openPublisher(ctx, cfg.Publish, logger)
	if err != nil {
		return err
	}
	defer closePub()

	collectors, closeCollectors, err := buildCollectors(cfg, selected, engine, archiver, logger)
	if err != nil {
		return err
	}
	defer closeCollectors()

	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		opsServer = ops.NewServer(engine, logger)
		go func() {
			if err := opsServer.Serve(ctx, cfg.Ops.Port); err != nil {
				logger.Error("ops server stopped", zap.Error(err))
			}
		}()
	}

	coord := coordinator.New(coordinator.Config{
		Collectors: collectors,
		Publisher:  pub,
		Topic:      cfg.Publish.Topic,
		Clock:      systemclock.New(),
		IDs:        uuid.NewUUIDGenerator(),
		Logger:     logger,
	})
	summary, err := coord.Run(ctx)
	if err != nil {
		return err
	}
	if opsServer != nil {
		opsServer.SetSummary(summary)
	}

	if summary.AnyPlatformFailed() {
		return fmt.Errorf("run %s finished with failed platforms", summary.RunID)
	}
	logger.Info("crawl finished", zap.String("run_id", summary.RunID))
	return nil
}

func openBackend(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (store.Backend, error) {
	if cfg.DSN == "" {
		logger.Info("no database configured, using in-memory store")
		return memory.New(), nil
	}
	backend, err := postgres.New(ctx, cfg.DSN, cfg.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return backend, nil
}

func openArchive(ctx context.Context, cfg config.ArchiveConfig) (crawl.Archiver, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "local":
		st, err := localarchive.New(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return st, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("open gcs client: %w", err)
		}
		st, err := gcsarchive.New(client, cfg.GCSBucket, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown archive provider: %s", cfg.Provider)
}

func openPublisher(ctx context.Context, cfg config.PublishConfig, logger *zap.Logger) (publisher.Publisher, func(), error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return publisher.Noop{}, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("open pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { _ = pub.Close() }, nil
}

// buildCollectors assembles one coordinator.Platform per selected and
// enabled platform. Browser platforms share a single Chrome allocator.
func buildCollectors(
	cfg config.Config,
	selected string,
	engine *store.Engine,
	archiver crawl.Archiver,
	logger *zap.Logger,
) ([]coordinator.Collector, func(), error) {
	var (
		collectors []coordinator.Collector
		shared     *browser.Browser
	)
	closeAll := func() {
		if shared != nil {
			shared.Close()
		}
	}
	sharedBrowser := func() *browser.Browser {
		if shared == nil {
			shared = browser.New(browser.Config{
				Headless:   cfg.Browser.Headless,
				UserAgent:  cfg.Browser.UserAgent,
				NavTimeout: cfg.Browser.NavTimeout(),
			}, logger)
		}
		return shared
	}
	prober := probe.New(probe.Config{UserAgent: cfg.Browser.UserAgent}, logger)

	wanted := func(name string) (config.PlatformConfig, bool) {
		pcfg, ok := cfg.Platforms.ByName(name)
		if !ok || !pcfg.Enabled {
			return config.PlatformConfig{}, false
		}
		return pcfg, selected == platformAll || selected == name
	}

	if pcfg, ok := wanted(entity.PlatformFacebook); ok {
		sess, err := session.FromCookieHeader(pcfg.Cookie, ".facebook.com")
		if err != nil {
			return nil, closeAll, fmt.Errorf("facebook session: %w", err)
		}
		b := sharedBrowser()
		collectors = append(collectors, &coordinator.Platform{
			Name:  entity.PlatformFacebook,
			Tasks: buildTasks(entity.PlatformFacebook, pcfg),
			Preflight: func(ctx context.Context) error {
				return prober.Check(ctx, facebookHomeURL, sess.CookieHeader())
			},
			NewDriver: func(context.Context) (*crawl.Driver, error) {
				src := facebook.NewSource(b, sess, facebook.Config{
					MaxScrolls: pcfg.PagesPerVariant,
					WaitWindow: cfg.Crawl.WaitWindow(),
				}, logger)
				return newDriver(src, facebook.Normalizer{}, engine, archiver, cfg, logger), nil
			},
		})
	}

	if pcfg, ok := wanted(entity.PlatformShopee); ok {
		sess := session.Session{}
		if pcfg.Cookie != "" {
			var err error
			sess, err = session.FromCookieHeader(pcfg.Cookie, ".shopee.vn")
			if err != nil {
				return nil, closeAll, fmt.Errorf("shopee session: %w", err)
			}
		}
		b := sharedBrowser()
		collectors = append(collectors, &coordinator.Platform{
			Name:  entity.PlatformShopee,
			Tasks: buildTasks(entity.PlatformShopee, pcfg),
			Preflight: func(ctx context.Context) error {
				return prober.Check(ctx, shopeeHomeURL, sess.CookieHeader())
			},
			NewDriver: func(context.Context) (*crawl.Driver, error) {
				src := shopee.NewSource(b, sess, shopee.Config{
					PagesPerVariant: pcfg.PagesPerVariant,
					WaitWindow:      cfg.Crawl.WaitWindow(),
				}, logger)
				return newDriver(src, shopee.Normalizer{}, engine, archiver, cfg, logger), nil
			},
		})
	}

	if pcfg, ok := wanted(entity.PlatformTikTok); ok {
		sess := session.Session{}
		if pcfg.Cookie != "" {
			var err error
			sess, err = session.FromCookieHeader(pcfg.Cookie, ".tiktok.com")
			if err != nil {
				return nil, closeAll, fmt.Errorf("tiktok session: %w", err)
			}
		}
		b := sharedBrowser()
		collectors = append(collectors, &coordinator.Platform{
			Name:  entity.PlatformTikTok,
			Tasks: buildTasks(entity.PlatformTikTok, pcfg),
			Preflight: func(ctx context.Context) error {
				return prober.Check(ctx, tiktokHomeURL, sess.CookieHeader())
			},
			NewDriver: func(context.Context) (*crawl.Driver, error) {
				src := tiktok.NewSource(b, sess, tiktok.Config{
					MaxScrolls: pcfg.PagesPerVariant,
					WaitWindow: cfg.Crawl.WaitWindow(),
				}, logger)
				return newDriver(src, tiktok.Normalizer{}, engine, archiver, cfg, logger), nil
			},
		})
	}

	if pcfg, ok := wanted(entity.PlatformYouTube); ok {
		sess, err := session.FromAPIKeys(pcfg.APIKeys, pcfg.KeyBudget)
		if err != nil {
			return nil, closeAll, fmt.Errorf("youtube session: %w", err)
		}
		client := youtube.NewClient(quota.NewRouter(sess.Credentials, logger), logger)
		collectors = append(collectors, &coordinator.Platform{
			Name:  entity.PlatformYouTube,
			Tasks: buildTasks(entity.PlatformYouTube, pcfg),
			NewDriver: func(context.Context) (*crawl.Driver, error) {
				src := youtube.NewSource(client, youtube.Config{
					ExcludedChannels: pcfg.ExcludedChannels,
				}, logger)
				return newDriver(src, youtube.Normalizer{}, engine, archiver, cfg, logger), nil
			},
		})
	}

	if len(collectors) == 0 {
		return nil, closeAll, fmt.Errorf("no enabled platform matches %q", selected)
	}
	return collectors, closeAll, nil
}

func buildTasks(platform string, pcfg config.PlatformConfig) []crawl.Task {
	tasks := make([]crawl.Task, 0, len(pcfg.Keywords))
	for i, kw := range pcfg.Keywords {
		tasks = append(tasks, crawl.Task{
			ID:             fmt.Sprintf("%s-%03d", platform, i+1),
			Platform:       platform,
			Keyword:        kw,
			Variants:       crawl.Variants(kw, pcfg.VariantsPerKeyword),
			Target:         pcfg.Target,
			PageCeiling:    pcfg.PageCeiling,
			StallThreshold: pcfg.StallThreshold,
		})
	}
	return tasks
}

func newDriver(
	src crawl.Source,
	norm crawl.Normalizer,
	engine *store.Engine,
	archiver crawl.Archiver,
	cfg config.Config,
	logger *zap.Logger,
) *crawl.Driver {
	if archiver == nil {
		archiver = archive.Noop{}
	}
	return crawl.NewDriver(crawl.DriverConfig{
		Source:     src,
		Normalizer: norm,
		Upserter:   engine,
		Clock:      systemclock.New(),
		PageRPS:    cfg.Crawl.PageRPS,
		Archive:    archiver,
		Logger:     logger,
	})
}
