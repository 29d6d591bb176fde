// Package browser wraps chromedp with the allocator flags, cookie
// installation, and scroll helpers the driven collectors share.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// stealthScript masks the most common headless fingerprints before any
// page script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => false});
window.chrome = { runtime: {} };
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.__proto__.query = function(parameters) {
  if (parameters && parameters.name === 'notifications') {
    return Promise.resolve({ state: Notification.permission });
  }
  return originalQuery(parameters);
};
Object.defineProperty(navigator, 'languages', {get: () => ['en-US','en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1,2,3,4,5]});
`

// Config controls the shared browser allocator.
type Config struct {
	Headless   bool
	UserAgent  string
	NavTimeout time.Duration
}

// Browser owns one Chrome allocator shared by all tabs of a run.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates the allocator. Tabs are cheap; the browser process is not,
// so one Browser serves a whole run.
func New(cfg Config, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-US"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
}

// Close tears down the allocator and every tab spawned from it.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewPage opens a fresh tab with network capture enabled and the
// stealth script installed. The returned cancel closes the tab.
func (b *Browser) NewPage(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)

	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			if b.cfg.UserAgent != "" {
				if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
					return fmt.Errorf("set user-agent: %w", err)
				}
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
				return fmt.Errorf("install stealth script: %w", err)
			}
			return nil
		}),
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		tabCancel()
		return nil, nil, fmt.Errorf("prepare tab: %w", err)
	}

	// Tie tab lifetime to the caller's context.
	stop := context.AfterFunc(ctx, tabCancel)
	cancel := func() {
		stop()
		tabCancel()
	}
	return tabCtx, cancel, nil
}

// SetCookies installs session cookies into a tab before navigation.
func (b *Browser) SetCookies(tabCtx context.Context, cookies []*network.CookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(cookies).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Navigate loads a URL, waits for the document to settle, and returns
// the final location. Callers compare it against the request URL to
// detect login redirects.
func (b *Browser) Navigate(tabCtx context.Context, url string) (string, error) {
	navCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavTimeout)
	defer cancel()

	var finalURL string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return finalURL, nil
}

// ScrollOnce scrolls one viewport down with a small random pause, the
// way a human flicks through a feed.
func (b *Browser) ScrollOnce(tabCtx context.Context) error {
	pause := time.Duration(300+rand.Intn(500)) * time.Millisecond
	err := chromedp.Run(tabCtx,
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight * 0.9)`, nil),
		chromedp.Sleep(pause),
	)
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}
