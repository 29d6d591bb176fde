// Package shopee collects product listings from Shopee search pages by
// intercepting the search_items XHR the storefront fires while
// rendering results.
package shopee

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/browser"
	"github.com/hqnguyen/trendwatch/internal/crawl"
	"github.com/hqnguyen/trendwatch/internal/intercept"
	"github.com/hqnguyen/trendwatch/internal/session"
)

const (
	searchURLFormat  = "https://shopee.vn/search?keyword=%s&page=%d"
	searchItemsPath  = "/api/v4/search/search_items"
	platformName     = "shopee"
	defaultPageLimit = 2
)

// Config tunes the shopee source.
type Config struct {
	// PagesPerVariant caps explicit page navigations per keyword variant.
	PagesPerVariant int
	// WaitWindow bounds how long each navigation waits for the XHR.
	WaitWindow time.Duration
}

// Source drives Shopee search result pages.
type Source struct {
	browser *browser.Browser
	sess    session.Session
	cfg     Config
	logger  *zap.Logger

	tabCtx    context.Context
	tabCancel context.CancelFunc
	capture   *intercept.Capture

	variant string
	page    int
}

// NewSource builds a shopee source on a shared browser.
func NewSource(b *browser.Browser, sess session.Session, cfg Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PagesPerVariant <= 0 {
		cfg.PagesPerVariant = defaultPageLimit
	}
	if cfg.WaitWindow <= 0 {
		cfg.WaitWindow = 4 * time.Second
	}
	return &Source{browser: b, sess: sess, cfg: cfg, logger: logger}
}

// Open points the source at a keyword variant. The tab is created
// lazily on first open and reused across variants.
func (s *Source) Open(ctx context.Context, variant string) error {
	if s.tabCtx == nil {
		tabCtx, cancel, err := s.browser.NewPage(ctx)
		if err != nil {
			return fmt.Errorf("shopee tab: %w", err)
		}
		s.tabCtx = tabCtx
		s.tabCancel = cancel
		if err := s.browser.SetCookies(tabCtx, s.sess.Cookies); err != nil {
			return err
		}
		s.capture = intercept.Attach(tabCtx, platformName, func(u string) bool {
			return strings.Contains(u, searchItemsPath)
		}, s.logger)
	}
	s.variant = variant
	s.page = 0
	return nil
}

// NextPage navigates to the next explicit result page and returns the
// search_items payloads it triggered.
func (s *Source) NextPage(ctx context.Context) ([][]byte, error) {
	if s.page >= s.cfg.PagesPerVariant {
		return nil, crawl.ErrExhausted
	}

	target := fmt.Sprintf(searchURLFormat, url.QueryEscape(s.variant), s.page)
	finalURL, err := s.browser.Navigate(s.tabCtx, target)
	if err != nil {
		return nil, fmt.Errorf("shopee navigate: %w", err)
	}
	if looksBlocked(finalURL) {
		return nil, fmt.Errorf("redirected to %s: %w", finalURL, crawl.ErrBlocked)
	}
	s.page++

	batch := s.capture.WaitBatch(ctx, s.cfg.WaitWindow)
	payloads := make([][]byte, 0, len(batch))
	for _, p := range batch {
		payloads = append(payloads, p.Body)
	}
	return payloads, nil
}

// Close releases the tab.
func (s *Source) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
}

func looksBlocked(finalURL string) bool {
	lower := strings.ToLower(finalURL)
	return strings.Contains(lower, "/verify") ||
		strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "/buyer/login")
}
