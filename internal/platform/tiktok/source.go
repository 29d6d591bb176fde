// Package tiktok collects videos from TikTok search feeds by scrolling
// the results page and intercepting the general search API calls that
// feed the infinite scroll.
package tiktok

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
	searchURLFormat = "https://www.tiktok.com/search?q=%s"
	searchAPIPath   = "/api/search/general/full/"
	platformName    = "tiktok"
)

// Config tunes the tiktok source.
type Config struct {
	// MaxScrolls caps scroll rounds per variant.
	MaxScrolls int
	// WaitWindow bounds how long each scroll waits for feed XHRs.
	WaitWindow time.Duration
}

// Source drives TikTok search feeds with scroll pagination.
type Source struct {
	browser *browser.Browser
	sess    session.Session
	cfg     Config
	logger  *zap.Logger

	tabCtx    context.Context
	tabCancel context.CancelFunc
	capture   *intercept.Capture

	scrolls int
	opened  bool
}

// NewSource builds a tiktok source on a shared browser.
func NewSource(b *browser.Browser, sess session.Session, cfg Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = 30
	}
	if cfg.WaitWindow <= 0 {
		cfg.WaitWindow = 4 * time.Second
	}
	return &Source{browser: b, sess: sess, cfg: cfg, logger: logger}
}

// Open navigates to the search feed for a variant. The initial page
// load usually fires the first feed request by itself.
func (s *Source) Open(ctx context.Context, variant string) error {
	if s.tabCtx == nil {
		tabCtx, cancel, err := s.browser.NewPage(ctx)
		if err != nil {
			return fmt.Errorf("tiktok tab: %w", err)
		}
		s.tabCtx = tabCtx
		s.tabCancel = cancel
		if err := s.browser.SetCookies(tabCtx, s.sess.Cookies); err != nil {
			return err
		}
		s.capture = intercept.Attach(tabCtx, platformName, func(u string) bool {
			return strings.Contains(u, searchAPIPath)
		}, s.logger)
	}

	target := fmt.Sprintf(searchURLFormat, url.QueryEscape(variant))
	finalURL, err := s.browser.Navigate(s.tabCtx, target)
	if err != nil {
		return fmt.Errorf("tiktok navigate: %w", err)
	}
	if looksBlocked(finalURL) {
		return fmt.Errorf("redirected to %s: %w", finalURL, crawl.ErrBlocked)
	}
	s.scrolls = 0
	s.opened = true
	return nil
}

// NextPage returns the payloads captured since the last call, scrolling
// once to provoke the next feed request. The first call after Open
// drains what the initial page load produced.
func (s *Source) NextPage(ctx context.Context) ([][]byte, error) {
	if s.scrolls >= s.cfg.MaxScrolls {
		return nil, crawl.ErrExhausted
	}
	if !s.opened {
		return nil, fmt.Errorf("tiktok: NextPage before Open")
	}

	if s.scrolls > 0 {
		if err := s.browser.ScrollOnce(s.tabCtx); err != nil {
			return nil, fmt.Errorf("tiktok scroll: %w", err)
		}
	}
	s.scrolls++

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
	return strings.Contains(lower, "/login") || strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "/verify")
}
