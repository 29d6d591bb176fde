// Package facebook collects public posts from Facebook keyword search
// by scrolling the results feed and intercepting the GraphQL search
// responses behind it. A logged-in cookie session is mandatory.
package facebook

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
	searchURLFormat = "https://www.facebook.com/search/posts?q=%s"
	graphqlPath     = "/api/graphql"
	platformName    = "facebook"
)

// Config tunes the facebook source.
type Config struct {
	// MaxScrolls caps scroll rounds per variant.
	MaxScrolls int
	// WaitWindow bounds how long each scroll waits for GraphQL responses.
	WaitWindow time.Duration
}

// Source drives Facebook post search with scroll pagination.
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

// NewSource builds a facebook source on a shared browser.
func NewSource(b *browser.Browser, sess session.Session, cfg Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = 20
	}
	if cfg.WaitWindow <= 0 {
		cfg.WaitWindow = 4 * time.Second
	}
	return &Source{browser: b, sess: sess, cfg: cfg, logger: logger}
}

// Open navigates to the post search feed for a variant.
func (s *Source) Open(ctx context.Context, variant string) error {
	if s.tabCtx == nil {
		tabCtx, cancel, err := s.browser.NewPage(ctx)
		if err != nil {
			return fmt.Errorf("facebook tab: %w", err)
		}
		s.tabCtx = tabCtx
		s.tabCancel = cancel
		if err := s.browser.SetCookies(tabCtx, s.sess.Cookies); err != nil {
			return err
		}
		s.capture = intercept.Attach(tabCtx, platformName, func(u string) bool {
			return strings.Contains(u, graphqlPath)
		}, s.logger)
	}

	target := fmt.Sprintf(searchURLFormat, url.QueryEscape(variant))
	finalURL, err := s.browser.Navigate(s.tabCtx, target)
	if err != nil {
		return fmt.Errorf("facebook navigate: %w", err)
	}
	if looksBlocked(finalURL) {
		return fmt.Errorf("redirected to %s: %w", finalURL, crawl.ErrBlocked)
	}
	s.scrolls = 0
	s.opened = true
	return nil
}

// NextPage drains the GraphQL responses captured so far, scrolling once
// to provoke the next batch. Payloads that are not search responses are
// filtered out here; the normalizer never sees them.
func (s *Source) NextPage(ctx context.Context) ([][]byte, error) {
	if s.scrolls >= s.cfg.MaxScrolls {
		return nil, crawl.ErrExhausted
	}
	if !s.opened {
		return nil, fmt.Errorf("facebook: NextPage before Open")
	}

	if s.scrolls > 0 {
		if err := s.browser.ScrollOnce(s.tabCtx); err != nil {
			return nil, fmt.Errorf("facebook scroll: %w", err)
		}
	}
	s.scrolls++

	batch := s.capture.WaitBatch(ctx, s.cfg.WaitWindow)
	var payloads [][]byte
	for _, p := range batch {
		if IsSearchResponse(p.Body) {
			payloads = append(payloads, p.Body)
		}
	}
	return payloads, nil
}

// Close releases the tab.
func (s *Source) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
}

// IsSearchResponse reports whether a GraphQL body carries post search
// results. Facebook multiplexes many queries over the same endpoint.
func IsSearchResponse(body []byte) bool {
	s := string(body)
	return strings.Contains(s, "serpResponse") ||
		strings.Contains(s, "SearchPostsResultPaginatedDeferrableQuery")
}

func looksBlocked(finalURL string) bool {
	lower := strings.ToLower(finalURL)
	return strings.Contains(lower, "/login") || strings.Contains(lower, "/checkpoint")
}
