// Package probe performs cheap plain-HTTP checks against a platform
// before a browser session is spent on it: is the site reachable, and
// does the stored cookie still look logged in.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ErrBlocked marks a probe that came back with a block page, a captcha
// redirect, or a login wall.
var ErrBlocked = errors.New("probe: platform blocked or session expired")

// Config controls probe requests.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Prober runs preflight checks with colly.
type Prober struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Prober.
func New(cfg Config, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Prober{cfg: cfg, logger: logger}
}

// loginMarkers are URL fragments that mean the platform bounced us to
// an auth or challenge page.
var loginMarkers = []string{"/login", "/verify", "captcha", "checkpoint"}

// Check fetches url with the given cookie header and classifies the
// result. A block or login redirect returns ErrBlocked; transport
// failures return their own error.
func (p *Prober) Check(ctx context.Context, url, cookieHeader string) error {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(p.cfg.Timeout)
	if p.cfg.UserAgent != "" {
		c.UserAgent = p.cfg.UserAgent
	}

	var (
		status   int
		finalURL string
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if cookieHeader != "" {
			r.Headers.Set("Cookie", cookieHeader)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		finalURL = r.Request.URL.String()
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if status == http.StatusForbidden || status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d", ErrBlocked, status)
		}
		if err != nil {
			return fmt.Errorf("probe visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return fmt.Errorf("probe response %s: %w", url, fetchErr)
		}
	}

	if redirectedToLogin(url, finalURL) {
		p.logger.Warn("probe redirected to auth page",
			zap.String("requested", url),
			zap.String("final", finalURL),
		)
		return fmt.Errorf("%w: redirected to %s", ErrBlocked, finalURL)
	}
	return nil
}

func redirectedToLogin(requested, final string) bool {
	if final == "" || final == requested {
		return false
	}
	lower := strings.ToLower(final)
	for _, marker := range loginMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
