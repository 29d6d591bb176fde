// Package intercept captures JSON payloads from the browser's network
// traffic. Sources attach a Capture to a tab, drive navigation or
// scrolling, then drain whatever responses matched their predicate
// within a bounded window.
package intercept

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/metrics"
)

// Predicate decides whether a response URL is worth capturing.
type Predicate func(url string) bool

// Payload is one captured response body.
type Payload struct {
	URL        string
	Body       []byte
	ReceivedAt time.Time
}

const payloadBuffer = 32

// Capture accumulates response bodies matching a predicate.
//
// Event callbacks registered with chromedp must return fast and never
// call chromedp actions; body retrieval happens on separate goroutines
// once loading finishes.
type Capture struct {
	platform string
	pred     Predicate
	logger   *zap.Logger

	payloads chan Payload
}

// Attach wires a Capture into a chromedp tab context. The capture stays
// live until the tab context is cancelled.
func Attach(tabCtx context.Context, platform string, pred Predicate, logger *zap.Logger) *Capture {
	c := newCapture(platform, pred, logger)

	matched := make(map[network.RequestID]string)

	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response == nil || !c.pred(e.Response.URL) {
				return
			}
			matched[e.RequestID] = e.Response.URL

		case *network.EventLoadingFinished:
			url, ok := matched[e.RequestID]
			if !ok {
				return
			}
			delete(matched, e.RequestID)
			go c.fetchBody(tabCtx, e.RequestID, url)

		case *network.EventLoadingFailed:
			delete(matched, e.RequestID)
		}
	})

	return c
}

func newCapture(platform string, pred Predicate, logger *zap.Logger) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{
		platform: platform,
		pred:     pred,
		logger:   logger,
		payloads: make(chan Payload, payloadBuffer),
	}
}

// fetchBody pulls the response body over CDP. It runs outside the event
// callback because GetResponseBody is itself a CDP round trip.
func (c *Capture) fetchBody(tabCtx context.Context, id network.RequestID, url string) {
	cdpCtx := chromedp.FromContext(tabCtx)
	if cdpCtx == nil || cdpCtx.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(tabCtx, cdpCtx.Target))
	if err != nil {
		c.logger.Debug("response body fetch failed",
			zap.String("platform", c.platform),
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	c.offer(Payload{URL: url, Body: body, ReceivedAt: time.Now()})
}

// offer enqueues a payload, dropping it when the buffer is full so the
// capture never blocks browser event delivery.
func (c *Capture) offer(p Payload) {
	select {
	case c.payloads <- p:
		metrics.ObserveInterceptPayload(c.platform)
	default:
		c.logger.Warn("payload buffer full, dropping capture",
			zap.String("platform", c.platform),
			zap.String("url", p.URL),
		)
	}
}

// WaitBatch collects captured payloads for up to window, returning
// early only on context cancellation. A nil slice means nothing matched
// inside the window; callers treat that as a stalled page, not an error.
func (c *Capture) WaitBatch(ctx context.Context, window time.Duration) []Payload {
	start := time.Now()
	defer func() { metrics.ObserveInterceptWait(c.platform, time.Since(start)) }()

	timer := time.NewTimer(window)
	defer timer.Stop()

	var batch []Payload
	for {
		select {
		case p := <-c.payloads:
			batch = append(batch, p)
		case <-timer.C:
			return append(batch, c.drain()...)
		case <-ctx.Done():
			return append(batch, c.drain()...)
		}
	}
}

// Drain returns everything currently buffered without waiting.
func (c *Capture) Drain() []Payload {
	return c.drain()
}

func (c *Capture) drain() []Payload {
	var out []Payload
	for {
		select {
		case p := <-c.payloads:
			out = append(out, p)
		default:
			return out
		}
	}
}
