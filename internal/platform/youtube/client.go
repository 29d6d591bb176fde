// Package youtube collects videos through the YouTube Data API v3,
// rotating across a pool of API keys as their daily quotas run out.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/quota"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Client is a quota-aware Data API client. Every request charges one
// unit against the router; a 403 retires the key and retries with the
// next one.
type Client struct {
	http    *resty.Client
	router  *quota.Router
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a client over a credential router.
func NewClient(router *quota.Router, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New()
	httpClient.SetTimeout(30 * time.Second)
	return &Client{
		http:    httpClient,
		router:  router,
		baseURL: defaultBaseURL,
		logger:  logger,
	}
}

// SetBaseURL overrides the API endpoint; tests point it at a local server.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search runs one search.list page for a query.
func (c *Client) Search(ctx context.Context, query, pageToken string) (searchResponse, error) {
	var out searchResponse
	err := c.call(ctx, "/search", map[string]string{
		"q":                 query,
		"part":              "id,snippet",
		"type":              "video",
		"maxResults":        "50",
		"order":             "relevance",
		"relevanceLanguage": "vi",
		"pageToken":         pageToken,
	}, &out)
	return out, err
}

// Videos fetches full snippet+statistics for up to 50 video ids and
// returns the raw response body for the normalizer.
func (c *Client) Videos(ctx context.Context, ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idParam := ids[0]
	for _, id := range ids[1:] {
		idParam += "," + id
	}
	var raw []byte
	err := c.callRaw(ctx, "/videos", map[string]string{
		"part": "snippet,statistics,contentDetails",
		"id":   idParam,
	}, &raw)
	return raw, err
}

func (c *Client) call(ctx context.Context, path string, params map[string]string, out any) error {
	var raw []byte
	if err := c.callRaw(ctx, path, params, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// callRaw performs one API request, rotating keys on quota errors until
// the router is empty.
func (c *Client) callRaw(ctx context.Context, path string, params map[string]string, raw *[]byte) error {
	for {
		key, err := c.router.Acquire()
		if err != nil {
			return err
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetQueryParam("key", key).
			Get(c.baseURL + path)
		if err != nil {
			return fmt.Errorf("youtube %s: %w", path, err)
		}

		if resp.StatusCode() == http.StatusForbidden {
			c.logger.Warn("api key quota exceeded, rotating", zap.String("path", path))
			c.router.ReportExhausted(key)
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("youtube %s: unexpected status %d", path, resp.StatusCode())
		}

		*raw = resp.Body()
		return nil
	}
}
