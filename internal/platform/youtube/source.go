package youtube

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/crawl"
)

const batchSize = 50

// Config tunes the youtube source.
type Config struct {
	// ExcludedChannels drops results from blacklisted channel titles
	// (substring match, case-insensitive).
	ExcludedChannels []string
}

// Source pages through search.list results and resolves each page to
// full video documents via videos.list.
type Source struct {
	client   *Client
	cfg      Config
	logger   *zap.Logger
	excluded []string

	query     string
	pageToken string
	opened    bool
	done      bool
}

// NewSource builds a youtube source.
func NewSource(client *Client, cfg Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	excluded := make([]string, 0, len(cfg.ExcludedChannels))
	for _, ch := range cfg.ExcludedChannels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch != "" {
			excluded = append(excluded, ch)
		}
	}
	return &Source{client: client, cfg: cfg, logger: logger, excluded: excluded}
}

// Open resets pagination for a new query variant.
func (s *Source) Open(_ context.Context, variant string) error {
	s.query = variant
	s.pageToken = ""
	s.opened = true
	s.done = false
	return nil
}

// NextPage runs one search page and returns the videos.list bodies for
// the ids it surfaced. Returns ErrExhausted once the API stops handing
// out page tokens.
func (s *Source) NextPage(ctx context.Context) ([][]byte, error) {
	if !s.opened || s.done {
		return nil, crawl.ErrExhausted
	}

	search, err := s.client.Search(ctx, s.query, s.pageToken)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, item := range search.Items {
		if item.ID.VideoID == "" {
			continue
		}
		if s.channelExcluded(item.Snippet.ChannelTitle) {
			s.logger.Debug("excluded channel skipped",
				zap.String("channel", item.Snippet.ChannelTitle),
			)
			continue
		}
		ids = append(ids, item.ID.VideoID)
	}

	var payloads [][]byte
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		body, err := s.client.Videos(ctx, ids[i:end])
		if err != nil {
			return nil, err
		}
		if body != nil {
			payloads = append(payloads, body)
		}
	}

	s.pageToken = search.NextPageToken
	if s.pageToken == "" {
		s.done = true
	}
	return payloads, nil
}

// Close is a no-op; the API client holds no per-task state.
func (s *Source) Close() {}

func (s *Source) channelExcluded(title string) bool {
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	for _, ex := range s.excluded {
		if strings.Contains(lower, ex) {
			return true
		}
	}
	return false
}
