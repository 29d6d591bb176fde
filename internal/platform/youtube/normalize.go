package youtube

import (
	"encoding/json"
	"fmt"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/platform/jsonwalk"
)

// Normalizer parses videos.list responses into video entities.
type Normalizer struct{}

// Normalize extracts one entity per item. The statistics block quotes
// counts as strings; that is handled downstream.
func (Normalizer) Normalize(payload []byte, keyword string) ([]entity.Entity, []string) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, []string{fmt.Sprintf("undecodable payload: %v", err)}
	}

	items := jsonwalk.DigSlice(doc, "items")
	if items == nil {
		return nil, nil
	}

	var (
		entities []entity.Entity
		rejects  []string
	)
	for i, item := range items {
		id := jsonwalk.DigString(item, "id")
		if id == "" {
			rejects = append(rejects, fmt.Sprintf("item %d: missing video id", i))
			continue
		}

		ent := entity.Entity{
			Platform: entity.PlatformYouTube,
			Key:      id,
			Title:    jsonwalk.DigString(item, "snippet", "title"),
			Keyword:  keyword,
			Attrs: map[string]string{
				"channel_id":    jsonwalk.DigString(item, "snippet", "channelId"),
				"channel_title": jsonwalk.DigString(item, "snippet", "channelTitle"),
				"published_at":  jsonwalk.DigString(item, "snippet", "publishedAt"),
				"duration":      jsonwalk.DigString(item, "contentDetails", "duration"),
			},
			Metrics: entity.Metrics{
				entity.MetricViews:    jsonwalk.DigNumber(item, "statistics", "viewCount"),
				entity.MetricLikes:    jsonwalk.DigNumber(item, "statistics", "likeCount"),
				entity.MetricComments: jsonwalk.DigNumber(item, "statistics", "commentCount"),
			},
		}
		entities = append(entities, ent)
	}
	return entities, rejects
}
