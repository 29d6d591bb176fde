package tiktok

import (
	"encoding/json"
	"fmt"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/platform/jsonwalk"
)

// Normalizer parses general search feed payloads into video entities.
type Normalizer struct{}

// Normalize extracts video records from a feed payload. Entries in the
// data list that are not videos (users, hashtags) are skipped silently;
// video-shaped entries without an id are rejections.
func (Normalizer) Normalize(payload []byte, keyword string) ([]entity.Entity, []string) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, []string{fmt.Sprintf("undecodable payload: %v", err)}
	}

	data := jsonwalk.DigSlice(doc, "data")
	if data == nil {
		return nil, nil
	}

	var (
		entities []entity.Entity
		rejects  []string
	)
	for i, raw := range data {
		// Feed entries wrap the video under "item"; some responses
		// inline it at the top level.
		video := jsonwalk.Dig(raw, "item")
		if video == nil {
			video = raw
		}
		if _, ok := video.(map[string]any); !ok {
			continue
		}

		id := jsonwalk.DigString(video, "id")
		if id == "" {
			id = jsonwalk.DigString(video, "video", "id")
		}
		if id == "" {
			// Non-video feed entries carry no item id at all.
			if jsonwalk.Dig(video, "desc") == nil && jsonwalk.Dig(video, "stats") == nil {
				continue
			}
			rejects = append(rejects, fmt.Sprintf("entry %d: missing video id", i))
			continue
		}

		stats := jsonwalk.Dig(video, "stats")
		if stats == nil {
			stats = jsonwalk.Dig(video, "statsV2")
		}

		ent := entity.Entity{
			Platform: entity.PlatformTikTok,
			Key:      id,
			Title:    jsonwalk.DigString(video, "desc"),
			Keyword:  keyword,
			Attrs: map[string]string{
				"author_username": jsonwalk.DigString(video, "author", "uniqueId"),
				"author_nickname": jsonwalk.DigString(video, "author", "nickname"),
			},
			Metrics: entity.Metrics{
				entity.MetricLikes:    jsonwalk.DigNumber(stats, "diggCount"),
				entity.MetricViews:    jsonwalk.DigNumber(stats, "playCount"),
				entity.MetricComments: jsonwalk.DigNumber(stats, "commentCount"),
				entity.MetricShares:   jsonwalk.DigNumber(stats, "shareCount"),
			},
		}
		entities = append(entities, ent)
	}
	return entities, rejects
}
