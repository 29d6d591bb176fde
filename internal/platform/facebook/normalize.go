package facebook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/platform/jsonwalk"
)

// Normalizer parses GraphQL search response bodies into post entities.
type Normalizer struct{}

// Normalize walks a search payload's result edges. Deferred GraphQL
// responses stream as newline-delimited JSON chunks behind the
// anti-hijack prefix; every decodable chunk is walked and only the
// undecodable ones are rejected. Posts with neither text nor an id are
// rejected.
func (Normalizer) Normalize(payload []byte, keyword string) ([]entity.Entity, []string) {
	docs, rejects := decodeBody(payload)

	var entities []entity.Entity
	for _, doc := range docs {
		ents, rej := collectEdges(doc, keyword)
		entities = append(entities, ents...)
		rejects = append(rejects, rej...)
	}
	return entities, rejects
}

// decodeBody parses a capture body into its JSON documents. A plain
// response is one document; a deferred response carries one chunk per
// line, each possibly framed by the anti-hijack prefix or other
// transport noise before the JSON opener.
func decodeBody(payload []byte) ([]any, []string) {
	body := jsonwalk.StripAntiHijack(payload)

	var doc any
	if err := json.Unmarshal(body, &doc); err == nil {
		return []any{doc}, nil
	}

	var (
		docs    []any
		rejects []string
	)
	for i, line := range bytes.Split(body, []byte("\n")) {
		chunk := chunkJSON(line)
		if chunk == nil {
			continue
		}
		var doc any
		if err := json.Unmarshal(chunk, &doc); err != nil {
			rejects = append(rejects, fmt.Sprintf("chunk %d undecodable: %v", i, err))
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 && len(rejects) == 0 {
		rejects = append(rejects, "undecodable payload")
	}
	return docs, rejects
}

// chunkJSON trims one streamed line down to its JSON document,
// dropping framing before the first opener. Lines without one carry no
// data and are skipped.
func chunkJSON(line []byte) []byte {
	line = jsonwalk.StripAntiHijack(bytes.TrimSpace(line))
	i := bytes.IndexAny(line, "{[")
	if i < 0 {
		return nil
	}
	return line[i:]
}

func collectEdges(doc any, keyword string) ([]entity.Entity, []string) {
	edges := jsonwalk.DigSlice(doc, "data", "serpResponse", "results", "edges")
	if edges == nil {
		return nil, nil
	}

	var (
		entities []entity.Entity
		rejects  []string
	)
	for i, edge := range edges {
		story := jsonwalk.Dig(edge, "node", "rendering_strategy", "view_model", "click_model", "story")
		if story == nil {
			continue
		}

		id := jsonwalk.DigString(story, "id")
		if id == "" {
			rejects = append(rejects, fmt.Sprintf("edge %d: story without id", i))
			continue
		}

		text := jsonwalk.DigString(story,
			"comet_sections", "content", "story",
			"comet_sections", "message", "story", "message", "text")
		if text == "" {
			text = jsonwalk.DigString(story, "message", "text")
		}
		attachments := jsonwalk.DigSlice(story, "attachments")
		if text == "" && len(attachments) == 0 {
			rejects = append(rejects, fmt.Sprintf("edge %d: post %s has no content", i, id))
			continue
		}

		authorID, authorName := extractAuthor(story)

		ent := entity.Entity{
			Platform: entity.PlatformFacebook,
			Key:      id,
			Title:    text,
			Keyword:  keyword,
			Attrs: map[string]string{
				"author_id":    authorID,
				"author_name":  authorName,
				"publish_time": fmt.Sprintf("%d", int64(extractPublishTime(story))),
			},
			Metrics: entity.Metrics{
				entity.MetricComments:  extractCommentCount(story),
				entity.MetricShares:    extractShareCount(story),
				entity.MetricViews:     jsonwalk.DigNumber(story, "attachments", 0, "styles", "attachment", "media", "video_view_count"),
				entity.MetricReactions: extractReactionTotal(story),
			},
		}
		entities = append(entities, ent)
	}
	return entities, rejects
}

// extractAuthor tries the three places the author hides depending on
// the story rendering variant.
func extractAuthor(story any) (string, string) {
	if actor := jsonwalk.Dig(story, "comet_sections", "content", "story", "actors", 0); actor != nil {
		return jsonwalk.DigString(actor, "id"), jsonwalk.DigString(actor, "name")
	}
	if actor := jsonwalk.Dig(story, ufiPath("feedback_context", "feedback_target_with_context", "ownership", "owner")...); actor != nil {
		return jsonwalk.DigString(actor, "id"), jsonwalk.DigString(actor, "name")
	}
	if actor := jsonwalk.Dig(story,
		"comet_sections", "context_layout", "story",
		"comet_sections", "actor_photo", "story", "actors", 0); actor != nil {
		return jsonwalk.DigString(actor, "id"), jsonwalk.DigString(actor, "name")
	}
	return "", ""
}

func extractPublishTime(story any) float64 {
	if t := jsonwalk.DigNumber(story, "comet_sections", "timestamp", "story", "creation_time"); t != 0 {
		return t
	}
	return jsonwalk.DigNumber(story,
		"comet_sections", "context_layout", "story",
		"comet_sections", "metadata", 1, "story", "creation_time")
}

// ufiPath prefixes the deeply nested feedback container path Facebook
// wraps all engagement counters in.
func ufiPath(rest ...any) []any {
	base := []any{"comet_sections", "feedback", "story", "story_ufi_container", "story"}
	return append(base, rest...)
}

func extractCommentCount(story any) float64 {
	return jsonwalk.DigNumber(story, ufiPath(
		"feedback_context", "feedback_target_with_context",
		"comet_ufi_summary_and_actions_renderer", "feedback",
		"comments_count_summary_renderer", "feedback",
		"comment_rendering_instance", "comments", "total_count")...)
}

func extractShareCount(story any) float64 {
	return jsonwalk.DigNumber(story, ufiPath(
		"feedback_context", "feedback_target_with_context",
		"comet_ufi_summary_and_actions_renderer", "feedback",
		"share_count", "count")...)
}

func extractReactionTotal(story any) float64 {
	raw := jsonwalk.Dig(story, ufiPath(
		"feedback_context", "feedback_target_with_context",
		"comet_ufi_summary_and_actions_renderer", "feedback",
		"i18n_reaction_count")...)
	return float64(jsonwalk.ParseCount(raw))
}
