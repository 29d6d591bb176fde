package tiktok

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hqnguyen/trendwatch/internal/entity"
)

const feedPayload = `{
  "data": [
    {
      "type": 1,
      "item": {
        "id": "728000111",
        "desc": "review áo thun local brand",
        "author": {"uniqueId": "fashionista", "nickname": "Fashion VN"},
        "stats": {"diggCount": 15300, "playCount": 250000, "commentCount": 420, "shareCount": 88}
      }
    },
    {
      "type": 4,
      "item": {"user": {"uniqueId": "someuser"}}
    },
    {
      "type": 1,
      "item": {
        "desc": "video mất id",
        "stats": {"diggCount": 1}
      }
    },
    {
      "id": "728000222",
      "desc": "inline video",
      "statsV2": {"diggCount": "5", "playCount": "100"}
    }
  ]
}`

func TestNormalizeExtractsVideos(t *testing.T) {
	t.Parallel()

	entities, rejects := Normalizer{}.Normalize([]byte(feedPayload), "ao thun")

	require.Len(t, entities, 2)
	require.Len(t, rejects, 1)
	require.Contains(t, rejects[0], "missing video id")

	v := entities[0]
	require.Equal(t, entity.PlatformTikTok, v.Platform)
	require.Equal(t, "728000111", v.Key)
	require.Equal(t, "review áo thun local brand", v.Title)
	require.Equal(t, "fashionista", v.Attrs["author_username"])
	require.Equal(t, "Fashion VN", v.Attrs["author_nickname"])
	require.Equal(t, float64(15300), v.Metrics[entity.MetricLikes])
	require.Equal(t, float64(250000), v.Metrics[entity.MetricViews])
	require.Equal(t, float64(420), v.Metrics[entity.MetricComments])
	require.Equal(t, float64(88), v.Metrics[entity.MetricShares])
}

func TestNormalizeStatsV2StringCounts(t *testing.T) {
	t.Parallel()

	entities, _ := Normalizer{}.Normalize([]byte(feedPayload), "ao thun")

	inline := entities[1]
	require.Equal(t, "728000222", inline.Key)
	require.Equal(t, float64(5), inline.Metrics[entity.MetricLikes])
	require.Equal(t, float64(100), inline.Metrics[entity.MetricViews])
}

func TestNormalizeUndecodablePayloadRejects(t *testing.T) {
	t.Parallel()

	entities, rejects := Normalizer{}.Normalize([]byte(`not json`), "ao thun")
	require.Empty(t, entities)
	require.Len(t, rejects, 1)
}

func TestNormalizeMissingDataYieldsNothing(t *testing.T) {
	t.Parallel()

	entities, rejects := Normalizer{}.Normalize([]byte(`{"status_code":0}`), "ao thun")
	require.Empty(t, entities)
	require.Empty(t, rejects)
}
