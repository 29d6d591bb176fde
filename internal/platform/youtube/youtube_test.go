package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hqnguyen/trendwatch/internal/crawl"
	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/quota"
)

func newTestClient(t *testing.T, handler http.Handler, creds []quota.Credential) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(quota.NewRouter(creds, nil), nil)
	client.SetBaseURL(srv.URL)
	return client, srv
}

func searchPage(token string, ids ...string) string {
	items := ""
	for i, id := range ids {
		if i > 0 {
			items += ","
		}
		channel := "Review Shop"
		if id == "excluded-vid" {
			channel = "Spam Channel VN"
		}
		items += fmt.Sprintf(`{"id":{"videoId":"%s"},"snippet":{"title":"t","channelTitle":"%s"}}`, id, channel)
	}
	next := ""
	if token != "" {
		next = fmt.Sprintf(`"nextPageToken":"%s",`, token)
	}
	return fmt.Sprintf(`{%s"items":[%s]}`, next, items)
}

func videosPage(ids ...string) string {
	items := ""
	for i, id := range ids {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"id":"%s","snippet":{"title":"video %s","channelId":"ch-1","channelTitle":"Review Shop"},"statistics":{"viewCount":"1200","likeCount":"34","commentCount":"5"}}`, id, id)
	}
	return fmt.Sprintf(`{"items":[%s]}`, items)
}

func TestSourcePagesUntilTokenRunsOut(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pageToken") {
		case "":
			fmt.Fprint(w, searchPage("page2", "vid-1", "vid-2"))
		case "page2":
			fmt.Fprint(w, searchPage("", "vid-3"))
		default:
			http.Error(w, "bad token", http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, videosPage("vid-1"))
	})

	client, _ := newTestClient(t, mux, []quota.Credential{{Key: "k1", Budget: 100}})
	src := NewSource(client, Config{}, nil)

	require.NoError(t, src.Open(context.Background(), "ao thun review"))

	page1, err := src.NextPage(context.Background())
	require.NoError(t, err)
	require.Len(t, page1, 1)

	page2, err := src.NextPage(context.Background())
	require.NoError(t, err)
	require.Len(t, page2, 1)

	_, err = src.NextPage(context.Background())
	require.ErrorIs(t, err, crawl.ErrExhausted)
}

func TestSourceFiltersExcludedChannels(t *testing.T) {
	t.Parallel()

	var videosRequests []string
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage("", "vid-1", "excluded-vid"))
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		videosRequests = append(videosRequests, r.URL.Query().Get("id"))
		fmt.Fprint(w, videosPage("vid-1"))
	})

	client, _ := newTestClient(t, mux, []quota.Credential{{Key: "k1", Budget: 100}})
	src := NewSource(client, Config{ExcludedChannels: []string{"spam channel"}}, nil)

	require.NoError(t, src.Open(context.Background(), "ao thun"))
	_, err := src.NextPage(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"vid-1"}, videosRequests)
}

func TestClientRotatesKeyOn403(t *testing.T) {
	t.Parallel()

	var usedKeys []string
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		usedKeys = append(usedKeys, key)
		if key == "dead-key" {
			http.Error(w, "quota exceeded", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, searchPage("", "vid-1"))
	})

	client, _ := newTestClient(t, mux, []quota.Credential{
		{Key: "dead-key", Budget: 100},
		{Key: "live-key", Budget: 100},
	})

	resp, err := client.Search(context.Background(), "ao thun", "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, []string{"dead-key", "live-key"}, usedKeys)
}

func TestClientAllKeysExhausted(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	})

	client, _ := newTestClient(t, mux, []quota.Credential{
		{Key: "k1", Budget: 10},
		{Key: "k2", Budget: 10},
	})

	_, err := client.Search(context.Background(), "ao thun", "")
	require.ErrorIs(t, err, quota.ErrQuotaExhausted)
}

func TestNormalizeExtractsVideos(t *testing.T) {
	t.Parallel()

	entities, rejects := Normalizer{}.Normalize([]byte(videosPage("vid-1", "vid-2")), "ao thun")

	require.Len(t, entities, 2)
	require.Empty(t, rejects)

	v := entities[0]
	require.Equal(t, entity.PlatformYouTube, v.Platform)
	require.Equal(t, "vid-1", v.Key)
	require.Equal(t, "video vid-1", v.Title)
	require.Equal(t, "ch-1", v.Attrs["channel_id"])
	require.Equal(t, float64(1200), v.Metrics[entity.MetricViews])
	require.Equal(t, float64(34), v.Metrics[entity.MetricLikes])
	require.Equal(t, float64(5), v.Metrics[entity.MetricComments])
}

func TestNormalizeMissingIDRejected(t *testing.T) {
	t.Parallel()

	entities, rejects := Normalizer{}.Normalize([]byte(`{"items":[{"snippet":{"title":"x"}}]}`), "ao thun")
	require.Empty(t, entities)
	require.Len(t, rejects, 1)
}
