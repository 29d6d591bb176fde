package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/store"
)

func TestGetMasterMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := NewWithDB(mock)

	mock.ExpectQuery("SELECT platform, natural_key").
		WithArgs(entity.PlatformShopee, "itemid:shopid").
		WillReturnRows(pgxmock.NewRows([]string{
			"platform", "natural_key", "title", "keyword", "attrs", "metrics", "first_seen", "last_seen",
		}))

	_, found, err := backend.GetMaster(context.Background(), entity.PlatformShopee, "itemid:shopid")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMasterDecodesDocuments(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := NewWithDB(mock)

	first := time.Unix(1700000000, 0).UTC()
	last := first.Add(time.Hour)

	mock.ExpectQuery("SELECT platform, natural_key").
		WithArgs(entity.PlatformShopee, "123:456").
		WillReturnRows(pgxmock.NewRows([]string{
			"platform", "natural_key", "title", "keyword", "attrs", "metrics", "first_seen", "last_seen",
		}).AddRow(
			entity.PlatformShopee, "123:456", "ao thun", "ao thun",
			[]byte(`{"shop_id":"456"}`), []byte(`{"price":90000}`),
			first, last,
		))

	rec, found, err := backend.GetMaster(context.Background(), entity.PlatformShopee, "123:456")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ao thun", rec.Title)
	require.Equal(t, "456", rec.Attrs["shop_id"])
	require.Equal(t, float64(90000), rec.Metrics[entity.MetricPrice])
	require.Equal(t, first, rec.FirstSeen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMasterWritesEncodedRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := NewWithDB(mock)

	now := time.Unix(1700000000, 0).UTC()
	rec := store.MasterRecord{
		Platform:  entity.PlatformYouTube,
		Key:       "vid-1",
		Title:     "review",
		Keyword:   "ao thun",
		Attrs:     map[string]string{"channel_id": "ch-1"},
		Metrics:   entity.Metrics{entity.MetricViews: 1200},
		FirstSeen: now,
		LastSeen:  now,
	}

	mock.ExpectExec("INSERT INTO master_records").
		WithArgs(
			rec.Platform, rec.Key, rec.Title, rec.Keyword,
			[]byte(`{"channel_id":"ch-1"}`),
			[]byte(`{"views":1200}`),
			rec.FirstSeen, rec.LastSeen,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, backend.InsertMaster(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMasterWritesLatestState(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := NewWithDB(mock)

	now := time.Unix(1700003600, 0).UTC()
	rec := store.MasterRecord{
		Platform: entity.PlatformTikTok,
		Key:      "vid-9",
		Title:    "clip",
		Keyword:  "ao thun",
		Attrs:    map[string]string{"author": "someone"},
		Metrics:  entity.Metrics{entity.MetricLikes: 42},
		LastSeen: now,
	}

	mock.ExpectExec("UPDATE master_records").
		WithArgs(
			rec.Platform, rec.Key, rec.Title, rec.Keyword,
			[]byte(`{"author":"someone"}`),
			[]byte(`{"likes":42}`),
			rec.LastSeen,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, backend.UpdateMaster(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSnapshotInsertsObservation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := NewWithDB(mock)

	at := time.Unix(1700000000, 0).UTC()
	snap := store.Snapshot{
		Platform:   entity.PlatformShopee,
		Key:        "123:456",
		ObservedAt: at,
		Metrics:    entity.Metrics{entity.MetricPrice: 90000},
	}

	mock.ExpectExec("INSERT INTO metric_snapshots").
		WithArgs(snap.Platform, snap.Key, snap.ObservedAt, []byte(`{"price":90000}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, backend.AppendSnapshot(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSnapshotsReturnsHistoryInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := NewWithDB(mock)

	t1 := time.Unix(1700000000, 0).UTC()
	t2 := t1.Add(24 * time.Hour)

	mock.ExpectQuery("SELECT platform, natural_key, observed_at").
		WithArgs(entity.PlatformShopee, "123:456").
		WillReturnRows(pgxmock.NewRows([]string{"platform", "natural_key", "observed_at", "metrics"}).
			AddRow(entity.PlatformShopee, "123:456", t1, []byte(`{"price":100000}`)).
			AddRow(entity.PlatformShopee, "123:456", t2, []byte(`{"price":90000}`)))

	snaps, err := backend.ListSnapshots(context.Background(), entity.PlatformShopee, "123:456")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, float64(100000), snaps[0].Metrics[entity.MetricPrice])
	require.Equal(t, float64(90000), snaps[1].Metrics[entity.MetricPrice])
	require.True(t, snaps[0].ObservedAt.Before(snaps[1].ObservedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrendingScansMasters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	backend := NewWithDB(mock)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT platform, natural_key").
		WithArgs(entity.PlatformYouTube, entity.MetricViews, 2).
		WillReturnRows(pgxmock.NewRows([]string{
			"platform", "natural_key", "title", "keyword", "attrs", "metrics", "first_seen", "last_seen",
		}).AddRow(
			entity.PlatformYouTube, "vid-1", "big", "ao thun",
			[]byte(`{}`), []byte(`{"views":5000}`), now, now,
		).AddRow(
			entity.PlatformYouTube, "vid-2", "small", "ao thun",
			[]byte(`{}`), []byte(`{"views":100}`), now, now,
		))

	recs, err := backend.Trending(context.Background(), entity.PlatformYouTube, entity.MetricViews, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "vid-1", recs[0].Key)
	require.NoError(t, mock.ExpectationsWereMet())
}
