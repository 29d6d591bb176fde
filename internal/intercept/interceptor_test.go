package intercept

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitBatchReturnsBufferedPayloads(t *testing.T) {
	t.Parallel()

	c := newCapture("shopee", func(url string) bool {
		return strings.Contains(url, "/api/v4/search/search_items")
	}, nil)

	c.offer(Payload{URL: "https://shopee.vn/api/v4/search/search_items?page=0", Body: []byte(`{"items":[]}`)})
	c.offer(Payload{URL: "https://shopee.vn/api/v4/search/search_items?page=1", Body: []byte(`{"items":[]}`)})

	batch := c.WaitBatch(context.Background(), 10*time.Millisecond)
	require.Len(t, batch, 2)
	require.Contains(t, batch[0].URL, "page=0")
}

func TestWaitBatchEmptyWindowYieldsNil(t *testing.T) {
	t.Parallel()

	c := newCapture("tiktok", func(string) bool { return true }, nil)

	batch := c.WaitBatch(context.Background(), 10*time.Millisecond)
	require.Nil(t, batch)
}

func TestWaitBatchCollectsLateArrivals(t *testing.T) {
	t.Parallel()

	c := newCapture("tiktok", func(string) bool { return true }, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.offer(Payload{URL: "https://www.tiktok.com/api/search/general/full/", Body: []byte(`{}`)})
	}()

	batch := c.WaitBatch(context.Background(), 200*time.Millisecond)
	require.Len(t, batch, 1)
}

func TestWaitBatchStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	c := newCapture("facebook", func(string) bool { return true }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	batch := c.WaitBatch(ctx, 5*time.Second)
	require.Nil(t, batch)
	require.Less(t, time.Since(start), time.Second)
}

func TestOfferDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	c := newCapture("shopee", func(string) bool { return true }, nil)
	for i := 0; i < payloadBuffer+5; i++ {
		c.offer(Payload{URL: "https://shopee.vn/api/v4/search/search_items", Body: []byte(`{}`)})
	}

	require.Len(t, c.Drain(), payloadBuffer)
}
