package newscache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotfleet/spotfleet/internal/apicounters"
)

func TestGet_ServesFromCacheWithinTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"data":[{"title":"t1","text":"body","source_name":"x","date":""}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	counters, err := apicounters.New(apicounters.Config{DataDir: dir})
	require.NoError(t, err)

	cache, err := New(Config{DataDir: dir, APIKey: "key", BaseURL: srv.URL, TTL: time.Hour, DailyBudget: 100, Counters: counters})
	require.NoError(t, err)

	arts1, err := cache.Get(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Len(t, arts1, 1)

	arts2, err := cache.Get(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Len(t, arts2, 1)

	assert.EqualValues(t, 1, hits, "second call within TTL must not hit the provider again")
}

func TestGet_FallsBackToRSSWhenBudgetExhausted(t *testing.T) {
	var rssHits int32
	rss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&rssHits, 1)
		w.Write([]byte(`<rss><channel><item><title>fallback</title><pubDate></pubDate></item></channel></rss>`))
	}))
	defer rss.Close()

	dir := t.TempDir()
	counters, err := apicounters.New(apicounters.Config{DataDir: dir})
	require.NoError(t, err)

	cache, err := New(Config{
		DataDir: dir, APIKey: "key", BaseURL: "http://unused.invalid",
		TTL: time.Hour, DailyBudget: 0, Counters: counters, RSSFallback: rss.URL,
	})
	require.NoError(t, err)

	arts, err := cache.Get(context.Background(), "ETH")
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "fallback", arts[0].Title)
	assert.EqualValues(t, 1, rssHits)
}

func TestGet_GlobalKeyNormalization(t *testing.T) {
	assert.Equal(t, GlobalKey, normalizeKey(""))
	assert.Equal(t, "BTC", normalizeKey("BTC"))
}
