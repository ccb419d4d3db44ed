// Package newscache is the single shared fetcher for crypto news
// headlines. Every bot reads through it; only one of them ever pays
// for a given ticker's API call within the cache's TTL, and the
// process-wide daily call budget is shared across the whole fleet.
package newscache

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/spotfleet/spotfleet/internal/apicounters"
	"github.com/spotfleet/spotfleet/internal/models"
	"github.com/spotfleet/spotfleet/internal/store"
)

// GlobalKey is the cache key used for market-wide (not ticker-scoped)
// news queries.
const GlobalKey = "__global__"

const cacheFile = "news_cache.json"

// Config configures the Cache.
type Config struct {
	DataDir      string
	APIKey       string // cryptonews provider key; empty disables the paid source
	BaseURL      string // cryptonews provider base URL
	TTL          time.Duration
	DailyBudget  int
	Counters     *apicounters.Counters
	Logger       *logrus.Logger
	HTTPClient   *http.Client
	RSSFallback  string // RSS feed polled when no paid source is configured, or the budget is exhausted and nothing is cached
}

type cacheEntry struct {
	Articles  []models.Article `json:"articles"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Cache is the RWMutex-protected, TTL'd, singleflight-coalesced news
// fetcher described by the shared-resource design.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	group    singleflight.Group
	cfg      Config
	client   *http.Client
	logger   *logrus.Logger
	persistPath string
}

// New loads any persisted cache entries and returns a ready Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.TTL == 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Cache{
		entries:     make(map[string]cacheEntry),
		cfg:         cfg,
		client:      cfg.HTTPClient,
		logger:      cfg.Logger,
		persistPath: cfg.DataDir + "/" + cacheFile,
	}

	var persisted map[string]cacheEntry
	if ok, err := store.LoadJSON(c.persistPath, &persisted); err != nil {
		return nil, fmt.Errorf("loading news cache: %w", err)
	} else if ok {
		c.entries = persisted
	}
	return c, nil
}

// Get returns headlines for ticker (or GlobalKey for market-wide
// news), serving from cache when fresh, coalescing concurrent misses
// via singleflight. Once the daily paid-call budget is exhausted, a
// stale cache entry is served if one exists, and the free RSS feed is
// used only when nothing is cached. A stale entry is also served
// rather than returning an error when a refresh fails.
func (c *Cache) Get(ctx context.Context, ticker string) ([]models.Article, error) {
	key := normalizeKey(ticker)

	if articles, fresh := c.lookup(key); fresh {
		return articles, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.refresh(ctx, key)
	})
	if err != nil {
		if stale, ok := c.lookupAny(key); ok {
			c.logger.WithError(err).WithField("ticker", key).Warn("news refresh failed, serving stale cache")
			return stale, nil
		}
		return nil, err
	}
	return result.([]models.Article), nil
}

func normalizeKey(ticker string) string {
	if ticker == "" {
		return GlobalKey
	}
	return strings.ToUpper(ticker)
}

func (c *Cache) lookup(key string) ([]models.Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Articles, time.Since(entry.FetchedAt) < c.cfg.TTL
}

func (c *Cache) lookupAny(key string) ([]models.Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry.Articles, ok
}

// staleEntry returns a cached entry regardless of TTL, along with its
// age, for serving when the daily call budget is exhausted.
func (c *Cache) staleEntry(key string) ([]models.Article, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, 0, false
	}
	return entry.Articles, time.Since(entry.FetchedAt), true
}

func (c *Cache) refresh(ctx context.Context, key string) ([]models.Article, error) {
	paidConfigured := c.cfg.Counters != nil && c.cfg.APIKey != ""
	budgetExhausted := paidConfigured && !c.cfg.Counters.AllowNews(c.cfg.DailyBudget)

	var (
		articles []models.Article
		err      error
	)

	switch {
	case paidConfigured && !budgetExhausted:
		articles, err = c.fetchCryptonews(ctx, key)
	case budgetExhausted:
		c.logger.WithField("ticker", key).Warn("news_budget_exhausted")
		if stale, age, ok := c.staleEntry(key); ok {
			c.logger.WithField("ticker", key).Infof("using cached news (age %dh)", int(age.Hours()))
			return stale, nil
		}
		articles, err = c.fetchRSSFallback(ctx, key)
	default:
		articles, err = c.fetchRSSFallback(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{Articles: articles, FetchedAt: time.Now().UTC()}
	snapshot := make(map[string]cacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if err := store.SaveAtomic(c.persistPath, snapshot); err != nil {
		c.logger.WithError(err).Warn("persisting news cache failed")
	}
	return articles, nil
}

func (c *Cache) fetchCryptonews(ctx context.Context, ticker string) ([]models.Article, error) {
	url := c.cfg.BaseURL + "/category?section=general&items=10&token=" + c.cfg.APIKey
	if ticker != GlobalKey {
		url = c.cfg.BaseURL + "/ticker?tickers=" + ticker + "&items=10&token=" + c.cfg.APIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building cryptonews request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching cryptonews: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptonews returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data []struct {
			Title    string `json:"title"`
			Text     string `json:"text"`
			News_URL string `json:"news_url"`
			Source   string `json:"source_name"`
			Date     string `json:"date"`
		} `json:"data"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading cryptonews response: %w", err)
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing cryptonews response: %w", err)
	}

	out := make([]models.Article, 0, len(payload.Data))
	for _, item := range payload.Data {
		published, _ := time.Parse(time.RFC1123Z, item.Date)
		out = append(out, models.Article{
			Ticker:      ticker,
			Title:       item.Title,
			Summary:     item.Text,
			Source:      item.Source,
			PublishedAt: published,
		})
	}
	return out, nil
}

type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			PubDate string `xml:"pubDate"`
			Source  string `xml:"source"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (c *Cache) fetchRSSFallback(ctx context.Context, ticker string) ([]models.Article, error) {
	if c.cfg.RSSFallback == "" {
		return nil, fmt.Errorf("news budget exhausted and no RSS fallback configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RSSFallback, nil)
	if err != nil {
		return nil, fmt.Errorf("building RSS request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching RSS fallback: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading RSS fallback: %w", err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing RSS fallback: %w", err)
	}

	out := make([]models.Article, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		published, _ := time.Parse(time.RFC1123Z, item.PubDate)
		out = append(out, models.Article{
			Ticker:      ticker,
			Title:       item.Title,
			Source:      "coindesk-rss",
			PublishedAt: published,
		})
	}
	return out, nil
}
