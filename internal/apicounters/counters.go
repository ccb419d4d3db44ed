// Package apicounters tracks the daily call budgets for the shared
// news cache and the AI analyzer, persisted so a restart never
// re-spends a budget already consumed earlier the same UTC day.
package apicounters

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/spotfleet/spotfleet/internal/store"
)

const file = "api_counters.json"

type doc struct {
	DateUTC        string `json:"date_utc"`
	CryptonewsCalls int   `json:"cryptonews_calls"`
	OpenAICalls     int   `json:"openai_calls"`
}

// Counters is the mutex-protected, disk-backed daily counter set
// described in spec §3/§5. An optional Redis mirror lets several
// dashboard processes share visibility into the same budget; the JSON
// file remains the source of truth for a single process.
type Counters struct {
	mu   sync.Mutex
	path string
	doc  doc

	redis    *redis.Client
	redisKey string
}

// Config configures the optional Redis mirror.
type Config struct {
	DataDir  string
	Redis    *redis.Client // nil disables the mirror
	RedisKey string        // prefix for mirrored keys, e.g. "spotfleet:counters"
}

// New loads (or initializes) the counters file under cfg.DataDir.
func New(cfg Config) (*Counters, error) {
	c := &Counters{
		path:     filepath.Join(cfg.DataDir, file),
		redis:    cfg.Redis,
		redisKey: cfg.RedisKey,
	}
	if _, err := store.LoadJSON(c.path, &c.doc); err != nil {
		return nil, err
	}
	c.rolloverLocked()
	return c, nil
}

func today() string { return time.Now().UTC().Format("2006-01-02") }

// rolloverLocked resets counters when the UTC date has changed. Caller
// must hold mu.
func (c *Counters) rolloverLocked() {
	d := today()
	if c.doc.DateUTC != d {
		c.doc = doc{DateUTC: d}
	}
}

// AllowNews reports whether a cryptonews call may be made without
// breaching budget, and if so increments and persists the counter.
func (c *Counters) AllowNews(budget int) bool {
	return c.tryIncrement(&c.doc.CryptonewsCalls, budget, "news")
}

// AllowOpenAI reports whether an AI analyzer call may be made without
// breaching budget, and if so increments and persists the counter.
func (c *Counters) AllowOpenAI(budget int) bool {
	return c.tryIncrement(&c.doc.OpenAICalls, budget, "openai")
}

func (c *Counters) tryIncrement(counter *int, budget int, label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rolloverLocked()
	if *counter >= budget {
		return false
	}
	*counter++
	_ = store.SaveAtomic(c.path, c.doc) // best-effort; in-memory counter still advanced
	c.mirror(label, *counter)
	return true
}

func (c *Counters) mirror(label string, value int) {
	if c.redis == nil {
		return
	}
	key := c.redisKey + ":" + label + ":" + c.doc.DateUTC
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.redis.Set(ctx, key, value, 25*time.Hour)
}

// Snapshot returns the current day's counts for diagnostics.
func (c *Counters) Snapshot() (dateUTC string, news, openai int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverLocked()
	return c.doc.DateUTC, c.doc.CryptonewsCalls, c.doc.OpenAICalls
}
