// Package cache is a per-user response cache for idempotent reads with
// ETag and Last-Modified support.
//
// Entries live for a fixed TTL. When the cache is full the entry inserted
// first is evicted, regardless of how recently it was read; rewriting an
// existing key keeps its original insertion position.
package cache

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL           = 30 * time.Second
	DefaultMaxEntries    = 1000
	DefaultSweepInterval = 60 * time.Second
)

type Config struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Entry is one cached response.
type Entry struct {
	Body         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
	StoredAt     time.Time
}

type item struct {
	key   string
	entry Entry
}

type ResponseCache struct {
	cfg Config
	log *logrus.Entry
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	hits      uint64
	misses    uint64
	evictions uint64
}

func New(cfg Config, log *logrus.Entry) *ResponseCache {
	return &ResponseCache{
		cfg:     cfg.withDefaults(),
		log:     log,
		now:     time.Now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// WithClock overrides the time source. Intended for tests.
func (rc *ResponseCache) WithClock(now func() time.Time) *ResponseCache {
	rc.now = now
	return rc
}

func (rc *ResponseCache) TTL() time.Duration { return rc.cfg.TTL }

// Get returns the entry for key if it was written less than TTL ago.
// Expired entries are dropped on access.
func (rc *ResponseCache) Get(key string) (Entry, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	el, ok := rc.entries[key]
	if !ok {
		rc.misses++
		return Entry{}, false
	}
	it := el.Value.(*item)
	if rc.now().Sub(it.entry.StoredAt) >= rc.cfg.TTL {
		rc.removeLocked(el)
		rc.misses++
		return Entry{}, false
	}
	rc.hits++
	return it.entry, true
}

// Set fingerprints body and stores it under key.
func (rc *ResponseCache) Set(key string, body []byte, contentType string) Entry {
	now := rc.now()
	sum := md5.Sum(body)
	entry := Entry{
		Body:         body,
		ContentType:  contentType,
		ETag:         `"` + hex.EncodeToString(sum[:]) + `"`,
		LastModified: now.Truncate(time.Second),
		StoredAt:     now,
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if el, ok := rc.entries[key]; ok {
		el.Value.(*item).entry = entry
		return entry
	}
	for rc.order.Len() >= rc.cfg.MaxEntries {
		rc.removeLocked(rc.order.Front())
		rc.evictions++
	}
	rc.entries[key] = rc.order.PushBack(&item{key: key, entry: entry})
	return entry
}

func (rc *ResponseCache) removeLocked(el *list.Element) {
	rc.order.Remove(el)
	delete(rc.entries, el.Value.(*item).key)
}

// Cleanup removes every expired entry and returns how many were removed.
func (rc *ResponseCache) Cleanup() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.now()
	removed := 0
	for el := rc.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*item).entry.StoredAt) >= rc.cfg.TTL {
			rc.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

// Start sweeps expired entries every SweepInterval until ctx is done.
func (rc *ResponseCache) Start(ctx context.Context) {
	ticker := time.NewTicker(rc.cfg.SweepInterval)
	defer ticker.Stop()

	rc.log.WithField("interval", rc.cfg.SweepInterval).Info("response cache sweeper started")
	for {
		select {
		case <-ctx.Done():
			rc.log.Info("response cache sweeper stopped")
			return
		case <-ticker.C:
			if n := rc.Cleanup(); n > 0 {
				rc.log.WithField("removed", n).Debug("expired cache entries removed")
			}
		}
	}
}

type Stats struct {
	Size       int     `json:"size"`
	MaxEntries int     `json:"maxSize"`
	TTLSeconds float64 `json:"ttlSeconds"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
}

func (rc *ResponseCache) Stats() Stats {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return Stats{
		Size:       rc.order.Len(),
		MaxEntries: rc.cfg.MaxEntries,
		TTLSeconds: rc.cfg.TTL.Seconds(),
		Hits:       rc.hits,
		Misses:     rc.misses,
		Evictions:  rc.evictions,
	}
}
