// Package pricesync keeps a short-lived quote cache in front of the broker API.
package pricesync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// DefaultTTL 시세 캐시 기본 유효시간
const DefaultTTL = 3 * time.Second

// Cache 종목별 현재가 캐시 (cache-aside)
//
// 같은 종목을 동시에 조회하면 API 호출은 한 번만 나간다.
type Cache struct {
	source trading.QuoteSource
	ttl    time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[string]cached

	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type cached struct {
	quote    trading.Quote
	storedAt time.Time
}

// CacheStats 캐시 통계
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over source. ttl <= 0 uses DefaultTTL.
func New(source trading.QuoteSource, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		quotes: make(map[string]cached),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote returns a cached quote younger than the TTL, otherwise fetches one.
// Callers get a copy and may modify it.
func (c *Cache) Quote(ctx context.Context, symbol string) (*trading.Quote, error) {
	if q, ok := c.get(symbol); ok {
		c.hits.Add(1)
		return q, nil
	}
	c.misses.Add(1)

	v, err, shared := c.group.Do(symbol, func() (interface{}, error) {
		q, err := c.source.Quote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		c.set(symbol, q)
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("symbol", symbol).Msg("quote request coalesced")
	}

	cp := *v.(*trading.Quote)
	return &cp, nil
}

func (c *Cache) get(symbol string) (*trading.Quote, bool) {
	c.mu.RLock()
	e, ok := c.quotes[symbol]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	q := e.quote
	return &q, true
}

func (c *Cache) set(symbol string, q *trading.Quote) {
	c.mu.Lock()
	c.quotes[symbol] = cached{quote: *q, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops the cached quote of symbol (체결 직후)
func (c *Cache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.quotes, symbol)
	c.mu.Unlock()
}

// Stats 캐시 통계 조회
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.quotes)
	c.mu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return CacheStats{Size: size, Hits: hits, Misses: misses, HitRate: rate}
}
