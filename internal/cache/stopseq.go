package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/bluele/gcache"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSize = 50000
	DefaultTTL  = 24 * time.Hour

	// notFound marks a trip that never calls at the stop.
	notFound = "N/A"
)

// Loader computes the stop_sequence of tripID at stopID on a cache miss.
type Loader func(ctx context.Context, tripID, stopID string) (int, bool, error)

// Metrics receives cache outcomes. tier is "local" or "shared".
type Metrics interface {
	CacheHit(tier string)
	CacheMiss()
}

type entry struct {
	seq int
	ok  bool
}

// StopSequenceCache memoizes (trip, stop) -> stop_sequence in a process-local
// LRU, optionally backed by a shared Redis tier. Every cache failure is
// treated as a miss and answered by the loader.
type StopSequenceCache struct {
	local   gcache.Cache
	shared  *cache.Cache[string]
	load    Loader
	metrics Metrics
}

type Option func(*StopSequenceCache)

// WithRedis adds a shared tier stored in client with the given expiry.
func WithRedis(client *redis.Client, ttl time.Duration) Option {
	return func(c *StopSequenceCache) {
		if client == nil {
			return
		}
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		c.shared = cache.New[string](redisstore.NewRedis(client, store.WithExpiration(ttl)))
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *StopSequenceCache) { c.metrics = m }
}

func NewStopSequenceCache(size int, load Loader, opts ...Option) *StopSequenceCache {
	if size <= 0 {
		size = DefaultSize
	}
	c := &StopSequenceCache{
		local: gcache.New(size).LRU().Build(),
		load:  load,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func key(tripID, stopID string) string {
	return "wheresmybus:stopseq:" + tripID + ":" + stopID
}

// StopSequence returns the cached or freshly loaded stop_sequence. Loader
// errors are logged and reported as unknown; they are not cached.
func (c *StopSequenceCache) StopSequence(ctx context.Context, tripID, stopID string) (int, bool) {
	k := key(tripID, stopID)

	if v, err := c.local.Get(k); err == nil {
		if e, ok := v.(entry); ok {
			c.hit("local")
			return e.seq, e.ok
		}
	}

	if c.shared != nil {
		if raw, err := c.shared.Get(ctx, k); err == nil {
			if e, ok := decode(raw); ok {
				c.hit("shared")
				_ = c.local.Set(k, e)
				return e.seq, e.ok
			}
		}
	}

	if c.metrics != nil {
		c.metrics.CacheMiss()
	}
	if c.load == nil {
		return 0, false
	}
	seq, found, err := c.load(ctx, tripID, stopID)
	if err != nil {
		log.Debug().Err(err).Str("trip", tripID).Str("stop", stopID).Msg("stop sequence lookup failed")
		return 0, false
	}

	e := entry{seq: seq, ok: found}
	_ = c.local.Set(k, e)
	if c.shared != nil {
		if err := c.shared.Set(ctx, k, encode(e)); err != nil {
			log.Debug().Err(err).Msg("stop sequence shared cache write failed")
		}
	}
	return e.seq, e.ok
}

func (c *StopSequenceCache) hit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHit(tier)
	}
}

func encode(e entry) string {
	if !e.ok {
		return notFound
	}
	return strconv.Itoa(e.seq)
}

func decode(raw string) (entry, bool) {
	if raw == notFound {
		return entry{}, true
	}
	seq, err := strconv.Atoi(raw)
	if err != nil {
		return entry{}, false
	}
	return entry{seq: seq, ok: true}, true
}
