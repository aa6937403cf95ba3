// Package statscache memoizes TF-IDF results keyed by document id and corpus
// version.
//
// A corpus mutation bumps the version, so entries for older versions are
// never hit again and simply age out: the in-process tier is a bounded LRU
// and the optional Redis tier uses a TTL. Redis failures are absorbed and
// reads fall back to computing the result.
//
// Corpus versions restart from zero with every process, so Redis keys also
// carry a per-process epoch. An entry written by an earlier process can never
// match, whether or not the start-up purge succeeded.
package statscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tfidf"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/resilience"
)

const keyPrefix = "tfidf:"

// Backend is the remote cache tier. *pkgredis.Client satisfies it.
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Options tune the cache. Observe, if set, is called for every tier lookup
// with tier "l1" or "l2" and result "hit", "miss" or "error". Epoch
// namespaces the Redis keys; New picks a random one when it is empty.
type Options struct {
	MaxEntries       int
	Epoch            string
	TTL              time.Duration
	BackendTimeout   time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
	Observe          func(tier, result string)
	OnBreakerChange  func(name string, from, to resilience.State)
}

// OptionsFromConfig builds Options from the cache and redis sections.
func OptionsFromConfig(cache config.CacheConfig, redis config.RedisConfig) Options {
	return Options{
		MaxEntries:       cache.MaxEntries,
		TTL:              redis.CacheTTL,
		BackendTimeout:   cache.BackendTimeout,
		FailureThreshold: cache.FailureThreshold,
		ResetTimeout:     cache.ResetTimeout,
	}
}

type entryKey struct {
	documentID string
	version    uint64
}

type Cache struct {
	local   *lru.Cache[entryKey, *tfidf.Result]
	remote  Backend
	breaker *resilience.CircuitBreaker
	opts    Options
	group   singleflight.Group
	logger  *slog.Logger
	epoch   string
	hits    atomic.Int64
	misses  atomic.Int64
}

// New builds a cache. remote may be nil, in which case only the in-process
// tier is used.
func New(opts Options, remote Backend) (*Cache, error) {
	if opts.MaxEntries < 1 {
		return nil, apperrors.Validation("cache max entries must be >= 1, got %d", opts.MaxEntries)
	}
	local, err := lru.New[entryKey, *tfidf.Result](opts.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	epoch := opts.Epoch
	if epoch == "" {
		epoch = uuid.NewString()
	}
	c := &Cache{
		local:  local,
		remote: remote,
		opts:   opts,
		epoch:  epoch,
		logger: slog.Default().With("component", "stats-cache"),
	}
	if remote != nil {
		c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: opts.FailureThreshold,
			ResetTimeout:     opts.ResetTimeout,
			OnStateChange:    opts.OnBreakerChange,
		})
	}
	return c, nil
}

// GetOrCompute returns the result for (documentID, version), computing it on
// a miss. Concurrent misses for the same key share one computation. The
// computed result is stored under its own version, which may be newer than
// the requested one if the corpus changed in between. The boolean reports a
// cache hit.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	documentID string,
	version uint64,
	compute func() (*tfidf.Result, error),
) (*tfidf.Result, bool, error) {
	key := entryKey{documentID, version}
	if res, ok := c.lookup(ctx, key); ok {
		return res, true, nil
	}

	val, err, _ := c.group.Do(flightKey(key), func() (any, error) {
		if res, ok := c.local.Get(key); ok {
			return res, nil
		}
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(ctx, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*tfidf.Result), false, nil
}

func (c *Cache) lookup(ctx context.Context, key entryKey) (*tfidf.Result, bool) {
	if res, ok := c.local.Get(key); ok {
		c.observe("l1", "hit")
		c.hits.Add(1)
		return res, true
	}
	c.observe("l1", "miss")

	if c.remote == nil {
		c.misses.Add(1)
		return nil, false
	}
	res, err := c.remoteGet(ctx, key)
	switch {
	case err != nil:
		c.observe("l2", "error")
		c.logger.Warn("cache backend unavailable, computing directly",
			"document_id", key.documentID,
			"error", err,
		)
	case res == nil:
		c.observe("l2", "miss")
	default:
		c.observe("l2", "hit")
		c.hits.Add(1)
		c.local.Add(key, res)
		return res, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *Cache) store(ctx context.Context, res *tfidf.Result) {
	key := entryKey{res.DocumentID, res.Version}
	c.local.Add(key, res)
	if c.remote == nil {
		return
	}
	if err := c.remoteSet(ctx, key, res); err != nil {
		c.logger.Warn("cache backend write failed",
			"document_id", key.documentID,
			"error", err,
		)
	}
}

// remoteGet returns (nil, nil) on a plain miss. Any other failure, including
// an open breaker, is wrapped in ErrCacheUnavailable.
func (c *Cache) remoteGet(ctx context.Context, key entryKey) (*tfidf.Result, error) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = resilience.Call(ctx, c.opts.BackendTimeout, "redis get", func(ctx context.Context) ([]byte, error) {
			return c.remote.GetBytes(ctx, c.redisKey(key))
		})
		if pkgredis.IsNilError(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCacheUnavailable, err)
	}
	if data == nil {
		return nil, nil
	}
	var res tfidf.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", apperrors.ErrCacheUnavailable, c.redisKey(key), err)
	}
	if res.DocumentID != key.documentID || res.Version != key.version {
		return nil, fmt.Errorf("%w: entry %s holds %s@v%d", apperrors.ErrCacheUnavailable,
			c.redisKey(key), res.DocumentID, res.Version)
	}
	return &res, nil
}

func (c *Cache) remoteSet(ctx context.Context, key entryKey, res *tfidf.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	err = c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.opts.BackendTimeout, "redis set", func(ctx context.Context) error {
			return c.remote.Set(ctx, c.redisKey(key), data, c.opts.TTL)
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrCacheUnavailable, err)
	}
	return nil
}

// Purge drops every entry from both tiers, including remote entries left by
// earlier processes. Those can no longer be hit; purging only reclaims their
// memory before the TTL does.
func (c *Cache) Purge(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	deleted, err := c.remote.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("purging remote cache: %w", err)
	}
	c.logger.Info("cache purged", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts across both tiers.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len is the number of in-process entries.
func (c *Cache) Len() int {
	return c.local.Len()
}

// BreakerState reports the state of the remote tier's breaker.
func (c *Cache) BreakerState() (resilience.State, bool) {
	if c.breaker == nil {
		return resilience.StateClosed, false
	}
	return c.breaker.GetState(), true
}

func (c *Cache) observe(tier, result string) {
	if c.opts.Observe != nil {
		c.opts.Observe(tier, result)
	}
}

// Epoch is the namespace of this cache's Redis keys.
func (c *Cache) Epoch() string {
	return c.epoch
}

func (c *Cache) redisKey(k entryKey) string {
	return fmt.Sprintf("%s%s:%s:v%d", keyPrefix, c.epoch, k.documentID, k.version)
}

func flightKey(k entryKey) string {
	return fmt.Sprintf("%s@%d", k.documentID, k.version)
}
