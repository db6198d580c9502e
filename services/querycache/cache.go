// Package querycache is the request cache in front of the content API. Entries
// carry the time they were fetched; a Policy decides how long an entry is served
// without refetching (stale time) and how long it is retained (cache time).
// Concurrent loads of the same key are collapsed into one upstream call.
package querycache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"streamfinder/metrics"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// ErrMiss is returned by a Store when the key is absent or expired.
var ErrMiss = errors.New("querycache: miss")

// Entry is a cached payload and the time it was fetched upstream.
type Entry struct {
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Purge(ctx context.Context) error
	Close() error
}

// Policy controls freshness for one class of requests.
type Policy struct {
	Class     string
	StaleTime time.Duration
	CacheTime time.Duration
}

type Cache struct {
	store Store
	group singleflight.Group
	now   func() time.Time
}

func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Purge drops every cached entry.
func (c *Cache) Purge(ctx context.Context) error {
	return c.store.Purge(ctx)
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Key builds a cache key from a class and request parts.
func Key(class string, parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, "\x1f")))
	return class + ":" + hex.EncodeToString(h[:])
}

// Fetch returns the cached value for key while it is fresh under p, otherwise
// calls load and stores the result. Load errors are returned and never cached.
// The shared load is detached from ctx cancellation so an abandoned caller does
// not fail the others waiting on the same key; ctx still bounds this caller's wait.
func Fetch[T any](ctx context.Context, c *Cache, key string, p Policy, load func(context.Context) (*T, error)) (*T, error) {
	if c == nil {
		return load(ctx)
	}

	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if p.StaleTime > 0 && c.now().Sub(entry.FetchedAt) < p.StaleTime {
			var v T
			if err := json.Unmarshal(entry.Payload, &v); err == nil {
				metrics.CacheLookups.WithLabelValues(p.Class, "fresh").Inc()
				return &v, nil
			}
			log.Printf("[querycache] dropping undecodable entry for %s", key)
		}
		metrics.CacheLookups.WithLabelValues(p.Class, "stale").Inc()
	case errors.Is(err, ErrMiss):
		metrics.CacheLookups.WithLabelValues(p.Class, "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(p.Class, "error").Inc()
		log.Printf("[querycache] get %s failed: %v", key, err)
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(v)
		if err != nil {
			log.Printf("[querycache] encode %s failed: %v", key, err)
			return v, nil
		}
		if err := c.store.Set(loadCtx, key, &Entry{Payload: payload, FetchedAt: c.now()}, p.CacheTime); err != nil {
			log.Printf("[querycache] set %s failed: %v", key, err)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v, ok := res.Val.(*T)
		if !ok {
			return nil, fmt.Errorf("querycache: unexpected value type %T for %s", res.Val, key)
		}
		return v, nil
	}
}
