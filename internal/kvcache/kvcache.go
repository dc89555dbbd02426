// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package kvcache implements the two-tier key-value cache: a fast in-memory
// tier with a short TTL and a durable bolt-backed mirror with a long one.
// The memory tier absorbs request storms within a session; the mirror lets a
// process restart serve instantly while a revalidation fetch is in flight.
//
// Mirror failures never propagate to callers. If the bolt file cannot be
// opened or written, the cache degrades to memory-only and records the error
// for inspection via MirrorErr.
package kvcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/tenantsync/internal/logctx"
	"github.com/cardinalhq/tenantsync/internal/scope"
)

const (
	// DefaultMemoryTTL bounds how long the memory tier serves an entry
	// without revalidation.
	DefaultMemoryTTL = 10 * time.Minute
	// DefaultMirrorTTL bounds how long the persistent mirror serves an
	// entry across restarts.
	DefaultMirrorTTL = 24 * time.Hour
	// DefaultKeyPrefix namespaces mirror keys so unrelated data in a shared
	// bolt file is never touched.
	DefaultKeyPrefix = "tenantsync_"
)

var bucketName = []byte("tenant_data")

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tenantsync/internal/kvcache")

	var err error
	cacheHits, err = meter.Int64Counter(
		"tenantsync_cache_hits_total",
		metric.WithDescription("Cache hits by tier"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cacheHits counter: %w", err))
	}

	cacheMisses, err = meter.Int64Counter(
		"tenantsync_cache_misses_total",
		metric.WithDescription("Cache misses across both tiers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cacheMisses counter: %w", err))
	}
}

// Tier identifies which cache tier satisfied a Get.
type Tier int

const (
	TierNone Tier = iota
	TierMemory
	TierMirror
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierMirror:
		return "mirror"
	default:
		return "none"
	}
}

type memEntry struct {
	data      []byte
	timestamp time.Time
}

// mirrorEntry is the serialized form stored in bolt: the payload plus an
// epoch-millisecond write timestamp.
type mirrorEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Options configures a Cache. Zero values fall back to the defaults above.
type Options struct {
	MemoryTTL time.Duration
	MirrorTTL time.Duration
	KeyPrefix string
}

// Cache is the two-tier store. It is safe for concurrent use.
type Cache struct {
	mem       *ttlcache.Cache[string, memEntry]
	db        *bolt.DB
	memTTL    time.Duration
	mirrorTTL time.Duration
	prefix    string

	mu        sync.Mutex
	mirrorErr error
	stopOnce  sync.Once
}

// New builds a Cache over db. A nil db is allowed and yields a memory-only
// cache; the caller keeps ownership of db and closes it.
func New(db *bolt.DB, opts Options) (*Cache, error) {
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = DefaultMemoryTTL
	}
	if opts.MirrorTTL <= 0 {
		opts.MirrorTTL = DefaultMirrorTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	c := &Cache{
		mem: ttlcache.New(
			ttlcache.WithTTL[string, memEntry](opts.MemoryTTL),
			ttlcache.WithDisableTouchOnHit[string, memEntry](),
		),
		db:        db,
		memTTL:    opts.MemoryTTL,
		mirrorTTL: opts.MirrorTTL,
		prefix:    opts.KeyPrefix,
	}

	if db != nil {
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketName)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to create cache bucket: %w", err)
		}
	}

	go c.mem.Start()
	return c, nil
}

func (c *Cache) mirrorKey(key, tenantID string) []byte {
	return []byte(c.prefix + scope.Key(tenantID, key))
}

// Get returns the freshest valid entry for (tenant, key). Memory is checked
// first; on a miss the mirror is consulted and a valid hit is promoted back
// into memory before returning. Mirror failures degrade to a miss.
func (c *Cache) Get(ctx context.Context, key, tenantID string) ([]byte, Tier, bool) {
	sk := scope.Key(tenantID, key)
	if item := c.mem.Get(sk); item != nil {
		cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", TierMemory.String())))
		return item.Value().data, TierMemory, true
	}

	data, ok := c.mirrorGet(ctx, key, tenantID)
	if !ok {
		cacheMisses.Add(ctx, 1)
		return nil, TierNone, false
	}

	// Promote so the next read within the session skips bolt entirely.
	c.mem.Set(sk, memEntry{data: data, timestamp: time.Now()}, ttlcache.DefaultTTL)
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", TierMirror.String())))
	return data, TierMirror, true
}

// Set writes to both tiers unconditionally, timestamped now.
func (c *Cache) Set(ctx context.Context, key, tenantID string, data []byte) {
	sk := scope.Key(tenantID, key)
	c.mem.Set(sk, memEntry{data: data, timestamp: time.Now()}, ttlcache.DefaultTTL)
	c.mirrorPut(ctx, key, tenantID, data)
}

// Invalidate removes the entry from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key, tenantID string) {
	c.mem.Delete(scope.Key(tenantID, key))
	if c.db == nil {
		return
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(c.mirrorKey(key, tenantID))
	})
	if err != nil {
		c.noteMirrorErr(ctx, "invalidate", err)
	}
}

// MirrorErr reports the most recent persistent-tier failure, if any. A
// non-nil value means the cache has been serving in degraded, memory-only
// fashion for at least one operation.
func (c *Cache) MirrorErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirrorErr
}

// Close stops the memory tier's expiry loop. Safe to call more than once.
// The bolt DB is not closed here; it belongs to whoever opened it.
func (c *Cache) Close() error {
	c.stopOnce.Do(c.mem.Stop)
	return nil
}

func (c *Cache) mirrorGet(ctx context.Context, key, tenantID string) ([]byte, bool) {
	if c.db == nil {
		return nil, false
	}

	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get(c.mirrorKey(key, tenantID)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		c.noteMirrorErr(ctx, "get", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}

	var entry mirrorEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A malformed persisted entry is treated as a miss, never surfaced.
		logctx.FromContext(ctx).Debug("Dropping malformed mirror entry",
			"key", key, "tenantID", scope.Normalize(tenantID), "error", err)
		c.mirrorDelete(key, tenantID)
		return nil, false
	}

	writtenAt := time.UnixMilli(entry.Timestamp)
	if time.Since(writtenAt) > c.mirrorTTL {
		c.mirrorDelete(key, tenantID)
		return nil, false
	}
	return entry.Data, true
}

func (c *Cache) mirrorPut(ctx context.Context, key, tenantID string, data []byte) {
	if c.db == nil {
		return
	}
	raw, err := json.Marshal(mirrorEntry{Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		c.noteMirrorErr(ctx, "marshal", err)
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(c.mirrorKey(key, tenantID), raw)
	})
	if err != nil {
		c.noteMirrorErr(ctx, "put", err)
	}
}

func (c *Cache) mirrorDelete(key, tenantID string) {
	if c.db == nil {
		return
	}
	_ = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(c.mirrorKey(key, tenantID))
	})
}

func (c *Cache) noteMirrorErr(ctx context.Context, op string, err error) {
	c.mu.Lock()
	c.mirrorErr = err
	c.mu.Unlock()
	logctx.FromContext(ctx).Warn("Cache mirror degraded to memory-only",
		"op", op, "error", err)
}
