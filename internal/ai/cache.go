package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// cacheKey identifies a cacheable result by (operation_kind,
// canonical_input_hash, provider_id, model_id), per spec §4.5.
type cacheKey struct {
	kind       OperationKind
	inputHash  string
	providerID string
	modelID    string
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.kind, k.inputHash, k.providerID, k.modelID)
}

func canonicalHash(inputs ...string) string {
	h := sha256.New()
	for _, s := range inputs {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// resultCache is the pipeline's bounded LRU cache, with an optional Redis
// L2 tier shared across processes. Per spec §4.5 it never replays a lossy
// result: every stored value is a byte-identical copy of a prior
// successful completion.
type resultCache struct {
	lru *lru.LRU[string, string]
	rdb *redis.Client
	ttl time.Duration
}

const defaultCacheSize = 2048
const redisKeyPrefix = "meridian:ai:cache:"

func newResultCache(ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &resultCache{lru: lru.NewLRU[string, string](defaultCacheSize, nil, ttl), ttl: ttl}
}

// withRedis attaches an L2 tier. A miss in the in-process LRU falls
// through to Redis before counting as a cache miss; a hit there is
// back-filled into the LRU so repeat lookups stay process-local.
func (c *resultCache) withRedis(rdb *redis.Client) *resultCache {
	c.rdb = rdb
	return c
}

func (c *resultCache) get(ctx context.Context, k cacheKey) (string, bool) {
	if v, ok := c.lru.Get(k.String()); ok {
		return v, true
	}
	if c.rdb == nil {
		return "", false
	}
	v, err := c.rdb.Get(ctx, redisKeyPrefix+k.String()).Result()
	if err != nil {
		return "", false
	}
	c.lru.Add(k.String(), v)
	return v, true
}

func (c *resultCache) put(ctx context.Context, k cacheKey, value string) {
	c.lru.Add(k.String(), value)
	if c.rdb == nil {
		return
	}
	c.rdb.Set(ctx, redisKeyPrefix+k.String(), value, c.ttl)
}

// bypassCache reports whether spec §4.5/§9's non-deterministic-provider
// rule applies: creative (temperature > 0) requests bypass the cache
// entirely rather than risk seeding it with a non-reproducible output.
func bypassCache(creativity float64) bool {
	return creativity > 0
}
