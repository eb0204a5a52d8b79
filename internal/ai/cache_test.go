package ai

import (
	"context"
	"testing"
	"time"
)

func TestCacheRoundTrip(t *testing.T) {
	c := newResultCache(time.Minute)
	ctx := context.Background()
	k := cacheKey{kind: KindSummarize, inputHash: canonicalHash("hello"), providerID: "openai", modelID: "gpt-4o-mini"}

	if _, ok := c.get(ctx, k); ok {
		t.Fatalf("expected cache miss before put")
	}
	c.put(ctx, k, "summary")
	got, ok := c.get(ctx, k)
	if !ok || got != "summary" {
		t.Fatalf("expected cache hit with %q, got %q (ok=%v)", "summary", got, ok)
	}
}

func TestCanonicalHashStable(t *testing.T) {
	a := canonicalHash("a", "b")
	b := canonicalHash("a", "b")
	c := canonicalHash("a", "c")
	if a != b {
		t.Fatalf("expected identical inputs to hash identically")
	}
	if a == c {
		t.Fatalf("expected different inputs to hash differently")
	}
}

func TestBypassCache(t *testing.T) {
	if bypassCache(0) {
		t.Fatalf("deterministic (creativity=0) requests must not bypass the cache")
	}
	if !bypassCache(0.5) {
		t.Fatalf("creative requests must bypass the cache")
	}
}
