package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nileshdk/bolikhata/internal/cache"
)

func newTestTiered(t *testing.T) (*cache.Tiered, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewTiered(client, nil), mr
}

func TestLocal_TTLExpiry(t *testing.T) {
	l := cache.NewLocal(10)
	l.Set("k", "v", 10*time.Millisecond)
	if v, ok := l.Get("k"); !ok || v != "v" {
		t.Fatalf("Get = %q, %t; want v, true", v, ok)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := l.Get("k"); ok {
		t.Error("entry should have expired")
	}
}

func TestLocal_BoundedEviction(t *testing.T) {
	l := cache.NewLocal(3)
	l.Set("a", "1", time.Minute)
	l.Set("b", "2", 2*time.Minute)
	l.Set("c", "3", 3*time.Minute)
	l.Set("d", "4", 4*time.Minute)

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	// "a" expires first, so it is the eviction victim.
	if _, ok := l.Get("a"); ok {
		t.Error("closest-to-expiry entry should have been evicted")
	}
	if _, ok := l.Get("d"); !ok {
		t.Error("newest entry should survive")
	}
}

func TestLocal_DeletePrefix(t *testing.T) {
	l := cache.NewLocal(10)
	l.Set("customer:1:balance", "100", time.Minute)
	l.Set("customer:1:info", "x", time.Minute)
	l.Set("product:tea", "y", time.Minute)

	l.DeletePrefix("customer:")
	if _, ok := l.Get("customer:1:balance"); ok {
		t.Error("prefixed entry should be gone")
	}
	if _, ok := l.Get("product:tea"); !ok {
		t.Error("unrelated entry should survive")
	}
}

func TestTiered_ReadThrough(t *testing.T) {
	tc, mr := newTestTiered(t)
	ctx := context.Background()

	// Seed only the shared tier; a read must promote it locally.
	mr.Set("customer:q:ramesh", "hit")
	if v, ok := tc.Get(ctx, "customer:q:ramesh"); !ok || v != "hit" {
		t.Fatalf("Get = %q, %t; want hit, true", v, ok)
	}

	// Kill the shared tier: the promoted copy still serves.
	mr.Close()
	if v, ok := tc.Get(ctx, "customer:q:ramesh"); !ok || v != "hit" {
		t.Errorf("local promotion: Get = %q, %t; want hit, true", v, ok)
	}
}

func TestTiered_SetWritesBothTiers(t *testing.T) {
	tc, mr := newTestTiered(t)
	ctx := context.Background()

	tc.Set(ctx, "customer:list", "snapshot")
	if got, err := mr.Get("customer:list"); err != nil || got != "snapshot" {
		t.Errorf("shared tier = %q, %v; want snapshot", got, err)
	}
	if v, ok := tc.Get(ctx, "customer:list"); !ok || v != "snapshot" {
		t.Errorf("Get = %q, %t; want snapshot, true", v, ok)
	}
}

func TestTiered_InvalidatePrefixClearsBothTiers(t *testing.T) {
	tc, mr := newTestTiered(t)
	ctx := context.Background()

	tc.Set(ctx, "customer:1:balance", "100")
	tc.Set(ctx, "customer:2:balance", "200")
	tc.Set(ctx, "llm:DAILY_SUMMARY:abc", "kept")

	tc.InvalidatePrefix(ctx, "customer:")

	if _, ok := tc.Get(ctx, "customer:1:balance"); ok {
		t.Error("customer:1 should be invalidated")
	}
	if mr.Exists("customer:2:balance") {
		t.Error("shared tier should drop prefixed keys")
	}
	if v, ok := tc.Get(ctx, "llm:DAILY_SUMMARY:abc"); !ok || v != "kept" {
		t.Errorf("unrelated key = %q, %t; want kept, true", v, ok)
	}
}

func TestTiered_DegradesWithoutRedis(t *testing.T) {
	tc := cache.NewTiered(nil, nil)
	ctx := context.Background()

	tc.Set(ctx, "k", "v")
	if v, ok := tc.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("local-only Get = %q, %t; want v, true", v, ok)
	}
	tc.InvalidatePrefix(ctx, "k")
	if _, ok := tc.Get(ctx, "k"); ok {
		t.Error("invalidation should work locally")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// LLM response cache
// ─────────────────────────────────────────────────────────────────────────────

func TestResponseCache_KeyStability(t *testing.T) {
	tc, _ := newTestTiered(t)
	rc := cache.NewResponseCache(tc)

	result := map[string]any{"balance": 500.0, "customer": "Ramesh"}
	k1, ok := rc.Key("CHECK_BALANCE", true, result, "hinglish", "convo-1")
	if !ok {
		t.Fatal("CHECK_BALANCE should have a policy")
	}
	k2, _ := rc.Key("CHECK_BALANCE", true, map[string]any{"customer": "Ramesh", "balance": 500.0}, "hinglish", "convo-1")
	if k1 != k2 {
		t.Error("logically equal results must hash to the same key")
	}

	// Conversation scope folds the context hash in.
	k3, _ := rc.Key("CHECK_BALANCE", true, result, "hinglish", "convo-2")
	if k1 == k3 {
		t.Error("different conversations must not share conversation-scoped keys")
	}

	// The reply language is part of the key: a Hindi reply must never be
	// served to an English session.
	k4, _ := rc.Key("CHECK_BALANCE", true, result, "en", "convo-1")
	if k1 == k4 {
		t.Error("different languages must not share keys")
	}

	// Global scope ignores the conversation.
	g1, _ := rc.Key("DAILY_SUMMARY", true, result, "hinglish", "convo-1")
	g2, _ := rc.Key("DAILY_SUMMARY", true, result, "hinglish", "convo-2")
	if g1 != g2 {
		t.Error("global-scoped keys must ignore the conversation hash")
	}
}

func TestResponseCache_UnknownIntentNotCached(t *testing.T) {
	tc, _ := newTestTiered(t)
	rc := cache.NewResponseCache(tc)

	if _, ok := rc.Key("CREATE_INVOICE", true, nil, "hinglish", ""); ok {
		t.Error("money-moving intents must not be cacheable")
	}
}

func TestResponseCache_NeverCachesFallback(t *testing.T) {
	tc, _ := newTestTiered(t)
	rc := cache.NewResponseCache(tc)
	ctx := context.Background()

	key, _ := rc.Key("CHECK_BALANCE", true, map[string]any{"balance": 1.0}, "hinglish", "c")
	rc.Put(ctx, "CHECK_BALANCE", key, "Theek hai.")
	if _, ok := rc.Get(ctx, key); ok {
		t.Error("fallback response must never be cached")
	}

	rc.Put(ctx, "CHECK_BALANCE", key, "Ramesh ka balance ₹500 hai.")
	if v, ok := rc.Get(ctx, key); !ok || v != "Ramesh ka balance ₹500 hai." {
		t.Errorf("Get = %q, %t; want real response", v, ok)
	}
}
