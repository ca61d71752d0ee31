package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// localTTL bounds the in-process tier so stale reads self-heal even if
	// an invalidation is missed by this process.
	localTTL = 5 * time.Minute

	// sharedTTL bounds the Redis tier.
	sharedTTL = 30 * time.Minute

	// localMaxEntries keeps the in-process tier small; it only needs to
	// absorb the hot keys of the active conversation.
	localMaxEntries = 100
)

// Tiered is the two-tier read-through cache. Reads check the in-process
// tier, then Redis, promoting shared hits locally. Writes go to both tiers;
// invalidation clears both by prefix.
//
// Redis being down degrades to local-only: cache errors are logged, never
// propagated, so a cache outage can't fail a business operation.
type Tiered struct {
	local  *Local
	client *redis.Client
	log    *slog.Logger
}

// NewTiered creates a Tiered cache. client may be nil, leaving only the
// in-process tier active.
func NewTiered(client *redis.Client, log *slog.Logger) *Tiered {
	if log == nil {
		log = slog.Default()
	}
	return &Tiered{
		local:  NewLocal(localMaxEntries),
		client: client,
		log:    log,
	}
}

// Get returns the cached value for key from the fastest tier that has it.
func (t *Tiered) Get(ctx context.Context, key string) (string, bool) {
	if v, ok := t.local.Get(key); ok {
		return v, true
	}
	if t.client == nil {
		return "", false
	}

	v, err := t.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		t.log.Warn("shared cache read failed", "key", key, "error", err)
		return "", false
	}
	t.local.Set(key, v, localTTL)
	return v, true
}

// Set stores value in both tiers with their default TTLs.
func (t *Tiered) Set(ctx context.Context, key, value string) {
	t.SetTTL(ctx, key, value, sharedTTL)
}

// SetTTL stores value with an explicit shared-tier TTL. The local tier keeps
// its shorter default unless ttl is shorter still.
func (t *Tiered) SetTTL(ctx context.Context, key, value string, ttl time.Duration) {
	lttl := localTTL
	if ttl < lttl {
		lttl = ttl
	}
	t.local.Set(key, value, lttl)

	if t.client == nil {
		return
	}
	if err := t.client.Set(ctx, key, value, ttl).Err(); err != nil {
		t.log.Warn("shared cache write failed", "key", key, "error", err)
	}
}

// InvalidatePrefix removes every key starting with prefix from both tiers.
func (t *Tiered) InvalidatePrefix(ctx context.Context, prefix string) {
	t.local.DeletePrefix(prefix)

	if t.client == nil {
		return
	}
	iter := t.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		t.log.Warn("shared cache scan failed", "prefix", prefix, "error", err)
		return
	}
	if len(keys) > 0 {
		if err := t.client.Del(ctx, keys...).Err(); err != nil {
			t.log.Warn("shared cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
}
