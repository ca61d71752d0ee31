package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Scope decides whether a cached response may be shared across sessions.
type Scope string

const (
	// ScopeConversation keys the response to the conversation context, so
	// only the same session with the same recent history can reuse it.
	ScopeConversation Scope = "conversation"

	// ScopeGlobal shares the response across all sessions.
	ScopeGlobal Scope = "global"
)

// Policy declares how responses for one intent may be cached.
type Policy struct {
	TTL   time.Duration
	Scope Scope
}

// fallbackResponse is the generator's degraded-mode reply. It must never be
// cached or it would shadow real responses until expiry.
const fallbackResponse = "Theek hai."

// defaultPolicies maps intents to their cache behaviour. Read-only intents
// with stable answers cache globally; anything phrased relative to the
// conversation stays conversation-scoped. Intents absent here are not
// cached at all.
var defaultPolicies = map[string]Policy{
	"CHECK_BALANCE":          {TTL: 60 * time.Second, Scope: ScopeConversation},
	"GET_CUSTOMER_INFO":      {TTL: 5 * time.Minute, Scope: ScopeConversation},
	"LIST_CUSTOMER_BALANCES": {TTL: 60 * time.Second, Scope: ScopeGlobal},
	"TOTAL_PENDING_AMOUNT":   {TTL: 60 * time.Second, Scope: ScopeGlobal},
	"CHECK_STOCK":            {TTL: 60 * time.Second, Scope: ScopeGlobal},
	"LIST_REMINDERS":         {TTL: 60 * time.Second, Scope: ScopeConversation},
	"DAILY_SUMMARY":          {TTL: 5 * time.Minute, Scope: ScopeGlobal},
}

// ResponseCache caches generated response text per intent according to the
// policy table, keyed by a digest of the execution result.
type ResponseCache struct {
	tiered   *Tiered
	policies map[string]Policy
}

// NewResponseCache creates a ResponseCache over the given tiered store using
// the default policy table.
func NewResponseCache(t *Tiered) *ResponseCache {
	return &ResponseCache{tiered: t, policies: defaultPolicies}
}

// Key derives the cache key for an intent's response. result is the
// execution payload (message plus data); lang is the reply register, folded
// in so a Hindi reply is never served to an English session; convoHash
// identifies the recent conversation context and is folded in only for
// conversation-scoped intents. Returns false when the intent has no cache
// policy.
func (c *ResponseCache) Key(intent string, success bool, result map[string]any, lang, convoHash string) (string, bool) {
	policy, ok := c.policies[intent]
	if !ok {
		return "", false
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%t|%s|", intent, success, lang)
	h.Write(normalizeJSON(result))
	if policy.Scope == ScopeConversation {
		fmt.Fprintf(h, "|%s", convoHash)
	}
	return "llm:" + intent + ":" + hex.EncodeToString(h.Sum(nil)), true
}

// Get returns a cached response for the key.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	return c.tiered.Get(ctx, key)
}

// Put stores a generated response under key for the intent's policy TTL.
// Fallback text is silently dropped.
func (c *ResponseCache) Put(ctx context.Context, intent, key, response string) {
	policy, ok := c.policies[intent]
	if !ok || response == "" || response == fallbackResponse {
		return
	}
	c.tiered.SetTTL(ctx, key, response, policy.TTL)
}

// normalizeJSON renders v with sorted keys so logically equal results hash
// identically regardless of map iteration order.
func normalizeJSON(v map[string]any) []byte {
	if len(v) == 0 {
		return nil
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		b, err := json.Marshal(v[k])
		if err != nil {
			b = []byte(fmt.Sprintf("%v", v[k]))
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, b...)
		buf = append(buf, ';')
	}
	return buf
}
