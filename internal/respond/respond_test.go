package respond_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nileshdk/bolikhata/internal/cache"
	"github.com/nileshdk/bolikhata/internal/respond"
	llmmock "github.com/nileshdk/bolikhata/pkg/provider/llm/mock"
)

func testCache(t *testing.T) *cache.ResponseCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return cache.NewResponseCache(cache.NewTiered(client, log))
}

func TestGenerate_HinglishSpeaksEngineMessageDirectly(t *testing.T) {
	provider := &llmmock.Provider{Response: "should not be used"}
	g := respond.New(provider, nil)

	var chunks []string
	got := g.Generate(context.Background(), respond.Input{
		Intent:  "RECORD_PAYMENT",
		Success: true,
		Message: "Ramesh ka ₹500 ka payment record ho gaya.",
	}, respond.Hinglish, "", func(s string) { chunks = append(chunks, s) })

	if got != "Ramesh ka ₹500 ka payment record ho gaya." {
		t.Errorf("text = %q, want the engine message verbatim", got)
	}
	if len(chunks) != 1 || chunks[0] != got {
		t.Errorf("chunks = %v, want one chunk equal to the reply", chunks)
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider called %d times on the fast path, want 0", provider.CallCount())
	}
}

func TestGenerate_EnglishStreamsThroughLLM(t *testing.T) {
	provider := &llmmock.Provider{Response: "Ramesh owes five hundred rupees."}
	g := respond.New(provider, nil)

	var b strings.Builder
	got := g.Generate(context.Background(), respond.Input{
		Intent:  "CHECK_BALANCE",
		Success: true,
		Message: "Ramesh ka balance ₹500 baki hai.",
		Data:    map[string]any{"customer": "Ramesh", "balance": 500.0},
	}, respond.English, "", func(s string) { b.WriteString(s) })

	if got != "Ramesh owes five hundred rupees." {
		t.Errorf("text = %q", got)
	}
	if b.String() != got {
		t.Errorf("streamed %q, returned %q; want identical", b.String(), got)
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.CallCount())
	}
}

func TestGenerate_ProviderErrorFallsBackToMessage(t *testing.T) {
	provider := &llmmock.Provider{Err: errors.New("down")}
	g := respond.New(provider, nil)

	got := g.Generate(context.Background(), respond.Input{
		Intent:  "CHECK_BALANCE",
		Success: true,
		Message: "Ramesh ka balance ₹500 baki hai.",
	}, respond.English, "", nil)

	if got != "Ramesh ka balance ₹500 baki hai." {
		t.Errorf("text = %q, want degraded to the engine message", got)
	}
}

func TestGenerate_NothingAvailableSpeaksFallback(t *testing.T) {
	provider := &llmmock.Provider{Err: errors.New("down")}
	g := respond.New(provider, nil)

	got := g.Generate(context.Background(), respond.Input{
		Intent: "CHECK_BALANCE",
	}, respond.English, "", nil)

	if got != "Theek hai." {
		t.Errorf("text = %q, want the fallback", got)
	}
}

func TestGenerate_SecondCallServedFromCache(t *testing.T) {
	provider := &llmmock.Provider{Response: "Total pending is two thousand rupees."}
	g := respond.New(provider, testCache(t))
	in := respond.Input{
		Intent:  "TOTAL_PENDING_AMOUNT",
		Success: true,
		Data:    map[string]any{"total": 2000.0, "customers": 3},
	}

	first := g.Generate(context.Background(), in, respond.English, "", nil)
	second := g.Generate(context.Background(), in, respond.English, "", nil)

	if first != second {
		t.Errorf("cached reply %q differs from first %q", second, first)
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (second served from cache)", provider.CallCount())
	}
}

func TestGenerate_CacheIsPerLanguage(t *testing.T) {
	provider := &llmmock.Provider{Response: "Total pending is two thousand rupees."}
	g := respond.New(provider, testCache(t))
	in := respond.Input{
		Intent:  "TOTAL_PENDING_AMOUNT",
		Success: true,
		Data:    map[string]any{"total": 2000.0},
	}

	english := g.Generate(context.Background(), in, respond.English, "", nil)

	// The Hindi reply must be generated fresh, not served from the English
	// cache entry.
	provider.Response = "कुल दो हज़ार रुपये बाकी हैं।"
	hindi := g.Generate(context.Background(), in, respond.Hindi, "", nil)

	if hindi == english {
		t.Errorf("hindi reply %q served from the english cache entry", hindi)
	}
	if provider.CallCount() != 2 {
		t.Errorf("provider calls = %d, want 2 (one per language)", provider.CallCount())
	}
}

func TestGenerate_FallbackNeverCached(t *testing.T) {
	provider := &llmmock.Provider{Err: errors.New("down")}
	g := respond.New(provider, testCache(t))
	in := respond.Input{Intent: "TOTAL_PENDING_AMOUNT", Success: true}

	if got := g.Generate(context.Background(), in, respond.English, "", nil); got != "Theek hai." {
		t.Fatalf("degraded text = %q", got)
	}

	// Provider recovers; the fallback must not shadow the real reply.
	provider.Err = nil
	provider.Response = "Nothing is pending."
	if got := g.Generate(context.Background(), in, respond.English, "", nil); got != "Nothing is pending." {
		t.Errorf("after recovery = %q, want the real reply", got)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := []struct {
		raw  string
		want respond.Language
	}{
		{"hindi", respond.Hindi},
		{"HI", respond.Hindi},
		{"english", respond.English},
		{"angrezi", respond.English},
		{"hinglish", respond.Hinglish},
		{"", respond.Hinglish},
		{"french", respond.Hinglish},
	}
	for _, c := range cases {
		if got := respond.NormalizeLanguage(c.raw); got != c.want {
			t.Errorf("NormalizeLanguage(%q) = %s, want %s", c.raw, got, c.want)
		}
	}
}

func TestSpeakPhone(t *testing.T) {
	got := respond.SpeakPhone("98765 43210", respond.Hindi)
	want := "nau aath saat chhe paanch, chaar teen do ek shunya"
	if got != want {
		t.Errorf("SpeakPhone hi = %q, want %q", got, want)
	}

	got = respond.SpeakPhone("9876543210", respond.English)
	want = "nine eight seven six five, four three two one zero"
	if got != want {
		t.Errorf("SpeakPhone en = %q, want %q", got, want)
	}

	if got := respond.SpeakPhone("", respond.Hindi); got != "" {
		t.Errorf("SpeakPhone empty = %q, want empty", got)
	}
}
