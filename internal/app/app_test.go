package app_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nileshdk/bolikhata/internal/app"
	"github.com/nileshdk/bolikhata/internal/config"
	"github.com/nileshdk/bolikhata/internal/mailer"
	"github.com/nileshdk/bolikhata/internal/session"
	"github.com/nileshdk/bolikhata/internal/store"
	llmmock "github.com/nileshdk/bolikhata/pkg/provider/llm/mock"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("BOLIKHATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOLIKHATA_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNew_RequiresLLM(t *testing.T) {
	_, err := app.New(context.Background(), &config.Config{}, &app.Providers{})
	if err == nil {
		t.Fatal("New without an LLM provider should fail")
	}
}

func TestNew_BadTimezone(t *testing.T) {
	cfg := &config.Config{}
	cfg.Business.Timezone = "Mars/Olympus"
	_, err := app.New(context.Background(), cfg, &app.Providers{LLM: &llmmock.Provider{}})
	if err == nil {
		t.Fatal("New with a bogus timezone should fail")
	}
}

// newTestApp wires a full App against a clean database, miniredis, a
// recording mail sender, and a scripted LLM.
func newTestApp(t *testing.T, llmResponse string) (*app.App, *store.Store, *mailer.Recorder) {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS deletion_otps CASCADE",
		"DROP TABLE IF EXISTS reminders CASCADE",
		"DROP TABLE IF EXISTS ledger_entries CASCADE",
		"DROP TABLE IF EXISTS line_items CASCADE",
		"DROP TABLE IF EXISTS invoices CASCADE",
		"DROP TABLE IF EXISTS products CASCADE",
		"DROP TABLE IF EXISTS customers CASCADE",
	} {
		if _, err := cleanPool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	st, err := store.New(ctx, dsn, 0)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(st.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mail := &mailer.Recorder{}

	cfg := &config.Config{}
	cfg.Business.AdminPhone = "9999988888"

	a, err := app.New(ctx, cfg, &app.Providers{
		LLM: &llmmock.Provider{Response: llmResponse},
	},
		app.WithStore(st),
		app.WithRedisClient(client),
		app.WithSender(mail),
		app.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return a, st, mail
}

// dial opens a websocket against the session manager and returns the
// connection.
func dial(t *testing.T, a *app.App, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(a.Manager())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readUntil reads frames until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) session.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		m, err := session.Decode(raw)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if m.Type == msgType {
			return m
		}
	}
}

func TestWebsocket_TextCommandRoundTrip(t *testing.T) {
	a, st, _ := newTestApp(t, `{"normalized": "Anita ka naya khata",
		"intent": "CREATE_CUSTOMER",
		"entities": {"name": "Anita", "phone": "9876500000"},
		"confidence": 0.95}`)

	conn := dial(t, a, "")

	start := readUntil(t, conn, session.TypeVoiceStart)
	if start.Data["sessionId"] == "" {
		t.Error("handshake is missing the session id")
	}

	frame, err := session.New(session.TypeVoiceText, map[string]any{
		"text": "anita ka naya khata kholo",
	}).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp := readUntil(t, conn, session.TypeResponse)
	if success, _ := resp.Data["success"].(bool); !success {
		t.Fatalf("command failed: %+v", resp.Data)
	}

	c, err := st.Customers.GetByPhone(ctx, "9876500000")
	if err != nil {
		t.Fatalf("customer was not created: %v", err)
	}
	if c.Name != "Anita" {
		t.Errorf("customer name = %q, want Anita", c.Name)
	}
}

func TestWebsocket_DisconnectClearsSession(t *testing.T) {
	a, _, _ := newTestApp(t, `{"intent": "CHECK_BALANCE", "entities": {}, "confidence": 0.9}`)

	conn := dial(t, a, "?phone=9999988888")
	readUntil(t, conn, session.TypeVoiceStart)

	if got := a.Manager().Count(); got != 1 {
		t.Fatalf("live sessions = %d, want 1", got)
	}

	conn.Close(websocket.StatusNormalClosure, "done")

	deadline := time.Now().Add(3 * time.Second)
	for a.Manager().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not cleaned up after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestShutdown_DrainsSessions(t *testing.T) {
	a, _, _ := newTestApp(t, `{"intent": "CHECK_BALANCE", "entities": {}, "confidence": 0.9}`)

	conn := dial(t, a, "")
	readUntil(t, conn, session.TypeVoiceStart)
	conn.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := a.Manager().Count(); got != 0 {
		t.Errorf("live sessions after shutdown = %d, want 0", got)
	}
}
