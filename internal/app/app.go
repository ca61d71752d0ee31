// Package app wires all BoliKhata subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves websocket sessions and the reminder worker until
// the context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithRedisClient, WithSender, WithMetrics). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nileshdk/bolikhata/internal/cache"
	"github.com/nileshdk/bolikhata/internal/config"
	"github.com/nileshdk/bolikhata/internal/engine"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/mailer"
	"github.com/nileshdk/bolikhata/internal/observe"
	"github.com/nileshdk/bolikhata/internal/queue"
	"github.com/nileshdk/bolikhata/internal/reminder"
	"github.com/nileshdk/bolikhata/internal/respond"
	"github.com/nileshdk/bolikhata/internal/store"
	"github.com/nileshdk/bolikhata/pkg/provider/llm"
	"github.com/nileshdk/bolikhata/pkg/provider/stt"
	"github.com/nileshdk/bolikhata/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil STT or TTS
// means that pipeline stage is not configured; sessions then degrade to
// text-only. LLM is required. Populated by main.go from the config.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes for the BoliKhata server.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	loc       *time.Location

	// Subsystems — initialised in New, torn down in Shutdown.
	store     *store.Store
	redis     *redis.Client
	tiered    *cache.Tiered
	queue     *queue.Queue
	worker    *queue.Worker
	scheduler *reminder.Scheduler
	engine    *engine.Engine
	extractor *intent.Extractor
	responder *respond.Generator
	sender    mailer.Sender
	metrics   *observe.Metrics
	manager   *SessionManager
	httpSrv   *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a database store instead of connecting from config.
func WithStore(st *store.Store) Option {
	return func(a *App) { a.store = st }
}

// WithRedisClient injects a Redis client instead of dialing from config.
func WithRedisClient(c *redis.Client) Option {
	return func(a *App) { a.redis = c }
}

// WithSender injects a mail sender instead of building SMTP from config.
func WithSender(s mailer.Sender) Option {
	return func(a *App) { a.sender = s }
}

// WithMetrics injects a metrics instance instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the application logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, fmt.Errorf("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Timezone ──────────────────────────────────────────────────────
	tz := cfg.Business.Timezone
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("app: load timezone %q: %w", tz, err)
	}
	a.loc = loc

	// ── 2. Database ──────────────────────────────────────────────────────
	if a.store == nil {
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("app: database.dsn is required")
		}
		st, err := store.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("app: connect database: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, func() error {
			st.Close()
			return nil
		})
	}

	// ── 3. Redis: cache + reminder queue ─────────────────────────────────
	if a.redis == nil {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("app: connect redis %q: %w", cfg.Redis.Addr, err)
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
	}
	a.tiered = cache.NewTiered(a.redis, a.log)
	a.queue = queue.New(a.redis)

	// ── 4. Mail ──────────────────────────────────────────────────────────
	if a.sender == nil && cfg.Mail.Host != "" {
		port := cfg.Mail.Port
		if port == 0 {
			port = 587
		}
		smtp, err := mailer.NewSMTP(cfg.Mail.Host, port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
		if err != nil {
			return nil, fmt.Errorf("app: smtp setup: %w", err)
		}
		a.sender = smtp
	}

	// ── 5. Reminder scheduler + delivery worker ──────────────────────────
	a.scheduler = reminder.NewScheduler(a.store, a.queue, a.sender, a.loc, a.log)

	var workerOpts []queue.WorkerOption
	if s := cfg.Reminders.PollIntervalSeconds; s > 0 {
		workerOpts = append(workerOpts, queue.WithPollInterval(time.Duration(s)*time.Second))
	}
	if n := cfg.Reminders.MaxRetries; n > 0 {
		workerOpts = append(workerOpts, queue.WithMaxRetries(n))
	}
	a.worker = queue.NewWorker(a.queue, a.handleReminderJob, a.handleReminderFailure, a.log, workerOpts...)

	// ── 6. Engine ────────────────────────────────────────────────────────
	ops := newOperators()
	engineOpts := []engine.Option{
		engine.WithAdminPolicy(func(sessionID string) bool {
			phone := ops.phone(sessionID)
			return phone != "" && phone == cfg.Business.AdminPhone
		}),
	}
	if v := cfg.Business.NameMatchThreshold; v > 0 {
		engineOpts = append(engineOpts, engine.WithMatchThreshold(v))
	}
	if cfg.Business.AdminEmail != "" {
		engineOpts = append(engineOpts, engine.WithAdminEmail(cfg.Business.AdminEmail))
	}
	a.engine = engine.New(a.store, a.tiered, a.scheduler, a.sender, a.loc, a.log, engineOpts...)

	// ── 7. Language pipeline ─────────────────────────────────────────────
	a.extractor = intent.New(providers.LLM, intent.WithLogger(a.log))
	a.responder = respond.New(providers.LLM, cache.NewResponseCache(a.tiered), respond.WithLogger(a.log))

	// ── 8. Sessions + HTTP surface ───────────────────────────────────────
	a.manager = NewSessionManager(SessionManagerConfig{
		STT:       providers.STT,
		TTS:       providers.TTS,
		Extractor: a.extractor,
		Engine:    a.engine,
		Responder: a.responder,
		Business:  cfg.Business,
		Operators: ops,
		Metrics:   a.metrics,
		Log:       a.log,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", a.manager)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// handleReminderJob delivers one due reminder and records the outcome.
func (a *App) handleReminderJob(ctx context.Context, job queue.Job) error {
	err := a.scheduler.HandleJob(ctx, job)
	if err != nil {
		a.metrics.RecordReminderDelivered(ctx, "retry")
		return err
	}
	a.metrics.RecordReminderDelivered(ctx, "sent")
	return nil
}

// handleReminderFailure is called after a job exhausts its retries.
func (a *App) handleReminderFailure(ctx context.Context, job queue.Job, lastErr error) {
	a.scheduler.HandleFailure(ctx, job, lastErr)
	a.metrics.RecordReminderDelivered(ctx, "failed")
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled: the HTTP/websocket listener and the
// reminder delivery worker run concurrently. Run returns the first error, or
// nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.worker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.log.Info("listening", "addr", a.httpSrv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(closeCtx)
	})

	return g.Wait()
}

// Manager returns the session manager, mainly for tests.
func (a *App) Manager() *SessionManager { return a.manager }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains live sessions and tears down all subsystems in
// reverse-init order. It respects the context deadline: sessions still
// connected when the drain window expires are hung up.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		drain := time.Duration(a.cfg.Server.DrainTimeoutSeconds) * time.Second
		if drain == 0 {
			drain = 10 * time.Second
		}
		drainCtx, cancel := context.WithTimeout(ctx, drain)
		defer cancel()

		a.log.Info("shutting down", "drain_timeout", drain, "sessions", a.manager.Count())
		a.manager.CloseAll(drainCtx)

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
