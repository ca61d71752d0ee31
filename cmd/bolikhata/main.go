// Command bolikhata is the main entry point for the BoliKhata voice
// commerce server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/nileshdk/bolikhata/internal/app"
	"github.com/nileshdk/bolikhata/internal/config"
	"github.com/nileshdk/bolikhata/internal/observe"
	"github.com/nileshdk/bolikhata/pkg/provider/llm"
	"github.com/nileshdk/bolikhata/pkg/provider/llm/anyllm"
	"github.com/nileshdk/bolikhata/pkg/provider/llm/openai"
	"github.com/nileshdk/bolikhata/pkg/provider/stt"
	"github.com/nileshdk/bolikhata/pkg/provider/stt/deepgram"
	sarvamstt "github.com/nileshdk/bolikhata/pkg/provider/stt/sarvam"
	"github.com/nileshdk/bolikhata/pkg/provider/tts"
	"github.com/nileshdk/bolikhata/pkg/provider/tts/elevenlabs"
	sarvamtts "github.com/nileshdk/bolikhata/pkg/provider/tts/sarvam"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "bolikhata: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "bolikhata: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("bolikhata starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "bolikhata",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates the providers named in cfg and returns them in
// an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = p
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := buildSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	} else {
		slog.Warn("no STT provider configured — sessions will be text-only")
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := buildTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	} else {
		slog.Info("no TTS provider configured — clients fall back to browser speech")
	}

	return ps, nil
}

// buildLLM constructs the language model provider. OpenAI uses the native
// SDK; the remaining names route through any-llm.
func buildLLM(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Name {
	case "", "openai":
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)

	case "ollama":
		// Local server: BaseURL carries the address, no API key.
		var opts []anyllmlib.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.New("ollama", cfg.Model, opts...)

	case "anthropic", "gemini", "mistral", "groq":
		var opts []anyllmlib.Option
		if cfg.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.New(cfg.Name, cfg.Model, opts...)

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Name)
	}
}

func buildSTT(cfg config.STTConfig) (stt.Provider, error) {
	switch cfg.Name {
	case "deepgram":
		var opts []deepgram.Option
		if cfg.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Language))
		}
		return deepgram.New(cfg.APIKey, opts...)

	case "sarvam":
		var opts []sarvamstt.Option
		if cfg.Language != "" {
			opts = append(opts, sarvamstt.WithLanguage(cfg.Language))
		}
		return sarvamstt.New(cfg.APIKey, opts...)

	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Name)
	}
}

func buildTTS(cfg config.TTSConfig) (tts.Provider, error) {
	switch cfg.Name {
	case "elevenlabs":
		var opts []elevenlabs.Option
		if cfg.Voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(cfg.Voice))
		}
		return elevenlabs.New(cfg.APIKey, opts...)

	case "sarvam":
		var opts []sarvamtts.Option
		if cfg.Voice != "" {
			opts = append(opts, sarvamtts.WithSpeaker(cfg.Voice))
		}
		return sarvamtts.New(cfg.APIKey, opts...)

	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        BoliKhata — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Language)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Voice)
	if cfg.Mail.Host != "" {
		fmt.Printf("║  Mail            : %-19s ║\n", cfg.Mail.Host)
	} else {
		fmt.Printf("║  Mail            : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
