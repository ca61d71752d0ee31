package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "sarvam"},
	"tts": {"elevenlabs", "sarvam"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "mistral", "groq"},
}

// Load reads the YAML configuration file at path, overlays environment
// secrets, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, overlays environment secrets,
// applies defaults, and validates the result. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays secrets from BOLIKHATA_* environment variables onto cfg.
// Environment values win over file values so credentials never need to live
// in the config file.
func ApplyEnv(cfg *Config) {
	setIfEnv := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIfEnv(&cfg.Database.DSN, "BOLIKHATA_POSTGRES_DSN")
	setIfEnv(&cfg.Redis.Addr, "BOLIKHATA_REDIS_ADDR")
	setIfEnv(&cfg.Redis.Password, "BOLIKHATA_REDIS_PASSWORD")
	setIfEnv(&cfg.Providers.STT.APIKey, "BOLIKHATA_STT_API_KEY")
	setIfEnv(&cfg.Providers.TTS.APIKey, "BOLIKHATA_TTS_API_KEY")
	setIfEnv(&cfg.Providers.LLM.APIKey, "BOLIKHATA_LLM_API_KEY")
	setIfEnv(&cfg.Mail.Password, "BOLIKHATA_SMTP_PASSWORD")
	setIfEnv(&cfg.Business.AdminEmail, "BOLIKHATA_ADMIN_EMAIL")
	if v := os.Getenv("BOLIKHATA_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
}

// applyDefaults fills zero values with documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.DrainTimeoutSeconds == 0 {
		cfg.Server.DrainTimeoutSeconds = 10
	}
	if cfg.Providers.STT.Language == "" {
		cfg.Providers.STT.Language = "hi"
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Business.RejectThreshold == 0 {
		cfg.Business.RejectThreshold = 0.65
	}
	if cfg.Business.ConfirmThreshold == 0 {
		cfg.Business.ConfirmThreshold = 0.85
	}
	if cfg.Business.LargeAmount == 0 {
		cfg.Business.LargeAmount = 5000
	}
	if cfg.Business.NameMatchThreshold == 0 {
		cfg.Business.NameMatchThreshold = 0.85
	}
	if cfg.Business.Timezone == "" {
		cfg.Business.Timezone = "Asia/Kolkata"
	}
	if cfg.Reminders.PollIntervalSeconds == 0 {
		cfg.Reminders.PollIntervalSeconds = 5
	}
	if cfg.Reminders.MaxRetries == 0 {
		cfg.Reminders.MaxRetries = 3
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required; voice commands cannot be transcribed without it"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required; commands cannot be interpreted without it"))
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; responses will be delivered as text only")
	}

	// Storage
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required (or set BOLIKHATA_POSTGRES_DSN)"))
	}
	if cfg.Redis.Addr == "" {
		slog.Warn("redis.addr is empty; shared cache and payment reminders will not be available")
	}

	// Mail
	if cfg.Mail.Host != "" && cfg.Mail.From == "" {
		errs = append(errs, errors.New("mail.from is required when mail.host is set"))
	}

	// Business thresholds
	if cfg.Business.RejectThreshold < 0 || cfg.Business.RejectThreshold > 1 {
		errs = append(errs, fmt.Errorf("business.reject_threshold %.2f is out of range [0, 1]", cfg.Business.RejectThreshold))
	}
	if cfg.Business.ConfirmThreshold < 0 || cfg.Business.ConfirmThreshold > 1 {
		errs = append(errs, fmt.Errorf("business.confirm_threshold %.2f is out of range [0, 1]", cfg.Business.ConfirmThreshold))
	}
	if cfg.Business.RejectThreshold > cfg.Business.ConfirmThreshold {
		errs = append(errs, fmt.Errorf("business.reject_threshold %.2f must not exceed business.confirm_threshold %.2f",
			cfg.Business.RejectThreshold, cfg.Business.ConfirmThreshold))
	}
	if cfg.Business.NameMatchThreshold < 0 || cfg.Business.NameMatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("business.name_match_threshold %.2f is out of range [0, 1]", cfg.Business.NameMatchThreshold))
	}
	if _, err := time.LoadLocation(cfg.Business.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("business.timezone %q is not a valid IANA zone", cfg.Business.Timezone))
	}

	return errors.Join(errs...)
}

// SlogLevel converts the configured level into a slog.Level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Location resolves the configured business timezone. Validate guarantees the
// zone parses; callers after a successful load may ignore the error.
func (b BusinessConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
