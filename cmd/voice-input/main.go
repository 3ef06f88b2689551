// Command voice-input is the push-to-talk dictation daemon for Linux
// desktops: hold a hotkey, speak, and the transcribed text is typed into
// whatever window has focus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/voiceinput/voiceinput/internal/app"
	"github.com/voiceinput/voiceinput/internal/config"
	"github.com/voiceinput/voiceinput/internal/observe"
	"github.com/voiceinput/voiceinput/pkg/provider/stt"
	"github.com/voiceinput/voiceinput/pkg/provider/stt/deepgram"
	sttopenai "github.com/voiceinput/voiceinput/pkg/provider/stt/openai"
	"github.com/voiceinput/voiceinput/pkg/provider/stt/whisper"
)

// version is stamped at release time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	defaultPath := "config.yaml"
	if p, err := config.DefaultPath(); err == nil {
		defaultPath = p
	}
	configPath := flag.String("config", defaultPath, "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voice-input: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(cfg, levelVar))

	slog.Info("voice-input starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Must happen before app.New: the pipeline latches the global meter
	// provider on first use.
	flushMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voice-input",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := flushMetrics(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, *configPath)

	application, err := app.New(cfg, reg,
		app.WithConfigFile(*configPath),
		app.WithLogLevel(levelVar),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("press Ctrl+C to stop")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// Environment variables the hosted transcription backends read their
// credentials from. The factories pass the value through even when it is
// empty; the providers fail with [stt.ErrMissingCredential] at transcription
// time, so the daemon still starts without a key.
const (
	openaiKeyEnv   = "OPENAI_API_KEY"
	deepgramKeyEnv = "DEEPGRAM_API_KEY"
)

// builtinProviders lists the transcription backends that ship with the
// daemon. Used for startup logging.
var builtinProviders = []string{"whisper", "openai", "deepgram"}

// registerBuiltinProviders wires the built-in transcription factories into
// reg. Fallback entries in the config are created through the same factories.
func registerBuiltinProviders(reg *config.Registry) {
	// Plain multipart client against the OpenAI-compatible transcription API.
	reg.RegisterSTT("whisper", func(sc config.STTConfig) (stt.Provider, error) {
		var opts []whisper.Option
		if sc.Model != "" {
			opts = append(opts, whisper.WithModel(sc.Model))
		}
		if sc.Language != "" {
			opts = append(opts, whisper.WithLanguage(sc.Language))
		}
		if sc.BaseURL != "" {
			opts = append(opts, whisper.WithBaseURL(sc.BaseURL))
		}
		return whisper.New(os.Getenv(openaiKeyEnv), opts...)
	})

	// Official SDK client, useful when the daemon should share HTTP plumbing
	// with other OpenAI traffic.
	reg.RegisterSTT("openai", func(sc config.STTConfig) (stt.Provider, error) {
		var opts []sttopenai.Option
		if sc.Language != "" {
			opts = append(opts, sttopenai.WithLanguage(sc.Language))
		}
		if sc.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(sc.BaseURL))
		}
		return sttopenai.New(os.Getenv(openaiKeyEnv), sc.Model, opts...)
	})

	// Streaming WebSocket client; a whole recording is flushed through in
	// one burst.
	reg.RegisterSTT("deepgram", func(sc config.STTConfig) (stt.Provider, error) {
		var opts []deepgram.Option
		// Model names are backend-specific. Honour the configured one only
		// when deepgram is the primary, so a fallback entry never inherits
		// an OpenAI model name.
		if sc.Provider == "deepgram" && sc.Model != "" {
			opts = append(opts, deepgram.WithModel(sc.Model))
		}
		if sc.Language != "" {
			opts = append(opts, deepgram.WithLanguage(sc.Language))
		}
		return deepgram.New(os.Getenv(deepgramKeyEnv), opts...)
	})

	for _, name := range builtinProviders {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, configPath string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      voice-input startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	chordStr := "invalid"
	if chord, err := cfg.Hotkey.Chord(); err == nil {
		chordStr = chord.String()
	}
	printRow("Hotkey", chordStr)
	sttValue := cfg.STT.Provider
	if cfg.STT.Model != "" {
		sttValue += " / " + cfg.STT.Model
	}
	printRow("STT", sttValue)
	if len(cfg.STT.Fallback) > 0 {
		printRow("Fallbacks", strings.Join(cfg.STT.Fallback, ", "))
	} else {
		printRow("Fallbacks", "(none)")
	}
	printRow("Audio", fmt.Sprintf("%d Hz mono", cfg.Audio.SampleRate))
	printRow("Vocabulary", fmt.Sprintf("%d terms", len(cfg.Vocabulary)))
	if cfg.Notify.IsEnabled() {
		printRow("Notifications", "on")
	} else {
		printRow("Notifications", "off")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Debug listener", cfg.Server.ListenAddr)
	}
	printRow("Config", configPath)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 20 {
		value = value[:17] + "…"
	}
	fmt.Printf("║  %-14s: %-20s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process-wide logger writing to stdout and, when it can
// be opened, to the daemon's log file as well.
func newLogger(cfg *config.Config, level *slog.LevelVar) *slog.Logger {
	out := io.Writer(os.Stdout)
	path, err := cfg.LogFilePath()
	if err == nil {
		err = os.MkdirAll(filepath.Dir(path), 0o755)
	}
	if err == nil {
		var f *os.File
		// The file stays open for the process lifetime.
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stdout, f)
		}
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	if err != nil {
		logger.Warn("log file unavailable, logging to stdout only", "err", err)
	}
	return logger
}
