// Package app wires all voice input subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the event loop until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithKeySource,
// WithCapture, etc.). When an option is not provided, New creates the real
// implementation from the config, which is what requires evdev access, a
// writable /dev/uinput and a working PortAudio host.
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
	"golang.org/x/sync/errgroup"

	"github.com/voiceinput/voiceinput/internal/config"
	"github.com/voiceinput/voiceinput/internal/health"
	"github.com/voiceinput/voiceinput/internal/hotkey"
	"github.com/voiceinput/voiceinput/internal/insert"
	"github.com/voiceinput/voiceinput/internal/keyboard"
	"github.com/voiceinput/voiceinput/internal/notify"
	"github.com/voiceinput/voiceinput/internal/observe"
	"github.com/voiceinput/voiceinput/internal/pipeline"
	"github.com/voiceinput/voiceinput/internal/record"
	"github.com/voiceinput/voiceinput/internal/resilience"
	"github.com/voiceinput/voiceinput/internal/transcript"
	"github.com/voiceinput/voiceinput/pkg/audio"
)

// serverShutdownTimeout bounds the debug listener's drain when the daemon
// stops. The listener only serves local scrapes, so anything longer than a
// couple of seconds means a wedged client, not a slow one.
const serverShutdownTimeout = 2 * time.Second

// KeySource delivers the key events the recording controller consumes and
// answers the keyboard readiness probe. *keyboard.Device is the production
// implementation.
type KeySource interface {
	Events(ctx context.Context) <-chan hotkey.Event
	Check(ctx context.Context) error
	Name() string
	Close() error
}

// App owns all subsystem lifetimes and runs the hotkey-to-typed-text loop.
type App struct {
	cfg     *config.Config
	cfgPath string

	// Subsystems, initialised in New and torn down in Shutdown.
	keys       KeySource
	engine     *audio.Engine
	capture    record.Capture
	cues       record.Cues
	chain      *resilience.Chain
	corrector  *transcript.Corrector
	inserter   insert.Inserter
	dispatcher *pipeline.Dispatcher
	controller *record.Controller
	notifier   *notify.Gate
	base       notify.Notifier
	metrics    *observe.Metrics
	logLevel   *slog.LevelVar
	watcher    *config.Watcher
	server     *http.Server
	chord      hotkey.Chord

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKeySource injects a key event source instead of opening an evdev
// device.
func WithKeySource(k KeySource) Option {
	return func(a *App) { a.keys = k }
}

// WithCapture injects a microphone capture instead of opening a PortAudio
// stream. Inject WithCues as well, otherwise New still initialises the audio
// host for the tone player.
func WithCapture(c record.Capture) Option {
	return func(a *App) { a.capture = c }
}

// WithCues injects the recording cue player.
func WithCues(c record.Cues) Option {
	return func(a *App) { a.cues = c }
}

// WithInserter injects a text inserter instead of registering a uinput
// device.
func WithInserter(i insert.Inserter) Option {
	return func(a *App) { a.inserter = i }
}

// WithNotifier injects the notifier wrapped by the runtime enable gate.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.base = n }
}

// WithMetrics injects a metrics instance instead of the process-global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigFile names the loaded config file so edits to it are picked up
// at runtime. Without it the daemon runs with a fixed configuration.
func WithConfigFile(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// WithLogLevel hands the logger's level var to the app so a config reload
// can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers
// registry comes from main (populated with the built-in transcription
// backends). Use Option functions to inject test doubles for any subsystem.
//
// Initialisation order follows the daemon's failure modes: the notifier
// first so later failures can reach the desktop, then the pieces that need
// device access (keyboard, uinput, audio), then the pure wiring. A keyboard
// or uinput failure posts its notification before New returns, since the
// caller exits on error.
func New(cfg *config.Config, providers *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Desktop notifications ─────────────────────────────────────────
	if a.base == nil {
		a.base = notify.NewDesktop()
	}
	a.notifier = notify.NewGate(a.base, cfg.Notify.IsEnabled())

	// ── 2. Keyboard device ───────────────────────────────────────────────
	if err := a.initKeyboard(); err != nil {
		a.alertFatal("No keyboard found — check 'input' group")
		return nil, fmt.Errorf("app: open keyboard: %w", err)
	}
	a.closers = append(a.closers, a.keys.Close)

	// ── 3. Virtual keyboard + clipboard inserter ─────────────────────────
	if a.inserter == nil {
		paster, err := insert.New(insert.Config{
			WriteSettle: cfg.Insert.WriteSettle(),
			KeyGap:      cfg.Insert.KeyGap(),
			PasteSettle: cfg.Insert.PasteSettle(),
		})
		if err != nil {
			a.alertFatal("UInput setup failed: " + notify.Clip(err.Error(), 200))
			return nil, fmt.Errorf("app: %w", err)
		}
		a.inserter = paster
	}
	a.closers = append(a.closers, a.inserter.Close)

	// ── 4. Audio engine ──────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 5. Transcription providers ───────────────────────────────────────
	if err := a.initProviders(providers); err != nil {
		return nil, fmt.Errorf("app: init transcription providers: %w", err)
	}

	// ── 6. Vocabulary corrector ──────────────────────────────────────────
	a.corrector = transcript.NewCorrector(cfg.Vocabulary)

	// ── 7. Dispatch pipeline ─────────────────────────────────────────────
	dispatcher, err := pipeline.NewDispatcher(pipeline.Deps{
		Provider:  a.chain,
		Corrector: a.corrector,
		Inserter:  a.inserter,
		Notifier:  a.notifier,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create dispatcher: %w", err)
	}
	a.dispatcher = dispatcher

	// ── 8. Recording controller ──────────────────────────────────────────
	chord, err := cfg.Hotkey.Chord()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.chord = chord
	controller, err := record.NewController(
		record.Config{
			Chord:       chord,
			SampleRate:  cfg.Audio.SampleRate,
			MinDuration: cfg.Recording.MinDuration(),
		},
		record.Deps{
			Capture:  a.capture,
			Cues:     a.cues,
			Notifier: a.notifier,
			Dispatch: a.dispatcher,
			Metrics:  a.metrics,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("app: create controller: %w", err)
	}
	a.controller = controller

	// ── 9. Debug listener ────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		a.server = a.buildServer()
	}

	// ── 10. Config watcher ───────────────────────────────────────────────
	if a.cfgPath != "" {
		w, err := config.NewWatcher(a.cfgPath, a.applyReload)
		if err != nil {
			// A missing or unreadable file is not fatal; the daemon just
			// runs with the config it already has.
			slog.Warn("config reload disabled", "path", a.cfgPath, "error", err)
		} else {
			a.watcher = w
			a.closers = append(a.closers, func() error {
				w.Stop()
				return nil
			})
		}
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initKeyboard opens the configured evdev device, or scans for the first one
// that looks like a keyboard.
func (a *App) initKeyboard() error {
	if a.keys != nil {
		return nil
	}
	var (
		dev *keyboard.Device
		err error
	)
	if a.cfg.Keyboard.Device != "" {
		dev, err = keyboard.Open(a.cfg.Keyboard.Device)
	} else {
		dev, err = keyboard.Discover()
	}
	if err != nil {
		return err
	}
	a.keys = dev
	return nil
}

// initAudio starts the PortAudio host and creates the capture stream and
// tone player from it. Skipped entirely when both are injected, so tests
// never touch the sound card.
func (a *App) initAudio() error {
	if a.capture != nil && a.cues != nil {
		return nil
	}
	engine, err := audio.NewEngine()
	if err != nil {
		return err
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	if name, err := engine.InputDeviceName(); err != nil {
		slog.Warn("no default input device", "error", err)
	} else {
		slog.Info("using input device", "name", name)
	}

	if a.capture == nil {
		a.capture = engine.NewCapture(audio.CaptureConfig{
			SampleRate: a.cfg.Audio.SampleRate,
		})
	}
	if a.cues == nil {
		a.cues = engine.NewTonePlayer(audio.ToneConfig{
			SampleRate: a.cfg.Audio.SampleRate,
			StartHz:    a.cfg.Audio.Tone.StartHz,
			StopHz:     a.cfg.Audio.Tone.StopHz,
			Duration:   a.cfg.Audio.Tone.Duration(),
			Volume:     a.cfg.Audio.Tone.Volume,
		})
	}
	return nil
}

// initProviders builds the failover chain: the primary backend first, then
// each configured fallback, every one behind its own circuit breaker.
func (a *App) initProviders(reg *config.Registry) error {
	primary, err := reg.CreateSTT(a.cfg.STT.Provider, a.cfg.STT)
	if err != nil {
		return err
	}
	chain := resilience.NewChain(primary, a.cfg.STT.Provider, resilience.ChainConfig{})
	for _, name := range a.cfg.STT.Fallback {
		p, err := reg.CreateSTT(name, a.cfg.STT)
		if err != nil {
			return fmt.Errorf("fallback %q: %w", name, err)
		}
		chain.AddFallback(name, p)
	}
	a.chain = chain
	slog.Info("transcription chain ready",
		"primary", a.cfg.STT.Provider,
		"fallbacks", a.cfg.STT.Fallback,
		"model", a.cfg.STT.Model,
	)
	return nil
}

// buildServer assembles the optional metrics and health listener.
func (a *App) buildServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := []health.Checker{
		{Name: "keyboard", Check: a.keys.Check},
		health.ProviderChecker(a.chain.Status),
	}
	if a.engine != nil {
		checkers = append(checkers, health.Checker{
			Name: "audio",
			Check: func(context.Context) error {
				_, err := a.engine.InputDeviceName()
				return err
			},
		})
	}
	health.New(checkers...).Register(mux)

	return &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// alertFatal posts a startup failure notification and waits for delivery,
// because the process exits right after and would otherwise kill the
// delivery goroutine. Honours the notification enable switch.
func (a *App) alertFatal(body string) {
	if !a.cfg.Notify.IsEnabled() {
		return
	}
	notify.AlertNow(notify.ErrorTitle, body)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run posts the ready notification, starts the event loop and the optional
// debug listener, and blocks until ctx is cancelled or a subsystem fails.
// Returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	events := a.keys.Events(ctx)
	g.Go(func() error {
		return a.controller.Run(ctx, events)
	})

	if a.server != nil {
		g.Go(func() error {
			slog.Info("debug listener started", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: debug listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutCtx)
		})
	}

	slog.Info("daemon ready",
		"keyboard", a.keys.Name(),
		"chord", a.chord,
		"vocabulary_terms", len(a.cfg.Vocabulary),
	)
	a.notifier.Notify(notify.Title, fmt.Sprintf("Ready — press %s to record", a.chord))

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: the keyboard device first (unblocking
// its reader), then the virtual keyboard, then the audio host. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
//
// Transcriptions still in flight are abandoned, not awaited. A quit request
// outranks a pending network round trip, and the service-side work is lost
// either way.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Config reload ───────────────────────────────────────────────────────────

// applyReload pushes the hot-reloadable parts of an edited config into the
// running subsystems. Fields that would need a rebuild (sample rate,
// providers, listen address) are ignored until restart; the diff already
// excludes them.
func (a *App) applyReload(old, cur *config.Config) {
	d := config.Diff(old, cur)
	if !d.HasChanges() {
		slog.Info("config change needs a restart to take effect")
		return
	}
	if d.HotkeyChanged {
		a.controller.SetChord(d.NewChord)
	}
	if d.VocabularyChanged {
		a.corrector.SetTerms(d.NewVocabulary)
	}
	if d.NotifyChanged {
		a.notifier.SetEnabled(d.NotifyEnabled)
		slog.Info("notifications toggled", "enabled", d.NotifyEnabled)
	}
	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level change ignored, logger not adjustable")
		}
	}
}
