// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the voice input daemon.
//
// Configuration is a single YAML file, by default
// ~/.config/voice-input/config.yaml. Every field has a default, so the
// daemon runs with no file at all. Durations are expressed as integer
// milliseconds (yaml has no native duration type); accessor methods convert
// them to [time.Duration].
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voiceinput/voiceinput/internal/hotkey"
)

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the slog level, defaulting to info for unknown values.
func (l LogLevel) Level() slog.Level {
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

// Config is the root configuration for the daemon. It is typically loaded
// from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Hotkey     HotkeyConfig    `yaml:"hotkey"`
	Audio      AudioConfig     `yaml:"audio"`
	Recording  RecordingConfig `yaml:"recording"`
	STT        STTConfig       `yaml:"stt"`
	Vocabulary []string        `yaml:"vocabulary"`
	Insert     InsertConfig    `yaml:"insert"`
	Notify     NotifyConfig    `yaml:"notify"`
	Keyboard   KeyboardConfig  `yaml:"keyboard"`
	Server     ServerConfig    `yaml:"server"`

	// LogFile overrides the log destination. Empty means
	// ~/.local/share/voice-input/voice-input.log. A leading "~/" is expanded.
	LogFile string `yaml:"log_file"`
}

// HotkeyConfig names the keys of the activation chord. The chord is active
// while at least one primary key, at least one secondary key, and the
// trigger key are all held.
type HotkeyConfig struct {
	// Trigger is the final key of the chord, e.g. "v".
	Trigger string `yaml:"trigger"`

	// Primary lists the keys of which one must be held, e.g. leftmeta and
	// rightmeta for either Super key.
	Primary []string `yaml:"primary"`

	// Secondary lists the keys of which one must be held, e.g. the two
	// shift keys.
	Secondary []string `yaml:"secondary"`
}

// Chord parses the configured key names into a [hotkey.Chord].
func (h HotkeyConfig) Chord() (hotkey.Chord, error) {
	trigger, err := hotkey.ParseKey(h.Trigger)
	if err != nil {
		return hotkey.Chord{}, fmt.Errorf("hotkey.trigger: %w", err)
	}
	parse := func(field string, names []string) ([]hotkey.Key, error) {
		keys := make([]hotkey.Key, 0, len(names))
		for _, n := range names {
			k, err := hotkey.ParseKey(n)
			if err != nil {
				return nil, fmt.Errorf("hotkey.%s: %w", field, err)
			}
			keys = append(keys, k)
		}
		return keys, nil
	}
	primary, err := parse("primary", h.Primary)
	if err != nil {
		return hotkey.Chord{}, err
	}
	secondary, err := parse("secondary", h.Secondary)
	if err != nil {
		return hotkey.Chord{}, err
	}
	return hotkey.Chord{Primary: primary, Secondary: secondary, Trigger: trigger}, nil
}

// AudioConfig holds capture and cue settings.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz. The daemon records 16-bit mono.
	SampleRate int `yaml:"sample_rate"`

	// Tone configures the audible start and stop cues.
	Tone ToneConfig `yaml:"tone"`
}

// ToneConfig describes the recording cues.
type ToneConfig struct {
	// StartHz is the frequency of the recording-started blip.
	StartHz float64 `yaml:"start_hz"`

	// StopHz is the frequency of the recording-stopped blip.
	StopHz float64 `yaml:"stop_hz"`

	// DurationMS is the length of each blip in milliseconds.
	DurationMS int `yaml:"duration_ms"`

	// Volume is the cue amplitude in 0..1.
	Volume float64 `yaml:"volume"`
}

// Duration returns the cue length.
func (t ToneConfig) Duration() time.Duration {
	return time.Duration(t.DurationMS) * time.Millisecond
}

// RecordingConfig holds the acceptance gate for finished takes.
type RecordingConfig struct {
	// MinDurationMS discards takes shorter than this many milliseconds.
	// Duration is computed from the captured sample count, not wall time.
	MinDurationMS int `yaml:"min_duration_ms"`
}

// MinDuration returns the shortest acceptable take.
func (r RecordingConfig) MinDuration() time.Duration {
	return time.Duration(r.MinDurationMS) * time.Millisecond
}

// STTConfig selects and tunes the transcription backends.
type STTConfig struct {
	// Provider is the primary backend, looked up in the [Registry].
	Provider string `yaml:"provider"`

	// Model is the model identifier sent to the backend.
	Model string `yaml:"model"`

	// BaseURL overrides the backend's default endpoint. Useful for pointing
	// the whisper provider at a local server.
	BaseURL string `yaml:"base_url"`

	// Language is an optional ISO-639-1 hint passed to the backend.
	Language string `yaml:"language"`

	// Fallback lists further registered providers tried, in order, when the
	// primary fails. Each gets its own circuit breaker.
	Fallback []string `yaml:"fallback"`
}

// InsertConfig tunes the clipboard-paste text insertion timing.
type InsertConfig struct {
	// WriteSettleMS is the pause between writing the clipboard and pressing
	// the paste chord, giving the clipboard manager time to settle.
	WriteSettleMS int `yaml:"write_settle_ms"`

	// KeyGapMS is how long the paste chord is held down.
	KeyGapMS int `yaml:"key_gap_ms"`

	// PasteSettleMS is the pause after the chord before the previous
	// clipboard contents are restored.
	PasteSettleMS int `yaml:"paste_settle_ms"`
}

// WriteSettle returns the clipboard settle pause.
func (i InsertConfig) WriteSettle() time.Duration {
	return time.Duration(i.WriteSettleMS) * time.Millisecond
}

// KeyGap returns the chord hold time.
func (i InsertConfig) KeyGap() time.Duration {
	return time.Duration(i.KeyGapMS) * time.Millisecond
}

// PasteSettle returns the post-paste pause.
func (i InsertConfig) PasteSettle() time.Duration {
	return time.Duration(i.PasteSettleMS) * time.Millisecond
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	// Enabled toggles desktop notifications. Omitted means enabled.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether notifications should be shown.
func (n NotifyConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// KeyboardConfig selects the input device.
type KeyboardConfig struct {
	// Device pins the daemon to a specific evdev node, e.g.
	// /dev/input/event3. Empty means scan for the first device with letter
	// keys.
	Device string `yaml:"device"`
}

// ServerConfig holds the optional debug listener settings.
type ServerConfig struct {
	// ListenAddr enables the /metrics, /healthz and /readyz endpoints on
	// this TCP address (e.g. "localhost:9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DefaultPath returns the stock config location,
// ~/.config/voice-input/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "voice-input", "config.yaml"), nil
}

// LogFilePath resolves the log destination, expanding a leading "~/" in
// LogFile and falling back to ~/.local/share/voice-input/voice-input.log.
func (c *Config) LogFilePath() (string, error) {
	if c.LogFile != "" {
		return expandHome(c.LogFile)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home: %w", err)
	}
	return filepath.Join(home, ".local", "share", "voice-input", "voice-input.log"), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
