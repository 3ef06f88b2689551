package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the provider names registered by the daemon.
// [Validate] warns about names outside this list rather than rejecting them,
// since builds may register extra providers.
var ValidSTTProviders = []string{"whisper", "openai", "deepgram"}

// Default returns a config with every field set to its stock value: the
// Super+Shift+V chord, 16 kHz capture, the 0.5 s minimum take, and the
// whisper backend.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path and returns a validated [Config] with
// defaults applied. A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no config file, using defaults", "path", path)
		return Default(), nil
	}
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

// LoadFromReader decodes a YAML config from r, fills unset fields with
// defaults, and validates the result. Unknown YAML fields are rejected so a
// typo never silently disables a setting.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields in place.
func applyDefaults(cfg *Config) {
	if cfg.Hotkey.Trigger == "" {
		cfg.Hotkey.Trigger = "v"
	}
	if len(cfg.Hotkey.Primary) == 0 {
		cfg.Hotkey.Primary = []string{"leftmeta", "rightmeta"}
	}
	if len(cfg.Hotkey.Secondary) == 0 {
		cfg.Hotkey.Secondary = []string{"leftshift", "rightshift"}
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Tone.StartHz == 0 {
		cfg.Audio.Tone.StartHz = 880
	}
	if cfg.Audio.Tone.StopHz == 0 {
		cfg.Audio.Tone.StopHz = 440
	}
	if cfg.Audio.Tone.DurationMS == 0 {
		cfg.Audio.Tone.DurationMS = 120
	}
	if cfg.Audio.Tone.Volume == 0 {
		cfg.Audio.Tone.Volume = 0.25
	}
	if cfg.Recording.MinDurationMS == 0 {
		cfg.Recording.MinDurationMS = 500
	}
	if cfg.STT.Provider == "" {
		cfg.STT.Provider = "whisper"
	}
	if cfg.STT.Model == "" {
		cfg.STT.Model = "whisper-1"
	}
	if cfg.Insert.WriteSettleMS == 0 {
		cfg.Insert.WriteSettleMS = 50
	}
	if cfg.Insert.KeyGapMS == 0 {
		cfg.Insert.KeyGapMS = 40
	}
	if cfg.Insert.PasteSettleMS == 0 {
		cfg.Insert.PasteSettleMS = 150
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
}

// Validate checks that cfg is coherent. It returns a joined error listing
// every failure found, so a broken file reports all problems at once.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if _, err := cfg.Hotkey.Chord(); err != nil {
		errs = append(errs, err)
	}

	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is below the 8000 Hz minimum", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Tone.StartHz <= 0 || cfg.Audio.Tone.StopHz <= 0 {
		errs = append(errs, fmt.Errorf("audio.tone frequencies must be positive, got start=%g stop=%g", cfg.Audio.Tone.StartHz, cfg.Audio.Tone.StopHz))
	}
	if cfg.Audio.Tone.DurationMS < 0 {
		errs = append(errs, fmt.Errorf("audio.tone.duration_ms must not be negative, got %d", cfg.Audio.Tone.DurationMS))
	}
	if cfg.Audio.Tone.Volume < 0 || cfg.Audio.Tone.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio.tone.volume %.2f is out of range [0, 1]", cfg.Audio.Tone.Volume))
	}

	if cfg.Recording.MinDurationMS < 0 {
		errs = append(errs, fmt.Errorf("recording.min_duration_ms must not be negative, got %d", cfg.Recording.MinDurationMS))
	}

	if cfg.Insert.WriteSettleMS < 0 || cfg.Insert.KeyGapMS < 0 || cfg.Insert.PasteSettleMS < 0 {
		errs = append(errs, errors.New("insert delays must not be negative"))
	}

	validateProviderName(cfg.STT.Provider)
	for _, name := range cfg.STT.Fallback {
		validateProviderName(name)
		if name == cfg.STT.Provider {
			slog.Warn("stt.fallback repeats the primary provider", "provider", name)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not in the
// [ValidSTTProviders] list.
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidSTTProviders, name) {
		return
	}
	slog.Warn("unknown stt provider name, may be a typo or a custom registration",
		"name", name,
		"known", ValidSTTProviders,
	)
}
