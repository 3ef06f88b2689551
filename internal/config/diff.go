package config

import (
	"slices"

	"github.com/voiceinput/voiceinput/internal/hotkey"
)

// ConfigDiff describes what changed between two configs. Only fields that
// can be applied without restarting the daemon are tracked; everything else
// (sample rate, providers, listen address) needs a restart.
type ConfigDiff struct {
	HotkeyChanged bool
	NewChord      hotkey.Chord // valid only when HotkeyChanged

	VocabularyChanged bool
	NewVocabulary     []string

	NotifyChanged bool
	NotifyEnabled bool

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// HasChanges reports whether anything reloadable differs.
func (d ConfigDiff) HasChanges() bool {
	return d.HotkeyChanged || d.VocabularyChanged || d.NotifyChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns the hot-reloadable changes.
// Both configs must already be validated; unparseable chords are skipped.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	oldChord, errOld := old.Hotkey.Chord()
	newChord, errNew := new.Hotkey.Chord()
	if errOld == nil && errNew == nil && !chordEqual(oldChord, newChord) {
		d.HotkeyChanged = true
		d.NewChord = newChord
	}

	if !slices.Equal(old.Vocabulary, new.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = new.Vocabulary
	}

	if old.Notify.IsEnabled() != new.Notify.IsEnabled() {
		d.NotifyChanged = true
		d.NotifyEnabled = new.Notify.IsEnabled()
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	return d
}

func chordEqual(a, b hotkey.Chord) bool {
	return a.Trigger == b.Trigger &&
		slices.Equal(a.Primary, b.Primary) &&
		slices.Equal(a.Secondary, b.Secondary)
}
