// Package hotkey tracks which keys are currently held and decides whether the
// configured recording chord is active. The detector is a pure level
// predicate over a stream of raw key events; edge handling (firing once per
// press) belongs to the recording controller that consumes it.
package hotkey

import (
	"slices"
	"strings"
)

// KeyState is the value field of a Linux key event.
type KeyState int32

const (
	KeyUp     KeyState = 0
	KeyDown   KeyState = 1
	KeyRepeat KeyState = 2
)

// Event is a single key transition as read from the keyboard device.
type Event struct {
	Key   Key
	State KeyState
}

// Chord describes the key combination that toggles recording: at least one
// primary modifier down, at least one secondary modifier down, and the
// trigger key down, all simultaneously. The groups must not overlap.
type Chord struct {
	Primary   []Key
	Secondary []Key
	Trigger   Key
}

// DefaultChord is Super+Shift+V, accepting either side's modifier.
func DefaultChord() Chord {
	return Chord{
		Primary:   []Key{KeyLeftMeta, KeyRightMeta},
		Secondary: []Key{KeyLeftShift, KeyRightShift},
		Trigger:   KeyV,
	}
}

// String renders the chord the way it appears in logs and notifications,
// e.g. "Super+Shift+V" for the default chord.
func (c Chord) String() string {
	return groupLabel(c.Primary) + "+" + groupLabel(c.Secondary) + "+" + keyLabel(c.Trigger)
}

// groupLabel collapses a modifier group to a single label when both sides
// share one (leftmeta/rightmeta is just "Super").
func groupLabel(keys []Key) string {
	labels := make([]string, 0, len(keys))
	for _, k := range keys {
		if l := keyLabel(k); !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}
	return strings.Join(labels, "/")
}

func keyLabel(k Key) string {
	name := k.String()
	switch {
	case strings.HasSuffix(name, "meta"):
		return "Super"
	case strings.HasSuffix(name, "shift"):
		return "Shift"
	case strings.HasSuffix(name, "ctrl"):
		return "Ctrl"
	case strings.HasSuffix(name, "alt"):
		return "Alt"
	}
	if len(name) == 1 {
		return strings.ToUpper(name)
	}
	return name
}

// Detector owns the pressed-key set. It is not safe for concurrent use; the
// event loop goroutine is its only caller.
type Detector struct {
	chord   Chord
	pressed map[Key]struct{}
}

// NewDetector returns a detector for the given chord with no keys pressed.
func NewDetector(chord Chord) *Detector {
	return &Detector{
		chord:   chord,
		pressed: make(map[Key]struct{}, 8),
	}
}

// Update applies one key event to the pressed set and reports whether the
// chord is active afterwards. Key-up for a key that was never tracked is a
// no-op, and auto-repeat leaves the set unchanged since the key is already
// down.
func (d *Detector) Update(ev Event) bool {
	switch ev.State {
	case KeyDown:
		d.pressed[ev.Key] = struct{}{}
	case KeyUp:
		delete(d.pressed, ev.Key)
	}
	return d.Active()
}

// Active reports the current chord level without consuming an event.
func (d *Detector) Active() bool {
	if !d.anyPressed(d.chord.Primary) {
		return false
	}
	if !d.anyPressed(d.chord.Secondary) {
		return false
	}
	_, ok := d.pressed[d.chord.Trigger]
	return ok
}

// SetChord swaps the chord without touching the pressed set, so a config
// reload mid-keypress keeps tracking the physical keyboard state.
func (d *Detector) SetChord(chord Chord) {
	d.chord = chord
}

// Chord returns the chord currently in effect.
func (d *Detector) Chord() Chord {
	return d.chord
}

func (d *Detector) anyPressed(keys []Key) bool {
	for _, k := range keys {
		if _, ok := d.pressed[k]; ok {
			return true
		}
	}
	return false
}
