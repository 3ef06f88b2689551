package keyboard

import (
	"testing"

	"github.com/holoplot/go-evdev"

	"github.com/voiceinput/voiceinput/internal/hotkey"
)

func TestHasTypingKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		codes []evdev.EvCode
		want  bool
	}{
		{"full keyboard", []evdev.EvCode{evdev.KEY_A, evdev.KEY_B, evdev.KEY_Z}, true},
		{"power button", []evdev.EvCode{evdev.KEY_POWER}, false},
		{"only a", []evdev.EvCode{evdev.KEY_A}, false},
		{"only z", []evdev.EvCode{evdev.KEY_Z}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := hasTypingKeys(tt.codes); got != tt.want {
				t.Errorf("hasTypingKeys = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToEvent(t *testing.T) {
	t.Parallel()

	ev, ok := toEvent(&evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_V, Value: 1})
	if !ok {
		t.Fatal("key event dropped")
	}
	want := hotkey.Event{Key: hotkey.KeyV, State: hotkey.KeyDown}
	if ev != want {
		t.Errorf("toEvent = %+v, want %+v", ev, want)
	}

	if _, ok := toEvent(&evdev.InputEvent{Type: evdev.EV_SYN}); ok {
		t.Error("sync event was not dropped")
	}
	if _, ok := toEvent(&evdev.InputEvent{Type: evdev.EV_LED}); ok {
		t.Error("led event was not dropped")
	}
}
