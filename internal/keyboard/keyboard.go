// Package keyboard finds the physical keyboard among the system's input
// devices and turns its raw evdev stream into hotkey events.
package keyboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/holoplot/go-evdev"

	"github.com/voiceinput/voiceinput/internal/hotkey"
)

// ErrNoKeyboard is returned by Discover when no input device looks like a
// keyboard. Usually the process is missing 'input' group membership.
var ErrNoKeyboard = errors.New("keyboard: no suitable input device found")

// Device is an opened evdev keyboard.
type Device struct {
	dev  *evdev.InputDevice
	path string
	name string

	closeOnce sync.Once
	closeErr  error
}

// Discover scans the input devices and opens the first one that exposes the
// full letter range. Touchpads, power buttons and similar devices advertise
// EV_KEY but not letter keys, so requiring both A and Z filters them out.
func Discover() (*Device, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("keyboard: failed to list input devices: %w", err)
	}
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			slog.Debug("skipping input device", "path", p.Path, "error", err)
			continue
		}
		if hasTypingKeys(dev.CapableEvents(evdev.EV_KEY)) {
			slog.Info("using keyboard", "name", p.Name, "path", p.Path)
			return &Device{dev: dev, path: p.Path, name: p.Name}, nil
		}
		_ = dev.Close()
	}
	return nil, ErrNoKeyboard
}

// Open opens an explicitly configured device path, bypassing discovery. The
// device is accepted even if it does not advertise letter keys, since the
// operator asked for it by name.
func Open(path string) (*Device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keyboard: failed to open %s: %w", path, err)
	}
	name, err := dev.Name()
	if err != nil {
		name = path
	}
	if !hasTypingKeys(dev.CapableEvents(evdev.EV_KEY)) {
		slog.Warn("configured device does not advertise letter keys", "path", path, "name", name)
	}
	slog.Info("using keyboard", "name", name, "path", path)
	return &Device{dev: dev, path: path, name: name}, nil
}

// hasTypingKeys reports whether the advertised key codes span the letter
// range.
func hasTypingKeys(codes []evdev.EvCode) bool {
	var hasA, hasZ bool
	for _, c := range codes {
		switch c {
		case evdev.KEY_A:
			hasA = true
		case evdev.KEY_Z:
			hasZ = true
		}
	}
	return hasA && hasZ
}

// toEvent translates a raw evdev event. Non-key events (sync reports, LED
// state, misc) are dropped.
func toEvent(ev *evdev.InputEvent) (hotkey.Event, bool) {
	if ev.Type != evdev.EV_KEY {
		return hotkey.Event{}, false
	}
	return hotkey.Event{
		Key:   hotkey.Key(ev.Code),
		State: hotkey.KeyState(ev.Value),
	}, true
}

// Events starts a reader goroutine and returns its channel. The channel
// closes when the device read fails, which includes the device being closed;
// cancelling ctx alone does not unblock a pending read, so shutdown must
// also call Close.
func (d *Device) Events(ctx context.Context) <-chan hotkey.Event {
	out := make(chan hotkey.Event, 64)
	go func() {
		defer close(out)
		for {
			raw, err := d.dev.ReadOne()
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("keyboard read failed", "device", d.path, "error", err)
				}
				return
			}
			ev, ok := toEvent(raw)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Check reports whether the device node still exists. Used by the readiness
// probe to notice an unplugged keyboard.
func (d *Device) Check(ctx context.Context) error {
	if _, err := os.Stat(d.path); err != nil {
		return fmt.Errorf("keyboard: device %s unavailable: %w", d.path, err)
	}
	return nil
}

// Close releases the device, unblocking any pending read.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.dev.Close()
	})
	return d.closeErr
}

// Name returns the device's human-readable name.
func (d *Device) Name() string { return d.name }

// Path returns the device node path.
func (d *Device) Path() string { return d.path }
