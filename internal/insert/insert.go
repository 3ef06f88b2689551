// Package insert types transcribed text into the focused window. It works by
// staging the text on the clipboard and injecting a Ctrl+V chord through a
// virtual uinput keyboard, then restoring the previous clipboard contents.
// This survives compositors where synthetic per-character key events do not.
package insert

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/atotto/clipboard"
	"github.com/bendahl/uinput"
)

// DeviceName is the name the virtual keyboard registers under; it shows up
// in the input device list next to the real keyboard.
const DeviceName = "voice-input-kbd"

const uinputPath = "/dev/uinput"

// Inserter types text into the focused window.
type Inserter interface {
	Insert(text string) error
	Close() error
}

// Clipboard reads and writes the session clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// VirtualKeyboard presses and releases keys on an injected input device.
// [uinput.Keyboard] satisfies it.
type VirtualKeyboard interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

// systemClipboard is the live session clipboard.
type systemClipboard struct{}

func (systemClipboard) Read() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) Write(text string) error { return clipboard.WriteAll(text) }

// Config holds the settle delays around the paste. The defaults are tuned
// for mainstream desktop environments; too short and the focused app pastes
// the old clipboard or misses the chord entirely.
type Config struct {
	// WriteSettle is the pause between staging text on the clipboard and
	// pressing paste. Default 50ms.
	WriteSettle time.Duration

	// KeyGap is the hold time between pressing and releasing the paste
	// chord. Default 40ms.
	KeyGap time.Duration

	// PasteSettle is the pause after the chord before the clipboard is
	// restored, giving the focused app time to read it. Default 150ms.
	PasteSettle time.Duration
}

func (c Config) withDefaults() Config {
	if c.WriteSettle <= 0 {
		c.WriteSettle = 50 * time.Millisecond
	}
	if c.KeyGap <= 0 {
		c.KeyGap = 40 * time.Millisecond
	}
	if c.PasteSettle <= 0 {
		c.PasteSettle = 150 * time.Millisecond
	}
	return c
}

// Option overrides a Paster collaborator, mainly for tests.
type Option func(*Paster)

// WithVirtualKeyboard substitutes the uinput keyboard.
func WithVirtualKeyboard(k VirtualKeyboard) Option {
	return func(p *Paster) { p.kbd = k }
}

// WithClipboard substitutes the session clipboard.
func WithClipboard(c Clipboard) Option {
	return func(p *Paster) { p.clip = c }
}

// Paster implements Inserter over a clipboard and a virtual keyboard.
type Paster struct {
	cfg  Config
	kbd  VirtualKeyboard
	clip Clipboard
}

// New creates a Paster. Unless overridden it registers a uinput keyboard,
// which requires write access to /dev/uinput.
func New(cfg Config, opts ...Option) (*Paster, error) {
	p := &Paster{
		cfg:  cfg.withDefaults(),
		clip: systemClipboard{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.kbd == nil {
		kbd, err := uinput.CreateKeyboard(uinputPath, []byte(DeviceName))
		if err != nil {
			return nil, fmt.Errorf("insert: failed to create virtual keyboard: %w", err)
		}
		p.kbd = kbd
	}
	return p, nil
}

// Insert stages text on the clipboard, pastes it into the focused window,
// and restores the previous clipboard contents. If the previous contents
// could not be read the restore is skipped rather than clobbering the
// clipboard with a guess; a failed restore is logged but does not fail the
// insertion, since the text has already landed.
func (p *Paster) Insert(text string) error {
	previous, readErr := p.clip.Read()
	if readErr != nil {
		slog.Warn("could not read clipboard, previous contents will not be restored",
			"error", readErr)
	}

	if err := p.clip.Write(text); err != nil {
		return fmt.Errorf("insert: failed to stage text on clipboard: %w", err)
	}
	time.Sleep(p.cfg.WriteSettle)

	if err := p.pasteChord(); err != nil {
		return err
	}
	time.Sleep(p.cfg.PasteSettle)

	if readErr == nil {
		if err := p.clip.Write(previous); err != nil {
			slog.Warn("failed to restore clipboard", "error", err)
		}
	}
	return nil
}

// pasteChord presses and releases Ctrl+V. A stuck modifier would corrupt
// every subsequent real keystroke, so Ctrl is released even when the V press
// fails.
func (p *Paster) pasteChord() error {
	if err := p.kbd.KeyDown(uinput.KeyLeftctrl); err != nil {
		return fmt.Errorf("insert: ctrl press failed: %w", err)
	}
	if err := p.kbd.KeyDown(uinput.KeyV); err != nil {
		_ = p.kbd.KeyUp(uinput.KeyLeftctrl)
		return fmt.Errorf("insert: v press failed: %w", err)
	}
	time.Sleep(p.cfg.KeyGap)
	if err := p.kbd.KeyUp(uinput.KeyV); err != nil {
		_ = p.kbd.KeyUp(uinput.KeyLeftctrl)
		return fmt.Errorf("insert: v release failed: %w", err)
	}
	if err := p.kbd.KeyUp(uinput.KeyLeftctrl); err != nil {
		return fmt.Errorf("insert: ctrl release failed: %w", err)
	}
	return nil
}

// Close removes the virtual keyboard device.
func (p *Paster) Close() error {
	return p.kbd.Close()
}

var _ Inserter = (*Paster)(nil)
