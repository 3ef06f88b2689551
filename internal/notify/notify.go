// Package notify delivers desktop notifications for recording and
// transcription events.
//
// Notifications are advisory: the daemon never waits on the notification
// service and never fails an operation because a popup could not be shown.
package notify

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gen2brain/beeep"

	"github.com/voiceinput/voiceinput/internal/observe"
)

// Titles used by every notification the daemon posts.
const (
	Title      = "Voice Input"
	ErrorTitle = "Voice Input Error"
)

// Clip shortens s to at most max runes so an oversized error or transcript
// cannot flood a notification body.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// Notifier posts desktop notifications. Implementations must not block the
// caller.
type Notifier interface {
	// Notify shows a normal-urgency notification.
	Notify(title, body string)

	// Alert shows a critical-urgency notification for errors.
	Alert(title, body string)
}

// Desktop sends notifications through the session notification service.
type Desktop struct{}

// NewDesktop returns a Notifier backed by the desktop notification service.
func NewDesktop() *Desktop {
	return &Desktop{}
}

// Notify implements Notifier. Delivery runs on its own goroutine; failures
// are logged at debug level since a headless session has no one to tell.
func (d *Desktop) Notify(title, body string) {
	go func() {
		observe.DefaultMetrics().RecordNotification(context.Background(), "normal")
		if err := beeep.Notify(title, body, ""); err != nil {
			slog.Debug("notification failed", "title", title, "error", err)
		}
	}()
}

// Alert implements Notifier with critical urgency.
func (d *Desktop) Alert(title, body string) {
	go AlertNow(title, body)
}

// AlertNow posts a critical notification and waits for delivery. Use it on
// paths that exit the process right afterwards, where the usual
// fire-and-forget delivery goroutine would be killed before the popup lands.
func AlertNow(title, body string) {
	observe.DefaultMetrics().RecordNotification(context.Background(), "critical")
	if err := beeep.Alert(title, body, ""); err != nil {
		slog.Debug("alert notification failed", "title", title, "error", err)
	}
}

// Nop discards all notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(title, body string) {}

// Alert implements Notifier.
func (Nop) Alert(title, body string) {}

// Gate wraps a Notifier with a runtime on/off switch, so a config reload can
// silence notifications without rebuilding the daemon's wiring.
type Gate struct {
	inner   Notifier
	enabled atomic.Bool
}

// NewGate wraps inner. The gate starts in the given state.
func NewGate(inner Notifier, enabled bool) *Gate {
	g := &Gate{inner: inner}
	g.enabled.Store(enabled)
	return g
}

// SetEnabled switches notification delivery on or off. Safe for concurrent
// use.
func (g *Gate) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

// Notify implements Notifier.
func (g *Gate) Notify(title, body string) {
	if g.enabled.Load() {
		g.inner.Notify(title, body)
	}
}

// Alert implements Notifier.
func (g *Gate) Alert(title, body string) {
	if g.enabled.Load() {
		g.inner.Alert(title, body)
	}
}

var (
	_ Notifier = (*Desktop)(nil)
	_ Notifier = Nop{}
	_ Notifier = (*Gate)(nil)
)
