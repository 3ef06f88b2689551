package record

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voiceinput/voiceinput/internal/hotkey"
	"github.com/voiceinput/voiceinput/internal/notify"
	"github.com/voiceinput/voiceinput/internal/observe"
	"github.com/voiceinput/voiceinput/pkg/audio"
)

// Capture produces microphone samples. Start must deliver chunks to onChunk
// from a single goroutine; Stop must not return until the last chunk has been
// delivered.
type Capture interface {
	Start(onChunk func([]int16)) error
	Stop() error
}

// Cues plays the audible start/stop feedback. Implementations must not block
// the caller.
type Cues interface {
	StartCue()
	StopCue()
}

// Dispatcher receives accepted recordings for transcription. Dispatch must
// return immediately; the controller's event loop cannot wait on network
// round trips.
type Dispatcher interface {
	Dispatch(rec Recording)
}

// nopCues silences the audible feedback.
type nopCues struct{}

func (nopCues) StartCue() {}
func (nopCues) StopCue()  {}

// Config holds the controller's tunables.
type Config struct {
	// Chord toggles recording. Zero value means the default Super+Shift+V.
	Chord hotkey.Chord

	// SampleRate of the captured audio in Hz. Default 16000.
	SampleRate int

	// MinDuration rejects accidental taps: takes shorter than this are
	// discarded. Default 500ms.
	MinDuration time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Chord.Primary) == 0 && len(c.Chord.Secondary) == 0 && c.Chord.Trigger == 0 {
		c.Chord = hotkey.DefaultChord()
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.MinDuration <= 0 {
		c.MinDuration = 500 * time.Millisecond
	}
	return c
}

// Deps are the controller's collaborators. Capture and Dispatch are
// required; Cues, Notifier and Metrics fall back to no-op or default
// instances.
type Deps struct {
	Capture  Capture
	Cues     Cues
	Notifier notify.Notifier
	Dispatch Dispatcher
	Metrics  *observe.Metrics
}

// Controller runs the recording state machine. All state transitions happen
// on the goroutine that calls Run; SetChord is the only method safe to call
// from elsewhere.
type Controller struct {
	cfg  Config
	deps Deps

	detector *hotkey.Detector
	level    bool
	state    atomic.Int32
	take     *take

	chordCh chan hotkey.Chord
}

// NewController validates deps and returns an idle controller.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Capture == nil {
		return nil, errors.New("record: capture is required")
	}
	if deps.Dispatch == nil {
		return nil, errors.New("record: dispatcher is required")
	}
	if deps.Cues == nil {
		deps.Cues = nopCues{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		detector: hotkey.NewDetector(cfg.Chord),
		chordCh:  make(chan hotkey.Chord, 1),
	}, nil
}

// Run consumes key events until ctx is cancelled or the event stream closes.
// On shutdown an in-progress capture is stopped and its audio discarded;
// nothing is dispatched.
func (c *Controller) Run(ctx context.Context, events <-chan hotkey.Event) error {
	slog.Info("hotkey loop started", "chord", c.detector.Chord())
	for {
		select {
		case <-ctx.Done():
			c.abort()
			return nil
		case chord := <-c.chordCh:
			c.detector.SetChord(chord)
			slog.Info("hotkey chord updated", "chord", chord)
		case ev, ok := <-events:
			if !ok {
				c.abort()
				return errors.New("record: key event stream closed")
			}
			c.HandleKey(ev)
		}
	}
}

// HandleKey feeds one key event through the detector and toggles recording
// on each rising edge of the chord level. The edge re-arms only after the
// chord has fully released, so holding the keys (and the resulting
// auto-repeat) fires exactly once.
func (c *Controller) HandleKey(ev hotkey.Event) {
	level := c.detector.Update(ev)
	rising := level && !c.level
	c.level = level
	if !rising {
		return
	}
	if c.State() == StateRecording {
		c.stop()
	} else {
		c.start()
	}
}

// SetChord hands a new chord to the event loop. A pending unapplied chord is
// replaced rather than queued, so rapid config reloads settle on the latest.
func (c *Controller) SetChord(chord hotkey.Chord) {
	for {
		select {
		case c.chordCh <- chord:
			return
		case <-c.chordCh:
		}
	}
}

// State reports the current recording state. Safe for concurrent use.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Controller) start() {
	t := newTake(c.cfg.SampleRate)
	if err := c.deps.Capture.Start(t.append); err != nil {
		slog.Error("failed to start capture", "error", err)
		c.deps.Notifier.Alert(notify.ErrorTitle, notify.Clip(err.Error(), 200))
		c.deps.Metrics.RecordRecording(context.Background(), "error", 0)
		return
	}
	c.take = t
	c.setState(StateRecording)
	c.deps.Cues.StartCue()
	slog.Info("recording started", "id", t.id)
	c.deps.Notifier.Notify(notify.Title, "Recording...")
}

func (c *Controller) stop() {
	if err := c.deps.Capture.Stop(); err != nil {
		slog.Warn("failed to stop capture", "error", err)
	}
	c.deps.Cues.StopCue()
	c.setState(StateIdle)

	t := c.take
	c.take = nil
	rec, err := t.finish(c.cfg.MinDuration)
	if err != nil {
		slog.Info("recording discarded", "id", t.id, "reason", err)
		c.deps.Notifier.Notify(notify.Title, "Too short — cancelled")
		c.deps.Metrics.RecordRecording(context.Background(), "too_short", 0)
		return
	}
	slog.Info("recording finished",
		"id", rec.ID,
		"duration", rec.Duration,
		"samples", len(rec.PCM),
	)
	c.deps.Metrics.RecordRecording(context.Background(), "ok", rec.Duration.Seconds())
	c.deps.Dispatch.Dispatch(rec)
}

// abort stops an in-progress capture without dispatching. Used on shutdown.
func (c *Controller) abort() {
	if c.State() != StateRecording {
		return
	}
	if err := c.deps.Capture.Stop(); err != nil {
		slog.Warn("failed to stop capture during shutdown", "error", err)
	}
	c.setState(StateIdle)
	if c.take != nil {
		slog.Info("recording abandoned at shutdown",
			"id", c.take.id,
			"samples", len(c.take.pcm),
		)
		c.take = nil
	}
}
