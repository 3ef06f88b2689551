package record_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voiceinput/voiceinput/internal/hotkey"
	"github.com/voiceinput/voiceinput/internal/record"
)

// ---- test doubles ----

// fakeCapture hands the registered chunk callback to the test. Its mutex
// mirrors the real capture's guarantee that no chunk is delivered after Stop
// returns.
type fakeCapture struct {
	mu      sync.Mutex
	onChunk func([]int16)
	starts  int
	stops   int
	failErr error
	started chan struct{}
}

func (f *fakeCapture) Start(onChunk func([]int16)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.starts++
	f.onChunk = onChunk
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.onChunk = nil
	return nil
}

// feed delivers n zero samples to the active recording, if any.
func (f *fakeCapture) feed(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onChunk == nil {
		return
	}
	f.onChunk(make([]int16, n))
}

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeCapture) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type dispatchRecorder struct {
	mu   sync.Mutex
	recs []record.Recording
}

func (d *dispatchRecorder) Dispatch(rec record.Recording) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recs = append(d.recs, rec)
}

func (d *dispatchRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.recs)
}

func (d *dispatchRecorder) last() record.Recording {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recs[len(d.recs)-1]
}

type cueRecorder struct {
	mu  sync.Mutex
	seq []string
}

func (c *cueRecorder) StartCue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = append(c.seq, "start")
}

func (c *cueRecorder) StopCue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = append(c.seq, "stop")
}

func (c *cueRecorder) sequence() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seq...)
}

type notifyRecorder struct {
	mu     sync.Mutex
	bodies []string
	alerts []string
}

func (n *notifyRecorder) Notify(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies = append(n.bodies, body)
}

func (n *notifyRecorder) Alert(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, body)
}

func (n *notifyRecorder) lastBody() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.bodies) == 0 {
		return ""
	}
	return n.bodies[len(n.bodies)-1]
}

func (n *notifyRecorder) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// ---- helpers ----

type fixture struct {
	ctrl     *record.Controller
	capture  *fakeCapture
	cues     *cueRecorder
	notifier *notifyRecorder
	dispatch *dispatchRecorder
}

func newFixture(t *testing.T, cfg record.Config) *fixture {
	t.Helper()
	f := &fixture{
		capture:  &fakeCapture{},
		cues:     &cueRecorder{},
		notifier: &notifyRecorder{},
		dispatch: &dispatchRecorder{},
	}
	ctrl, err := record.NewController(cfg, record.Deps{
		Capture:  f.capture,
		Cues:     f.cues,
		Notifier: f.notifier,
		Dispatch: f.dispatch,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	f.ctrl = ctrl
	return f
}

func pressChord(c *record.Controller) {
	for _, k := range []hotkey.Key{hotkey.KeyLeftMeta, hotkey.KeyLeftShift, hotkey.KeyV} {
		c.HandleKey(hotkey.Event{Key: k, State: hotkey.KeyDown})
	}
}

func releaseChord(c *record.Controller) {
	for _, k := range []hotkey.Key{hotkey.KeyV, hotkey.KeyLeftShift, hotkey.KeyLeftMeta} {
		c.HandleKey(hotkey.Event{Key: k, State: hotkey.KeyUp})
	}
}

// ---- tests ----

func TestController_ChordStartsRecording(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	pressChord(f.ctrl)

	if got := f.ctrl.State(); got != record.StateRecording {
		t.Fatalf("state = %v, want recording", got)
	}
	if f.capture.startCount() != 1 {
		t.Errorf("captures started = %d, want 1", f.capture.startCount())
	}
	if got := f.cues.sequence(); len(got) != 1 || got[0] != "start" {
		t.Errorf("cue sequence = %v, want [start]", got)
	}
	if got := f.notifier.lastBody(); got != "Recording..." {
		t.Errorf("notification body = %q, want %q", got, "Recording...")
	}
}

func TestController_HoldFiresOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	pressChord(f.ctrl)

	// Auto-repeat and unrelated keystrokes while the chord is held must not
	// re-trigger.
	f.ctrl.HandleKey(hotkey.Event{Key: hotkey.KeyV, State: hotkey.KeyRepeat})
	f.ctrl.HandleKey(hotkey.Event{Key: hotkey.KeyV, State: hotkey.KeyRepeat})
	f.ctrl.HandleKey(hotkey.Event{Key: hotkey.KeyA, State: hotkey.KeyDown})
	f.ctrl.HandleKey(hotkey.Event{Key: hotkey.KeyA, State: hotkey.KeyUp})

	if f.capture.startCount() != 1 {
		t.Errorf("captures started = %d, want 1", f.capture.startCount())
	}
	if got := f.ctrl.State(); got != record.StateRecording {
		t.Errorf("state = %v, want recording", got)
	}
}

func TestController_SecondActivationStops(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	pressChord(f.ctrl)
	f.capture.feed(16000) // one second at the default rate
	releaseChord(f.ctrl)
	pressChord(f.ctrl)

	if got := f.ctrl.State(); got != record.StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if f.capture.stopCount() != 1 {
		t.Errorf("captures stopped = %d, want 1", f.capture.stopCount())
	}
	if got := f.cues.sequence(); len(got) != 2 || got[1] != "stop" {
		t.Errorf("cue sequence = %v, want [start stop]", got)
	}
	if f.dispatch.count() != 1 {
		t.Fatalf("dispatched %d recordings, want 1", f.dispatch.count())
	}

	rec := f.dispatch.last()
	if len(rec.PCM) != 16000 {
		t.Errorf("dispatched %d samples, want 16000", len(rec.PCM))
	}
	if rec.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", rec.Duration)
	}
	if rec.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rec.SampleRate)
	}
}

func TestController_ShortTakeDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	pressChord(f.ctrl)
	f.capture.feed(4800) // 0.3s, below the 500ms default minimum
	releaseChord(f.ctrl)
	pressChord(f.ctrl)

	if f.dispatch.count() != 0 {
		t.Errorf("dispatched %d recordings, want 0", f.dispatch.count())
	}
	if got := f.notifier.lastBody(); got != "Too short — cancelled" {
		t.Errorf("notification body = %q, want %q", got, "Too short — cancelled")
	}
}

func TestController_ZeroFramesDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	pressChord(f.ctrl)
	releaseChord(f.ctrl)
	pressChord(f.ctrl)

	if f.dispatch.count() != 0 {
		t.Errorf("dispatched %d recordings, want 0", f.dispatch.count())
	}
	if got := f.notifier.lastBody(); got != "Too short — cancelled" {
		t.Errorf("notification body = %q, want %q", got, "Too short — cancelled")
	}
}

func TestController_CustomMinDuration(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{MinDuration: 2 * time.Second})
	pressChord(f.ctrl)
	f.capture.feed(16000) // 1s, below the raised minimum
	releaseChord(f.ctrl)
	pressChord(f.ctrl)

	if f.dispatch.count() != 0 {
		t.Errorf("dispatched %d recordings, want 0", f.dispatch.count())
	}
}

func TestController_CaptureStartFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	f.capture.failErr = errors.New("device busy")
	pressChord(f.ctrl)

	if got := f.ctrl.State(); got != record.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if f.notifier.alertCount() != 1 {
		t.Errorf("alerts = %d, want 1", f.notifier.alertCount())
	}
	if f.dispatch.count() != 0 {
		t.Errorf("dispatched %d recordings, want 0", f.dispatch.count())
	}

	// A failed start must not poison the latch: releasing and pressing again
	// retries.
	f.capture.failErr = nil
	releaseChord(f.ctrl)
	pressChord(f.ctrl)
	if got := f.ctrl.State(); got != record.StateRecording {
		t.Errorf("state after retry = %v, want recording", got)
	}
}

func TestController_NewController_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := record.NewController(record.Config{}, record.Deps{Dispatch: &dispatchRecorder{}})
	if err == nil || !strings.Contains(err.Error(), "capture") {
		t.Errorf("missing capture error = %v", err)
	}

	_, err = record.NewController(record.Config{}, record.Deps{Capture: &fakeCapture{}})
	if err == nil || !strings.Contains(err.Error(), "dispatcher") {
		t.Errorf("missing dispatcher error = %v", err)
	}
}

func TestController_Run_CancelAbandonsCapture(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan hotkey.Event)

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(ctx, events) }()

	for _, k := range []hotkey.Key{hotkey.KeyLeftMeta, hotkey.KeyLeftShift, hotkey.KeyV} {
		events <- hotkey.Event{Key: k, State: hotkey.KeyDown}
	}
	f.capture.feed(16000)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if f.capture.stopCount() != 1 {
		t.Errorf("captures stopped = %d, want 1", f.capture.stopCount())
	}
	if f.dispatch.count() != 0 {
		t.Errorf("dispatched %d recordings during shutdown, want 0", f.dispatch.count())
	}
}

func TestController_Run_EventStreamClosed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	events := make(chan hotkey.Event)
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(context.Background(), events) }()

	close(events)
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil after event stream closed, want error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after event stream closed")
	}
}

func TestController_SetChordAppliedByRunLoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, record.Config{})
	f.capture.started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan hotkey.Event)
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(ctx, events) }()

	newChord := hotkey.Chord{
		Primary:   []hotkey.Key{hotkey.KeyLeftMeta},
		Secondary: []hotkey.Key{hotkey.KeyLeftShift},
		Trigger:   hotkey.KeyZ,
	}
	f.ctrl.SetChord(newChord)

	// The loop may interleave the chord swap with key events, so retry the
	// new chord until capture starts.
	deadline := time.After(2 * time.Second)
	for {
		for _, k := range []hotkey.Key{hotkey.KeyLeftMeta, hotkey.KeyLeftShift, hotkey.KeyZ} {
			events <- hotkey.Event{Key: k, State: hotkey.KeyDown}
		}
		select {
		case <-f.capture.started:
			cancel()
			<-done
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("rebound chord never started a recording")
		}
		for _, k := range []hotkey.Key{hotkey.KeyZ, hotkey.KeyLeftShift, hotkey.KeyLeftMeta} {
			events <- hotkey.Event{Key: k, State: hotkey.KeyUp}
		}
	}
}
