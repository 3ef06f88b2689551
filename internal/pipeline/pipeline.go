// Package pipeline turns accepted recordings into typed text.
//
// A [Dispatcher] runs each recording on its own goroutine through
// transcription, vocabulary correction, and insertion, so the hotkey event
// loop never waits on the network. A new recording can start while an
// earlier one is still being transcribed.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voiceinput/voiceinput/internal/notify"
	"github.com/voiceinput/voiceinput/internal/observe"
	"github.com/voiceinput/voiceinput/internal/record"
	"github.com/voiceinput/voiceinput/internal/transcript"
	"github.com/voiceinput/voiceinput/pkg/audio"
	"github.com/voiceinput/voiceinput/pkg/provider/stt"
)

// Corrector fixes known vocabulary in a transcript before insertion.
type Corrector interface {
	Correct(text string) (string, []transcript.Correction)
}

// Inserter types text into the focused window.
type Inserter interface {
	Insert(text string) error
}

// Deps are the dispatcher's collaborators. Provider and Inserter are
// required; the rest default to no-ops.
type Deps struct {
	// Provider transcribes recordings, typically a [resilience.Chain].
	Provider stt.Provider

	// Corrector applies vocabulary fixes. Nil skips the stage.
	Corrector Corrector

	// Inserter types the final text.
	Inserter Inserter

	// Notifier reports progress and errors on the desktop.
	Notifier notify.Notifier

	// Metrics records transcription and insertion outcomes.
	Metrics *observe.Metrics
}

// Dispatcher runs the transcribe-correct-insert pipeline for each accepted
// recording.
type Dispatcher struct {
	provider  stt.Provider
	corrector Corrector
	inserter  Inserter
	notifier  notify.Notifier
	metrics   *observe.Metrics

	wg sync.WaitGroup
}

var _ record.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher validates deps and returns a ready dispatcher.
func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if deps.Provider == nil {
		return nil, errors.New("pipeline: a transcription provider is required")
	}
	if deps.Inserter == nil {
		return nil, errors.New("pipeline: an inserter is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		provider:  deps.Provider,
		corrector: deps.Corrector,
		inserter:  deps.Inserter,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
	}, nil
}

// Dispatch starts processing rec on its own goroutine and returns
// immediately.
func (d *Dispatcher) Dispatch(rec record.Recording) {
	d.metrics.AddInFlight(context.Background(), 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.metrics.AddInFlight(context.Background(), -1)
		d.process(rec)
	}()
}

// Wait blocks until every dispatched recording has finished processing.
// Shutdown deliberately does not call it: tasks in flight when the daemon
// exits are abandoned, not awaited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) process(rec record.Recording) {
	// Tasks outlive the event loop on purpose, so they hang off the
	// background context rather than the daemon's run context.
	ctx := context.Background()

	d.notifier.Notify(notify.Title, "Transcribing...")

	// Keep the take on disk while it is in flight; helpful when a
	// transcription goes wrong and the audio needs replaying.
	wavPath := filepath.Join(os.TempDir(), "voiceinput-"+rec.ID.String()+".wav")
	if err := audio.WriteWAV(wavPath, rec.PCM, rec.SampleRate); err != nil {
		slog.Warn("could not write recording artifact", "path", wavPath, "error", err)
		wavPath = ""
	}
	defer func() {
		if wavPath != "" {
			if err := os.Remove(wavPath); err != nil {
				slog.Warn("could not remove recording artifact", "path", wavPath, "error", err)
			}
		}
	}()

	start := time.Now()
	res, err := d.provider.Transcribe(ctx, stt.Audio{PCM: rec.PCM, SampleRate: rec.SampleRate})
	took := time.Since(start)
	if err != nil {
		slog.Error("transcription failed",
			"recording_id", rec.ID,
			"took", took,
			"error", err)
		d.metrics.RecordTranscription(ctx, "none", "error", took.Seconds())
		d.notifier.Alert(notify.ErrorTitle, notify.Clip(err.Error(), 200))
		return
	}
	d.metrics.RecordTranscription(ctx, res.Provider, "ok", took.Seconds())

	text := res.Text
	if text == "" {
		slog.Info("no speech recognised", "recording_id", rec.ID, "provider", res.Provider)
		d.notifier.Notify(notify.Title, "Nothing recognised")
		return
	}

	if d.corrector != nil {
		corrected, corrections := d.corrector.Correct(text)
		for _, c := range corrections {
			slog.Debug("vocabulary correction",
				"from", c.Original,
				"to", c.Corrected,
				"confidence", c.Confidence)
		}
		text = corrected
	}

	if err := d.inserter.Insert(text); err != nil {
		slog.Error("text insertion failed", "recording_id", rec.ID, "error", err)
		d.metrics.RecordInsertion(ctx, "error")
		d.notifier.Alert(notify.ErrorTitle, notify.Clip(err.Error(), 200))
		return
	}
	d.metrics.RecordInsertion(ctx, "ok")

	slog.Info("text inserted",
		"recording_id", rec.ID,
		"provider", res.Provider,
		"took", took,
		"chars", len(text))
	d.notifier.Notify(notify.Title, "Typed: "+notify.Clip(text, 80))
}
