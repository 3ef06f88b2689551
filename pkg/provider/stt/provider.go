// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider turns one finished recording into text in a single call. The
// daemon records short utterances, a few seconds of speech at a time, so the
// contract is batch rather than streaming: the full PCM buffer goes in, the
// final transcript comes out. Providers encode the PCM into whatever
// container their service expects.
//
// Implementations must be safe for concurrent use. The daemon dispatches
// every accepted recording on its own goroutine, so a new recording may be
// transcribed while an earlier one is still in flight.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/voiceinput/voiceinput/pkg/audio"
)

// ErrMissingCredential is returned by providers that need an API key when
// none is configured. Providers detect this before any network I/O.
var ErrMissingCredential = errors.New("missing API credential")

// Audio is one finished recording: 16-bit mono PCM and its sample rate.
type Audio struct {
	PCM        []int16
	SampleRate int
}

// Duration returns the wall time the samples represent.
func (a Audio) Duration() time.Duration {
	return audio.Duration(len(a.PCM), a.SampleRate)
}

// Result is a completed transcription.
type Result struct {
	// Text is the transcript with surrounding whitespace trimmed. Empty text
	// with a nil error means the service recognised no speech.
	Text string

	// Provider names the backend that produced the text, for logs and
	// metrics.
	Provider string

	// Took is the service round-trip time.
	Took time.Duration
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts one recording to text. Implementations must honour
	// ctx cancellation and deadlines and must not retain audio.PCM after
	// returning.
	Transcribe(ctx context.Context, audio Audio) (Result, error)
}
