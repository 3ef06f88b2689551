// Package record owns the press-to-toggle recording state machine. A
// Controller consumes raw key events, tracks the hotkey chord through a
// [hotkey.Detector], and on each activation either starts capturing
// microphone audio or stops and hands the finished take to a dispatcher.
package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voiceinput/voiceinput/pkg/audio"
)

// ErrTooShort is returned by a take whose captured audio is below the
// configured minimum duration. Zero captured frames count as too short.
var ErrTooShort = fmt.Errorf("recording too short")

// State is the controller's recording state.
type State int32

const (
	StateIdle State = iota
	StateRecording
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Recording is a finished, accepted take ready for transcription.
type Recording struct {
	// ID identifies the take across log lines and temp artifacts.
	ID uuid.UUID

	// PCM holds the captured samples: mono, signed 16-bit.
	PCM []int16

	// SampleRate is the rate PCM was captured (or resampled) at.
	SampleRate int

	// Duration is derived from the sample count, not wall clock, so a
	// stalled capture device cannot smuggle silence past the length gate.
	Duration time.Duration

	// StartedAt is when capture began.
	StartedAt time.Time
}

// take accumulates samples for an in-progress recording. append runs on the
// capture goroutine; finish must only be called after the capture's Stop has
// returned, which is the barrier guaranteeing no further append calls.
type take struct {
	id         uuid.UUID
	startedAt  time.Time
	sampleRate int
	pcm        []int16
}

func newTake(sampleRate int) *take {
	return &take{
		id:         uuid.New(),
		startedAt:  time.Now(),
		sampleRate: sampleRate,
	}
}

// append accumulates a chunk of captured samples. The chunk's backing array
// is owned by the capture and reused, so the values are copied out here.
func (t *take) append(chunk []int16) {
	t.pcm = append(t.pcm, chunk...)
}

// finish seals the take. It returns ErrTooShort (wrapped) when nothing was
// captured or the audio is shorter than min.
func (t *take) finish(min time.Duration) (Recording, error) {
	if len(t.pcm) == 0 {
		return Recording{}, fmt.Errorf("%w: no frames captured", ErrTooShort)
	}
	d := audio.Duration(len(t.pcm), t.sampleRate)
	if d < min {
		return Recording{}, fmt.Errorf("%w: %v is below the %v minimum", ErrTooShort, d, min)
	}
	return Recording{
		ID:         t.id,
		PCM:        t.pcm,
		SampleRate: t.sampleRate,
		Duration:   d,
		StartedAt:  t.startedAt,
	}, nil
}
