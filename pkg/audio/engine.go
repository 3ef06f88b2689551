// Package audio provides microphone capture, feedback tone playback and WAV
// encoding for the voice input daemon. Capture and playback run on PortAudio
// in blocking mode; everything the daemon records is 16-bit mono PCM.
//
// This package lives under pkg/ because the capture and WAV primitives are
// useful beyond the daemon itself (e.g. in diagnostic tooling).
package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// DefaultSampleRate is the PCM rate the rest of the daemon expects.
const DefaultSampleRate = 16000

// Engine owns the PortAudio host lifecycle. Exactly one Engine should exist
// per process; capture streams and tone players are created through it so
// they cannot outlive the host.
type Engine struct {
	closeOnce sync.Once
	closeErr  error
}

// NewEngine initializes the PortAudio host API.
func NewEngine() (*Engine, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize portaudio: %w", err)
	}
	return &Engine{}, nil
}

// Close terminates the PortAudio host. All streams must be stopped first.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if err := portaudio.Terminate(); err != nil {
			e.closeErr = fmt.Errorf("audio: terminate portaudio: %w", err)
		}
	})
	return e.closeErr
}

// InputDeviceName reports the default capture device, for startup logging.
func (e *Engine) InputDeviceName() (string, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return "", fmt.Errorf("audio: default input device: %w", err)
	}
	return info.Name, nil
}
