package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ToneConfig describes the audible recording cues.
type ToneConfig struct {
	SampleRate int
	StartHz    float64
	StopHz     float64
	Duration   time.Duration
	Volume     float64 // 0..1
}

// DefaultToneConfig returns the stock cues: a high blip when recording
// starts, a low one when it stops.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{
		SampleRate: DefaultSampleRate,
		StartHz:    880,
		StopHz:     440,
		Duration:   120 * time.Millisecond,
		Volume:     0.25,
	}
}

// Sine renders a sine tone as 16-bit mono PCM. Volume is clamped to 0..1.
func Sine(freq float64, dur time.Duration, volume float64, sampleRate int) []int16 {
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	n := int(float64(sampleRate) * dur.Seconds())
	amp := volume * math.MaxInt16
	step := 2 * math.Pi * freq / float64(sampleRate)

	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(amp * math.Sin(step*float64(i)))
	}
	return pcm
}

// TonePlayer plays the recording cues on the default output device. Playback
// runs on its own goroutine so the event loop never waits on the sound card;
// failures are logged and swallowed since a missing cue is cosmetic.
type TonePlayer struct {
	cfg ToneConfig
}

// NewTonePlayer creates a player bound to the engine's host API.
func (e *Engine) NewTonePlayer(cfg ToneConfig) *TonePlayer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	return &TonePlayer{cfg: cfg}
}

// StartCue plays the recording-started tone.
func (p *TonePlayer) StartCue() { p.playAsync(p.cfg.StartHz) }

// StopCue plays the recording-stopped tone.
func (p *TonePlayer) StopCue() { p.playAsync(p.cfg.StopHz) }

func (p *TonePlayer) playAsync(freq float64) {
	go func() {
		if err := p.play(freq); err != nil {
			slog.Warn("tone playback failed", "freq_hz", freq, "error", err)
		}
	}()
}

func (p *TonePlayer) play(freq float64) error {
	pcm := Sine(freq, p.cfg.Duration, p.cfg.Volume, p.cfg.SampleRate)
	if len(pcm) == 0 {
		return nil
	}

	buf := make([]int16, 256)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.cfg.SampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("audio: open tone stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("audio: start tone stream: %w", err)
	}

	for off := 0; off < len(pcm); off += len(buf) {
		n := copy(buf, pcm[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			_ = stream.Stop()
			return fmt.Errorf("audio: write tone: %w", err)
		}
	}
	return stream.Stop()
}
