package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// CaptureConfig holds the parameters for a microphone capture stream.
type CaptureConfig struct {
	// SampleRate of the PCM delivered to callbacks, in Hz.
	SampleRate int

	// FramesPerBuffer is the PortAudio read size. Smaller values lower the
	// stop latency at the cost of more wakeups.
	FramesPerBuffer int
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = 1024
	}
	return c
}

// Capture records mono 16-bit PCM from the default input device. One stream
// runs at a time; Start while running is an error. Start and Stop must be
// called from the same goroutine.
//
// If the device refuses the requested rate, the stream is opened at the
// device's native rate and chunks are downsampled before delivery, so
// callbacks always observe CaptureConfig.SampleRate.
type Capture struct {
	cfg     CaptureConfig
	running bool
	stop    chan struct{}
	done    chan error
}

// NewCapture creates an idle capture bound to the engine's host API.
func (e *Engine) NewCapture(cfg CaptureConfig) *Capture {
	return &Capture{cfg: cfg.withDefaults()}
}

// Start opens the input stream and begins delivering PCM chunks to onChunk
// from the pump goroutine. The chunk slice is reused; callbacks must copy
// anything they keep.
func (c *Capture) Start(onChunk func(pcm []int16)) error {
	if c.running {
		return errors.New("audio: capture already running")
	}

	buf := make([]int16, c.cfg.FramesPerBuffer)
	srcRate := c.cfg.SampleRate
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(srcRate), len(buf), buf)
	if err != nil {
		// Some devices only open at their native rate; fall back and
		// downsample in the pump.
		info, devErr := portaudio.DefaultInputDevice()
		if devErr != nil {
			return fmt.Errorf("audio: open capture stream: %w", err)
		}
		srcRate = int(info.DefaultSampleRate)
		if srcRate == c.cfg.SampleRate {
			return fmt.Errorf("audio: open capture stream: %w", err)
		}
		stream, err = portaudio.OpenDefaultStream(1, 0, float64(srcRate), len(buf), buf)
		if err != nil {
			return fmt.Errorf("audio: open capture stream at device rate %d: %w", srcRate, err)
		}
		slog.Warn("capture falling back to device native rate",
			"device_rate", srcRate,
			"target_rate", c.cfg.SampleRate,
		)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("audio: start capture stream: %w", err)
	}

	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan error, 1)
	go c.pump(stream, buf, srcRate, onChunk)
	return nil
}

// Stop halts the stream and returns once the pump has exited, so no further
// onChunk call can happen after it returns. Stopping an idle capture is a
// no-op.
func (c *Capture) Stop() error {
	if !c.running {
		return nil
	}
	close(c.stop)
	err := <-c.done
	c.running = false
	return err
}

// pump owns the stream from start to close. It reads full buffers, hands
// copies to onChunk and shuts the stream down when stop is signalled.
func (c *Capture) pump(stream *portaudio.Stream, buf []int16, srcRate int, onChunk func([]int16)) {
	for {
		select {
		case <-c.stop:
			err := stream.Stop()
			if closeErr := stream.Close(); err == nil {
				err = closeErr
			}
			c.done <- err
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// Overruns lose audio but never kill the take.
				slog.Warn("capture input overflow")
				continue
			}
			slog.Error("capture read failed", "error", err)
			continue
		}

		chunk := buf
		if srcRate != c.cfg.SampleRate {
			chunk = ResampleMono(chunk, srcRate, c.cfg.SampleRate)
		}
		onChunk(chunk)
	}
}
