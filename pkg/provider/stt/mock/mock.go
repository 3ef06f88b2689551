// Package mock provides a scripted test double for the stt package.
//
// The zero value returns an empty Result from every call. Script behaviour
// through the exported fields, or set Func for per-call control:
//
//	p := &mock.Provider{Result: stt.Result{Text: "hello", Provider: "mock"}}
//	res, err := p.Transcribe(ctx, audio)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voiceinput/voiceinput/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the recording passed to Transcribe.
	Audio stt.Audio
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every successful call.
	Result stt.Result

	// Err, if non-nil, is returned by every call.
	Err error

	// Delay, if set, is waited before returning. The wait aborts with
	// ctx.Err() if the context ends first, which lets tests exercise slow
	// backends and cancellation.
	Delay time.Duration

	// Func, if non-nil, replaces the scripted behaviour entirely. Delay is
	// still applied first.
	Func func(ctx context.Context, audio stt.Audio) (stt.Result, error)

	// Calls records every invocation.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: audio})
	res, err, delay, fn := p.Result, p.Err, p.Delay, p.Func
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fn != nil {
		return fn(ctx, audio)
	}
	if err != nil {
		return stt.Result{}, err
	}
	return res, nil
}

// CallCount returns how many times Transcribe has been invoked. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
