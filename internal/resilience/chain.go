package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voiceinput/voiceinput/pkg/provider/stt"
)

// ErrAllFailed is returned by [Chain.Transcribe] when every provider in the
// chain fails, is unconfigured, or has an open circuit breaker. The message
// is user-facing: it ends up in the desktop notification for the failed
// dictation.
var ErrAllFailed = errors.New("transcription unavailable")

// ChainConfig configures the circuit breaker created for each provider in a
// [Chain]. The breaker Name is overwritten per entry.
type ChainConfig struct {
	Breaker BreakerConfig
}

// chainEntry pairs a provider with its dedicated breaker.
type chainEntry struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// Chain is an [stt.Provider] that fails over across multiple backends.
// Providers are tried in registration order; each has its own [Breaker] so a
// backend that keeps erroring is skipped for a cooldown period instead of
// delaying every transcription.
//
// A provider that reports [stt.ErrMissingCredential] is treated as
// unconfigured rather than unhealthy: the chain moves on without counting a
// breaker failure, so a missing API key never masks the backend's real state.
type Chain struct {
	entries []chainEntry
	cfg     ChainConfig
}

var _ stt.Provider = (*Chain)(nil)

// NewChain creates a [Chain] with primary as the preferred backend. Further
// backends are registered with [Chain.AddFallback].
func NewChain(primary stt.Provider, primaryName string, cfg ChainConfig) *Chain {
	c := &Chain{cfg: cfg}
	c.add(primaryName, primary)
	return c
}

// AddFallback appends a provider tried after all earlier entries.
func (c *Chain) AddFallback(name string, provider stt.Provider) {
	c.add(name, provider)
}

func (c *Chain) add(name string, provider stt.Provider) {
	bCfg := c.cfg.Breaker
	bCfg.Name = name
	c.entries = append(c.entries, chainEntry{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(bCfg),
	})
}

// Transcribe tries each provider in order until one succeeds. Entries with an
// open breaker are skipped. If the context ends mid-chain no further entries
// are tried. Returns [ErrAllFailed] wrapping the last error when the whole
// chain is exhausted.
func (c *Chain) Transcribe(ctx context.Context, a stt.Audio) (stt.Result, error) {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]

		var (
			res     stt.Result
			skipErr error
		)
		err := e.breaker.Execute(func() error {
			r, terr := e.provider.Transcribe(ctx, a)
			if errors.Is(terr, stt.ErrMissingCredential) {
				skipErr = terr
				return nil
			}
			res = r
			return terr
		})

		switch {
		case skipErr != nil:
			lastErr = skipErr
			slog.Warn("transcription provider not configured, trying next",
				"provider", e.name, "error", skipErr)
		case err == nil:
			if i > 0 {
				slog.Info("transcription served by fallback provider",
					"provider", e.name)
			}
			return res, nil
		case errors.Is(err, ErrBreakerOpen):
			lastErr = err
			slog.Debug("skipping transcription provider, circuit open",
				"provider", e.name)
		default:
			lastErr = err
			slog.Warn("transcription provider failed, trying next",
				"provider", e.name, "error", err)
		}

		if ctx.Err() != nil {
			break
		}
	}
	return stt.Result{}, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ProviderStatus reports one chain entry for health endpoints and logs.
type ProviderStatus struct {
	Name  string
	State State
}

// Status returns the breaker state of every provider in chain order.
func (c *Chain) Status() []ProviderStatus {
	out := make([]ProviderStatus, len(c.entries))
	for i := range c.entries {
		out[i] = ProviderStatus{
			Name:  c.entries[i].name,
			State: c.entries[i].breaker.State(),
		}
	}
	return out
}
