package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voiceinput/voiceinput/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSTT] when no
// factory has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a transcription provider from the stt config section.
// The same section is shared by the primary and every fallback; the factory
// decides which fields apply to its backend.
type STTFactory func(cfg STTConfig) (stt.Provider, error)

// Registry maps provider names to their factories. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]STTFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{stt: make(map[string]STTFactory)}
}

// RegisterSTT registers a transcription provider factory under name.
// Registering the same name again overwrites the previous factory.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateSTT instantiates the provider registered under name. Returns
// [ErrProviderNotRegistered] when the name is unknown.
func (r *Registry) CreateSTT(name string, cfg STTConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
