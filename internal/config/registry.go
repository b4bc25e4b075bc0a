package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxsense/voxsense/pkg/provider/responder"
	"github.com/voxsense/voxsense/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        map[string]func(ProviderEntry) (stt.Provider, error)
	responders map[string]func(ProviderEntry) (responder.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        make(map[string]func(ProviderEntry) (stt.Provider, error)),
		responders: make(map[string]func(ProviderEntry) (responder.Provider, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterResponder registers a reply provider factory under name.
func (r *Registry) RegisterResponder(name string, factory func(ProviderEntry) (responder.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responders[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateResponder instantiates a reply provider using the factory registered
// under entry.Name.
func (r *Registry) CreateResponder(entry ProviderEntry) (responder.Provider, error) {
	r.mu.RLock()
	factory, ok := r.responders[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: responder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
