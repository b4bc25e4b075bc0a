// Package mock provides a scriptable responder.Provider test double.
package mock

import (
	"context"
	"sync"

	"github.com/voxsense/voxsense/pkg/provider/responder"
)

// Compile-time assertion that Provider implements responder.Provider.
var _ responder.Provider = (*Provider)(nil)

// Provider is a scriptable responder mock. Set GenerateFunc to control
// behaviour; the zero value returns an empty reply and nil error. Calls are
// recorded for later inspection.
type Provider struct {
	// GenerateFunc is invoked for every Generate call when non-nil.
	GenerateFunc func(ctx context.Context, turn responder.Turn) (string, error)

	mu    sync.Mutex
	calls []responder.Turn
}

// Generate implements responder.Provider.
func (p *Provider) Generate(ctx context.Context, turn responder.Turn) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, turn)
	p.mu.Unlock()

	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, turn)
	}
	return "", nil
}

// Calls returns a copy of all recorded turns.
func (p *Provider) Calls() []responder.Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]responder.Turn, len(p.calls))
	copy(cp, p.calls)
	return cp
}
