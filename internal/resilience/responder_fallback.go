package resilience

import (
	"context"

	"github.com/voxsense/voxsense/pkg/provider/responder"
)

// ResponderFallback implements [responder.Provider] with automatic failover
// across multiple reply backends. Each backend has its own circuit breaker.
//
// [responder.ErrEmptyInput] never triggers failover: the turn itself is
// invalid and every backend would reject it the same way.
type ResponderFallback struct {
	group *FallbackGroup[responder.Provider]
}

// Compile-time interface assertion.
var _ responder.Provider = (*ResponderFallback)(nil)

// NewResponderFallback creates a [ResponderFallback] with primary as the
// preferred backend.
func NewResponderFallback(primary responder.Provider, primaryName string, cfg FallbackConfig) *ResponderFallback {
	return &ResponderFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional reply provider as a fallback.
func (f *ResponderFallback) AddFallback(name string, provider responder.Provider) {
	f.group.AddFallback(name, provider)
}

// Generate runs the turn against the first healthy provider.
func (f *ResponderFallback) Generate(ctx context.Context, turn responder.Turn) (string, error) {
	if err := responder.Validate(turn); err != nil {
		return "", err
	}
	return ExecuteWithResult(f.group, func(p responder.Provider) (string, error) {
		return p.Generate(ctx, turn)
	})
}
