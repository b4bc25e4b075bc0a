// Package mock provides a scriptable stt.Provider test double.
package mock

import (
	"context"
	"sync"

	"github.com/voxsense/voxsense/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider is a scriptable STT mock. Set TranscribeFunc to control behaviour;
// the zero value returns an empty transcript and nil error. Calls are
// recorded for later inspection.
type Provider struct {
	// TranscribeFunc is invoked for every Transcribe call when non-nil.
	TranscribeFunc func(ctx context.Context, req stt.Request) (string, error)

	mu    sync.Mutex
	calls []stt.Request
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(ctx, req)
	}
	return "", nil
}

// Calls returns a copy of all recorded requests.
func (p *Provider) Calls() []stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]stt.Request, len(p.calls))
	copy(cp, p.calls)
	return cp
}
