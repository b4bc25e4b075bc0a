package resilience

import (
	"context"
	"errors"

	"github.com/voxsense/voxsense/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple STT backends. Each backend has its own circuit breaker.
//
// [stt.ErrUnintelligible] never triggers failover: the audio itself carries
// no usable speech, so a different backend would not do better and the error
// must reach the caller unchanged.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the request against the first healthy provider.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	text, err := ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		text, err := p.Transcribe(ctx, req)
		if errors.Is(err, stt.ErrUnintelligible) {
			// Not a backend fault; stop the cascade here.
			return "", &terminalError{err}
		}
		return text, err
	})
	var term *terminalError
	if errors.As(err, &term) {
		return "", term.err
	}
	return text, err
}

// terminalError marks an error that must not trigger failover. It still
// counts as a failure for the wrapping entry's breaker accounting, which is
// acceptable: a backend repeatedly yielding unusable parses is suspect.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }
