// Package stt defines the Provider interface for batch Speech-to-Text backends.
//
// A provider accepts one complete utterance and returns its transcript in a
// single call. Three outcomes are distinguished: transcribed text, audio the
// service parsed but could not resolve into words ([ErrUnintelligible], not
// worth retrying), and an unreachable or failing service
// ([ErrServiceUnavailable], retriable by the caller). Providers perform
// exactly one upstream call per invocation and never retry internally —
// retry and fallback policy belongs to the caller.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrUnintelligible indicates the recognition service understood the audio
// stream but could not resolve any words. Retrying the same audio will not
// help.
var ErrUnintelligible = errors.New("stt: speech unintelligible")

// ErrServiceUnavailable indicates a transport-level failure: the service was
// unreachable, timed out, or returned a server error. The caller may retry.
var ErrServiceUnavailable = errors.New("stt: service unavailable")

// Request carries one complete utterance to transcribe.
type Request struct {
	// Audio is the raw audio byte stream as uploaded (a WAV container).
	Audio []byte

	// SampleRate is the declared sample rate in Hz. Zero lets the provider
	// derive it from the container.
	SampleRate int

	// Channels is the declared channel count. Zero lets the provider derive
	// it from the container.
	Channels int

	// Language is the BCP-47 language hint (e.g., "en"). Empty means use the
	// provider default or auto-detect.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe submits one utterance and blocks until text is available or
	// the context expires. A deadline expiry maps to [ErrServiceUnavailable].
	Transcribe(ctx context.Context, req Request) (string, error)
}
