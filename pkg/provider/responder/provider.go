// Package responder defines the Provider interface for emotion-conditioned
// reply generation.
//
// A responder receives one [Turn] — the transcript of what the user said plus
// the emotion label inferred from how they said it — and obtains a
// natural-language reply from an external language model. Prompt construction
// is deterministic and shared across all backends via [Prompt], so every
// implementation sends the model the same instruction for the same turn.
//
// Implementations perform exactly one upstream call per Generate invocation
// and never retry internally; retry and fallback policy belongs to the
// caller. Implementations must be safe for concurrent use.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned by Generate when the turn's transcript is blank.
// A reply cannot be conditioned on nothing; the caller should have
// short-circuited before reaching generation.
var ErrEmptyInput = errors.New("responder: no text provided")

// UpstreamError describes a failed or malformed response from the external
// language-model service. Detail is a short human-readable diagnostic suitable
// for surfacing to the caller.
type UpstreamError struct {
	// Provider names the backend (e.g., "cohere", "openai").
	Provider string

	// Detail describes what went wrong.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("responder: %s: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("responder: %s: %s", e.Provider, e.Detail)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Turn pairs a transcript with the emotion inferred from the same utterance.
// Both fields are required.
type Turn struct {
	// Text is the verbatim transcript of what the user said.
	Text string

	// Emotion is the inferred emotion label (may be "unknown", which is
	// passed through literally and produces a degraded but valid reply).
	Emotion string
}

// Prompt builds the single natural-language instruction sent upstream: the
// user's emotional state first, then their verbatim words. Every backend uses
// this builder so replies are comparable across providers.
func Prompt(turn Turn) string {
	return fmt.Sprintf("User is feeling %s. They said: %s", turn.Emotion, turn.Text)
}

// Validate reports whether the turn can be generated from. A blank transcript
// yields [ErrEmptyInput].
func Validate(turn Turn) error {
	if strings.TrimSpace(turn.Text) == "" {
		return ErrEmptyInput
	}
	return nil
}

// Provider is the abstraction over any reply-generation backend.
type Provider interface {
	// Generate obtains a reply for the turn, blocking until the upstream
	// call completes or ctx expires. Deadline expiry surfaces as an
	// [*UpstreamError].
	Generate(ctx context.Context, turn Turn) (string, error)
}
