// Package emotion classifies speaker affect from raw audio waveforms.
//
// A [Classifier] wraps a fixed, pretrained sequence-classification model
// loaded once at process start from an [ArtifactSource] (local file or
// remote-fetch-then-cache). Given a mono waveform it extracts log-mel
// features, runs a forward pass in pure Go, and maps the arg-max logit index
// through an injected label table.
//
// The classifier is read-only after construction and safe for concurrent use:
// concurrent Classify calls share the immutable model parameters without
// locking.
package emotion

import (
	"context"
	"fmt"
	"math"

	"github.com/voxsense/voxsense/pkg/audio"
)

// ClassifyError describes a per-request classification failure (waveform too
// short, non-finite samples). It must never crash the process; callers report
// it and continue serving.
type ClassifyError struct {
	Reason string
}

func (e *ClassifyError) Error() string {
	return "emotion: classify: " + e.Reason
}

func classifyErrf(format string, args ...any) error {
	return &ClassifyError{Reason: fmt.Sprintf(format, args...)}
}

// Classifier performs emotion inference over waveforms.
type Classifier struct {
	artifact *Artifact
	labels   []Label
}

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithLabels overrides the index→label table. The table must cover every
// model output index; [New] fails otherwise. The default is [DefaultLabels].
func WithLabels(labels []Label) Option {
	return func(c *Classifier) {
		cp := make([]Label, len(labels))
		copy(cp, labels)
		c.labels = cp
	}
}

// New fetches, parses, and validates the model artifact, returning a ready
// Classifier. Any artifact problem — unreachable source, bad magic,
// incompatible shapes, or a label table smaller than the model's output
// space — is a [*LoadError] (or fetch error) and should abort startup.
func New(ctx context.Context, src ArtifactSource, opts ...Option) (*Classifier, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	artifact, err := LoadArtifact(data)
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		artifact: artifact,
		labels:   DefaultLabels(),
	}
	for _, o := range opts {
		o(c)
	}

	// The label table must be a superset of the model's output indices.
	if artifact.NumClasses > len(c.labels) {
		return nil, loadErrf("model has %d classes but only %d labels are configured",
			artifact.NumClasses, len(c.labels))
	}

	return c, nil
}

// SampleRate returns the rate (Hz) the model expects; Classify resamples
// input waveforms to this rate internally.
func (c *Classifier) SampleRate() int {
	return c.artifact.SampleRate
}

// Classify maps a mono waveform to an emotion label.
//
// The waveform is resampled to the model's rate if needed, feature-extracted,
// and pushed through the forward pass. The arg-max logit index selects the
// label; ties resolve to the lowest index. An index outside the configured
// table yields [LabelUnknown] rather than an error.
//
// Deterministic: identical samples and model weights always produce the same
// label.
func (c *Classifier) Classify(samples []float32, sampleRate int) (Label, error) {
	if len(samples) == 0 {
		return "", classifyErrf("empty waveform")
	}
	if sampleRate <= 0 {
		return "", classifyErrf("invalid sample rate %d", sampleRate)
	}
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return "", classifyErrf("non-finite sample at index %d", i)
		}
	}

	wave := audio.ResampleMono(samples, sampleRate, c.artifact.SampleRate)
	if len(wave) < minSamples(c.artifact.SampleRate) {
		return "", classifyErrf("waveform too short: %d samples after resampling, need %d",
			len(wave), minSamples(c.artifact.SampleRate))
	}

	features := extractFeatures(wave, c.artifact.SampleRate, c.artifact.NumMels)
	logits := c.artifact.forward(features)

	best := 0
	for i := 1; i < len(logits); i++ {
		// Strict greater-than keeps the lowest index on ties.
		if logits[i] > logits[best] {
			best = i
		}
	}

	return LabelFor(c.labels, best), nil
}

// LabelFor maps a predicted class index through table. An index outside the
// table resolves to [LabelUnknown] — a deliberate leniency, not a fault.
func LabelFor(table []Label, index int) Label {
	if index < 0 || index >= len(table) {
		return LabelUnknown
	}
	return table[index]
}
