// Package pipeline orchestrates one conversational turn: transcribe the
// uploaded utterance, classify the speaker's emotion from the raw waveform,
// and generate an emotion-conditioned reply.
//
// The orchestrator is a linear state machine:
//
//	Start → Transcribing → Classifying → Generating → Done
//
// with three terminal failure states — NoTranscript, ClassifyFailed, and
// GenerateFailed — reached when the corresponding stage fails. Transcription
// and classification both consume the same utterance: the transcript captures
// WHAT was said, the waveform classifier captures HOW it was said.
//
// Each outbound stage call runs under its own bounded [context.WithTimeout]
// so a stalled upstream cannot hold a request open indefinitely. A failed
// stage short-circuits the run; later stages are never invoked. Stage
// failures are returned as [*StageError] carrying the terminal state and a
// stable human-readable diagnostic.
//
// An Orchestrator holds no per-run mutable state and is safe for concurrent
// use; every Run is independent.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxsense/voxsense/internal/observe"
	"github.com/voxsense/voxsense/internal/transcript"
	"github.com/voxsense/voxsense/pkg/audio"
	"github.com/voxsense/voxsense/pkg/emotion"
	"github.com/voxsense/voxsense/pkg/provider/responder"
	"github.com/voxsense/voxsense/pkg/provider/stt"
)

// defaultStageTimeout bounds each outbound stage call when no explicit
// timeout is configured.
const defaultStageTimeout = 8 * time.Second

// State identifies a position in the pipeline state machine.
type State int

const (
	// StateStart is the initial state before any stage has run.
	StateStart State = iota

	// StateTranscribing covers the speech-to-text stage.
	StateTranscribing

	// StateClassifying covers waveform decoding and emotion classification.
	StateClassifying

	// StateGenerating covers reply generation.
	StateGenerating

	// StateDone is the successful terminal state.
	StateDone

	// StateNoTranscript is the terminal state when transcription produced no
	// usable text or the STT backend failed.
	StateNoTranscript

	// StateClassifyFailed is the terminal state when the waveform could not
	// be decoded or classified.
	StateClassifyFailed

	// StateGenerateFailed is the terminal state when the reply backend
	// failed.
	StateGenerateFailed
)

// String returns the lower-snake name of the state, used in logs and the
// pipeline outcome metric.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateTranscribing:
		return "transcribing"
	case StateClassifying:
		return "classifying"
	case StateGenerating:
		return "generating"
	case StateDone:
		return "done"
	case StateNoTranscript:
		return "no_transcript"
	case StateClassifyFailed:
		return "classify_failed"
	case StateGenerateFailed:
		return "generate_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StageError reports a stage failure together with the terminal state the
// pipeline halted in.
type StageError struct {
	// State is the terminal failure state.
	State State

	// Err is the underlying stage error.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Diagnostic returns a short human-readable description of the failure,
// stable per terminal state, suitable for an API error payload.
func (e *StageError) Diagnostic() string {
	switch e.State {
	case StateNoTranscript:
		return fmt.Sprintf("Transcription failed: %v", e.Err)
	case StateClassifyFailed:
		return fmt.Sprintf("Classification failed: %v", e.Err)
	case StateGenerateFailed:
		return fmt.Sprintf("Response generation failed: %v", e.Err)
	default:
		return e.Err.Error()
	}
}

// Transcriber is the speech-to-text capability the orchestrator depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, req stt.Request) (string, error)
}

// Classifier is the waveform emotion classification capability.
type Classifier interface {
	Classify(samples []float32, sampleRate int) (emotion.Label, error)
}

// Responder is the reply generation capability.
type Responder interface {
	Generate(ctx context.Context, turn responder.Turn) (string, error)
}

// Result is the outcome of a successful pipeline run.
type Result struct {
	// Transcript is the corrected transcript of the utterance.
	Transcript string

	// Emotion is the label inferred from the waveform. May be "unknown".
	Emotion emotion.Label

	// Reply is the generated response text.
	Reply string
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithTranscribeTimeout bounds the transcription stage. Default: 8 s.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.transcribeTimeout = d }
}

// WithGenerateTimeout bounds the generation stage. Default: 8 s.
func WithGenerateTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.generateTimeout = d }
}

// WithCorrector attaches a transcript corrector applied after transcription.
// When nil (the default), transcripts pass through unchanged.
func WithCorrector(c transcript.Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithMetrics attaches a metrics instance for stage latency and outcome
// recording. When nil (the default), nothing is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs the transcribe → classify → generate pipeline.
type Orchestrator struct {
	sttP       Transcriber
	classifier Classifier
	responderP Responder
	corrector  transcript.Corrector
	metrics    *observe.Metrics

	transcribeTimeout time.Duration
	generateTimeout   time.Duration
}

// New constructs an Orchestrator over the three stage capabilities. All
// three are required.
func New(sttP Transcriber, classifier Classifier, responderP Responder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sttP:              sttP,
		classifier:        classifier,
		responderP:        responderP,
		transcribeTimeout: defaultStageTimeout,
		generateTimeout:   defaultStageTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes one uploaded utterance (a complete WAV payload) through the
// full pipeline and returns the transcript, emotion, and reply.
//
// On failure the returned error is always a [*StageError]; the partial
// Result is nil. An "unknown" emotion is not a failure — it flows to
// generation verbatim and produces a degraded but valid reply.
func (o *Orchestrator) Run(ctx context.Context, wav []byte) (*Result, error) {
	start := time.Now()
	log := observe.Logger(ctx)

	res, err := o.run(ctx, wav, log)

	outcome := StateDone
	if err != nil {
		var se *StageError
		if stageErr, ok := err.(*StageError); ok {
			se = stageErr
		} else {
			se = &StageError{State: StateGenerateFailed, Err: err}
			err = se
		}
		outcome = se.State
	}

	if o.metrics != nil {
		o.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
		o.metrics.RecordPipelineRun(ctx, outcome.String())
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, wav []byte, log *slog.Logger) (*Result, error) {
	// --- Stage 1: transcription ---
	text, err := o.transcribe(ctx, wav)
	if err != nil {
		return nil, &StageError{State: StateNoTranscript, Err: err}
	}

	if o.corrector != nil {
		corrected := o.corrector.Correct(text)
		if len(corrected.Corrections) > 0 {
			log.Debug("transcript corrected",
				"original", text,
				"corrected", corrected.Text,
				"substitutions", len(corrected.Corrections),
			)
		}
		text = corrected.Text
	}

	// --- Stage 2: classification ---
	label, err := o.classify(ctx, wav)
	if err != nil {
		return nil, &StageError{State: StateClassifyFailed, Err: err}
	}
	if label == emotion.LabelUnknown {
		log.Debug("classifier returned unknown emotion, continuing")
	}

	// --- Stage 3: generation ---
	reply, err := o.generate(ctx, text, label)
	if err != nil {
		return nil, &StageError{State: StateGenerateFailed, Err: err}
	}

	return &Result{Transcript: text, Emotion: label, Reply: reply}, nil
}

// transcribe runs the STT stage under its timeout.
func (o *Orchestrator) transcribe(ctx context.Context, wav []byte) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.transcribeTimeout)
	defer cancel()

	start := time.Now()
	text, err := o.sttP.Transcribe(ctx, stt.Request{Audio: wav})
	if o.metrics != nil {
		o.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	return text, err
}

// classify decodes the WAV payload and runs the waveform classifier. Decode
// failures count as classification failures: the bytes reached this stage,
// so the fault lies with the payload, not the transcription.
func (o *Orchestrator) classify(ctx context.Context, wav []byte) (emotion.Label, error) {
	_, span := observe.StartSpan(ctx, "pipeline.classify")
	defer span.End()

	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return emotion.LabelUnknown, err
	}

	label, err := o.classifier.Classify(clip.Samples, clip.SampleRate)
	if err != nil {
		return emotion.LabelUnknown, err
	}
	if o.metrics != nil {
		o.metrics.RecordEmotionPrediction(ctx, string(label))
	}
	return label, nil
}

// generate runs the reply stage under its timeout.
func (o *Orchestrator) generate(ctx context.Context, text string, label emotion.Label) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.generate")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()

	start := time.Now()
	reply, err := o.responderP.Generate(ctx, responder.Turn{
		Text:    text,
		Emotion: string(label),
	})
	if o.metrics != nil {
		o.metrics.GenerateDuration.Record(ctx, time.Since(start).Seconds())
	}
	return reply, err
}
