// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxsense/voxsense/pkg/audio"
	"github.com/voxsense/voxsense/pkg/provider/stt"
)

// whisperSampleRate is the only rate whisper.cpp accepts for input samples.
const whisperSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at construction and shared read-only
// across all concurrent Transcribe calls; each call gets its own whisper
// context because contexts are not thread-safe.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. A missing or unreadable model is a construction
// failure — treat it as fatal at startup. The caller must call Close when
// the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe decodes the WAV payload, resamples it to 16 kHz, and runs
// whisper.cpp inference in-process. Undecodable audio and empty results map
// to [stt.ErrUnintelligible]; inference failures map to
// [stt.ErrServiceUnavailable] so callers treat them as backend faults.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", stt.ErrServiceUnavailable, err)
	}

	clip, err := audio.DecodeWAV(req.Audio)
	if err != nil {
		return "", fmt.Errorf("%w: %v", stt.ErrUnintelligible, err)
	}
	samples := audio.ResampleMono(clip.Samples, clip.SampleRate, whisperSampleRate)

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	// Each inference gets a fresh context; the underlying model is shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: create context: %v", stt.ErrServiceUnavailable, err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: process audio: %v", stt.ErrServiceUnavailable, err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: read segment: %v", stt.ErrServiceUnavailable, err)
		}
		parts = append(parts, strings.TrimSpace(segment.Text))
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", stt.ErrUnintelligible
	}
	return text, nil
}
