// Package httpapi implements the VoxSense HTTP surface.
//
// Three POST endpoints expose the pipeline at increasing levels of
// composition:
//
//   - /predict — classify the emotion of an uploaded WAV file.
//   - /cohere_response — generate a reply for an already-known text and
//     emotion pair.
//   - /converse — run the full transcribe → classify → generate pipeline on
//     an uploaded WAV file.
//
// All failure payloads are JSON objects of the form {"error": "<short
// diagnostic>"}. Per-request failures never affect process health.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxsense/voxsense/internal/health"
	"github.com/voxsense/voxsense/internal/pipeline"
	"github.com/voxsense/voxsense/pkg/audio"
	"github.com/voxsense/voxsense/pkg/provider/responder"
)

// maxUploadBytes caps the size of an uploaded audio file (16 MiB — roughly
// eight minutes of 16-bit mono at 16 kHz, far beyond a single utterance).
const maxUploadBytes = 16 << 20

// Handler serves the VoxSense API routes. All dependencies are fixed at
// construction; Handler is safe for concurrent use.
type Handler struct {
	classifier   pipeline.Classifier
	responderP   pipeline.Responder
	orchestrator *pipeline.Orchestrator
	health       *health.Handler
}

// New creates a Handler over the given stage implementations.
func New(classifier pipeline.Classifier, responderP pipeline.Responder, orch *pipeline.Orchestrator, healthH *health.Handler) *Handler {
	return &Handler{
		classifier:   classifier,
		responderP:   responderP,
		orchestrator: orch,
		health:       healthH,
	}
}

// Register adds all API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", h.Predict)
	mux.HandleFunc("POST /cohere_response", h.CohereResponse)
	mux.HandleFunc("POST /converse", h.Converse)
	mux.Handle("GET /metrics", promhttp.Handler())
	h.health.Register(mux)
}

// Predict classifies the emotion of an uploaded WAV file.
//
// Request: multipart/form-data with field "file".
// Response: 200 {"emotion": "<label>"} on success.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	wav, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read audio file: "+err.Error())
		return
	}

	label, err := h.classifier.Classify(clip.Samples, clip.SampleRate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Classification failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"emotion": string(label)})
}

// replyRequest is the /cohere_response request body. Pointer fields
// distinguish absent keys from empty values.
type replyRequest struct {
	Text    *string `json:"text"`
	Emotion *string `json:"emotion"`
}

// CohereResponse generates a reply for a known text and emotion pair.
//
// Request: JSON {"text": "...", "emotion": "..."}.
// Response: 200 {"response": "<reply>"} on success.
func (h *Handler) CohereResponse(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: text and emotion")
		return
	}
	if req.Text == nil || req.Emotion == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: text and emotion")
		return
	}
	if strings.TrimSpace(*req.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}

	reply, err := h.responderP.Generate(r.Context(), responder.Turn{
		Text:    *req.Text,
		Emotion: *req.Emotion,
	})
	if err != nil {
		if errors.Is(err, responder.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, "No text provided")
			return
		}
		writeError(w, http.StatusInternalServerError, "Cohere API Error: "+upstreamDetail(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

// Converse runs the full conversational pipeline on an uploaded WAV file.
//
// Request: multipart/form-data with field "file".
// Response: 200 {"transcript", "emotion", "response"} on success. Stage
// failures map to 422 (no transcript), 500 (classification), or 502
// (generation), each carrying the stage diagnostic.
func (h *Handler) Converse(w http.ResponseWriter, r *http.Request) {
	wav, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res, err := h.orchestrator.Run(r.Context(), wav)
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			writeError(w, stageStatus(se.State), se.Diagnostic())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"transcript": res.Transcript,
		"emotion":    string(res.Emotion),
		"response":   res.Reply,
	})
}

// readUpload extracts the "file" multipart field. On failure it writes the
// error response and returns ok=false.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (wav []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read audio file: "+err.Error())
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return nil, false
	}
	return data, true
}

// stageStatus maps a terminal pipeline state to an HTTP status code.
func stageStatus(s pipeline.State) int {
	switch s {
	case pipeline.StateNoTranscript:
		return http.StatusUnprocessableEntity
	case pipeline.StateClassifyFailed:
		return http.StatusInternalServerError
	case pipeline.StateGenerateFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// upstreamDetail extracts the short diagnostic from a responder error.
func upstreamDetail(err error) string {
	var ue *responder.UpstreamError
	if errors.As(err, &ue) {
		return ue.Detail
	}
	return err.Error()
}

// writeError writes the uniform JSON error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
