package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/voxsense/voxsense/internal/health"
	"github.com/voxsense/voxsense/internal/pipeline"
	"github.com/voxsense/voxsense/pkg/audio"
	"github.com/voxsense/voxsense/pkg/emotion"
	"github.com/voxsense/voxsense/pkg/provider/responder"
	respmock "github.com/voxsense/voxsense/pkg/provider/responder/mock"
	"github.com/voxsense/voxsense/pkg/provider/stt"
	sttmock "github.com/voxsense/voxsense/pkg/provider/stt/mock"
)

// stubClassifier returns a fixed label or error.
type stubClassifier struct {
	label emotion.Label
	err   error
}

func (s stubClassifier) Classify(samples []float32, sampleRate int) (emotion.Label, error) {
	return s.label, s.err
}

// newMux wires a full handler with scriptable stage doubles.
func newMux(cls pipeline.Classifier, sttP pipeline.Transcriber, respP pipeline.Responder) *http.ServeMux {
	orch := pipeline.New(sttP, cls, respP)
	h := New(cls, respP, orch, health.New())
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func defaultMux() *http.ServeMux {
	sttP := &sttmock.Provider{TranscribeFunc: func(ctx context.Context, req stt.Request) (string, error) {
		return "hello there", nil
	}}
	respP := &respmock.Provider{GenerateFunc: func(ctx context.Context, turn responder.Turn) (string, error) {
		return "nice to hear from you", nil
	}}
	return newMux(stubClassifier{label: emotion.LabelHappy}, sttP, respP)
}

// uploadRequest builds a multipart POST with the given file field content.
func uploadRequest(t *testing.T, path, field string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "utterance.wav")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func validWAV() []byte {
	return audio.EncodeWAV(make([]float32, 1600), 16000)
}

func TestPredict(t *testing.T) {
	mux := defaultMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/predict", "file", validWAV()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["emotion"]; got != "happy" {
		t.Errorf("emotion = %q, want happy", got)
	}
}

func TestPredict_NoFile(t *testing.T) {
	mux := defaultMux()

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing field", uploadRequest(t, "/predict", "", nil)},
		{"wrong field name", uploadRequest(t, "/predict", "audio", validWAV())},
		{"empty file", uploadRequest(t, "/predict", "file", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := decodeBody(t, rec)["error"]; got != "No file uploaded" {
				t.Errorf("error = %q, want %q", got, "No file uploaded")
			}
		})
	}
}

func TestPredict_UndecodableAudio(t *testing.T) {
	mux := defaultMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/predict", "file", []byte("not a wav")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; !strings.HasPrefix(got, "Failed to read audio file: ") {
		t.Errorf("error = %q, want decode diagnostic", got)
	}
}

func TestPredict_ClassifierFailure(t *testing.T) {
	mux := newMux(stubClassifier{err: errors.New("model exploded")}, &sttmock.Provider{}, &respmock.Provider{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/predict", "file", validWAV()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; !strings.HasPrefix(got, "Classification failed: ") {
		t.Errorf("error = %q, want classification diagnostic", got)
	}
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCohereResponse(t *testing.T) {
	var got responder.Turn
	respP := &respmock.Provider{GenerateFunc: func(ctx context.Context, turn responder.Turn) (string, error) {
		got = turn
		return "stay calm", nil
	}}
	mux := newMux(stubClassifier{}, &sttmock.Provider{}, respP)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest("/cohere_response", `{"text":"everything broke","emotion":"angry"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["response"] != "stay calm" {
		t.Errorf("response = %q", decodeBody(t, rec)["response"])
	}
	if got.Text != "everything broke" || got.Emotion != "angry" {
		t.Errorf("responder turn = %+v", got)
	}
}

func TestCohereResponse_BadRequests(t *testing.T) {
	mux := defaultMux()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", "not json at all", "Missing required fields: text and emotion"},
		{"missing text", `{"emotion":"sad"}`, "Missing required fields: text and emotion"},
		{"missing emotion", `{"text":"hi"}`, "Missing required fields: text and emotion"},
		{"empty object", `{}`, "Missing required fields: text and emotion"},
		{"blank text", `{"text":"   ","emotion":"sad"}`, "No text provided"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, jsonRequest("/cohere_response", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := decodeBody(t, rec)["error"]; got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCohereResponse_UpstreamFailure(t *testing.T) {
	respP := &respmock.Provider{GenerateFunc: func(ctx context.Context, turn responder.Turn) (string, error) {
		return "", &responder.UpstreamError{Provider: "cohere", Detail: "rate limit exceeded"}
	}}
	mux := newMux(stubClassifier{}, &sttmock.Provider{}, respP)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest("/cohere_response", `{"text":"hi","emotion":"sad"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Cohere API Error: rate limit exceeded" {
		t.Errorf("error = %q", got)
	}
}

func TestConverse(t *testing.T) {
	mux := defaultMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "/converse", "file", validWAV()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["transcript"] != "hello there" {
		t.Errorf("transcript = %q", body["transcript"])
	}
	if body["emotion"] != "happy" {
		t.Errorf("emotion = %q", body["emotion"])
	}
	if body["response"] != "nice to hear from you" {
		t.Errorf("response = %q", body["response"])
	}
}

func TestConverse_StageFailures(t *testing.T) {
	failingSTT := &sttmock.Provider{TranscribeFunc: func(ctx context.Context, req stt.Request) (string, error) {
		return "", stt.ErrUnintelligible
	}}
	okSTT := &sttmock.Provider{TranscribeFunc: func(ctx context.Context, req stt.Request) (string, error) {
		return "hello", nil
	}}
	failingResp := &respmock.Provider{GenerateFunc: func(ctx context.Context, turn responder.Turn) (string, error) {
		return "", &responder.UpstreamError{Provider: "cohere", Detail: "down"}
	}}

	tests := []struct {
		name       string
		mux        *http.ServeMux
		wantStatus int
		wantPrefix string
	}{
		{
			"no transcript",
			newMux(stubClassifier{label: emotion.LabelHappy}, failingSTT, &respmock.Provider{}),
			http.StatusUnprocessableEntity,
			"Transcription failed: ",
		},
		{
			"classify failed",
			newMux(stubClassifier{err: errors.New("boom")}, okSTT, &respmock.Provider{}),
			http.StatusInternalServerError,
			"Classification failed: ",
		},
		{
			"generate failed",
			newMux(stubClassifier{label: emotion.LabelHappy}, okSTT, failingResp),
			http.StatusBadGateway,
			"Response generation failed: ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.mux.ServeHTTP(rec, uploadRequest(t, "/converse", "file", validWAV()))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeBody(t, rec)["error"]; !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("error = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}

func TestPredict_Concurrent(t *testing.T) {
	mux := defaultMux()
	wav := validWAV()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, uploadRequest(t, "/predict", "file", wav))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d", rec.Code)
			}
		}()
	}
	wg.Wait()
}

func TestMetricsEndpoint(t *testing.T) {
	mux := defaultMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
