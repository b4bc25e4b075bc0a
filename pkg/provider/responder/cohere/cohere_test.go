package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxsense/voxsense/pkg/provider/responder"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New with empty key should fail")
	}
}

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{Text: "Take a deep breath."})
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL), WithModel("command-r"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	turn := responder.Turn{Text: "everything is broken", Emotion: "angry"}
	reply, err := p.Generate(context.Background(), turn)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Take a deep breath." {
		t.Errorf("reply = %q", reply)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotBody.Model != "command-r" {
		t.Errorf("model = %q, want command-r", gotBody.Model)
	}
	if gotBody.Message != responder.Prompt(turn) {
		t.Errorf("message = %q, want shared prompt", gotBody.Message)
	}
}

func TestGenerate_EmptyTurn(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Generate(context.Background(), responder.Turn{Text: "   ", Emotion: "happy"})
	if !errors.Is(err, responder.ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
}

func TestGenerate_UpstreamErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"message": "rate limit exceeded"})
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Generate(context.Background(), responder.Turn{Text: "hi", Emotion: "neutral"})
	var ue *responder.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if ue.Provider != "cohere" {
		t.Errorf("Provider = %q, want cohere", ue.Provider)
	}
	if ue.Detail != "rate limit exceeded" {
		t.Errorf("Detail = %q, want upstream message", ue.Detail)
	}
}

func TestGenerate_NonJSONErrorFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := New("test-key", WithBaseURL(srv.URL))
	_, err := p.Generate(context.Background(), responder.Turn{Text: "hi", Emotion: "neutral"})
	var ue *responder.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if !strings.Contains(ue.Detail, "502") {
		t.Errorf("Detail = %q, want HTTP status fallback", ue.Detail)
	}
}

func TestGenerate_EmptyReplyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Text: "   "})
	}))
	defer srv.Close()

	p, _ := New("test-key", WithBaseURL(srv.URL))
	_, err := p.Generate(context.Background(), responder.Turn{Text: "hi", Emotion: "neutral"})
	var ue *responder.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
}

func TestGenerate_RequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	p, _ := New("test-key", WithBaseURL(srv.URL))
	_, err := p.Generate(context.Background(), responder.Turn{Text: "hi", Emotion: "neutral"})
	var ue *responder.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if ue.Err == nil {
		t.Error("transport failure should carry the underlying cause")
	}
}
