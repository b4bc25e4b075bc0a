package emotion

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Artifact binary layout (little-endian):
//
//	offset  size  field
//	0       4     magic "VSEM"
//	4       4     version (uint32, currently 1)
//	8       4     sample rate the model was trained at (uint32, Hz)
//	12      4     mel band count (uint32)
//	16      4     feature dimension (uint32, must equal 2 × mel bands)
//	20      4     hidden dimension (uint32)
//	24      4     class count (uint32)
//	28      …     float32 tensors: W1[hidden×feat] b1[hidden] W2[classes×hidden] b2[classes]
const (
	artifactMagic   = "VSEM"
	artifactVersion = 1
	headerSize      = 28
)

// LoadError describes an unusable model artifact: missing file, wrong magic or
// version, incompatible tensor shapes, or a truncated payload. It is a fatal
// startup condition, never a per-request error.
type LoadError struct {
	Reason string
}

func (e *LoadError) Error() string {
	return "emotion: load artifact: " + e.Reason
}

func loadErrf(format string, args ...any) error {
	return &LoadError{Reason: fmt.Sprintf(format, args...)}
}

// Artifact holds the read-only model parameters. After LoadArtifact returns,
// an Artifact is never mutated, so concurrent forward passes need no locking.
type Artifact struct {
	SampleRate int
	NumMels    int
	FeatureDim int
	HiddenDim  int
	NumClasses int

	w1 []float32 // HiddenDim × FeatureDim, row-major
	b1 []float32 // HiddenDim
	w2 []float32 // NumClasses × HiddenDim, row-major
	b2 []float32 // NumClasses
}

// LoadArtifact parses and validates a serialized model artifact. Shape
// incompatibilities — a feature dimension that does not match the extractor
// contract, or a payload shorter than the header promises — are [*LoadError]s.
func LoadArtifact(data []byte) (*Artifact, error) {
	if len(data) < headerSize {
		return nil, loadErrf("truncated header: %d bytes", len(data))
	}
	if string(data[0:4]) != artifactMagic {
		return nil, loadErrf("bad magic %q", string(data[0:4]))
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != artifactVersion {
		return nil, loadErrf("unsupported version %d (want %d)", v, artifactVersion)
	}

	a := &Artifact{
		SampleRate: int(binary.LittleEndian.Uint32(data[8:12])),
		NumMels:    int(binary.LittleEndian.Uint32(data[12:16])),
		FeatureDim: int(binary.LittleEndian.Uint32(data[16:20])),
		HiddenDim:  int(binary.LittleEndian.Uint32(data[20:24])),
		NumClasses: int(binary.LittleEndian.Uint32(data[24:28])),
	}

	if a.SampleRate <= 0 || a.NumMels <= 0 || a.FeatureDim <= 0 || a.HiddenDim <= 0 || a.NumClasses <= 0 {
		return nil, loadErrf("non-positive dimension in header: %+v", *a)
	}
	if a.FeatureDim != 2*a.NumMels {
		return nil, loadErrf("feature dim %d incompatible with %d mel bands (want %d)",
			a.FeatureDim, a.NumMels, 2*a.NumMels)
	}

	want := a.HiddenDim*a.FeatureDim + a.HiddenDim + a.NumClasses*a.HiddenDim + a.NumClasses
	payload := data[headerSize:]
	if len(payload) != want*4 {
		return nil, loadErrf("payload is %d bytes, want %d floats (%d bytes)",
			len(payload), want, want*4)
	}

	floats := make([]float32, want)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4 : i*4+4]))
	}

	off := 0
	take := func(n int) []float32 {
		s := floats[off : off+n]
		off += n
		return s
	}
	a.w1 = take(a.HiddenDim * a.FeatureDim)
	a.b1 = take(a.HiddenDim)
	a.w2 = take(a.NumClasses * a.HiddenDim)
	a.b2 = take(a.NumClasses)

	return a, nil
}

// forward runs the two-layer inference pass and returns the logit vector.
// features must have length FeatureDim; the caller guarantees this.
func (a *Artifact) forward(features []float32) []float32 {
	hidden := make([]float32, a.HiddenDim)
	for i := range a.HiddenDim {
		sum := a.b1[i]
		row := a.w1[i*a.FeatureDim : (i+1)*a.FeatureDim]
		for j, f := range features {
			sum += row[j] * f
		}
		if sum < 0 { // ReLU
			sum = 0
		}
		hidden[i] = sum
	}

	logits := make([]float32, a.NumClasses)
	for i := range a.NumClasses {
		sum := a.b2[i]
		row := a.w2[i*a.HiddenDim : (i+1)*a.HiddenDim]
		for j, h := range hidden {
			sum += row[j] * h
		}
		logits[i] = sum
	}
	return logits
}

// ─── Artifact provisioning ────────────────────────────────────────────────────

// ArtifactSource abstracts how the serialized model bytes are obtained. The
// classifier construction path is identical regardless of provisioning
// strategy; only the source differs.
type ArtifactSource interface {
	// Fetch returns the raw artifact bytes. Called once at process start.
	Fetch(ctx context.Context) ([]byte, error)
}

// FileSource reads the artifact from a local filesystem path.
type FileSource struct {
	Path string
}

// Fetch implements [ArtifactSource].
func (s FileSource) Fetch(_ context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, loadErrf("artifact path is empty")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, loadErrf("artifact %q not found", s.Path)
		}
		return nil, fmt.Errorf("emotion: read artifact %q: %w", s.Path, err)
	}
	return data, nil
}

// HTTPSource downloads the artifact once and caches it under CacheDir; later
// fetches reuse the cached copy without touching the network.
type HTTPSource struct {
	// URL is the artifact download location.
	URL string

	// CacheDir is the directory for the cached copy. Created if absent.
	CacheDir string

	// Client is the HTTP client used for the download. When nil a client
	// with a 60 s timeout is used.
	Client *http.Client
}

// Fetch implements [ArtifactSource].
func (s HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.URL == "" {
		return nil, loadErrf("artifact URL is empty")
	}
	if s.CacheDir == "" {
		return nil, loadErrf("artifact cache dir is empty")
	}

	cachePath := filepath.Join(s.CacheDir, cacheFileName(s.URL))
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("emotion: build artifact request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, loadErrf("download %q: %v", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, loadErrf("download %q: unexpected status %s", s.URL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, loadErrf("download %q: read body: %v", s.URL, err)
	}

	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("emotion: create cache dir: %w", err)
	}
	// Cache write failure is not fatal: the bytes are already in hand.
	_ = os.WriteFile(cachePath, data, 0o644)
	return data, nil
}

// cacheFileName derives a stable filename from the artifact URL.
func cacheFileName(url string) string {
	const ext = ".vsem"
	base := filepath.Base(url)
	if base == "" || base == "." || base == "/" {
		return "artifact" + ext
	}
	return base
}
