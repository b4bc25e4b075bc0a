package emotion

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// buildArtifact serialises a model artifact with the given dimensions. The
// weight slices follow the on-disk tensor order: W1, b1, W2, b2.
func buildArtifact(sampleRate, numMels, hiddenDim, numClasses int, weights []float32) []byte {
	featureDim := 2 * numMels
	buf := make([]byte, headerSize+len(weights)*4)
	copy(buf[0:4], artifactMagic)
	binary.LittleEndian.PutUint32(buf[4:8], artifactVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(numMels))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(featureDim))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(hiddenDim))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(numClasses))
	for i, w := range weights {
		binary.LittleEndian.PutUint32(buf[headerSize+i*4:headerSize+i*4+4], math.Float32bits(w))
	}
	return buf
}

// weightCount returns the number of floats the header promises.
func weightCount(numMels, hiddenDim, numClasses int) int {
	featureDim := 2 * numMels
	return hiddenDim*featureDim + hiddenDim + numClasses*hiddenDim + numClasses
}

func validArtifactBytes() []byte {
	weights := make([]float32, weightCount(4, 2, 3))
	return buildArtifact(16000, 4, 2, 3, weights)
}

func TestLoadArtifact_Valid(t *testing.T) {
	a, err := LoadArtifact(validArtifactBytes())
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if a.SampleRate != 16000 || a.NumMels != 4 || a.FeatureDim != 8 || a.HiddenDim != 2 || a.NumClasses != 3 {
		t.Errorf("unexpected dims: %+v", *a)
	}
}

func TestLoadArtifact_Errors(t *testing.T) {
	valid := validArtifactBytes()

	badMagic := append([]byte(nil), valid...)
	copy(badMagic[0:4], "NOPE")

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:8], 99)

	zeroDim := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(zeroDim[20:24], 0) // hidden dim

	dimMismatch := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(dimMismatch[16:20], 5) // featureDim ≠ 2×mels

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", valid[:10]},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"zero dimension", zeroDim},
		{"feature dim mismatch", dimMismatch},
		{"short payload", valid[:len(valid)-4]},
		{"long payload", append(append([]byte(nil), valid...), 0, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadArtifact(tt.data)
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("err = %v, want *LoadError", err)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.vsem")
	if err := os.WriteFile(path, validArtifactBytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := FileSource{Path: path}.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty data")
	}
}

func TestFileSource_NotFound(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "missing.vsem")}.Fetch(context.Background())
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
}

func TestHTTPSource_DownloadsOnceAndCaches(t *testing.T) {
	artifact := validArtifactBytes()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(artifact)
	}))
	defer srv.Close()

	src := HTTPSource{
		URL:      srv.URL + "/model.vsem",
		CacheDir: t.TempDir(),
	}

	for i := 0; i < 2; i++ {
		data, err := src.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch #%d: %v", i+1, err)
		}
		if len(data) != len(artifact) {
			t.Fatalf("Fetch #%d returned %d bytes, want %d", i+1, len(data), len(artifact))
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1 (second fetch should come from cache)", got)
	}
}

func TestHTTPSource_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := HTTPSource{URL: srv.URL, CacheDir: t.TempDir()}.Fetch(context.Background())
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
}
