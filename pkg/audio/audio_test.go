package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// buildWAV assembles a RIFF/WAVE byte stream from raw parts. Unlike
// EncodeWAV it can produce multi-channel and non-PCM streams for decoder
// tests.
func buildWAV(formatCode, channels, sampleRate, bits int, sampleData []byte) []byte {
	buf := make([]byte, 44+len(sampleData))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(sampleData)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(formatCode))
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	byteRate := sampleRate * channels * bits / 8
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bits))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(sampleData)))
	copy(buf[44:], sampleData)
	return buf
}

func TestDecodeWAV_RoundTrip16Bit(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -1, 1}
	clip, err := DecodeWAV(EncodeWAV(in, 16000))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("Channels = %d, want 1", clip.Channels)
	}
	if len(clip.Samples) != len(in) {
		t.Fatalf("len(Samples) = %d, want %d", len(clip.Samples), len(in))
	}
	for i, want := range in {
		if got := clip.Samples[i]; math.Abs(float64(got-want)) > 0.001 {
			t.Errorf("Samples[%d] = %f, want ~%f", i, got, want)
		}
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	// Two frames of interleaved 16-bit stereo: (L=16384, R=-16384) averages
	// to 0; (L=16384, R=16384) averages to 0.5.
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:2], uint16(int16(16384)))
	negSample := int16(-16384)
	binary.LittleEndian.PutUint16(data[2:4], uint16(negSample))
	binary.LittleEndian.PutUint16(data[4:6], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(data[6:8], uint16(int16(16384)))

	clip, err := DecodeWAV(buildWAV(waveFormatPCM, 2, 44100, 16, data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.Channels != 2 {
		t.Errorf("Channels = %d, want 2", clip.Channels)
	}
	if len(clip.Samples) != 2 {
		t.Fatalf("len(Samples) = %d, want 2", len(clip.Samples))
	}
	if got := clip.Samples[0]; math.Abs(float64(got)) > 0.001 {
		t.Errorf("Samples[0] = %f, want ~0", got)
	}
	if got := clip.Samples[1]; math.Abs(float64(got-0.5)) > 0.001 {
		t.Errorf("Samples[1] = %f, want ~0.5", got)
	}
}

func TestDecodeWAV_Float32Passthrough(t *testing.T) {
	in := []float32{0.125, -0.75}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(in[0]))
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(in[1]))

	clip, err := DecodeWAV(buildWAV(waveFormatIEEEFloat, 1, 22050, 32, data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	for i, want := range in {
		if got := clip.Samples[i]; got != want {
			t.Errorf("Samples[%d] = %f, want %f", i, got, want)
		}
	}
}

func TestDecodeWAV_Errors(t *testing.T) {
	valid := EncodeWAV([]float32{0, 0.5}, 16000)

	noData := buildWAV(waveFormatPCM, 1, 16000, 16, nil)
	// Rewrite the data chunk ID so the decoder never finds it.
	copy(noData[36:40], "junk")

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated header", valid[:8]},
		{"bogus magic", append([]byte("NOPE"), valid[4:]...)},
		{"missing data chunk", noData},
		{"unsupported encoding", buildWAV(waveFormatPCM, 1, 16000, 12, make([]byte, 6))},
		{"misaligned frames", buildWAV(waveFormatPCM, 2, 16000, 16, make([]byte, 6))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(tt.data)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
		})
	}
}

func TestResampleMono(t *testing.T) {
	in := make([]float32, 1600) // 100 ms at 16 kHz
	out := ResampleMono(in, 16000, 8000)
	if len(out) != 800 {
		t.Errorf("len = %d, want 800", len(out))
	}

	// Same rate passes through untouched.
	if got := ResampleMono(in, 16000, 16000); len(got) != len(in) {
		t.Errorf("same-rate len = %d, want %d", len(got), len(in))
	}
}

func TestResampleMono_Interpolates(t *testing.T) {
	in := []float32{0, 1, 0, 1}
	out := ResampleMono(in, 8000, 16000)
	if len(out) != 8 {
		t.Fatalf("len = %d, want 8", len(out))
	}
	// Midpoint between 0 and 1 should land near 0.5.
	if math.Abs(float64(out[1]-0.5)) > 0.01 {
		t.Errorf("out[1] = %f, want ~0.5", out[1])
	}
}

func TestClipDuration(t *testing.T) {
	c := &Clip{Samples: make([]float32, 8000), SampleRate: 16000}
	if got := c.Duration(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Duration = %f, want 0.5", got)
	}
	zero := &Clip{Samples: make([]float32, 100)}
	if got := zero.Duration(); got != 0 {
		t.Errorf("Duration with zero rate = %f, want 0", got)
	}
}
