// Package audio decodes uploaded audio byte streams into normalized waveforms.
//
// The central entry point is [DecodeWAV], which parses a RIFF/WAVE container
// and produces a mono float32 waveform in the range [-1.0, 1.0] together with
// the container's declared sample rate. Multi-channel input is downmixed by
// averaging; sample-rate conversion is deliberately NOT performed here — the
// consumer decides whether and how to resample (see [ResampleMono]).
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Clip is a decoded, normalized waveform: mono float32 samples plus the
// sample rate declared by the source container. A Clip is immutable once
// returned by the decoder.
type Clip struct {
	// Samples is the mono waveform, one float32 per sample, in [-1.0, 1.0].
	Samples []float32

	// SampleRate is the source sample rate in Hz (e.g., 16000, 44100).
	SampleRate int

	// Channels is the channel count of the original container before
	// downmixing. Retained for diagnostics only; Samples is always mono.
	Channels int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DecodeError describes a malformed, truncated, or unsupported audio byte
// stream. It is a per-request condition: the caller reports it and continues.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "audio: decode: " + e.Reason
}

func decodeErrf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// WAV format codes from the RIFF specification.
const (
	waveFormatPCM       = 1
	waveFormatIEEEFloat = 3
	waveFormatExtensible = 0xFFFE
)

// DecodeWAV parses a RIFF/WAVE byte stream and returns the normalized mono
// waveform. Supported encodings are integer PCM (8/16/24/32-bit) and IEEE
// float32. Any structural problem — short header, wrong magic, missing fmt or
// data chunk, truncated sample data — yields a [*DecodeError].
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 {
		return nil, decodeErrf("truncated header: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, decodeErrf("not a RIFF/WAVE stream")
	}

	var (
		haveFmt       bool
		formatCode    int
		channels      int
		sampleRate    int
		bitsPerSample int
		sampleData    []byte
	)

	// Walk the chunk list. Chunks are word-aligned; a chunk with an odd size
	// is followed by a single pad byte.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, decodeErrf("chunk %q extends past end of stream", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, decodeErrf("fmt chunk too small: %d bytes", size)
			}
			formatCode = int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if formatCode == waveFormatExtensible && size >= 40 {
				// WAVE_FORMAT_EXTENSIBLE: the real format is the first two
				// bytes of the SubFormat GUID at offset 24.
				formatCode = int(binary.LittleEndian.Uint16(data[body+24 : body+26]))
			}
			haveFmt = true
		case "data":
			sampleData = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, decodeErrf("missing fmt chunk")
	}
	if sampleData == nil {
		return nil, decodeErrf("missing data chunk")
	}
	if channels <= 0 {
		return nil, decodeErrf("invalid channel count %d", channels)
	}
	if sampleRate <= 0 {
		return nil, decodeErrf("invalid sample rate %d", sampleRate)
	}

	samples, err := decodeSamples(sampleData, formatCode, bitsPerSample, channels)
	if err != nil {
		return nil, err
	}

	return &Clip{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// decodeSamples converts raw interleaved sample bytes into a mono float32
// waveform, averaging across channels.
func decodeSamples(data []byte, formatCode, bits, channels int) ([]float32, error) {
	var bytesPerSample int
	switch {
	case formatCode == waveFormatPCM && bits == 8:
		bytesPerSample = 1
	case formatCode == waveFormatPCM && bits == 16:
		bytesPerSample = 2
	case formatCode == waveFormatPCM && bits == 24:
		bytesPerSample = 3
	case formatCode == waveFormatPCM && bits == 32:
		bytesPerSample = 4
	case formatCode == waveFormatIEEEFloat && bits == 32:
		bytesPerSample = 4
	default:
		return nil, decodeErrf("unsupported encoding: format=%d bits=%d", formatCode, bits)
	}

	frameBytes := bytesPerSample * channels
	if len(data)%frameBytes != 0 {
		return nil, decodeErrf("sample data not aligned to %d-byte frames", frameBytes)
	}

	frames := len(data) / frameBytes
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := i*frameBytes + ch*bytesPerSample
			sum += readSample(data[idx:idx+bytesPerSample], formatCode, bits)
		}
		mono[i] = sum / float32(channels)
	}
	return mono, nil
}

// readSample decodes one sample and normalises it to [-1.0, 1.0].
func readSample(b []byte, formatCode, bits int) float32 {
	if formatCode == waveFormatIEEEFloat {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	switch bits {
	case 8:
		// 8-bit WAV is unsigned with a 128 midpoint.
		return (float32(b[0]) - 128.0) / 128.0
	case 16:
		s := int16(binary.LittleEndian.Uint16(b))
		return float32(s) / 32768.0
	case 24:
		s := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		// Sign-extend from 24 bits.
		if s&0x800000 != 0 {
			s |= ^0xFFFFFF
		}
		return float32(s) / 8388608.0
	default: // 32
		s := int32(binary.LittleEndian.Uint32(b))
		return float32(s) / 2147483648.0
	}
}

// ResampleMono resamples a mono float32 waveform from srcRate to dstRate using
// linear interpolation. If the rates match (or either is non-positive) the
// input slice is returned unchanged.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// EncodeWAV renders a mono float32 waveform as a 16-bit PCM RIFF/WAVE byte
// stream. Samples outside [-1.0, 1.0] are clamped. Used by transcription
// backends that submit audio upstream as a WAV file, and by tests.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], waveFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(v))
	}
	return buf
}
