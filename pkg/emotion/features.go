package emotion

import "math"

// Framing parameters for feature extraction, expressed relative to the
// artifact's sample rate. At 16 kHz these give the conventional 25 ms window
// with a 10 ms hop and a 512-point FFT.
const (
	frameWindowMs = 25
	frameHopMs    = 10
	fftSize       = 512

	// preEmphasis is the first-order high-pass coefficient applied before
	// framing to flatten the spectral tilt of speech.
	preEmphasis = 0.97

	// logFloor keeps log-energies finite for silent bands.
	logFloor = 1e-10
)

// extractFeatures converts a mono waveform (already at the artifact's sample
// rate) into a fixed-length feature vector: per-frame log-mel energies pooled
// into per-band mean and standard deviation, giving 2×numMels values.
//
// The computation is fully deterministic: identical samples always produce an
// identical vector.
func extractFeatures(samples []float32, sampleRate, numMels int) []float32 {
	frameLen := sampleRate * frameWindowMs / 1000
	hop := sampleRate * frameHopMs / 1000

	emphasized := make([]float32, len(samples))
	emphasized[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		emphasized[i] = samples[i] - preEmphasis*samples[i-1]
	}

	window := hammingWindow(frameLen)
	filters := melFilterbank(numMels, sampleRate)

	numFrames := 1 + (len(emphasized)-frameLen)/hop

	// Accumulate per-band sums and sums of squares across frames.
	sum := make([]float64, numMels)
	sumSq := make([]float64, numMels)

	re := make([]float64, fftSize)
	im := make([]float64, fftSize)
	power := make([]float64, fftSize/2+1)

	for f := range numFrames {
		start := f * hop
		for i := range fftSize {
			if i < frameLen {
				re[i] = float64(emphasized[start+i]) * window[i]
			} else {
				re[i] = 0
			}
			im[i] = 0
		}
		fft(re, im)
		for i := range power {
			power[i] = (re[i]*re[i] + im[i]*im[i]) / float64(fftSize)
		}

		for m, filter := range filters {
			var e float64
			for _, tap := range filter {
				e += power[tap.bin] * tap.weight
			}
			logE := math.Log(e + logFloor)
			sum[m] += logE
			sumSq[m] += logE * logE
		}
	}

	features := make([]float32, 2*numMels)
	n := float64(numFrames)
	for m := range numMels {
		mean := sum[m] / n
		variance := sumSq[m]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		features[m] = float32(mean)
		features[numMels+m] = float32(math.Sqrt(variance))
	}
	return features
}

// minSamples returns the smallest waveform length (in samples) that yields at
// least one analysis frame at the given rate.
func minSamples(sampleRate int) int {
	return sampleRate * frameWindowMs / 1000
}

// hammingWindow returns an n-point Hamming window.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range n {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// filterTap is one weighted FFT bin contribution to a mel band.
type filterTap struct {
	bin    int
	weight float64
}

// melFilterbank builds numMels triangular filters spanning 0 Hz to the
// Nyquist frequency, returned as sparse tap lists over the power spectrum.
func melFilterbank(numMels, sampleRate int) [][]filterTap {
	nyquist := float64(sampleRate) / 2
	melLow := hzToMel(0)
	melHigh := hzToMel(nyquist)

	// numMels+2 equally spaced points on the mel scale define the triangles.
	points := make([]float64, numMels+2)
	for i := range points {
		mel := melLow + (melHigh-melLow)*float64(i)/float64(numMels+1)
		hz := melToHz(mel)
		points[i] = hz * float64(fftSize) / float64(sampleRate)
	}

	filters := make([][]filterTap, numMels)
	for m := range numMels {
		left, center, right := points[m], points[m+1], points[m+2]
		var taps []filterTap
		for bin := int(math.Ceil(left)); bin <= int(math.Floor(right)) && bin <= fftSize/2; bin++ {
			b := float64(bin)
			var w float64
			switch {
			case b < center && center > left:
				w = (b - left) / (center - left)
			case b >= center && right > center:
				w = (right - b) / (right - center)
			}
			if w > 0 {
				taps = append(taps, filterTap{bin: bin, weight: w})
			}
		}
		filters[m] = taps
	}
	return filters
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// fft computes an in-place radix-2 Cooley-Tukey FFT over re/im. Both slices
// must have the same power-of-two length.
func fft(re, im []float64) {
	n := len(re)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			half := length / 2
			for k := range half {
				i, j := start+k, start+k+half
				tRe := re[j]*curRe - im[j]*curIm
				tIm := re[j]*curIm + im[j]*curRe
				re[j] = re[i] - tRe
				im[j] = im[i] - tIm
				re[i] += tRe
				im[i] += tIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
