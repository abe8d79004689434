package eq

import "math"

// biquad is a second-order IIR peaking filter per the Audio EQ Cookbook.
// Coefficients are recomputed lazily when the target gain changes, so gain
// updates from the UI thread take effect on the next processed buffer
// without rebuilding the chain.
type biquad struct {
	freq float64
	q    float64
	sr   float64

	lastGain float64
	inited   bool

	b0, b1, b2, a1, a2 float64

	// Per-channel filter state.
	x1, x2 [2]float64
	y1, y2 [2]float64
}

func newBiquad(freq, q, sampleRate float64) *biquad {
	return &biquad{freq: freq, q: q, sr: sampleRate}
}

func (b *biquad) calcCoeffs(dB float64) {
	if b.inited && dB == b.lastGain {
		return
	}
	b.lastGain = dB
	b.inited = true

	a := math.Pow(10, dB/40)
	w0 := 2 * math.Pi * b.freq / b.sr
	sinW0 := math.Sin(w0)
	cosW0 := math.Cos(w0)
	alpha := sinW0 / (2 * b.q)

	b0 := 1 + alpha*a
	b1 := -2 * cosW0
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosW0
	a2 := 1 - alpha/a

	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = a1 / a0
	b.a2 = a2 / a0
}

// process filters one interleaved stereo buffer in place with the given
// gain. Near-zero gain bypasses the filter entirely.
func (b *biquad) process(buf []float32, dB float64) {
	if dB > -0.1 && dB < 0.1 {
		return
	}
	b.calcCoeffs(dB)

	for i := 0; i+1 < len(buf); i += 2 {
		for ch := 0; ch < 2; ch++ {
			x := float64(buf[i+ch])
			y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
			b.x2[ch] = b.x1[ch]
			b.x1[ch] = x
			b.y2[ch] = b.y1[ch]
			b.y1[ch] = y
			buf[i+ch] = float32(y)
		}
	}
}

func (b *biquad) reset() {
	b.x1, b.x2 = [2]float64{}, [2]float64{}
	b.y1, b.y2 = [2]float64{}, [2]float64{}
}
