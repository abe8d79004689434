// Package visualizer reads frequency/time-domain samples from a
// non-destructive tap in the signal chain and renders one of three draw
// modes per animation frame.
package visualizer

import "sync"

// Tap is the analysis point in the signal path. It copies a mono mix of
// every buffer it sees into a ring buffer; reading it never alters the
// audible signal. Process runs on the audio thread, so the critical
// section is a plain copy.
type Tap struct {
	mu   sync.Mutex
	buf  []float64
	pos  int
	size int
}

// DefaultTapSize holds two analysis windows so a read never races the
// write head across a whole window.
const DefaultTapSize = 2 * fftSize

func NewTap(size int) *Tap {
	if size <= 0 {
		size = DefaultTapSize
	}
	return &Tap{buf: make([]float64, size), size: size}
}

// Process captures one interleaved stereo buffer.
func (t *Tap) Process(buf []float32) {
	t.mu.Lock()
	for i := 0; i+1 < len(buf); i += 2 {
		t.buf[t.pos] = float64(buf[i]+buf[i+1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.mu.Unlock()
}

// Samples returns the last n captured samples in chronological order.
func (t *Tap) Samples(n int) []float64 {
	if n > t.size {
		n = t.size
	}
	out := make([]float64, n)
	t.mu.Lock()
	start := (t.pos - n + t.size) % t.size
	for i := range out {
		out[i] = t.buf[(start+i)%t.size]
	}
	t.mu.Unlock()
	return out
}
