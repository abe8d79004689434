package visualizer

import (
	"image"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Mode selects the active draw style.
type Mode int

const (
	ModeBars Mode = iota
	ModeWaveform
	ModeCircular
)

// State is the visualizer lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateActive
	StateStopped
)

const (
	fftSize  = 2048
	barCount = 128
)

// Visualizer pulls one frame of analysis samples per render tick and
// draws onto an offscreen surface. The surface is cleared with a partial
// alpha each tick so previous frames fade out as a trail instead of
// vanishing.
type Visualizer struct {
	mu    sync.Mutex
	tap   *Tap
	dc    *gg.Context
	w, h  int
	mode  Mode
	state State

	frameEvery time.Duration
	stop       chan struct{}
}

func New(width, height int) *Visualizer {
	v := &Visualizer{
		w:          width,
		h:          height,
		frameEvery: time.Second / 60,
	}
	v.dc = newSurface(width, height)
	return v
}

func newSurface(w, h int) *gg.Context {
	dc := gg.NewContext(w, h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	return dc
}

// Attach binds the analysis tap. The tap must already be spliced into
// the signal graph by its owner.
func (v *Visualizer) Attach(tap *Tap) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tap = tap
	if v.state == StateUninitialized {
		v.state = StateInitialized
	}
}

// SetMode switches the draw style for subsequent frames.
func (v *Visualizer) SetMode(m Mode) {
	v.mu.Lock()
	v.mode = m
	v.mu.Unlock()
}

func (v *Visualizer) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *Visualizer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Start begins per-frame rendering. Idempotent while active; a no-op
// before a tap is attached.
func (v *Visualizer) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateActive || v.tap == nil {
		return
	}
	v.state = StateActive
	v.stop = make(chan struct{})
	go v.renderLoop(v.stop)
}

// Stop halts frame scheduling immediately. The last rendered frame
// remains available through Frame.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateActive {
		return
	}
	close(v.stop)
	v.stop = nil
	v.state = StateStopped
}

// Resize swaps the draw surface without restarting analysis.
func (v *Visualizer) Resize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if width == v.w && height == v.h {
		return
	}
	v.w, v.h = width, height
	v.dc = newSurface(width, height)
}

// Frame returns a copy of the current draw surface.
func (v *Visualizer) Frame() *image.RGBA {
	v.mu.Lock()
	defer v.mu.Unlock()
	src := v.dc.Image()
	out := image.NewRGBA(src.Bounds())
	copyImage(out, src)
	return out
}

func copyImage(dst *image.RGBA, src image.Image) {
	if rgba, ok := src.(*image.RGBA); ok {
		copy(dst.Pix, rgba.Pix)
		return
	}
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
}

func (v *Visualizer) renderLoop(stop chan struct{}) {
	ticker := time.NewTicker(v.frameEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v.RenderFrame()
		}
	}
}

// RenderFrame draws exactly one frame. Exposed so a host with its own
// display-refresh callback can drive rendering instead of the internal
// ticker.
func (v *Visualizer) RenderFrame() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tap == nil {
		return
	}

	// Partial-alpha clear keeps a decaying trail of earlier frames.
	v.dc.SetRGBA(0, 0, 0, 0.22)
	v.dc.DrawRectangle(0, 0, float64(v.w), float64(v.h))
	v.dc.Fill()

	samples := v.tap.Samples(fftSize)
	switch v.mode {
	case ModeWaveform:
		v.drawWaveform(samples)
	case ModeCircular:
		v.drawCircular(frequencyBins(samples))
	default:
		v.drawBars(frequencyBins(samples))
	}
}

// frequencyBins windows the time-domain frame, runs the FFT, and folds
// the magnitude spectrum into barCount bins.
func frequencyBins(samples []float64) []float64 {
	buf := make([]float64, fftSize)
	copy(buf, samples)
	window.Apply(buf, window.Hann)

	spectrum := fft.FFTReal(buf)
	half := len(spectrum) / 2

	bins := make([]float64, barCount)
	per := half / barCount
	if per < 1 {
		per = 1
	}
	for b := 0; b < barCount; b++ {
		lo := b * per
		hi := lo + per
		if hi > half {
			hi = half
		}
		sum := 0.0
		for i := lo; i < hi; i++ {
			sum += cmplx.Abs(spectrum[i])
		}
		if hi > lo {
			sum /= float64(hi - lo)
		}
		// dB-ish scaling normalized to 0..1.
		if sum > 0 {
			bins[b] = (20*math.Log10(sum) + 60) / 60
		}
		bins[b] = math.Max(0, math.Min(1, bins[b]))
	}
	return bins
}

func (v *Visualizer) drawBars(bins []float64) {
	bw := float64(v.w) / float64(len(bins))
	for i, level := range bins {
		h := level * float64(v.h)
		r, g, b := barColor(float64(i) / float64(len(bins)))
		v.dc.SetRGB(r, g, b)
		v.dc.DrawRectangle(float64(i)*bw, float64(v.h)-h, bw-1, h)
		v.dc.Fill()
	}
}

func (v *Visualizer) drawWaveform(samples []float64) {
	v.dc.SetRGB(0.2, 0.9, 0.6)
	v.dc.SetLineWidth(2)
	mid := float64(v.h) / 2
	step := float64(v.w) / float64(len(samples))
	v.dc.MoveTo(0, mid)
	for i, s := range samples {
		v.dc.LineTo(float64(i)*step, mid+s*mid)
	}
	v.dc.Stroke()
}

func (v *Visualizer) drawCircular(bins []float64) {
	cx, cy := float64(v.w)/2, float64(v.h)/2
	base := math.Min(cx, cy) * 0.35
	maxLen := math.Min(cx, cy) * 0.6
	for i, level := range bins {
		angle := float64(i) / float64(len(bins)) * 2 * math.Pi
		r, g, b := barColor(float64(i) / float64(len(bins)))
		v.dc.SetRGB(r, g, b)
		v.dc.SetLineWidth(2)
		x0 := cx + math.Cos(angle)*base
		y0 := cy + math.Sin(angle)*base
		x1 := cx + math.Cos(angle)*(base+level*maxLen)
		y1 := cy + math.Sin(angle)*(base+level*maxLen)
		v.dc.DrawLine(x0, y0, x1, y1)
		v.dc.Stroke()
	}
}

// barColor maps position 0..1 to a cold-to-hot gradient.
func barColor(t float64) (r, g, b float64) {
	return 0.2 + 0.8*t, 0.4, 1 - 0.8*t
}
