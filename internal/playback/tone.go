package playback

import "math"

// Tone generates a stereo sine wave. It never finishes on its own; it
// exists for graph smoke tests and for driving the output chain without
// a media file.
type Tone struct {
	sampleRate int
	freq       float64
	amp        float64
	phase      float64
}

func NewTone(sampleRate int, freq, amp float64) *Tone {
	return &Tone{sampleRate: sampleRate, freq: freq, amp: amp}
}

func (t *Tone) Process(dst []float32) {
	step := 2 * math.Pi * t.freq / float64(t.sampleRate)
	for i := 0; i+1 < len(dst); i += 2 {
		v := float32(t.amp * math.Sin(t.phase))
		dst[i] = v
		dst[i+1] = v
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}
