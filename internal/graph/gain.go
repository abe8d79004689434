package graph

import (
	"math"
	"sync/atomic"
)

// GainStage scales the signal by the product of the user volume and the
// crossfade multiplier. Both factors are stored as float64 bit patterns
// for lock-free reads from the audio thread, so a fade never overwrites
// the user's volume and vice versa.
type GainStage struct {
	userVolume atomic.Uint64
	fadeMult   atomic.Uint64
}

func NewGainStage() *GainStage {
	g := &GainStage{}
	g.userVolume.Store(math.Float64bits(1))
	g.fadeMult.Store(math.Float64bits(1))
	return g
}

// SetUserVolume sets the listener-controlled volume, clamped to [0,1].
func (g *GainStage) SetUserVolume(v float64) {
	g.userVolume.Store(math.Float64bits(clamp01(v)))
}

func (g *GainStage) UserVolume() float64 {
	return math.Float64frombits(g.userVolume.Load())
}

// SetFadeMultiplier sets the crossfade factor, clamped to [0,1].
func (g *GainStage) SetFadeMultiplier(m float64) {
	g.fadeMult.Store(math.Float64bits(clamp01(m)))
}

func (g *GainStage) FadeMultiplier() float64 {
	return math.Float64frombits(g.fadeMult.Load())
}

// Effective returns the product applied to the signal.
func (g *GainStage) Effective() float64 {
	return g.UserVolume() * g.FadeMultiplier()
}

func (g *GainStage) Process(buf []float32) {
	gain := float32(g.Effective())
	if gain == 1 {
		return
	}
	for i := range buf {
		buf[i] *= gain
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
