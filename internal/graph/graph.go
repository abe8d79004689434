// Package graph owns the audio signal chain: it creates every processing
// stage, wires them in a fixed order, and hands attach points to the
// features that need them. No other package connects or reconnects nodes,
// which is what keeps a source from ever being wired twice.
package graph

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var (
	// ErrNoAudio reports that the environment has no usable audio output.
	// Callers surface this and disable dependent features.
	ErrNoAudio = errors.New("audio output unavailable")

	// ErrSourceAttached reports an attempt to bind a second source to a
	// graph that already has one.
	ErrSourceAttached = errors.New("graph already has a source")

	// ErrNotComposed reports an operation that requires a composed graph.
	ErrNotComposed = errors.New("graph not composed")
)

// Stage processes one buffer of interleaved stereo float32 samples in
// place. Stages run on the audio thread; implementations keep work brief
// and lock-free where possible.
type Stage interface {
	Process(buf []float32)
}

// Graph composes source -> effects -> output gain -> analysis tap ->
// destination. Compose is idempotent; the chain is built exactly once per
// graph and the source can never be re-bound.
type Graph struct {
	mu         sync.Mutex
	sampleRate int
	newDest    DestinationFactory

	composed bool
	pipe     *pipeline
	dest     Destination

	nodeCounts map[string]int
}

// Option configures a Graph at construction.
type Option func(*Graph)

// WithDestinationFactory overrides the sink used at compose time. Tests
// use this to compose a graph without an audio device.
func WithDestinationFactory(f DestinationFactory) Option {
	return func(g *Graph) { g.newDest = f }
}

func New(sampleRate int, opts ...Option) *Graph {
	g := &Graph{
		sampleRate: sampleRate,
		newDest:    DeviceDestination,
		nodeCounts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// pipeline is the SampleSource fed to the destination. It pulls from the
// bound source and runs each stage in order.
type pipeline struct {
	mu      sync.Mutex
	source  SampleSource
	effects Stage
	gain    *GainStage
	tap     Stage
}

func (p *pipeline) Process(dst []float32) {
	p.mu.Lock()
	src, fx, tap := p.source, p.effects, p.tap
	p.mu.Unlock()

	src.Process(dst)
	if fx != nil {
		fx.Process(dst)
	}
	p.gain.Process(dst)
	if tap != nil {
		tap.Process(dst)
	}
}

func (p *pipeline) Finished() bool {
	p.mu.Lock()
	src := p.source
	p.mu.Unlock()
	if fs, ok := src.(FinishingSource); ok {
		return fs.Finished()
	}
	return false
}

// Compose builds the signal chain for the given source. A second call on
// an already-composed graph is a no-op when the source is the same, and an
// error when it would bind a different source. The failure to create the
// destination (no audio capability) is returned, never swallowed.
func (g *Graph) Compose(source SampleSource) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.composed {
		if g.pipe.source == source {
			return nil
		}
		return ErrSourceAttached
	}

	pipe := &pipeline{source: source, gain: NewGainStage()}
	dest, err := g.newDest(g.sampleRate, NewStreamReader(pipe))
	if err != nil {
		return fmt.Errorf("compose graph: %w", err)
	}

	// Nodes are counted only once the chain commits, so a failed
	// compose followed by a retry still reports one of each.
	g.countNode("source")
	g.countNode("gain")
	g.countNode("destination")

	g.pipe = pipe
	g.dest = dest
	g.composed = true
	log.Printf("graph: composed chain at %d Hz", g.sampleRate)
	return nil
}

// SetEffects installs (or replaces) the effects stage between the source
// and the output gain. A nil stage bypasses effects processing.
func (g *Graph) SetEffects(stage Stage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.composed {
		return ErrNotComposed
	}
	g.pipe.mu.Lock()
	g.pipe.effects = stage
	g.pipe.mu.Unlock()
	return nil
}

// InsertAnalysisTap splices a non-destructive tap between the output gain
// and the destination.
func (g *Graph) InsertAnalysisTap(tap Stage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.composed {
		return ErrNotComposed
	}
	g.pipe.mu.Lock()
	g.pipe.tap = tap
	g.pipe.mu.Unlock()
	g.countNode("tap")
	return nil
}

// RemoveAnalysisTap reconnects the output gain directly to the destination
// so audio keeps flowing after the tap goes away.
func (g *Graph) RemoveAnalysisTap() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.composed {
		return
	}
	g.pipe.mu.Lock()
	g.pipe.tap = nil
	g.pipe.mu.Unlock()
}

// Gain returns the output gain stage shared by user volume and the
// crossfade multiplier. Nil until composed.
func (g *Graph) Gain() *GainStage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.composed {
		return nil
	}
	return g.pipe.gain
}

// Resume starts a destination that is sitting idle. Some environments
// keep output suspended until a feature explicitly asks for it.
func (g *Graph) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.composed {
		return ErrNotComposed
	}
	if !g.dest.IsPlaying() {
		g.dest.Play()
	}
	return nil
}

// Pause suspends the destination.
func (g *Graph) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.composed {
		g.dest.Pause()
	}
}

// Playing reports whether the destination is actively consuming samples.
func (g *Graph) Playing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.composed && g.dest.IsPlaying()
}

// Position returns the destination's output position: what the listener
// actually hears right now.
func (g *Graph) Position() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.composed {
		return 0
	}
	return g.dest.Position()
}

// SampleRate returns the rate the chain runs at.
func (g *Graph) SampleRate() int { return g.sampleRate }

// Composed reports whether the chain has been built.
func (g *Graph) Composed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.composed
}

// Close tears down the destination. The graph cannot be recomposed.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.composed {
		return nil
	}
	return g.dest.Close()
}

// NodeCount reports how many nodes of the given kind have been created.
// Tests use it to verify compose idempotence.
func (g *Graph) NodeCount(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodeCounts[kind]
}

func (g *Graph) countNode(kind string) {
	g.nodeCounts[kind]++
}
