// Package quaver ties the audio feature set together around one playback
// element: equalizer, crossfade scheduling, visualization, and listening
// statistics, all driven by the element's transport events.
package quaver

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/quaver-audio/quaver/internal/autoeq"
	"github.com/quaver-audio/quaver/internal/crossfade"
	"github.com/quaver-audio/quaver/internal/eq"
	"github.com/quaver-audio/quaver/internal/graph"
	"github.com/quaver-audio/quaver/internal/playback"
	"github.com/quaver-audio/quaver/internal/stats"
	"github.com/quaver-audio/quaver/internal/storage"
	"github.com/quaver-audio/quaver/internal/visualizer"
)

const (
	visualizerWidth  = 640
	visualizerHeight = 240
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	graph       *graph.Graph
	advanceNext func()
	preloadNext func()
	autoeqBase  string
}

// WithGraph binds the player to a composed signal chain. The equalizer
// runs as the chain's effects stage and the visualizer taps it; without
// a graph those features fall back to settings-only behavior.
func WithGraph(g *graph.Graph) PlayerOption {
	return func(cfg *playerConfig) { cfg.graph = g }
}

// WithQueueHooks supplies the queue operations the crossfade scheduler
// drives: advance fires when a fade-out completes, preload once per fade
// cycle ahead of it. Both run off the caller's queue implementation.
func WithQueueHooks(advance, preload func()) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.advanceNext = advance
		cfg.preloadNext = preload
	}
}

// WithAutoEQBase overrides the AutoEQ download endpoint.
func WithAutoEQBase(url string) PlayerOption {
	return func(cfg *playerConfig) { cfg.autoeqBase = url }
}

// Player is the facade over one playback element and its feature set.
type Player struct {
	mu      sync.Mutex
	element playback.Element
	graph   *graph.Graph

	eq      *eq.Equalizer
	viz     *visualizer.Visualizer
	vizTap  *visualizer.Tap
	fader   *crossfade.Scheduler
	tracker *stats.Tracker
	fetcher *autoeq.Fetcher

	userVolume  float64
	fadeMult    float64
	lastTrackID string
}

// NewPlayer wires the feature set around element and store. Settings for
// the equalizer and crossfade load from the store before first playback.
func NewPlayer(element playback.Element, store storage.Store, opts ...PlayerOption) (*Player, error) {
	if element == nil {
		return nil, errors.New("playback element required")
	}
	if store == nil {
		store = storage.NewMemStore()
	}
	cfg := playerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Player{
		element:    element,
		graph:      cfg.graph,
		eq:         eq.New(store),
		tracker:    stats.New(store),
		fetcher:    autoeq.NewFetcher(cfg.autoeqBase, nil),
		userVolume: 1,
		fadeMult:   1,
	}

	if p.graph != nil {
		p.eq.Init(p.graph.SampleRate())
		if err := p.graph.SetEffects(p.eq); err != nil {
			return nil, err
		}
	}

	p.fader = crossfade.New(store, crossfade.Hooks{
		SetFadeMultiplier: p.setFadeMultiplier,
		AdvanceNext: func() {
			if cfg.advanceNext != nil {
				cfg.advanceNext()
			}
		},
		PreloadNext: func() {
			if cfg.preloadNext != nil {
				cfg.preloadNext()
			}
		},
		PlaybackActive: func() bool {
			return !p.element.Paused() && !p.element.Ended()
		},
	})

	element.SetHandlers(playback.Handlers{
		OnPlay:       p.onPlay,
		OnPause:      p.onPause,
		OnTimeUpdate: p.onTimeUpdate,
		OnEnded:      p.onEnded,
	})
	return p, nil
}

// onPlay distinguishes resuming the same track from starting a new one
// so a pause/resume pair stays a single listening session.
func (p *Player) onPlay(trackID string) {
	p.mu.Lock()
	same := trackID == p.lastTrackID && p.lastTrackID != ""
	p.lastTrackID = trackID
	p.mu.Unlock()

	if same {
		p.tracker.ResumeTracking()
	} else {
		t := p.element.Track()
		p.tracker.StartTracking(stats.Track{
			ID: t.ID, Title: t.Title, Artist: t.Artist, Album: t.Album,
		})
	}
	p.fader.OnPlay(trackID)
}

func (p *Player) onPause(string) {
	p.tracker.PauseTracking()
}

func (p *Player) onTimeUpdate(trackID string, currentTime, duration float64) {
	p.fader.OnTimeUpdate(trackID, currentTime, duration)
}

func (p *Player) onEnded(string) {
	p.tracker.StopTracking()
	p.fader.OnEnded()
}

// Load swaps in a new element and its signal chain, as when a queue
// advances to a track with its own decoder and graph. The old element is
// closed; equalizer, visualizer tap, and volume state carry over.
func (p *Player) Load(element playback.Element, g *graph.Graph) error {
	if element == nil {
		return errors.New("playback element required")
	}

	p.mu.Lock()
	old := p.element
	p.element = element
	p.graph = g
	vizActive := p.viz != nil && p.viz.State() == visualizer.StateActive
	tap := p.vizTap
	p.mu.Unlock()

	if old != nil && old != element {
		old.SetHandlers(playback.Handlers{})
		if err := old.Close(); err != nil {
			log.Printf("player: close previous element: %v", err)
		}
	}

	if g != nil {
		p.eq.Init(g.SampleRate())
		if err := g.SetEffects(p.eq); err != nil {
			return err
		}
		if vizActive && tap != nil {
			if err := g.InsertAnalysisTap(tap); err != nil {
				return err
			}
		}
	}

	element.SetHandlers(playback.Handlers{
		OnPlay:       p.onPlay,
		OnPause:      p.onPause,
		OnTimeUpdate: p.onTimeUpdate,
		OnEnded:      p.onEnded,
	})
	p.applyVolume()
	return nil
}

// Play starts or resumes the element.
func (p *Player) Play() error { return p.element.Play() }

// Pause suspends the element; listening time stops accruing.
func (p *Player) Pause() { p.element.Pause() }

// Seek moves the element to the given offset in seconds.
func (p *Player) Seek(seconds float64) error { return p.element.Seek(seconds) }

// Element returns the wrapped playback element.
func (p *Player) Element() playback.Element { return p.element }

// SetVolume sets the user volume. The crossfade multiplier composes with
// it; neither side ever overwrites the other.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.mu.Lock()
	p.userVolume = v
	p.mu.Unlock()
	p.applyVolume()
}

// Volume returns the user volume, independent of any fade in progress.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userVolume
}

func (p *Player) setFadeMultiplier(m float64) {
	p.mu.Lock()
	p.fadeMult = m
	p.mu.Unlock()
	p.applyVolume()
}

func (p *Player) applyVolume() {
	p.mu.Lock()
	user, fade := p.userVolume, p.fadeMult
	g := p.graph
	p.mu.Unlock()

	if g != nil {
		if gain := g.Gain(); gain != nil {
			gain.SetUserVolume(user)
			gain.SetFadeMultiplier(fade)
			return
		}
	}
	p.element.SetVolume(user * fade)
}

// EQ returns the equalizer for band-level control.
func (p *Player) EQ() *eq.Equalizer { return p.eq }

// ApplyAutoEQ downloads the named headphone correction preset, converts
// it to band gains, and applies it. Failure leaves the current gains
// untouched.
func (p *Player) ApplyAutoEQ(ctx context.Context, presetKey string) error {
	filters, err := p.fetcher.Fetch(ctx, presetKey)
	if err != nil {
		return err
	}
	p.eq.SetAllGains(autoeq.Convert(filters))
	log.Printf("player: applied AutoEQ preset %q", presetKey)
	return nil
}

// Crossfade returns the crossfade scheduler for settings control.
func (p *Player) Crossfade() *crossfade.Scheduler { return p.fader }

// Stats returns the listening statistics tracker.
func (p *Player) Stats() *stats.Tracker { return p.tracker }

// StartVisualizer creates the visualizer on first use, taps the signal
// chain, and starts rendering. Without a graph there is nothing to
// analyze and the call is a logged no-op.
func (p *Player) StartVisualizer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.graph == nil {
		log.Printf("player: visualizer unavailable without a signal chain")
		return nil
	}
	if p.viz == nil {
		p.viz = visualizer.New(visualizerWidth, visualizerHeight)
		p.vizTap = visualizer.NewTap(visualizer.DefaultTapSize)
		p.viz.Attach(p.vizTap)
	}
	if err := p.graph.InsertAnalysisTap(p.vizTap); err != nil {
		return err
	}
	p.viz.Start()
	return nil
}

// StopVisualizer stops rendering and detaches the tap; audio keeps
// flowing through the chain.
func (p *Player) StopVisualizer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.viz == nil {
		return
	}
	p.viz.Stop()
	if p.graph != nil {
		p.graph.RemoveAnalysisTap()
	}
}

// Visualizer returns the visualizer, or nil before StartVisualizer.
func (p *Player) Visualizer() *visualizer.Visualizer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viz
}

// Close releases the element and stops background work.
func (p *Player) Close() error {
	p.StopVisualizer()
	p.tracker.StopTracking()
	return p.element.Close()
}
