// Package crossfade coordinates the volume ramp across the boundary
// between two tracks. It is driven entirely by playback-element events
// (time updates, play, ended); the audible effect goes through the
// graph's fade multiplier so it composes with the user's volume instead
// of overwriting it.
package crossfade

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/quaver-audio/quaver/internal/storage"
)

// Phase is the scheduler's position in the fade cycle.
type Phase int

const (
	Idle Phase = iota
	FadingOut
	FadingIn
)

const (
	settingsKey = "crossfade.settings"

	// MinDurationSeconds and MaxDurationSeconds bound the configured
	// fade length.
	MinDurationSeconds = 1
	MaxDurationSeconds = 12

	defaultDurationSeconds = 5

	fadeOutSteps = 60
	fadeInSteps  = 30

	// nextTrackWait bounds how long a finished fade-out waits for the
	// next track to actually start before giving up.
	nextTrackWait = 10 * time.Second
)

// Settings is the persisted shape of the crossfade configuration.
type Settings struct {
	Enabled         bool    `json:"enabled"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Hooks are the scheduler's outgoing edges. SetFadeMultiplier applies the
// current multiplier to the output gain; AdvanceNext asks the host to move
// to the next track; PreloadNext warms the next track's audio data;
// PlaybackActive reports whether playback is still running.
type Hooks struct {
	SetFadeMultiplier func(float64)
	AdvanceNext       func()
	PreloadNext       func()
	PlaybackActive    func() bool
}

// Scheduler is the crossfade state machine: idle -> fadingOut ->
// fadingIn -> idle, keyed off playback time.
type Scheduler struct {
	store storage.Store
	hooks Hooks

	mu           sync.Mutex
	settings     Settings
	phase        Phase
	preloaded    bool
	currentTrack string
	fadeTrack    string // track identity when the fade-out began
	gen          int    // bumped on reset; cancels an in-flight cycle

	trackChanged chan string

	// Injected for tests.
	sleep        func(time.Duration)
	timeoutAfter func(time.Duration) <-chan time.Time
	onCycleEnd   func()
}

func New(store storage.Store, hooks Hooks) *Scheduler {
	s := &Scheduler{
		store:        store,
		hooks:        hooks,
		settings:     Settings{DurationSeconds: defaultDurationSeconds},
		trackChanged: make(chan string, 1),
		sleep:        time.Sleep,
		timeoutAfter: time.After,
	}
	var loaded Settings
	if storage.LoadJSON(store, settingsKey, &loaded) {
		loaded.DurationSeconds = clampDuration(loaded.DurationSeconds)
		s.settings = loaded
	}
	return s
}

// SetEnabled toggles the feature and persists the change.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.settings.Enabled = enabled
	s.persistLocked()
	s.mu.Unlock()
}

func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Enabled
}

// SetDuration sets the fade length in seconds, clamped to [1,12], and
// persists the change.
func (s *Scheduler) SetDuration(seconds float64) {
	s.mu.Lock()
	s.settings.DurationSeconds = clampDuration(seconds)
	s.persistLocked()
	s.mu.Unlock()
}

func (s *Scheduler) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.DurationSeconds
}

func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// OnTimeUpdate is called on every playback time update. When enabled and
// idle, a time remaining within the configured duration starts exactly
// one fade-out cycle.
func (s *Scheduler) OnTimeUpdate(trackID string, currentTime, duration float64) {
	s.mu.Lock()
	s.currentTrack = trackID
	if !s.settings.Enabled || s.phase != Idle || duration <= 0 {
		s.mu.Unlock()
		return
	}
	remaining := duration - currentTime
	if remaining <= 0 || remaining > s.settings.DurationSeconds {
		s.mu.Unlock()
		return
	}

	s.phase = FadingOut
	s.fadeTrack = trackID
	fadeDur := time.Duration(s.settings.DurationSeconds * float64(time.Second))
	gen := s.gen
	preload := !s.preloaded
	s.preloaded = true
	s.mu.Unlock()

	// Discard any track token left over from before this cycle; only
	// plays that happen after the fade started may release the fade-in.
	select {
	case <-s.trackChanged:
	default:
	}

	log.Printf("crossfade: fading out %q over %s", trackID, fadeDur)
	go s.runCycle(gen, fadeDur, preload)
}

// OnPlay is called when playback starts. A different track identity
// signals the waiting fade-in and, if no cycle is in flight, resets the
// per-cycle flags.
func (s *Scheduler) OnPlay(trackID string) {
	s.mu.Lock()
	changed := trackID != s.currentTrack
	s.currentTrack = trackID
	if changed && s.phase == Idle {
		// A fresh play outside a fade cycle clears stale flags.
		s.resetLocked()
	}
	s.mu.Unlock()

	if changed {
		// Newest identity wins; an unconsumed older token is dropped.
		select {
		case <-s.trackChanged:
		default:
		}
		select {
		case s.trackChanged <- trackID:
		default:
		}
	}
}

// OnEnded is called when playback ends. It clears the fading and preload
// flags back to their initial state.
func (s *Scheduler) OnEnded() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

// resetLocked cancels any in-flight cycle and restores initial state.
// Callers hold s.mu.
func (s *Scheduler) resetLocked() {
	s.gen++
	s.phase = Idle
	s.preloaded = false
	s.fadeTrack = ""
}

// runCycle executes one fade-out, waits for the next track, then fades
// back in. It aborts silently whenever the generation moves on.
func (s *Scheduler) runCycle(gen int, fadeDur time.Duration, preload bool) {
	defer func() {
		if s.onCycleEnd != nil {
			s.onCycleEnd()
		}
	}()

	if preload && s.hooks.PreloadNext != nil {
		s.hooks.PreloadNext()
	}

	// Fade out: 60 linear steps from 1 to 0.
	step := fadeDur / fadeOutSteps
	for i := 1; i <= fadeOutSteps; i++ {
		if s.cancelled(gen) {
			return
		}
		if s.hooks.PlaybackActive != nil && !s.hooks.PlaybackActive() {
			// Paused or ended mid-fade: stop early, restore volume,
			// and do not force a track change.
			s.hooks.SetFadeMultiplier(1)
			s.finish(gen)
			return
		}
		s.hooks.SetFadeMultiplier(1 - float64(i)/fadeOutSteps)
		s.sleep(step)
	}

	if s.cancelled(gen) {
		return
	}
	if s.hooks.PlaybackActive == nil || s.hooks.PlaybackActive() {
		s.hooks.AdvanceNext()
	} else {
		s.hooks.SetFadeMultiplier(1)
		s.finish(gen)
		return
	}

	// Wait for a track with a different identity to actually start,
	// bounded so an undetected transition cannot leak this goroutine
	// forever. A repeat of the fading track's identity keeps waiting.
	s.mu.Lock()
	fadeTrack := s.fadeTrack
	s.mu.Unlock()
	deadline := s.timeoutAfter(nextTrackWait)
wait:
	for {
		select {
		case next := <-s.trackChanged:
			if next != fadeTrack {
				break wait
			}
			log.Printf("crossfade: ignoring stale track signal %q", next)
		case <-deadline:
			log.Printf("crossfade: next track not detected within %s, abandoning fade-in", nextTrackWait)
			s.hooks.SetFadeMultiplier(1)
			s.finish(gen)
			return
		}
	}

	if s.cancelled(gen) {
		return
	}
	s.mu.Lock()
	if s.gen == gen {
		s.phase = FadingIn
	}
	s.mu.Unlock()

	// Fade in: 30 steps from 0 to exactly 1.
	step = fadeDur / fadeInSteps
	for i := 1; i <= fadeInSteps; i++ {
		if s.cancelled(gen) {
			return
		}
		s.hooks.SetFadeMultiplier(math.Min(1, float64(i)/fadeInSteps))
		s.sleep(step)
	}
	s.hooks.SetFadeMultiplier(1)
	s.finish(gen)
}

// finish returns the cycle to idle and re-arms preload, unless a reset
// already superseded this cycle.
func (s *Scheduler) finish(gen int) {
	s.mu.Lock()
	if s.gen == gen {
		s.phase = Idle
		s.preloaded = false
		s.fadeTrack = ""
	}
	s.mu.Unlock()
}

func (s *Scheduler) cancelled(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

func (s *Scheduler) persistLocked() {
	if err := storage.SaveJSON(s.store, settingsKey, s.settings); err != nil {
		log.Printf("crossfade: persist settings: %v", err)
	}
}

func clampDuration(seconds float64) float64 {
	return math.Max(MinDurationSeconds, math.Min(MaxDurationSeconds, seconds))
}
