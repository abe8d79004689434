package crossfade

import (
	"sync"
	"testing"
	"time"

	"github.com/quaver-audio/quaver/internal/storage"
)

// recorder captures every multiplier the scheduler applies.
type recorder struct {
	mu       sync.Mutex
	values   []float64
	advances int
	preloads int
	active   bool
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		SetFadeMultiplier: func(v float64) {
			r.mu.Lock()
			r.values = append(r.values, v)
			r.mu.Unlock()
		},
		AdvanceNext: func() {
			r.mu.Lock()
			r.advances++
			r.mu.Unlock()
		},
		PreloadNext: func() {
			r.mu.Lock()
			r.preloads++
			r.mu.Unlock()
		},
		PlaybackActive: func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.active
		},
	}
}

func (r *recorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}

// newTestScheduler wires a scheduler with instant steps and a cycle-end
// signal so tests can wait deterministically.
func newTestScheduler(t *testing.T, rec *recorder) (*Scheduler, chan struct{}) {
	t.Helper()
	s := New(storage.NewMemStore(), rec.hooks())
	s.sleep = func(time.Duration) {}
	done := make(chan struct{}, 4)
	s.onCycleEnd = func() { done <- struct{}{} }
	return s, done
}

func waitCycle(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fade cycle did not finish")
	}
}

func TestFadeOutCycle(t *testing.T) {
	rec := &recorder{active: true}
	s, done := newTestScheduler(t, rec)
	s.SetEnabled(true)
	s.SetDuration(5)

	advanced := make(chan struct{}, 1)
	base := s.hooks.AdvanceNext
	s.hooks.AdvanceNext = func() {
		base()
		advanced <- struct{}{}
	}

	// Ticks approaching the end of a 180 s track; the threshold is
	// crossed once and must start exactly one cycle.
	for _, ct := range []float64{170, 174, 175.5, 176, 177} {
		s.OnTimeUpdate("track-a", ct, 180)
	}

	select {
	case <-advanced:
	case <-time.After(5 * time.Second):
		t.Fatal("advance never fired")
	}
	s.OnPlay("track-b") // next track starts
	waitCycle(t, done)

	rec.mu.Lock()
	advances, preloads := rec.advances, rec.preloads
	rec.mu.Unlock()
	if advances != 1 {
		t.Fatalf("advances = %d, want exactly 1", advances)
	}
	if preloads != 1 {
		t.Fatalf("preloads = %d, want exactly 1 per cycle", preloads)
	}

	values := rec.snapshot()
	// Fade-out portion: 60 monotonically decreasing steps ending at 0.
	if len(values) < fadeOutSteps+fadeInSteps {
		t.Fatalf("got %d multiplier updates, want at least %d", len(values), fadeOutSteps+fadeInSteps)
	}
	out := values[:fadeOutSteps]
	for i := 1; i < len(out); i++ {
		if out[i] >= out[i-1] {
			t.Fatalf("fade-out not monotonic at step %d: %v >= %v", i, out[i], out[i-1])
		}
	}
	if out[len(out)-1] != 0 {
		t.Fatalf("fade-out should end at 0, got %v", out[len(out)-1])
	}
	// Fade-in settles at exactly 1.
	if last := values[len(values)-1]; last != 1 {
		t.Fatalf("cycle should settle at exactly 1, got %v", last)
	}
	if s.Phase() != Idle {
		t.Fatalf("phase = %v after cycle, want Idle", s.Phase())
	}
}

func TestFadeInRequiresDifferentTrack(t *testing.T) {
	rec := &recorder{active: true}
	s, done := newTestScheduler(t, rec)
	s.SetEnabled(true)
	s.SetDuration(5)

	timeout := make(chan time.Time) // watchdog held open
	s.timeoutAfter = func(time.Duration) <-chan time.Time { return timeout }

	advanced := make(chan struct{}, 1)
	base := s.hooks.AdvanceNext
	s.hooks.AdvanceNext = func() {
		base()
		advanced <- struct{}{}
	}

	// An idle play leaves a token in the channel; the cycle must not
	// mistake it for the upcoming transition.
	s.OnPlay("track-a")
	s.OnTimeUpdate("track-a", 176, 180)

	select {
	case <-advanced:
	case <-time.After(5 * time.Second):
		t.Fatal("advance never fired")
	}

	stillWaiting := func(context string) {
		t.Helper()
		select {
		case <-done:
			t.Fatalf("cycle completed %s", context)
		case <-time.After(100 * time.Millisecond):
		}
	}
	stillWaiting("without any track change")

	// A mid-wait repeat of the fading track's identity must not release
	// the fade-in either.
	s.trackChanged <- "track-a"
	stillWaiting("on a repeat of the fading track")

	s.OnPlay("track-b")
	waitCycle(t, done)

	values := rec.snapshot()
	if last := values[len(values)-1]; last != 1 {
		t.Fatalf("cycle should settle at exactly 1, got %v", last)
	}
	if s.Phase() != Idle {
		t.Fatalf("phase = %v after cycle, want Idle", s.Phase())
	}
}

func TestNoFadeWhenDisabled(t *testing.T) {
	rec := &recorder{active: true}
	s, _ := newTestScheduler(t, rec)
	s.OnTimeUpdate("track-a", 178, 180)
	if s.Phase() != Idle {
		t.Fatal("disabled scheduler must stay idle")
	}
	if len(rec.snapshot()) != 0 {
		t.Fatal("disabled scheduler must not touch the multiplier")
	}
}

func TestPauseMidFadeStopsWithoutAdvance(t *testing.T) {
	rec := &recorder{active: false} // playback not active: fade aborts
	s, done := newTestScheduler(t, rec)
	s.SetEnabled(true)
	s.SetDuration(5)

	s.OnTimeUpdate("track-a", 176, 180)
	waitCycle(t, done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.advances != 0 {
		t.Fatal("paused playback must not force a track change")
	}
	// Multiplier restored so the paused track resumes at full volume.
	if last := rec.values[len(rec.values)-1]; last != 1 {
		t.Fatalf("multiplier = %v after abort, want 1", last)
	}
}

func TestNextTrackTimeoutAbandonsWait(t *testing.T) {
	rec := &recorder{active: true}
	s, done := newTestScheduler(t, rec)
	s.SetEnabled(true)
	s.SetDuration(5)

	timeout := make(chan time.Time, 1)
	s.timeoutAfter = func(time.Duration) <-chan time.Time { return timeout }

	s.OnTimeUpdate("track-a", 176, 180)
	// Never signal a track change; fire the watchdog instead.
	go func() {
		time.Sleep(50 * time.Millisecond)
		timeout <- time.Now()
	}()
	waitCycle(t, done)

	if s.Phase() != Idle {
		t.Fatal("timeout must return the scheduler to idle")
	}
	values := rec.snapshot()
	if last := values[len(values)-1]; last != 1 {
		t.Fatalf("timeout must restore the multiplier to 1, got %v", last)
	}
}

func TestEndedResetsCycleFlags(t *testing.T) {
	rec := &recorder{active: true}
	s, _ := newTestScheduler(t, rec)
	s.SetEnabled(true)
	s.OnTimeUpdate("track-a", 176, 180)
	if s.Phase() != FadingOut {
		t.Fatal("expected fade-out to start")
	}
	s.OnEnded()
	if s.Phase() != Idle {
		t.Fatal("ended must reset the phase")
	}
	s.mu.Lock()
	preloaded := s.preloaded
	s.mu.Unlock()
	if preloaded {
		t.Fatal("ended must clear the preload flag")
	}
}

func TestDurationClamped(t *testing.T) {
	s := New(storage.NewMemStore(), Hooks{})
	s.SetDuration(0.2)
	if got := s.Duration(); got != MinDurationSeconds {
		t.Fatalf("duration = %v, want clamp to %d", got, MinDurationSeconds)
	}
	s.SetDuration(100)
	if got := s.Duration(); got != MaxDurationSeconds {
		t.Fatalf("duration = %v, want clamp to %d", got, MaxDurationSeconds)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := storage.NewMemStore()
	s := New(store, Hooks{})
	s.SetEnabled(true)
	s.SetDuration(8)

	reloaded := New(store, Hooks{})
	if !reloaded.Enabled() || reloaded.Duration() != 8 {
		t.Fatalf("round trip lost settings: enabled=%v duration=%v",
			reloaded.Enabled(), reloaded.Duration())
	}
}
