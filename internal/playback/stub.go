package playback

import "sync"

// Stub is a hand-driven Element for tests: callers move its clock and
// fire its lifecycle explicitly instead of waiting on real audio.
type Stub struct {
	mu       sync.Mutex
	track    Track
	current  float64
	duration float64
	paused   bool
	ended    bool
	volume   float64
	handlers Handlers
}

func NewStub(track Track, duration float64) *Stub {
	return &Stub{track: track, duration: duration, paused: true, volume: 1}
}

func (s *Stub) Track() Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *Stub) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Stub) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Stub) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Stub) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Stub) Play() error {
	s.mu.Lock()
	s.paused = false
	s.ended = false
	h, id := s.handlers, s.track.ID
	s.mu.Unlock()
	if h.OnPlay != nil {
		h.OnPlay(id)
	}
	return nil
}

func (s *Stub) Pause() {
	s.mu.Lock()
	s.paused = true
	h, id := s.handlers, s.track.ID
	s.mu.Unlock()
	if h.OnPause != nil {
		h.OnPause(id)
	}
}

func (s *Stub) Seek(seconds float64) error {
	s.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if seconds > s.duration {
		seconds = s.duration
	}
	s.current = seconds
	s.ended = false
	s.mu.Unlock()
	return nil
}

func (s *Stub) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

// Volume reports the last value passed to SetVolume.
func (s *Stub) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Stub) SetHandlers(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

func (s *Stub) Close() error { return nil }

// AdvanceTo moves the clock and emits a time update, mimicking the
// element's periodic reporting.
func (s *Stub) AdvanceTo(seconds float64) {
	s.mu.Lock()
	if seconds > s.duration {
		seconds = s.duration
	}
	s.current = seconds
	h, id, dur := s.handlers, s.track.ID, s.duration
	s.mu.Unlock()
	if h.OnTimeUpdate != nil {
		h.OnTimeUpdate(id, seconds, dur)
	}
}

// SwitchTrack rebinds the stub to a new track, as a player does when it
// loads the next item in a queue.
func (s *Stub) SwitchTrack(track Track, duration float64) {
	s.mu.Lock()
	s.track = track
	s.duration = duration
	s.current = 0
	s.ended = false
	s.mu.Unlock()
}

// End drives the element to its natural end and fires ended.
func (s *Stub) End() {
	s.mu.Lock()
	s.current = s.duration
	s.paused = true
	s.ended = true
	h, id := s.handlers, s.track.ID
	s.mu.Unlock()
	if h.OnEnded != nil {
		h.OnEnded(id)
	}
}

var _ Element = (*Stub)(nil)
var _ Element = (*FileElement)(nil)
