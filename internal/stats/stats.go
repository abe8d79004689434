// Package stats accumulates local listening statistics. A session is one
// continuous listen interval for a single track; only sessions of at
// least 30 seconds count as plays. Aggregates persist after every
// mutation and reload at startup.
package stats

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quaver-audio/quaver/internal/storage"
)

const (
	aggregateKey = "stats.aggregate"

	// MinSessionSeconds is the commit threshold: shorter listens do not
	// count as plays.
	MinSessionSeconds = 30

	// MaxHistoryEntries bounds the history log; the oldest entry is
	// evicted first.
	MaxHistoryEntries = 1000
)

// Track identifies what is being listened to. ID must be stable across
// sessions.
type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// Entry is one aggregate row for a track, artist, or album.
type Entry struct {
	PlayCount    int       `json:"playCount"`
	TotalSeconds float64   `json:"totalSeconds"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
	Display      string    `json:"display"`
}

// HistoryItem is one committed session in the history log.
type HistoryItem struct {
	SessionID string    `json:"sessionId"`
	TrackID   string    `json:"trackId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Seconds   float64   `json:"seconds"`
	PlayedAt  time.Time `json:"playedAt"`
}

// Aggregate is the persisted statistics document.
type Aggregate struct {
	Tracks       map[string]Entry `json:"tracks"`
	Artists      map[string]Entry `json:"artists"`
	Albums       map[string]Entry `json:"albums"`
	History      []HistoryItem    `json:"history"`
	TotalSeconds float64          `json:"totalSeconds"`
	StartDate    time.Time        `json:"startDate"`
}

func newAggregate(now time.Time) Aggregate {
	return Aggregate{
		Tracks:    make(map[string]Entry),
		Artists:   make(map[string]Entry),
		Albums:    make(map[string]Entry),
		StartDate: now,
	}
}

// session is the active listen interval. accumulated carries time across
// pause/resume; startedAt is the current elapsed-time baseline.
type session struct {
	id          string
	track       Track
	startedAt   time.Time
	accumulated float64
	running     bool
	committed   bool
}

// Tracker owns the active session and the persisted aggregate.
type Tracker struct {
	store storage.Store
	now   func() time.Time

	mu      sync.Mutex
	agg     Aggregate
	current *session
}

func New(store storage.Store) *Tracker {
	return NewWithClock(store, time.Now)
}

// NewWithClock injects the clock; tests drive time explicitly.
func NewWithClock(store storage.Store, now func() time.Time) *Tracker {
	t := &Tracker{store: store, now: now, agg: newAggregate(now())}
	var loaded Aggregate
	if storage.LoadJSON(store, aggregateKey, &loaded) && loaded.Tracks != nil {
		t.agg = loaded
	}
	return t
}

// StartTracking begins a new session for track. A track without a stable
// identifier is ignored. Any previous session is stopped (committing it
// if eligible) first.
func (t *Tracker) StartTracking(track Track) {
	if track.ID == "" {
		return
	}
	t.StopTracking()

	t.mu.Lock()
	t.current = &session{
		id:        uuid.NewString(),
		track:     track,
		startedAt: t.now(),
		running:   true,
	}
	t.mu.Unlock()
}

// PauseTracking folds elapsed time into the session and commits it to the
// aggregates when it has reached the threshold; shorter sessions are
// discarded silently.
func (t *Tracker) PauseTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.current
	if s == nil || !s.running {
		return
	}
	s.accumulated += t.now().Sub(s.startedAt).Seconds()
	s.running = false

	if s.accumulated >= MinSessionSeconds || (s.committed && s.accumulated > 0) {
		t.commitLocked(s)
		s.accumulated = 0
		s.committed = true
	}
}

// ResumeTracking restarts the elapsed-time baseline without creating a
// new session identity.
func (t *Tracker) ResumeTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.current
	if s == nil || s.running {
		return
	}
	s.startedAt = t.now()
	s.running = true
}

// StopTracking pauses (committing if eligible) and clears the session.
func (t *Tracker) StopTracking() {
	t.PauseTracking()
	t.mu.Lock()
	t.current = nil
	t.mu.Unlock()
}

// commitLocked applies one eligible session to the aggregates and
// persists. A session already committed once adds time only, not a
// second play. Callers hold t.mu.
func (t *Tracker) commitLocked(s *session) {
	now := t.now()
	secs := s.accumulated

	bump := func(m map[string]Entry, key, display string) {
		if key == "" {
			return
		}
		e := m[key]
		if !s.committed {
			e.PlayCount++
		}
		e.TotalSeconds += secs
		e.LastPlayedAt = now
		e.Display = display
		m[key] = e
	}
	bump(t.agg.Tracks, s.track.ID, s.track.Title)
	bump(t.agg.Artists, s.track.Artist, s.track.Artist)
	bump(t.agg.Albums, s.track.Album, s.track.Album)

	if !s.committed {
		t.agg.History = append(t.agg.History, HistoryItem{
			SessionID: s.id,
			TrackID:   s.track.ID,
			Title:     s.track.Title,
			Artist:    s.track.Artist,
			Seconds:   secs,
			PlayedAt:  now,
		})
		if over := len(t.agg.History) - MaxHistoryEntries; over > 0 {
			t.agg.History = append(t.agg.History[:0], t.agg.History[over:]...)
		}
	}
	t.agg.TotalSeconds += secs

	t.persistLocked()
}

// Clear wipes all statistics. The caller is responsible for confirming
// this irreversible action with the user first.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
	t.agg = newAggregate(t.now())
	t.persistLocked()
}

func (t *Tracker) persistLocked() {
	if err := storage.SaveJSON(t.store, aggregateKey, t.agg); err != nil {
		log.Printf("stats: persist aggregate: %v", err)
	}
}

// Ranked is one row of a top-N projection.
type Ranked struct {
	Key   string
	Entry Entry
}

// TopTracks returns the n most-played tracks. Pure read; no mutation.
func (t *Tracker) TopTracks(n int) []Ranked {
	return t.top(n, func(a *Aggregate) map[string]Entry { return a.Tracks })
}

// TopArtists returns the n most-played artists.
func (t *Tracker) TopArtists(n int) []Ranked {
	return t.top(n, func(a *Aggregate) map[string]Entry { return a.Artists })
}

// TopAlbums returns the n most-played albums.
func (t *Tracker) TopAlbums(n int) []Ranked {
	return t.top(n, func(a *Aggregate) map[string]Entry { return a.Albums })
}

func (t *Tracker) top(n int, pick func(*Aggregate) map[string]Entry) []Ranked {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := pick(&t.agg)
	out := make([]Ranked, 0, len(m))
	for k, e := range m {
		out = append(out, Ranked{Key: k, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.PlayCount != out[j].Entry.PlayCount {
			return out[i].Entry.PlayCount > out[j].Entry.PlayCount
		}
		return out[i].Entry.TotalSeconds > out[j].Entry.TotalSeconds
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// RecentHistory returns up to n history items, newest first.
func (t *Tracker) RecentHistory(n int) []HistoryItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.agg.History
	if n > len(h) {
		n = len(h)
	}
	out := make([]HistoryItem, n)
	for i := 0; i < n; i++ {
		out[i] = h[len(h)-1-i]
	}
	return out
}

// Totals returns the running listen time and the date tracking began.
func (t *Tracker) Totals() (totalSeconds float64, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agg.TotalSeconds, t.agg.StartDate
}
