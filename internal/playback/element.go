// Package playback defines the element boundary: the thing that owns a
// track's decoded audio and its transport state. Features upstream
// (equalizer, crossfade, stats, visualizer) talk to an Element and never
// to a decoder or device directly.
package playback

// Track identifies and describes what an element is playing.
type Track struct {
	ID     string
	Title  string
	Artist string
	Album  string
	Path   string
}

// Handlers receives transport events. All callbacks are optional and are
// invoked from the element's own goroutine; keep them brief.
type Handlers struct {
	OnPlay       func(trackID string)
	OnPause      func(trackID string)
	OnTimeUpdate func(trackID string, currentTime, duration float64)
	OnEnded      func(trackID string)
}

// Element is one playable track. Times are in seconds.
type Element interface {
	Track() Track
	CurrentTime() float64
	Duration() float64
	Paused() bool
	Ended() bool

	Play() error
	Pause()
	Seek(seconds float64) error
	SetVolume(v float64)

	SetHandlers(Handlers)
	Close() error
}
