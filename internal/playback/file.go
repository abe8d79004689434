package playback

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"github.com/quaver-audio/quaver/internal/graph"
)

const bytesPerFrame = 8 // stereo float32

// decodedStream is the subset of the ebiten decoder streams the element
// needs: little-endian float32 stereo frames with a known total length.
type decodedStream interface {
	io.ReadSeeker
	Length() int64
}

// decodedSource adapts a decoded stream to the graph's pull model. On
// stream end it zero-fills and reports finished. Seeking resets the
// finished flag so a rewound track can play again.
type decodedSource struct {
	mu          sync.Mutex
	stream      decodedStream
	totalFrames int64
	framesOut   int64
	finished    bool
	scratch     []byte
}

func newDecodedSource(stream decodedStream) *decodedSource {
	return &decodedSource{
		stream:      stream,
		totalFrames: stream.Length() / bytesPerFrame,
	}
}

func (s *decodedSource) Process(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	need := len(dst) * 4
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]

	n, err := io.ReadFull(s.stream, buf)
	if err != nil {
		s.finished = true
	}
	samples := n / 4
	for i := 0; i < samples; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	for i := samples; i < len(dst); i++ {
		dst[i] = 0
	}
	s.framesOut += int64(samples / 2)
}

func (s *decodedSource) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *decodedSource) seekFrames(frame int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frame < 0 {
		frame = 0
	}
	if frame > s.totalFrames {
		frame = s.totalFrames
	}
	if _, err := s.stream.Seek(frame*bytesPerFrame, io.SeekStart); err != nil {
		return err
	}
	s.framesOut = frame
	s.finished = false
	return nil
}

func (s *decodedSource) frames() (out, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesOut, s.totalFrames
}

// FileElement plays one local media file through an audio graph. The
// graph is created by the injected factory once the file's sample rate
// is known; callers pull it back out with Graph() to attach effects and
// taps.
type FileElement struct {
	track      Track
	file       *os.File
	src        *decodedSource
	graph      *graph.Graph
	sampleRate int

	mu       sync.Mutex
	handlers Handlers
	ended    bool

	done chan struct{}
	once sync.Once
}

// GraphFactory builds the signal chain for a decoded track.
type GraphFactory func(sampleRate int) (*graph.Graph, error)

// Open decodes path (mp3, ogg, or wav by extension), reads its metadata,
// and composes a graph around it. The element starts paused.
func Open(path string, newGraph GraphFactory) (*FileElement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}

	track := readMetadata(f, path)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("open track: %w", err)
	}

	stream, rate, err := decode(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}

	g, err := newGraph(rate)
	if err != nil {
		f.Close()
		return nil, err
	}

	src := newDecodedSource(stream)
	if err := g.Compose(src); err != nil {
		f.Close()
		return nil, err
	}

	e := &FileElement{
		track:      track,
		file:       f,
		src:        src,
		graph:      g,
		sampleRate: rate,
		done:       make(chan struct{}),
	}
	go e.watch()
	return e, nil
}

func decode(f *os.File, path string) (decodedStream, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, err := mp3.DecodeF32(f)
		if err != nil {
			return nil, 0, fmt.Errorf("decode mp3: %w", err)
		}
		return s, s.SampleRate(), nil
	case ".ogg", ".oga":
		s, err := vorbis.DecodeF32(f)
		if err != nil {
			return nil, 0, fmt.Errorf("decode vorbis: %w", err)
		}
		return s, s.SampleRate(), nil
	case ".wav":
		s, err := wav.DecodeF32(f)
		if err != nil {
			return nil, 0, fmt.Errorf("decode wav: %w", err)
		}
		return s, s.SampleRate(), nil
	default:
		return nil, 0, fmt.Errorf("unsupported media type %q", filepath.Ext(path))
	}
}

// readMetadata fills the track from embedded tags, falling back to the
// file name when the file carries none.
func readMetadata(f *os.File, path string) Track {
	track := Track{
		ID:    path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:  path,
	}
	m, err := tag.ReadFrom(f)
	if err != nil {
		log.Printf("playback: no tags in %s: %v", filepath.Base(path), err)
		return track
	}
	if t := m.Title(); t != "" {
		track.Title = t
	}
	track.Artist = m.Artist()
	track.Album = m.Album()
	return track
}

// watch emits time updates at roughly the cadence a media element would
// and fires ended exactly once when the stream runs out.
func (e *FileElement) watch() {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-tick.C:
		}

		playing := e.graph.Playing()
		finished := e.src.Finished()

		e.mu.Lock()
		h := e.handlers
		firedEnded := e.ended
		if finished && !firedEnded {
			e.ended = true
		}
		e.mu.Unlock()

		if finished && !firedEnded {
			e.graph.Pause()
			if h.OnEnded != nil {
				h.OnEnded(e.track.ID)
			}
			continue
		}
		if playing && !finished && h.OnTimeUpdate != nil {
			h.OnTimeUpdate(e.track.ID, e.CurrentTime(), e.Duration())
		}
	}
}

// Graph exposes the composed signal chain for effect and tap wiring.
func (e *FileElement) Graph() *graph.Graph { return e.graph }

func (e *FileElement) Track() Track { return e.track }

func (e *FileElement) CurrentTime() float64 {
	out, _ := e.src.frames()
	return float64(out) / float64(e.sampleRate)
}

func (e *FileElement) Duration() float64 {
	_, total := e.src.frames()
	return float64(total) / float64(e.sampleRate)
}

func (e *FileElement) Paused() bool { return !e.graph.Playing() }

func (e *FileElement) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *FileElement) Play() error {
	if err := e.graph.Resume(); err != nil {
		return err
	}
	e.mu.Lock()
	h := e.handlers
	e.mu.Unlock()
	if h.OnPlay != nil {
		h.OnPlay(e.track.ID)
	}
	return nil
}

func (e *FileElement) Pause() {
	e.graph.Pause()
	e.mu.Lock()
	h := e.handlers
	e.mu.Unlock()
	if h.OnPause != nil {
		h.OnPause(e.track.ID)
	}
}

func (e *FileElement) Seek(seconds float64) error {
	frame := int64(seconds * float64(e.sampleRate))
	if err := e.src.seekFrames(frame); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	e.mu.Lock()
	e.ended = false
	e.mu.Unlock()
	return nil
}

func (e *FileElement) SetVolume(v float64) {
	if gain := e.graph.Gain(); gain != nil {
		gain.SetUserVolume(v)
	}
}

func (e *FileElement) SetHandlers(h Handlers) {
	e.mu.Lock()
	e.handlers = h
	e.mu.Unlock()
}

func (e *FileElement) Close() error {
	e.once.Do(func() { close(e.done) })
	err := e.graph.Close()
	if cerr := e.file.Close(); err == nil {
		err = cerr
	}
	return err
}
