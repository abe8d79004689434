package graph

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource produces interleaved stereo float32 samples. Process fills
// dst completely; when the source is exhausted it zero-fills the remainder.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal end of material. When
// Finished returns true the stream reports io.EOF after the current buffer
// so the destination player stops on its own.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader adapts a SampleSource to the io.Reader the audio backend
// consumes: 32-bit little-endian float frames, two channels.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	n := frames * 8
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

// Destination is the final sink of the signal chain: the platform audio
// output. It is abstracted so the graph can be composed and exercised
// without an audio device.
type Destination interface {
	Play()
	Pause()
	IsPlaying() bool
	Position() time.Duration
	Close() error
}

// DestinationFactory creates the sink for a composed graph.
type DestinationFactory func(sampleRate int, r io.Reader) (Destination, error)

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// sharedAudioContext returns the process-wide audio context. The platform
// allows exactly one context per process, created at a fixed sample rate.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

type devicePlayer struct {
	player *ebitaudio.Player
	reader io.Reader
}

// DeviceDestination is the default DestinationFactory, backed by the shared
// audio context and a float32 stream player.
func DeviceDestination(sampleRate int, r io.Reader) (Destination, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	pl, err := ctx.NewPlayerF32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	return &devicePlayer{player: pl, reader: r}, nil
}

func (p *devicePlayer) Play()                   { p.player.Play() }
func (p *devicePlayer) Pause()                  { p.player.Pause() }
func (p *devicePlayer) IsPlaying() bool         { return p.player.IsPlaying() }
func (p *devicePlayer) Position() time.Duration { return p.player.Position() }

func (p *devicePlayer) Close() error {
	p.player.Pause()
	return p.player.Close()
}
