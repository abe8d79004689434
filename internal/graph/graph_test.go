package graph

import (
	"errors"
	"io"
	"testing"
	"time"
)

type fakeDest struct {
	reader  io.Reader
	playing bool
	created int
	failed  bool
}

func (d *fakeDest) factory(sampleRate int, r io.Reader) (Destination, error) {
	if d.failed {
		return nil, ErrNoAudio
	}
	d.created++
	d.reader = r
	return d, nil
}

func (d *fakeDest) Play()                   { d.playing = true }
func (d *fakeDest) Pause()                  { d.playing = false }
func (d *fakeDest) IsPlaying() bool         { return d.playing }
func (d *fakeDest) Position() time.Duration { return 0 }
func (d *fakeDest) Close() error            { return nil }

type constSource struct{ value float32 }

func (s *constSource) Process(dst []float32) {
	for i := range dst {
		dst[i] = s.value
	}
}

type recordStage struct {
	calls int
	last  []float32
}

func (s *recordStage) Process(buf []float32) {
	s.calls++
	s.last = append(s.last[:0], buf...)
}

func TestComposeIsIdempotent(t *testing.T) {
	dest := &fakeDest{}
	g := New(48000, WithDestinationFactory(dest.factory))
	src := &constSource{value: 0.5}

	if err := g.Compose(src); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if err := g.Compose(src); err != nil {
		t.Fatalf("second compose should be a no-op, got %v", err)
	}
	if got := g.NodeCount("source"); got != 1 {
		t.Fatalf("source nodes = %d, want 1", got)
	}
	if dest.created != 1 {
		t.Fatalf("destinations created = %d, want 1", dest.created)
	}
}

func TestComposeRejectsSecondSource(t *testing.T) {
	dest := &fakeDest{}
	g := New(48000, WithDestinationFactory(dest.factory))
	if err := g.Compose(&constSource{}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	err := g.Compose(&constSource{})
	if !errors.Is(err, ErrSourceAttached) {
		t.Fatalf("err = %v, want ErrSourceAttached", err)
	}
}

func TestComposeSurfacesMissingAudio(t *testing.T) {
	dest := &fakeDest{failed: true}
	g := New(48000, WithDestinationFactory(dest.factory))
	err := g.Compose(&constSource{})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
	if g.Composed() {
		t.Fatal("graph must not report composed after a failed compose")
	}
}

func TestFailedComposeCountsNoNodes(t *testing.T) {
	dest := &fakeDest{failed: true}
	g := New(48000, WithDestinationFactory(dest.factory))
	if err := g.Compose(&constSource{}); err == nil {
		t.Fatal("expected compose to fail")
	}
	for _, kind := range []string{"source", "gain", "destination"} {
		if got := g.NodeCount(kind); got != 0 {
			t.Fatalf("%s nodes after failed compose = %d, want 0", kind, got)
		}
	}

	// A successful retry must not inherit counts from the failed attempt.
	dest.failed = false
	if err := g.Compose(&constSource{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	for _, kind := range []string{"source", "gain", "destination"} {
		if got := g.NodeCount(kind); got != 1 {
			t.Fatalf("%s nodes after retry = %d, want 1", kind, got)
		}
	}
}

func TestSignalFlowsThroughStages(t *testing.T) {
	dest := &fakeDest{}
	g := New(48000, WithDestinationFactory(dest.factory))
	if err := g.Compose(&constSource{value: 0.5}); err != nil {
		t.Fatalf("compose: %v", err)
	}

	fx := &recordStage{}
	tap := &recordStage{}
	if err := g.SetEffects(fx); err != nil {
		t.Fatalf("set effects: %v", err)
	}
	if err := g.InsertAnalysisTap(tap); err != nil {
		t.Fatalf("insert tap: %v", err)
	}
	g.Gain().SetUserVolume(0.5)

	// Pull one buffer through the reader the destination holds.
	buf := make([]byte, 64*8)
	if _, err := dest.reader.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if fx.calls != 1 || tap.calls != 1 {
		t.Fatalf("stage calls fx=%d tap=%d, want 1 each", fx.calls, tap.calls)
	}
	// The tap sits after the gain: it must see 0.5 * 0.5.
	if got := tap.last[0]; got < 0.249 || got > 0.251 {
		t.Fatalf("tap sample = %v, want 0.25", got)
	}
}

func TestRemoveAnalysisTapKeepsAudioFlowing(t *testing.T) {
	dest := &fakeDest{}
	g := New(48000, WithDestinationFactory(dest.factory))
	if err := g.Compose(&constSource{value: 0.25}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	tap := &recordStage{}
	if err := g.InsertAnalysisTap(tap); err != nil {
		t.Fatalf("insert tap: %v", err)
	}
	g.RemoveAnalysisTap()

	buf := make([]byte, 16*8)
	if _, err := dest.reader.Read(buf); err != nil {
		t.Fatalf("read after tap removal: %v", err)
	}
	if tap.calls != 0 {
		t.Fatal("removed tap must not be called")
	}
}

func TestResumeStartsSuspendedDestination(t *testing.T) {
	dest := &fakeDest{}
	g := New(48000, WithDestinationFactory(dest.factory))
	if err := g.Resume(); !errors.Is(err, ErrNotComposed) {
		t.Fatalf("resume before compose = %v, want ErrNotComposed", err)
	}
	if err := g.Compose(&constSource{}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if err := g.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !g.Playing() {
		t.Fatal("destination should be playing after resume")
	}
}

func TestGainStageComposesFactors(t *testing.T) {
	gain := NewGainStage()
	gain.SetUserVolume(0.8)
	gain.SetFadeMultiplier(0.5)
	if got := gain.Effective(); got < 0.399 || got > 0.401 {
		t.Fatalf("effective = %v, want 0.4", got)
	}

	// Clamping on both factors.
	gain.SetUserVolume(1.5)
	gain.SetFadeMultiplier(-0.1)
	if gain.UserVolume() != 1 || gain.FadeMultiplier() != 0 {
		t.Fatalf("clamp failed: vol=%v mult=%v", gain.UserVolume(), gain.FadeMultiplier())
	}

	buf := []float32{1, 1}
	gain.SetUserVolume(0.5)
	gain.SetFadeMultiplier(0.5)
	gain.Process(buf)
	if buf[0] != 0.25 {
		t.Fatalf("processed sample = %v, want 0.25", buf[0])
	}
}
