package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/quaver-audio/quaver"
	"github.com/quaver-audio/quaver/internal/eq"
	"github.com/quaver-audio/quaver/internal/graph"
	"github.com/quaver-audio/quaver/internal/playback"
	"github.com/quaver-audio/quaver/internal/storage"
	"github.com/quaver-audio/quaver/internal/visualizer"
)

const (
	windowW = 640
	windowH = 360

	// How much of the next track to pull through the page cache when the
	// crossfade scheduler asks for a preload.
	preloadBytes = 256 << 10
)

var playableExts = map[string]bool{
	".mp3": true,
	".ogg": true,
	".oga": true,
	".wav": true,
}

// mu guards the queue cursor and status, which the crossfade scheduler
// mutates from its own goroutine via advanceNext.
type game struct {
	player *quaver.Player

	mu    sync.Mutex
	queue []string
	idx   int

	frameImg *ebiten.Image
	frameW   int
	frameH   int

	presets   []string
	presetIdx int

	status    string
	statusErr bool
}

func newGame(dir string, store storage.Store) (*game, error) {
	queue, err := scanQueue(dir)
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return nil, fmt.Errorf("no playable files under %s", dir)
	}

	g := &game{
		queue:   queue,
		presets: eq.PresetNames(),
		status:  "Ready",
	}

	el, err := openTrack(queue[0])
	if err != nil {
		return nil, err
	}
	g.player, err = quaver.NewPlayer(el, store,
		quaver.WithGraph(el.Graph()),
		quaver.WithQueueHooks(g.advanceNext, g.preloadNext),
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func scanQueue(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read music dir: %w", err)
	}
	var queue []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if playableExts[strings.ToLower(filepath.Ext(e.Name()))] {
			queue = append(queue, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(queue)
	return queue, nil
}

func openTrack(path string) (*playback.FileElement, error) {
	return playback.Open(path, func(rate int) (*graph.Graph, error) {
		return graph.New(rate), nil
	})
}

// advanceNext is called by the crossfade scheduler when a fade-out
// completes, and by the N key. It wraps around at the end of the queue.
func (g *game) advanceNext() {
	g.mu.Lock()
	g.idx = (g.idx + 1) % len(g.queue)
	path := g.queue[g.idx]
	g.mu.Unlock()

	el, err := openTrack(path)
	if err != nil {
		g.setError(fmt.Sprintf("open %s: %v", filepath.Base(path), err))
		return
	}
	if err := g.player.Load(el, el.Graph()); err != nil {
		g.setError(err.Error())
		return
	}
	if err := g.player.Play(); err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus("Playing " + el.Track().Title)
}

// preloadNext warms the next file so the decoder does not stall when the
// fade-out lands.
func (g *game) preloadNext() {
	g.mu.Lock()
	next := g.queue[(g.idx+1)%len(g.queue)]
	g.mu.Unlock()
	f, err := os.Open(next)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = io.CopyN(io.Discard, f, preloadBytes)
}

func (g *game) setStatus(s string) {
	g.mu.Lock()
	g.status = s
	g.statusErr = false
	g.mu.Unlock()
}

func (g *game) setError(s string) {
	g.mu.Lock()
	g.status = s
	g.statusErr = true
	g.mu.Unlock()
	log.Print(s)
}

func (g *game) statusLine() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr {
		return "error: " + g.status
	}
	return g.status
}

func (g *game) Update() error {
	g.handleKeys()
	return nil
}

func (g *game) handleKeys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		g.togglePlayPause()
	case inpututil.IsKeyJustPressed(ebiten.KeyN):
		g.advanceNext()
	case inpututil.IsKeyJustPressed(ebiten.KeyE):
		g.player.EQ().Toggle()
		g.setStatus(fmt.Sprintf("EQ enabled: %v", g.player.EQ().Enabled()))
	case inpututil.IsKeyJustPressed(ebiten.KeyP):
		g.cyclePreset()
	case inpututil.IsKeyJustPressed(ebiten.KeyV):
		g.toggleVisualizer()
	case inpututil.IsKeyJustPressed(ebiten.KeyM):
		g.cycleVisualizerMode()
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		fader := g.player.Crossfade()
		fader.SetEnabled(!fader.Enabled())
		g.setStatus(fmt.Sprintf("Crossfade: %v (%gs)", fader.Enabled(), fader.Duration()))
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowUp):
		g.player.SetVolume(g.player.Volume() + 0.05)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowDown):
		g.player.SetVolume(g.player.Volume() - 0.05)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowRight):
		g.seekBy(5)
	case inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft):
		g.seekBy(-5)
	}
}

func (g *game) togglePlayPause() {
	el := g.player.Element()
	if el.Paused() {
		if err := g.player.Play(); err != nil {
			g.setError(err.Error())
			return
		}
		g.setStatus("Playing " + el.Track().Title)
		return
	}
	g.player.Pause()
	g.setStatus("Paused")
}

func (g *game) cyclePreset() {
	if len(g.presets) == 0 {
		return
	}
	g.presetIdx = (g.presetIdx + 1) % len(g.presets)
	name := g.presets[g.presetIdx]
	g.player.EQ().ApplyPreset(name)
	g.setStatus("EQ preset: " + name)
}

func (g *game) toggleVisualizer() {
	viz := g.player.Visualizer()
	if viz != nil && viz.State() == visualizer.StateActive {
		g.player.StopVisualizer()
		g.setStatus("Visualizer off")
		return
	}
	if err := g.player.StartVisualizer(); err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus("Visualizer on")
}

func (g *game) cycleVisualizerMode() {
	viz := g.player.Visualizer()
	if viz == nil {
		return
	}
	next := (viz.Mode() + 1) % 3
	viz.SetMode(next)
	g.setStatus(fmt.Sprintf("Visualizer mode: %d", next))
}

func (g *game) seekBy(delta float64) {
	el := g.player.Element()
	target := el.CurrentTime() + delta
	if target < 0 {
		target = 0
	}
	if err := g.player.Seek(target); err != nil {
		g.setError(err.Error())
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	g.drawVisualizerFrame(screen)

	el := g.player.Element()
	track := el.Track()
	line := fmt.Sprintf("%s - %s", track.Artist, track.Title)
	if track.Artist == "" {
		line = track.Title
	}
	ebitenutil.DebugPrintAt(screen, line, 8, 248)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s / %s  vol %.0f%%",
		fmtTime(el.CurrentTime()), fmtTime(el.Duration()), g.player.Volume()*100), 8, 264)

	total, since := g.player.Stats().Totals()
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("listened %s since %s",
		fmtTime(total), since.Format("2006-01-02")), 8, 280)

	ebitenutil.DebugPrintAt(screen, g.statusLine(), 8, 304)
	ebitenutil.DebugPrintAt(screen,
		"space play/pause  n next  e eq  p preset  v viz  m mode  c fade  arrows vol/seek", 8, 336)
}

func (g *game) drawVisualizerFrame(screen *ebiten.Image) {
	viz := g.player.Visualizer()
	if viz == nil {
		return
	}
	frame := viz.Frame()
	if frame == nil {
		return
	}
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	if g.frameImg == nil || g.frameW != w || g.frameH != h {
		g.frameImg = ebiten.NewImage(w, h)
		g.frameW, g.frameH = w, h
	}
	g.frameImg.WritePixels(frame.Pix)
	screen.DrawImage(g.frameImg, nil)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	return windowW, windowH
}

func fmtTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}

func main() {
	var (
		dir       = flag.String("dir", ".", "directory of audio files (mp3, ogg, wav)")
		dataDir   = flag.String("data", "", "settings directory (defaults to the user config dir)")
		autoeqKey = flag.String("autoeq", "", "AutoEq preset key to apply at startup")
	)
	flag.Parse()

	store, err := openStore(*dataDir)
	if err != nil {
		log.Fatal(err)
	}

	g, err := newGame(*dir, store)
	if err != nil {
		log.Fatal(err)
	}
	defer g.player.Close()

	if *autoeqKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		if err := g.player.ApplyAutoEQ(ctx, *autoeqKey); err != nil {
			log.Printf("autoeq preset %q: %v", *autoeqKey, err)
		}
		cancel()
	}

	if err := g.player.StartVisualizer(); err != nil {
		log.Printf("visualizer: %v", err)
	}
	if err := g.player.Play(); err != nil {
		log.Fatal(err)
	}
	g.setStatus("Playing " + g.player.Element().Track().Title)

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowTitle("quaver")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}

func openStore(dataDir string) (storage.Store, error) {
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			log.Printf("no user config dir, settings will not persist: %v", err)
			return storage.NewMemStore(), nil
		}
		dataDir = filepath.Join(base, "quaver")
	}
	return storage.NewFileStore(dataDir)
}
