// Package eq implements the 10-band graphic equalizer as a stage in the
// shared signal chain. Gains are stored as float64 bit patterns for
// lock-free reads from the audio thread; every settings change is
// persisted immediately.
package eq

import (
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/quaver-audio/quaver/internal/storage"
)

const (
	// BandCount is the fixed number of graphic EQ bands.
	BandCount = 10

	// MinGainDB and MaxGainDB bound every band gain.
	MinGainDB = -12
	MaxGainDB = 12

	settingsKey      = "equalizer.settings"
	customPresetsKey = "equalizer.presets"
)

// Band is one fixed center-frequency slot of the equalizer.
type Band struct {
	CenterFrequency float64
	QualityFactor   float64
	Label           string
}

// DefaultBands is the fixed ordered band layout, 60 Hz to 16 kHz.
func DefaultBands() [BandCount]Band {
	return [BandCount]Band{
		{60, 1.0, "60"},
		{170, 1.0, "170"},
		{310, 1.0, "310"},
		{600, 1.0, "600"},
		{1000, 1.0, "1K"},
		{3000, 1.0, "3K"},
		{6000, 1.0, "6K"},
		{12000, 1.0, "12K"},
		{14000, 1.0, "14K"},
		{16000, 1.0, "16K"},
	}
}

// Settings is the persisted shape of the equalizer state.
type Settings struct {
	Enabled bool      `json:"enabled"`
	Gains   []float64 `json:"gains"`
}

// Equalizer is the chain of per-band peaking filters. It is constructed
// with its storage port, loads persisted gains immediately, and builds its
// filters on Init once the graph's sample rate is known.
type Equalizer struct {
	store storage.Store
	bands [BandCount]Band

	gains   [BandCount]atomic.Uint64 // float64 bit patterns, dB
	enabled atomic.Bool

	mu      sync.Mutex
	filters []*biquad // nil until Init
}

func New(store storage.Store) *Equalizer {
	e := &Equalizer{store: store, bands: DefaultBands()}

	var s Settings
	if storage.LoadJSON(store, settingsKey, &s) && len(s.Gains) == BandCount {
		e.enabled.Store(s.Enabled)
		for i, db := range s.Gains {
			e.gains[i].Store(math.Float64bits(clampGain(db)))
		}
	}
	return e
}

// Init builds the filter chain for the given sample rate. Gains loaded at
// construction are replayed onto the new filters.
func (e *Equalizer) Init(sampleRate int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = make([]*biquad, BandCount)
	for i, b := range e.bands {
		e.filters[i] = newBiquad(b.CenterFrequency, b.QualityFactor, float64(sampleRate))
	}
}

func (e *Equalizer) initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters != nil
}

// Bands returns the fixed band layout.
func (e *Equalizer) Bands() [BandCount]Band { return e.bands }

// SetGain sets one band's gain in dB, clamped to [-12,12]. A call before
// Init or with an out-of-range index is a no-op.
func (e *Equalizer) SetGain(band int, db float64) {
	if band < 0 || band >= BandCount || !e.initialized() {
		return
	}
	e.gains[band].Store(math.Float64bits(clampGain(db)))
	e.persist()
}

// Gain returns one band's current gain in dB.
func (e *Equalizer) Gain(band int) float64 {
	if band < 0 || band >= BandCount {
		return 0
	}
	return math.Float64frombits(e.gains[band].Load())
}

// SetAllGains applies a full gain vector. Vectors of the wrong length are
// ignored.
func (e *Equalizer) SetAllGains(dbs []float64) {
	if len(dbs) != BandCount || !e.initialized() {
		return
	}
	for i, db := range dbs {
		e.gains[i].Store(math.Float64bits(clampGain(db)))
	}
	e.persist()
}

// AllGains returns a copy of the current gain vector.
func (e *Equalizer) AllGains() []float64 {
	out := make([]float64, BandCount)
	for i := range out {
		out[i] = math.Float64frombits(e.gains[i].Load())
	}
	return out
}

// ApplyPreset applies a built-in or custom named preset. Unknown names are
// a no-op.
func (e *Equalizer) ApplyPreset(name string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if v, ok := builtinPresets[key]; ok {
		e.SetAllGains(v[:])
		return
	}
	custom := e.loadCustomPresets()
	if v, ok := custom[key]; ok && len(v) == BandCount {
		e.SetAllGains(v)
	}
}

// Reset sets every band back to 0 dB.
func (e *Equalizer) Reset() {
	flat := make([]float64, BandCount)
	e.SetAllGains(flat)
}

// Enable turns the effect on. Enabling before Init warns loudly and does
// nothing; the caller has a degraded graph and should know it.
func (e *Equalizer) Enable() {
	if !e.initialized() {
		log.Printf("eq: enable requested before filters exist; ignoring")
		return
	}
	e.enabled.Store(true)
	e.persist()
}

// Disable turns the effect off without touching gain values.
func (e *Equalizer) Disable() {
	e.enabled.Store(false)
	e.persist()
}

// Toggle flips enabled state, preserving gains.
func (e *Equalizer) Toggle() {
	if e.enabled.Load() {
		e.Disable()
	} else {
		e.Enable()
	}
}

func (e *Equalizer) Enabled() bool { return e.enabled.Load() }

// Process runs the band filters over one interleaved stereo buffer. When
// disabled the signal passes through untouched.
func (e *Equalizer) Process(buf []float32) {
	if !e.enabled.Load() {
		return
	}
	e.mu.Lock()
	filters := e.filters
	e.mu.Unlock()
	if filters == nil {
		return
	}
	for i, f := range filters {
		f.process(buf, e.Gain(i))
	}
}

// SavePresetAs stores the current gain vector under a custom name.
func (e *Equalizer) SavePresetAs(name string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	custom := e.loadCustomPresets()
	custom[key] = e.AllGains()
	if err := storage.SaveJSON(e.store, customPresetsKey, custom); err != nil {
		log.Printf("eq: save custom preset: %v", err)
	}
}

// DeletePreset removes a custom preset. Built-ins cannot be deleted.
func (e *Equalizer) DeletePreset(name string) {
	key := strings.ToLower(strings.TrimSpace(name))
	custom := e.loadCustomPresets()
	if _, ok := custom[key]; !ok {
		return
	}
	delete(custom, key)
	if err := storage.SaveJSON(e.store, customPresetsKey, custom); err != nil {
		log.Printf("eq: delete custom preset: %v", err)
	}
}

// CustomPresetNames lists saved custom presets sorted by name.
func (e *Equalizer) CustomPresetNames() []string {
	custom := e.loadCustomPresets()
	names := make([]string, 0, len(custom))
	for name := range custom {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Equalizer) loadCustomPresets() map[string][]float64 {
	custom := make(map[string][]float64)
	storage.LoadJSON(e.store, customPresetsKey, &custom)
	return custom
}

func (e *Equalizer) persist() {
	s := Settings{Enabled: e.enabled.Load(), Gains: e.AllGains()}
	if err := storage.SaveJSON(e.store, settingsKey, s); err != nil {
		log.Printf("eq: persist settings: %v", err)
	}
}

func clampGain(db float64) float64 {
	return math.Max(MinGainDB, math.Min(MaxGainDB, db))
}
