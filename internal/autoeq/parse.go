// Package autoeq imports AutoEQ parametric headphone presets and maps
// them onto the player's fixed 10-band graphic equalizer.
package autoeq

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// FilterKind is the shape of one parametric filter.
type FilterKind int

const (
	Peaking FilterKind = iota
	LowShelf
	HighShelf
)

// ParametricFilter is one parsed filter descriptor. Immutable after
// parse; consumed only to compute derived per-band gains.
type ParametricFilter struct {
	Kind            FilterKind
	CenterFrequency float64
	GainDB          float64
	QualityFactor   float64
}

// ErrNoUsablePreset reports that a preset description contained no valid
// filter lines. Callers must treat this as "no preset available", never
// as a flat preset to apply.
var ErrNoUsablePreset = errors.New("no usable preset")

// filterLine matches AutoEQ ParametricEQ descriptors, e.g.
//
//	Filter 1: ON PK Fc 105 Hz Gain -1.1 dB Q 0.70
//
// Lines that do not match the grammar are ignored.
var filterLine = regexp.MustCompile(
	`(?i)^filter\s+\d+:\s+ON\s+(PK|LSC?|HSC?)\s+Fc\s+([0-9.]+)\s*Hz\s+Gain\s+(-?[0-9.]+)\s*dB\s+Q\s+([0-9.]+)`)

// Parse extracts the parametric filters from a preset description. A
// description that yields zero filters returns ErrNoUsablePreset.
func Parse(preset string) ([]ParametricFilter, error) {
	var filters []ParametricFilter
	for _, line := range strings.Split(preset, "\n") {
		m := filterLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		fc, err1 := strconv.ParseFloat(m[2], 64)
		gain, err2 := strconv.ParseFloat(m[3], 64)
		q, err3 := strconv.ParseFloat(m[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || fc <= 0 || q <= 0 {
			continue
		}
		filters = append(filters, ParametricFilter{
			Kind:            kindFromToken(m[1]),
			CenterFrequency: fc,
			GainDB:          gain,
			QualityFactor:   q,
		})
	}
	if len(filters) == 0 {
		return nil, ErrNoUsablePreset
	}
	return filters, nil
}

func kindFromToken(tok string) FilterKind {
	switch strings.ToUpper(tok) {
	case "LS", "LSC":
		return LowShelf
	case "HS", "HSC":
		return HighShelf
	default:
		return Peaking
	}
}
