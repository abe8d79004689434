package autoeq

import (
	"math"

	"github.com/quaver-audio/quaver/internal/eq"
)

// Convert maps a list of parametric filters onto the fixed graphic-EQ
// band set. Each band's gain is the clamped sum of every filter's
// contribution at that band's center frequency.
//
// The contribution model is a symmetric bell in log-frequency space, not
// a true cascaded-biquad magnitude response. That approximation is a
// known precision trade-off inherited from the design, not a bug.
func Convert(filters []ParametricFilter) []float64 {
	bands := eq.DefaultBands()
	gains := make([]float64, len(bands))
	for i, band := range bands {
		sum := 0.0
		for _, f := range filters {
			sum += contributionAt(f, band.CenterFrequency)
		}
		gains[i] = math.Max(eq.MinGainDB, math.Min(eq.MaxGainDB, sum))
	}
	return gains
}

// contributionAt evaluates one filter's gain at the target frequency.
// A filter with a non-positive center frequency or Q contributes
// nothing; the parser never emits one, but Convert accepts
// hand-constructed filters too.
func contributionAt(f ParametricFilter, target float64) float64 {
	if f.CenterFrequency <= 0 || f.QualityFactor <= 0 {
		return 0
	}
	octaves := math.Log2(target / f.CenterFrequency)
	bell := f.GainDB * math.Exp(-(octaves*octaves)/(f.QualityFactor*f.QualityFactor))

	switch f.Kind {
	case LowShelf:
		// Full gain at or below the shelf center, bell decay above.
		if target <= f.CenterFrequency {
			return f.GainDB
		}
		return bell
	case HighShelf:
		if target >= f.CenterFrequency {
			return f.GainDB
		}
		return bell
	default:
		return bell
	}
}
