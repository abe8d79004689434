package eq

// Built-in preset gain vectors, one value per band in dB. Names are
// matched case-insensitively by ApplyPreset.
var builtinPresets = map[string][BandCount]float64{
	"flat":         {0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	"bass-boost":   {7, 6, 5, 3, 1, 0, 0, 0, 0, 0},
	"treble-boost": {0, 0, 0, 0, 0, 1, 3, 5, 6, 7},
	"vocal-boost":  {-2, -1, 0, 2, 4, 4, 3, 1, 0, -1},
	"rock":         {5, 4, 3, 1, -1, -1, 1, 3, 4, 5},
	"pop":          {-1, 1, 3, 4, 3, 1, 0, -1, -1, -2},
	"jazz":         {3, 2, 1, 2, -1, -1, 0, 1, 2, 3},
	"classical":    {4, 3, 2, 0, 0, 0, -1, 2, 3, 4},
	"electronic":   {6, 5, 1, 0, -2, 1, 1, 3, 5, 6},
	"hip-hop":      {6, 5, 3, 2, -1, -1, 1, 2, 3, 4},
}

// PresetNames lists the built-in presets in a stable order.
func PresetNames() []string {
	return []string{
		"flat", "bass-boost", "treble-boost", "vocal-boost", "rock",
		"pop", "jazz", "classical", "electronic", "hip-hop",
	}
}
