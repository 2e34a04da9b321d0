package climate

import "math"

// Percent is a climate quantity mapped onto the dimensionless 0-100 scale
// used for scoring and display. Keeping it a distinct type stops normalized
// values being mixed up with physical units at compile time.
type Percent float64

// The temperature scale covers -30C to +50C linearly.
const (
	tempScaleMinC  = -30.0
	tempScaleSpanC = 80.0
)

// DenormalizeTemperature maps a 0-100 value back to degrees Celsius.
// No input validation: out-of-range values extrapolate linearly, callers
// are expected to only pass values that originated in-range.
func DenormalizeTemperature(n Percent) float64 {
	return (float64(n)/100.0)*tempScaleSpanC + tempScaleMinC
}

// DenormalizeTemperatureRounded is the nullable variant: nil in, nil out,
// otherwise the rounded integer Celsius value.
func DenormalizeTemperatureRounded(n *Percent) *int {
	if n == nil {
		return nil
	}
	c := int(math.Round(DenormalizeTemperature(*n)))
	return &c
}

// NormalizeTemperature maps degrees Celsius onto the 0-100 scale, clamped.
func NormalizeTemperature(celsius float64) Percent {
	return Clamp((celsius - tempScaleMinC) / tempScaleSpanC * 100.0)
}

// Clamp bounds a raw value to the normalized scale.
func Clamp(v float64) Percent {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return Percent(v)
}
