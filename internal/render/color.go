package render

import (
	"fmt"
	"math"
)

// Fixed green and blue channels of the choropleth ramp.
const (
	rampGreen = 120
	rampBlue  = 150
	rampStep  = 5 // red drops by this much per density unit
)

// Color is an opaque RGB fill.
type Color struct {
	R, G, B uint8
}

// Hex formats c as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ColorFor maps a density to its fill. Red falls linearly from 255 at zero
// density to 0 at density 51 and above; green and blue are constant. NaN and
// negative densities get the zero-density fill.
func ColorFor(density float64) Color {
	red := 255.0
	if density > 0 {
		red = math.Trunc(255 - math.Min(density*rampStep, 255))
	}
	if red < 0 || math.IsNaN(red) {
		red = 0
	}
	return Color{R: uint8(red), G: rampGreen, B: rampBlue}
}

// DegenerateColor fills polygons whose density could not be derived.
var DegenerateColor = Color{R: 0xbb, G: 0xbb, B: 0xbb}
