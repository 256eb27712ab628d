package app

import (
	"image/color"
	"math"
)

// ColorTheme names a power-to-color ramp
type ColorTheme string

const (
	DefaultTheme   ColorTheme = "default"   // Black, blue, cyan, yellow, red
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256 // Default number of colors in the map
)

var colorThemes = map[ColorTheme]func(float64) color.Color{
	DefaultTheme:   enhancedTheme,
	ClassicTheme:   classicTheme,
	GrayscaleTheme: grayscaleTheme,
	JungleTheme:    jungleTheme,
	ThermalTheme:   thermalTheme,
	MarineTheme:    marineTheme,
}

// ColorMapper maps power in dB onto a pre-computed color ramp
type ColorMapper struct {
	colorMap      []color.Color
	themeName     ColorTheme
	size          int
	powerPerIndex float64
	boundsMin     float64
}

// NewColorMapper creates a color mapper with DefaultColorMapSize entries
func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a color mapper with size entries. Unknown themes fall
// back to DefaultTheme.
func NewColorMapperWithSize(theme ColorTheme, bounds PowerBounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	fn, ok := colorThemes[theme]
	if !ok {
		theme, fn = DefaultTheme, enhancedTheme
	}

	cm := &ColorMapper{
		colorMap:  make([]color.Color, size),
		themeName: theme,
		size:      size,
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = fn(float64(i) / float64(size-1))
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds changes the power range covered by the ramp
func (cm *ColorMapper) UpdateBounds(bounds PowerBounds) {
	cm.boundsMin = bounds.Min
	cm.powerPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)
}

// Color returns the ramp color for power, clamped to the bounds
func (cm *ColorMapper) Color(power float64) color.Color {
	if math.IsNaN(power) || cm.powerPerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((power - cm.boundsMin) / cm.powerPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// ThemeName returns the current color theme name
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

// RGB converts HSV to RGB color space
func (hsv HSV) RGB() color.Color {
	v := math.Max(0, math.Min(1, hsv.V))
	if hsv.S <= 0.0 {
		g := uint8(v * 255)
		return color.RGBA{R: g, G: g, B: g, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)
	s := math.Min(1, hsv.S)

	p := uint8(v * (1 - s) * 255)
	q := uint8(v * (1 - s*f) * 255)
	t := uint8(v * (1 - s*(1-f)) * 255)
	vv := uint8(v * 255)

	switch i {
	case 0:
		return color.RGBA{R: vv, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: vv, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: vv, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: vv, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: vv, A: 255}
	default:
		return color.RGBA{R: vv, G: p, B: q, A: 255}
	}
}

func classicTheme(power float64) color.Color {
	return HSV{
		H: 240 - (power * 240),
		S: 0.9 + (power * 0.1),
		V: math.Pow(power, 0.7),
	}.RGB()
}

func grayscaleTheme(power float64) color.Color {
	v := uint8(math.Pow(power, 0.7) * 255)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func jungleTheme(power float64) color.Color {
	return HSV{
		H: 120 - (power * 60),
		S: 1.0,
		V: 0.3 + (math.Pow(power, 0.6) * 0.7),
	}.RGB()
}

func thermalTheme(power float64) color.Color {
	switch {
	case power < 0.33:
		return color.RGBA{R: uint8(power * 3 * 255), A: 255}
	case power < 0.66:
		return color.RGBA{R: 255, G: uint8((power - 0.33) * 3 * 255), A: 255}
	default:
		return color.RGBA{R: 255, G: 255, B: uint8(math.Min(1, (power-0.66)*3) * 255), A: 255}
	}
}

func marineTheme(power float64) color.Color {
	return HSV{
		H: 240 - (power * 60),
		S: 1.0 - (power * 0.8),
		V: 0.3 + (math.Pow(power, 0.6) * 0.7),
	}.RGB()
}

// enhancedTheme stretches the low end so the EEG noise floor stays visible
func enhancedTheme(power float64) color.Color {
	power = math.Max(0, math.Min(1, power))
	enhanced := math.Pow(power, 0.7)

	switch {
	case power < 0.25:
		return HSV{H: 240, S: 1.0, V: enhanced * 4}.RGB()
	case power < 0.5:
		return HSV{H: 240 - ((power - 0.25) * 240), S: 1.0, V: enhanced * 1.5}.RGB()
	case power < 0.75:
		p := (power - 0.5) * 4
		return HSV{H: 180 - (p * 120), S: 1.0, V: math.Min(1.0, enhanced*1.5)}.RGB()
	default:
		p := (power - 0.75) * 4
		return HSV{H: 60 - (p * 60), S: 1.0, V: 1.0}.RGB()
	}
}
