package app

import (
	"image/color"
	"math"
	"testing"
)

func TestPowerHistogram_Defaults(t *testing.T) {
	h := NewPowerHistogram()
	for i := 0; i < minimumSampleCount-1; i++ {
		h.Update(-100)
	}
	if got := h.PercentileBounds(); got != defaultPowerBounds() {
		t.Errorf("bounds with too few samples = %+v, want defaults", got)
	}
}

func TestPowerHistogram_Percentiles(t *testing.T) {
	h := NewPowerHistogram()
	for i := 0; i < 100; i++ {
		h.Update(-150 + float64(i)) // -150 .. -51
	}
	h.Update(math.Inf(-1))
	h.Update(math.NaN())

	if h.Count() != 100 {
		t.Fatalf("Count() = %d, want 100", h.Count())
	}

	b := h.PercentileBounds()
	// 5th and 95th percentile bins are -146 and -55, padded by 10% of 91
	if b.Min != -155 || b.Max != -46 {
		t.Errorf("bounds = [%g, %g], want [-155, -46]", b.Min, b.Max)
	}
	if math.Abs(b.Mean-(-100.5)) > 1e-9 {
		t.Errorf("mean = %g, want -100.5", b.Mean)
	}
}

func TestPowerHistogram_MinimumRange(t *testing.T) {
	h := NewPowerHistogram()
	for i := 0; i < 50; i++ {
		h.Update(-100)
	}

	b := h.PercentileBounds()
	if b.Max-b.Min < minimumRange {
		t.Errorf("range %g dB, want at least %d", b.Max-b.Min, minimumRange)
	}
	if b.Min > -100 || b.Max < -100 {
		t.Errorf("bounds [%g, %g] exclude the data", b.Min, b.Max)
	}
}

func TestColorMapper(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, PowerBounds{Min: -100, Max: 0})

	low := cm.Color(-200).(color.RGBA)
	high := cm.Color(50).(color.RGBA)
	mid := cm.Color(-50).(color.RGBA)

	if low.R != 0 {
		t.Errorf("below range = %v, want black", low)
	}
	if high.R != 255 {
		t.Errorf("above range = %v, want white", high)
	}
	if mid.R <= low.R || mid.R >= high.R {
		t.Errorf("mid = %v not between %v and %v", mid, low, high)
	}
	if cm.Color(math.NaN()) != cm.Color(-200) {
		t.Error("NaN does not map to the lowest color")
	}
}

func TestColorMapper_UnknownTheme(t *testing.T) {
	cm := NewColorMapper("neon", defaultPowerBounds())
	if cm.ThemeName() != DefaultTheme {
		t.Errorf("ThemeName() = %q, want %q", cm.ThemeName(), DefaultTheme)
	}
}

func TestColorThemes_Opaque(t *testing.T) {
	for name, fn := range colorThemes {
		t.Run(string(name), func(t *testing.T) {
			for _, p := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1} {
				if _, _, _, a := fn(p).RGBA(); a != 0xffff {
					t.Errorf("theme color at %g has alpha %x", p, a)
				}
			}
		})
	}
}

func TestHSV_RGB(t *testing.T) {
	tests := []struct {
		hsv  HSV
		want color.RGBA
	}{
		{HSV{H: 0, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{HSV{H: 120, S: 1, V: 1}, color.RGBA{G: 255, A: 255}},
		{HSV{H: 240, S: 1, V: 1}, color.RGBA{B: 255, A: 255}},
		{HSV{H: 360, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{HSV{H: 10, S: 0, V: 1}, color.RGBA{R: 255, G: 255, B: 255, A: 255}},
	}

	for _, tt := range tests {
		if got := tt.hsv.RGB(); got != tt.want {
			t.Errorf("%+v.RGB() = %v, want %v", tt.hsv, got, tt.want)
		}
	}
}
