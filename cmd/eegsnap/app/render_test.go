package app

import (
	"image/color"
	"testing"

	"github.com/roman-kulish/eegstream/internal/spectral"
)

func testHeatmap(cols, rows int) *Heatmap {
	hm := &Heatmap{
		Mode:        ModeSpectrogram,
		SampleRate:  250,
		Frequencies: make([]float64, cols),
		Times:       make([]float64, rows),
		Rows:        make([][]float64, rows),
		Bounds:      PowerBounds{Min: -100, Max: 0},
	}
	for c := range hm.Frequencies {
		hm.Frequencies[c] = float64(c)
	}
	for r := range hm.Rows {
		hm.Times[r] = float64(r) / 10
		hm.Rows[r] = make([]float64, cols)
		for c := range hm.Rows[r] {
			hm.Rows[r][c] = -100 + float64(c)*100/float64(cols-1)
		}
	}
	return hm
}

func TestHeatmapRenderer_NoAnnotations(t *testing.T) {
	r, err := NewHeatmapRenderer(RenderConfig{ColorTheme: GrayscaleTheme, NoAnnotations: true})
	if err != nil {
		t.Fatalf("NewHeatmapRenderer() error = %v", err)
	}

	hm := testHeatmap(64, 32)
	img, err := r.Render(hm)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	cw, ch := cellSize(hm)
	if cw != 16 || ch != 16 {
		t.Fatalf("cell size = %dx%d, want 16x16", cw, ch)
	}
	if b := img.Bounds(); b.Dx() != 64*cw || b.Dy() != 32*ch {
		t.Fatalf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), 64*cw, 32*ch)
	}

	first := img.At(0, 0).(color.RGBA)
	last := img.At(img.Bounds().Max.X-1, 0).(color.RGBA)
	if first.R != 0 || last.R < 250 {
		t.Errorf("edge colors = %v .. %v, want black .. white", first, last)
	}
}

func TestHeatmapRenderer_Annotated(t *testing.T) {
	r, err := NewHeatmapRenderer(RenderConfig{})
	if err != nil {
		t.Fatalf("NewHeatmapRenderer() error = %v", err)
	}

	hm := testHeatmap(129, 20)
	img, err := r.Render(hm)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	cw, ch := cellSize(hm)
	wantW := defaultLeftBorder + hm.Width()*cw + defaultRightBorder
	wantH := defaultTopBorder + hm.Height()*ch + defaultBottomBorder
	if b := img.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
		t.Errorf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}

	// the info bar draws dark text on the white border
	dark := false
	for y := wantH - defaultBottomBorder; y < wantH && !dark; y++ {
		for x := defaultLeftBorder; x < wantW; x++ {
			if c := img.At(x, y).(color.RGBA); c.R < 128 {
				dark = true
				break
			}
		}
	}
	if !dark {
		t.Error("no annotation text found in the bottom border")
	}
}

func TestHeatmapRenderer_Empty(t *testing.T) {
	r, err := NewHeatmapRenderer(RenderConfig{NoAnnotations: true})
	if err != nil {
		t.Fatalf("NewHeatmapRenderer() error = %v", err)
	}
	if _, err = r.Render(&Heatmap{}); err == nil {
		t.Error("Render() of an empty heat map succeeded")
	}
}

func TestHeatmapFromScalogram(t *testing.T) {
	sc := spectral.Scalogram{
		Frequencies: []float64{1, 2},
		Times:       []float64{0, 0.1, 0.2},
		PowerDB:     [][]float64{{1, 2, 3}, {4, 5, 6}},
	}

	hm := heatmapFromScalogram(sc)
	if hm.Width() != 2 || hm.Height() != 3 {
		t.Fatalf("heat map is %dx%d, want 2x3", hm.Width(), hm.Height())
	}
	if hm.Rows[2][0] != 3 || hm.Rows[0][1] != 4 {
		t.Errorf("rows = %v", hm.Rows)
	}
}

func TestHeatmap_ManualBounds(t *testing.T) {
	hm := testHeatmap(8, 8)

	lo, hi := -90.0, -95.0
	hm.updateBounds(&lo, &hi)
	if hm.Bounds.Min != -90 || hm.Bounds.Max != -90+minimumRange {
		t.Errorf("inverted manual bounds = %+v", hm.Bounds)
	}

	hm.updateBounds(nil, nil)
	if hm.Bounds.Min >= hm.Bounds.Max {
		t.Errorf("derived bounds = %+v", hm.Bounds)
	}
}

func TestHumanHz(t *testing.T) {
	tests := map[float64]string{
		0:    "0 Hz",
		10:   "10 Hz",
		125:  "125 Hz",
		0.5:  "500 mHz",
		2000: "2 kHz",
	}
	for hz, want := range tests {
		if got := humanHz(hz); got != want {
			t.Errorf("humanHz(%g) = %q, want %q", hz, got, want)
		}
	}
}
