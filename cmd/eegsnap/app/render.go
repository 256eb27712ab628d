package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 120
	rowsPerLabel   = 60

	targetWidth  = 1024
	targetHeight = 512

	defaultTopBorder    = 30
	defaultLeftBorder   = 60
	defaultBottomBorder = 30
	defaultRightBorder  = 20
)

// BorderConfig defines the sizes of white space around the heat map
type BorderConfig struct {
	Top    int // frequency scale
	Left   int // time scale
	Bottom int // information bar
	Right  int
}

// RenderConfig holds the visualization options
type RenderConfig struct {
	ColorTheme    ColorTheme
	ColorMapSize  int // 0 for default
	FontSize      float64
	NoAnnotations bool
	BorderConfig  BorderConfig
}

// HeatmapRenderer draws heat maps with optional scales
type HeatmapRenderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewHeatmapRenderer creates a renderer, filling unset options with defaults
func NewHeatmapRenderer(config RenderConfig) (*HeatmapRenderer, error) {
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &HeatmapRenderer{config: config, font: parsedFont}, nil
}

// cellSize scales small grids up so the image is legible
func cellSize(hm *Heatmap) (int, int) {
	return max(1, targetWidth/max(1, hm.Width())), max(1, targetHeight/max(1, hm.Height()))
}

// Render creates an image of hm
func (r *HeatmapRenderer) Render(hm *Heatmap) (*image.RGBA, error) {
	if hm.Width() == 0 || hm.Height() == 0 {
		return nil, fmt.Errorf("nothing to render: %d x %d grid", hm.Width(), hm.Height())
	}

	cw, ch := cellSize(hm)
	b := r.config.BorderConfig

	area := image.Rect(b.Left, b.Top, b.Left+hm.Width()*cw, b.Top+hm.Height()*ch)
	img := image.NewRGBA(image.Rect(0, 0, area.Max.X+b.Right, area.Max.Y+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	if !r.config.NoAnnotations {
		ann := newAnnotator(r.font, r.config.FontSize, area, cw, ch)
		defer ann.Close()

		if err := ann.annotate(img, hm); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	cm := NewColorMapperWithSize(r.config.ColorTheme, hm.Bounds, r.config.ColorMapSize)
	for y, row := range hm.Rows {
		for x, power := range row {
			cell := image.Rect(area.Min.X+x*cw, area.Min.Y+y*ch, area.Min.X+(x+1)*cw, area.Min.Y+(y+1)*ch)
			draw.Draw(img, cell, &image.Uniform{C: cm.Color(power)}, image.Point{}, draw.Src)
		}
	}

	return img, nil
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	area     image.Rectangle
	cellW    int
	cellH    int
}

func newAnnotator(f *truetype.Font, size float64, area image.Rectangle, cellW, cellH int) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(f, &truetype.Options{
			Size:    size,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
		area:  area,
		cellW: cellW,
		cellH: cellH,
	}
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) annotate(img *image.RGBA, hm *Heatmap) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *Heatmap) error
	}{
		{"drawing frequency scale", a.drawFrequencyScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, hm); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

// drawFrequencyScale labels columns rather than a linear axis, so log-spaced
// scalogram frequencies are labelled correctly
func (a *annotator) drawFrequencyScale(img *image.RGBA, hm *Heatmap) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := a.area.Min.Y - tickMarkLength - fontHeight/2

	step := max(1, pixelsPerLabel/a.cellW)
	for col := 0; col < hm.Width(); col += step {
		x := a.area.Min.X + col*a.cellW + a.cellW/2

		for y := a.area.Min.Y - tickMarkLength; y < a.area.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		label := humanHz(hm.Frequencies[col])
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, hm *Heatmap) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	step := max(1, rowsPerLabel/a.cellH)
	for row := 0; row < hm.Height(); row += step {
		y := a.area.Min.Y + row*a.cellH + a.cellH/2

		for x := a.area.Min.X - tickMarkLength; x < a.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.2fs", hm.Times[row])
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(a.area.Min.X-tickMarkLength-2-width, y+fontHeight/2-metrics.Descent.Round())
		if _, err := a.context.DrawString(label, pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, hm *Heatmap) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s ch%d @ %s", hm.Mode, hm.Channel, humanHz(hm.SampleRate)))
	sb.WriteString(fmt.Sprintf("; Freq: %s - %s", humanHz(hm.Frequencies[0]), humanHz(hm.Frequencies[hm.Width()-1])))
	sb.WriteString(fmt.Sprintf("; Time: %.2fs - %.2fs", hm.Times[0], hm.Times[hm.Height()-1]))
	sb.WriteString(fmt.Sprintf("; Power: %.0f to %.0f dB", hm.Bounds.Min, hm.Bounds.Max))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	bottom := img.Bounds().Max.Y - a.area.Max.Y
	textY := img.Bounds().Max.Y - (bottom-fontHeight)/2 - metrics.Descent.Round()

	_, err := a.context.DrawString(sb.String(), freetype.Pt(a.area.Min.X, textY))
	return err
}

func humanHz(hz float64) string {
	v, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%.4g %sHz", v, suffix)
}
