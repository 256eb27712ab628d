package app

import (
	"github.com/roman-kulish/eegstream/internal/spectral"
)

// Heatmap is a time-frequency grid laid out as a waterfall: frequency runs across,
// time runs down
type Heatmap struct {
	Mode        Mode
	Channel     int
	SampleRate  float64
	Frequencies []float64   // column centers in Hz, ascending
	Times       []float64   // row times in seconds
	Rows        [][]float64 // [time][frequency] power in dB
	Bounds      PowerBounds
}

func heatmapFromSpectrogram(sg spectral.Spectrogram) *Heatmap {
	return &Heatmap{
		Mode:        ModeSpectrogram,
		Frequencies: sg.Frequencies,
		Times:       sg.Times,
		Rows:        sg.PowerDB,
	}
}

// heatmapFromScalogram transposes the [frequency][time] scalogram into rows of time
func heatmapFromScalogram(sc spectral.Scalogram) *Heatmap {
	rows := make([][]float64, len(sc.Times))
	for t := range rows {
		rows[t] = make([]float64, len(sc.Frequencies))
		for f := range sc.Frequencies {
			rows[t][f] = sc.PowerDB[f][t]
		}
	}

	return &Heatmap{
		Mode:        ModeScalogram,
		Frequencies: sc.Frequencies,
		Times:       sc.Times,
		Rows:        rows,
	}
}

// Width is the number of frequency columns
func (h *Heatmap) Width() int {
	return len(h.Frequencies)
}

// Height is the number of time rows
func (h *Heatmap) Height() int {
	return len(h.Rows)
}

// updateBounds derives the color scale from the data; manual limits override either end
func (h *Heatmap) updateBounds(minPower, maxPower *float64) {
	hist := NewPowerHistogram()
	for _, row := range h.Rows {
		for _, p := range row {
			hist.Update(p)
		}
	}

	h.Bounds = hist.PercentileBounds()
	if minPower != nil {
		h.Bounds.Min = *minPower
	}
	if maxPower != nil {
		h.Bounds.Max = *maxPower
	}
	if h.Bounds.Max <= h.Bounds.Min {
		h.Bounds.Max = h.Bounds.Min + minimumRange
	}
}
