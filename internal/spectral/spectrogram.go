package spectral

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/roman-kulish/eegstream/internal/errs"
)

const (
	DefaultSpectrogramWindow  = 256
	DefaultSpectrogramOverlap = 0.5
)

// Spectrogram is a short-time power spectral density map
type Spectrogram struct {
	Frequencies []float64   // Hz
	Times       []float64   // segment centers in seconds from the first sample
	PowerDB     [][]float64 // [time][frequency], 10*log10 of V^2/Hz
}

// ComputeSpectrogram slides a Hann window of windowSize samples across samples with
// the given overlap fraction in [0, 1). Each segment has its mean removed and is
// scaled to a one-sided power spectral density.
func ComputeSpectrogram(samples []float64, sampleRate float64, windowSize int, overlap float64) (Spectrogram, error) {
	if sampleRate <= 0 {
		return Spectrogram{}, errs.NewConfigError("sample rate must be positive, got %g", sampleRate)
	}
	if windowSize < 2 || windowSize > len(samples) {
		return Spectrogram{}, errs.NewConfigError("window size must be in [2, %d], got %d", len(samples), windowSize)
	}
	if overlap < 0 || overlap >= 1 {
		return Spectrogram{}, errs.NewConfigError("overlap must be in [0, 1), got %g", overlap)
	}

	hop := int(math.Round(float64(windowSize) * (1 - overlap)))
	if hop < 1 {
		hop = 1
	}

	w := window.Hann(windowSize)
	var energy float64
	for _, v := range w {
		energy += v * v
	}
	if energy < minWindowSum {
		return Spectrogram{}, errs.NewConfigError("hann window of %d samples has no energy", windowSize)
	}
	scale := 1 / (sampleRate * energy)

	sg := Spectrogram{Frequencies: Frequencies(windowSize, sampleRate)}
	segment := make([]float64, windowSize)

	for start := 0; start+windowSize <= len(samples); start += hop {
		var mean float64
		for _, v := range samples[start : start+windowSize] {
			mean += v
		}
		mean /= float64(windowSize)

		for i := range segment {
			segment[i] = (samples[start+i] - mean) * w[i]
		}

		spectrum := fft.FFTReal(segment)
		row := make([]float64, len(sg.Frequencies))
		for i := range row {
			p := cmplx.Abs(spectrum[i])
			p = p * p * scale
			if i != 0 && !(windowSize%2 == 0 && i == windowSize/2) {
				p *= 2
			}
			row[i] = 10 * math.Log10(p+PowerFloor)
		}

		sg.PowerDB = append(sg.PowerDB, row)
		sg.Times = append(sg.Times, (float64(start)+float64(windowSize)/2)/sampleRate)
	}

	return sg, nil
}
