package spectral

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/roman-kulish/eegstream/internal/errs"
)

const (
	// MagnitudeFloor keeps log10 finite on exact zeros
	MagnitudeFloor = 1e-15

	// PowerFloor is the equivalent floor for power quantities
	PowerFloor = 1e-12

	// minWindowSum rejects windows that are zero up to rounding, e.g. a 2-point Hann
	minWindowSum = 1e-9
)

// Spectrum is a one-sided amplitude spectrum in dB
type Spectrum struct {
	Frequencies []float64 // bin centers in Hz
	MagnitudeDB []float64 // 20*log10 of the single-sided amplitude
	BinWidth    float64
}

// Peak returns the bin with the largest magnitude
func (s Spectrum) Peak() (bin int, freq, db float64) {
	bin = PeakBin(s.MagnitudeDB)
	if bin < 0 {
		return -1, 0, math.Inf(-1)
	}
	return bin, s.Frequencies[bin], s.MagnitudeDB[bin]
}

// PeakBin returns the index of the largest value, or -1 for an empty slice
func PeakBin(x []float64) int {
	best := -1
	for i, v := range x {
		if best < 0 || v > x[best] {
			best = i
		}
	}
	return best
}

// Frequencies returns the bin centers of a real FFT of size n
func Frequencies(n int, sampleRate float64) []float64 {
	freqs := make([]float64, n/2+1)
	for i := range freqs {
		freqs[i] = float64(i) * sampleRate / float64(n)
	}
	return freqs
}

// WindowedSpectrum transforms the newest fftSize samples. The window is normalized by
// its coherent gain, so a sinusoid of amplitude A peaks near 20*log10(A).
// samples is not modified.
func WindowedSpectrum(samples []float64, sampleRate float64, fftSize int, kind WindowKind, param float64) (Spectrum, error) {
	if sampleRate <= 0 {
		return Spectrum{}, errs.NewConfigError("sample rate must be positive, got %g", sampleRate)
	}
	if fftSize < 2 {
		return Spectrum{}, errs.NewConfigError("fft size must be at least 2, got %d", fftSize)
	}
	if fftSize > len(samples) {
		return Spectrum{}, errs.NewConfigError("fft size %d exceeds %d available samples", fftSize, len(samples))
	}

	w, err := Window(kind, fftSize, param)
	if err != nil {
		return Spectrum{}, err
	}

	var gain float64
	for _, v := range w {
		gain += v
	}
	if gain < minWindowSum {
		return Spectrum{}, errs.NewConfigError("%s window of %d samples has no coherent gain", kind, fftSize)
	}

	segment := samples[len(samples)-fftSize:]
	x := make([]float64, fftSize)
	for i := range x {
		x[i] = segment[i] * w[i]
	}

	spectrum := fft.FFTReal(x)
	s := Spectrum{
		Frequencies: Frequencies(fftSize, sampleRate),
		BinWidth:    sampleRate / float64(fftSize),
	}
	s.MagnitudeDB = make([]float64, len(s.Frequencies))
	for i := range s.MagnitudeDB {
		mag := cmplx.Abs(spectrum[i]) / gain
		if i != 0 && !(fftSize%2 == 0 && i == fftSize/2) {
			mag *= 2
		}
		s.MagnitudeDB[i] = 20 * math.Log10(mag+MagnitudeFloor)
	}

	return s, nil
}
