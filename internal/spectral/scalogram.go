package spectral

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/roman-kulish/eegstream/internal/errs"
)

const (
	// MorletOmega0 is the centre angular frequency of the mother wavelet
	MorletOmega0 = 6.0

	// morletSupport is the half width of the wavelet in units of scale
	morletSupport = 4.0
)

// Scalogram is a continuous wavelet transform power map
type Scalogram struct {
	Frequencies []float64   // Hz, only those whose wavelet fits the signal
	Times       []float64   // seconds from the first sample
	PowerDB     [][]float64 // [frequency][time], 10*log10 of amplitude squared
}

// LogFrequencies returns n frequencies spaced logarithmically from low to high
func LogFrequencies(low, high float64, n int) []float64 {
	if n <= 0 || low <= 0 || high <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{low}
	}
	out := make([]float64, n)
	ratio := math.Log(high / low)
	for i := range out {
		out[i] = low * math.Exp(ratio*float64(i)/float64(n-1))
	}
	return out
}

// MorletScale returns the wavelet scale, in samples, that centres a Morlet wavelet on freq
func MorletScale(freq, sampleRate float64) float64 {
	return MorletOmega0 * sampleRate / (2 * math.Pi * freq)
}

// ComputeScalogram runs a complex Morlet CWT at each frequency. Frequencies whose
// wavelet is longer than the signal, or that are not below Nyquist, are skipped.
// The wavelet is normalized so a sinusoid of amplitude A yields a magnitude near A/2.
func ComputeScalogram(samples []float64, sampleRate float64, frequencies []float64) (Scalogram, error) {
	if sampleRate <= 0 {
		return Scalogram{}, errs.NewConfigError("sample rate must be positive, got %g", sampleRate)
	}
	if len(samples) == 0 {
		return Scalogram{}, errs.NewConfigError("no samples")
	}

	n := len(samples)
	sc := Scalogram{Times: make([]float64, n)}
	for i := range sc.Times {
		sc.Times[i] = float64(i) / sampleRate
	}

	for _, f := range frequencies {
		if f <= 0 || f >= sampleRate/2 {
			continue
		}

		scale := MorletScale(f, sampleRate)
		half := int(math.Ceil(morletSupport * scale))
		if 2*half+1 > n {
			continue
		}

		coef := convolveSame(samples, morlet(scale, half))
		row := make([]float64, n)
		for i, c := range coef {
			a := cmplx.Abs(c)
			row[i] = 10 * math.Log10(a*a+PowerFloor)
		}

		sc.Frequencies = append(sc.Frequencies, f)
		sc.PowerDB = append(sc.PowerDB, row)
	}

	return sc, nil
}

// morlet returns the conjugated, time reversed wavelet taps ready for convolution
func morlet(scale float64, half int) []complex128 {
	taps := make([]complex128, 2*half+1)
	var norm float64
	for k := -half; k <= half; k++ {
		t := float64(k) / scale
		g := math.Exp(-t * t / 2)
		norm += g
		// correlation with psi equals convolution with conj(psi(-t))
		taps[k+half] = complex(g, 0) * cmplx.Exp(complex(0, MorletOmega0*t))
	}
	for i := range taps {
		taps[i] /= complex(norm, 0)
	}
	return taps
}

// convolveSame returns the centre len(x) samples of the linear convolution of x and h
func convolveSame(x []float64, h []complex128) []complex128 {
	size := len(x) + len(h) - 1
	a := make([]complex128, size)
	b := make([]complex128, size)
	for i, v := range x {
		a[i] = complex(v, 0)
	}
	copy(b, h)

	full := fft.Convolve(a, b)
	offset := (len(h) - 1) / 2
	return full[offset : offset+len(x)]
}
