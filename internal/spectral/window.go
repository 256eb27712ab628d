package spectral

import (
	"math"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/roman-kulish/eegstream/internal/errs"
)

// WindowKind names a taper family
type WindowKind string

const (
	Rectangular WindowKind = "rectangular"
	Hann        WindowKind = "hann"
	Hamming     WindowKind = "hamming"
	Blackman    WindowKind = "blackman"
	FlatTop     WindowKind = "flattop"
	Bartlett    WindowKind = "bartlett"
	Kaiser      WindowKind = "kaiser"    // parameter: stop-band attenuation in dB
	Chebyshev   WindowKind = "chebyshev" // parameter: side-lobe attenuation in dB

	// DefaultAttenuation is used by parametric windows when no parameter is given
	DefaultAttenuation = 80.0
)

var windowKinds = map[WindowKind]func(int) []float64{
	Rectangular: window.Rectangular,
	Hann:        window.Hann,
	Hamming:     window.Hamming,
	Blackman:    window.Blackman,
	FlatTop:     window.FlatTop,
	Bartlett:    window.Bartlett,
	Kaiser:      nil,
	Chebyshev:   nil,
}

// ParseWindowKind accepts a window name case-insensitively
func ParseWindowKind(s string) (WindowKind, error) {
	k := WindowKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "chebwin", "dolph-chebyshev":
		k = Chebyshev
	case "hanning":
		k = Hann
	}
	if _, ok := windowKinds[k]; !ok {
		return "", errs.NewConfigError("unknown window %q", s)
	}
	return k, nil
}

// Window returns n symmetric window coefficients. param is the attenuation in dB for
// Kaiser and Chebyshev windows and is ignored otherwise; zero selects DefaultAttenuation.
func Window(kind WindowKind, n int, param float64) ([]float64, error) {
	if n <= 0 {
		return nil, errs.NewConfigError("window length must be positive, got %d", n)
	}
	if param == 0 {
		param = DefaultAttenuation
	}

	switch kind {
	case Kaiser:
		if param < 0 {
			return nil, errs.NewConfigError("kaiser attenuation must be positive, got %g", param)
		}
		return kaiser(n, kaiserBeta(param)), nil
	case Chebyshev:
		if param < 0 {
			return nil, errs.NewConfigError("chebyshev attenuation must be positive, got %g", param)
		}
		return chebwin(n, param), nil
	}

	fn, ok := windowKinds[kind]
	if !ok {
		return nil, errs.NewConfigError("unknown window %q", kind)
	}
	if n == 1 {
		return []float64{1}, nil
	}
	return fn(n), nil
}

// kaiserBeta maps a stop-band attenuation to the Kaiser shape parameter
func kaiserBeta(attenuation float64) float64 {
	switch {
	case attenuation > 50:
		return 0.1102 * (attenuation - 8.7)
	case attenuation >= 21:
		return 0.5842*math.Pow(attenuation-21, 0.4) + 0.07886*(attenuation-21)
	default:
		return 0
	}
}

func kaiser(n int, beta float64) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}

	denom := besselI0(beta)
	for i := range w {
		r := 2*float64(i)/float64(n-1) - 1
		w[i] = besselI0(beta*math.Sqrt(1-r*r)) / denom
	}
	return w
}

// besselI0 is the zeroth order modified Bessel function of the first kind
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	half := x / 2
	for k := 1; k < 500; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-17 {
			break
		}
	}
	return sum
}

// chebwin computes a Dolph-Chebyshev window with the given side-lobe attenuation in dB
func chebwin(n int, attenuation float64) []float64 {
	if n == 1 {
		return []float64{1}
	}

	order := float64(n - 1)
	beta := math.Cosh(math.Acosh(math.Pow(10, math.Abs(attenuation)/20)) / order)

	p := make([]complex128, n)
	for k := range p {
		x := beta * math.Cos(math.Pi*float64(k)/float64(n))
		var v float64
		switch {
		case x > 1:
			v = math.Cosh(order * math.Acosh(x))
		case x < -1:
			sign := -1.0
			if n%2 == 1 {
				sign = 1
			}
			v = sign * math.Cosh(order*math.Acosh(-x))
		default:
			v = math.Cos(order * math.Acos(x))
		}
		p[k] = complex(v, 0)
	}

	w := make([]float64, n)
	if n%2 == 1 {
		spectrum := fft.FFT(p)
		half := (n + 1) / 2
		// mirror: w = [s[half-1] ... s[1], s[0] ... s[half-1]]
		for i := 0; i < half; i++ {
			w[half-1+i] = real(spectrum[i])
			w[half-1-i] = real(spectrum[i])
		}
	} else {
		for k := range p {
			p[k] *= cmplx.Exp(complex(0, math.Pi*float64(k)/float64(n)))
		}
		spectrum := fft.FFT(p)
		half := n/2 + 1
		// w = [s[half-1] ... s[1], s[1] ... s[half-1]]
		for i := 1; i < half; i++ {
			w[half-1-i] = real(spectrum[i])
			w[half-2+i] = real(spectrum[i])
		}
	}

	var peak float64
	for _, v := range w {
		peak = math.Max(peak, v)
	}
	for i := range w {
		w[i] /= peak
	}
	return w
}
