package filter

import "math"

// DesignSincCompensation designs a linear phase FIR whose magnitude approximates
// 1/|sinc(f)|^order up to Nyquist, undoing the droop of a sinc^order decimator.
// The desired response is sampled on a dense grid, transformed to an impulse
// response, tapered with a Hamming window and normalized to unity DC gain.
func DesignSincCompensation(numTaps, order int) []float64 {
	const grid = 1024

	desired := func(f float64) float64 { // f in cycles per sample, [0, 0.5]
		if f == 0 {
			return 1
		}
		x := math.Pi * f
		return math.Pow(x/math.Sin(x), float64(order))
	}

	m := float64(numTaps-1) / 2
	taps := make([]float64, numTaps)
	for n := range taps {
		// h[n] = 2 * integral_0^0.5 H(f) cos(2 pi f (n - m)) df, trapezoid rule
		var acc float64
		for k := 0; k <= grid; k++ {
			f := 0.5 * float64(k) / grid
			v := desired(f) * math.Cos(2*math.Pi*f*(float64(n)-m))
			if k == 0 || k == grid {
				v /= 2
			}
			acc += v
		}
		taps[n] = 2 * acc * 0.5 / grid
	}

	if numTaps > 1 {
		for n := range taps {
			taps[n] *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(numTaps-1))
		}
	}

	var sum float64
	for _, t := range taps {
		sum += t
	}
	for n := range taps {
		taps[n] /= sum
	}

	return taps
}

// FIRResponse returns the magnitude response of taps at frequency f
func FIRResponse(taps []float64, sampleRate, f float64) float64 {
	w := 2 * math.Pi * f / sampleRate
	var re, im float64
	for n, t := range taps {
		re += t * math.Cos(w*float64(n))
		im -= t * math.Sin(w*float64(n))
	}
	return math.Hypot(re, im)
}

// fir is a stateful FIR with a per-channel history of len(taps)-1 samples
type fir struct {
	taps    []float64
	history [][]float64
}

func newFIR(taps []float64, channels int) *fir {
	f := fir{taps: taps, history: make([][]float64, channels)}
	for ch := range f.history {
		f.history[ch] = make([]float64, len(taps)-1)
	}
	return &f
}

func (f *fir) process(ch int, x []float64) {
	state := f.history[ch]
	buffer := make([]float64, len(state)+len(x))
	copy(buffer, state)
	copy(buffer[len(state):], x)

	n := len(f.taps)
	for i := range x {
		var acc float64
		// buffer[i+n-1] is the current input
		for j, tap := range f.taps {
			acc += tap * buffer[i+n-1-j]
		}
		x[i] = acc
	}

	copy(state, buffer[len(buffer)-len(state):])
}

func (f *fir) reset() {
	for _, h := range f.history {
		clear(h)
	}
}
