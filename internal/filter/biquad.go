package filter

import "math"

// Biquad holds second order section coefficients normalized so a0 == 1
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// HighPass designs a Butterworth (Q = 1/sqrt2) second order high-pass section
func HighPass(sampleRate, cutoff float64) Biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	q := 1 / math.Sqrt2
	alpha := sinw / (2 * q)

	a0 := 1 + alpha
	return Biquad{
		B0: (1 + cosw) / 2 / a0,
		B1: -(1 + cosw) / a0,
		B2: (1 + cosw) / 2 / a0,
		A1: -2 * cosw / a0,
		A2: (1 - alpha) / a0,
	}
}

// Notch designs a second order band-reject section centered on f0
func Notch(sampleRate, f0, q float64) Biquad {
	w0 := 2 * math.Pi * f0 / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)

	a0 := 1 + alpha
	return Biquad{
		B0: 1 / a0,
		B1: -2 * cosw / a0,
		B2: 1 / a0,
		A1: -2 * cosw / a0,
		A2: (1 - alpha) / a0,
	}
}

// Response returns the magnitude response at frequency f
func (b Biquad) Response(sampleRate, f float64) float64 {
	w := 2 * math.Pi * f / sampleRate
	// z^-1 = e^{-jw}
	c1, s1 := math.Cos(w), -math.Sin(w)
	c2, s2 := math.Cos(2*w), -math.Sin(2*w)

	nr := b.B0 + b.B1*c1 + b.B2*c2
	ni := b.B1*s1 + b.B2*s2
	dr := 1 + b.A1*c1 + b.A2*c2
	di := b.A1*s1 + b.A2*s2

	return math.Hypot(nr, ni) / math.Hypot(dr, di)
}

// section is a biquad with transposed direct form II state per channel
type section struct {
	coef Biquad
	z1   []float64
	z2   []float64
}

func newSection(coef Biquad, channels int) *section {
	return &section{
		coef: coef,
		z1:   make([]float64, channels),
		z2:   make([]float64, channels),
	}
}

func (s *section) process(ch int, x []float64) {
	c := s.coef
	z1, z2 := s.z1[ch], s.z2[ch]
	for i, in := range x {
		out := c.B0*in + z1
		z1 = c.B1*in - c.A1*out + z2
		z2 = c.B2*in - c.A2*out
		x[i] = out
	}
	s.z1[ch], s.z2[ch] = z1, z2
}

func (s *section) reset() {
	clear(s.z1)
	clear(s.z2)
}
