package spectral

import (
	"errors"
	"math"
	"math/cmplx"
	"slices"
	"testing"

	"github.com/mjibson/go-dsp/fft"

	"github.com/roman-kulish/eegstream/internal/errs"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func sine(n int, fs, f, amplitude float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = amplitude * math.Sin(2*math.Pi*f*float64(i)/fs)
	}
	return x
}

var allKinds = []WindowKind{Rectangular, Hann, Hamming, Blackman, FlatTop, Bartlett, Kaiser, Chebyshev}

func TestWindow_Symmetric(t *testing.T) {
	for _, kind := range allKinds {
		for _, n := range []int{1, 7, 8, 64, 255} {
			w, err := Window(kind, n, 0)
			if err != nil {
				t.Fatalf("%s/%d: %v", kind, n, err)
			}
			if len(w) != n {
				t.Fatalf("%s/%d: got %d coefficients", kind, n, len(w))
			}
			for i := range w {
				if !almostEqual(w[i], w[n-1-i], 1e-9) {
					t.Errorf("%s/%d: w[%d]=%g w[%d]=%g", kind, n, i, w[i], n-1-i, w[n-1-i])
					break
				}
			}
		}
	}
}

func TestWindow_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		kind  WindowKind
		n     int
		param float64
	}{
		{"zero length", Hann, 0, 0},
		{"unknown", WindowKind("triangle-ish"), 16, 0},
		{"negative attenuation", Chebyshev, 16, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Window(tt.kind, tt.n, tt.param)
			var ce *errs.ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestParseWindowKind(t *testing.T) {
	for in, want := range map[string]WindowKind{
		"Hann":     Hann,
		"hanning":  Hann,
		"chebwin":  Chebyshev,
		" kaiser ": Kaiser,
		"FLATTOP":  FlatTop,
	} {
		got, err := ParseWindowKind(in)
		if err != nil || got != want {
			t.Errorf("ParseWindowKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseWindowKind("gauss"); err == nil {
		t.Error("expected error for unknown window")
	}
}

func TestChebyshev_SideLobes(t *testing.T) {
	for _, attenuation := range []float64{60, 80, 100} {
		for _, n := range []int{63, 64} {
			w := chebwin(n, attenuation)

			padded := make([]float64, 4096)
			copy(padded, w)
			spectrum := fft.FFTReal(padded)

			mag := make([]float64, len(padded)/2)
			for i := range mag {
				mag[i] = cmplx.Abs(spectrum[i])
			}

			// skip the main lobe
			i := 1
			for i < len(mag) && mag[i] < mag[i-1] {
				i++
			}
			level := 20 * math.Log10(slices.Max(mag[i:])/mag[0])
			if !almostEqual(level, -attenuation, 0.5) {
				t.Errorf("n=%d at=%g: side lobes at %.2f dB", n, attenuation, level)
			}
		}
	}
}

func TestKaiserBeta(t *testing.T) {
	if got := kaiserBeta(80); !almostEqual(got, 7.857, 1e-3) {
		t.Errorf("beta(80) = %f", got)
	}
	if got := kaiserBeta(30); !almostEqual(got, 0.5842*math.Pow(9, 0.4)+0.07886*9, 1e-12) {
		t.Errorf("beta(30) = %f", got)
	}
	if got := kaiserBeta(10); got != 0 {
		t.Errorf("beta(10) = %f", got)
	}
	if got := besselI0(0); got != 1 {
		t.Errorf("I0(0) = %f", got)
	}
	if got := besselI0(1); !almostEqual(got, 1.2660658777520082, 1e-12) {
		t.Errorf("I0(1) = %.16f", got)
	}
}

func TestWindowedSpectrum_PeakWithinOneBin(t *testing.T) {
	const fs = 250.0
	for _, kind := range allKinds {
		for _, f := range []float64{10, 23.7, 61.1, 100.4} {
			s, err := WindowedSpectrum(sine(1000, fs, f, 1e-4), fs, 256, kind, 0)
			if err != nil {
				t.Fatalf("%s: %v", kind, err)
			}
			_, peak, _ := s.Peak()
			if math.Abs(peak-f) > s.BinWidth {
				t.Errorf("%s: peak at %.2f Hz for a %.2f Hz tone (bin %.3f Hz)", kind, peak, f, s.BinWidth)
			}
		}
	}
}

func TestWindowedSpectrum_Calibrated(t *testing.T) {
	const fs = 256.0
	// exactly on bin 32
	x := sine(512, fs, 32, 0.25)
	for _, kind := range []WindowKind{Rectangular, Hann, Chebyshev} {
		s, err := WindowedSpectrum(x, fs, 256, kind, 80)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if got := s.MagnitudeDB[32]; !almostEqual(got, 20*math.Log10(0.25), 0.01) {
			t.Errorf("%s: bin 32 = %.3f dB", kind, got)
		}
	}
}

func TestWindowedSpectrum_TenHertzScenario(t *testing.T) {
	// 250 Hz, 4 s buffer, 10 Hz tone
	const fs = 250.0
	x := sine(1000, fs, 10, 50e-6)

	s, err := WindowedSpectrum(x, fs, 512, Chebyshev, 80)
	if err != nil {
		t.Fatalf("WindowedSpectrum: %v", err)
	}

	bin, freq, peak := s.Peak()
	nearest := int(math.Round(10 / s.BinWidth))
	if bin != nearest {
		t.Fatalf("peak bin %d (%.2f Hz), want %d", bin, freq, nearest)
	}

	var floor []float64
	for i, f := range s.Frequencies {
		if math.Abs(f-10) > 3 {
			floor = append(floor, s.MagnitudeDB[i])
		}
	}
	slices.Sort(floor)
	median := floor[len(floor)/2]
	if peak-median < 40 {
		t.Errorf("peak %.1f dB only %.1f dB above the noise floor", peak, peak-median)
	}
}

func TestWindowedSpectrum_FloorOnZeros(t *testing.T) {
	s, err := WindowedSpectrum(make([]float64, 64), 100, 64, Hann, 0)
	if err != nil {
		t.Fatalf("WindowedSpectrum: %v", err)
	}
	for i, v := range s.MagnitudeDB {
		if math.IsInf(v, 0) || math.IsNaN(v) || !almostEqual(v, -300, 1e-9) {
			t.Fatalf("bin %d = %g", i, v)
		}
	}
}

func TestWindowedSpectrum_Errors(t *testing.T) {
	x := make([]float64, 100)
	for _, n := range []int{0, 1, 101} {
		_, err := WindowedSpectrum(x, 250, n, Hann, 0)
		var ce *errs.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("fft size %d: expected ConfigError, got %v", n, err)
		}
	}
}

func TestWindowedSpectrum_ZeroGainWindow(t *testing.T) {
	x := []float64{0.5, -0.25, 1}
	for _, kind := range []WindowKind{Hann, Blackman, Bartlett} {
		t.Run(string(kind), func(t *testing.T) {
			s, err := WindowedSpectrum(x, 250, 2, kind, 0)
			var ce *errs.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v (magnitudes %v)", err, s.MagnitudeDB)
			}
		})
	}

	s, err := WindowedSpectrum(x, 250, 2, Rectangular, 0)
	if err != nil {
		t.Fatalf("rectangular: %v", err)
	}
	for i, v := range s.MagnitudeDB {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("bin %d = %v", i, v)
		}
	}
}

func TestSpectrogram_ZeroEnergyWindow(t *testing.T) {
	_, err := ComputeSpectrogram([]float64{1, 2, 3, 4}, 250, 2, 0)
	var ce *errs.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestWindowedSpectrum_DoesNotMutateInput(t *testing.T) {
	x := sine(300, 250, 12, 1)
	orig := slices.Clone(x)
	if _, err := WindowedSpectrum(x, 250, 256, Blackman, 0); err != nil {
		t.Fatalf("WindowedSpectrum: %v", err)
	}
	if !slices.Equal(x, orig) {
		t.Error("input modified")
	}
}

func TestSpectrogram(t *testing.T) {
	const fs = 250.0
	x := sine(1000, fs, 50, 1e-3)

	sg, err := ComputeSpectrogram(x, fs, 256, 0.5)
	if err != nil {
		t.Fatalf("ComputeSpectrogram: %v", err)
	}

	if len(sg.Times) != 6 || len(sg.PowerDB) != 6 {
		t.Fatalf("got %d segments", len(sg.Times))
	}
	if !almostEqual(sg.Times[0], 128/fs, 1e-12) || !almostEqual(sg.Times[1]-sg.Times[0], 128/fs, 1e-12) {
		t.Errorf("times = %v", sg.Times)
	}
	if len(sg.Frequencies) != 129 {
		t.Errorf("got %d frequencies", len(sg.Frequencies))
	}

	for i, row := range sg.PowerDB {
		if f := sg.Frequencies[PeakBin(row)]; math.Abs(f-50) > fs/256 {
			t.Errorf("segment %d peak at %.2f Hz", i, f)
		}
	}
}

func TestSpectrogram_OverlapControlsHop(t *testing.T) {
	x := make([]float64, 1000)
	tests := []struct {
		overlap  float64
		segments int
	}{
		{0, 3},
		{0.5, 6},
		{0.75, 12},
	}

	for _, tt := range tests {
		sg, err := ComputeSpectrogram(x, 250, 256, tt.overlap)
		if err != nil {
			t.Fatalf("overlap %g: %v", tt.overlap, err)
		}
		if len(sg.Times) != tt.segments {
			t.Errorf("overlap %g: %d segments, want %d", tt.overlap, len(sg.Times), tt.segments)
		}
		for _, row := range sg.PowerDB {
			for _, v := range row {
				if !almostEqual(v, -120, 1e-9) {
					t.Fatalf("silent input gave %g dB", v)
				}
			}
		}
	}

	for _, bad := range []float64{-0.1, 1, 1.5} {
		if _, err := ComputeSpectrogram(x, 250, 256, bad); err == nil {
			t.Errorf("overlap %g accepted", bad)
		}
	}
}

func TestScalogram(t *testing.T) {
	const fs = 250.0
	const amplitude = 1e-3
	x := sine(500, fs, 10, amplitude)

	freqs := LogFrequencies(2, 60, 20)
	sc, err := ComputeScalogram(x, fs, freqs)
	if err != nil {
		t.Fatalf("ComputeScalogram: %v", err)
	}

	if sc.Frequencies[0] == 2 {
		t.Error("2 Hz wavelet does not fit 500 samples and should be dropped")
	}
	if len(sc.PowerDB) != len(sc.Frequencies) || len(sc.Times) != len(x) {
		t.Fatalf("shape %dx%d", len(sc.PowerDB), len(sc.Times))
	}

	mid := len(x) / 2
	column := make([]float64, len(sc.Frequencies))
	for i := range sc.PowerDB {
		column[i] = sc.PowerDB[i][mid]
	}
	best := PeakBin(column)

	nearest := 0
	for i, f := range sc.Frequencies {
		if math.Abs(math.Log(f/10)) < math.Abs(math.Log(sc.Frequencies[nearest]/10)) {
			nearest = i
		}
	}
	if best != nearest {
		t.Errorf("strongest scale at %.2f Hz, want %.2f Hz", sc.Frequencies[best], sc.Frequencies[nearest])
	}

	want := 20 * math.Log10(amplitude/2)
	if got := sc.PowerDB[best][mid]; !almostEqual(got, want, 1.5) {
		t.Errorf("power at peak %.2f dB, want about %.2f dB", got, want)
	}
}

func TestScalogram_SkipsOutOfRange(t *testing.T) {
	sc, err := ComputeScalogram(make([]float64, 100), 100, []float64{-1, 0, 50, 80, 20})
	if err != nil {
		t.Fatalf("ComputeScalogram: %v", err)
	}
	if len(sc.Frequencies) != 1 || sc.Frequencies[0] != 20 {
		t.Errorf("frequencies = %v", sc.Frequencies)
	}
}

func TestLogFrequencies(t *testing.T) {
	f := LogFrequencies(1, 100, 3)
	if len(f) != 3 || !almostEqual(f[0], 1, 1e-12) || !almostEqual(f[1], 10, 1e-9) || !almostEqual(f[2], 100, 1e-9) {
		t.Errorf("got %v", f)
	}
	if LogFrequencies(0, 10, 4) != nil {
		t.Error("expected nil for zero lower bound")
	}
}

func TestMaxHold(t *testing.T) {
	m := NewMaxHold()

	if got := m.Update(0, []float64{1, 2}); got != nil {
		t.Fatalf("disabled max-hold returned %v", got)
	}

	m.SetEnabled(true)
	first := m.Update(0, []float64{1, 5, 3})
	second := m.Update(0, []float64{2, 4, 4})
	if !slices.Equal(second, []float64{2, 5, 4}) {
		t.Errorf("held = %v", second)
	}
	if !slices.Equal(first, []float64{1, 5, 3}) {
		t.Errorf("earlier result changed to %v", first)
	}

	// channels are independent
	if got := m.Update(3, []float64{-1, -1, -1}); !slices.Equal(got, []float64{-1, -1, -1}) {
		t.Errorf("channel 3 = %v", got)
	}

	// bin count change restarts the channel
	if got := m.Update(0, []float64{0, 0}); !slices.Equal(got, []float64{0, 0}) {
		t.Errorf("after resize = %v", got)
	}

	m.Reset()
	if m.Get(0) != nil || m.Get(3) != nil {
		t.Error("reset did not clear")
	}

	m.Update(1, []float64{9})
	m.SetEnabled(false)
	if m.Enabled() || m.Get(1) != nil {
		t.Error("disable did not clear")
	}
	if !slices.Equal(second, []float64{2, 5, 4}) {
		t.Error("disabling altered a returned result")
	}
}
