package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// tone builds n frames where every channel carries offset + amplitude*sin(2 pi f t), in volts
func tone(n int, fs, f, amplitude, offset float64) [][frame.ChannelCount]int32 {
	block := make([][frame.ChannelCount]int32, n)
	for i := range block {
		v := offset + amplitude*math.Sin(2*math.Pi*f*float64(i)/fs)
		for ch := range block[i] {
			block[i][ch] = frame.FromVolts(v)
		}
	}
	return block
}

func rms(x []float64) float64 {
	var acc float64
	for _, v := range x {
		acc += v * v
	}
	return math.Sqrt(acc / float64(len(x)))
}

func mean(x []float64) float64 {
	var acc float64
	for _, v := range x {
		acc += v
	}
	return acc / float64(len(x))
}

func TestDesignSincCompensation(t *testing.T) {
	taps := DesignSincCompensation(EqualizerTaps, SincOrder)
	if len(taps) != EqualizerTaps {
		t.Fatalf("got %d taps", len(taps))
	}

	var sum float64
	for i, tap := range taps {
		sum += tap
		if !almostEqual(tap, taps[len(taps)-1-i], 1e-12) {
			t.Errorf("tap %d not symmetric: %f vs %f", i, tap, taps[len(taps)-1-i])
		}
	}
	if !almostEqual(sum, 1, 1e-9) {
		t.Errorf("DC gain = %f", sum)
	}

	// close to the coefficients the board itself uses
	reference := []float64{-0.00926, 0.06332, -0.35637, 1.60463, -0.35637, 0.06332, -0.00926}
	for i := range taps {
		if !almostEqual(taps[i], reference[i], 0.03) {
			t.Errorf("tap %d = %f, board uses %f", i, taps[i], reference[i])
		}
	}

	// boost rises towards Nyquist
	prev := 1.0
	for _, f := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		g := FIRResponse(taps, 1, f)
		if g <= prev {
			t.Errorf("gain at %.1f fs = %f, not above %f", f, g, prev)
		}
		prev = g
	}
}

func TestBiquadResponse(t *testing.T) {
	const fs = 250.0

	hp := HighPass(fs, 1)
	if g := hp.Response(fs, 0); g > 1e-9 {
		t.Errorf("high-pass DC gain = %g", g)
	}
	if g := hp.Response(fs, 1); !almostEqual(g, math.Sqrt2/2, 0.01) {
		t.Errorf("high-pass gain at cutoff = %f", g)
	}
	if g := hp.Response(fs, 40); !almostEqual(g, 1, 0.01) {
		t.Errorf("high-pass pass band gain = %f", g)
	}

	n := Notch(fs, 50, NotchQ)
	if g := n.Response(fs, 50); g > 1e-6 {
		t.Errorf("notch gain at center = %g", g)
	}
	if g := n.Response(fs, 10); !almostEqual(g, 1, 0.01) {
		t.Errorf("notch gain at 10 Hz = %f", g)
	}
}

func TestChain_AllDisabledIsIdentity(t *testing.T) {
	c, err := New(DefaultConfig(250))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	block := tone(300, 250, 7, 0.01, 0.2)
	out := c.Apply(block)
	if len(out) != frame.ChannelCount {
		t.Fatalf("got %d channels", len(out))
	}
	for ch := range out {
		for i, v := range out[ch] {
			if !almostEqual(v, frame.ToVolts(block[i][ch]), 1e-15) {
				t.Fatalf("ch %d sample %d: %g != %g", ch, i, v, frame.ToVolts(block[i][ch]))
			}
		}
	}
}

func TestChain_DCBlock(t *testing.T) {
	cfg := DefaultConfig(250)
	cfg.DCBlock = true
	cfg.DCCutoff = 1
	c, _ := New(cfg)

	out := c.Apply(tone(2500, 250, 10, 0.001, 0.5))
	tail := out[0][1500:]
	if m := mean(tail); math.Abs(m) > 1e-4 {
		t.Errorf("residual DC = %g", m)
	}
	if r := rms(tail); !almostEqual(r, 0.001/math.Sqrt2, 5e-5) {
		t.Errorf("10 Hz tone rms = %g", r)
	}
}

func TestChain_MainsNotch(t *testing.T) {
	tests := []struct {
		name     string
		mains    int
		harmonic bool
		tone     float64
	}{
		{"50 Hz", 50, false, 50},
		{"60 Hz", 60, false, 60},
		{"100 Hz harmonic", 50, true, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(500)
			cfg.Mains = !tt.harmonic
			cfg.Harmonic = tt.harmonic
			cfg.MainsFreq = tt.mains
			c, err := New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			out := c.Apply(tone(5000, 500, tt.tone, 0.01, 0))
			in := 0.01 / math.Sqrt2
			got := rms(out[3][4000:])
			if att := 20 * math.Log10(got/in); att > -30 {
				t.Errorf("attenuation at %g Hz = %.1f dB", tt.tone, att)
			}

			// a 10 Hz tone passes
			c.Reset()
			out = c.Apply(tone(5000, 500, 10, 0.01, 0))
			if got := rms(out[3][4000:]); !almostEqual(got, in, in*0.02) {
				t.Errorf("10 Hz rms = %g, want %g", got, in)
			}
		})
	}
}

func TestChain_HarmonicAboveNyquistBypassed(t *testing.T) {
	cfg := DefaultConfig(200)
	cfg.Harmonic = true
	cfg.MainsFreq = 60
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	block := tone(100, 200, 30, 0.01, 0)
	out := c.Apply(block)
	for i := range block {
		if !almostEqual(out[0][i], frame.ToVolts(block[i][0]), 1e-15) {
			t.Fatalf("sample %d changed", i)
		}
	}
}

func TestChain_BlockwiseMatchesSingleBlock(t *testing.T) {
	cfg := DefaultConfig(250)
	cfg.DCBlock = true
	cfg.Mains = true
	cfg.Harmonic = true
	cfg.Equalizer = true

	block := tone(600, 250, 12, 0.002, 0.1)

	whole, _ := New(cfg)
	want := whole.Apply(block)

	chunked, _ := New(cfg)
	a := chunked.Apply(block[:217])
	b := chunked.Apply(block[217:])

	for ch := 0; ch < cfg.ChannelCount; ch++ {
		got := append(append([]float64{}, a[ch]...), b[ch]...)
		for i := range got {
			if !almostEqual(got[i], want[ch][i], 1e-12) {
				t.Fatalf("ch %d sample %d: %g != %g", ch, i, got[i], want[ch][i])
			}
		}
	}
}

func TestChain_ToggleResetsState(t *testing.T) {
	cfg := DefaultConfig(250)
	cfg.DCBlock = true
	c, _ := New(cfg)
	c.Apply(tone(500, 250, 5, 0.01, 0.3))

	cfg.Equalizer = true
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	fresh, _ := New(cfg)
	block := tone(50, 250, 5, 0.01, 0.3)
	got := c.Apply(block)
	want := fresh.Apply(block)

	// enabling the equalizer leaves the warmed DC stage alone
	if almostEqual(got[0][0], want[0][0], 1e-12) {
		t.Fatalf("DC history should have survived an unrelated toggle")
	}

	cfg.Equalizer = false
	_ = c.Configure(cfg)
	cfg.DCBlock = false
	_ = c.Configure(cfg)
	cfg.DCBlock = true
	_ = c.Configure(cfg)
	got = c.Apply(block)

	fresh, _ = New(cfg)
	want = fresh.Apply(block)
	for i := range got[0] {
		if !almostEqual(got[0][i], want[0][i], 1e-12) {
			t.Fatalf("sample %d: %g != %g after toggling DC stage", i, got[0][i], want[0][i])
		}
	}
}

func TestChain_ChannelCountChange(t *testing.T) {
	cfg := DefaultConfig(250)
	cfg.DCBlock = true
	c, _ := New(cfg)
	c.Apply(tone(100, 250, 5, 0.01, 0.3))

	cfg.ChannelCount = 4
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	out := c.Apply(tone(10, 250, 5, 0.01, 0.3))
	if len(out) != 4 {
		t.Errorf("got %d channels", len(out))
	}
}

func TestChain_InvalidConfigKeepsPrevious(t *testing.T) {
	cfg := DefaultConfig(250)
	cfg.Mains = true
	c, _ := New(cfg)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"mains 55", func(c *Config) { c.MainsFreq = 55 }},
		{"cutoff 3", func(c *Config) { c.DCCutoff = 3 }},
		{"no channels", func(c *Config) { c.ChannelCount = 0 }},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := cfg
			tt.mutate(&bad)
			err := c.Configure(bad)
			var ce *errs.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if c.Config() != cfg {
				t.Errorf("config changed to %+v", c.Config())
			}
		})
	}
}

func TestChain_ApplyVolts(t *testing.T) {
	c, _ := New(DefaultConfig(250))
	x := [][]float64{{1, 2, 3}, {4, 5, 6}}
	c.ApplyVolts(x)
	if x[0][2] != 3 || x[1][0] != 4 {
		t.Errorf("identity chain changed data: %v", x)
	}
}
