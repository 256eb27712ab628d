package filter

import (
	"sync"

	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
)

const (
	// NotchQ is the quality factor of each notch section
	NotchQ = 35

	// EqualizerTaps is the length of the sinc^3 compensation FIR
	EqualizerTaps = 7

	// SincOrder is the order of the upstream decimation filter
	SincOrder = 3

	DefaultDCCutoff = 0.5
	DefaultMains    = 50
)

// DCCutoffs are the supported high-pass corners in Hz
var DCCutoffs = []float64{0.5, 1, 2, 4, 8}

// Config selects the enabled stages and their parameters
type Config struct {
	SampleRate   float64
	ChannelCount int

	DCBlock   bool
	DCCutoff  float64 // Hz, one of DCCutoffs
	Mains     bool
	MainsFreq int // 50 or 60
	Harmonic  bool
	Equalizer bool
}

// DefaultConfig returns a configuration with every stage disabled
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:   sampleRate,
		ChannelCount: frame.ChannelCount,
		DCCutoff:     DefaultDCCutoff,
		MainsFreq:    DefaultMains,
	}
}

// Validate checks stage parameters
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return errs.NewConfigError("sample rate must be positive, got %g", c.SampleRate)
	}
	if c.ChannelCount <= 0 || c.ChannelCount > frame.ChannelCount {
		return errs.NewConfigError("channel count must be in (0, %d], got %d", frame.ChannelCount, c.ChannelCount)
	}
	if c.MainsFreq != 50 && c.MainsFreq != 60 {
		return errs.NewConfigError("mains frequency must be 50 or 60 Hz, got %d", c.MainsFreq)
	}

	supported := false
	for _, f := range DCCutoffs {
		if f == c.DCCutoff {
			supported = true
			break
		}
	}
	if !supported {
		return errs.NewConfigError("unsupported DC cutoff %g Hz", c.DCCutoff)
	}
	if c.DCBlock && c.DCCutoff >= c.SampleRate/2 {
		return errs.NewConfigError("DC cutoff %g Hz is above Nyquist for %g Hz", c.DCCutoff, c.SampleRate)
	}

	return nil
}

// AnyEnabled reports whether at least one stage is active
func (c Config) AnyEnabled() bool {
	return c.DCBlock || c.Mains || c.Harmonic || c.Equalizer
}

// Chain applies DC-block, mains notch, harmonic notch and sinc^3 equalizer, in that
// order, to every channel. Each stage keeps per-channel history between calls, so a
// block must be applied exactly once.
type Chain struct {
	mu  sync.Mutex
	cfg Config

	dc        *section
	mains     []*section // two cascaded sections
	harmonic  []*section
	equalizer *fir
}

// New builds a chain for cfg
func New(cfg Config) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := Chain{}
	c.rebuild(cfg, Config{})
	return &c, nil
}

// Config returns the active configuration
func (c *Chain) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Configure swaps in cfg. Stages whose enable flag or parameters changed, or all
// stages when the sample rate or channel count changed, start from empty history.
// An invalid cfg is rejected and the active configuration is kept.
func (c *Chain) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rebuild(cfg, c.cfg)
	return nil
}

// Reset clears the history of every stage
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuild(c.cfg, Config{})
}

// Apply converts a block of raw frames to volts and filters it. The result is
// indexed [channel][sample] and holds ChannelCount channels.
func (c *Chain) Apply(block [][frame.ChannelCount]int32) [][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]float64, c.cfg.ChannelCount)
	for ch := range out {
		x := make([]float64, len(block))
		for i := range block {
			x[i] = frame.ToVolts(block[i][ch])
		}
		c.process(ch, x)
		out[ch] = x
	}
	return out
}

// ApplyVolts filters samples already in volts, in place. x is indexed [channel][sample];
// channels beyond ChannelCount are left untouched.
func (c *Chain) ApplyVolts(x [][]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ch := range x {
		if ch >= c.cfg.ChannelCount {
			break
		}
		c.process(ch, x[ch])
	}
}

func (c *Chain) process(ch int, x []float64) {
	if c.dc != nil {
		c.dc.process(ch, x)
	}
	for _, s := range c.mains {
		s.process(ch, x)
	}
	for _, s := range c.harmonic {
		s.process(ch, x)
	}
	if c.equalizer != nil {
		c.equalizer.process(ch, x)
	}
}

// rebuild installs stages for next, reusing stages of prev whose design is unchanged
func (c *Chain) rebuild(next, prev Config) {
	all := next.SampleRate != prev.SampleRate || next.ChannelCount != prev.ChannelCount
	n := next.ChannelCount
	fs := next.SampleRate

	if all || next.DCBlock != prev.DCBlock || next.DCCutoff != prev.DCCutoff {
		c.dc = nil
		if next.DCBlock {
			c.dc = newSection(HighPass(fs, next.DCCutoff), n)
		}
	}

	if all || next.Mains != prev.Mains || next.MainsFreq != prev.MainsFreq {
		c.mains = nil
		if next.Mains {
			c.mains = notchSections(fs, float64(next.MainsFreq), n)
		}
	}

	if all || next.Harmonic != prev.Harmonic || next.MainsFreq != prev.MainsFreq {
		c.harmonic = nil
		if next.Harmonic {
			c.harmonic = notchSections(fs, 2*float64(next.MainsFreq), n)
		}
	}

	if all || next.Equalizer != prev.Equalizer {
		c.equalizer = nil
		if next.Equalizer {
			c.equalizer = newFIR(DesignSincCompensation(EqualizerTaps, SincOrder), n)
		}
	}

	c.cfg = next
}

// notchSections returns a fourth order notch, or nil when f0 is not below Nyquist
func notchSections(sampleRate, f0 float64, channels int) []*section {
	if f0 >= sampleRate/2 {
		return nil
	}
	coef := Notch(sampleRate, f0, NotchQ)
	return []*section{newSection(coef, channels), newSection(coef, channels)}
}
