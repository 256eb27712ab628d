package consumer

import (
	"github.com/roman-kulish/eegstream/internal/acquisition"
	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/filter"
	"github.com/roman-kulish/eegstream/internal/frame"
	"github.com/roman-kulish/eegstream/internal/spectral"
)

const (
	DefaultFFTSize = 512

	DefaultScalogramMin   = 1.0
	DefaultScalogramMax   = 60.0
	DefaultScalogramCount = 32
)

// Analysis holds the spectral settings used by the convenience views
type Analysis struct {
	FFTSize            int
	Window             spectral.WindowKind
	WindowParam        float64 // attenuation in dB for parametric windows
	SpectrogramWindow  int
	SpectrogramOverlap float64
	ScalogramMin       float64
	ScalogramMax       float64
	ScalogramCount     int
	MaxHold            bool
}

// Validate checks the analysis settings
func (a Analysis) Validate() error {
	if a.FFTSize < 2 {
		return errs.NewConfigError("fft size must be at least 2, got %d", a.FFTSize)
	}
	if _, err := spectral.Window(a.Window, 2, a.WindowParam); err != nil {
		return err
	}
	if a.SpectrogramWindow < 2 {
		return errs.NewConfigError("spectrogram window must be at least 2, got %d", a.SpectrogramWindow)
	}
	if a.SpectrogramOverlap < 0 || a.SpectrogramOverlap >= 1 {
		return errs.NewConfigError("spectrogram overlap must be in [0, 1), got %g", a.SpectrogramOverlap)
	}
	if a.ScalogramMin <= 0 || a.ScalogramMax <= a.ScalogramMin || a.ScalogramCount <= 0 {
		return errs.NewConfigError("invalid scalogram range %g-%g Hz x %d", a.ScalogramMin, a.ScalogramMax, a.ScalogramCount)
	}
	return nil
}

// Config is the complete consumer configuration
type Config struct {
	Acquisition acquisition.Config
	Filter      filter.Config // SampleRate and ChannelCount follow Acquisition
	Analysis    Analysis
}

// DefaultConfig returns 250 Hz, 4 s, 16 channels, filters off and an 80 dB Chebyshev window
func DefaultConfig() Config {
	acq := acquisition.DefaultConfig()
	return Config{
		Acquisition: acq,
		Filter:      filter.DefaultConfig(float64(acq.SampleRate)),
		Analysis: Analysis{
			FFTSize:            DefaultFFTSize,
			Window:             spectral.Chebyshev,
			WindowParam:        spectral.DefaultAttenuation,
			SpectrogramWindow:  spectral.DefaultSpectrogramWindow,
			SpectrogramOverlap: spectral.DefaultSpectrogramOverlap,
			ScalogramMin:       DefaultScalogramMin,
			ScalogramMax:       DefaultScalogramMax,
			ScalogramCount:     DefaultScalogramCount,
		},
	}
}

// normalize derives the filter rate and channel count from the acquisition settings
func (c Config) normalize() Config {
	c.Filter.SampleRate = float64(c.Acquisition.SampleRate)
	c.Filter.ChannelCount = c.Acquisition.ChannelCount
	return c
}

// Validate checks every section
func (c Config) Validate() error {
	c = c.normalize()
	if err := c.Acquisition.Validate(); err != nil {
		return err
	}
	if err := c.Filter.Validate(); err != nil {
		return err
	}
	return c.Analysis.Validate()
}

// Update names the fields to change; nil fields are left as they are
type Update struct {
	SampleRate    *int
	WindowSeconds *int
	ChannelCount  *int

	DCBlock   *bool
	DCCutoff  *float64
	Mains     *bool
	MainsFreq *int
	Harmonic  *bool
	Equalizer *bool

	FFTSize            *int
	Window             *spectral.WindowKind
	WindowParam        *float64
	SpectrogramWindow  *int
	SpectrogramOverlap *float64
	MaxHold            *bool
}

func (u Update) apply(c Config) Config {
	set(&c.Acquisition.SampleRate, u.SampleRate)
	set(&c.Acquisition.WindowSeconds, u.WindowSeconds)
	set(&c.Acquisition.ChannelCount, u.ChannelCount)

	set(&c.Filter.DCBlock, u.DCBlock)
	set(&c.Filter.DCCutoff, u.DCCutoff)
	set(&c.Filter.Mains, u.Mains)
	set(&c.Filter.MainsFreq, u.MainsFreq)
	set(&c.Filter.Harmonic, u.Harmonic)
	set(&c.Filter.Equalizer, u.Equalizer)

	set(&c.Analysis.FFTSize, u.FFTSize)
	set(&c.Analysis.Window, u.Window)
	set(&c.Analysis.WindowParam, u.WindowParam)
	set(&c.Analysis.SpectrogramWindow, u.SpectrogramWindow)
	set(&c.Analysis.SpectrogramOverlap, u.SpectrogramOverlap)
	set(&c.Analysis.MaxHold, u.MaxHold)

	return c.normalize()
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Ptr returns a pointer to v, for building an Update
func Ptr[T any](v T) *T {
	return &v
}

// channelLimit guards channel indexes passed by callers
func channelLimit(ch, count int) error {
	if ch < 0 || ch >= count || ch >= frame.ChannelCount {
		return errs.NewConfigError("channel %d out of range [0, %d)", ch, count)
	}
	return nil
}
