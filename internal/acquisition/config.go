package acquisition

import (
	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
)

const (
	DefaultSampleRate    = 250
	DefaultWindowSeconds = 4
	MaxSampleRate        = 16000
	MaxWindowSeconds     = 600
)

// Config is the runtime acquisition configuration. It is treated as immutable
// once published; updates go through Worker.UpdateConfig.
type Config struct {
	SampleRate    int  // samples per second per channel
	WindowSeconds int  // ring buffer span in seconds
	ChannelCount  int  // channels exposed to consumers
	Paused        bool // reception paused
}

// DefaultConfig returns 250 Hz, a 4 second window and all 16 channels
func DefaultConfig() Config {
	return Config{
		SampleRate:    DefaultSampleRate,
		WindowSeconds: DefaultWindowSeconds,
		ChannelCount:  frame.ChannelCount,
	}
}

// Capacity is the number of frames the ring buffer holds
func (c Config) Capacity() int {
	return c.SampleRate * c.WindowSeconds
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if c.SampleRate <= 0 || c.SampleRate > MaxSampleRate {
		return errs.NewConfigError("sample rate must be in (0, %d], got %d", MaxSampleRate, c.SampleRate)
	}
	if c.WindowSeconds <= 0 || c.WindowSeconds > MaxWindowSeconds {
		return errs.NewConfigError("window must be in (0, %d] seconds, got %d", MaxWindowSeconds, c.WindowSeconds)
	}
	if c.ChannelCount <= 0 || c.ChannelCount > frame.ChannelCount {
		return errs.NewConfigError("channel count must be in (0, %d], got %d", frame.ChannelCount, c.ChannelCount)
	}
	return nil
}
