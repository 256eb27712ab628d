package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/eegstream/internal/acquisition"
	"github.com/roman-kulish/eegstream/internal/consumer"
	"github.com/roman-kulish/eegstream/internal/control"
	"github.com/roman-kulish/eegstream/internal/filter"
	"github.com/roman-kulish/eegstream/internal/spectral"
)

// Config represents the main application configuration
type Config struct {
	Settings    Settings          `yaml:"settings"`
	Data        DataConfig        `yaml:"data"`
	Control     ControlConfig     `yaml:"control"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Filter      FilterConfig      `yaml:"filter"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Journal     JournalConfig     `yaml:"journal"`
	Server      ServerConfig      `yaml:"server"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string        `yaml:"logLevel"`
	StatsInterval time.Duration `yaml:"statsInterval"` // zero disables the throughput log
}

// DataConfig represents the telemetry socket
type DataConfig struct {
	Listen string `yaml:"listen"`
}

// ControlConfig represents the command session with the board
type ControlConfig struct {
	Listen        string        `yaml:"listen"`
	RemotePort    int           `yaml:"remotePort"` // board command port, zero uses the listen port
	KeepAlive     time.Duration `yaml:"keepAlive"`
	AckTimeout    time.Duration `yaml:"ackTimeout"`
	MirrorFilters bool          `yaml:"mirrorFilters"` // forward filter changes to the board
}

// AcquisitionConfig represents the ring buffer geometry
type AcquisitionConfig struct {
	SampleRate    int `yaml:"sampleRate"`
	WindowSeconds int `yaml:"windowSeconds"`
	ChannelCount  int `yaml:"channelCount"`
}

// FilterConfig represents the host-side filter stages
type FilterConfig struct {
	DCBlock   bool    `yaml:"dcBlock"`
	DCCutoff  float64 `yaml:"dcCutoff"`
	Mains     bool    `yaml:"mains"`
	MainsFreq int     `yaml:"mainsFreq"`
	Harmonic  bool    `yaml:"harmonic"`
	Equalizer bool    `yaml:"equalizer"`
}

// AnalysisConfig represents the spectral view settings
type AnalysisConfig struct {
	FFTSize            int     `yaml:"fftSize"`
	Window             string  `yaml:"window"`
	WindowParam        float64 `yaml:"windowParam"`
	SpectrogramWindow  int     `yaml:"spectrogramWindow"`
	SpectrogramOverlap float64 `yaml:"spectrogramOverlap"`
	ScalogramMin       float64 `yaml:"scalogramMin"`
	ScalogramMax       float64 `yaml:"scalogramMax"`
	ScalogramCount     int     `yaml:"scalogramCount"`
	MaxHold            bool    `yaml:"maxHold"`
}

// JournalConfig represents the control journal. An empty directory disables it.
type JournalConfig struct {
	DataDirectory     string        `yaml:"dataDirectory"`
	TelemetryInterval time.Duration `yaml:"telemetryInterval"`
}

// ServerConfig represents the consumer stream endpoint
type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	StreamInterval time.Duration `yaml:"streamInterval"`
	StatusInterval time.Duration `yaml:"statusInterval"`
	Channels       []int         `yaml:"channels"` // empty streams every active channel
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	def := consumer.DefaultConfig()

	return &Config{
		Settings: Settings{
			LogLevel: "info",
		},
		Data: DataConfig{
			Listen: acquisition.DefaultAddr,
		},
		Control: ControlConfig{
			Listen:     control.DefaultAddr,
			RemotePort: control.DefaultRemotePort,
			KeepAlive:  control.KeepAliveInterval,
			AckTimeout: control.DefaultAckTimeout,
		},
		Acquisition: AcquisitionConfig{
			SampleRate:    def.Acquisition.SampleRate,
			WindowSeconds: def.Acquisition.WindowSeconds,
			ChannelCount:  def.Acquisition.ChannelCount,
		},
		Filter: FilterConfig{
			DCCutoff:  filter.DefaultDCCutoff,
			MainsFreq: filter.DefaultMains,
		},
		Analysis: AnalysisConfig{
			FFTSize:            def.Analysis.FFTSize,
			Window:             string(def.Analysis.Window),
			WindowParam:        def.Analysis.WindowParam,
			SpectrogramWindow:  def.Analysis.SpectrogramWindow,
			SpectrogramOverlap: def.Analysis.SpectrogramOverlap,
			ScalogramMin:       def.Analysis.ScalogramMin,
			ScalogramMax:       def.Analysis.ScalogramMax,
			ScalogramCount:     def.Analysis.ScalogramCount,
		},
		Journal: JournalConfig{
			TelemetryInterval: 30 * time.Second,
		},
		Server: ServerConfig{
			Listen:         ":8080",
			StreamInterval: 250 * time.Millisecond,
			StatusInterval: time.Second,
		},
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if _, err = config.ConsumerConfig(); err != nil {
		return nil, err
	}
	if config.Server.StreamInterval <= 0 {
		return nil, fmt.Errorf("server stream interval must be positive")
	}
	if config.Server.StatusInterval <= 0 {
		return nil, fmt.Errorf("server status interval must be positive")
	}
	for _, ch := range config.Server.Channels {
		if ch < 0 || ch >= config.Acquisition.ChannelCount {
			return nil, fmt.Errorf("stream channel %d out of range [0, %d)", ch, config.Acquisition.ChannelCount)
		}
	}

	return config, nil
}

// ConsumerConfig converts the file layout into a validated facade configuration
func (c *Config) ConsumerConfig() (consumer.Config, error) {
	window, err := spectral.ParseWindowKind(c.Analysis.Window)
	if err != nil {
		return consumer.Config{}, err
	}

	cfg := consumer.Config{
		Acquisition: acquisition.Config{
			SampleRate:    c.Acquisition.SampleRate,
			WindowSeconds: c.Acquisition.WindowSeconds,
			ChannelCount:  c.Acquisition.ChannelCount,
		},
		Filter: filter.Config{
			SampleRate:   float64(c.Acquisition.SampleRate),
			ChannelCount: c.Acquisition.ChannelCount,
			DCBlock:      c.Filter.DCBlock,
			DCCutoff:     c.Filter.DCCutoff,
			Mains:        c.Filter.Mains,
			MainsFreq:    c.Filter.MainsFreq,
			Harmonic:     c.Filter.Harmonic,
			Equalizer:    c.Filter.Equalizer,
		},
		Analysis: consumer.Analysis{
			FFTSize:            c.Analysis.FFTSize,
			Window:             window,
			WindowParam:        c.Analysis.WindowParam,
			SpectrogramWindow:  c.Analysis.SpectrogramWindow,
			SpectrogramOverlap: c.Analysis.SpectrogramOverlap,
			ScalogramMin:       c.Analysis.ScalogramMin,
			ScalogramMax:       c.Analysis.ScalogramMax,
			ScalogramCount:     c.Analysis.ScalogramCount,
			MaxHold:            c.Analysis.MaxHold,
		},
	}

	if err = cfg.Validate(); err != nil {
		return consumer.Config{}, err
	}
	return cfg, nil
}
