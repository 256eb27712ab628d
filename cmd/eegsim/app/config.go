package app

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/eegstream/internal/frame"
)

const (
	// DefaultFramesPerPacket matches the firmware build default
	DefaultFramesPerPacket = 10

	// MaxFramesPerPacket keeps a datagram under the 1472 byte UDP payload limit
	MaxFramesPerPacket = 28

	DefaultBeaconInterval = time.Second
	DefaultPeerTimeout    = 10 * time.Second
)

// Config represents the simulator configuration
type Config struct {
	Settings Settings     `yaml:"settings"`
	Host     HostConfig   `yaml:"host"`
	Board    BoardConfig  `yaml:"board"`
	Stream   StreamConfig `yaml:"stream"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string        `yaml:"logLevel"`
	StatsInterval time.Duration `yaml:"statsInterval"` // zero disables the throughput log
}

// HostConfig is where beacons, replies and telemetry are sent
type HostConfig struct {
	Address     string `yaml:"address"`
	ControlPort int    `yaml:"controlPort"`
	DataPort    int    `yaml:"dataPort"`
}

// DefaultListen is the board's command port on a second loopback address, so a
// host on the same machine can keep its own control port 5000.
const DefaultListen = "127.0.0.2:5000"

// BoardConfig represents the simulated board link
type BoardConfig struct {
	Listen         string        `yaml:"listen"` // commands are read here, everything else is sent from an ephemeral port
	BeaconInterval time.Duration `yaml:"beaconInterval"`
	PeerTimeout    time.Duration `yaml:"peerTimeout"`
	BatteryVolts   float32       `yaml:"batteryVolts"`
}

// StreamConfig represents the generated signal
type StreamConfig struct {
	SampleRate      int     `yaml:"sampleRate"`
	FramesPerPacket int     `yaml:"framesPerPacket"`
	AutoStart       bool    `yaml:"autoStart"` // stream without waiting for start_cnt
	InputFile       string  `yaml:"inputFile"` // WAV file replayed in a loop, overrides tones
	Tones           []Tone  `yaml:"tones"`
	NoiseVolts      float64 `yaml:"noiseVolts"`
	OffsetVolts     float64 `yaml:"offsetVolts"`
}

// Tone is one sine component added to every channel
type Tone struct {
	Frequency float64 `yaml:"frequency"`
	Volts     float64 `yaml:"volts"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      "info",
			StatsInterval: 10 * time.Second,
		},
		Host: HostConfig{
			Address:     "127.0.0.1",
			ControlPort: 5000,
			DataPort:    5001,
		},
		Board: BoardConfig{
			Listen:         DefaultListen,
			BeaconInterval: DefaultBeaconInterval,
			PeerTimeout:    DefaultPeerTimeout,
			BatteryVolts:   3.9,
		},
		Stream: StreamConfig{
			SampleRate:      250,
			FramesPerPacket: DefaultFramesPerPacket,
			Tones: []Tone{
				{Frequency: 10, Volts: 50e-6},
				{Frequency: 50, Volts: 20e-6},
			},
			NoiseVolts:  5e-6,
			OffsetVolts: 1e-3,
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
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for values the simulator cannot run with
func (c *Config) Validate() error {
	if net.ParseIP(c.Host.Address) == nil {
		return fmt.Errorf("invalid host address %q", c.Host.Address)
	}
	if c.Host.ControlPort <= 0 || c.Host.ControlPort > 65535 {
		return fmt.Errorf("invalid host control port %d", c.Host.ControlPort)
	}
	if c.Host.DataPort <= 0 || c.Host.DataPort > 65535 {
		return fmt.Errorf("invalid host data port %d", c.Host.DataPort)
	}
	if c.Board.BeaconInterval <= 0 {
		return fmt.Errorf("beacon interval must be positive")
	}
	if c.Board.PeerTimeout <= 0 {
		return fmt.Errorf("peer timeout must be positive")
	}
	if c.Stream.InputFile == "" && c.Stream.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if c.Stream.FramesPerPacket < 1 || c.Stream.FramesPerPacket > MaxFramesPerPacket {
		return fmt.Errorf("frames per packet must be in [1, %d]", MaxFramesPerPacket)
	}
	for _, tone := range c.Stream.Tones {
		if tone.Frequency < 0 || tone.Volts < 0 || tone.Volts > frame.FullScaleVolts {
			return fmt.Errorf("invalid tone %v Hz at %v V", tone.Frequency, tone.Volts)
		}
	}
	if c.Stream.NoiseVolts < 0 {
		return fmt.Errorf("noise must not be negative")
	}
	return nil
}

func (c *Config) controlAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(c.Host.Address), Port: c.Host.ControlPort}
}

func (c *Config) dataAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(c.Host.Address), Port: c.Host.DataPort}
}
