package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eegsim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
host:
  address: 192.168.4.2
  dataPort: 6001
board:
  beaconInterval: 250ms
stream:
  sampleRate: 500
  framesPerPacket: 28
  autoStart: true
  tones:
    - frequency: 12
      volts: 0.0001
`)

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if c.Board.BeaconInterval != 250*time.Millisecond {
		t.Errorf("BeaconInterval = %v", c.Board.BeaconInterval)
	}
	if c.Board.PeerTimeout != DefaultPeerTimeout {
		t.Errorf("PeerTimeout = %v, want default", c.Board.PeerTimeout)
	}
	if got := c.dataAddr().String(); got != "192.168.4.2:6001" {
		t.Errorf("dataAddr() = %s", got)
	}
	if got := c.controlAddr().String(); got != "192.168.4.2:5000" {
		t.Errorf("controlAddr() = %s", got)
	}
	if c.Board.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", c.Board.Listen, DefaultListen)
	}
	if len(c.Stream.Tones) != 1 || c.Stream.Tones[0].Frequency != 12 {
		t.Errorf("Tones = %+v", c.Stream.Tones)
	}
	if !c.Stream.AutoStart || c.Stream.FramesPerPacket != 28 {
		t.Errorf("Stream = %+v", c.Stream)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad address", "host:\n  address: nowhere\n"},
		{"bad port", "host:\n  controlPort: 70000\n"},
		{"zero beacon", "board:\n  beaconInterval: 0s\n"},
		{"too many frames", "stream:\n  framesPerPacket: 29\n"},
		{"zero frames", "stream:\n  framesPerPacket: 0\n"},
		{"negative noise", "stream:\n  noiseVolts: -1\n"},
		{"tone above full scale", "stream:\n  tones:\n    - frequency: 10\n      volts: 5\n"},
		{"zero sample rate", "stream:\n  sampleRate: 0\n"},
		{"not yaml", "stream: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if DefaultConfig().Stream.FramesPerPacket != DefaultFramesPerPacket {
		t.Error("unexpected default frames per packet")
	}
}
