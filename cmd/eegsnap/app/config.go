package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roman-kulish/eegstream/internal/acquisition"
	"github.com/roman-kulish/eegstream/internal/consumer"
	"github.com/roman-kulish/eegstream/internal/spectral"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	ModeSpectrogram Mode = "spectrogram"
	ModeScalogram   Mode = "scalogram"
)

type ImageFormat string

// Mode selects the time-frequency transform
type Mode string

type Config struct {
	InputFile     string        // WAV recording; empty captures live
	Capture       time.Duration // live capture length
	DataAddr      string
	SampleRate    int // live only, WAV files carry their own
	Channel       int
	Mode          Mode
	OutputFile    string
	SaveWAV       string // optional copy of a live capture
	Format        ImageFormat
	Theme         ColorTheme
	MaxPower      *float64
	MinPower      *float64
	NoAnnotations bool

	Window     int
	Overlap    float64
	ScaleMin   float64
	ScaleMax   float64
	ScaleCount int

	DCBlock   bool
	Mains     int // 0 disables the notch
	Equalizer bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validModes = map[Mode]struct{}{
	ModeSpectrogram: {},
	ModeScalogram:   {},
}

func NewConfig() *Config {
	return &Config{
		Capture:    10 * time.Second,
		DataAddr:   acquisition.DefaultAddr,
		SampleRate: acquisition.DefaultSampleRate,
		Mode:       ModeSpectrogram,
		Format:     ImagePNG,
		Theme:      DefaultTheme,
		Window:     spectral.DefaultSpectrogramWindow,
		Overlap:    0.75,
		ScaleMin:   consumer.DefaultScalogramMin,
		ScaleMax:   consumer.DefaultScalogramMax,
		ScaleCount: 64,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c, err := ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

// ParseFlags builds a configuration from command line arguments
func ParseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, mode, theme string
	var minPower, maxPower float64
	fs.StringVar(&c.InputFile, "i", "", "Path to a WAV recording (omit to capture live)")
	fs.DurationVar(&c.Capture, "capture", c.Capture, "Live capture length")
	fs.StringVar(&c.DataAddr, "addr", c.DataAddr, "Telemetry UDP address for live capture")
	fs.IntVar(&c.SampleRate, "fs", c.SampleRate, "Board sample rate for live capture")
	fs.IntVar(&c.Channel, "ch", 0, "Channel to render")
	fs.StringVar(&mode, "m", string(ModeSpectrogram), "Transform. [spectrogram, scalogram]")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&c.SaveWAV, "save", "", "Also write the live capture to this WAV file")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(DefaultTheme), "Color theme. [default, classic, grayscale, jungle, thermal, marine]")
	fs.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power in dB")
	fs.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power in dB")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")
	fs.IntVar(&c.Window, "window", c.Window, "Spectrogram segment length in samples")
	fs.Float64Var(&c.Overlap, "overlap", c.Overlap, "Spectrogram segment overlap [0, 1)")
	fs.Float64Var(&c.ScaleMin, "scale-min", c.ScaleMin, "Lowest scalogram frequency in Hz")
	fs.Float64Var(&c.ScaleMax, "scale-max", c.ScaleMax, "Highest scalogram frequency in Hz")
	fs.IntVar(&c.ScaleCount, "scale-count", c.ScaleCount, "Number of scalogram frequencies")
	fs.BoolVar(&c.DCBlock, "dc", false, "Apply the DC-block high-pass before analysis")
	fs.IntVar(&c.Mains, "mains", 0, "Apply a mains notch at 50 or 60 Hz")
	fs.BoolVar(&c.Equalizer, "eq", false, "Apply the sinc^3 equalizer before analysis")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-power" {
			c.MinPower = &minPower
		}
		if f.Name == "max-power" {
			c.MaxPower = &maxPower
		}
	})

	var err error
	if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok = validModes[Mode(strings.ToLower(mode))]; !ok {
		err = fmt.Errorf("invalid mode: %s", mode)
	} else if _, ok = colorThemes[ColorTheme(strings.ToLower(theme))]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.InputFile == "" && c.Capture <= 0 {
		err = errors.New("capture length must be positive")
	} else if c.Channel < 0 {
		err = fmt.Errorf("invalid channel: %d", c.Channel)
	} else if c.Mains != 0 && c.Mains != 50 && c.Mains != 60 {
		err = fmt.Errorf("mains frequency must be 50 or 60 Hz, got %d", c.Mains)
	} else if c.MinPower != nil && c.MaxPower != nil && *c.MinPower >= *c.MaxPower {
		err = errors.New("min power must be below max power")
	}
	if err != nil {
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Mode = Mode(strings.ToLower(mode))
	c.Theme = ColorTheme(strings.ToLower(theme))
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
