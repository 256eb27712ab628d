package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/roman-kulish/eegstream/internal/filter"
	"github.com/roman-kulish/eegstream/internal/frame"
	"github.com/roman-kulish/eegstream/internal/recording"
	"github.com/roman-kulish/eegstream/internal/spectral"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	rec, err := loadRecording(ctx, config, logger)
	if err != nil {
		return err
	}

	hm, err := analyse(rec, config)
	if err != nil {
		return err
	}

	logger.Info("rendering heat map",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("mode", string(config.Mode)),
			slog.String("theme", string(config.Theme)),
			slog.Int("columns", hm.Width()),
			slog.Int("rows", hm.Height()),
			slog.String("minPower", fmt.Sprintf("%0.1fdB", hm.Bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.1fdB", hm.Bounds.Max)),
		))

	renderer, err := NewHeatmapRenderer(RenderConfig{
		ColorTheme:    config.Theme,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating heat map renderer: %w", err)
	}

	img, err := renderer.Render(hm)
	if err != nil {
		return fmt.Errorf("rendering heat map: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	return out.Close()
}

// analyse filters the selected channel and computes its time-frequency heat map
func analyse(rec *recording.Recording, config *Config) (*Heatmap, error) {
	if config.Channel >= rec.ChannelCount() || config.Channel >= frame.ChannelCount {
		return nil, fmt.Errorf("channel %d not in recording with %d channels", config.Channel, rec.ChannelCount())
	}
	if rec.Len() == 0 {
		return nil, fmt.Errorf("recording is empty")
	}

	fs := float64(rec.SampleRate)
	x, err := filterChannel(rec, config)
	if err != nil {
		return nil, err
	}

	var hm *Heatmap
	switch config.Mode {
	case ModeScalogram:
		sc, err := spectral.ComputeScalogram(x, fs, spectral.LogFrequencies(config.ScaleMin, min(config.ScaleMax, fs/2), config.ScaleCount))
		if err != nil {
			return nil, err
		}
		hm = heatmapFromScalogram(sc)

	default:
		sg, err := spectral.ComputeSpectrogram(x, fs, min(config.Window, len(x)), config.Overlap)
		if err != nil {
			return nil, err
		}
		hm = heatmapFromSpectrogram(sg)
	}

	if hm.Width() == 0 || hm.Height() == 0 {
		return nil, fmt.Errorf("recording too short for a %s", config.Mode)
	}

	hm.Channel = config.Channel
	hm.SampleRate = fs
	hm.updateBounds(config.MinPower, config.MaxPower)
	return hm, nil
}

// filterChannel runs the requested host filters over the whole recording and
// returns one channel in volts
func filterChannel(rec *recording.Recording, config *Config) ([]float64, error) {
	cfg := filter.DefaultConfig(float64(rec.SampleRate))
	cfg.DCBlock = config.DCBlock
	cfg.Equalizer = config.Equalizer
	if config.Mains != 0 {
		cfg.Mains = true
		cfg.Harmonic = true
		cfg.MainsFreq = config.Mains
	}

	chain, err := filter.New(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.AnyEnabled() {
		return rec.Volts(config.Channel), nil
	}

	block := make([][frame.ChannelCount]int32, rec.Len())
	for i := range block {
		block[i] = rec.Frame(i)
	}
	return chain.Apply(block)[config.Channel], nil
}
