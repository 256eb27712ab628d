package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/eegstream/internal/acquisition"
	"github.com/roman-kulish/eegstream/internal/consumer"
	"github.com/roman-kulish/eegstream/internal/frame"
	"github.com/roman-kulish/eegstream/internal/recording"
)

// loadRecording reads the input file or captures live telemetry
func loadRecording(ctx context.Context, config *Config, logger *slog.Logger) (*recording.Recording, error) {
	if config.InputFile != "" {
		rec, err := recording.ReadWAV(config.InputFile)
		if err != nil {
			return nil, fmt.Errorf("reading '%s': %w", config.InputFile, err)
		}
		logger.Info("recording loaded",
			slog.String("path", config.InputFile),
			slog.Int("sampleRate", rec.SampleRate),
			slog.Int("channels", rec.ChannelCount()),
			slog.String("samples", humanize.Comma(int64(rec.Len()))))
		return rec, nil
	}

	rec, err := capture(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	if config.SaveWAV != "" {
		if err = recording.WriteWAV(config.SaveWAV, rec); err != nil {
			return nil, fmt.Errorf("saving capture: %w", err)
		}
		logger.Info("capture saved", slog.String("path", config.SaveWAV))
	}
	return rec, nil
}

// capture listens for config.Capture and returns the frames received
func capture(ctx context.Context, config *Config, logger *slog.Logger) (*recording.Recording, error) {
	cfg := consumer.DefaultConfig()
	cfg.Acquisition.SampleRate = config.SampleRate
	cfg.Acquisition.WindowSeconds = int(math.Ceil(config.Capture.Seconds()))

	facade, err := consumer.New(cfg, consumer.WithLogger(logger), consumer.WithDataAddr(config.DataAddr))
	if err != nil {
		return nil, fmt.Errorf("creating consumer: %w", err)
	}
	if err = facade.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting acquisition: %w", err)
	}
	defer facade.Stop()

	logger.Info("capturing",
		slog.String("addr", facade.Worker().LocalAddr().String()),
		slog.Duration("length", config.Capture))

	timer := time.NewTimer(config.Capture)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		logger.Warn("capture interrupted, rendering what arrived")
	}

	rec := fromSnapshot(facade.Worker(), cfg.Acquisition)
	if rec.Len() == 0 {
		return nil, fmt.Errorf("no telemetry received on %s", config.DataAddr)
	}

	t := facade.Telemetry()
	logger.Info("capture finished",
		slog.String("frames", humanize.Comma(int64(t.Frames))),
		slog.String("received", humanize.Bytes(t.BytesReceived)),
		slog.Uint64("malformed", t.Malformed))

	return rec, nil
}

// fromSnapshot keeps only the frames that actually arrived
func fromSnapshot(w *acquisition.Worker, cfg acquisition.Config) *recording.Recording {
	snap := w.Snapshot()
	n := int(min(snap.Written, uint64(snap.Len())))
	start := snap.Len() - n

	rec := &recording.Recording{
		SampleRate: cfg.SampleRate,
		Samples:    make([][]int32, frame.ChannelCount),
	}
	for ch := range rec.Samples {
		rec.Samples[ch] = make([]int32, n)
		for i := 0; i < n; i++ {
			rec.Samples[ch][i] = snap.Samples[start+i][ch]
		}
	}
	return rec
}
