package consumer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/eegstream/internal/acquisition"
	"github.com/roman-kulish/eegstream/internal/filter"
	"github.com/roman-kulish/eegstream/internal/frame"
	"github.com/roman-kulish/eegstream/internal/spectral"
	"github.com/roman-kulish/eegstream/internal/telemetry"
)

// WithLogger sets the logger for the facade and the worker it owns
func WithLogger(logger *slog.Logger) func(f *Facade) {
	return func(f *Facade) {
		f.logger = logger
	}
}

// WithDataAddr sets the UDP address the acquisition worker listens on
func WithDataAddr(addr string) func(f *Facade) {
	return func(f *Facade) {
		f.dataAddr = addr
	}
}

// WithStats enables the periodic acquisition throughput log
func WithStats(interval time.Duration) func(f *Facade) {
	return func(f *Facade) {
		f.statsInterval = interval
	}
}

// Snapshot is the consumer view of the ring buffer
type Snapshot struct {
	Samples      [][]float64 // [channel][sample] in volts, oldest first
	Timestamps   []uint32    // hardware ticks, oldest first
	BatteryVolts float64
	SampleRate   int
	Written      uint64 // total frames received
}

// Filtered is the rolling filter output aligned with the ring buffer
type Filtered struct {
	Samples    [][]float64 // [channel][sample] in volts, oldest first
	SampleRate int
	Written    uint64
}

// ChannelSpectrum is a spectrum plus the max-hold trace when enabled
type ChannelSpectrum struct {
	spectral.Spectrum
	MaxHold []float64
}

// Facade is the single entry point for consumers: lifecycle, snapshots, live
// reconfiguration and the filtered and spectral views. Spectral calls never mutate
// acquisition or filter state.
type Facade struct {
	worker  *acquisition.Worker
	chain   *filter.Chain
	maxHold *spectral.MaxHold

	mu       sync.Mutex // guards cfg and the filtered view
	cfg      Config
	filtered [][]float64
	seen     uint64 // frames already passed through the chain

	dataAddr      string
	statsInterval time.Duration
	logger        *slog.Logger
}

// New creates a facade for cfg. Nothing touches the network until Start.
func New(cfg Config, options ...func(f *Facade)) (*Facade, error) {
	cfg = cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := Facade{
		cfg:      cfg,
		maxHold:  spectral.NewMaxHold(),
		dataAddr: acquisition.DefaultAddr,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(&f)
	}

	var err error
	if f.chain, err = filter.New(cfg.Filter); err != nil {
		return nil, err
	}

	workerOptions := []func(w *acquisition.Worker){
		acquisition.WithLogger(f.logger),
		acquisition.WithAddr(f.dataAddr),
	}
	if f.statsInterval > 0 {
		workerOptions = append(workerOptions, acquisition.WithStats(f.statsInterval))
	}
	if f.worker, err = acquisition.NewWorker(cfg.Acquisition, workerOptions...); err != nil {
		return nil, err
	}

	f.maxHold.SetEnabled(cfg.Analysis.MaxHold)
	f.logger = f.logger.With(slog.String("component", "consumer"))

	return &f, nil
}

// Start begins acquisition. It is a no-op when already running.
func (f *Facade) Start(ctx context.Context) error {
	return f.worker.Start(ctx)
}

// Stop ends acquisition
func (f *Facade) Stop() {
	f.worker.Stop()
}

// Worker exposes the acquisition worker
func (f *Facade) Worker() *acquisition.Worker {
	return f.worker
}

// Updates signals that new frames were published
func (f *Facade) Updates() <-chan struct{} {
	return f.worker.Updates()
}

// Telemetry returns link counters and battery state
func (f *Facade) Telemetry() *telemetry.Telemetry {
	return f.worker.Get()
}

// Config returns the active configuration
func (f *Facade) Config() Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := f.cfg
	cfg.Acquisition = f.worker.Config()
	return cfg
}

// SetPaused pauses or resumes reception
func (f *Facade) SetPaused(paused bool) {
	f.worker.SetPaused(paused)
}

// Paused reports whether reception is paused
func (f *Facade) Paused() bool {
	return f.worker.Paused()
}

// ResetMaxHold discards the held spectra
func (f *Facade) ResetMaxHold() {
	f.maxHold.Reset()
}

// Snapshot returns the buffer in volts. The second result is false until the first
// frame has arrived.
func (f *Facade) Snapshot() (Snapshot, bool) {
	raw := f.worker.Snapshot()
	if raw.Written == 0 {
		return Snapshot{}, false
	}

	acq := f.worker.Config()
	s := Snapshot{
		Samples:    make([][]float64, acq.ChannelCount),
		Timestamps: raw.Timestamps,
		SampleRate: acq.SampleRate,
		Written:    raw.Written,
	}
	for ch := range s.Samples {
		x := make([]float64, raw.Len())
		for i := range raw.Samples {
			x[i] = frame.ToVolts(raw.Samples[i][ch])
		}
		s.Samples[ch] = x
	}
	s.BatteryVolts, _ = f.worker.BatteryVolts()

	return s, true
}

// UpdateConfig validates and applies u as one change. On error nothing changes.
// Filter state is reconfigured while no block is being filtered.
func (f *Facade) UpdateConfig(u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.cfg
	prev.Acquisition = f.worker.Config()
	next := u.apply(prev)
	next.Acquisition.Paused = prev.Acquisition.Paused
	if err := next.Validate(); err != nil {
		return err
	}

	if next.Filter != prev.Filter {
		if err := f.chain.Configure(next.Filter); err != nil {
			return err
		}
	}

	if next.Acquisition != prev.Acquisition {
		acq := next.Acquisition
		if err := f.worker.UpdateConfig(func(c *acquisition.Config) {
			c.SampleRate = acq.SampleRate
			c.WindowSeconds = acq.WindowSeconds
			c.ChannelCount = acq.ChannelCount
		}); err != nil {
			// restore the chain so both halves stay consistent
			_ = f.chain.Configure(prev.Filter)
			return err
		}
	}

	if next.Analysis.MaxHold != prev.Analysis.MaxHold {
		f.maxHold.SetEnabled(next.Analysis.MaxHold)
	}
	if next.Analysis.FFTSize != prev.Analysis.FFTSize ||
		next.Analysis.Window != prev.Analysis.Window ||
		next.Analysis.WindowParam != prev.Analysis.WindowParam {
		f.maxHold.Reset()
	}

	if next.Filter != prev.Filter || next.Acquisition.Capacity() != prev.Acquisition.Capacity() {
		f.filtered = nil
	}

	f.cfg = next
	f.logger.Info("configuration updated",
		slog.Int("sampleRate", next.Acquisition.SampleRate),
		slog.Int("windowSeconds", next.Acquisition.WindowSeconds),
		slog.Int("channels", next.Acquisition.ChannelCount),
		slog.Int("fftSize", next.Analysis.FFTSize),
		slog.String("window", string(next.Analysis.Window)))

	return nil
}

// Filtered passes frames received since the previous call through the filter chain
// exactly once and returns the rolling filtered view. When no stage is enabled the
// view equals the snapshot.
func (f *Facade) Filtered() (Filtered, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// the snapshot is taken under the lock so concurrent callers see Written in order
	raw := f.worker.Snapshot()
	if raw.Written == 0 {
		return Filtered{}, false
	}

	acq := f.worker.Config()
	n := raw.Len()
	channels := acq.ChannelCount

	if len(f.filtered) != channels || (channels > 0 && len(f.filtered[0]) != n) {
		// start over: new layout, or reset after a configuration change
		f.filtered = make([][]float64, channels)
		for ch := range f.filtered {
			f.filtered[ch] = make([]float64, n)
		}
		f.chain.Reset()
		f.seen = raw.Written - uint64(min(uint64(n), raw.Written))
	}

	var fresh int
	if raw.Written > f.seen {
		fresh = int(min(raw.Written-f.seen, uint64(n)))
	}
	if fresh > 0 {
		out := f.chain.Apply(raw.Samples[n-fresh:])
		for ch := range f.filtered {
			row := f.filtered[ch]
			copy(row, row[fresh:])
			copy(row[n-fresh:], out[ch])
		}
		f.seen = raw.Written
	}

	view := Filtered{
		Samples:    make([][]float64, channels),
		SampleRate: acq.SampleRate,
		Written:    raw.Written,
	}
	for ch := range view.Samples {
		view.Samples[ch] = append([]float64(nil), f.filtered[ch]...)
	}
	return view, true
}

// series returns the channel data analysis runs on: filtered when any stage is
// enabled, raw volts otherwise
func (f *Facade) series(ch int) ([]float64, int, Analysis, bool, error) {
	cfg := f.Config()
	if err := channelLimit(ch, cfg.Acquisition.ChannelCount); err != nil {
		return nil, 0, Analysis{}, false, err
	}

	if cfg.Filter.AnyEnabled() {
		view, ok := f.Filtered()
		if !ok || ch >= len(view.Samples) {
			return nil, 0, cfg.Analysis, false, nil
		}
		return view.Samples[ch], view.SampleRate, cfg.Analysis, true, nil
	}

	s, ok := f.Snapshot()
	if !ok || ch >= len(s.Samples) {
		return nil, 0, cfg.Analysis, false, nil
	}
	return s.Samples[ch], s.SampleRate, cfg.Analysis, true, nil
}

// Spectrum computes the windowed spectrum of a channel with the current settings.
// The FFT size is clamped to the buffer length. The second result is false before
// any data arrived.
func (f *Facade) Spectrum(ch int) (ChannelSpectrum, bool, error) {
	x, rate, a, ok, err := f.series(ch)
	if err != nil || !ok {
		return ChannelSpectrum{}, false, err
	}

	s, err := spectral.WindowedSpectrum(x, float64(rate), min(a.FFTSize, len(x)), a.Window, a.WindowParam)
	if err != nil {
		return ChannelSpectrum{}, false, err
	}

	return ChannelSpectrum{Spectrum: s, MaxHold: f.maxHold.Update(ch, s.MagnitudeDB)}, true, nil
}

// Spectrogram computes the short-time spectrum of a channel with the current settings
func (f *Facade) Spectrogram(ch int) (spectral.Spectrogram, bool, error) {
	x, rate, a, ok, err := f.series(ch)
	if err != nil || !ok {
		return spectral.Spectrogram{}, false, err
	}

	sg, err := spectral.ComputeSpectrogram(x, float64(rate), min(a.SpectrogramWindow, len(x)), a.SpectrogramOverlap)
	if err != nil {
		return spectral.Spectrogram{}, false, err
	}
	return sg, true, nil
}

// Scalogram computes the Morlet scalogram of a channel over the configured frequency range
func (f *Facade) Scalogram(ch int) (spectral.Scalogram, bool, error) {
	x, rate, a, ok, err := f.series(ch)
	if err != nil || !ok {
		return spectral.Scalogram{}, false, err
	}

	freqs := spectral.LogFrequencies(a.ScalogramMin, a.ScalogramMax, a.ScalogramCount)
	sc, err := spectral.ComputeScalogram(x, float64(rate), freqs)
	if err != nil {
		return spectral.Scalogram{}, false, err
	}
	return sc, true, nil
}
