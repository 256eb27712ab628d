package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
	"github.com/roman-kulish/eegstream/internal/ringbuffer"
	"github.com/roman-kulish/eegstream/internal/telemetry"
)

const (
	// DefaultAddr is the conventional data port
	DefaultAddr = ":5001"

	// MaxPacketsPerCycle bounds the datagrams consumed before a snapshot is published
	MaxPacketsPerCycle = 10

	ReadTimeout   = 10 * time.Millisecond
	PauseInterval = 10 * time.Millisecond
	StopTimeout   = time.Second
	StatsInterval = time.Second

	// maxDatagramSize fits the largest UDP payload
	maxDatagramSize = 65535
)

// WithLogger sets the logger for the worker
func WithLogger(logger *slog.Logger) func(w *Worker) {
	return func(w *Worker) {
		w.logger = logger.With(slog.String("component", "acquisition"))
	}
}

// WithAddr sets the UDP address the worker listens on
func WithAddr(addr string) func(w *Worker) {
	return func(w *Worker) {
		w.addr = addr
	}
}

// WithStats enables the periodic throughput log line
func WithStats(interval time.Duration) func(w *Worker) {
	return func(w *Worker) {
		w.statsInterval = interval
	}
}

// Worker receives telemetry datagrams, decodes them and writes frames to the ring buffer.
// It is the only writer of the buffer; consumers read it through snapshots.
type Worker struct {
	addr   string
	config atomic.Pointer[Config]
	buffer *ringbuffer.RingBuffer

	ctrl    sync.Mutex // serializes Start, Stop and UpdateConfig
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	conn    net.PacketConn
	local   atomic.Pointer[net.UDPAddr]

	updates chan struct{}

	packets    atomic.Uint64
	frames     atomic.Uint64
	malformed  atomic.Uint64
	bytes      atomic.Uint64
	resizes    atomic.Uint64
	battery    atomic.Uint32 // float32 bits
	hasBattery atomic.Bool
	lastPacket atomic.Int64 // unix nanoseconds

	statsInterval time.Duration
	stopTimeout   time.Duration
	listen        func(addr string) (net.PacketConn, error)
	logger        *slog.Logger
}

// NewWorker creates a worker with a ring buffer sized for config
func NewWorker(config Config, options ...func(w *Worker)) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	buffer, err := ringbuffer.New(config.Capacity())
	if err != nil {
		return nil, err
	}

	w := Worker{
		addr:    DefaultAddr,
		buffer:  buffer,
		updates:     make(chan struct{}, 1),
		stopTimeout: StopTimeout,
		listen:      listenUDP,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	w.config.Store(&config)

	for _, option := range options {
		option(&w)
	}

	return &w, nil
}

// Start opens the data socket and launches the receive loop. Calling Start on a
// running worker is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.ctrl.Lock()
	defer w.ctrl.Unlock()

	if w.running.Load() {
		return nil
	}

	conn, err := w.listen(w.addr)
	if err != nil {
		return errs.NewNetworkError("listen "+w.addr, err)
	}
	if udp, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		w.local.Store(udp)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.conn = conn
	w.done = make(chan struct{})
	w.running.Store(true)

	go w.run(ctx, conn, w.done)

	w.logger.Info("acquisition started", slog.String("addr", conn.LocalAddr().String()))
	return nil
}

// Stop cancels the receive loop and waits up to StopTimeout for it to exit.
// An unresponsive loop is unblocked by closing its socket.
func (w *Worker) Stop() {
	w.ctrl.Lock()
	defer w.ctrl.Unlock()

	if !w.running.Load() {
		return // already stopped
	}

	w.cancel()

	select {
	case <-w.done:
	case <-time.After(w.stopTimeout):
		w.logger.Warn("receive loop did not exit in time, closing socket")
		_ = w.conn.Close()
		<-w.done
	}

	w.running.Store(false)
	w.logger.Info("acquisition stopped")
}

// IsRunning returns true while the receive loop is active
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// LocalAddr returns the bound data address, or nil before the first Start
func (w *Worker) LocalAddr() *net.UDPAddr {
	return w.local.Load()
}

// Config returns the current configuration
func (w *Worker) Config() Config {
	return *w.config.Load()
}

// UpdateConfig applies fn to a copy of the current configuration and publishes the
// result. An invalid result is rejected with a ConfigError and the previous
// configuration stays active. A changed buffer span is applied by the receive loop
// between batches, or immediately when the worker is stopped.
func (w *Worker) UpdateConfig(fn func(c *Config)) error {
	w.ctrl.Lock()
	defer w.ctrl.Unlock()

	prev := w.config.Load()
	next := *prev
	fn(&next)

	if err := next.Validate(); err != nil {
		return err
	}

	w.config.Store(&next)
	if next.Paused != prev.Paused {
		w.logger.Info("reception state changed", slog.Bool("paused", next.Paused))
	}

	if !w.running.Load() {
		return w.applyCapacity(&next)
	}
	return nil
}

// SetPaused pauses or resumes reception without tearing down the socket
func (w *Worker) SetPaused(paused bool) {
	_ = w.UpdateConfig(func(c *Config) { c.Paused = paused })
}

// Paused reports whether reception is paused
func (w *Worker) Paused() bool {
	return w.config.Load().Paused
}

// Snapshot returns the current buffer contents, oldest frame first
func (w *Worker) Snapshot() ringbuffer.Snapshot {
	return w.buffer.Snapshot()
}

// Buffer returns the ring buffer written by the worker
func (w *Worker) Buffer() *ringbuffer.RingBuffer {
	return w.buffer
}

// Updates signals, without blocking the receive loop, that a new batch was published
func (w *Worker) Updates() <-chan struct{} {
	return w.updates
}

// BatteryVolts returns the most recent battery voltage and whether one was received
func (w *Worker) BatteryVolts() (float64, bool) {
	if !w.hasBattery.Load() {
		return 0, false
	}
	return float64(math.Float32frombits(w.battery.Load())), true
}

// Get implements telemetry.Provider
func (w *Worker) Get() *telemetry.Telemetry {
	t := telemetry.Telemetry{
		Timestamp:     time.Now(),
		Packets:       w.packets.Load(),
		Frames:        w.frames.Load(),
		Malformed:     w.malformed.Load(),
		BytesReceived: w.bytes.Load(),
		Resizes:       w.resizes.Load(),
	}
	if v, ok := w.BatteryVolts(); ok {
		t.BatteryVolts = &v
	}
	if ns := w.lastPacket.Load(); ns != 0 {
		t.LastPacket = time.Unix(0, ns)
	}
	return &t
}

// applyCapacity resizes the buffer when the configured span differs from it.
// Callers guarantee no concurrent Push: either the loop itself between batches,
// or UpdateConfig while the loop is stopped.
func (w *Worker) applyCapacity(c *Config) error {
	capacity := c.Capacity()
	current := w.buffer.Capacity()
	if capacity == current {
		return nil
	}

	if err := w.buffer.Resize(capacity); err != nil {
		return err
	}
	w.resizes.Add(1)

	w.logger.Info("buffer resized",
		slog.Int("from", current),
		slog.Int("to", capacity),
		slog.Int("sampleRate", c.SampleRate),
		slog.Int("windowSeconds", c.WindowSeconds))
	return nil
}

func (w *Worker) run(ctx context.Context, conn net.PacketConn, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()

	buf := make([]byte, maxDatagramSize)

	var (
		lastStats      = time.Now()
		statPackets    uint64
		statFrames     uint64
		statBytes      uint64
		consecutiveErr int
	)

	for {
		if ctx.Err() != nil {
			return
		}

		// reconfiguration happens here, between batches, so no frame is in flight
		cfg := w.config.Load()
		if err := w.applyCapacity(cfg); err != nil {
			w.logger.Error(fmt.Sprintf("failed to resize buffer: %s", err.Error()))
		}

		if cfg.Paused {
			select {
			case <-ctx.Done():
				return
			case <-time.After(PauseInterval):
			}
			continue
		}

		// malformed datagrams count toward the batch too
		var packets, frames int
		for reads := 0; reads < MaxPacketsPerCycle; reads++ {
			if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error(errs.NewNetworkError("set deadline", err).Error())
				break
			}

			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				if isTimeout(err) {
					break
				}
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}

				consecutiveErr++
				if consecutiveErr == 1 || consecutiveErr%100 == 0 {
					w.logger.Error(errs.NewNetworkError("read", err).Error(), slog.Int("consecutive", consecutiveErr))
				}
				break
			}
			consecutiveErr = 0

			p, err := frame.DecodePacket(buf[:n])
			if err != nil {
				w.malformed.Add(1)
				w.logger.Warn(fmt.Sprintf("dropping packet: %s", err.Error()), slog.Int("bytes", n))
				continue
			}

			w.buffer.PushFrames(p.Frames)
			w.battery.Store(math.Float32bits(p.BatteryVolts))
			w.hasBattery.Store(true)

			packets++
			frames += len(p.Frames)
			statBytes += uint64(n)
			w.bytes.Add(uint64(n))
		}

		if packets > 0 {
			w.packets.Add(uint64(packets))
			w.frames.Add(uint64(frames))
			w.lastPacket.Store(time.Now().UnixNano())
			statPackets += uint64(packets)
			statFrames += uint64(frames)

			select {
			case w.updates <- struct{}{}:
			default: // a signal is already pending
			}
		}

		if w.statsInterval > 0 {
			if elapsed := time.Since(lastStats); elapsed >= w.statsInterval {
				secs := elapsed.Seconds()
				w.logger.Debug("throughput",
					slog.String("packets", fmt.Sprintf("%.1f/s", float64(statPackets)/secs)),
					slog.String("frames", fmt.Sprintf("%.1f/s", float64(statFrames)/secs)),
					slog.String("rate", humanize.Bytes(uint64(float64(statBytes)/secs))+"/s"))
				lastStats = time.Now()
				statPackets, statFrames, statBytes = 0, 0, 0
			}
		}
	}
}

func listenUDP(addr string) (net.PacketConn, error) {
	return net.ListenPacket("udp", addr)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
