package acquisition

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
)

func startWorker(t *testing.T, config Config) *Worker {
	t.Helper()

	w, err := NewWorker(config, WithAddr("127.0.0.1:0"))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err = w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func dial(t *testing.T, w *Worker) net.Conn {
	t.Helper()

	conn, err := net.DialUDP("udp", nil, w.LocalAddr())
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func makeFrames(n int, start int32) []frame.Frame {
	frames := make([]frame.Frame, n)
	for i := range frames {
		for c := 0; c < frame.ChannelCount; c++ {
			frames[i].Channels[c] = start + int32(i)
		}
		frames[i].Timestamp = uint32(start) + uint32(i)
	}
	return frames
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"zero rate", Config{SampleRate: 0, WindowSeconds: 4, ChannelCount: 16}, false},
		{"zero window", Config{SampleRate: 250, WindowSeconds: 0, ChannelCount: 16}, false},
		{"too many channels", Config{SampleRate: 250, WindowSeconds: 4, ChannelCount: 17}, false},
		{"eight channels", Config{SampleRate: 500, WindowSeconds: 2, ChannelCount: 8}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			var ce *errs.ConfigError
			if !tt.ok && !errors.As(err, &ce) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestWorker_ReceivesFrames(t *testing.T) {
	w := startWorker(t, Config{SampleRate: 10, WindowSeconds: 1, ChannelCount: 16})
	conn := dial(t, w)

	if _, err := conn.Write(frame.EncodePacket(makeFrames(4, 1), 3.9)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-w.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no update published")
	}

	s := w.Snapshot()
	if s.Len() != 10 {
		t.Fatalf("snapshot length %d", s.Len())
	}
	for i, want := range []int32{0, 0, 0, 0, 0, 0, 1, 2, 3, 4} {
		if s.Samples[i][15] != want {
			t.Errorf("slot %d = %d, want %d", i, s.Samples[i][15], want)
		}
	}

	v, ok := w.BatteryVolts()
	if !ok || v < 3.89 || v > 3.91 {
		t.Errorf("battery = %f, %v", v, ok)
	}

	tm := w.Get()
	if tm.Packets != 1 || tm.Frames != 4 || tm.BatteryVolts == nil {
		t.Errorf("telemetry = %+v", tm)
	}
}

func TestWorker_MalformedPacketSkipped(t *testing.T) {
	w := startWorker(t, Config{SampleRate: 10, WindowSeconds: 1, ChannelCount: 16})
	conn := dial(t, w)

	if _, err := conn.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := conn.Write(frame.EncodePacket(makeFrames(2, 7), 4.0)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	waitFor(t, "valid packet", func() bool { return w.Get().Frames == 2 })

	if got := w.Get().Malformed; got != 1 {
		t.Errorf("malformed = %d", got)
	}
	if !w.IsRunning() {
		t.Error("worker stopped after malformed packet")
	}
	if s := w.Snapshot(); s.Samples[9][0] != 8 {
		t.Errorf("newest = %d", s.Samples[9][0])
	}
}

func TestWorker_ResizeOnSampleRateChange(t *testing.T) {
	w := startWorker(t, DefaultConfig())
	conn := dial(t, w)

	if _, err := conn.Write(frame.EncodePacket(makeFrames(5, 100), 3.7)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitFor(t, "frames", func() bool { return w.Get().Frames == 5 })

	if err := w.UpdateConfig(func(c *Config) { c.SampleRate = 500 }); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	waitFor(t, "resize", func() bool { return w.Buffer().Capacity() == 2000 })

	// let the loop run a few more cycles; the resize must not repeat
	time.Sleep(50 * time.Millisecond)
	if got := w.Get().Resizes; got != 1 {
		t.Errorf("resizes = %d, want 1", got)
	}

	s := w.Snapshot()
	if s.Len() != 2000 || s.Samples[1999][0] != 104 || s.Samples[1995][0] != 100 {
		t.Errorf("history not preserved: len=%d newest=%d", s.Len(), s.Samples[1999][0])
	}
}

func TestWorker_InvalidUpdateKeepsConfig(t *testing.T) {
	w, err := NewWorker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	err = w.UpdateConfig(func(c *Config) { c.SampleRate = 0 })
	var ce *errs.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if w.Config().SampleRate != DefaultSampleRate || w.Buffer().Capacity() != 1000 {
		t.Errorf("config changed: %+v", w.Config())
	}
}

func TestWorker_ResizeWhileStopped(t *testing.T) {
	w, _ := NewWorker(DefaultConfig())
	if err := w.UpdateConfig(func(c *Config) { c.WindowSeconds = 2 }); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := w.Buffer().Capacity(); got != 500 {
		t.Errorf("capacity = %d, want 500", got)
	}
}

func TestWorker_Pause(t *testing.T) {
	w := startWorker(t, Config{SampleRate: 10, WindowSeconds: 1, ChannelCount: 16})
	conn := dial(t, w)

	w.SetPaused(true)
	if !w.Paused() {
		t.Fatal("not paused")
	}
	// give the loop time to observe the flag
	time.Sleep(30 * time.Millisecond)

	if _, err := conn.Write(frame.EncodePacket(makeFrames(1, 1), 3.7)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := w.Get().Frames; got != 0 {
		t.Errorf("frames received while paused: %d", got)
	}

	w.SetPaused(false)
	waitFor(t, "resume", func() bool { return w.Get().Frames == 1 })
}

func TestWorker_StartIdempotent(t *testing.T) {
	w := startWorker(t, DefaultConfig())
	addr := w.LocalAddr()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if w.LocalAddr().Port != addr.Port {
		t.Errorf("socket was reopened")
	}

	w.Stop()
	if w.IsRunning() {
		t.Error("still running after Stop")
	}
	w.Stop() // no-op
}

func TestWorker_MalformedFloodStillReconfigures(t *testing.T) {
	w := startWorker(t, DefaultConfig())
	conn := dial(t, w)

	stop := make(chan struct{})
	flooded := make(chan struct{})
	go func() {
		defer close(flooded)
		junk := make([]byte, 20)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = conn.Write(junk)
		}
	}()
	defer func() {
		close(stop)
		<-flooded
	}()

	waitFor(t, "malformed packets", func() bool { return w.Get().Malformed > 0 })

	if err := w.UpdateConfig(func(c *Config) { c.SampleRate = 500 }); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	waitFor(t, "resize under flood", func() bool { return w.Buffer().Capacity() == 2000 })

	start := time.Now()
	w.Stop()
	if elapsed := time.Since(start); elapsed >= StopTimeout {
		t.Errorf("Stop took %v, loop did not observe cancellation", elapsed)
	}
}

// stuckConn ignores read deadlines and only returns once closed
type stuckConn struct {
	closed chan struct{}
	once   sync.Once
}

func (c *stuckConn) ReadFrom([]byte) (int, net.Addr, error) {
	<-c.closed
	return 0, nil, net.ErrClosed
}

func (c *stuckConn) WriteTo(p []byte, _ net.Addr) (int, error) { return len(p), nil }
func (c *stuckConn) LocalAddr() net.Addr                        { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *stuckConn) SetDeadline(time.Time) error                { return nil }
func (c *stuckConn) SetReadDeadline(time.Time) error            { return nil }
func (c *stuckConn) SetWriteDeadline(time.Time) error           { return nil }

func (c *stuckConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestWorker_StopForceClosesUnresponsiveLoop(t *testing.T) {
	conn := &stuckConn{closed: make(chan struct{})}

	w, err := NewWorker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	w.stopTimeout = 50 * time.Millisecond
	w.listen = func(string) (net.PacketConn, error) { return conn, nil }

	if err = w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	w.Stop()
	elapsed := time.Since(start)

	if elapsed < w.stopTimeout {
		t.Errorf("Stop returned after %v, before the timeout", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	select {
	case <-conn.closed:
	default:
		t.Error("socket was not force-closed")
	}
	if w.IsRunning() {
		t.Error("still running after Stop")
	}
}
