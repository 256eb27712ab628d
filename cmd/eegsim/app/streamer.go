package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
)

// ticksPerSecond is the hardware timestamp clock rate
const ticksPerSecond = uint64(time.Second / frame.TimestampTick)

// streamer paces packets of framesPerPacket frames at the source sample rate.
// Nothing is sent, and the source does not advance, while the board is stopped.
type streamer struct {
	conn            *net.UDPConn
	dst             *net.UDPAddr
	source          Source
	board           *Board
	framesPerPacket int
	batteryVolts    float32
	statsInterval   time.Duration
	logger          *slog.Logger

	n       uint64 // frames generated
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// timestamp returns the hardware tick count of frame n, wrapping at 32 bits
func timestamp(n uint64, sampleRate int) uint32 {
	return uint32(n * ticksPerSecond / uint64(sampleRate))
}

// interval is the wall time covered by one packet
func (s *streamer) interval() time.Duration {
	return time.Duration(s.framesPerPacket) * time.Second / time.Duration(s.source.SampleRate())
}

// next builds the following packet
func (s *streamer) next() []byte {
	frames := make([]frame.Frame, s.framesPerPacket)
	for i := range frames {
		frames[i] = frame.Frame{
			Channels:  s.source.Next(),
			Timestamp: timestamp(s.n, s.source.SampleRate()),
		}
		s.n++
	}
	return frame.EncodePacket(frames, s.batteryVolts)
}

func (s *streamer) run(ctx context.Context) {
	period := s.interval()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var (
		lastStats      = time.Now()
		statBytes      uint64
		statPackets    uint64
		consecutiveErr int
	)

	s.logger.Info("streamer ready",
		slog.String("dst", s.dst.String()),
		slog.Int("sampleRate", s.source.SampleRate()),
		slog.Int("framesPerPacket", s.framesPerPacket),
		slog.Duration("interval", period))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.board.Streaming() {
			pkt := s.next()
			if _, err := s.conn.WriteToUDP(pkt, s.dst); err != nil {
				consecutiveErr++
				if consecutiveErr == 1 || consecutiveErr%100 == 0 {
					s.logger.Warn(errs.NewNetworkError("send", err).Error(), slog.Int("consecutive", consecutiveErr))
				}
			} else {
				consecutiveErr = 0
				s.packets.Add(1)
				s.bytes.Add(uint64(len(pkt)))
				statPackets++
				statBytes += uint64(len(pkt))
			}
		}

		if s.statsInterval > 0 {
			if elapsed := time.Since(lastStats); elapsed >= s.statsInterval {
				secs := elapsed.Seconds()
				s.logger.Info("throughput",
					slog.String("packets", fmt.Sprintf("%.1f/s", float64(statPackets)/secs)),
					slog.String("rate", humanize.Bytes(uint64(float64(statBytes)/secs))+"/s"),
					slog.String("total", humanize.Bytes(s.bytes.Load())))
				lastStats = time.Now()
				statPackets, statBytes = 0, 0
			}
		}
	}
}
