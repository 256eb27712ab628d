package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/eegstream/internal/control"
	"github.com/roman-kulish/eegstream/internal/errs"
)

const linkReadTimeout = 50 * time.Millisecond

// link is the board end of the control session. Commands arrive on conn while
// beacons and replies leave from tx, the ephemeral socket the data stream also
// uses, towards the host's control port. While no host is known it sends a
// beacon every beaconInterval. A host that stays silent for peerTimeout is
// forgotten, streaming stops and beaconing resumes.
type link struct {
	conn           *net.UDPConn
	tx             *net.UDPConn
	host           *net.UDPAddr
	board          *Board
	beaconInterval time.Duration
	peerTimeout    time.Duration
	logger         *slog.Logger

	peer    atomic.Pointer[net.UDPAddr]
	lastRx  time.Time
	beacons atomic.Uint64
	replies atomic.Uint64
}

func (l *link) run(ctx context.Context) {
	buf := make([]byte, 512)

	var lastBeacon time.Time
	for {
		if ctx.Err() != nil {
			return
		}

		now := time.Now()
		if l.peer.Load() != nil && now.Sub(l.lastRx) > l.peerTimeout {
			l.logger.Warn("host silent, restarting beacon", slog.Duration("silence", now.Sub(l.lastRx)))
			l.peer.Store(nil)
			l.board.SetStreaming(false)
			lastBeacon = time.Time{}
		}

		if l.peer.Load() == nil && now.Sub(lastBeacon) >= l.beaconInterval {
			if _, err := l.tx.WriteToUDP([]byte(control.BeaconPayload), l.host); err != nil {
				l.logger.Debug(errs.NewNetworkError("beacon", err).Error())
			} else {
				l.beacons.Add(1)
			}
			lastBeacon = now
		}

		if err := l.conn.SetReadDeadline(now.Add(linkReadTimeout)); err != nil {
			l.logger.Error(errs.NewNetworkError("set deadline", err).Error())
			return
		}

		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP port unreachable from an earlier beacon surfaces here
			l.logger.Debug(errs.NewNetworkError("read", err).Error())
			continue
		}

		l.receive(buf[:n], from)
	}
}

func (l *link) receive(data []byte, from *net.UDPAddr) {
	// own beacon echoed back by a broadcast
	if string(data) == control.BeaconPayload {
		return
	}

	l.lastRx = time.Now()
	if prev := l.peer.Swap(from); prev == nil || !prev.IP.Equal(from.IP) {
		l.logger.Info("host found", slog.String("addr", from.String()))
	}
	// replies go to the host's control port whatever port the command came from
	to := &net.UDPAddr{IP: from.IP, Port: l.host.Port, Zone: from.Zone}

	if string(data) == control.KeepAlivePayload {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		reply := l.board.Execute(line)
		if reply == "" {
			continue
		}

		l.logger.Debug("command", slog.String("line", line), slog.String("reply", reply))
		if _, err := l.tx.WriteToUDP([]byte(reply+"\r\n"), to); err != nil {
			l.logger.Warn(fmt.Sprintf("failed to reply: %s", errs.NewNetworkError("write", err).Error()))
			continue
		}
		l.replies.Add(1)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
