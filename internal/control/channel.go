package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/eegstream/internal/errs"
)

const (
	// DefaultAddr is the conventional control port
	DefaultAddr = ":5000"

	// DefaultRemotePort is the port the board listens on for commands. The board
	// transmits from an ephemeral port, so replies never reveal it.
	DefaultRemotePort = 5000

	ReadTimeout       = 50 * time.Millisecond
	KeepAliveInterval = 5 * time.Second
	DefaultAckTimeout = time.Second
	StopTimeout       = 500 * time.Millisecond

	// MaxTxPerCycle bounds the commands transmitted per loop iteration
	MaxTxPerCycle = 20

	recvBufferSize = 512
	txQueueSize    = 256
	ackQueueSize   = 16
	messageQueue   = 256
	eventQueue     = 32
)

// ErrQueueFull is returned when the transmit queue cannot accept another command
var ErrQueueFull = errors.New("control transmit queue is full")

// EventKind classifies session events
type EventKind int

const (
	EventBound EventKind = iota
	EventReconnect
	EventAckTimeout
	EventSendFailed
)

func (k EventKind) String() string {
	switch k {
	case EventBound:
		return "bound"
	case EventReconnect:
		return "reconnect"
	case EventAckTimeout:
		return "ack_timeout"
	case EventSendFailed:
		return "send_failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a change in the control session
type Event struct {
	Kind EventKind
	Time time.Time
	Addr *net.UDPAddr // current peer
	Prev *net.UDPAddr // previous peer, set for EventReconnect
	Text string
}

// Direction of a logged control line
type Direction int

const (
	Inbound Direction = iota
	Outbound
	Local
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "board"
	case Outbound:
		return "host"
	default:
		return "local"
	}
}

// Message is a line for the operator console
type Message struct {
	Time      time.Time
	Direction Direction
	Text      string
}

func (m Message) String() string {
	return fmt.Sprintf("[%s] %s", m.Direction, m.Text)
}

// Ack is an acknowledgment line received from the board
type Ack struct {
	Line string
	OK   bool // false when the board answered with the error prefix
}

// WithLogger sets the logger for the channel
func WithLogger(logger *slog.Logger) func(c *Channel) {
	return func(c *Channel) {
		c.logger = logger.With(slog.String("component", "control"))
	}
}

// WithAddr sets the local UDP address
func WithAddr(addr string) func(c *Channel) {
	return func(c *Channel) {
		c.addr = addr
	}
}

// WithRemotePort sets the board's command port. Zero uses the local listen port.
func WithRemotePort(port int) func(c *Channel) {
	return func(c *Channel) {
		c.remotePort = port
	}
}

// WithKeepAlive overrides the keep-alive interval. Zero disables keep-alive.
func WithKeepAlive(interval time.Duration) func(c *Channel) {
	return func(c *Channel) {
		c.keepAlive = interval
	}
}

// Channel is the command and discovery session with the board. A single loop owns
// the socket; callers interact through queues and never block it.
type Channel struct {
	addr       string
	remotePort int
	keepAlive  time.Duration

	ctrl    sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	conn    *net.UDPConn
	local   atomic.Pointer[net.UDPAddr]

	board atomic.Pointer[net.UDPAddr]

	tx       chan []byte
	acks     chan Ack
	messages chan Message
	events   chan Event

	waitMu      sync.Mutex // one SendAndWait at a time
	droppedAcks atomic.Uint64
	lastAck     atomic.Bool

	logger *slog.Logger
}

// New creates a control channel with a discard logger
func New(options ...func(c *Channel)) *Channel {
	c := Channel{
		addr:       DefaultAddr,
		remotePort: DefaultRemotePort,
		keepAlive:  KeepAliveInterval,
		tx:        make(chan []byte, txQueueSize),
		acks:      make(chan Ack, ackQueueSize),
		messages:  make(chan Message, messageQueue),
		events:    make(chan Event, eventQueue),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Start binds the control socket and launches the session loop. It is a no-op when running.
func (c *Channel) Start(ctx context.Context) error {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()

	if c.running.Load() {
		return nil
	}

	conn, err := listen(ctx, c.addr)
	if err != nil {
		return errs.NewNetworkError("control", err)
	}
	c.local.Store(conn.LocalAddr().(*net.UDPAddr))

	ctx, c.cancel = context.WithCancel(ctx)
	c.conn = conn
	c.done = make(chan struct{})
	c.running.Store(true)

	go c.run(ctx, conn, c.done)

	c.log(fmt.Sprintf("listening on %s", conn.LocalAddr()))
	return nil
}

// Stop ends the session loop, waiting up to StopTimeout before force-closing the socket
func (c *Channel) Stop() {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()

	if !c.running.Load() {
		return
	}

	c.cancel()

	select {
	case <-c.done:
	case <-time.After(StopTimeout):
		c.logger.Warn("control loop failed to stop cleanly, closing socket")
		_ = c.conn.Close()
		<-c.done
	}

	c.running.Store(false)
}

// LocalAddr returns the bound local address, or nil before Start
func (c *Channel) LocalAddr() *net.UDPAddr {
	return c.local.Load()
}

// Connected reports whether a board address has been learned
func (c *Channel) Connected() bool {
	return c.board.Load() != nil
}

// BoardAddr returns the learned board address, or nil
func (c *Channel) BoardAddr() *net.UDPAddr {
	return c.board.Load()
}

// DroppedAcks is the number of SendAndWait calls that timed out
func (c *Channel) DroppedAcks() uint64 {
	return c.droppedAcks.Load()
}

// LastAckDropped reports whether the most recent SendAndWait timed out
func (c *Channel) LastAckDropped() bool {
	return c.lastAck.Load()
}

// Messages is the operator console feed. Lines are dropped when nobody reads it.
func (c *Channel) Messages() <-chan Message {
	return c.messages
}

// Events delivers session events. Events are dropped when nobody reads them.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Send queues a command line and echoes it to Messages. Trailing whitespace is
// stripped and a newline appended. Commands queued before a board is discovered are
// held until it is.
func (c *Channel) Send(cmd string) error {
	line := strings.TrimRight(cmd, " \t\r\n")
	pkt := make([]byte, 0, len(line)+1)
	for i := 0; i < len(line); i++ {
		if line[i] < 0x80 {
			pkt = append(pkt, line[i])
		}
	}
	pkt = append(pkt, '\n')

	select {
	case c.tx <- pkt:
		c.message(Outbound, string(pkt[:len(pkt)-1]))
		return nil
	default:
		return errs.NewNetworkError("send", ErrQueueFull)
	}
}

// Exec sends cmd and waits for an acknowledgment line. Stale acknowledgments are
// discarded first. A TimeoutError is returned when none arrives within timeout.
func (c *Channel) Exec(ctx context.Context, cmd string, timeout time.Duration) (Ack, error) {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}

	c.waitMu.Lock()
	defer c.waitMu.Unlock()

drain:
	for {
		select {
		case <-c.acks:
		default:
			break drain
		}
	}

	if err := c.Send(cmd); err != nil {
		return Ack{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-c.acks:
		c.lastAck.Store(false)
		return ack, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	c.droppedAcks.Add(1)
	c.lastAck.Store(true)
	c.emit(Event{Kind: EventAckTimeout, Time: time.Now(), Addr: c.board.Load(), Text: cmd})
	c.logger.Warn("no acknowledgment", slog.String("cmd", cmd), slog.Duration("timeout", timeout))

	if ctx.Err() != nil {
		return Ack{}, ctx.Err()
	}
	return Ack{}, errs.NewTimeoutError("ack for " + cmd)
}

// SendAndWait sends cmd and reports whether the board acknowledged it within timeout.
// An error reply still counts as acknowledged. The command is never retried.
func (c *Channel) SendAndWait(ctx context.Context, cmd string, timeout time.Duration) bool {
	_, err := c.Exec(ctx, cmd, timeout)
	return err == nil
}

func (c *Channel) run(ctx context.Context, conn *net.UDPConn, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()

	buf := make([]byte, recvBufferSize)
	var pending [][]byte
	nextKeepAlive := time.Now().Add(c.keepAlive)

	for {
		if ctx.Err() != nil {
			c.log("control loop stopped")
			return
		}

		// 1. receive
		if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
			c.logger.Error(errs.NewNetworkError("set deadline", err).Error())
		}
		n, from, err := conn.ReadFromUDP(buf)
		switch {
		case err == nil:
			c.receive(buf[:n], from)
		case isTimeout(err):
		case errors.Is(err, net.ErrClosed):
			return
		default:
			c.logger.Error(errs.NewNetworkError("read", err).Error())
			c.log(fmt.Sprintf("socket error: %s", err.Error()))
		}

		// 2. transmit queued commands
	collect:
		for len(pending) < txQueueSize {
			select {
			case pkt := <-c.tx:
				pending = append(pending, pkt)
			default:
				break collect
			}
		}

		board := c.board.Load()
		if board != nil {
			dst := c.destination(board)
			sent := 0
			for sent < MaxTxPerCycle && len(pending) > 0 {
				pkt := pending[0]
				if _, err := conn.WriteToUDP(pkt, dst); err != nil {
					c.logger.Error(errs.NewNetworkError("write", err).Error())
					c.log(fmt.Sprintf("failed to send: %s", err.Error()))
					c.emit(Event{Kind: EventSendFailed, Time: time.Now(), Addr: board, Text: err.Error()})
					break
				}
				pending = pending[1:]
				sent++
			}
		}

		// 3. keep-alive
		if now := time.Now(); board != nil && c.keepAlive > 0 && !now.Before(nextKeepAlive) {
			nextKeepAlive = now.Add(c.keepAlive)
			if _, err := conn.WriteToUDP([]byte(KeepAlivePayload), c.destination(board)); err != nil {
				c.logger.Warn(fmt.Sprintf("keep-alive failed: %s", err.Error()))
			}
		}
	}
}

// receive handles one inbound datagram: discovery, console echo and ack routing
func (c *Channel) receive(data []byte, from *net.UDPAddr) {
	now := time.Now()

	prev := c.board.Load()
	switch {
	case prev == nil:
		c.board.Store(from)
		c.log(fmt.Sprintf("board discovered at %s", from))
		c.logger.Info("board discovered", slog.String("addr", from.String()))
		c.emit(Event{Kind: EventBound, Time: now, Addr: from})

	case !sameHost(prev, from):
		c.board.Store(from)
		c.log(fmt.Sprintf("board address changed: %s -> %s", prev, from))
		c.logger.Warn("board address changed", slog.String("from", prev.String()), slog.String("to", from.String()))
		c.emit(Event{Kind: EventReconnect, Time: now, Addr: from, Prev: prev})
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if ack, ok := parseAck(line); ok {
			select {
			case c.acks <- ack:
			default:
				c.logger.Debug("ack queue full, dropping", slog.String("line", line))
			}
		}
		c.message(Inbound, line)
	}
}

func parseAck(line string) (Ack, bool) {
	switch {
	case strings.HasPrefix(line, AckPrefix):
		return Ack{Line: line, OK: true}, true
	case strings.HasPrefix(line, ErrorPrefix):
		return Ack{Line: line}, true
	default:
		return Ack{}, false
	}
}

// destination is the board's command port; the source port of its datagrams is ignored
func (c *Channel) destination(board *net.UDPAddr) *net.UDPAddr {
	port := c.remotePort
	if port == 0 {
		if local := c.local.Load(); local != nil {
			port = local.Port
		}
	}
	return &net.UDPAddr{IP: board.IP, Port: port, Zone: board.Zone}
}

func (c *Channel) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.logger.Debug("event queue full, dropping", slog.String("event", e.Kind.String()))
	}
}

func (c *Channel) message(d Direction, text string) {
	select {
	case c.messages <- Message{Time: time.Now(), Direction: d, Text: text}:
	default:
	}
}

func (c *Channel) log(text string) {
	c.message(Local, text)
}

// sameHost compares IPs only: the board may send from any port
func sameHost(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
