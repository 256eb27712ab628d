package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/eegstream/internal/consumer"
	"github.com/roman-kulish/eegstream/internal/control"
	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/filter"
	"github.com/roman-kulish/eegstream/internal/journal"
)

const writeTimeout = 10 * time.Second

// wsConn serializes writes to a websocket connection
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// Server bridges the consumer facade and control channel to websocket clients
type Server struct {
	ctx       context.Context
	facade    *consumer.Facade
	ctrl      *control.Channel
	hub       *hub
	config    *Config
	store     journal.Store // nil when journaling is disabled
	sessionID int64
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func newServer(ctx context.Context, facade *consumer.Facade, ctrl *control.Channel, h *hub, store journal.Store, sessionID int64, config *Config, logger *slog.Logger) *Server {
	return &Server{
		ctx:       ctx,
		facade:    facade,
		ctrl:      ctrl,
		hub:       h,
		store:     store,
		sessionID: sessionID,
		config:    config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /journal", s.handleHistory)
	mux.HandleFunc("GET /journal/sessions", s.handleSessions)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.logger.Error("encoding status", slog.String("error", err.Error()))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := &wsConn{conn: raw}
	defer conn.close()

	s.logger.Info("consumer connected", slog.String("remote", r.RemoteAddr))
	defer s.logger.Info("consumer disconnected", slog.String("remote", r.RemoteAddr))

	if err = conn.writeJSON(s.status()); err != nil {
		return
	}

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	done := make(chan struct{})
	go s.stream(conn, sub, done)

	s.handleMessages(conn, done)
}

// handleMessages reads client requests until the connection fails
func (s *Server) handleMessages(conn *wsConn, done chan struct{}) {
	defer close(done)

	for {
		var msg clientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		if reply := s.dispatch(&msg); reply != nil {
			if err := conn.writeJSON(reply); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(msg *clientMessage) any {
	switch msg.Type {
	case typeStatus:
		return s.status()

	case typeConfig:
		u, err := msg.update()
		if err != nil {
			return newErrorMessage(err)
		}
		if err = s.updateConfig(u); err != nil {
			return newErrorMessage(err)
		}
		if msg.Reset {
			s.facade.ResetMaxHold()
		}
		return s.status()

	case typeMaxHold:
		if msg.Enabled != nil {
			if err := s.updateConfig(consumer.Update{MaxHold: msg.Enabled}); err != nil {
				return newErrorMessage(err)
			}
		}
		if msg.Reset {
			s.facade.ResetMaxHold()
		}
		return s.status()

	case typePause:
		if msg.Paused == nil {
			return newErrorMessage(errs.NewConfigError("pause requires the paused field"))
		}
		s.facade.SetPaused(*msg.Paused)
		return s.status()

	case typeCommand:
		return s.command(msg.Text)

	case typeSpectrogram, typeScalogram:
		return s.view(msg)

	default:
		return newErrorMessage(errs.NewConfigError("unknown message type %q", msg.Type))
	}
}

// updateConfig applies u and mirrors filter changes to the board when configured
func (s *Server) updateConfig(u consumer.Update) error {
	prev := s.facade.Config().Filter
	if err := s.facade.UpdateConfig(u); err != nil {
		return err
	}
	if !s.config.Control.MirrorFilters {
		return nil
	}

	for _, cmd := range filterCommands(prev, s.facade.Config().Filter) {
		if err := s.ctrl.Send(cmd); err != nil {
			s.logger.Warn("mirroring filter change", slog.String("cmd", cmd), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Server) command(text string) any {
	if text == "" {
		return newErrorMessage(errs.NewConfigError("command text is empty"))
	}

	reply := ackMessage{Type: typeAck, Command: text}
	ack, err := s.ctrl.Exec(s.ctx, text, s.config.Control.AckTimeout)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}

	reply.Acknowledged = true
	reply.OK = ack.OK
	reply.Reply = ack.Line
	return reply
}

func (s *Server) view(msg *clientMessage) any {
	if msg.Channel == nil {
		return newErrorMessage(errs.NewConfigError("%s requires a channel", msg.Type))
	}
	ch := *msg.Channel

	out := spectrogramMessage{Type: msg.Type, Channel: ch}
	switch msg.Type {
	case typeSpectrogram:
		sg, ok, err := s.facade.Spectrogram(ch)
		if err != nil {
			return newErrorMessage(err)
		}
		if !ok {
			return newErrorMessage(errNoData)
		}
		out.Frequencies, out.Times, out.PowerDB = sg.Frequencies, sg.Times, sg.PowerDB

	default:
		sc, ok, err := s.facade.Scalogram(ch)
		if err != nil {
			return newErrorMessage(err)
		}
		if !ok {
			return newErrorMessage(errNoData)
		}
		out.Frequencies, out.Times, out.PowerDB = sc.Frequencies, sc.Times, sc.PowerDB
	}
	return out
}

var errNoData = errors.New("no data received yet")

// stream pushes spectra whenever new frames arrive, status at a fixed cadence and
// anything published on the hub
func (s *Server) stream(conn *wsConn, sub <-chan any, done <-chan struct{}) {
	streamTicker := time.NewTicker(s.config.Server.StreamInterval)
	defer streamTicker.Stop()

	statusTicker := time.NewTicker(s.config.Server.StatusInterval)
	defer statusTicker.Stop()

	var lastFrames uint64
	for {
		select {
		case <-done:
			return

		case <-s.ctx.Done():
			// unblocks the reader
			_ = conn.conn.Close()
			return

		case msg := <-sub:
			if err := conn.writeJSON(msg); err != nil {
				return
			}

		case <-statusTicker.C:
			if err := conn.writeJSON(s.status()); err != nil {
				return
			}

		case <-streamTicker.C:
			frames := s.facade.Telemetry().Frames
			if frames == lastFrames {
				continue
			}
			lastFrames = frames

			if err := s.sendSpectra(conn); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendSpectra(conn *wsConn) error {
	count := s.facade.Config().Acquisition.ChannelCount
	written := s.facade.Telemetry().Frames
	for _, ch := range s.channels(count) {
		sp, ok, err := s.facade.Spectrum(ch)
		if err != nil {
			s.logger.Debug("computing spectrum", slog.Int("channel", ch), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			return nil
		}

		err = conn.writeJSON(spectrumMessage{
			Type:        typeSpectrum,
			Channel:     ch,
			Written:     written,
			BinWidth:    sp.BinWidth,
			Frequencies: sp.Frequencies,
			MagnitudeDB: sp.MagnitudeDB,
			MaxHold:     sp.MaxHold,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// channels lists the configured stream channels that exist at the current channel count
func (s *Server) channels(count int) []int {
	if len(s.config.Server.Channels) == 0 {
		out := make([]int, count)
		for i := range out {
			out[i] = i
		}
		return out
	}

	out := make([]int, 0, len(s.config.Server.Channels))
	for _, ch := range s.config.Server.Channels {
		if ch < count {
			out = append(out, ch)
		}
	}
	return out
}

func (s *Server) status() statusMessage {
	m := statusMessage{
		Type:           typeStatus,
		Telemetry:      s.facade.Telemetry(),
		Connected:      s.ctrl.Connected(),
		Paused:         s.facade.Paused(),
		DroppedAcks:    s.ctrl.DroppedAcks(),
		LastAckDropped: s.ctrl.LastAckDropped(),
		Config:         newConfigView(s.facade.Config()),
	}
	if board := s.ctrl.BoardAddr(); board != nil {
		m.Board = board.String()
	}
	return m
}

// filterCommands lists the board commands that reproduce a host filter change
func filterCommands(prev, next filter.Config) []string {
	var cmds []string

	if prev.AnyEnabled() != next.AnyEnabled() {
		cmds = append(cmds, control.FiltersMaster(next.AnyEnabled()))
	}
	if prev.DCBlock != next.DCBlock {
		cmds = append(cmds, control.DCFilter(next.DCBlock))
	}
	if prev.DCCutoff != next.DCCutoff {
		if cmd, err := control.DCCutoff(next.DCCutoff); err == nil {
			cmds = append(cmds, cmd)
		}
	}
	if prev.MainsFreq != next.MainsFreq {
		if cmd, err := control.NetworkFrequency(next.MainsFreq); err == nil {
			cmds = append(cmds, cmd)
		}
	}
	if prev.Mains != next.Mains {
		cmds = append(cmds, control.MainsFilter(next.Mains))
	}
	if prev.Harmonic != next.Harmonic {
		cmds = append(cmds, control.HarmonicFilter(next.Harmonic))
	}
	if prev.Equalizer != next.Equalizer {
		cmds = append(cmds, control.EqualizerFilter(next.Equalizer))
	}
	return cmds
}
