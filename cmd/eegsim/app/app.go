package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/roman-kulish/eegstream/internal/errs"
)

// Simulator impersonates an acquisition board on the network
type Simulator struct {
	config   *Config
	board    *Board
	link     *link
	streamer *streamer
	ctrl     *net.UDPConn
	data     *net.UDPConn

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewSimulator opens the board sockets and prepares the signal source
func NewSimulator(config *Config, logger *slog.Logger) (*Simulator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	source, err := newSource(config.Stream)
	if err != nil {
		return nil, err
	}
	if config.Stream.InputFile != "" && source.SampleRate() != config.Stream.SampleRate {
		logger.Info("using the sample rate of the recording", slog.Int("sampleRate", source.SampleRate()))
	}

	local, err := net.ResolveUDPAddr("udp", config.Board.Listen)
	if err != nil {
		return nil, errs.NewNetworkError("resolve "+config.Board.Listen, err)
	}
	ctrl, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, errs.NewNetworkError("listen "+config.Board.Listen, err)
	}
	// everything the board sends leaves from one ephemeral socket
	data, err := net.ListenUDP("udp", &net.UDPAddr{IP: local.IP, Zone: local.Zone})
	if err != nil {
		ctrl.Close()
		return nil, errs.NewNetworkError("open transmit socket", err)
	}

	board := NewBoard(config.Stream.AutoStart)
	s := Simulator{
		config: config,
		board:  board,
		ctrl:   ctrl,
		data:   data,
		logger: logger,
	}
	s.link = &link{
		conn:           ctrl,
		tx:             data,
		host:           config.controlAddr(),
		board:          board,
		beaconInterval: config.Board.BeaconInterval,
		peerTimeout:    config.Board.PeerTimeout,
		logger:         logger.With(slog.String("component", "link")),
	}
	s.streamer = &streamer{
		conn:            data,
		dst:             config.dataAddr(),
		source:          source,
		board:           board,
		framesPerPacket: config.Stream.FramesPerPacket,
		batteryVolts:    config.Board.BatteryVolts,
		statsInterval:   config.Settings.StatsInterval,
		logger:          logger.With(slog.String("component", "streamer")),
	}

	return &s, nil
}

// Board returns the command state machine
func (s *Simulator) Board() *Board {
	return s.board
}

// ControlAddr returns the local address commands are received on
func (s *Simulator) ControlAddr() *net.UDPAddr {
	return s.ctrl.LocalAddr().(*net.UDPAddr)
}

// SendAddr returns the local address beacons, replies and data are sent from
func (s *Simulator) SendAddr() *net.UDPAddr {
	return s.data.LocalAddr().(*net.UDPAddr)
}

// Start launches the control link and the streamer
func (s *Simulator) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.link.run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.streamer.run(ctx)
	}()

	s.logger.Info("board simulator started",
		slog.String("control", s.ControlAddr().String()),
		slog.String("host", s.config.controlAddr().String()))
}

// Stop shuts both loops down and closes the sockets
func (s *Simulator) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	return errors.Join(s.ctrl.Close(), s.data.Close())
}

// Run simulates a board until ctx is cancelled
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	sim, err := NewSimulator(config, logger)
	if err != nil {
		return err
	}

	sim.Start(ctx)
	<-ctx.Done()

	logger.Info("stopping board simulator",
		slog.Uint64("beacons", sim.link.beacons.Load()),
		slog.Uint64("replies", sim.link.replies.Load()),
		slog.Uint64("packets", sim.streamer.packets.Load()))
	return sim.Stop()
}
