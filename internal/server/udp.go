package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/MustBeArt/postlocutor/internal/config"
	"github.com/MustBeArt/postlocutor/internal/metrics"
	"github.com/MustBeArt/postlocutor/internal/protocol"
	"github.com/MustBeArt/postlocutor/internal/state"
)

// Dispatcher handles valid frames
type Dispatcher interface {
	Dispatch(frame *protocol.Frame, from net.Addr)
}

// Receiver owns the UDP socket. Datagrams are parsed and dispatched on a
// single goroutine so frames are handled in arrival order.
type Receiver struct {
	conn        *net.UDPConn
	config      *config.ServerConfig
	logger      *slog.Logger
	state       *state.ReceiverState
	dispatcher  Dispatcher
	metrics     *metrics.Metrics
	readTimeout time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewReceiver creates a receiver. The metrics argument may be nil.
func NewReceiver(cfg *config.ServerConfig, logger *slog.Logger, st *state.ReceiverState,
	dispatcher Dispatcher, m *metrics.Metrics) *Receiver {

	ctx, cancel := context.WithCancel(context.Background())

	readTimeout := cfg.GetReadTimeout()
	if readTimeout <= 0 {
		readTimeout = time.Second
	}

	return &Receiver{
		config:      cfg,
		logger:      logger,
		state:       st,
		dispatcher:  dispatcher,
		metrics:     m,
		readTimeout: readTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start binds the socket and launches the receive loop. A bind failure is
// returned to the caller and nothing is left running.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("receiver already started")
	}

	address := net.JoinHostPort(r.config.BindAddress, strconv.Itoa(r.config.UDPPort))
	lc := net.ListenConfig{Control: reuseAddr}

	pc, err := lc.ListenPacket(r.ctx, "udp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", address, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return fmt.Errorf("unexpected packet connection type %T", pc)
	}
	r.conn = conn

	if err := r.conn.SetReadBuffer(r.config.BufferSize); err != nil {
		r.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", r.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	r.started = true
	r.state.SetRunning(true)

	r.logger.Info("UDP receiver started",
		slog.String("address", r.conn.LocalAddr().String()),
		slog.Int("buffer_size", r.config.BufferSize),
	)

	r.wg.Add(1)
	go r.receiveLoop()

	return nil
}

// Addr returns the bound local address, or nil before Start
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stop closes the socket and waits for the receive loop to exit. It is safe
// to call more than once.
func (r *Receiver) Stop() error {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping UDP receiver...")

		r.cancel()
		r.state.SetRunning(false)

		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()

		// Closing the socket unblocks a pending read
		if conn != nil {
			if err := conn.Close(); err != nil {
				r.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
			}
		}

		r.wg.Wait()

		snap := r.state.Snapshot()
		r.logger.Info("UDP receiver stopped",
			slog.Uint64("packets_received", snap.PacketsReceived),
			slog.Uint64("valid_frames", snap.ValidFrames),
			slog.Uint64("invalid_frames", snap.InvalidFrames),
		)
	})
	return nil
}

// receiveLoop is the main datagram receiving loop
func (r *Receiver) receiveLoop() {
	defer r.wg.Done()

	buffer := make([]byte, protocol.MaxDatagramSize)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Set read deadline to check for cancellation periodically
		if err := r.conn.SetReadDeadline(time.Now().Add(r.readTimeout)); err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Warn("Failed to set read deadline", slog.String("error", err.Error()))
		}

		n, remoteAddr, err := r.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if r.ctx.Err() != nil {
				return
			}

			r.metrics.RecordReceiveError()
			r.logger.Warn("Failed to read UDP datagram", slog.String("error", err.Error()))
			continue
		}

		r.handleDatagram(buffer[:n], remoteAddr)
	}
}

// handleDatagram parses and dispatches one datagram. Parse copies the
// payload, so the receive buffer can be reused immediately.
func (r *Receiver) handleDatagram(data []byte, remoteAddr *net.UDPAddr) {
	r.state.RecordPacket(len(data))

	frame, err := protocol.Parse(data)
	if err != nil {
		r.state.RecordInvalidFrame()
		r.logger.Debug("Discarding invalid datagram",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("size", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	r.logger.Debug("Frame received",
		slog.String("remote_addr", remoteAddr.String()),
		slog.String("station", frame.StationID.String()),
		slog.String("type", frame.Type.String()),
		slog.Uint64("sequence", uint64(frame.Sequence)),
		slog.Int("payload_size", len(frame.Payload)),
	)

	r.dispatcher.Dispatch(frame, remoteAddr)
}
