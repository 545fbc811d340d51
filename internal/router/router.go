package router

import (
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/MustBeArt/postlocutor/internal/metrics"
	"github.com/MustBeArt/postlocutor/internal/protocol"
	"github.com/MustBeArt/postlocutor/internal/state"
)

// AudioSink accepts compressed audio payloads
type AudioSink interface {
	Enqueue(payload []byte) error
}

// Observer is notified of frames the router does not act on itself
type Observer interface {
	OnText(from net.Addr, station protocol.StationID, sequence uint16, text string)
	OnControl(from net.Addr, station protocol.StationID, sequence uint16, message string)
	OnPTT(from net.Addr, station protocol.StationID, active bool)
	OnFrame(from net.Addr, frame *protocol.Frame)
}

// StationRecorder records per-station activity
type StationRecorder interface {
	Observe(frame *protocol.Frame, from net.Addr)
}

// Router dispatches frames from a single receive loop. It does not reorder
// frames and holds no locks of its own.
type Router struct {
	audio    AudioSink
	state    *state.ReceiverState
	observer Observer
	stations StationRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures optional Router collaborators
type Option func(*Router)

// WithObserver sets the observer for text, control and unhandled frames
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithStations sets the station activity recorder
func WithStations(s StationRecorder) Option {
	return func(r *Router) { r.stations = s }
}

// WithMetrics enables payload size histograms
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a router feeding audio into sink and counters into st
func New(sink AudioSink, st *state.ReceiverState, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		audio:  sink,
		state:  st,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	return r
}

// Dispatch handles one valid frame received from the given address
func (r *Router) Dispatch(frame *protocol.Frame, from net.Addr) {
	r.state.RecordFrame(frame.Type)
	r.metrics.ObservePayload(frame.Type, len(frame.Payload))
	if r.stations != nil {
		r.stations.Observe(frame, from)
	}

	switch frame.Type {
	case protocol.FrameTypeAudio:
		r.handleAudio(frame)
	case protocol.FrameTypeControl:
		r.handleControl(frame, from)
	case protocol.FrameTypeText:
		r.observer.OnText(from, frame.StationID, frame.Sequence, decodeText(frame.Payload))
	default:
		// Data frames are recognized but carry no defined semantics
		r.observer.OnFrame(from, frame)
	}
}

func (r *Router) handleAudio(frame *protocol.Frame) {
	at := frame.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	r.state.MarkAudio(at)

	if err := r.audio.Enqueue(frame.Payload); err != nil {
		r.logger.Debug("Audio frame not queued",
			slog.String("station", frame.StationID.String()),
			slog.Uint64("sequence", uint64(frame.Sequence)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Router) handleControl(frame *protocol.Frame, from net.Addr) {
	message := decodeText(frame.Payload)

	switch message {
	case protocol.CommandPTTStart:
		if r.state.SetPTT(true) {
			r.observer.OnPTT(from, frame.StationID, true)
		}
	case protocol.CommandPTTStop:
		if r.state.SetPTT(false) {
			r.observer.OnPTT(from, frame.StationID, false)
		}
	default:
		r.observer.OnControl(from, frame.StationID, frame.Sequence, message)
	}
}

// decodeText replaces invalid UTF-8 sequences with U+FFFD
func decodeText(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "\uFFFD")
}

type nopObserver struct{}

func (nopObserver) OnText(net.Addr, protocol.StationID, uint16, string)    {}
func (nopObserver) OnControl(net.Addr, protocol.StationID, uint16, string) {}
func (nopObserver) OnPTT(net.Addr, protocol.StationID, bool)               {}
func (nopObserver) OnFrame(net.Addr, *protocol.Frame)                      {}
