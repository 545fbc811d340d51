package router

import (
	"log/slog"
	"net"

	"github.com/MustBeArt/postlocutor/internal/protocol"
)

// LogObserver writes surfaced frames to a structured logger
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates an observer that logs to logger
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnText(from net.Addr, station protocol.StationID, sequence uint16, text string) {
	o.logger.Info("Text message",
		slog.String("station", station.String()),
		slog.String("remote_addr", addrString(from)),
		slog.Uint64("sequence", uint64(sequence)),
		slog.String("text", text),
	)
}

func (o *LogObserver) OnControl(from net.Addr, station protocol.StationID, sequence uint16, message string) {
	o.logger.Info("Control message",
		slog.String("station", station.String()),
		slog.String("remote_addr", addrString(from)),
		slog.Uint64("sequence", uint64(sequence)),
		slog.String("message", message),
	)
}

func (o *LogObserver) OnPTT(from net.Addr, station protocol.StationID, active bool) {
	msg := "PTT stop"
	if active {
		msg = "PTT start"
	}
	o.logger.Info(msg,
		slog.String("station", station.String()),
		slog.String("remote_addr", addrString(from)),
	)
}

func (o *LogObserver) OnFrame(from net.Addr, frame *protocol.Frame) {
	o.logger.Debug("Unhandled frame",
		slog.String("station", frame.StationID.String()),
		slog.String("remote_addr", addrString(from)),
		slog.String("type", frame.Type.String()),
		slog.Uint64("sequence", uint64(frame.Sequence)),
		slog.Int("payload_size", len(frame.Payload)),
	)
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
