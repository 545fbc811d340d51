package station

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/MustBeArt/postlocutor/internal/protocol"
)

// DefaultCleanupInterval is how often Run checks for idle stations
const DefaultCleanupInterval = 30 * time.Second

// Station is the activity record of one sender
type Station struct {
	ID           protocol.StationID
	RemoteAddr   string
	FirstSeen    time.Time
	LastSeen     time.Time
	LastSequence uint16
	Frames       map[protocol.FrameType]uint64
}

// Info is a read-only copy of a Station for monitoring and APIs
type Info struct {
	ID            string        `json:"station_id"`
	RemoteAddr    string        `json:"remote_addr"`
	FirstSeen     time.Time     `json:"first_seen"`
	LastSeen      time.Time     `json:"last_seen"`
	Active        time.Duration `json:"active"`
	LastSequence  uint16        `json:"last_sequence"`
	TotalFrames   uint64        `json:"total_frames"`
	AudioFrames   uint64        `json:"audio_frames"`
	TextFrames    uint64        `json:"text_frames"`
	ControlFrames uint64        `json:"control_frames"`
	OtherFrames   uint64        `json:"other_frames"`
}

// Tracker records every station heard and forgets stations idle for longer
// than its timeout
type Tracker struct {
	stations map[protocol.StationID]*Station
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewTracker creates a tracker. A timeout of zero disables expiry.
func NewTracker(logger *slog.Logger, timeout time.Duration) *Tracker {
	return &Tracker{
		stations: make(map[protocol.StationID]*Station),
		logger:   logger,
		timeout:  timeout,
		interval: DefaultCleanupInterval,
		now:      time.Now,
	}
}

// Observe records one valid frame from the given address
func (t *Tracker) Observe(frame *protocol.Frame, from net.Addr) {
	seen := frame.ReceivedAt
	if seen.IsZero() {
		seen = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, exists := t.stations[frame.StationID]
	if !exists {
		st = &Station{
			ID:        frame.StationID,
			FirstSeen: seen,
			Frames:    make(map[protocol.FrameType]uint64),
		}
		t.stations[frame.StationID] = st

		t.logger.Info("New station heard",
			slog.String("station", frame.StationID.String()),
			slog.String("remote_addr", addrString(from)),
		)
	}

	st.LastSeen = seen
	st.LastSequence = frame.Sequence
	if from != nil {
		st.RemoteAddr = from.String()
	}
	st.Frames[frame.Type]++
}

// Get returns the record for one station
func (t *Tracker) Get(id protocol.StationID) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, exists := t.stations[id]
	if !exists {
		return Info{}, false
	}
	return st.info(), true
}

// Count returns the number of stations currently tracked
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.stations)
}

// Snapshot returns all tracked stations, most recently heard first
func (t *Tracker) Snapshot() []Info {
	t.mu.RLock()
	infos := make([]Info, 0, len(t.stations))
	for _, st := range t.stations {
		infos = append(infos, st.info())
	}
	t.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].LastSeen.Equal(infos[j].LastSeen) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].LastSeen.After(infos[j].LastSeen)
	})
	return infos
}

// Expire removes stations idle for longer than the timeout and returns how
// many were removed
func (t *Tracker) Expire() int {
	if t.timeout <= 0 {
		return 0
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, st := range t.stations {
		if now.Sub(st.LastSeen) <= t.timeout {
			continue
		}
		delete(t.stations, id)
		removed++

		t.logger.Info("Station expired",
			slog.String("station", id.String()),
			slog.Duration("idle", now.Sub(st.LastSeen)),
			slog.Uint64("frames", st.total()),
		)
	}
	return removed
}

// Run expires idle stations periodically until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) error {
	if t.timeout <= 0 {
		<-ctx.Done()
		return nil
	}

	interval := t.interval
	if t.timeout < interval {
		interval = t.timeout
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Debug("Station cleanup routine started",
		slog.Duration("timeout", t.timeout),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Expire()
		}
	}
}

func (s *Station) total() uint64 {
	var n uint64
	for _, c := range s.Frames {
		n += c
	}
	return n
}

func (s *Station) info() Info {
	info := Info{
		ID:           s.ID.String(),
		RemoteAddr:   s.RemoteAddr,
		FirstSeen:    s.FirstSeen,
		LastSeen:     s.LastSeen,
		Active:       s.LastSeen.Sub(s.FirstSeen),
		LastSequence: s.LastSequence,
		TotalFrames:  s.total(),
	}
	for t, n := range s.Frames {
		switch t {
		case protocol.FrameTypeAudio:
			info.AudioFrames = n
		case protocol.FrameTypeText:
			info.TextFrames = n
		case protocol.FrameTypeControl:
			info.ControlFrames = n
		default:
			info.OtherFrames += n
		}
	}
	return info
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
