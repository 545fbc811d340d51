package audio

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ClockedSink stands in for a playback device when none is available. It
// pulls one chunk per frame duration from its source and writes it to w.
type ClockedSink struct {
	w          io.Writer
	chunkBytes int
	interval   time.Duration
	logger     *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	mu       sync.Mutex
}

// NewClockedSink creates a sink that writes pulled PCM to w. If w is also an
// io.Closer it is closed with the sink.
func NewClockedSink(w io.Writer, format Format, logger *slog.Logger) *ClockedSink {
	if w == nil {
		w = io.Discard
	}
	return &ClockedSink{
		w:          w,
		chunkBytes: format.ChunkBytes(),
		interval:   format.FrameDuration,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins pulling from src on a ticker
func (s *ClockedSink) Start(src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("clocked sink already started")
	}
	if s.interval <= 0 || s.chunkBytes <= 0 {
		return fmt.Errorf("invalid clocked sink timing: interval %v, chunk %d bytes", s.interval, s.chunkBytes)
	}
	s.started = true

	go s.run(src)
	return nil
}

func (s *ClockedSink) run(src io.Reader) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	buf := make([]byte, s.chunkBytes)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(src, buf)
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.logger.Warn("Clocked sink read failed", slog.String("error", err.Error()))
			}
			return
		}

		if _, err := s.w.Write(buf[:n]); err != nil {
			s.logger.Error("Clocked sink write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// Close stops pulling and closes the underlying writer if it is a Closer
func (s *ClockedSink) Close() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	if started {
		<-s.done
	}

	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
