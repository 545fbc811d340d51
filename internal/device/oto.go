// Package device plays PCM through the host's default audio output.
package device

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Only one oto context may exist per process
var (
	contextOnce sync.Once
	sharedCtx   *oto.Context
	contextErr  error
)

// Config describes the playback stream
type Config struct {
	SampleRate int
	Channels   int
	// BufferDuration is the device-side buffer; it bounds output latency
	BufferDuration time.Duration
}

// OtoSink is an audio.Sink backed by the default output device. The device
// pulls from the source on its own goroutine whenever its buffer drains.
type OtoSink struct {
	cfg    Config
	logger *slog.Logger

	player *oto.Player
	mu     sync.Mutex
}

// NewOtoSink creates a sink; the device is opened by Start
func NewOtoSink(cfg Config, logger *slog.Logger) *OtoSink {
	return &OtoSink{cfg: cfg, logger: logger}
}

func openContext(cfg Config) (*oto.Context, error) {
	contextOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferDuration,
		})
		if err != nil {
			contextErr = fmt.Errorf("device: open audio output: %w", err)
			return
		}
		<-ready
		sharedCtx = ctx
	})
	return sharedCtx, contextErr
}

// Start opens the output device and begins playback from src
func (s *OtoSink) Start(src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return fmt.Errorf("device: sink already started")
	}

	ctx, err := openContext(s.cfg)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("device: resume audio output: %w", err)
	}

	player := ctx.NewPlayer(src)
	bytesPerSecond := s.cfg.SampleRate * s.cfg.Channels * 2
	if size := int(int64(bytesPerSecond) * int64(s.cfg.BufferDuration) / int64(time.Second)); size > 0 {
		player.SetBufferSize(size)
	}
	player.Play()
	s.player = player

	s.logger.Info("Audio output ready",
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Int("channels", s.cfg.Channels),
		slog.Duration("buffer", s.cfg.BufferDuration),
	)

	return nil
}

// Close stops playback and suspends the output device
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return nil
	}

	s.player.Pause()
	err := s.player.Close()
	s.player = nil

	if sharedCtx != nil {
		if suspendErr := sharedCtx.Suspend(); suspendErr != nil && err == nil {
			err = suspendErr
		}
	}

	if err != nil {
		return fmt.Errorf("device: close audio output: %w", err)
	}
	return nil
}
