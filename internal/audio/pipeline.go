package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MustBeArt/postlocutor/internal/metrics"
	"github.com/MustBeArt/postlocutor/internal/state"
)

// ErrClosed is returned by Enqueue and Start after Stop
var ErrClosed = errors.New("audio pipeline closed")

// Decoder decodes one compressed audio frame into interleaved int16 PCM.
// frameSize is the expected number of samples per channel.
type Decoder interface {
	Decode(payload []byte, frameSize int) ([]int16, error)
}

// Sink is a playback device. Start opens the device and begins pulling PCM
// from src on the device's own schedule; Close halts pulling and releases the
// device.
type Sink interface {
	Start(src io.Reader) error
	Close() error
}

// Format describes the fixed PCM layout for a session
type Format struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// DefaultFormat is 48 kHz mono in 40 ms chunks
var DefaultFormat = Format{
	SampleRate:    48000,
	Channels:      1,
	FrameDuration: 40 * time.Millisecond,
}

// SamplesPerChannel returns the number of samples per channel in one chunk
func (f Format) SamplesPerChannel() int {
	return int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
}

// ChunkBytes returns the size of one 16-bit PCM chunk in bytes
func (f Format) ChunkBytes() int {
	return f.SamplesPerChannel() * f.Channels * 2
}

// PipelineConfig configures a Pipeline
type PipelineConfig struct {
	Format         Format
	BufferCapacity int
}

// Pipeline decodes audio payloads into a PlaybackBuffer on the receive side
// and serves PCM to a Sink on the playback side. Neither side holds the
// buffer lock while decoding or doing I/O.
type Pipeline struct {
	format     Format
	chunkBytes int
	buffer     *PlaybackBuffer
	sink       Sink
	state      *state.ReceiverState
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// Decoder state carries across frames and is not safe for concurrent use
	decodeMu sync.Mutex
	decoder  Decoder

	// Remainder of a chunk partially consumed by the sink
	pullMu  sync.Mutex
	pending []byte

	lifecycleMu sync.Mutex
	started     bool
	stopped     atomic.Bool
}

// NewPipeline creates a pipeline. The metrics argument may be nil.
func NewPipeline(cfg PipelineConfig, dec Decoder, sink Sink, st *state.ReceiverState,
	logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {

	if dec == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.Format.ChunkBytes() <= 0 {
		return nil, fmt.Errorf("invalid audio format: %+v", cfg.Format)
	}

	return &Pipeline{
		format:     cfg.Format,
		chunkBytes: cfg.Format.ChunkBytes(),
		buffer:     NewPlaybackBuffer(cfg.BufferCapacity),
		decoder:    dec,
		sink:       sink,
		state:      st,
		metrics:    m,
		logger:     logger,
	}, nil
}

// Start opens the sink, which then begins pulling. Calling Start on a running
// pipeline is a no-op.
func (p *Pipeline) Start() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stopped.Load() {
		return ErrClosed
	}
	if p.started {
		return nil
	}

	if err := p.sink.Start(p); err != nil {
		return fmt.Errorf("failed to start audio sink: %w", err)
	}
	p.started = true

	p.logger.Info("Audio playback started",
		slog.Int("sample_rate", p.format.SampleRate),
		slog.Int("channels", p.format.Channels),
		slog.Duration("frame_duration", p.format.FrameDuration),
		slog.Int("buffer_capacity", p.buffer.Cap()),
	)

	return nil
}

// Stop halts pulling, closes the sink and releases the decoder. It is safe to
// call more than once.
func (p *Pipeline) Stop() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.stopped.Swap(true) {
		return nil
	}

	var err error
	if p.started {
		if closeErr := p.sink.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close audio sink: %w", closeErr)
		}
	}

	p.decodeMu.Lock()
	p.decoder = nil
	p.decodeMu.Unlock()

	p.pullMu.Lock()
	p.pending = nil
	p.pullMu.Unlock()

	p.buffer.Clear()

	p.logger.Info("Audio playback stopped")

	return err
}

// Enqueue decodes one compressed audio payload and queues the resulting chunk.
// A decode failure is counted and returned without touching the buffer.
func (p *Pipeline) Enqueue(payload []byte) error {
	if p.stopped.Load() {
		return ErrClosed
	}

	start := time.Now()

	p.decodeMu.Lock()
	if p.decoder == nil {
		p.decodeMu.Unlock()
		return ErrClosed
	}
	pcm, err := p.decoder.Decode(payload, p.format.SamplesPerChannel())
	p.decodeMu.Unlock()

	p.metrics.ObserveDecode(time.Since(start), err == nil)

	if err != nil {
		p.state.RecordDecodeError()
		p.logger.Warn("Opus decode failed",
			slog.Int("payload_size", len(payload)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to decode audio payload: %w", err)
	}
	p.state.RecordDecoded()

	if p.buffer.Push(samplesToChunk(pcm, p.chunkBytes)) {
		p.state.RecordEviction()
		p.logger.Debug("Playback buffer full, evicted oldest chunk",
			slog.Int("capacity", p.buffer.Cap()),
		)
	}

	return nil
}

// Pull fills dst with buffered PCM, oldest first, and fills whatever remains
// with silence. It never blocks on the receive side and returns the number of
// bytes that carried real audio.
func (p *Pipeline) Pull(dst []byte) int {
	p.pullMu.Lock()
	defer p.pullMu.Unlock()

	if p.stopped.Load() {
		clear(dst)
		return 0
	}

	filled := 0
	for filled < len(dst) {
		if len(p.pending) == 0 {
			chunk, ok := p.buffer.Pop()
			if !ok {
				break
			}
			p.pending = chunk
			p.state.RecordPlayed()
		}
		n := copy(dst[filled:], p.pending)
		p.pending = p.pending[n:]
		filled += n
	}

	if filled < len(dst) {
		clear(dst[filled:])
		p.state.RecordUnderrun()
	}

	return filled
}

// Read implements io.Reader for sinks. It always fills p completely until the
// pipeline is stopped, then returns io.EOF.
func (p *Pipeline) Read(b []byte) (int, error) {
	if p.stopped.Load() {
		return 0, io.EOF
	}
	p.Pull(b)
	return len(b), nil
}

// Format returns the session's PCM format
func (p *Pipeline) Format() Format {
	return p.format
}

// BufferLen returns the number of chunks waiting for playback
func (p *Pipeline) BufferLen() int {
	return p.buffer.Len()
}

// BufferCap returns the playback buffer capacity
func (p *Pipeline) BufferCap() int {
	return p.buffer.Cap()
}

// samplesToChunk converts int16 samples to a little-endian chunk of exactly
// size bytes, zero-padding short decodes and truncating long ones
func samplesToChunk(pcm []int16, size int) []byte {
	chunk := make([]byte, size)
	for i, s := range pcm {
		if i*2+1 >= size {
			break
		}
		chunk[i*2] = byte(s)
		chunk[i*2+1] = byte(s >> 8)
	}
	return chunk
}
