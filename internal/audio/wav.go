package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const wavHeaderSize = 44

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

func newWAVHeader(sampleRate, channels int, dataSize uint32) WAVHeader {
	bitsPerSample := uint16(16)
	numChannels := uint16(channels)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WAVWriter streams 16-bit PCM into a WAV container. The header is written
// with a zero data size up front and patched on Close.
type WAVWriter struct {
	ws         io.WriteSeeker
	sampleRate int
	channels   int
	dataSize   uint32
	closed     bool
	mu         sync.Mutex
}

// NewWAVWriter writes a provisional header to ws
func NewWAVWriter(ws io.WriteSeeker, format Format) (*WAVWriter, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", format.SampleRate)
	}
	if format.Channels < 1 {
		return nil, fmt.Errorf("channels must be at least 1, got %d", format.Channels)
	}

	header := newWAVHeader(format.SampleRate, format.Channels, 0)
	if err := binary.Write(ws, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return &WAVWriter{
		ws:         ws,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
	}, nil
}

// CreateWAVFile creates (or truncates) path and returns a WAVWriter for it
func CreateWAVFile(path string, format Format) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file %s: %w", path, err)
	}

	w, err := NewWAVWriter(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends little-endian PCM bytes
func (w *WAVWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}

	n, err := w.ws.Write(p)
	w.dataSize += uint32(n)
	return n, err
}

// DataSize returns the number of PCM bytes written so far
func (w *WAVWriter) DataSize() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataSize
}

// Close patches the header sizes and closes the underlying writer if it is a
// Closer. Subsequent calls are no-ops.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.patchHeader()

	if c, ok := w.ws.(io.Closer); ok {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (w *WAVWriter) patchHeader() error {
	header := newWAVHeader(w.sampleRate, w.channels, w.dataSize)

	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to WAV header: %w", err)
	}
	if err := binary.Write(w.ws, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to rewrite WAV header: %w", err)
	}
	if _, err := w.ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to WAV end: %w", err)
	}
	return nil
}

// DecodeWAV decodes 16-bit PCM WAV data into samples, sample rate and channel count
func DecodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, 0, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != 1 || header.BitsPerSample != 16 {
		return nil, 0, 0, fmt.Errorf("unsupported audio format: %d/%d-bit (only 16-bit PCM is supported)",
			header.AudioFormat, header.BitsPerSample)
	}

	if int(header.Subchunk2Size) > len(data)-wavHeaderSize {
		return nil, 0, 0, fmt.Errorf("WAV data truncated: header says %d bytes, got %d",
			header.Subchunk2Size, len(data)-wavHeaderSize)
	}

	samples := make([]int16, header.Subchunk2Size/2)
	if err := binary.Read(buf, binary.LittleEndian, samples); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, int(header.SampleRate), int(header.NumChannels), nil
}
