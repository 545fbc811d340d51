// Package codec provides the Opus decoder used by the audio pipeline.
package codec

import (
	"fmt"
	"slices"

	"layeh.com/gopus"
)

// ValidSampleRates are the output rates libopus can decode to
var ValidSampleRates = []int{8000, 12000, 16000, 24000, 48000}

// OpusDecoder wraps a gopus decoder for a single sender's stream. Decoder
// state carries across consecutive frames, so one instance serves one stream.
type OpusDecoder struct {
	dec        *gopus.Decoder
	sampleRate int
	channels   int
}

// NewOpusDecoder creates a decoder producing interleaved PCM at the given
// sample rate and channel count
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	if !slices.Contains(ValidSampleRates, sampleRate) {
		return nil, fmt.Errorf("codec: unsupported sample rate %d", sampleRate)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("codec: unsupported channel count %d", channels)
	}
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// Decode decodes one Opus packet. frameSize is the maximum number of samples
// per channel the caller expects. Forward error correction is not used.
func (d *OpusDecoder) Decode(payload []byte, frameSize int) ([]int16, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("codec: empty opus packet")
	}
	pcm, err := d.dec.Decode(payload, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decode: %w", err)
	}
	return pcm, nil
}

// SampleRate returns the decoder's output sample rate
func (d *OpusDecoder) SampleRate() int { return d.sampleRate }

// Channels returns the decoder's output channel count
func (d *OpusDecoder) Channels() int { return d.channels }
