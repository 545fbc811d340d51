package codec

import (
	"math"
	"testing"

	"layeh.com/gopus"
)

func TestNewOpusDecoderValidation(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		valid      bool
	}{
		{"48k mono", 48000, 1, true},
		{"16k stereo", 16000, 2, true},
		{"44.1k", 44100, 1, false},
		{"zero channels", 48000, 0, false},
		{"three channels", 48000, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := NewOpusDecoder(tt.sampleRate, tt.channels)
			if tt.valid {
				if err != nil {
					t.Fatalf("Expected no error but got: %v", err)
				}
				if dec.SampleRate() != tt.sampleRate || dec.Channels() != tt.channels {
					t.Errorf("Expected %d Hz %d ch, got %d Hz %d ch", tt.sampleRate, tt.channels, dec.SampleRate(), dec.Channels())
				}
			} else if err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestDecodeEncodedFrame(t *testing.T) {
	const (
		sampleRate = 48000
		frameSize  = 1920 // 40 ms
	)

	enc, err := gopus.NewEncoder(sampleRate, 1, gopus.Voip)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}

	pcm := make([]int16, frameSize)
	for i := range pcm {
		pcm[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
	}
	packet, err := enc.Encode(pcm, frameSize, 4000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	dec, err := NewOpusDecoder(sampleRate, 1)
	if err != nil {
		t.Fatalf("NewOpusDecoder failed: %v", err)
	}

	out, err := dec.Decode(packet, frameSize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(out) != frameSize {
		t.Errorf("Expected %d samples, got %d", frameSize, len(out))
	}
}

func TestDecodeRejectsMalformedPackets(t *testing.T) {
	dec, err := NewOpusDecoder(48000, 1)
	if err != nil {
		t.Fatalf("NewOpusDecoder failed: %v", err)
	}

	if _, err := dec.Decode(nil, 1920); err == nil {
		t.Error("Expected error for empty packet")
	}

	// Code 3 packet with no frame count byte
	if _, err := dec.Decode([]byte{0xFF}, 1920); err == nil {
		t.Error("Expected error for truncated code 3 packet")
	}
}
