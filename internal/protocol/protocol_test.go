package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Frame
		expectError error
	}{
		{
			name: "valid audio frame",
			data: []byte{
				0xFF, 0x5D, // Magic
				0x01, 0x02, 0x03, 0x04, 0x05, 0x06, // StationID
				0x01,       // Type: Audio
				0x30, 0x39, // Sequence: 12345
				0x00, 0x03, // PayloadLen: 3
				0x00,             // Reserved
				0xAA, 0xBB, 0xCC, // Payload
			},
			expected: &Frame{
				StationID: StationID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
				Type:      FrameTypeAudio,
				Sequence:  12345,
				Payload:   []byte{0xAA, 0xBB, 0xCC},
			},
		},
		{
			name: "control frame with nonzero reserved byte",
			data: append([]byte{
				0xFF, 0x5D,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
				0x03,
				0x00, 0x07,
				0x00, 0x09,
				0x7F,
			}, []byte("PTT_START")...),
			expected: &Frame{
				StationID: StationID{0, 0, 0, 0, 0, 1},
				Type:      FrameTypeControl,
				Sequence:  7,
				Payload:   []byte("PTT_START"),
			},
		},
		{
			name: "trailing bytes after declared payload are ignored",
			data: []byte{
				0xFF, 0x5D,
				0, 0, 0, 0, 0, 0,
				0x02,
				0x00, 0x01,
				0x00, 0x01,
				0x00,
				'x', 'y', 'z',
			},
			expected: &Frame{
				Type:     FrameTypeText,
				Sequence: 1,
				Payload:  []byte("x"),
			},
		},
		{
			name: "unknown frame type still parses",
			data: []byte{
				0xFF, 0x5D,
				0, 0, 0, 0, 0, 0,
				0x99,
				0x00, 0x02,
				0x00, 0x00,
				0x00,
			},
			expected: &Frame{
				Type:     FrameType(0x99),
				Sequence: 2,
				Payload:  []byte{},
			},
		},
		{
			name:        "empty data",
			data:        []byte{},
			expectError: ErrShortFrame,
		},
		{
			name:        "one byte short of header",
			data:        append([]byte{0xFF, 0x5D}, make([]byte, HeaderSize-3)...),
			expectError: ErrShortFrame,
		},
		{
			name: "bad magic",
			data: []byte{
				0xFF, 0x5E,
				0, 0, 0, 0, 0, 0,
				0x01,
				0x00, 0x01,
				0x00, 0x00,
				0x00,
			},
			expectError: ErrBadMagic,
		},
		{
			name: "declared payload longer than datagram",
			data: []byte{
				0xFF, 0x5D,
				0, 0, 0, 0, 0, 0,
				0x01,
				0x00, 0x01,
				0x00, 0x05,
				0x00,
				0x01, 0x02, 0x03, 0x04,
			},
			expectError: ErrPayloadTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(tt.data)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("Expected error %v, got %v", tt.expectError, err)
				}
				if result != nil {
					t.Errorf("Expected no frame on failure, got %v", result)
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if result.ReceivedAt.IsZero() {
				t.Error("Expected ReceivedAt to be set")
			}
			if diff := cmp.Diff(tt.expected, result, cmpopts.IgnoreFields(Frame{}, "ReceivedAt")); diff != "" {
				t.Errorf("Frame mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRejectsEveryShortInput(t *testing.T) {
	full := []byte{0xFF, 0x5D, 1, 2, 3, 4, 5, 6, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00}
	for n := 0; n < HeaderSize; n++ {
		frame, err := Parse(full[:n])
		if !errors.Is(err, ErrShortFrame) {
			t.Errorf("Parse(%d bytes): expected ErrShortFrame, got %v", n, err)
		}
		if frame != nil {
			t.Errorf("Parse(%d bytes): expected nil frame", n)
		}
	}
}

func TestParseRejectsTruncatedPayload(t *testing.T) {
	for available := 0; available < 32; available++ {
		data := make([]byte, HeaderSize+available)
		data[0], data[1] = Magic0, Magic1
		data[8] = byte(FrameTypeAudio)
		binary.BigEndian.PutUint16(data[11:13], uint16(available+1))

		if _, err := Parse(data); !errors.Is(err, ErrPayloadTruncated) {
			t.Errorf("available=%d: expected ErrPayloadTruncated, got %v", available, err)
		}
	}
}

func TestParseDoesNotAliasInput(t *testing.T) {
	data, err := Encode(&Frame{Type: FrameTypeText, Sequence: 1, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	frame, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Simulate the receive buffer being reused
	for i := range data {
		data[i] = 0
	}

	if string(frame.Payload) != "hello" {
		t.Errorf("Expected payload to survive buffer reuse, got %q", frame.Payload)
	}
}

func TestEncodeWireFormat(t *testing.T) {
	frame := &Frame{
		StationID: StationID{'W', '5', 'N', 'Y', 'V', ' '},
		Type:      FrameTypeControl,
		Sequence:  0xBEEF,
		Payload:   []byte("PTT_STOP"),
	}

	data, err := Encode(frame)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := append([]byte{
		0xFF, 0x5D,
		'W', '5', 'N', 'Y', 'V', ' ',
		0x03,
		0xBE, 0xEF,
		0x00, 0x08,
		0x00,
	}, []byte("PTT_STOP")...)

	if !bytes.Equal(data, expected) {
		t.Errorf("Expected %x, got %x", expected, data)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(&Frame{Payload: make([]byte, MaxPayloadSize+1)})
	if err == nil || !strings.Contains(err.Error(), "payload too large") {
		t.Errorf("Expected payload too large error, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	station := StationID{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x42}
	types := []FrameType{FrameTypeAudio, FrameTypeText, FrameTypeControl, FrameTypeData, FrameType(0x7E)}

	for length := 0; length <= MaxPayloadSize; length++ {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(i * 31)
		}
		in := &Frame{
			StationID: station,
			Type:      types[length%len(types)],
			Sequence:  uint16(length * 7),
			Payload:   payload,
		}

		data, err := Encode(in)
		if err != nil {
			t.Fatalf("length=%d: Encode failed: %v", length, err)
		}
		out, err := Parse(data)
		if err != nil {
			t.Fatalf("length=%d: Parse failed: %v", length, err)
		}

		if out.StationID != in.StationID || out.Type != in.Type || out.Sequence != in.Sequence || !bytes.Equal(out.Payload, in.Payload) {
			t.Fatalf("length=%d: round trip mismatch: in %v, out %v", length, in, out)
		}
	}
}

func TestFrameType(t *testing.T) {
	tests := []struct {
		frameType FrameType
		known     bool
		name      string
	}{
		{FrameTypeAudio, true, "Audio"},
		{FrameTypeText, true, "Text"},
		{FrameTypeControl, true, "Control"},
		{FrameTypeData, true, "Data"},
		{0x00, false, "Unknown(0x00)"},
		{0x05, false, "Unknown(0x05)"},
		{0xFF, false, "Unknown(0xff)"},
	}

	for _, tt := range tests {
		if tt.frameType.Known() != tt.known {
			t.Errorf("FrameType(0x%02x).Known() = %v, expected %v", uint8(tt.frameType), tt.frameType.Known(), tt.known)
		}
		if tt.frameType.String() != tt.name {
			t.Errorf("FrameType(0x%02x).String() = %q, expected %q", uint8(tt.frameType), tt.frameType.String(), tt.name)
		}
	}
}

func TestStringMethods(t *testing.T) {
	station := StationID{0x01, 0x02, 0x03, 0x0a, 0x0b, 0x0c}
	if station.String() != "0102030a0b0c" {
		t.Errorf("StationID.String() = %q, expected %q", station.String(), "0102030a0b0c")
	}

	frame := &Frame{StationID: station, Type: FrameTypeAudio, Sequence: 42, Payload: make([]byte, 80)}
	s := frame.String()
	if !strings.Contains(s, "Audio") || !strings.Contains(s, "42") || !strings.Contains(s, "80") {
		t.Errorf("Frame.String() missing expected content: %s", s)
	}
}
