package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Protocol constants
const (
	// Sync word shared with M17
	Magic0 = 0xFF
	Magic1 = 0x5D

	HeaderSize      = 14   // 2 + 6 + 1 + 2 + 2 + 1 bytes
	StationIDSize   = 6
	MaxDatagramSize = 4096 // Receive buffer size; larger datagrams are truncated
	MaxPayloadSize  = MaxDatagramSize - HeaderSize
)

// FrameType is the one-byte frame type code from the header
type FrameType uint8

// Frame types
const (
	FrameTypeAudio   FrameType = 0x01
	FrameTypeText    FrameType = 0x02
	FrameTypeControl FrameType = 0x03
	FrameTypeData    FrameType = 0x04
)

// Control commands carried in Control frame payloads
const (
	CommandPTTStart = "PTT_START"
	CommandPTTStop  = "PTT_STOP"
)

// Parse failures. Parse wraps one of these with detail.
var (
	ErrShortFrame       = errors.New("frame shorter than header")
	ErrBadMagic         = errors.New("bad magic")
	ErrPayloadTruncated = errors.New("payload truncated")
)

// Known reports whether t is one of the defined frame types
func (t FrameType) Known() bool {
	return t >= FrameTypeAudio && t <= FrameTypeData
}

// String returns the frame type name
func (t FrameType) String() string {
	switch t {
	case FrameTypeAudio:
		return "Audio"
	case FrameTypeText:
		return "Text"
	case FrameTypeControl:
		return "Control"
	case FrameTypeData:
		return "Data"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// StationID is the opaque 6-byte sender identifier
type StationID [StationIDSize]byte

// String returns the station id as lowercase hex
func (s StationID) String() string {
	return hex.EncodeToString(s[:])
}

// Frame is one parsed Opulent Voice message.
// Layout: [Magic:2][StationID:6][Type:1][Sequence:2][PayloadLen:2][Reserved:1][Payload:N]
type Frame struct {
	StationID  StationID
	Type       FrameType
	Sequence   uint16
	Payload    []byte
	ReceivedAt time.Time
}

// Parse validates a datagram and extracts the frame it carries. The returned
// payload is a copy, so data may be reused by the caller. Bytes past the
// declared payload length are ignored.
func Parse(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d", ErrShortFrame, HeaderSize, len(data))
	}

	if data[0] != Magic0 || data[1] != Magic1 {
		return nil, fmt.Errorf("%w: 0x%02x%02x", ErrBadMagic, data[0], data[1])
	}

	payloadLen := int(binary.BigEndian.Uint16(data[11:13]))
	if payloadLen > len(data)-HeaderSize {
		return nil, fmt.Errorf("%w: header says %d bytes, got %d", ErrPayloadTruncated, payloadLen, len(data)-HeaderSize)
	}

	frame := &Frame{
		Type:       FrameType(data[8]),
		Sequence:   binary.BigEndian.Uint16(data[9:11]),
		Payload:    make([]byte, payloadLen),
		ReceivedAt: time.Now(),
	}
	copy(frame.StationID[:], data[2:8])
	copy(frame.Payload, data[HeaderSize:HeaderSize+payloadLen])

	return frame, nil
}

// Encode serializes a frame in wire format with the reserved byte zeroed
func Encode(f *Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (maximum %d)", len(f.Payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = Magic0
	buf[1] = Magic1
	copy(buf[2:8], f.StationID[:])
	buf[8] = byte(f.Type)
	binary.BigEndian.PutUint16(buf[9:11], f.Sequence)
	binary.BigEndian.PutUint16(buf[11:13], uint16(len(f.Payload)))
	buf[13] = 0
	copy(buf[HeaderSize:], f.Payload)

	return buf, nil
}

// String returns a human-readable representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Station:%s, Type:%s, Seq:%d, PayloadLen:%d}",
		f.StationID, f.Type, f.Sequence, len(f.Payload))
}
