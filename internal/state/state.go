package state

import (
	"sync/atomic"
	"time"

	"github.com/MustBeArt/postlocutor/internal/protocol"
)

// ReceiverState is shared by the receive loop, the frame router and the audio
// pipeline. The zero value is ready to use.
type ReceiverState struct {
	running atomic.Bool

	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	validFrames     atomic.Uint64
	invalidFrames   atomic.Uint64

	audioFrames   atomic.Uint64
	textFrames    atomic.Uint64
	controlFrames atomic.Uint64
	dataFrames    atomic.Uint64
	unknownFrames atomic.Uint64

	framesDecoded   atomic.Uint64
	framesPlayed    atomic.Uint64
	decodeErrors    atomic.Uint64
	bufferEvictions atomic.Uint64
	underruns       atomic.Uint64

	pttActive atomic.Bool
	lastAudio atomic.Int64 // unix nanoseconds, 0 until the first audio frame
}

// Snapshot is a point-in-time copy of ReceiverState
type Snapshot struct {
	Running bool `json:"running"`

	PacketsReceived uint64 `json:"packets_received"`
	BytesReceived   uint64 `json:"bytes_received"`
	ValidFrames     uint64 `json:"valid_frames"`
	InvalidFrames   uint64 `json:"invalid_frames"`

	AudioFrames   uint64 `json:"audio_frames"`
	TextFrames    uint64 `json:"text_frames"`
	ControlFrames uint64 `json:"control_frames"`
	DataFrames    uint64 `json:"data_frames"`
	UnknownFrames uint64 `json:"unknown_frames"`

	FramesDecoded   uint64 `json:"frames_decoded"`
	FramesPlayed    uint64 `json:"frames_played"`
	DecodeErrors    uint64 `json:"decode_errors"`
	BufferEvictions uint64 `json:"buffer_evictions"`
	Underruns       uint64 `json:"underruns"`

	PTTActive     bool      `json:"ptt_active"`
	LastAudioTime time.Time `json:"last_audio_time,omitempty"`
}

// New creates an empty ReceiverState
func New() *ReceiverState {
	return &ReceiverState{}
}

// SetRunning records whether the receive loop is active
func (s *ReceiverState) SetRunning(running bool) {
	s.running.Store(running)
}

// Running reports whether the receive loop is active
func (s *ReceiverState) Running() bool {
	return s.running.Load()
}

// RecordPacket counts one received datagram of n bytes
func (s *ReceiverState) RecordPacket(n int) {
	s.packetsReceived.Add(1)
	s.bytesReceived.Add(uint64(n))
}

// RecordInvalidFrame counts a datagram that failed to parse
func (s *ReceiverState) RecordInvalidFrame() {
	s.invalidFrames.Add(1)
}

// RecordFrame counts one valid frame and its type-specific counter
func (s *ReceiverState) RecordFrame(t protocol.FrameType) {
	s.validFrames.Add(1)

	switch t {
	case protocol.FrameTypeAudio:
		s.audioFrames.Add(1)
	case protocol.FrameTypeText:
		s.textFrames.Add(1)
	case protocol.FrameTypeControl:
		s.controlFrames.Add(1)
	case protocol.FrameTypeData:
		s.dataFrames.Add(1)
	default:
		s.unknownFrames.Add(1)
	}
}

func (s *ReceiverState) RecordDecoded()     { s.framesDecoded.Add(1) }
func (s *ReceiverState) RecordDecodeError() { s.decodeErrors.Add(1) }
func (s *ReceiverState) RecordEviction()    { s.bufferEvictions.Add(1) }
func (s *ReceiverState) RecordPlayed()      { s.framesPlayed.Add(1) }
func (s *ReceiverState) RecordUnderrun()    { s.underruns.Add(1) }

// SetPTT sets the push-to-talk flag and reports whether it changed
func (s *ReceiverState) SetPTT(active bool) bool {
	return s.pttActive.Swap(active) != active
}

// PTTActive reports the push-to-talk flag
func (s *ReceiverState) PTTActive() bool {
	return s.pttActive.Load()
}

// MarkAudio records the arrival time of an audio frame
func (s *ReceiverState) MarkAudio(t time.Time) {
	s.lastAudio.Store(t.UnixNano())
}

// LastAudio returns the arrival time of the most recent audio frame, or the
// zero time if none has arrived
func (s *ReceiverState) LastAudio() time.Time {
	ns := s.lastAudio.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Snapshot copies every counter. Counters are read individually, so a
// snapshot taken under load may mix values from adjacent instants.
func (s *ReceiverState) Snapshot() Snapshot {
	return Snapshot{
		Running:         s.running.Load(),
		PacketsReceived: s.packetsReceived.Load(),
		BytesReceived:   s.bytesReceived.Load(),
		ValidFrames:     s.validFrames.Load(),
		InvalidFrames:   s.invalidFrames.Load(),
		AudioFrames:     s.audioFrames.Load(),
		TextFrames:      s.textFrames.Load(),
		ControlFrames:   s.controlFrames.Load(),
		DataFrames:      s.dataFrames.Load(),
		UnknownFrames:   s.unknownFrames.Load(),
		FramesDecoded:   s.framesDecoded.Load(),
		FramesPlayed:    s.framesPlayed.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		BufferEvictions: s.bufferEvictions.Load(),
		Underruns:       s.underruns.Load(),
		PTTActive:       s.pttActive.Load(),
		LastAudioTime:   s.LastAudio(),
	}
}

// SinceLastAudio returns the time elapsed since the last audio frame and
// false if no audio has been received
func (s Snapshot) SinceLastAudio(now time.Time) (time.Duration, bool) {
	if s.LastAudioTime.IsZero() {
		return 0, false
	}
	return now.Sub(s.LastAudioTime), true
}
