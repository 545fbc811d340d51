package server

import (
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MustBeArt/postlocutor/internal/config"
	"github.com/MustBeArt/postlocutor/internal/protocol"
	"github.com/MustBeArt/postlocutor/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingDispatcher struct {
	mu     sync.Mutex
	frames []*protocol.Frame
	from   []net.Addr
}

func (d *recordingDispatcher) Dispatch(frame *protocol.Frame, from net.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame)
	d.from = append(d.from, from)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func loopbackConfig() *config.ServerConfig {
	return &config.ServerConfig{
		UDPPort:     0,
		BindAddress: "127.0.0.1",
		BufferSize:  65536,
		ReadTimeout: 1,
	}
}

func startReceiver(t *testing.T) (*Receiver, *state.ReceiverState, *recordingDispatcher, *net.UDPConn) {
	t.Helper()

	st := state.New()
	dispatcher := &recordingDispatcher{}
	receiver := NewReceiver(loopbackConfig(), testLogger(), st, dispatcher, nil)

	if err := receiver.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { receiver.Stop() })

	sender, err := net.DialUDP("udp", nil, receiver.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP failed: %v", err)
	}
	t.Cleanup(func() { sender.Close() })

	return receiver, st, dispatcher, sender
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func encode(t *testing.T, f *protocol.Frame) []byte {
	t.Helper()
	data, err := protocol.Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func TestReceiverDispatchesInArrivalOrder(t *testing.T) {
	_, st, dispatcher, sender := startReceiver(t)

	if !st.Running() {
		t.Error("Expected receiver state to be running")
	}

	station := protocol.StationID{'W', '5', 'N', 'Y', 'V', 0}
	for seq := uint16(0); seq < 20; seq++ {
		data := encode(t, &protocol.Frame{
			StationID: station,
			Type:      protocol.FrameTypeAudio,
			Sequence:  seq,
			Payload:   []byte{byte(seq), 1, 2, 3},
		})
		if _, err := sender.Write(data); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	waitFor(t, "20 frames", func() bool { return dispatcher.count() == 20 })

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	for i, f := range dispatcher.frames {
		if f.Sequence != uint16(i) {
			t.Fatalf("Frame %d: expected sequence %d, got %d", i, i, f.Sequence)
		}
		if f.StationID != station {
			t.Errorf("Frame %d: unexpected station %s", i, f.StationID)
		}
		if f.Payload[0] != byte(i) {
			t.Errorf("Frame %d: payload aliased or corrupted: %v", i, f.Payload)
		}
	}
	if dispatcher.from[0].String() != sender.LocalAddr().String() {
		t.Errorf("Expected remote address %s, got %s", sender.LocalAddr(), dispatcher.from[0])
	}

	snap := st.Snapshot()
	if snap.PacketsReceived != 20 {
		t.Errorf("Expected 20 packets, got %d", snap.PacketsReceived)
	}
	if snap.BytesReceived != 20*(protocol.HeaderSize+4) {
		t.Errorf("Expected %d bytes, got %d", 20*(protocol.HeaderSize+4), snap.BytesReceived)
	}
}

func TestReceiverCountsInvalidDatagrams(t *testing.T) {
	_, st, dispatcher, sender := startReceiver(t)

	short := make([]byte, protocol.HeaderSize-1)
	short[0], short[1] = protocol.Magic0, protocol.Magic1
	badMagic := encode(t, &protocol.Frame{Type: protocol.FrameTypeText, Payload: []byte("hi")})
	badMagic[1] = 0x00
	truncated := encode(t, &protocol.Frame{Type: protocol.FrameTypeText, Payload: []byte("hello")})
	truncated = truncated[:len(truncated)-2]

	for _, d := range [][]byte{short, badMagic, truncated} {
		if _, err := sender.Write(d); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	waitFor(t, "3 invalid frames", func() bool { return st.Snapshot().InvalidFrames == 3 })

	snap := st.Snapshot()
	if snap.PacketsReceived != 3 {
		t.Errorf("Expected 3 packets, got %d", snap.PacketsReceived)
	}
	if snap.ValidFrames != 0 {
		t.Errorf("Expected 0 valid frames, got %d", snap.ValidFrames)
	}
	if dispatcher.count() != 0 {
		t.Errorf("Expected no dispatch, got %d frames", dispatcher.count())
	}
}

func TestReceiverSurvivesReadTimeouts(t *testing.T) {
	_, _, dispatcher, sender := startReceiver(t)

	// Idle past at least one read deadline
	time.Sleep(1200 * time.Millisecond)

	if _, err := sender.Write(encode(t, &protocol.Frame{Type: protocol.FrameTypeControl, Payload: []byte("PTT_START")})); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	waitFor(t, "frame after idle period", func() bool { return dispatcher.count() == 1 })
}

func TestReceiverStop(t *testing.T) {
	st := state.New()
	receiver := NewReceiver(loopbackConfig(), testLogger(), st, &recordingDispatcher{}, nil)

	if err := receiver.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := receiver.Start(); err == nil {
		t.Error("Expected second Start to fail")
	}

	done := make(chan struct{})
	go func() {
		receiver.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}

	if st.Running() {
		t.Error("Expected receiver state to be stopped")
	}
	if err := receiver.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}

func TestReceiverBindFailure(t *testing.T) {
	cfg := loopbackConfig()
	cfg.BindAddress = "203.0.113.254" // not a local address

	receiver := NewReceiver(cfg, testLogger(), state.New(), &recordingDispatcher{}, nil)
	if err := receiver.Start(); err == nil {
		receiver.Stop()
		t.Fatal("Expected bind to a non-local address to fail")
	}
	if receiver.Addr() != nil {
		t.Error("Expected no bound address after failure")
	}
	receiver.Stop()
}

func TestReceiverRebindAfterStop(t *testing.T) {
	receiver := NewReceiver(loopbackConfig(), testLogger(), state.New(), &recordingDispatcher{}, nil)
	if err := receiver.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := receiver.Addr().(*net.UDPAddr)
	receiver.Stop()

	cfg := loopbackConfig()
	cfg.UDPPort = addr.Port
	again := NewReceiver(cfg, testLogger(), state.New(), &recordingDispatcher{}, nil)
	if err := again.Start(); err != nil {
		t.Fatalf("Expected immediate rebind on port %d, got: %v", addr.Port, err)
	}
	again.Stop()
}
