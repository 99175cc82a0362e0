package enip

import (
	"testing"
	"time"
)

func TestReassemblerHeaderThenBody(t *testing.T) {
	wire, err := EncodeFrame(Header{Command: CommandSendRRData, SessionHandle: 1}, []byte{0xAB, 0xCD})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	now := time.Now()
	var r Reassembler

	if frames := r.Feed(wire[:HeaderSize], now); len(frames) != 0 {
		t.Fatalf("got %d frames after header only", len(frames))
	}
	if r.Pending() != HeaderSize {
		t.Fatalf("pending = %d", r.Pending())
	}

	frames := r.Feed(wire[HeaderSize:], now.Add(10*time.Millisecond))
	if len(frames) != 1 {
		t.Fatalf("got %d frames after body", len(frames))
	}
	if frames[0].Header.Command != CommandSendRRData || string(frames[0].Body) != "\xAB\xCD" {
		t.Fatalf("frame = %+v", frames[0])
	}
	if r.Pending() != 0 || r.buf != nil {
		t.Fatalf("buffer not released: %d bytes", r.Pending())
	}
	if !r.WaitingSince().IsZero() {
		t.Fatal("waiting timestamp not cleared")
	}
}

func TestReassemblerSplitAndCoalesce(t *testing.T) {
	frame1, err := BuildListServices(ContextFromUint64(1))
	if err != nil {
		t.Fatalf("BuildListServices: %v", err)
	}
	frame2, err := BuildRegisterSession(ContextFromUint64(2))
	if err != nil {
		t.Fatalf("BuildRegisterSession: %v", err)
	}
	frame3, err := BuildNOP(0)
	if err != nil {
		t.Fatalf("BuildNOP: %v", err)
	}
	now := time.Now()
	var r Reassembler

	if frames := r.Feed(frame1[:10], now); len(frames) != 0 {
		t.Fatalf("expected no frames yet")
	}

	chunk := append(append(append([]byte{}, frame1[10:]...), frame2...), frame3[:5]...)
	frames := r.Feed(chunk, now)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Header.Command != CommandListServices {
		t.Fatalf("expected ListServices first, got %s", frames[0].Header.Command)
	}
	if frames[1].Header.Command != CommandRegisterSession || len(frames[1].Body) != 4 {
		t.Fatalf("expected RegisterSession second, got %+v", frames[1])
	}
	if r.Pending() != 5 {
		t.Fatalf("pending = %d, want 5", r.Pending())
	}

	frames = r.Feed(frame3[5:], now)
	if len(frames) != 1 || frames[0].Header.Command != CommandNOP {
		t.Fatalf("expected trailing NOP, got %+v", frames)
	}
}

func TestReassemblerStall(t *testing.T) {
	wire, err := BuildRegisterSession(ContextFromUint64(3))
	if err != nil {
		t.Fatalf("BuildRegisterSession: %v", err)
	}
	start := time.Now()
	var r Reassembler

	r.Feed(wire[:HeaderSize+1], start)
	if r.Stalled(start.Add(time.Second), 2*time.Second) {
		t.Fatal("stalled too early")
	}
	// More bytes without a complete frame keep the original wait start.
	r.Feed(wire[HeaderSize+1:HeaderSize+2], start.Add(time.Second))
	if !r.Stalled(start.Add(2500*time.Millisecond), 2*time.Second) {
		t.Fatal("expected stall after 2.5s")
	}

	r.Reset()
	if r.Stalled(start.Add(time.Hour), 2*time.Second) {
		t.Fatal("empty reassembler cannot stall")
	}
}

func TestReassemblerFramesAreCopies(t *testing.T) {
	wire, err := EncodeFrame(Header{Command: CommandSendRRData}, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	var r Reassembler
	frames := r.Feed(wire, time.Now())
	wire[HeaderSize] = 0xFF
	if frames[0].Body[0] != 1 {
		t.Fatal("frame body aliases the input")
	}
}
