package enip

import (
	"encoding/binary"
	"time"
)

// Reassembler splits a TCP byte stream into encapsulation frames. It is
// owned by the goroutine reading the connection and is not safe for
// concurrent use.
type Reassembler struct {
	buf          []byte
	waitingSince time.Time
}

// Feed appends chunk and returns every frame now complete, in arrival order.
// Frame bodies are copies and stay valid after later calls.
func (r *Reassembler) Feed(chunk []byte, now time.Time) []Frame {
	r.buf = append(r.buf, chunk...)

	var frames []Frame
	offset := 0
	for {
		rest := r.buf[offset:]
		if len(rest) < HeaderSize {
			break
		}
		length := int(binary.LittleEndian.Uint16(rest[2:4]))
		if len(rest) < HeaderSize+length {
			break
		}
		h, err := DecodeHeader(rest[:HeaderSize])
		if err != nil {
			break
		}
		var body []byte
		if length > 0 {
			body = append([]byte(nil), rest[HeaderSize:HeaderSize+length]...)
		}
		frames = append(frames, Frame{Header: h, Body: body})
		offset += HeaderSize + length
	}

	switch {
	case offset == len(r.buf):
		r.buf = nil
		r.waitingSince = time.Time{}
	case offset > 0:
		remaining := make([]byte, len(r.buf)-offset)
		copy(remaining, r.buf[offset:])
		r.buf = remaining
		r.waitingSince = now
	case r.waitingSince.IsZero():
		r.waitingSince = now
	}
	return frames
}

// Pending returns the number of buffered bytes of an incomplete frame.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// WaitingSince returns when the current partial frame started waiting, or
// the zero time when nothing is buffered.
func (r *Reassembler) WaitingSince() time.Time {
	return r.waitingSince
}

// Stalled reports whether a partial frame has waited longer than window.
func (r *Reassembler) Stalled(now time.Time, window time.Duration) bool {
	if len(r.buf) == 0 || r.waitingSince.IsZero() {
		return false
	}
	return now.Sub(r.waitingSince) > window
}

// Reset drops any buffered bytes.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.waitingSince = time.Time{}
}
