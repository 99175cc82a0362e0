package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/Bataide/cip-enip-driver/internal/cip/codec"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

func decodeSegment(t *testing.T, wire []byte) Segment {
	t.Helper()
	seg, err := PickSegment(wire[0])
	if err != nil {
		t.Fatalf("PickSegment(0x%02X): %v", wire[0], err)
	}
	n, err := codec.Decode(seg, wire, 0)
	if err != nil {
		t.Fatalf("Decode(% X): %v", wire, err)
	}
	if n != len(wire) {
		t.Fatalf("Decode consumed %d of %d bytes", n, len(wire))
	}
	return seg
}

func mustPort(t *testing.T, port uint16, link []byte) *PortSegment {
	t.Helper()
	seg, err := NewPortSegment(port, link)
	if err != nil {
		t.Fatalf("NewPortSegment: %v", err)
	}
	return seg
}

func mustSymbol(t *testing.T, name string) *SymbolSegment {
	t.Helper()
	seg, err := NewSymbolSegment(name)
	if err != nil {
		t.Fatalf("NewSymbolSegment: %v", err)
	}
	return seg
}

func TestSegmentEncoding(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		wire []byte
	}{
		{"symbol even", mustSymbol(t, "TAG1"), []byte{0x91, 0x04, 'T', 'A', 'G', '1'}},
		{"symbol odd", mustSymbol(t, "TAG"), []byte{0x91, 0x03, 'T', 'A', 'G', 0x00}},
		{"logical class", NewLogicalSegment(LogicalClassID, 0x06), []byte{0x20, 0x06}},
		{"logical instance", NewLogicalSegment(LogicalInstanceID, 0x01), []byte{0x24, 0x01}},
		{"logical attribute", NewLogicalSegment(LogicalAttributeID, 0x03), []byte{0x30, 0x03}},
		{"port plain", &PortSegment{Lead: 0x01}, []byte{0x01, 0x00}},
		{"port link size", mustPort(t, 2, []byte{0x0A, 0x0B, 0x0C}), []byte{0x12, 0x03, 0x0A, 0x0B, 0x0C, 0x00}},
		{"port extended", mustPort(t, 0x1234, nil), []byte{0x0F, 0x34, 0x12, 0x00}},
		{"port extended with link", mustPort(t, 0x0100, []byte{0x01, 0x02}), []byte{0x1F, 0x02, 0x00, 0x01, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Encode(tt.seg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.wire) {
				t.Fatalf("Encode = % X, want % X", got, tt.wire)
			}
			decoded := decodeSegment(t, got)
			if !reflect.DeepEqual(decoded, tt.seg) {
				t.Fatalf("round trip = %+v, want %+v", decoded, tt.seg)
			}
		})
	}
}

func TestSymbolSegmentSize(t *testing.T) {
	if seg := mustSymbol(t, "TAG1"); seg.DataSize != 4 {
		t.Errorf("TAG1 DataSize = %d, want 4", seg.DataSize)
	}
	if seg := mustSymbol(t, "TAG"); seg.DataSize != 3 || seg.Name() != "TAG" {
		t.Errorf("TAG DataSize = %d name = %q", seg.DataSize, seg.Name())
	}
	if _, err := NewSymbolSegment(""); !errors.Is(err, cipErrors.ErrSchema) {
		t.Errorf("empty symbol error = %v", err)
	}
}

func TestPortAccessors(t *testing.T) {
	if p := mustPort(t, 1, nil); p.Port() != 1 || p.LinkAddressSize != nil {
		t.Errorf("port 1 = %+v", p)
	}
	if p := mustPort(t, 300, []byte{5}); p.Port() != 300 || *p.LinkAddressSize != 1 {
		t.Errorf("port 300 = %+v", p)
	}
}

func TestSegmentRejections(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want error
	}{
		{"logical 16-bit", []byte{0x21, 0x00, 0x06}, cipErrors.ErrUnknownVariant},
		{"logical 32-bit", []byte{0x26, 0x01, 0x00, 0x00, 0x00}, cipErrors.ErrUnknownVariant},
		{"simple data segment", []byte{0x80, 0x01, 0x00, 0x00}, cipErrors.ErrUnknownVariant},
		{"symbol truncated", []byte{0x91, 0x05, 'A', 'B'}, cipErrors.ErrSchema},
		{"port link truncated", []byte{0x12, 0x04, 0x01}, cipErrors.ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, err := PickSegment(tt.wire[0])
			if err == nil {
				_, err = codec.Decode(seg, tt.wire, 0)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPickSegmentUnsupportedTypes(t *testing.T) {
	for _, lead := range []byte{0x40, 0x60, 0xA0, 0xC0, 0xE0} {
		if _, err := PickSegment(lead); !errors.Is(err, cipErrors.ErrUnknownVariant) {
			t.Errorf("PickSegment(0x%02X) error = %v", lead, err)
		}
	}
}

func TestEncodeRejectsWideLogicalFormat(t *testing.T) {
	seg := &LogicalSegment{Lead: 0x25, Value: 1}
	if _, err := codec.Encode(seg); !errors.Is(err, cipErrors.ErrUnknownVariant) {
		t.Fatalf("Encode error = %v", err)
	}
}

func TestSymbolPath(t *testing.T) {
	path, err := SymbolPath("Program.Counter")
	if err != nil {
		t.Fatalf("SymbolPath: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("segments = %d, want 2", len(path))
	}
	words, err := PathWords(path)
	if err != nil {
		t.Fatalf("PathWords: %v", err)
	}
	// 0x91 0x07 "Program" pad, 0x91 0x07 "Counter" pad
	if words != 10 {
		t.Fatalf("PathWords = %d, want 10", words)
	}
	name, err := SymbolName(path)
	if err != nil || name != "Program.Counter" {
		t.Fatalf("SymbolName = %q, %v", name, err)
	}
	if _, err := SymbolName(ConnectionManagerPath()); !errors.Is(err, cipErrors.ErrSchema) {
		t.Fatalf("SymbolName without symbols error = %v", err)
	}
}

func TestRequestPathBoundary(t *testing.T) {
	req, err := NewRequest(ServiceUnconnectedSend, ConnectionManagerPath()...)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	wire, err := codec.Encode(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x52, 0x02, 0x20, 0x06, 0x24, 0x01}
	if !bytes.Equal(wire, want) {
		t.Fatalf("Encode = % X, want % X", wire, want)
	}

	var decoded Request
	if _, err := codec.Decode(&decoded, wire, 0); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(&decoded, req) {
		t.Fatalf("round trip = %+v, want %+v", decoded, *req)
	}

	overshoot := []byte{0x4D, 0x01, 0x91, 0x03, 'T', 'A', 'G', 0x00}
	if _, err := codec.Decode(&Request{}, overshoot, 0); !errors.Is(err, cipErrors.ErrSchema) {
		t.Fatalf("overshoot error = %v", err)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	reply := &Reply{
		Service:              ServiceWriteTagReply,
		GeneralStatus:        StatusPathSegmentError,
		AdditionalStatusSize: 2,
		AdditionalStatus:     []uint16{0x0102, 0x0304},
	}
	wire, err := codec.Encode(reply)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0xCD, 0x00, 0x04, 0x02, 0x02, 0x01, 0x04, 0x03}
	if !bytes.Equal(wire, want) {
		t.Fatalf("Encode = % X, want % X", wire, want)
	}
	var decoded Reply
	if _, err := codec.Decode(&decoded, wire, 0); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(&decoded, reply) {
		t.Fatalf("round trip = %+v", decoded)
	}
}
