package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

type leaf struct {
	Tag   uint8
	Value uint8
}

func (l *leaf) Fields() Schema { return Schema{U8(&l.Tag), U8(&l.Value)} }

type wide struct {
	Tag   uint8
	Value uint16
}

func (w *wide) Fields() Schema { return Schema{U8(&w.Tag), U16(&w.Value)} }

func pickItem(lead byte) (Record, error) {
	switch lead >> 4 {
	case 1:
		return &leaf{}, nil
	case 2:
		return &wide{}, nil
	}
	return nil, cipErrors.UnknownVariant("item", "lead byte 0x%02X", lead)
}

type container struct {
	Flags uint8
	Extra *uint16
	Count uint8
	Words []uint16
	Size  uint8
	Items []Record
	Tail  []byte
}

func (c *container) Fields() Schema {
	return Schema{
		U8(&c.Flags),
		OptU16(&c.Extra, func() bool { return c.Flags&0x80 != 0 }),
		U8(&c.Count),
		Uint16s(&c.Words, func() int { return int(c.Count) }),
		U8(&c.Size),
		ListUntil(&c.Items, func() int { return int(c.Size) }, pickItem),
		Bytes(&c.Tail, func() int { return int(c.Flags & 0x0F) }),
		OddPad(),
	}
}

func u16(v uint16) *uint16 { return &v }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value *container
		wire  []byte
	}{
		{
			name: "all fields",
			value: &container{
				Flags: 0x82,
				Extra: u16(0x1234),
				Count: 1,
				Words: []uint16{0xBEEF},
				Size:  5,
				Items: []Record{&leaf{Tag: 0x10, Value: 7}, &wide{Tag: 0x20, Value: 0x0102}},
				Tail:  []byte{0xAA, 0xBB},
			},
			wire: []byte{0x82, 0x34, 0x12, 0x01, 0xEF, 0xBE, 0x05, 0x10, 0x07, 0x20, 0x02, 0x01, 0xAA, 0xBB},
		},
		{
			name:  "odd length gets pad",
			value: &container{Flags: 0x02, Tail: []byte{0xAA, 0xBB}},
			wire:  []byte{0x02, 0x00, 0x00, 0xAA, 0xBB, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.wire) {
				t.Fatalf("Encode = % X, want % X", got, tt.wire)
			}

			decoded := &container{}
			n, err := Decode(decoded, got, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if n != len(got) {
				t.Fatalf("Decode consumed %d bytes, want %d", n, len(got))
			}
			if !reflect.DeepEqual(decoded, tt.value) {
				t.Fatalf("Decode = %+v, want %+v", decoded, tt.value)
			}
		})
	}
}

func TestDecodeAtOffset(t *testing.T) {
	wire := append([]byte{0xFF, 0xFF, 0xFF}, 0x02, 0x00, 0x00, 0xAA, 0xBB, 0x00, 0x99)
	var c container
	n, err := Decode(&c, wire, 3)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != 6 {
		t.Fatalf("consumed %d, want 6", n)
	}
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want error
	}{
		{"short buffer", []byte{0x82, 0x34, 0x12, 0x01, 0xEF}, cipErrors.ErrSchema},
		{"list overshoot", []byte{0x00, 0x00, 0x04, 0x10, 0x07, 0x20, 0x02, 0x01}, cipErrors.ErrSchema},
		{"unknown variant", []byte{0x00, 0x00, 0x02, 0x30, 0x00}, cipErrors.ErrUnknownVariant},
		{"missing discriminator", []byte{0x00, 0x00, 0x02}, cipErrors.ErrSchema},
		{"empty", nil, cipErrors.ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(&container{}, tt.wire, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeRejectsInconsistentValues(t *testing.T) {
	tests := []struct {
		name  string
		value *container
	}{
		{"list size mismatch", &container{Size: 4, Items: []Record{&leaf{Tag: 0x10}, &wide{Tag: 0x20}}}},
		{"word count mismatch", &container{Count: 2, Words: []uint16{1}}},
		{"tail length mismatch", &container{Flags: 0x01}},
		{"flagged optional unset", &container{Flags: 0x80}},
		{"optional set without flag", &container{Extra: u16(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.value); !errors.Is(err, cipErrors.ErrSchema) {
				t.Fatalf("Encode error = %v, want schema error", err)
			}
		})
	}
}

type checked struct {
	Kind uint8
}

func (c *checked) Fields() Schema {
	return Schema{
		U8(&c.Kind),
		Check(func() error {
			if c.Kind > 3 {
				return cipErrors.UnknownVariant("checked", "kind %d", c.Kind)
			}
			return nil
		}),
	}
}

func TestCheckRunsBothWays(t *testing.T) {
	if _, err := Encode(&checked{Kind: 9}); !errors.Is(err, cipErrors.ErrUnknownVariant) {
		t.Fatalf("Encode error = %v", err)
	}
	if _, err := Decode(&checked{}, []byte{9}, 0); !errors.Is(err, cipErrors.ErrUnknownVariant) {
		t.Fatalf("Decode error = %v", err)
	}
	if n, err := Size(&checked{Kind: 2}); err != nil || n != 1 {
		t.Fatalf("Size = %d, %v", n, err)
	}
}

func TestAppendKeepsPrefix(t *testing.T) {
	out, err := Append([]byte{0xEE}, &leaf{Tag: 0x10, Value: 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !bytes.Equal(out, []byte{0xEE, 0x10, 0x01}) {
		t.Fatalf("Append = % X", out)
	}
}

type tagged struct {
	Item Record
	Big  uint64
}

func (g *tagged) Fields() Schema {
	return Schema{Variant(&g.Item, pickItem), U64(&g.Big)}
}

func TestVariantRoundTrip(t *testing.T) {
	value := &tagged{Item: &wide{Tag: 0x20, Value: 0x0102}, Big: 0x0102030405060708}
	wire := []byte{0x20, 0x02, 0x01, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}

	got, err := Encode(value)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(got, wire) {
		t.Fatalf("Encode = % X, want % X", got, wire)
	}

	var decoded tagged
	n, err := Decode(&decoded, wire, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("Decode consumed %d bytes, want %d", n, len(wire))
	}
	if !reflect.DeepEqual(&decoded, value) {
		t.Fatalf("Decode = %+v, want %+v", decoded, value)
	}

	again, err := Encode(&decoded)
	if err != nil || !bytes.Equal(again, wire) {
		t.Fatalf("re-Encode = % X, %v", again, err)
	}
}

func TestVariantFailures(t *testing.T) {
	if _, err := Encode(&tagged{}); !errors.Is(err, cipErrors.ErrSchema) {
		t.Errorf("Encode of empty variant = %v, want schema error", err)
	}

	tests := []struct {
		name string
		wire []byte
		want error
	}{
		{"unknown discriminator", []byte{0x30, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}, cipErrors.ErrUnknownVariant},
		{"no discriminator", nil, cipErrors.ErrSchema},
		{"short variant body", []byte{0x20, 0x02}, cipErrors.ErrSchema},
		{"short trailing word", []byte{0x10, 0x01, 0x08, 0x07}, cipErrors.ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(&tagged{}, tt.wire, 0); !errors.Is(err, tt.want) {
				t.Fatalf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

// flagged carries a pad byte after Mode only when Mode asks for alignment.
type flagged struct {
	Mode  uint8
	Value uint16
}

func (f *flagged) Fields() Schema {
	return Schema{
		U8(&f.Mode),
		Pad(func(pos int) bool { return pos == 1 && f.Mode&0x01 != 0 }),
		U16(&f.Value),
	}
}

func TestPadPredicate(t *testing.T) {
	tests := []struct {
		name  string
		value flagged
		wire  []byte
	}{
		{"padded", flagged{Mode: 0x01, Value: 0xBEEF}, []byte{0x01, 0x00, 0xEF, 0xBE}},
		{"packed", flagged{Mode: 0x00, Value: 0xBEEF}, []byte{0x00, 0xEF, 0xBE}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(&tt.value)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.wire) {
				t.Fatalf("Encode = % X, want % X", got, tt.wire)
			}
			if n, err := Size(&tt.value); err != nil || n != len(tt.wire) {
				t.Fatalf("Size = %d, %v", n, err)
			}

			// Decoding behind a prefix checks the predicate sees the
			// position within the record, not within the buffer.
			buf := append([]byte{0xFF}, tt.wire...)
			var decoded flagged
			n, err := Decode(&decoded, buf, 1)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if n != len(tt.wire) || decoded != tt.value {
				t.Fatalf("Decode = %+v (%d bytes), want %+v", decoded, n, tt.value)
			}
		})
	}
}
