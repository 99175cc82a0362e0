package protocol

import (
	"bytes"
	"errors"
	"testing"

	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

func TestEncodeDecodeValues(t *testing.T) {
	tests := []struct {
		name   string
		dt     DataType
		values []string
		want   []byte
		back   []interface{}
	}{
		{"sint", TypeSINT, []string{"-1", "5"}, []byte{0xFF, 0x05}, []interface{}{int8(-1), int8(5)}},
		{"int", TypeINT, []string{"-2"}, []byte{0xFE, 0xFF}, []interface{}{int16(-2)}},
		{"dint", TypeDINT, []string{"1", "0x100"}, []byte{1, 0, 0, 0, 0, 1, 0, 0}, []interface{}{int32(1), int32(256)}},
		{"udint", TypeUDINT, []string{"4294967295"}, []byte{0xFF, 0xFF, 0xFF, 0xFF}, []interface{}{uint32(0xFFFFFFFF)}},
		{"real", TypeREAL, []string{"1.0"}, []byte{0, 0, 0x80, 0x3F}, []interface{}{float32(1)}},
		{"lint", TypeLINT, []string{"-3"}, []byte{0xFD, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, []interface{}{int64(-3)}},
		{"string", TypeSTRING, []string{"ab", "c"}, []byte("ab,c"), []interface{}{"ab,c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeValues(tt.dt, tt.values)
			if err != nil {
				t.Fatalf("EncodeValues: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("EncodeValues = % X, want % X", got, tt.want)
			}
			back, err := DecodeValues(tt.dt, got)
			if err != nil {
				t.Fatalf("DecodeValues: %v", err)
			}
			if len(back) != len(tt.back) {
				t.Fatalf("DecodeValues = %v, want %v", back, tt.back)
			}
			for i := range back {
				if back[i] != tt.back[i] {
					t.Errorf("value %d = %#v, want %#v", i, back[i], tt.back[i])
				}
			}
		})
	}
}

func TestEncodeValuesErrors(t *testing.T) {
	if _, err := EncodeValues(TypeSINT, []string{"200"}); !errors.Is(err, cipErrors.ErrSchema) {
		t.Errorf("out of range SINT: %v", err)
	}
	if _, err := EncodeValues(TypeDINT, []string{"abc"}); !errors.Is(err, cipErrors.ErrSchema) {
		t.Errorf("non-numeric DINT: %v", err)
	}
	if _, err := EncodeValues(TypeLREAL, []string{"1"}); !errors.Is(err, cipErrors.ErrUnknownVariant) {
		t.Errorf("unsized type: %v", err)
	}
}

func TestDecodeValuesPartialElement(t *testing.T) {
	if _, err := DecodeValues(TypeDINT, []byte{1, 2, 3}); !errors.Is(err, cipErrors.ErrSchema) {
		t.Fatalf("err = %v, want schema error", err)
	}
}
