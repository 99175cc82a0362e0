package protocol

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// DecodeValues converts little-endian element bytes of dt to Go values.
// STRING data decodes to a single string.
func DecodeValues(dt DataType, data []byte) ([]interface{}, error) {
	if dt == TypeSTRING {
		return []interface{}{string(data)}, nil
	}
	size, ok := dt.Size()
	if !ok {
		return nil, cipErrors.UnknownVariant("decode values", "data type %s has no fixed size", dt)
	}
	if len(data)%size != 0 {
		return nil, cipErrors.Schema("decode values", "%d bytes is not a whole number of %s elements", len(data), dt)
	}

	out := make([]interface{}, 0, len(data)/size)
	for off := 0; off < len(data); off += size {
		b := data[off : off+size]
		switch dt {
		case TypeSINT:
			out = append(out, int8(b[0]))
		case TypeUSINT, TypeBYTE:
			out = append(out, b[0])
		case TypeINT:
			out = append(out, int16(binary.LittleEndian.Uint16(b)))
		case TypeUINT:
			out = append(out, binary.LittleEndian.Uint16(b))
		case TypeDINT:
			out = append(out, int32(binary.LittleEndian.Uint32(b)))
		case TypeUDINT:
			out = append(out, binary.LittleEndian.Uint32(b))
		case TypeREAL:
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case TypeLINT:
			out = append(out, int64(binary.LittleEndian.Uint64(b)))
		case TypeULINT:
			out = append(out, binary.LittleEndian.Uint64(b))
		}
	}
	return out, nil
}

// EncodeValues parses textual values as elements of dt. STRING takes the
// values joined by commas as its text.
func EncodeValues(dt DataType, values []string) ([]byte, error) {
	if dt == TypeSTRING {
		return []byte(strings.Join(values, ",")), nil
	}
	size, ok := dt.Size()
	if !ok {
		return nil, cipErrors.UnknownVariant("encode values", "data type %s has no fixed size", dt)
	}

	out := make([]byte, 0, size*len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		var err error
		switch dt {
		case TypeSINT, TypeINT, TypeDINT, TypeLINT:
			var n int64
			if n, err = strconv.ParseInt(v, 0, size*8); err == nil {
				out = binary.LittleEndian.AppendUint64(out, uint64(n))[:len(out)+size]
			}
		case TypeUSINT, TypeBYTE, TypeUINT, TypeUDINT, TypeULINT:
			var n uint64
			if n, err = strconv.ParseUint(v, 0, size*8); err == nil {
				out = binary.LittleEndian.AppendUint64(out, n)[:len(out)+size]
			}
		case TypeREAL:
			var f float64
			if f, err = strconv.ParseFloat(v, 32); err == nil {
				out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(f)))
			}
		}
		if err != nil {
			return nil, cipErrors.Schema("encode values", "%q is not a valid %s: %v", v, dt, err)
		}
	}
	return out, nil
}
