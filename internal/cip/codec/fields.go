package codec

import (
	"encoding/binary"

	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// Unsigned is the set of integer kinds a scalar field can carry. Named
// enum types over these work directly.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

type uintField[T Unsigned] struct {
	p     *T
	width int
}

// U8 is a one-byte field.
func U8[T ~uint8](p *T) Field { return uintField[T]{p: p, width: 1} }

// U16 is a little-endian two-byte field.
func U16[T ~uint16](p *T) Field { return uintField[T]{p: p, width: 2} }

// U32 is a little-endian four-byte field.
func U32[T ~uint32](p *T) Field { return uintField[T]{p: p, width: 4} }

// U64 is a little-endian eight-byte field.
func U64[T ~uint64](p *T) Field { return uintField[T]{p: p, width: 8} }

func (f uintField[T]) decode(d *decoder) error {
	b, err := d.take(f.width, "integer")
	if err != nil {
		return err
	}
	switch f.width {
	case 1:
		*f.p = T(b[0])
	case 2:
		*f.p = T(binary.LittleEndian.Uint16(b))
	case 4:
		*f.p = T(binary.LittleEndian.Uint32(b))
	default:
		*f.p = T(binary.LittleEndian.Uint64(b))
	}
	return nil
}

func (f uintField[T]) encode(e *encoder) error {
	v := uint64(*f.p)
	switch f.width {
	case 1:
		e.buf = append(e.buf, byte(v))
	case 2:
		e.buf = AppendUint16(e.buf, uint16(v))
	case 4:
		e.buf = AppendUint32(e.buf, uint32(v))
	default:
		e.buf = AppendUint64(e.buf, v)
	}
	return nil
}

type fixedField struct {
	p []byte
}

// Fixed is a byte array whose length never changes, such as the
// sender context of an encapsulation header.
func Fixed(p []byte) Field { return fixedField{p: p} }

func (f fixedField) decode(d *decoder) error {
	b, err := d.take(len(f.p), "fixed array")
	if err != nil {
		return err
	}
	copy(f.p, b)
	return nil
}

func (f fixedField) encode(e *encoder) error {
	e.buf = append(e.buf, f.p...)
	return nil
}

type bytesField struct {
	p *[]byte
	n func() int
}

// Bytes is a byte array whose length comes from n, usually a sibling field.
func Bytes(p *[]byte, n func() int) Field { return bytesField{p: p, n: n} }

func (f bytesField) decode(d *decoder) error {
	count := f.n()
	b, err := d.take(count, "byte array")
	if err != nil {
		return err
	}
	if count == 0 {
		*f.p = nil
		return nil
	}
	*f.p = append([]byte(nil), b...)
	return nil
}

func (f bytesField) encode(e *encoder) error {
	if want := f.n(); len(*f.p) != want {
		return cipErrors.Schema("encode", "byte array declares %d bytes, holds %d", want, len(*f.p))
	}
	e.buf = append(e.buf, *f.p...)
	return nil
}

type uint16sField struct {
	p *[]uint16
	n func() int
}

// Uint16s is an array of little-endian words whose count comes from n.
func Uint16s(p *[]uint16, n func() int) Field { return uint16sField{p: p, n: n} }

func (f uint16sField) decode(d *decoder) error {
	count := f.n()
	b, err := d.take(count*2, "word array")
	if err != nil {
		return err
	}
	if count == 0 {
		*f.p = nil
		return nil
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	*f.p = out
	return nil
}

func (f uint16sField) encode(e *encoder) error {
	if want := f.n(); len(*f.p) != want {
		return cipErrors.Schema("encode", "word array declares %d entries, holds %d", want, len(*f.p))
	}
	for _, v := range *f.p {
		e.buf = AppendUint16(e.buf, v)
	}
	return nil
}

type nestedField struct {
	r Record
}

// Nested embeds a composite record.
func Nested(r Record) Field { return nestedField{r: r} }

func (f nestedField) decode(d *decoder) error { return d.record(f.r) }
func (f nestedField) encode(e *encoder) error { return e.record(f.r) }

type recordsField[T Record] struct {
	p    *[]T
	n    func() int
	newT func() T
}

// Records is an array of records whose count comes from n.
func Records[T Record](p *[]T, n func() int, newT func() T) Field {
	return recordsField[T]{p: p, n: n, newT: newT}
}

func (f recordsField[T]) decode(d *decoder) error {
	count := f.n()
	var out []T
	for i := 0; i < count; i++ {
		v := f.newT()
		if err := d.record(v); err != nil {
			return err
		}
		out = append(out, v)
	}
	*f.p = out
	return nil
}

func (f recordsField[T]) encode(e *encoder) error {
	if want := f.n(); len(*f.p) != want {
		return cipErrors.Schema("encode", "record array declares %d entries, holds %d", want, len(*f.p))
	}
	for _, v := range *f.p {
		if err := e.record(v); err != nil {
			return err
		}
	}
	return nil
}

// Picker selects the concrete record for a discriminator byte.
type Picker[T Record] func(lead byte) (T, error)

type variantField[T Record] struct {
	p    *T
	pick Picker[T]
}

// Variant is a polymorphic record. The leading byte is inspected before the
// chosen variant decodes its own schema, which includes that byte.
func Variant[T Record](p *T, pick Picker[T]) Field {
	return variantField[T]{p: p, pick: pick}
}

func (f variantField[T]) decode(d *decoder) error {
	lead, err := d.peek("variant")
	if err != nil {
		return err
	}
	v, err := f.pick(lead)
	if err != nil {
		return err
	}
	if err := d.record(v); err != nil {
		return err
	}
	*f.p = v
	return nil
}

func (f variantField[T]) encode(e *encoder) error {
	if any(*f.p) == nil {
		return cipErrors.Schema("encode", "variant field is empty")
	}
	return e.record(*f.p)
}

type listUntilField[T Record] struct {
	p     *[]T
	limit func() int
	pick  Picker[T]
}

// ListUntil is a list of polymorphic records that ends once the bytes it has
// consumed reach limit. Running past limit is a schema error.
func ListUntil[T Record](p *[]T, limit func() int, pick Picker[T]) Field {
	return listUntilField[T]{p: p, limit: limit, pick: pick}
}

func (f listUntilField[T]) decode(d *decoder) error {
	start := d.off
	limit := f.limit()
	var out []T
	for d.off-start < limit {
		lead, err := d.peek("list element")
		if err != nil {
			return err
		}
		v, err := f.pick(lead)
		if err != nil {
			return err
		}
		if err := d.record(v); err != nil {
			return err
		}
		out = append(out, v)
	}
	if used := d.off - start; used != limit {
		return cipErrors.Schema("decode", "list overran its declared %d bytes by %d", limit, used-limit)
	}
	*f.p = out
	return nil
}

func (f listUntilField[T]) encode(e *encoder) error {
	start := len(e.buf)
	for _, v := range *f.p {
		if err := e.record(v); err != nil {
			return err
		}
	}
	if used, limit := len(e.buf)-start, f.limit(); used != limit {
		return cipErrors.Schema("encode", "list declares %d bytes, encodes to %d", limit, used)
	}
	return nil
}

type optU8Field struct {
	p       **uint8
	present func() bool
}

// OptU8 is a byte that exists on the wire only when present reports true.
func OptU8(p **uint8, present func() bool) Field { return optU8Field{p: p, present: present} }

func (f optU8Field) decode(d *decoder) error {
	if !f.present() {
		*f.p = nil
		return nil
	}
	b, err := d.take(1, "optional byte")
	if err != nil {
		return err
	}
	v := b[0]
	*f.p = &v
	return nil
}

func (f optU8Field) encode(e *encoder) error {
	if err := checkPresence(*f.p != nil, f.present()); err != nil {
		return err
	}
	if *f.p != nil {
		e.buf = append(e.buf, **f.p)
	}
	return nil
}

type optU16Field struct {
	p       **uint16
	present func() bool
}

// OptU16 is a little-endian word that exists only when present reports true.
func OptU16(p **uint16, present func() bool) Field { return optU16Field{p: p, present: present} }

func (f optU16Field) decode(d *decoder) error {
	if !f.present() {
		*f.p = nil
		return nil
	}
	b, err := d.take(2, "optional word")
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint16(b)
	*f.p = &v
	return nil
}

func (f optU16Field) encode(e *encoder) error {
	if err := checkPresence(*f.p != nil, f.present()); err != nil {
		return err
	}
	if *f.p != nil {
		e.buf = AppendUint16(e.buf, **f.p)
	}
	return nil
}

func checkPresence(set, flagged bool) error {
	switch {
	case flagged && !set:
		return cipErrors.Schema("encode", "optional field flagged present but not set")
	case set && !flagged:
		return cipErrors.Schema("encode", "optional field set but its presence flag is clear")
	}
	return nil
}

type padField struct {
	present func(pos int) bool
}

// Pad is a zero byte that exists when present reports true for the current
// offset within the enclosing record. Its value is not retained.
func Pad(present func(pos int) bool) Field { return padField{present: present} }

// OddPad is a Pad that aligns the enclosing record to an even length.
func OddPad() Field { return Pad(func(pos int) bool { return pos%2 != 0 }) }

func (f padField) decode(d *decoder) error {
	if !f.present(d.pos()) {
		return nil
	}
	_, err := d.take(1, "pad")
	return err
}

func (f padField) encode(e *encoder) error {
	if f.present(e.pos()) {
		e.buf = append(e.buf, 0)
	}
	return nil
}

type checkField struct {
	fn func() error
}

// Check runs fn at its position in both directions without touching the wire.
func Check(fn func() error) Field { return checkField{fn: fn} }

func (f checkField) decode(*decoder) error { return f.fn() }
func (f checkField) encode(*encoder) error { return f.fn() }
