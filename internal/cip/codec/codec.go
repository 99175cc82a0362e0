// Package codec encodes and decodes wire records from declared field schemas.
//
// A record lists its fields in wire order through Fields(). Each descriptor
// is bound to the record's own struct fields, so size, presence and
// termination rules can read sibling values that were decoded earlier in
// the same pass.
package codec

import (
	"encoding/binary"

	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// Record is a value with a declared wire layout.
type Record interface {
	Fields() Schema
}

// Schema is an ordered list of field descriptors.
type Schema []Field

// Field is a single step of a schema.
type Field interface {
	decode(d *decoder) error
	encode(e *encoder) error
}

// Decode reads r from buf starting at off and returns the number of bytes consumed.
func Decode(r Record, buf []byte, off int) (int, error) {
	if off < 0 || off > len(buf) {
		return 0, cipErrors.Schema("decode", "offset %d outside buffer of %d bytes", off, len(buf))
	}
	d := &decoder{buf: buf, off: off, base: off}
	if err := d.record(r); err != nil {
		return 0, err
	}
	return d.off - off, nil
}

// Encode returns the exact bytes Decode would consume for r.
func Encode(r Record) ([]byte, error) {
	e := &encoder{}
	if err := e.record(r); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Append encodes r onto dst.
func Append(dst []byte, r Record) ([]byte, error) {
	e := &encoder{buf: dst, base: len(dst)}
	if err := e.record(r); err != nil {
		return dst, err
	}
	return e.buf, nil
}

// Size returns the encoded length of r.
func Size(r Record) (int, error) {
	b, err := Encode(r)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

type decoder struct {
	buf  []byte
	off  int
	base int
}

// pos is the offset within the record currently being decoded.
func (d *decoder) pos() int {
	return d.off - d.base
}

func (d *decoder) take(n int, what string) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, cipErrors.Schema("decode", "%s needs %d bytes at offset %d, %d available", what, n, d.off, len(d.buf)-d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) peek(what string) (byte, error) {
	if d.off >= len(d.buf) {
		return 0, cipErrors.Schema("decode", "%s discriminator missing at offset %d", what, d.off)
	}
	return d.buf[d.off], nil
}

func (d *decoder) record(r Record) error {
	saved := d.base
	d.base = d.off
	defer func() { d.base = saved }()
	for _, f := range r.Fields() {
		if err := f.decode(d); err != nil {
			return err
		}
	}
	return nil
}

type encoder struct {
	buf  []byte
	base int
}

func (e *encoder) pos() int {
	return len(e.buf) - e.base
}

func (e *encoder) record(r Record) error {
	saved := e.base
	e.base = len(e.buf)
	defer func() { e.base = saved }()
	for _, f := range r.Fields() {
		if err := f.encode(e); err != nil {
			return err
		}
	}
	return nil
}

// AppendUint16 appends a little-endian uint16 to dst.
func AppendUint16(dst []byte, value uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, value)
}

// AppendUint32 appends a little-endian uint32 to dst.
func AppendUint32(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}

// AppendUint64 appends a little-endian uint64 to dst.
func AppendUint64(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}
