package protocol

// CIP path segments: logical, ANSI extended symbol, and port.

import (
	"strings"

	"github.com/Bataide/cip-enip-driver/internal/cip/codec"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// SegmentType is held in the top three bits of a segment's leading byte.
type SegmentType uint8

const (
	SegmentPort SegmentType = iota
	SegmentLogical
	SegmentNetwork
	SegmentSymbolic
	SegmentData
	SegmentDataTypeConstructed
	SegmentDataTypeElementary
	SegmentReserved
)

// LogicalType is bits 2-4 of a logical segment's leading byte.
type LogicalType uint8

const (
	LogicalClassID LogicalType = iota
	LogicalInstanceID
	LogicalMemberID
	LogicalConnectionPoint
	LogicalAttributeID
	LogicalSpecial
	LogicalServiceID
)

// LogicalFormat is the low two bits of a logical segment's leading byte.
type LogicalFormat uint8

const (
	Logical8Bit LogicalFormat = iota
	Logical16Bit
	Logical32Bit
	LogicalReservedFormat
)

// Data segment subtypes, the low five bits of a data segment's leading byte.
const (
	DataSubtypeSimple     uint8 = 0x00
	DataSubtypeANSISymbol uint8 = 0x11
)

// SymbolMarker is the leading byte of an ANSI extended symbol segment.
const SymbolMarker = uint8(SegmentData)<<5 | DataSubtypeANSISymbol

const (
	portFlagLinkSize = 0x10
	portMask         = 0x0F
	portExtended     = 0x0F
)

// Segment is one element of a CIP path.
type Segment interface {
	codec.Record
	Type() SegmentType
}

func segmentTypeOf(lead byte) SegmentType {
	return SegmentType(lead >> 5)
}

var segmentTable = map[SegmentType]func() Segment{
	SegmentPort:    func() Segment { return &PortSegment{} },
	SegmentLogical: func() Segment { return &LogicalSegment{} },
	SegmentData:    func() Segment { return &SymbolSegment{} },
}

// PickSegment chooses the segment variant for a leading byte.
func PickSegment(lead byte) (Segment, error) {
	newSegment, ok := segmentTable[segmentTypeOf(lead)]
	if !ok {
		return nil, cipErrors.UnknownVariant("path segment", "segment type %d (lead 0x%02X) not supported", segmentTypeOf(lead), lead)
	}
	return newSegment(), nil
}

// LogicalSegment addresses a class, instance, attribute or similar with an
// 8-bit value.
type LogicalSegment struct {
	Lead  uint8
	Value uint8
}

// NewLogicalSegment builds an 8-bit logical segment.
func NewLogicalSegment(lt LogicalType, value uint8) *LogicalSegment {
	return &LogicalSegment{
		Lead:  uint8(SegmentLogical)<<5 | uint8(lt&0x07)<<2 | uint8(Logical8Bit),
		Value: value,
	}
}

func (s *LogicalSegment) Type() SegmentType { return SegmentLogical }

// LogicalType returns the addressed item kind.
func (s *LogicalSegment) LogicalType() LogicalType { return LogicalType(s.Lead>>2) & 0x07 }

// Format returns the value width code.
func (s *LogicalSegment) Format() LogicalFormat { return LogicalFormat(s.Lead & 0x03) }

func (s *LogicalSegment) Fields() codec.Schema {
	return codec.Schema{
		codec.U8(&s.Lead),
		codec.Check(func() error {
			if segmentTypeOf(s.Lead) != SegmentLogical {
				return cipErrors.UnknownVariant("logical segment", "lead 0x%02X is not a logical segment", s.Lead)
			}
			if f := s.Format(); f != Logical8Bit {
				return cipErrors.UnknownVariant("logical segment", "format %d not supported, only 8-bit values are", f)
			}
			return nil
		}),
		codec.U8(&s.Value),
	}
}

// SymbolSegment is an ANSI extended symbol segment. Symbol holds the name
// without its pad byte.
type SymbolSegment struct {
	Lead     uint8
	DataSize uint8
	Symbol   []byte
}

// NewSymbolSegment builds a symbol segment for one tag name element.
func NewSymbolSegment(name string) (*SymbolSegment, error) {
	if name == "" {
		return nil, cipErrors.Schema("symbol segment", "empty symbol")
	}
	if len(name) > 0xFF {
		return nil, cipErrors.Schema("symbol segment", "symbol %q longer than 255 bytes", name)
	}
	return &SymbolSegment{
		Lead:     SymbolMarker,
		DataSize: uint8(len(name)),
		Symbol:   []byte(name),
	}, nil
}

func (s *SymbolSegment) Type() SegmentType { return SegmentData }

// Name returns the symbol as a string.
func (s *SymbolSegment) Name() string { return string(s.Symbol) }

func (s *SymbolSegment) Fields() codec.Schema {
	return codec.Schema{
		codec.U8(&s.Lead),
		codec.Check(func() error {
			if s.Lead != SymbolMarker {
				return cipErrors.UnknownVariant("data segment", "subtype 0x%02X not supported", s.Lead&0x1F)
			}
			return nil
		}),
		codec.U8(&s.DataSize),
		codec.Bytes(&s.Symbol, func() int { return int(s.DataSize) }),
		codec.OddPad(),
	}
}

// PortSegment routes through a device port. Bit 4 of Lead flags an explicit
// link address size, and a port nibble of 15 flags an extended port number.
type PortSegment struct {
	Lead            uint8
	LinkAddressSize *uint8
	ExtendedPort    *uint16
	LinkAddress     []byte
}

// NewPortSegment builds a port segment for port and link address.
func NewPortSegment(port uint16, link []byte) (*PortSegment, error) {
	if len(link) > 0xFF {
		return nil, cipErrors.Schema("port segment", "link address of %d bytes too long", len(link))
	}
	s := &PortSegment{Lead: uint8(SegmentPort) << 5}
	if port >= portExtended {
		s.Lead |= portExtended
		p := port
		s.ExtendedPort = &p
	} else {
		s.Lead |= uint8(port)
	}
	if len(link) > 0 {
		s.Lead |= portFlagLinkSize
		n := uint8(len(link))
		s.LinkAddressSize = &n
		s.LinkAddress = append([]byte(nil), link...)
	}
	return s, nil
}

func (s *PortSegment) Type() SegmentType { return SegmentPort }

// Port returns the port number, extended or not.
func (s *PortSegment) Port() uint16 {
	if s.ExtendedPort != nil {
		return *s.ExtendedPort
	}
	return uint16(s.Lead & portMask)
}

func (s *PortSegment) Fields() codec.Schema {
	return codec.Schema{
		codec.U8(&s.Lead),
		codec.OptU8(&s.LinkAddressSize, func() bool { return s.Lead&portFlagLinkSize != 0 }),
		codec.OptU16(&s.ExtendedPort, func() bool { return s.Lead&portMask == portExtended }),
		codec.Bytes(&s.LinkAddress, func() int {
			if s.LinkAddressSize == nil {
				return 0
			}
			return int(*s.LinkAddressSize)
		}),
		codec.OddPad(),
	}
}

// PathWords returns the length of path in 16-bit words.
func PathWords(path []Segment) (uint8, error) {
	total := 0
	for _, seg := range path {
		n, err := codec.Size(seg)
		if err != nil {
			return 0, err
		}
		total += n
	}
	if total%2 != 0 {
		return 0, cipErrors.Schema("path", "path of %d bytes is not word aligned", total)
	}
	if total/2 > 0xFF {
		return 0, cipErrors.Schema("path", "path of %d words does not fit a one-byte size", total/2)
	}
	return uint8(total / 2), nil
}

// SymbolPath builds one symbol segment per dotted member of tag.
func SymbolPath(tag string) ([]Segment, error) {
	if tag == "" {
		return nil, cipErrors.Schema("symbol path", "empty tag")
	}
	var path []Segment
	for _, member := range strings.Split(tag, ".") {
		seg, err := NewSymbolSegment(member)
		if err != nil {
			return nil, err
		}
		path = append(path, seg)
	}
	return path, nil
}

// SymbolName joins the symbol segments of path with dots.
func SymbolName(path []Segment) (string, error) {
	var members []string
	for _, seg := range path {
		if sym, ok := seg.(*SymbolSegment); ok {
			members = append(members, sym.Name())
		}
	}
	if len(members) == 0 {
		return "", cipErrors.Schema("symbol path", "path carries no symbol segment")
	}
	return strings.Join(members, "."), nil
}
