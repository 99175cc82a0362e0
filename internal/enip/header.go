// Package enip implements EtherNet/IP encapsulation: the 24-byte header,
// common packet format items, the per-command message catalog and the
// stream reassembler.
package enip

import (
	"encoding/binary"
	"fmt"

	"github.com/Bataide/cip-enip-driver/internal/cip/codec"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// HeaderSize is the length of the encapsulation header.
const HeaderSize = 24

// DefaultPort is the encapsulation port used when the configuration names
// none, for listening and dialing alike. 0xAF12 is 44818, the registered
// EtherNet/IP port.
const DefaultPort = 0xAF12

// Command is an encapsulation command code.
type Command uint16

const (
	CommandNOP               Command = 0x0000
	CommandListServices      Command = 0x0004
	CommandListIdentity      Command = 0x0063
	CommandListInterfaces    Command = 0x0064
	CommandRegisterSession   Command = 0x0065
	CommandUnRegisterSession Command = 0x0066
	CommandSendRRData        Command = 0x006F
	CommandSendUnitData      Command = 0x0070
	CommandIndicateStatus    Command = 0x0072
	CommandCancel            Command = 0x0073
)

func (c Command) String() string {
	switch c {
	case CommandNOP:
		return "NOP"
	case CommandListServices:
		return "ListServices"
	case CommandListIdentity:
		return "ListIdentity"
	case CommandListInterfaces:
		return "ListInterfaces"
	case CommandRegisterSession:
		return "RegisterSession"
	case CommandUnRegisterSession:
		return "UnRegisterSession"
	case CommandSendRRData:
		return "SendRRData"
	case CommandSendUnitData:
		return "SendUnitData"
	case CommandIndicateStatus:
		return "IndicateStatus"
	case CommandCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Command(0x%04X)", uint16(c))
	}
}

// Encapsulation status codes.
const (
	StatusSuccess             uint32 = 0x0000
	StatusInvalidCommand      uint32 = 0x0001
	StatusInsufficientMemory  uint32 = 0x0002
	StatusIncorrectData       uint32 = 0x0003
	StatusInvalidSession      uint32 = 0x0064
	StatusInvalidLength       uint32 = 0x0065
	StatusUnsupportedProtocol uint32 = 0x0069
)

// Header is the encapsulation header. Length is the byte length of the
// body that follows it.
type Header struct {
	Command       Command
	Length        uint16
	SessionHandle uint32
	Status        uint32
	SenderContext [8]byte
	Options       uint32
}

func (h *Header) Fields() codec.Schema {
	return codec.Schema{
		codec.U16(&h.Command),
		codec.U16(&h.Length),
		codec.U32(&h.SessionHandle),
		codec.U32(&h.Status),
		codec.Fixed(h.SenderContext[:]),
		codec.U32(&h.Options),
	}
}

// DecodeHeader reads a header from the start of buf.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if _, err := codec.Decode(&h, buf, 0); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// Frame is a header and its body.
type Frame struct {
	Header Header
	Body   []byte
}

// EncodeFrame patches h.Length to the body length and returns header plus body.
func EncodeFrame(h Header, body []byte) ([]byte, error) {
	if len(body) > 0xFFFF {
		return nil, cipErrors.Schema("encode frame", "%s body of %d bytes exceeds the length field", h.Command, len(body))
	}
	h.Length = uint16(len(body))
	out := make([]byte, 0, HeaderSize+len(body))
	out, err := codec.Append(out, &h)
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

// EncodeBody serializes records back to back.
func EncodeBody(records ...codec.Record) ([]byte, error) {
	var out []byte
	for _, r := range records {
		var err error
		if out, err = codec.Append(out, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ContextFromUint64 packs a correlation value into a sender context.
func ContextFromUint64(v uint64) [8]byte {
	var ctx [8]byte
	binary.LittleEndian.PutUint64(ctx[:], v)
	return ctx
}

// ContextValue unpacks a sender context.
func ContextValue(ctx [8]byte) uint64 {
	return binary.LittleEndian.Uint64(ctx[:])
}
