package enip

// Per-command request and reply shapes.

import (
	"fmt"

	"github.com/Bataide/cip-enip-driver/internal/cip/codec"
	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// ListServices capability flags.
const (
	CapabilityTCP        uint16 = 0x0020
	CapabilityUDPClass01 uint16 = 0x0100
)

// ProtocolVersion is the only encapsulation protocol version.
const ProtocolVersion uint16 = 1

// CommunicationsService is the service name advertised by ListServices.
const CommunicationsService = "Communications"

// ServiceItem describes one service in a ListServices reply. Length counts
// the bytes after the Length field.
type ServiceItem struct {
	TypeCode        ItemID
	Length          uint16
	Version         uint16
	CapabilityFlags uint16
	Name            [16]byte
}

// serviceItemBody is the part of a ServiceItem after its Length field.
const serviceItemBody = 2 + 2 + 16

func (s *ServiceItem) Fields() codec.Schema {
	return codec.Schema{
		codec.U16(&s.TypeCode),
		codec.U16(&s.Length),
		codec.Check(func() error {
			if s.Length != serviceItemBody {
				return cipErrors.Schema("list services item", "length %d, want %d", s.Length, serviceItemBody)
			}
			return nil
		}),
		codec.U16(&s.Version),
		codec.U16(&s.CapabilityFlags),
		codec.Fixed(s.Name[:]),
	}
}

// HasTCP reports whether the service supports encapsulation over TCP.
func (s *ServiceItem) HasTCP() bool {
	return s.CapabilityFlags&CapabilityTCP != 0
}

// ServiceName returns Name without its NUL padding.
func (s *ServiceItem) ServiceName() string {
	n := 0
	for n < len(s.Name) && s.Name[n] != 0 {
		n++
	}
	return string(s.Name[:n])
}

// ListServicesReply is the ListServices reply body.
type ListServicesReply struct {
	ItemCount uint16
	Items     []*ServiceItem
}

func (l *ListServicesReply) Fields() codec.Schema {
	return codec.Schema{
		codec.U16(&l.ItemCount),
		codec.Records(&l.Items, func() int { return int(l.ItemCount) }, func() *ServiceItem { return &ServiceItem{} }),
	}
}

// NewCommunicationsReply advertises the communications service with TCP and
// class 0/1 UDP support.
func NewCommunicationsReply() *ListServicesReply {
	item := &ServiceItem{
		TypeCode:        ItemListServicesResponse,
		Length:          serviceItemBody,
		Version:         ProtocolVersion,
		CapabilityFlags: CapabilityTCP | CapabilityUDPClass01,
	}
	copy(item.Name[:], CommunicationsService)
	return &ListServicesReply{ItemCount: 1, Items: []*ServiceItem{item}}
}

// RegisterSession is the RegisterSession request and reply body.
type RegisterSession struct {
	ProtocolVersion uint16
	OptionsFlags    uint16
}

func (r *RegisterSession) Fields() codec.Schema {
	return codec.Schema{
		codec.U16(&r.ProtocolVersion),
		codec.U16(&r.OptionsFlags),
	}
}

// WriteTagRequest is the unconnected message item of an outbound write:
// the Unconnected_Send request to the connection manager and its envelope.
type WriteTagRequest struct {
	Route    protocol.Request
	Envelope protocol.UnconnectedSend
}

func (w *WriteTagRequest) Fields() codec.Schema {
	return codec.Schema{
		codec.Nested(&w.Route),
		codec.Nested(&w.Envelope),
	}
}

// BuildNOP returns a keep-alive frame.
func BuildNOP(handle uint32) ([]byte, error) {
	return EncodeFrame(Header{Command: CommandNOP, SessionHandle: handle}, nil)
}

// BuildListServices returns a ListServices request.
func BuildListServices(ctx [8]byte) ([]byte, error) {
	return EncodeFrame(Header{Command: CommandListServices, SenderContext: ctx}, nil)
}

// BuildListServicesReply answers req with the communications service.
func BuildListServicesReply(req Header) ([]byte, error) {
	body, err := EncodeBody(NewCommunicationsReply())
	if err != nil {
		return nil, err
	}
	req.Status = StatusSuccess
	return EncodeFrame(req, body)
}

// BuildRegisterSession returns a RegisterSession request.
func BuildRegisterSession(ctx [8]byte) ([]byte, error) {
	body, err := EncodeBody(&RegisterSession{ProtocolVersion: ProtocolVersion})
	if err != nil {
		return nil, err
	}
	return EncodeFrame(Header{Command: CommandRegisterSession, SenderContext: ctx}, body)
}

// BuildRegisterSessionReply echoes body under req with handle assigned.
func BuildRegisterSessionReply(req Header, body RegisterSession, handle uint32) ([]byte, error) {
	out, err := EncodeBody(&body)
	if err != nil {
		return nil, err
	}
	req.SessionHandle = handle
	req.Status = StatusSuccess
	return EncodeFrame(req, out)
}

// BuildUnRegisterSession returns an UnRegisterSession request.
func BuildUnRegisterSession(handle uint32) ([]byte, error) {
	return EncodeFrame(Header{Command: CommandUnRegisterSession, SessionHandle: handle}, nil)
}

// BuildWriteTag returns a SendRRData frame writing data to symbol. Sizes are
// patched from the innermost field outwards before each layer is wrapped.
func BuildWriteTag(handle uint32, ctx [8]byte, symbol string, dt protocol.DataType, data []byte, route []protocol.Segment) ([]byte, error) {
	outer, env, err := protocol.NewWriteTag(symbol, dt, data, route)
	if err != nil {
		return nil, fmt.Errorf("build write tag: %w", err)
	}
	payload, err := EncodeBody(&WriteTagRequest{Route: *outer, Envelope: *env})
	if err != nil {
		return nil, fmt.Errorf("encode write tag: %w", err)
	}
	rr, err := NewUnconnectedRRData(payload)
	if err != nil {
		return nil, err
	}
	body, err := EncodeBody(rr)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(Header{Command: CommandSendRRData, SessionHandle: handle, SenderContext: ctx}, body)
}

// BuildSendRRDataReply answers req by reusing its item container with reply
// as the unconnected message.
func BuildSendRRDataReply(req Header, rr *RRData, reply *protocol.Reply) ([]byte, error) {
	payload, err := EncodeBody(reply)
	if err != nil {
		return nil, err
	}
	item, err := rr.Item(ItemUnconnectedMessage)
	if err != nil {
		return nil, err
	}
	if err := item.SetData(payload); err != nil {
		return nil, err
	}
	body, err := EncodeBody(rr)
	if err != nil {
		return nil, err
	}
	req.Status = StatusSuccess
	return EncodeFrame(req, body)
}

// DecodeListServicesReply reads a ListServices reply body.
func DecodeListServicesReply(body []byte) (*ListServicesReply, error) {
	reply := &ListServicesReply{}
	if _, err := codec.Decode(reply, body, 0); err != nil {
		return nil, fmt.Errorf("decode list services reply: %w", err)
	}
	return reply, nil
}

// DecodeRegisterSession reads a RegisterSession body.
func DecodeRegisterSession(body []byte) (RegisterSession, error) {
	var rs RegisterSession
	if _, err := codec.Decode(&rs, body, 0); err != nil {
		return RegisterSession{}, fmt.Errorf("decode register session: %w", err)
	}
	return rs, nil
}

// DecodeWriteTag reads the unconnected message of an inbound SendRRData.
func DecodeWriteTag(rr *RRData) (*WriteTagRequest, error) {
	item, err := rr.Item(ItemUnconnectedMessage)
	if err != nil {
		return nil, err
	}
	req := &WriteTagRequest{}
	n, err := codec.Decode(req, item.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("decode write tag: %w", err)
	}
	if n != len(item.Data) {
		return nil, cipErrors.Schema("decode write tag", "%d trailing bytes", len(item.Data)-n)
	}
	if req.Route.Service != protocol.ServiceUnconnectedSend {
		return nil, cipErrors.UnknownVariant("decode write tag", "routed service %s not supported", req.Route.Service)
	}
	if req.Envelope.Request.Service != protocol.ServiceWriteTag {
		return nil, cipErrors.UnknownVariant("decode write tag", "embedded service %s not supported", req.Envelope.Request.Service)
	}
	return req, nil
}

// DecodeReply reads the CIP reply carried in a SendRRData reply.
func DecodeReply(rr *RRData) (*protocol.Reply, error) {
	item, err := rr.Item(ItemUnconnectedMessage)
	if err != nil {
		return nil, err
	}
	reply := &protocol.Reply{}
	if _, err := codec.Decode(reply, item.Data, 0); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}
