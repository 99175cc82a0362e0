package protocol

// Unconnected Send envelope carrying a symbolic write.

import (
	"github.com/Bataide/cip-enip-driver/internal/cip/codec"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// Envelope defaults used for routed writes.
const (
	DefaultPriorityTick uint8  = 0x07
	DefaultTimeoutTicks uint8  = 0xE9
	DefaultRoutePort    uint16 = 1
)

// GenericData is a typed element array following an embedded request.
type GenericData struct {
	DataType DataType
	Count    uint16
	Data     []byte
}

// NewGenericData wraps data as elements of dt.
func NewGenericData(dt DataType, data []byte) (*GenericData, error) {
	size, ok := dt.Size()
	if !ok {
		return nil, cipErrors.UnknownVariant("generic data", "data type %s has no fixed size", dt)
	}
	if len(data)%size != 0 {
		return nil, cipErrors.Schema("generic data", "%d bytes is not a whole number of %s elements", len(data), dt)
	}
	count := len(data) / size
	if count > 0xFFFF {
		return nil, cipErrors.Schema("generic data", "%d elements exceed the element count field", count)
	}
	return &GenericData{DataType: dt, Count: uint16(count), Data: append([]byte(nil), data...)}, nil
}

func (g *GenericData) Fields() codec.Schema {
	return codec.Schema{
		codec.U16(&g.DataType),
		codec.U16(&g.Count),
		codec.Check(func() error {
			if _, ok := g.DataType.Size(); !ok {
				return cipErrors.UnknownVariant("generic data", "data type %s has no fixed size", g.DataType)
			}
			return nil
		}),
		codec.Bytes(&g.Data, func() int {
			size, _ := g.DataType.Size()
			return int(g.Count) * size
		}),
	}
}

// UnconnectedSend is the connection manager Unconnected_Send body. A pad
// byte follows the embedded message when the running length is odd.
type UnconnectedSend struct {
	PriorityTick       uint8
	TimeoutTicks       uint8
	MessageRequestSize uint16
	Request            Request
	Data               GenericData
	RoutePathSize      uint8
	Reserved           uint8
	RoutePath          []Segment
}

func (u *UnconnectedSend) Fields() codec.Schema {
	return codec.Schema{
		codec.U8(&u.PriorityTick),
		codec.U8(&u.TimeoutTicks),
		codec.U16(&u.MessageRequestSize),
		codec.Nested(&u.Request),
		codec.Nested(&u.Data),
		codec.OddPad(),
		codec.U8(&u.RoutePathSize),
		codec.U8(&u.Reserved),
		codec.ListUntil(&u.RoutePath, func() int { return int(u.RoutePathSize) * 2 }, PickSegment),
	}
}

// Patch recomputes the size fields from the inside out: route path size,
// embedded request path size, then message request size.
func (u *UnconnectedSend) Patch() error {
	words, err := PathWords(u.RoutePath)
	if err != nil {
		return err
	}
	u.RoutePathSize = words
	if err := u.Request.PatchPathSize(); err != nil {
		return err
	}
	reqSize, err := codec.Size(&u.Request)
	if err != nil {
		return err
	}
	dataSize, err := codec.Size(&u.Data)
	if err != nil {
		return err
	}
	if reqSize+dataSize > 0xFFFF {
		return cipErrors.Schema("unconnected send", "embedded message of %d bytes too large", reqSize+dataSize)
	}
	u.MessageRequestSize = uint16(reqSize + dataSize)
	return nil
}

// Symbol returns the dotted tag name the embedded request addresses.
func (u *UnconnectedSend) Symbol() (string, error) {
	return SymbolName(u.Request.Path)
}

// ConnectionManagerPath addresses instance 1 of the connection manager class.
func ConnectionManagerPath() []Segment {
	return []Segment{
		NewLogicalSegment(LogicalClassID, ClassConnectionManager),
		NewLogicalSegment(LogicalInstanceID, InstanceOne),
	}
}

// DefaultRoute is the backplane hop used for routed writes.
func DefaultRoute() []Segment {
	port, _ := NewPortSegment(DefaultRoutePort, nil)
	return []Segment{port}
}

// NewWriteTag builds the Unconnected_Send request to the connection manager
// and its envelope carrying a Write_Tag of data to symbol. A nil route uses
// DefaultRoute.
func NewWriteTag(symbol string, dt DataType, data []byte, route []Segment) (*Request, *UnconnectedSend, error) {
	path, err := SymbolPath(symbol)
	if err != nil {
		return nil, nil, err
	}
	generic, err := NewGenericData(dt, data)
	if err != nil {
		return nil, nil, err
	}
	if route == nil {
		route = DefaultRoute()
	}
	env := &UnconnectedSend{
		PriorityTick: DefaultPriorityTick,
		TimeoutTicks: DefaultTimeoutTicks,
		Request:      Request{Service: ServiceWriteTag, Path: path},
		Data:         *generic,
		RoutePath:    route,
	}
	if err := env.Patch(); err != nil {
		return nil, nil, err
	}
	outer, err := NewRequest(ServiceUnconnectedSend, ConnectionManagerPath()...)
	if err != nil {
		return nil, nil, err
	}
	return outer, env, nil
}
