package enip

// Common packet format items.

import (
	"fmt"

	"github.com/Bataide/cip-enip-driver/internal/cip/codec"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// ItemID is a common packet format item type.
type ItemID uint16

const (
	ItemNull                 ItemID = 0x0000
	ItemListIdentity         ItemID = 0x000C
	ItemConnectionBased      ItemID = 0x00A1
	ItemConnectedTransport   ItemID = 0x00B1
	ItemUnconnectedMessage   ItemID = 0x00B2
	ItemListServicesResponse ItemID = 0x0100
	ItemSockaddrOtoT         ItemID = 0x8000
	ItemSockaddrTtoO         ItemID = 0x8001
	ItemSequencedAddress     ItemID = 0x8002
)

func (i ItemID) String() string {
	switch i {
	case ItemNull:
		return "Null"
	case ItemListIdentity:
		return "ListIdentity"
	case ItemConnectionBased:
		return "ConnectionBased"
	case ItemConnectedTransport:
		return "ConnectedTransportPacket"
	case ItemUnconnectedMessage:
		return "UnconnectedMessage"
	case ItemListServicesResponse:
		return "ListServicesResponse"
	case ItemSockaddrOtoT:
		return "SockaddrInfoOtoT"
	case ItemSockaddrTtoO:
		return "SockaddrInfoTtoO"
	case ItemSequencedAddress:
		return "SequencedAddressItem"
	default:
		return fmt.Sprintf("Item(0x%04X)", uint16(i))
	}
}

// Item is a common packet format item with its data inline.
type Item struct {
	TypeID ItemID
	Length uint16
	Data   []byte
}

func (it *Item) Fields() codec.Schema {
	return codec.Schema{
		codec.U16(&it.TypeID),
		codec.U16(&it.Length),
		codec.Bytes(&it.Data, func() int { return int(it.Length) }),
	}
}

// SetData stores data and patches Length.
func (it *Item) SetData(data []byte) error {
	if len(data) > 0xFFFF {
		return cipErrors.Schema("cpf item", "%s data of %d bytes exceeds the length field", it.TypeID, len(data))
	}
	it.Data = data
	it.Length = uint16(len(data))
	return nil
}

// RRData is the SendRRData command body.
type RRData struct {
	InterfaceHandle uint32
	Timeout         uint16
	ItemCount       uint16
	Items           []*Item
}

func (r *RRData) Fields() codec.Schema {
	return codec.Schema{
		codec.U32(&r.InterfaceHandle),
		codec.U16(&r.Timeout),
		codec.U16(&r.ItemCount),
		codec.Records(&r.Items, func() int { return int(r.ItemCount) }, func() *Item { return &Item{} }),
	}
}

// NewUnconnectedRRData builds the two-item container of a SendRRData: a null
// address item and an unconnected message item holding payload.
func NewUnconnectedRRData(payload []byte) (*RRData, error) {
	msg := &Item{TypeID: ItemUnconnectedMessage}
	if err := msg.SetData(payload); err != nil {
		return nil, err
	}
	return &RRData{
		ItemCount: 2,
		Items:     []*Item{{TypeID: ItemNull}, msg},
	}, nil
}

// Item returns the first item of type id.
func (r *RRData) Item(id ItemID) (*Item, error) {
	for _, it := range r.Items {
		if it.TypeID == id {
			return it, nil
		}
	}
	return nil, cipErrors.Schema("send rr data", "no %s item among %d items", id, len(r.Items))
}

// DecodeRRData reads a SendRRData body. Bytes after the declared items are
// rejected.
func DecodeRRData(body []byte) (*RRData, error) {
	rr := &RRData{}
	n, err := codec.Decode(rr, body, 0)
	if err != nil {
		return nil, fmt.Errorf("decode send rr data: %w", err)
	}
	if n != len(body) {
		return nil, cipErrors.Schema("decode send rr data", "%d trailing bytes after %d items", len(body)-n, rr.ItemCount)
	}
	return rr, nil
}
