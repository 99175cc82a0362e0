package protocol

// CIP message router request and reply.

import (
	"github.com/Bataide/cip-enip-driver/internal/cip/codec"
)

// Request is a CIP service request. Its path occupies exactly
// RequestPathSize words.
type Request struct {
	Service         ServiceCode
	RequestPathSize uint8
	Path            []Segment
}

// NewRequest builds a request and sizes its path.
func NewRequest(service ServiceCode, path ...Segment) (*Request, error) {
	r := &Request{Service: service, Path: path}
	if err := r.PatchPathSize(); err != nil {
		return nil, err
	}
	return r, nil
}

// PatchPathSize recomputes RequestPathSize from Path.
func (r *Request) PatchPathSize() error {
	words, err := PathWords(r.Path)
	if err != nil {
		return err
	}
	r.RequestPathSize = words
	return nil
}

func (r *Request) Fields() codec.Schema {
	return codec.Schema{
		codec.U8(&r.Service),
		codec.U8(&r.RequestPathSize),
		codec.ListUntil(&r.Path, func() int { return int(r.RequestPathSize) * 2 }, PickSegment),
	}
}

// Reply is a CIP service reply.
type Reply struct {
	Service              ServiceCode
	Reserved             uint8
	GeneralStatus        GeneralStatus
	AdditionalStatusSize uint8
	AdditionalStatus     []uint16
}

// NewReply builds a reply without additional status.
func NewReply(service ServiceCode, status GeneralStatus) *Reply {
	return &Reply{Service: service, GeneralStatus: status}
}

func (r *Reply) Fields() codec.Schema {
	return codec.Schema{
		codec.U8(&r.Service),
		codec.U8(&r.Reserved),
		codec.U8(&r.GeneralStatus),
		codec.U8(&r.AdditionalStatusSize),
		codec.Uint16s(&r.AdditionalStatus, func() int { return int(r.AdditionalStatusSize) }),
	}
}
