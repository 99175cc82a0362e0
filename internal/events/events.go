// Package events defines what the driver reports to the host application.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
)

// Kind identifies the payload of an Event.
type Kind int

const (
	KindTagData Kind = iota + 1
	KindConnStatus
)

func (k Kind) String() string {
	switch k {
	case KindTagData:
		return "TagData"
	case KindConnStatus:
		return "ConnStatus"
	default:
		return "Unknown"
	}
}

// Direction tells which side of the driver a connection belongs to.
type Direction int

const (
	// DirectionSend is the originating session to the controller.
	DirectionSend Direction = iota + 1
	// DirectionReceive is an inbound connection accepted from a peer.
	DirectionReceive
)

func (d Direction) String() string {
	switch d {
	case DirectionSend:
		return "send"
	case DirectionReceive:
		return "receive"
	default:
		return "unknown"
	}
}

// TagData is a write received from a peer.
type TagData struct {
	Remote    string
	Symbol    string
	DataType  protocol.DataType
	Data      []byte
	Timestamp time.Time
}

// ConnStatus reports a connection coming up or going down.
type ConnStatus struct {
	Direction Direction
	Connected bool
	ConnID    string
	Timestamp time.Time
}

// Event carries exactly one of TagData or ConnStatus, selected by Kind.
type Event struct {
	Kind       Kind
	TagData    *TagData
	ConnStatus *ConnStatus
}

func (e Event) String() string {
	switch e.Kind {
	case KindTagData:
		return fmt.Sprintf("tag %s (%s, %d bytes) from %s", e.TagData.Symbol, e.TagData.DataType, len(e.TagData.Data), e.TagData.Remote)
	case KindConnStatus:
		state := "down"
		if e.ConnStatus.Connected {
			state = "up"
		}
		return fmt.Sprintf("%s connection %s %s", e.ConnStatus.Direction, e.ConnStatus.ConnID, state)
	default:
		return "unknown event"
	}
}

// NewTagData wraps a received write.
func NewTagData(td TagData) Event {
	return Event{Kind: KindTagData, TagData: &td}
}

// NewConnStatus wraps a connection state change.
func NewConnStatus(dir Direction, connected bool, connID string) Event {
	return Event{Kind: KindConnStatus, ConnStatus: &ConnStatus{
		Direction: dir,
		Connected: connected,
		ConnID:    connID,
		Timestamp: time.Now(),
	}}
}

// ConnID formats the identifier of a connection between two endpoints.
func ConnID(local, remote string) string {
	return local + "/" + remote
}

// Handler receives events. It is called from connection goroutines and
// must not block for long.
type Handler func(Event)

// Sink forwards received tag data to an external system.
type Sink interface {
	Name() string
	Start(ctx context.Context) error
	Publish(ctx context.Context, td TagData) error
	Close() error
}
