package events

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
)

// TagMessage is the JSON document sinks publish for received tag data.
// Values is omitted when the type has no decoder.
type TagMessage struct {
	Remote    string        `json:"remote"`
	Symbol    string        `json:"symbol"`
	Type      string        `json:"type"`
	TypeCode  uint16        `json:"type_code"`
	Values    []interface{} `json:"values,omitempty"`
	Raw       string        `json:"raw"`
	Timestamp time.Time     `json:"timestamp"`
}

// Message converts td to its published form.
func (td TagData) Message() TagMessage {
	msg := TagMessage{
		Remote:    td.Remote,
		Symbol:    td.Symbol,
		Type:      td.DataType.String(),
		TypeCode:  uint16(td.DataType),
		Raw:       hex.EncodeToString(td.Data),
		Timestamp: td.Timestamp.UTC(),
	}
	if values, err := protocol.DecodeValues(td.DataType, td.Data); err == nil {
		msg.Values = values
	}
	return msg
}

// JSON returns the marshaled TagMessage of td.
func (td TagData) JSON() ([]byte, error) {
	return json.Marshal(td.Message())
}
