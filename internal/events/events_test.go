package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
)

func TestTagDataJSON(t *testing.T) {
	td := TagData{
		Remote:    "10.0.0.5:51000",
		Symbol:    "RECEIVE",
		DataType:  protocol.TypeDINT,
		Data:      []byte{1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF},
		Timestamp: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	raw, err := td.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var got struct {
		Symbol   string    `json:"symbol"`
		Type     string    `json:"type"`
		TypeCode uint16    `json:"type_code"`
		Values   []float64 `json:"values"`
		Raw      string    `json:"raw"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Symbol != "RECEIVE" || got.Type != "DINT" || got.TypeCode != 0xC4 {
		t.Errorf("message = %+v", got)
	}
	if len(got.Values) != 2 || got.Values[0] != 1 || got.Values[1] != -1 {
		t.Errorf("values = %v", got.Values)
	}
	if got.Raw != "01000000ffffffff" {
		t.Errorf("raw = %q", got.Raw)
	}
}

func TestTagMessageWithoutDecoder(t *testing.T) {
	msg := TagData{Symbol: "X", DataType: protocol.TypeLREAL, Data: []byte{1, 2}}.Message()
	if msg.Values != nil || msg.Raw != "0102" {
		t.Errorf("message = %+v", msg)
	}
}

func TestEventString(t *testing.T) {
	ev := NewConnStatus(DirectionReceive, true, ConnID("127.0.0.1:44818", "127.0.0.1:50000"))
	if ev.Kind != KindConnStatus || ev.ConnStatus.Timestamp.IsZero() {
		t.Fatalf("event = %+v", ev)
	}
	if s := ev.String(); s != "receive connection 127.0.0.1:44818/127.0.0.1:50000 up" {
		t.Errorf("String = %q", s)
	}

	td := NewTagData(TagData{Symbol: "A", DataType: protocol.TypeINT, Data: []byte{1, 0}, Remote: "peer"})
	if !strings.Contains(td.String(), "tag A (INT, 2 bytes) from peer") {
		t.Errorf("String = %q", td.String())
	}
}
