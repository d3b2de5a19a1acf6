package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// ProtocolError marks a malformed inbound frame. The frame is dropped and the
// session continues; it never aborts the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Reason)
}

func badFrame(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

type baseMsg struct {
	Type string `json:"type"`
}

type inputMsg struct {
	Dir   *Vec `json:"dir"`
	Boost bool `json:"boost"`
}

type helloMsg struct {
	TS int64 `json:"ts"`
}

// Decode parses an inbound frame into a typed intent. Every failure is a
// *ProtocolError.
func Decode(b []byte) (Intent, error) {
	var base baseMsg
	if err := json.Unmarshal(b, &base); err != nil {
		return nil, badFrame("malformed frame: %v", err)
	}

	switch base.Type {
	case MsgInput:
		var msg inputMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, badFrame("malformed input: %v", err)
		}
		if msg.Dir == nil {
			return nil, badFrame("input missing dir")
		}
		if !finite(msg.Dir.X) || !finite(msg.Dir.Y) {
			return nil, badFrame("input dir not finite")
		}
		return InputIntent{Dir: *msg.Dir, Boost: msg.Boost}, nil
	case MsgCashout:
		return CashoutIntent{}, nil
	case MsgHello:
		var msg helloMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, badFrame("malformed hello: %v", err)
		}
		return HelloIntent{TS: msg.TS}, nil
	case "":
		return nil, badFrame("frame missing type")
	default:
		return nil, badFrame("unknown type %q", base.Type)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type cashoutSuccessMsg struct {
	Type   string `json:"type"`
	Payout int64  `json:"payout"`
}

type helloAckMsg struct {
	Type string `json:"type"`
}

type errorMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// EncodeCashoutSuccess serializes the cashout settlement notice.
func EncodeCashoutSuccess(payout int64) []byte {
	b, _ := json.Marshal(cashoutSuccessMsg{Type: MsgCashoutSuccess, Payout: payout})
	return b
}

// EncodeHelloAck serializes the hello acknowledgement.
func EncodeHelloAck() []byte {
	b, _ := json.Marshal(helloAckMsg{Type: MsgHelloAck})
	return b
}

// EncodeError serializes a failure notice that keeps the session alive.
func EncodeError(reason string) []byte {
	b, _ := json.Marshal(errorMsg{Type: MsgError, Reason: reason})
	return b
}

// EncodeSnapshot serializes a snapshot, stamping the type.
func EncodeSnapshot(s Snapshot) []byte {
	s.Type = MsgSnapshot
	b, _ := json.Marshal(s)
	return b
}
