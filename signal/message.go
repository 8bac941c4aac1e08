// Package signal implements a PeerJS style rendezvous service. Endpoints
// register a pairing code over a websocket and relay session descriptions
// to each other by code.
package signal

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeOpen      MessageType = "OPEN"
	TypeError     MessageType = "ERROR"
	TypeOffer     MessageType = "OFFER"
	TypeAnswer    MessageType = "ANSWER"
	TypeLeave     MessageType = "LEAVE"
	TypeHeartbeat MessageType = "HEARTBEAT"
)

// Error payload types.
const (
	ErrorUnavailableID   = "unavailable-id"
	ErrorPeerUnavailable = "peer-unavailable"
	ErrorInvalidMessage  = "invalid-message"
)

type Message struct {
	Type    MessageType     `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// Description is the payload of OFFER and ANSWER.
type Description struct {
	// ConnectionID tells apart concurrent sessions between the same pair.
	ConnectionID string `json:"connectionId"`
	SDP          string `json:"sdp"`
	Type         string `json:"type"`
}

func errorMessage(kind, src, msg string) Message {
	payload, _ := json.Marshal(ErrorPayload{Type: kind, Msg: msg})
	return Message{Type: TypeError, Src: src, Payload: payload}
}

// ErrorOf decodes the payload of an ERROR message.
func ErrorOf(msg Message) (ErrorPayload, error) {
	var p ErrorPayload
	if msg.Type != TypeError {
		return p, fmt.Errorf("not an error message: %s", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return p, fmt.Errorf("decode error payload: %w", err)
	}
	return p, nil
}

// DescriptionOf decodes the payload of an OFFER or ANSWER.
func DescriptionOf(msg Message) (Description, error) {
	var d Description
	if err := json.Unmarshal(msg.Payload, &d); err != nil {
		return d, fmt.Errorf("decode description: %w", err)
	}
	return d, nil
}

// NewDescriptionMessage builds an OFFER or ANSWER addressed to dst.
func NewDescriptionMessage(typ MessageType, dst string, d Description) (Message, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Dst: dst, Payload: payload}, nil
}
