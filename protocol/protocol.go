// Package protocol defines the messages exchanged over a peer connection and
// decodes untrusted input into them.
package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

// Version is the protocol version spoken by this build. Peers declaring a
// different version are disconnected.
const Version = "2.0"

const (
	TypeChallenge         = "challenge"
	TypeChallengeResponse = "challenge-response"
	TypeHandshake         = "handshake"
	TypeSyncRequest       = "sync-request"
	TypeSyncData          = "sync-data"
)

const (
	schemaFile = "schema.json"
	maxDepth   = 32
)

var (
	// ErrMalformed is returned for input that is not a valid message.
	ErrMalformed = errors.New("protocol: malformed message")
	// ErrTooLarge is returned for input above the size limit.
	ErrTooLarge = errors.New("protocol: message too large")
	// ErrUnsafePayload is returned for input nested deeper than allowed.
	ErrUnsafePayload = errors.New("protocol: unsafe payload")
)

//go:embed schema.json
var Schema string

var schema = jsonschema.MustCompileString(schemaFile, Schema)

// forbiddenKeys are dropped wherever they appear. Consumers that re-serialize
// settings into a prototype-based runtime would otherwise be exposed.
var forbiddenKeys = [...]string{"__proto__", "constructor", "prototype"}

// Message is implemented by every protocol message.
type Message interface {
	Type() string
	ProtocolVersion() string
}

// Header is the envelope shared by all messages.
type Header struct {
	Kind    string `json:"type"`
	Version string `json:"version"`
}

func (h Header) Type() string            { return h.Kind }
func (h Header) ProtocolVersion() string { return h.Version }

func header(kind string) Header {
	return Header{Kind: kind, Version: Version}
}

type Challenge struct {
	Header
	Nonce string `json:"nonce"`
}

type ChallengeResponse struct {
	Header
	Response string `json:"response"`
	DeviceID string `json:"deviceId"`
}

type Handshake struct {
	Header
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

type SyncRequest struct {
	Header
}

type SyncData struct {
	Header
	Payload *state.Snapshot `json:"payload"`
}

func NewChallenge(nonce string) *Challenge {
	return &Challenge{Header: header(TypeChallenge), Nonce: nonce}
}

func NewChallengeResponse(response, deviceID string) *ChallengeResponse {
	return &ChallengeResponse{Header: header(TypeChallengeResponse), Response: response, DeviceID: deviceID}
}

func NewHandshake(deviceID, deviceName string) *Handshake {
	return &Handshake{Header: header(TypeHandshake), DeviceID: deviceID, DeviceName: deviceName}
}

func NewSyncRequest() *SyncRequest {
	return &SyncRequest{Header: header(TypeSyncRequest)}
}

func NewSyncData(payload *state.Snapshot) *SyncData {
	return &SyncData{Header: header(TypeSyncData), Payload: payload}
}

// Encode serializes msg.
func Encode(msg Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return b, nil
}

// Decode parses untrusted input. The top level must be a JSON object no
// larger than maxSize bytes; forbidden keys are removed at every depth
// before the object is validated and converted into its typed message.
func Decode(b []byte, maxSize int) (Message, error) {
	if maxSize > 0 && len(b) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %T, not an object", ErrMalformed, v)
	}
	if err := sanitize(obj, 0); err != nil {
		return nil, err
	}
	if err := schema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var msg Message
	switch obj["type"] {
	case TypeChallenge:
		msg = &Challenge{}
	case TypeChallengeResponse:
		msg = &ChallengeResponse{}
	case TypeHandshake:
		msg = &Handshake{}
	case TypeSyncRequest:
		msg = &SyncRequest{}
	case TypeSyncData:
		msg = &SyncData{}
	default:
		return nil, fmt.Errorf("%w: unknown type %v", ErrMalformed, obj["type"])
	}
	if err := decodeInto(obj, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if sd, ok := msg.(*SyncData); ok {
		if sd.Payload == nil {
			sd.Payload = state.New()
		}
		sd.Payload.Normalize()
	}
	return msg, nil
}

func decodeInto(obj map[string]any, msg Message) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: false,
		Result:           msg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(obj)
}

func sanitize(v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: nested deeper than %d", ErrUnsafePayload, maxDepth)
	}
	switch v := v.(type) {
	case map[string]any:
		for _, key := range forbiddenKeys {
			delete(v, key)
		}
		for _, e := range v {
			if err := sanitize(e, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range v {
			if err := sanitize(e, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
