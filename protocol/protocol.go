// Package protocol defines the JSON envelopes exchanged with the remote
// service and the decode-and-classify step that turns an inbound frame
// into a typed message.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/nodelink/errors"
)

// Action tags carried in the "action" and "origin_action" fields.
const (
	ActionAuth = "AUTH"
	ActionPong = "PONG"
	ActionPing = "PING"
)

// Fixed values reported by this client.
const (
	PingVersion   = "1.0.0"
	ClientVersion = "4.26.2"
	DeviceType    = "extension"
	ExtensionID   = "lkbnfiajjmbhnfledhphioinpickokdi"
	Origin        = "chrome-extension://" + ExtensionID
)

// Inbound is a decoded server message. It is one of *HandshakeRequest,
// *HeartbeatAck or *Unknown.
type Inbound interface {
	// Action returns the action tag as received.
	Action() string
	inbound()
}

// HandshakeRequest is an "AUTH" message asking the client to identify itself.
type HandshakeRequest struct {
	ID string
}

// HeartbeatAck is a "PONG" message the client must acknowledge.
type HeartbeatAck struct {
	ID string
}

// Unknown is any message with an unrecognized or missing action tag.
type Unknown struct {
	ID  string
	Tag string
	Raw json.RawMessage
}

func (*HandshakeRequest) Action() string { return ActionAuth }
func (*HeartbeatAck) Action() string     { return ActionPong }
func (u *Unknown) Action() string        { return u.Tag }

func (*HandshakeRequest) inbound() {}
func (*HeartbeatAck) inbound()     {}
func (*Unknown) inbound()          {}

// Decode parses one inbound frame and classifies it by action tag. Fields
// other than "id" and "action" are ignored. A tag that is not a string is
// Unknown with an empty Tag. AUTH and PONG messages must carry a string id
// since the reply echoes it.
func Decode(data []byte) (Inbound, error) {
	var raw struct {
		ID     json.RawMessage `json:"id"`
		Action json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Decode("parse envelope", err)
	}

	var tag string
	if len(raw.Action) > 0 {
		if err := json.Unmarshal(raw.Action, &tag); err != nil {
			tag = ""
		}
	}

	switch tag {
	case ActionAuth, ActionPong:
		id, err := decodeID(raw.ID)
		if err != nil {
			return nil, errors.Decode(fmt.Sprintf("parse %s id", tag), err)
		}
		if tag == ActionAuth {
			return &HandshakeRequest{ID: id}, nil
		}
		return &HeartbeatAck{ID: id}, nil
	default:
		id, _ := decodeID(raw.ID)
		return &Unknown{ID: id, Tag: tag, Raw: data}, nil
	}
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing id")
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", err
	}
	return id, nil
}

// Ping is the client heartbeat probe.
type Ping struct {
	ID      string   `json:"id"`
	Version string   `json:"version"`
	Action  string   `json:"action"`
	Data    struct{} `json:"data"`
}

// NewPing builds a heartbeat probe with the given identifier.
func NewPing(id string) *Ping {
	return &Ping{
		ID:      id,
		Version: PingVersion,
		Action:  ActionPing,
	}
}

// HandshakeResult is the identity block of a handshake response.
type HandshakeResult struct {
	BrowserID   string `json:"browser_id"`
	UserID      string `json:"user_id"`
	UserAgent   string `json:"user_agent"`
	Timestamp   int64  `json:"timestamp"`
	DeviceType  string `json:"device_type"`
	Version     string `json:"version"`
	ExtensionID string `json:"extension_id"`
}

// HandshakeResponse answers a HandshakeRequest.
type HandshakeResponse struct {
	ID           string          `json:"id"`
	OriginAction string          `json:"origin_action"`
	Result       HandshakeResult `json:"result"`
}

// NewHandshakeResponse builds the reply to req.
func NewHandshakeResponse(req *HandshakeRequest, deviceID, userID, userAgent string, unixSeconds int64) *HandshakeResponse {
	return &HandshakeResponse{
		ID:           req.ID,
		OriginAction: ActionAuth,
		Result: HandshakeResult{
			BrowserID:   deviceID,
			UserID:      userID,
			UserAgent:   userAgent,
			Timestamp:   unixSeconds,
			DeviceType:  DeviceType,
			Version:     ClientVersion,
			ExtensionID: ExtensionID,
		},
	}
}

// AckResponse answers a HeartbeatAck.
type AckResponse struct {
	ID           string `json:"id"`
	OriginAction string `json:"origin_action"`
}

// NewAckResponse builds the reply to ack.
func NewAckResponse(ack *HeartbeatAck) *AckResponse {
	return &AckResponse{
		ID:           ack.ID,
		OriginAction: ActionPong,
	}
}

// Encode serializes an outbound envelope.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal, "encode envelope")
	}
	return data, nil
}
