package stream

import "encoding/json"

// Envelope types carried over the channel. Unknown inbound types are
// ignored, never fatal.
const (
	TypeAuth     = "auth"
	TypeJoin     = "session:join"
	TypeLeave    = "session:leave"
	TypeLocation = "session:location"

	TypeError              = "error"
	TypeMemberJoined       = "member:joined"
	TypeMemberLeft         = "member:left"
	TypeMemberDisconnected = "member:disconnected"
	TypeLocationUpdate     = "member:locationUpdate"
	TypeMessageNew         = "message:new"
	TypePoiCreated         = "poi:created"
	TypePoiDeleted         = "poi:deleted"
	TypeRouteCreated       = "route:created"
	TypeRouteDeleted       = "route:deleted"
	TypeSessionEnded       = "session:ended"
)

// Inbound is the union of all client-to-server envelopes.
type Inbound struct {
	Type      string   `json:"type"`
	Token     string   `json:"token,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Lat       float64  `json:"lat,omitempty"`
	Lng       float64  `json:"lng,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

// Outbound is a server push with an optional payload under "data".
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// LocationUpdate is the data payload of a member:locationUpdate envelope.
type LocationUpdate struct {
	UserID    string   `json:"userId"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

// Push marshals an outbound envelope. Payloads are plain structs and maps,
// so the marshal cannot fail in practice.
func Push(envelopeType string, data any) []byte {
	payload, _ := json.Marshal(Outbound{Type: envelopeType, Data: data})
	return payload
}
