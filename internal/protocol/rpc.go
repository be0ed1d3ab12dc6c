package protocol

import "encoding/json"

// RPCMessage is the framing used between the server handler and its
// transports (WebSocket, stdio). A request carries an ID; a notification
// does not.
type RPCMessage struct {
	ID      interface{}     `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EncodeRPC encodes any payload into a RawMessage for inclusion in an RPCMessage
func EncodeRPC(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
