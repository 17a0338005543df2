package ws

import "encoding/json"

// Envelope is the wire framing for every inbound real-time message.
//
//	{ "type": "game_update" | "player_joined" | "player_left" | "error",
//	  "data"?: <payload>, "message"?: string }
type Envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Event is what the Manager delivers to its consumer, in the order the
// transport yielded it.
type Event interface{ isConnEvent() }

// Connected is emitted once per successful (re)connect.
type Connected struct{}

// Disconnected is emitted when an established connection drops, for any
// reason. Soft status: a reconnect may follow.
type Disconnected struct{}

// Inbound carries one decoded message.
type Inbound struct {
	Envelope Envelope
}

// ConnectionLost is the single terminal error after the reconnection
// budget is exhausted.
type ConnectionLost struct {
	Err error
}

func (Connected) isConnEvent()      {}
func (Disconnected) isConnEvent()   {}
func (Inbound) isConnEvent()        {}
func (ConnectionLost) isConnEvent() {}
