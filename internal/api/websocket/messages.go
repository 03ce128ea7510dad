package websocket

import (
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/devices"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Channel readbacks from the poller
	MessageTypeReadbacks MessageType = "readbacks"

	// Writes through the REST API
	MessageTypeSetpoint MessageType = "setpoint"
	MessageTypeEnergy   MessageType = "energy"

	// Client commands
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

type ReadbackData struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Quality   string    `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// SetpointData describes a write to one element or array of a peer.
type SetpointData struct {
	Peer     string    `json:"peer"`
	Target   string    `json:"target"`
	Quantity string    `json:"quantity"`
	Values   []float64 `json:"values"`
	Units    []string  `json:"units"`
	User     string    `json:"user,omitempty"`
}

type EnergyData struct {
	Energy         float64 `json:"energy"`
	MagnetRigidity float64 `json:"magnet_rigidity"`
	User           string  `json:"user,omitempty"`
}

// ClientCommand is what clients send: {"type":"subscribe","names":["QF1-PS:RB"]}.
// Subscribing to nothing means everything.
type ClientCommand struct {
	Type  MessageType `json:"type"`
	Names []string    `json:"names"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewReadbacksMessage(readings []devices.Reading) Message {
	data := make([]ReadbackData, len(readings))
	for i, r := range readings {
		data[i] = ReadbackData{
			Name:      r.Name,
			Value:     r.Value.Value,
			Unit:      r.Unit,
			Quality:   string(r.Value.Quality),
			Timestamp: r.Value.Timestamp,
		}
	}
	return NewMessage(MessageTypeReadbacks, data)
}

func NewSetpointMessage(data SetpointData) Message {
	return NewMessage(MessageTypeSetpoint, data)
}

func NewEnergyMessage(energy, brho float64, user string) Message {
	return NewMessage(MessageTypeEnergy, EnergyData{Energy: energy, MagnetRigidity: brho, User: user})
}
