package websocket

import (
	"bytes"
	"encoding/json"
	"time"

	"coursehub/internal/microservices/http-api/dto"
)

// Playback session protocol

type MessageType string

const (
	TypePosition MessageType = "position" // periodic playback tick
	TypeComplete MessageType = "complete" // playback reached the end
	TypePause    MessageType = "pause"    // player paused or tab hidden, flush now
	TypeAck      MessageType = "ack"
	TypeError    MessageType = "error"
)

// Message is a frame sent by the player.
type Message struct {
	Type            MessageType `json:"type"`
	PositionSeconds *float64    `json:"position_seconds,omitempty"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
}

// Reply is a frame sent back to the player.
type Reply struct {
	Type      MessageType           `json:"type"`
	For       MessageType           `json:"for,omitempty"`
	Message   string                `json:"message,omitempty"`
	Progress  *dto.ProgressResponse `json:"progress,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

func NewAck(forType MessageType, progress *dto.ProgressResponse) *Reply {
	return &Reply{Type: TypeAck, For: forType, Progress: progress, Timestamp: time.Now().UTC()}
}

func NewErrorReply(message string) *Reply {
	return &Reply{Type: TypeError, Message: message, Timestamp: time.Now().UTC()}
}

func (r *Reply) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// MessageFromJSON rejects unknown fields so malformed player frames never reach the service.
func MessageFromJSON(data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
