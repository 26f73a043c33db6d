package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies the type of a push frame.
type Kind string

const (
	KindPing       Kind = "ping"
	KindPong       Kind = "pong"
	KindDataUpdate Kind = "data_update"
)

// Errors
var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrNotObject  = errors.New("frame is not a JSON object")
)

// Frame is a decoded inbound push message.
type Frame struct {
	Kind   Kind   // Value of the "type" field
	Entity string // Value of the "entity" field (data_update only)

	// Payload holds every top-level field of the frame, including "type"
	// and "entity". It is a signal of what changed, not authoritative state.
	Payload map[string]any

	Raw        []byte    // Original bytes as received
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// envelope is the minimal shape every frame must satisfy.
type envelope struct {
	Type   Kind   `json:"type"`
	Entity string `json:"entity,omitempty"`
}

// DecodeFrame parses a text frame. It fails on non-JSON input, on anything
// other than a JSON object, and on a non-string type or entity field.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("decode envelope: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Frame{}, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		return Frame{}, ErrNotObject
	}

	return Frame{
		Kind:    env.Type,
		Entity:  env.Entity,
		Payload: payload,
		Raw:     data,
	}, nil
}

// Field returns a top-level payload field.
func (f Frame) Field(name string) (any, bool) {
	v, ok := f.Payload[name]
	return v, ok
}

// ID returns the "id" field rendered as a string, or "" if absent.
func (f Frame) ID() string {
	v, ok := f.Payload["id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// EncodePing returns the outbound heartbeat frame.
func EncodePing() []byte {
	data, _ := json.Marshal(envelope{Type: KindPing})
	return data
}
