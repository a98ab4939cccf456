package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned when an envelope names an event outside the
// expected direction's closed set.
var ErrUnknownEvent = errors.New("wire: unknown event")

// Envelope is the frame format: every websocket text message is one
// envelope. Data is decoded lazily once the event name is known.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope for event.
func NewEnvelope(event Event, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: encode %s: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// Encode marshals payload for event straight to frame bytes.
func Encode(event Event, payload any) ([]byte, error) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return env.Marshal()
}

// Marshal returns the frame bytes of env.
func (env Envelope) Marshal() ([]byte, error) {
	return json.Marshal(env)
}

// ParseEnvelope decodes one frame. It does not look at Data.
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("wire: decode envelope: missing event name")
	}
	return env, nil
}

func (env Envelope) decode(v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("wire: %s: missing payload", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("wire: %s: %w", env.Event, err)
	}
	return nil
}
