package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Keys injected into the payload before it is published to the stream.
const (
	FieldRawEventID     = "raw_data_id"
	FieldPlatformFamily = "platform_type"
	FieldPlatformName   = "platform_name"
)

// ErrMalformedMessage is returned when a stream entry cannot be decoded.
var ErrMalformedMessage = errors.New("malformed queue message")

// QueueMessage is a stream entry pointing at a RawEvent. The payload is
// carried along so the consumer does not need to read it back.
type QueueMessage struct {
	StreamID       string          `json:"-"`
	RawEventID     int64           `json:"raw_data_id"`
	PlatformFamily string          `json:"platform_type"`
	PlatformName   string          `json:"platform_name"`
	Payload        json.RawMessage `json:"-"`
}

// Encode returns the payload augmented with the raw event id and the
// platform identifiers. The payload must be a JSON object.
func (m QueueMessage) Encode() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &fields); err != nil {
			return nil, fmt.Errorf("payload is not a JSON object: %w", err)
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	id, _ := json.Marshal(m.RawEventID)
	family, _ := json.Marshal(m.PlatformFamily)
	name, _ := json.Marshal(m.PlatformName)
	fields[FieldRawEventID] = id
	fields[FieldPlatformFamily] = family
	fields[FieldPlatformName] = name

	return json.Marshal(fields)
}

// DecodeMessage parses a stream entry produced by Encode.
func DecodeMessage(data []byte) (QueueMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return QueueMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return QueueMessage{}, fmt.Errorf("%w: payload is null", ErrMalformedMessage)
	}

	var msg QueueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return QueueMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.RawEventID <= 0 {
		return QueueMessage{}, fmt.Errorf("%w: missing %s", ErrMalformedMessage, FieldRawEventID)
	}
	if msg.PlatformFamily == "" || msg.PlatformName == "" {
		return QueueMessage{}, fmt.Errorf("%w: missing platform identifiers", ErrMalformedMessage)
	}

	msg.Payload = json.RawMessage(data)
	return msg, nil
}
