package consumer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Decode failure reasons, used as metric labels.
const (
	reasonShortFrame    = "short_frame"
	reasonMagicByte     = "magic_byte"
	reasonMissingHeader = "missing_header"
	reasonInvalidJSON   = "invalid_json"
)

// envelopeHeaderLen covers the magic byte and the big-endian schema ID.
const envelopeHeaderLen = 5

// DecodeError reports a record that cannot be turned into a Message.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Reason, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeFailure(reason, format string, args ...any) *DecodeError {
	return &DecodeError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// envelope is the Schema Registry framing written by the outbox dispatcher.
type envelope struct {
	schemaID int
	body     json.RawMessage
}

func openEnvelope(value []byte) (envelope, error) {
	if len(value) < envelopeHeaderLen {
		return envelope{}, decodeFailure(reasonShortFrame, "record is %d bytes", len(value))
	}
	if value[0] != 0 {
		return envelope{}, decodeFailure(reasonMagicByte, "magic byte %d", value[0])
	}
	body := value[envelopeHeaderLen:]
	if !json.Valid(body) {
		return envelope{}, decodeFailure(reasonInvalidJSON, "body is not JSON")
	}
	return envelope{
		schemaID: int(binary.BigEndian.Uint32(value[1:envelopeHeaderLen])),
		body:     append(json.RawMessage(nil), body...),
	}, nil
}

// applyHeaders copies the routing headers onto msg. event_type is required.
func (msg *Message) applyHeaders(headers []kafka.Header) error {
	for _, h := range headers {
		switch h.Key {
		case "event_type":
			msg.EventType = string(h.Value)
		case "user_id":
			msg.UserID = string(h.Value)
		case "schema_subject":
			msg.SchemaSubject = string(h.Value)
		}
	}
	if msg.EventType == "" {
		return decodeFailure(reasonMissingHeader, "event_type header absent")
	}
	return nil
}

func decode(record kafka.Message) (Message, error) {
	env, err := openEnvelope(record.Value)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Time,
		SchemaID:  env.schemaID,
		Payload:   env.body,
	}
	if err := msg.applyHeaders(record.Headers); err != nil {
		return Message{}, err
	}
	return msg, nil
}
