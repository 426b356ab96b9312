package repositories

import (
	"fmt"
	"time"

	"postbox/domain"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format. Field numbers below are part of
// the on-disk layout: never renumber, only append.
const (
	participantID        protowire.Number = 1
	participantUsername  protowire.Number = 2
	participantHash      protowire.Number = 3
	participantLastLogin protowire.Number = 4
	participantCreatedAt protowire.Number = 5
	participantUpdatedAt protowire.Number = 6
)

const (
	messageID          protowire.Number = 1
	messageTitle       protowire.Number = 2
	messageBody        protowire.Number = 3
	messageSenderID    protowire.Number = 4
	messageRecipientID protowire.Number = 5
	messageRead        protowire.Number = 6
	messageCreatedAt   protowire.Number = 7
	messageUpdatedAt   protowire.Number = 8
)

func marshalParticipant(p domain.Participant) []byte {
	var b []byte
	b = appendString(b, participantID, p.ID)
	b = appendString(b, participantUsername, p.Username)
	b = appendString(b, participantHash, p.PasswordHash)
	b = appendOptionalTime(b, participantLastLogin, p.LastLogin)
	b = appendTime(b, participantCreatedAt, p.CreatedAt)
	b = appendOptionalTime(b, participantUpdatedAt, p.UpdatedAt)
	return b
}

func unmarshalParticipant(b []byte) (domain.Participant, error) {
	var p domain.Participant
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case participantID:
			return consumeString(typ, b, &p.ID)
		case participantUsername:
			return consumeString(typ, b, &p.Username)
		case participantHash:
			return consumeString(typ, b, &p.PasswordHash)
		case participantLastLogin:
			return consumeOptionalTime(typ, b, &p.LastLogin)
		case participantCreatedAt:
			return consumeTime(typ, b, &p.CreatedAt)
		case participantUpdatedAt:
			return consumeOptionalTime(typ, b, &p.UpdatedAt)
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant: %w", err)
	}
	return p, nil
}

func marshalMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, messageID, m.ID)
	b = appendString(b, messageTitle, m.Title)
	b = appendString(b, messageBody, m.Body)
	b = appendString(b, messageSenderID, m.SenderID)
	b = appendString(b, messageRecipientID, m.RecipientID)
	if m.Read {
		b = protowire.AppendTag(b, messageRead, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	b = appendTime(b, messageCreatedAt, m.CreatedAt)
	b = appendOptionalTime(b, messageUpdatedAt, m.UpdatedAt)
	return b
}

func unmarshalMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case messageID:
			return consumeString(typ, b, &m.ID)
		case messageTitle:
			return consumeString(typ, b, &m.Title)
		case messageBody:
			return consumeString(typ, b, &m.Body)
		case messageSenderID:
			return consumeString(typ, b, &m.SenderID)
		case messageRecipientID:
			return consumeString(typ, b, &m.RecipientID)
		case messageRead:
			return consumeBool(typ, b, &m.Read)
		case messageCreatedAt:
			return consumeTime(typ, b, &m.CreatedAt)
		case messageUpdatedAt:
			return consumeOptionalTime(typ, b, &m.UpdatedAt)
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// DecodeParticipant decodes a raw participant record.
func DecodeParticipant(b []byte) (domain.Participant, error) { return unmarshalParticipant(b) }

// DecodeMessage decodes a raw message record.
func DecodeMessage(b []byte) (domain.Message, error) { return unmarshalMessage(b) }

// Empty strings are omitted, as proto3 does for scalar defaults.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Times are stored as signed nanoseconds since the Unix epoch.
func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixNano()))
}

func appendOptionalTime(b []byte, num protowire.Number, t *time.Time) []byte {
	if t == nil {
		return b
	}
	return appendTime(b, num, *t)
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, out *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("unexpected wire type %d for string", typ)
	}
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = s
	return n, nil
}

func consumeBool(typ protowire.Type, b []byte, out *bool) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("unexpected wire type %d for bool", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = protowire.DecodeBool(v)
	return n, nil
}

func consumeTime(typ protowire.Type, b []byte, out *time.Time) (int, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("unexpected wire type %d for timestamp", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
	return n, nil
}

func consumeOptionalTime(typ protowire.Type, b []byte, out **time.Time) (int, error) {
	var t time.Time
	n, err := consumeTime(typ, b, &t)
	if err != nil {
		return 0, err
	}
	*out = &t
	return n, nil
}

// skip ignores fields written by a newer layout.
func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
