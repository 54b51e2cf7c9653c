package message

import (
	"errors"
	"fmt"
	"time"
)

// Source represents the origin platform of a message.
type Source string

const (
	SourceSlack    Source = "slack"
	SourceGmail    Source = "gmail"
	SourceWhatsApp Source = "whatsapp"
	SourceTelegram Source = "telegram"
)

// Type classifies how a message reached the user.
type Type string

const (
	TypeChannel Type = "channel"
	TypeDirect  Type = "direct"
	TypeEmail   Type = "email"
	TypeChat    Type = "chat"
)

// Portable form keys.
const (
	KeySource       = "source"
	KeySender       = "sender"
	KeySenderDetail = "sender_detail"
	KeyContent      = "content"
	KeyTimestamp    = "timestamp"
	KeyType         = "message_type"
)

// Message represents a unified message from any source. Values are treated as
// immutable once a collector has built them.
type Message struct {
	Source       Source    `json:"source"`
	Sender       string    `json:"sender"`
	SenderDetail string    `json:"sender_detail"` // channel, email address or phone number
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Type         Type      `json:"message_type"`
}

// New creates a message with every field set.
func New(source Source, sender, senderDetail, content string, ts time.Time, typ Type) Message {
	return Message{
		Source:       source,
		Sender:       sender,
		SenderDetail: senderDetail,
		Content:      content,
		Timestamp:    ts,
		Type:         typ,
	}
}

// Equal reports whether two messages carry the same field values. Timestamps
// are compared as instants, so location and monotonic readings are ignored.
func (m Message) Equal(o Message) bool {
	return m.Source == o.Source &&
		m.Sender == o.Sender &&
		m.SenderDetail == o.SenderDetail &&
		m.Content == o.Content &&
		m.Type == o.Type &&
		m.Timestamp.Equal(o.Timestamp)
}

// Validate returns an error naming every missing field.
func (m Message) Validate() error {
	var errs []error
	if m.Source == "" {
		errs = append(errs, errors.New("source is empty"))
	}
	if m.Sender == "" {
		errs = append(errs, errors.New("sender is empty"))
	}
	if m.SenderDetail == "" {
		errs = append(errs, errors.New("sender_detail is empty"))
	}
	if m.Content == "" {
		errs = append(errs, errors.New("content is empty"))
	}
	if m.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is zero"))
	}
	if m.Type == "" {
		errs = append(errs, errors.New("message_type is empty"))
	}
	return errors.Join(errs...)
}

// Portable returns the message as a flat field map with the timestamp in
// RFC 3339 form with nanoseconds.
func (m Message) Portable() map[string]string {
	return map[string]string{
		KeySource:       string(m.Source),
		KeySender:       m.Sender,
		KeySenderDetail: m.SenderDetail,
		KeyContent:      m.Content,
		KeyTimestamp:    m.Timestamp.Format(time.RFC3339Nano),
		KeyType:         string(m.Type),
	}
}

// FromPortable is the inverse of Portable.
func FromPortable(data map[string]string) (Message, error) {
	for _, key := range []string{KeySource, KeySender, KeySenderDetail, KeyContent, KeyTimestamp, KeyType} {
		if _, ok := data[key]; !ok {
			return Message{}, fmt.Errorf("missing field %q", key)
		}
	}

	ts, err := time.Parse(time.RFC3339Nano, data[KeyTimestamp])
	if err != nil {
		return Message{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return Message{
		Source:       Source(data[KeySource]),
		Sender:       data[KeySender],
		SenderDetail: data[KeySenderDetail],
		Content:      data[KeyContent],
		Timestamp:    ts,
		Type:         Type(data[KeyType]),
	}, nil
}
