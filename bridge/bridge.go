package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wcproto/wc-server-go/wc"
)

// Transport moves opaque message text between a wallet and a bridge relay.
// One Transport instance serves many connection URLs; implementations key
// their internal state by the URL value.
//
// Callbacks on the registered Handler are delivered asynchronously: a
// Transport must never invoke a Handler from inside Listen, Send or
// Disconnect. Per URL, text delivery is ordered and at-most-once.
type Transport interface {
	// Listen establishes (or reuses) the relay connection for url and
	// registers h for its lifecycle and text events. HandleConnect fires
	// once the connection is usable.
	Listen(ctx context.Context, url wc.URL, h Handler) error

	// Send transmits one already-serialized message text for url.
	Send(ctx context.Context, url wc.URL, text string) error

	// Disconnect closes the connection for url. The Handler sees the
	// closure as HandleDisconnect with a nil error.
	Disconnect(ctx context.Context, url wc.URL) error

	// IsConnected reports whether a usable connection for url exists.
	IsConnected(url wc.URL) bool
}

// Handler receives transport lifecycle and text events for one URL.
type Handler interface {
	// HandleConnect fires when the connection for url becomes usable.
	HandleConnect(url wc.URL)

	// HandleDisconnect fires when the connection for url goes away: err
	// is nil after a requested Disconnect and non-nil after an
	// unexpected drop.
	HandleDisconnect(url wc.URL, err error)

	// HandleText delivers one inbound message text published to a topic
	// the connection is subscribed to.
	HandleText(url wc.URL, text string)
}

// MessageType distinguishes the two relay operations.
type MessageType string

const (
	// MessageTypePub publishes a payload to a topic.
	MessageTypePub MessageType = "pub"
	// MessageTypeSub subscribes the sending connection to a topic.
	// Subscription is an ordinary message, not a transport primitive.
	MessageTypeSub MessageType = "sub"
)

// Message is the pub/sub envelope understood by bridge relays. Payload is
// opaque to the relay; Silent asks it not to trigger push notifications.
type Message struct {
	Topic   string      `json:"topic"`
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
	Silent  bool        `json:"silent"`
}

// NewSubMessage builds the subscription envelope for a topic.
func NewSubMessage(topic string) Message {
	return Message{Topic: topic, Type: MessageTypeSub, Silent: true}
}

// NewPubMessage builds a publish envelope carrying payload.
func NewPubMessage(topic, payload string) Message {
	return Message{Topic: topic, Type: MessageTypePub, Payload: payload, Silent: true}
}

// Encode renders the envelope as message text.
func (m Message) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode bridge message: %w", err)
	}
	return string(raw), nil
}

// DecodeMessage parses message text into an envelope.
func DecodeMessage(text string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return Message{}, fmt.Errorf("decode bridge message: %w", err)
	}
	if m.Type != MessageTypePub && m.Type != MessageTypeSub {
		return Message{}, fmt.Errorf("decode bridge message: unknown type %q", m.Type)
	}
	if m.Topic == "" {
		return Message{}, fmt.Errorf("decode bridge message: missing topic")
	}
	return m, nil
}
