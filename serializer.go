package wcserver

import (
	"encoding/json"
	"fmt"

	"github.com/wcproto/wc-server-go/bridge"
	"github.com/wcproto/wc-server-go/internal/jsonrpc"
	"github.com/wcproto/wc-server-go/wc"
)

// Serializer converts between envelope values and the opaque text the
// transport carries. Implementations must be safe for concurrent use.
//
// The default JSONSerializer produces plain JSON inside the relay's
// pub/sub envelope. An encrypting serializer slots in here without the
// server knowing: it sees text on one side and envelopes on the other.
type Serializer interface {
	// SerializeRequest renders req as transport text published to topic.
	SerializeRequest(req *Request, topic string) (string, error)

	// SerializeResponse renders res as transport text published to topic.
	SerializeResponse(res *Response, topic string) (string, error)

	// DeserializeRequest parses inbound transport text into a request
	// bound to url. Inbound JSON-RPC responses surface as
	// ErrResponseIgnored; anything unparseable as ErrDeserialization.
	DeserializeRequest(text string, url wc.URL) (*Request, error)
}

// JSONSerializer is the default plain-text Serializer.
type JSONSerializer struct{}

// SerializeRequest implements Serializer.
func (JSONSerializer) SerializeRequest(req *Request, topic string) (string, error) {
	raw, err := json.Marshal(req.payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return encodePub(topic, string(raw))
}

// SerializeResponse implements Serializer.
func (JSONSerializer) SerializeResponse(res *Response, topic string) (string, error) {
	raw, err := json.Marshal(res.payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return encodePub(topic, string(raw))
}

// DeserializeRequest implements Serializer.
func (JSONSerializer) DeserializeRequest(text string, url wc.URL) (*Request, error) {
	msg, err := bridge.DecodeMessage(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}

	var any jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(msg.Payload), &any); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if res := any.AsResponse(); res != nil {
		return nil, fmt.Errorf("%w: id %s", ErrResponseIgnored, res.ID.String())
	}

	return newRequest(url, any.AsRequest()), nil
}

func encodePub(topic, payload string) (string, error) {
	text, err := bridge.NewPubMessage(topic, payload).Encode()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return text, nil
}

// Compile-time interface check
var _ Serializer = JSONSerializer{}
