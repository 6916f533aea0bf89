// Package wctest provides a scripted dApp peer for exercising wallet
// servers over a real transport. The DApp mints its own connection URL,
// drives the handshake from the dApp side, and records every JSON-RPC
// payload published to it.
package wctest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wcproto/wc-server-go/bridge"
	"github.com/wcproto/wc-server-go/wc"
)

const waitTimeout = 2 * time.Second

// RPC is one JSON-RPC payload the dApp received, decoded loosely so
// tests can pick out whichever fields they care about.
type RPC struct {
	Topic  string            `json:"-"`
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Result json.RawMessage   `json:"result"`
	Error  *RPCError         `json:"error"`
}

// RPCError is the error member of a received response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DApp is a scripted dApp-side peer. Create one with NewDApp, call
// Connect, then share URL with the wallet under test.
type DApp struct {
	// URL is the connection URL the dApp would encode into a QR code.
	URL wc.URL

	// PeerID is the dApp's pub/sub identity.
	PeerID string

	// Meta describes the dApp in its session request.
	Meta wc.ClientMeta

	transport bridge.Transport
	connURL   wc.URL

	connectOnce sync.Once
	connected   chan struct{}
	closed      chan error
	inbox       chan RPC
}

// NewDApp mints a fresh connection URL against bridgeURL and returns a
// dApp ready to Connect over transport.
func NewDApp(transport bridge.Transport, bridgeURL string) (*DApp, error) {
	key, err := wc.NewKey()
	if err != nil {
		return nil, err
	}
	peerID := wc.NewPeerID()
	return &DApp{
		URL: wc.URL{
			Topic:   uuid.NewString(),
			Version: "1",
			Bridge:  bridgeURL,
			Key:     key,
		},
		PeerID: peerID,
		Meta: wc.ClientMeta{
			Description: "scripted dApp peer",
			URL:         "https://dapp.example.org",
			Name:        "wctest dApp",
		},
		transport: transport,
		// The dApp holds its own connection to the bridge, keyed by its
		// peer identity rather than the shared session URL.
		connURL: wc.URL{
			Topic:   peerID,
			Version: "1",
			Bridge:  bridgeURL,
			Key:     key,
		},
		connected: make(chan struct{}),
		closed:    make(chan error, 1),
		inbox:     make(chan RPC, 32),
	}, nil
}

// Connect opens the dApp's bridge connection and subscribes to its own
// peer topic, where handshake responses and wallet requests arrive.
func (d *DApp) Connect(ctx context.Context) error {
	if err := d.transport.Listen(ctx, d.connURL, d); err != nil {
		return fmt.Errorf("dapp listen: %w", err)
	}
	select {
	case <-d.connected:
	case <-ctx.Done():
		return ctx.Err()
	}

	text, err := bridge.NewSubMessage(d.PeerID).Encode()
	if err != nil {
		return err
	}
	return d.transport.Send(ctx, d.connURL, text)
}

// Close tears down the dApp's bridge connection.
func (d *DApp) Close(ctx context.Context) error {
	return d.transport.Disconnect(ctx, d.connURL)
}

// RequestSession publishes a wc_sessionRequest on the shared connection
// topic, as a dApp does right after displaying its QR code.
func (d *DApp) RequestSession(ctx context.Context, id int64) error {
	chain := int64(1)
	return d.SendRequest(ctx, d.URL.Topic, id, string(wc.SessionRequestMethod),
		wc.DAppInfo{PeerID: d.PeerID, PeerMeta: d.Meta, ChainID: &chain})
}

// SendUpdate publishes a wc_sessionUpdate to the wallet's peer topic.
func (d *DApp) SendUpdate(ctx context.Context, walletTopic string, id int64, approved bool) error {
	return d.SendRequest(ctx, walletTopic, id, string(wc.SessionUpdateMethod),
		wc.SessionUpdate{Approved: approved})
}

// SendRequest publishes an arbitrary JSON-RPC request to topic.
func (d *DApp) SendRequest(ctx context.Context, topic string, id int64, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	raw, err := json.Marshal(map[string]any{
		"id":      id,
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	text, err := bridge.NewPubMessage(topic, string(raw)).Encode()
	if err != nil {
		return err
	}
	return d.transport.Send(ctx, d.connURL, text)
}

// WaitRPC blocks until the dApp receives a JSON-RPC payload.
func (d *DApp) WaitRPC(t *testing.T) RPC {
	t.Helper()
	select {
	case rpc := <-d.inbox:
		return rpc
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for an rpc payload at the dApp")
		return RPC{}
	}
}

// ExpectNoRPC fails the test if a payload arrives within the settle
// window.
func (d *DApp) ExpectNoRPC(t *testing.T) {
	t.Helper()
	select {
	case rpc := <-d.inbox:
		t.Fatalf("unexpected rpc payload at the dApp: method=%q id=%s", rpc.Method, rpc.ID)
	case <-time.After(300 * time.Millisecond):
	}
}

// WaitDisconnect blocks until the dApp's connection closes and returns
// the error the transport reported.
func (d *DApp) WaitDisconnect(t *testing.T) error {
	t.Helper()
	select {
	case err := <-d.closed:
		return err
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for the dApp connection to close")
		return nil
	}
}

// HandleConnect implements bridge.Handler.
func (d *DApp) HandleConnect(url wc.URL) {
	d.connectOnce.Do(func() { close(d.connected) })
}

// HandleDisconnect implements bridge.Handler.
func (d *DApp) HandleDisconnect(url wc.URL, err error) {
	select {
	case d.closed <- err:
	default:
	}
}

// HandleText implements bridge.Handler. Non-pub envelopes and
// undecodable payloads are dropped.
func (d *DApp) HandleText(url wc.URL, text string) {
	msg, err := bridge.DecodeMessage(text)
	if err != nil || msg.Type != bridge.MessageTypePub {
		return
	}
	var rpc RPC
	if err := json.Unmarshal([]byte(msg.Payload), &rpc); err != nil {
		return
	}
	rpc.Topic = msg.Topic
	select {
	case d.inbox <- rpc:
	default:
	}
}

// Compile-time interface check
var _ bridge.Handler = (*DApp)(nil)
