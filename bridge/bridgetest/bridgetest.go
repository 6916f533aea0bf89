// Package bridgetest provides a reusable conformance suite for
// bridge.Transport implementations, plus a Recorder handler that collects
// transport callbacks behind waitable channels.
package bridgetest

import (
	"context"
	"testing"
	"time"

	"github.com/wcproto/wc-server-go/bridge"
	"github.com/wcproto/wc-server-go/wc"
)

// TransportFactory creates a fresh transport instance for one subtest.
type TransportFactory func(t *testing.T) bridge.Transport

// RunTransportTests runs the complete transport contract suite against the
// provided factory.
func RunTransportTests(t *testing.T, factory TransportFactory) {
	t.Run("ListenDeliversConnect", func(t *testing.T) {
		testListenDeliversConnect(t, factory)
	})
	t.Run("PublishRoutesToSubscriber", func(t *testing.T) {
		testPublishRoutesToSubscriber(t, factory)
	})
	t.Run("DeliveryPreservesOrder", func(t *testing.T) {
		testDeliveryPreservesOrder(t, factory)
	})
	t.Run("PublishWithoutSubscriberIsRetained", func(t *testing.T) {
		testPublishWithoutSubscriberIsRetained(t, factory)
	})
	t.Run("RetainedDeliveredBeforeLivePublishes", func(t *testing.T) {
		testRetainedDeliveredBeforeLivePublishes(t, factory)
	})
	t.Run("TopicIsolation", func(t *testing.T) {
		testTopicIsolation(t, factory)
	})
	t.Run("DisconnectReportsNilError", func(t *testing.T) {
		testDisconnectReportsNilError(t, factory)
	})
}

func testListenDeliversConnect(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	defer closeTransport(t, tr)
	ctx := context.Background()

	url := NewURL("listen-topic")
	rec := NewRecorder()
	if err := tr.Listen(ctx, url, rec); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	got := rec.WaitConnect(t)
	if got != url {
		t.Fatalf("Expected connect for %v, got %v", url, got)
	}
	if !tr.IsConnected(url) {
		t.Fatal("Expected IsConnected to report true after connect")
	}
}

func testPublishRoutesToSubscriber(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	defer closeTransport(t, tr)
	ctx := context.Background()

	walletURL := NewURL("route-wallet")
	dappURL := NewURL("route-dapp")
	wallet := NewRecorder()
	dapp := NewRecorder()

	if err := tr.Listen(ctx, walletURL, wallet); err != nil {
		t.Fatalf("Failed to listen (wallet): %v", err)
	}
	if err := tr.Listen(ctx, dappURL, dapp); err != nil {
		t.Fatalf("Failed to listen (dapp): %v", err)
	}
	wallet.WaitConnect(t)
	dapp.WaitConnect(t)

	// The wallet subscribes to a shared topic, the dapp publishes to it.
	if err := sendMessage(ctx, tr, walletURL, bridge.NewSubMessage("shared-topic")); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	waitSettle()
	if err := sendMessage(ctx, tr, dappURL, bridge.NewPubMessage("shared-topic", `{"hello":"wallet"}`)); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	ev := wallet.WaitText(t)
	if ev.URL != walletURL {
		t.Fatalf("Expected delivery on wallet url, got %v", ev.URL)
	}
	msg, err := bridge.DecodeMessage(ev.Text)
	if err != nil {
		t.Fatalf("Failed to decode delivered text: %v", err)
	}
	if msg.Topic != "shared-topic" || msg.Payload != `{"hello":"wallet"}` {
		t.Fatalf("Unexpected delivery: %+v", msg)
	}
}

func testDeliveryPreservesOrder(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	defer closeTransport(t, tr)
	ctx := context.Background()

	subURL := NewURL("order-sub")
	pubURL := NewURL("order-pub")
	sub := NewRecorder()
	pub := NewRecorder()

	if err := tr.Listen(ctx, subURL, sub); err != nil {
		t.Fatalf("Failed to listen (sub): %v", err)
	}
	if err := tr.Listen(ctx, pubURL, pub); err != nil {
		t.Fatalf("Failed to listen (pub): %v", err)
	}
	sub.WaitConnect(t)
	pub.WaitConnect(t)

	if err := sendMessage(ctx, tr, subURL, bridge.NewSubMessage("order-topic")); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	waitSettle()

	payloads := []string{"one", "two", "three", "four"}
	for _, p := range payloads {
		if err := sendMessage(ctx, tr, pubURL, bridge.NewPubMessage("order-topic", p)); err != nil {
			t.Fatalf("Failed to publish %q: %v", p, err)
		}
	}

	for i, want := range payloads {
		ev := sub.WaitText(t)
		msg, err := bridge.DecodeMessage(ev.Text)
		if err != nil {
			t.Fatalf("Failed to decode delivery %d: %v", i, err)
		}
		if msg.Payload != want {
			t.Fatalf("Delivery %d out of order: expected %q, got %q", i, want, msg.Payload)
		}
	}
}

func testPublishWithoutSubscriberIsRetained(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	defer closeTransport(t, tr)
	ctx := context.Background()

	pubURL := NewURL("retain-pub")
	subURL := NewURL("retain-sub")
	pub := NewRecorder()
	sub := NewRecorder()

	if err := tr.Listen(ctx, pubURL, pub); err != nil {
		t.Fatalf("Failed to listen (pub): %v", err)
	}
	pub.WaitConnect(t)

	// Publish before anyone subscribes; the relay must retain the message.
	if err := sendMessage(ctx, tr, pubURL, bridge.NewPubMessage("retain-topic", "early-bird")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	waitSettle()

	if err := tr.Listen(ctx, subURL, sub); err != nil {
		t.Fatalf("Failed to listen (sub): %v", err)
	}
	sub.WaitConnect(t)
	if err := sendMessage(ctx, tr, subURL, bridge.NewSubMessage("retain-topic")); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	ev := sub.WaitText(t)
	msg, err := bridge.DecodeMessage(ev.Text)
	if err != nil {
		t.Fatalf("Failed to decode retained delivery: %v", err)
	}
	if msg.Payload != "early-bird" {
		t.Fatalf("Expected retained payload, got %q", msg.Payload)
	}
}

func testRetainedDeliveredBeforeLivePublishes(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	defer closeTransport(t, tr)
	ctx := context.Background()

	pubURL := NewURL("mixed-pub")
	subURL := NewURL("mixed-sub")
	pub := NewRecorder()
	sub := NewRecorder()

	if err := tr.Listen(ctx, pubURL, pub); err != nil {
		t.Fatalf("Failed to listen (pub): %v", err)
	}
	pub.WaitConnect(t)

	// Two messages pile up in the retained cache before anyone listens.
	for _, p := range []string{"retained-1", "retained-2"} {
		if err := sendMessage(ctx, tr, pubURL, bridge.NewPubMessage("mixed-topic", p)); err != nil {
			t.Fatalf("Failed to publish %q: %v", p, err)
		}
	}
	waitSettle()

	if err := tr.Listen(ctx, subURL, sub); err != nil {
		t.Fatalf("Failed to listen (sub): %v", err)
	}
	sub.WaitConnect(t)
	if err := sendMessage(ctx, tr, subURL, bridge.NewSubMessage("mixed-topic")); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// A live publish right behind the subscription must not overtake the
	// retained backlog.
	if err := sendMessage(ctx, tr, pubURL, bridge.NewPubMessage("mixed-topic", "live-3")); err != nil {
		t.Fatalf("Failed to publish live message: %v", err)
	}

	for i, want := range []string{"retained-1", "retained-2", "live-3"} {
		ev := sub.WaitText(t)
		msg, err := bridge.DecodeMessage(ev.Text)
		if err != nil {
			t.Fatalf("Failed to decode delivery %d: %v", i, err)
		}
		if msg.Payload != want {
			t.Fatalf("Delivery %d out of order: expected %q, got %q", i, want, msg.Payload)
		}
	}
}

func testTopicIsolation(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	defer closeTransport(t, tr)
	ctx := context.Background()

	aURL := NewURL("iso-a")
	bURL := NewURL("iso-b")
	pubURL := NewURL("iso-pub")
	a := NewRecorder()
	b := NewRecorder()
	pub := NewRecorder()

	for _, l := range []struct {
		url wc.URL
		rec *Recorder
	}{{aURL, a}, {bURL, b}, {pubURL, pub}} {
		if err := tr.Listen(ctx, l.url, l.rec); err != nil {
			t.Fatalf("Failed to listen %v: %v", l.url, err)
		}
		l.rec.WaitConnect(t)
	}

	if err := sendMessage(ctx, tr, aURL, bridge.NewSubMessage("iso-topic-a")); err != nil {
		t.Fatalf("Failed to subscribe a: %v", err)
	}
	if err := sendMessage(ctx, tr, bURL, bridge.NewSubMessage("iso-topic-b")); err != nil {
		t.Fatalf("Failed to subscribe b: %v", err)
	}
	waitSettle()

	if err := sendMessage(ctx, tr, pubURL, bridge.NewPubMessage("iso-topic-a", "for-a")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	ev := a.WaitText(t)
	if msg, _ := bridge.DecodeMessage(ev.Text); msg.Payload != "for-a" {
		t.Fatalf("Expected for-a, got %q", msg.Payload)
	}
	b.ExpectNoText(t)
}

func testDisconnectReportsNilError(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	defer closeTransport(t, tr)
	ctx := context.Background()

	url := NewURL("disconnect-topic")
	rec := NewRecorder()
	if err := tr.Listen(ctx, url, rec); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	rec.WaitConnect(t)

	if err := tr.Disconnect(ctx, url); err != nil {
		t.Fatalf("Failed to disconnect: %v", err)
	}

	ev := rec.WaitDisconnect(t)
	if ev.URL != url {
		t.Fatalf("Expected disconnect for %v, got %v", url, ev.URL)
	}
	if ev.Err != nil {
		t.Fatalf("Expected nil error for requested disconnect, got %v", ev.Err)
	}
	if tr.IsConnected(url) {
		t.Fatal("Expected IsConnected to report false after disconnect")
	}
}

// NewURL builds a connection URL for tests. The topic carries identity;
// bridge and key are fixed placeholders.
func NewURL(topic string) wc.URL {
	return wc.URL{
		Topic:   topic,
		Version: "1",
		Bridge:  "https://bridge.example.org",
		Key:     "deadbeef",
	}
}

func sendMessage(ctx context.Context, tr bridge.Transport, url wc.URL, msg bridge.Message) error {
	text, err := msg.Encode()
	if err != nil {
		return err
	}
	return tr.Send(ctx, url, text)
}

// waitSettle gives asynchronous relays (redis pub/sub in particular) a
// moment to register a subscription before the test publishes.
func waitSettle() {
	time.Sleep(150 * time.Millisecond)
}

func closeTransport(t *testing.T, tr bridge.Transport) {
	if closer, ok := tr.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			t.Logf("Warning: failed to close transport: %v", err)
		}
	}
}

// TextEvent is one HandleText callback.
type TextEvent struct {
	URL  wc.URL
	Text string
}

// DisconnectEvent is one HandleDisconnect callback.
type DisconnectEvent struct {
	URL wc.URL
	Err error
}

// Recorder implements bridge.Handler by pushing every callback onto a
// buffered channel, with waiting helpers for assertions.
type Recorder struct {
	Connects    chan wc.URL
	Disconnects chan DisconnectEvent
	Texts       chan TextEvent
}

// NewRecorder creates a Recorder with enough buffer for typical tests.
func NewRecorder() *Recorder {
	return &Recorder{
		Connects:    make(chan wc.URL, 32),
		Disconnects: make(chan DisconnectEvent, 32),
		Texts:       make(chan TextEvent, 32),
	}
}

func (r *Recorder) HandleConnect(url wc.URL) {
	r.Connects <- url
}

func (r *Recorder) HandleDisconnect(url wc.URL, err error) {
	r.Disconnects <- DisconnectEvent{URL: url, Err: err}
}

func (r *Recorder) HandleText(url wc.URL, text string) {
	r.Texts <- TextEvent{URL: url, Text: text}
}

// WaitConnect blocks until a connect callback arrives or fails the test.
func (r *Recorder) WaitConnect(t *testing.T) wc.URL {
	t.Helper()
	select {
	case url := <-r.Connects:
		return url
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for connect callback")
		return wc.URL{}
	}
}

// WaitDisconnect blocks until a disconnect callback arrives or fails the test.
func (r *Recorder) WaitDisconnect(t *testing.T) DisconnectEvent {
	t.Helper()
	select {
	case ev := <-r.Disconnects:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for disconnect callback")
		return DisconnectEvent{}
	}
}

// WaitText blocks until a text callback arrives or fails the test.
func (r *Recorder) WaitText(t *testing.T) TextEvent {
	t.Helper()
	select {
	case ev := <-r.Texts:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for text callback")
		return TextEvent{}
	}
}

// ExpectNoText fails the test if a text callback arrives within a short
// window.
func (r *Recorder) ExpectNoText(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.Texts:
		t.Fatalf("Expected no delivery, got %q on %v", ev.Text, ev.URL)
	case <-time.After(300 * time.Millisecond):
	}
}

// Compile-time interface check
var _ bridge.Handler = (*Recorder)(nil)
