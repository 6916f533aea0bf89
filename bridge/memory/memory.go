// Package memory provides an in-process implementation of the
// bridge.Transport interface with relay semantics: topic routing, retained
// messages for topics nobody subscribes to yet, and asynchronous ordered
// delivery per connection. It is suitable for tests and single-process
// demos where wallet and dApp share an address space.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/wcproto/wc-server-go/bridge"
	"github.com/wcproto/wc-server-go/wc"
)

const connEventBuffer = 256

// Bridge implements bridge.Transport backed by in-memory maps. State is
// local to the process; use the redis bridge for multi-node deployments.
type Bridge struct {
	mu    sync.Mutex
	conns map[wc.URL]*conn
	subs  map[string]map[*conn]struct{}
	cache map[string][]string
}

// conn is one listening URL with its ordered delivery queue. A dedicated
// goroutine drains events so that handler callbacks never run inside
// Listen, Send or Disconnect.
type conn struct {
	url     wc.URL
	handler bridge.Handler
	events  chan func()
	closed  bool // guarded by Bridge.mu
}

// New creates an in-memory bridge relay.
func New() *Bridge {
	return &Bridge{
		conns: make(map[wc.URL]*conn),
		subs:  make(map[string]map[*conn]struct{}),
		cache: make(map[string][]string),
	}
}

// Listen implements bridge.Transport.Listen.
func (b *Bridge) Listen(ctx context.Context, url wc.URL, h bridge.Handler) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.conns[url]; ok && !c.closed {
		c.handler = h
		c.enqueue(func() { h.HandleConnect(url) })
		return nil
	}

	c := &conn{
		url:     url,
		handler: h,
		events:  make(chan func(), connEventBuffer),
	}
	b.conns[url] = c
	go c.run()

	c.enqueue(func() { h.HandleConnect(url) })
	return nil
}

// Send implements bridge.Transport.Send. The relay interprets the pub/sub
// envelope: sub messages register the connection for a topic and flush any
// retained messages, pub messages route to current subscribers or are
// retained when the topic has none.
func (b *Bridge) Send(ctx context.Context, url wc.URL, text string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg, err := bridge.DecodeMessage(text)
	if err != nil {
		return fmt.Errorf("memory bridge: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[url]
	if !ok || c.closed {
		return fmt.Errorf("memory bridge: not listening for topic %q", url.Topic)
	}

	switch msg.Type {
	case bridge.MessageTypeSub:
		set, ok := b.subs[msg.Topic]
		if !ok {
			set = make(map[*conn]struct{})
			b.subs[msg.Topic] = set
		}
		set[c] = struct{}{}

		for _, retained := range b.cache[msg.Topic] {
			c.deliverText(retained)
		}
		delete(b.cache, msg.Topic)

	case bridge.MessageTypePub:
		delivered := false
		for sub := range b.subs[msg.Topic] {
			if !sub.closed {
				sub.deliverText(text)
				delivered = true
			}
		}
		if !delivered {
			b.cache[msg.Topic] = append(b.cache[msg.Topic], text)
		}
	}

	return nil
}

// Disconnect implements bridge.Transport.Disconnect.
func (b *Bridge) Disconnect(ctx context.Context, url wc.URL) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	b.close(url, nil)
	return nil
}

// IsConnected implements bridge.Transport.IsConnected.
func (b *Bridge) IsConnected(url wc.URL) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[url]
	return ok && !c.closed
}

// Drop simulates an unexpected network failure for url: the connection and
// its subscriptions die, retained messages survive, and the handler sees
// HandleDisconnect with err. Intended for tests.
func (b *Bridge) Drop(url wc.URL, err error) {
	b.close(url, err)
}

func (b *Bridge) close(url wc.URL, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[url]
	if !ok || c.closed {
		return
	}
	c.closed = true
	delete(b.conns, url)
	for topic, set := range b.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(b.subs, topic)
		}
	}

	h := c.handler
	c.enqueue(func() { h.HandleDisconnect(url, err) })
	close(c.events)
}

func (c *conn) run() {
	for fn := range c.events {
		fn()
	}
}

// enqueue schedules a callback on the delivery goroutine. Callers hold
// Bridge.mu, so the send must not block: a full queue drops the event,
// mirroring how a relay sheds load on an unresponsive socket.
func (c *conn) enqueue(fn func()) {
	select {
	case c.events <- fn:
	default:
	}
}

func (c *conn) deliverText(text string) {
	h := c.handler
	url := c.url
	c.enqueue(func() { h.HandleText(url, text) })
}

// Compile-time interface check
var _ bridge.Transport = (*Bridge)(nil)
