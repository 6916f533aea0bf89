// Package redis provides a Redis-backed implementation of the
// bridge.Transport interface. Topics map to Redis pub/sub channels;
// messages published to a topic nobody subscribes to are retained in a
// capped-TTL list and flushed when the first subscriber arrives, matching
// the relay behavior handshakes depend on.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/wcproto/wc-server-go/bridge"
	"github.com/wcproto/wc-server-go/wc"
)

// Config for the Redis-backed bridge. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all channels and keys. ENV: WC_BRIDGE_KEY_PREFIX
	KeyPrefix string `env:"WC_BRIDGE_KEY_PREFIX,default=wc:bridge:"`
	// CacheTTL bounds how long retained messages wait for a subscriber.
	// ENV: WC_BRIDGE_CACHE_TTL
	CacheTTL time.Duration `env:"WC_BRIDGE_CACHE_TTL,default=24h"`
	// Client overrides the Redis client. RedisAddr is ignored when set.
	Client *redis.Client
}

// Bridge implements bridge.Transport on Redis pub/sub.
type Bridge struct {
	client     *redis.Client
	keyPrefix  string
	cacheTTL   time.Duration
	ownsClient bool

	mu    sync.Mutex
	conns map[wc.URL]*conn
}

type conn struct {
	handler bridge.Handler
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	g       *errgroup.Group
	subs    chan subRequest
	dead    chan struct{} // closed when the delivery loop exits
	closing bool          // guarded by Bridge.mu
}

// subRequest asks the connection's delivery loop to subscribe to a
// topic and flush its retained messages. The loop reports the
// subscribe/drain outcome on reply before delivering anything, so Send
// returns the error without waiting for handler callbacks.
type subRequest struct {
	topic string
	reply chan error
}

// New creates a Redis-backed bridge and verifies the server is reachable.
func New(cfg Config) (*Bridge, error) {
	client := cfg.Client
	owns := false
	if client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
		owns = true
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		if owns {
			_ = client.Close()
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "wc:bridge:"
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Bridge{
		client:     client,
		keyPrefix:  prefix,
		cacheTTL:   ttl,
		ownsClient: owns,
		conns:      make(map[wc.URL]*conn),
	}, nil
}

// NewFromEnv builds a Bridge using envdecode to populate Config.
func NewFromEnv() (*Bridge, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close tears down every connection and, when the client was created here,
// the client itself.
func (b *Bridge) Close() error {
	b.mu.Lock()
	urls := make([]wc.URL, 0, len(b.conns))
	for url := range b.conns {
		urls = append(urls, url)
	}
	b.mu.Unlock()

	ctx := context.Background()
	for _, url := range urls {
		_ = b.Disconnect(ctx, url)
	}
	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

// Listen implements bridge.Transport.Listen.
func (b *Bridge) Listen(ctx context.Context, url wc.URL, h bridge.Handler) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	if c, ok := b.conns[url]; ok && !c.closing {
		c.handler = h
		b.mu.Unlock()
		go h.HandleConnect(url)
		return nil
	}
	b.mu.Unlock()

	// The subscription outlives the Listen call; detach its lifetime from
	// the caller's context while keeping its values.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ps := b.client.Subscribe(connCtx)
	g, gctx := errgroup.WithContext(connCtx)

	c := &conn{
		handler: h,
		pubsub:  ps,
		cancel:  cancel,
		g:       g,
		subs:    make(chan subRequest),
		dead:    make(chan struct{}),
	}

	b.mu.Lock()
	b.conns[url] = c
	b.mu.Unlock()

	// Single delivery loop per connection: live publishes and retained
	// flushes both pass through it, so HandleText calls for one URL are
	// serialized and retained messages for a topic always precede the
	// publishes that follow the subscription.
	g.Go(func() error {
		defer close(c.dead)
		ch := ps.Channel()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case req := <-c.subs:
				retained, err := b.subscribeAndDrain(gctx, c, req.topic)
				req.reply <- err
				if err != nil {
					continue
				}
				b.mu.Lock()
				handler := c.handler
				b.mu.Unlock()
				for _, text := range retained {
					handler.HandleText(url, text)
				}
			case m, ok := <-ch:
				if !ok {
					return gctx.Err()
				}
				b.mu.Lock()
				handler := c.handler
				b.mu.Unlock()
				handler.HandleText(url, m.Payload)
			}
		}
	})

	go func() {
		_ = g.Wait()

		b.mu.Lock()
		requested := c.closing
		if b.conns[url] == c {
			delete(b.conns, url)
		}
		handler := c.handler
		b.mu.Unlock()

		if requested {
			handler.HandleDisconnect(url, nil)
		} else {
			handler.HandleDisconnect(url, fmt.Errorf("redis bridge: subscription for topic %q ended", url.Topic))
		}
	}()

	go h.HandleConnect(url)
	return nil
}

// Send implements bridge.Transport.Send. Sub envelopes subscribe the
// connection to the topic's channel and flush its retained list; pub
// envelopes publish, retaining the text when the channel has no receivers.
func (b *Bridge) Send(ctx context.Context, url wc.URL, text string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg, err := bridge.DecodeMessage(text)
	if err != nil {
		return fmt.Errorf("redis bridge: %w", err)
	}

	b.mu.Lock()
	c, ok := b.conns[url]
	b.mu.Unlock()
	if !ok || c.closing {
		return fmt.Errorf("redis bridge: not listening for topic %q", url.Topic)
	}

	switch msg.Type {
	case bridge.MessageTypeSub:
		req := subRequest{topic: msg.Topic, reply: make(chan error, 1)}
		select {
		case c.subs <- req:
		case <-c.dead:
			return fmt.Errorf("redis bridge: not listening for topic %q", url.Topic)
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case err := <-req.reply:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}

	case bridge.MessageTypePub:
		receivers, err := b.client.Publish(ctx, b.channelKey(msg.Topic), text).Result()
		if err != nil {
			return fmt.Errorf("redis bridge: publish %q: %w", msg.Topic, err)
		}
		if receivers == 0 {
			pipe := b.client.TxPipeline()
			pipe.RPush(ctx, b.cacheKey(msg.Topic), text)
			pipe.Expire(ctx, b.cacheKey(msg.Topic), b.cacheTTL)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("redis bridge: retain for %q: %w", msg.Topic, err)
			}
		}
		return nil
	}

	return nil
}

// subscribeAndDrain registers the connection on the topic's channel and
// takes over its retained list, returning the texts in publish order.
// It runs on the delivery loop; once the subscription is live, new
// publishes queue behind it until the retained texts have gone out.
func (b *Bridge) subscribeAndDrain(ctx context.Context, c *conn, topic string) ([]string, error) {
	if err := c.pubsub.Subscribe(ctx, b.channelKey(topic)); err != nil {
		return nil, fmt.Errorf("redis bridge: subscribe %q: %w", topic, err)
	}

	pipe := b.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, b.cacheKey(topic), 0, -1)
	pipe.Del(ctx, b.cacheKey(topic))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis bridge: drain retained for %q: %w", topic, err)
	}
	return rangeCmd.Val(), nil
}

// Disconnect implements bridge.Transport.Disconnect.
func (b *Bridge) Disconnect(ctx context.Context, url wc.URL) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	c, ok := b.conns[url]
	if !ok || c.closing {
		b.mu.Unlock()
		return nil
	}
	c.closing = true
	b.mu.Unlock()

	c.cancel()
	return c.pubsub.Close()
}

// IsConnected implements bridge.Transport.IsConnected.
func (b *Bridge) IsConnected(url wc.URL) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[url]
	return ok && !c.closing
}

func (b *Bridge) channelKey(topic string) string {
	return b.keyPrefix + "topic:" + topic
}

func (b *Bridge) cacheKey(topic string) string {
	return b.keyPrefix + "cache:" + topic
}

// Compile-time interface check
var _ bridge.Transport = (*Bridge)(nil)
