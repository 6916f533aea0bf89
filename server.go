package wcserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/wcproto/wc-server-go/bridge"
	"github.com/wcproto/wc-server-go/internal/jsonrpc"
	"github.com/wcproto/wc-server-go/internal/logctx"
	"github.com/wcproto/wc-server-go/wc"
)

const eventBuffer = 64

// Delegate is the host application's side of the session lifecycle.
// The server calls it for every decision and notification; a Delegate
// is required at construction so no event can ever fire into nothing.
//
// ShouldStartSession runs on its own goroutine and may block for as
// long as the host needs (a human looking at an approval dialog).
// The other methods are called from the server's run loop and should
// return promptly.
type Delegate interface {
	// ShouldStartSession asks the host to decide on an inbound session
	// request. The pending session carries the dApp's info but no
	// wallet info yet. The host answers by calling respond exactly
	// once, from any goroutine; extra calls are ignored.
	ShouldStartSession(session wc.Session, respond func(wc.WalletInfo))

	// SessionConnected fires when a session becomes usable: after an
	// approved handshake, and again whenever a stored session's
	// connection is re-established.
	SessionConnected(session wc.Session)

	// SessionDisconnected fires when a session ends for good, whether
	// the wallet or the dApp initiated it. err is nil for an orderly
	// teardown.
	SessionDisconnected(session wc.Session, err error)

	// ConnectFailed fires when a connection with no session behind it
	// goes away, including a handshake that never completed.
	ConnectFailed(url wc.URL, err error)
}

// Config carries the dependencies for a Server. Transport and Delegate
// are required; the rest default to sensible zero-setup values.
type Config struct {
	// Transport is the bridge connection the server speaks through.
	Transport bridge.Transport

	// Delegate receives lifecycle decisions and notifications.
	Delegate Delegate

	// Serializer converts envelopes to and from transport text.
	// Defaults to JSONSerializer.
	Serializer Serializer

	// LogHandler receives the server's structured logs. Defaults to
	// discarding them.
	LogHandler slog.Handler
}

// Server is a wallet-side session server. It listens for session
// requests on connection URLs, runs the handshake with the host's
// Delegate, keeps established sessions, and routes inbound JSON-RPC
// requests to registered handlers.
//
// Call Run on its own goroutine before connecting anything.
type Server struct {
	transport  bridge.Transport
	serializer Serializer
	delegate   Delegate
	log        *slog.Logger
	id         string

	// mu guards store. The registry carries its own lock so handler
	// registration never contends with session bookkeeping.
	mu    sync.Mutex
	store *sessionStore

	registry *handlerRegistry

	events chan serverEvent
	closed chan struct{}
}

// New builds a Server from cfg. It returns ErrNoTransport or
// ErrNoDelegate when a required dependency is missing.
func New(cfg Config) (*Server, error) {
	if cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	if cfg.Delegate == nil {
		return nil, ErrNoDelegate
	}

	serializer := cfg.Serializer
	if serializer == nil {
		serializer = JSONSerializer{}
	}

	logHandler := cfg.LogHandler
	if logHandler == nil {
		logHandler = slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt32)})
	}

	s := &Server{
		transport:  cfg.Transport,
		serializer: serializer,
		delegate:   cfg.Delegate,
		log:        slog.New(logctx.Handler{Handler: logHandler}),
		id:         uuid.NewString(),
		store:      newSessionStore(),
		registry:   newHandlerRegistry(),
		events:     make(chan serverEvent, eventBuffer),
		closed:     make(chan struct{}),
	}

	// Protocol handlers sit ahead of anything the host registers.
	s.registry.add(&handshakeHandler{s: s})
	s.registry.add(&updateHandler{s: s})

	return s, nil
}

// RegisterHandler adds h to the dispatch chain, behind the protocol
// handlers and any earlier registrations. The returned registration
// removes exactly this handler when unregistered, no matter how many
// times the same value was registered.
func (s *Server) RegisterHandler(h RequestHandler) *HandlerRegistration {
	return s.registry.add(h)
}

// Connect starts listening on a freshly shared connection URL and
// waits for the dApp's session request. It returns ErrAlreadyConnected
// when a session is already established for the URL.
func (s *Server) Connect(ctx context.Context, url wc.URL) error {
	if err := url.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	_, exists := s.store.byURL(url)
	s.mu.Unlock()
	if exists {
		return ErrAlreadyConnected
	}

	return s.transport.Listen(ctx, url, transportHandler{s: s})
}

// Reconnect resumes a previously established session, typically after
// a restart. The session must carry wallet info from its handshake;
// otherwise ErrMissingWalletInfo is returned.
func (s *Server) Reconnect(ctx context.Context, session wc.Session) error {
	if err := session.URL.Validate(); err != nil {
		return err
	}
	if session.WalletInfo == nil {
		return ErrMissingWalletInfo
	}

	s.mu.Lock()
	s.store.add(session)
	s.mu.Unlock()

	return s.transport.Listen(ctx, session.URL, transportHandler{s: s})
}

// Disconnect tears a session down: it tells the dApp the session is
// over, closes the connection, and once the transport confirms, evicts
// the session and notifies the delegate. ErrNotConnected is returned
// when the transport has no live connection for the session's URL.
func (s *Server) Disconnect(ctx context.Context, session wc.Session) error {
	if !s.transport.IsConnected(session.URL) {
		return ErrNotConnected
	}
	if session.WalletInfo == nil {
		return ErrMissingWalletInfo
	}

	// Mark before sending so the close that follows is recognized as
	// intentional even if the transport reports it early.
	s.mu.Lock()
	s.store.addPendingDisconnect(session)
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		s.store.removePendingDisconnect(session.URL)
		s.mu.Unlock()
	}

	upd := wc.SessionUpdate{Approved: false, Accounts: nil, ChainID: nil}
	if err := s.sendSessionUpdate(ctx, session, upd); err != nil {
		rollback()
		return err
	}
	if err := s.transport.Disconnect(ctx, session.URL); err != nil {
		rollback()
		return err
	}
	return nil
}

// OpenSessions returns the approved sessions whose connections are
// currently live.
func (s *Server) OpenSessions() []wc.Session {
	s.mu.Lock()
	all := s.store.all()
	s.mu.Unlock()

	// Transport state is read outside the lock; IsConnected may take
	// the transport's own.
	open := make([]wc.Session, 0, len(all))
	for _, sess := range all {
		if sess.WalletInfo == nil || !sess.WalletInfo.Approved {
			continue
		}
		if !s.transport.IsConnected(sess.URL) {
			continue
		}
		open = append(open, sess)
	}
	return open
}

// SendRequest publishes req to the peer of the session established on
// req.URL(). When no such session exists the request is dropped
// without error; the session is gone and so is anywhere to send it.
func (s *Server) SendRequest(ctx context.Context, req *Request) error {
	sess, ok := s.sessionFor(req.URL())
	if !ok {
		s.log.DebugContext(ctx, "request for unknown session dropped",
			slog.String("topic", req.URL().Topic), slog.String("method", req.Method()))
		return nil
	}

	text, err := s.serializer.SerializeRequest(req, sess.PeerTopic())
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, req.URL(), text)
}

// SendResponse publishes res to the peer of the session established on
// res.URL(). Like SendRequest, it silently drops the response when no
// session exists.
func (s *Server) SendResponse(ctx context.Context, res *Response) error {
	sess, ok := s.sessionFor(res.URL())
	if !ok {
		s.log.DebugContext(ctx, "response for unknown session dropped",
			slog.String("topic", res.URL().Topic))
		return nil
	}

	text, err := s.serializer.SerializeResponse(res, sess.PeerTopic())
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, res.URL(), text)
}

func (s *Server) sessionFor(url wc.URL) (wc.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.byURL(url)
}

// subscribe announces interest in topic on the connection behind url.
func (s *Server) subscribe(ctx context.Context, url wc.URL, topic string) error {
	text, err := bridge.NewSubMessage(topic).Encode()
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, url, text)
}

// transportHandler adapts bridge callbacks onto the server. Connection
// state changes become run-loop events; inbound text is dispatched
// directly on the transport's receive goroutine so per-connection
// ordering survives.
type transportHandler struct {
	s *Server
}

func (t transportHandler) HandleConnect(url wc.URL) {
	t.s.post(connEstablishedEvent{url: url})
}

func (t transportHandler) HandleDisconnect(url wc.URL, err error) {
	t.s.post(connLostEvent{url: url, err: err})
}

func (t transportHandler) HandleText(url wc.URL, text string) {
	t.s.dispatchText(url, text)
}

// Compile-time interface check
var _ bridge.Handler = transportHandler{}

// dispatchText parses inbound transport text and routes it to the
// first handler that claims it. Unparseable payloads get a parse-error
// reply; requests nobody claims get a method-not-found reply. Inbound
// responses are logged and dropped: the wallet side sends requests
// only during teardown and does not correlate answers.
func (s *Server) dispatchText(url wc.URL, text string) {
	ctx := logctx.WithConnData(context.Background(), &logctx.ConnData{
		Topic:  url.Topic,
		Bridge: url.Bridge,
	})

	req, err := s.serializer.DeserializeRequest(text, url)
	if err != nil {
		if errors.Is(err, ErrResponseIgnored) {
			s.log.DebugContext(ctx, "inbound response dropped", slog.String("err", err.Error()))
			return
		}
		s.log.WarnContext(ctx, "failed to parse inbound payload", slog.String("err", err.Error()))
		s.replyInvalidPayload(ctx, url)
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method(),
		ID:     req.payload.ID.String(),
	})

	if h := s.registry.find(req); h != nil {
		h.Handle(ctx, req)
		return
	}

	s.log.InfoContext(ctx, "no handler for inbound request")
	res := NewErrorResponse(req, int(jsonrpc.ErrorCodeMethodNotFound), "no handler for method "+req.Method())
	if err := s.SendResponse(ctx, res); err != nil {
		s.log.ErrorContext(ctx, "failed to send method-not-found response", slog.String("err", err.Error()))
	}
}

// replyInvalidPayload answers an unparseable inbound payload with a
// null-id parse error. Without an established session the reply has
// nowhere to go and SendResponse drops it.
func (s *Server) replyInvalidPayload(ctx context.Context, url wc.URL) {
	res := &Response{
		url:     url,
		payload: jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "invalid payload", nil),
	}
	if err := s.SendResponse(ctx, res); err != nil {
		s.log.ErrorContext(ctx, "failed to send parse-error response", slog.String("err", err.Error()))
	}
}

// replyProtocolError logs a malformed protocol request and answers it
// like any other unparseable payload.
func (s *Server) replyProtocolError(ctx context.Context, req *Request, err error) {
	s.log.WarnContext(ctx, "malformed protocol request",
		slog.String("method", req.Method()), slog.String("err", err.Error()))
	s.replyInvalidPayload(ctx, req.URL())
}
