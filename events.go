package wcserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wcproto/wc-server-go/internal/jsonrpc"
	"github.com/wcproto/wc-server-go/wc"
)

// serverEvent is one unit of work for the run loop. Transport callbacks
// and protocol handlers post events; the loop processes them one at a
// time, so every store mutation and delegate notification (apart from
// the approval callback's own goroutine) happens in a single execution
// context.
type serverEvent interface {
	isServerEvent()
}

// connEstablishedEvent: the transport reports the connection for url as
// usable.
type connEstablishedEvent struct {
	url wc.URL
}

// connLostEvent: the transport reports the connection for url as gone.
// err is nil after a requested disconnect.
type connLostEvent struct {
	url wc.URL
	err error
}

// sessionProposalEvent: a well-formed wc_sessionRequest arrived for a
// URL with no established session.
type sessionProposalEvent struct {
	pending wc.Session
	id      *jsonrpc.RequestID
}

// handshakeDecisionEvent: the host answered a session proposal.
type handshakeDecisionEvent struct {
	pending wc.Session
	id      *jsonrpc.RequestID
	info    wc.WalletInfo
}

// sessionUpdateEvent: a well-formed wc_sessionUpdate arrived.
type sessionUpdateEvent struct {
	url    wc.URL
	update wc.SessionUpdate
}

func (connEstablishedEvent) isServerEvent()   {}
func (connLostEvent) isServerEvent()          {}
func (sessionProposalEvent) isServerEvent()   {}
func (handshakeDecisionEvent) isServerEvent() {}
func (sessionUpdateEvent) isServerEvent()     {}

// Run processes the server's internal events until ctx is done and
// returns ctx.Err(). It must be running for the server to make
// progress on handshakes, updates and reconnects, and may be called at
// most once.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.closed)

	s.log.InfoContext(ctx, "wallet server running", slog.String("server_id", s.id))
	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "wallet server stopping", slog.String("server_id", s.id))
			return ctx.Err()
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

// post hands an event to the run loop. A full buffer blocks the caller
// (backpressuring the transport's receive path); a stopped server drops
// the event.
func (s *Server) post(ev serverEvent) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *Server) handleEvent(ctx context.Context, ev serverEvent) {
	switch ev := ev.(type) {
	case connEstablishedEvent:
		s.onConnEstablished(ctx, ev)
	case connLostEvent:
		s.onConnLost(ctx, ev)
	case sessionProposalEvent:
		s.onSessionProposal(ctx, ev)
	case handshakeDecisionEvent:
		s.onHandshakeDecision(ctx, ev)
	case sessionUpdateEvent:
		s.onSessionUpdate(ctx, ev)
	}
}

// onConnEstablished subscribes the fresh connection: to the wallet peer
// topic when a session is stored for the URL (a resumed session, which
// is also announced to the delegate), or to the URL's own topic to
// await the handshake request.
func (s *Server) onConnEstablished(ctx context.Context, ev connEstablishedEvent) {
	s.mu.Lock()
	sess, ok := s.store.byURL(ev.url)
	s.mu.Unlock()

	if !ok {
		if err := s.subscribe(ctx, ev.url, ev.url.Topic); err != nil {
			s.log.ErrorContext(ctx, "failed to subscribe to handshake topic",
				slog.String("topic", ev.url.Topic), slog.String("err", err.Error()))
		}
		return
	}

	walletTopic := sess.WalletTopic()
	if walletTopic == "" {
		s.log.ErrorContext(ctx, "stored session has no wallet info",
			slog.String("topic", ev.url.Topic))
		return
	}
	if err := s.subscribe(ctx, ev.url, walletTopic); err != nil {
		s.log.ErrorContext(ctx, "failed to subscribe to wallet topic",
			slog.String("topic", ev.url.Topic), slog.String("err", err.Error()))
	}
	s.delegate.SessionConnected(sess)
}

// onConnLost distinguishes the three disconnect shapes: nothing was
// established (report a failed connection), an intentional disconnect
// completed (evict and notify), or the connection dropped unexpectedly
// (re-listen once; the session stays stored and the delegate hears
// nothing).
func (s *Server) onConnLost(ctx context.Context, ev connLostEvent) {
	s.mu.Lock()
	sess, ok := s.store.byURL(ev.url)
	if !ok {
		// A stale marker here would make a future session on this URL
		// treat its first unexpected drop as intentional.
		s.store.removePendingDisconnect(ev.url)
		s.mu.Unlock()
		s.delegate.ConnectFailed(ev.url, ev.err)
		return
	}

	if _, pending := s.store.pendingDisconnectByURL(ev.url); pending {
		s.store.remove(ev.url)
		s.store.removePendingDisconnect(ev.url)
		s.mu.Unlock()
		s.delegate.SessionDisconnected(sess, ev.err)
		return
	}
	s.mu.Unlock()

	s.log.WarnContext(ctx, "connection dropped unexpectedly, reconnecting",
		slog.String("topic", ev.url.Topic), slog.String("err", errText(ev.err)))
	if err := s.transport.Listen(ctx, ev.url, transportHandler{s: s}); err != nil {
		s.log.ErrorContext(ctx, "reconnect failed",
			slog.String("topic", ev.url.Topic), slog.String("err", err.Error()))
	}
}

// onSessionProposal asks the host for a decision. Approval is a
// deliberate suspension point: the delegate runs on its own goroutine
// and answers through the one-shot respond callback, so a slow human
// never stalls the loop.
func (s *Server) onSessionProposal(ctx context.Context, ev sessionProposalEvent) {
	s.mu.Lock()
	_, exists := s.store.byURL(ev.pending.URL)
	s.mu.Unlock()
	if exists {
		s.log.DebugContext(ctx, "duplicate session request ignored",
			slog.String("topic", ev.pending.URL.Topic))
		return
	}

	respond := s.newDecisionFunc(ev)
	go s.delegate.ShouldStartSession(ev.pending, respond)
}

// onHandshakeDecision completes the handshake. On approval: store the
// definitive session, subscribe to the wallet peer topic, answer the
// dApp, notify the delegate, in that order. On rejection only the
// answer goes out.
func (s *Server) onHandshakeDecision(ctx context.Context, ev handshakeDecisionEvent) {
	if !ev.info.Approved {
		s.sendHandshakeResponse(ctx, ev)
		return
	}

	info := ev.info
	sess := ev.pending
	sess.WalletInfo = &info

	s.mu.Lock()
	s.store.add(sess)
	s.mu.Unlock()

	if err := s.subscribe(ctx, sess.URL, info.PeerID); err != nil {
		s.log.ErrorContext(ctx, "failed to subscribe to wallet topic",
			slog.String("topic", sess.URL.Topic), slog.String("err", err.Error()))
	}
	s.sendHandshakeResponse(ctx, ev)
	s.delegate.SessionConnected(sess)
}

// sendHandshakeResponse answers the wc_sessionRequest with the wallet's
// decision, approved or not, on the dApp peer topic.
func (s *Server) sendHandshakeResponse(ctx context.Context, ev handshakeDecisionEvent) {
	payload, err := jsonrpc.NewResultResponse(ev.id, ev.info)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to build handshake response",
			slog.String("topic", ev.pending.URL.Topic), slog.String("err", err.Error()))
		return
	}
	res := &Response{url: ev.pending.URL, payload: payload}

	text, err := s.serializer.SerializeResponse(res, ev.pending.PeerTopic())
	if err != nil {
		s.log.ErrorContext(ctx, "failed to serialize handshake response",
			slog.String("topic", ev.pending.URL.Topic), slog.String("err", err.Error()))
		return
	}
	if err := s.transport.Send(ctx, ev.pending.URL, text); err != nil {
		s.log.ErrorContext(ctx, "failed to send handshake response",
			slog.String("topic", ev.pending.URL.Topic), slog.String("err", err.Error()))
	}
}

// onSessionUpdate applies an inbound update: approvals are a no-op (the
// wallet is authoritative for its own info), a revocation runs the full
// disconnect flow. When the transport is already gone the revocation
// downgrades to a plain disconnect notification.
func (s *Server) onSessionUpdate(ctx context.Context, ev sessionUpdateEvent) {
	s.mu.Lock()
	sess, ok := s.store.byURL(ev.url)
	s.mu.Unlock()
	if !ok {
		s.log.DebugContext(ctx, "session update for unknown session dropped",
			slog.String("topic", ev.url.Topic))
		return
	}

	if ev.update.Approved {
		s.log.DebugContext(ctx, "session update with approval ignored",
			slog.String("topic", ev.url.Topic))
		return
	}

	if err := s.Disconnect(ctx, sess); err != nil {
		if errors.Is(err, ErrNotConnected) {
			s.delegate.SessionDisconnected(sess, nil)
			return
		}
		s.log.ErrorContext(ctx, "failed to disconnect after session update",
			slog.String("topic", ev.url.Topic), slog.String("err", err.Error()))
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
