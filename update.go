package wcserver

import (
	"context"

	"github.com/wcproto/wc-server-go/wc"
)

// updateHandler consumes wc_sessionUpdate payloads from the dApp side
// and hands them to the run loop. It is registered at construction,
// ahead of host handlers.
type updateHandler struct {
	s *Server
}

func (h *updateHandler) CanHandle(req *Request) bool {
	return req.Method() == string(wc.SessionUpdateMethod)
}

func (h *updateHandler) Handle(ctx context.Context, req *Request) {
	var upd wc.SessionUpdate
	if err := req.UnmarshalParam(0, &upd); err != nil {
		h.s.replyProtocolError(ctx, req, err)
		return
	}

	h.s.post(sessionUpdateEvent{url: req.URL(), update: upd})
}

// UpdateSession sends a wc_sessionUpdate carrying info to the session's
// peer and, on success, replaces the stored session's WalletInfo.
// ErrMissingWalletInfo is returned for a session that never completed
// its handshake; ErrNotConnected when no session exists for the URL.
//
// Sending approved=false here only informs the peer; use Disconnect to
// tear the session down.
func (s *Server) UpdateSession(ctx context.Context, session wc.Session, info wc.WalletInfo) error {
	if session.WalletInfo == nil {
		return ErrMissingWalletInfo
	}

	s.mu.Lock()
	stored, ok := s.store.byURL(session.URL)
	s.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	upd := wc.SessionUpdate{
		Approved: info.Approved,
		Accounts: info.Accounts,
		ChainID:  info.ChainID,
	}
	if err := s.sendSessionUpdate(ctx, stored, upd); err != nil {
		return err
	}

	// Re-fetch under the lock: the session may have been replaced while
	// the send was in flight.
	s.mu.Lock()
	if cur, ok := s.store.byURL(session.URL); ok {
		cur.WalletInfo = &info
		s.store.add(cur)
	}
	s.mu.Unlock()
	return nil
}

// sendSessionUpdate serializes upd as a wc_sessionUpdate request and
// publishes it to the session's peer topic.
func (s *Server) sendSessionUpdate(ctx context.Context, sess wc.Session, upd wc.SessionUpdate) error {
	req, err := NewRequest(sess.URL, string(wc.SessionUpdateMethod), upd)
	if err != nil {
		return err
	}
	text, err := s.serializer.SerializeRequest(req, sess.PeerTopic())
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, sess.URL, text)
}
