package wcserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/wcproto/wc-server-go/wc"
)

// handshakeHandler consumes wc_sessionRequest payloads and turns them
// into session proposals for the run loop. It is registered at
// construction, ahead of host handlers.
type handshakeHandler struct {
	s *Server
}

func (h *handshakeHandler) CanHandle(req *Request) bool {
	return req.Method() == string(wc.SessionRequestMethod)
}

func (h *handshakeHandler) Handle(ctx context.Context, req *Request) {
	var dapp wc.DAppInfo
	if err := req.UnmarshalParam(0, &dapp); err != nil {
		h.s.replyProtocolError(ctx, req, err)
		return
	}
	if dapp.PeerID == "" {
		h.s.replyProtocolError(ctx, req, fmt.Errorf("%w: session request without peerId", ErrDeserialization))
		return
	}

	h.s.post(sessionProposalEvent{
		pending: wc.Session{URL: req.URL(), DAppInfo: dapp},
		id:      req.payload.ID,
	})
}

// newDecisionFunc builds the one-shot respond callback handed to
// Delegate.ShouldStartSession. It may be called from any goroutine;
// only the first call posts the decision.
func (s *Server) newDecisionFunc(ev sessionProposalEvent) func(wc.WalletInfo) {
	var once sync.Once
	return func(info wc.WalletInfo) {
		once.Do(func() {
			s.post(handshakeDecisionEvent{pending: ev.pending, id: ev.id, info: info})
		})
	}
}
