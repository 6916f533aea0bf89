package wcserver

import "github.com/wcproto/wc-server-go/wc"

// sessionStore tracks established sessions and pending-disconnect
// markers, both keyed by connection URL. It has no locking of its own:
// every access is serialized through the server's mutex, which is the
// single execution context all session state travels through. Sessions
// are stored and returned by value, so callers never alias store
// internals.
type sessionStore struct {
	sessions          map[wc.URL]wc.Session
	pendingDisconnect map[wc.URL]wc.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions:          make(map[wc.URL]wc.Session),
		pendingDisconnect: make(map[wc.URL]wc.Session),
	}
}

// add inserts or replaces the session for its URL.
func (st *sessionStore) add(s wc.Session) {
	st.sessions[s.URL] = s
}

func (st *sessionStore) byURL(url wc.URL) (wc.Session, bool) {
	s, ok := st.sessions[url]
	return s, ok
}

func (st *sessionStore) remove(url wc.URL) {
	delete(st.sessions, url)
}

func (st *sessionStore) all() []wc.Session {
	out := make([]wc.Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// addPendingDisconnect marks the session's URL as an intentional
// disconnect in progress, so the transport's confirmation is not
// mistaken for an unexpected drop.
func (st *sessionStore) addPendingDisconnect(s wc.Session) {
	st.pendingDisconnect[s.URL] = s
}

func (st *sessionStore) pendingDisconnectByURL(url wc.URL) (wc.Session, bool) {
	s, ok := st.pendingDisconnect[url]
	return s, ok
}

func (st *sessionStore) removePendingDisconnect(url wc.URL) {
	delete(st.pendingDisconnect, url)
}
