package wcserver

import (
	"context"
	"sync"
)

// RequestHandler consumes inbound requests. The registry asks each
// handler CanHandle in registration order and hands the request to the
// first one that accepts it.
//
// Handle runs on the transport's receive goroutine, so per-URL ordering
// is preserved across handlers; implementations must not block it for
// long. ctx carries logging metadata for the message being processed.
type RequestHandler interface {
	CanHandle(req *Request) bool
	Handle(ctx context.Context, req *Request)
}

// HandlerRegistration is the token returned by RegisterHandler. Holding
// the token is the only way to remove the registration: the same handler
// value may be registered more than once and each registration is
// released independently.
type HandlerRegistration struct {
	registry *handlerRegistry
	id       uint64
}

// Unregister removes exactly this registration. It is idempotent and
// never affects other registrations, including other registrations of
// the same handler value.
func (hr *HandlerRegistration) Unregister() {
	hr.registry.remove(hr.id)
}

type handlerEntry struct {
	id uint64
	h  RequestHandler
}

// handlerRegistry holds the ordered handler list behind its own lock,
// independent of the session store's.
type handlerRegistry struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []handlerEntry
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{}
}

func (r *handlerRegistry) add(h RequestHandler) *HandlerRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, handlerEntry{id: r.nextID, h: h})
	return &HandlerRegistration{registry: r, id: r.nextID}
}

func (r *handlerRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// find returns the first handler accepting req. Predicates run on a
// snapshot taken under the read lock, so a concurrent Unregister cannot
// tear the iteration.
func (r *handlerRegistry) find(req *Request) RequestHandler {
	r.mu.RLock()
	snapshot := make([]handlerEntry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.RUnlock()

	for _, e := range snapshot {
		if e.h.CanHandle(req) {
			return e.h
		}
	}
	return nil
}
