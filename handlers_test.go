package wcserver

import (
	"context"
	"testing"
)

// methodHandler claims requests for a single method and records them.
type methodHandler struct {
	method string
	seen   []*Request
}

func (h *methodHandler) CanHandle(req *Request) bool {
	return req.Method() == h.method
}

func (h *methodHandler) Handle(ctx context.Context, req *Request) {
	h.seen = append(h.seen, req)
}

func registryRequest(t *testing.T, method string) *Request {
	t.Helper()
	req, err := NewRequest(storeURL("t1"), method)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func TestHandlerRegistry_FirstMatchWins(t *testing.T) {
	t.Parallel()
	r := newHandlerRegistry()

	first := &methodHandler{method: "eth_sign"}
	second := &methodHandler{method: "eth_sign"}
	r.add(first)
	r.add(second)

	got := r.find(registryRequest(t, "eth_sign"))
	if got != first {
		t.Fatalf("expected the earlier registration to claim the request")
	}
}

func TestHandlerRegistry_NoMatch(t *testing.T) {
	t.Parallel()
	r := newHandlerRegistry()
	r.add(&methodHandler{method: "eth_sign"})

	if got := r.find(registryRequest(t, "personal_sign")); got != nil {
		t.Fatalf("expected no handler, got %T", got)
	}
}

func TestHandlerRegistry_UnregisterRemovesOnlyThatRegistration(t *testing.T) {
	t.Parallel()
	r := newHandlerRegistry()

	// The same handler value registered twice yields two independent
	// registrations.
	h := &methodHandler{method: "eth_sign"}
	reg1 := r.add(h)
	reg2 := r.add(h)

	reg1.Unregister()
	if got := r.find(registryRequest(t, "eth_sign")); got == nil {
		t.Fatalf("second registration should still claim the request")
	}

	reg2.Unregister()
	if got := r.find(registryRequest(t, "eth_sign")); got != nil {
		t.Fatalf("handler survived both unregistrations")
	}
}

func TestHandlerRegistry_UnregisterIsIdempotent(t *testing.T) {
	t.Parallel()
	r := newHandlerRegistry()

	reg := r.add(&methodHandler{method: "eth_sign"})
	other := r.add(&methodHandler{method: "eth_sign"})

	reg.Unregister()
	reg.Unregister()

	// The surviving registration is untouched.
	if got := r.find(registryRequest(t, "eth_sign")); got == nil {
		t.Fatalf("expected the other registration to survive")
	}
	other.Unregister()
	if got := r.find(registryRequest(t, "eth_sign")); got != nil {
		t.Fatalf("expected an empty registry")
	}
}
