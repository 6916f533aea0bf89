package wcserver

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wcproto/wc-server-go/wc"
)

func TestRequest_NewRequestAssignsTimeID(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(storeURL("t1"), "eth_sign", "0xdead", "0xbeef")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if req.Method() != "eth_sign" {
		t.Fatalf("expected method eth_sign, got %q", req.Method())
	}

	id, ok := req.ID().(int64)
	if !ok {
		t.Fatalf("expected int64 id, got %T", req.ID())
	}
	if id <= 0 {
		t.Fatalf("expected a positive time-derived id, got %d", id)
	}

	other, err := NewRequest(storeURL("t1"), "eth_sign")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if other.ID() == req.ID() {
		t.Fatalf("two requests share id %v", req.ID())
	}
}

func TestRequest_Params(t *testing.T) {
	t.Parallel()

	type signParams struct {
		Address string `json:"address"`
		Data    string `json:"data"`
	}

	req, err := NewRequest(storeURL("t1"), "eth_sign", signParams{Address: "0xdead", Data: "0xbeef"}, int64(7))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if req.ParamCount() != 2 {
		t.Fatalf("expected 2 params, got %d", req.ParamCount())
	}

	var p signParams
	if err := req.UnmarshalParam(0, &p); err != nil {
		t.Fatalf("UnmarshalParam(0): %v", err)
	}
	if p.Address != "0xdead" || p.Data != "0xbeef" {
		t.Fatalf("unexpected param decode: %+v", p)
	}

	var n int64
	if err := req.UnmarshalParam(1, &n); err != nil {
		t.Fatalf("UnmarshalParam(1): %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
}

func TestRequest_UnmarshalParamOutOfRange(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(storeURL("t1"), "eth_sign", "only")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	var s string
	if err := req.UnmarshalParam(1, &s); !errors.Is(err, ErrDeserialization) {
		t.Fatalf("expected ErrDeserialization, got %v", err)
	}
	if err := req.UnmarshalParam(-1, &s); !errors.Is(err, ErrDeserialization) {
		t.Fatalf("expected ErrDeserialization for negative index, got %v", err)
	}
}

func TestRequest_NewRequestRejectsUnmarshalableParams(t *testing.T) {
	t.Parallel()

	_, err := NewRequest(storeURL("t1"), "eth_sign", func() {})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestResponse_EchoesRequestID(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(storeURL("t1"), "eth_sign")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	res, err := NewResponse(req, wc.SessionUpdate{Approved: true})
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	if res.URL() != req.URL() {
		t.Fatalf("response bound to %v, want %v", res.URL(), req.URL())
	}

	raw, err := json.Marshal(res.payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var decoded struct {
		ID     int64           `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if decoded.ID != req.ID().(int64) {
		t.Fatalf("response id %d does not echo request id %v", decoded.ID, req.ID())
	}
	if len(decoded.Result) == 0 {
		t.Fatalf("response has no result")
	}
}

func TestResponse_ErrorCarriesCodeAndMessage(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(storeURL("t1"), "eth_unknown")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	res := NewErrorResponse(req, -32601, "no handler for method eth_unknown")
	raw, err := json.Marshal(res.payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var decoded struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if decoded.Error.Code != -32601 {
		t.Fatalf("expected code -32601, got %d", decoded.Error.Code)
	}
	if decoded.Error.Message != "no handler for method eth_unknown" {
		t.Fatalf("unexpected message %q", decoded.Error.Message)
	}
}
