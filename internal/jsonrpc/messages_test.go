package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewRequest_PositionalParams(t *testing.T) {
	type payload struct {
		PeerID string `json:"peerId"`
	}

	req, err := NewRequest(NewRequestID(7), "wc_sessionRequest", payload{PeerID: "peer-1"})
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, `"params":[{"peerId":"peer-1"}]`) {
		t.Fatalf("Expected positional params array, got %s", text)
	}
	if !strings.Contains(text, `"id":7`) {
		t.Fatalf("Expected numeric id, got %s", text)
	}

	elems, err := PositionalParams(req.Params)
	if err != nil {
		t.Fatalf("Failed to split params: %v", err)
	}
	if len(elems) != 1 {
		t.Fatalf("Expected one positional param, got %d", len(elems))
	}
	var back payload
	if err := json.Unmarshal(elems[0], &back); err != nil {
		t.Fatalf("Failed to decode param 0: %v", err)
	}
	if back.PeerID != "peer-1" {
		t.Fatalf("Expected peer-1, got %q", back.PeerID)
	}
}

func TestPositionalParams_RejectsObject(t *testing.T) {
	if _, err := PositionalParams(json.RawMessage(`{"a":1}`)); err == nil {
		t.Fatal("Expected error for object params")
	}
	elems, err := PositionalParams(nil)
	if err != nil || len(elems) != 0 {
		t.Fatalf("Expected empty split for absent params, got %v / %v", elems, err)
	}
}

func TestErrorResponse_NullID(t *testing.T) {
	res := NewErrorResponse(nil, ErrorCodeParseError, "invalid JSON", nil)
	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Failed to marshal error response: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, `"id":null`) {
		t.Fatalf("Expected explicit null id, got %s", text)
	}
	if !strings.Contains(text, `"code":-32700`) {
		t.Fatalf("Expected parse error code, got %s", text)
	}
}

func TestRequestID_NullRoundTrip(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`null`), &id); err != nil {
		t.Fatalf("Failed to unmarshal null id: %v", err)
	}
	if !id.IsNil() {
		t.Fatal("Expected nil id")
	}

	raw, err := json.Marshal(&id)
	if err != nil {
		t.Fatalf("Failed to marshal nil id: %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("Expected null, got %s", raw)
	}
}

func TestRequestID_NumberPrefersInt64(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`1554098597199736`), &id); err != nil {
		t.Fatalf("Failed to unmarshal numeric id: %v", err)
	}
	v, ok := id.Value().(int64)
	if !ok || v != 1554098597199736 {
		t.Fatalf("Expected int64 id, got %T %v", id.Value(), id.Value())
	}
}

func TestNewTimeID_Unique(t *testing.T) {
	a := NewTimeID()
	b := NewTimeID()
	if a.Value() == b.Value() {
		t.Fatalf("Expected distinct ids, got %v twice", a.Value())
	}
	if _, ok := a.Value().(int64); !ok {
		t.Fatalf("Expected numeric id, got %T", a.Value())
	}
}

func TestAnyMessage_Classification(t *testing.T) {
	var req AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"wc_sessionUpdate","params":[],"id":3}`), &req); err != nil {
		t.Fatalf("Failed to unmarshal request: %v", err)
	}
	if req.AsRequest() == nil || req.AsResponse() != nil {
		t.Fatal("Expected request classification")
	}

	var res AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","result":{"approved":true},"id":3}`), &res); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if res.AsResponse() == nil || res.AsRequest() != nil {
		t.Fatal("Expected response classification")
	}

	var bad AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"1.0","method":"x"}`), &bad); err == nil {
		t.Fatal("Expected version mismatch to fail")
	}
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0"}`), &bad); err == nil {
		t.Fatal("Expected structureless message to fail")
	}
}
