package wcserver

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wcproto/wc-server-go/bridge"
	"github.com/wcproto/wc-server-go/wc"
)

func TestJSONSerializer_SerializeRequest(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(storeURL("t1"), "wc_sessionUpdate", wc.SessionUpdate{Approved: false})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	text, err := JSONSerializer{}.SerializeRequest(req, "peer-topic")
	if err != nil {
		t.Fatalf("SerializeRequest: %v", err)
	}

	msg, err := bridge.DecodeMessage(text)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Type != bridge.MessageTypePub {
		t.Fatalf("expected a pub envelope, got %q", msg.Type)
	}
	if msg.Topic != "peer-topic" {
		t.Fatalf("expected topic peer-topic, got %q", msg.Topic)
	}

	var payload struct {
		JSONRPC string            `json:"jsonrpc"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.JSONRPC != "2.0" {
		t.Fatalf("expected jsonrpc 2.0, got %q", payload.JSONRPC)
	}
	if payload.Method != "wc_sessionUpdate" {
		t.Fatalf("expected wc_sessionUpdate, got %q", payload.Method)
	}
	if len(payload.Params) != 1 {
		t.Fatalf("expected 1 positional param, got %d", len(payload.Params))
	}
}

func TestJSONSerializer_DeserializeRequest(t *testing.T) {
	t.Parallel()

	url := storeURL("t1")
	payload := `{"id":1754000000000001,"jsonrpc":"2.0","method":"wc_sessionRequest","params":[{"peerId":"dapp-1","peerMeta":{"description":"","url":"https://dapp.example.org","icons":[],"name":"Example"},"chainId":1}]}`
	text, err := bridge.NewPubMessage(url.Topic, payload).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	req, err := JSONSerializer{}.DeserializeRequest(text, url)
	if err != nil {
		t.Fatalf("DeserializeRequest: %v", err)
	}
	if req.URL() != url {
		t.Fatalf("request bound to %v, want %v", req.URL(), url)
	}
	if req.Method() != string(wc.SessionRequestMethod) {
		t.Fatalf("expected wc_sessionRequest, got %q", req.Method())
	}

	var dapp wc.DAppInfo
	if err := req.UnmarshalParam(0, &dapp); err != nil {
		t.Fatalf("UnmarshalParam: %v", err)
	}
	if dapp.PeerID != "dapp-1" {
		t.Fatalf("expected peer dapp-1, got %q", dapp.PeerID)
	}
	if dapp.ChainID == nil || *dapp.ChainID != 1 {
		t.Fatalf("expected chain id 1, got %v", dapp.ChainID)
	}
}

func TestJSONSerializer_DeserializeRejectsResponses(t *testing.T) {
	t.Parallel()

	url := storeURL("t1")
	text, err := bridge.NewPubMessage(url.Topic, `{"id":42,"jsonrpc":"2.0","result":true}`).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = JSONSerializer{}.DeserializeRequest(text, url)
	if !errors.Is(err, ErrResponseIgnored) {
		t.Fatalf("expected ErrResponseIgnored, got %v", err)
	}
}

func TestJSONSerializer_DeserializeRejectsGarbage(t *testing.T) {
	t.Parallel()

	url := storeURL("t1")
	s := JSONSerializer{}
	for _, text := range []string{
		"not json at all",
		`{"topic":"t1","type":"pub","payload":"not json","silent":true}`,
		`{"topic":"t1","type":"pub","payload":"{\"jsonrpc\":\"1.0\",\"id\":1,\"method\":\"x\"}","silent":true}`,
	} {
		if _, err := s.DeserializeRequest(text, url); !errors.Is(err, ErrDeserialization) {
			t.Fatalf("expected ErrDeserialization for %q, got %v", text, err)
		}
	}
}

func TestJSONSerializer_RoundTrip(t *testing.T) {
	t.Parallel()

	url := storeURL("t1")
	out, err := NewRequest(url, "wc_sessionUpdate", wc.SessionUpdate{Approved: true, Accounts: []string{"0xabc"}})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	text, err := JSONSerializer{}.SerializeRequest(out, "peer-topic")
	if err != nil {
		t.Fatalf("SerializeRequest: %v", err)
	}

	in, err := JSONSerializer{}.DeserializeRequest(text, url)
	if err != nil {
		t.Fatalf("DeserializeRequest: %v", err)
	}
	if in.Method() != out.Method() {
		t.Fatalf("method changed in flight: %q != %q", in.Method(), out.Method())
	}
	if in.ID() != out.ID() {
		t.Fatalf("id changed in flight: %v != %v", in.ID(), out.ID())
	}

	var upd wc.SessionUpdate
	if err := in.UnmarshalParam(0, &upd); err != nil {
		t.Fatalf("UnmarshalParam: %v", err)
	}
	if !upd.Approved || len(upd.Accounts) != 1 || upd.Accounts[0] != "0xabc" {
		t.Fatalf("update changed in flight: %+v", upd)
	}
}
