package wc

import (
	"encoding/json"
	"testing"
)

func TestSession_JSONShape(t *testing.T) {
	chain := int64(1)
	s := Session{
		URL: URL{Topic: "topic-1", Version: "1", Bridge: "https://bridge.example.org", Key: "ab"},
		DAppInfo: DAppInfo{
			PeerID: "dapp-peer",
			PeerMeta: ClientMeta{
				Name: "Example Dapp",
				URL:  "https://example.org",
			},
		},
		WalletInfo: &WalletInfo{
			Approved: true,
			Accounts: []string{"0x1"},
			ChainID:  &chain,
			PeerID:   "wallet-peer",
			PeerMeta: ClientMeta{Name: "Test Wallet"},
		},
	}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Failed to marshal session: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Failed to decode session json: %v", err)
	}
	for _, key := range []string{"url", "dAppInfo", "walletInfo"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("Expected %q key in session json: %s", key, raw)
		}
	}

	var back Session
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Failed to unmarshal session: %v", err)
	}
	if back.URL != s.URL {
		t.Fatalf("URL did not round-trip: %#v", back.URL)
	}
	if back.WalletInfo == nil || !back.WalletInfo.Approved || back.WalletInfo.PeerID != "wallet-peer" {
		t.Fatalf("WalletInfo did not round-trip: %#v", back.WalletInfo)
	}
}

func TestSession_PendingHasNoWalletTopic(t *testing.T) {
	s := Session{DAppInfo: DAppInfo{PeerID: "dapp-peer"}}
	if got := s.WalletTopic(); got != "" {
		t.Fatalf("Expected empty wallet topic for pending session, got %q", got)
	}
	if got := s.PeerTopic(); got != "dapp-peer" {
		t.Fatalf("Expected dapp peer topic, got %q", got)
	}
}

func TestNewWalletInfo(t *testing.T) {
	wi := NewWalletInfo(true, []string{"0x1", "0x2"}, 137, ClientMeta{Name: "Test Wallet"})
	if !wi.Approved {
		t.Fatal("Expected approved wallet info")
	}
	if wi.PeerID == "" {
		t.Fatal("Expected generated peer id")
	}
	if wi.ChainID == nil || *wi.ChainID != 137 {
		t.Fatalf("Expected chain id 137, got %v", wi.ChainID)
	}

	down := wi.WithApproved(false)
	if down.Approved {
		t.Fatal("Expected copy with approval cleared")
	}
	if !wi.Approved {
		t.Fatal("Expected original to be untouched")
	}
	if down.PeerID != wi.PeerID {
		t.Fatalf("Expected peer id to carry over, got %q", down.PeerID)
	}
}

func TestNewPeerIDsAreUnique(t *testing.T) {
	a, b := NewPeerID(), NewPeerID()
	if a == "" || a == b {
		t.Fatalf("Expected distinct peer ids, got %q and %q", a, b)
	}
}

func TestNewKey(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	if len(key) != 64 {
		t.Fatalf("Expected 32 hex-encoded bytes, got %d chars", len(key))
	}
}
