package wc

import (
	"errors"
	"testing"
)

func TestParseURL_Canonical(t *testing.T) {
	raw := "wc:8a5e5bdc-a0e4-4702-ba63-8f1a5655744f@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a"

	u, err := ParseURL(raw)
	if err != nil {
		t.Fatalf("Failed to parse url: %v", err)
	}
	if u.Topic != "8a5e5bdc-a0e4-4702-ba63-8f1a5655744f" {
		t.Fatalf("Expected handshake topic, got %q", u.Topic)
	}
	if u.Version != "1" {
		t.Fatalf("Expected version 1, got %q", u.Version)
	}
	if u.Bridge != "https://bridge.walletconnect.org" {
		t.Fatalf("Expected unescaped bridge url, got %q", u.Bridge)
	}
	if u.Key != "41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a" {
		t.Fatalf("Expected key to round-trip, got %q", u.Key)
	}
}

func TestParseURL_SchemeRelative(t *testing.T) {
	u, err := ParseURL("wc://topic-1@1?bridge=https%3A%2F%2Fbridge.example.org&key=abcd")
	if err != nil {
		t.Fatalf("Failed to parse scheme-relative url: %v", err)
	}
	if u.Topic != "topic-1" || u.Version != "1" {
		t.Fatalf("Unexpected handle: topic=%q version=%q", u.Topic, u.Version)
	}
}

func TestParseURL_VersionDefaults(t *testing.T) {
	u, err := ParseURL("wc:topic-1?bridge=https%3A%2F%2Fbridge.example.org&key=abcd")
	if err != nil {
		t.Fatalf("Failed to parse url without version: %v", err)
	}
	if u.Version != "1" {
		t.Fatalf("Expected default version 1, got %q", u.Version)
	}
}

func TestParseURL_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"wrong scheme", "http://example.com"},
		{"missing topic", "wc:@1?bridge=https%3A%2F%2Fb.example&key=ab"},
		{"missing bridge", "wc:topic@1?key=ab"},
		{"relative bridge", "wc:topic@1?bridge=notaurl&key=ab"},
		{"missing key", "wc:topic@1?bridge=https%3A%2F%2Fb.example"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseURL(tc.raw); !errors.Is(err, ErrInvalidURL) {
				t.Fatalf("Expected ErrInvalidURL for %q, got %v", tc.raw, err)
			}
		})
	}
}

func TestURL_StringRoundTrip(t *testing.T) {
	u := URL{
		Topic:   "topic-1",
		Version: "1",
		Bridge:  "https://bridge.example.org/sub path",
		Key:     "deadbeef",
	}

	parsed, err := ParseURL(u.String())
	if err != nil {
		t.Fatalf("Failed to reparse rendered url: %v", err)
	}
	if parsed != u {
		t.Fatalf("Round trip mismatch: %#v != %#v", parsed, u)
	}
}

func TestURL_Validate(t *testing.T) {
	u := URL{Topic: "t", Version: "1", Bridge: "https://b.example", Key: "ab"}
	if err := u.Validate(); err != nil {
		t.Fatalf("Expected valid url, got %v", err)
	}
	if err := (URL{Bridge: "https://b.example", Key: "ab"}).Validate(); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("Expected ErrInvalidURL for missing topic, got %v", err)
	}
}
