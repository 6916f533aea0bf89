package wc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL indicates that a string could not be parsed as a
// WalletConnect connection URL. Parse failures wrap this sentinel so
// callers can test with errors.Is.
var ErrInvalidURL = errors.New("wc: invalid connection url")

// URL identifies one dApp-wallet connection. Topic is the pub/sub
// routing key for the handshake phase, Bridge the relay the peers meet
// on, and Key the hex-encoded symmetric key material the dApp minted.
// The key is carried verbatim and never interpreted here.
//
// URL is a plain comparable value and safe to use as a map key.
type URL struct {
	Topic   string `json:"topic"`
	Version string `json:"version"`
	Bridge  string `json:"bridge"`
	Key     string `json:"key"`
}

// ParseURL parses the textual form wc:{topic}@{version}?bridge={url}&key={hex}.
// The version segment defaults to "1" when absent. A scheme-relative
// variant (wc://topic@version?...) is accepted as well.
func ParseURL(raw string) (URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "wc" {
		return URL{}, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	// The topic@version part lands in Opaque for the canonical form and
	// in User/Host for the scheme-relative one.
	handle := u.Opaque
	if handle == "" && u.User != nil {
		handle = u.User.Username()
		if u.Host != "" {
			handle += "@" + u.Host
		}
	}
	if handle == "" {
		return URL{}, fmt.Errorf("%w: missing topic", ErrInvalidURL)
	}

	topic, version, found := strings.Cut(handle, "@")
	if topic == "" {
		return URL{}, fmt.Errorf("%w: missing topic", ErrInvalidURL)
	}
	if !found || version == "" {
		version = "1"
	}

	q := u.Query()
	bridge := q.Get("bridge")
	if bridge == "" {
		return URL{}, fmt.Errorf("%w: missing bridge parameter", ErrInvalidURL)
	}
	if bu, err := url.Parse(bridge); err != nil || !bu.IsAbs() {
		return URL{}, fmt.Errorf("%w: bridge %q is not an absolute url", ErrInvalidURL, bridge)
	}
	key := q.Get("key")
	if key == "" {
		return URL{}, fmt.Errorf("%w: missing key parameter", ErrInvalidURL)
	}

	return URL{Topic: topic, Version: version, Bridge: bridge, Key: key}, nil
}

// String renders the canonical textual form with the bridge query-escaped.
func (u URL) String() string {
	return fmt.Sprintf("wc:%s@%s?bridge=%s&key=%s", u.Topic, u.Version, url.QueryEscape(u.Bridge), u.Key)
}

// Validate reports whether a programmatically constructed URL carries the
// fields the protocol requires.
func (u URL) Validate() error {
	if u.Topic == "" {
		return fmt.Errorf("%w: missing topic", ErrInvalidURL)
	}
	if u.Bridge == "" {
		return fmt.Errorf("%w: missing bridge", ErrInvalidURL)
	}
	if u.Key == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidURL)
	}
	return nil
}
