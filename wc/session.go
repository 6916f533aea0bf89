package wc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Method is a WalletConnect method identifier used in JSON-RPC messages.
type Method string

// Session sub-protocol method names.
const (
	SessionRequestMethod Method = "wc_sessionRequest"
	SessionUpdateMethod  Method = "wc_sessionUpdate"
)

// ClientMeta describes a peer to the human on the other side: the dApp in
// approval prompts, the wallet in the dApp's UI.
type ClientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

// DAppInfo is the requesting peer's half of the handshake: its pub/sub
// identity and metadata, plus the chain it asks for. Approved mirrors the
// dApp-side bookkeeping field some implementations persist; wallets leave
// it nil.
type DAppInfo struct {
	PeerID   string     `json:"peerId"`
	PeerMeta ClientMeta `json:"peerMeta"`
	ChainID  *int64     `json:"chainId,omitempty"`
	Approved *bool      `json:"approved,omitempty"`
}

// WalletInfo is the wallet's half of the handshake and the result payload
// of a session-creation response: the approval verdict, the accounts
// exposed, the active chain, and the wallet's own pub/sub identity.
type WalletInfo struct {
	Approved bool       `json:"approved"`
	Accounts []string   `json:"accounts"`
	ChainID  *int64     `json:"chainId"`
	PeerID   string     `json:"peerId"`
	PeerMeta ClientMeta `json:"peerMeta"`
}

// NewWalletInfo assembles a WalletInfo with a freshly generated peer ID.
func NewWalletInfo(approved bool, accounts []string, chainID int64, meta ClientMeta) WalletInfo {
	return WalletInfo{
		Approved: approved,
		Accounts: accounts,
		ChainID:  &chainID,
		PeerID:   NewPeerID(),
		PeerMeta: meta,
	}
}

// WithApproved returns a copy with the approval flag replaced, handy
// for hosts that build a revoking update from an established session.
func (w WalletInfo) WithApproved(approved bool) WalletInfo {
	w.Approved = approved
	return w
}

// SessionUpdate is the params payload of a wc_sessionUpdate request.
// Approved false tears the session down; accounts and chainId may be null
// on the wire in that case.
type SessionUpdate struct {
	Approved bool     `json:"approved"`
	Accounts []string `json:"accounts"`
	ChainID  *int64   `json:"chainId"`
}

// Session binds a connection URL to the two peer descriptors. WalletInfo
// is nil while a handshake is pending and set once the wallet has decided.
// The JSON form is stable so hosts can persist sessions and hand them back
// to Reconnect after a restart.
type Session struct {
	URL        URL         `json:"url"`
	DAppInfo   DAppInfo    `json:"dAppInfo"`
	WalletInfo *WalletInfo `json:"walletInfo,omitempty"`
}

// PeerTopic is the topic outbound responses and requests for this session
// are published to: the dApp's peer ID.
func (s Session) PeerTopic() string {
	return s.DAppInfo.PeerID
}

// WalletTopic is the topic the wallet listens on for this session, or ""
// while no WalletInfo is attached.
func (s Session) WalletTopic() string {
	if s.WalletInfo == nil {
		return ""
	}
	return s.WalletInfo.PeerID
}

// NewPeerID returns a fresh pub/sub peer identity.
func NewPeerID() string {
	return uuid.NewString()
}

// NewKey returns 32 random bytes hex-encoded, suitable as the key
// parameter of a freshly minted connection URL.
func NewKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("wc: generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
