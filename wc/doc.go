// Package wc contains the wire-level value types of the WalletConnect v1
// session protocol: the connection URL exchanged as a QR code, the peer
// descriptors carried in handshake and update payloads, and the session
// value that binds them together. It mirrors the JSON representation used
// on the wire while keeping the surface Go-friendly (exported structs with
// json tags, string constants for method names, explicit parse errors).
//
// The package is intentionally free of transport and dispatch logic: the
// root package and the bridge implementations import these types but do
// their own framing and routing.
//
// # Connection URLs
//
// A dApp encodes a URL as wc:{topic}@{version}?bridge={url}&key={hex} and
// displays it to the wallet. ParseURL decodes that form, URL.String
// produces it. URL is a comparable value; the root package uses it as a
// map key for session identity.
//
// # Sessions
//
// Session is the unit hosts persist and pass back to Reconnect after a
// restart. Its JSON form is stable (url / dAppInfo / walletInfo keys), so
// a host can marshal it as-is.
package wc
