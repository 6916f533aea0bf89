package wcserver

import "errors"

var (
	// ErrAlreadyConnected is returned by Connect when the store already
	// holds a session for the URL.
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrNotConnected is returned by operations that require an
	// established connection or a stored session.
	ErrNotConnected = errors.New("session not connected")

	// ErrMissingWalletInfo is returned when an operation needs the
	// wallet's half of a session and the session carries none.
	ErrMissingWalletInfo = errors.New("session has no wallet info")

	// ErrSerialization wraps failures to turn an envelope into
	// transport text.
	ErrSerialization = errors.New("failed to serialize message")

	// ErrDeserialization wraps failures to turn transport text into a
	// request envelope.
	ErrDeserialization = errors.New("failed to deserialize message")

	// ErrResponseIgnored marks inbound JSON-RPC responses. The server
	// only sends session sub-protocol requests and drops responses to
	// them silently.
	ErrResponseIgnored = errors.New("inbound response ignored")

	// ErrNoTransport and ErrNoDelegate report missing required Config
	// fields at construction.
	ErrNoTransport = errors.New("transport is required")
	ErrNoDelegate  = errors.New("delegate is required")
)
