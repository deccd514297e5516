package types

import "errors"

// Sentinel errors for the scanrelay module.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// Components wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Lifecycle errors - returned by Producer and Consumer.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when Stop is called on a component that hasn't been started.
	ErrNotStarted = errors.New("not started")
)

// Assembler errors - session state machine.
var (
	// ErrSessionOpen is returned when a session is started while another one is still open.
	ErrSessionOpen = errors.New("document session already open")

	// ErrNoSession is returned when an operation requires an open session.
	ErrNoSession = errors.New("no open document session")

	// ErrFileLocked is returned when exclusive access to a file could not be acquired.
	ErrFileLocked = errors.New("file is locked by another writer")

	// ErrRenderFailed is returned when the renderer cannot produce a document.
	ErrRenderFailed = errors.New("document render failed")
)

// Codec errors - chunk encoding and decoding.
var (
	// ErrNonContiguous is returned when chunk positions are not contiguous from 0.
	ErrNonContiguous = errors.New("chunk positions are not contiguous")

	// ErrTerminalMismatch is returned when the terminal position disagrees with the chunk set.
	ErrTerminalMismatch = errors.New("chunk terminal position mismatch")

	// ErrInvalidPayloadLength is returned when a payload length is negative or exceeds the payload.
	ErrInvalidPayloadLength = errors.New("invalid chunk payload length")

	// ErrNoChunks is returned when decoding an empty chunk sequence.
	ErrNoChunks = errors.New("no chunks")
)

// Transport errors - queue publish and receive.
var (
	// ErrPublishFailed is returned when a message could not be published.
	ErrPublishFailed = errors.New("failed to publish message")

	// ErrInvalidMessage is returned when a queue message cannot be decoded.
	ErrInvalidMessage = errors.New("invalid queue message")

	// ErrConnectivity indicates a NATS connectivity issue.
	ErrConnectivity = errors.New("connectivity issue")
)
