package scanrelay

import "github.com/arloliu/scanrelay/types"

// Sentinel errors returned by Producer, Consumer and their components.
//
// They are re-exported from the types package so that callers can use
// errors.Is without importing internal packages.
var (
	ErrInvalidConfig          = types.ErrInvalidConfig
	ErrNATSConnectionRequired = types.ErrNATSConnectionRequired
	ErrAlreadyStarted         = types.ErrAlreadyStarted
	ErrNotStarted             = types.ErrNotStarted
	ErrSessionOpen            = types.ErrSessionOpen
	ErrNoSession              = types.ErrNoSession
	ErrFileLocked             = types.ErrFileLocked
	ErrRenderFailed           = types.ErrRenderFailed
	ErrNonContiguous          = types.ErrNonContiguous
	ErrTerminalMismatch       = types.ErrTerminalMismatch
	ErrInvalidPayloadLength   = types.ErrInvalidPayloadLength
	ErrNoChunks               = types.ErrNoChunks
	ErrPublishFailed          = types.ErrPublishFailed
	ErrInvalidMessage         = types.ErrInvalidMessage
	ErrConnectivity           = types.ErrConnectivity
)
