// Package hooks provides the default hook set and asynchronous hook dispatch.
package hooks

import (
	"context"
	"time"

	"github.com/arloliu/scanrelay/types"
)

// NewNop returns hooks whose callbacks do nothing.
//
// This is the default used when no custom hooks are provided, eliminating the
// need for nil checks throughout the codebase.
func NewNop() *types.Hooks {
	return &types.Hooks{
		OnDocumentSent:        func(context.Context, types.DocumentInfo) error { return nil },
		OnDocumentReassembled: func(context.Context, types.DocumentInfo) error { return nil },
		OnTimeoutChanged:      func(context.Context, time.Duration, time.Duration) error { return nil },
	}
}
