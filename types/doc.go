// Package types provides core type definitions and interfaces for the scanrelay module.
//
// This package contains shared types that are used across multiple packages. By
// keeping them in a separate package, internal components can depend on the wire
// and collaborator contracts without importing the root scanrelay package.
//
// Key types:
//   - Chunk: One fixed-capacity slice of a document byte stream
//   - Snapshot: Periodic producer status telemetry
//   - Status: Producer activity status
//   - Renderer / Document: Image-to-document rendering contract
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
//   - Hooks: Optional lifecycle callbacks
package types
