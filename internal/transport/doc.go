// Package transport carries chunks, snapshots and control messages over
// NATS JetStream work-queue streams.
//
// Every queue is a stream with WorkQueuePolicy retention bound to a single
// subject and read through one durable pull consumer with explicit acks. The
// package offers three primitives on top of that:
//
//   - ChunkPublisher: publishes a document's chunks synchronously and in order
//   - Drain: takes everything currently available without blocking
//   - Listen: blocks on new messages until the context is cancelled
package transport
