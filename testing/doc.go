// Package testing provides test utilities for the scanrelay module.
//
// It offers an embedded NATS server with JetStream and helpers for creating
// and inspecting the work-queue streams the producer and consumer use, in the
// spirit of net/http/httptest.
//
// Key utilities:
//   - StartEmbeddedNATS: Single in-process NATS server with JetStream
//   - CreateStream: Work-queue stream on a single subject
//   - StreamMessageCount: Pending message count of a stream
//
// Example usage:
//
//	import (
//	    "testing"
//	    relaytest "github.com/arloliu/scanrelay/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := relaytest.StartEmbeddedNATS(t)
//	    stream := relaytest.CreateStream(t, nc, "TEST_CHUNKS", "test.chunks")
//	    _ = stream
//	}
package testing
