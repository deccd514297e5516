package types

import "time"

// DefaultChunkCapacity is the maximum payload size of a single chunk in bytes.
const DefaultChunkCapacity = 1024

// Chunk is one fixed-capacity slice of a document byte stream.
//
// Chunks of one document are produced and delivered in strictly increasing
// Position order from 0 to TerminalPosition inclusive, with no gaps. The chunk
// whose Position equals TerminalPosition is the last one of the document.
// Only the terminal chunk may carry fewer than capacity bytes.
type Chunk struct {
	// Position is the zero-based ordinal of the chunk within its document.
	Position int `json:"position"`

	// TerminalPosition is the ordinal of the document's last chunk.
	TerminalPosition int `json:"terminalPosition"`

	// Payload holds the chunk bytes. Only Payload[:PayloadLength] is meaningful.
	Payload []byte `json:"payload"`

	// PayloadLength is the number of meaningful bytes in Payload.
	PayloadLength int `json:"payloadLength"`
}

// IsTerminal reports whether the chunk completes its document.
func (c Chunk) IsTerminal() bool {
	return c.Position == c.TerminalPosition
}

// Bytes returns the meaningful part of the payload.
//
// The caller must have validated PayloadLength against len(Payload).
func (c Chunk) Bytes() []byte {
	return c.Payload[:c.PayloadLength]
}

// SnapshotTimeLayout is the wire layout of Snapshot.Timestamp ("yyyy-MM-dd HH:mm:ss").
const SnapshotTimeLayout = "2006-01-02 15:04:05"

// Snapshot is the periodic status telemetry emitted by the producer.
type Snapshot struct {
	// Timestamp is the local wall-clock time formatted with SnapshotTimeLayout.
	Timestamp string `json:"timestamp"`

	// Status is the producer status string ("Waiting" or "Processing").
	Status string `json:"status"`

	// TimeoutMillis is the producer's effective inactivity timeout.
	TimeoutMillis int64 `json:"timeoutMillis"`
}

// NewSnapshot builds a snapshot for the given instant, status and timeout.
func NewSnapshot(now time.Time, status Status, timeout time.Duration) Snapshot {
	return Snapshot{
		Timestamp:     now.Format(SnapshotTimeLayout),
		Status:        status.String(),
		TimeoutMillis: timeout.Milliseconds(),
	}
}

// Timeout returns the snapshot timeout as a duration.
func (s Snapshot) Timeout() time.Duration {
	return time.Duration(s.TimeoutMillis) * time.Millisecond
}
