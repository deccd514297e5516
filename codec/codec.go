package codec

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/scanrelay/types"
)

// TerminalPosition returns the position of the last chunk for a document of size bytes.
//
// Parameters:
//   - size: Document length in bytes
//   - capacity: Maximum payload bytes per chunk
//
// Returns:
//   - int: ceil(size/capacity)-1, or 0 for an empty document
func TerminalPosition(size, capacity int) int {
	if capacity <= 0 {
		capacity = types.DefaultChunkCapacity
	}
	if size <= 0 {
		return 0
	}

	return (size+capacity-1)/capacity - 1
}

// Encode splits data into an ordered chunk sequence.
//
// Payloads alias data; callers must not modify data until the chunks have been
// serialized.
//
// Parameters:
//   - data: Document bytes
//   - capacity: Maximum payload bytes per chunk (DefaultChunkCapacity when <= 0)
//
// Returns:
//   - []types.Chunk: Chunks in position order 0..TerminalPosition
func Encode(data []byte, capacity int) []types.Chunk {
	if capacity <= 0 {
		capacity = types.DefaultChunkCapacity
	}

	terminal := TerminalPosition(len(data), capacity)
	chunks := make([]types.Chunk, 0, terminal+1)

	if len(data) == 0 {
		return append(chunks, types.Chunk{Position: 0, TerminalPosition: 0, Payload: []byte{}, PayloadLength: 0})
	}

	for pos := 0; pos <= terminal; pos++ {
		start := pos * capacity
		end := min(start+capacity, len(data))
		chunks = append(chunks, types.Chunk{
			Position:         pos,
			TerminalPosition: terminal,
			Payload:          data[start:end],
			PayloadLength:    end - start,
		})
	}

	return chunks
}

// Decode joins chunks back into the original byte stream.
//
// Chunks are ordered by position first; the ordered set must be contiguous from
// 0, every chunk must agree on the terminal position, and the terminal position
// must be the last one.
//
// Returns:
//   - []byte: Concatenated payloads
//   - error: ErrNoChunks, ErrNonContiguous, ErrTerminalMismatch or ErrInvalidPayloadLength
func Decode(chunks []types.Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, types.ErrNoChunks
	}

	ordered := slices.Clone(chunks)
	slices.SortStableFunc(ordered, func(a, b types.Chunk) int {
		return cmp.Compare(a.Position, b.Position)
	})

	if err := Validate(ordered); err != nil {
		return nil, err
	}

	size := 0
	for _, c := range ordered {
		size += c.PayloadLength
	}

	out := make([]byte, 0, size)
	for _, c := range ordered {
		out = append(out, c.Bytes()...)
	}

	return out, nil
}

// Validate checks a chunk sequence in the order given, without reordering.
//
// Returns:
//   - error: nil when positions run 0..n-1, all chunks share terminal position n-1,
//     and every payload length is within bounds
func Validate(chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return types.ErrNoChunks
	}

	for i, c := range chunks {
		if err := CheckPayload(c); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if c.Position != i {
			return fmt.Errorf("%w: expected position %d, got %d", types.ErrNonContiguous, i, c.Position)
		}
	}

	// positions are 0..n-1 here, so a terminal disagreement means a lost tail
	terminal := len(chunks) - 1
	for i, c := range chunks {
		if c.TerminalPosition != terminal {
			return fmt.Errorf("%w: chunk %d declares terminal %d, sequence ends at %d",
				types.ErrTerminalMismatch, i, c.TerminalPosition, terminal)
		}
	}

	return nil
}

// CheckPayload verifies that a chunk's payload length is usable.
func CheckPayload(c types.Chunk) error {
	if c.PayloadLength < 0 || c.PayloadLength > len(c.Payload) {
		return fmt.Errorf("%w: length %d, payload %d bytes",
			types.ErrInvalidPayloadLength, c.PayloadLength, len(c.Payload))
	}
	if c.Position < 0 || c.TerminalPosition < 0 {
		return fmt.Errorf("%w: negative position %d/%d", types.ErrNonContiguous, c.Position, c.TerminalPosition)
	}

	return nil
}

// Digest returns the xxh3 64-bit digest of a document.
func Digest(data []byte) uint64 {
	return xxh3.Hash(data)
}
