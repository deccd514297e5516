// Package codec splits document byte streams into fixed-capacity chunks and joins them back.
//
// The codec is pure: it performs no I/O and holds no state. A document of n
// bytes with capacity c becomes ceil(n/c) chunks numbered 0..ceil(n/c)-1, every
// chunk carrying the document's terminal position. Only the terminal chunk may
// be shorter than c. An empty document becomes a single empty terminal chunk so
// that receivers still observe the end of the document.
//
// Decode reorders by position before joining and rejects gaps. Validate checks
// a sequence exactly as it arrived, which is what the reassembler relies on to
// expose transport reordering without correcting it.
package codec
