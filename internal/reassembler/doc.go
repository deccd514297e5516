// Package reassembler rebuilds documents from the chunk queue on the consumer side.
//
// The reassembler polls the queue, appends chunks in arrival order and writes
// a numbered output file whenever a terminal chunk arrives. It never reorders
// or repairs chunk streams: ordering faults are logged and counted, and the
// bytes are written as they arrived.
package reassembler
