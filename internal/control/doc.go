// Package control holds the producer's shared runtime settings and the
// listener that applies timeout updates pushed by the consumer.
//
// TimeoutCell and StatusCell are the only state shared between the producer
// goroutines. Both are lock-free; readers observe either the old or the new
// value, never a torn one. The assembler reads the timeout once at the top of
// every wait, so an update never shortens or extends a wait already in
// progress.
package control
