// Package broadcaster publishes periodic producer status snapshots.
//
// A snapshot carries the wall-clock time, the producer status and the
// effective inactivity timeout. The first snapshot is published as soon as the
// broadcaster starts, then one per interval. A timeout change publishes an
// extra snapshot immediately so the consumer's view of the timeout converges
// without waiting for the next tick.
package broadcaster
