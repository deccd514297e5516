// Package fsutil provides exclusive file access with a bounded retry policy.
//
// Input images may still be written by the scanner when a scan sees them, so
// every destructive operation (delete, move, read of the timeout file) first
// takes an exclusive advisory lock on the file. A failed attempt is retried a
// fixed number of times with a fixed delay; persistent contention surfaces as
// types.ErrFileLocked and the caller leaves the file for a later pass.
//
// On Unix the lock is flock(LOCK_EX|LOCK_NB) and is held for the duration of
// the operation. On other platforms exclusivity is approximated by opening the
// file for writing and the handle is released before the operation runs.
package fsutil
