// Package telemetry implements the consumer's telemetry recorder.
//
// The recorder appends every producer status snapshot to a CSV config log,
// remembers the last timeout the producer reported, and pushes the operator's
// desired timeout from a watched file onto the control queue when it differs.
package telemetry
