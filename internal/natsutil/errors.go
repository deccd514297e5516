// Package natsutil classifies NATS failures for the transport-facing packages.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/scanrelay/types"
)

// IsConnectivityError reports whether err means the broker could not be
// reached, as opposed to the broker rejecting the request.
//
// A chunk publish failing this way may be retried with the same message ID;
// JetStream drops the duplicate if the first attempt did land.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, types.ErrConnectivity),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout")
}
