// SPDX-License-Identifier: MIT
/*
Package transport carries telemetry records to external consumers.

Implementations are fan-out sinks: Send never blocks the control loop,
dropping records instead when a consumer cannot keep up.
*/
package transport

// Transport delivers telemetry records. Implementations must be safe
// for concurrent use and must not block in Send.
type Transport interface {
	Send(v any) error
	Close() error
}

// Multi fans records out to several transports. A failing sink does
// not stop delivery to the others; the first error is returned.
type Multi []Transport

func (m Multi) Send(v any) error {
	var first error
	for _, t := range m {
		if err := t.Send(v); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, t := range m {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
