// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// UDPTransport sends each record as a single JSON datagram to a fixed
// target, for LAN consumers that want telemetry without holding a
// websocket open. Datagram loss is acceptable by design of the record
// stream (every record is a fresh snapshot).
type UDPTransport struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	log    *logrus.Logger
	closed bool
}

// NewUDPTransport dials target ("host:port").
func NewUDPTransport(target string, log *logrus.Logger) (*UDPTransport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve udp target %q: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %q: %w", target, err)
	}
	log.WithField("target", target).Info("udp telemetry enabled")
	return &UDPTransport{conn: conn, log: log}, nil
}

func (t *UDPTransport) Send(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	// Datagram writes do not block; a full socket buffer drops.
	_, err = t.conn.Write(raw)
	return err
}

func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

var _ Transport = (*UDPTransport)(nil)
