// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"io"
	"sync"
)

// WriterTransport emits records as JSON lines on an io.Writer. It
// backs the offline analyze command and doubles as a serial-style
// console stream when pointed at stdout.
type WriterTransport struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewWriterTransport wraps w. The caller retains ownership of w; Close
// does not close it.
func NewWriterTransport(w io.Writer) *WriterTransport {
	return &WriterTransport{w: w, enc: json.NewEncoder(w)}
}

func (t *WriterTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(v)
}

func (t *WriterTransport) Close() error { return nil }

var _ Transport = (*WriterTransport)(nil)
