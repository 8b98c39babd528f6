// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestWriterTransportEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	tr := NewWriterTransport(&buf)

	require.NoError(t, tr.Send(map[string]any{"type": "STATUS", "level": 0.5}))
	require.NoError(t, tr.Send(map[string]any{"type": "RHYTHM"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "STATUS", rec["type"])
}

type failingTransport struct{ err error }

func (f *failingTransport) Send(any) error { return f.err }
func (f *failingTransport) Close() error   { return f.err }

func TestMultiDeliversPastFailures(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	m := Multi{&failingTransport{err: boom}, NewWriterTransport(&buf)}

	err := m.Send(map[string]any{"type": "STATUS"})
	assert.ErrorIs(t, err, boom)
	// The healthy sink still received the record.
	assert.Contains(t, buf.String(), "STATUS")
}

func newTestServer(t *testing.T, onCommand CommandHandler) (*WebSocketServer, *websocket.Conn) {
	t.Helper()
	ws := NewWebSocketServer("unused", quietLogger(), onCommand)
	go ws.broadcastLoop()

	srv := httptest.NewServer(http.HandlerFunc(ws.handleUpgrade))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Registration happens just after the handshake returns; wait for
	// it so an immediate broadcast is not dropped.
	require.Eventually(t, func() bool {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return len(ws.clients) == 1
	}, time.Second, 5*time.Millisecond)
	return ws, conn
}

func TestWebSocketBroadcast(t *testing.T) {
	ws, conn := newTestServer(t, nil)

	require.NoError(t, ws.Send(map[string]any{"type": "TRANSIENT", "strength": 0.9}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rec map[string]any
	require.NoError(t, conn.ReadJSON(&rec))
	assert.Equal(t, "TRANSIENT", rec["type"])
}

func TestWebSocketCommandRoundTrip(t *testing.T) {
	_, conn := newTestServer(t, func(raw []byte) []byte {
		assert.JSONEq(t, `{"cmd":"get"}`, string(raw))
		return []byte(`{"ok":true}`)
	})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"get"}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(reply))
}

func TestWebSocketSendNeverBlocks(t *testing.T) {
	ws := NewWebSocketServer("unused", quietLogger(), nil)
	// No broadcast loop running; fill the queue past capacity.
	for i := 0; i < 1000; i++ {
		require.NoError(t, ws.Send(i))
	}
}
