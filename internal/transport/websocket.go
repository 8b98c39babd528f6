// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// CommandHandler processes one inbound client message and returns the
// reply to write back to that client. It runs on the client's reader
// goroutine, never on the control loop.
type CommandHandler func(raw []byte) []byte

// WebSocketServer broadcasts telemetry records to every connected
// client on /ws and routes inbound text messages through a command
// handler. Broadcasting is decoupled from the control loop by a
// bounded queue; records are dropped when the queue is full.
type WebSocketServer struct {
	addr      string
	log       *logrus.Logger
	onCommand CommandHandler

	upgrader  websocket.Upgrader
	mux       *http.ServeMux
	server    *http.Server
	broadcast chan any

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	done    chan struct{}
}

// NewWebSocketServer creates a server bound to addr. Call Start to
// begin serving; Handle may be used before Start to mount extra
// endpoints (e.g. /metrics) on the same listener.
func NewWebSocketServer(addr string, log *logrus.Logger, onCommand CommandHandler) *WebSocketServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ws := &WebSocketServer{
		addr:      addr,
		log:       log,
		onCommand: onCommand,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux:       http.NewServeMux(),
		broadcast: make(chan any, 256),
		clients:   make(map[*websocket.Conn]bool),
		done:      make(chan struct{}),
	}
	ws.mux.HandleFunc("/ws", ws.handleUpgrade)
	return ws
}

// Handle mounts an additional endpoint on the server's mux. Must be
// called before Start.
func (ws *WebSocketServer) Handle(pattern string, h http.Handler) {
	ws.mux.Handle(pattern, h)
}

// Start begins serving and broadcasting.
func (ws *WebSocketServer) Start() {
	ws.server = &http.Server{Addr: ws.addr, Handler: ws.mux}
	go func() {
		ws.log.WithField("addr", ws.addr).Info("telemetry websocket listening")
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.log.WithError(err).Error("telemetry server failed")
		}
	}()
	go ws.broadcastLoop()
}

func (ws *WebSocketServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	ws.mu.Lock()
	ws.clients[conn] = true
	n := len(ws.clients)
	ws.mu.Unlock()
	ws.log.WithField("clients", n).Debug("telemetry client connected")

	go ws.readLoop(conn)
}

// readLoop services one client's inbound messages until disconnect.
func (ws *WebSocketServer) readLoop(conn *websocket.Conn) {
	defer ws.dropClient(conn)
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage || ws.onCommand == nil {
			continue
		}
		reply := ws.onCommand(raw)
		if reply == nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			return
		}
	}
}

func (ws *WebSocketServer) dropClient(conn *websocket.Conn) {
	ws.mu.Lock()
	delete(ws.clients, conn)
	n := len(ws.clients)
	ws.mu.Unlock()
	conn.Close()
	ws.log.WithField("clients", n).Debug("telemetry client disconnected")
}

func (ws *WebSocketServer) broadcastLoop() {
	for {
		select {
		case <-ws.done:
			return
		case v := <-ws.broadcast:
			ws.mu.Lock()
			for conn := range ws.clients {
				if err := conn.WriteJSON(v); err != nil {
					delete(ws.clients, conn)
					conn.Close()
				}
			}
			ws.mu.Unlock()
		}
	}
}

// Send queues a record for broadcast, dropping it if the queue is
// full. Never blocks.
func (ws *WebSocketServer) Send(v any) error {
	select {
	case ws.broadcast <- v:
	default:
	}
	return nil
}

// Close disconnects all clients and shuts the server down.
func (ws *WebSocketServer) Close() error {
	close(ws.done)

	ws.mu.Lock()
	for conn := range ws.clients {
		conn.Close()
	}
	ws.clients = make(map[*websocket.Conn]bool)
	ws.mu.Unlock()

	if ws.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return ws.server.Shutdown(ctx)
}

var _ Transport = (*WebSocketServer)(nil)
