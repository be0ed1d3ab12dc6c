package server

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/showrun-ai/showrun/internal/protocol"
)

// WsWriter sends responses down one WebSocket connection.
type WsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *WsWriter) Send(msg interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

// WsHub tracks connected clients.
type WsHub struct {
	clients    map[*websocket.Conn]bool
	clientsMu  sync.RWMutex
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func NewWsHub() *WsHub {
	return &WsHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *WsHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMu.Unlock()
			log.Printf("[server] client connected, total %d", total)
		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.clientsMu.Unlock()
			log.Printf("[server] client disconnected, total %d", total)
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast pushes a message to every connected client.
func (h *WsHub) Broadcast(msg interface{}) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("[server] broadcast: %v", err)
			// the reader loop handles disconnects
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades an HTTP request and pumps RPC messages through the
// handler until the client disconnects.
func ServeWs(hub *WsHub, handler *Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[server] upgrade: %v", err)
			return
		}
		hub.register <- conn
		defer func() { hub.unregister <- conn }()

		writer := &WsWriter{conn: conn}
		for {
			var msg protocol.RPCMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[server] read: %v", err)
				}
				return
			}
			handler.HandleMessage(msg, writer)
		}
	}
}
