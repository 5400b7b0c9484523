package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"hrguard/guard/monitor"
)

// LiveFeed pushes every new alert to connected websocket clients. It
// satisfies monitor.Notifier.
type LiveFeed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

func NewLiveFeed() *LiveFeed {
	return &LiveFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Admin surface binds to an internal interface; origin
			// checks are left to the deployment's reverse proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Notify broadcasts the alert as JSON to all connected clients. Dead
// connections are dropped.
func (f *LiveFeed) Notify(a monitor.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := conn.WriteJSON(a); err != nil {
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// Handler upgrades the connection and registers the client. Incoming
// messages are discarded; the read loop only detects disconnects.
func (f *LiveFeed) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("live feed upgrade failed: %v", err)
			return
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			conn.Close()
			return
		}
		f.clients[conn] = true
		f.mu.Unlock()

		go func() {
			defer func() {
				f.mu.Lock()
				delete(f.clients, conn)
				f.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// ClientCount reports the number of connected clients.
func (f *LiveFeed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close disconnects all clients and rejects future ones.
func (f *LiveFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for conn := range f.clients {
		conn.Close()
		delete(f.clients, conn)
	}
}
