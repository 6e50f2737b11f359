package web

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const reloadPath = "/livereload"

var upgrader = websocket.Upgrader{
	// The page is served from another port than the hub.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ReloadHub tells connected browsers to reload the page after the templates
// change in debug mode.
type ReloadHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	quit       chan struct{}
	quitOnce   sync.Once
	mu         sync.Mutex
}

func NewReloadHub() *ReloadHub {
	return &ReloadHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		quit:       make(chan struct{}),
	}
}

func (h *ReloadHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Reload asks every connected browser to reload.
func (h *ReloadHub) Reload() {
	select {
	case h.broadcast <- []byte("reload"):
	case <-h.quit:
	}
}

func (h *ReloadHub) Stop() {
	h.quitOnce.Do(func() { close(h.quit) })
}

func (h *ReloadHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade reload connection", "error", err)
		return
	}
	select {
	case h.register <- conn:
	case <-h.quit:
		conn.Close()
		return
	}

	// Reads only detect the browser going away.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.quit:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
