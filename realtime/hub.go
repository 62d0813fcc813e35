package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a toast-style notification pushed to connected clients. The
// avatar pipeline fires these after save/delete outcomes; nothing in the
// pipeline consumes a response.
type Event struct {
	Type      string `json:"type"` // "avatar"
	UserID    uint   `json:"user_id,omitempty"`
	Status    string `json:"status,omitempty"` // "saved", "failed", "deleted"
	Message   string `json:"message,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// AvatarSaved builds the success toast for a completed save
func AvatarSaved(userID uint, photoURL string) Event {
	return Event{
		Type:      "avatar",
		UserID:    userID,
		Status:    "saved",
		Message:   "Profile photo updated",
		PhotoURL:  photoURL,
		Timestamp: time.Now().Unix(),
	}
}

// AvatarFailed builds the failure toast; message should already be
// human-readable ("couldn't save your photo, try again")
func AvatarFailed(userID uint, message string, err error) Event {
	e := Event{
		Type:      "avatar",
		UserID:    userID,
		Status:    "failed",
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is a simple global pubsub for websocket clients
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

func (h *Hub) Run() {
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
				close(client.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast is fire-and-forget; a full channel drops the event rather than
// blocking the pipeline.
func (h *Hub) Broadcast(event Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("realtime: failed to marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- encoded:
	default:
		log.Printf("realtime: dropping event, broadcast channel full")
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and registers a client
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: websocket upgrade error: %v", err)
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	// writer
	go func() {
		for msg := range client.send {
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		client.conn.Close()
	}()

	// reader (just consume pings/close)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister <- client
}
