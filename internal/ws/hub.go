package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Event is the JSON envelope pushed to connected back-office clients.
type Event struct {
	Type    string      `json:"type"`             // sale_created, stock_update, low_stock, ...
	Action  string      `json:"action,omitempty"` // finer-grained verb for stock_update
	Data    interface{} `json:"data,omitempty"`
	User    *User       `json:"user,omitempty"`
	Message string      `json:"message,omitempty"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Hub struct {
	Clients    map[*websocket.Conn]bool
	Register   chan *websocket.Conn
	Unregister chan *websocket.Conn
	Broadcast  chan []byte
	mutex      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*websocket.Conn]bool),
		Register:   make(chan *websocket.Conn),
		Unregister: make(chan *websocket.Conn),
		Broadcast:  make(chan []byte, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			h.mutex.Unlock()
			log.Println("New WS Client Connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Emit queues an event for broadcast without blocking the caller.
// A nil hub discards events, and a full queue drops them.
func (h *Hub) Emit(event Event) {
	if h == nil {
		return
	}
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event.Type, err)
		return
	}
	select {
	case h.Broadcast <- msg:
	default:
		log.Printf("ws: broadcast queue full, dropping %s event", event.Type)
	}
}

// ClientCount reports the number of connected clients; zero for a nil hub.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}
