package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"floodwatch/internal/logger"
)

const (
	// writeWait bounds how long a single viewer write may take. A peer
	// that stopped reading gets evicted instead of parking the hub.
	writeWait = 10 * time.Second

	// pingPeriod keeps idle viewers alive; it must be shorter than the
	// read deadline the handler refreshes on pong.
	pingPeriod = 30 * time.Second
)

// HubService fans the latest annotated frame out to connected viewers.
// Broadcast never blocks the render tick: when the hub is busy the
// message is dropped, viewers just see the next tick.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.Mutex
	count      atomic.Int64
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 1),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run dispatches hub events until ctx is cancelled, then closes every
// remaining viewer connection.
func (h *HubService) Run(ctx context.Context) {
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.count.Store(0)
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.count.Store(int64(total))
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.count.Store(int64(total))
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.writeAll(websocket.TextMessage, message)

		case <-pinger.C:
			h.writeAll(websocket.PingMessage, nil)
		}
	}
}

// writeAll sends a message to a snapshot of the viewer set. The network
// writes happen outside the mutex so a slow or dead peer never blocks
// registration or the client count the render tick reads; viewers whose
// write failed or timed out are dropped afterwards.
func (h *HubService) writeAll(messageType int, message []byte) {
	h.mutex.Lock()
	viewers := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		viewers = append(viewers, client)
	}
	h.mutex.Unlock()

	var failed []*websocket.Conn
	for _, client := range viewers {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(messageType, message); err != nil {
			h.logger.Error("Error sending message to viewer: %v", err)
			failed = append(failed, client)
		}
	}
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	for _, client := range failed {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			client.Close()
		}
	}
	h.count.Store(int64(len(h.clients)))
	h.mutex.Unlock()
}

func (h *HubService) Register(client *websocket.Conn) {
	h.register <- client
}

func (h *HubService) Unregister(client *websocket.Conn) {
	h.unregister <- client
}

// Broadcast queues a message for all viewers, dropping it if the hub has
// not drained the previous one yet.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

func (h *HubService) GetClientCount() int {
	return int(h.count.Load())
}
