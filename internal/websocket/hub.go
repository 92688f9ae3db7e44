package websocket

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub fans group events out to the live connections of that group's
// members. Membership is checked before a client is registered.
type Hub struct {
	groups     map[int64]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
	evict      chan eviction
	stop       chan struct{}
	done       chan struct{} // closed when Run() exits
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logrus.Logger
}

type envelope struct {
	groupID int64
	data    []byte
}

type eviction struct {
	groupID int64
	userID  int64
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		groups:     make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 64),
		evict:      make(chan eviction),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for _, clients := range h.groups {
				for client := range clients {
					client.Close()
				}
			}
			h.groups = make(map[int64]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			clients, ok := h.groups[client.groupID]
			if !ok {
				clients = make(map[*Client]bool)
				h.groups[client.groupID] = clients
			}
			clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.Lock()
			for client := range h.groups[env.groupID] {
				select {
				case client.send <- env.data:
				default:
					// Slow consumer; drop it rather than stall the group.
					h.remove(client)
				}
			}
			h.mu.Unlock()

		case ev := <-h.evict:
			h.mu.Lock()
			for client := range h.groups[ev.groupID] {
				if client.userID == ev.userID {
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.groups[client.groupID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.groups, client.groupID)
	}
}

// Stop closes every connection and blocks until Run has returned.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends msg to every connection watching groupID.
func (h *Hub) Broadcast(groupID int64, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("[Hub.Broadcast] marshal message")
		return
	}
	select {
	case h.broadcast <- &envelope{groupID: groupID, data: data}:
	case <-h.done:
	}
}

// Disconnect drops userID's connections to groupID, used when they leave.
func (h *Hub) Disconnect(groupID, userID int64) {
	select {
	case h.evict <- eviction{groupID: groupID, userID: userID}:
	case <-h.done:
	}
}

func (h *Hub) ClientCount(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}
