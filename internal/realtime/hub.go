package realtime

import (
	"log"
	"sync"
)

// Client is one websocket connection as the hub sees it. Send must not
// block; a client that cannot keep up returns false and gets evicted.
type Client interface {
	UserID() int
	Send(ev Event) bool
	Close()
}

// Publisher is the broadcast surface services depend on.
type Publisher interface {
	Publish(channel string, ev Event)
	PublishExcept(channel string, except Client, ev Event)
	SendToUser(userID int, ev Event)
	IsUserConnected(userID int) bool
}

// Hub routes events to subscribed clients by channel name. All maps are
// guarded by mu; Publish copies the member set before sending so client
// callbacks never run under the lock.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[Client]struct{}
	byClient map[Client]map[string]struct{}
	byUser   map[int]map[Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[Client]struct{}),
		byClient: make(map[Client]map[string]struct{}),
		byUser:   make(map[int]map[Client]struct{}),
	}
}

// Add registers the connection and subscribes it to its user channel.
func (h *Hub) Add(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[c.UserID()] == nil {
		h.byUser[c.UserID()] = make(map[Client]struct{})
	}
	h.byUser[c.UserID()][c] = struct{}{}
	h.subscribeLocked(c, UserChannel(c.UserID()))
}

// Remove drops the connection from every channel it joined. Returns true
// when this was the user's last open connection.
func (h *Hub) Remove(c Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.byClient[c] {
		delete(h.channels[ch], c)
		if len(h.channels[ch]) == 0 {
			delete(h.channels, ch)
		}
	}
	delete(h.byClient, c)
	delete(h.byUser[c.UserID()], c)
	if len(h.byUser[c.UserID()]) == 0 {
		delete(h.byUser, c.UserID())
		return true
	}
	return false
}

func (h *Hub) Subscribe(c Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, known := h.byClient[c]; !known {
		return
	}
	h.subscribeLocked(c, channel)
}

func (h *Hub) subscribeLocked(c Client, channel string) {
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[Client]struct{})
	}
	h.channels[channel][c] = struct{}{}
	if h.byClient[c] == nil {
		h.byClient[c] = make(map[string]struct{})
	}
	h.byClient[c][channel] = struct{}{}
}

func (h *Hub) Unsubscribe(c Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels[channel], c)
	if len(h.channels[channel]) == 0 {
		delete(h.channels, channel)
	}
	delete(h.byClient[c], channel)
}

func (h *Hub) Publish(channel string, ev Event) {
	h.PublishExcept(channel, nil, ev)
}

func (h *Hub) PublishExcept(channel string, except Client, ev Event) {
	h.mu.RLock()
	members := make([]Client, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.Send(ev) {
			log.Printf("[hub][publish] evicting slow client user=%d channel=%s", c.UserID(), channel)
			h.Remove(c)
			c.Close()
		}
	}
}

func (h *Hub) SendToUser(userID int, ev Event) {
	h.Publish(UserChannel(userID), ev)
}

func (h *Hub) IsUserConnected(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}
