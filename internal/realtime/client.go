package realtime

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// WSClient wraps one gorilla websocket connection. Outbound events go
// through a buffered channel drained by writePump; Send never blocks.
type WSClient struct {
	userID int
	conn   *websocket.Conn
	send   chan Event
	once   chan struct{}
}

func NewWSClient(userID int, conn *websocket.Conn) *WSClient {
	return &WSClient{
		userID: userID,
		conn:   conn,
		send:   make(chan Event, sendBufferSize),
		once:   make(chan struct{}),
	}
}

func (c *WSClient) UserID() int { return c.userID }

// Send queues the event for delivery. A full buffer means the client is
// not reading fast enough; report failure so the hub can evict it.
func (c *WSClient) Send(ev Event) bool {
	select {
	case <-c.once:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *WSClient) Close() {
	select {
	case <-c.once:
	default:
		close(c.once)
	}
}

// Run drives both pumps and blocks until the connection dies. onEvent is
// called for every decoded inbound frame.
func (c *WSClient) Run(onEvent func(Inbound)) {
	go c.writePump()
	c.readPump(onEvent)
}

func (c *WSClient) readPump(onEvent func(Inbound)) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws][read] user=%d: %v", c.userID, err)
			}
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			log.Printf("[ws][read] user=%d bad frame: %v", c.userID, err)
			continue
		}
		onEvent(in)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.once:
			return
		}
	}
}
