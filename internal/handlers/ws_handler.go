package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatrelay/internal/middleware"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
	"chatrelay/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSHandler struct {
	Hub      *realtime.Hub
	Rooms    repositories.RoomRepository
	Users    services.UserService
	Messages services.MessageService
	Presence services.PresenceService
}

func NewWSHandler(
	hub *realtime.Hub,
	rooms repositories.RoomRepository,
	users services.UserService,
	messages services.MessageService,
	presence services.PresenceService,
) *WSHandler {
	return &WSHandler{Hub: hub, Rooms: rooms, Users: users, Messages: messages, Presence: presence}
}

// Serve upgrades the connection. The access token travels in the query
// string because browsers cannot set headers on websocket upgrades.
func (h *WSHandler) Serve(c *gin.Context) {
	claims, err := middleware.ParseToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	user, err := h.Users.GetByID(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ws][upgrade] user=%d: %v", user.ID, err)
		return
	}

	client := realtime.NewWSClient(user.ID, conn)
	h.Hub.Add(client)

	// room channels are joined explicitly once the client opens a room
	if err := h.Presence.HandleConnect(user.ID, client); err != nil {
		log.Printf("[ws][connect] presence user=%d: %v", user.ID, err)
	}

	client.Run(func(in realtime.Inbound) {
		h.dispatch(client, user.ID, user.Name, in)
	})

	last := h.Hub.Remove(client)
	client.Close()
	if err := h.Presence.HandleDisconnect(user.ID, last); err != nil {
		log.Printf("[ws][disconnect] presence user=%d: %v", user.ID, err)
	}
}

func (h *WSHandler) dispatch(client *realtime.WSClient, userID int, userName string, in realtime.Inbound) {
	switch in.Event {
	case realtime.InboundJoin:
		// rooms created after this connection was opened
		ok, err := h.Rooms.IsMember(in.Room, userID)
		if err != nil || !ok {
			return
		}
		h.Hub.Subscribe(client, realtime.RoomChannel(in.Room))
	case realtime.InboundSendMessage:
		if _, err := h.Messages.SendMessage(in.Room, userID, in.Message); err != nil {
			h.sendError(client, err)
		}
	case realtime.InboundForward:
		msgs, err := h.Messages.ForwardMessages(userID, in.OriginalMessageIDs, in.DestinationRoomID)
		if err != nil {
			h.sendError(client, err)
			return
		}
		// forwarding into a room this connection had not joined yet
		h.Hub.Subscribe(client, realtime.RoomChannel(in.DestinationRoomID))
		log.Printf("[ws][forward] user=%d forwarded %d messages to room=%d", userID, len(msgs), in.DestinationRoomID)
	case realtime.InboundStartTyping, realtime.InboundStopTyping:
		ok, err := h.Rooms.IsMember(in.Room, userID)
		if err != nil || !ok {
			return
		}
		h.Messages.BroadcastTyping(in.Room, userID, userName, in.Event == realtime.InboundStartTyping, client)
	default:
		client.Send(realtime.Event{
			Event: realtime.EventError,
			Data:  realtime.ErrorPayload{Message: "unknown event: " + in.Event},
		})
	}
}

func (h *WSHandler) sendError(client *realtime.WSClient, err error) {
	msg := "request failed"
	switch err {
	case services.ErrNotRoomMember, services.ErrRoomNotFound, services.ErrEmptyMessage, services.ErrNothingToForward:
		msg = err.Error()
	}
	client.Send(realtime.Event{Event: realtime.EventError, Data: realtime.ErrorPayload{Message: msg}})
}
