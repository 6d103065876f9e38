package realtime

import (
	"fmt"
	"time"
)

// Event is the envelope for every frame sent to a websocket client.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Event names shared between the server and its clients.
const (
	EventMessage           = "message"
	EventUnreadUpdate      = "unread_update"
	EventTypingStarted     = "typing_started"
	EventTypingStopped     = "typing_stopped"
	EventAttachmentViewed  = "attachment_viewed"
	EventAttachmentDeleted = "attachment_deleted"
	EventUserStatusUpdate  = "user_status_update"
	EventError             = "error"
)

type AttachmentPayload struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"file_size_bytes"`
	Viewed   bool   `json:"viewed"`
	IsImage  bool   `json:"is_image"`
}

type MessagePayload struct {
	ID         int                `json:"id"`
	RoomID     int                `json:"room_id"`
	RoomType   string             `json:"room_type"`
	SenderID   int                `json:"sender_id"`
	SenderName string             `json:"sender_name"`
	Content    string             `json:"content"`
	Timestamp  time.Time          `json:"timestamp"`
	IsForward  bool               `json:"is_forward"`
	Attachment *AttachmentPayload `json:"attachment"`
}

type UnreadUpdatePayload struct {
	RoomID int `json:"room_id"`
	Count  int `json:"count"`
}

type TypingPayload struct {
	RoomID   int    `json:"room_id"`
	UserID   int    `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

type AttachmentViewedPayload struct {
	AttachmentID int `json:"attachment_id"`
}

type AttachmentDeletedPayload struct {
	AttachmentID int `json:"attachment_id"`
	MessageID    int `json:"message_id"`
}

type UserStatusPayload struct {
	UserID int    `json:"user_id"`
	Status string `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Inbound is a frame received from a websocket client.
type Inbound struct {
	Event              string `json:"event"`
	Room               int    `json:"room"`
	Message            string `json:"message"`
	OriginalMessageIDs []int  `json:"original_message_ids"`
	DestinationRoomID  int    `json:"destination_room_id"`
}

// Client-sent event names.
const (
	InboundJoin        = "join"
	InboundSendMessage = "send_message"
	InboundStartTyping = "start_typing"
	InboundStopTyping  = "stop_typing"
	InboundForward     = "forward_multiple_messages"
)

// RoomChannel is the hub channel all members of a room subscribe to.
func RoomChannel(roomID int) string {
	return fmt.Sprintf("room:%d", roomID)
}

// UserChannel is the hub channel private to one user (unread counters,
// cross-room notices). Every connection of that user subscribes to it.
func UserChannel(userID int) string {
	return fmt.Sprintf("user:%d", userID)
}
