package models

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	RoomTypeOneToOne = "one_to_one"
	RoomTypeGroup    = "group"
)

type ChatRoom struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	RoomType  string    `json:"room_type"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatParticipant links one user to one room and carries that user's
// unread counter. Unique per (user, room).
type ChatParticipant struct {
	ID          int    `json:"id"`
	UserID      int    `json:"user_id"`
	RoomID      int    `json:"room_id"`
	UnreadCount int    `json:"unread_count"`
	UserName    string `json:"user_name"`
	UserEmail   string `json:"user_email"`
}

type ChatMessage struct {
	ID         int                    `json:"id"`
	RoomID     int                    `json:"room_id"`
	SenderID   int                    `json:"sender_id"`
	SenderName string                 `json:"sender_name"`
	Content    string                 `json:"content"`
	Timestamp  time.Time              `json:"timestamp"`
	IsForward  bool                   `json:"is_forward"`
	Attachment *ChatMessageAttachment `json:"attachment,omitempty"`
}

// ChatMessageAttachment is the at-most-one file attached to a message.
// FilePath is stored with forward slashes ({room_id}/{filename}); it is
// converted to the platform separator only at the file-system boundary.
type ChatMessageAttachment struct {
	ID            int    `json:"id"`
	MessageID     int    `json:"message_id"`
	Filename      string `json:"filename"`
	FilePath      string `json:"-"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	Viewed        bool   `json:"viewed"`

	// Denormalized from the owning message for authorization checks.
	RoomID   int `json:"-"`
	SenderID int `json:"-"`
}

func (a *ChatMessageAttachment) IsImage() bool {
	return IsImageFilename(a.Filename)
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
}

// IsImageFilename classifies by extension allowlist; no content sniffing.
func IsImageFilename(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := imageExtensions[ext]
	return ok
}

// RoomSummary is one entry of a user's room list: the room plus the
// caller's unread counter and, for direct rooms, the counterpart.
type RoomSummary struct {
	RoomID      int    `json:"room_id"`
	Name        string `json:"name"`
	RoomType    string `json:"room_type"`
	UnreadCount int    `json:"unread_count"`
	Partner     *User  `json:"partner,omitempty"`
}

// UnreadDelta reports one participant's unread counter after a fan-out
// commit; it is delivered to that user's private channel.
type UnreadDelta struct {
	UserID int `json:"user_id"`
	RoomID int `json:"room_id"`
	Count  int `json:"count"`
}
