package services

import (
	"errors"
	"io"
	"log"

	"github.com/google/uuid"

	"chatrelay/internal/models"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
	"chatrelay/internal/storage"
	"chatrelay/internal/tasks"
)

var (
	ErrEmptyMessage     = errors.New("message content is empty")
	ErrNothingToForward = errors.New("no forwardable messages")
)

const (
	forwardPrefix        = "[Forwarded]: "
	missingAttachmentTag = " (Original attachment was missing)"
)

type MessageService interface {
	// SendMessage persists the message and its unread bumps, then fans
	// out to the room. Nothing is broadcast before the commit.
	SendMessage(roomID, senderID int, content string) (*models.ChatMessage, error)

	// UploadAttachment stores the file and records a "File: {name}"
	// message carrying it.
	UploadAttachment(roomID, senderID int, filename string, r io.Reader) (*models.ChatMessage, error)

	// ForwardMessages copies messages into the destination room. Sources
	// in rooms the sender left (or never joined) are skipped silently.
	ForwardMessages(senderID int, originalIDs []int, destRoomID int) ([]*models.ChatMessage, error)

	// BroadcastTyping tells the room the user started or stopped typing.
	// The typing user's own connection is excluded.
	BroadcastTyping(roomID, userID int, userName string, started bool, self realtime.Client)
}

type messageService struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	store    *storage.FileStore
	hub      realtime.Publisher
	notify   NotifyService
	queue    *tasks.Queue
}

func NewMessageService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	store *storage.FileStore,
	hub realtime.Publisher,
	notify NotifyService,
	queue *tasks.Queue,
) MessageService {
	return &messageService{
		rooms:    rooms,
		messages: messages,
		users:    users,
		store:    store,
		hub:      hub,
		notify:   notify,
		queue:    queue,
	}
}

func messagePayload(msg *models.ChatMessage, roomType string) realtime.MessagePayload {
	p := realtime.MessagePayload{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		RoomType:   roomType,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		IsForward:  msg.IsForward,
	}
	if a := msg.Attachment; a != nil {
		p.Attachment = &realtime.AttachmentPayload{
			ID:       a.ID,
			Filename: a.Filename,
			Size:     a.FileSizeBytes,
			Viewed:   a.Viewed,
			IsImage:  a.IsImage(),
		}
	}
	return p
}

// fanOut delivers a committed message to the room channel and each
// recipient's committed unread counter to their private channel, then
// queues offline nudges.
func (s *messageService) fanOut(msg *models.ChatMessage, roomType string, deltas []models.UnreadDelta) {
	s.hub.Publish(realtime.RoomChannel(msg.RoomID), realtime.Event{
		Event: realtime.EventMessage,
		Data:  messagePayload(msg, roomType),
	})
	var offline []int
	for _, d := range deltas {
		s.hub.SendToUser(d.UserID, realtime.Event{
			Event: realtime.EventUnreadUpdate,
			Data:  realtime.UnreadUpdatePayload{RoomID: d.RoomID, Count: d.Count},
		})
		if !s.hub.IsUserConnected(d.UserID) {
			offline = append(offline, d.UserID)
		}
	}
	if len(offline) > 0 {
		sender, content := msg.SenderName, msg.Content
		recipients := offline
		s.queue.Enqueue("telegram-nudge", func() error {
			s.notify.NotifyOffline(recipients, sender, content)
			return nil
		})
	}
}

func (s *messageService) senderAndRoom(roomID, senderID int) (*models.User, *models.ChatRoom, error) {
	room, err := s.rooms.GetByID(roomID)
	if err != nil {
		return nil, nil, err
	}
	if room == nil {
		return nil, nil, ErrRoomNotFound
	}
	ok, err := s.rooms.IsMember(roomID, senderID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNotRoomMember
	}
	sender, err := s.users.GetByID(senderID)
	if err != nil {
		return nil, nil, err
	}
	if sender == nil {
		return nil, nil, ErrUserNotFound
	}
	return sender, room, nil
}

func (s *messageService) SendMessage(roomID, senderID int, content string) (*models.ChatMessage, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}
	sender, room, err := s.senderAndRoom(roomID, senderID)
	if err != nil {
		return nil, err
	}

	msg, deltas, err := s.messages.CreateWithUnread(roomID, senderID, content, nil)
	if err != nil {
		return nil, err
	}
	msg.SenderName = sender.Name

	s.fanOut(msg, room.RoomType, deltas)
	return msg, nil
}

func (s *messageService) UploadAttachment(roomID, senderID int, filename string, r io.Reader) (*models.ChatMessage, error) {
	sender, room, err := s.senderAndRoom(roomID, senderID)
	if err != nil {
		return nil, err
	}

	safe := storage.SanitizeFilename(filename)
	stored := uuid.New().String()[:8] + "_" + safe
	relPath, size, err := s.store.Save(roomID, stored, r)
	if err != nil {
		return nil, err
	}

	msg, deltas, err := s.messages.CreateWithUnread(roomID, senderID, "File: "+safe, &repositories.NewAttachment{
		Filename: safe,
		FilePath: relPath,
		Size:     size,
	})
	if err != nil {
		// keep DB and disk consistent when the commit fails
		if rmErr := s.store.Remove(relPath); rmErr != nil {
			log.Printf("[message][upload] orphan cleanup %s: %v", relPath, rmErr)
		}
		return nil, err
	}
	msg.SenderName = sender.Name

	s.fanOut(msg, room.RoomType, deltas)
	return msg, nil
}

func (s *messageService) ForwardMessages(senderID int, originalIDs []int, destRoomID int) ([]*models.ChatMessage, error) {
	sender, destRoom, err := s.senderAndRoom(destRoomID, senderID)
	if err != nil {
		return nil, err
	}

	originals, err := s.messages.ListByIDs(originalIDs)
	if err != nil {
		return nil, err
	}

	memberCache := map[int]bool{destRoomID: true}
	items := make([]repositories.ForwardItem, 0, len(originals))
	var copied []string
	for _, orig := range originals {
		allowed, known := memberCache[orig.RoomID]
		if !known {
			allowed, err = s.rooms.IsMember(orig.RoomID, senderID)
			if err != nil {
				return nil, err
			}
			memberCache[orig.RoomID] = allowed
		}
		if !allowed {
			continue
		}

		item := repositories.ForwardItem{Content: forwardPrefix + orig.Content}
		if a := orig.Attachment; a != nil {
			if s.store.Exists(a.FilePath) {
				newName := uuid.New().String()[:8] + "_" + a.Filename
				relPath, size, err := s.store.CopyForForward(a.FilePath, destRoomID, newName)
				if err != nil {
					return nil, err
				}
				copied = append(copied, relPath)
				item.Attachment = &repositories.NewAttachment{
					Filename: a.Filename,
					FilePath: relPath,
					Size:     size,
				}
			} else {
				item.Content += missingAttachmentTag
			}
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, ErrNothingToForward
	}

	msgs, deltas, err := s.messages.ForwardBatch(destRoomID, senderID, items)
	if err != nil {
		for _, path := range copied {
			if rmErr := s.store.Remove(path); rmErr != nil {
				log.Printf("[message][forward] orphan cleanup %s: %v", path, rmErr)
			}
		}
		return nil, err
	}

	// one unread notice per recipient, messages in original order
	for i, msg := range msgs {
		msg.SenderName = sender.Name
		var d []models.UnreadDelta
		if i == len(msgs)-1 {
			d = deltas
		}
		s.fanOut(msg, destRoom.RoomType, d)
	}
	return msgs, nil
}

func (s *messageService) BroadcastTyping(roomID, userID int, userName string, started bool, self realtime.Client) {
	name := realtime.EventTypingStarted
	payload := realtime.TypingPayload{RoomID: roomID, UserID: userID, UserName: userName}
	if !started {
		name = realtime.EventTypingStopped
		payload.UserName = ""
	}
	s.hub.PublishExcept(realtime.RoomChannel(roomID), self, realtime.Event{Event: name, Data: payload})
}
