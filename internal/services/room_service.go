package services

import (
	"errors"
	"log"
	"strings"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
	"chatrelay/internal/storage"
	"chatrelay/internal/tasks"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotRoomMember = errors.New("user is not a member of this room")
	ErrSelfChat      = errors.New("cannot start a chat with yourself")
	ErrEmptyGroup    = errors.New("a group needs at least one other member")
)

// RoomView is everything a client needs to render an opened room.
type RoomView struct {
	Room          *models.ChatRoom      `json:"room"`
	Messages      []*models.ChatMessage `json:"messages"`
	Partner       *models.User          `json:"partner,omitempty"`
	PartnerStatus string                `json:"partner_status,omitempty"`
}

type RoomService interface {
	// StartDirectChat returns the existing direct room for the pair or
	// creates it. Concurrent callers converge on one room.
	StartDirectChat(callerID, otherID int) (*models.ChatRoom, error)

	CreateGroup(name string, creatorID int, memberIDs []int) (*models.ChatRoom, error)

	// ViewRoom opens a room: membership gate, unread reset, history.
	ViewRoom(roomID, userID int) (*RoomView, error)

	ListRooms(userID int, query string) ([]*models.RoomSummary, error)

	// DeleteConversation removes the room for everyone; attachment files
	// are cleaned up in the background after the rows are gone.
	DeleteConversation(roomID, userID int) error

	RequireMembership(roomID, userID int) error
}

type roomService struct {
	rooms       repositories.RoomRepository
	messages    repositories.MessageRepository
	attachments repositories.AttachmentRepository
	users       repositories.UserRepository
	presence    PresenceService
	store       *storage.FileStore
	queue       *tasks.Queue
}

func NewRoomService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	attachments repositories.AttachmentRepository,
	users repositories.UserRepository,
	presence PresenceService,
	store *storage.FileStore,
	queue *tasks.Queue,
) RoomService {
	return &roomService{
		rooms:       rooms,
		messages:    messages,
		attachments: attachments,
		users:       users,
		presence:    presence,
		store:       store,
		queue:       queue,
	}
}

func (s *roomService) RequireMembership(roomID, userID int) error {
	ok, err := s.rooms.IsMember(roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRoomMember
	}
	return nil
}

func (s *roomService) StartDirectChat(callerID, otherID int) (*models.ChatRoom, error) {
	if callerID == otherID {
		return nil, ErrSelfChat
	}
	other, err := s.users.GetByID(otherID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrUserNotFound
	}

	room, err := s.rooms.FindDirectRoom(callerID, otherID)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}

	room, err = s.rooms.CreateDirectRoom(callerID, otherID)
	if err == nil {
		return room, nil
	}
	if !repositories.IsUniqueViolation(err) {
		return nil, err
	}
	// lost the race; the winner's room must exist now
	room, err = s.rooms.FindDirectRoom(callerID, otherID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *roomService) CreateGroup(name string, creatorID int, memberIDs []int) (*models.ChatRoom, error) {
	members := make([]int, 0, len(memberIDs)+1)
	seen := map[int]bool{creatorID: true}
	members = append(members, creatorID)
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		u, err := s.users.GetByID(id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, ErrEmptyGroup
	}
	return s.rooms.CreateGroupRoom(name, members)
}

func (s *roomService) ViewRoom(roomID, userID int) (*RoomView, error) {
	room, err := s.rooms.GetByID(roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if err := s.RequireMembership(roomID, userID); err != nil {
		return nil, err
	}

	if err := s.rooms.ResetUnread(roomID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByRoom(roomID)
	if err != nil {
		return nil, err
	}

	view := &RoomView{Room: room, Messages: msgs}
	if room.RoomType == models.RoomTypeOneToOne {
		participants, err := s.rooms.Participants(roomID)
		if err != nil {
			return nil, err
		}
		for _, p := range participants {
			if p.UserID == userID {
				continue
			}
			partner, err := s.users.GetByID(p.UserID)
			if err != nil {
				return nil, err
			}
			if partner != nil {
				view.Partner = partner
				view.PartnerStatus = s.presence.StatusLabel(partner.ID, partner.LastSeen)
			}
		}
	}
	return view, nil
}

// ListRooms filters by room name for groups and partner name or email
// for direct rooms; an empty query returns everything.
func (s *roomService) ListRooms(userID int, query string) ([]*models.RoomSummary, error) {
	summaries, err := s.rooms.ListUserRooms(userID)
	if err != nil {
		return nil, err
	}
	return filterSummaries(summaries, query), nil
}

func filterSummaries(summaries []*models.RoomSummary, query string) []*models.RoomSummary {
	if query == "" {
		return summaries
	}
	q := strings.ToLower(query)
	filtered := make([]*models.RoomSummary, 0, len(summaries))
	for _, sum := range summaries {
		haystack := sum.Name
		if sum.Partner != nil {
			haystack = sum.Partner.Name + " " + sum.Partner.Email
		}
		if strings.Contains(strings.ToLower(haystack), q) {
			filtered = append(filtered, sum)
		}
	}
	return filtered
}

func (s *roomService) DeleteConversation(roomID, userID int) error {
	room, err := s.rooms.GetByID(roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if err := s.RequireMembership(roomID, userID); err != nil {
		return err
	}

	atts, err := s.attachments.ListByRoom(roomID)
	if err != nil {
		return err
	}
	if err := s.rooms.DeleteRoom(roomID); err != nil {
		return err
	}

	for _, a := range atts {
		path := a.FilePath
		s.queue.Enqueue("delete-attachment-file", func() error {
			return s.store.Remove(path)
		})
	}
	log.Printf("[room][delete] room=%d by user=%d, %d files queued", roomID, userID, len(atts))
	return nil
}
