package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
)

// onlineWindow is how recently a user must have been seen to count as
// online when no live connection can be consulted.
const onlineWindow = 5 * time.Minute

const presenceKeyTTL = onlineWindow

type PresenceService interface {
	// HandleConnect marks the user online and announces it to every room
	// the user belongs to, excluding the connecting client itself.
	HandleConnect(userID int, self realtime.Client) error

	// HandleDisconnect records last_seen and, when this was the user's
	// last connection, announces the new status to the user's rooms.
	HandleDisconnect(userID int, lastConnection bool) error

	IsOnline(userID int, lastSeen time.Time) bool
	StatusLabel(userID int, lastSeen time.Time) string
}

type presenceService struct {
	users repositories.UserRepository
	rooms repositories.RoomRepository
	hub   realtime.Publisher
	rdb   *redis.Client
	loc   *time.Location
}

// NewPresenceService builds the presence layer. rdb may be nil; the
// service then falls back to hub connectivity plus last_seen.
func NewPresenceService(users repositories.UserRepository, rooms repositories.RoomRepository, hub realtime.Publisher, rdb *redis.Client, displayTZ string) PresenceService {
	loc, err := time.LoadLocation(displayTZ)
	if err != nil {
		log.Printf("[presence] unknown timezone %q, using UTC", displayTZ)
		loc = time.UTC
	}
	return &presenceService{users: users, rooms: rooms, hub: hub, rdb: rdb, loc: loc}
}

func presenceKey(userID int) string {
	return fmt.Sprintf("presence:%d", userID)
}

func (s *presenceService) HandleConnect(userID int, self realtime.Client) error {
	now := time.Now().UTC()
	if err := s.users.UpdateLastSeen(userID, now); err != nil {
		return err
	}
	if s.rdb != nil {
		if err := s.rdb.Set(context.Background(), presenceKey(userID), now.Unix(), presenceKeyTTL).Err(); err != nil {
			log.Printf("[presence][connect] redis set user=%d: %v", userID, err)
		}
	}
	s.broadcastStatus(userID, "Online", self)
	return nil
}

func (s *presenceService) HandleDisconnect(userID int, lastConnection bool) error {
	now := time.Now().UTC()
	if err := s.users.UpdateLastSeen(userID, now); err != nil {
		return err
	}
	if !lastConnection {
		return nil
	}
	if s.rdb != nil {
		if err := s.rdb.Del(context.Background(), presenceKey(userID)).Err(); err != nil {
			log.Printf("[presence][disconnect] redis del user=%d: %v", userID, err)
		}
	}
	s.broadcastStatus(userID, s.offlineLabel(now), nil)
	return nil
}

func (s *presenceService) broadcastStatus(userID int, status string, except realtime.Client) {
	roomIDs, err := s.rooms.RoomIDsForUser(userID)
	if err != nil {
		log.Printf("[presence][broadcast] rooms for user=%d: %v", userID, err)
		return
	}
	ev := realtime.Event{
		Event: realtime.EventUserStatusUpdate,
		Data:  realtime.UserStatusPayload{UserID: userID, Status: status},
	}
	for _, roomID := range roomIDs {
		s.hub.PublishExcept(realtime.RoomChannel(roomID), except, ev)
	}
}

// IsOnline prefers a live connection, then the redis heartbeat key, then
// the recency of last_seen.
func (s *presenceService) IsOnline(userID int, lastSeen time.Time) bool {
	if s.hub != nil && s.hub.IsUserConnected(userID) {
		return true
	}
	if s.rdb != nil {
		n, err := s.rdb.Exists(context.Background(), presenceKey(userID)).Result()
		if err == nil {
			return n > 0
		}
		log.Printf("[presence][online] redis exists user=%d: %v", userID, err)
	}
	return time.Since(lastSeen) < onlineWindow
}

// StatusLabel renders either "Online" or the last-seen clock time in the
// configured display timezone.
func (s *presenceService) StatusLabel(userID int, lastSeen time.Time) string {
	if s.IsOnline(userID, lastSeen) {
		return "Online"
	}
	return s.offlineLabel(lastSeen)
}

func (s *presenceService) offlineLabel(lastSeen time.Time) string {
	return "Last seen at " + lastSeen.In(s.loc).Format("03:04 PM")
}
