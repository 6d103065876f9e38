package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lib/pq"

	"chatrelay/internal/models"
	"chatrelay/internal/storage"
	"chatrelay/internal/tasks"
)

func newRoomFixture(t *testing.T) (*roomService, *fakeRoomRepo, *fakeMessageRepo, *fakeAttachmentRepo, *tasks.Queue) {
	t.Helper()
	rooms := newFakeRoomRepo()
	messages := newFakeMessageRepo(nil)
	attachments := newFakeAttachmentRepo()
	users := newFakeUserRepo(
		&models.User{ID: 1, Name: "Alice"},
		&models.User{ID: 2, Name: "Bob"},
		&models.User{ID: 3, Name: "Carol"},
	)
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	hub := newFakePublisher()
	presence := NewPresenceService(users, rooms, hub, nil, "UTC")
	queue := tasks.NewQueue(1, 16)

	svc := NewRoomService(rooms, messages, attachments, users, presence, store, queue).(*roomService)
	return svc, rooms, messages, attachments, queue
}

func TestStartDirectChatRejectsSelf(t *testing.T) {
	svc, _, _, _, queue := newRoomFixture(t)
	defer queue.Stop()
	_, err := svc.StartDirectChat(1, 1)
	assert.ErrorIs(t, err, ErrSelfChat)
}

func TestStartDirectChatUnknownUser(t *testing.T) {
	svc, _, _, _, queue := newRoomFixture(t)
	defer queue.Stop()
	_, err := svc.StartDirectChat(1, 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStartDirectChatReusesExistingRoom(t *testing.T) {
	svc, rooms, _, _, queue := newRoomFixture(t)
	defer queue.Stop()
	existing := &models.ChatRoom{ID: 7, RoomType: models.RoomTypeOneToOne}
	rooms.findDirectFn = func(a, b int) (*models.ChatRoom, error) { return existing, nil }
	rooms.createDirect = func(a, b int) (*models.ChatRoom, error) {
		t.Fatal("create must not be called when the room exists")
		return nil, nil
	}

	room, err := svc.StartDirectChat(1, 2)
	require.NoError(t, err)
	assert.Equal(t, existing, room)

	// symmetric arguments land on the same room
	room, err = svc.StartDirectChat(2, 1)
	require.NoError(t, err)
	assert.Equal(t, existing, room)
}

func TestStartDirectChatRaceLoserRetriesFind(t *testing.T) {
	svc, rooms, _, _, queue := newRoomFixture(t)
	defer queue.Stop()
	winner := &models.ChatRoom{ID: 9, RoomType: models.RoomTypeOneToOne}

	finds := 0
	rooms.findDirectFn = func(a, b int) (*models.ChatRoom, error) {
		finds++
		if finds == 1 {
			return nil, nil
		}
		return winner, nil
	}
	rooms.createDirect = func(a, b int) (*models.ChatRoom, error) {
		return nil, &pq.Error{Code: "23505"}
	}

	room, err := svc.StartDirectChat(1, 2)
	require.NoError(t, err)
	assert.Equal(t, winner, room)
	assert.Equal(t, 2, finds)
}

func TestCreateGroupDedupesAndIncludesCreator(t *testing.T) {
	svc, rooms, _, _, queue := newRoomFixture(t)
	defer queue.Stop()

	room, err := svc.CreateGroup("team", 1, []int{2, 2, 3, 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, rooms.members[room.ID])
	assert.Equal(t, models.RoomTypeGroup, room.RoomType)
}

func TestViewRoomResetsUnreadAndGatesMembership(t *testing.T) {
	svc, rooms, messages, _, queue := newRoomFixture(t)
	defer queue.Stop()
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeOneToOne}, 1, 2)
	_, _, err := messages.CreateWithUnread(10, 2, "hi", nil)
	require.NoError(t, err)

	_, err = svc.ViewRoom(10, 3)
	assert.ErrorIs(t, err, ErrNotRoomMember)
	assert.Empty(t, rooms.unreadResets, "no reset for a non-member")

	view, err := svc.ViewRoom(10, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, rooms.unreadResets)
	require.Len(t, view.Messages, 1)
	require.NotNil(t, view.Partner)
	assert.Equal(t, 2, view.Partner.ID)
	assert.NotEmpty(t, view.PartnerStatus)
}

func TestFilterSummaries(t *testing.T) {
	summaries := []*models.RoomSummary{
		{RoomID: 1, Name: "engineering", RoomType: models.RoomTypeGroup},
		{RoomID: 2, RoomType: models.RoomTypeOneToOne, Partner: &models.User{ID: 2, Name: "Bob", Email: "bob@corp.io"}},
	}

	filtered := filterSummaries(summaries, "bob")
	require.Len(t, filtered, 1)
	assert.Equal(t, 2, filtered[0].RoomID)

	filtered = filterSummaries(summaries, "corp.io")
	require.Len(t, filtered, 1)
	assert.Equal(t, 2, filtered[0].RoomID)

	filtered = filterSummaries(summaries, "ENG")
	require.Len(t, filtered, 1)
	assert.Equal(t, 1, filtered[0].RoomID)

	assert.Len(t, filterSummaries(summaries, ""), 2)
	assert.Empty(t, filterSummaries(summaries, "zzz"))
}

func TestDeleteConversationQueuesFileCleanup(t *testing.T) {
	svc, rooms, _, attachments, queue := newRoomFixture(t)
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeGroup}, 1, 2)

	relPath, size, err := svc.store.Save(10, "doc.pdf", strings.NewReader("bytes"))
	require.NoError(t, err)
	attachments.rows[1] = &models.ChatMessageAttachment{
		ID: 1, MessageID: 100, Filename: "doc.pdf", FilePath: relPath,
		FileSizeBytes: size, RoomID: 10, SenderID: 1,
	}

	err = svc.DeleteConversation(10, 99)
	assert.ErrorIs(t, err, ErrNotRoomMember)

	err = svc.DeleteConversation(10, 1)
	require.NoError(t, err)
	queue.Stop()

	assert.Equal(t, []int{10}, rooms.deletedRooms)
	assert.False(t, svc.store.Exists(relPath), "attachment files are removed after the rows")
}
