package services

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/models"
	"chatrelay/internal/realtime"
	"chatrelay/internal/storage"
	"chatrelay/internal/tasks"
)

func newAttachmentFixture(t *testing.T) (*attachmentService, *fakeAttachmentRepo, *fakeRoomRepo, *fakePublisher, *tasks.Queue) {
	t.Helper()
	attachments := newFakeAttachmentRepo()
	rooms := newFakeRoomRepo()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	hub := newFakePublisher()
	queue := tasks.NewQueue(1, 16)
	svc := NewAttachmentService(attachments, rooms, store, hub, queue).(*attachmentService)
	return svc, attachments, rooms, hub, queue
}

func seedAttachment(t *testing.T, svc *attachmentService, attachments *fakeAttachmentRepo, roomID, senderID int, content string) *models.ChatMessageAttachment {
	t.Helper()
	relPath, size, err := svc.store.Save(roomID, "doc.pdf", strings.NewReader(content))
	require.NoError(t, err)
	a := &models.ChatMessageAttachment{
		ID: 1, MessageID: 100, Filename: "doc.pdf", FilePath: relPath,
		FileSizeBytes: size, RoomID: roomID, SenderID: senderID,
	}
	attachments.rows[a.ID] = a
	return a
}

func TestDownloadNonMemberRejected(t *testing.T) {
	svc, attachments, rooms, _, queue := newAttachmentFixture(t)
	defer queue.Stop()
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeOneToOne}, 1, 2)
	seedAttachment(t, svc, attachments, 10, 1, "content")

	_, err := svc.Download(1, 99)
	assert.ErrorIs(t, err, ErrNotRoomMember)
}

func TestDownloadRecipientConsumesSingleView(t *testing.T) {
	svc, attachments, rooms, hub, queue := newAttachmentFixture(t)
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeOneToOne}, 1, 2)
	a := seedAttachment(t, svc, attachments, 10, 1, "content")

	res, err := svc.Download(a.ID, 2)
	require.NoError(t, err)
	data, err := io.ReadAll(res.File)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	res.File.Close()
	res.Finalize()
	queue.Stop()

	// file and row are gone, message rewritten
	assert.False(t, svc.store.Exists(a.FilePath))
	assert.Equal(t, "[Attachment downloaded and removed]", attachments.rewrites[a.MessageID])

	_, err = svc.Download(a.ID, 2)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)

	events := hub.all()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventAttachmentViewed, events[0].Ev.Event)
	assert.Equal(t, realtime.EventAttachmentDeleted, events[1].Ev.Event)
}

func TestDownloadSenderUnlimited(t *testing.T) {
	svc, attachments, rooms, hub, queue := newAttachmentFixture(t)
	defer queue.Stop()
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeOneToOne}, 1, 2)
	a := seedAttachment(t, svc, attachments, 10, 1, "content")

	for i := 0; i < 3; i++ {
		res, err := svc.Download(a.ID, 1)
		require.NoError(t, err)
		res.File.Close()
		res.Finalize()
	}

	row, err := attachments.GetByID(a.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.Viewed, "sender downloads never consume the view")
	assert.True(t, svc.store.Exists(a.FilePath))
	assert.Empty(t, hub.all(), "sender downloads are not announced")
}

func TestDownloadConcurrentRecipientsOneWinner(t *testing.T) {
	svc, attachments, rooms, _, queue := newAttachmentFixture(t)
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeGroup}, 1, 2, 3, 4, 5)
	a := seedAttachment(t, svc, attachments, 10, 1, "content")

	var wg sync.WaitGroup
	results := make([]error, 5)
	downloads := make([]*DownloadResult, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			downloads[i], results[i] = svc.Download(a.ID, i+2)
		}(i)
	}
	wg.Wait()
	for _, res := range downloads {
		if res != nil {
			res.File.Close()
			res.Finalize()
		}
	}
	queue.Stop()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAttachmentUnavailable)
		}
	}
	assert.Equal(t, 1, wins, "exactly one recipient may consume the view")
}

func TestDownloadMissingFileRepairsRecord(t *testing.T) {
	svc, attachments, rooms, hub, queue := newAttachmentFixture(t)
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeOneToOne}, 1, 2)
	a := &models.ChatMessageAttachment{
		ID: 1, MessageID: 100, Filename: "lost.pdf", FilePath: "10/lost.pdf",
		RoomID: 10, SenderID: 1,
	}
	attachments.rows[a.ID] = a

	_, err := svc.Download(a.ID, 2)
	assert.ErrorIs(t, err, ErrAttachmentUnavailable)
	queue.Stop()

	assert.Equal(t, "[Attachment expired or missing]", attachments.rewrites[a.MessageID])
	row, err := attachments.GetByID(a.ID)
	require.NoError(t, err)
	assert.Nil(t, row, "dead record is removed")

	var deleted bool
	for _, ev := range hub.all() {
		if ev.Ev.Event == realtime.EventAttachmentDeleted {
			deleted = true
		}
	}
	assert.True(t, deleted)
}

func TestSweepRemovesViewedAttachments(t *testing.T) {
	svc, attachments, rooms, _, queue := newAttachmentFixture(t)
	defer queue.Stop()
	rooms.addRoom(&models.ChatRoom{ID: 10, RoomType: models.RoomTypeGroup}, 1, 2)

	viewed := seedAttachment(t, svc, attachments, 10, 1, "old")
	viewed.Viewed = true
	fresh := &models.ChatMessageAttachment{
		ID: 2, MessageID: 200, Filename: "fresh.pdf", FilePath: "10/fresh.pdf",
		RoomID: 10, SenderID: 1,
	}
	attachments.rows[fresh.ID] = fresh

	removed := svc.SweepExpired(5 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.False(t, svc.store.Exists(viewed.FilePath))
	assert.Equal(t, "[Attachment expired or missing]", attachments.rewrites[viewed.MessageID])

	row, err := attachments.GetByID(fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, row, "unviewed attachments survive the sweep")
}
