package services

import (
	"errors"
	"log"
	"os"
	"time"

	"chatrelay/internal/models"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
	"chatrelay/internal/storage"
	"chatrelay/internal/tasks"
)

var (
	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrAttachmentUnavailable = errors.New("attachment no longer available")
)

const (
	contentViewedPlaceholder  = "[Attachment downloaded and removed]"
	contentMissingPlaceholder = "[Attachment expired or missing]"
)

// DownloadResult hands the open file to the handler. Finalize must be
// called after the response body has been written; for a recipient it
// schedules the view-once teardown, for the sender it is a no-op.
type DownloadResult struct {
	Attachment *models.ChatMessageAttachment
	File       *os.File
	Finalize   func()
}

type AttachmentService interface {
	// Download enforces the view-once rule: the sender may fetch the file
	// any number of times, every other member exactly once.
	Download(attachmentID, userID int) (*DownloadResult, error)

	// SweepExpired removes viewed attachments whose message is older than
	// the retention window. Failures are logged and skipped.
	SweepExpired(retention time.Duration) int
}

type attachmentService struct {
	attachments repositories.AttachmentRepository
	rooms       repositories.RoomRepository
	store       *storage.FileStore
	hub         realtime.Publisher
	queue       *tasks.Queue
}

func NewAttachmentService(
	attachments repositories.AttachmentRepository,
	rooms repositories.RoomRepository,
	store *storage.FileStore,
	hub realtime.Publisher,
	queue *tasks.Queue,
) AttachmentService {
	return &attachmentService{
		attachments: attachments,
		rooms:       rooms,
		store:       store,
		hub:         hub,
		queue:       queue,
	}
}

func (s *attachmentService) Download(attachmentID, userID int) (*DownloadResult, error) {
	a, err := s.attachments.GetByID(attachmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAttachmentNotFound
	}
	ok, err := s.rooms.IsMember(a.RoomID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRoomMember
	}

	if userID == a.SenderID {
		f, err := s.store.Open(a.FilePath)
		if err != nil {
			s.repair(a)
			return nil, ErrAttachmentUnavailable
		}
		return &DownloadResult{Attachment: a, File: f, Finalize: func() {}}, nil
	}

	if a.Viewed {
		return nil, ErrAttachmentUnavailable
	}
	flipped, err := s.attachments.MarkViewed(a.ID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		// a concurrent recipient won the flip
		return nil, ErrAttachmentUnavailable
	}

	f, err := s.store.Open(a.FilePath)
	if err != nil {
		s.repair(a)
		return nil, ErrAttachmentUnavailable
	}

	s.hub.Publish(realtime.RoomChannel(a.RoomID), realtime.Event{
		Event: realtime.EventAttachmentViewed,
		Data:  realtime.AttachmentViewedPayload{AttachmentID: a.ID},
	})

	att := a
	return &DownloadResult{
		Attachment: a,
		File:       f,
		Finalize: func() {
			s.queue.Enqueue("attachment-teardown", func() error {
				return s.remove(att, contentViewedPlaceholder)
			})
		},
	}, nil
}

// repair drops an attachment row whose backing file vanished so the
// conversation stops advertising a dead download.
func (s *attachmentService) repair(a *models.ChatMessageAttachment) {
	s.queue.Enqueue("attachment-repair", func() error {
		return s.remove(a, contentMissingPlaceholder)
	})
}

// remove deletes file and row, rewrites the owning message and tells the
// room the attachment is gone.
func (s *attachmentService) remove(a *models.ChatMessageAttachment, placeholder string) error {
	if err := s.store.Remove(a.FilePath); err != nil {
		log.Printf("[attachment][remove] file %s: %v", a.FilePath, err)
	}
	if err := s.attachments.DeleteWithMessageRewrite(a.ID, placeholder); err != nil {
		return err
	}
	s.hub.Publish(realtime.RoomChannel(a.RoomID), realtime.Event{
		Event: realtime.EventAttachmentDeleted,
		Data:  realtime.AttachmentDeletedPayload{AttachmentID: a.ID, MessageID: a.MessageID},
	})
	return nil
}

func (s *attachmentService) SweepExpired(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)
	expired, err := s.attachments.ListExpired(cutoff)
	if err != nil {
		log.Printf("[attachment][sweep] list: %v", err)
		return 0
	}
	removed := 0
	for _, a := range expired {
		if err := s.remove(a, contentMissingPlaceholder); err != nil {
			log.Printf("[attachment][sweep] attachment=%d: %v", a.ID, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("[attachment][sweep] removed %d expired attachments", removed)
	}
	return removed
}
