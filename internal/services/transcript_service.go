package services

import (
	"fmt"
	"path/filepath"
	"time"

	"chatrelay/internal/pdf"
	"chatrelay/internal/repositories"
)

// TranscriptService exports a room's history as a PDF file. Members only.
type TranscriptService interface {
	Export(roomID, userID int, outDir string) (string, error)
}

type transcriptService struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	gen      pdf.Generator
}

func NewTranscriptService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	gen pdf.Generator,
) TranscriptService {
	return &transcriptService{rooms: rooms, messages: messages, users: users, gen: gen}
}

func (s *transcriptService) Export(roomID, userID int, outDir string) (string, error) {
	room, err := s.rooms.GetByID(roomID)
	if err != nil {
		return "", err
	}
	if room == nil {
		return "", ErrRoomNotFound
	}
	ok, err := s.rooms.IsMember(roomID, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotRoomMember
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	msgs, err := s.messages.ListByRoom(roomID)
	if err != nil {
		return "", err
	}

	name := room.Name
	if name == "" {
		name = fmt.Sprintf("Direct chat #%d", room.ID)
	}
	data := pdf.TranscriptData{
		RoomName:   name,
		RoomType:   room.RoomType,
		ExportedBy: user.Name,
		ExportedAt: time.Now().UTC(),
	}
	for _, m := range msgs {
		line := pdf.TranscriptLine{
			SenderName: m.SenderName,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			IsForward:  m.IsForward,
		}
		if m.Attachment != nil {
			line.Filename = m.Attachment.Filename
		}
		data.Lines = append(data.Lines, line)
	}

	outPath := filepath.Join(outDir, fmt.Sprintf("transcript_room%d_%d.pdf", roomID, time.Now().Unix()))
	if err := s.gen.GenerateTranscript(data, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}
