package repositories

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"chatrelay/internal/models"
)

// NewAttachment describes a file already written to disk that should be
// recorded alongside a message.
type NewAttachment struct {
	Filename string
	FilePath string
	Size     int64
}

// ForwardItem is one message of a forward batch, already prepared by the
// service (prefixed content, copied file).
type ForwardItem struct {
	Content    string
	Attachment *NewAttachment
}

type MessageRepository interface {
	// CreateWithUnread persists the message (and optional attachment) and
	// bumps the unread counter of every other participant, all in one
	// transaction. The returned deltas reflect the committed counters.
	CreateWithUnread(roomID, senderID int, content string, att *NewAttachment) (*models.ChatMessage, []models.UnreadDelta, error)

	// ForwardBatch persists a batch of forwarded messages atomically and
	// bumps unread counters once by the batch size.
	ForwardBatch(destRoomID, senderID int, items []ForwardItem) ([]*models.ChatMessage, []models.UnreadDelta, error)

	ListByRoom(roomID int) ([]*models.ChatMessage, error)
	ListByIDs(ids []int) ([]*models.ChatMessage, error)
	UpdateContent(messageID int, content string) error
}

type messageRepository struct {
	DB *sql.DB
}

func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{DB: db}
}

const insertMessageQ = `
	INSERT INTO chat_messages (room_id, sender_id, content, is_forward)
	VALUES ($1, $2, $3, $4)
	RETURNING id, timestamp
`

const insertAttachmentQ = `
	INSERT INTO chat_message_attachments (message_id, filename, file_path, file_size_bytes, viewed)
	VALUES ($1, $2, $3, $4, FALSE)
	RETURNING id
`

const bumpUnreadQ = `
	UPDATE chat_participants
	SET unread_count = unread_count + $1
	WHERE room_id = $2 AND user_id <> $3
	RETURNING user_id, unread_count
`

func insertMessageTx(tx *sql.Tx, roomID, senderID int, content string, isForward bool, att *NewAttachment) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		IsForward: isForward,
	}
	if err := tx.QueryRow(insertMessageQ, roomID, senderID, content, isForward).Scan(&msg.ID, &msg.Timestamp); err != nil {
		return nil, fmt.Errorf("message insert: %w", err)
	}
	if att != nil {
		a := &models.ChatMessageAttachment{
			MessageID:     msg.ID,
			Filename:      att.Filename,
			FilePath:      att.FilePath,
			FileSizeBytes: att.Size,
			RoomID:        roomID,
			SenderID:      senderID,
		}
		if err := tx.QueryRow(insertAttachmentQ, msg.ID, att.Filename, att.FilePath, att.Size).Scan(&a.ID); err != nil {
			return nil, fmt.Errorf("attachment insert: %w", err)
		}
		msg.Attachment = a
	}
	return msg, nil
}

func bumpUnreadTx(tx *sql.Tx, roomID, senderID, by int) ([]models.UnreadDelta, error) {
	rows, err := tx.Query(bumpUnreadQ, by, roomID, senderID)
	if err != nil {
		return nil, fmt.Errorf("unread bump: %w", err)
	}
	defer rows.Close()

	var deltas []models.UnreadDelta
	for rows.Next() {
		d := models.UnreadDelta{RoomID: roomID}
		if err := rows.Scan(&d.UserID, &d.Count); err != nil {
			return nil, err
		}
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}

func (r *messageRepository) CreateWithUnread(roomID, senderID int, content string, att *NewAttachment) (*models.ChatMessage, []models.UnreadDelta, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	msg, err := insertMessageTx(tx, roomID, senderID, content, false, att)
	if err != nil {
		return nil, nil, err
	}
	deltas, err := bumpUnreadTx(tx, roomID, senderID, 1)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return msg, deltas, nil
}

func (r *messageRepository) ForwardBatch(destRoomID, senderID int, items []ForwardItem) ([]*models.ChatMessage, []models.UnreadDelta, error) {
	if len(items) == 0 {
		return nil, nil, nil
	}
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	msgs := make([]*models.ChatMessage, 0, len(items))
	for _, it := range items {
		msg, err := insertMessageTx(tx, destRoomID, senderID, it.Content, true, it.Attachment)
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, msg)
	}
	deltas, err := bumpUnreadTx(tx, destRoomID, senderID, len(items))
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return msgs, deltas, nil
}

const messageSelectQ = `
	SELECT m.id, m.room_id, m.sender_id, u.name, m.content, m.timestamp, m.is_forward,
	       a.id, a.filename, a.file_path, a.file_size_bytes, a.viewed
	FROM chat_messages m
	JOIN users u ON u.id = m.sender_id
	LEFT JOIN chat_message_attachments a ON a.message_id = m.id
`

func scanMessages(rows *sql.Rows) ([]*models.ChatMessage, error) {
	var res []*models.ChatMessage
	for rows.Next() {
		msg := &models.ChatMessage{}
		var (
			attID     sql.NullInt64
			attName   sql.NullString
			attPath   sql.NullString
			attSize   sql.NullInt64
			attViewed sql.NullBool
		)
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.Timestamp, &msg.IsForward,
			&attID, &attName, &attPath, &attSize, &attViewed,
		); err != nil {
			return nil, err
		}
		if attID.Valid {
			msg.Attachment = &models.ChatMessageAttachment{
				ID:            int(attID.Int64),
				MessageID:     msg.ID,
				Filename:      attName.String,
				FilePath:      attPath.String,
				FileSizeBytes: attSize.Int64,
				Viewed:        attViewed.Bool,
				RoomID:        msg.RoomID,
				SenderID:      msg.SenderID,
			}
		}
		res = append(res, msg)
	}
	return res, rows.Err()
}

func (r *messageRepository) ListByRoom(roomID int) ([]*models.ChatMessage, error) {
	rows, err := r.DB.Query(messageSelectQ+` WHERE m.room_id = $1 ORDER BY m.timestamp, m.id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListByIDs returns the given messages in original timestamp order, so a
// forward of several messages lands in the order they were sent.
func (r *messageRepository) ListByIDs(ids []int) ([]*models.ChatMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	arr := make([]int64, 0, len(ids))
	for _, id := range ids {
		arr = append(arr, int64(id))
	}
	rows, err := r.DB.Query(messageSelectQ+` WHERE m.id = ANY($1) ORDER BY m.timestamp, m.id`, pq.Array(arr))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) UpdateContent(messageID int, content string) error {
	_, err := r.DB.Exec(`UPDATE chat_messages SET content=$1 WHERE id=$2`, content, messageID)
	return err
}
