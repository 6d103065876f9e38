package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

type AttachmentRepository interface {
	// GetByID returns the attachment with owning-message context joined
	// in, or (nil, nil) when no such row exists.
	GetByID(id int) (*models.ChatMessageAttachment, error)

	// MarkViewed flips viewed FALSE -> TRUE and reports whether this call
	// performed the flip. At most one caller ever gets true per row.
	MarkViewed(id int) (bool, error)

	// DeleteWithMessageRewrite removes the attachment row and rewrites the
	// owning message's content in one transaction.
	DeleteWithMessageRewrite(id int, newContent string) error

	Delete(id int) error

	// ListExpired returns viewed attachments whose message is older than
	// the cutoff. Fed to the periodic sweep.
	ListExpired(olderThan time.Time) ([]*models.ChatMessageAttachment, error)

	ListByRoom(roomID int) ([]*models.ChatMessageAttachment, error)
}

type attachmentRepository struct {
	DB *sql.DB
}

func NewAttachmentRepository(db *sql.DB) AttachmentRepository {
	return &attachmentRepository{DB: db}
}

const attachmentSelectQ = `
	SELECT a.id, a.message_id, a.filename, a.file_path, a.file_size_bytes, a.viewed,
	       m.room_id, m.sender_id
	FROM chat_message_attachments a
	JOIN chat_messages m ON m.id = a.message_id
`

func scanAttachment(row *sql.Row) (*models.ChatMessageAttachment, error) {
	a := &models.ChatMessageAttachment{}
	err := row.Scan(&a.ID, &a.MessageID, &a.Filename, &a.FilePath, &a.FileSizeBytes, &a.Viewed,
		&a.RoomID, &a.SenderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *attachmentRepository) GetByID(id int) (*models.ChatMessageAttachment, error) {
	return scanAttachment(r.DB.QueryRow(attachmentSelectQ+` WHERE a.id = $1`, id))
}

func (r *attachmentRepository) MarkViewed(id int) (bool, error) {
	res, err := r.DB.Exec(`
		UPDATE chat_message_attachments
		SET viewed = TRUE
		WHERE id = $1 AND viewed = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("attachment mark viewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *attachmentRepository) DeleteWithMessageRewrite(id int, newContent string) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var messageID int
	err = tx.QueryRow(`DELETE FROM chat_message_attachments WHERE id = $1 RETURNING message_id`, id).Scan(&messageID)
	if err == sql.ErrNoRows {
		// already removed by a concurrent cleanup
		return nil
	}
	if err != nil {
		return fmt.Errorf("attachment delete: %w", err)
	}
	if _, err := tx.Exec(`UPDATE chat_messages SET content=$1 WHERE id=$2`, newContent, messageID); err != nil {
		return fmt.Errorf("message rewrite: %w", err)
	}
	return tx.Commit()
}

func (r *attachmentRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM chat_message_attachments WHERE id = $1`, id)
	return err
}

func (r *attachmentRepository) ListExpired(olderThan time.Time) ([]*models.ChatMessageAttachment, error) {
	rows, err := r.DB.Query(attachmentSelectQ+`
		WHERE a.viewed = TRUE AND m.timestamp < $1
		ORDER BY a.id
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttachments(rows)
}

func (r *attachmentRepository) ListByRoom(roomID int) ([]*models.ChatMessageAttachment, error) {
	rows, err := r.DB.Query(attachmentSelectQ+` WHERE m.room_id = $1 ORDER BY a.id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttachments(rows)
}

func scanAttachments(rows *sql.Rows) ([]*models.ChatMessageAttachment, error) {
	var res []*models.ChatMessageAttachment
	for rows.Next() {
		a := &models.ChatMessageAttachment{}
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.FilePath, &a.FileSizeBytes, &a.Viewed,
			&a.RoomID, &a.SenderID); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
