package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

type UserVerificationRepository struct {
	DB *sql.DB
}

func NewUserVerificationRepository(db *sql.DB) *UserVerificationRepository {
	return &UserVerificationRepository{DB: db}
}

// Create inserts a new verification record (every send is a new row).
func (r *UserVerificationRepository) Create(userID int, codeHash string, sentAt, expiresAt time.Time) (int64, error) {
	const q = `
		INSERT INTO user_verifications (user_id, code_hash, sent_at, expires_at, confirmed, attempts)
		VALUES ($1, $2, $3, $4, FALSE, 0)
		RETURNING id
	`
	var id int64
	if err := r.DB.QueryRow(q, userID, codeHash, sentAt, expiresAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("user_verification create: %w", err)
	}
	return id, nil
}

// GetLatestByUserID returns the most recent send (by sent_at DESC).
func (r *UserVerificationRepository) GetLatestByUserID(userID int) (*models.UserVerification, error) {
	const q = `
		SELECT id, user_id, code_hash, sent_at, expires_at, confirmed, attempts
		FROM user_verifications
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT 1
	`
	row := r.DB.QueryRow(q, userID)
	var v models.UserVerification
	if err := row.Scan(&v.ID, &v.UserID, &v.CodeHash, &v.SentAt, &v.ExpiresAt, &v.Confirmed, &v.Attempts); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("user_verification latest: %w", err)
	}
	return &v, nil
}

// CountRecentSends counts sends within the throttle window.
func (r *UserVerificationRepository) CountRecentSends(userID int, since time.Time) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM user_verifications
		WHERE user_id = $1 AND sent_at >= $2
	`
	var c int
	if err := r.DB.QueryRow(q, userID, since).Scan(&c); err != nil {
		return 0, fmt.Errorf("user_verification count recent: %w", err)
	}
	return c, nil
}

// BurnAttempt charges one failed guess and returns the new counter. When
// the counter reaches maxAttempts the same statement kills the code, so
// the cap and the expiry can never disagree.
func (r *UserVerificationRepository) BurnAttempt(id int64, maxAttempts int) (int, error) {
	const q = `
		UPDATE user_verifications
		SET attempts   = attempts + 1,
		    expires_at = CASE WHEN attempts + 1 >= $2 THEN NOW() ELSE expires_at END
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.DB.QueryRow(q, id, maxAttempts).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("user_verification burn attempt: %w", err)
	}
	return attempts, nil
}

func (r *UserVerificationRepository) MarkConfirmed(id int64) error {
	_, err := r.DB.Exec(`UPDATE user_verifications SET confirmed=TRUE WHERE id=$1`, id)
	return err
}
