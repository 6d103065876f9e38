package repositories

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"chatrelay/internal/models"
)

type UserRepository interface {
	Create(user *models.User) error
	GetByID(id int) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	UpdateProfile(user *models.User) error
	Search(query string, excludeID int) ([]*models.User, error)

	// verification
	MarkVerified(userID int) error

	// presence
	UpdateLastSeen(userID int, at time.Time) error

	// refresh helpers
	UpdateRefresh(userID int, token string, expiresAt time.Time) error
	ClearRefresh(userID int) error
	GetByRefreshToken(token string) (*models.User, error)

	// telegram helpers
	UpdateTelegramLink(userID int, chatID int64) error
	TelegramTargets(userIDs []int) ([]*models.User, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

const userColumns = `
	id, public_id, username, email, name, password_hash,
	is_active, is_verified, last_seen,
	COALESCE(telegram_chat_id, 0),
	refresh_token, refresh_expires_at, refresh_revoked
`

func (r *userRepository) scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var (
		rt  sql.NullString
		rte sql.NullTime
		rr  sql.NullBool
	)
	err := row.Scan(
		&u.ID, &u.PublicID, &u.Username, &u.Email, &u.Name, &u.PasswordHash,
		&u.IsActive, &u.IsVerified, &u.LastSeen,
		&u.TelegramChatID,
		&rt, &rte, &rr,
	)
	if err != nil {
		return nil, err
	}
	if rt.Valid {
		s := rt.String
		u.RefreshToken = &s
	}
	if rte.Valid {
		t := rte.Time
		u.RefreshExpiresAt = &t
	}
	if rr.Valid {
		u.RefreshRevoked = rr.Bool
	}
	return u, nil
}

func (r *userRepository) Create(user *models.User) error {
	const q = `
		INSERT INTO users (
			public_id, username, email, name, password_hash,
			is_active, is_verified, last_seen
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		RETURNING id, last_seen
	`
	return r.DB.QueryRow(q,
		user.PublicID,
		user.Username,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsActive,
		user.IsVerified,
	).Scan(&user.ID, &user.LastSeen)
}

func (r *userRepository) GetByID(id int) (*models.User, error) {
	u, err := r.scanUser(r.DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	u, err := r.scanUser(r.DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) GetByUsername(username string) (*models.User, error) {
	u, err := r.scanUser(r.DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *userRepository) UpdateProfile(user *models.User) error {
	const q = `
		UPDATE users
		SET username=$1, name=$2, password_hash=$3, is_active=$4, is_verified=$5
		WHERE id=$6
	`
	_, err := r.DB.Exec(q,
		user.Username,
		user.Name,
		user.PasswordHash,
		user.IsActive,
		user.IsVerified,
		user.ID,
	)
	return err
}

// Search matches active users by name, email, username or public id.
// The caller is always excluded from the result.
func (r *userRepository) Search(query string, excludeID int) ([]*models.User, error) {
	const q = `
		SELECT id, public_id, username, email, name, is_active, is_verified, last_seen
		FROM users
		WHERE id <> $1
		  AND is_active = TRUE
		  AND (name ILIKE $2 OR email ILIKE $2 OR username ILIKE $2 OR public_id ILIKE $2)
		ORDER BY name
	`
	rows, err := r.DB.Query(q, excludeID, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.PublicID, &u.Username, &u.Email, &u.Name,
			&u.IsActive, &u.IsVerified, &u.LastSeen); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r *userRepository) MarkVerified(userID int) error {
	_, err := r.DB.Exec(`
		UPDATE users
		SET is_verified=TRUE, is_active=TRUE
		WHERE id=$1
	`, userID)
	return err
}

func (r *userRepository) UpdateLastSeen(userID int, at time.Time) error {
	_, err := r.DB.Exec(`UPDATE users SET last_seen=$1 WHERE id=$2`, at.UTC(), userID)
	return err
}

// ===== refresh helpers =====

func (r *userRepository) UpdateRefresh(userID int, token string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET refresh_token=$1, refresh_expires_at=$2, refresh_revoked=FALSE
		WHERE id=$3
	`
	_, err := r.DB.Exec(q, token, expiresAt, userID)
	return err
}

func (r *userRepository) ClearRefresh(userID int) error {
	_, err := r.DB.Exec(`
		UPDATE users
		SET refresh_token=NULL, refresh_expires_at=NULL, refresh_revoked=TRUE
		WHERE id=$1
	`, userID)
	return err
}

func (r *userRepository) GetByRefreshToken(token string) (*models.User, error) {
	u, err := r.scanUser(r.DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE refresh_token = $1`, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ===== telegram helpers =====

func (r *userRepository) UpdateTelegramLink(userID int, chatID int64) error {
	_, err := r.DB.Exec(`UPDATE users SET telegram_chat_id=$1 WHERE id=$2`, chatID, userID)
	return err
}

// TelegramTargets returns, among the given users, those with a linked
// Telegram chat. Used by the offline-notification path.
func (r *userRepository) TelegramTargets(userIDs []int) ([]*models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, public_id, username, email, name, is_active, is_verified, last_seen,
		       COALESCE(telegram_chat_id, 0)
		FROM users
		WHERE id = ANY($1) AND telegram_chat_id IS NOT NULL AND telegram_chat_id <> 0
	`
	ids := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, int64(id))
	}
	rows, err := r.DB.Query(q, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.PublicID, &u.Username, &u.Email, &u.Name,
			&u.IsActive, &u.IsVerified, &u.LastSeen, &u.TelegramChatID); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
