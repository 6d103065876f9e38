package repositories

import (
	"database/sql"
	"fmt"

	"chatrelay/internal/models"
)

type RoomRepository interface {
	GetByID(roomID int) (*models.ChatRoom, error)
	IsMember(roomID, userID int) (bool, error)
	Participants(roomID int) ([]*models.ChatParticipant, error)
	RoomIDsForUser(userID int) ([]int, error)

	// direct rooms: unique per unordered user pair
	FindDirectRoom(userA, userB int) (*models.ChatRoom, error)
	CreateDirectRoom(userA, userB int) (*models.ChatRoom, error)

	CreateGroupRoom(name string, memberIDs []int) (*models.ChatRoom, error)

	ListUserRooms(userID int) ([]*models.RoomSummary, error)
	ResetUnread(roomID, userID int) error
	DeleteRoom(roomID int) error
}

type roomRepository struct {
	DB *sql.DB
}

func NewRoomRepository(db *sql.DB) RoomRepository {
	return &roomRepository{DB: db}
}

func (r *roomRepository) GetByID(roomID int) (*models.ChatRoom, error) {
	const q = `SELECT id, COALESCE(name,''), room_type, created_at FROM chat_rooms WHERE id = $1`
	room := &models.ChatRoom{}
	err := r.DB.QueryRow(q, roomID).Scan(&room.ID, &room.Name, &room.RoomType, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) IsMember(roomID, userID int) (bool, error) {
	const q = `SELECT 1 FROM chat_participants WHERE room_id = $1 AND user_id = $2 LIMIT 1`
	var dummy int
	err := r.DB.QueryRow(q, roomID, userID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *roomRepository) Participants(roomID int) ([]*models.ChatParticipant, error) {
	const q = `
		SELECT p.id, p.user_id, p.room_id, p.unread_count, u.name, u.email
		FROM chat_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = $1
		ORDER BY p.user_id
	`
	rows, err := r.DB.Query(q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*models.ChatParticipant
	for rows.Next() {
		p := &models.ChatParticipant{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.RoomID, &p.UnreadCount, &p.UserName, &p.UserEmail); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *roomRepository) RoomIDsForUser(userID int) ([]int, error) {
	const q = `SELECT room_id FROM chat_participants WHERE user_id = $1 ORDER BY room_id`
	rows, err := r.DB.Query(q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindDirectRoom looks up the one_to_one room that has exactly these two
// users as its participants. Symmetric in its arguments.
func (r *roomRepository) FindDirectRoom(userA, userB int) (*models.ChatRoom, error) {
	const q = `
		SELECT r.id, COALESCE(r.name,''), r.room_type, r.created_at
		FROM chat_rooms r
		JOIN chat_participants p ON p.room_id = r.id
		WHERE r.room_type = 'one_to_one'
		GROUP BY r.id
		HAVING COUNT(*) = 2
		   AND COUNT(*) FILTER (WHERE p.user_id = $1) = 1
		   AND COUNT(*) FILTER (WHERE p.user_id = $2) = 1
		LIMIT 1
	`
	room := &models.ChatRoom{}
	err := r.DB.QueryRow(q, userA, userB).Scan(&room.ID, &room.Name, &room.RoomType, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// CreateDirectRoom inserts the room and both participant rows in one
// transaction. The direct_key column ("min:max" of the pair) carries a
// unique constraint, so a concurrent creation for the same pair fails
// with a unique violation and the caller retries the find.
func (r *roomRepository) CreateDirectRoom(userA, userB int) (*models.ChatRoom, error) {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	directKey := fmt.Sprintf("%d:%d", lo, hi)

	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	room := &models.ChatRoom{RoomType: models.RoomTypeOneToOne}
	const insRoom = `
		INSERT INTO chat_rooms (room_type, direct_key)
		VALUES ('one_to_one', $1)
		RETURNING id, created_at
	`
	if err := tx.QueryRow(insRoom, directKey).Scan(&room.ID, &room.CreatedAt); err != nil {
		return nil, err
	}

	const insPart = `INSERT INTO chat_participants (user_id, room_id, unread_count) VALUES ($1, $2, 0)`
	for _, uid := range []int{userA, userB} {
		if _, err := tx.Exec(insPart, uid, room.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) CreateGroupRoom(name string, memberIDs []int) (*models.ChatRoom, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	room := &models.ChatRoom{Name: name, RoomType: models.RoomTypeGroup}
	const insRoom = `
		INSERT INTO chat_rooms (name, room_type)
		VALUES ($1, 'group')
		RETURNING id, created_at
	`
	if err := tx.QueryRow(insRoom, name).Scan(&room.ID, &room.CreatedAt); err != nil {
		return nil, err
	}

	const insPart = `
		INSERT INTO chat_participants (user_id, room_id, unread_count)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id, room_id) DO NOTHING
	`
	for _, uid := range memberIDs {
		if _, err := tx.Exec(insPart, uid, room.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return room, nil
}

// ListUserRooms returns every room the user participates in, most unread
// first, with the counterpart user joined in for direct rooms.
func (r *roomRepository) ListUserRooms(userID int) ([]*models.RoomSummary, error) {
	const q = `
		SELECT r.id, COALESCE(r.name,''), r.room_type, p.unread_count,
		       COALESCE(o.id, 0), COALESCE(o.public_id, ''), COALESCE(o.name, ''),
		       COALESCE(o.email, ''), COALESCE(o.last_seen, NOW())
		FROM chat_participants p
		JOIN chat_rooms r ON r.id = p.room_id
		LEFT JOIN chat_participants op
		       ON op.room_id = r.id AND op.user_id <> p.user_id AND r.room_type = 'one_to_one'
		LEFT JOIN users o ON o.id = op.user_id
		WHERE p.user_id = $1
		ORDER BY p.unread_count DESC, r.id
	`
	rows, err := r.DB.Query(q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*models.RoomSummary
	for rows.Next() {
		s := &models.RoomSummary{}
		partner := &models.User{}
		if err := rows.Scan(&s.RoomID, &s.Name, &s.RoomType, &s.UnreadCount,
			&partner.ID, &partner.PublicID, &partner.Name, &partner.Email, &partner.LastSeen); err != nil {
			return nil, err
		}
		if partner.ID != 0 {
			s.Partner = partner
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *roomRepository) ResetUnread(roomID, userID int) error {
	_, err := r.DB.Exec(`
		UPDATE chat_participants
		SET unread_count = 0
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	return err
}

// DeleteRoom removes the room; participants, messages and attachment rows
// go with it via ON DELETE CASCADE.
func (r *roomRepository) DeleteRoom(roomID int) error {
	_, err := r.DB.Exec(`DELETE FROM chat_rooms WHERE id = $1`, roomID)
	return err
}
