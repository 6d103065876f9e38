package services

import (
	"sync"
	"time"

	"chatrelay/internal/models"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
)

// fakePublisher records everything published to the hub, in order.
type published struct {
	Channel string
	Except  realtime.Client
	Ev      realtime.Event
}

type fakePublisher struct {
	mu        sync.Mutex
	events    []published
	connected map[int]bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{connected: make(map[int]bool)}
}

func (p *fakePublisher) Publish(channel string, ev realtime.Event) {
	p.PublishExcept(channel, nil, ev)
}

func (p *fakePublisher) PublishExcept(channel string, except realtime.Client, ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Channel: channel, Except: except, Ev: ev})
}

func (p *fakePublisher) SendToUser(userID int, ev realtime.Event) {
	p.Publish(realtime.UserChannel(userID), ev)
}

func (p *fakePublisher) IsUserConnected(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected[userID]
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]published, len(p.events))
	copy(out, p.events)
	return out
}

// stubClient satisfies realtime.Client for exclusion assertions.
type stubClient struct {
	userID int
}

func (c *stubClient) UserID() int              { return c.userID }
func (c *stubClient) Send(realtime.Event) bool { return true }
func (c *stubClient) Close()                   {}

// fakeUserRepo implements repositories.UserRepository over maps.
type fakeUserRepo struct {
	mu       sync.Mutex
	nextID   int
	users    map[int]*models.User
	lastSeen map[int]time.Time
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[int]*models.User), lastSeen: make(map[int]time.Time), nextID: 1}
	for _, u := range users {
		r.users[u.ID] = u
		if u.ID >= r.nextID {
			r.nextID = u.ID + 1
		}
	}
	return r
}

func (r *fakeUserRepo) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.nextID
	r.nextID++
	user.LastSeen = time.Now().UTC()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByUsername(username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) UpdateProfile(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Search(query string, excludeID int) ([]*models.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) MarkVerified(userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.users[userID]; u != nil {
		u.IsVerified = true
		u.IsActive = true
	}
	return nil
}

func (r *fakeUserRepo) UpdateLastSeen(userID int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen[userID] = at
	if u := r.users[userID]; u != nil {
		u.LastSeen = at
	}
	return nil
}

func (r *fakeUserRepo) UpdateRefresh(userID int, token string, expiresAt time.Time) error {
	return nil
}

func (r *fakeUserRepo) ClearRefresh(userID int) error { return nil }

func (r *fakeUserRepo) GetByRefreshToken(token string) (*models.User, error) { return nil, nil }

func (r *fakeUserRepo) UpdateTelegramLink(userID int, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.users[userID]; u != nil {
		u.TelegramChatID = chatID
	}
	return nil
}

func (r *fakeUserRepo) TelegramTargets(userIDs []int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, id := range userIDs {
		if u := r.users[id]; u != nil && u.TelegramChatID != 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeRoomRepo implements repositories.RoomRepository with overridable
// hooks for the interesting paths.
type fakeRoomRepo struct {
	rooms   map[int]*models.ChatRoom
	members map[int][]int

	findDirectFn func(a, b int) (*models.ChatRoom, error)
	createDirect func(a, b int) (*models.ChatRoom, error)
	unreadResets []int
	deletedRooms []int
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[int]*models.ChatRoom), members: make(map[int][]int)}
}

func (r *fakeRoomRepo) addRoom(room *models.ChatRoom, memberIDs ...int) {
	r.rooms[room.ID] = room
	r.members[room.ID] = memberIDs
}

func (r *fakeRoomRepo) GetByID(roomID int) (*models.ChatRoom, error) {
	return r.rooms[roomID], nil
}

func (r *fakeRoomRepo) IsMember(roomID, userID int) (bool, error) {
	for _, id := range r.members[roomID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRoomRepo) Participants(roomID int) ([]*models.ChatParticipant, error) {
	var out []*models.ChatParticipant
	for _, id := range r.members[roomID] {
		out = append(out, &models.ChatParticipant{UserID: id, RoomID: roomID})
	}
	return out, nil
}

func (r *fakeRoomRepo) RoomIDsForUser(userID int) ([]int, error) {
	var out []int
	for roomID, members := range r.members {
		for _, id := range members {
			if id == userID {
				out = append(out, roomID)
			}
		}
	}
	return out, nil
}

func (r *fakeRoomRepo) FindDirectRoom(a, b int) (*models.ChatRoom, error) {
	if r.findDirectFn != nil {
		return r.findDirectFn(a, b)
	}
	return nil, nil
}

func (r *fakeRoomRepo) CreateDirectRoom(a, b int) (*models.ChatRoom, error) {
	if r.createDirect != nil {
		return r.createDirect(a, b)
	}
	room := &models.ChatRoom{ID: len(r.rooms) + 1, RoomType: models.RoomTypeOneToOne}
	r.addRoom(room, a, b)
	return room, nil
}

func (r *fakeRoomRepo) CreateGroupRoom(name string, memberIDs []int) (*models.ChatRoom, error) {
	room := &models.ChatRoom{ID: len(r.rooms) + 1, Name: name, RoomType: models.RoomTypeGroup}
	r.addRoom(room, memberIDs...)
	return room, nil
}

func (r *fakeRoomRepo) ListUserRooms(userID int) ([]*models.RoomSummary, error) {
	return nil, nil
}

func (r *fakeRoomRepo) ResetUnread(roomID, userID int) error {
	r.unreadResets = append(r.unreadResets, roomID)
	return nil
}

func (r *fakeRoomRepo) DeleteRoom(roomID int) error {
	r.deletedRooms = append(r.deletedRooms, roomID)
	delete(r.rooms, roomID)
	delete(r.members, roomID)
	return nil
}

// fakeMessageRepo records commits so tests can assert ordering against
// the publisher's event log.
type fakeMessageRepo struct {
	mu        sync.Mutex
	nextID    int
	committed []*models.ChatMessage
	deltas    []models.UnreadDelta
	byRoom    map[int][]*models.ChatMessage
	onCommit  func()
	failNext  error
}

func newFakeMessageRepo(deltas []models.UnreadDelta) *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1, deltas: deltas, byRoom: make(map[int][]*models.ChatMessage)}
}

func (r *fakeMessageRepo) commit(roomID, senderID int, content string, isForward bool, att *repositories.NewAttachment) (*models.ChatMessage, error) {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return nil, err
	}
	msg := &models.ChatMessage{
		ID:        r.nextID,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now().UTC(),
		IsForward: isForward,
	}
	r.nextID++
	if att != nil {
		msg.Attachment = &models.ChatMessageAttachment{
			ID:            msg.ID,
			MessageID:     msg.ID,
			Filename:      att.Filename,
			FilePath:      att.FilePath,
			FileSizeBytes: att.Size,
			RoomID:        roomID,
			SenderID:      senderID,
		}
	}
	r.committed = append(r.committed, msg)
	r.byRoom[roomID] = append(r.byRoom[roomID], msg)
	if r.onCommit != nil {
		r.onCommit()
	}
	return msg, nil
}

func (r *fakeMessageRepo) CreateWithUnread(roomID, senderID int, content string, att *repositories.NewAttachment) (*models.ChatMessage, []models.UnreadDelta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.commit(roomID, senderID, content, false, att)
	if err != nil {
		return nil, nil, err
	}
	return msg, r.deltas, nil
}

func (r *fakeMessageRepo) ForwardBatch(destRoomID, senderID int, items []repositories.ForwardItem) ([]*models.ChatMessage, []models.UnreadDelta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var msgs []*models.ChatMessage
	for _, it := range items {
		msg, err := r.commit(destRoomID, senderID, it.Content, true, it.Attachment)
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, r.deltas, nil
}

func (r *fakeMessageRepo) ListByRoom(roomID int) ([]*models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byRoom[roomID], nil
}

func (r *fakeMessageRepo) ListByIDs(ids []int) ([]*models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ChatMessage
	for _, msg := range r.committed {
		for _, id := range ids {
			if msg.ID == id {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) UpdateContent(messageID int, content string) error {
	return nil
}

// fakeAttachmentRepo keeps rows in a map with a view-once MarkViewed.
type fakeAttachmentRepo struct {
	mu   sync.Mutex
	rows map[int]*models.ChatMessageAttachment

	rewrites map[int]string
}

func newFakeAttachmentRepo(rows ...*models.ChatMessageAttachment) *fakeAttachmentRepo {
	r := &fakeAttachmentRepo{rows: make(map[int]*models.ChatMessageAttachment), rewrites: make(map[int]string)}
	for _, a := range rows {
		r.rows[a.ID] = a
	}
	return r
}

func (r *fakeAttachmentRepo) GetByID(id int) (*models.ChatMessageAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.rows[id]
	if a == nil {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAttachmentRepo) MarkViewed(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.rows[id]
	if a == nil || a.Viewed {
		return false, nil
	}
	a.Viewed = true
	return true, nil
}

func (r *fakeAttachmentRepo) DeleteWithMessageRewrite(id int, newContent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.rows[id]; a != nil {
		r.rewrites[a.MessageID] = newContent
		delete(r.rows, id)
	}
	return nil
}

func (r *fakeAttachmentRepo) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *fakeAttachmentRepo) ListExpired(olderThan time.Time) ([]*models.ChatMessageAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ChatMessageAttachment
	for _, a := range r.rows {
		if a.Viewed {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAttachmentRepo) ListByRoom(roomID int) ([]*models.ChatMessageAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ChatMessageAttachment
	for _, a := range r.rows {
		if a.RoomID == roomID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeNotify records offline-nudge calls.
type fakeNotify struct {
	mu    sync.Mutex
	calls [][]int
}

func (n *fakeNotify) NotifyOffline(userIDs []int, senderName, preview string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userIDs)
}

// fakeMailer captures outgoing verification codes.
type fakeMailer struct {
	mu    sync.Mutex
	codes []string
	to    []string
	err   error
}

func (m *fakeMailer) SendVerificationEmail(to, name, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	m.codes = append(m.codes, code)
	return nil
}

func (m *fakeMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

// fakeVerificationStore holds verification rows in memory.
type fakeVerificationStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.UserVerification
}

func newFakeVerificationStore() *fakeVerificationStore {
	return &fakeVerificationStore{nextID: 1}
}

func (s *fakeVerificationStore) Create(userID int, codeHash string, sentAt, expiresAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &models.UserVerification{
		ID: s.nextID, UserID: userID, CodeHash: codeHash,
		SentAt: sentAt, ExpiresAt: expiresAt,
	}
	s.nextID++
	s.rows = append(s.rows, v)
	return v.ID, nil
}

func (s *fakeVerificationStore) GetLatestByUserID(userID int) (*models.UserVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.UserVerification
	for _, v := range s.rows {
		if v.UserID != userID {
			continue
		}
		if latest == nil || v.SentAt.After(latest.SentAt) {
			latest = v
		}
	}
	return latest, nil
}

func (s *fakeVerificationStore) CountRecentSends(userID int, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.rows {
		if v.UserID == userID && !v.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeVerificationStore) BurnAttempt(id int64, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.rows {
		if v.ID == id {
			v.Attempts++
			if v.Attempts >= maxAttempts {
				v.ExpiresAt = time.Now().UTC()
			}
			return v.Attempts, nil
		}
	}
	return 0, nil
}

func (s *fakeVerificationStore) MarkConfirmed(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.rows {
		if v.ID == id {
			v.Confirmed = true
		}
	}
	return nil
}
