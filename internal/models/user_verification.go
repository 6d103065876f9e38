package models

import "time"

// UserVerification is one row per sent OTP code. Only the bcrypt hash of
// the code is stored (CodeHash), together with its TTL and attempt counter.
type UserVerification struct {
	ID        int64     `json:"id"`
	UserID    int       `json:"user_id"`
	CodeHash  string    `json:"-"`
	SentAt    time.Time `json:"sent_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Confirmed bool      `json:"confirmed"`
	Attempts  int       `json:"attempts"`
}
