package models

import "time"

type User struct {
	ID       int    `json:"id"`
	PublicID string `json:"public_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`

	PasswordHash string `json:"-"`

	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	LastSeen   time.Time `json:"last_seen"`

	TelegramChatID int64 `json:"-"`

	// refresh-token storage in DB (opaque string, rotated on refresh)
	RefreshToken     *string    `json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
	RefreshRevoked   bool       `json:"-"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}
