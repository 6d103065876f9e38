package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
	"chatrelay/internal/utils"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrCodeInvalid        = errors.New("verification code is invalid")
	ErrCodeExpired        = errors.New("verification code has expired")
	ErrTooManyAttempts    = errors.New("too many failed attempts, request a new code")
	ErrResendThrottled    = errors.New("too many codes requested, try again later")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotVerified        = errors.New("account is not verified")
)

const (
	otpTTL            = 10 * time.Minute
	otpMaxAttempts    = 5
	otpResendWindow   = time.Hour
	otpResendMaxSends = 5
)

// VerificationStore is the slice of the verification repository the user
// service depends on.
type VerificationStore interface {
	Create(userID int, codeHash string, sentAt, expiresAt time.Time) (int64, error)
	GetLatestByUserID(userID int) (*models.UserVerification, error)
	CountRecentSends(userID int, since time.Time) (int, error)
	BurnAttempt(id int64, maxAttempts int) (int, error)
	MarkConfirmed(id int64) error
}

type UserService interface {
	Register(req *models.RegisterRequest) (*models.User, error)
	ConfirmRegistration(email, code string) error
	ResendCode(email string) error
	Authenticate(email, password string) (*models.User, error)
	GetByID(id int) (*models.User, error)
	SearchUsers(query string, callerID int) ([]*models.User, error)
	LinkTelegram(userID int, chatID int64) error
}

type userService struct {
	users  repositories.UserRepository
	codes  VerificationStore
	mailer EmailSender
}

func NewUserService(users repositories.UserRepository, codes VerificationStore, mailer EmailSender) UserService {
	return &userService{users: users, codes: codes, mailer: mailer}
}

// Register creates an unverified account and emails it a one-time code.
// Re-registering an email that never completed verification replaces the
// stale account's credentials instead of failing.
func (s *userService) Register(req *models.RegisterRequest) (*models.User, error) {
	existing, err := s.users.GetByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsVerified {
		return nil, ErrEmailTaken
	}

	if byName, err := s.users.GetByUsername(req.Username); err != nil {
		return nil, err
	} else if byName != nil && (existing == nil || byName.ID != existing.ID) {
		return nil, ErrUsernameTaken
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	if existing != nil {
		existing.Username = req.Username
		existing.Name = req.Name
		existing.PasswordHash = hash
		if err := s.users.UpdateProfile(existing); err != nil {
			return nil, err
		}
		user = existing
	} else {
		user = &models.User{
			PublicID:     uuid.New().String(),
			Username:     req.Username,
			Email:        req.Email,
			Name:         req.Name,
			PasswordHash: hash,
			IsActive:     false,
			IsVerified:   false,
		}
		if err := s.users.Create(user); err != nil {
			if repositories.IsUniqueViolation(err) {
				return nil, ErrEmailTaken
			}
			return nil, err
		}
	}

	if err := s.sendCode(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) sendCode(user *models.User) error {
	code, err := utils.NewOTPCode()
	if err != nil {
		return err
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := s.codes.Create(user.ID, string(codeHash), now, now.Add(otpTTL)); err != nil {
		return err
	}
	if err := s.mailer.SendVerificationEmail(user.Email, user.Name, code); err != nil {
		return fmt.Errorf("verification email: %w", err)
	}
	return nil
}

// ConfirmRegistration checks the latest code for the account and, on
// success, activates it. A wrong code burns one attempt; hitting the cap
// invalidates the code entirely.
func (s *userService) ConfirmRegistration(email, code string) error {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	v, err := s.codes.GetLatestByUserID(user.ID)
	if err != nil {
		return err
	}
	if v == nil || v.Confirmed {
		return ErrCodeInvalid
	}
	if time.Now().UTC().After(v.ExpiresAt) {
		return ErrCodeExpired
	}
	if v.Attempts >= otpMaxAttempts {
		return ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(code)) != nil {
		attempts, err := s.codes.BurnAttempt(v.ID, otpMaxAttempts)
		if err != nil {
			return err
		}
		if attempts >= otpMaxAttempts {
			return ErrTooManyAttempts
		}
		return ErrCodeInvalid
	}

	if err := s.codes.MarkConfirmed(v.ID); err != nil {
		return err
	}
	return s.users.MarkVerified(user.ID)
}

func (s *userService) ResendCode(email string) error {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	sent, err := s.codes.CountRecentSends(user.ID, time.Now().UTC().Add(-otpResendWindow))
	if err != nil {
		return err
	}
	if sent >= otpResendMaxSends {
		return ErrResendThrottled
	}
	return s.sendCode(user)
}

func (s *userService) Authenticate(email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, ErrNotVerified
	}
	if err := s.users.UpdateLastSeen(user.ID, time.Now().UTC()); err != nil {
		log.Printf("[user][login] last_seen user=%d: %v", user.ID, err)
	}
	return user, nil
}

func (s *userService) GetByID(id int) (*models.User, error) {
	user, err := s.users.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *userService) SearchUsers(query string, callerID int) ([]*models.User, error) {
	if query == "" {
		return nil, nil
	}
	return s.users.Search(query, callerID)
}

func (s *userService) LinkTelegram(userID int, chatID int64) error {
	return s.users.UpdateTelegramLink(userID, chatID)
}
