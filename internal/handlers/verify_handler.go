package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/models"
	"chatrelay/internal/services"
)

type VerifyHandler struct {
	Users services.UserService
}

func NewVerifyHandler(users services.UserService) *VerifyHandler {
	return &VerifyHandler{Users: users}
}

// Register godoc
// @Summary Register a new account, sending a verification code by email
// @Tags auth
// @Accept json
// @Produce json
// @Param account body models.RegisterRequest true "New account"
// @Success 201 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /register [post]
func (h *VerifyHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, err := h.Users.Register(&req)
	switch err {
	case nil:
		c.JSON(http.StatusCreated, gin.H{"message": "verification code sent"})
	case services.ErrEmailTaken, services.ErrUsernameTaken:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
	}
}

type confirmRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// Confirm godoc
// @Summary Confirm a registration with the emailed code
// @Tags auth
// @Accept json
// @Produce json
// @Param confirmation body confirmRequest true "Email and code"
// @Success 200 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /register/confirm [post]
func (h *VerifyHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.Users.ConfirmRegistration(req.Email, req.Code)
	switch err {
	case nil:
		c.JSON(http.StatusOK, gin.H{"message": "account verified"})
	case services.ErrUserNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case services.ErrAlreadyVerified:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.ErrCodeExpired, services.ErrCodeInvalid:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case services.ErrTooManyAttempts:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
	}
}

type resendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Resend sends a fresh code, subject to the hourly throttle.
func (h *VerifyHandler) Resend(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.Users.ResendCode(req.Email)
	switch err {
	case nil:
		c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
	case services.ErrUserNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case services.ErrAlreadyVerified:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.ErrResendThrottled:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resend failed"})
	}
}
