package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/services"
)

type UserHandler struct {
	Users services.UserService
}

func NewUserHandler(users services.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

// Me returns the authenticated user's own profile.
func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := h.Users.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// Search godoc
// @Summary Search users by name, email, username or public id
// @Tags users
// @Produce json
// @Param q query string true "Search term"
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users/search [get]
func (h *UserHandler) Search(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	results, err := h.Users.SearchUsers(c.Query("q"), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}

type linkTelegramRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

// LinkTelegram stores the caller's Telegram chat id for offline nudges.
func (h *UserHandler) LinkTelegram(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req linkTelegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.Users.LinkTelegram(userID, req.ChatID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "link failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "telegram linked"})
}
