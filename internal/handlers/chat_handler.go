package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/services"
)

type ChatHandler struct {
	Rooms       services.RoomService
	Transcripts services.TranscriptService
	ExportDir   string
}

func NewChatHandler(rooms services.RoomService, transcripts services.TranscriptService, exportDir string) *ChatHandler {
	return &ChatHandler{Rooms: rooms, Transcripts: transcripts, ExportDir: exportDir}
}

func roomError(c *gin.Context, err error) {
	switch err {
	case services.ErrRoomNotFound, services.ErrUserNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case services.ErrNotRoomMember:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case services.ErrSelfChat, services.ErrEmptyGroup:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}

// ListRooms godoc
// @Summary List the caller's rooms, most unread first
// @Tags chat
// @Produce json
// @Param q query string false "Filter by room or partner name"
// @Success 200 {array} models.RoomSummary
// @Security BearerAuth
// @Router /chat/rooms [get]
func (h *ChatHandler) ListRooms(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	rooms, err := h.Rooms.ListRooms(userID, c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

type startDirectRequest struct {
	UserID int `json:"user_id" binding:"required"`
}

// StartDirect godoc
// @Summary Open (or create) the direct room with another user
// @Tags chat
// @Accept json
// @Produce json
// @Param target body startDirectRequest true "Counterpart"
// @Success 200 {object} models.ChatRoom
// @Security BearerAuth
// @Router /chat/direct [post]
func (h *ChatHandler) StartDirect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req startDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.Rooms.StartDirectChat(userID, req.UserID)
	if err != nil {
		roomError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type createGroupRequest struct {
	Name      string `json:"name" binding:"required"`
	MemberIDs []int  `json:"member_ids" binding:"required"`
}

// CreateGroup creates a group room with the caller as a member.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.Rooms.CreateGroup(req.Name, userID, req.MemberIDs)
	if err != nil {
		roomError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// ViewRoom godoc
// @Summary Open a room: history, partner presence, unread reset
// @Tags chat
// @Produce json
// @Param id path int true "Room id"
// @Success 200 {object} services.RoomView
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /chat/rooms/{id} [get]
func (h *ChatHandler) ViewRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	roomID, ok := paramInt(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	view, err := h.Rooms.ViewRoom(roomID, userID)
	if err != nil {
		roomError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteRoom removes the conversation for every participant.
func (h *ChatHandler) DeleteRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	roomID, ok := paramInt(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	if err := h.Rooms.DeleteConversation(roomID, userID); err != nil {
		roomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
}

// Transcript exports the room history as a downloadable PDF.
func (h *ChatHandler) Transcript(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	roomID, ok := paramInt(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	path, err := h.Transcripts.Export(roomID, userID, h.ExportDir)
	if err != nil {
		roomError(c, err)
		return
	}
	c.FileAttachment(path, "transcript.pdf")
}
