package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/services"
)

type AttachmentHandler struct {
	Messages    services.MessageService
	Attachments services.AttachmentService
}

func NewAttachmentHandler(messages services.MessageService, attachments services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{Messages: messages, Attachments: attachments}
}

// Upload godoc
// @Summary Attach a file to a room as a new message
// @Tags attachments
// @Accept mpfd
// @Produce json
// @Param id path int true "Room id"
// @Param file formData file true "The file"
// @Success 201 {object} models.ChatMessage
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /chat/rooms/{id}/attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
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

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer src.Close()

	msg, err := h.Messages.UploadAttachment(roomID, userID, fh.Filename, src)
	if err != nil {
		roomError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Download godoc
// @Summary Download an attachment, consuming its single view
// @Tags attachments
// @Produce octet-stream
// @Param id path int true "Attachment id"
// @Success 200 {file} binary
// @Failure 410 {object} map[string]string
// @Security BearerAuth
// @Router /attachments/{id} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	attID, ok := paramInt(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}

	res, err := h.Attachments.Download(attID, userID)
	switch err {
	case nil:
	case services.ErrAttachmentNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case services.ErrAttachmentUnavailable:
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	case services.ErrNotRoomMember:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}
	defer res.File.Close()

	c.Header("Content-Disposition", `attachment; filename="`+res.Attachment.Filename+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, res.File); err != nil {
		log.Printf("[attachment][download] stream id=%d: %v", attID, err)
	}
	res.Finalize()
}
