package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomchat/internal/chat"
	"roomchat/internal/models"
)

const maxFileSize = 10 * 1024 * 1024

var allowedFileTypes = map[string]struct{}{
	"image/jpeg":         {},
	"image/png":          {},
	"image/gif":          {},
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain": {},
}

// FileSender posts file descriptors into rooms.
type FileSender interface {
	SendFileMessage(ctx context.Context, roomID, username string, file models.FileInfo) (models.Message, []chat.Delivery, error)
}

// Deliverer pushes events to connected clients.
type Deliverer interface {
	Deliver(deliveries []chat.Delivery)
}

// FileHandler shares already stored files into rooms.
type FileHandler struct {
	sender FileSender
	hub    Deliverer
	log    *zap.Logger
}

func NewFileHandler(sender FileSender, hub Deliverer, log *zap.Logger) *FileHandler {
	return &FileHandler{sender: sender, hub: hub, log: log}
}

// ShareFile creates a file message for the room and notifies its members.
func (h *FileHandler) ShareFile(c *gin.Context) {
	var req struct {
		RoomID   string `json:"roomId" binding:"required"`
		Username string `json:"username" binding:"required"`
		FileURL  string `json:"fileUrl" binding:"required"`
		FileName string `json:"fileName" binding:"required"`
		FileType string `json:"fileType" binding:"required"`
		FileSize int64  `json:"fileSize"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := allowedFileTypes[req.FileType]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Only images, PDFs, DOC, DOCX and TXT are allowed."})
		return
	}
	if req.FileSize < 0 || req.FileSize > maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds the 10MB limit"})
		return
	}

	file := models.FileInfo{URL: req.FileURL, Name: req.FileName, MimeType: req.FileType, Size: req.FileSize}
	msg, deliveries, err := h.sender.SendFileMessage(c.Request.Context(), req.RoomID, req.Username, file)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": chat.UserMessage(err)})
			return
		}
		h.log.Error("failed to share file", zap.String("room_id", req.RoomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error uploading file"})
		return
	}
	h.hub.Deliver(deliveries)

	c.JSON(http.StatusOK, gin.H{
		"message":   "File shared successfully",
		"fileUrl":   msg.FileURL,
		"messageId": msg.ID,
	})
}
