package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

// MessageHandler serves filtered message history.
type MessageHandler struct {
	messages repositories.MessageRepository
	log      *zap.Logger
}

func NewMessageHandler(messages repositories.MessageRepository, log *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, log: log}
}

// ListMessages returns the most recent messages of a room matching the
// query, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	roomID := c.Query("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room ID is required"})
		return
	}

	filter := models.MessageFilter{RoomID: roomID, Sender: c.Query("sender")}
	var err error
	if filter.Before, err = parseTimeParam(c.Query("before")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before timestamp"})
		return
	}
	if filter.After, err = parseTimeParam(c.Query("after")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after timestamp"})
		return
	}

	limit := int64(defaultMessageLimit)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxMessageLimit)
	}

	msgs, err := h.messages.FindMessages(c.Request.Context(), filter, models.FindOptions{Descending: true, Limit: limit})
	if err != nil {
		h.log.Error("failed to load messages", zap.String("room_id", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	c.JSON(http.StatusOK, msgs)
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
