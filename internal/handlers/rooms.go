package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomchat/internal/repositories"
)

// RoomHandler serves room listing and maintenance endpoints.
type RoomHandler struct {
	rooms     repositories.RoomRepository
	retention time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewRoomHandler builds a RoomHandler. Rooms idle longer than retention are
// removed by CleanupRooms.
func NewRoomHandler(rooms repositories.RoomRepository, retention time.Duration, log *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, retention: retention, log: log, now: time.Now}
}

// ListRooms returns every room, most recently active first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list rooms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// CleanupRooms deletes rooms whose last activity is older than the retention.
func (h *RoomHandler) CleanupRooms(c *gin.Context) {
	cutoff := h.now().Add(-h.retention)
	deleted, err := h.rooms.DeleteInactiveRooms(c.Request.Context(), cutoff)
	if err != nil {
		h.log.Error("failed to clean up rooms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clean up rooms"})
		return
	}
	h.log.Info("inactive rooms deleted", zap.Int64("count", deleted), zap.Time("cutoff", cutoff))
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Deleted %d inactive rooms", deleted)})
}
