package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"agrimandi/internal/model"

	"github.com/gin-gonic/gin"
)

// handleListAlerts 返回当前用户的未读提醒。
//
// GET /alerts
func (s *Server) handleListAlerts(c *gin.Context) {
	alerts := []model.UserAlert{}
	if err := s.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND is_read = ?", getUserID(c), false).
		Order("id DESC").
		Find(&alerts).Error; err != nil {
		s.logger.Error("list alerts failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list alerts failed"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// handleMarkAlertRead 将提醒标记为已读。
//
// POST /alerts/:id/read
func (s *Server) handleMarkAlertRead(c *gin.Context) {
	alertID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	if err := s.alerts.Dismiss(c.Request.Context(), uint(alertID), getUserID(c)); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": alertID})
}

// handleTriggerAlertCheck 手动触发一轮 MSP 对账。
//
// POST /alerts/check
func (s *Server) handleTriggerAlertCheck(c *gin.Context) {
	if !s.trigger.TriggerNow() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler busy"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}
