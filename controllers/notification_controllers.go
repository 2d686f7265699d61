package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/bar-order-app/repository"
	"github.com/yeremiapane/bar-order-app/utils"
)

const defaultNotificationLimit = 100

type NotificationController struct {
	Logs repository.NotificationLogRepository
}

func NewNotificationController(logs repository.NotificationLogRepository) *NotificationController {
	return &NotificationController{Logs: logs}
}

// GetNotifications -> SMS audit log, newest first, optionally for one order
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultNotificationLimit)
	if !ok {
		return
	}

	logs, err := nc.Logs.List(c.Request.Context(), c.Query("order_id"), limit)
	if err != nil {
		respondServiceError(c, err, "failed to load notifications")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification log", logs)
}
