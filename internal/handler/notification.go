package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleetops/internal/domain"
	"fleetops/internal/service"
)

// NotificationHandler handles HTTP requests for the notification inbox.
type NotificationHandler struct {
	notificationService *service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// NotificationResponse is the HTTP response for a notification.
type NotificationResponse struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	Message        string           `json:"message"`
	Metadata       *domain.Metadata `json:"metadata,omitempty"`
	CreatedAt      string           `json:"created_at"`
	IsRead         bool             `json:"is_read"`
	TripID         *string          `json:"trip_id,omitempty"`
	VehicleID      *string          `json:"vehicle_id,omitempty"`
	DriverID       *string          `json:"driver_id,omitempty"`
	FleetManagerID *string          `json:"fleet_manager_id,omitempty"`
}

func toNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             n.ID,
		Type:           string(n.Type),
		Message:        n.Message,
		Metadata:       n.Metadata,
		CreatedAt:      formatTime(n.CreatedAt),
		IsRead:         n.IsRead,
		TripID:         n.TripID,
		VehicleID:      n.VehicleID,
		DriverID:       n.DriverID,
		FleetManagerID: n.FleetManagerID,
	}
}

// ListNotifications handles GET /v1/notifications
//
// Query parameters: unread=true, trip_id and limit.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	filter := service.InboxFilter(id)
	filter.UnreadOnly = c.Query("unread") == "true"
	if v := c.Query("trip_id"); v != "" {
		filter.TripID = &v
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	items, err := h.notificationService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, toNotificationResponse(n))
	}
	respondJSON(c, http.StatusOK, gin.H{"notifications": out})
}

// UnreadCount handles GET /v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.notificationService.UnreadCount(c.Request.Context(), service.InboxFilter(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"unread": n})
}

// MarkRead handles POST /v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.notificationService.MarkRead(c.Request.Context(), c.Param("id"), service.InboxFilter(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toNotificationResponse(n))
}

// MarkAllRead handles POST /v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.notificationService.MarkAllRead(c.Request.Context(), service.InboxFilter(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"updated": n})
}
