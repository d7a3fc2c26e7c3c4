package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetops/internal/domain"
	"fleetops/internal/service"
)

// EventHandler handles operational events and position reports on a trip.
type EventHandler struct {
	operations *service.OperationsService
	geofence   *service.GeofenceService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(operations *service.OperationsService, geofence *service.GeofenceService) *EventHandler {
	return &EventHandler{operations: operations, geofence: geofence}
}

// IssueRequest is the body shared by issue-style events.
type IssueRequest struct {
	Issue string `json:"issue"`
}

// InspectionIssueRequest reports a failed inspection item.
type InspectionIssueRequest struct {
	Phase string `json:"phase"`
	Issue string `json:"issue"`
}

// DelayRequest reports a delay.
type DelayRequest struct {
	Reason string `json:"reason"`
}

// FuelBillRequest reports a fuel purchase.
type FuelBillRequest struct {
	Amount *float64 `json:"amount"`
}

// EmergencyRequest reports an emergency, optionally with the position.
type EmergencyRequest struct {
	Issue    string          `json:"issue"`
	Location *CoordinateBody `json:"location,omitempty"`
}

// LocationRequest is a position report for the trip's vehicle.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Share     bool     `json:"share"`
}

// LocationResponse lists the zone edges crossed by a report.
type LocationResponse struct {
	Entered         []string `json:"entered"`
	Left            []string `json:"left"`
	NotificationIDs []string `json:"notification_ids"`
}

// VehicleIssue handles POST /v1/trips/:id/events/vehicle-issue
func (h *EventHandler) VehicleIssue(c *gin.Context) {
	var req IssueRequest
	if !bind(c, &req) {
		return
	}
	h.raise(c, func(id domain.Identity) (*domain.Notification, error) {
		return h.operations.ReportVehicleIssue(c.Request.Context(), id, c.Param("id"), req.Issue)
	})
}

// InspectionIssue handles POST /v1/trips/:id/events/inspection-issue
func (h *EventHandler) InspectionIssue(c *gin.Context) {
	var req InspectionIssueRequest
	if !bind(c, &req) {
		return
	}
	h.raise(c, func(id domain.Identity) (*domain.Notification, error) {
		return h.operations.ReportInspectionIssue(c.Request.Context(), id, c.Param("id"), service.InspectionPhase(req.Phase), req.Issue)
	})
}

// Delay handles POST /v1/trips/:id/events/delay
func (h *EventHandler) Delay(c *gin.Context) {
	var req DelayRequest
	if !bind(c, &req) {
		return
	}
	h.raise(c, func(id domain.Identity) (*domain.Notification, error) {
		return h.operations.ReportDelay(c.Request.Context(), id, c.Param("id"), req.Reason)
	})
}

// FuelBill handles POST /v1/trips/:id/events/fuel-bill
func (h *EventHandler) FuelBill(c *gin.Context) {
	var req FuelBillRequest
	if !bind(c, &req) {
		return
	}
	if req.Amount == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "amount is required"})
		return
	}
	h.raise(c, func(id domain.Identity) (*domain.Notification, error) {
		return h.operations.SubmitFuelBill(c.Request.Context(), id, c.Param("id"), *req.Amount)
	})
}

// IssueReport handles POST /v1/trips/:id/events/issue-report
func (h *EventHandler) IssueReport(c *gin.Context) {
	var req IssueRequest
	if !bind(c, &req) {
		return
	}
	h.raise(c, func(id domain.Identity) (*domain.Notification, error) {
		return h.operations.SubmitIssueReport(c.Request.Context(), id, c.Param("id"), req.Issue)
	})
}

// Emergency handles POST /v1/trips/:id/events/emergency
func (h *EventHandler) Emergency(c *gin.Context) {
	var req EmergencyRequest
	if !bind(c, &req) {
		return
	}
	h.raise(c, func(id domain.Identity) (*domain.Notification, error) {
		return h.operations.ReportEmergency(c.Request.Context(), id, c.Param("id"), req.Issue, req.Location.toDomain())
	})
}

// Maintenance handles POST /v1/trips/:id/events/maintenance
func (h *EventHandler) Maintenance(c *gin.Context) {
	var req IssueRequest
	if !bind(c, &req) {
		return
	}
	h.raise(c, func(id domain.Identity) (*domain.Notification, error) {
		return h.operations.RequestMaintenance(c.Request.Context(), id, c.Param("id"), req.Issue)
	})
}

// ReportLocation handles POST /v1/trips/:id/location
func (h *EventHandler) ReportLocation(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	var req LocationRequest
	if !bind(c, &req) {
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "latitude and longitude are required"})
		return
	}

	res, err := h.geofence.ReportLocation(c.Request.Context(), service.LocationReport{
		TripID:   c.Param("id"),
		Actor:    id,
		Location: domain.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Share:    req.Share,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, LocationResponse{
		Entered:         nonNil(res.Entered),
		Left:            nonNil(res.Left),
		NotificationIDs: nonNil(res.NotificationIDs),
	})
}

func (h *EventHandler) raise(c *gin.Context, run func(domain.Identity) (*domain.Notification, error)) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := run(id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toNotificationResponse(n))
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
