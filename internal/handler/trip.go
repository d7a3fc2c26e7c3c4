package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"fleetops/internal/domain"
	"fleetops/internal/lifecycle"
	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/internal/timeparse"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// CoordinateBody is a latitude/longitude pair in requests and responses.
type CoordinateBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (b *CoordinateBody) toDomain() *domain.Coordinate {
	if b == nil {
		return nil
	}
	return &domain.Coordinate{Latitude: b.Latitude, Longitude: b.Longitude}
}

func coordinateBody(c *domain.Coordinate) *CoordinateBody {
	if c == nil {
		return nil
	}
	return &CoordinateBody{Latitude: c.Latitude, Longitude: c.Longitude}
}

// CreateTripRequest is the HTTP request body for creating a trip.
type CreateTripRequest struct {
	Destination       string          `json:"destination"`
	Pickup            *string         `json:"pickup,omitempty"`
	Notes             *string         `json:"notes,omitempty"`
	VehicleID         string          `json:"vehicle_id"`
	DriverID          *string         `json:"driver_id,omitempty"`
	SecondaryDriverID *string         `json:"secondary_driver_id,omitempty"`
	FleetManagerID    *string         `json:"fleet_manager_id,omitempty"`
	StartLocation     *CoordinateBody `json:"start_location,omitempty"`
	EndLocation       *CoordinateBody `json:"end_location,omitempty"`
	EstimatedDistance *float64        `json:"estimated_distance,omitempty"`
	EstimatedTime     *float64        `json:"estimated_time,omitempty"`
}

// UpdateTripRequest is the HTTP request body for a partial trip update.
// Absent fields are left unchanged.
type UpdateTripRequest struct {
	Destination          *string         `json:"destination,omitempty"`
	Pickup               *string         `json:"pickup,omitempty"`
	Notes                *string         `json:"notes,omitempty"`
	Status               *string         `json:"trip_status,omitempty"`
	HasCompletedPreTrip  *bool           `json:"has_completed_pre_trip,omitempty"`
	HasCompletedPostTrip *bool           `json:"has_completed_post_trip,omitempty"`
	VehicleID            *string         `json:"vehicle_id,omitempty"`
	DriverID             *string         `json:"driver_id,omitempty"`
	SecondaryDriverID    *string         `json:"secondary_driver_id,omitempty"`
	StartTime            *string         `json:"start_time,omitempty"`
	EndTime              *string         `json:"end_time,omitempty"`
	StartLocation        *CoordinateBody `json:"start_location,omitempty"`
	EndLocation          *CoordinateBody `json:"end_location,omitempty"`
	EstimatedDistance    *float64        `json:"estimated_distance,omitempty"`
	EstimatedTime        *float64        `json:"estimated_time,omitempty"`
}

// managerOnly reports whether the body touches fields only a fleet manager
// may change. Drivers move a trip through the command endpoints instead.
func (r UpdateTripRequest) managerOnly() bool {
	return r.Status != nil || r.VehicleID != nil || r.DriverID != nil || r.SecondaryDriverID != nil
}

func (r UpdateTripRequest) toPatch() (domain.TripPatch, error) {
	patch := domain.TripPatch{
		Destination:          r.Destination,
		Pickup:               r.Pickup,
		Notes:                r.Notes,
		HasCompletedPreTrip:  r.HasCompletedPreTrip,
		HasCompletedPostTrip: r.HasCompletedPostTrip,
		VehicleID:            r.VehicleID,
		DriverID:             r.DriverID,
		SecondaryDriverID:    r.SecondaryDriverID,
		StartLocation:        r.StartLocation.toDomain(),
		EndLocation:          r.EndLocation.toDomain(),
		EstimatedDistance:    r.EstimatedDistance,
		EstimatedTime:        r.EstimatedTime,
	}
	if r.Status != nil {
		st := domain.TripStatus(*r.Status)
		if !st.Valid() {
			return patch, fmt.Errorf("%w: %q", service.ErrInvalidStatus, *r.Status)
		}
		patch.Status = &st
	}

	var err error
	if patch.StartTime, err = timeparse.ParseOptional(r.StartTime, timeparse.Parse); err != nil {
		return patch, fmt.Errorf("%w: start_time: %v", service.ErrInvalidEvent, err)
	}
	if patch.EndTime, err = timeparse.ParseOptional(r.EndTime, timeparse.Parse); err != nil {
		return patch, fmt.Errorf("%w: end_time: %v", service.ErrInvalidEvent, err)
	}
	return patch, nil
}

// AssignTripRequest is the HTTP request body for assigning a trip.
type AssignTripRequest struct {
	DriverID          string  `json:"driver_id"`
	SecondaryDriverID *string `json:"secondary_driver_id,omitempty"`
	VehicleID         *string `json:"vehicle_id,omitempty"`
}

// TripResponse is the HTTP response for trip operations.
type TripResponse struct {
	ID                      string          `json:"id"`
	Destination             string          `json:"destination"`
	Pickup                  *string         `json:"pickup,omitempty"`
	Notes                   *string         `json:"notes,omitempty"`
	Status                  string          `json:"trip_status"`
	HasCompletedPreTrip     bool            `json:"has_completed_pre_trip"`
	HasCompletedPostTrip    bool            `json:"has_completed_post_trip"`
	ProofOfDeliveryEligible bool            `json:"proof_of_delivery_eligible"`
	VehicleID               string          `json:"vehicle_id"`
	DriverID                *string         `json:"driver_id,omitempty"`
	SecondaryDriverID       *string         `json:"secondary_driver_id,omitempty"`
	FleetManagerID          *string         `json:"fleet_manager_id,omitempty"`
	StartTime               string          `json:"start_time,omitempty"`
	EndTime                 string          `json:"end_time,omitempty"`
	StartLocation           *CoordinateBody `json:"start_location,omitempty"`
	EndLocation             *CoordinateBody `json:"end_location,omitempty"`
	Route                   json.RawMessage `json:"route,omitempty"`
	EstimatedDistance       *float64        `json:"estimated_distance,omitempty"`
	EstimatedTime           *float64        `json:"estimated_time,omitempty"`
	CreatedAt               string          `json:"created_at"`
	UpdatedAt               string          `json:"updated_at"`
}

// OverviewResponse groups trips for dashboard views.
type OverviewResponse struct {
	Current   *TripResponse  `json:"current"`
	Upcoming  []TripResponse `json:"upcoming"`
	Completed []TripResponse `json:"completed"`
}

func toTripResponse(t *domain.Trip) TripResponse {
	return TripResponse{
		ID:                      t.ID,
		Destination:             t.Destination,
		Pickup:                  t.Pickup,
		Notes:                   t.Notes,
		Status:                  string(t.Status),
		HasCompletedPreTrip:     t.HasCompletedPreTrip,
		HasCompletedPostTrip:    t.HasCompletedPostTrip,
		ProofOfDeliveryEligible: lifecycle.ProofOfDeliveryEligible(*t),
		VehicleID:               t.VehicleID,
		DriverID:                t.DriverID,
		SecondaryDriverID:       t.SecondaryDriverID,
		FleetManagerID:          t.FleetManagerID,
		StartTime:               formatOptionalTime(t.StartTime),
		EndTime:                 formatOptionalTime(t.EndTime),
		StartLocation:           coordinateBody(t.StartLocation),
		EndLocation:             coordinateBody(t.EndLocation),
		Route:                   routeGeometry(t),
		EstimatedDistance:       t.EstimatedDistance,
		EstimatedTime:           t.EstimatedTime,
		CreatedAt:               formatTime(t.CreatedAt),
		UpdatedAt:               formatTime(t.UpdatedAt),
	}
}

func toTripResponses(trips []*domain.Trip) []TripResponse {
	out := make([]TripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, toTripResponse(t))
	}
	return out
}

// routeGeometry renders the trip's known endpoints as GeoJSON: a LineString
// from pickup to dropoff, or a Point when only one end is known.
func routeGeometry(t *domain.Trip) json.RawMessage {
	var g geom.T
	switch start, end := t.StartLocation, t.EndLocation; {
	case start != nil && end != nil:
		g = geom.NewLineStringFlat(geom.XY, []float64{start.Longitude, start.Latitude, end.Longitude, end.Latitude})
	case start != nil:
		g = geom.NewPointFlat(geom.XY, []float64{start.Longitude, start.Latitude})
	case end != nil:
		g = geom.NewPointFlat(geom.XY, []float64{end.Longitude, end.Latitude})
	default:
		return nil
	}

	b, err := geojson.Marshal(g)
	if err != nil {
		return nil
	}
	return b
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	owner := req.FleetManagerID
	if owner == nil {
		owner = &id.UserID
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), service.CreateTripRequest{
		Destination:       req.Destination,
		Pickup:            req.Pickup,
		Notes:             req.Notes,
		VehicleID:         req.VehicleID,
		DriverID:          req.DriverID,
		SecondaryDriverID: req.SecondaryDriverID,
		FleetManagerID:    owner,
		StartLocation:     req.StartLocation.toDomain(),
		EndLocation:       req.EndLocation.toDomain(),
		EstimatedDistance: req.EstimatedDistance,
		EstimatedTime:     req.EstimatedTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toTripResponse(trip))
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	trip, err := h.tripService.GetTrip(c.Request.Context(), c.Param("id"), service.DriverScope(id))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ListTrips handles GET /v1/trips
//
// Query parameters: driver_id (fleet managers only), vehicle_id and status,
// a comma separated list.
func (h *TripHandler) ListTrips(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	req := service.ListTripsRequest{ForDriver: h.driverFilter(c, id)}
	if v := c.Query("vehicle_id"); v != "" {
		req.VehicleID = &v
	}
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				req.Statuses = append(req.Statuses, domain.TripStatus(s))
			}
		}
	}

	trips, err := h.tripService.ListTrips(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"trips": toTripResponses(trips)})
}

// Overview handles GET /v1/trips/overview
func (h *TripHandler) Overview(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	buckets, err := h.tripService.Overview(c.Request.Context(), h.driverFilter(c, id))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := OverviewResponse{
		Upcoming:  toTripResponses(buckets.Upcoming),
		Completed: toTripResponses(buckets.Completed),
	}
	if buckets.Current != nil {
		current := toTripResponse(buckets.Current)
		resp.Current = &current
	}
	respondJSON(c, http.StatusOK, resp)
}

// UpdateTrip handles PATCH /v1/trips/:id
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	tripID, ok := h.authorize(c)
	if !ok {
		return
	}

	var req UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if id, _ := middleware.CurrentUser(c); id.Role != domain.RoleFleetManager && req.managerOnly() {
		respondError(c, fmt.Errorf("%w: trip_status and assignment fields are fleet manager only", service.ErrForbidden))
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		respondError(c, err)
		return
	}

	trip, err := h.tripService.UpdateTrip(c.Request.Context(), tripID, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// DeleteTrip handles DELETE /v1/trips/:id
func (h *TripHandler) DeleteTrip(c *gin.Context) {
	if err := h.tripService.DeleteTrip(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AssignTrip handles POST /v1/trips/:id/assign
func (h *TripHandler) AssignTrip(c *gin.Context) {
	var req AssignTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	trip, err := h.tripService.AssignTrip(c.Request.Context(), c.Param("id"), service.AssignTripRequest{
		DriverID:          req.DriverID,
		SecondaryDriverID: req.SecondaryDriverID,
		VehicleID:         req.VehicleID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// CompletePreTripInspection handles POST /v1/trips/:id/inspections/pre
func (h *TripHandler) CompletePreTripInspection(c *gin.Context) {
	h.command(c, h.tripService.CompletePreTripInspection)
}

// CompletePostTripInspection handles POST /v1/trips/:id/inspections/post
func (h *TripHandler) CompletePostTripInspection(c *gin.Context) {
	h.command(c, h.tripService.CompletePostTripInspection)
}

// StartTrip handles POST /v1/trips/:id/start
func (h *TripHandler) StartTrip(c *gin.Context) {
	h.command(c, h.tripService.StartTrip)
}

// CompleteTrip handles POST /v1/trips/:id/complete
func (h *TripHandler) CompleteTrip(c *gin.Context) {
	h.command(c, h.tripService.CompleteTrip)
}

// command runs a body-less trip command for a caller allowed to see the trip.
func (h *TripHandler) command(c *gin.Context, run func(ctx context.Context, id string) (*domain.Trip, error)) {
	tripID, ok := h.authorize(c)
	if !ok {
		return
	}

	trip, err := run(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// authorize checks that the caller may act on the trip in the path. Drivers
// only reach trips they are assigned to.
func (h *TripHandler) authorize(c *gin.Context) (string, bool) {
	id, ok := currentUser(c)
	if !ok {
		return "", false
	}

	tripID := c.Param("id")
	if _, err := h.tripService.GetTrip(c.Request.Context(), tripID, service.DriverScope(id)); err != nil {
		respondError(c, err)
		return "", false
	}
	return tripID, true
}

// driverFilter returns the driver visibility filter for a listing. Drivers
// always see only their own trips; fleet managers may narrow by driver_id.
func (h *TripHandler) driverFilter(c *gin.Context, id domain.Identity) *string {
	if scope := service.DriverScope(id); scope != nil {
		return scope
	}
	if v := c.Query("driver_id"); v != "" {
		return &v
	}
	return nil
}
