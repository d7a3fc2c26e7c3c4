package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetops/internal/domain"
	"fleetops/internal/lifecycle"
	"fleetops/internal/redis"
	"fleetops/internal/repository"
)

// TripService handles trip operations.
type TripService struct {
	tripRepo   repository.TripRepository
	dispatcher *Dispatcher
	zones      redis.ZoneStoreInterface
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewTripService creates a new TripService. A nil clock uses time.Now.
func NewTripService(
	tripRepo repository.TripRepository,
	dispatcher *Dispatcher,
	log logrus.FieldLogger,
	now func() time.Time,
) *TripService {
	if now == nil {
		now = time.Now
	}
	return &TripService{
		tripRepo:   tripRepo,
		dispatcher: dispatcher,
		log:        log,
		now:        now,
	}
}

// WithZoneCleanup makes the service drop a trip's geofence state once the
// trip is delivered or deleted.
func (s *TripService) WithZoneCleanup(zones redis.ZoneStoreInterface) *TripService {
	s.zones = zones
	return s
}

// CreateTripRequest contains the parameters for creating a trip.
type CreateTripRequest struct {
	Destination       string
	Pickup            *string
	Notes             *string
	VehicleID         string
	DriverID          *string
	SecondaryDriverID *string
	FleetManagerID    *string
	StartLocation     *domain.Coordinate
	EndLocation       *domain.Coordinate
	EstimatedDistance *float64
	EstimatedTime     *float64
}

// CreateTrip creates a new trip in pending state.
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*domain.Trip, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return nil, ErrInvalidDestination
	}
	if strings.TrimSpace(req.VehicleID) == "" {
		return nil, ErrInvalidVehicleID
	}
	if err := validateCoordinates(req.StartLocation, req.EndLocation); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	trip := &domain.Trip{
		ID:                uuid.New().String(),
		Destination:       req.Destination,
		Pickup:            req.Pickup,
		Notes:             req.Notes,
		Status:            domain.TripStatusPending,
		VehicleID:         req.VehicleID,
		DriverID:          req.DriverID,
		SecondaryDriverID: req.SecondaryDriverID,
		FleetManagerID:    req.FleetManagerID,
		StartLocation:     req.StartLocation,
		EndLocation:       req.EndLocation,
		EstimatedDistance: req.EstimatedDistance,
		EstimatedTime:     req.EstimatedTime,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	s.log.WithFields(logrus.Fields{"trip_id": trip.ID, "vehicle_id": trip.VehicleID}).Info("trip created")

	return s.tripRepo.GetByID(ctx, trip.ID)
}

// GetTrip retrieves a trip. With forDriver set, trips the driver is not on
// are reported as not found.
func (s *TripService) GetTrip(ctx context.Context, id string, forDriver *string) (*domain.Trip, error) {
	if id == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip.IsDeleted {
		return nil, repository.ErrNotFound
	}
	if forDriver != nil && !trip.HasDriver(*forDriver) {
		return nil, repository.ErrNotFound
	}
	return trip, nil
}

// ListTripsRequest contains the parameters for listing trips.
type ListTripsRequest struct {
	ForDriver *string
	VehicleID *string
	Statuses  []domain.TripStatus
}

// ListTrips returns the visible, non-deleted trips, newest first.
func (s *TripService) ListTrips(ctx context.Context, req ListTripsRequest) ([]*domain.Trip, error) {
	for _, st := range req.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
		}
	}

	trips, err := s.tripRepo.List(ctx, domain.TripFilter{
		DriverID:  req.ForDriver,
		VehicleID: req.VehicleID,
		Statuses:  req.Statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}

	return lifecycle.FilterForDriver(lifecycle.ExcludeDeleted(trips), req.ForDriver), nil
}

// Overview groups the visible trips into current, upcoming and completed.
func (s *TripService) Overview(ctx context.Context, forDriver *string) (lifecycle.Buckets, error) {
	trips, err := s.ListTrips(ctx, ListTripsRequest{ForDriver: forDriver})
	if err != nil {
		return lifecycle.Buckets{}, err
	}
	return lifecycle.Categorize(trips), nil
}

// UpdateTrip merges the patch into the stored trip. A status change must be
// a legal transition; moving to in_progress or delivered dispatches the
// matching notification after the change is stored. The trip is re-read
// before returning.
func (s *TripService) UpdateTrip(ctx context.Context, id string, patch domain.TripPatch) (*domain.Trip, error) {
	current, err := s.GetTrip(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}
	if patch.Destination != nil && strings.TrimSpace(*patch.Destination) == "" {
		return nil, ErrInvalidDestination
	}
	if patch.VehicleID != nil && strings.TrimSpace(*patch.VehicleID) == "" {
		return nil, ErrInvalidVehicleID
	}
	if err := validateCoordinates(patch.StartLocation, patch.EndLocation); err != nil {
		return nil, err
	}

	var notify domain.NotificationType
	if patch.Status != nil && *patch.Status != current.Status {
		to := *patch.Status
		now := s.now().UTC()
		switch to {
		case domain.TripStatusInProgress:
			notify = domain.NotificationTripStarted
			if patch.StartTime == nil && current.StartTime == nil {
				patch.StartTime = &now
			}
		case domain.TripStatusDelivered:
			notify = domain.NotificationTripCompleted
			if patch.EndTime == nil && current.EndTime == nil {
				patch.EndTime = &now
			}
		}

		// Gates are evaluated against the trip as it will be stored, so a
		// patch may set a flag and the status together.
		merged := patch.Apply(*current)
		merged.Status = current.Status
		if err := lifecycle.Transition(merged, to); err != nil {
			return nil, err
		}
		if notify != "" {
			merged.Status = to
			if err := s.dispatcher.Check(notify, &merged); err != nil {
				return nil, err
			}
		}
	}

	updated, err := s.tripRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update trip: %w", err)
	}

	if notify != "" {
		s.log.WithFields(logrus.Fields{
			"trip_id": id,
			"from":    current.Status,
			"to":      updated.Status,
		}).Info("trip status changed")

		if _, err := s.dispatcher.Dispatch(ctx, Event{Type: notify, Trip: updated}); err != nil {
			return nil, err
		}
		if updated.Status == domain.TripStatusDelivered {
			s.clearZones(ctx, id)
		}
	}

	return s.tripRepo.GetByID(ctx, id)
}

// AssignTripRequest contains the parameters for assigning a trip.
type AssignTripRequest struct {
	DriverID          string
	SecondaryDriverID *string
	VehicleID         *string
}

// AssignTrip sets the drivers and moves the trip to assigned.
func (s *TripService) AssignTrip(ctx context.Context, id string, req AssignTripRequest) (*domain.Trip, error) {
	if strings.TrimSpace(req.DriverID) == "" {
		return nil, ErrInvalidDriverID
	}
	if req.SecondaryDriverID != nil && *req.SecondaryDriverID == req.DriverID {
		return nil, fmt.Errorf("%w: secondary driver must differ from primary", ErrInvalidDriverID)
	}

	status := domain.TripStatusAssigned
	return s.UpdateTrip(ctx, id, domain.TripPatch{
		DriverID:          &req.DriverID,
		SecondaryDriverID: req.SecondaryDriverID,
		VehicleID:         req.VehicleID,
		Status:            &status,
	})
}

// CompletePreTripInspection records a passed pre-trip inspection.
func (s *TripService) CompletePreTripInspection(ctx context.Context, id string) (*domain.Trip, error) {
	done := true
	return s.UpdateTrip(ctx, id, domain.TripPatch{HasCompletedPreTrip: &done})
}

// CompletePostTripInspection records a passed post-trip inspection.
func (s *TripService) CompletePostTripInspection(ctx context.Context, id string) (*domain.Trip, error) {
	done := true
	return s.UpdateTrip(ctx, id, domain.TripPatch{HasCompletedPostTrip: &done})
}

// StartTrip moves an assigned trip to in_progress.
func (s *TripService) StartTrip(ctx context.Context, id string) (*domain.Trip, error) {
	status := domain.TripStatusInProgress
	return s.UpdateTrip(ctx, id, domain.TripPatch{Status: &status})
}

// CompleteTrip moves an in-progress trip to delivered.
func (s *TripService) CompleteTrip(ctx context.Context, id string) (*domain.Trip, error) {
	status := domain.TripStatusDelivered
	return s.UpdateTrip(ctx, id, domain.TripPatch{Status: &status})
}

// DeleteTrip soft-deletes a trip.
func (s *TripService) DeleteTrip(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidTripID
	}
	if err := s.tripRepo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete trip: %w", err)
	}
	s.log.WithField("trip_id", id).Info("trip deleted")
	s.clearZones(ctx, id)
	return nil
}

func (s *TripService) clearZones(ctx context.Context, id string) {
	if s.zones == nil {
		return
	}
	if err := s.zones.Clear(ctx, id); err != nil {
		s.log.WithError(err).WithField("trip_id", id).Warn("clear geofence state failed")
	}
}

func validateCoordinates(coords ...*domain.Coordinate) error {
	for _, c := range coords {
		if c != nil && !c.Valid() {
			return ErrInvalidLocation
		}
	}
	return nil
}
