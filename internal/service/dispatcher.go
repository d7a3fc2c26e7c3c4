package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
)

// Recipients addresses a notification. When set on an Event it overrides the
// recipients copied from the trip, for events where the initiating role
// differs from the trip's owners.
type Recipients struct {
	FleetManagerID *string
	DriverID       *string
	// Exclusive drops the recipients copied from the trip.
	Exclusive bool
}

// Event is one domain occurrence to notify about. Only the payload fields
// the type uses are read.
type Event struct {
	Type       domain.NotificationType
	Trip       *domain.Trip
	Recipients *Recipients

	Issue          string
	Reason         string
	FuelAmount     *float64
	Location       *domain.Coordinate
	LocationName   string
	MessagePreview string
}

// Dispatcher renders and persists notifications. Each dispatch is a single
// insert; a failed insert leaves nothing behind.
type Dispatcher struct {
	repo repository.NotificationRepository
	log  logrus.FieldLogger
	now  func() time.Time
}

// NewDispatcher creates a new Dispatcher. A nil clock uses time.Now.
func NewDispatcher(repo repository.NotificationRepository, log logrus.FieldLogger, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{repo: repo, log: log, now: now}
}

// Check verifies that trip carries the fields the notification type needs.
// Callers use it before mutating a trip so a transition is never persisted
// without its notification being renderable.
func (d *Dispatcher) Check(typ domain.NotificationType, trip *domain.Trip) error {
	var need []string
	switch typ {
	case domain.NotificationTripStarted:
		need = []string{"pickup", "destination"}
	case domain.NotificationTripCompleted:
		need = []string{"pickup", "destination", "estimated_distance"}
	case domain.NotificationVehicleIssue:
		need = []string{"pickup", "destination", "driver_id"}
	default:
		return nil
	}

	var missing []string
	for _, field := range need {
		if !hasTripField(trip, field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s needs %s", ErrIncompleteTrip, typ, strings.Join(missing, ", "))
	}
	return nil
}

func hasTripField(trip *domain.Trip, field string) bool {
	if trip == nil {
		return false
	}
	switch field {
	case "pickup":
		return trip.Pickup != nil && *trip.Pickup != ""
	case "destination":
		return trip.Destination != ""
	case "estimated_distance":
		return trip.EstimatedDistance != nil
	case "driver_id":
		return trip.DriverID != nil && *trip.DriverID != ""
	}
	return false
}

// Dispatch persists the notification for ev and returns its id.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (string, error) {
	if !ev.Type.Valid() {
		return "", fmt.Errorf("%w: unknown notification type %q", ErrInvalidEvent, ev.Type)
	}
	if err := d.Check(ev.Type, ev.Trip); err != nil {
		return "", err
	}
	if err := validatePayload(ev); err != nil {
		return "", err
	}

	now := d.now().UTC()
	n := &domain.Notification{
		ID:        uuid.New().String(),
		Type:      ev.Type,
		Message:   renderMessage(ev),
		Metadata:  buildMetadata(ev, now),
		CreatedAt: now,
	}
	if ev.Trip != nil {
		n.TripID = ptr(ev.Trip.ID)
		n.VehicleID = ptr(ev.Trip.VehicleID)
		n.FleetManagerID = copyPtr(ev.Trip.FleetManagerID)
		n.DriverID = copyPtr(ev.Trip.DriverID)
	}
	if r := ev.Recipients; r != nil {
		if r.Exclusive {
			n.FleetManagerID, n.DriverID = nil, nil
		}
		if r.FleetManagerID != nil {
			n.FleetManagerID = copyPtr(r.FleetManagerID)
		}
		if r.DriverID != nil {
			n.DriverID = copyPtr(r.DriverID)
		}
	}

	if err := d.repo.Create(ctx, n); err != nil {
		d.log.WithError(err).WithField("type", ev.Type).Error("notification insert failed")
		return "", &DispatchError{Type: ev.Type, Err: err}
	}

	d.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.Type,
		"trip_id":         strValue(n.TripID),
	}).Info("notification dispatched")

	return n.ID, nil
}

func validatePayload(ev Event) error {
	switch ev.Type {
	case domain.NotificationVehicleIssue,
		domain.NotificationPreInspectionIssue,
		domain.NotificationPostInspectionIssue,
		domain.NotificationIssueReportSubmitted,
		domain.NotificationEmergency,
		domain.NotificationMaintenance:
		if strings.TrimSpace(ev.Issue) == "" {
			return fmt.Errorf("%w: %s needs an issue description", ErrInvalidEvent, ev.Type)
		}
	case domain.NotificationTripDelayed:
		if strings.TrimSpace(ev.Reason) == "" {
			return fmt.Errorf("%w: %s needs a reason", ErrInvalidEvent, ev.Type)
		}
	case domain.NotificationFuelBillSubmitted:
		if ev.FuelAmount == nil || *ev.FuelAmount < 0 {
			return fmt.Errorf("%w: %s needs a non-negative fuel amount", ErrInvalidEvent, ev.Type)
		}
	case domain.NotificationLocationUpdate,
		domain.NotificationArrivedAtPickup,
		domain.NotificationLeftPickup,
		domain.NotificationArrivedAtDropoff,
		domain.NotificationLeftDropoff:
		if ev.Location == nil || !ev.Location.Valid() {
			return fmt.Errorf("%w: %s needs a valid location", ErrInvalidEvent, ev.Type)
		}
	}
	return nil
}

// buildMetadata populates only the fields the notification type uses.
func buildMetadata(ev Event, now time.Time) *domain.Metadata {
	md := &domain.Metadata{}
	switch ev.Type {
	case domain.NotificationTripStarted:
		md.StartPoint = copyPtr(ev.Trip.Pickup)
		md.EndPoint = ptr(ev.Trip.Destination)
		md.StartTime = ptr(now)
	case domain.NotificationTripCompleted:
		md.StartPoint = copyPtr(ev.Trip.Pickup)
		md.EndPoint = ptr(ev.Trip.Destination)
		md.EndTime = ptr(now)
		md.DistanceKm = copyPtr(ev.Trip.EstimatedDistance)
	case domain.NotificationVehicleIssue,
		domain.NotificationIssueReportSubmitted,
		domain.NotificationMaintenance:
		md.Issue = ptr(ev.Issue)
		md.ReportTime = ptr(now)
	case domain.NotificationEmergency:
		md.Issue = ptr(ev.Issue)
		md.ReportTime = ptr(now)
		if ev.Location != nil {
			md.Latitude = ptr(ev.Location.Latitude)
			md.Longitude = ptr(ev.Location.Longitude)
		}
	case domain.NotificationPreInspectionIssue, domain.NotificationPostInspectionIssue:
		md.Issue = ptr(ev.Issue)
		md.InspectionTime = ptr(now)
	case domain.NotificationTripDelayed:
		md.Reason = ptr(ev.Reason)
		md.DelayTime = ptr(now)
	case domain.NotificationLocationUpdate:
		md.Latitude = ptr(ev.Location.Latitude)
		md.Longitude = ptr(ev.Location.Longitude)
		md.UpdateTime = ptr(now)
	case domain.NotificationFuelBillSubmitted:
		md.FuelAmount = copyPtr(ev.FuelAmount)
		md.SubmissionTime = ptr(now)
	case domain.NotificationArrivedAtPickup,
		domain.NotificationLeftPickup,
		domain.NotificationArrivedAtDropoff,
		domain.NotificationLeftDropoff:
		if ev.LocationName != "" {
			md.LocationName = ptr(ev.LocationName)
		}
		md.Latitude = ptr(ev.Location.Latitude)
		md.Longitude = ptr(ev.Location.Longitude)
		md.EventTime = ptr(now)
	case domain.NotificationChatMessage:
		md.MessagePreview = ptr(ev.MessagePreview)
		md.SentTime = ptr(now)
	}
	return md
}

// renderMessage produces the human readable text stored with the
// notification. It is never re-derived.
func renderMessage(ev Event) string {
	dest, pickup := "", ""
	if ev.Trip != nil {
		dest = ev.Trip.Destination
		pickup = strValue(ev.Trip.Pickup)
	}

	switch ev.Type {
	case domain.NotificationTripStarted:
		return fmt.Sprintf("Trip from %s to %s has started", pickup, dest)
	case domain.NotificationTripCompleted:
		return fmt.Sprintf("Trip from %s to %s was delivered (%.1f km)", pickup, dest, *ev.Trip.EstimatedDistance)
	case domain.NotificationVehicleIssue:
		return fmt.Sprintf("Vehicle issue reported on trip to %s: %s", dest, ev.Issue)
	case domain.NotificationPreInspectionIssue:
		return "Pre-trip inspection issue: " + ev.Issue
	case domain.NotificationPostInspectionIssue:
		return "Post-trip inspection issue: " + ev.Issue
	case domain.NotificationTripDelayed:
		return "Trip delayed: " + ev.Reason
	case domain.NotificationLocationUpdate:
		return fmt.Sprintf("Location updated to %.5f, %.5f", ev.Location.Latitude, ev.Location.Longitude)
	case domain.NotificationIssueReportSubmitted:
		return "Issue report submitted: " + ev.Issue
	case domain.NotificationFuelBillSubmitted:
		return fmt.Sprintf("Fuel bill submitted: %.2f", *ev.FuelAmount)
	case domain.NotificationChatMessage:
		return "New message: " + ev.MessagePreview
	case domain.NotificationEmergency:
		return "Emergency reported: " + ev.Issue
	case domain.NotificationMaintenance:
		return "Maintenance requested: " + ev.Issue
	case domain.NotificationArrivedAtPickup:
		return "Vehicle arrived at pickup" + placeSuffix(ev.LocationName)
	case domain.NotificationLeftPickup:
		return "Vehicle left pickup" + placeSuffix(ev.LocationName)
	case domain.NotificationArrivedAtDropoff:
		return "Vehicle arrived at dropoff" + placeSuffix(ev.LocationName)
	case domain.NotificationLeftDropoff:
		return "Vehicle left dropoff" + placeSuffix(ev.LocationName)
	}
	return string(ev.Type)
}

func placeSuffix(name string) string {
	if name == "" {
		return ""
	}
	return " " + name
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T { return &v }

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
