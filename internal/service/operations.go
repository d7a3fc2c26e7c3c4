package service

import (
	"context"
	"fmt"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
)

// OperationsService records operational events raised against a trip by a
// driver or fleet manager. Each event becomes exactly one notification.
type OperationsService struct {
	trips         *TripService
	notifications repository.NotificationRepository
	dispatcher    *Dispatcher
}

// NewOperationsService creates a new OperationsService.
func NewOperationsService(trips *TripService, notifications repository.NotificationRepository, dispatcher *Dispatcher) *OperationsService {
	return &OperationsService{trips: trips, notifications: notifications, dispatcher: dispatcher}
}

// InspectionPhase selects the pre- or post-trip inspection.
type InspectionPhase string

const (
	InspectionPre  InspectionPhase = "pre"
	InspectionPost InspectionPhase = "post"
)

// ReportVehicleIssue notifies about a problem with the trip's vehicle.
func (s *OperationsService) ReportVehicleIssue(ctx context.Context, actor domain.Identity, tripID, issue string) (*domain.Notification, error) {
	return s.raise(ctx, actor, tripID, Event{Type: domain.NotificationVehicleIssue, Issue: issue})
}

// ReportInspectionIssue notifies about a failed inspection item.
func (s *OperationsService) ReportInspectionIssue(ctx context.Context, actor domain.Identity, tripID string, phase InspectionPhase, issue string) (*domain.Notification, error) {
	var typ domain.NotificationType
	switch phase {
	case InspectionPre:
		typ = domain.NotificationPreInspectionIssue
	case InspectionPost:
		typ = domain.NotificationPostInspectionIssue
	default:
		return nil, fmt.Errorf("%w: unknown inspection phase %q", ErrInvalidEvent, phase)
	}
	return s.raise(ctx, actor, tripID, Event{Type: typ, Issue: issue})
}

// ReportDelay notifies that the trip is running late.
func (s *OperationsService) ReportDelay(ctx context.Context, actor domain.Identity, tripID, reason string) (*domain.Notification, error) {
	return s.raise(ctx, actor, tripID, Event{Type: domain.NotificationTripDelayed, Reason: reason})
}

// SubmitFuelBill notifies about a fuel purchase.
func (s *OperationsService) SubmitFuelBill(ctx context.Context, actor domain.Identity, tripID string, amount float64) (*domain.Notification, error) {
	return s.raise(ctx, actor, tripID, Event{Type: domain.NotificationFuelBillSubmitted, FuelAmount: &amount})
}

// SubmitIssueReport notifies that a written issue report was filed.
func (s *OperationsService) SubmitIssueReport(ctx context.Context, actor domain.Identity, tripID, issue string) (*domain.Notification, error) {
	return s.raise(ctx, actor, tripID, Event{Type: domain.NotificationIssueReportSubmitted, Issue: issue})
}

// ReportEmergency notifies about an emergency, with the position when known.
func (s *OperationsService) ReportEmergency(ctx context.Context, actor domain.Identity, tripID, issue string, at *domain.Coordinate) (*domain.Notification, error) {
	if at != nil && !at.Valid() {
		return nil, ErrInvalidLocation
	}
	return s.raise(ctx, actor, tripID, Event{Type: domain.NotificationEmergency, Issue: issue, Location: at})
}

// RequestMaintenance notifies that the vehicle needs maintenance.
func (s *OperationsService) RequestMaintenance(ctx context.Context, actor domain.Identity, tripID, issue string) (*domain.Notification, error) {
	return s.raise(ctx, actor, tripID, Event{Type: domain.NotificationMaintenance, Issue: issue})
}

// raise loads the trip visible to actor, dispatches the event with the
// actor as the recipient on their side, and returns the stored notification.
func (s *OperationsService) raise(ctx context.Context, actor domain.Identity, tripID string, ev Event) (*domain.Notification, error) {
	trip, err := s.trips.GetTrip(ctx, tripID, DriverScope(actor))
	if err != nil {
		return nil, err
	}

	ev.Trip = trip
	ev.Recipients = actorRecipients(actor)

	id, err := s.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		return nil, err
	}
	return s.notifications.GetByID(ctx, id)
}

// DriverScope returns the driver visibility filter for an identity: drivers
// are limited to their own trips, fleet managers see everything.
func DriverScope(id domain.Identity) *string {
	if id.Role != domain.RoleDriver {
		return nil
	}
	userID := id.UserID
	return &userID
}

// actorRecipients puts the initiating user in the slot of their role.
func actorRecipients(actor domain.Identity) *Recipients {
	if actor.UserID == "" {
		return nil
	}
	userID := actor.UserID
	switch actor.Role {
	case domain.RoleDriver:
		return &Recipients{DriverID: &userID}
	case domain.RoleFleetManager:
		return &Recipients{FleetManagerID: &userID}
	}
	return nil
}
