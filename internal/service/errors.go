package service

import (
	"errors"
	"fmt"

	"fleetops/internal/domain"
)

var (
	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidDestination is returned when a trip has no destination.
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidStatus is returned for a status outside the known set.
	ErrInvalidStatus = errors.New("invalid trip status")

	// ErrInvalidEvent is returned when an operational event lacks its payload.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrIncompleteTrip is returned when a trip lacks the fields a
	// notification needs.
	ErrIncompleteTrip = errors.New("trip is missing fields required for notification")

	// ErrDispatch is matched by every *DispatchError.
	ErrDispatch = errors.New("notification dispatch failed")

	// ErrTripNotActive is returned for location reports on trips that are
	// not assigned or in progress.
	ErrTripNotActive = errors.New("trip is not active")

	// ErrInvalidMessage is returned when a chat message has neither text nor
	// an image, or is addressed to its sender.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrForbidden is returned when the caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
)

// DispatchError reports a notification that could not be persisted. Nothing
// of it is visible to readers.
type DispatchError struct {
	Type domain.NotificationType
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s notification: %v", e.Type, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDispatch) succeed.
func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatch
}
