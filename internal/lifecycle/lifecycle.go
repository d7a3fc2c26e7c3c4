// Package lifecycle holds the trip state machine and the derived views
// computed from trip collections. Everything here is pure.
package lifecycle

import (
	"errors"
	"fmt"

	"fleetops/internal/domain"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid trip transition")

// Gate names the precondition a transition failed on.
type Gate string

const (
	GateNone         Gate = ""
	GateDriver       Gate = "driver_id"
	GateVehicle      Gate = "vehicle_id"
	GatePreTrip      Gate = "has_completed_pre_trip"
	GatePostTrip     Gate = "has_completed_post_trip"
	GateUnknownState Gate = "unknown_state"
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From domain.TripStatus
	To   domain.TripStatus
	Gate Gate
}

func (e *TransitionError) Error() string {
	if e.Gate == GateNone {
		return fmt.Sprintf("invalid trip transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid trip transition %s -> %s: %s not satisfied", e.From, e.To, e.Gate)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// next is the single forward edge out of each state.
var next = map[domain.TripStatus]domain.TripStatus{
	domain.TripStatusPending:    domain.TripStatusAssigned,
	domain.TripStatusAssigned:   domain.TripStatusInProgress,
	domain.TripStatusInProgress: domain.TripStatusDelivered,
}

// Transition checks whether trip may move to the given status. The trip is
// expected to already carry any other fields changed in the same update, so a
// patch that sets a gate flag and the status together is accepted.
func Transition(trip domain.Trip, to domain.TripStatus) error {
	from := trip.Status
	if !from.Valid() || !to.Valid() {
		return &TransitionError{From: from, To: to, Gate: GateUnknownState}
	}
	if from == to {
		return nil
	}
	if next[from] != to {
		return &TransitionError{From: from, To: to}
	}

	switch to {
	case domain.TripStatusAssigned:
		if trip.DriverID == nil || *trip.DriverID == "" {
			return &TransitionError{From: from, To: to, Gate: GateDriver}
		}
		if trip.VehicleID == "" {
			return &TransitionError{From: from, To: to, Gate: GateVehicle}
		}
	case domain.TripStatusInProgress:
		if !trip.HasCompletedPreTrip {
			return &TransitionError{From: from, To: to, Gate: GatePreTrip}
		}
	case domain.TripStatusDelivered:
		if !trip.HasCompletedPostTrip {
			return &TransitionError{From: from, To: to, Gate: GatePostTrip}
		}
	}
	return nil
}

// ProofOfDeliveryEligible reports whether a proof of delivery may be produced.
func ProofOfDeliveryEligible(trip domain.Trip) bool {
	return trip.Status == domain.TripStatusDelivered && trip.HasCompletedPostTrip
}

// Buckets is the categorised view consumed by trip listings.
type Buckets struct {
	Current   *domain.Trip
	Upcoming  []*domain.Trip
	Completed []*domain.Trip
}

// Categorize splits trips into current, upcoming and completed. Current is the
// first in-progress trip in input order. Deleted trips are skipped.
func Categorize(trips []*domain.Trip) Buckets {
	b := Buckets{
		Upcoming:  []*domain.Trip{},
		Completed: []*domain.Trip{},
	}
	for _, t := range trips {
		if t == nil || t.IsDeleted {
			continue
		}
		switch t.Status {
		case domain.TripStatusInProgress:
			if b.Current == nil {
				b.Current = t
			}
		case domain.TripStatusPending, domain.TripStatusAssigned:
			b.Upcoming = append(b.Upcoming, t)
		case domain.TripStatusDelivered:
			if t.HasCompletedPostTrip {
				b.Completed = append(b.Completed, t)
			}
		}
	}
	return b
}

// FilterForDriver keeps the trips where driverID is the primary or secondary
// driver, preserving order. A nil driverID returns the input unchanged.
func FilterForDriver(trips []*domain.Trip, driverID *string) []*domain.Trip {
	if driverID == nil {
		return trips
	}
	out := make([]*domain.Trip, 0, len(trips))
	for _, t := range trips {
		if t != nil && t.HasDriver(*driverID) {
			out = append(out, t)
		}
	}
	return out
}

// ExcludeDeleted drops soft-deleted trips, preserving order.
func ExcludeDeleted(trips []*domain.Trip) []*domain.Trip {
	out := make([]*domain.Trip, 0, len(trips))
	for _, t := range trips {
		if t != nil && !t.IsDeleted {
			out = append(out, t)
		}
	}
	return out
}
