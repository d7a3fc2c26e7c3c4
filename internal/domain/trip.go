package domain

import "time"

// TripStatus represents the lifecycle state of a trip.
type TripStatus string

const (
	TripStatusPending    TripStatus = "pending"
	TripStatusAssigned   TripStatus = "assigned"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusDelivered  TripStatus = "delivered"
)

// Valid reports whether s is one of the known trip states.
func (s TripStatus) Valid() bool {
	switch s {
	case TripStatusPending, TripStatusAssigned, TripStatusInProgress, TripStatusDelivered:
		return true
	}
	return false
}

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate is within WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Trip is a single delivery assignment binding a vehicle and up to two
// drivers to a route.
type Trip struct {
	ID                   string
	Destination          string
	Pickup               *string
	Notes                *string
	Status               TripStatus
	HasCompletedPreTrip  bool
	HasCompletedPostTrip bool
	VehicleID            string
	DriverID             *string
	SecondaryDriverID    *string
	FleetManagerID       *string
	StartTime            *time.Time
	EndTime              *time.Time
	StartLocation        *Coordinate
	EndLocation          *Coordinate
	EstimatedDistance    *float64 // kilometers
	EstimatedTime        *float64 // hours
	CreatedAt            time.Time
	UpdatedAt            time.Time
	IsDeleted            bool
}

// HasDriver reports whether id occupies either driver slot.
func (t *Trip) HasDriver(id string) bool {
	return (t.DriverID != nil && *t.DriverID == id) ||
		(t.SecondaryDriverID != nil && *t.SecondaryDriverID == id)
}

// TripPatch is a partial update. A nil field is absent and leaves the stored
// value untouched.
type TripPatch struct {
	Destination          *string
	Pickup               *string
	Notes                *string
	Status               *TripStatus
	HasCompletedPreTrip  *bool
	HasCompletedPostTrip *bool
	VehicleID            *string
	DriverID             *string
	SecondaryDriverID    *string
	StartTime            *time.Time
	EndTime              *time.Time
	StartLocation        *Coordinate
	EndLocation          *Coordinate
	EstimatedDistance    *float64
	EstimatedTime        *float64
}

// Empty reports whether the patch changes nothing.
func (p TripPatch) Empty() bool {
	return p == TripPatch{}
}

// Apply returns a copy of trip with every present field of the patch set.
// Identity, timestamps and the delete flag are never touched.
func (p TripPatch) Apply(trip Trip) Trip {
	if p.Destination != nil {
		trip.Destination = *p.Destination
	}
	if p.Pickup != nil {
		trip.Pickup = p.Pickup
	}
	if p.Notes != nil {
		trip.Notes = p.Notes
	}
	if p.Status != nil {
		trip.Status = *p.Status
	}
	if p.HasCompletedPreTrip != nil {
		trip.HasCompletedPreTrip = *p.HasCompletedPreTrip
	}
	if p.HasCompletedPostTrip != nil {
		trip.HasCompletedPostTrip = *p.HasCompletedPostTrip
	}
	if p.VehicleID != nil {
		trip.VehicleID = *p.VehicleID
	}
	if p.DriverID != nil {
		trip.DriverID = p.DriverID
	}
	if p.SecondaryDriverID != nil {
		trip.SecondaryDriverID = p.SecondaryDriverID
	}
	if p.StartTime != nil {
		trip.StartTime = p.StartTime
	}
	if p.EndTime != nil {
		trip.EndTime = p.EndTime
	}
	if p.StartLocation != nil {
		trip.StartLocation = p.StartLocation
	}
	if p.EndLocation != nil {
		trip.EndLocation = p.EndLocation
	}
	if p.EstimatedDistance != nil {
		trip.EstimatedDistance = p.EstimatedDistance
	}
	if p.EstimatedTime != nil {
		trip.EstimatedTime = p.EstimatedTime
	}
	return trip
}

// TripFilter narrows trip listings. Soft-deleted trips are always excluded.
type TripFilter struct {
	// DriverID matches the primary OR the secondary driver slot.
	DriverID  *string
	VehicleID *string
	Statuses  []TripStatus
}
