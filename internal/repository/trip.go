package repository

import (
	"context"

	"fleetops/internal/domain"
)

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID. Soft-deleted trips are reported as ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// List retrieves the non-deleted trips matching the filter, newest first.
	List(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error)

	// Update applies the present fields of the patch and returns the stored trip.
	Update(ctx context.Context, id string, patch domain.TripPatch) (*domain.Trip, error)

	// SoftDelete marks a trip as deleted.
	SoftDelete(ctx context.Context, id string) error
}
