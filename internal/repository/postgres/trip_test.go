package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
	"fleetops/internal/repository/postgres"
)

func strPtr(s string) *string { return &s }

func tripFixture() *domain.Trip {
	distance := 42.5
	return &domain.Trip{
		ID:                uuid.NewString(),
		Destination:       "Warehouse 7",
		Pickup:            strPtr("Depot North"),
		Status:            domain.TripStatusAssigned,
		VehicleID:         "vehicle-1",
		DriverID:          strPtr("driver-1"),
		FleetManagerID:    strPtr("manager-1"),
		StartLocation:     &domain.Coordinate{Latitude: -1.28, Longitude: 36.82},
		EstimatedDistance: &distance,
	}
}

func TestTripRepository_CreateAndGet(t *testing.T) {
	r := postgres.NewTripRepository(newTx(t), postgres.NoRetry)
	ctx := context.Background()

	trip := tripFixture()
	require.NoError(t, r.Create(ctx, trip))

	got, err := r.GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.Destination, got.Destination)
	assert.Equal(t, "Depot North", *got.Pickup)
	assert.Nil(t, got.Notes)
	assert.Equal(t, domain.TripStatusAssigned, got.Status)
	require.NotNil(t, got.StartLocation)
	assert.InDelta(t, -1.28, got.StartLocation.Latitude, 1e-9)
	assert.Nil(t, got.EndLocation)
	assert.InDelta(t, 42.5, *got.EstimatedDistance, 1e-9)
	assert.WithinDuration(t, trip.CreatedAt, got.CreatedAt, time.Second)
}

func TestTripRepository_CreateIsReplaySafe(t *testing.T) {
	r := postgres.NewTripRepository(newTx(t), postgres.NoRetry)
	ctx := context.Background()

	trip := tripFixture()
	require.NoError(t, r.Create(ctx, trip))
	require.NoError(t, r.Create(ctx, trip))

	trips, err := r.List(ctx, domain.TripFilter{VehicleID: &trip.VehicleID})
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestTripRepository_GetByID_NotFound(t *testing.T) {
	r := postgres.NewTripRepository(newTx(t), postgres.NoRetry)

	_, err := r.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = r.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTripRepository_UpdateAppliesOnlyPresentFields(t *testing.T) {
	r := postgres.NewTripRepository(newTx(t), postgres.NoRetry)
	ctx := context.Background()

	trip := tripFixture()
	require.NoError(t, r.Create(ctx, trip))

	status := domain.TripStatusInProgress
	started := time.Date(2025, 3, 31, 6, 20, 9, 0, time.UTC)
	got, err := r.Update(ctx, trip.ID, domain.TripPatch{Status: &status, StartTime: &started})

	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusInProgress, got.Status)
	require.NotNil(t, got.StartTime)
	assert.True(t, started.Equal(*got.StartTime))
	assert.Equal(t, trip.Destination, got.Destination)
	assert.Equal(t, "driver-1", *got.DriverID)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestTripRepository_SoftDeleteHidesTrip(t *testing.T) {
	r := postgres.NewTripRepository(newTx(t), postgres.NoRetry)
	ctx := context.Background()

	trip := tripFixture()
	require.NoError(t, r.Create(ctx, trip))
	require.NoError(t, r.SoftDelete(ctx, trip.ID))

	_, err := r.GetByID(ctx, trip.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, r.SoftDelete(ctx, trip.ID), repository.ErrNotFound)

	status := domain.TripStatusDelivered
	_, err = r.Update(ctx, trip.ID, domain.TripPatch{Status: &status})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTripRepository_ListMatchesEitherDriverSlot(t *testing.T) {
	r := postgres.NewTripRepository(newTx(t), postgres.NoRetry)
	ctx := context.Background()
	driver := "driver-" + uuid.NewString()

	primary := tripFixture()
	primary.DriverID = &driver
	secondary := tripFixture()
	secondary.SecondaryDriverID = &driver
	other := tripFixture()
	other.Status = domain.TripStatusPending

	for _, trip := range []*domain.Trip{primary, secondary, other} {
		require.NoError(t, r.Create(ctx, trip))
	}

	trips, err := r.List(ctx, domain.TripFilter{DriverID: &driver})
	require.NoError(t, err)
	ids := []string{}
	for _, trip := range trips {
		ids = append(ids, trip.ID)
	}
	assert.ElementsMatch(t, []string{primary.ID, secondary.ID}, ids)

	trips, err = r.List(ctx, domain.TripFilter{
		DriverID: &driver,
		Statuses: []domain.TripStatus{domain.TripStatusPending},
	})
	require.NoError(t, err)
	assert.Empty(t, trips)
}
