package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/domain"
	"fleetops/internal/service"
)

// ──────────────────────────────────────────────
// 4. GEOFENCE EDGES
// ──────────────────────────────────────────────

func report(pos domain.Coordinate) service.LocationReport {
	return service.LocationReport{TripID: "trip-1", Actor: driver, Location: pos}
}

func TestGeofence_ArriveAndLeaveEachFireOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusInProgress))
	ctx := context.Background()

	res, err := h.geofence.ReportLocation(ctx, report(farAway))
	require.NoError(t, err)
	assert.Empty(t, res.Entered)
	assert.Empty(t, res.NotificationIDs)

	res, err = h.geofence.ReportLocation(ctx, report(pickupPoint))
	require.NoError(t, err)
	assert.Equal(t, []string{service.ZonePickup}, res.Entered)
	require.Len(t, res.NotificationIDs, 1)

	// Staying inside does not repeat the edge.
	res, err = h.geofence.ReportLocation(ctx, report(domain.Coordinate{Latitude: 52.5201, Longitude: 13.4051}))
	require.NoError(t, err)
	assert.Empty(t, res.Entered)
	assert.Empty(t, res.Left)

	res, err = h.geofence.ReportLocation(ctx, report(dropoffPoint))
	require.NoError(t, err)
	assert.Equal(t, []string{service.ZoneDropoff}, res.Entered)
	assert.Equal(t, []string{service.ZonePickup}, res.Left)
	require.Len(t, res.NotificationIDs, 2)

	first, err := h.notifications.GetByID(ctx, res.NotificationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationLeftPickup, first.Type, "pickup edges are dispatched first")

	res, err = h.geofence.ReportLocation(ctx, report(farAway))
	require.NoError(t, err)
	assert.Equal(t, []string{service.ZoneDropoff}, res.Left)

	assert.Len(t, h.notifications.ByType(domain.NotificationArrivedAtPickup), 1)
	assert.Len(t, h.notifications.ByType(domain.NotificationLeftPickup), 1)
	assert.Len(t, h.notifications.ByType(domain.NotificationArrivedAtDropoff), 1)
	assert.Len(t, h.notifications.ByType(domain.NotificationLeftDropoff), 1)

	arrived := h.notifications.ByType(domain.NotificationArrivedAtDropoff)[0]
	assert.Equal(t, "Vehicle arrived at dropoff Warehouse B", arrived.Message)
}

func TestGeofence_FirstReportInsideCountsAsArrival(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusAssigned))

	res, err := h.geofence.ReportLocation(context.Background(), report(pickupPoint))
	require.NoError(t, err)
	assert.Equal(t, []string{service.ZonePickup}, res.Entered)
}

func TestGeofence_InactiveTripIsRejected(t *testing.T) {
	t.Parallel()
	for _, st := range []domain.TripStatus{domain.TripStatusPending, domain.TripStatusDelivered} {
		h := newHarness(t)
		h.seedTrip("trip-1", withDriver(testDriverID), withStatus(st))

		_, err := h.geofence.ReportLocation(context.Background(), report(pickupPoint))
		assert.ErrorIs(t, err, service.ErrTripNotActive, st)
	}
}

func TestGeofence_InvalidLocation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusAssigned))

	_, err := h.geofence.ReportLocation(context.Background(), report(domain.Coordinate{Latitude: 95}))
	assert.ErrorIs(t, err, service.ErrInvalidLocation)
}

func TestGeofence_FailedDispatchIsRetriedByNextReport(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusInProgress))
	ctx := context.Background()

	h.notifications.CreateError = errors.New("connection reset")
	_, err := h.geofence.ReportLocation(ctx, report(pickupPoint))
	require.ErrorIs(t, err, service.ErrDispatch)

	h.notifications.CreateError = nil
	res, err := h.geofence.ReportLocation(ctx, report(pickupPoint))
	require.NoError(t, err)
	assert.Equal(t, []string{service.ZonePickup}, res.Entered)
}

func TestGeofence_PartialFailureKeepsDeliveredEdges(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusInProgress))
	ctx := context.Background()

	_, err := h.geofence.ReportLocation(ctx, report(pickupPoint))
	require.NoError(t, err)

	// left_pickup is stored, arrived_at_dropoff fails.
	h.notifications.CreateError = errors.New("connection reset")
	h.notifications.CreateErrorFromCall = 3
	_, err = h.geofence.ReportLocation(ctx, report(dropoffPoint))
	require.ErrorIs(t, err, service.ErrDispatch)

	h.notifications.CreateError = nil
	res, err := h.geofence.ReportLocation(ctx, report(dropoffPoint))
	require.NoError(t, err)
	assert.Equal(t, []string{service.ZoneDropoff}, res.Entered)
	assert.Empty(t, res.Left)

	assert.Len(t, h.notifications.ByType(domain.NotificationLeftPickup), 1)
	assert.Len(t, h.notifications.ByType(domain.NotificationArrivedAtDropoff), 1)
}

func TestGeofence_TripWithoutZonesOnlyShares(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusInProgress), func(tr *domain.Trip) {
		tr.StartLocation, tr.EndLocation = nil, nil
	})

	r := report(farAway)
	r.Share = true
	res, err := h.geofence.ReportLocation(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, res.NotificationIDs, 1)

	n, err := h.notifications.GetByID(context.Background(), res.NotificationIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationLocationUpdate, n.Type)
	assert.Equal(t, farAway.Latitude, *n.Metadata.Latitude)
	assert.False(t, h.zones.HasState("trip-1"))
}

func TestGeofence_DeliveryClearsState(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusInProgress), withPostTrip)
	ctx := context.Background()

	_, err := h.geofence.ReportLocation(ctx, report(dropoffPoint))
	require.NoError(t, err)
	require.True(t, h.zones.HasState("trip-1"))

	_, err = h.tripService.CompleteTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.False(t, h.zones.HasState("trip-1"))
}
