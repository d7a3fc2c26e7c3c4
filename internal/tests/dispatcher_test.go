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
// 1. NOTIFICATION DISPATCH
// ──────────────────────────────────────────────

func TestDispatch_TripStartedCopiesTripRecipients(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", withDriver(testDriverID), withStatus(domain.TripStatusInProgress))

	id, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type: domain.NotificationTripStarted,
		Trip: trip,
	})
	require.NoError(t, err)

	n, err := h.notifications.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Trip from Depot A to Warehouse B has started", n.Message)
	assert.Equal(t, testManagerID, *n.FleetManagerID)
	assert.Equal(t, testDriverID, *n.DriverID)
	assert.Equal(t, "trip-1", *n.TripID)
	assert.Equal(t, "truck-7", *n.VehicleID)
	assert.False(t, n.IsRead)
	assert.Equal(t, fixedNow, n.CreatedAt)

	require.NotNil(t, n.Metadata)
	assert.Equal(t, "Depot A", *n.Metadata.StartPoint)
	assert.Equal(t, "Warehouse B", *n.Metadata.EndPoint)
	assert.Equal(t, fixedNow, *n.Metadata.StartTime)
	assert.Nil(t, n.Metadata.DistanceKm, "fields of other types stay unset")
	assert.Nil(t, n.Metadata.Issue)
	assert.Nil(t, n.Metadata.Reason)
}

func TestDispatch_MetadataDoesNotAliasTrip(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", withDriver(testDriverID))

	id, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type: domain.NotificationTripCompleted,
		Trip: trip,
	})
	require.NoError(t, err)

	*trip.Pickup = "changed"
	*trip.EstimatedDistance = 99

	n, err := h.notifications.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Depot A", *n.Metadata.StartPoint)
	assert.Equal(t, 12.5, *n.Metadata.DistanceKm)
	assert.Contains(t, n.Message, "12.5 km")
}

func TestDispatch_IncompleteTripIsRejectedWithoutWrite(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", func(tr *domain.Trip) { tr.Pickup = nil })

	_, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type: domain.NotificationTripStarted,
		Trip: trip,
	})
	require.ErrorIs(t, err, service.ErrIncompleteTrip)
	assert.Contains(t, err.Error(), "pickup")
	assert.Zero(t, h.notifications.CreateCallCount)
}

func TestDispatch_CompletedNeedsDistance(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", func(tr *domain.Trip) { tr.EstimatedDistance = nil })

	err := h.dispatcher.Check(domain.NotificationTripCompleted, trip)
	require.ErrorIs(t, err, service.ErrIncompleteTrip)
	assert.Contains(t, err.Error(), "estimated_distance")
}

func TestDispatch_VehicleIssueNeedsDriver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1")

	_, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type:  domain.NotificationVehicleIssue,
		Trip:  trip,
		Issue: "flat tyre",
	})
	require.ErrorIs(t, err, service.ErrIncompleteTrip)
}

func TestDispatch_PayloadValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", withDriver(testDriverID))
	negative := -1.0

	cases := []struct {
		name string
		ev   service.Event
	}{
		{"unknown type", service.Event{Type: "ride_requested", Trip: trip}},
		{"delay without reason", service.Event{Type: domain.NotificationTripDelayed, Trip: trip, Reason: "  "}},
		{"issue without text", service.Event{Type: domain.NotificationMaintenance, Trip: trip}},
		{"fuel without amount", service.Event{Type: domain.NotificationFuelBillSubmitted, Trip: trip}},
		{"negative fuel", service.Event{Type: domain.NotificationFuelBillSubmitted, Trip: trip, FuelAmount: &negative}},
		{"location update without position", service.Event{Type: domain.NotificationLocationUpdate, Trip: trip}},
		{"zone edge with bad position", service.Event{
			Type: domain.NotificationArrivedAtPickup, Trip: trip,
			Location: &domain.Coordinate{Latitude: 91, Longitude: 0},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.dispatcher.Dispatch(context.Background(), tc.ev)
			assert.ErrorIs(t, err, service.ErrInvalidEvent)
		})
	}
	assert.Zero(t, h.notifications.CreateCallCount)
}

func TestDispatch_StoreFailureIsDispatchError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", withDriver(testDriverID))
	h.notifications.CreateError = errors.New("connection reset")

	_, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type:   domain.NotificationTripDelayed,
		Trip:   trip,
		Reason: "traffic",
	})
	require.ErrorIs(t, err, service.ErrDispatch)

	var de *service.DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.NotificationTripDelayed, de.Type)
	assert.Empty(t, h.notifications.All())
}

func TestDispatch_ExclusiveRecipientsDropTripOwners(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", withDriver(testDriverID))

	id, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type:           domain.NotificationChatMessage,
		Trip:           trip,
		Recipients:     &service.Recipients{DriverID: strPtr(testDriverID), Exclusive: true},
		MessagePreview: "on my way",
	})
	require.NoError(t, err)

	n, err := h.notifications.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, n.FleetManagerID)
	assert.Equal(t, testDriverID, *n.DriverID)
	assert.Equal(t, "New message: on my way", n.Message)
	assert.Equal(t, "on my way", *n.Metadata.MessagePreview)
}

func TestDispatch_RecipientsOverrideOneSlot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", withDriver(testDriverID))

	id, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type:       domain.NotificationTripDelayed,
		Trip:       trip,
		Reason:     "traffic",
		Recipients: &service.Recipients{DriverID: strPtr(testSecondDriver)},
	})
	require.NoError(t, err)

	n, err := h.notifications.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, testManagerID, *n.FleetManagerID, "trip owner kept")
	assert.Equal(t, testSecondDriver, *n.DriverID)
}

func TestDispatch_ZoneEdgeMessageAndMetadata(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	trip := h.seedTrip("trip-1", withDriver(testDriverID))
	at := pickupPoint

	id, err := h.dispatcher.Dispatch(context.Background(), service.Event{
		Type:         domain.NotificationArrivedAtPickup,
		Trip:         trip,
		Location:     &at,
		LocationName: "Depot A",
	})
	require.NoError(t, err)

	n, err := h.notifications.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Vehicle arrived at pickup Depot A", n.Message)
	assert.Equal(t, "Depot A", *n.Metadata.LocationName)
	assert.Equal(t, pickupPoint.Latitude, *n.Metadata.Latitude)
	assert.Equal(t, fixedNow, *n.Metadata.EventTime)
}
