package tests

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/domain"
	"fleetops/internal/service"
)

// ──────────────────────────────────────────────
// 8. END TO END
// ──────────────────────────────────────────────

func TestScenario_DeliveryDay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	trip, err := h.tripService.CreateTrip(ctx, service.CreateTripRequest{
		Destination:       "Warehouse B",
		Pickup:            strPtr("Depot A"),
		VehicleID:         "truck-7",
		FleetManagerID:    strPtr(testManagerID),
		StartLocation:     &pickupPoint,
		EndLocation:       &dropoffPoint,
		EstimatedDistance: ptrFloat(12.5),
	})
	require.NoError(t, err)

	_, err = h.tripService.AssignTrip(ctx, trip.ID, service.AssignTripRequest{DriverID: testDriverID})
	require.NoError(t, err)

	_, err = h.operations.ReportInspectionIssue(ctx, driver, trip.ID, service.InspectionPre, "wiper worn")
	require.NoError(t, err)
	_, err = h.tripService.CompletePreTripInspection(ctx, trip.ID)
	require.NoError(t, err)
	_, err = h.tripService.StartTrip(ctx, trip.ID)
	require.NoError(t, err)

	_, err = h.geofence.ReportLocation(ctx, service.LocationReport{TripID: trip.ID, Actor: driver, Location: pickupPoint})
	require.NoError(t, err)
	_, err = h.geofence.ReportLocation(ctx, service.LocationReport{TripID: trip.ID, Actor: driver, Location: farAway, Share: true})
	require.NoError(t, err)

	_, err = h.operations.SubmitFuelBill(ctx, driver, trip.ID, 61.3)
	require.NoError(t, err)

	_, err = h.chatService.SendMessage(ctx, service.SendMessageRequest{
		Sender:      driver,
		RecipientID: testManagerID,
		TripID:      &trip.ID,
		Text:        strPtr("receipt attached"),
		Image:       bytes.NewReader(pngImage(t, 24, 24, 4)),
	})
	require.NoError(t, err)

	_, err = h.geofence.ReportLocation(ctx, service.LocationReport{TripID: trip.ID, Actor: driver, Location: dropoffPoint})
	require.NoError(t, err)
	_, err = h.tripService.CompletePostTripInspection(ctx, trip.ID)
	require.NoError(t, err)
	done, err := h.tripService.CompleteTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusDelivered, done.Status)

	var types []domain.NotificationType
	for _, n := range h.notifications.All() {
		types = append(types, n.Type)
	}
	assert.ElementsMatch(t, []domain.NotificationType{
		domain.NotificationPreInspectionIssue,
		domain.NotificationTripStarted,
		domain.NotificationArrivedAtPickup,
		domain.NotificationLeftPickup,
		domain.NotificationLocationUpdate,
		domain.NotificationFuelBillSubmitted,
		domain.NotificationChatMessage,
		domain.NotificationArrivedAtDropoff,
		domain.NotificationTripCompleted,
	}, types)

	managerUnread, err := h.notificationService.UnreadCount(ctx, service.InboxFilter(manager))
	require.NoError(t, err)
	assert.Equal(t, int64(9), managerUnread)

	driverUnread, err := h.notificationService.UnreadCount(ctx, service.InboxFilter(driver))
	require.NoError(t, err)
	assert.Equal(t, int64(8), driverUnread, "the chat message only reaches the manager")

	overview, err := h.tripService.Overview(ctx, service.DriverScope(driver))
	require.NoError(t, err)
	assert.Nil(t, overview.Current)
	require.Len(t, overview.Completed, 1)
	assert.False(t, h.zones.HasState(trip.ID))
}

func ptrFloat(f float64) *float64 { return &f }
