package tests

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetops/internal/domain"
	"fleetops/internal/imaging"
	"fleetops/internal/logger"
	"fleetops/internal/service"
)

const (
	testBucket       = "chat-attachments"
	geofenceRadiusM  = 150
	testManagerID    = "manager-1"
	testDriverID     = "driver-1"
	testOtherDriver  = "driver-2"
	testSecondDriver = "driver-3"
)

var (
	fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	manager     = domain.Identity{UserID: testManagerID, Role: domain.RoleFleetManager}
	driver      = domain.Identity{UserID: testDriverID, Role: domain.RoleDriver}
	otherDriver = domain.Identity{UserID: testOtherDriver, Role: domain.RoleDriver}

	pickupPoint  = domain.Coordinate{Latitude: 52.5200, Longitude: 13.4050}
	dropoffPoint = domain.Coordinate{Latitude: 52.5300, Longitude: 13.4500}
	farAway      = domain.Coordinate{Latitude: 52.6000, Longitude: 13.3000}
)

// harness wires every service against in-memory collaborators.
type harness struct {
	trips         *MockTripRepository
	notifications *MockNotificationRepository
	chat          *MockChatRepository
	blobs         *MockBlobStore
	zones         *MockZoneStore
	fingerprints  *MockFingerprintIndex

	dispatcher          *service.Dispatcher
	tripService         *service.TripService
	operations          *service.OperationsService
	geofence            *service.GeofenceService
	notificationService *service.NotificationService
	attachments         *service.AttachmentProvisioner
	chatService         *service.ChatService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logger.Discard()
	clock := func() time.Time { return fixedNow }

	h := &harness{
		trips:         NewMockTripRepository(),
		notifications: NewMockNotificationRepository(),
		chat:          NewMockChatRepository(),
		blobs:         NewMockBlobStore(),
		zones:         NewMockZoneStore(),
		fingerprints:  NewMockFingerprintIndex(),
	}
	h.dispatcher = service.NewDispatcher(h.notifications, log, clock)
	h.tripService = service.NewTripService(h.trips, h.dispatcher, log, clock).WithZoneCleanup(h.zones)
	h.operations = service.NewOperationsService(h.tripService, h.notifications, h.dispatcher)
	h.geofence = service.NewGeofenceService(h.tripService, h.zones, h.dispatcher, geofenceRadiusM, log)
	h.notificationService = service.NewNotificationService(h.notifications, log)
	h.attachments = service.NewAttachmentProvisioner(
		h.blobs, h.fingerprints, imaging.NewCompressor(0), testBucket, 0, log,
	)
	h.chatService = service.NewChatService(h.chat, h.tripService, h.attachments, h.dispatcher, log, clock)
	return h
}

// seedTrip stores a pending trip owned by the test manager with both zones
// defined. Mutators adjust it before it is stored.
func (h *harness) seedTrip(id string, mutators ...func(*domain.Trip)) *domain.Trip {
	pickup := "Depot A"
	manager := testManagerID
	distance := 12.5
	start, end := pickupPoint, dropoffPoint

	trip := &domain.Trip{
		ID:                id,
		Destination:       "Warehouse B",
		Pickup:            &pickup,
		Status:            domain.TripStatusPending,
		VehicleID:         "truck-7",
		FleetManagerID:    &manager,
		StartLocation:     &start,
		EndLocation:       &end,
		EstimatedDistance: &distance,
		CreatedAt:         fixedNow,
		UpdatedAt:         fixedNow,
	}
	for _, m := range mutators {
		m(trip)
	}
	h.trips.AddTrip(trip)
	return trip
}

func withStatus(s domain.TripStatus) func(*domain.Trip) {
	return func(t *domain.Trip) { t.Status = s }
}

func withDriver(id string) func(*domain.Trip) {
	return func(t *domain.Trip) { t.DriverID = &id }
}

func withPreTrip(t *domain.Trip)  { t.HasCompletedPreTrip = true }
func withPostTrip(t *domain.Trip) { t.HasCompletedPostTrip = true }

func strPtr(s string) *string { return &s }

// pngImage returns an encoded w x h PNG with a simple gradient.
func pngImage(t *testing.T, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x) + seed, G: uint8(y), B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// hugePNG returns a 1x1 PNG whose header declares w x h.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngImage(t, 1, 1, 0)
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}
