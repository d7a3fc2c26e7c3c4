package tests

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fleetops/internal/domain"
	"fleetops/internal/redis"
	"fleetops/internal/repository"
	"fleetops/internal/storage"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is a mock implementation of TripRepository.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	// Counters
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips: make(map[string]*domain.Trip),
	}
}

// AddTrip adds a trip to the mock repository.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trip
	m.trips[trip.ID] = &cp
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[trip.ID]; ok {
		return nil
	}
	cp := *trip
	m.trips[trip.ID] = &cp
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok || trip.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *trip
	return &cp, nil
}

func (m *MockTripRepository) List(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Trip
	for _, t := range m.trips {
		if t.IsDeleted {
			continue
		}
		if filter.DriverID != nil && !t.HasDriver(*filter.DriverID) {
			continue
		}
		if filter.VehicleID != nil && t.VehicleID != *filter.VehicleID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *MockTripRepository) Update(ctx context.Context, id string, patch domain.TripPatch) (*domain.Trip, error) {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return nil, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[id]
	if !ok || trip.IsDeleted {
		return nil, repository.ErrNotFound
	}
	updated := patch.Apply(*trip)
	updated.UpdatedAt = time.Now().UTC()
	m.trips[id] = &updated
	cp := updated
	return &cp, nil
}

func (m *MockTripRepository) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[id]
	if !ok || trip.IsDeleted {
		return repository.ErrNotFound
	}
	trip.IsDeleted = true
	return nil
}

// GetTrip returns the stored trip, deleted or not (for test assertions).
func (m *MockTripRepository) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// CountTrips returns the number of trips.
func (m *MockTripRepository) CountTrips() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trips)
}

func containsStatus(statuses []domain.TripStatus, s domain.TripStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK NOTIFICATION REPOSITORY
// ──────────────────────────────────────────────

// MockNotificationRepository is a mock implementation of NotificationRepository.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification

	CreateCallCount int32

	// Error injection. When CreateErrorFromCall is set, CreateError only
	// applies from that call onwards (1-based).
	CreateError         error
	CreateErrorFromCall int32
}

// NewMockNotificationRepository creates a new mock notification repository.
func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make(map[string]*domain.Notification),
	}
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	call := atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil && call >= m.CreateErrorFromCall {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MockNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *MockNotificationRepository) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := m.matching(filter)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, filter domain.NotificationFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filter.UnreadOnly = true
	var n int64
	for _, item := range m.matching(filter) {
		m.notifications[item.ID].IsRead = true
		n++
	}
	return n, nil
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context, filter domain.NotificationFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filter.UnreadOnly = true
	return int64(len(m.matching(filter))), nil
}

// matching returns copies of the notifications passing filter, newest first.
// Caller holds the lock.
func (m *MockNotificationRepository) matching(filter domain.NotificationFilter) []*domain.Notification {
	var result []*domain.Notification
	for _, n := range m.notifications {
		if filter.FleetManagerID != nil || filter.DriverID != nil {
			toManager := filter.FleetManagerID != nil && n.FleetManagerID != nil && *n.FleetManagerID == *filter.FleetManagerID
			toDriver := filter.DriverID != nil && n.DriverID != nil && *n.DriverID == *filter.DriverID
			if !toManager && !toDriver {
				continue
			}
		}
		if filter.TripID != nil && (n.TripID == nil || *n.TripID != *filter.TripID) {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		cp := *n
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// All returns every stored notification, newest first.
func (m *MockNotificationRepository) All() []*domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matching(domain.NotificationFilter{})
}

// ByType returns the stored notifications of one type.
func (m *MockNotificationRepository) ByType(typ domain.NotificationType) []*domain.Notification {
	var out []*domain.Notification
	for _, n := range m.All() {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK CHAT REPOSITORY
// ──────────────────────────────────────────────

// MockChatRepository is a mock implementation of ChatRepository.
type MockChatRepository struct {
	mu       sync.RWMutex
	messages map[string]*domain.ChatMessage

	UpdateStatusCallCount int32

	// Error injection
	CreateError error
}

// NewMockChatRepository creates a new mock chat repository.
func NewMockChatRepository() *MockChatRepository {
	return &MockChatRepository{
		messages: make(map[string]*domain.ChatMessage),
	}
}

func (m *MockChatRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	if msg.Attachment != nil {
		// Only the key and MIME type are persisted.
		cp.Attachment = &domain.Attachment{Key: msg.Attachment.Key, MIMEType: msg.Attachment.MIMEType}
	}
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MockChatRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok || msg.IsDeleted {
		return nil, repository.ErrNotFound
	}
	return copyMessage(msg), nil
}

func (m *MockChatRepository) Conversation(ctx context.Context, userA, userB string, limit int) ([]*domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.ChatMessage
	for _, msg := range m.messages {
		if msg.IsDeleted {
			continue
		}
		between := (msg.SenderID == userA && msg.RecipientID == userB) ||
			(msg.SenderID == userB && msg.RecipientID == userA)
		if between {
			result = append(result, copyMessage(msg))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (m *MockChatRepository) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.IsDeleted {
		return repository.ErrNotFound
	}
	msg.Status = status
	return nil
}

func (m *MockChatRepository) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.IsDeleted {
		return repository.ErrNotFound
	}
	msg.IsDeleted = true
	return nil
}

// GetMessage returns the stored message, deleted or not (for test assertions).
func (m *MockChatRepository) GetMessage(id string) *domain.ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil
	}
	return copyMessage(msg)
}

func copyMessage(msg *domain.ChatMessage) *domain.ChatMessage {
	cp := *msg
	if msg.Attachment != nil {
		a := *msg.Attachment
		cp.Attachment = &a
	}
	return &cp
}

// ──────────────────────────────────────────────
// MOCK BLOB STORE
// ──────────────────────────────────────────────

// MockBlobStore is an in-memory BlobStore.
type MockBlobStore struct {
	mu      sync.RWMutex
	buckets map[string]storage.BucketConfig
	objects map[string][]byte

	// Counters
	CreateBucketCallCount int32
	PutCallCount          int32
	SignCallCount         int32

	// Error injection
	BucketExistsError error
	CreateBucketError error
	PutError          error
}

// NewMockBlobStore creates a new mock blob store.
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		buckets: make(map[string]storage.BucketConfig),
		objects: make(map[string][]byte),
	}
}

func (m *MockBlobStore) BucketExists(ctx context.Context, bucket string) error {
	if m.BucketExistsError != nil {
		return m.BucketExistsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.buckets[bucket]; !ok {
		return storage.ErrBucketNotFound
	}
	return nil
}

func (m *MockBlobStore) CreateBucket(ctx context.Context, bucket string, cfg storage.BucketConfig) error {
	atomic.AddInt32(&m.CreateBucketCallCount, 1)
	if m.CreateBucketError != nil {
		return m.CreateBucketError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = cfg
	return nil
}

func (m *MockBlobStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string, meta map[string]string) error {
	atomic.AddInt32(&m.PutCallCount, 1)
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.buckets[bucket]; ok && !cfg.Allows(int64(len(data)), contentType) {
		return storage.ErrObjectRejected
	}
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (m *MockBlobStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[bucket+"/"+key]
	return ok, nil
}

func (m *MockBlobStore) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	atomic.AddInt32(&m.SignCallCount, 1)
	return "https://blobs.test/" + bucket + "/" + key + "?ttl=" + ttl.String(), nil
}

// Delete removes an object (simulates out-of-band deletion).
func (m *MockBlobStore) Delete(bucket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
}

// CountObjects returns the number of stored objects.
func (m *MockBlobStore) CountObjects() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// ──────────────────────────────────────────────
// MOCK ZONE STORE
// ──────────────────────────────────────────────

// MockZoneStore is an in-memory ZoneStoreInterface using great-circle distance.
type MockZoneStore struct {
	mu     sync.RWMutex
	zones  map[string][]redis.Zone
	inside map[string][]string

	// Error injection
	MarkError error
}

// NewMockZoneStore creates a new mock zone store.
func NewMockZoneStore() *MockZoneStore {
	return &MockZoneStore{
		zones:  make(map[string][]redis.Zone),
		inside: make(map[string][]string),
	}
}

func (m *MockZoneStore) PutZones(ctx context.Context, tripID string, zones []redis.Zone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[tripID] = append([]redis.Zone(nil), zones...)
	return nil
}

func (m *MockZoneStore) ZonesNear(ctx context.Context, tripID string, lat, lng, radiusMeters float64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, z := range m.zones[tripID] {
		if haversineMeters(lat, lng, z.Lat, z.Lng) <= radiusMeters {
			names = append(names, z.Name)
		}
	}
	return names, nil
}

func (m *MockZoneStore) Inside(ctx context.Context, tripID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.inside[tripID]...), nil
}

func (m *MockZoneStore) Enter(ctx context.Context, tripID, zone string) error {
	if m.MarkError != nil {
		return m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, z := range m.inside[tripID] {
		if z == zone {
			return nil
		}
	}
	m.inside[tripID] = append(m.inside[tripID], zone)
	return nil
}

func (m *MockZoneStore) Leave(ctx context.Context, tripID, zone string) error {
	if m.MarkError != nil {
		return m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.inside[tripID][:0:0]
	for _, z := range m.inside[tripID] {
		if z != zone {
			kept = append(kept, z)
		}
	}
	m.inside[tripID] = kept
	return nil
}

func (m *MockZoneStore) Clear(ctx context.Context, tripID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.zones, tripID)
	delete(m.inside, tripID)
	return nil
}

// HasState reports whether any zone or inside state is kept for the trip.
func (m *MockZoneStore) HasState(tripID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, z := m.zones[tripID]
	_, in := m.inside[tripID]
	return z || in
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadius = 6372797.560856 // meters, as used by Redis GEO
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}

// ──────────────────────────────────────────────
// MOCK FINGERPRINT INDEX
// ──────────────────────────────────────────────

// MockFingerprintIndex is an in-memory FingerprintIndexInterface.
type MockFingerprintIndex struct {
	mu   sync.Mutex
	keys map[string]string

	ReleaseCallCount int32
}

// NewMockFingerprintIndex creates a new mock fingerprint index.
func NewMockFingerprintIndex() *MockFingerprintIndex {
	return &MockFingerprintIndex{keys: make(map[string]string)}
}

func (m *MockFingerprintIndex) Claim(ctx context.Context, fingerprint, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[fingerprint]; ok {
		return existing, false, nil
	}
	m.keys[fingerprint] = key
	return key, true, nil
}

func (m *MockFingerprintIndex) Release(ctx context.Context, fingerprint string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, fingerprint)
	return nil
}

// Ensure mocks implement the interfaces.
var (
	_ repository.TripRepository         = (*MockTripRepository)(nil)
	_ repository.NotificationRepository = (*MockNotificationRepository)(nil)
	_ repository.ChatRepository         = (*MockChatRepository)(nil)
	_ storage.BlobStore                 = (*MockBlobStore)(nil)
	_ redis.ZoneStoreInterface          = (*MockZoneStore)(nil)
	_ redis.FingerprintIndexInterface   = (*MockFingerprintIndex)(nil)
)
