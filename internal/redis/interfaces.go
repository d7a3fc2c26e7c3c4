package redis

import (
	"context"
)

// ZoneStoreInterface defines the geofence zone operations.
type ZoneStoreInterface interface {
	PutZones(ctx context.Context, tripID string, zones []Zone) error
	ZonesNear(ctx context.Context, tripID string, lat, lng, radiusMeters float64) ([]string, error)
	Inside(ctx context.Context, tripID string) ([]string, error)
	Enter(ctx context.Context, tripID, zone string) error
	Leave(ctx context.Context, tripID, zone string) error
	Clear(ctx context.Context, tripID string) error
}

// FingerprintIndexInterface maps content fingerprints to blob keys.
type FingerprintIndexInterface interface {
	Claim(ctx context.Context, fingerprint, key string) (string, bool, error)
	Release(ctx context.Context, fingerprint string) error
}

// Ensure concrete types implement interfaces.
var (
	_ ZoneStoreInterface        = (*ZoneStore)(nil)
	_ FingerprintIndexInterface = (*FingerprintIndex)(nil)
)
