package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Zone is the centre of a circular geofence.
type Zone struct {
	Name string
	Lat  float64
	Lng  float64
}

// ZoneStore keeps per-trip geofence centres in a GEO set and remembers which
// zones the vehicle was last seen inside.
type ZoneStore struct {
	client redis.Cmdable
}

// NewZoneStore creates a new ZoneStore.
func NewZoneStore(client redis.Cmdable) *ZoneStore {
	return &ZoneStore{client: client}
}

func zonesKey(tripID string) string  { return fmt.Sprintf("geofence:%s:zones", tripID) }
func insideKey(tripID string) string { return fmt.Sprintf("geofence:%s:inside", tripID) }

// PutZones stores zone centres using GEOADD. Existing zones with the same
// name are moved.
func (s *ZoneStore) PutZones(ctx context.Context, tripID string, zones []Zone) error {
	if len(zones) == 0 {
		return nil
	}
	locations := make([]*redis.GeoLocation, 0, len(zones))
	for _, z := range zones {
		locations = append(locations, &redis.GeoLocation{
			Name:      z.Name,
			Longitude: z.Lng,
			Latitude:  z.Lat,
		})
	}
	return s.client.GeoAdd(ctx, zonesKey(tripID), locations...).Err()
}

// ZonesNear returns the names of the trip's zones whose centre lies within
// radiusMeters of the point, nearest first.
func (s *ZoneStore) ZonesNear(ctx context.Context, tripID string, lat, lng, radiusMeters float64) ([]string, error) {
	results, err := s.client.GeoRadius(ctx, zonesKey(tripID), lng, lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters,
		Unit:   "m",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	return names, nil
}

// Inside returns the zones recorded by the previous report.
func (s *ZoneStore) Inside(ctx context.Context, tripID string) ([]string, error) {
	return s.client.SMembers(ctx, insideKey(tripID)).Result()
}

// Enter records that the vehicle is inside zone.
func (s *ZoneStore) Enter(ctx context.Context, tripID, zone string) error {
	return s.client.SAdd(ctx, insideKey(tripID), zone).Err()
}

// Leave records that the vehicle is no longer inside zone.
func (s *ZoneStore) Leave(ctx context.Context, tripID, zone string) error {
	return s.client.SRem(ctx, insideKey(tripID), zone).Err()
}

// Clear forgets everything known about a trip's zones.
func (s *ZoneStore) Clear(ctx context.Context, tripID string) error {
	return s.client.Del(ctx, zonesKey(tripID), insideKey(tripID)).Err()
}
