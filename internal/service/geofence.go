package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"fleetops/internal/domain"
	"fleetops/internal/redis"
)

// Zone names stored in the zone index.
const (
	ZonePickup  = "pickup"
	ZoneDropoff = "dropoff"
)

var zoneEdges = map[string]struct{ arrived, left domain.NotificationType }{
	ZonePickup:  {domain.NotificationArrivedAtPickup, domain.NotificationLeftPickup},
	ZoneDropoff: {domain.NotificationArrivedAtDropoff, domain.NotificationLeftDropoff},
}

// GeofenceService turns position reports into arrival and departure
// notifications for the circular zones around a trip's pickup and dropoff.
type GeofenceService struct {
	trips        *TripService
	zones        redis.ZoneStoreInterface
	dispatcher   *Dispatcher
	radiusMeters float64
	log          logrus.FieldLogger
}

// NewGeofenceService creates a new GeofenceService.
func NewGeofenceService(
	trips *TripService,
	zones redis.ZoneStoreInterface,
	dispatcher *Dispatcher,
	radiusMeters float64,
	log logrus.FieldLogger,
) *GeofenceService {
	return &GeofenceService{
		trips:        trips,
		zones:        zones,
		dispatcher:   dispatcher,
		radiusMeters: radiusMeters,
		log:          log,
	}
}

// LocationReport is one position of the vehicle on a trip.
type LocationReport struct {
	TripID   string
	Actor    domain.Identity
	Location domain.Coordinate
	// Share also dispatches a location_update notification.
	Share bool
}

// LocationResult lists the zone edges crossed by a report.
type LocationResult struct {
	Entered         []string
	Left            []string
	NotificationIDs []string
}

// ReportLocation compares the zones containing the reported point with
// those recorded for the previous report and dispatches one notification per
// edge. Each edge is recorded as soon as its notification is stored, so a
// report that fails midway re-fires only the edges it did not deliver.
func (s *GeofenceService) ReportLocation(ctx context.Context, report LocationReport) (*LocationResult, error) {
	if !report.Location.Valid() {
		return nil, ErrInvalidLocation
	}

	trip, err := s.trips.GetTrip(ctx, report.TripID, DriverScope(report.Actor))
	if err != nil {
		return nil, err
	}
	if trip.Status != domain.TripStatusAssigned && trip.Status != domain.TripStatusInProgress {
		return nil, fmt.Errorf("%w: status %s", ErrTripNotActive, trip.Status)
	}

	defined := tripZones(trip)
	result := &LocationResult{}

	if len(defined) > 0 {
		if err := s.zones.PutZones(ctx, trip.ID, defined); err != nil {
			return nil, fmt.Errorf("store zones: %w", err)
		}

		near, err := s.zones.ZonesNear(ctx, trip.ID, report.Location.Latitude, report.Location.Longitude, s.radiusMeters)
		if err != nil {
			return nil, fmt.Errorf("query zones: %w", err)
		}
		previous, err := s.zones.Inside(ctx, trip.ID)
		if err != nil {
			return nil, fmt.Errorf("load zone state: %w", err)
		}

		nowIn := toSet(near)
		wasIn := toSet(previous)

		for _, z := range defined {
			_, in := nowIn[z.Name]
			_, was := wasIn[z.Name]
			var typ domain.NotificationType
			switch {
			case in && !was:
				typ = zoneEdges[z.Name].arrived
			case !in && was:
				typ = zoneEdges[z.Name].left
			default:
				continue
			}

			id, err := s.dispatcher.Dispatch(ctx, Event{
				Type:         typ,
				Trip:         trip,
				Recipients:   actorRecipients(report.Actor),
				Location:     &report.Location,
				LocationName: zoneLabel(trip, z.Name),
			})
			if err != nil {
				return nil, err
			}
			result.NotificationIDs = append(result.NotificationIDs, id)

			if in {
				err = s.zones.Enter(ctx, trip.ID, z.Name)
				result.Entered = append(result.Entered, z.Name)
			} else {
				err = s.zones.Leave(ctx, trip.ID, z.Name)
				result.Left = append(result.Left, z.Name)
			}
			if err != nil {
				return nil, fmt.Errorf("save zone state: %w", err)
			}
		}
	}

	if report.Share {
		id, err := s.dispatcher.Dispatch(ctx, Event{
			Type:       domain.NotificationLocationUpdate,
			Trip:       trip,
			Recipients: actorRecipients(report.Actor),
			Location:   &report.Location,
		})
		if err != nil {
			return nil, err
		}
		result.NotificationIDs = append(result.NotificationIDs, id)
	}

	if len(result.Entered)+len(result.Left) > 0 {
		s.log.WithFields(logrus.Fields{
			"trip_id": trip.ID,
			"entered": result.Entered,
			"left":    result.Left,
		}).Info("geofence edges crossed")
	}

	return result, nil
}

// tripZones returns the zones defined by the trip's coordinates, pickup first.
func tripZones(trip *domain.Trip) []redis.Zone {
	var zones []redis.Zone
	if c := trip.StartLocation; c != nil {
		zones = append(zones, redis.Zone{Name: ZonePickup, Lat: c.Latitude, Lng: c.Longitude})
	}
	if c := trip.EndLocation; c != nil {
		zones = append(zones, redis.Zone{Name: ZoneDropoff, Lat: c.Latitude, Lng: c.Longitude})
	}
	return zones
}

func zoneLabel(trip *domain.Trip, zone string) string {
	if zone == ZonePickup {
		return strValue(trip.Pickup)
	}
	return trip.Destination
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
