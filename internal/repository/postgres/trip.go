package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
	"fleetops/internal/timeparse"
)

// Timestamps are selected as text and parsed by timeparse so that every
// serialization the store has produced reads back the same way.
const tripColumns = `
	id, destination, pickup, notes, trip_status,
	has_completed_pre_trip, has_completed_post_trip,
	vehicle_id, driver_id, secondary_driver_id, fleet_manager_id,
	start_time::text, end_time::text,
	start_latitude, start_longitude, end_latitude, end_longitude,
	estimated_distance, estimated_time,
	created_at::text, updated_at::text, is_deleted`

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q     Querier
	retry Retrier
}

var _ repository.TripRepository = (*TripRepository)(nil)

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(q Querier, retry Retrier) *TripRepository {
	return &TripRepository{q: q, retry: retry}
}

// Create persists a new trip. Replaying the same trip is a no-op.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (
			id, destination, pickup, notes, trip_status,
			has_completed_pre_trip, has_completed_post_trip,
			vehicle_id, driver_id, secondary_driver_id, fleet_manager_id,
			start_time, end_time,
			start_latitude, start_longitude, end_latitude, end_longitude,
			estimated_distance, estimated_time,
			created_at, updated_at, is_deleted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, FALSE)
		ON CONFLICT (id) DO NOTHING
	`

	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = utcNow()
	}
	if trip.UpdatedAt.IsZero() {
		trip.UpdatedAt = trip.CreatedAt
	}

	startLat, startLng := splitCoordinate(trip.StartLocation)
	endLat, endLng := splitCoordinate(trip.EndLocation)

	return r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.q.ExecContext(ctx, query,
			trip.ID,
			trip.Destination,
			nullString(trip.Pickup),
			nullString(trip.Notes),
			trip.Status,
			trip.HasCompletedPreTrip,
			trip.HasCompletedPostTrip,
			trip.VehicleID,
			nullString(trip.DriverID),
			nullString(trip.SecondaryDriverID),
			nullString(trip.FleetManagerID),
			nullTime(trip.StartTime),
			nullTime(trip.EndTime),
			startLat, startLng, endLat, endLng,
			nullFloat(trip.EstimatedDistance),
			nullFloat(trip.EstimatedTime),
			trip.CreatedAt,
			trip.UpdatedAt,
		)
		return err
	})
}

// GetByID retrieves a non-deleted trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 AND is_deleted = FALSE`

	var trip *domain.Trip
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		trip, err = scanTrip(r.q.QueryRowContext(ctx, query, id))
		return err
	})
	if err != nil {
		if isMissing(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// List retrieves the non-deleted trips matching the filter, newest first.
func (r *TripRepository) List(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error) {
	where := []string{"is_deleted = FALSE"}
	var args []any

	if filter.DriverID != nil {
		args = append(args, *filter.DriverID)
		where = append(where, fmt.Sprintf("(driver_id = $%d OR secondary_driver_id = $%d)", len(args), len(args)))
	}
	if filter.VehicleID != nil {
		args = append(args, *filter.VehicleID)
		where = append(where, fmt.Sprintf("vehicle_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("trip_status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + tripColumns + ` FROM trips WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id`

	var trips []*domain.Trip
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		trips = trips[:0]
		for rows.Next() {
			trip, err := scanTrip(rows)
			if err != nil {
				return err
			}
			trips = append(trips, trip)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return trips, nil
}

// Update applies the present fields of the patch and returns the stored trip.
// updated_at never moves backwards.
func (r *TripRepository) Update(ctx context.Context, id string, patch domain.TripPatch) (*domain.Trip, error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Destination != nil {
		set("destination", *patch.Destination)
	}
	if patch.Pickup != nil {
		set("pickup", *patch.Pickup)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Status != nil {
		set("trip_status", string(*patch.Status))
	}
	if patch.HasCompletedPreTrip != nil {
		set("has_completed_pre_trip", *patch.HasCompletedPreTrip)
	}
	if patch.HasCompletedPostTrip != nil {
		set("has_completed_post_trip", *patch.HasCompletedPostTrip)
	}
	if patch.VehicleID != nil {
		set("vehicle_id", *patch.VehicleID)
	}
	if patch.DriverID != nil {
		set("driver_id", *patch.DriverID)
	}
	if patch.SecondaryDriverID != nil {
		set("secondary_driver_id", *patch.SecondaryDriverID)
	}
	if patch.StartTime != nil {
		set("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		set("end_time", *patch.EndTime)
	}
	if patch.StartLocation != nil {
		set("start_latitude", patch.StartLocation.Latitude)
		set("start_longitude", patch.StartLocation.Longitude)
	}
	if patch.EndLocation != nil {
		set("end_latitude", patch.EndLocation.Latitude)
		set("end_longitude", patch.EndLocation.Longitude)
	}
	if patch.EstimatedDistance != nil {
		set("estimated_distance", *patch.EstimatedDistance)
	}
	if patch.EstimatedTime != nil {
		set("estimated_time", *patch.EstimatedTime)
	}
	sets = append(sets, "updated_at = GREATEST(updated_at, now())")

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE trips SET %s
		WHERE id = $%d AND is_deleted = FALSE
		RETURNING %s`, strings.Join(sets, ", "), len(args), tripColumns)

	var trip *domain.Trip
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		trip, err = scanTrip(r.q.QueryRowContext(ctx, query, args...))
		return err
	})
	if err != nil {
		if isMissing(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// SoftDelete marks a trip as deleted.
func (r *TripRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE trips
		SET is_deleted = TRUE, updated_at = GREATEST(updated_at, now())
		WHERE id = $1 AND is_deleted = FALSE
	`

	var rowsAffected int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.q.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		rowsAffected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if isMissing(err) {
			return repository.ErrNotFound
		}
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var (
		trip                                      domain.Trip
		pickup, notes                             sql.NullString
		driverID, secondaryDriverID, fleetManager sql.NullString
		startTime, endTime                        sql.NullString
		startLat, startLng, endLat, endLng        sql.NullFloat64
		estimatedDistance, estimatedTime          sql.NullFloat64
		createdAt, updatedAt                      string
	)

	err := row.Scan(
		&trip.ID,
		&trip.Destination,
		&pickup,
		&notes,
		&trip.Status,
		&trip.HasCompletedPreTrip,
		&trip.HasCompletedPostTrip,
		&trip.VehicleID,
		&driverID,
		&secondaryDriverID,
		&fleetManager,
		&startTime,
		&endTime,
		&startLat, &startLng, &endLat, &endLng,
		&estimatedDistance,
		&estimatedTime,
		&createdAt,
		&updatedAt,
		&trip.IsDeleted,
	)
	if err != nil {
		return nil, err
	}

	trip.Pickup = stringPtr(pickup)
	trip.Notes = stringPtr(notes)
	trip.DriverID = stringPtr(driverID)
	trip.SecondaryDriverID = stringPtr(secondaryDriverID)
	trip.FleetManagerID = stringPtr(fleetManager)
	trip.StartLocation = joinCoordinate(startLat, startLng)
	trip.EndLocation = joinCoordinate(endLat, endLng)
	trip.EstimatedDistance = floatPtr(estimatedDistance)
	trip.EstimatedTime = floatPtr(estimatedTime)

	if trip.StartTime, err = timeparse.ParseOptional(stringPtr(startTime), timeparse.ParseTrip); err != nil {
		return nil, fmt.Errorf("trip %s start_time: %w", trip.ID, err)
	}
	if trip.EndTime, err = timeparse.ParseOptional(stringPtr(endTime), timeparse.ParseTrip); err != nil {
		return nil, fmt.Errorf("trip %s end_time: %w", trip.ID, err)
	}
	if trip.CreatedAt, err = timeparse.ParseTrip(createdAt); err != nil {
		return nil, fmt.Errorf("trip %s created_at: %w", trip.ID, err)
	}
	if trip.UpdatedAt, err = timeparse.ParseTrip(updatedAt); err != nil {
		return nil, fmt.Errorf("trip %s updated_at: %w", trip.ID, err)
	}

	return &trip, nil
}

func splitCoordinate(c *domain.Coordinate) (lat, lng sql.NullFloat64) {
	if c == nil {
		return
	}
	return sql.NullFloat64{Float64: c.Latitude, Valid: true}, sql.NullFloat64{Float64: c.Longitude, Valid: true}
}

// joinCoordinate needs both halves; a half-set pair reads as absent.
func joinCoordinate(lat, lng sql.NullFloat64) *domain.Coordinate {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &domain.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64}
}

// utcNow is the creation clock for rows written by this package.
var utcNow = func() time.Time { return time.Now().UTC() }
