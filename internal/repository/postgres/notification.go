package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
	"fleetops/internal/timeparse"
)

const notificationColumns = `
	id, type, message, metadata, created_at::text, is_read,
	trip_id, vehicle_id, driver_id, fleet_manager_id`

// NotificationRepository is a PostgreSQL implementation of
// repository.NotificationRepository.
type NotificationRepository struct {
	q     Querier
	retry Retrier
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new PostgreSQL notification repository.
func NewNotificationRepository(q Querier, retry Retrier) *NotificationRepository {
	return &NotificationRepository{q: q, retry: retry}
}

// Create inserts the notification in a single statement. The id is chosen by
// the caller, so a retried insert that already landed is a no-op.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, type, message, metadata, created_at, is_read, trip_id, vehicle_id, driver_id, fleet_manager_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	var metadata sql.NullString
	if n.Metadata != nil {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("encode notification metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = utcNow()
	}

	return r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.q.ExecContext(ctx, query,
			n.ID,
			n.Type,
			n.Message,
			metadata,
			n.CreatedAt,
			n.IsRead,
			nullString(n.TripID),
			nullString(n.VehicleID),
			nullString(n.DriverID),
			nullString(n.FleetManagerID),
		)
		return err
	})
}

// GetByID retrieves a notification by ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	var n *domain.Notification
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = scanNotification(r.q.QueryRowContext(ctx, query, id))
		return err
	})
	if err != nil {
		if isMissing(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// List retrieves notifications matching the filter, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error) {
	where, args := notificationWhere(filter)
	query := `SELECT ` + notificationColumns + ` FROM notifications` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var out []*domain.Notification
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead flips is_read for one notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1`

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

// MarkAllRead flips is_read for every unread notification matching the filter.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, filter domain.NotificationFilter) (int64, error) {
	filter.UnreadOnly = true
	where, args := notificationWhere(filter)
	query := `UPDATE notifications SET is_read = TRUE` + where

	var rowsAffected int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.q.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rowsAffected, err = result.RowsAffected()
		return err
	})
	return rowsAffected, err
}

// CountUnread counts unread notifications matching the filter.
func (r *NotificationRepository) CountUnread(ctx context.Context, filter domain.NotificationFilter) (int64, error) {
	filter.UnreadOnly = true
	where, args := notificationWhere(filter)
	query := `SELECT COUNT(*) FROM notifications` + where

	var count int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		return r.q.QueryRowContext(ctx, query, args...).Scan(&count)
	})
	return count, err
}

// notificationWhere builds the WHERE clause for a filter. The recipient
// columns are OR-ed so a user sees notifications addressed to any of them.
func notificationWhere(filter domain.NotificationFilter) (string, []any) {
	var where []string
	var args []any

	var recipients []string
	if filter.FleetManagerID != nil {
		args = append(args, *filter.FleetManagerID)
		recipients = append(recipients, fmt.Sprintf("fleet_manager_id = $%d", len(args)))
	}
	if filter.DriverID != nil {
		args = append(args, *filter.DriverID)
		recipients = append(recipients, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if len(recipients) > 0 {
		where = append(where, "("+strings.Join(recipients, " OR ")+")")
	}
	if filter.TripID != nil {
		args = append(args, *filter.TripID)
		where = append(where, fmt.Sprintf("trip_id = $%d", len(args)))
	}
	if filter.UnreadOnly {
		where = append(where, "is_read = FALSE")
	}

	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		notification             domain.Notification
		metadata                 []byte
		createdAt                string
		tripID, vehicleID        sql.NullString
		driverID, fleetManagerID sql.NullString
	)

	err := row.Scan(
		&notification.ID,
		&notification.Type,
		&notification.Message,
		&metadata,
		&createdAt,
		&notification.IsRead,
		&tripID,
		&vehicleID,
		&driverID,
		&fleetManagerID,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		var md domain.Metadata
		if err := json.Unmarshal(metadata, &md); err != nil {
			return nil, fmt.Errorf("notification %s metadata: %w", notification.ID, err)
		}
		notification.Metadata = &md
	}
	if notification.CreatedAt, err = timeparse.Parse(createdAt); err != nil {
		return nil, fmt.Errorf("notification %s created_at: %w", notification.ID, err)
	}
	notification.TripID = stringPtr(tripID)
	notification.VehicleID = stringPtr(vehicleID)
	notification.DriverID = stringPtr(driverID)
	notification.FleetManagerID = stringPtr(fleetManagerID)

	return &notification, nil
}
