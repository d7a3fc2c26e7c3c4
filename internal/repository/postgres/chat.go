package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"fleetops/internal/domain"
	"fleetops/internal/repository"
	"fleetops/internal/timeparse"
)

const chatColumns = `
	id, sender_id, sender_role, recipient_id, recipient_role, trip_id,
	message_text, attachment_key, attachment_mime_type, status,
	created_at::text, updated_at::text, is_deleted`

// ChatRepository is a PostgreSQL implementation of repository.ChatRepository.
type ChatRepository struct {
	q     Querier
	retry Retrier
}

var _ repository.ChatRepository = (*ChatRepository)(nil)

// NewChatRepository creates a new PostgreSQL chat repository.
func NewChatRepository(q Querier, retry Retrier) *ChatRepository {
	return &ChatRepository{q: q, retry: retry}
}

// Create persists a new message. Only the attachment key and MIME type are
// stored.
func (r *ChatRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (
			id, sender_id, sender_role, recipient_id, recipient_role, trip_id,
			message_text, attachment_key, attachment_mime_type, status,
			created_at, updated_at, is_deleted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE)
		ON CONFLICT (id) DO NOTHING
	`

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = utcNow()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}

	var key, mimeType sql.NullString
	if msg.Attachment != nil {
		key = sql.NullString{String: msg.Attachment.Key, Valid: true}
		mimeType = sql.NullString{String: msg.Attachment.MIMEType, Valid: true}
	}

	return r.retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.q.ExecContext(ctx, query,
			msg.ID,
			msg.SenderID,
			msg.SenderRole,
			msg.RecipientID,
			msg.RecipientRole,
			nullString(msg.TripID),
			nullString(msg.Text),
			key,
			mimeType,
			msg.Status,
			msg.CreatedAt,
			msg.UpdatedAt,
		)
		return err
	})
}

// GetByID retrieves a non-deleted message by ID.
func (r *ChatRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	query := `SELECT ` + chatColumns + ` FROM chat_messages WHERE id = $1 AND is_deleted = FALSE`

	var msg *domain.ChatMessage
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		msg, err = scanChatMessage(r.q.QueryRowContext(ctx, query, id))
		return err
	})
	if err != nil {
		if isMissing(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// Conversation retrieves the non-deleted messages exchanged between two
// users, oldest first. With a limit, the most recent messages are kept.
func (r *ChatRepository) Conversation(ctx context.Context, userA, userB string, limit int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT ` + chatColumns + ` FROM chat_messages
		WHERE is_deleted = FALSE
		  AND ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		ORDER BY created_at DESC, id DESC`
	args := []any{userA, userB}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var out []*domain.ChatMessage
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			msg, err := scanChatMessage(rows)
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpdateStatus sets the delivery status of a message.
func (r *ChatRepository) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) error {
	query := `
		UPDATE chat_messages
		SET status = $1, updated_at = GREATEST(updated_at, now())
		WHERE id = $2 AND is_deleted = FALSE
	`
	return r.execOne(ctx, query, status, id)
}

// SoftDelete marks a message as deleted.
func (r *ChatRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE chat_messages
		SET is_deleted = TRUE, updated_at = GREATEST(updated_at, now())
		WHERE id = $1 AND is_deleted = FALSE
	`
	return r.execOne(ctx, query, id)
}

// execOne runs a statement that must touch exactly one row.
func (r *ChatRepository) execOne(ctx context.Context, query string, args ...any) error {
	var rowsAffected int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.q.ExecContext(ctx, query, args...)
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

func scanChatMessage(row rowScanner) (*domain.ChatMessage, error) {
	var (
		msg                  domain.ChatMessage
		tripID, text         sql.NullString
		key, mimeType        sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.SenderRole,
		&msg.RecipientID,
		&msg.RecipientRole,
		&tripID,
		&text,
		&key,
		&mimeType,
		&msg.Status,
		&createdAt,
		&updatedAt,
		&msg.IsDeleted,
	)
	if err != nil {
		return nil, err
	}

	msg.TripID = stringPtr(tripID)
	msg.Text = stringPtr(text)
	if key.Valid {
		msg.Attachment = &domain.Attachment{Key: key.String, MIMEType: mimeType.String}
	}
	if msg.CreatedAt, err = timeparse.Parse(createdAt); err != nil {
		return nil, fmt.Errorf("chat message %s created_at: %w", msg.ID, err)
	}
	if msg.UpdatedAt, err = timeparse.Parse(updatedAt); err != nil {
		return nil, fmt.Errorf("chat message %s updated_at: %w", msg.ID, err)
	}

	return &msg, nil
}
