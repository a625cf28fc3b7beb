package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

const messageColumns = `id, thread_id, subscription_id, address, body, timestamp_millis, read, direction, content_locator`

type PgMessageRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewPgMessageRepository creates a PostgreSQL implementation of domain.MessageRepository.
func NewPgMessageRepository(db DBTX, logger *slog.Logger) *PgMessageRepository {
	return &PgMessageRepository{db: db, logger: logger.With("component", "message_repository_pg")}
}

// InsertReceivedSMS upserts the sender's thread and inserts the message in one statement.
func (r *PgMessageRepository) InsertReceivedSMS(ctx context.Context, subID int, address, body string, timestampMillis int64) (*domain.Message, error) {
	query := `
		WITH thread AS (
			INSERT INTO threads (address, normalized_address) VALUES ($1, $2)
			ON CONFLICT (normalized_address) DO UPDATE SET address = EXCLUDED.address
			RETURNING id
		)
		INSERT INTO messages (id, thread_id, subscription_id, address, body, timestamp_millis, read, direction)
		SELECT $3, thread.id, $4, $1, $5, $6, FALSE, $7 FROM thread
		RETURNING thread_id
	`
	msg := &domain.Message{
		ID:              uuid.New(),
		SubscriptionID:  subID,
		Address:         address,
		Body:            body,
		TimestampMillis: timestampMillis,
		Direction:       domain.DirectionIncoming,
	}

	err := r.db.QueryRow(ctx, query,
		address,
		domain.NormalizeAddress(address),
		msg.ID,
		subID,
		body,
		timestampMillis,
		string(domain.DirectionIncoming),
	).Scan(&msg.ThreadID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting received SMS", "error", err, "message_id", msg.ID)
		return nil, fmt.Errorf("inserting received sms: %w", err)
	}

	r.logger.DebugContext(ctx, "Inserted received SMS", "message_id", msg.ID, "thread_id", msg.ThreadID)
	return msg, nil
}

// SyncMessage loads the MMS the transport layer stored under locator.
func (r *PgMessageRepository) SyncMessage(ctx context.Context, locator domain.MMSLocator) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE content_locator = $1 LIMIT 1`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, string(locator)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.InfoContext(ctx, "No stored MMS for locator", "locator", locator)
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error syncing MMS", "error", err, "locator", locator)
		return nil, fmt.Errorf("syncing mms %q: %w", locator, err)
	}
	return msg, nil
}

func (r *PgMessageRepository) MarkRead(ctx context.Context, threadID int64) error {
	query := `UPDATE messages SET read = TRUE WHERE thread_id = $1 AND NOT read`
	tag, err := r.db.Exec(ctx, query, threadID)
	if err != nil {
		return fmt.Errorf("marking thread %d read: %w", threadID, err)
	}
	r.logger.DebugContext(ctx, "Marked thread read", "thread_id", threadID, "rows", tag.RowsAffected())
	return nil
}

func (r *PgMessageRepository) DeleteMessages(ctx context.Context, messageIDs ...uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}
	query := `DELETE FROM messages WHERE id = ANY($1)`
	tag, err := r.db.Exec(ctx, query, messageIDs)
	if err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	r.logger.InfoContext(ctx, "Deleted messages", "requested", len(messageIDs), "deleted", tag.RowsAffected())
	return nil
}

func (r *PgMessageRepository) GetLastIncomingMessages(ctx context.Context, threadID int64) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE thread_id = $1 AND direction = $2
		ORDER BY timestamp_millis DESC`

	rows, err := r.db.Query(ctx, query, threadID, string(domain.DirectionIncoming))
	if err != nil {
		return nil, fmt.Errorf("querying incoming messages for thread %d: %w", threadID, err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning incoming message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incoming messages: %w", err)
	}
	return out, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg       domain.Message
		direction string
		locator   sql.NullString
	)
	err := row.Scan(
		&msg.ID,
		&msg.ThreadID,
		&msg.SubscriptionID,
		&msg.Address,
		&msg.Body,
		&msg.TimestampMillis,
		&msg.Read,
		&direction,
		&locator,
	)
	if err != nil {
		return nil, err
	}
	msg.Direction = domain.Direction(direction)
	if locator.Valid {
		msg.ContentLocator = locator.String
	}
	return &msg, nil
}
