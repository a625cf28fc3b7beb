package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

const (
	conversationColumns = `id, blocked, blocking_client, block_reason, archived, last_message_id, snippet, last_message_at_millis, unread_count`

	selectConversationQuery = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	ensureConversationQuery = `INSERT INTO conversations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
)

// PgConversationRepository stores conversations in PostgreSQL. Mutations take
// a transaction-scoped advisory lock on the thread id, which makes creation
// first-writer-wins and keeps concurrent flag updates from interleaving.
type PgConversationRepository struct {
	db     DBTX
	logger *slog.Logger
}

var (
	_ domain.ConversationRepository = (*PgConversationRepository)(nil)
	_ domain.ConversationArchiver   = (*PgConversationRepository)(nil)
)

func NewPgConversationRepository(db DBTX, logger *slog.Logger) *PgConversationRepository {
	return &PgConversationRepository{db: db, logger: logger.With("component", "conversation_repository_pg")}
}

func (r *PgConversationRepository) GetConversation(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, selectConversationQuery, threadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting conversation %d: %w", threadID, err)
	}
	return conv, nil
}

func (r *PgConversationRepository) GetOrCreateConversation(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	conv, _, err := r.EnsureConversation(ctx, threadID)
	return conv, err
}

// EnsureConversation inserts the row under the thread lock; the caller whose
// insert affected a row is the creator.
func (r *PgConversationRepository) EnsureConversation(ctx context.Context, threadID int64) (*domain.Conversation, bool, error) {
	var (
		conv    *domain.Conversation
		created bool
	)
	err := withThreadLocks(ctx, r.db, []int64{threadID}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, ensureConversationQuery, threadID)
		if err != nil {
			return fmt.Errorf("creating conversation %d: %w", threadID, err)
		}
		created = tag.RowsAffected() > 0
		conv, err = scanConversation(tx.QueryRow(ctx, selectConversationQuery, threadID))
		if err != nil {
			return fmt.Errorf("reading conversation %d: %w", threadID, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		r.logger.DebugContext(ctx, "Created conversation", "thread_id", threadID)
	}
	return conv, created, nil
}

func (r *PgConversationRepository) UpdateConversationSummary(ctx context.Context, threadID int64) error {
	query := `
		UPDATE conversations c SET
			unread_count = (SELECT count(*) FROM messages u WHERE u.thread_id = c.id AND NOT u.read),
			last_message_id = last.id,
			snippet = last.body,
			last_message_at_millis = last.timestamp_millis
		FROM (
			SELECT id, body, timestamp_millis FROM messages
			WHERE thread_id = $1
			ORDER BY timestamp_millis DESC
			LIMIT 1
		) AS last
		WHERE c.id = $1
	`
	return withThreadLocks(ctx, r.db, []int64{threadID}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureConversationQuery, threadID); err != nil {
			return fmt.Errorf("creating conversation %d: %w", threadID, err)
		}
		if _, err := tx.Exec(ctx, query, threadID); err != nil {
			return fmt.Errorf("updating summary of conversation %d: %w", threadID, err)
		}
		return nil
	})
}

func (r *PgConversationRepository) MarkBlocked(ctx context.Context, threadIDs []int64, manager domain.BlockingManager, reason string) error {
	if len(threadIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO conversations (id, blocked, blocking_client, block_reason) VALUES ($1, TRUE, $2, $3)
		ON CONFLICT (id) DO UPDATE SET blocked = TRUE, blocking_client = EXCLUDED.blocking_client, block_reason = EXCLUDED.block_reason
	`
	err := withThreadLocks(ctx, r.db, threadIDs, func(tx pgx.Tx) error {
		for _, id := range threadIDs {
			if _, err := tx.Exec(ctx, query, id, string(manager), reason); err != nil {
				return fmt.Errorf("blocking conversation %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Marked conversations blocked", "thread_ids", threadIDs, "blocking_client", manager, "reason", reason)
	return nil
}

func (r *PgConversationRepository) MarkUnblocked(ctx context.Context, threadID int64) error {
	query := `
		INSERT INTO conversations (id, blocked) VALUES ($1, FALSE)
		ON CONFLICT (id) DO UPDATE SET blocked = FALSE, blocking_client = NULL, block_reason = NULL
	`
	return withThreadLocks(ctx, r.db, []int64{threadID}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, threadID); err != nil {
			return fmt.Errorf("unblocking conversation %d: %w", threadID, err)
		}
		return nil
	})
}

func (r *PgConversationRepository) MarkArchived(ctx context.Context, threadID int64) error {
	query := `
		INSERT INTO conversations (id, archived) VALUES ($1, TRUE)
		ON CONFLICT (id) DO UPDATE SET archived = TRUE
	`
	return withThreadLocks(ctx, r.db, []int64{threadID}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, threadID); err != nil {
			return fmt.Errorf("archiving conversation %d: %w", threadID, err)
		}
		return nil
	})
}

func (r *PgConversationRepository) MarkUnarchived(ctx context.Context, threadID int64) error {
	query := `
		INSERT INTO conversations (id, archived) VALUES ($1, FALSE)
		ON CONFLICT (id) DO UPDATE SET archived = FALSE
	`
	return withThreadLocks(ctx, r.db, []int64{threadID}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, threadID); err != nil {
			return fmt.Errorf("unarchiving conversation %d: %w", threadID, err)
		}
		return nil
	})
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var (
		conv           domain.Conversation
		blockingClient sql.NullString
		blockReason    sql.NullString
		snippet        sql.NullString
		lastAt         sql.NullInt64
	)
	err := row.Scan(
		&conv.ID,
		&conv.Blocked,
		&blockingClient,
		&blockReason,
		&conv.Archived,
		&conv.LastMessageID,
		&snippet,
		&lastAt,
		&conv.UnreadCount,
	)
	if err != nil {
		return nil, err
	}
	conv.BlockingClient = domain.BlockingManager(blockingClient.String)
	conv.BlockReason = blockReason.String
	conv.Snippet = snippet.String
	conv.LastMessageAtMillis = lastAt.Int64
	return &conv, nil
}
