package badgerstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// ConversationRepository keeps one row per thread. Badger's conflict detection
// serializes concurrent writers of the same row: the loser retries and sees
// the winner's commit.
type ConversationRepository struct {
	store  *Store
	logger *slog.Logger
}

func NewConversationRepository(store *Store, logger *slog.Logger) *ConversationRepository {
	return &ConversationRepository{store: store, logger: logger.With("component", "conversation_repository_badger")}
}

// mutateTxn loads the thread's row (creating it when absent), applies fn and
// writes it back. A nil fn on an existing row writes nothing.
func mutateTxn(txn *badger.Txn, threadID int64, fn func(txn *badger.Txn, c *domain.Conversation) error) (conv domain.Conversation, created bool, err error) {
	key := conversationKey(threadID)
	found, err := getJSON(txn, key, &conv)
	if err != nil {
		return conv, false, err
	}
	if !found {
		conv = domain.Conversation{ID: threadID}
	}
	if fn == nil && found {
		return conv, false, nil
	}
	if fn != nil {
		if err := fn(txn, &conv); err != nil {
			return conv, false, err
		}
	}
	return conv, !found, setJSON(txn, key, conv)
}

var (
	_ domain.ConversationRepository = (*ConversationRepository)(nil)
	_ domain.ConversationArchiver   = (*ConversationRepository)(nil)
)

// mutate commits fn on the thread's row. created comes from the attempt that
// committed, so a caller that lost a creation race retries and reports false.
func (r *ConversationRepository) mutate(ctx context.Context, threadID int64, op string, fn func(txn *badger.Txn, c *domain.Conversation) error) (*domain.Conversation, bool, error) {
	var (
		out     domain.Conversation
		created bool
	)
	err := r.store.update(func(txn *badger.Txn) error {
		var err error
		out, created, err = mutateTxn(txn, threadID, fn)
		return err
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Conversation update failed", "op", op, "thread_id", threadID, "error", err)
		return nil, false, fmt.Errorf("%s conversation %d: %w", op, threadID, err)
	}
	if created {
		r.logger.DebugContext(ctx, "Created conversation", "thread_id", threadID)
	}
	return &out, created, nil
}

func (r *ConversationRepository) GetConversation(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	var (
		conv  domain.Conversation
		found bool
	)
	err := r.store.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, conversationKey(threadID), &conv)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting conversation %d: %w", threadID, err)
	}
	if !found {
		return nil, nil
	}
	return &conv, nil
}

func (r *ConversationRepository) GetOrCreateConversation(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	conv, _, err := r.mutate(ctx, threadID, "creating", nil)
	return conv, err
}

func (r *ConversationRepository) EnsureConversation(ctx context.Context, threadID int64) (*domain.Conversation, bool, error) {
	return r.mutate(ctx, threadID, "creating", nil)
}

// UpdateConversationSummary recomputes the snippet and unread count from the
// thread's messages inside the same transaction as the row write.
func (r *ConversationRepository) UpdateConversationSummary(ctx context.Context, threadID int64) error {
	_, _, err := r.mutate(ctx, threadID, "summarizing", func(txn *badger.Txn, c *domain.Conversation) error {
		last, unread, err := threadSummary(txn, threadID)
		if err != nil {
			return err
		}
		c.UnreadCount = unread
		if last != nil {
			c.LastMessageID = uuid.NullUUID{UUID: last.ID, Valid: true}
			c.Snippet = last.Body
			c.LastMessageAtMillis = last.TimestampMillis
		}
		return nil
	})
	return err
}

// MarkBlocked blocks every listed thread in one transaction.
func (r *ConversationRepository) MarkBlocked(ctx context.Context, threadIDs []int64, manager domain.BlockingManager, reason string) error {
	err := r.store.update(func(txn *badger.Txn) error {
		for _, id := range threadIDs {
			_, _, err := mutateTxn(txn, id, func(_ *badger.Txn, c *domain.Conversation) error {
				c.Blocked = true
				c.BlockingClient = manager
				c.BlockReason = reason
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error blocking conversations", "thread_ids", threadIDs, "error", err)
		return fmt.Errorf("blocking conversations: %w", err)
	}
	return nil
}

func (r *ConversationRepository) MarkUnblocked(ctx context.Context, threadID int64) error {
	_, _, err := r.mutate(ctx, threadID, "unblocking", func(_ *badger.Txn, c *domain.Conversation) error {
		c.Blocked = false
		c.BlockingClient = ""
		c.BlockReason = ""
		return nil
	})
	return err
}

func (r *ConversationRepository) MarkArchived(ctx context.Context, threadID int64) error {
	_, _, err := r.mutate(ctx, threadID, "archiving", func(_ *badger.Txn, c *domain.Conversation) error {
		c.Archived = true
		return nil
	})
	return err
}

func (r *ConversationRepository) MarkUnarchived(ctx context.Context, threadID int64) error {
	_, _, err := r.mutate(ctx, threadID, "unarchiving", func(_ *badger.Txn, c *domain.Conversation) error {
		c.Archived = false
		return nil
	})
	return err
}
