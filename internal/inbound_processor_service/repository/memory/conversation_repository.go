package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// ThreadSummarizer supplies the data a conversation summary is computed from.
type ThreadSummarizer interface {
	ThreadSummary(ctx context.Context, threadID int64) (last *domain.Message, unread int, err error)
}

// ConversationRepository is an in-process domain.ConversationRepository.
// Every mutation runs inside the thread's critical section.
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[int64]*domain.Conversation
	created       int
	locks         *threadLocks
	summaries     ThreadSummarizer
	logger        *slog.Logger
}

func NewConversationRepository(summaries ThreadSummarizer, logger *slog.Logger) *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[int64]*domain.Conversation),
		locks:         newThreadLocks(),
		summaries:     summaries,
		logger:        logger.With("component", "conversation_repository_memory"),
	}
}

var (
	_ domain.ConversationRepository = (*ConversationRepository)(nil)
	_ domain.ConversationArchiver   = (*ConversationRepository)(nil)
)

// mutate runs fn on the thread's row, creating it first when absent. created
// reports whether this call made the row.
func (r *ConversationRepository) mutate(ctx context.Context, threadID int64, fn func(c *domain.Conversation)) (conv *domain.Conversation, created bool) {
	unlock := r.locks.lock(threadID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.conversations[threadID]
	if !ok {
		row = &domain.Conversation{ID: threadID}
		r.conversations[threadID] = row
		r.created++
		r.logger.DebugContext(ctx, "Created conversation", "thread_id", threadID)
	}
	if fn != nil {
		fn(row)
	}
	out := *row
	return &out, !ok
}

func (r *ConversationRepository) GetConversation(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[threadID]
	if !ok {
		return nil, nil
	}
	out := *conv
	return &out, nil
}

func (r *ConversationRepository) GetOrCreateConversation(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	conv, _ := r.mutate(ctx, threadID, nil)
	return conv, nil
}

func (r *ConversationRepository) EnsureConversation(ctx context.Context, threadID int64) (*domain.Conversation, bool, error) {
	conv, created := r.mutate(ctx, threadID, nil)
	return conv, created, nil
}

func (r *ConversationRepository) UpdateConversationSummary(ctx context.Context, threadID int64) error {
	unlock := r.locks.lock(threadID)
	defer unlock()

	var (
		last   *domain.Message
		unread int
	)
	if r.summaries != nil {
		var err error
		last, unread, err = r.summaries.ThreadSummary(ctx, threadID)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[threadID]
	if !ok {
		conv = &domain.Conversation{ID: threadID}
		r.conversations[threadID] = conv
		r.created++
	}
	conv.UnreadCount = unread
	if last != nil {
		conv.LastMessageID = uuid.NullUUID{UUID: last.ID, Valid: true}
		conv.Snippet = last.Body
		conv.LastMessageAtMillis = last.TimestampMillis
	}
	return nil
}

func (r *ConversationRepository) MarkBlocked(ctx context.Context, threadIDs []int64, manager domain.BlockingManager, reason string) error {
	ids := append([]int64(nil), threadIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		r.mutate(ctx, id, func(c *domain.Conversation) {
			c.Blocked = true
			c.BlockingClient = manager
			c.BlockReason = reason
		})
	}
	return nil
}

func (r *ConversationRepository) MarkUnblocked(ctx context.Context, threadID int64) error {
	r.mutate(ctx, threadID, func(c *domain.Conversation) {
		c.Blocked = false
		c.BlockingClient = ""
		c.BlockReason = ""
	})
	return nil
}

func (r *ConversationRepository) MarkArchived(ctx context.Context, threadID int64) error {
	r.mutate(ctx, threadID, func(c *domain.Conversation) {
		c.Archived = true
	})
	return nil
}

func (r *ConversationRepository) MarkUnarchived(ctx context.Context, threadID int64) error {
	r.mutate(ctx, threadID, func(c *domain.Conversation) {
		c.Archived = false
	})
	return nil
}

// Count returns the number of conversation rows.
func (r *ConversationRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

// Created returns how many rows were ever created.
func (r *ConversationRepository) Created() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.created
}
