package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// MessageRepository is an in-process domain.MessageRepository. Threads are
// allocated per normalized sender address.
type MessageRepository struct {
	mu           sync.RWMutex
	threads      map[string]int64
	nextThreadID int64
	messages     map[uuid.UUID]*domain.Message
	order        []uuid.UUID
	logger       *slog.Logger
}

func NewMessageRepository(logger *slog.Logger) *MessageRepository {
	return &MessageRepository{
		threads:  make(map[string]int64),
		messages: make(map[uuid.UUID]*domain.Message),
		logger:   logger.With("component", "message_repository_memory"),
	}
}

func (r *MessageRepository) threadForLocked(address string) int64 {
	key := domain.NormalizeAddress(address)
	if id, ok := r.threads[key]; ok {
		return id
	}
	r.nextThreadID++
	r.threads[key] = r.nextThreadID
	return r.nextThreadID
}

func (r *MessageRepository) insertLocked(msg *domain.Message) *domain.Message {
	msg.ThreadID = r.threadForLocked(msg.Address)
	r.messages[msg.ID] = msg
	r.order = append(r.order, msg.ID)
	stored := *msg
	return &stored
}

func (r *MessageRepository) InsertReceivedSMS(ctx context.Context, subID int, address, body string, timestampMillis int64) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.insertLocked(&domain.Message{
		ID:              uuid.New(),
		SubscriptionID:  subID,
		Address:         address,
		Body:            body,
		TimestampMillis: timestampMillis,
		Direction:       domain.DirectionIncoming,
	})
	r.logger.DebugContext(ctx, "Inserted received SMS", "message_id", msg.ID, "thread_id", msg.ThreadID)
	return msg, nil
}

// StoreTransportMMS records an MMS the way the transport layer does before the
// pipeline sees it; SyncMessage later resolves it by locator.
func (r *MessageRepository) StoreTransportMMS(ctx context.Context, subID int, address, body string, timestampMillis int64, locator domain.MMSLocator) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.insertLocked(&domain.Message{
		ID:              uuid.New(),
		SubscriptionID:  subID,
		Address:         address,
		Body:            body,
		TimestampMillis: timestampMillis,
		Direction:       domain.DirectionIncoming,
		ContentLocator:  string(locator),
	})
	r.logger.DebugContext(ctx, "Stored transport MMS", "message_id", msg.ID, "thread_id", msg.ThreadID, "locator", locator)
	return msg, nil
}

func (r *MessageRepository) SyncMessage(ctx context.Context, locator domain.MMSLocator) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		msg, ok := r.messages[id]
		if ok && msg.ContentLocator == string(locator) {
			found := *msg
			return &found, nil
		}
	}
	return nil, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, threadID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range r.messages {
		if msg.ThreadID == threadID {
			msg.Read = true
		}
	}
	return nil
}

func (r *MessageRepository) DeleteMessages(ctx context.Context, messageIDs ...uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range messageIDs {
		delete(r.messages, id)
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.messages[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
	return nil
}

func (r *MessageRepository) GetLastIncomingMessages(ctx context.Context, threadID int64) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Message
	for _, id := range r.order {
		msg := r.messages[id]
		if msg.ThreadID == threadID && msg.Direction == domain.DirectionIncoming {
			m := *msg
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampMillis > out[j].TimestampMillis
	})
	return out, nil
}

// ThreadSummary returns the newest message of the thread and its unread count.
func (r *MessageRepository) ThreadSummary(ctx context.Context, threadID int64) (*domain.Message, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *domain.Message
	unread := 0
	for _, id := range r.order {
		msg := r.messages[id]
		if msg.ThreadID != threadID {
			continue
		}
		if !msg.Read {
			unread++
		}
		if last == nil || msg.TimestampMillis >= last.TimestampMillis {
			last = msg
		}
	}
	if last == nil {
		return nil, 0, nil
	}
	m := *last
	return &m, unread, nil
}

// Messages returns every stored message of a thread in insertion order.
func (r *MessageRepository) Messages(threadID int64) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Message
	for _, id := range r.order {
		if msg := r.messages[id]; msg.ThreadID == threadID {
			out = append(out, *msg)
		}
	}
	return out
}

// Count returns the number of stored messages.
func (r *MessageRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}
