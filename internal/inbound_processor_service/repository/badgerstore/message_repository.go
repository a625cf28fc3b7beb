package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// MessageRepository stores messages under their thread prefix so a reverse
// prefix scan yields a thread newest first.
type MessageRepository struct {
	store  *Store
	logger *slog.Logger
}

func NewMessageRepository(store *Store, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{store: store, logger: logger.With("component", "message_repository_badger")}
}

// threadFor returns the thread of address, allocating one on first contact.
func (r *MessageRepository) threadFor(txn *badger.Txn, address string) (int64, error) {
	key := threadKey(domain.NormalizeAddress(address))
	item, err := txn.Get(key)
	switch {
	case err == nil:
		var id int64
		err = item.Value(func(val []byte) error {
			var decodeErr error
			id, decodeErr = decodeThreadID(val)
			return decodeErr
		})
		return id, err
	case errors.Is(err, badger.ErrKeyNotFound):
		id, err := r.store.nextThreadID()
		if err != nil {
			return 0, err
		}
		return id, txn.Set(key, encodeThreadID(id))
	default:
		return 0, err
	}
}

func putMessage(txn *badger.Txn, msg *domain.Message) error {
	key := messageKey(msg.ThreadID, msg.TimestampMillis, msg.ID)
	if err := setJSON(txn, key, msg); err != nil {
		return err
	}
	if err := txn.Set(messageIDKey(msg.ID), key); err != nil {
		return err
	}
	if msg.ContentLocator != "" {
		return txn.Set(locatorKey(msg.ContentLocator), key)
	}
	return nil
}

func (r *MessageRepository) insert(msg *domain.Message) error {
	return r.store.update(func(txn *badger.Txn) error {
		threadID, err := r.threadFor(txn, msg.Address)
		if err != nil {
			return err
		}
		msg.ThreadID = threadID
		return putMessage(txn, msg)
	})
}

func (r *MessageRepository) InsertReceivedSMS(ctx context.Context, subID int, address, body string, timestampMillis int64) (*domain.Message, error) {
	msg := &domain.Message{
		ID:              uuid.New(),
		SubscriptionID:  subID,
		Address:         address,
		Body:            body,
		TimestampMillis: timestampMillis,
		Direction:       domain.DirectionIncoming,
	}
	if err := r.insert(msg); err != nil {
		r.logger.ErrorContext(ctx, "Error inserting received SMS", "address", address, "error", err)
		return nil, fmt.Errorf("inserting received sms: %w", err)
	}
	r.logger.DebugContext(ctx, "Inserted received SMS", "message_id", msg.ID, "thread_id", msg.ThreadID)
	return msg, nil
}

// StoreTransportMMS records an MMS the way the transport layer does before the
// pipeline sees it; SyncMessage later resolves it by locator.
func (r *MessageRepository) StoreTransportMMS(ctx context.Context, subID int, address, body string, timestampMillis int64, locator domain.MMSLocator) (*domain.Message, error) {
	msg := &domain.Message{
		ID:              uuid.New(),
		SubscriptionID:  subID,
		Address:         address,
		Body:            body,
		TimestampMillis: timestampMillis,
		Direction:       domain.DirectionIncoming,
		ContentLocator:  string(locator),
	}
	if err := r.insert(msg); err != nil {
		return nil, fmt.Errorf("storing transport mms: %w", err)
	}
	return msg, nil
}

// lookup follows an index entry (msgid: or mms:) to the message row.
func lookup(txn *badger.Txn, indexKey []byte) (*domain.Message, []byte, error) {
	item, err := txn.Get(indexKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	var msg domain.Message
	found, err := getJSON(txn, key, &msg)
	if err != nil || !found {
		return nil, nil, err
	}
	return &msg, key, nil
}

func (r *MessageRepository) SyncMessage(ctx context.Context, locator domain.MMSLocator) (*domain.Message, error) {
	var msg *domain.Message
	err := r.store.db.View(func(txn *badger.Txn) error {
		var err error
		msg, _, err = lookup(txn, locatorKey(string(locator)))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("syncing mms %s: %w", locator, err)
	}
	return msg, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, threadID int64) error {
	err := r.store.update(func(txn *badger.Txn) error {
		var unread []*domain.Message
		err := scanThread(txn, threadID, func(msg *domain.Message) error {
			if !msg.Read {
				unread = append(unread, msg)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, msg := range unread {
			msg.Read = true
			if err := setJSON(txn, messageKey(msg.ThreadID, msg.TimestampMillis, msg.ID), msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("marking thread %d read: %w", threadID, err)
	}
	return nil
}

func (r *MessageRepository) DeleteMessages(ctx context.Context, messageIDs ...uuid.UUID) error {
	err := r.store.update(func(txn *badger.Txn) error {
		for _, id := range messageIDs {
			msg, key, err := lookup(txn, messageIDKey(id))
			if err != nil {
				return err
			}
			if msg == nil {
				continue
			}
			if msg.ContentLocator != "" {
				if err := txn.Delete(locatorKey(msg.ContentLocator)); err != nil {
					return err
				}
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(messageIDKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	r.logger.DebugContext(ctx, "Deleted messages", "count", len(messageIDs))
	return nil
}

func (r *MessageRepository) GetLastIncomingMessages(ctx context.Context, threadID int64) ([]*domain.Message, error) {
	var out []*domain.Message
	err := r.store.db.View(func(txn *badger.Txn) error {
		return scanThread(txn, threadID, func(msg *domain.Message) error {
			if msg.Direction == domain.DirectionIncoming {
				out = append(out, msg)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing incoming messages of thread %d: %w", threadID, err)
	}
	return out, nil
}

// scanThread visits the thread's messages newest first.
func scanThread(txn *badger.Txn, threadID int64, fn func(msg *domain.Message) error) error {
	prefix := threadMessagesPrefix(threadID)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xff)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		var msg domain.Message
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}
		if err := fn(&msg); err != nil {
			return err
		}
	}
	return nil
}

// threadSummary returns the newest message of the thread and its unread count.
func threadSummary(txn *badger.Txn, threadID int64) (*domain.Message, int, error) {
	var (
		last   *domain.Message
		unread int
	)
	err := scanThread(txn, threadID, func(msg *domain.Message) error {
		if last == nil {
			last = msg
		}
		if !msg.Read {
			unread++
		}
		return nil
	})
	return last, unread, err
}
