package badgerstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrClosed is reported by Ready once the database has been closed.
var ErrClosed = errors.New("badger store is closed")

// maxTxnAttempts bounds the retries of a transaction that lost a write
// conflict against a concurrent pipeline run.
const maxTxnAttempts = 16

// Key layout. Thread and timestamp segments are zero padded to 19 digits so
// lexicographic order matches numeric order.
//
//	thread:{normalized address}                 -> thread id (uint64, big endian)
//	msg:{thread}:{timestamp}:{message uuid}     -> domain.Message JSON
//	msgid:{message uuid}                        -> msg key
//	mms:{locator}                               -> msg key
//	conv:{thread}                               -> domain.Conversation JSON
//	rule:{normalized address}                   -> storedRule JSON
//	contact:{normalized number}                 -> domain.Contact JSON
var threadSequenceKey = []byte("seq:thread")

func threadKey(normalized string) []byte { return []byte("thread:" + normalized) }

func threadMessagesPrefix(threadID int64) []byte {
	return []byte(fmt.Sprintf("msg:%019d:", threadID))
}

func messageKey(threadID, timestampMillis int64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%019d:%019d:%s", threadID, timestampMillis, id))
}

func messageIDKey(id uuid.UUID) []byte { return []byte("msgid:" + id.String()) }

func locatorKey(locator string) []byte { return []byte("mms:" + locator) }

func conversationKey(threadID int64) []byte {
	return []byte(fmt.Sprintf("conv:%019d", threadID))
}

func ruleKey(normalized string) []byte { return []byte("rule:" + normalized) }

func contactKey(normalized string) []byte { return []byte("contact:" + normalized) }

// Options selects where the database lives.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// Store owns the badger database shared by every repository of this package.
type Store struct {
	db      *badger.DB
	threads *badger.Sequence
	logger  *slog.Logger
}

// Open opens (or creates) the database and leases the thread id sequence.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	logger = logger.With("component", "badger_store")

	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", opts.Path, err)
	}
	threads, err := db.GetSequence(threadSequenceKey, 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("leasing thread sequence: %w", err)
	}
	logger.Info("Badger store opened", "path", opts.Path, "in_memory", opts.InMemory)
	return &Store{db: db, threads: threads, logger: logger}, nil
}

// Close releases the unused part of the thread sequence lease and closes the
// database.
func (s *Store) Close() error {
	if err := s.threads.Release(); err != nil {
		s.logger.Warn("Failed to release thread sequence", "error", err)
	}
	return s.db.Close()
}

// Ready reports ErrClosed once Close has been called.
func (s *Store) Ready() error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when the commit loses
// a conflict. fn must be safe to run more than once.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxTxnAttempts {
			return err
		}
		s.logger.Debug("Retrying conflicted transaction", "attempt", attempt)
	}
}

// nextThreadID allocates a thread id. Ids start at 1; 0 means "no thread".
func (s *Store) nextThreadID() (int64, error) {
	n, err := s.threads.Next()
	if err != nil {
		return 0, fmt.Errorf("allocating thread id: %w", err)
	}
	return int64(n) + 1, nil
}

// getJSON decodes the value at key into dst. It reports false when the key is
// absent.
func getJSON(txn *badger.Txn, key []byte, dst any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	}); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func encodeThreadID(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeThreadID(val []byte) (int64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("thread id value has %d bytes", len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
