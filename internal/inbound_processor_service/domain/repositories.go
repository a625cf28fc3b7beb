package domain

import (
	"context"

	"github.com/google/uuid"
)

// MessageRepository persists messages. Implementations must be safe for
// concurrent use.
type MessageRepository interface {
	// InsertReceivedSMS stores an incoming SMS, assigning it to the thread for
	// address (creating the thread if needed).
	InsertReceivedSMS(ctx context.Context, subID int, address, body string, timestampMillis int64) (*Message, error)

	// SyncMessage resolves a transport-stored MMS. It returns (nil, nil) when
	// the locator is unknown.
	SyncMessage(ctx context.Context, locator MMSLocator) (*Message, error)

	MarkRead(ctx context.Context, threadID int64) error
	DeleteMessages(ctx context.Context, messageIDs ...uuid.UUID) error

	// GetLastIncomingMessages returns the thread's incoming messages, newest first.
	GetLastIncomingMessages(ctx context.Context, threadID int64) ([]*Message, error)
}

// ConversationRepository owns conversation rows. It is the synchronization
// boundary between concurrent pipeline runs: creation and status mutations
// for one thread id are serialized, and the first creator wins.
type ConversationRepository interface {
	// GetConversation returns (nil, nil) when no row exists for threadID.
	GetConversation(ctx context.Context, threadID int64) (*Conversation, error)
	GetOrCreateConversation(ctx context.Context, threadID int64) (*Conversation, error)
	// EnsureConversation is GetOrCreateConversation that also reports whether
	// this call created the row. Among concurrent callers exactly one sees
	// created == true.
	EnsureConversation(ctx context.Context, threadID int64) (conv *Conversation, created bool, err error)
	UpdateConversationSummary(ctx context.Context, threadID int64) error
	MarkBlocked(ctx context.Context, threadIDs []int64, manager BlockingManager, reason string) error
	MarkUnblocked(ctx context.Context, threadID int64) error
	MarkArchived(ctx context.Context, threadID int64) error
}

// ConversationArchiver toggles the archived flag on behalf of the user.
type ConversationArchiver interface {
	MarkArchived(ctx context.Context, threadID int64) error
	MarkUnarchived(ctx context.Context, threadID int64) error
}

// BlockingRuleStore manages the per-address rules a BlockingPolicy reads.
type BlockingRuleStore interface {
	SetRule(ctx context.Context, address string, action BlockingAction) error
	// RemoveRule deletes the rule for address. Removing a missing rule is not
	// an error.
	RemoveRule(ctx context.Context, address string) error
}

// ContactStore adds address book entries.
type ContactStore interface {
	AddContact(ctx context.Context, number, displayName string) (*Contact, error)
}
