package domain

import "github.com/google/uuid"

// BlockingManager identifies the strategy that blocked a conversation.
type BlockingManager string

const (
	BlockingManagerQKSMS         BlockingManager = "qksms"
	BlockingManagerCallBlocker   BlockingManager = "call_blocker"
	BlockingManagerCallControl   BlockingManager = "call_control"
	BlockingManagerShouldIAnswer BlockingManager = "should_i_answer"
)

// Valid reports whether m is one of the known strategies.
func (m BlockingManager) Valid() bool {
	switch m {
	case BlockingManagerQKSMS, BlockingManagerCallBlocker, BlockingManagerCallControl, BlockingManagerShouldIAnswer:
		return true
	}
	return false
}

// Conversation is the per-thread record. Blocked and Archived are independent;
// BlockingClient and BlockReason are only meaningful while Blocked.
type Conversation struct {
	ID             int64           `json:"id"`
	Blocked        bool            `json:"blocked"`
	BlockingClient BlockingManager `json:"blocking_client,omitempty"`
	BlockReason    string          `json:"block_reason,omitempty"`
	Archived       bool            `json:"archived"`

	LastMessageID       uuid.NullUUID `json:"last_message_id,omitempty"`
	Snippet             string        `json:"snippet,omitempty"`
	LastMessageAtMillis int64         `json:"last_message_at_millis,omitempty"`
	UnreadCount         int           `json:"unread_count"`
}

// Notifiable reports whether new activity on the conversation should surface.
func (c Conversation) Notifiable() bool {
	return !c.Blocked && !c.Archived
}
