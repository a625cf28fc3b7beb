package domain

import "context"

// ConversationNotifier is a downstream refresh trigger (notification, badge,
// shortcuts). Implementations must tolerate repeated and out-of-order ids.
type ConversationNotifier interface {
	Name() string
	ConversationUpdated(ctx context.Context, conversationID int64) error
}
