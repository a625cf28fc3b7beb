package natsnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/app"
	"github.com/aradsms/inbox_services/internal/platform/messagebroker"
)

// Kinds of downstream refresh, used as the last subject token.
const (
	KindNotification = "notification"
	KindShortcut     = "shortcut"
	KindBadge        = "badge"
)

// ConversationUpdatedEvent is the payload published for every refresh trigger.
type ConversationUpdatedEvent struct {
	ConversationID int64 `json:"conversation_id"`
}

// Notifier publishes conversation refresh triggers on <prefix>.<kind>.
type Notifier struct {
	publisher messagebroker.Publisher
	kind      string
	subject   string
	logger    *slog.Logger
}

func NewNotifier(publisher messagebroker.Publisher, subjectPrefix, kind string, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		kind:      kind,
		subject:   subjectPrefix + "." + kind,
		logger:    logger.With("component", "nats_notifier", "kind", kind),
	}
}

// NewNotifiers builds the three refresh notifiers sharing one publisher.
func NewNotifiers(publisher messagebroker.Publisher, subjectPrefix string, logger *slog.Logger) app.Notifiers {
	return app.Notifiers{
		Notification: NewNotifier(publisher, subjectPrefix, KindNotification, logger),
		Shortcut:     NewNotifier(publisher, subjectPrefix, KindShortcut, logger),
		Badge:        NewNotifier(publisher, subjectPrefix, KindBadge, logger),
	}
}

func (n *Notifier) Name() string { return n.kind }

// Subject returns the subject the notifier publishes on.
func (n *Notifier) Subject() string { return n.subject }

func (n *Notifier) ConversationUpdated(ctx context.Context, conversationID int64) error {
	data, err := json.Marshal(ConversationUpdatedEvent{ConversationID: conversationID})
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", n.kind, err)
	}
	if err := n.publisher.Publish(ctx, n.subject, data); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish conversation refresh", "subject", n.subject, "conversation_id", conversationID, "error", err)
		return err
	}
	n.logger.DebugContext(ctx, "Published conversation refresh", "subject", n.subject, "conversation_id", conversationID)
	return nil
}
