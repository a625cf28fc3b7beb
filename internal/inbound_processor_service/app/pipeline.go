package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// Source names the transport an inbound message arrived on.
type Source string

const (
	SourceSMS Source = "sms"
	SourceMMS Source = "mms"
)

// OutcomeKind is how a pipeline invocation ended.
type OutcomeKind string

const (
	// OutcomeDiscarded: nothing to process (empty batch, unknown MMS locator).
	OutcomeDiscarded OutcomeKind = "discarded"
	// OutcomeDropped: the sender is blocked and the user drops blocked messages.
	OutcomeDropped OutcomeKind = "dropped"
	// OutcomeSuppressed: stored, but the conversation is blocked or archived.
	OutcomeSuppressed OutcomeKind = "suppressed"
	// OutcomeNotified: stored and handed to the notifiers.
	OutcomeNotified OutcomeKind = "notified"
)

// Outcome is the result of one pipeline invocation.
type Outcome struct {
	Kind           OutcomeKind
	ConversationID int64
	MessageID      uuid.UUID
}

// NewConversationTest decides whether a message opened a new conversation,
// which makes it a candidate for archiving when the sender is not a contact.
// created reports whether this invocation created the thread's conversation
// row right after the message was stored.
type NewConversationTest interface {
	IsNewConversation(ctx context.Context, msg *domain.Message, created bool) (bool, error)
}

// ConversationAbsent treats a message as new when its thread had no
// conversation row yet. Only the invocation that created the row qualifies,
// so concurrent first messages archive the thread once.
type ConversationAbsent struct{}

func (ConversationAbsent) IsNewConversation(_ context.Context, _ *domain.Message, created bool) (bool, error) {
	return created, nil
}

// SingleIncomingMessage treats a message as new when it is the only incoming
// message of its thread. MMS rows are stored by the transport before any
// conversation row exists, so row existence says nothing for them.
type SingleIncomingMessage struct {
	Messages domain.MessageRepository
}

func (t SingleIncomingMessage) IsNewConversation(ctx context.Context, msg *domain.Message, _ bool) (bool, error) {
	incoming, err := t.Messages.GetLastIncomingMessages(ctx, msg.ThreadID)
	if err != nil {
		return false, err
	}
	return len(incoming) == 1, nil
}

// Stores groups the pipeline's collaborators.
type Stores struct {
	Messages      domain.MessageRepository
	Conversations domain.ConversationRepository
	Policy        domain.BlockingPolicy
	Contacts      domain.ContactDirectory
}

// Notifiers are the downstream refresh triggers. Nil entries are skipped.
type Notifiers struct {
	Notification domain.ConversationNotifier
	Shortcut     domain.ConversationNotifier
	Badge        domain.ConversationNotifier
}

// sourceRules is what differs between the SMS and MMS variants.
type sourceRules struct {
	source    Source
	isNew     NewConversationTest
	notifiers []domain.ConversationNotifier
}

// Pipeline turns received messages into stored state and notifier calls.
// It is safe for concurrent use; per-thread serialization is the
// ConversationRepository's job.
type Pipeline struct {
	messages      domain.MessageRepository
	conversations domain.ConversationRepository
	policy        domain.BlockingPolicy
	contacts      domain.ContactDirectory
	active        ActiveConversationReader

	sms    sourceRules
	mms    sourceRules
	logger *slog.Logger
}

func NewPipeline(stores Stores, active ActiveConversationReader, notifiers Notifiers, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		messages:      stores.Messages,
		conversations: stores.Conversations,
		policy:        stores.Policy,
		contacts:      stores.Contacts,
		active:        active,
		sms: sourceRules{
			source:    SourceSMS,
			isNew:     ConversationAbsent{},
			notifiers: lo.Compact([]domain.ConversationNotifier{notifiers.Notification, notifiers.Shortcut, notifiers.Badge}),
		},
		mms: sourceRules{
			source:    SourceMMS,
			isNew:     SingleIncomingMessage{Messages: stores.Messages},
			notifiers: lo.Compact([]domain.ConversationNotifier{notifiers.Notification, notifiers.Badge}),
		},
		logger: logger.With("component", "pipeline"),
	}
}

// resolveAction asks the blocking policy about address. A nil action from the
// policy counts as NoAction.
func (p *Pipeline) resolveAction(ctx context.Context, address string) (domain.BlockingAction, error) {
	action, err := p.policy.GetAction(ctx, address)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return domain.NoAction{}, nil
	}
	return action, nil
}

func dropsMessage(prefs domain.Preferences, action domain.BlockingAction) bool {
	_, block := action.(domain.Block)
	return block && prefs.DropBlocked
}

// settle runs the stages shared by both variants once msg is stored: policy
// application, summary refresh, the new-conversation archive heuristic, and
// notification.
func (p *Pipeline) settle(ctx context.Context, rules sourceRules, prefs domain.Preferences, msg *domain.Message, action domain.BlockingAction) (Outcome, error) {
	threadID := msg.ThreadID
	out := Outcome{ConversationID: threadID, MessageID: msg.ID}
	log := p.logger.With("source", rules.source, "thread_id", threadID, "message_id", msg.ID)

	_, created, err := p.conversations.EnsureConversation(ctx, threadID)
	if err != nil {
		return p.fail(ctx, rules.source, "ensure_conversation", err)
	}

	switch a := action.(type) {
	case domain.Block:
		if err := p.messages.MarkRead(ctx, threadID); err != nil {
			return p.fail(ctx, rules.source, "mark_read", err)
		}
		if err := p.conversations.MarkBlocked(ctx, []int64{threadID}, prefs.BlockingManager, a.Reason); err != nil {
			return p.fail(ctx, rules.source, "mark_blocked", err)
		}
		log.DebugContext(ctx, "Blocked conversation", "reason", a.Reason, "blocking_client", prefs.BlockingManager)
	case domain.Unblock:
		if err := p.conversations.MarkUnblocked(ctx, threadID); err != nil {
			return p.fail(ctx, rules.source, "mark_unblocked", err)
		}
		log.DebugContext(ctx, "Unblocked conversation")
	}

	if err := p.conversations.UpdateConversationSummary(ctx, threadID); err != nil {
		return p.fail(ctx, rules.source, "update_summary", err)
	}

	contact, err := p.contacts.FindContact(ctx, msg.Address)
	if err != nil {
		return p.fail(ctx, rules.source, "find_contact", err)
	}
	if contact == nil {
		isNew, err := rules.isNew.IsNewConversation(ctx, msg, created)
		if err != nil {
			return p.fail(ctx, rules.source, "new_conversation_test", err)
		}
		if isNew {
			if err := p.conversations.MarkArchived(ctx, threadID); err != nil {
				return p.fail(ctx, rules.source, "mark_archived", err)
			}
			log.InfoContext(ctx, "Archived new conversation from unknown sender", "address", msg.Address)
		}
	}

	conv, err := p.conversations.GetOrCreateConversation(ctx, threadID)
	if err != nil {
		return p.fail(ctx, rules.source, "materialize_conversation", err)
	}
	if !conv.Notifiable() {
		log.DebugContext(ctx, "Conversation not notifiable", "blocked", conv.Blocked, "archived", conv.Archived)
		out.Kind = OutcomeSuppressed
		return out, nil
	}

	p.emit(ctx, rules, threadID)
	out.Kind = OutcomeNotified
	return out, nil
}

// emit hands the conversation to every notifier in order. A failing notifier
// is logged and skipped; stored state stays as it is.
func (p *Pipeline) emit(ctx context.Context, rules sourceRules, conversationID int64) {
	for _, n := range rules.notifiers {
		start := time.Now()
		err := n.ConversationUpdated(ctx, conversationID)
		notifierDurationHist.WithLabelValues(n.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			notifierFailuresCounter.WithLabelValues(n.Name()).Inc()
			p.logger.WarnContext(ctx, "Notifier failed",
				"notifier", n.Name(),
				"conversation_id", conversationID,
				"source", rules.source,
				"error", err,
			)
		}
	}
}

func (p *Pipeline) fail(ctx context.Context, source Source, stage string, err error) (Outcome, error) {
	pipelineErrorsCounter.WithLabelValues(string(source), stage).Inc()
	p.logger.ErrorContext(ctx, "Pipeline stage failed", "source", source, "stage", stage, "error", err)
	return Outcome{}, fmt.Errorf("%s pipeline %s: %w", source, stage, err)
}

func (p *Pipeline) finish(source Source, start time.Time, out Outcome, err error) {
	pipelineDurationHist.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	if err == nil {
		pipelineOutcomesCounter.WithLabelValues(string(source), string(out.Kind)).Inc()
	}
}
