package app

import (
	"context"
	"time"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// ReceiveMMS processes an MMS the transport layer has already stored under
// locator.
func (p *Pipeline) ReceiveMMS(ctx context.Context, prefs domain.Preferences, locator domain.MMSLocator) (out Outcome, err error) {
	start := time.Now()
	defer func() { p.finish(SourceMMS, start, out, err) }()

	msg, err := p.messages.SyncMessage(ctx, locator)
	if err != nil {
		return p.fail(ctx, SourceMMS, "sync_message", err)
	}
	if msg == nil {
		p.logger.InfoContext(ctx, "No MMS stored for locator, discarding", "locator", locator)
		return Outcome{Kind: OutcomeDiscarded}, nil
	}

	// The message is already stored by the transport.
	ctx = context.WithoutCancel(ctx)

	if p.active != nil {
		if activeID, ok := p.active.Get(); ok && activeID == msg.ThreadID {
			if err := p.messages.MarkRead(ctx, msg.ThreadID); err != nil {
				return p.fail(ctx, SourceMMS, "mark_read_active", err)
			}
			p.logger.DebugContext(ctx, "Marked active conversation read", "thread_id", msg.ThreadID)
		}
	}

	action, err := p.resolveAction(ctx, msg.Address)
	if err != nil {
		return p.fail(ctx, SourceMMS, "resolve_policy", err)
	}
	if dropsMessage(prefs, action) {
		if err := p.messages.DeleteMessages(ctx, msg.ID); err != nil {
			return p.fail(ctx, SourceMMS, "delete_message", err)
		}
		p.logger.InfoContext(ctx, "Deleted MMS from blocked sender", "address", msg.Address, "message_id", msg.ID)
		return Outcome{Kind: OutcomeDropped, ConversationID: msg.ThreadID, MessageID: msg.ID}, nil
	}

	return p.settle(ctx, p.mms, prefs, msg, action)
}
