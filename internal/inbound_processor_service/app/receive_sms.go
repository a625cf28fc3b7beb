package app

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// ReceiveSMS processes one logical SMS. The sender is taken from the first
// frame and the body is every frame's text joined in arrival order.
func (p *Pipeline) ReceiveSMS(ctx context.Context, prefs domain.Preferences, batch domain.SMSBatch) (out Outcome, err error) {
	start := time.Now()
	defer func() { p.finish(SourceSMS, start, out, err) }()

	if batch.Empty() {
		p.logger.DebugContext(ctx, "Discarding empty SMS batch", "subscription_id", batch.SubscriptionID)
		return Outcome{Kind: OutcomeDiscarded}, nil
	}

	first := batch.Frames[0]
	address := first.OriginatingAddress

	action, err := p.resolveAction(ctx, address)
	if err != nil {
		return p.fail(ctx, SourceSMS, "resolve_policy", err)
	}
	if dropsMessage(prefs, action) {
		p.logger.InfoContext(ctx, "Dropping SMS from blocked sender", "address", address)
		return Outcome{Kind: OutcomeDropped}, nil
	}

	body := assembleBody(batch.Frames)
	msg, err := p.messages.InsertReceivedSMS(ctx, batch.SubscriptionID, address, body, first.TimestampMillis)
	if err != nil {
		return p.fail(ctx, SourceSMS, "insert_message", err)
	}
	p.logger.DebugContext(ctx, "Stored received SMS",
		"message_id", msg.ID,
		"thread_id", msg.ThreadID,
		"frames", len(batch.Frames),
		"action", action.String(),
	)

	// The message is stored; the rest must run to completion.
	return p.settle(context.WithoutCancel(ctx), p.sms, prefs, msg, action)
}

func assembleBody(frames []domain.SMSFrame) string {
	parts := lo.FilterMap(frames, func(f domain.SMSFrame, _ int) (string, bool) {
		if f.Body == nil {
			return "", false
		}
		return *f.Body, true
	})
	return strings.Join(parts, "")
}
