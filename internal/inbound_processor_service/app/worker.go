package app

import (
	"context"
	"log/slog"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// Receiver is the pipeline as seen by workers.
type Receiver interface {
	ReceiveSMS(ctx context.Context, prefs domain.Preferences, batch domain.SMSBatch) (Outcome, error)
	ReceiveMMS(ctx context.Context, prefs domain.Preferences, locator domain.MMSLocator) (Outcome, error)
}

// Worker drains InboundEvents into the pipeline, one at a time.
type Worker struct {
	id       int
	receiver Receiver
	prefs    PreferencesSource
	logger   *slog.Logger
}

func NewWorker(id int, receiver Receiver, prefs PreferencesSource, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		receiver: receiver,
		prefs:    prefs,
		logger:   logger.With("component", "inbound_worker", "worker_id", id),
	}
}

// Run processes events until ctx is cancelled or in is closed. Pipeline errors
// are logged; the transport redelivers on its own.
func (w *Worker) Run(ctx context.Context, in <-chan InboundEvent) error {
	w.logger.InfoContext(ctx, "Worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Worker stopping", "reason", ctx.Err())
			return nil
		case event, ok := <-in:
			if !ok {
				w.logger.InfoContext(ctx, "Inbound channel closed, worker stopping")
				return nil
			}
			w.process(ctx, event)
		}
	}
}

func (w *Worker) process(ctx context.Context, event InboundEvent) {
	prefs := w.prefs.Preferences(ctx)

	var (
		out Outcome
		err error
	)
	switch event.Source {
	case SourceSMS:
		out, err = w.receiver.ReceiveSMS(ctx, prefs, event.SMS)
	case SourceMMS:
		out, err = w.receiver.ReceiveMMS(ctx, prefs, event.MMS)
	default:
		w.logger.ErrorContext(ctx, "Dropping event with unknown source", "source", event.Source, "subject", event.Subject)
		return
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to process inbound message", "source", event.Source, "subject", event.Subject, "error", err)
		return
	}
	w.logger.InfoContext(ctx, "Processed inbound message",
		"source", event.Source,
		"outcome", out.Kind,
		"conversation_id", out.ConversationID,
		"message_id", out.MessageID,
	)
}
