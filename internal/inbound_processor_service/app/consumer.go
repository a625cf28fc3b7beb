package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
	"github.com/aradsms/inbox_services/internal/platform/messagebroker"
)

const defaultSendTimeout = 5 * time.Second

// InboundEvent is one decoded transport message waiting for a worker.
type InboundEvent struct {
	Source  Source
	SMS     domain.SMSBatch
	MMS     domain.MMSLocator
	Subject string
}

// InboundConsumer decodes raw inbound SMS and MMS announcements from NATS and
// forwards them to the workers.
type InboundConsumer struct {
	subscriber  messagebroker.Subscriber
	validate    *validator.Validate
	logger      *slog.Logger
	outputChan  chan<- InboundEvent
	sendTimeout time.Duration
}

func NewInboundConsumer(subscriber messagebroker.Subscriber, logger *slog.Logger, outputChan chan<- InboundEvent) *InboundConsumer {
	return &InboundConsumer{
		subscriber:  subscriber,
		validate:    validator.New(),
		logger:      logger.With("component", "inbound_consumer"),
		outputChan:  outputChan,
		sendTimeout: defaultSendTimeout,
	}
}

// ConsumeSMS blocks in a queue subscription on subject until ctx is cancelled.
func (c *InboundConsumer) ConsumeSMS(ctx context.Context, subject, queueGroup string) error {
	return c.consume(ctx, SourceSMS, subject, queueGroup)
}

// ConsumeMMS blocks in a queue subscription on subject until ctx is cancelled.
func (c *InboundConsumer) ConsumeMMS(ctx context.Context, subject, queueGroup string) error {
	return c.consume(ctx, SourceMMS, subject, queueGroup)
}

func (c *InboundConsumer) consume(ctx context.Context, source Source, subject, queueGroup string) error {
	c.logger.InfoContext(ctx, "Starting NATS subscription", "source", source, "subject", subject, "queue_group", queueGroup)
	err := c.subscriber.SubscribeToSubjectWithQueue(ctx, subject, queueGroup, func(msg messagebroker.Message) {
		c.handleMessage(ctx, source, msg)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "NATS subscription failed", "error", err, "subject", subject)
		return err
	}
	c.logger.InfoContext(ctx, "NATS subscription ended", "subject", subject)
	return nil
}

func (c *InboundConsumer) handleMessage(ctx context.Context, source Source, msg messagebroker.Message) {
	natsInboundReceivedCounter.WithLabelValues(string(source)).Inc()
	c.logger.DebugContext(ctx, "Received NATS message", "subject", msg.Subject(), "data_len", len(msg.Data()))

	event, err := c.decode(ctx, source, msg)
	if err != nil {
		c.logger.ErrorContext(ctx, "Rejecting inbound message", "error", err, "subject", msg.Subject())
		return
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, c.sendTimeout)
	defer cancelSend()

	select {
	case c.outputChan <- event:
		c.logger.DebugContext(ctx, "Queued inbound message for processing", "source", source, "subject", msg.Subject())
	case <-ctx.Done():
		natsInboundRejectedCounter.WithLabelValues(string(source), "shutdown").Inc()
		c.logger.InfoContext(ctx, "Context cancelled, not queueing inbound message", "subject", msg.Subject())
	case <-sendCtx.Done():
		natsInboundRejectedCounter.WithLabelValues(string(source), "backpressure").Inc()
		c.logger.ErrorContext(ctx, "Timed out queueing inbound message", "error", sendCtx.Err(), "subject", msg.Subject())
	}
}

// decode parses and validates the payload for source. Failures wrap
// domain.ErrInvalidPayload.
func (c *InboundConsumer) decode(ctx context.Context, source Source, msg messagebroker.Message) (InboundEvent, error) {
	event := InboundEvent{Source: source, Subject: msg.Subject()}

	var target any
	var sms domain.InboundSMSRequest
	var mms domain.InboundMMSRequest
	switch source {
	case SourceSMS:
		target = &sms
	case SourceMMS:
		target = &mms
	default:
		return event, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidPayload, source)
	}

	if err := json.Unmarshal(msg.Data(), target); err != nil {
		natsInboundRejectedCounter.WithLabelValues(string(source), "decode").Inc()
		return event, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := c.validate.StructCtx(ctx, target); err != nil {
		natsInboundRejectedCounter.WithLabelValues(string(source), "validation").Inc()
		return event, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if source == SourceSMS {
		event.SMS = sms.ToBatch()
	} else {
		event.MMS = domain.MMSLocator(mms.Locator)
	}
	return event, nil
}
