package domain

import (
	"github.com/google/uuid"
)

// Direction tells whether a message was received or sent.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is a persisted SMS or MMS belonging to a thread.
type Message struct {
	ID              uuid.UUID `json:"id"`
	ThreadID        int64     `json:"thread_id"`
	SubscriptionID  int       `json:"subscription_id"`
	Address         string    `json:"address"`
	Body            string    `json:"body"`
	TimestampMillis int64     `json:"timestamp_millis"`
	Read            bool      `json:"read"`
	Direction       Direction `json:"direction"`
	// ContentLocator is set for MMS rows stored by the transport layer.
	ContentLocator string `json:"content_locator,omitempty"`
}

// SMSFrame is one transport PDU of a possibly multi-part SMS.
// Body is nil when the frame carries no extractable text.
type SMSFrame struct {
	OriginatingAddress string
	Body               *string
	TimestampMillis    int64
}

// SMSBatch is every frame of one logical SMS, in transport arrival order.
type SMSBatch struct {
	SubscriptionID int
	Frames         []SMSFrame
}

// Empty reports whether the batch has no frames at all.
func (b SMSBatch) Empty() bool {
	return len(b.Frames) == 0
}

// MMSLocator is the opaque reference the transport hands over for a
// downloaded MMS. It is resolved by MessageRepository.SyncMessage.
type MMSLocator string
