package domain

// InboundSMSFrameRequest is one PDU as published by the device transport.
type InboundSMSFrameRequest struct {
	OriginatingAddress string  `json:"originating_address" validate:"required"`
	Body               *string `json:"body,omitempty"`
	TimestampMillis    int64   `json:"timestamp_millis" validate:"gt=0"`
}

// InboundSMSRequest is the NATS payload for one received SMS. Frames are in
// arrival order; an empty list is accepted and discarded by the pipeline.
type InboundSMSRequest struct {
	SubscriptionID int                      `json:"subscription_id" validate:"gte=-1"`
	Frames         []InboundSMSFrameRequest `json:"frames" validate:"dive"`
}

// ToBatch converts the request into the pipeline's input.
func (r InboundSMSRequest) ToBatch() SMSBatch {
	frames := make([]SMSFrame, 0, len(r.Frames))
	for _, f := range r.Frames {
		frames = append(frames, SMSFrame{
			OriginatingAddress: f.OriginatingAddress,
			Body:               f.Body,
			TimestampMillis:    f.TimestampMillis,
		})
	}
	return SMSBatch{SubscriptionID: r.SubscriptionID, Frames: frames}
}

// InboundMMSRequest announces an MMS the transport layer has already stored.
type InboundMMSRequest struct {
	Locator string `json:"locator" validate:"required"`
}
