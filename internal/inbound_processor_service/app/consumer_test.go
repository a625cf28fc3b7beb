package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
	"github.com/aradsms/inbox_services/internal/platform/messagebroker"
)

type fakeMessage struct {
	subject string
	data    []byte
}

func (m fakeMessage) Subject() string { return m.subject }
func (m fakeMessage) Data() []byte    { return m.data }

type MockSubscriber struct {
	mock.Mock
}

func (m *MockSubscriber) SubscribeToSubjectWithQueue(ctx context.Context, subject string, queueGroup string, handler func(msg messagebroker.Message)) error {
	args := m.Called(ctx, subject, queueGroup, handler)
	return args.Error(0)
}

func TestInboundConsumer_HandleMessage(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name      string
		source    Source
		payload   string
		wantEvent bool
		check     func(t *testing.T, ev InboundEvent)
	}{
		{
			name:      "MultiFrameSMS",
			source:    SourceSMS,
			payload:   `{"subscription_id":2,"frames":[{"originating_address":"+15550100","body":"Hello ","timestamp_millis":1700},{"originating_address":"+15550100","timestamp_millis":1701}]}`,
			wantEvent: true,
			check: func(t *testing.T, ev InboundEvent) {
				assert.Equal(t, SourceSMS, ev.Source)
				assert.Equal(t, 2, ev.SMS.SubscriptionID)
				require.Len(t, ev.SMS.Frames, 2)
				require.NotNil(t, ev.SMS.Frames[0].Body)
				assert.Equal(t, "Hello ", *ev.SMS.Frames[0].Body)
				assert.Nil(t, ev.SMS.Frames[1].Body)
			},
		},
		{
			name:      "EmptySMSBatchIsForwarded",
			source:    SourceSMS,
			payload:   `{"subscription_id":1,"frames":[]}`,
			wantEvent: true,
			check: func(t *testing.T, ev InboundEvent) {
				assert.True(t, ev.SMS.Empty())
			},
		},
		{
			name:    "SMSFrameWithoutAddress",
			source:  SourceSMS,
			payload: `{"subscription_id":1,"frames":[{"body":"x","timestamp_millis":1}]}`,
		},
		{
			name:    "MalformedJSON",
			source:  SourceSMS,
			payload: `{"frames":`,
		},
		{
			name:      "MMSLocator",
			source:    SourceMMS,
			payload:   `{"locator":"content://mms/12"}`,
			wantEvent: true,
			check: func(t *testing.T, ev InboundEvent) {
				assert.Equal(t, SourceMMS, ev.Source)
				assert.Equal(t, domain.MMSLocator("content://mms/12"), ev.MMS)
			},
		},
		{
			name:    "MMSWithoutLocator",
			source:  SourceMMS,
			payload: `{}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := make(chan InboundEvent, 1)
			c := NewInboundConsumer(nil, testLogger(), out)

			c.handleMessage(ctx, tc.source, fakeMessage{subject: "sms.inbound.device." + string(tc.source), data: []byte(tc.payload)})

			select {
			case ev := <-out:
				require.True(t, tc.wantEvent, "unexpected event %+v", ev)
				assert.Equal(t, "sms.inbound.device."+string(tc.source), ev.Subject)
				tc.check(t, ev)
			default:
				assert.False(t, tc.wantEvent, "expected an event")
			}
		})
	}
}

func TestInboundConsumer_DecodeWrapsInvalidPayload(t *testing.T) {
	c := NewInboundConsumer(nil, testLogger(), make(chan InboundEvent))

	_, err := c.decode(context.Background(), SourceMMS, fakeMessage{data: []byte(`{"locator":""}`)})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = c.decode(context.Background(), SourceSMS, fakeMessage{data: []byte(`not json`)})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestInboundConsumer_GivesUpWhenWorkersAreBusy(t *testing.T) {
	out := make(chan InboundEvent) // nobody reads
	c := NewInboundConsumer(nil, testLogger(), out)
	c.sendTimeout = 10 * time.Millisecond

	done := make(chan struct{})
	go func() {
		c.handleMessage(context.Background(), SourceMMS, fakeMessage{data: []byte(`{"locator":"content://mms/1"}`)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after send timeout")
	}
}

func TestInboundConsumer_ConsumeSMS(t *testing.T) {
	ctx := context.Background()
	out := make(chan InboundEvent, 1)
	sub := new(MockSubscriber)
	c := NewInboundConsumer(sub, testLogger(), out)

	sub.On("SubscribeToSubjectWithQueue", ctx, "sms.inbound.device.sms", "inbound_processor_group", mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(3).(func(messagebroker.Message))
			handler(fakeMessage{
				subject: "sms.inbound.device.sms",
				data:    []byte(`{"subscription_id":1,"frames":[{"originating_address":"+15550100","body":"hi","timestamp_millis":5}]}`),
			})
		}).
		Return(nil).Once()

	require.NoError(t, c.ConsumeSMS(ctx, "sms.inbound.device.sms", "inbound_processor_group"))

	ev := <-out
	assert.Equal(t, SourceSMS, ev.Source)
	assert.Equal(t, "+15550100", ev.SMS.Frames[0].OriginatingAddress)
	sub.AssertExpectations(t)
}

func TestInboundConsumer_SubscriptionError(t *testing.T) {
	ctx := context.Background()
	sub := new(MockSubscriber)
	c := NewInboundConsumer(sub, testLogger(), make(chan InboundEvent))
	boom := errors.New("nats: connection closed")

	sub.On("SubscribeToSubjectWithQueue", ctx, "sms.inbound.device.mms", "q", mock.Anything).Return(boom).Once()

	err := c.ConsumeMMS(ctx, "sms.inbound.device.mms", "q")
	assert.ErrorIs(t, err, boom)
	sub.AssertExpectations(t)
}
