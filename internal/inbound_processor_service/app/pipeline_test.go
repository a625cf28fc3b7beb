package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
	"github.com/aradsms/inbox_services/internal/inbound_processor_service/repository/memory"
)

// --- Test doubles ---

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type recordingNotifier struct {
	name string
	log  *callLog
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) ConversationUpdated(_ context.Context, id int64) error {
	n.log.add(fmt.Sprintf("%s:%d", n.name, id))
	return nil
}

type MockConversationNotifier struct {
	mock.Mock
}

func (m *MockConversationNotifier) Name() string { return "mock" }

func (m *MockConversationNotifier) ConversationUpdated(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockContactDirectory struct {
	mock.Mock
}

func (m *MockContactDirectory) FindContact(ctx context.Context, address string) (*domain.Contact, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contact), args.Error(1)
}

// failingMessages fails InsertReceivedSMS and delegates everything else.
type failingMessages struct {
	*memory.MessageRepository
	err error
}

func (f failingMessages) InsertReceivedSMS(context.Context, int, string, string, int64) (*domain.Message, error) {
	return nil, f.err
}

// failingBlocks fails MarkBlocked and delegates everything else.
type failingBlocks struct {
	*memory.ConversationRepository
	err error
}

func (f failingBlocks) MarkBlocked(context.Context, []int64, domain.BlockingManager, string) error {
	return f.err
}

// gatedArchiver holds every EnsureConversation caller until all of them have
// decided row existence, and counts MarkArchived calls.
type gatedArchiver struct {
	*memory.ConversationRepository
	arrived  *sync.WaitGroup
	mu       sync.Mutex
	archived int
}

func (g *gatedArchiver) EnsureConversation(ctx context.Context, threadID int64) (*domain.Conversation, bool, error) {
	conv, created, err := g.ConversationRepository.EnsureConversation(ctx, threadID)
	g.arrived.Done()
	g.arrived.Wait()
	return conv, created, err
}

func (g *gatedArchiver) MarkArchived(ctx context.Context, threadID int64) error {
	g.mu.Lock()
	g.archived++
	g.mu.Unlock()
	return g.ConversationRepository.MarkArchived(ctx, threadID)
}

// --- Fixture ---

type fixture struct {
	pipeline      *Pipeline
	messages      *memory.MessageRepository
	conversations *memory.ConversationRepository
	policy        *memory.BlockingPolicy
	contacts      *memory.ContactDirectory
	active        *ActiveConversation
	notified      *callLog
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	messages := memory.NewMessageRepository(logger)
	f := &fixture{
		messages:      messages,
		conversations: memory.NewConversationRepository(messages, logger),
		policy:        memory.NewBlockingPolicy(),
		contacts:      memory.NewContactDirectory(),
		active:        &ActiveConversation{},
		notified:      &callLog{},
	}
	f.rebuild(f.stores(), f.notifiers())
	return f
}

func (f *fixture) stores() Stores {
	return Stores{Messages: f.messages, Conversations: f.conversations, Policy: f.policy, Contacts: f.contacts}
}

func (f *fixture) notifiers() Notifiers {
	return Notifiers{
		Notification: &recordingNotifier{name: "notification", log: f.notified},
		Shortcut:     &recordingNotifier{name: "shortcut", log: f.notified},
		Badge:        &recordingNotifier{name: "badge", log: f.notified},
	}
}

func (f *fixture) rebuild(stores Stores, notifiers Notifiers) {
	f.pipeline = NewPipeline(stores, f.active, notifiers, testLogger())
}

func (f *fixture) conversation(t *testing.T, threadID int64) *domain.Conversation {
	t.Helper()
	conv, err := f.conversations.GetConversation(context.Background(), threadID)
	require.NoError(t, err)
	return conv
}

func keepPrefs() domain.Preferences {
	return domain.Preferences{DropBlocked: false, BlockingManager: domain.BlockingManagerQKSMS}
}

func dropPrefs() domain.Preferences {
	return domain.Preferences{DropBlocked: true, BlockingManager: domain.BlockingManagerQKSMS}
}

func text(s string) *string { return &s }

func smsFrom(address string, bodies ...*string) domain.SMSBatch {
	batch := domain.SMSBatch{SubscriptionID: 1}
	for i, b := range bodies {
		batch.Frames = append(batch.Frames, domain.SMSFrame{
			OriginatingAddress: address,
			Body:               b,
			TimestampMillis:    int64(1000 + i),
		})
	}
	return batch
}

const (
	contactAddr  = "+15550100"
	strangerAddr = "+15550199"
)

// --- SMS ---

func TestReceiveSMS_StrangerFirstMessageIsArchivedSilently(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), smsFrom(strangerAddr, text("Hi")))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuppressed, out.Kind)
	msgs := f.messages.Messages(out.ConversationID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi", msgs[0].Body)

	conv := f.conversation(t, out.ConversationID)
	require.NotNil(t, conv)
	assert.True(t, conv.Archived)
	assert.False(t, conv.Blocked)
	assert.Empty(t, f.notified.all())
}

func TestReceiveSMS_BlockedContactDroppedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	f.policy.Set(contactAddr, domain.Block{Reason: "spam"})

	out, err := f.pipeline.ReceiveSMS(context.Background(), dropPrefs(), smsFrom(contactAddr, text("buy now")))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDropped, out.Kind)
	assert.Zero(t, f.messages.Count())
	assert.Zero(t, f.conversations.Count())
	assert.Empty(t, f.notified.all())
}

func TestReceiveSMS_ContactNotifiesFullChainInOrder(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")

	out, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), smsFrom(contactAddr, text("hey")))
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotified, out.Kind)
	id := out.ConversationID
	assert.Equal(t, []string{
		fmt.Sprintf("notification:%d", id),
		fmt.Sprintf("shortcut:%d", id),
		fmt.Sprintf("badge:%d", id),
	}, f.notified.all())

	conv := f.conversation(t, id)
	require.NotNil(t, conv)
	assert.False(t, conv.Archived)
	assert.Equal(t, "hey", conv.Snippet)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, out.MessageID, conv.LastMessageID.UUID)
}

func TestReceiveSMS_BodyAssembly(t *testing.T) {
	testCases := []struct {
		name   string
		bodies []*string
		want   string
	}{
		{name: "InOrder", bodies: []*string{text("Hello "), text("World")}, want: "Hello World"},
		{name: "FrameWithoutBody", bodies: []*string{text("Hello "), nil, text("World")}, want: "Hello World"},
		{name: "NoBodies", bodies: []*string{nil}, want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			out, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), smsFrom(contactAddr, tc.bodies...))
			require.NoError(t, err)

			msgs := f.messages.Messages(out.ConversationID)
			require.Len(t, msgs, 1)
			assert.Equal(t, tc.want, msgs[0].Body)
			assert.Equal(t, int64(1000), msgs[0].TimestampMillis)
		})
	}
}

func TestReceiveSMS_EmptyBatchIsDiscarded(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), domain.SMSBatch{SubscriptionID: 1})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDiscarded, out.Kind)
	assert.Zero(t, f.messages.Count())
	assert.Zero(t, f.conversations.Count())
	assert.Empty(t, f.notified.all())
}

func TestReceiveSMS_BlockedFlagFollowsLatestAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	prefs := domain.Preferences{BlockingManager: domain.BlockingManagerCallBlocker}

	f.policy.Set(contactAddr, domain.Block{Reason: "spam"})
	out, err := f.pipeline.ReceiveSMS(ctx, prefs, smsFrom(contactAddr, text("1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, out.Kind)

	conv := f.conversation(t, out.ConversationID)
	assert.True(t, conv.Blocked)
	assert.Equal(t, domain.BlockingManagerCallBlocker, conv.BlockingClient)
	assert.Equal(t, "spam", conv.BlockReason)
	assert.Zero(t, conv.UnreadCount, "blocked messages are marked read")

	f.policy.Set(contactAddr, domain.NoAction{})
	_, err = f.pipeline.ReceiveSMS(ctx, prefs, smsFrom(contactAddr, text("2")))
	require.NoError(t, err)
	assert.True(t, f.conversation(t, out.ConversationID).Blocked, "NoAction leaves the flag unchanged")

	f.policy.Set(contactAddr, domain.Unblock{})
	out, err = f.pipeline.ReceiveSMS(ctx, prefs, smsFrom(contactAddr, text("3")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotified, out.Kind)
	conv = f.conversation(t, out.ConversationID)
	assert.False(t, conv.Blocked)
	assert.Empty(t, conv.BlockReason)
	assert.Len(t, f.messages.Messages(out.ConversationID), 3)
}

func TestReceiveSMS_ArchivalIsOneShot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.pipeline.ReceiveSMS(ctx, keepPrefs(), smsFrom(strangerAddr, text("first")))
	require.NoError(t, err)
	require.True(t, f.conversation(t, out.ConversationID).Archived)

	require.NoError(t, f.conversations.MarkUnarchived(ctx, out.ConversationID))

	out, err = f.pipeline.ReceiveSMS(ctx, keepPrefs(), smsFrom(strangerAddr, text("second")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotified, out.Kind)
	assert.False(t, f.conversation(t, out.ConversationID).Archived)
	assert.Equal(t, 1, f.conversations.Created())
}

func TestReceiveSMS_ExistingConversationIsNotArchived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A thread whose conversation row already exists, e.g. from an outgoing message.
	seed, err := f.messages.InsertReceivedSMS(ctx, 1, strangerAddr, "earlier", 1)
	require.NoError(t, err)
	_, err = f.conversations.GetOrCreateConversation(ctx, seed.ThreadID)
	require.NoError(t, err)

	out, err := f.pipeline.ReceiveSMS(ctx, keepPrefs(), smsFrom(strangerAddr, text("again")))
	require.NoError(t, err)
	assert.Equal(t, seed.ThreadID, out.ConversationID)
	assert.Equal(t, OutcomeNotified, out.Kind)
	assert.False(t, f.conversation(t, out.ConversationID).Archived)
}

func TestReceiveSMS_ConcurrentFirstMessagesCreateOneConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const senders = 32

	var wg sync.WaitGroup
	outcomes := make([]Outcome, senders)
	errs := make([]error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.pipeline.ReceiveSMS(ctx, keepPrefs(), smsFrom(strangerAddr, text(fmt.Sprintf("m%d", i))))
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, outcomes[0].ConversationID, outcomes[i].ConversationID)
	}
	assert.Equal(t, 1, f.conversations.Count())
	assert.Equal(t, 1, f.conversations.Created())
	assert.Equal(t, senders, f.messages.Count())

	conv := f.conversation(t, outcomes[0].ConversationID)
	assert.True(t, conv.Archived)
	assert.Equal(t, senders, conv.UnreadCount)
}

func TestReceiveSMS_ConcurrentFirstMessagesArchiveOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const senders = 2

	var arrived sync.WaitGroup
	arrived.Add(senders)
	gate := &gatedArchiver{ConversationRepository: f.conversations, arrived: &arrived}
	stores := f.stores()
	stores.Conversations = gate
	f.rebuild(stores, f.notifiers())

	var wg sync.WaitGroup
	errs := make([]error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.pipeline.ReceiveSMS(ctx, keepPrefs(), smsFrom(strangerAddr, text(fmt.Sprintf("m%d", i))))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, gate.archived)
	assert.Equal(t, 1, f.conversations.Created())
}

func TestReceiveSMS_PersistenceFailureStopsWithoutNotifying(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	stores := f.stores()
	stores.Messages = failingMessages{MessageRepository: f.messages, err: errors.New("disk full")}
	f.rebuild(stores, f.notifiers())

	_, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), smsFrom(contactAddr, text("x")))
	require.Error(t, err)
	assert.ErrorContains(t, err, "insert_message")
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, f.conversations.Count())
	assert.Empty(t, f.notified.all())
}

func TestReceiveSMS_StatusFailureStopsWithoutNotifying(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	f.policy.Set(contactAddr, domain.Block{Reason: "spam"})
	stores := f.stores()
	boom := errors.New("lock timeout")
	stores.Conversations = failingBlocks{ConversationRepository: f.conversations, err: boom}
	f.rebuild(stores, f.notifiers())

	_, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), smsFrom(contactAddr, text("x")))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.messages.Count(), "stored message is kept")
	assert.Empty(t, f.notified.all())
}

func TestReceiveSMS_ContactLookupFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	contacts := new(MockContactDirectory)
	boom := errors.New("directory unavailable")
	contacts.On("FindContact", mock.Anything, contactAddr).Return(nil, boom).Once()
	stores := f.stores()
	stores.Contacts = contacts
	f.rebuild(stores, f.notifiers())

	_, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), smsFrom(contactAddr, text("x")))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.notified.all())
	contacts.AssertExpectations(t)
}

func TestReceiveSMS_NotifierFailureDoesNotFailInvocation(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	failing := new(MockConversationNotifier)
	failing.On("ConversationUpdated", mock.Anything, mock.AnythingOfType("int64")).Return(errors.New("renderer gone")).Once()
	notifiers := f.notifiers()
	notifiers.Notification = failing
	f.rebuild(f.stores(), notifiers)

	out, err := f.pipeline.ReceiveSMS(context.Background(), keepPrefs(), smsFrom(contactAddr, text("x")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotified, out.Kind)
	assert.Equal(t, []string{
		fmt.Sprintf("shortcut:%d", out.ConversationID),
		fmt.Sprintf("badge:%d", out.ConversationID),
	}, f.notified.all())
	failing.AssertExpectations(t)
}

func TestReceiveSMS_CancelledAfterPersistenceStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	ctx, cancel := context.WithCancel(context.Background())

	notifier := new(MockConversationNotifier)
	notifier.On("ConversationUpdated", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), mock.AnythingOfType("int64")).
		Return(nil).Once()

	stores := f.stores()
	stores.Messages = cancellingMessages{MessageRepository: f.messages, cancel: cancel}
	f.rebuild(stores, Notifiers{Notification: notifier})

	out, err := f.pipeline.ReceiveSMS(ctx, keepPrefs(), smsFrom(contactAddr, text("x")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotified, out.Kind)
	notifier.AssertExpectations(t)
}

// cancellingMessages cancels the caller's context once the message is stored.
type cancellingMessages struct {
	*memory.MessageRepository
	cancel context.CancelFunc
}

func (c cancellingMessages) InsertReceivedSMS(ctx context.Context, subID int, address, body string, ts int64) (*domain.Message, error) {
	msg, err := c.MessageRepository.InsertReceivedSMS(ctx, subID, address, body, ts)
	c.cancel()
	return msg, err
}

// --- MMS ---

func storeMMS(t *testing.T, f *fixture, address string, locator domain.MMSLocator, ts int64) *domain.Message {
	t.Helper()
	msg, err := f.messages.StoreTransportMMS(context.Background(), 1, address, "picture", ts, locator)
	require.NoError(t, err)
	return msg
}

func TestReceiveMMS_ContactNotifiesWithoutShortcut(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	stored := storeMMS(t, f, contactAddr, "content://mms/1", 10)

	out, err := f.pipeline.ReceiveMMS(context.Background(), keepPrefs(), "content://mms/1")
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotified, out.Kind)
	assert.Equal(t, stored.ThreadID, out.ConversationID)
	assert.Equal(t, stored.ID, out.MessageID)
	assert.Equal(t, []string{
		fmt.Sprintf("notification:%d", stored.ThreadID),
		fmt.Sprintf("badge:%d", stored.ThreadID),
	}, f.notified.all())
}

func TestReceiveMMS_SyncMissIsDiscarded(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.ReceiveMMS(context.Background(), keepPrefs(), "content://mms/404")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, out.Kind)
	assert.Zero(t, f.conversations.Count())
	assert.Empty(t, f.notified.all())
}

func TestReceiveMMS_BlockedAndDroppedIsDeleted(t *testing.T) {
	f := newFixture(t)
	f.policy.Set(strangerAddr, domain.Block{Reason: "spam"})
	stored := storeMMS(t, f, strangerAddr, "content://mms/2", 10)

	out, err := f.pipeline.ReceiveMMS(context.Background(), dropPrefs(), "content://mms/2")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDropped, out.Kind)
	assert.Equal(t, stored.ID, out.MessageID)
	assert.Zero(t, f.messages.Count())
	assert.Zero(t, f.conversations.Count())
	assert.Empty(t, f.notified.all())
}

func TestReceiveMMS_ActiveConversationIsMarkedRead(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	stored := storeMMS(t, f, contactAddr, "content://mms/3", 10)
	f.active.Set(stored.ThreadID)

	_, err := f.pipeline.ReceiveMMS(context.Background(), keepPrefs(), "content://mms/3")
	require.NoError(t, err)

	msgs := f.messages.Messages(stored.ThreadID)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read)
	assert.Zero(t, f.conversation(t, stored.ThreadID).UnreadCount)
}

func TestReceiveMMS_InactiveConversationStaysUnread(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	stored := storeMMS(t, f, contactAddr, "content://mms/4", 10)
	f.active.Set(stored.ThreadID + 100)

	_, err := f.pipeline.ReceiveMMS(context.Background(), keepPrefs(), "content://mms/4")
	require.NoError(t, err)
	assert.Equal(t, 1, f.conversation(t, stored.ThreadID).UnreadCount)
}

func TestReceiveMMS_NewConversationMeansSingleIncomingMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("OnlyMessageIsArchived", func(t *testing.T) {
		f := newFixture(t)
		stored := storeMMS(t, f, strangerAddr, "content://mms/5", 10)

		out, err := f.pipeline.ReceiveMMS(ctx, keepPrefs(), "content://mms/5")
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuppressed, out.Kind)
		assert.True(t, f.conversation(t, stored.ThreadID).Archived)
	})

	t.Run("EarlierIncomingWithoutConversationIsNotArchived", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.messages.InsertReceivedSMS(ctx, 1, strangerAddr, "earlier", 5)
		require.NoError(t, err)
		stored := storeMMS(t, f, strangerAddr, "content://mms/6", 10)
		require.Nil(t, f.conversation(t, stored.ThreadID))

		out, err := f.pipeline.ReceiveMMS(ctx, keepPrefs(), "content://mms/6")
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotified, out.Kind)
		assert.False(t, f.conversation(t, stored.ThreadID).Archived)
	})
}

func TestReceiveMMS_BlockKeepsMessageAndSuppresses(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(contactAddr, "Ana")
	f.policy.Set(contactAddr, domain.Block{Reason: "robocall"})
	stored := storeMMS(t, f, contactAddr, "content://mms/7", 10)

	out, err := f.pipeline.ReceiveMMS(context.Background(), keepPrefs(), "content://mms/7")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, out.Kind)
	assert.Equal(t, 1, f.messages.Count())

	conv := f.conversation(t, stored.ThreadID)
	assert.True(t, conv.Blocked)
	assert.Equal(t, "robocall", conv.BlockReason)
	assert.Empty(t, f.notified.all())
}

// --- Predicates ---

func TestNewConversationTests(t *testing.T) {
	ctx := context.Background()
	msg := &domain.Message{ThreadID: 1}

	isNew, err := ConversationAbsent{}.IsNewConversation(ctx, msg, true)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = ConversationAbsent{}.IsNewConversation(ctx, msg, false)
	require.NoError(t, err)
	assert.False(t, isNew)

	messages := memory.NewMessageRepository(testLogger())
	first, err := messages.InsertReceivedSMS(ctx, 1, strangerAddr, "a", 1)
	require.NoError(t, err)
	test := SingleIncomingMessage{Messages: messages}

	isNew, err = test.IsNewConversation(ctx, first, false)
	require.NoError(t, err)
	assert.True(t, isNew, "row creation does not matter")

	_, err = messages.InsertReceivedSMS(ctx, 1, strangerAddr, "b", 2)
	require.NoError(t, err)
	isNew, err = test.IsNewConversation(ctx, first, true)
	require.NoError(t, err)
	assert.False(t, isNew)
}
