package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var messageRowColumns = []string{"id", "thread_id", "subscription_id", "address", "body", "timestamp_millis", "read", "direction", "content_locator"}

func TestPgMessageRepository_InsertReceivedSMS(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgMessageRepository(mockPool, discardLogger())

		mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
			WithArgs("+1 555 0100", "+15550100", pgxmock.AnyArg(), 2, "Hello World", int64(1700), "incoming").
			WillReturnRows(mockPool.NewRows([]string{"thread_id"}).AddRow(int64(9)))

		msg, err := repo.InsertReceivedSMS(ctx, 2, "+1 555 0100", "Hello World", 1700)
		require.NoError(t, err)
		assert.Equal(t, int64(9), msg.ThreadID)
		assert.Equal(t, "Hello World", msg.Body)
		assert.Equal(t, domain.DirectionIncoming, msg.Direction)
		assert.NotEqual(t, uuid.Nil, msg.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgMessageRepository(mockPool, discardLogger())

		mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
			WithArgs("+15550100", "+15550100", pgxmock.AnyArg(), 2, "x", int64(1), "incoming").
			WillReturnError(errors.New("disk full"))

		msg, err := repo.InsertReceivedSMS(ctx, 2, "+15550100", "x", 1)
		assert.Nil(t, msg)
		assert.ErrorContains(t, err, "inserting received sms")
		assert.ErrorContains(t, err, "disk full")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgMessageRepository_SyncMessage(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("Found", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgMessageRepository(mockPool, discardLogger())

		rows := mockPool.NewRows(messageRowColumns).
			AddRow(id, int64(3), 1, "+15550100", "pic", int64(500), false, "incoming", sql.NullString{String: "content://mms/1", Valid: true})
		mockPool.ExpectQuery(regexp.QuoteMeta(`FROM messages WHERE content_locator = $1`)).
			WithArgs("content://mms/1").
			WillReturnRows(rows)

		msg, err := repo.SyncMessage(ctx, "content://mms/1")
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, int64(3), msg.ThreadID)
		assert.Equal(t, "content://mms/1", msg.ContentLocator)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Miss", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgMessageRepository(mockPool, discardLogger())

		mockPool.ExpectQuery(regexp.QuoteMeta(`FROM messages WHERE content_locator = $1`)).
			WithArgs("content://mms/404").
			WillReturnError(pgx.ErrNoRows)

		msg, err := repo.SyncMessage(ctx, "content://mms/404")
		assert.NoError(t, err)
		assert.Nil(t, msg)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgMessageRepository_MarkReadAndDelete(t *testing.T) {
	ctx := context.Background()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgMessageRepository(mockPool, discardLogger())

	ids := []uuid.UUID{uuid.New()}
	mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE messages SET read = TRUE WHERE thread_id = $1`)).
		WithArgs(int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM messages WHERE id = ANY($1)`)).
		WithArgs(ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.MarkRead(ctx, 4))
	require.NoError(t, repo.DeleteMessages(ctx, ids...))
	require.NoError(t, repo.DeleteMessages(ctx))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgMessageRepository_GetLastIncomingMessages(t *testing.T) {
	ctx := context.Background()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgMessageRepository(mockPool, discardLogger())

	rows := mockPool.NewRows(messageRowColumns).
		AddRow(uuid.New(), int64(4), 1, "+15550100", "newer", int64(200), false, "incoming", sql.NullString{}).
		AddRow(uuid.New(), int64(4), 1, "+15550100", "older", int64(100), true, "incoming", sql.NullString{})
	mockPool.ExpectQuery(regexp.QuoteMeta(`WHERE thread_id = $1 AND direction = $2`)).
		WithArgs(int64(4), "incoming").
		WillReturnRows(rows)

	msgs, err := repo.GetLastIncomingMessages(ctx, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "newer", msgs[0].Body)
	assert.True(t, msgs[1].Read)
	assert.Empty(t, msgs[0].ContentLocator)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
