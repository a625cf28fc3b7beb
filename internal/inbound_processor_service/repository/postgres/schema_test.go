package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("AppliesEveryStatement", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		for _, stmt := range schemaStatements {
			mockPool.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		}

		require.NoError(t, EnsureSchema(ctx, mockPool, discardLogger()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("StopsAtFirstFailure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectExec(regexp.QuoteMeta(schemaStatements[0])).WillReturnError(errors.New("permission denied"))

		err = EnsureSchema(ctx, mockPool, discardLogger())
		assert.ErrorContains(t, err, "schema statement 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
