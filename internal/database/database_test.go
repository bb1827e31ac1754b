package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/config"
)

func TestDBTX_SatisfiedByMockPool(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	var _ DBTX = mock
}

func TestHealthStatus_JSON(t *testing.T) {
	h := HealthStatus{Status: "healthy", TotalConns: 4, IdleConns: 3, MaxConns: 20}

	data, err := json.Marshal(h)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "healthy", out["status"])
	assert.NotContains(t, out, "error")
	assert.EqualValues(t, 20, out["max_conns"])
}

func TestNew_NilConfig(t *testing.T) {
	db, err := New(context.Background(), nil, zerolog.Nop())
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "database config is required")
}

func TestNew_ConnectionError(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:           "127.0.0.1",
		Port:           1,
		User:           "nobody",
		Password:       "nothing",
		Name:           "none",
		SSLMode:        config.SSLModeDisable,
		ConnectTimeout: 500 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, cfg, zerolog.Nop())
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "failed to ping database")
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE papers").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err = RunInTx(ctx, mock, zerolog.Nop(), func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "UPDATE papers SET title = $1", "x")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err = RunInTx(ctx, mock, zerolog.Nop(), func(pgx.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = RunInTx(ctx, mock, zerolog.Nop(), func(pgx.Tx) error { panic("bad") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin().WillReturnError(errors.New("no connections"))

		err = RunInTx(ctx, mock, zerolog.Nop(), func(pgx.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to begin transaction")
	})
}
