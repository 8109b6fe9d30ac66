package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gardener_service/internal/app/config"
)

type fakePool struct {
	pingErr error
	closed  bool
}

func (f *fakePool) Ping(context.Context) error { return f.pingErr }
func (f *fakePool) Close()                     { f.closed = true }

func stubNewPool(t *testing.T, fn func(ctx context.Context, cfg *pgxpool.Config) (pooler, error)) {
	t.Helper()
	orig := newPool
	newPool = fn
	t.Cleanup(func() { newPool = orig })
}

func TestConnectWithRetry(t *testing.T) {
	poolCfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)

	t.Run("succeeds after failed pings", func(t *testing.T) {
		var created []*fakePool
		stubNewPool(t, func(context.Context, *pgxpool.Config) (pooler, error) {
			p := &fakePool{}
			if len(created) < 2 {
				p.pingErr = errors.New("connection refused")
			}
			created = append(created, p)
			return p, nil
		})

		p, err := connectWithRetry(context.Background(), poolCfg, 5, time.Millisecond)
		require.NoError(t, err)
		require.Len(t, created, 3)
		assert.Same(t, created[2], p)
		assert.True(t, created[0].closed, "Ping に失敗したプールは閉じること")
		assert.True(t, created[1].closed)
		assert.False(t, created[2].closed)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		stubNewPool(t, func(context.Context, *pgxpool.Config) (pooler, error) {
			attempts++
			return nil, errors.New("dial tcp: no route")
		})

		_, err := connectWithRetry(context.Background(), poolCfg, 3, time.Millisecond)
		require.Error(t, err)
		assert.Equal(t, 3, attempts)
		assert.Contains(t, err.Error(), "after 3 retries")
		assert.Contains(t, err.Error(), "no route")
	})

	t.Run("stops waiting when context is cancelled", func(t *testing.T) {
		stubNewPool(t, func(context.Context, *pgxpool.Config) (pooler, error) {
			return &fakePool{pingErr: errors.New("down")}, nil
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := connectWithRetry(ctx, poolCfg, 5, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestConnectRequiresDatabaseConfig(t *testing.T) {
	_, err := Connect(context.Background(), config.DatabaseConfig{})
	assert.ErrorIs(t, err, config.ErrMissingDatabase)
}
