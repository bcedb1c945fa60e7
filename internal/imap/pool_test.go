package imap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/threadsync/internal/testutil"
)

func TestPool_GetClient(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewTestIMAPServer(t)

	t.Run("reuses an idle connection", func(t *testing.T) {
		pool := NewPool(WithTLS(false))
		defer pool.Close()

		c1, release1, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		release1()

		c2, release2, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		defer release2()

		assert.Same(t, c1, c2)
	})

	t.Run("opens a second connection while the first is busy", func(t *testing.T) {
		pool := NewPool(WithTLS(false), WithMaxWorkers(2))
		defer pool.Close()

		c1, release1, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		defer release1()

		c2, release2, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		defer release2()

		assert.NotSame(t, c1, c2)
	})

	t.Run("waits for a free slot until the context ends", func(t *testing.T) {
		pool := NewPool(WithTLS(false), WithMaxWorkers(1))
		defer pool.Close()

		_, release, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		defer release()

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, _, err = pool.GetClient(waitCtx, "acc-1", server.Address, server.Username(), server.Password())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("accounts do not share connections", func(t *testing.T) {
		pool := NewPool(WithTLS(false), WithMaxWorkers(1))
		defer pool.Close()

		_, release1, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		defer release1()

		_, release2, err := pool.GetClient(ctx, "acc-2", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		release2()
	})

	t.Run("redials after RemoveClient", func(t *testing.T) {
		pool := NewPool(WithTLS(false))
		defer pool.Close()

		c1, release1, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		release1()

		pool.RemoveClient("acc-1")

		c2, release2, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
		require.NoError(t, err)
		defer release2()
		assert.NotSame(t, c1, c2)
	})
}

func TestPool_CleanupIdleConnections(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewTestIMAPServer(t)
	pool := NewPool(WithTLS(false))
	defer pool.Close()

	_, release, err := pool.GetClient(ctx, "acc-1", server.Address, server.Username(), server.Password())
	require.NoError(t, err)
	release()

	pool.cleanupIdleConnections(time.Now())
	pool.mu.RLock()
	_, kept := pool.workerSets["acc-1"]
	pool.mu.RUnlock()
	assert.True(t, kept, "recently used connection must survive")

	pool.cleanupIdleConnections(time.Now().Add(workerIdleTimeout + time.Minute))
	pool.mu.RLock()
	_, kept = pool.workerSets["acc-1"]
	pool.mu.RUnlock()
	assert.False(t, kept, "idle connection must be closed")
}
