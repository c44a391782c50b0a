package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "plinth/pkg/domain"
)

func TestLeaseArena(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire on the same domain is rejected", func(t *testing.T) {
		arena := newLeaseArena()
		domainID := id.DomainID(uuid.New())

		_, _, ok := arena.acquire(ctx, domainID, "verify")
		require.True(t, ok)

		_, holder, ok := arena.acquire(ctx, domainID, "deploy")
		assert.False(t, ok)
		assert.Equal(t, "verify", holder)
	})

	t.Run("different domains are independent", func(t *testing.T) {
		arena := newLeaseArena()

		_, _, ok := arena.acquire(ctx, id.DomainID(uuid.New()), "verify")
		require.True(t, ok)
		_, _, ok = arena.acquire(ctx, id.DomainID(uuid.New()), "verify")
		assert.True(t, ok)
	})

	t.Run("release frees the lease", func(t *testing.T) {
		arena := newLeaseArena()
		domainID := id.DomainID(uuid.New())

		_, _, ok := arena.acquire(ctx, domainID, "verify")
		require.True(t, ok)
		arena.release(domainID)

		_, _, ok = arena.acquire(ctx, domainID, "deploy")
		assert.True(t, ok)
	})

	t.Run("cancelHolder aborts the operation context", func(t *testing.T) {
		arena := newLeaseArena()
		domainID := id.DomainID(uuid.New())

		opCtx, _, ok := arena.acquire(ctx, domainID, "verify")
		require.True(t, ok)

		arena.cancelHolder(domainID)
		assert.ErrorIs(t, opCtx.Err(), context.Canceled)

		// The lease stays held until the holder releases it.
		_, holder, ok := arena.acquire(ctx, domainID, "deploy")
		assert.False(t, ok)
		assert.Equal(t, "verify", holder)

		arena.release(domainID)
		_, _, ok = arena.acquire(ctx, domainID, "deploy")
		assert.True(t, ok)
	})

	t.Run("holder reports the active operation", func(t *testing.T) {
		arena := newLeaseArena()
		domainID := id.DomainID(uuid.New())

		_, held := arena.holder(domainID)
		assert.False(t, held)

		_, _, ok := arena.acquire(ctx, domainID, "deploy")
		require.True(t, ok)
		op, held := arena.holder(domainID)
		assert.True(t, held)
		assert.Equal(t, "deploy", op)
	})
}
