package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "transfer:1", "123456", time.Minute))

	code, err := m.Get(ctx, "transfer:1")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	_, err := m.Get(context.Background(), "transfer:99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLastWriteWins(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "transfer:1", "111111", time.Minute))
	require.NoError(t, m.Put(ctx, "transfer:1", "222222", time.Minute))

	code, err := m.Get(ctx, "transfer:1")
	require.NoError(t, err)
	assert.Equal(t, "222222", code)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "transfer:1", "123456", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, err := m.Get(ctx, "transfer:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "transfer:1", "123456", time.Minute))
	require.NoError(t, m.Delete(ctx, "transfer:1"))

	_, err := m.Get(ctx, "transfer:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKeysIndependent(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "transfer:1", "111111", time.Minute))
	require.NoError(t, m.Put(ctx, "transfer:2", "222222", time.Minute))
	require.NoError(t, m.Delete(ctx, "transfer:1"))

	code, err := m.Get(ctx, "transfer:2")
	require.NoError(t, err)
	assert.Equal(t, "222222", code)
}
