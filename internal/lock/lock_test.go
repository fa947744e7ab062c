package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Acquire(ctx, "check", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "check", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.NoError(t, err, "names are independent")

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "check", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.clock = func() time.Time { return now }

	staleRelease, err := l.Acquire(ctx, "check", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = l.Acquire(ctx, "check", time.Minute)
	require.NoError(t, err)

	// The expired holder must not release the new holder's lock.
	require.NoError(t, staleRelease(ctx))
	_, err = l.Acquire(ctx, "check", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
}
