package filelock

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agenterr"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "test-fsid", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Acquire(time.Second))
	assert.True(t, l.IsLocked())
	l.Release(false)
	assert.False(t, l.IsLocked())
}

func TestReentrantAcquire(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "test-fsid", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Acquire(time.Second))
	require.NoError(t, l.Acquire(time.Second))

	// inner release keeps the lock held
	l.Release(false)
	assert.True(t, l.IsLocked())

	// outer release drops it
	l.Release(false)
	assert.False(t, l.IsLocked())
}

func TestContentionTimesOut(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, "test-fsid", zerolog.Nop())
	require.NoError(t, err)
	b, err := New(dir, "test-fsid", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, a.Acquire(time.Second))
	defer a.Release(true)

	err = b.Acquire(200 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindLockTimeout))
}

func TestDifferentNamesDoNotContend(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, "cluster-a", zerolog.Nop())
	require.NoError(t, err)
	b, err := New(dir, "cluster-b", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, a.Acquire(time.Second))
	defer a.Release(true)
	require.NoError(t, b.Acquire(time.Second))
	b.Release(false)
}

func TestWithReleasesOnError(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "test-fsid", zerolog.Nop())
	require.NoError(t, err)

	sentinel := assert.AnError
	err = l.With(time.Second, func() error { return sentinel })
	assert.Equal(t, sentinel, err)
	assert.False(t, l.IsLocked())
}
