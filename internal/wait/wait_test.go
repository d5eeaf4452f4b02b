package wait

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agenterr"
)

func TestPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp4", "0.0.0.0:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	inUse, err := PortInUse(port)
	require.NoError(t, err)
	assert.True(t, inUse)

	ln.Close()
	inUse, err = PortInUse(port)
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestUntilSucceeds(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Config{Interval: 10 * time.Millisecond, Timeout: time.Second},
		func(ctx context.Context) (bool, error) {
			calls++
			return calls >= 3, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilTimesOut(t *testing.T) {
	err := Until(context.Background(), Config{Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond},
		func(ctx context.Context) (bool, error) { return false, nil })
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindStateMachineTimeout))
}

func TestUntilPropagatesCheckError(t *testing.T) {
	sentinel := assert.AnError
	err := Until(context.Background(), Config{Interval: 10 * time.Millisecond, Timeout: time.Second},
		func(ctx context.Context) (bool, error) { return false, sentinel })
	assert.Equal(t, sentinel, err)
}

func TestUntilHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Until(ctx, Config{Interval: 10 * time.Millisecond, Timeout: time.Second},
		func(ctx context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
