package runner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agenterr"
)

func testRunner() *Runner {
	return New(zerolog.Nop(), 30*time.Second)
}

func TestRunCapturesStdoutAndStderr(t *testing.T) {
	res, err := testRunner().Run(context.Background(), Silent, 0, "", nil,
		"/bin/sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Zero(t, res.ExitCode)
}

func TestRunNonZeroExit(t *testing.T) {
	res, err := testRunner().Run(context.Background(), Silent, 0, "", nil,
		"/bin/sh", "-c", "exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.True(t, agenterr.Is(err, agenterr.KindExternalCommand))
	assert.Equal(t, 3, agenterr.ExitCode(err))
}

func TestRunTimeoutReturns124(t *testing.T) {
	res, err := testRunner().Run(context.Background(), Silent, 200*time.Millisecond, "", nil,
		"/bin/sh", "-c", "sleep 5")
	require.NoError(t, err, "a timeout is not an error, the caller decides fatality")
	assert.Equal(t, 124, res.ExitCode)
}

func TestRunLargeOutputDoesNotDeadlock(t *testing.T) {
	// both pipes carry more than a pipe buffer's worth concurrently
	res, err := testRunner().Run(context.Background(), Silent, 0, "", nil,
		"/bin/sh", "-c", "yes x | head -c 200000; yes y | head -c 200000 >&2")
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 200000)
	assert.Len(t, res.Stderr, 200000)
}

func TestRunEmptyArgv(t *testing.T) {
	_, err := testRunner().Run(context.Background(), Silent, 0, "", nil)
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindUsage))
}

func TestRunInput(t *testing.T) {
	res, err := testRunner().RunInput(context.Background(), Silent, 0, "", nil, "sekrit\n",
		"/bin/sh", "-c", "cat")
	require.NoError(t, err)
	assert.Equal(t, "sekrit\n", res.Stdout)
}

func TestRedactorAppliesToLogOnly(t *testing.T) {
	redacted := false
	redact := func(argv []string) []string {
		redacted = true
		out := append([]string(nil), argv...)
		out[len(out)-1] = "****"
		return out
	}
	res, err := testRunner().Run(context.Background(), Debug, 0, "", redact,
		"/bin/echo", "password123")
	require.NoError(t, err)
	assert.True(t, redacted)
	assert.Equal(t, "password123\n", res.Stdout, "redaction must not affect the executed argv")
}
