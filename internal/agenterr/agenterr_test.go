package agenterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	e := New(KindPortOccupied, "deploy", "TCP port 9095 required for prometheus already in use")
	assert.Equal(t, "deploy: TCP port 9095 required for prometheus already in use", e.Error())

	wrapped := Wrap(KindExternalCommand, "runner", "podman pull", errors.New("exit status 125"))
	assert.Contains(t, wrapped.Error(), "exit status 125")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := Wrap(KindLockTimeout, "filelock", "acquire", cause)
	assert.ErrorIs(t, e, cause)
}

func TestIs(t *testing.T) {
	e := New(KindUsage, "cli", "missing --fsid")
	assert.True(t, Is(e, KindUsage))
	assert.False(t, Is(e, KindLockTimeout))
	assert.False(t, Is(errors.New("plain"), KindUsage))

	// Is sees through fmt.Errorf wrapping
	assert.True(t, Is(fmt.Errorf("context: %w", e), KindUsage))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(New(KindUsage, "cli", "bad flag")))
	assert.Equal(t, 1, ExitCode(New(KindImageMismatch, "bootstrap", "wrong release")))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))

	child := New(KindExternalCommand, "runner", "podman run failed")
	child.ChildExitCode = 125
	assert.Equal(t, 125, ExitCode(child))
}
