// Package shell runs interactive one-off or exec'd containers for the
// shell, enter, and ceph-volume sub-commands, wiring the operator's
// terminal through a pseudo-terminal so curses tools inside the
// container behave.
package shell

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/cephadm/cephadm/internal/agenterr"
)

// Interactive runs argv with the caller's terminal attached. When
// stdin is a real terminal it is placed in raw mode and proxied
// through a pty (resizes included); otherwise the streams pass through
// directly so piped usage still works.
func Interactive(ctx context.Context, log zerolog.Logger, argv []string) error {
	if len(argv) == 0 {
		return agenterr.New(agenterr.KindUsage, "shell.Interactive", "empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "shell.Interactive", argv[0], err)
		}
		return nil
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "shell.Interactive", argv[0], err)
	}
	defer ptmx.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			if err := pty.InheritSize(os.Stdin, ptmx); err != nil {
				log.Debug().Err(err).Msg("pty resize failed")
			}
		}
	}()
	winch <- syscall.SIGWINCH

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "shell.Interactive", "raw terminal", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	go io.Copy(ptmx, os.Stdin)
	io.Copy(os.Stdout, ptmx)

	if err := cmd.Wait(); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "shell.Interactive", argv[0], err)
	}
	return nil
}
