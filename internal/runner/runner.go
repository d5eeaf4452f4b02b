// Package runner is the path by which the agent shells out to
// non-interactive external commands. Every component that needs to run
// a host binary (podman, docker, firewall-cmd, systemctl, journalctl)
// takes a *Runner rather than calling os/exec directly; only the
// interactive sessions in package shell exec their command themselves.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cephadm/cephadm/internal/agenterr"
)

// Verbosity controls how a Run's stdout/stderr lines are logged.
type Verbosity int

const (
	// Silent logs nothing beyond the fact that the command ran.
	Silent Verbosity = iota
	// Debug logs captured output at debug level.
	Debug
	// VerboseOnFailure logs no output while the command runs; if it
	// exits non-zero, its captured stderr is logged at warn level.
	VerboseOnFailure
	// Verbose logs captured output at info level as it streams.
	Verbose
)

// Result is the outcome of a single Run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands with a default timeout and
// structured logging of the command line (redacted) and its output.
type Runner struct {
	log            zerolog.Logger
	defaultTimeout time.Duration
}

// New returns a Runner logging through log, defaulting to defaultTimeout
// when a call site passes timeout <= 0.
func New(log zerolog.Logger, defaultTimeout time.Duration) *Runner {
	return &Runner{log: log.With().Str("component", "runner").Logger(), defaultTimeout: defaultTimeout}
}

// Redactor replaces sensitive argv entries (credentials, tokens) before
// they reach the log; nil means no redaction is necessary.
type Redactor func(argv []string) []string

// Run executes command with args, capturing stdout/stderr to strings.
// desc, if non-empty, replaces command[0] as the log line prefix.
// timeout <= 0 uses the Runner's default.
func (r *Runner) Run(ctx context.Context, verbosity Verbosity, timeout time.Duration, desc string, redact Redactor, argv ...string) (Result, error) {
	return r.run(ctx, verbosity, timeout, desc, redact, "", argv)
}

// RunInput is Run with data piped to the child's stdin, for commands
// that read secrets from stdin rather than argv (e.g. registry login
// with --password-stdin).
func (r *Runner) RunInput(ctx context.Context, verbosity Verbosity, timeout time.Duration, desc string, redact Redactor, stdin string, argv ...string) (Result, error) {
	return r.run(ctx, verbosity, timeout, desc, redact, stdin, argv)
}

func (r *Runner) run(ctx context.Context, verbosity Verbosity, timeout time.Duration, desc string, redact Redactor, stdin string, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, agenterr.New(agenterr.KindUsage, "runner.Run", "empty argv")
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	prefix := argv[0]
	if desc != "" {
		prefix = desc
	}

	logged := argv
	if redact != nil {
		logged = redact(argv)
	}
	r.log.Debug().Strs("argv", logged).Msg("running command")

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.KindExternalCommand, "runner.Run", prefix, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.KindExternalCommand, "runner.Run", prefix, err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, agenterr.Wrap(agenterr.KindExternalCommand, "runner.Run", prefix, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.tee(verbosity, prefix, stdoutPipe, &stdout) }()
	go func() { defer wg.Done(); r.tee(verbosity, prefix, stderrPipe, &stderr) }()
	wg.Wait()

	waitErr := cmd.Wait()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cctx.Err() == context.DeadlineExceeded {
		// timeout(1) convention: the call itself succeeds, the caller
		// decides whether 124 is fatal
		r.log.Warn().Str("cmd", prefix).Dur("timeout", timeout).Msg("command timed out")
		res.ExitCode = 124
		return res, nil
	}

	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	} else if waitErr != nil {
		return res, agenterr.Wrap(agenterr.KindExternalCommand, "runner.Run", prefix, waitErr)
	}

	if res.ExitCode != 0 && verbosity == VerboseOnFailure {
		r.log.Warn().Str("cmd", prefix).Int("exit_code", res.ExitCode).Str("stderr", stderr.String()).Msg("command failed")
	}
	if res.ExitCode != 0 {
		e := agenterr.New(agenterr.KindExternalCommand, "runner.Run", prefix+": exit status "+strconv.Itoa(res.ExitCode))
		e.ChildExitCode = res.ExitCode
		return res, e
	}
	return res, nil
}

func (r *Runner) tee(verbosity Verbosity, prefix string, src interface{ Read([]byte) (int, error) }, dst *bytes.Buffer) {
	buf := make([]byte, 4096)
	var line strings.Builder
	for {
		n, err := src.Read(buf)
		if n > 0 {
			dst.Write(buf[:n])
			if verbosity == Verbose || verbosity == Debug {
				line.Write(buf[:n])
				for {
					s := line.String()
					idx := strings.IndexByte(s, '\n')
					if idx < 0 {
						break
					}
					msg := prefix + ": " + s[:idx]
					if verbosity == Verbose {
						r.log.Info().Msg(msg)
					} else {
						r.log.Debug().Msg(msg)
					}
					line.Reset()
					line.WriteString(s[idx+1:])
				}
			}
		}
		if err != nil {
			return
		}
	}
}

