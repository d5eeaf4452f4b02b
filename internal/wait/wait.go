// Package wait provides the polling primitives Bootstrap uses to block
// until a just-started daemon becomes reachable, and the port-free
// check DeployEngine runs before handing a port to a new daemon.
package wait

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/cephadm/cephadm/internal/agenterr"
)

// Config mirrors the retry/interval shape used throughout the agent's
// polling loops (bounded attempts over a bounded total duration).
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultConfig matches the interval cephadm.py's mon/mgr wait loops use.
func DefaultConfig() Config {
	return Config{Interval: 2 * time.Second, Timeout: 5 * time.Minute}
}

// Until polls check every cfg.Interval until it returns true, ctx is
// canceled, or cfg.Timeout elapses, whichever comes first.
func Until(ctx context.Context, cfg Config, check func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(cfg.Timeout)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return agenterr.New(agenterr.KindStateMachineTimeout, "wait.Until", "condition not met before timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PortInUse reports whether port is already bound on the host,
// probing both IPv4 "0.0.0.0" and IPv6 "::", matching port_in_use's
// dual-family check so a listener left over from the other address
// family is still caught.
func PortInUse(port int) (bool, error) {
	for _, network := range []string{"tcp4", "tcp6"} {
		addr := "0.0.0.0:" + strconv.Itoa(port)
		if network == "tcp6" {
			addr = "[::]:" + strconv.Itoa(port)
		}
		l, err := net.Listen(network, addr)
		if err != nil {
			if errors.Is(err, syscall.EADDRINUSE) {
				return true, nil
			}
			if errors.Is(err, syscall.EAFNOSUPPORT) || errors.Is(err, syscall.EADDRNOTAVAIL) {
				continue
			}
			return false, agenterr.Wrap(agenterr.KindExternalCommand, "wait.PortInUse", addr, err)
		}
		l.Close()
	}
	return false, nil
}
