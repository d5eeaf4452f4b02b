// Package firewall wraps firewall-cmd, the only way this agent opens
// or closes host TCP ports. It is an optional capability: when
// firewall-cmd is absent, or firewalld.service is not enabled/running,
// every method silently no-ops rather than failing deploys on hosts
// that manage their firewall some other way.
package firewall

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/initsystem"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

// serviceForKind maps a daemon kind onto the firewalld predefined
// service name enabled on its behalf, mirroring Firewalld.enable_service_for.
var serviceForKind = map[model.Kind]string{
	model.KindMon:  "ceph-mon",
	model.KindMgr:  "ceph",
	model.KindMds:  "ceph",
	model.KindOSD:  "ceph",
	model.KindNFS:  "nfs",
}

// Firewall is the firewalld capability, available only when detected.
type Firewall struct {
	log       zerolog.Logger
	run       *runner.Runner
	cmd       string
	available bool
}

// New probes for firewall-cmd and an enabled, running firewalld.service.
// init may be nil in tests that never expect Firewall.available to be true.
func New(run *runner.Runner, init *initsystem.InitSystem, log zerolog.Logger) *Firewall {
	f := &Firewall{log: log.With().Str("component", "firewall").Logger(), run: run}
	f.available = f.check(init)
	return f
}

func (f *Firewall) check(init *initsystem.InitSystem) bool {
	path, err := exec.LookPath("firewall-cmd")
	if err != nil {
		f.log.Debug().Msg("firewalld does not appear to be present")
		return false
	}
	f.cmd = path
	if init == nil {
		return false
	}
	enabled, state, err := init.CheckUnit(context.Background(), "firewalld.service")
	if err != nil || !enabled {
		f.log.Debug().Msg("firewalld.service is not enabled")
		return false
	}
	if state != "active" {
		f.log.Debug().Msg("firewalld.service is not running")
		return false
	}
	f.log.Info().Msg("firewalld ready")
	return true
}

// Available reports whether firewalld control is usable on this host.
func (f *Firewall) Available() bool { return f.available }

// Disable turns the capability into a permanent no-op, used when the
// operator passes --skip-firewalld.
func (f *Firewall) Disable() { f.available = false }

// EnableServiceFor enables the firewalld predefined service associated
// with kind in the current zone, if any is defined for that kind.
func (f *Firewall) EnableServiceFor(ctx context.Context, kind model.Kind) error {
	if !f.available {
		f.log.Debug().Str("kind", string(kind)).Msg("not possible to enable service: firewalld not available")
		return nil
	}
	svc, ok := serviceForKind[kind]
	if !ok {
		return nil
	}
	res, _ := f.run.Run(ctx, runner.Debug, 30*time.Second, "firewall-cmd --query-service", nil,
		f.cmd, "--permanent", "--query-service", svc)
	if res.ExitCode != 0 {
		f.log.Info().Str("service", svc).Msg("enabling firewalld service in current zone")
		if _, err := f.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "firewall-cmd --add-service", nil,
			f.cmd, "--permanent", "--add-service", svc); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "firewall.EnableServiceFor", svc, err)
		}
	}
	return nil
}

// OpenPorts opens the given TCP ports in the current zone.
func (f *Firewall) OpenPorts(ctx context.Context, ports []int) error {
	if !f.available {
		f.log.Debug().Ints("ports", ports).Msg("not possible to open ports: firewalld not available")
		return nil
	}
	for _, port := range ports {
		tcp := strconv.Itoa(port) + "/tcp"
		res, _ := f.run.Run(ctx, runner.Debug, 30*time.Second, "firewall-cmd --query-port", nil,
			f.cmd, "--permanent", "--query-port", tcp)
		if res.ExitCode != 0 {
			f.log.Info().Str("port", tcp).Msg("enabling firewalld port in current zone")
			if _, err := f.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "firewall-cmd --add-port", nil,
				f.cmd, "--permanent", "--add-port", tcp); err != nil {
				return agenterr.Wrap(agenterr.KindExternalCommand, "firewall.OpenPorts", tcp, err)
			}
		}
	}
	return nil
}

// ClosePorts closes the given TCP ports in the current zone.
func (f *Firewall) ClosePorts(ctx context.Context, ports []int) error {
	if !f.available {
		f.log.Debug().Ints("ports", ports).Msg("not possible to close ports: firewalld not available")
		return nil
	}
	for _, port := range ports {
		tcp := strconv.Itoa(port) + "/tcp"
		res, _ := f.run.Run(ctx, runner.Debug, 30*time.Second, "firewall-cmd --query-port", nil,
			f.cmd, "--permanent", "--query-port", tcp)
		if res.ExitCode == 0 {
			f.log.Info().Str("port", tcp).Msg("disabling port in current zone")
			if _, err := f.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "firewall-cmd --remove-port", nil,
				f.cmd, "--permanent", "--remove-port", tcp); err != nil {
				return agenterr.Wrap(agenterr.KindExternalCommand, "firewall.ClosePorts", tcp, err)
			}
		} else {
			f.log.Info().Str("port", tcp).Msg("firewalld port already closed")
		}
	}
	return nil
}

// ApplyRules reloads firewalld so permanent changes take effect.
func (f *Firewall) ApplyRules(ctx context.Context) error {
	if !f.available {
		return nil
	}
	if _, err := f.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "firewall-cmd --reload", nil, f.cmd, "--reload"); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "firewall.ApplyRules", "reload", err)
	}
	return nil
}

// UpdateForDaemon is the convenience entry point DeployEngine calls
// after deploying a daemon: enable its service, open its ports, reload.
func (f *Firewall) UpdateForDaemon(ctx context.Context, kind model.Kind, ports []int) error {
	if err := f.EnableServiceFor(ctx, kind); err != nil {
		return err
	}
	if err := f.OpenPorts(ctx, ports); err != nil {
		return err
	}
	return f.ApplyRules(ctx)
}
