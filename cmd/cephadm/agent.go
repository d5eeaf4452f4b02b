package main

import (
	"context"
	"time"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/containerruntime"
	"github.com/cephadm/cephadm/internal/deploy"
	"github.com/cephadm/cephadm/internal/filelock"
	"github.com/cephadm/cephadm/internal/firewall"
	"github.com/cephadm/cephadm/internal/initsystem"
	"github.com/cephadm/cephadm/internal/inventory"
	"github.com/cephadm/cephadm/internal/layout"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

// agent bundles one invocation's wired collaborators. Sub-commands
// construct it once, after flags are parsed, and everything downstream
// receives dependencies explicitly.
type agent struct {
	cfg    *agentcfg.Context
	run    *runner.Runner
	rt     *containerruntime.Runtime
	init   *initsystem.InitSystem
	fw     *firewall.Firewall
	layout *layout.Layout
	engine *deploy.Engine
	inv    *inventory.Inventory
}

// minEngineVersion is the oldest container engine this agent drives.
var minEngineVersion = containerruntime.Version{Major: 1, Minor: 9, Patch: 0}

// newAgent wires every collaborator. needRuntime=false skips container
// engine detection for sub-commands that never touch a container
// (ls, unit, logs).
func newAgent(needRuntime bool) (*agent, error) {
	cfg := buildContext()
	run := runner.New(baseLog, time.Duration(flags.timeoutSecs)*time.Second)
	init := initsystem.New(run, cfg.Paths.UnitDir, cfg.Paths.LogrotateDir, baseLog)
	lay := layout.New(cfg.Paths)
	a := &agent{
		cfg:    cfg,
		run:    run,
		init:   init,
		layout: lay,
		inv:    inventory.New(cfg.Paths.DataDir, init, baseLog),
	}
	if !needRuntime {
		return a, nil
	}
	rt, err := containerruntime.Detect(run, baseLog, enginePreference(cfg.Engine))
	if err != nil {
		return nil, err
	}
	if !rt.Version().AtLeast(minEngineVersion) {
		return nil, agenterr.New(agenterr.KindUnsupportedEngineVer, "newAgent",
			rt.Engine().String()+" is too old for this agent")
	}
	a.rt = rt
	a.fw = firewall.New(run, init, baseLog)
	a.engine = deploy.New(run, rt, a.fw, init, lay, cfg, baseLog)
	return a, nil
}

func enginePreference(e agentcfg.Engine) containerruntime.Engine {
	if e == agentcfg.EngineDocker {
		return containerruntime.Docker
	}
	return containerruntime.Podman
}

// lockCluster takes the per-cluster file lock and returns its release.
func (a *agent) lockCluster(fsid model.FSID) (func(), error) {
	lock, err := filelock.New(a.cfg.Paths.LockDir, string(fsid), baseLog)
	if err != nil {
		return nil, err
	}
	if err := lock.Acquire(a.cfg.Timeouts.LockAcquire); err != nil {
		return nil, err
	}
	return func() { lock.Release(false) }, nil
}

// resolveFSID applies the inference pre-step: the explicit --fsid flag
// wins, otherwise the single cluster under the data root is used.
// required=false lets fsid-less invocations through with "".
func (a *agent) resolveFSID(ctx context.Context, explicit, name string, required bool) (model.FSID, error) {
	if explicit != "" {
		f := model.FSID(explicit)
		if !f.Valid() {
			return "", agenterr.New(agenterr.KindUsage, "resolveFSID", "not an fsid: "+explicit)
		}
		return f, nil
	}
	f, err := a.inv.InferFSID(ctx, name)
	if err != nil {
		return "", err
	}
	if f == "" && required {
		return "", agenterr.New(agenterr.KindUsage, "resolveFSID", "cannot infer fsid, one must be specified with --fsid")
	}
	return f, nil
}

// registryLogin authenticates the engine against a custom registry so
// later pulls succeed. The password travels over stdin and is redacted
// from the logged argv.
func (a *agent) registryLogin(ctx context.Context, url, username, password string) error {
	argv := a.rt.BuildLoginArgv(url, username, password)
	redact := func(in []string) []string { return in }
	if _, err := a.run.RunInput(ctx, runner.VerboseOnFailure, 60*time.Second, "registry login", redact, password, argv...); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "registryLogin",
			"failed to login to custom registry "+url, err)
	}
	baseLog.Info().Str("registry", url).Msg("logged into custom registry")
	return nil
}

// splitDaemonName parses a "<kind>.<id>" --name value.
func splitDaemonName(name string) (model.Kind, string, error) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			if i == 0 || i == len(name)-1 {
				break
			}
			return model.Kind(name[:i]), name[i+1:], nil
		}
	}
	return "", "", agenterr.New(agenterr.KindUsage, "splitDaemonName",
		"must pass daemon name as <type>.<id>: "+name)
}
