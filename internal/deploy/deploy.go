// Package deploy implements the deploy engine: turning a daemon-kind
// table into on-disk state, a running container, a systemd unit, and
// open firewall ports, and tearing all of that back down again.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/containerruntime"
	"github.com/cephadm/cephadm/internal/daemonspec"
	"github.com/cephadm/cephadm/internal/initsystem"
	"github.com/cephadm/cephadm/internal/layout"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
	"github.com/cephadm/cephadm/internal/wait"
)

// ContainerEngine is the slice of the container runtime the engine
// drives. Satisfied by *containerruntime.Runtime.
type ContainerEngine interface {
	Engine() containerruntime.Engine
	Path() string
	NeedsDelegateCgroup() bool
	BuildRunArgv(spec model.ContainerSpec, runDir string, hasAuthFile func(string) bool) []string
	BuildRmArgv(id model.Identity, storage bool) []string
}

// InitController is the slice of the init system the engine drives.
// Satisfied by *initsystem.InitSystem.
type InitController interface {
	InstallBaseUnits(ctx context.Context, fsid model.FSID) error
	InstallLogrotate(fsid model.FSID, logDir string) error
	WriteTemplateUnit(fsid model.FSID, content string) error
	WriteExporterUnit(id model.Identity, content string) error
	DaemonReload(ctx context.Context) error
	EnableUnit(ctx context.Context, unitName string) error
	DisableUnit(ctx context.Context, unitName string) error
	StartUnit(ctx context.Context, unitName string) error
	StopUnit(ctx context.Context, unitName string) error
	ResetFailed(ctx context.Context, unitName string) error
	UnitsMatching(ctx context.Context, pattern string) ([]string, error)
}

// Firewaller opens host firewall ports for deployed daemons.
// Satisfied by *firewall.Firewall.
type Firewaller interface {
	UpdateForDaemon(ctx context.Context, kind model.Kind, ports []int) error
}

// Engine orchestrates daemon deploy/reconfigure/remove.
type Engine struct {
	log    zerolog.Logger
	run    *runner.Runner
	rt     ContainerEngine
	fw     Firewaller
	init   InitController
	layout *layout.Layout
	cfg    *agentcfg.Context
}

// New builds a deploy Engine from its collaborators.
func New(run *runner.Runner, rt ContainerEngine, fw Firewaller, init InitController, lay *layout.Layout, cfg *agentcfg.Context, log zerolog.Logger) *Engine {
	return &Engine{
		log:    log.With().Str("component", "deploy").Logger(),
		run:    run, rt: rt, fw: fw, init: init, layout: lay, cfg: cfg,
	}
}

// Request bundles everything Deploy needs beyond the daemon identity.
type Request struct {
	Identity   model.Identity
	Image      string
	Config     []byte // rendered ceph.conf for storage-plane kinds
	Keyring    []byte
	Files      map[string]string // config-json "files" payload
	Mounts     []model.Mount
	Envs       []string
	Args       []string
	Privileged bool
	Ports      []int
	UID, GID   int
	// OSDFsid is the storage-layer identity an osd activates with.
	OSDFsid       string
	MemoryRequest int64
	MemoryLimit   int64
	ServiceName   string
	Reconfigure   bool
	MetaExtra     map[string]any
}

// Deploy materializes req's daemon: directories, config/keyring and
// payload files, the six unit.* markers, the systemd unit, and opens
// its firewall ports. Port conflicts are fatal except for mgr, whose
// standby instances may legitimately share a port.
func (e *Engine) Deploy(ctx context.Context, req Request) error {
	table, known := daemonspec.Lookup(req.Identity.Kind)
	if !known {
		return agenterr.New(agenterr.KindUsage, "deploy.Deploy", "unknown daemon kind "+string(req.Identity.Kind))
	}

	dataDir := e.layout.DaemonDataDir(req.Identity)
	if req.Reconfigure {
		if _, err := os.Stat(dataDir); err != nil {
			return agenterr.New(agenterr.KindUsage, "deploy.Deploy", "cannot reconfig, data path "+dataDir+" does not exist")
		}
	} else {
		for _, p := range req.Ports {
			inUse, err := wait.PortInUse(p)
			if err != nil {
				return err
			}
			if !inUse {
				continue
			}
			if req.Identity.Kind == model.KindMgr {
				e.log.Warn().Int("port", p).Msg("ceph-mgr TCP port already in use, possibly by a stopped mgr standby module")
				continue
			}
			return agenterr.New(agenterr.KindPortOccupied, "deploy.Deploy",
				fmt.Sprintf("TCP port %d required for %s already in use", p, req.Identity.Kind))
		}
	}

	if err := e.layout.EnsureClusterDataDir(req.Identity.FSID, req.UID, req.GID); err != nil {
		return err
	}
	if _, err := e.layout.EnsureClusterLogDir(req.Identity.FSID, req.UID, req.GID); err != nil {
		return err
	}

	if req.Identity.Kind == model.KindMon && !req.Reconfigure {
		if _, err := os.Stat(filepath.Join(dataDir, "store.db")); os.IsNotExist(err) {
			if err := e.mkfsMon(ctx, req); err != nil {
				return err
			}
		}
	}
	if err := e.createDaemonDirs(req); err != nil {
		return err
	}

	if req.Reconfigure {
		// storage-plane daemons pick up the rewritten config on their
		// own; everything else needs a restart to see it
		if daemonspec.NeedsRestartOnReconfig(req.Identity.Kind) {
			unitName := req.Identity.UnitName()
			e.init.ResetFailed(ctx, unitName)
			if err := e.init.StopUnit(ctx, unitName); err != nil {
				e.log.Warn().Err(err).Msg("stop before reconfig restart failed")
			}
			if err := e.init.StartUnit(ctx, unitName); err != nil {
				return err
			}
		}
	} else {
		spec := model.ContainerSpec{
			Identity:    req.Identity,
			Image:       req.Image,
			Entrypoint:  table.Entrypoint,
			Args:        req.Args,
			Envs:        req.Envs,
			Mounts:      req.Mounts,
			NetworkMode: "host",
			Privileged:  req.Privileged || table.Privileged,
			MemoryBytes: req.MemoryLimit,
			Detach:      true,
		}
		if err := e.deployUnits(ctx, req, table, spec); err != nil {
			return err
		}
	}

	if !req.Reconfigure || !daemonspec.IsStoragePlane(req.Identity.Kind) {
		if err := e.fw.UpdateForDaemon(ctx, req.Identity.Kind, req.Ports); err != nil {
			return err
		}
	}

	if _, existed, _ := layout.ReadIfExists(filepath.Join(dataDir, "unit.created")); !existed {
		if err := layout.WriteAtomic(filepath.Join(dataDir, "unit.created"),
			[]byte("mtime is time the daemon deployment was created\n"), 0o600, req.UID, req.GID); err != nil {
			return err
		}
	}
	return layout.WriteAtomic(filepath.Join(dataDir, "unit.configured"),
		[]byte("mtime is time we were last configured\n"), 0o600, req.UID, req.GID)
}

func (e *Engine) createDaemonDirs(req Request) error {
	dir, err := e.layout.EnsureDaemonDataDir(req.Identity, req.UID, req.GID)
	if err != nil {
		return err
	}
	if req.Config != nil {
		if err := layout.WriteAtomic(filepath.Join(dir, "config"), req.Config, 0o600, req.UID, req.GID); err != nil {
			return err
		}
	}
	if req.Keyring != nil {
		if err := layout.WriteAtomic(filepath.Join(dir, "keyring"), req.Keyring, 0o600, req.UID, req.GID); err != nil {
			return err
		}
	}
	for name, content := range req.Files {
		path := filepath.Join(dir, filepath.Clean(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.createDaemonDirs", path, err)
		}
		if err := layout.WriteAtomic(path, []byte(content), 0o600, req.UID, req.GID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) mkfsMon(ctx context.Context, req Request) error {
	if req.Config == nil || req.Keyring == nil {
		return agenterr.New(agenterr.KindUsage, "deploy.mkfsMon", "mon mkfs requires config and keyring")
	}
	monDir, err := e.layout.EnsureDaemonDataDir(req.Identity, req.UID, req.GID)
	if err != nil {
		return err
	}
	logDir := e.layout.ClusterLogDir(req.Identity.FSID)

	tmpKeyring, err := writeTemp("cephadm-keyring-", req.Keyring, req.UID, req.GID)
	if err != nil {
		return err
	}
	defer os.Remove(tmpKeyring)
	tmpConfig, err := writeTemp("cephadm-config-", req.Config, req.UID, req.GID)
	if err != nil {
		return err
	}
	defer os.Remove(tmpConfig)

	mounts := []model.Mount{
		{Source: logDir, Destination: "/var/log/ceph", Options: []string{"z"}},
		{Source: monDir, Destination: "/var/lib/ceph/mon/ceph-" + req.Identity.ID, Options: []string{"z"}},
		{Source: tmpKeyring, Destination: "/tmp/keyring", Options: []string{"z"}},
		{Source: tmpConfig, Destination: "/tmp/config", Options: []string{"z"}},
	}
	argv := e.rt.BuildRunArgv(model.ContainerSpec{
		Identity:   req.Identity,
		Image:      req.Image,
		Entrypoint: "/usr/bin/ceph-mon",
		Args: []string{
			"--mkfs", "-i", req.Identity.ID, "--fsid", string(req.Identity.FSID),
			"-c", "/tmp/config", "--keyring", "/tmp/keyring",
		},
		Mounts:      mounts,
		NetworkMode: "host",
	}, e.cfg.Paths.LockDir, nil)

	if _, err := e.run.Run(ctx, runner.VerboseOnFailure, 2*time.Minute, "ceph-mon --mkfs", nil, argv...); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.mkfsMon", "ceph-mon --mkfs", err)
	}
	return layout.WriteAtomic(filepath.Join(monDir, "config"), req.Config, 0o600, req.UID, req.GID)
}

func writeTemp(prefix string, data []byte, uid, gid int) (string, error) {
	f, err := os.CreateTemp("", prefix)
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "deploy.writeTemp", prefix, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "deploy.writeTemp", prefix, err)
	}
	f.Close()
	os.Chown(f.Name(), uid, gid)
	return f.Name(), nil
}

// deployUnits writes unit.run, unit.meta, unit.poststop, unit.image,
// the sysctl drop-in, and the systemd units, then reloads, enables,
// and (re)starts the daemon.
func (e *Engine) deployUnits(ctx context.Context, req Request, table daemonspec.Table, spec model.ContainerSpec) error {
	dataDir := e.layout.DaemonDataDir(req.Identity)
	runDir := e.cfg.Paths.LockDir

	var run bytes.Buffer
	run.WriteString("set -e\n")
	if table.NeedsVarRunCeph {
		run.WriteString(fmt.Sprintf("install -d -m0770 -o %d -g %d /var/run/ceph/%s\n", req.UID, req.GID, req.Identity.FSID))
	}
	switch req.Identity.Kind {
	case model.KindOSD:
		if req.OSDFsid == "" {
			return agenterr.New(agenterr.KindUsage, "deploy.deployUnits", "osd deploy requires --osd-fsid")
		}
		prestart := e.rt.BuildRunArgv(model.ContainerSpec{
			Identity:   model.Identity{FSID: req.Identity.FSID, Kind: req.Identity.Kind, ID: req.Identity.ID + "-activate"},
			Image:      req.Image,
			Entrypoint: "/usr/sbin/ceph-volume",
			Args:       []string{"lvm", "activate", req.Identity.ID, req.OSDFsid, "--no-systemd"},
			Mounts:     req.Mounts,
			Privileged: true,
		}, runDir, nil)
		e.writeContainerCmd(&run, prestart, "LVM OSDs use ceph-volume lvm activate")
	case model.KindISCSI:
		run.WriteString("mount -t configfs none /sys/kernel/config || true\n")
	}
	if req.Identity.Kind == model.KindCephadmExporter {
		bin, err := os.Executable()
		if err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.deployUnits", "resolve agent binary", err)
		}
		port := 9443
		if len(req.Ports) > 0 {
			port = req.Ports[0]
		}
		fmt.Fprintf(&run, "%s exporter --fsid %s --id %s --port %d &\n", bin, req.Identity.FSID, req.Identity.ID, port)
	} else {
		argv := e.rt.BuildRunArgv(spec, runDir, nil)
		e.writeContainerCmd(&run, argv, req.Identity.Name())
	}
	if err := layout.WriteAtomic(filepath.Join(dataDir, "unit.run"), run.Bytes(), 0o600, req.UID, req.GID); err != nil {
		return err
	}

	meta := map[string]any{}
	for k, v := range req.MetaExtra {
		meta[k] = v
	}
	meta["memory_request"] = nilIfZero(req.MemoryRequest)
	meta["memory_limit"] = nilIfZero(req.MemoryLimit)
	if req.ServiceName != "" {
		meta["service_name"] = req.ServiceName
	}
	if _, ok := meta["ports"]; !ok {
		meta["ports"] = req.Ports
	}
	metaJSON, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return agenterr.Wrap(agenterr.KindConfigJSONMalformed, "deploy.deployUnits", "unit.meta", err)
	}
	if err := layout.WriteAtomic(filepath.Join(dataDir, "unit.meta"), append(metaJSON, '\n'), 0o600, req.UID, req.GID); err != nil {
		return err
	}

	var poststop bytes.Buffer
	switch req.Identity.Kind {
	case model.KindOSD:
		deactivate := e.rt.BuildRunArgv(model.ContainerSpec{
			Identity:   model.Identity{FSID: req.Identity.FSID, Kind: req.Identity.Kind, ID: req.Identity.ID + "-deactivate"},
			Image:      req.Image,
			Entrypoint: "/usr/sbin/ceph-volume",
			Args:       []string{"lvm", "deactivate", req.Identity.ID, req.OSDFsid},
			Mounts:     req.Mounts,
			Privileged: true,
		}, runDir, nil)
		e.writeContainerCmd(&poststop, deactivate, "deactivate osd")
	case model.KindISCSI:
		poststop.WriteString("umount /sys/kernel/config || true\n")
	}
	if err := layout.WriteAtomic(filepath.Join(dataDir, "unit.poststop"), poststop.Bytes(), 0o600, req.UID, req.GID); err != nil {
		return err
	}
	if err := layout.WriteAtomic(filepath.Join(dataDir, "unit.image"), []byte(spec.Image+"\n"), 0o600, req.UID, req.GID); err != nil {
		return err
	}

	if len(table.SysctlLines) > 0 {
		if err := e.installSysctl(req.Identity.FSID, req.Identity.Kind, table.SysctlLines); err != nil {
			return err
		}
	}

	if err := e.init.InstallBaseUnits(ctx, req.Identity.FSID); err != nil {
		return err
	}
	if err := e.init.InstallLogrotate(req.Identity.FSID, e.cfg.Paths.LogDir); err != nil {
		return err
	}

	extras := initsystem.UnitExtras{
		IsPodman:       e.rt.Engine() == containerruntime.Podman,
		PodmanDelegate: e.rt.NeedsDelegateCgroup(),
		IsDocker:       e.rt.Engine() == containerruntime.Docker,
		ContainerPath:  e.rt.Path(),
	}
	if req.Identity.Kind == model.KindCephadmExporter {
		unit, err := initsystem.RenderExporterUnit(req.Identity, e.cfg.Paths.DataDir, extras)
		if err != nil {
			return err
		}
		if err := e.init.WriteExporterUnit(req.Identity, unit); err != nil {
			return err
		}
	} else {
		unit, err := initsystem.RenderTemplateUnit(req.Identity.FSID, e.cfg.Paths.DataDir, extras)
		if err != nil {
			return err
		}
		if err := e.init.WriteTemplateUnit(req.Identity.FSID, unit); err != nil {
			return err
		}
	}
	if err := e.init.DaemonReload(ctx); err != nil {
		return err
	}

	unitName := req.Identity.UnitName()
	e.init.StopUnit(ctx, unitName)
	e.init.ResetFailed(ctx, unitName)
	if err := e.init.EnableUnit(ctx, unitName); err != nil {
		return err
	}
	return e.init.StartUnit(ctx, unitName)
}

// writeContainerCmd appends the stale-container cleanup plus the run
// command for argv, the shape every unit.run script follows.
func (e *Engine) writeContainerCmd(buf *bytes.Buffer, argv []string, comment string) {
	if comment != "" {
		buf.WriteString("# " + comment + "\n")
	}
	name := argvContainerName(argv)
	if name != "" {
		fmt.Fprintf(buf, "! %s rm -f %s 2> /dev/null\n", e.rt.Path(), name)
		if e.rt.Engine() == containerruntime.Podman {
			fmt.Fprintf(buf, "! %s rm -f --storage %s 2> /dev/null\n", e.rt.Path(), name)
		}
	}
	buf.WriteString(shellJoin(argv) + "\n")
}

func argvContainerName(argv []string) string {
	for i, a := range argv {
		if a == "--name" && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	return ""
}

func nilIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func (e *Engine) installSysctl(fsid model.FSID, kind model.Kind, lines []string) error {
	path := e.layout.SysctlFile(fsid, kind)
	body := append([]string{"# created by cephadm"}, lines...)
	body = append(body, "")
	if err := os.WriteFile(path, []byte(strings.Join(body, "\n")), 0o644); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.installSysctl", path, err)
	}
	_, err := e.run.Run(context.Background(), runner.Debug, 30*time.Second, "sysctl --system", nil, "sysctl", "--system")
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.installSysctl", "sysctl --system", err)
	}
	return nil
}

func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Remove stops, resets, and disables id's unit, removes its container,
// and removes its data directory — or, for the precious kinds, moves
// the directory under removed/ unless forceDeleteData is set. The
// cluster's template unit file is left in place: other daemons of the
// same cluster still instantiate it.
func (e *Engine) Remove(ctx context.Context, id model.Identity, forceDeleteData bool) error {
	unitName := id.UnitName()
	if err := e.init.StopUnit(ctx, unitName); err != nil {
		e.log.Warn().Err(err).Msg("stop unit failed during remove")
	}
	e.init.ResetFailed(ctx, unitName)
	if err := e.init.DisableUnit(ctx, unitName); err != nil {
		e.log.Warn().Err(err).Msg("disable unit failed during remove")
	}
	e.run.Run(ctx, runner.Debug, 30*time.Second, "container rm", nil, e.rt.BuildRmArgv(id, false)...)
	if e.rt.Engine() == containerruntime.Podman {
		e.run.Run(ctx, runner.Debug, 30*time.Second, "container rm --storage", nil, e.rt.BuildRmArgv(id, true)...)
	}

	dataDir := e.layout.DaemonDataDir(id)
	if daemonspec.IsPrecious(id.Kind) && !forceDeleteData {
		dst := e.layout.RemovedDataDir(id, time.Now().UTC().Format("2006-01-02T15:04:05Z"))
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.Remove", dst, err)
		}
		if err := os.Rename(dataDir, dst); err != nil && !os.IsNotExist(err) {
			return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.Remove", id.Name(), err)
		}
		e.log.Info().Str("daemon", id.Name()).Str("moved_to", dst).Msg("preserved daemon data")
	} else if err := os.RemoveAll(dataDir); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.Remove", id.Name(), err)
	}
	if id.Kind == model.KindCephadmExporter {
		os.Remove(e.layout.UnitFile(id))
	}
	return e.init.DaemonReload(ctx)
}

// RemoveCluster stops and disables every unit of fsid, removes the
// cluster's unit files, sysctl drop-ins, logrotate drop-in, data tree,
// and (unless keepLogs) its log tree, and clears the global config,
// keyring, and public-key files if they still refer to this cluster.
func (e *Engine) RemoveCluster(ctx context.Context, fsid model.FSID, zapOSDs, keepLogs bool) error {
	if zapOSDs {
		if err := e.ZapOSDs(ctx, fsid, e.cfg.Image.Ref); err != nil {
			return err
		}
	}

	units, _ := e.init.UnitsMatching(ctx, fmt.Sprintf("ceph-%s@*", fsid))
	more, _ := e.init.UnitsMatching(ctx, fmt.Sprintf("ceph-%s-*", fsid))
	for _, u := range append(units, more...) {
		e.init.StopUnit(ctx, u)
		e.init.ResetFailed(ctx, u)
		e.init.DisableUnit(ctx, u)
	}

	clusterTarget := model.ClusterTargetName(fsid)
	e.init.StopUnit(ctx, clusterTarget)
	e.init.DisableUnit(ctx, clusterTarget)
	os.Remove(filepath.Join(e.cfg.Paths.UnitDir, clusterTarget))
	os.Remove(filepath.Join(e.cfg.Paths.UnitDir, model.TemplateUnitName(fsid)))
	os.Remove(e.layout.LogrotateFile(fsid))

	if matches, err := filepath.Glob(e.layout.ClusterSysctlGlob(fsid)); err == nil {
		for _, m := range matches {
			os.Remove(m)
		}
	}

	if err := e.init.DaemonReload(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(e.layout.ClusterDataDir(fsid)); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.RemoveCluster", string(fsid), err)
	}
	if !keepLogs {
		if err := os.RemoveAll(e.layout.ClusterLogDir(fsid)); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.RemoveCluster", string(fsid), err)
		}
	}

	conf, _, _ := layout.ReadIfExists("/etc/ceph/ceph.conf")
	confIsOurs := strings.Contains(string(conf), string(fsid))
	for _, path := range []string{"/etc/ceph/ceph.conf", "/etc/ceph/ceph.client.admin.keyring", "/etc/ceph/ceph.pub"} {
		b, found, _ := layout.ReadIfExists(path)
		if found && ((path == "/etc/ceph/ceph.pub" && confIsOurs) || strings.Contains(string(b), string(fsid))) {
			os.Remove(path)
		}
	}
	return nil
}

// Quiesce stops every unit for the given identities without removing
// their state, the host-maintenance-enter building block.
func (e *Engine) Quiesce(ctx context.Context, ids []model.Identity) error {
	for _, id := range ids {
		if err := e.init.StopUnit(ctx, id.UnitName()); err != nil {
			return err
		}
	}
	return nil
}

// Resume starts every unit for the given identities, undoing Quiesce.
func (e *Engine) Resume(ctx context.Context, ids []model.Identity) error {
	for _, id := range ids {
		if err := e.init.StartUnit(ctx, id.UnitName()); err != nil {
			return err
		}
	}
	return nil
}
