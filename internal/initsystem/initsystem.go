// Package initsystem writes, reloads, enables, starts, stops, and
// disables the systemd units that keep deployed daemons running across
// reboots. Unit control goes over the systemd D-Bus API when a
// connection can be established; otherwise it falls back to shelling
// systemctl through a runner.Runner. Callers never branch on which
// path is in effect — both satisfy the same InitSystem surface. The
// one exception is InstallBaseUnits, which always enables and starts
// ceph.target through systemctl.
package initsystem

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/rs/zerolog"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

// InitSystem drives the host's systemd instance.
type InitSystem struct {
	log     zerolog.Logger
	run     *runner.Runner
	unitDir string
	logrotateDir string
	conn    *dbus.Conn
}

// New connects to the system D-Bus if possible; a failed connection is
// not fatal, it only routes control calls through systemctl instead.
func New(run *runner.Runner, unitDir, logrotateDir string, log zerolog.Logger) *InitSystem {
	i := &InitSystem{
		log:          log.With().Str("component", "initsystem").Logger(),
		run:          run,
		unitDir:      unitDir,
		logrotateDir: logrotateDir,
	}
	conn, err := dbus.NewSystemConnectionContext(context.Background())
	if err != nil {
		i.log.Debug().Err(err).Msg("systemd dbus connection unavailable, falling back to systemctl")
		return i
	}
	i.conn = conn
	return i
}

// Close releases the D-Bus connection, if one was established.
func (i *InitSystem) Close() {
	if i.conn != nil {
		i.conn.Close()
	}
}

type unitData struct {
	FSID, ID       string
	DataDir        string
	ContainerPath  string
	DockerAfter    string
	DockerRequires string
	ExtraArgs      string
}

// UnitExtras bundles the engine-specific fragments the unit template
// conditionally emits (podman pidfile cleanup / Delegate=yes, or a
// docker.service dependency).
type UnitExtras struct {
	IsPodman       bool
	PodmanDelegate bool
	IsDocker       bool
	ContainerPath  string
}

func (x UnitExtras) fill(d *unitData) {
	d.ContainerPath = x.ContainerPath
	if x.IsDocker {
		d.DockerAfter = " docker.service"
		d.DockerRequires = "Requires=docker.service"
	}
	if x.IsPodman {
		extraArgs := "ExecStartPre=-/bin/rm -f %t/%n-pid %t/%n-cid\n" +
			"ExecStopPost=-/bin/rm -f %t/%n-pid %t/%n-cid\n" +
			"Type=forking\n" +
			"PIDFile=%t/%n-pid"
		if x.PodmanDelegate {
			extraArgs += "\nDelegate=yes"
		}
		d.ExtraArgs = extraArgs
	}
}

// RenderTemplateUnit renders the per-cluster templated unit file whose
// "%i" instance names a daemon as "<kind>.<id>".
func RenderTemplateUnit(fsid model.FSID, dataDir string, extras UnitExtras) (string, error) {
	d := unitData{FSID: string(fsid), DataDir: dataDir}
	extras.fill(&d)
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, d); err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.RenderTemplateUnit", string(fsid), err)
	}
	return buf.String(), nil
}

// RenderExporterUnit renders the non-templated unit for the exporter
// daemon, which runs this binary rather than a container.
func RenderExporterUnit(id model.Identity, dataDir string, extras UnitExtras) (string, error) {
	d := unitData{FSID: string(id.FSID), ID: id.ID, DataDir: dataDir}
	extras.fill(&d)
	var buf bytes.Buffer
	if err := exporterUnitTemplate.Execute(&buf, d); err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.RenderExporterUnit", id.Name(), err)
	}
	return buf.String(), nil
}

// InstallBaseUnits materializes ceph.target and ceph-<fsid>.target,
// enabling/starting them the first time they are created.
func (i *InitSystem) InstallBaseUnits(ctx context.Context, fsid model.FSID) error {
	globalPath := i.unitDir + "/ceph.target"
	_, globalExisted, err := statExists(globalPath)
	if err != nil {
		return err
	}
	if err := writeUnitFile(globalPath, globalTargetUnit); err != nil {
		return err
	}
	if !globalExisted {
		i.run.Run(ctx, runner.Debug, 30*time.Second, "systemctl disable", nil, "systemctl", "disable", "ceph.target")
		if _, err := i.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "systemctl enable", nil, "systemctl", "enable", "ceph.target"); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.InstallBaseUnits", "enable ceph.target", err)
		}
		if _, err := i.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "systemctl start", nil, "systemctl", "start", "ceph.target"); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.InstallBaseUnits", "start ceph.target", err)
		}
	}

	clusterUnit := "ceph-" + string(fsid) + ".target"
	clusterPath := i.unitDir + "/" + clusterUnit
	_, clusterExisted, err := statExists(clusterPath)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := clusterTargetTemplate.Execute(&buf, struct{ FSID string }{string(fsid)}); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.InstallBaseUnits", "render cluster target", err)
	}
	if err := writeUnitFile(clusterPath, buf.String()); err != nil {
		return err
	}
	if !clusterExisted {
		if err := i.EnableUnit(ctx, clusterUnit); err != nil {
			return err
		}
		if err := i.StartUnit(ctx, clusterUnit); err != nil {
			return err
		}
	}
	return nil
}

// InstallLogrotate writes the per-cluster logrotate drop-in.
func (i *InitSystem) InstallLogrotate(fsid model.FSID, logDir string) error {
	var buf bytes.Buffer
	if err := logrotateTemplate.Execute(&buf, struct{ LogDir, FSID string }{logDir, string(fsid)}); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.InstallLogrotate", string(fsid), err)
	}
	path := i.logrotateDir + "/ceph-" + string(fsid)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.InstallLogrotate", path, err)
	}
	return nil
}

// WriteTemplateUnit writes the per-cluster templated unit file; every
// daemon of the cluster except the exporter instantiates it.
func (i *InitSystem) WriteTemplateUnit(fsid model.FSID, content string) error {
	return writeUnitFile(i.unitDir+"/"+model.TemplateUnitName(fsid), content)
}

// WriteExporterUnit writes the exporter daemon's own resolved unit.
func (i *InitSystem) WriteExporterUnit(id model.Identity, content string) error {
	return writeUnitFile(i.unitDir+"/"+id.UnitName(), content)
}

func writeUnitFile(path, content string) error {
	tmp := path + ".new"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.writeUnitFile", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.writeUnitFile", path, err)
	}
	return nil
}

func statExists(path string) ([]byte, bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.statExists", path, err)
	}
	return nil, true, nil
}

// DaemonReload reloads the systemd unit cache.
func (i *InitSystem) DaemonReload(ctx context.Context) error {
	if i.conn != nil {
		return i.conn.ReloadContext(ctx)
	}
	_, err := i.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "systemctl daemon-reload", nil, "systemctl", "daemon-reload")
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.DaemonReload", "", err)
	}
	return nil
}

// EnableUnit enables unitName to start at boot.
func (i *InitSystem) EnableUnit(ctx context.Context, unitName string) error {
	if i.conn != nil {
		_, _, err := i.conn.EnableUnitFilesContext(ctx, []string{unitName}, false, true)
		if err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.EnableUnit", unitName, err)
		}
		return nil
	}
	_, err := i.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "systemctl enable", nil, "systemctl", "enable", unitName)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.EnableUnit", unitName, err)
	}
	return nil
}

// DisableUnit disables unitName from starting at boot.
func (i *InitSystem) DisableUnit(ctx context.Context, unitName string) error {
	if i.conn != nil {
		_, err := i.conn.DisableUnitFilesContext(ctx, []string{unitName}, false)
		if err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.DisableUnit", unitName, err)
		}
		return nil
	}
	_, err := i.run.Run(ctx, runner.VerboseOnFailure, 30*time.Second, "systemctl disable", nil, "systemctl", "disable", unitName)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.DisableUnit", unitName, err)
	}
	return nil
}

// StartUnit starts unitName, waiting for the job to complete.
func (i *InitSystem) StartUnit(ctx context.Context, unitName string) error {
	if i.conn != nil {
		ch := make(chan string, 1)
		if _, err := i.conn.StartUnitContext(ctx, unitName, "replace", ch); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.StartUnit", unitName, err)
		}
		if res := <-ch; res != "done" {
			return agenterr.New(agenterr.KindExternalCommand, "initsystem.StartUnit", unitName+": job result "+res)
		}
		return nil
	}
	_, err := i.run.Run(ctx, runner.VerboseOnFailure, 60*time.Second, "systemctl start", nil, "systemctl", "start", unitName)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.StartUnit", unitName, err)
	}
	return nil
}

// StopUnit stops unitName, waiting for the job to complete.
func (i *InitSystem) StopUnit(ctx context.Context, unitName string) error {
	if i.conn != nil {
		ch := make(chan string, 1)
		if _, err := i.conn.StopUnitContext(ctx, unitName, "replace", ch); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.StopUnit", unitName, err)
		}
		if res := <-ch; res != "done" {
			return agenterr.New(agenterr.KindExternalCommand, "initsystem.StopUnit", unitName+": job result "+res)
		}
		return nil
	}
	_, err := i.run.Run(ctx, runner.VerboseOnFailure, 90*time.Second, "systemctl stop", nil, "systemctl", "stop", unitName)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.StopUnit", unitName, err)
	}
	return nil
}

// ResetFailed clears a unit's failed state so a subsequent start is not
// rate-limited by StartLimitBurst.
func (i *InitSystem) ResetFailed(ctx context.Context, unitName string) error {
	if i.conn != nil {
		if err := i.conn.ResetFailedUnitContext(ctx, unitName); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.ResetFailed", unitName, err)
		}
		return nil
	}
	_, err := i.run.Run(ctx, runner.Debug, 30*time.Second, "systemctl reset-failed", nil, "systemctl", "reset-failed", unitName)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.ResetFailed", unitName, err)
	}
	return nil
}

// CheckUnit reports whether unitName is enabled and its current
// ActiveState ("active", "inactive", "failed", ...).
func (i *InitSystem) CheckUnit(ctx context.Context, unitName string) (enabled bool, state string, err error) {
	if i.conn != nil {
		props, err := i.conn.GetUnitPropertiesContext(ctx, unitName)
		if err != nil {
			return false, "", agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.CheckUnit", unitName, err)
		}
		as, _ := props["ActiveState"].(string)
		loadState, _ := props["UnitFileState"].(string)
		return loadState == "enabled", as, nil
	}
	res, _ := i.run.Run(ctx, runner.Silent, 15*time.Second, "systemctl is-enabled", nil, "systemctl", "is-enabled", unitName)
	enabled = strings.TrimSpace(res.Stdout) == "enabled"
	res2, _ := i.run.Run(ctx, runner.Silent, 15*time.Second, "systemctl is-active", nil, "systemctl", "is-active", unitName)
	state = strings.TrimSpace(res2.Stdout)
	return enabled, state, nil
}

// State buckets a unit's ActiveState into the coarse view callers
// branch on.
func (i *InitSystem) State(ctx context.Context, unitName string) string {
	_, state, err := i.CheckUnit(ctx, unitName)
	if err != nil {
		return "unknown"
	}
	switch state {
	case "active", "running", "activating":
		return "running"
	case "inactive", "dead":
		return "stopped"
	case "failed":
		return "error"
	}
	return "unknown"
}

// IsTargetEnabled reports whether the named target is enabled.
func (i *InitSystem) IsTargetEnabled(ctx context.Context, target string) bool {
	enabled, _, err := i.CheckUnit(ctx, target)
	return err == nil && enabled
}

// UnitsMatching lists loaded unit names matching the glob pattern,
// e.g. "ceph-<fsid>@*" for every daemon of one cluster.
func (i *InitSystem) UnitsMatching(ctx context.Context, pattern string) ([]string, error) {
	if i.conn != nil {
		units, err := i.conn.ListUnitsByPatternsContext(ctx, nil, []string{pattern})
		if err != nil {
			return nil, agenterr.Wrap(agenterr.KindExternalCommand, "initsystem.UnitsMatching", pattern, err)
		}
		names := make([]string, 0, len(units))
		for _, u := range units {
			names = append(names, u.Name)
		}
		return names, nil
	}
	res, _ := i.run.Run(ctx, runner.Silent, 15*time.Second, "systemctl list-units", nil,
		"systemctl", "list-units", "--no-legend", "--plain", "--all", pattern)
	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	return names, nil
}
