// Package layout constructs and materializes the deterministic
// filesystem paths under which all per-cluster, per-daemon state lives.
package layout

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
)

const (
	dataDirMode = 0o700
	logDirMode  = 0o770
)

// Layout resolves paths for one configured agent. It never itself
// tracks which cluster it is operating on; every method that needs an
// FSID takes one explicitly, since a single host can hold daemons for
// multiple clusters.
type Layout struct {
	paths agentcfg.Paths
}

// New returns a Layout rooted at paths.
func New(paths agentcfg.Paths) *Layout {
	return &Layout{paths: paths}
}

// ClusterDataDir returns "<data_dir>/<fsid>".
func (l *Layout) ClusterDataDir(fsid model.FSID) string {
	return filepath.Join(l.paths.DataDir, string(fsid))
}

// DaemonDataDir returns "<data_dir>/<fsid>/<kind>.<id>".
func (l *Layout) DaemonDataDir(id model.Identity) string {
	return filepath.Join(l.ClusterDataDir(id.FSID), fmt.Sprintf("%s.%s", id.Kind, id.ID))
}

// ClusterLogDir returns "<log_dir>/<fsid>".
func (l *Layout) ClusterLogDir(fsid model.FSID) string {
	return filepath.Join(l.paths.LogDir, string(fsid))
}

// UnitFile returns the systemd unit path for id.
func (l *Layout) UnitFile(id model.Identity) string {
	return filepath.Join(l.paths.UnitDir, id.UnitName())
}

// SysctlFile returns the sysctl(8) drop-in path for a kind within a
// cluster, used by kinds that tune kernel parameters (e.g. osd).
func (l *Layout) SysctlFile(fsid model.FSID, kind model.Kind) string {
	return filepath.Join(l.paths.SysctlDir, fmt.Sprintf("90-ceph-%s-%s.conf", fsid, kind))
}

// ClusterSysctlGlob matches every sysctl drop-in the cluster installed.
func (l *Layout) ClusterSysctlGlob(fsid model.FSID) string {
	return filepath.Join(l.paths.SysctlDir, fmt.Sprintf("90-ceph-%s-*.conf", fsid))
}

// RemovedDataDir returns the resting place of a precious daemon's data
// directory after rm-daemon without --force-delete-data.
func (l *Layout) RemovedDataDir(id model.Identity, stamp string) string {
	return filepath.Join(l.ClusterDataDir(id.FSID), "removed", fmt.Sprintf("%s.%s_%s", id.Kind, id.ID, stamp))
}

// LogrotateFile returns the logrotate(8) drop-in path for a cluster.
func (l *Layout) LogrotateFile(fsid model.FSID) string {
	return filepath.Join(l.paths.LogrotateDir, fmt.Sprintf("ceph-%s", fsid))
}

// EnsureClusterDataDir creates "<data_dir>/<fsid>" and its fixed
// subdirectories ("crash", "crash/posted"), chowned to uid:gid.
func (l *Layout) EnsureClusterDataDir(fsid model.FSID, uid, gid int) error {
	base := l.ClusterDataDir(fsid)
	for _, sub := range []string{"", "crash", filepath.Join("crash", "posted")} {
		if err := makeDir(filepath.Join(base, sub), uid, gid, dataDirMode); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDaemonDataDir creates the per-daemon data directory.
func (l *Layout) EnsureDaemonDataDir(id model.Identity, uid, gid int) (string, error) {
	dir := l.DaemonDataDir(id)
	if err := makeDir(dir, uid, gid, dataDirMode); err != nil {
		return "", err
	}
	return dir, nil
}

// EnsureClusterLogDir creates the per-cluster log directory.
func (l *Layout) EnsureClusterLogDir(fsid model.FSID, uid, gid int) (string, error) {
	dir := l.ClusterLogDir(fsid)
	if err := makeDir(dir, uid, gid, logDirMode); err != nil {
		return "", err
	}
	return dir, nil
}

func makeDir(dir string, uid, gid int, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.makeDir", dir, err)
	}
	if err := os.Chmod(dir, mode); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.makeDir", dir, err)
	}
	if err := os.Chown(dir, uid, gid); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.makeDir", dir, err)
	}
	return nil
}

// WriteAtomic implements the "new, rename" pattern mandated for every
// daemon state file: write to "<name>.new", fsync, chmod/chown, then
// atomically rename over "name". mode is always applied before rename.
func WriteAtomic(name string, data []byte, mode os.FileMode, uid, gid int) error {
	tmp := name + ".new"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.WriteAtomic", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.WriteAtomic", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.WriteAtomic", name, err)
	}
	if err := f.Close(); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.WriteAtomic", name, err)
	}
	if uid >= 0 && gid >= 0 {
		if err := os.Chown(tmp, uid, gid); err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "layout.WriteAtomic", name, err)
		}
	}
	if err := os.Chmod(tmp, mode); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.WriteAtomic", name, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "layout.WriteAtomic", name, err)
	}
	return nil
}

// ReadIfExists returns the contents of name, or (nil, false, nil) if it
// does not exist.
func ReadIfExists(name string) ([]byte, bool, error) {
	b, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, agenterr.Wrap(agenterr.KindExternalCommand, "layout.ReadIfExists", name, err)
	}
	return b, true, nil
}

// TrimTrailingNewline strips every trailing '\n', such as the one
// marker files like unit.image are written with.
func TrimTrailingNewline(b []byte) []byte {
	return bytes.TrimRight(b, "\n")
}
