package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/containerruntime"
	"github.com/cephadm/cephadm/internal/layout"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

const testFSID = "a1f0c0aa-3f1d-4b62-90b4-07a0b100a1b2"

// fakeRuntime satisfies ContainerEngine without a real podman/docker.
type fakeRuntime struct{}

func (f *fakeRuntime) Engine() containerruntime.Engine { return containerruntime.Podman }
func (f *fakeRuntime) Path() string                    { return "/usr/bin/podman" }
func (f *fakeRuntime) NeedsDelegateCgroup() bool       { return true }
func (f *fakeRuntime) BuildRunArgv(spec model.ContainerSpec, runDir string, _ func(string) bool) []string {
	return []string{f.Path(), "run", "--name", "ceph-" + string(spec.Identity.FSID) + "-" + spec.Identity.Name(), spec.Image}
}
func (f *fakeRuntime) BuildRmArgv(id model.Identity, storage bool) []string {
	// something runnable so Remove's best-effort container cleanup is harmless
	return []string{"/bin/true"}
}

// fakeInit records every unit operation instead of touching systemd.
type fakeInit struct {
	calls []string
}

func (f *fakeInit) record(op, arg string) { f.calls = append(f.calls, op+" "+arg) }
func (f *fakeInit) has(op string) bool {
	for _, c := range f.calls {
		if len(c) >= len(op) && c[:len(op)] == op {
			return true
		}
	}
	return false
}
func (f *fakeInit) reset() { f.calls = nil }

func (f *fakeInit) InstallBaseUnits(ctx context.Context, fsid model.FSID) error {
	f.record("install-base-units", string(fsid))
	return nil
}
func (f *fakeInit) InstallLogrotate(fsid model.FSID, logDir string) error {
	f.record("install-logrotate", string(fsid))
	return nil
}
func (f *fakeInit) WriteTemplateUnit(fsid model.FSID, content string) error {
	f.record("write-template-unit", string(fsid))
	return nil
}
func (f *fakeInit) WriteExporterUnit(id model.Identity, content string) error {
	f.record("write-exporter-unit", id.Name())
	return nil
}
func (f *fakeInit) DaemonReload(ctx context.Context) error { f.record("daemon-reload", ""); return nil }
func (f *fakeInit) EnableUnit(ctx context.Context, unitName string) error {
	f.record("enable", unitName)
	return nil
}
func (f *fakeInit) DisableUnit(ctx context.Context, unitName string) error {
	f.record("disable", unitName)
	return nil
}
func (f *fakeInit) StartUnit(ctx context.Context, unitName string) error {
	f.record("start", unitName)
	return nil
}
func (f *fakeInit) StopUnit(ctx context.Context, unitName string) error {
	f.record("stop", unitName)
	return nil
}
func (f *fakeInit) ResetFailed(ctx context.Context, unitName string) error {
	f.record("reset-failed", unitName)
	return nil
}
func (f *fakeInit) UnitsMatching(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}

// fakeFirewall records UpdateForDaemon calls.
type fakeFirewall struct {
	kinds []model.Kind
	ports [][]int
}

func (f *fakeFirewall) UpdateForDaemon(ctx context.Context, kind model.Kind, ports []int) error {
	f.kinds = append(f.kinds, kind)
	f.ports = append(f.ports, ports)
	return nil
}
func (f *fakeFirewall) reset() { f.kinds, f.ports = nil, nil }

func testEngine(t *testing.T) (*Engine, *fakeInit, *fakeFirewall, agentcfg.Paths) {
	t.Helper()
	root := t.TempDir()
	paths := agentcfg.Paths{
		DataDir:      filepath.Join(root, "data"),
		LogDir:       filepath.Join(root, "log"),
		UnitDir:      filepath.Join(root, "units"),
		SysctlDir:    filepath.Join(root, "sysctl"),
		LogrotateDir: filepath.Join(root, "logrotate"),
		LockDir:      filepath.Join(root, "run"),
	}
	for _, d := range []string{paths.UnitDir, paths.SysctlDir, paths.LogrotateDir, paths.LockDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	cfg := &agentcfg.Context{Paths: paths, Timeouts: agentcfg.DefaultTimeouts()}
	fi := &fakeInit{}
	ff := &fakeFirewall{}
	e := New(runner.New(zerolog.Nop(), time.Minute), &fakeRuntime{}, ff, fi, layout.New(paths), cfg, zerolog.Nop())
	return e, fi, ff, paths
}

func testRequest(kind model.Kind, id string) Request {
	return Request{
		Identity: model.Identity{FSID: testFSID, Kind: kind, ID: id},
		Image:    "quay.io/ceph/ceph:v16",
		UID:      os.Getuid(),
		GID:      os.Getgid(),
	}
}

func markerPath(paths agentcfg.Paths, id model.Identity, name string) string {
	return filepath.Join(paths.DataDir, string(id.FSID), id.Name(), name)
}

func TestDeployWritesMarkers(t *testing.T) {
	e, fi, ff, paths := testEngine(t)
	req := testRequest(model.KindMgr, "h")
	require.NoError(t, e.Deploy(context.Background(), req))

	for _, name := range []string{"unit.run", "unit.meta", "unit.poststop", "unit.image", "unit.created", "unit.configured"} {
		path := markerPath(paths, req.Identity, name)
		info, err := os.Stat(path)
		require.NoError(t, err, name)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
		_, err = os.Stat(path + ".new")
		assert.True(t, os.IsNotExist(err), name+".new must not survive a successful deploy")
	}

	// unit.image matches the image reference embedded in unit.run
	image, err := os.ReadFile(markerPath(paths, req.Identity, "unit.image"))
	require.NoError(t, err)
	run, err := os.ReadFile(markerPath(paths, req.Identity, "unit.run"))
	require.NoError(t, err)
	assert.Equal(t, "quay.io/ceph/ceph:v16", string(layout.TrimTrailingNewline(image)))
	assert.Contains(t, string(run), "quay.io/ceph/ceph:v16")

	unit := req.Identity.UnitName()
	assert.True(t, fi.has("daemon-reload"))
	assert.True(t, fi.has("enable "+unit))
	assert.True(t, fi.has("start "+unit))
	require.Len(t, ff.kinds, 1)
	assert.Equal(t, model.KindMgr, ff.kinds[0])
}

func TestReconfigureStoragePlaneDoesNotBounce(t *testing.T) {
	e, fi, ff, paths := testEngine(t)
	req := testRequest(model.KindMgr, "h")
	require.NoError(t, e.Deploy(context.Background(), req))
	fi.reset()
	ff.reset()

	// age the markers so an mtime advance is observable
	created := markerPath(paths, req.Identity, "unit.created")
	configured := markerPath(paths, req.Identity, "unit.configured")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(created, past, past))
	require.NoError(t, os.Chtimes(configured, past, past))

	req.Reconfigure = true
	require.NoError(t, e.Deploy(context.Background(), req))

	assert.False(t, fi.has("stop"), "storage-plane reconfigure must not stop the unit")
	assert.False(t, fi.has("start"), "storage-plane reconfigure must not start the unit")
	assert.False(t, fi.has("enable"))
	assert.Empty(t, ff.kinds, "storage-plane reconfigure must not touch the firewall")

	createdInfo, err := os.Stat(created)
	require.NoError(t, err)
	assert.True(t, createdInfo.ModTime().Equal(past), "unit.created must never be rewritten")
	configuredInfo, err := os.Stat(configured)
	require.NoError(t, err)
	assert.True(t, configuredInfo.ModTime().After(past), "unit.configured must advance on reconfigure")
}

func TestReconfigureOtherKindsRestartAndFirewall(t *testing.T) {
	e, fi, ff, _ := testEngine(t)
	req := testRequest(model.KindGrafana, "h")
	require.NoError(t, e.Deploy(context.Background(), req))
	fi.reset()
	ff.reset()

	req.Reconfigure = true
	require.NoError(t, e.Deploy(context.Background(), req))

	unit := req.Identity.UnitName()
	assert.True(t, fi.has("reset-failed "+unit))
	assert.True(t, fi.has("stop "+unit))
	assert.True(t, fi.has("start "+unit))
	require.Len(t, ff.kinds, 1, "non-storage-plane reconfigure still processes the firewall")
	assert.Equal(t, model.KindGrafana, ff.kinds[0])
}

func TestReconfigureMissingDataDir(t *testing.T) {
	e, _, _, _ := testEngine(t)
	req := testRequest(model.KindMgr, "absent")
	req.Reconfigure = true
	err := e.Deploy(context.Background(), req)
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindUsage))
}

func TestRemovePreciousMovesData(t *testing.T) {
	e, fi, _, paths := testEngine(t)
	req := testRequest(model.KindPrometheus, "h")
	require.NoError(t, e.Deploy(context.Background(), req))
	fi.reset()

	require.NoError(t, e.Remove(context.Background(), req.Identity, false))

	_, err := os.Stat(markerPath(paths, req.Identity, "unit.run"))
	assert.True(t, os.IsNotExist(err), "data dir must be gone from its original path")

	removed, err := os.ReadDir(filepath.Join(paths.DataDir, testFSID, "removed"))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Contains(t, removed[0].Name(), "prometheus.h_")

	unit := req.Identity.UnitName()
	assert.True(t, fi.has("stop "+unit))
	assert.True(t, fi.has("disable "+unit))
}

func TestRemoveForceDeletesData(t *testing.T) {
	e, _, _, paths := testEngine(t)
	req := testRequest(model.KindPrometheus, "h")
	require.NoError(t, e.Deploy(context.Background(), req))

	require.NoError(t, e.Remove(context.Background(), req.Identity, true))

	_, err := os.Stat(filepath.Join(paths.DataDir, testFSID, "prometheus.h"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(paths.DataDir, testFSID, "removed"))
	assert.True(t, os.IsNotExist(err), "force delete must not create a removed/ entry")
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"has space", "'has space'"},
		{"dollar$var", "'dollar$var'"},
		{"don't", `'don'\''t'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, shellQuote(tt.in), tt.in)
	}
}

func TestShellJoin(t *testing.T) {
	got := shellJoin([]string{"podman", "run", "--name", "ceph mon"})
	assert.Equal(t, "podman run --name 'ceph mon'", got)
}

func TestArgvContainerName(t *testing.T) {
	assert.Equal(t, "ceph-x-mon.h", argvContainerName([]string{"podman", "run", "--name", "ceph-x-mon.h", "img"}))
	assert.Empty(t, argvContainerName([]string{"podman", "run", "img"}))
	assert.Empty(t, argvContainerName([]string{"podman", "run", "--name"}))
}

func TestNilIfZero(t *testing.T) {
	assert.Nil(t, nilIfZero(0))
	assert.Equal(t, int64(512), nilIfZero(512))
}
