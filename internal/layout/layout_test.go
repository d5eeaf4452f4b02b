package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/model"
)

const testFSID = "a1f0c0aa-3f1d-4b62-90b4-07a0b100a1b2"

func testLayout(t *testing.T) (*Layout, string) {
	t.Helper()
	root := t.TempDir()
	return New(agentcfg.Paths{
		DataDir:      filepath.Join(root, "data"),
		LogDir:       filepath.Join(root, "log"),
		UnitDir:      filepath.Join(root, "units"),
		SysctlDir:    filepath.Join(root, "sysctl"),
		LogrotateDir: filepath.Join(root, "logrotate"),
		LockDir:      filepath.Join(root, "run"),
	}), root
}

func TestPathDerivation(t *testing.T) {
	l, root := testLayout(t)
	id := model.Identity{FSID: testFSID, Kind: model.KindMon, ID: "host1"}

	assert.Equal(t, filepath.Join(root, "data", testFSID), l.ClusterDataDir(testFSID))
	assert.Equal(t, filepath.Join(root, "data", testFSID, "mon.host1"), l.DaemonDataDir(id))
	assert.Equal(t, filepath.Join(root, "log", testFSID), l.ClusterLogDir(testFSID))
	assert.Equal(t, filepath.Join(root, "sysctl", "90-ceph-"+testFSID+"-mon.conf"), l.SysctlFile(testFSID, model.KindMon))
	assert.Equal(t, filepath.Join(root, "logrotate", "ceph-"+testFSID), l.LogrotateFile(testFSID))
}

func TestRemovedDataDir(t *testing.T) {
	l, root := testLayout(t)
	id := model.Identity{FSID: testFSID, Kind: model.KindOSD, ID: "3"}
	got := l.RemovedDataDir(id, "2021-04-01T12:00:00Z")
	assert.Equal(t, filepath.Join(root, "data", testFSID, "removed", "osd.3_2021-04-01T12:00:00Z"), got)
}

func TestEnsureDirsModes(t *testing.T) {
	l, _ := testLayout(t)
	uid, gid := os.Getuid(), os.Getgid()

	require.NoError(t, l.EnsureClusterDataDir(testFSID, uid, gid))
	for _, sub := range []string{"", "crash", "crash/posted"} {
		fi, err := os.Stat(filepath.Join(l.ClusterDataDir(testFSID), sub))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), fi.Mode().Perm())
	}

	logDir, err := l.EnsureClusterLogDir(testFSID, uid, gid)
	require.NoError(t, err)
	fi, err := os.Stat(logDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o770), fi.Mode().Perm())
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.image")

	require.NoError(t, WriteAtomic(path, []byte("quay.io/ceph/ceph:v16\n"), 0o600, os.Getuid(), os.Getgid()))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	// no .new sibling survives a successful write
	_, err = os.Stat(path + ".new")
	assert.True(t, os.IsNotExist(err))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "quay.io/ceph/ceph:v16", string(TrimTrailingNewline(b)))
}

func TestWriteAtomicOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.run")

	require.NoError(t, WriteAtomic(path, []byte("old"), 0o600, -1, -1))
	require.NoError(t, WriteAtomic(path, []byte("new"), 0o600, -1, -1))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func TestReadIfExists(t *testing.T) {
	dir := t.TempDir()
	_, found, err := ReadIfExists(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.False(t, found)

	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	b, found, err := ReadIfExists(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "x", string(b))
}
