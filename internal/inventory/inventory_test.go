package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agenterr"
)

const (
	fsidA = "a1f0c0aa-3f1d-4b62-90b4-07a0b100a1b2"
	fsidB = "b2e1d1bb-4e2e-5c73-a1c5-18b1c211b2c3"
)

func seedDaemon(t *testing.T, dataDir, fsid, name string) {
	t.Helper()
	dir := filepath.Join(dataDir, fsid, name)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unit.image"), []byte("quay.io/ceph/ceph:v16\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unit.meta"), []byte(`{"ports": [9283]}`), 0o600))
}

func TestListEmptyDataRoot(t *testing.T) {
	inv := New(filepath.Join(t.TempDir(), "missing"), nil, zerolog.Nop())
	daemons, err := inv.List(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, daemons)
}

func TestListDaemons(t *testing.T) {
	dataDir := t.TempDir()
	seedDaemon(t, dataDir, fsidA, "mon.h")
	seedDaemon(t, dataDir, fsidA, "mgr.h")
	// directories that are not daemon dirs are skipped
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, fsidA, "crash"), 0o700))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "not-an-fsid", "mon.x"), 0o700))

	inv := New(dataDir, nil, zerolog.Nop())
	daemons, err := inv.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, daemons, 2)

	assert.Equal(t, "mgr.h", daemons[0].Name)
	assert.Equal(t, "mon.h", daemons[1].Name)
	assert.Equal(t, fsidA, daemons[0].FSID)
	assert.Equal(t, "cephadm:v1", daemons[0].Style)
	assert.Equal(t, "ceph-"+fsidA+"@mon.h.service", daemons[1].SystemdUnit)
	assert.Equal(t, "quay.io/ceph/ceph:v16", daemons[0].Image)
	assert.Equal(t, []any{float64(9283)}, daemons[0].Meta["ports"])
}

func TestInferFSIDSingle(t *testing.T) {
	dataDir := t.TempDir()
	seedDaemon(t, dataDir, fsidA, "mon.h")
	seedDaemon(t, dataDir, fsidA, "mgr.h")

	inv := New(dataDir, nil, zerolog.Nop())
	fsid, err := inv.InferFSID(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, fsidA, string(fsid))
}

func TestInferFSIDAmbiguous(t *testing.T) {
	dataDir := t.TempDir()
	seedDaemon(t, dataDir, fsidA, "mon.h")
	seedDaemon(t, dataDir, fsidB, "mon.h")

	inv := New(dataDir, nil, zerolog.Nop())
	_, err := inv.InferFSID(context.Background(), "")
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindUsage))
	assert.Contains(t, err.Error(), "cannot infer an fsid")
}

func TestInferFSIDByNameDisambiguates(t *testing.T) {
	dataDir := t.TempDir()
	seedDaemon(t, dataDir, fsidA, "mon.h")
	seedDaemon(t, dataDir, fsidB, "osd.0")

	inv := New(dataDir, nil, zerolog.Nop())
	fsid, err := inv.InferFSID(context.Background(), "osd.0")
	require.NoError(t, err)
	assert.Equal(t, fsidB, string(fsid))
}

func TestInferFSIDNoneFound(t *testing.T) {
	inv := New(t.TempDir(), nil, zerolog.Nop())
	fsid, err := inv.InferFSID(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, fsid)
}

func TestFindMonConfig(t *testing.T) {
	dataDir := t.TempDir()
	seedDaemon(t, dataDir, fsidA, "mon.h")
	confPath := filepath.Join(dataDir, fsidA, "mon.h", "config")
	require.NoError(t, os.WriteFile(confPath, []byte("[global]\n"), 0o600))

	inv := New(dataDir, nil, zerolog.Nop())
	got, ok := inv.FindMonConfig(context.Background(), fsidA)
	require.True(t, ok)
	assert.Equal(t, confPath, got)

	_, ok = inv.FindMonConfig(context.Background(), fsidB)
	assert.False(t, ok)
}
