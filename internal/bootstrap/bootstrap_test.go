package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/agenterr"
)

func TestComposeKeys(t *testing.T) {
	keys := ComposeKeys("mon-key", "admin-key", "mgr-key", "x")

	assert.Equal(t, "mon-key", keys.MonKey)
	assert.Equal(t, "admin-key", keys.AdminKey)
	assert.Equal(t, "mgr-key", keys.MgrKey)

	assert.Contains(t, keys.BootstrapKeyring, "[mon.]\n\tkey = mon-key")
	assert.Contains(t, keys.BootstrapKeyring, "[client.admin]\n\tkey = admin-key")
	assert.Contains(t, keys.BootstrapKeyring, "[mgr.x]\n\tkey = mgr-key")
	assert.Contains(t, keys.BootstrapKeyring, "caps mon = profile mgr")

	assert.Equal(t, "[client.admin]\n\tkey = admin-key\n", keys.AdminKeyring)
}

func TestRenderInitialConfig(t *testing.T) {
	conf := renderInitialConfig("a1f0c0aa-3f1d-4b62-90b4-07a0b100a1b2",
		"[v2:10.0.0.1:3300,v1:10.0.0.1:6789]", "quay.io/ceph/ceph:v16")

	assert.Contains(t, conf, "fsid = a1f0c0aa-3f1d-4b62-90b4-07a0b100a1b2")
	assert.Contains(t, conf, "mon_host = [v2:10.0.0.1:3300,v1:10.0.0.1:6789]")
	assert.Contains(t, conf, "container_image = quay.io/ceph/ceph:v16")
	assert.Contains(t, conf, "auth_allow_insecure_global_id_reclaim = false")
	assert.Contains(t, conf, "mgr_standby_modules = false")
}

func TestVerifyOutputFiles(t *testing.T) {
	dir := t.TempDir()

	// empty output dir passes
	require.NoError(t, verifyOutputFiles(Options{OutputDir: dir}))

	// a leftover admin keyring is fatal without the override
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ceph.client.admin.keyring"), []byte("x"), 0o600))
	err := verifyOutputFiles(Options{OutputDir: dir})
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindUsage))

	require.NoError(t, verifyOutputFiles(Options{OutputDir: dir, AllowOverwrite: true}))
}

func TestVerifyIPLocal(t *testing.T) {
	// loopback is configured on every host this test can run on
	assert.NoError(t, verifyIPLocal("127.0.0.1"))

	// hostnames pass through, the mon resolves them itself
	assert.NoError(t, verifyIPLocal("mon-host"))

	// TEST-NET-1 is never locally configured
	err := verifyIPLocal("192.0.2.1")
	require.Error(t, err)
	assert.True(t, agenterr.Is(err, agenterr.KindUsage))
}
