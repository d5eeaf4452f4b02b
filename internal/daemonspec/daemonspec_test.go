package daemonspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/model"
)

func TestLookupKnownKinds(t *testing.T) {
	for _, kind := range []model.Kind{
		model.KindMon, model.KindMgr, model.KindMds, model.KindOSD, model.KindRGW,
		model.KindRBDMirror, model.KindCephFSMirror, model.KindCrash,
		model.KindPrometheus, model.KindAlertmanager, model.KindGrafana, model.KindNodeExporter,
		model.KindNFS, model.KindISCSI, model.KindHAProxy, model.KindKeepalived,
		model.KindContainer, model.KindCephadmExporter,
	} {
		_, ok := Lookup(kind)
		assert.True(t, ok, string(kind))
	}
	_, ok := Lookup("made-up")
	assert.False(t, ok)
}

func TestUIDGIDStrategies(t *testing.T) {
	mon, _ := Lookup(model.KindMon)
	assert.False(t, mon.UIDGID.Fixed)
	assert.Equal(t, "/var/lib/ceph", mon.UIDGID.StatPath)

	ne, _ := Lookup(model.KindNodeExporter)
	require.True(t, ne.UIDGID.Fixed)
	assert.Equal(t, 65534, ne.UIDGID.UID)
}

func TestRequiredFiles(t *testing.T) {
	prom, _ := Lookup(model.KindPrometheus)
	assert.Equal(t, []string{"prometheus.yml"}, prom.RequiredFiles)

	exp, _ := Lookup(model.KindCephadmExporter)
	assert.ElementsMatch(t, []string{"crt", "key", "token"}, exp.RequiredFiles)

	graf, _ := Lookup(model.KindGrafana)
	assert.Contains(t, graf.RequiredFiles, "certs/cert_file")
}

func TestIsPrecious(t *testing.T) {
	assert.True(t, IsPrecious(model.KindMon))
	assert.True(t, IsPrecious(model.KindOSD))
	assert.True(t, IsPrecious(model.KindPrometheus))
	assert.False(t, IsPrecious(model.KindMgr))
	assert.False(t, IsPrecious(model.KindGrafana))
}

func TestNeedsRestartOnReconfig(t *testing.T) {
	assert.False(t, NeedsRestartOnReconfig(model.KindMon))
	assert.False(t, NeedsRestartOnReconfig(model.KindOSD))
	assert.True(t, NeedsRestartOnReconfig(model.KindPrometheus))
	assert.True(t, NeedsRestartOnReconfig(model.KindNFS))
}

func TestIsStoragePlane(t *testing.T) {
	assert.True(t, IsStoragePlane(model.KindCrash))
	assert.False(t, IsStoragePlane(model.KindGrafana))
	assert.False(t, IsStoragePlane(model.KindCephadmExporter))
}

func TestPrivilegedDefaults(t *testing.T) {
	osd, _ := Lookup(model.KindOSD)
	assert.True(t, osd.Privileged)
	iscsi, _ := Lookup(model.KindISCSI)
	assert.True(t, iscsi.Privileged)
	mon, _ := Lookup(model.KindMon)
	assert.False(t, mon.Privileged)
}
