package initsystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/model"
)

const testFSID = "a1f0c0aa-3f1d-4b62-90b4-07a0b100a1b2"

func TestRenderTemplateUnitPodman(t *testing.T) {
	unit, err := RenderTemplateUnit(testFSID, "/var/lib/ceph", UnitExtras{
		IsPodman:       true,
		PodmanDelegate: true,
		ContainerPath:  "/usr/bin/podman",
	})
	require.NoError(t, err)

	assert.Contains(t, unit, "ExecStart=/bin/bash /var/lib/ceph/"+testFSID+"/%i/unit.run")
	assert.Contains(t, unit, "ExecStop=-/usr/bin/podman stop ceph-"+testFSID+"-%i")
	assert.Contains(t, unit, "ExecStopPost=-/bin/bash /var/lib/ceph/"+testFSID+"/%i/unit.poststop")
	assert.Contains(t, unit, "PartOf=ceph-"+testFSID+".target")
	assert.Contains(t, unit, "KillMode=none")
	assert.Contains(t, unit, "Restart=on-failure")
	assert.Contains(t, unit, "StartLimitBurst=5")
	assert.Contains(t, unit, "Type=forking")
	assert.Contains(t, unit, "PIDFile=%t/%n-pid")
	assert.Contains(t, unit, "Delegate=yes")
	assert.NotContains(t, unit, "docker.service")
}

func TestRenderTemplateUnitPodmanNoDelegate(t *testing.T) {
	unit, err := RenderTemplateUnit(testFSID, "/var/lib/ceph", UnitExtras{
		IsPodman:      true,
		ContainerPath: "/usr/bin/podman",
	})
	require.NoError(t, err)
	assert.NotContains(t, unit, "Delegate=yes")
}

func TestRenderTemplateUnitDocker(t *testing.T) {
	unit, err := RenderTemplateUnit(testFSID, "/var/lib/ceph", UnitExtras{
		IsDocker:      true,
		ContainerPath: "/usr/bin/docker",
	})
	require.NoError(t, err)

	assert.Contains(t, unit, "After=network-online.target local-fs.target time-sync.target docker.service")
	assert.Contains(t, unit, "Requires=docker.service")
	assert.NotContains(t, unit, "Type=forking")
	assert.NotContains(t, unit, "--conmon-pidfile")
}

func TestRenderExporterUnit(t *testing.T) {
	id := model.Identity{FSID: testFSID, Kind: model.KindCephadmExporter, ID: "host1"}
	unit, err := RenderExporterUnit(id, "/var/lib/ceph", UnitExtras{IsPodman: true, ContainerPath: "/usr/bin/podman"})
	require.NoError(t, err)

	assert.Contains(t, unit, "ExecStart=/bin/bash /var/lib/ceph/"+testFSID+"/cephadm-exporter.host1/unit.run")
	assert.NotContains(t, unit, "%i", "exporter unit must be fully resolved")
}

func TestUnitNames(t *testing.T) {
	mon := model.Identity{FSID: testFSID, Kind: model.KindMon, ID: "h"}
	assert.Equal(t, "ceph-"+testFSID+"@mon.h.service", mon.UnitName())

	exp := model.Identity{FSID: testFSID, Kind: model.KindCephadmExporter, ID: "h"}
	assert.Equal(t, "ceph-"+testFSID+"-cephadm-exporter.h.service", exp.UnitName())

	assert.Equal(t, "ceph-"+testFSID+"@.service", model.TemplateUnitName(testFSID))
	assert.Equal(t, "ceph-"+testFSID+".target", model.ClusterTargetName(testFSID))
}
