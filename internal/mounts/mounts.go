// Package mounts derives the per-kind container mount sets: which host
// paths each daemon kind needs inside its container and under what
// SELinux relabeling.
package mounts

import (
	"fmt"
	"path/filepath"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/model"
)

// ForDaemon returns the volume mounts for one daemon's container.
func ForDaemon(paths agentcfg.Paths, id model.Identity) []model.Mount {
	dataDir := filepath.Join(paths.DataDir, string(id.FSID), id.Name())
	logDir := filepath.Join(paths.LogDir, string(id.FSID))
	crashDir := filepath.Join(paths.DataDir, string(id.FSID), "crash")
	cephCommon := func() []model.Mount {
		return []model.Mount{
			{Source: fmt.Sprintf("/var/run/ceph/%s", id.FSID), Destination: "/var/run/ceph", Options: []string{"z"}},
			{Source: logDir, Destination: "/var/log/ceph", Options: []string{"z"}},
			{Source: crashDir, Destination: "/var/lib/ceph/crash", Options: []string{"z"}},
		}
	}

	switch id.Kind {
	case model.KindMon:
		return append(cephCommon(),
			model.Mount{Source: dataDir, Destination: "/var/lib/ceph/mon/ceph-" + id.ID, Options: []string{"z"}},
		)
	case model.KindMgr:
		return append(cephCommon(),
			model.Mount{Source: dataDir, Destination: "/var/lib/ceph/mgr/ceph-" + id.ID, Options: []string{"z"}},
		)
	case model.KindMds:
		return append(cephCommon(),
			model.Mount{Source: dataDir, Destination: "/var/lib/ceph/mds/ceph-" + id.ID, Options: []string{"z"}},
		)
	case model.KindRGW:
		return append(cephCommon(),
			model.Mount{Source: dataDir, Destination: "/var/lib/ceph/radosgw/ceph-rgw." + id.ID, Options: []string{"z"}},
		)
	case model.KindOSD:
		return append(cephCommon(),
			model.Mount{Source: dataDir, Destination: "/var/lib/ceph/osd/ceph-" + id.ID, Options: []string{"z"}},
			model.Mount{Source: "/dev", Destination: "/dev"},
			model.Mount{Source: "/run/udev", Destination: "/run/udev"},
			model.Mount{Source: "/sys", Destination: "/sys"},
			model.Mount{Source: "/run/lvm", Destination: "/run/lvm"},
			model.Mount{Source: "/run/lock/lvm", Destination: "/run/lock/lvm"},
		)
	case model.KindRBDMirror, model.KindCephFSMirror, model.KindCrash:
		return append(cephCommon(),
			model.Mount{Source: dataDir, Destination: "/var/lib/ceph/" + string(id.Kind) + "/ceph-" + id.ID, Options: []string{"z"}},
		)
	case model.KindPrometheus:
		return []model.Mount{
			{Source: filepath.Join(dataDir, "etc/prometheus"), Destination: "/etc/prometheus", Options: []string{"Z"}},
			{Source: filepath.Join(dataDir, "data"), Destination: "/prometheus", Options: []string{"Z"}},
		}
	case model.KindAlertmanager:
		return []model.Mount{
			{Source: filepath.Join(dataDir, "etc/alertmanager"), Destination: "/etc/alertmanager", Options: []string{"Z"}},
		}
	case model.KindGrafana:
		return []model.Mount{
			{Source: filepath.Join(dataDir, "etc/grafana/grafana.ini"), Destination: "/etc/grafana/grafana.ini", Options: []string{"Z"}},
			{Source: filepath.Join(dataDir, "etc/grafana/provisioning/datasources"), Destination: "/etc/grafana/provisioning/datasources", Options: []string{"Z"}},
			{Source: filepath.Join(dataDir, "etc/grafana/certs"), Destination: "/etc/grafana/certs", Options: []string{"Z"}},
			{Source: filepath.Join(dataDir, "data/grafana.db"), Destination: "/var/lib/grafana/grafana.db", Options: []string{"Z"}},
		}
	case model.KindNodeExporter:
		return []model.Mount{
			{Source: "/proc", Destination: "/host/proc", Options: []string{"ro"}},
			{Source: "/sys", Destination: "/host/sys", Options: []string{"ro"}},
			{Source: "/", Destination: "/rootfs", Options: []string{"ro"}},
		}
	case model.KindNFS:
		return append(cephCommon(),
			model.Mount{Source: filepath.Join(dataDir, "etc/ganesha"), Destination: "/etc/ganesha", Options: []string{"z"}},
		)
	case model.KindISCSI:
		return append(cephCommon(),
			model.Mount{Source: filepath.Join(dataDir, "iscsi-gateway.cfg"), Destination: "/etc/ceph/iscsi-gateway.cfg", Options: []string{"z"}},
			model.Mount{Source: filepath.Join(dataDir, "configfs"), Destination: "/sys/kernel/config"},
			model.Mount{Source: "/dev", Destination: "/dev"},
		)
	case model.KindHAProxy:
		return []model.Mount{
			{Source: filepath.Join(dataDir, "haproxy"), Destination: "/var/lib/haproxy", Options: []string{"z"}},
		}
	case model.KindKeepalived:
		return []model.Mount{
			{Source: filepath.Join(dataDir, "keepalived.conf"), Destination: "/etc/keepalived/keepalived.conf", Options: []string{"z"}},
		}
	}
	return nil
}
