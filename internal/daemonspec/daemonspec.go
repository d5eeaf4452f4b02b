// Package daemonspec holds the per-daemon-kind description tables:
// default images and TCP ports, entrypoint binaries, required
// config-json files, UID/GID resolution strategy, and the extra
// argv/env each kind needs beyond the common container invocation.
// DeployEngine consults these tables; the extra steps of a few kinds
// (mon mkfs, the mgr port-collision warning, osd activate/deactivate,
// iscsi configfs, the exporter's own unit) are coded in the engine.
package daemonspec

import "github.com/cephadm/cephadm/internal/model"

// Default container images for the kinds that do not run the cluster
// image itself.
const (
	DefaultPrometheusImage   = "docker.io/prom/prometheus:v2.18.1"
	DefaultNodeExporterImage = "docker.io/prom/node-exporter:v0.18.1"
	DefaultGrafanaImage      = "docker.io/ceph/ceph-grafana:6.7.4"
	DefaultAlertmanagerImage = "docker.io/prom/alertmanager:v0.20.0"
	DefaultHAProxyImage      = "haproxy"
	DefaultKeepalivedImage   = "arcts/keepalived"
)

// UIDGIDSource says how DeployEngine resolves the owner of a kind's
// files: a fixed pair, or a path stat'ed inside the kind's image by a
// one-off container.
type UIDGIDSource struct {
	Fixed    bool
	UID, GID int
	// StatPath, when set, is stat'ed inside the kind's image.
	StatPath string
}

// Table describes one daemon kind's deployment shape.
type Table struct {
	Kind            model.Kind
	DefaultImage    string // "" means the cluster image
	Entrypoint      string
	DefaultArgs     []string
	DefaultPorts    []int
	Privileged      bool
	NeedsVarRunCeph bool // installs /var/run/ceph/<fsid> 0770 before start
	SysctlLines     []string
	// RequiredFiles must all be present in the config-json "files"
	// payload delivered on deploy.
	RequiredFiles []string
	// ConfigJSONArgs are top-level config-json keys whose values become
	// command-line arguments rather than files.
	ConfigJSONArgs []string
	UIDGID         UIDGIDSource
}

var cephUIDGID = UIDGIDSource{StatPath: "/var/lib/ceph"}

// tables is the closed set of kinds this agent knows how to deploy.
var tables = map[model.Kind]Table{
	model.KindMon: {
		Kind: model.KindMon, Entrypoint: "/usr/bin/ceph-mon",
		NeedsVarRunCeph: true, UIDGID: cephUIDGID,
	},
	model.KindMgr: {
		Kind: model.KindMgr, Entrypoint: "/usr/bin/ceph-mgr",
		DefaultPorts: []int{9283}, NeedsVarRunCeph: true, UIDGID: cephUIDGID,
	},
	model.KindMds: {
		Kind: model.KindMds, Entrypoint: "/usr/bin/ceph-mds",
		NeedsVarRunCeph: true, UIDGID: cephUIDGID,
	},
	model.KindOSD: {
		Kind: model.KindOSD, Entrypoint: "/usr/bin/ceph-osd",
		Privileged: true, NeedsVarRunCeph: true, UIDGID: cephUIDGID,
		SysctlLines: []string{
			"# allow a large number of OSDs and daemon threads",
			"kernel.pid_max = 4194304",
			"fs.aio-max-nr = 1048576",
		},
	},
	model.KindRGW: {
		Kind: model.KindRGW, Entrypoint: "/usr/bin/radosgw",
		DefaultPorts: []int{80}, NeedsVarRunCeph: true, UIDGID: cephUIDGID,
	},
	model.KindRBDMirror: {
		Kind: model.KindRBDMirror, Entrypoint: "/usr/bin/rbd-mirror",
		NeedsVarRunCeph: true, UIDGID: cephUIDGID,
	},
	model.KindCephFSMirror: {
		Kind: model.KindCephFSMirror, Entrypoint: "/usr/bin/cephfs-mirror",
		NeedsVarRunCeph: true, UIDGID: cephUIDGID,
	},
	model.KindCrash: {
		Kind: model.KindCrash, Entrypoint: "/usr/bin/ceph-crash",
		NeedsVarRunCeph: true, UIDGID: cephUIDGID,
	},
	model.KindPrometheus: {
		Kind: model.KindPrometheus, DefaultImage: DefaultPrometheusImage,
		DefaultPorts: []int{9095},
		DefaultArgs: []string{
			"--config.file=/etc/prometheus/prometheus.yml",
			"--storage.tsdb.path=/prometheus",
		},
		RequiredFiles: []string{"prometheus.yml"},
		UIDGID:        UIDGIDSource{StatPath: "/etc/prometheus"},
	},
	model.KindAlertmanager: {
		Kind: model.KindAlertmanager, DefaultImage: DefaultAlertmanagerImage,
		DefaultPorts:   []int{9093, 9094},
		DefaultArgs:    []string{"--cluster.listen-address=:9094"},
		RequiredFiles:  []string{"alertmanager.yml"},
		ConfigJSONArgs: []string{"peers"},
		UIDGID:         UIDGIDSource{StatPath: "/etc/alertmanager"},
	},
	model.KindGrafana: {
		Kind: model.KindGrafana, DefaultImage: DefaultGrafanaImage,
		DefaultPorts: []int{3000},
		RequiredFiles: []string{
			"grafana.ini",
			"provisioning/datasources/ceph-dashboard.yml",
			"certs/cert_file",
			"certs/cert_key",
		},
		UIDGID: UIDGIDSource{StatPath: "/var/lib/grafana"},
	},
	model.KindNodeExporter: {
		Kind: model.KindNodeExporter, DefaultImage: DefaultNodeExporterImage,
		DefaultPorts: []int{9100},
		DefaultArgs:  []string{"--no-collector.timex"},
		UIDGID:       UIDGIDSource{Fixed: true, UID: 65534, GID: 65534},
	},
	model.KindNFS: {
		Kind: model.KindNFS, Entrypoint: "/usr/bin/ganesha.nfsd",
		DefaultPorts:  []int{2049},
		RequiredFiles: []string{"ganesha.conf"},
		UIDGID:        cephUIDGID,
	},
	model.KindISCSI: {
		Kind: model.KindISCSI, Entrypoint: "/usr/bin/rbd-target-api",
		Privileged:    true,
		RequiredFiles: []string{"iscsi-gateway.cfg"},
		UIDGID:        cephUIDGID,
	},
	model.KindHAProxy: {
		Kind: model.KindHAProxy, DefaultImage: DefaultHAProxyImage,
		RequiredFiles: []string{"haproxy.cfg"},
		SysctlLines: []string{
			"# IP forwarding",
			"net.ipv4.ip_forward = 1",
		},
		UIDGID: UIDGIDSource{StatPath: "/var/lib"},
	},
	model.KindKeepalived: {
		Kind: model.KindKeepalived, DefaultImage: DefaultKeepalivedImage,
		RequiredFiles: []string{"keepalived.conf"},
		SysctlLines: []string{
			"# IP forwarding and non-local bind",
			"net.ipv4.ip_forward = 1",
			"net.ipv4.ip_nonlocal_bind = 1",
		},
		UIDGID: UIDGIDSource{StatPath: "/var/lib"},
	},
	model.KindContainer: {
		Kind:   model.KindContainer,
		UIDGID: UIDGIDSource{Fixed: true, UID: 65534, GID: 65534},
	},
	model.KindCephadmExporter: {
		Kind:          model.KindCephadmExporter,
		DefaultPorts:  []int{9443},
		RequiredFiles: []string{"crt", "key", "token"},
		UIDGID:        UIDGIDSource{Fixed: true, UID: 0, GID: 0},
	},
}

// Lookup returns the table for kind and whether it is a known kind.
func Lookup(kind model.Kind) (Table, bool) {
	t, ok := tables[kind]
	return t, ok
}

// Kinds returns every known kind, useful for CLI validation messages.
func Kinds() []model.Kind {
	out := make([]model.Kind, 0, len(tables))
	for k := range tables {
		out = append(out, k)
	}
	return out
}

// coreCephDaemons is the set of storage-plane kinds that do not need a
// systemctl restart on reconfig, since the daemon itself picks up
// config changes.
var coreCephDaemons = map[model.Kind]bool{
	model.KindMon: true, model.KindMgr: true, model.KindMds: true,
	model.KindOSD: true, model.KindRGW: true,
	model.KindRBDMirror: true, model.KindCephFSMirror: true, model.KindCrash: true,
}

// IsStoragePlane reports whether kind is one of the core storage
// daemons (as opposed to monitoring, gateway, or extension kinds).
func IsStoragePlane(kind model.Kind) bool {
	switch kind {
	case model.KindMon, model.KindMgr, model.KindMds, model.KindOSD,
		model.KindRGW, model.KindRBDMirror, model.KindCephFSMirror, model.KindCrash:
		return true
	}
	return false
}

// NeedsRestartOnReconfig reports whether kind must be systemctl
// restarted after a reconfigure (monitoring-stack and gateway daemons
// do; the core Ceph daemons reload their config in place).
func NeedsRestartOnReconfig(kind model.Kind) bool {
	return !coreCephDaemons[kind]
}

// preciousKinds hold data that is moved aside rather than deleted on a
// default rm-daemon.
var preciousKinds = map[model.Kind]bool{
	model.KindMon:        true,
	model.KindOSD:        true,
	model.KindPrometheus: true,
}

// IsPrecious reports whether kind's data directory is preserved under
// removed/ unless the operator forces deletion.
func IsPrecious(kind model.Kind) bool {
	return preciousKinds[kind]
}
