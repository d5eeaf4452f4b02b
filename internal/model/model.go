// Package model holds the plain data types shared across every
// component: cluster and daemon identity, and the structured
// description of a single container invocation.
package model

import (
	"fmt"

	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// FSID is a cluster's canonical lowercase-UUID identifier.
type FSID string

// NewFSID generates a fresh random FSID.
func NewFSID() FSID {
	return FSID(uuid.New().String())
}

// Valid reports whether f parses as a UUID.
func (f FSID) Valid() bool {
	_, err := uuid.Parse(string(f))
	return err == nil
}

func (f FSID) String() string { return string(f) }

// Kind enumerates every daemon kind this agent knows how to deploy.
type Kind string

const (
	KindMon             Kind = "mon"
	KindMgr             Kind = "mgr"
	KindMds             Kind = "mds"
	KindOSD             Kind = "osd"
	KindRGW             Kind = "rgw"
	KindRBDMirror       Kind = "rbd-mirror"
	KindCephFSMirror    Kind = "cephfs-mirror"
	KindCrash           Kind = "crash"
	KindPrometheus      Kind = "prometheus"
	KindAlertmanager    Kind = "alertmanager"
	KindGrafana         Kind = "grafana"
	KindNodeExporter    Kind = "node-exporter"
	KindNFS             Kind = "nfs"
	KindISCSI           Kind = "iscsi"
	KindHAProxy         Kind = "haproxy"
	KindKeepalived      Kind = "keepalived"
	KindContainer       Kind = "container"
	KindCephadmExporter Kind = "cephadm-exporter"
)

// monitoringStackKinds identifies daemons belonging to the monitoring
// stack.
var monitoringStackKinds = map[Kind]bool{
	KindPrometheus:   true,
	KindAlertmanager: true,
	KindGrafana:      true,
	KindNodeExporter: true,
}

// IsMonitoringStack reports whether k is one of the monitoring-stack kinds.
func (k Kind) IsMonitoringStack() bool { return monitoringStackKinds[k] }

// Identity names one daemon within one cluster.
type Identity struct {
	FSID FSID
	Kind Kind
	ID   string
}

// Name returns the conventional "<kind>.<id>" daemon name.
func (i Identity) Name() string {
	return fmt.Sprintf("%s.%s", i.Kind, i.ID)
}

// UnitName returns the systemd unit name for this daemon, scoped by
// FSID so that units for distinct clusters never collide. Every kind
// except the exporter is an instance of the per-cluster template unit;
// the exporter runs this binary rather than a container and gets a
// fully resolved unit of its own.
func (i Identity) UnitName() string {
	if i.Kind == KindCephadmExporter {
		return fmt.Sprintf("ceph-%s-%s.%s.service", i.FSID, i.Kind, i.ID)
	}
	return fmt.Sprintf("ceph-%s@%s.%s.service", i.FSID, i.Kind, i.ID)
}

// TemplateUnitName returns the per-cluster template unit file name that
// every non-exporter daemon instantiates.
func TemplateUnitName(fsid FSID) string {
	return fmt.Sprintf("ceph-%s@.service", fsid)
}

// ClusterTargetName returns the per-cluster aggregate target name.
func ClusterTargetName(fsid FSID) string {
	return fmt.Sprintf("ceph-%s.target", fsid)
}

// Mount is a bind or named-volume mount attached to a daemon container.
// Reusing specs.Mount keeps the same structured type flowing from
// DaemonSpec through ContainerRuntime's argv builder and into the JSON
// encoding persisted in unit.meta.
type Mount = specs.Mount

// ContainerSpec fully describes one container invocation: the image,
// entrypoint, arguments, environment, and mounts needed to run, exec
// into, or inspect a daemon's container.
type ContainerSpec struct {
	Identity    Identity
	Image       string
	Entrypoint  string
	Args        []string
	Envs        []string
	Mounts      []Mount
	NetworkMode string // "host" for most Ceph daemons
	Privileged  bool
	Ptrace      bool
	Init        bool
	Detach      bool
	CPUShares   int64
	MemoryBytes int64
	ExtraArgs   []string // engine-specific flags (e.g. --conmon-pidfile)
}
