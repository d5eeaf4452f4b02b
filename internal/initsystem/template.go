package initsystem

import "text/template"

// unitTemplate mirrors the per-cluster templated service: one unit file
// per FSID, with the "%i" instance selecting the daemon. ExecStart runs
// the daemon's unit.run script so a hand-edited script survives a
// daemon-reload.
var unitTemplate = template.Must(template.New("unit").Parse(
	`# generated by cephadm
[Unit]
Description=Ceph %i for {{.FSID}}

# According to:
#   http://www.freedesktop.org/wiki/Software/systemd/NetworkTarget
# these can be removed once ceph-mon will dynamically change network
# configuration.
After=network-online.target local-fs.target time-sync.target{{.DockerAfter}}
Wants=network-online.target local-fs.target time-sync.target
{{.DockerRequires}}
PartOf=ceph-{{.FSID}}.target
Before=ceph-{{.FSID}}.target

[Service]
LimitNOFILE=1048576
LimitNPROC=1048576
EnvironmentFile=-/etc/environment
ExecStart=/bin/bash {{.DataDir}}/{{.FSID}}/%i/unit.run
ExecStop=-{{.ContainerPath}} stop ceph-{{.FSID}}-%i
ExecStopPost=-/bin/bash {{.DataDir}}/{{.FSID}}/%i/unit.poststop
KillMode=none
Restart=on-failure
RestartSec=10s
TimeoutStartSec=120
TimeoutStopSec=120
StartLimitInterval=30min
StartLimitBurst=5
{{.ExtraArgs}}
[Install]
WantedBy=ceph-{{.FSID}}.target
`))

// exporterUnitTemplate is the one non-templated per-daemon unit: the
// exporter runs this binary directly rather than a container, so its
// unit is fully resolved at write time.
var exporterUnitTemplate = template.Must(template.New("exporter-unit").Parse(
	`# generated by cephadm
[Unit]
Description=cephadm exporter service for cluster {{.FSID}}
After=network-online.target{{.DockerAfter}}
Wants=network-online.target
{{.DockerRequires}}
PartOf=ceph-{{.FSID}}.target
Before=ceph-{{.FSID}}.target

[Service]
Type=forking
ExecStart=/bin/bash {{.DataDir}}/{{.FSID}}/cephadm-exporter.{{.ID}}/unit.run
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=10s

[Install]
WantedBy=ceph-{{.FSID}}.target
`))

// clusterTargetTemplate renders the per-cluster aggregate target all
// of its daemon units declare themselves part of.
var clusterTargetTemplate = template.Must(template.New("cluster-target").Parse(
	`[Unit]
Description=Ceph cluster {{.FSID}}
PartOf=ceph.target
Before=ceph.target

[Install]
WantedBy=multi-user.target ceph.target
`))

const globalTargetUnit = `[Unit]
Description=All Ceph clusters and services

[Install]
WantedBy=multi-user.target
`

// logrotateTemplate renders the per-cluster logrotate drop-in, sending
// SIGHUP to every daemon process name it knows about.
var logrotateTemplate = template.Must(template.New("logrotate").Parse(
	`# created by cephadm
{{.LogDir}}/{{.FSID}}/*.log {
	rotate 7
	daily
	compress
	sharedscripts
	postrotate
		killall -q -1 ceph-mon ceph-mgr ceph-mds ceph-osd ceph-fuse radosgw rbd-mirror cephfs-mirror || pkill -1 -x 'ceph-mon|ceph-mgr|ceph-mds|ceph-osd|ceph-fuse|radosgw|rbd-mirror|cephfs-mirror' || true
	endscript
	missingok
	notifempty
	su root root
}
`))
