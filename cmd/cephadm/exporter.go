package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/exporter"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

var exporterFlags struct {
	fsid string
	id   string
	port int
}

// exporterCmd runs the long-lived metadata exporter; the generated
// unit.run for a cephadm-exporter daemon invokes this binary with this
// sub-command.
var exporterCmd = &cobra.Command{
	Use:   "exporter",
	Short: "run the local metadata exporter daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, exporterFlags.fsid, "", true)
		if err != nil {
			return err
		}
		id := exporterFlags.id
		if id == "" {
			return agenterr.New(agenterr.KindUsage, "exporter", "--id is required")
		}

		identity := model.Identity{FSID: fsid, Kind: model.KindCephadmExporter, ID: id}
		d := exporter.New(identity, a.layout.DaemonDataDir(identity), exporterFlags.port, exporter.Producers{
			Host:    exporter.GatherHostFacts,
			Daemons: func(ctx context.Context) (any, error) { return a.inv.List(ctx, true) },
			Disks:   diskProducer(a),
		}, baseLog)
		return d.Run(ctx)
	},
}

// diskProducer scrapes the host's disk inventory through a one-off
// ceph-volume container.
func diskProducer(a *agent) exporter.Producer {
	mounts := []model.Mount{
		{Source: "/dev", Destination: "/dev"},
		{Source: "/run/udev", Destination: "/run/udev"},
		{Source: "/sys", Destination: "/sys"},
		{Source: "/run/lvm", Destination: "/run/lvm"},
		{Source: "/run/lock/lvm", Destination: "/run/lock/lvm"},
	}
	return func(ctx context.Context) (any, error) {
		argv := a.rt.BuildShellArgv(a.cfg.Image.Ref, "/usr/sbin/ceph-volume", mounts, nil,
			[]string{"inventory", "--format", "json"})
		// drop the -it: scrapes have no terminal
		argv = removeArg(argv, "-it")
		res, err := a.run.Run(ctx, runner.Debug, 0, "ceph-volume inventory", nil, argv...)
		if err != nil {
			return nil, err
		}
		return rawJSON(res.Stdout)
	}
}

func rawJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func removeArg(argv []string, drop string) []string {
	out := argv[:0]
	for _, v := range argv {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}

func init() {
	f := exporterCmd.Flags()
	f.StringVar(&exporterFlags.fsid, "fsid", "", "cluster FSID")
	f.StringVar(&exporterFlags.id, "id", "", "daemon id for the exporter")
	f.IntVar(&exporterFlags.port, "port", exporter.DefaultPort, "port number for the exporter to listen on")
}
