package main

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/inventory"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

var lsFlags struct {
	noDetail bool
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "list daemon instances on this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent(false)
		if err != nil {
			return err
		}
		defer a.init.Close()

		daemons, err := a.inv.List(cmd.Context(), !lsFlags.noDetail)
		if err != nil {
			return err
		}
		if daemons == nil {
			daemons = []inventory.Daemon{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "    ")
		return enc.Encode(daemons)
	},
}

var unitFlags struct {
	fsid string
	name string
}

var unitCmd = &cobra.Command{
	Use:       "unit [start|stop|restart|enable|disable|is-enabled]",
	Short:     "operate on a daemon's systemd unit",
	ValidArgs: []string{"start", "stop", "restart", "enable", "disable", "is-enabled"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := splitDaemonName(unitFlags.name)
		if err != nil {
			return err
		}
		a, err := newAgent(false)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, unitFlags.fsid, unitFlags.name, true)
		if err != nil {
			return err
		}
		unit := model.Identity{FSID: fsid, Kind: kind, ID: id}.UnitName()

		switch args[0] {
		case "start":
			return a.init.StartUnit(ctx, unit)
		case "stop":
			return a.init.StopUnit(ctx, unit)
		case "restart":
			a.init.StopUnit(ctx, unit)
			a.init.ResetFailed(ctx, unit)
			return a.init.StartUnit(ctx, unit)
		case "enable":
			return a.init.EnableUnit(ctx, unit)
		case "disable":
			return a.init.DisableUnit(ctx, unit)
		case "is-enabled":
			enabled, _, err := a.init.CheckUnit(ctx, unit)
			if err != nil {
				return err
			}
			if enabled {
				cmd.Println("enabled")
				return nil
			}
			cmd.Println("disabled")
			return agenterr.New(agenterr.KindExternalCommand, "unit", unit+" is not enabled")
		}
		return agenterr.New(agenterr.KindUsage, "unit", "unknown unit command "+args[0])
	},
}

var logsFlags struct {
	fsid   string
	name   string
	follow bool
	lines  int
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "print journald logs for a daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := splitDaemonName(logsFlags.name)
		if err != nil {
			return err
		}
		a, err := newAgent(false)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, logsFlags.fsid, logsFlags.name, true)
		if err != nil {
			return err
		}
		unit := model.Identity{FSID: fsid, Kind: kind, ID: id}.UnitName()

		argv := []string{"journalctl", "--no-pager", "-u", unit}
		if logsFlags.lines > 0 {
			argv = append(argv, "-n", strconv.Itoa(logsFlags.lines))
		}
		if logsFlags.follow {
			argv = append(argv, "-f")
		}
		res, err := a.run.Run(ctx, runner.Silent, 24*time.Hour, "journalctl", nil, argv...)
		os.Stdout.WriteString(res.Stdout)
		return err
	},
}

var maintenanceFlags struct {
	fsid string
}

var hostMaintenanceCmd = &cobra.Command{
	Use:       "host-maintenance [enter|exit]",
	Short:     "stop or restart all cluster daemons on this host for planned downtime",
	ValidArgs: []string{"enter", "exit"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, maintenanceFlags.fsid, "", true)
		if err != nil {
			return err
		}
		unlock, err := a.lockCluster(fsid)
		if err != nil {
			return err
		}
		defer unlock()

		daemons, err := a.inv.List(ctx, false)
		if err != nil {
			return err
		}
		var ids []model.Identity
		for _, d := range daemons {
			if d.FSID != string(fsid) {
				continue
			}
			kind, id, err := splitDaemonName(d.Name)
			if err != nil {
				continue
			}
			ids = append(ids, model.Identity{FSID: fsid, Kind: kind, ID: id})
		}

		if args[0] == "enter" {
			return a.engine.Quiesce(ctx, ids)
		}
		return a.engine.Resume(ctx, ids)
	},
}

func init() {
	lsCmd.Flags().BoolVar(&lsFlags.noDetail, "no-detail", false, "skip unit state and metadata in the listing")

	uf := unitCmd.Flags()
	uf.StringVar(&unitFlags.fsid, "fsid", "", "cluster FSID")
	uf.StringVar(&unitFlags.name, "name", "", "daemon name (type.id)")
	unitCmd.MarkFlagRequired("name")

	lf := logsCmd.Flags()
	lf.StringVar(&logsFlags.fsid, "fsid", "", "cluster FSID")
	lf.StringVar(&logsFlags.name, "name", "", "daemon name (type.id)")
	lf.BoolVarP(&logsFlags.follow, "follow", "f", false, "follow the log")
	lf.IntVarP(&logsFlags.lines, "lines", "n", 0, "number of recent lines to show")
	logsCmd.MarkFlagRequired("name")

	hostMaintenanceCmd.Flags().StringVar(&maintenanceFlags.fsid, "fsid", "", "cluster FSID")
}
