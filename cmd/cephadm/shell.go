package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/shell"
)

var shellFlags struct {
	fsid    string
	name    string
	config  string
	keyring string
}

// shellMounts assembles the mount set for an interactive shell
// container: the cluster config/keyring (explicit, inferred from a
// local mon, or absent), logs, and a persistent home directory.
func shellMounts(a *agent, fsid model.FSID, config, keyring string) []model.Mount {
	var m []model.Mount
	if fsid != "" {
		m = append(m,
			model.Mount{Source: a.layout.ClusterLogDir(fsid), Destination: "/var/log/ceph", Options: []string{"z"}},
			model.Mount{Source: filepath.Join(a.layout.ClusterDataDir(fsid), "home"), Destination: "/root", Options: []string{"z"}},
		)
	}
	if config != "" {
		m = append(m, model.Mount{Source: config, Destination: "/etc/ceph/ceph.conf", Options: []string{"z"}})
	}
	if keyring != "" {
		m = append(m, model.Mount{Source: keyring, Destination: "/etc/ceph/ceph.keyring", Options: []string{"z"}})
	}
	return m
}

// resolveShellConfig applies the config inference pre-step: the
// explicit --config wins, then a local mon daemon's config, then the
// host's /etc/ceph/ceph.conf.
func resolveShellConfig(a *agent, cmd *cobra.Command, fsid model.FSID, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fsid != "" {
		if path, ok := a.inv.FindMonConfig(cmd.Context(), fsid); ok {
			return path
		}
	}
	return "/etc/ceph/ceph.conf"
}

var shellCmd = &cobra.Command{
	Use:   "shell [-- command...]",
	Short: "run an interactive shell inside a daemon container",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, shellFlags.fsid, shellFlags.name, false)
		if err != nil {
			return err
		}
		config := resolveShellConfig(a, cmd, fsid, shellFlags.config)
		mountSet := shellMounts(a, fsid, config, shellFlags.keyring)

		entrypoint := "bash"
		var cmdArgs []string
		if len(args) > 0 {
			entrypoint = args[0]
			cmdArgs = args[1:]
		}
		argv := a.rt.BuildShellArgv(a.cfg.Image.Ref, entrypoint, mountSet, flags.envs, cmdArgs)
		return shell.Interactive(ctx, baseLog, argv)
	},
}

var enterFlags struct {
	fsid string
	name string
}

var enterCmd = &cobra.Command{
	Use:   "enter [-- command...]",
	Short: "run an interactive shell inside a running daemon container",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := splitDaemonName(enterFlags.name)
		if err != nil {
			return err
		}
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, enterFlags.fsid, enterFlags.name, true)
		if err != nil {
			return err
		}
		command := []string{"bash"}
		if len(args) > 0 {
			command = args
		}
		argv := a.rt.BuildExecArgv(model.Identity{FSID: fsid, Kind: kind, ID: id}, command)
		// splice in -it after "exec" so the session is interactive
		argv = append(argv[:2], append([]string{"-it"}, argv[2:]...)...)
		return shell.Interactive(ctx, baseLog, argv)
	},
}

var cephVolumeFlags struct {
	fsid       string
	configFile string
	keyring    string
}

var cephVolumeCmd = &cobra.Command{
	Use:   "ceph-volume [-- ceph-volume args...]",
	Short: "run ceph-volume inside a privileged container",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, cephVolumeFlags.fsid, "", false)
		if err != nil {
			return err
		}
		mountSet := []model.Mount{
			{Source: "/dev", Destination: "/dev"},
			{Source: "/run/udev", Destination: "/run/udev"},
			{Source: "/sys", Destination: "/sys"},
			{Source: "/run/lvm", Destination: "/run/lvm"},
			{Source: "/run/lock/lvm", Destination: "/run/lock/lvm"},
		}
		if fsid != "" {
			mountSet = append(mountSet,
				model.Mount{Source: a.layout.ClusterDataDir(fsid), Destination: "/var/lib/ceph", Options: []string{"z"}},
				model.Mount{Source: a.layout.ClusterLogDir(fsid), Destination: "/var/log/ceph", Options: []string{"z"}},
			)
		}
		if cephVolumeFlags.configFile != "" {
			mountSet = append(mountSet, model.Mount{Source: cephVolumeFlags.configFile, Destination: "/etc/ceph/ceph.conf", Options: []string{"z"}})
		}
		if cephVolumeFlags.keyring != "" {
			mountSet = append(mountSet, model.Mount{Source: cephVolumeFlags.keyring, Destination: "/var/lib/ceph/bootstrap-osd/ceph.keyring", Options: []string{"z"}})
		}
		cvArgs := args
		if len(cvArgs) == 0 {
			cvArgs = []string{"inventory"}
		}
		argv := a.rt.BuildShellArgv(a.cfg.Image.Ref, "/usr/sbin/ceph-volume", mountSet, flags.envs, cvArgs)
		return shell.Interactive(ctx, baseLog, argv)
	},
}

var runFlags struct {
	fsid string
	name string
}

// runCmd runs a deployed daemon's generated unit.run script in the
// foreground, for debugging.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a daemon's container in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := splitDaemonName(runFlags.name)
		if err != nil {
			return err
		}
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, runFlags.fsid, runFlags.name, true)
		if err != nil {
			return err
		}
		identity := model.Identity{FSID: fsid, Kind: kind, ID: id}
		dataDir := a.layout.DaemonDataDir(identity)
		if _, err := os.Stat(dataDir); err != nil {
			return agenterr.New(agenterr.KindUsage, "run", "daemon "+identity.Name()+" is not deployed on this host")
		}
		return shell.Interactive(ctx, baseLog, []string{"/bin/bash", filepath.Join(dataDir, "unit.run")})
	},
}

func init() {
	sf := shellCmd.Flags()
	sf.StringVar(&shellFlags.fsid, "fsid", "", "cluster FSID")
	sf.StringVar(&shellFlags.name, "name", "", "daemon name (type.id)")
	sf.StringVar(&shellFlags.config, "config", "", "ceph.conf to pass through to the container")
	sf.StringVar(&shellFlags.keyring, "keyring", "", "ceph.keyring to pass through to the container")

	ef := enterCmd.Flags()
	ef.StringVar(&enterFlags.fsid, "fsid", "", "cluster FSID")
	ef.StringVar(&enterFlags.name, "name", "", "daemon name (type.id)")
	enterCmd.MarkFlagRequired("name")

	vf := cephVolumeCmd.Flags()
	vf.StringVar(&cephVolumeFlags.fsid, "fsid", "", "cluster FSID")
	vf.StringVar(&cephVolumeFlags.configFile, "config", "", "ceph conf file")
	vf.StringVar(&cephVolumeFlags.keyring, "keyring", "", "ceph.keyring to pass through to the container")

	rf := runCmd.Flags()
	rf.StringVar(&runFlags.fsid, "fsid", "", "cluster FSID")
	rf.StringVar(&runFlags.name, "name", "", "daemon name (type.id)")
	runCmd.MarkFlagRequired("name")
}
