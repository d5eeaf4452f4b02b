// Command cephadm is the node-local cluster agent: one binary per
// host, invoked by the orchestrator with a sub-command, that
// bootstraps, deploys, reconfigures, inspects, and dismantles
// containerized storage daemons and runs the local metadata exporter.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// DefaultImage is the cluster image used when neither --image nor
// CEPHADM_IMAGE selects one.
const DefaultImage = "quay.ceph.io/ceph-ci/ceph:master"

const imageEnvVar = "CEPHADM_IMAGE"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(agenterr.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "cephadm",
	Short: "cephadm - bootstrap and manage containerized Ceph daemons on this host",
	Long: `cephadm deploys and manages the containerized daemons of a Ceph
cluster on a single host: it bootstraps a new cluster's first monitor
and manager, materializes per-daemon state under the data directory,
drives systemd so daemons survive reboots, and runs a local metadata
exporter the orchestrator polls.

All state it mutates is local to this host or delegated to the cluster
through the ceph CLI.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flags struct {
	image           string
	docker          bool
	dataDir         string
	logDir          string
	logrotateDir    string
	sysctlDir       string
	unitDir         string
	timeoutSecs     int
	retries         int
	envs            []string
	noContainerInit bool
	verbose         bool
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"cephadm version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.image, "image", "", "container image (also via "+imageEnvVar+")")
	pf.BoolVar(&flags.docker, "docker", false, "use docker instead of podman")
	pf.StringVar(&flags.dataDir, "data-dir", "/var/lib/ceph", "base directory for daemon data")
	pf.StringVar(&flags.logDir, "log-dir", "/var/log/ceph", "base directory for daemon logs")
	pf.StringVar(&flags.logrotateDir, "logrotate-dir", "/etc/logrotate.d", "location of logrotate configuration files")
	pf.StringVar(&flags.sysctlDir, "sysctl-dir", "/etc/sysctl.d", "location of sysctl configuration files")
	pf.StringVar(&flags.unitDir, "unit-dir", "/etc/systemd/system", "base directory for systemd units")
	pf.IntVar(&flags.timeoutSecs, "timeout", 600, "timeout in seconds for external commands")
	pf.IntVar(&flags.retries, "retry", 15, "max number of retries for wait loops")
	pf.StringSliceVar(&flags.envs, "env", nil, "set environment variables inside containers")
	pf.BoolVar(&flags.noContainerInit, "no-container-init", false, "do not run containers with --init")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "show debug-level log output")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmDaemonCmd)
	rootCmd.AddCommand(rmClusterCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(enterCmd)
	rootCmd.AddCommand(unitCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(cephVolumeCmd)
	rootCmd.AddCommand(zapOSDsCmd)
	rootCmd.AddCommand(registryLoginCmd)
	rootCmd.AddCommand(exporterCmd)
	rootCmd.AddCommand(hostMaintenanceCmd)
}

var baseLog zerolog.Logger

func initLogging() {
	level := log.InfoLevel
	if flags.verbose {
		level = log.DebugLevel
	}
	baseLog = log.Init(log.Config{Level: level})
}

// buildContext resolves persistent flags plus environment into the
// configuration struct threaded through every component. The image is
// resolved first (flag, then environment, then default) so the config
// and fsid inference pre-steps that follow can rely on it.
func buildContext() *agentcfg.Context {
	paths := agentcfg.Paths{
		DataDir:      flags.dataDir,
		LogDir:       flags.logDir,
		UnitDir:      flags.unitDir,
		SysctlDir:    flags.sysctlDir,
		LogrotateDir: flags.logrotateDir,
		LockDir:      "/run/cephadm",
	}
	engine := agentcfg.EnginePodman
	if flags.docker {
		engine = agentcfg.EngineDocker
	}
	image := flags.image
	if image == "" {
		image = os.Getenv(imageEnvVar)
	}
	if image == "" {
		image = DefaultImage
	}
	timeouts := agentcfg.DefaultTimeouts()
	return &agentcfg.Context{
		Paths:    paths,
		Engine:   engine,
		Image:    agentcfg.Image{Ref: image},
		Timeouts: timeouts,
		Verbose:  flags.verbose,
	}
}
