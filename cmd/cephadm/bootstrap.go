package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cephadm/cephadm/internal/bootstrap"
	"github.com/cephadm/cephadm/internal/model"
)

var bootstrapFlags struct {
	fsid                   string
	monIP                  string
	monAddrv               string
	monID                  string
	mgrID                  string
	clusterNetwork         string
	outputDir              string
	applySpec              string
	registryURL            string
	registryUsername       string
	registryPassword       string
	allowMismatchedRelease bool
	allowOverwrite         bool
	allowFQDNHostname      bool
	skipPull               bool
	skipMonNetwork         bool
	skipDashboard          bool
	skipSSH                bool
	skipFirewalld          bool
	withExporter           bool
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "bootstrap a cluster's first monitor and manager on this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()
		if bootstrapFlags.skipFirewalld {
			a.fw.Disable()
		}

		var applySpec []byte
		if bootstrapFlags.applySpec != "" {
			applySpec, err = os.ReadFile(bootstrapFlags.applySpec)
			if err != nil {
				return err
			}
		}

		b := bootstrap.New(a.run, a.rt, a.engine, a.layout, a.cfg, baseLog)
		res, err := b.Run(cmd.Context(), bootstrap.Options{
			FSID:                   model.FSID(bootstrapFlags.fsid),
			MonIP:                  bootstrapFlags.monIP,
			MonAddrv:               bootstrapFlags.monAddrv,
			MonID:                  bootstrapFlags.monID,
			MgrID:                  bootstrapFlags.mgrID,
			ClusterNetwork:         bootstrapFlags.clusterNetwork,
			Image:                  a.cfg.Image.Ref,
			AllowMismatchedRelease: bootstrapFlags.allowMismatchedRelease,
			AllowOverwrite:         bootstrapFlags.allowOverwrite,
			AllowFQDNHostname:      bootstrapFlags.allowFQDNHostname,
			SkipPull:               bootstrapFlags.skipPull,
			SkipMonNetwork:         bootstrapFlags.skipMonNetwork,
			SkipDashboard:          bootstrapFlags.skipDashboard,
			SkipSSH:                bootstrapFlags.skipSSH,
			SkipFirewalld:          bootstrapFlags.skipFirewalld,
			WithExporter:           bootstrapFlags.withExporter,
			OutputDir:              bootstrapFlags.outputDir,
			ApplySpecYAML:          applySpec,
			RegistryURL:            bootstrapFlags.registryURL,
			RegistryUsername:       bootstrapFlags.registryUsername,
			RegistryPassword:       bootstrapFlags.registryPassword,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Cluster fsid: %s\n", res.FSID)
		if res.DashboardUser != "" {
			fmt.Printf("Dashboard user: %s password: %s\n", res.DashboardUser, res.DashboardPass)
		}
		fmt.Println("Bootstrap complete.")
		return nil
	},
}

func init() {
	f := bootstrapCmd.Flags()
	f.StringVar(&bootstrapFlags.fsid, "fsid", "", "cluster FSID (generated when omitted)")
	f.StringVar(&bootstrapFlags.monIP, "mon-ip", "", "mon IP")
	f.StringVar(&bootstrapFlags.monAddrv, "mon-addrv", "", "mon IPs, e.g. [v2:localipaddr:3300,v1:localipaddr:6789]")
	f.StringVar(&bootstrapFlags.monID, "mon-id", "", "mon id (default: local hostname)")
	f.StringVar(&bootstrapFlags.mgrID, "mgr-id", "", "mgr id (default: local hostname)")
	f.StringVar(&bootstrapFlags.clusterNetwork, "cluster-network", "", "subnet to use for cluster replication, recovery and heartbeats")
	f.StringVar(&bootstrapFlags.outputDir, "output-dir", "/etc/ceph", "directory to write config, keyring, and pub key files")
	f.StringVar(&bootstrapFlags.applySpec, "apply-spec", "", "apply cluster spec after bootstrap (yaml file)")
	f.StringVar(&bootstrapFlags.registryURL, "registry-url", "", "custom registry url")
	f.StringVar(&bootstrapFlags.registryUsername, "registry-username", "", "username for custom registry")
	f.StringVar(&bootstrapFlags.registryPassword, "registry-password", "", "password for custom registry")
	f.BoolVar(&bootstrapFlags.allowMismatchedRelease, "allow-mismatched-release", false, "allow a release mismatch between cephadm and the container image")
	f.BoolVar(&bootstrapFlags.allowOverwrite, "allow-overwrite", false, "allow overwrite of existing output-dir config files")
	f.BoolVar(&bootstrapFlags.allowFQDNHostname, "allow-fqdn-hostname", false, "allow hostname that is a fully-qualified domain name")
	f.BoolVar(&bootstrapFlags.skipPull, "skip-pull", false, "do not pull the image before bootstrapping")
	f.BoolVar(&bootstrapFlags.skipMonNetwork, "skip-mon-network", false, "do not check that the mon IP is configured on a local interface")
	f.BoolVar(&bootstrapFlags.skipDashboard, "skip-dashboard", false, "do not enable the dashboard")
	f.BoolVar(&bootstrapFlags.skipSSH, "skip-ssh", false, "skip setup of the ssh key on the local host")
	f.BoolVar(&bootstrapFlags.skipFirewalld, "skip-firewalld", false, "do not configure firewalld")
	f.BoolVar(&bootstrapFlags.withExporter, "with-exporter", false, "deploy the local metadata exporter after bootstrap")
}
