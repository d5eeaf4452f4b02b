package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/configjson"
	"github.com/cephadm/cephadm/internal/daemonspec"
	"github.com/cephadm/cephadm/internal/deploy"
	"github.com/cephadm/cephadm/internal/exporter"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/mounts"
	"github.com/cephadm/cephadm/internal/security"
)

var deployFlags struct {
	fsid          string
	name          string
	configJSON    string
	configFile    string
	keyringFile   string
	osdFsid       string
	tcpPorts      []int
	memoryRequest string
	memoryLimit   string
	reconfig      bool
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "deploy a daemon on the local host",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := splitDaemonName(deployFlags.name)
		if err != nil {
			return err
		}
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, deployFlags.fsid, "", true)
		if err != nil {
			return err
		}
		unlock, err := a.lockCluster(fsid)
		if err != nil {
			return err
		}
		defer unlock()

		var payloadBytes []byte
		if deployFlags.configJSON != "" {
			payloadBytes, err = os.ReadFile(deployFlags.configJSON)
			if err != nil {
				return agenterr.Wrap(agenterr.KindUsage, "deploy", deployFlags.configJSON, err)
			}
		}
		payload, err := configjson.Parse(kind, payloadBytes)
		if err != nil {
			return err
		}

		table, ok := daemonspec.Lookup(kind)
		if !ok {
			return agenterr.New(agenterr.KindUsage, "deploy", "unsupported daemon type "+string(kind))
		}

		image := a.cfg.Image.Ref
		if table.DefaultImage != "" && flags.image == "" && os.Getenv(imageEnvVar) == "" {
			image = table.DefaultImage
		}

		identity := model.Identity{FSID: fsid, Kind: kind, ID: id}
		req, err := buildDeployRequest(ctx, a, identity, image, table, payload)
		if err != nil {
			return err
		}
		req.Reconfigure = deployFlags.reconfig
		if err := a.engine.Deploy(ctx, req); err != nil {
			return err
		}
		baseLog.Info().Str("daemon", identity.Name()).Msg("deployed")
		return nil
	},
}

// buildDeployRequest assembles the deploy request for one daemon from
// its table, the config-json payload, and the CLI flags.
func buildDeployRequest(ctx context.Context, a *agent, identity model.Identity, image string, table daemonspec.Table, payload *configjson.Payload) (req deploy.Request, err error) {
	uid, gid := table.UIDGID.UID, table.UIDGID.GID
	if !table.UIDGID.Fixed {
		uid, gid, err = security.ExtractUIDGID(ctx, a.rt, a.run, image, []string{table.UIDGID.StatPath})
		if err != nil {
			return req, err
		}
	}

	ports := deployFlags.tcpPorts
	if len(ports) == 0 {
		if p, ok := payload.StringsField("ports"); ok {
			ports = parsePorts(p)
		}
	}
	if len(ports) == 0 {
		ports = table.DefaultPorts
	}

	daemonArgs := append([]string{}, table.DefaultArgs...)
	for _, key := range table.ConfigJSONArgs {
		if vals, ok := payload.StringsField(key); ok {
			for _, v := range vals {
				daemonArgs = append(daemonArgs, "--cluster.peer="+v)
			}
		}
	}

	memRequest, ok, err := payload.MemoryField("memory_request")
	if err != nil {
		return req, err
	}
	if !ok && deployFlags.memoryRequest != "" {
		if memRequest, err = units.RAMInBytes(deployFlags.memoryRequest); err != nil {
			return req, agenterr.Wrap(agenterr.KindUsage, "deploy", "--memory-request", err)
		}
	}
	memLimit, ok, err := payload.MemoryField("memory_limit")
	if err != nil {
		return req, err
	}
	if !ok && deployFlags.memoryLimit != "" {
		if memLimit, err = units.RAMInBytes(deployFlags.memoryLimit); err != nil {
			return req, agenterr.Wrap(agenterr.KindUsage, "deploy", "--memory-limit", err)
		}
	}

	if identity.Kind == model.KindCephadmExporter {
		port := 0
		if len(ports) > 0 {
			port = ports[0]
		}
		if err := exporter.ValidateConfig(payload.Files, port); err != nil {
			return req, err
		}
	}

	config := deployFlags.configFile
	keyring := deployFlags.keyringFile
	var configBytes, keyringBytes []byte
	if payload.Config != "" {
		configBytes = []byte(payload.Config)
	} else if config != "" {
		if configBytes, err = os.ReadFile(config); err != nil {
			return req, agenterr.Wrap(agenterr.KindUsage, "deploy", config, err)
		}
	}
	if payload.Keyring != "" {
		keyringBytes = []byte(payload.Keyring)
	} else if keyring != "" {
		if keyringBytes, err = os.ReadFile(keyring); err != nil {
			return req, agenterr.Wrap(agenterr.KindUsage, "deploy", keyring, err)
		}
	}

	return deploy.Request{
		Identity:      identity,
		Image:         image,
		Config:        configBytes,
		Keyring:       keyringBytes,
		Files:         payload.Files,
		Mounts:        mounts.ForDaemon(a.cfg.Paths, identity),
		Args:          daemonArgs,
		Ports:         ports,
		UID:           uid,
		GID:           gid,
		OSDFsid:       deployFlags.osdFsid,
		MemoryRequest: memRequest,
		MemoryLimit:   memLimit,
	}, nil
}

func parsePorts(vals []string) []int {
	var out []int
	for _, v := range vals {
		var n int
		for _, c := range v {
			if c < '0' || c > '9' {
				n = -1
				break
			}
			n = n*10 + int(c-'0')
		}
		if n > 0 {
			out = append(out, n)
		}
	}
	return out
}

var rmDaemonFlags struct {
	fsid            string
	name            string
	force           bool
	forceDeleteData bool
}

var rmDaemonCmd = &cobra.Command{
	Use:   "rm-daemon",
	Short: "remove a daemon instance from this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, err := splitDaemonName(rmDaemonFlags.name)
		if err != nil {
			return err
		}
		if (kind == model.KindMon || kind == model.KindOSD) && !rmDaemonFlags.force {
			return agenterr.New(agenterr.KindUsage, "rm-daemon",
				"must pass --force to proceed: this command may destroy precious data!")
		}
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, rmDaemonFlags.fsid, rmDaemonFlags.name, true)
		if err != nil {
			return err
		}
		unlock, err := a.lockCluster(fsid)
		if err != nil {
			return err
		}
		defer unlock()

		return a.engine.Remove(ctx, model.Identity{FSID: fsid, Kind: kind, ID: id}, rmDaemonFlags.forceDeleteData)
	},
}

var rmClusterFlags struct {
	fsid     string
	force    bool
	zapOSDs  bool
	keepLogs bool
}

var rmClusterCmd = &cobra.Command{
	Use:   "rm-cluster",
	Short: "remove all daemons for a cluster from this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !rmClusterFlags.force {
			return agenterr.New(agenterr.KindUsage, "rm-cluster",
				"must pass --force to proceed: this command may destroy precious data!")
		}
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, rmClusterFlags.fsid, "", true)
		if err != nil {
			return err
		}
		unlock, err := a.lockCluster(fsid)
		if err != nil {
			return err
		}
		defer unlock()

		return a.engine.RemoveCluster(ctx, fsid, rmClusterFlags.zapOSDs, rmClusterFlags.keepLogs)
	},
}

var zapOSDsFlags struct {
	fsid  string
	force bool
}

var zapOSDsCmd = &cobra.Command{
	Use:   "zap-osds",
	Short: "zap all OSD devices for the specified cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !zapOSDsFlags.force {
			return agenterr.New(agenterr.KindUsage, "zap-osds",
				"must pass --force to proceed: this command may destroy precious data!")
		}
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()

		ctx := cmd.Context()
		fsid, err := a.resolveFSID(ctx, zapOSDsFlags.fsid, "", true)
		if err != nil {
			return err
		}
		unlock, err := a.lockCluster(fsid)
		if err != nil {
			return err
		}
		defer unlock()

		return a.engine.ZapOSDs(ctx, fsid, a.cfg.Image.Ref)
	},
}

var registryLoginFlags struct {
	url      string
	username string
	password string
	jsonFile string
}

var registryLoginCmd = &cobra.Command{
	Use:   "registry-login",
	Short: "log the host's container engine into a custom registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, user, pass := registryLoginFlags.url, registryLoginFlags.username, registryLoginFlags.password
		if registryLoginFlags.jsonFile != "" {
			b, err := os.ReadFile(registryLoginFlags.jsonFile)
			if err != nil {
				return agenterr.Wrap(agenterr.KindUsage, "registry-login", registryLoginFlags.jsonFile, err)
			}
			url, user, pass, err = parseRegistryJSON(b)
			if err != nil {
				return err
			}
		}
		if url == "" || user == "" || pass == "" {
			return agenterr.New(agenterr.KindUsage, "registry-login",
				"registry-url, registry-username, and registry-password are all required")
		}
		a, err := newAgent(true)
		if err != nil {
			return err
		}
		defer a.init.Close()
		return a.registryLogin(cmd.Context(), url, user, pass)
	},
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.fsid, "fsid", "", "cluster FSID")
	f.StringVar(&deployFlags.name, "name", "", "daemon name (type.id)")
	f.StringVar(&deployFlags.configJSON, "config-json", "", "JSON file with config and (optionally) keyring and required files")
	f.StringVar(&deployFlags.configFile, "config", "", "config file for the daemon")
	f.StringVar(&deployFlags.keyringFile, "keyring", "", "keyring for the daemon")
	f.StringVar(&deployFlags.osdFsid, "osd-fsid", "", "OSD uuid, if creating an OSD container")
	f.IntSliceVar(&deployFlags.tcpPorts, "tcp-ports", nil, "List of tcp ports to open in the host firewall")
	f.StringVar(&deployFlags.memoryRequest, "memory-request", "", "requested memory for the daemon")
	f.StringVar(&deployFlags.memoryLimit, "memory-limit", "", "memory limit for the daemon")
	f.BoolVar(&deployFlags.reconfig, "reconfig", false, "reconfigure a previously deployed daemon")
	deployCmd.MarkFlagRequired("name")

	rf := rmDaemonCmd.Flags()
	rf.StringVar(&rmDaemonFlags.fsid, "fsid", "", "cluster FSID")
	rf.StringVar(&rmDaemonFlags.name, "name", "", "daemon name (type.id)")
	rf.BoolVar(&rmDaemonFlags.force, "force", false, "proceed even though this may destroy valuable data")
	rf.BoolVar(&rmDaemonFlags.forceDeleteData, "force-delete-data", false, "delete valuable daemon data instead of preserving it")
	rmDaemonCmd.MarkFlagRequired("name")

	cf := rmClusterCmd.Flags()
	cf.StringVar(&rmClusterFlags.fsid, "fsid", "", "cluster FSID")
	cf.BoolVar(&rmClusterFlags.force, "force", false, "proceed even though this may destroy valuable data")
	cf.BoolVar(&rmClusterFlags.zapOSDs, "zap-osds", false, "zap OSD devices for this cluster")
	cf.BoolVar(&rmClusterFlags.keepLogs, "keep-logs", false, "do not remove the cluster's log directory")

	zf := zapOSDsCmd.Flags()
	zf.StringVar(&zapOSDsFlags.fsid, "fsid", "", "cluster FSID")
	zf.BoolVar(&zapOSDsFlags.force, "force", false, "proceed even though this may destroy valuable data")

	lf := registryLoginCmd.Flags()
	lf.StringVar(&registryLoginFlags.url, "registry-url", "", "custom registry url")
	lf.StringVar(&registryLoginFlags.username, "registry-username", "", "username for custom registry")
	lf.StringVar(&registryLoginFlags.password, "registry-password", "", "password for custom registry")
	lf.StringVar(&registryLoginFlags.jsonFile, "registry-json", "", "JSON file containing url, username, and password")
}

func parseRegistryJSON(b []byte) (url, user, pass string, err error) {
	var doc struct {
		URL      string `json:"url"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", "", "", agenterr.Wrap(agenterr.KindUsage, "registry-login", "registry-json", err)
	}
	if doc.URL == "" || doc.Username == "" || doc.Password == "" {
		return "", "", "", agenterr.New(agenterr.KindUsage, "registry-login",
			"registry-json must contain url, username, and password; got "+strings.Join(missingRegistryKeys(doc.URL, doc.Username, doc.Password), ", "))
	}
	return doc.URL, doc.Username, doc.Password, nil
}

func missingRegistryKeys(url, user, pass string) []string {
	var missing []string
	if url == "" {
		missing = append(missing, "url")
	}
	if user == "" {
		missing = append(missing, "username")
	}
	if pass == "" {
		missing = append(missing, "password")
	}
	return missing
}
