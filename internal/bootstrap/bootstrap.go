// Package bootstrap implements the cold-start state machine that lays
// down a new cluster's first monitor and manager. The mon, mgr, and
// exporter daemons are deployed through the same deploy engine and
// cluster file lock every other sub-command uses; the one-off ceph CLI
// and key-generation containers are run directly through the runner,
// and the output files are written directly.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/cephadm/cephadm/internal/agentcfg"
	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/containerruntime"
	"github.com/cephadm/cephadm/internal/deploy"
	"github.com/cephadm/cephadm/internal/filelock"
	"github.com/cephadm/cephadm/internal/layout"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/monaddr"
	"github.com/cephadm/cephadm/internal/runner"
	"github.com/cephadm/cephadm/internal/security"
	"github.com/cephadm/cephadm/internal/wait"
)

// Options configures a bootstrap run; it is the Go analogue of the
// operator-facing --mon-ip/--fsid/--skip-* flags command_bootstrap reads
// off its CephadmContext.
type Options struct {
	FSID                   model.FSID
	MonIP                  string
	MonAddrv               string
	ClusterNetwork         string
	Hostname               string
	MonID                  string
	MgrID                  string
	Image                  string
	AllowMismatchedRelease bool
	AllowOverwrite         bool
	AllowFQDNHostname      bool
	SkipPull               bool
	SkipMonNetwork         bool
	SkipDashboard          bool
	SkipSSH                bool
	SkipFirewalld          bool
	WithExporter           bool
	OutputDir              string
	ApplySpecYAML          []byte
	RegistryURL            string
	RegistryUsername       string
	RegistryPassword       string
}

// Result is what a successful bootstrap hands back to the CLI.
type Result struct {
	FSID           model.FSID
	AdminKeyring   string
	MonID          string
	MgrID          string
	MonNetwork     string
	DashboardUser  string
	DashboardPass  string
}

// Bootstrapper drives the state machine.
type Bootstrapper struct {
	log    zerolog.Logger
	run    *runner.Runner
	rt     *containerruntime.Runtime
	engine *deploy.Engine
	layout *layout.Layout
	cfg    *agentcfg.Context
}

// New builds a Bootstrapper from its collaborators.
func New(run *runner.Runner, rt *containerruntime.Runtime, engine *deploy.Engine, lay *layout.Layout, cfg *agentcfg.Context, log zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{log: log.With().Str("component", "bootstrap").Logger(), run: run, rt: rt, engine: engine, layout: lay, cfg: cfg}
}

// Run executes the bootstrap state machine end to end.
//
// Steps, in order:
//  1. refuse to overwrite existing output files without opt-in
//  2. generate or accept FSID
//  3. resolve the hostname, rejecting an FQDN without opt-in
//  4. acquire the cluster FileLock
//  5. resolve mon address (monaddr.Prepare*) and, unless
//     SkipMonNetwork, check the mon IP is on a local interface
//  6. validate the cluster network CIDR if one is given
//  7. log in to the registry if credentials are supplied
//  8. pull the cluster image unless skipped
//  9. verify image release unless --allow-mismatched-release
//  10. extract uid/gid from the image
//  11. generate initial keys (mon, mgr, admin, bootstrap keyring)
//  12. render the initial ceph.conf
//  13. deploy the first mon (the deploy engine runs mkfs)
//  14. wait for the mon to come up
//  15. set cluster_network if one is given
//  16. deploy the first mgr
//  17. wait for the mgr to report available
//  18. assimilate the initial config and restart the mon
//  19. enable the orchestrator mgr module and set it as the backend
//  20. configure SSH (ssh sub-system prep) unless skipped
//  21. bring up the dashboard with a random admin password unless skipped
//  22. deploy the cephadm exporter daemon if requested
//  23. apply an optional user-supplied cluster spec
//  24. write the output files
func (b *Bootstrapper) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := verifyOutputFiles(opts); err != nil {
		return nil, err
	}
	if opts.FSID == "" {
		opts.FSID = model.NewFSID()
	}
	if !opts.FSID.Valid() {
		return nil, agenterr.New(agenterr.KindUsage, "bootstrap.Run", "invalid fsid "+string(opts.FSID))
	}
	hostname := opts.Hostname
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.Run", "hostname", err)
		}
		hostname = h
	}
	if strings.Contains(hostname, ".") && !opts.AllowFQDNHostname {
		return nil, agenterr.New(agenterr.KindUsage, "bootstrap.Run",
			fmt.Sprintf("hostname is a fully qualified domain name (%s); pass a short hostname or --allow-fqdn-hostname", hostname))
	}
	monID := opts.MonID
	if monID == "" {
		monID = hostname
	}
	mgrID := opts.MgrID
	if mgrID == "" {
		mgrID = generateServiceID()
	}
	b.log.Info().Str("fsid", string(opts.FSID)).Msg("cluster fsid")

	lock, err := filelock.New(b.cfg.Paths.LockDir, string(opts.FSID), b.log)
	if err != nil {
		return nil, err
	}
	if err := lock.Acquire(b.cfg.Timeouts.LockAcquire); err != nil {
		return nil, err
	}
	defer lock.Release(false)

	var prepared monaddr.Prepared
	if opts.MonAddrv != "" {
		prepared, err = monaddr.PrepareFromAddrv(opts.MonAddrv)
	} else if opts.MonIP != "" {
		prepared, err = monaddr.PrepareFromMonIP(opts.MonIP)
	} else {
		return nil, agenterr.New(agenterr.KindUsage, "bootstrap.Run", "must specify a mon IP or address vector")
	}
	if err != nil {
		return nil, err
	}
	if !opts.SkipMonNetwork {
		if err := verifyIPLocal(monaddr.UnwrapIPv6(prepared.BaseIP)); err != nil {
			return nil, err
		}
	}
	if opts.ClusterNetwork != "" {
		if _, _, err := net.ParseCIDR(opts.ClusterNetwork); err != nil {
			return nil, agenterr.New(agenterr.KindUsage, "bootstrap.Run",
				"--cluster-network is not a valid CIDR: "+opts.ClusterNetwork)
		}
	}

	image := opts.Image
	if image == "" {
		image = b.cfg.Image.Ref
	}
	if opts.RegistryURL != "" && opts.RegistryUsername != "" && opts.RegistryPassword != "" {
		b.log.Info().Str("registry", opts.RegistryURL).Msg("logging into custom registry")
		argv := b.rt.BuildLoginArgv(opts.RegistryURL, opts.RegistryUsername, opts.RegistryPassword)
		if _, err := b.run.RunInput(ctx, runner.VerboseOnFailure, 60*time.Second, "registry login", nil, opts.RegistryPassword, argv...); err != nil {
			return nil, agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.Run", "failed to login to custom registry "+opts.RegistryURL, err)
		}
	}
	if !opts.SkipPull {
		if err := b.pullImage(ctx, image); err != nil {
			return nil, err
		}
	}

	version, err := b.cephVersion(ctx, image)
	if err != nil {
		return nil, err
	}
	b.log.Info().Str("ceph_version", version).Msg("resolved ceph version")
	if err := b.checkRelease(ctx, image, opts.AllowMismatchedRelease); err != nil {
		return nil, err
	}

	uid, gid, err := security.ExtractUIDGID(ctx, b.rt, b.run, image, nil)
	if err != nil {
		return nil, err
	}

	b.log.Info().Msg("creating initial keys")
	monKey, err := b.genPrintKey(ctx, image)
	if err != nil {
		return nil, err
	}
	adminKey, err := b.genPrintKey(ctx, image)
	if err != nil {
		return nil, err
	}
	mgrKey, err := b.genPrintKey(ctx, image)
	if err != nil {
		return nil, err
	}
	keys := ComposeKeys(monKey, adminKey, mgrKey, mgrID)

	conf := renderInitialConfig(opts.FSID, prepared.AddrArg, image)

	monIdentity := model.Identity{FSID: opts.FSID, Kind: model.KindMon, ID: monID}
	if err := b.engine.Deploy(ctx, deploy.Request{
		Identity: monIdentity,
		Image:    image,
		Config:   []byte(conf),
		Keyring:  []byte(keys.BootstrapKeyring),
		UID:      uid, GID: gid,
	}); err != nil {
		return nil, err
	}

	if err := wait.Until(ctx, wait.Config{Interval: 2 * time.Second, Timeout: b.cfg.Timeouts.WaitForMon}, func(ctx context.Context) (bool, error) {
		return b.monIsUp(ctx, image, monIdentity, conf, keys.AdminKeyring)
	}); err != nil {
		return nil, err
	}

	if opts.ClusterNetwork != "" {
		if _, err := b.cli(ctx, image, conf, keys.AdminKeyring,
			[]string{"config", "set", "global", "cluster_network", opts.ClusterNetwork}); err != nil {
			return nil, err
		}
	}

	mgrIdentity := model.Identity{FSID: opts.FSID, Kind: model.KindMgr, ID: mgrID}
	if err := b.engine.Deploy(ctx, deploy.Request{
		Identity: mgrIdentity,
		Image:    image,
		Config:   []byte(conf),
		Keyring:  []byte(fmt.Sprintf("[mgr.%s]\n\tkey = %s\n", mgrID, keys.MgrKey)),
		UID:      uid, GID: gid,
		Ports: []int{9283},
	}); err != nil {
		return nil, err
	}

	if err := wait.Until(ctx, wait.Config{Interval: 2 * time.Second, Timeout: b.cfg.Timeouts.WaitForMgr}, func(ctx context.Context) (bool, error) {
		return b.mgrIsAvailable(ctx, image, conf, keys.AdminKeyring)
	}); err != nil {
		return nil, err
	}

	b.log.Info().Msg("assimilating and minimizing initial config")
	if _, err := b.cli(ctx, image, conf, keys.AdminKeyring, []string{"config", "assimilate-conf", "-i", "/etc/ceph/ceph.conf"}); err != nil {
		return nil, err
	}
	// restart the mon so it runs on the assimilated config
	if err := b.engine.Quiesce(ctx, []model.Identity{monIdentity}); err != nil {
		return nil, err
	}
	if err := b.engine.Resume(ctx, []model.Identity{monIdentity}); err != nil {
		return nil, err
	}

	b.log.Info().Msg("enabling cephadm orchestrator module")
	if err := b.enableMgrModule(ctx, image, conf, keys.AdminKeyring, "cephadm"); err != nil {
		return nil, err
	}
	if _, err := b.cli(ctx, image, conf, keys.AdminKeyring, []string{"orch", "set", "backend", "cephadm"}); err != nil {
		return nil, err
	}

	if !opts.SkipSSH {
		if err := b.prepareSSH(ctx, image, conf, keys.AdminKeyring, hostname, opts.OutputDir); err != nil {
			return nil, err
		}
	}

	var dashUser, dashPass string
	if !opts.SkipDashboard {
		dashUser = "admin"
		dashPass, err = security.GenerateRandomPassword(16)
		if err != nil {
			return nil, err
		}
		if err := b.prepareDashboard(ctx, image, conf, keys.AdminKeyring, dashUser, dashPass); err != nil {
			return nil, err
		}
	}

	if opts.WithExporter {
		exporterIdentity := model.Identity{FSID: opts.FSID, Kind: model.KindCephadmExporter, ID: hostname}
		if err := b.engine.Deploy(ctx, deploy.Request{
			Identity: exporterIdentity,
			Image:    image,
			UID:      uid, GID: gid,
			Ports: []int{9443},
		}); err != nil {
			return nil, err
		}
	}

	if len(opts.ApplySpecYAML) > 0 {
		var spec map[string]any
		if err := yaml.Unmarshal(opts.ApplySpecYAML, &spec); err != nil {
			return nil, agenterr.Wrap(agenterr.KindConfigJSONMalformed, "bootstrap.Run", "apply-spec", err)
		}
		tmp, err := os.CreateTemp("", "cephadm-spec-")
		if err != nil {
			return nil, agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.Run", "apply-spec", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())
		if err := os.WriteFile(tmp.Name(), opts.ApplySpecYAML, 0o600); err != nil {
			return nil, agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.Run", "apply-spec", err)
		}
		if _, err := b.cliWithFiles(ctx, image, conf, keys.AdminKeyring,
			[]string{"orch", "apply", "-i", "/tmp/spec.yml"}, map[string]string{tmp.Name(): "/tmp/spec.yml"}); err != nil {
			return nil, err
		}
		b.log.Info().Msg("applied cluster spec")
	}

	if err := b.writeOutputFiles(opts, opts.FSID, prepared.AddrArg, keys.AdminKey); err != nil {
		return nil, err
	}

	b.log.Info().Msg("bootstrap complete")
	return &Result{
		FSID: opts.FSID, AdminKeyring: keys.AdminKeyring, MonID: monID, MgrID: mgrID,
		MonNetwork: prepared.BaseIP, DashboardUser: dashUser, DashboardPass: dashPass,
	}, nil
}

// prepareSSH wires the administrative channel: the mgr generates an
// ssh identity, the public half lands in the output dir, and this host
// joins the cluster so the orchestrator can schedule onto it.
func (b *Bootstrapper) prepareSSH(ctx context.Context, image, conf, adminKeyring, hostname, outDir string) error {
	b.log.Info().Msg("generating ssh key and adding host")
	if _, err := b.cli(ctx, image, conf, adminKeyring, []string{"cephadm", "generate-ssh-key"}); err != nil {
		return err
	}
	pub, err := b.cli(ctx, image, conf, adminKeyring, []string{"cephadm", "get-pub-key"})
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = "/etc/ceph"
	}
	if err := os.WriteFile(outDir+"/ceph.pub", []byte(pub), 0o600); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.prepareSSH", outDir+"/ceph.pub", err)
	}
	if _, err := b.cli(ctx, image, conf, adminKeyring, []string{"orch", "host", "add", hostname}); err != nil {
		return err
	}
	return nil
}

// prepareDashboard enables the dashboard module with a self-signed
// cert and sets the initial admin credentials. The password is handed
// to the module over a mounted file so it never appears in an argv.
func (b *Bootstrapper) prepareDashboard(ctx context.Context, image, conf, adminKeyring, user, password string) error {
	b.log.Info().Msg("enabling the dashboard module")
	if err := b.enableMgrModule(ctx, image, conf, adminKeyring, "dashboard"); err != nil {
		return err
	}
	if _, err := b.cli(ctx, image, conf, adminKeyring, []string{"dashboard", "create-self-signed-cert"}); err != nil {
		return err
	}
	tmpPass, err := os.CreateTemp("", "cephadm-dashboard-")
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.prepareDashboard", "tmp password file", err)
	}
	defer os.Remove(tmpPass.Name())
	tmpPass.WriteString(password)
	tmpPass.Close()

	if _, err := b.cliWithFiles(ctx, image, conf, adminKeyring,
		[]string{"dashboard", "ac-user-create", user, "-i", "/tmp/dashboard.pw", "administrator", "--force-password"},
		map[string]string{tmpPass.Name(): "/tmp/dashboard.pw"}); err != nil {
		return err
	}
	b.log.Info().Str("user", user).Msg("dashboard initial admin account created")
	return nil
}

// verifyIPLocal checks that the operator-supplied mon IP is configured
// on some local interface, so the mon's public network can be inferred
// later. Hostnames pass through: they are resolved by the mon itself.
func verifyIPLocal(ip string) error {
	if net.ParseIP(ip) == nil {
		return nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.verifyIPLocal", "list interfaces", err)
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.Equal(net.ParseIP(ip)) {
			return nil
		}
	}
	return agenterr.New(agenterr.KindUsage, "bootstrap.verifyIPLocal",
		fmt.Sprintf("mon IP %s is not configured on any local interface; pass --skip-mon-network to override", ip))
}

// verifyOutputFiles refuses to clobber a previous bootstrap's config
// or keyring unless the operator opted in.
func verifyOutputFiles(opts Options) error {
	if opts.AllowOverwrite {
		return nil
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "/etc/ceph"
	}
	for _, name := range []string{"ceph.conf", "ceph.client.admin.keyring", "ceph.pub"} {
		path := outDir + "/" + name
		if _, err := os.Stat(path); err == nil {
			return agenterr.New(agenterr.KindUsage, "bootstrap.verifyOutputFiles",
				path+" already exists; delete or pass --allow-overwrite to overwrite")
		}
	}
	return nil
}

func (b *Bootstrapper) pullImage(ctx context.Context, image string) error {
	argv := b.rt.BuildPullArgv(image, nil)
	delays := []time.Duration{time.Second, 4 * time.Second, 25 * time.Second}
	var lastErr error
	for _, d := range append([]time.Duration{0}, delays...) {
		if d > 0 {
			time.Sleep(d)
		}
		res, err := b.run.Run(ctx, runner.Debug, 5*time.Minute, "image pull", nil, argv...)
		if err == nil {
			return nil
		}
		lastErr = err
		if !containerruntime.IsTransientPullError(res.Stderr) {
			return agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.pullImage", image, err)
		}
		b.log.Info().Str("image", image).Msg("pull failed transiently, retrying")
	}
	return agenterr.Wrap(agenterr.KindTransientPull, "bootstrap.pullImage", image+": maximum retries reached", lastErr)
}

// expectedRelease is the Ceph release this agent ships with; images
// labelled with a different release refuse to bootstrap unless the
// operator overrides.
const expectedRelease = "pacific"

func (b *Bootstrapper) checkRelease(ctx context.Context, image string, allowMismatch bool) error {
	info, err := b.rt.InspectImage(ctx, image)
	if err != nil {
		return err
	}
	release := info.ReleaseLabel()
	if release == "" || strings.HasPrefix(release, expectedRelease) || strings.Contains(release, expectedRelease) {
		return nil
	}
	if allowMismatch {
		b.log.Warn().Str("release", release).Str("expected", expectedRelease).Msg("image release does not match this agent, proceeding anyway")
		return nil
	}
	return agenterr.New(agenterr.KindImageMismatch, "bootstrap.checkRelease",
		fmt.Sprintf("image %s is based on ceph release %q, expected %q; pass --allow-mismatched-release to proceed", image, release, expectedRelease))
}

func (b *Bootstrapper) cephVersion(ctx context.Context, image string) (string, error) {
	argv := []string{b.rt.Engine().String(), "run", "--rm", "--entrypoint", "ceph", image, "--version"}
	res, err := b.run.Run(ctx, runner.Debug, 60*time.Second, "ceph --version", nil, argv...)
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.cephVersion", image, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (b *Bootstrapper) monIsUp(ctx context.Context, image string, id model.Identity, conf, adminKeyring string) (bool, error) {
	_, err := b.cli(ctx, image, conf, adminKeyring, []string{"mon_status"})
	if err != nil {
		b.log.Debug().Err(err).Msg("mon not up yet")
		return false, nil
	}
	return true, nil
}

func (b *Bootstrapper) mgrIsAvailable(ctx context.Context, image, conf, adminKeyring string) (bool, error) {
	out, err := b.cli(ctx, image, conf, adminKeyring, []string{"mgr", "stat"})
	if err != nil {
		return false, nil
	}
	var j struct {
		Available bool `json:"available"`
	}
	if err := json.Unmarshal([]byte(out), &j); err != nil {
		return false, nil
	}
	return j.Available, nil
}

// mgrEpoch reads the current mgrmap epoch from "mgr stat".
func (b *Bootstrapper) mgrEpoch(ctx context.Context, image, conf, adminKeyring string) (int, error) {
	out, err := b.cli(ctx, image, conf, adminKeyring, []string{"mgr", "stat"})
	if err != nil {
		return 0, err
	}
	var j struct {
		Epoch int `json:"epoch"`
	}
	if err := json.Unmarshal([]byte(out), &j); err != nil {
		return 0, agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.mgrEpoch", "unparseable mgr stat output", err)
	}
	return j.Epoch, nil
}

// enableMgrModule enables a mgr module and waits for the mgr to
// restart with it: the mgrmap epoch observed through the mgr itself
// must advance past the value captured before the enable, otherwise a
// follow-up command races the still-restarting mgr.
func (b *Bootstrapper) enableMgrModule(ctx context.Context, image, conf, adminKeyring, module string) error {
	epoch, err := b.mgrEpoch(ctx, image, conf, adminKeyring)
	if err != nil {
		return err
	}
	if _, err := b.cli(ctx, image, conf, adminKeyring, []string{"mgr", "module", "enable", module}); err != nil {
		return err
	}
	b.log.Info().Str("module", module).Int("pre_enable_epoch", epoch).Msg("waiting for the mgr to restart")
	return wait.Until(ctx, wait.Config{Interval: 2 * time.Second, Timeout: b.cfg.Timeouts.WaitForMgr}, func(ctx context.Context) (bool, error) {
		out, err := b.cli(ctx, image, conf, adminKeyring, []string{"tell", "mgr", "mgr_status"})
		if err != nil {
			return false, nil
		}
		var j struct {
			MgrmapEpoch int `json:"mgrmap_epoch"`
		}
		if err := json.Unmarshal([]byte(out), &j); err != nil {
			return false, nil
		}
		return j.MgrmapEpoch > epoch, nil
	})
}

// cli shells the "ceph" CLI inside a throwaway container, mounting a
// temp config and admin keyring.
func (b *Bootstrapper) cli(ctx context.Context, image, conf, adminKeyring string, args []string) (string, error) {
	return b.cliWithFiles(ctx, image, conf, adminKeyring, args, nil)
}

// cliWithFiles is cli with additional host-path -> container-path
// mounts for commands that read an input file.
func (b *Bootstrapper) cliWithFiles(ctx context.Context, image, conf, adminKeyring string, args []string, files map[string]string) (string, error) {
	tmpConf, err := os.CreateTemp("", "cephadm-conf-")
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.cli", "tmp conf", err)
	}
	defer os.Remove(tmpConf.Name())
	tmpConf.WriteString(conf)
	tmpConf.Close()

	tmpKeyring, err := os.CreateTemp("", "cephadm-keyring-")
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.cli", "tmp keyring", err)
	}
	defer os.Remove(tmpKeyring.Name())
	tmpKeyring.WriteString(adminKeyring)
	tmpKeyring.Close()

	argv := []string{
		b.rt.Engine().String(), "run", "--rm", "--net=host",
		"-v", tmpConf.Name() + ":/etc/ceph/ceph.conf:z",
		"-v", tmpKeyring.Name() + ":/etc/ceph/ceph.client.admin.keyring:z",
	}
	for src, dst := range files {
		argv = append(argv, "-v", src+":"+dst+":z")
	}
	argv = append(argv, "--entrypoint", "/usr/bin/ceph", image)
	argv = append(argv, args...)
	res, err := b.run.Run(ctx, runner.Debug, b.cfg.Timeouts.CommandDefault, "ceph "+strings.Join(args, " "), nil, argv...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (b *Bootstrapper) writeOutputFiles(opts Options, fsid model.FSID, monHost, adminKey string) error {
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "/etc/ceph"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.writeOutputFiles", outDir, err)
	}
	keyringPath := outDir + "/ceph.client.admin.keyring"
	keyring := fmt.Sprintf("[client.admin]\n\tkey = %s\n", adminKey)
	if err := os.WriteFile(keyringPath, []byte(keyring), 0o600); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.writeOutputFiles", keyringPath, err)
	}
	confPath := outDir + "/ceph.conf"
	conf := fmt.Sprintf("# minimal ceph.conf for %s\n[global]\n\tfsid = %s\n\tmon_host = %s\n", fsid, fsid, monHost)
	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.writeOutputFiles", confPath, err)
	}
	return nil
}

func generateServiceID() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "a"
	}
	return strings.SplitN(h, ".", 2)[0]
}
