package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

// initialKeys bundles the keys and keyrings create_initial_keys
// generates for a fresh cluster.
type initialKeys struct {
	MonKey           string
	MgrKey           string
	AdminKey         string
	BootstrapKeyring string
	AdminKeyring     string
}

func (b *Bootstrapper) genPrintKey(ctx context.Context, image string) (string, error) {
	argv := []string{b.rt.Engine().String(), "run", "--rm", "--entrypoint", "/usr/bin/ceph-authtool", image, "--gen-print-key"}
	res, err := b.run.Run(ctx, runner.Debug, 30*time.Second, "ceph-authtool --gen-print-key", nil, argv...)
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindExternalCommand, "bootstrap.genPrintKey", image, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ComposeKeys renders the bootstrap and admin keyrings from already
// generated key material, mirroring create_initial_keys's keyring
// template.
func ComposeKeys(monKey, adminKey, mgrKey, mgrID string) initialKeys {
	keyring := fmt.Sprintf(
		"[mon.]\n\tkey = %s\n\tcaps mon = allow *\n"+
			"[client.admin]\n\tkey = %s\n\tcaps mon = allow *\n\tcaps mds = allow *\n\tcaps mgr = allow *\n\tcaps osd = allow *\n"+
			"[mgr.%s]\n\tkey = %s\n\tcaps mon = profile mgr\n\tcaps mds = allow *\n\tcaps osd = allow *\n",
		monKey, adminKey, mgrID, mgrKey,
	)
	return initialKeys{
		MonKey: monKey, MgrKey: mgrKey, AdminKey: adminKey,
		BootstrapKeyring: keyring,
		AdminKeyring:     fmt.Sprintf("[client.admin]\n\tkey = %s\n", adminKey),
	}
}

// renderInitialConfig renders the minimal ceph.conf the first mon's
// mkfs needs: fsid, mon_host, container_image, plus the
// single-host-friendly defaults command_bootstrap applies
// unconditionally for a brand-new cluster's first mon/mgr pair.
func renderInitialConfig(fsid model.FSID, monAddr, image string) string {
	var b strings.Builder
	b.WriteString("[global]\n")
	fmt.Fprintf(&b, "\tfsid = %s\n", fsid)
	fmt.Fprintf(&b, "\tmon_host = %s\n", monAddr)
	fmt.Fprintf(&b, "\tcontainer_image = %s\n", image)
	b.WriteString("\tosd_crush_choose_leaf_type = 0\n")
	b.WriteString("\tosd_pool_default_size = 2\n")
	b.WriteString("[mon]\n")
	b.WriteString("\tauth_allow_insecure_global_id_reclaim = false\n")
	b.WriteString("[mgr]\n")
	b.WriteString("\tmgr_standby_modules = false\n")
	return b.String()
}
