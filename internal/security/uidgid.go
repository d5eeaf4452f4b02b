package security

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/containerruntime"
	"github.com/cephadm/cephadm/internal/runner"
)

// ExtractUIDGID runs "stat -c '%u %g'" inside image for each of paths
// in turn, returning the first one that resolves, matching
// extract_uid_gid's fallback-across-paths behavior.
func ExtractUIDGID(ctx context.Context, rt *containerruntime.Runtime, run *runner.Runner, image string, paths []string) (uid, gid int, err error) {
	if len(paths) == 0 {
		paths = []string{"/var/lib/ceph"}
	}
	for _, p := range paths {
		argv := []string{rt.Engine().String(), "run", "--rm", "--entrypoint", "stat", image, "-c", "%u %g", p}
		res, runErr := run.Run(ctx, runner.Debug, 60*time.Second, "extract uid/gid", nil, argv...)
		if runErr != nil {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(res.Stdout))
		if len(fields) != 2 {
			continue
		}
		u, uerr := strconv.Atoi(fields[0])
		g, gerr := strconv.Atoi(fields[1])
		if uerr != nil || gerr != nil {
			continue
		}
		return u, g, nil
	}
	return 0, 0, agenterr.New(agenterr.KindExternalCommand, "security.ExtractUIDGID", "uid/gid not found")
}
