// Package containerruntime builds argument vectors for the host's
// container engine CLI (podman or docker). It never links an SDK
// client: the engine is always invoked as an external process through
// a runner.Runner, so the exact command line a daemon runs with is
// inspectable in its unit.run script.
package containerruntime

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/distribution/reference"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

// Engine identifies which container engine binary is driven.
type Engine int

const (
	Podman Engine = iota
	Docker
)

func (e Engine) String() string {
	if e == Podman {
		return "podman"
	}
	return "docker"
}

// Version is a parsed "major.minor.patch" engine version.
type Version struct {
	Major, Minor, Patch int
}

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch >= other.Patch
}

// podmanCgroupsSplitMin is the version at which rootless podman defaults
// to a cgroup layout requiring "Delegate=yes" in the generated unit.
var podmanCgroupsSplitMin = Version{Major: 2, Minor: 1, Patch: 0}

// Runtime is the capability over a detected container engine.
type Runtime struct {
	log     zerolog.Logger
	run     *runner.Runner
	engine  Engine
	path    string
	version Version
}

// Detect probes for podman, then docker, returning the first found.
// preferred, if Docker, flips the search order.
func Detect(run *runner.Runner, log zerolog.Logger, preferred Engine) (*Runtime, error) {
	order := []Engine{Podman, Docker}
	if preferred == Docker {
		order = []Engine{Docker, Podman}
	}
	for _, e := range order {
		if path, err := exec.LookPath(e.String()); err == nil {
			rt := &Runtime{log: log.With().Str("component", "containerruntime").Str("engine", e.String()).Logger(), run: run, engine: e, path: path}
			if err := rt.probeVersion(); err != nil {
				return nil, err
			}
			return rt, nil
		}
	}
	return nil, agenterr.New(agenterr.KindNoContainerEngine, "containerruntime.Detect", "neither podman nor docker found on PATH")
}

func (r *Runtime) probeVersion() error {
	res, err := r.run.Run(context.Background(), runner.Debug, 30*time.Second, r.engine.String()+" version",
		nil, r.path, "version", "--format", "{{.Client.Version}}")
	if err != nil {
		res, err = r.run.Run(context.Background(), runner.Debug, 30*time.Second, r.engine.String()+" version",
			nil, r.path, "version")
		if err != nil {
			return agenterr.Wrap(agenterr.KindExternalCommand, "containerruntime.probeVersion", r.engine.String(), err)
		}
	}
	r.version = parseVersion(res.Stdout)
	return nil
}

func parseVersion(s string) Version {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '-' || r == ' ' || r == '\n' || r == ':' })
	var v Version
	nums := make([]int, 0, 3)
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			nums = append(nums, n)
			if len(nums) == 3 {
				break
			}
		}
	}
	for i := 0; i < len(nums) && i < 3; i++ {
		switch i {
		case 0:
			v.Major = nums[0]
		case 1:
			v.Minor = nums[1]
		case 2:
			v.Patch = nums[2]
		}
	}
	return v
}

// Engine reports which engine was detected.
func (r *Runtime) Engine() Engine { return r.engine }

// Path reports the engine binary's resolved path.
func (r *Runtime) Path() string { return r.path }

// Version reports the detected engine version.
func (r *Runtime) Version() Version { return r.version }

// NeedsDelegateCgroup reports whether InitSystem must add
// "Delegate=yes" to the generated unit for this engine/version.
func (r *Runtime) NeedsDelegateCgroup() bool {
	return r.engine == Podman && r.version.AtLeast(podmanCgroupsSplitMin)
}

const podmanAuthFile = "/etc/ceph/podman-auth.json"

// BuildRunArgv builds the argv for a detached "run" of spec, writing
// its conmon pidfile/cidfile beneath runDir (podman only).
func (r *Runtime) BuildRunArgv(spec model.ContainerSpec, runDir string, hasAuthFile func(string) bool) []string {
	argv := []string{r.path, "run", "--rm", "--ipc=host", "--stop-signal=SIGTERM"}

	if spec.NetworkMode == "host" || spec.NetworkMode == "" {
		argv = append(argv, "--net=host")
	} else {
		argv = append(argv, "--net="+spec.NetworkMode)
	}

	if r.engine == Podman {
		if hasAuthFile == nil {
			hasAuthFile = defaultHasFile
		}
		if hasAuthFile(podmanAuthFile) {
			argv = append(argv, "--authfile="+podmanAuthFile)
		}
		if spec.Detach {
			argv = append(argv, "-d",
				"--conmon-pidfile="+runDir+"/"+spec.Identity.Name()+".pid",
				"--cidfile="+runDir+"/"+spec.Identity.Name()+".cid",
			)
		}
	}

	envs := []string{"-e", "CONTAINER_IMAGE=" + spec.Image, "-e", "NODE_NAME=" + hostnameOrEmpty()}

	if spec.Entrypoint != "" {
		argv = append(argv, "--entrypoint", spec.Entrypoint)
	}
	if spec.MemoryBytes > 0 {
		argv = append(argv, "--memory", strconv.FormatInt(spec.MemoryBytes, 10))
	}
	if spec.Privileged {
		argv = append(argv, "--privileged", "--group-add=disk")
	} else if spec.Ptrace {
		argv = append(argv, "--cap-add=SYS_PTRACE")
	}
	if spec.Init {
		argv = append(argv, "--init")
	}
	argv = append(argv, "--name", containerName(spec.Identity))

	for _, e := range spec.Envs {
		envs = append(envs, "-e", e)
	}

	var vols []string
	for _, m := range spec.Mounts {
		if m.Type == "bind" || m.Type == "" {
			if len(m.Options) == 0 {
				vols = append(vols, "-v", m.Source+":"+m.Destination)
				continue
			}
			vols = append(vols, "-v", m.Source+":"+m.Destination+":"+strings.Join(m.Options, ","))
		} else {
			vols = append(vols, "--mount", mountOptsString(m))
		}
	}

	argv = append(argv, spec.ExtraArgs...)
	argv = append(argv, envs...)
	argv = append(argv, vols...)
	argv = append(argv, spec.Image)
	argv = append(argv, spec.Args...)
	return argv
}

func mountOptsString(m model.Mount) string {
	parts := []string{"type=" + orDefault(m.Type, "bind"), "source=" + m.Source, "destination=" + m.Destination}
	parts = append(parts, m.Options...)
	return strings.Join(parts, ",")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// BuildShellArgv builds the argv for an interactive one-off container,
// used by the shell and ceph-volume sub-commands. A TTY is always
// allocated; the caller decides whether to wire it to a real terminal.
func (r *Runtime) BuildShellArgv(image, entrypoint string, mounts []model.Mount, envs, args []string) []string {
	argv := []string{r.path, "run", "--rm", "--ipc=host", "--net=host", "-it", "--privileged", "--group-add=disk"}
	for _, e := range envs {
		argv = append(argv, "-e", e)
	}
	for _, m := range mounts {
		opt := ""
		if len(m.Options) > 0 {
			opt = ":" + strings.Join(m.Options, ",")
		}
		argv = append(argv, "-v", m.Source+":"+m.Destination+opt)
	}
	if entrypoint != "" {
		argv = append(argv, "--entrypoint", entrypoint)
	}
	argv = append(argv, image)
	return append(argv, args...)
}

// BuildExecArgv builds the argv for "exec" into a running daemon
// container.
func (r *Runtime) BuildExecArgv(id model.Identity, cmd []string) []string {
	argv := []string{r.path, "exec", containerName(id)}
	return append(argv, cmd...)
}

// BuildStopArgv builds the argv for "stop" of a daemon container.
func (r *Runtime) BuildStopArgv(id model.Identity) []string {
	return []string{r.path, "stop", containerName(id)}
}

// BuildRmArgv builds the argv for "rm -f" of a daemon container.
func (r *Runtime) BuildRmArgv(id model.Identity, storage bool) []string {
	argv := []string{r.path, "rm", "-f"}
	if storage {
		argv = append(argv, "--storage")
	}
	return append(argv, containerName(id))
}

// BuildPullArgv builds the argv to pull image.
func (r *Runtime) BuildPullArgv(image string, hasAuthFile func(string) bool) []string {
	argv := []string{r.path, "pull", image}
	if r.engine == Podman {
		if hasAuthFile == nil {
			hasAuthFile = defaultHasFile
		}
		if hasAuthFile(podmanAuthFile) {
			argv = append(argv, "--authfile="+podmanAuthFile)
		}
	}
	return argv
}

// BuildInspectArgv builds the argv to inspect an image, returning its
// ID and repo digests in a single comma-separated line.
func (r *Runtime) BuildInspectArgv(image string) []string {
	return []string{r.path, "inspect", "--format", "{{.ID}},{{.RepoDigests}}", image}
}

// BuildLoginArgv builds the argv for engine-native registry login.
func (r *Runtime) BuildLoginArgv(registryURL, username, password string) []string {
	return []string{r.path, "login", "-u", username, "--password-stdin", registryURL}
}

// pullTransientPatterns lists error substrings from pulls that are
// transient and worth retrying.
var pullTransientPatterns = []string{
	"error creating read-write layer with ID",
	"net/http: TLS handshake timeout",
	"Digest did not match, expected",
}

// IsTransientPullError reports whether stderr matches a known-transient
// pull failure.
func IsTransientPullError(stderr string) bool {
	for _, p := range pullTransientPatterns {
		if strings.Contains(stderr, p) {
			return true
		}
	}
	return false
}

// NormalizeImageRef validates and normalizes an image reference the way
// the agent accepts it from --image/CEPHADM_IMAGE/config-json, using
// the same reference-parsing library the rest of the ecosystem relies
// on rather than hand-rolled string splitting.
func NormalizeImageRef(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", agenterr.Wrap(agenterr.KindUsage, "containerruntime.NormalizeImageRef", ref, err)
	}
	return reference.FamiliarString(named), nil
}

// ImageInfo is the subset of "image inspect" output the agent reads:
// the image ID, its repo digests, and the OCI config carrying the
// release label checked at bootstrap.
type ImageInfo struct {
	ID          string              `json:"Id"`
	RepoDigests []string            `json:"RepoDigests"`
	Config      ocispec.ImageConfig `json:"Config"`
}

// cephVersionLabel is the image label Ceph builds stamp with their
// release string.
const cephVersionLabel = "io.ceph.version"

// InspectImage runs "image inspect" on image and parses the result.
func (r *Runtime) InspectImage(ctx context.Context, image string) (ImageInfo, error) {
	res, err := r.run.Run(ctx, runner.Debug, 30*time.Second, r.engine.String()+" image inspect", nil,
		r.path, "image", "inspect", "--format", "json", image)
	if err != nil {
		return ImageInfo{}, agenterr.Wrap(agenterr.KindExternalCommand, "containerruntime.InspectImage", image, err)
	}
	var infos []ImageInfo
	if err := json.Unmarshal([]byte(res.Stdout), &infos); err != nil || len(infos) == 0 {
		// docker inspect emits a bare object rather than a list
		var one ImageInfo
		if err2 := json.Unmarshal([]byte(res.Stdout), &one); err2 != nil {
			return ImageInfo{}, agenterr.Wrap(agenterr.KindExternalCommand, "containerruntime.InspectImage", image+": unparseable inspect output", err2)
		}
		return one, nil
	}
	return infos[0], nil
}

// ReleaseLabel returns the Ceph release string stamped on the image,
// or "" when the label is absent.
func (i ImageInfo) ReleaseLabel() string {
	return i.Config.Labels[cephVersionLabel]
}

func containerName(id model.Identity) string {
	return "ceph-" + string(id.FSID) + "-" + string(id.Kind) + "." + id.ID
}

func defaultHasFile(path string) bool {
	_, err := execStat(path)
	return err == nil
}
