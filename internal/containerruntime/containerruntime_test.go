package containerruntime

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephadm/cephadm/internal/model"
)

const testFSID = "a1f0c0aa-3f1d-4b62-90b4-07a0b100a1b2"

func testRuntime(e Engine, v Version) *Runtime {
	return &Runtime{log: zerolog.Nop(), engine: e, path: e.String(), version: v}
}

func noAuthFile(string) bool { return false }

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in       string
		expected Version
	}{
		{"3.0.1", Version{3, 0, 1}},
		{"2.1.0-dev", Version{2, 1, 0}},
		{"Client Version: 20.10.12", Version{20, 10, 12}},
		{"garbage", Version{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseVersion(tt.in), tt.in)
	}
}

func TestVersionAtLeast(t *testing.T) {
	assert.True(t, Version{2, 1, 0}.AtLeast(Version{2, 1, 0}))
	assert.True(t, Version{3, 0, 0}.AtLeast(Version{2, 1, 0}))
	assert.False(t, Version{2, 0, 9}.AtLeast(Version{2, 1, 0}))
}

func TestNeedsDelegateCgroup(t *testing.T) {
	assert.True(t, testRuntime(Podman, Version{2, 1, 0}).NeedsDelegateCgroup())
	assert.False(t, testRuntime(Podman, Version{2, 0, 0}).NeedsDelegateCgroup())
	assert.False(t, testRuntime(Docker, Version{20, 10, 0}).NeedsDelegateCgroup())
}

func TestBuildRunArgvOrdering(t *testing.T) {
	rt := testRuntime(Podman, Version{3, 0, 1})
	spec := model.ContainerSpec{
		Identity:   model.Identity{FSID: testFSID, Kind: model.KindMon, ID: "host1"},
		Image:      "quay.io/ceph/ceph:v16",
		Entrypoint: "/usr/bin/ceph-mon",
		Args:       []string{"-i", "host1"},
		Envs:       []string{"TZ=UTC"},
		Mounts: []model.Mount{
			{Source: "/var/lib/x", Destination: "/var/lib/y", Options: []string{"z"}},
		},
		Detach: true,
	}
	argv := rt.BuildRunArgv(spec, "/run/cephadm", noAuthFile)

	joined := strings.Join(argv, " ")
	assert.Equal(t, []string{"podman", "run", "--rm", "--ipc=host", "--stop-signal=SIGTERM"}, argv[:5])
	assert.Contains(t, joined, "--net=host")
	assert.Contains(t, joined, "-d --conmon-pidfile=/run/cephadm/mon.host1.pid --cidfile=/run/cephadm/mon.host1.cid")
	assert.Contains(t, joined, "--entrypoint /usr/bin/ceph-mon")
	assert.Contains(t, joined, "--name ceph-"+testFSID+"-mon.host1")
	assert.Contains(t, joined, "-e TZ=UTC")
	assert.Contains(t, joined, "-v /var/lib/x:/var/lib/y:z")

	// image comes after every flag, positional args last
	require.True(t, len(argv) >= 3)
	assert.Equal(t, "host1", argv[len(argv)-1])
	assert.Equal(t, "-i", argv[len(argv)-2])
	assert.Equal(t, "quay.io/ceph/ceph:v16", argv[len(argv)-3])
}

func TestBuildRunArgvPrivileged(t *testing.T) {
	rt := testRuntime(Docker, Version{20, 10, 0})
	spec := model.ContainerSpec{
		Identity:   model.Identity{FSID: testFSID, Kind: model.KindOSD, ID: "0"},
		Image:      "img",
		Privileged: true,
		Ptrace:     true, // subsumed by privileged
	}
	joined := strings.Join(rt.BuildRunArgv(spec, "/run/cephadm", noAuthFile), " ")
	assert.Contains(t, joined, "--privileged --group-add=disk")
	assert.NotContains(t, joined, "--cap-add=SYS_PTRACE")
	// docker never gets podman's pidfile plumbing
	assert.NotContains(t, joined, "--conmon-pidfile")
}

func TestBuildRunArgvPtrace(t *testing.T) {
	rt := testRuntime(Podman, Version{3, 0, 1})
	spec := model.ContainerSpec{
		Identity: model.Identity{FSID: testFSID, Kind: model.KindMgr, ID: "x"},
		Image:    "img",
		Ptrace:   true,
	}
	joined := strings.Join(rt.BuildRunArgv(spec, "/run/cephadm", noAuthFile), " ")
	assert.Contains(t, joined, "--cap-add=SYS_PTRACE")
	assert.NotContains(t, joined, "--privileged")
}

func TestBuildStopRmExecArgv(t *testing.T) {
	rt := testRuntime(Podman, Version{3, 0, 1})
	id := model.Identity{FSID: testFSID, Kind: model.KindMon, ID: "host1"}
	cname := "ceph-" + testFSID + "-mon.host1"

	assert.Equal(t, []string{"podman", "stop", cname}, rt.BuildStopArgv(id))
	assert.Equal(t, []string{"podman", "rm", "-f", cname}, rt.BuildRmArgv(id, false))
	assert.Equal(t, []string{"podman", "rm", "-f", "--storage", cname}, rt.BuildRmArgv(id, true))
	assert.Equal(t, []string{"podman", "exec", cname, "ceph", "-s"}, rt.BuildExecArgv(id, []string{"ceph", "-s"}))
}

func TestIsTransientPullError(t *testing.T) {
	assert.True(t, IsTransientPullError("read: net/http: TLS handshake timeout"))
	assert.False(t, IsTransientPullError("manifest unknown"))
}

func TestNormalizeImageRef(t *testing.T) {
	got, err := NormalizeImageRef("quay.io/ceph/ceph:v16.2.5")
	require.NoError(t, err)
	assert.Equal(t, "quay.io/ceph/ceph:v16.2.5", got)

	_, err = NormalizeImageRef("UPPER CASE not a ref")
	assert.Error(t, err)
}
