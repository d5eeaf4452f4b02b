// Package agentcfg holds the agent's resolved runtime configuration.
//
// A Context is built once in cmd/cephadm from persistent flags and
// environment variables, then threaded by reference into every
// component constructor. Nothing in internal/* reaches for package
// globals or environment variables directly; cmd/cephadm is the only
// place that reads os.Getenv.
package agentcfg

import "time"

// Paths holds every root directory the agent writes under.
type Paths struct {
	DataDir      string // /var/lib/<product>
	LogDir       string // /var/log/<product>
	UnitDir      string // /etc/systemd/system
	SysctlDir    string // /etc/sysctl.d
	LogrotateDir string // /etc/logrotate.d
	LockDir      string // /run/<product>
}

// DefaultPaths returns the conventional FHS locations used when no
// override flag is supplied.
func DefaultPaths(product string) Paths {
	return Paths{
		DataDir:      "/var/lib/" + product,
		LogDir:       "/var/log/" + product,
		UnitDir:      "/etc/systemd/system",
		SysctlDir:    "/etc/sysctl.d",
		LogrotateDir: "/etc/logrotate.d",
		LockDir:      "/run/" + product,
	}
}

// Engine selects which container engine binary the agent drives.
type Engine string

const (
	EnginePodman Engine = "podman"
	EngineDocker Engine = "docker"
	EngineAuto   Engine = ""
)

// Image holds the resolved default container image reference, e.g. from
// --image or the CEPHADM_IMAGE environment variable.
type Image struct {
	Ref                     string
	AllowMismatchedRelease  bool
}

// Timeouts bundles every retry/timeout knob read by the deploy engine,
// bootstrap state machine, and exporter.
type Timeouts struct {
	ContainerStop   time.Duration
	LockAcquire     time.Duration
	CommandDefault  time.Duration
	WaitForMon      time.Duration
	WaitForMgr      time.Duration
	PullRetries     int
	PullRetryDelay  time.Duration
}

// DefaultTimeouts returns the retry/timeout defaults used when no
// flag overrides them.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ContainerStop:  70 * time.Second,
		LockAcquire:    15 * time.Minute,
		CommandDefault: 10 * time.Minute,
		WaitForMon:     5 * time.Minute,
		WaitForMgr:     5 * time.Minute,
		PullRetries:    3,
		PullRetryDelay: 5 * time.Second,
	}
}

// Context is the full resolved configuration threaded through the agent.
type Context struct {
	FSID     string
	Paths    Paths
	Engine   Engine
	Image    Image
	Timeouts Timeouts
	Verbose  bool
}
