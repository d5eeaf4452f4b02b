package exporter

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// HostFacts is the host metadata payload served from the host slot.
// The full inventory lives with the orchestrator; this daemon reports
// the subset derivable without shelling out.
type HostFacts struct {
	Hostname      string  `json:"hostname"`
	Timestamp     float64 `json:"timestamp"`
	Arch          string  `json:"arch"`
	CPUCount      int     `json:"cpu_count"`
	CPUThreads    int     `json:"cpu_threads"`
	KernelVersion string  `json:"kernel"`
	MemoryTotalKB int64   `json:"memory_total_kb"`
	MemoryFreeKB  int64   `json:"memory_free_kb"`
	OperatingSys  string  `json:"operating_system"`
}

// GatherHostFacts is the default host Producer.
func GatherHostFacts(ctx context.Context) (any, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	f := HostFacts{
		Hostname:   hostname,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
		Arch:       runtime.GOARCH,
		CPUCount:   runtime.NumCPU(),
		CPUThreads: runtime.NumCPU(),
	}
	if b, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		f.KernelVersion = strings.TrimSpace(string(b))
	}
	f.MemoryTotalKB, f.MemoryFreeKB = readMeminfo()
	f.OperatingSys = readOSRelease()
	return f, nil
}

func readMeminfo() (total, free int64) {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer file.Close()
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = n
		case "MemAvailable:":
			free = n
		}
	}
	return total, free
}

func readOSRelease() string {
	file, err := os.Open("/etc/os-release")
	if err != nil {
		return "Unknown"
	}
	defer file.Close()
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), `"`)
		}
	}
	return "Unknown"
}
