// Package monaddr implements the monitor-address port-bracketing logic
// used by Bootstrap when wiring the first monitor's public address,
// grounded directly in prepare_mon_addresses/wrap_ipv6/unwrap_ipv6.
package monaddr

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/cephadm/cephadm/internal/agenterr"
)

var portSuffix = regexp.MustCompile(`:(\d+)$`)

// UnwrapIPv6 strips the "[" "]" bracket pair from an address, if present.
func UnwrapIPv6(address string) string {
	if strings.HasPrefix(address, "[") && strings.HasSuffix(address, "]") {
		return address[1 : len(address)-1]
	}
	return address
}

// WrapIPv6 brackets address if it parses as an IPv6 literal; anything
// else (IPv4, hostname) passes through unchanged.
func WrapIPv6(address string) string {
	ip := net.ParseIP(address)
	if ip != nil && ip.To4() == nil && strings.Contains(address, ":") {
		return "[" + address + "]"
	}
	return address
}

// IsIPv6 reports whether address (optionally bracketed) is an IPv6 literal.
func IsIPv6(address string) bool {
	ip := net.ParseIP(UnwrapIPv6(address))
	return ip != nil && ip.To4() == nil
}

// Prepared is the result of resolving an operator-supplied mon address
// into the monmap addrvec argument passed to "ceph-mon --mkfs".
type Prepared struct {
	AddrArg string
	IPv6    bool
	BaseIP  string
}

// PrepareFromMonIP builds a Prepared from a single --mon-ip value,
// bracketing IPv6, inferring the msgr version from an explicit port
// suffix, and defaulting to dual v1/v2 addressing when no port is
// given.
func PrepareFromMonIP(monIP string) (Prepared, error) {
	ipv6 := IsIPv6(monIP)
	if ipv6 {
		monIP = WrapIPv6(monIP)
	}

	m := portSuffix.FindStringSubmatch(monIP)
	if len(m) == 0 {
		return Prepared{
			AddrArg: "[v2:" + monIP + ":3300,v1:" + monIP + ":6789]",
			IPv6:    ipv6,
			BaseIP:  monIP,
		}, nil
	}

	portStr := m[1]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Prepared{}, agenterr.Wrap(agenterr.KindUsage, "monaddr.PrepareFromMonIP", monIP, err)
	}
	baseIP := monIP[:len(monIP)-len(portStr)-1]

	var addrArg string
	switch port {
	case 6789:
		addrArg = "[v1:" + monIP + "]"
	case 3300:
		addrArg = "[v2:" + monIP + "]"
	default:
		addrArg = "[v2:" + monIP + "]"
	}
	return Prepared{AddrArg: addrArg, IPv6: ipv6, BaseIP: baseIP}, nil
}

// WarnsUnrecognizedPort reports whether port is neither the default
// msgr v1 (6789) nor v2 (3300) port, the case in which the caller
// should log the same warning prepare_mon_addresses logs ("Using
// msgr2 protocol for unrecognized port").
func WarnsUnrecognizedPort(port int) bool {
	return port != 6789 && port != 3300
}

// PrepareFromAddrv parses an explicit --mon-addrv value, which must
// already be bracketed and msgr-version-prefixed (e.g.
// "[v2:10.0.0.1:3300,v1:10.0.0.1:6789]").
func PrepareFromAddrv(addrv string) (Prepared, error) {
	if len(addrv) < 2 || addrv[0] != '[' || addrv[len(addrv)-1] != ']' {
		return Prepared{}, agenterr.New(agenterr.KindUsage, "monaddr.PrepareFromAddrv", "value must use square brackets")
	}
	ipv6 := strings.Count(addrv, "[") > 1
	var baseIP string
	for _, addr := range strings.Split(addrv[1:len(addrv)-1], ",") {
		m := portSuffix.FindStringSubmatch(addr)
		if len(m) == 0 {
			return Prepared{}, agenterr.New(agenterr.KindUsage, "monaddr.PrepareFromAddrv", "must include port number: "+addr)
		}
		portStr := m[1]
		stripped := stripMsgrPrefix(addr)
		baseIP = stripped[:len(stripped)-len(portStr)-1]
	}
	return Prepared{AddrArg: addrv, IPv6: ipv6, BaseIP: baseIP}, nil
}

var msgrPrefix = regexp.MustCompile(`^\w+:`)

func stripMsgrPrefix(addr string) string {
	return msgrPrefix.ReplaceAllString(addr, "")
}
