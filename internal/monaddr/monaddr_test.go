package monaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapIPv6(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		expected string
	}{
		{"ipv4 passes through", "10.0.0.1", "10.0.0.1"},
		{"hostname passes through", "mon-host", "mon-host"},
		{"ipv6 is bracketed", "fd00::1", "[fd00::1]"},
		{"already bracketed is not double bracketed", "[fd00::1]", "[fd00::1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WrapIPv6(UnwrapIPv6(tt.address)))
		})
	}
}

func TestPrepareFromMonIP(t *testing.T) {
	tests := []struct {
		name    string
		monIP   string
		addrArg string
		ipv6    bool
	}{
		{"bare ipv4 gets dual v1/v2", "10.0.0.1", "[v2:10.0.0.1:3300,v1:10.0.0.1:6789]", false},
		{"port 6789 selects v1", "10.0.0.1:6789", "[v1:10.0.0.1:6789]", false},
		{"port 3300 selects v2", "10.0.0.1:3300", "[v2:10.0.0.1:3300]", false},
		{"other port selects v2", "10.0.0.1:9999", "[v2:10.0.0.1:9999]", false},
		{"bare ipv6 is bracketed", "fd00::1", "[v2:[fd00::1]:3300,v1:[fd00::1]:6789]", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PrepareFromMonIP(tt.monIP)
			require.NoError(t, err)
			assert.Equal(t, tt.addrArg, p.AddrArg)
			assert.Equal(t, tt.ipv6, p.IPv6)
		})
	}
}

func TestWarnsUnrecognizedPort(t *testing.T) {
	assert.False(t, WarnsUnrecognizedPort(6789))
	assert.False(t, WarnsUnrecognizedPort(3300))
	assert.True(t, WarnsUnrecognizedPort(9999))
}

func TestPrepareFromAddrvIdempotent(t *testing.T) {
	in := "[v2:10.0.0.1:3300,v1:10.0.0.1:6789]"
	p, err := PrepareFromAddrv(in)
	require.NoError(t, err)
	assert.Equal(t, in, p.AddrArg)

	// feeding the canonical form back in produces the same result
	p2, err := PrepareFromAddrv(p.AddrArg)
	require.NoError(t, err)
	assert.Equal(t, p.AddrArg, p2.AddrArg)
}

func TestPrepareFromAddrvRejectsBadInput(t *testing.T) {
	_, err := PrepareFromAddrv("10.0.0.1:3300")
	assert.Error(t, err, "unbracketed addrv must be rejected")

	_, err = PrepareFromAddrv("[v2:10.0.0.1]")
	assert.Error(t, err, "addrv without a port must be rejected")
}

func TestIsIPv6(t *testing.T) {
	assert.True(t, IsIPv6("fd00::1"))
	assert.True(t, IsIPv6("[fd00::1]"))
	assert.False(t, IsIPv6("10.0.0.1"))
	assert.False(t, IsIPv6("mon-host"))
}
