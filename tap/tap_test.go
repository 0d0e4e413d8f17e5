package tap

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)

	_, err = New(&Config{Addr: netip.MustParseAddr("fe80::1")})
	require.Error(t, err)

	_, err = New(&Config{
		Addr:   netip.MustParseAddr("10.0.0.9"),
		HWAddr: net.HardwareAddr{0xaa, 0xbb},
	})
	require.Error(t, err)
}

func TestNewPicksHardwareAddress(t *testing.T) {
	pump, err := New(&Config{Addr: netip.MustParseAddr("10.0.0.9")})
	require.NoError(t, err)

	hw := pump.HWAddr()
	require.Len(t, hw, 6)

	// Locally administered, unicast.
	require.Equal(t, byte(0x02), hw[0]&0x03)
}

func TestRandomHWAddrsDiffer(t *testing.T) {
	a, err := randomHWAddr()
	require.NoError(t, err)
	b, err := randomHWAddr()
	require.NoError(t, err)
	require.NotEqual(t, a.String(), b.String())
}
