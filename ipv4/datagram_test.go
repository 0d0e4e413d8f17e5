package ipv4

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func testDatagram() Datagram {
	return Datagram{
		Src:      netip.MustParseAddr("192.0.2.1"),
		Dst:      netip.MustParseAddr("192.0.2.2"),
		Protocol: layers.IPProtocolUDP,
		TTL:      64,
		ID:       0x0bad,
		Payload:  []byte("knock knock"),
	}
}

func TestDatagramRoundTrip(t *testing.T) {
	d := testDatagram()

	data, err := d.Marshal()
	require.NoError(t, err)
	require.Len(t, data, d.Size())

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(d, parsed, cmpopts.EquateComparable(netip.Addr{})))
}

func TestParseIgnoresTrailingPadding(t *testing.T) {
	d := testDatagram()
	data, err := d.Marshal()
	require.NoError(t, err)

	padded := append(data, bytes.Repeat([]byte{0}, 29)...)
	parsed, err := Parse(padded)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(d, parsed, cmpopts.EquateComparable(netip.Addr{})))
}

func TestParseRejectsWrongVersion(t *testing.T) {
	d := testDatagram()
	data, err := d.Marshal()
	require.NoError(t, err)

	data[0] = 0x65 // version 6, IHL untouched
	_, err = Parse(data)
	require.Error(t, err)
}

func TestParseRejectsTruncated(t *testing.T) {
	d := testDatagram()
	data, err := d.Marshal()
	require.NoError(t, err)

	for _, n := range []int{0, 8, 19, len(data) - 1} {
		_, err = Parse(data[:n])
		require.Error(t, err, "%d bytes should not parse", n)
	}
}

func TestMarshalRejectsNonIPv4(t *testing.T) {
	d := testDatagram()
	d.Dst = netip.MustParseAddr("2001:db8::1")
	_, err := d.Marshal()
	require.Error(t, err)
}
