// Package xpacket contains small gopacket helpers shared by codec tests.
package xpacket

import (
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// LayersToPacket serializes the given layers and decodes them back as an
// Ethernet packet, failing the test on any serialization or decode error.
func LayersToPacket(t *testing.T, lyrs ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, lyrs...))

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	require.Empty(t, pkt.ErrorLayer(), "%#+v", lyrs)
	return pkt
}

// ParseEtherPacket decodes raw bytes as an Ethernet packet.
//
// The input is zero-padded to the 60 byte Ethernet minimum first, since
// gopacket refuses to serialize or parse runt frames consistently otherwise.
// See https://github.com/google/gopacket/issues/361.
func ParseEtherPacket(data []byte) gopacket.Packet {
	if len(data) < 60 {
		var zeros [60]byte
		data = append(data, zeros[:60-len(data)]...)
	}

	return gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
}
