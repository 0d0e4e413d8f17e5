// Package ipv4 defines the datagram value type the upper layer produces and
// consumes, together with its wire codec.
package ipv4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// headerLength is the length of the fixed IPv4 header. Datagrams built here
// never carry IP options.
const headerLength = 20

// Datagram is a single IPv4 datagram with the header surface this component
// cares about. Options and fragmentation are not modeled; a datagram
// round-trips exactly through Marshal and Parse.
type Datagram struct {
	// Src and Dst are the endpoint addresses.
	Src netip.Addr
	Dst netip.Addr
	// Protocol identifies the payload protocol.
	Protocol layers.IPProtocol
	// TTL is the remaining hop count.
	TTL uint8
	// ID is the identification field, useful to tell test datagrams apart.
	ID uint16
	// Payload is the opaque upper-layer payload.
	Payload []byte
}

// Size returns the serialized length of the datagram in bytes.
func (d *Datagram) Size() int {
	return headerLength + len(d.Payload)
}

// Marshal serializes the datagram, computing length and header checksum.
func (d *Datagram) Marshal() ([]byte, error) {
	if !d.Src.Is4() || !d.Dst.Is4() {
		return nil, fmt.Errorf("endpoint addresses must be IPv4")
	}

	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      d.TTL,
		Id:       d.ID,
		Protocol: d.Protocol,
		SrcIP:    d.Src.AsSlice(),
		DstIP:    d.Dst.AsSlice(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &ip, gopacket.Payload(d.Payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize datagram: %w", err)
	}

	return buf.Bytes(), nil
}

// Parse decodes wire bytes into a datagram.
//
// Bytes past the header's total length are ignored, so datagrams carried in
// padded Ethernet frames parse cleanly. Truncated input is rejected.
func Parse(data []byte) (Datagram, error) {
	if len(data) < headerLength {
		return Datagram{}, fmt.Errorf("truncated datagram: %d bytes", len(data))
	}
	// The total length field has to be checked before decoding: gopacket
	// clips it to the available bytes instead of failing.
	if declared := int(binary.BigEndian.Uint16(data[2:4])); declared > len(data) {
		return Datagram{}, fmt.Errorf("truncated datagram: have %d of %d bytes", len(data), declared)
	}

	ip := layers.IPv4{}
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return Datagram{}, fmt.Errorf("failed to decode datagram: %w", err)
	}

	if ip.Version != 4 {
		return Datagram{}, fmt.Errorf("unsupported version: %d", ip.Version)
	}

	src, ok := netip.AddrFromSlice(ip.SrcIP)
	if !ok {
		return Datagram{}, fmt.Errorf("failed to parse source address")
	}
	dst, ok := netip.AddrFromSlice(ip.DstIP)
	if !ok {
		return Datagram{}, fmt.Errorf("failed to parse destination address")
	}

	payload := ip.Payload
	if len(payload) == 0 {
		payload = nil
	}

	return Datagram{
		Src:      src,
		Dst:      dst,
		Protocol: ip.Protocol,
		TTL:      ip.TTL,
		ID:       ip.Id,
		Payload:  payload,
	}, nil
}

func (d Datagram) String() string {
	return fmt.Sprintf("%s -> %s proto=%s ttl=%d len=%d", d.Src, d.Dst, d.Protocol, d.TTL, d.Size())
}
