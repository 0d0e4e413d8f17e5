// Package ethernet defines the link-layer frame value type exchanged between
// interfaces and the codec turning it into wire bytes.
package ethernet

import (
	"bytes"
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Broadcast is the all-ones hardware address. Frames sent to it are delivered
// to every station on the segment.
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EtherTypes of the payloads this component produces and consumes.
const (
	TypeIPv4 = layers.EthernetTypeIPv4
	TypeARP  = layers.EthernetTypeARP
)

// Frame is a single Ethernet frame: a header plus an opaque payload.
//
// Frames are treated as immutable once built. The payload of a parsed frame
// may retain the zero padding a sender added to reach the 60 byte wire
// minimum; payload codecs are expected to tolerate trailing bytes.
type Frame struct {
	// Destination is the hardware address the frame is delivered to.
	Destination net.HardwareAddr
	// Source is the hardware address of the emitting interface.
	Source net.HardwareAddr
	// Type identifies the payload protocol.
	Type layers.EthernetType
	// Payload is the serialized upper-layer packet.
	Payload []byte
}

// Marshal serializes the frame into wire bytes, zero-padding it to the
// 60 byte Ethernet minimum.
func (f *Frame) Marshal() ([]byte, error) {
	eth := layers.Ethernet{
		DstMAC:       f.Destination,
		SrcMAC:       f.Source,
		EthernetType: f.Type,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, gopacket.Payload(f.Payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}

	return buf.Bytes(), nil
}

// Parse decodes wire bytes into a frame.
func Parse(data []byte) (Frame, error) {
	eth := layers.Ethernet{}
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}

	return Frame{
		Destination: eth.DstMAC,
		Source:      eth.SrcMAC,
		Type:        eth.EthernetType,
		Payload:     eth.Payload,
	}, nil
}

// EqualHW reports whether a and b are the same hardware address.
func EqualHW(a, b net.HardwareAddr) bool {
	return bytes.Equal(a, b)
}

// IsBroadcast reports whether hw is the broadcast hardware address.
func IsBroadcast(hw net.HardwareAddr) bool {
	return EqualHW(hw, Broadcast)
}

func (f Frame) String() string {
	return fmt.Sprintf("%s <- %s type=%s len=%d", f.Destination, f.Source, f.Type, len(f.Payload))
}
