// Package arp defines the address resolution message exchanged over Ethernet
// and its wire codec. Only the Ethernet/IPv4 flavor is supported.
package arp

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Operation is the kind of an ARP message.
type Operation uint16

const (
	// OperationRequest asks the station holding the target protocol address
	// to reveal its hardware address.
	OperationRequest Operation = layers.ARPRequest
	// OperationReply announces the sender's hardware address.
	OperationReply Operation = layers.ARPReply
)

func (op Operation) String() string {
	switch op {
	case OperationRequest:
		return "request"
	case OperationReply:
		return "reply"
	default:
		return fmt.Sprintf("operation(%d)", uint16(op))
	}
}

// unknownLinkAddr is the placeholder hardware address of a request target.
var unknownLinkAddr = net.HardwareAddr{0, 0, 0, 0, 0, 0}

// Message is a single resolution message.
//
// Sender fields always describe the emitting station; its (SenderAddr,
// SenderLinkAddr) pair is the binding receivers learn from, regardless of
// the operation.
type Message struct {
	// Operation is the kind of the message.
	Operation Operation
	// SenderLinkAddr is the hardware address of the sender.
	SenderLinkAddr net.HardwareAddr
	// SenderAddr is the protocol address of the sender.
	SenderAddr netip.Addr
	// TargetLinkAddr is the hardware address of the target. All-zero in
	// requests, where it is the unknown being asked for.
	TargetLinkAddr net.HardwareAddr
	// TargetAddr is the protocol address of the target.
	TargetAddr netip.Addr
}

// NewRequest builds a request asking for the hardware address of targetAddr.
func NewRequest(senderLinkAddr net.HardwareAddr, senderAddr netip.Addr, targetAddr netip.Addr) Message {
	return Message{
		Operation:      OperationRequest,
		SenderLinkAddr: senderLinkAddr,
		SenderAddr:     senderAddr,
		TargetLinkAddr: unknownLinkAddr,
		TargetAddr:     targetAddr,
	}
}

// NewReply builds a reply revealing the sender's hardware address to the
// target station.
func NewReply(senderLinkAddr net.HardwareAddr, senderAddr netip.Addr, targetLinkAddr net.HardwareAddr, targetAddr netip.Addr) Message {
	return Message{
		Operation:      OperationReply,
		SenderLinkAddr: senderLinkAddr,
		SenderAddr:     senderAddr,
		TargetLinkAddr: targetLinkAddr,
		TargetAddr:     targetAddr,
	}
}

// Marshal serializes the message into wire bytes.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.SenderLinkAddr) != 6 || len(m.TargetLinkAddr) != 6 {
		return nil, fmt.Errorf("hardware addresses must be EUI-48")
	}
	if !m.SenderAddr.Is4() || !m.TargetAddr.Is4() {
		return nil, fmt.Errorf("protocol addresses must be IPv4")
	}

	sender := m.SenderAddr.As4()
	target := m.TargetAddr.As4()
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		Operation:         uint16(m.Operation),
		SourceHwAddress:   m.SenderLinkAddr,
		SourceProtAddress: sender[:],
		DstHwAddress:      m.TargetLinkAddr,
		DstProtAddress:    target[:],
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &arp); err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	return buf.Bytes(), nil
}

// Parse decodes wire bytes into a message.
//
// Anything that is not an Ethernet/IPv4 request or reply is rejected.
// Trailing bytes after the fixed 28 byte body are ignored, so payloads
// carried in padded frames parse cleanly.
func Parse(data []byte) (Message, error) {
	if len(data) < 8 {
		return Message{}, fmt.Errorf("truncated message: %d bytes", len(data))
	}
	// The declared address sizes have to be checked before decoding:
	// gopacket slices its fields from them in uint8 arithmetic, and
	// oversized values wrap the bounds check into a panic.
	if data[4] != 6 || data[5] != 4 {
		return Message{}, fmt.Errorf("unsupported address sizes: hw=%d proto=%d", data[4], data[5])
	}

	arp := layers.ARP{}
	if err := arp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}

	if arp.AddrType != layers.LinkTypeEthernet {
		return Message{}, fmt.Errorf("unsupported hardware type: %d", arp.AddrType)
	}
	if arp.Protocol != layers.EthernetTypeIPv4 {
		return Message{}, fmt.Errorf("unsupported protocol type: %s", arp.Protocol)
	}

	op := Operation(arp.Operation)
	if op != OperationRequest && op != OperationReply {
		return Message{}, fmt.Errorf("unsupported operation: %d", arp.Operation)
	}

	senderAddr, ok := netip.AddrFromSlice(arp.SourceProtAddress)
	if !ok {
		return Message{}, fmt.Errorf("failed to parse sender protocol address")
	}
	targetAddr, ok := netip.AddrFromSlice(arp.DstProtAddress)
	if !ok {
		return Message{}, fmt.Errorf("failed to parse target protocol address")
	}

	return Message{
		Operation:      op,
		SenderLinkAddr: net.HardwareAddr(arp.SourceHwAddress),
		SenderAddr:     senderAddr,
		TargetLinkAddr: net.HardwareAddr(arp.DstHwAddress),
		TargetAddr:     targetAddr,
	}, nil
}

func (m Message) String() string {
	switch m.Operation {
	case OperationRequest:
		return fmt.Sprintf("who has %s? tell %s at %s", m.TargetAddr, m.SenderAddr, m.SenderLinkAddr)
	case OperationReply:
		return fmt.Sprintf("%s is at %s", m.SenderAddr, m.SenderLinkAddr)
	default:
		return fmt.Sprintf("%s sender=%s/%s target=%s/%s", m.Operation,
			m.SenderAddr, m.SenderLinkAddr, m.TargetAddr, m.TargetLinkAddr)
	}
}
