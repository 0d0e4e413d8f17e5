package link

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/ethane-platform/ethane/arp"
	"github.com/ethane-platform/ethane/ethernet"
	"github.com/ethane-platform/ethane/ipv4"
)

var (
	hwA = net.HardwareAddr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	hwB = net.HardwareAddr{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}
	hwC = net.HardwareAddr{0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc}

	addrA = netip.MustParseAddr("1.1.1.1")
	addrB = netip.MustParseAddr("1.1.1.2")
	addrC = netip.MustParseAddr("1.1.1.3")
)

func newTestDatagram(id uint16) ipv4.Datagram {
	return ipv4.Datagram{
		Src:      addrA,
		Dst:      addrB,
		Protocol: layers.IPProtocolUDP,
		TTL:      64,
		ID:       id,
		Payload:  []byte("ping"),
	}
}

func drainFrames(iface *Interface) []ethernet.Frame {
	var frames []ethernet.Frame
	for {
		frame, ok := iface.PollFrame()
		if !ok {
			return frames
		}
		frames = append(frames, frame)
	}
}

// arpFrame wraps a resolution message into a frame the way the sending
// station would.
func arpFrame(t *testing.T, m arp.Message, dst net.HardwareAddr) ethernet.Frame {
	t.Helper()
	payload, err := m.Marshal()
	require.NoError(t, err)

	return ethernet.Frame{
		Destination: dst,
		Source:      m.SenderLinkAddr,
		Type:        ethernet.TypeARP,
		Payload:     payload,
	}
}

func parseMessage(t *testing.T, frame ethernet.Frame) arp.Message {
	t.Helper()
	require.Equal(t, ethernet.TypeARP, frame.Type)
	m, err := arp.Parse(frame.Payload)
	require.NoError(t, err)
	return m
}

func parseDatagram(t *testing.T, frame ethernet.Frame) ipv4.Datagram {
	t.Helper()
	require.Equal(t, ethernet.TypeIPv4, frame.Type)
	d, err := ipv4.Parse(frame.Payload)
	require.NoError(t, err)
	return d
}

func TestSendWithCachedNeighbour(t *testing.T) {
	iface := New(nil, hwA, addrA)
	iface.AddNeighbour(addrB, hwB)

	dgram := newTestDatagram(1)
	iface.Send(dgram, addrB)

	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, hwB, frames[0].Destination)
	require.Equal(t, hwA, frames[0].Source)
	require.Empty(t, cmp.Diff(dgram, parseDatagram(t, frames[0]), cmpopts.EquateComparable(netip.Addr{})))
}

func TestSingleOutstandingRequest(t *testing.T) {
	iface := New(nil, hwA, addrA)

	iface.Send(newTestDatagram(1), addrB)
	iface.Send(newTestDatagram(2), addrB)

	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, ethernet.Broadcast, frames[0].Destination)

	request := parseMessage(t, frames[0])
	require.Equal(t, arp.OperationRequest, request.Operation)
	require.Equal(t, hwA, request.SenderLinkAddr)
	require.Equal(t, addrA, request.SenderAddr)
	require.Equal(t, addrB, request.TargetAddr)

	// One reply flushes both datagrams.
	iface.Receive(arpFrame(t, arp.NewReply(hwB, addrB, hwA, addrA), hwA))

	frames = drainFrames(iface)
	require.Len(t, frames, 2)
	require.Equal(t, uint16(1), parseDatagram(t, frames[0]).ID)
	require.Equal(t, uint16(2), parseDatagram(t, frames[1]).ID)
}

func TestResolutionFlushOrder(t *testing.T) {
	iface := New(nil, hwA, addrA)

	for id := uint16(1); id <= 5; id++ {
		iface.Send(newTestDatagram(id), addrB)
	}
	require.Len(t, drainFrames(iface), 1)

	iface.Receive(arpFrame(t, arp.NewReply(hwB, addrB, hwA, addrA), hwA))

	frames := drainFrames(iface)
	require.Len(t, frames, 5)
	for idx, frame := range frames {
		require.Equal(t, hwB, frame.Destination)
		require.Equal(t, uint16(idx+1), parseDatagram(t, frame).ID)
	}
}

func TestCacheTTLBoundaries(t *testing.T) {
	t.Run("still trusted just before the TTL", func(t *testing.T) {
		iface := New(nil, hwA, addrA)
		iface.Receive(arpFrame(t, arp.NewReply(hwB, addrB, hwA, addrA), hwA))

		iface.Tick(29999 * time.Millisecond)
		iface.Send(newTestDatagram(1), addrB)

		frames := drainFrames(iface)
		require.Len(t, frames, 1)
		require.Equal(t, ethernet.TypeIPv4, frames[0].Type)
		require.Equal(t, hwB, frames[0].Destination)
	})

	t.Run("gone once the TTL is crossed", func(t *testing.T) {
		iface := New(nil, hwA, addrA)
		iface.Receive(arpFrame(t, arp.NewReply(hwB, addrB, hwA, addrA), hwA))

		iface.Tick(15 * time.Second)
		iface.Tick(15001 * time.Millisecond)
		iface.Send(newTestDatagram(1), addrB)

		frames := drainFrames(iface)
		require.Len(t, frames, 1)
		require.Equal(t, arp.OperationRequest, parseMessage(t, frames[0]).Operation)
	})
}

func TestPendingTTLDrop(t *testing.T) {
	iface := New(nil, hwA, addrA)

	iface.Send(newTestDatagram(1), addrB)
	require.Len(t, drainFrames(iface), 1)

	iface.Tick(5001 * time.Millisecond)
	require.Empty(t, iface.Pending())
	require.Equal(t, uint64(1), iface.Stats().Dropped)

	// The dropped datagram is gone for good: resolving the address now
	// flushes nothing.
	iface.Receive(arpFrame(t, arp.NewReply(hwB, addrB, hwA, addrA), hwA))
	require.Empty(t, drainFrames(iface))
}

func TestSendAfterExpiredResolutionRequestsAgain(t *testing.T) {
	iface := New(nil, hwA, addrA)

	iface.Send(newTestDatagram(1), addrB)
	require.Len(t, drainFrames(iface), 1)

	iface.Tick(5001 * time.Millisecond)

	iface.Send(newTestDatagram(2), addrB)
	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, arp.OperationRequest, parseMessage(t, frames[0]).Operation)

	pending := iface.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, addrB, pending[0].Addr)
	require.Equal(t, 1, pending[0].Queued)
}

func TestUnsolicitedLearning(t *testing.T) {
	iface := New(nil, hwA, addrA)

	// A request between two other stations, overheard on broadcast. The
	// sender's binding is learned even though nobody asked us anything,
	// and no reply is produced since the target is not ours.
	iface.Receive(arpFrame(t, arp.NewRequest(hwB, addrB, addrC), ethernet.Broadcast))
	require.Empty(t, drainFrames(iface))

	neighbours := iface.Neighbours()
	require.Len(t, neighbours, 1)
	require.Equal(t, addrB, neighbours[0].Addr)
	require.Equal(t, hwB, neighbours[0].LinkAddr)

	iface.Send(newTestDatagram(1), addrB)
	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, ethernet.TypeIPv4, frames[0].Type)
}

func TestResolutionRequestForLocalAddress(t *testing.T) {
	iface := New(nil, hwA, addrA)

	_, ok := iface.Receive(arpFrame(t, arp.NewRequest(hwB, addrB, addrA), ethernet.Broadcast))
	require.False(t, ok)

	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, hwB, frames[0].Destination)

	reply := parseMessage(t, frames[0])
	require.Equal(t, arp.OperationReply, reply.Operation)
	require.Equal(t, hwA, reply.SenderLinkAddr)
	require.Equal(t, addrA, reply.SenderAddr)
	require.Equal(t, hwB, reply.TargetLinkAddr)
	require.Equal(t, addrB, reply.TargetAddr)
}

func TestFrameForOtherStationIsIgnored(t *testing.T) {
	iface := New(nil, hwA, addrA)

	_, ok := iface.Receive(arpFrame(t, arp.NewRequest(hwB, addrB, addrA), hwC))
	require.False(t, ok)

	require.Empty(t, drainFrames(iface))
	require.Empty(t, iface.Neighbours())
	require.Equal(t, uint64(1), iface.Stats().Discarded)
}

func TestUndecodablePayloadsAreDiscarded(t *testing.T) {
	iface := New(nil, hwA, addrA)

	for _, tc := range []struct {
		name  string
		frame ethernet.Frame
	}{
		{
			name: "garbage datagram",
			frame: ethernet.Frame{
				Destination: hwA,
				Source:      hwB,
				Type:        ethernet.TypeIPv4,
				Payload:     []byte{0x01, 0x02, 0x03},
			},
		},
		{
			name: "garbage message",
			frame: ethernet.Frame{
				Destination: hwA,
				Source:      hwB,
				Type:        ethernet.TypeARP,
				Payload:     bytes.Repeat([]byte{0xff}, 28),
			},
		},
		{
			name: "unknown ethertype",
			frame: ethernet.Frame{
				Destination: hwA,
				Source:      hwB,
				Type:        layers.EthernetTypeLinkLayerDiscovery,
				Payload:     []byte{0x00},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := iface.Receive(tc.frame)
			require.False(t, ok)
			require.Empty(t, drainFrames(iface))
		})
	}

	require.Empty(t, iface.Neighbours())
}

func TestReceiveDeliversDatagram(t *testing.T) {
	iface := New(nil, hwA, addrA)

	want := newTestDatagram(7)
	payload, err := want.Marshal()
	require.NoError(t, err)

	got, ok := iface.Receive(ethernet.Frame{
		Destination: hwA,
		Source:      hwB,
		Type:        ethernet.TypeIPv4,
		Payload:     payload,
	})
	require.True(t, ok)
	require.Empty(t, cmp.Diff(want, got, cmpopts.EquateComparable(netip.Addr{})))

	// Data frames never teach bindings.
	require.Empty(t, iface.Neighbours())
}

func TestEndToEndResolution(t *testing.T) {
	a := New(nil, hwA, addrA)
	b := New(nil, hwB, addrB)

	dgram := newTestDatagram(42)
	a.Send(dgram, addrB)

	aOut := drainFrames(a)
	require.Len(t, aOut, 1)
	require.Equal(t, ethernet.Broadcast, aOut[0].Destination)

	_, ok := b.Receive(aOut[0])
	require.False(t, ok)

	bOut := drainFrames(b)
	require.Len(t, bOut, 1)
	require.Equal(t, hwA, bOut[0].Destination)

	_, ok = a.Receive(bOut[0])
	require.False(t, ok)

	frames := drainFrames(a)
	require.Len(t, frames, 1)
	require.Equal(t, hwB, frames[0].Destination)
	require.Empty(t, cmp.Diff(dgram, parseDatagram(t, frames[0]), cmpopts.EquateComparable(netip.Addr{})))
	require.Empty(t, a.Pending())

	// B overheard the broadcast, so it knows A as well.
	bNeighbours := b.Neighbours()
	require.Len(t, bNeighbours, 1)
	require.Equal(t, addrA, bNeighbours[0].Addr)
	require.Equal(t, hwA, bNeighbours[0].LinkAddr)
}

func TestRequestFromPendingPeerFlushesQueue(t *testing.T) {
	iface := New(nil, hwA, addrA)

	first := newTestDatagram(1)
	second := newTestDatagram(2)
	iface.Send(first, addrB)
	iface.Send(second, addrB)

	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, arp.OperationRequest, parseMessage(t, frames[0]).Operation)

	// B broadcasts its own request before ever answering ours. A request
	// names the sender's binding just as well as a reply, so it resolves
	// B and drains its queue, reply first.
	_, ok := iface.Receive(arpFrame(t, arp.NewRequest(hwB, addrB, addrA), ethernet.Broadcast))
	require.False(t, ok)

	frames = drainFrames(iface)
	require.Len(t, frames, 3)
	require.Equal(t, arp.OperationReply, parseMessage(t, frames[0]).Operation)
	for _, frame := range frames {
		require.Equal(t, hwB, frame.Destination)
	}
	require.Empty(t, cmp.Diff(first, parseDatagram(t, frames[1]), cmpopts.EquateComparable(netip.Addr{})))
	require.Empty(t, cmp.Diff(second, parseDatagram(t, frames[2]), cmpopts.EquateComparable(netip.Addr{})))

	require.Empty(t, iface.Pending())
}

func TestCrossResolution(t *testing.T) {
	a := New(nil, hwA, addrA)
	b := New(nil, hwB, addrB)

	toB := newTestDatagram(1)
	toA := newTestDatagram(2)
	toA.Src, toA.Dst = addrB, addrA

	a.Send(toB, addrB)
	b.Send(toA, addrA)

	aRequests := drainFrames(a)
	bRequests := drainFrames(b)
	require.Len(t, aRequests, 1)
	require.Len(t, bRequests, 1)

	// Each request doubles as the answer the other station was waiting
	// for, so the parked datagram follows the reply out.
	_, ok := a.Receive(bRequests[0])
	require.False(t, ok)
	aOut := drainFrames(a)
	require.Len(t, aOut, 2)
	require.Equal(t, arp.OperationReply, parseMessage(t, aOut[0]).Operation)
	require.Empty(t, cmp.Diff(toB, parseDatagram(t, aOut[1]), cmpopts.EquateComparable(netip.Addr{})))
	require.Empty(t, a.Pending())

	_, ok = b.Receive(aRequests[0])
	require.False(t, ok)
	bOut := drainFrames(b)
	require.Len(t, bOut, 2)
	require.Equal(t, arp.OperationReply, parseMessage(t, bOut[0]).Operation)
	require.Empty(t, cmp.Diff(toA, parseDatagram(t, bOut[1]), cmpopts.EquateComparable(netip.Addr{})))
	require.Empty(t, b.Pending())

	// The flushed datagrams arrive like any data frame.
	got, ok := b.Receive(aOut[1])
	require.True(t, ok)
	require.Empty(t, cmp.Diff(toB, got, cmpopts.EquateComparable(netip.Addr{})))
	got, ok = a.Receive(bOut[1])
	require.True(t, ok)
	require.Empty(t, cmp.Diff(toA, got, cmpopts.EquateComparable(netip.Addr{})))
}

func TestPendingByteCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPendingBytes = 100 * datasize.B
	iface := New(cfg, hwA, addrA)

	first := newTestDatagram(1)
	first.Payload = bytes.Repeat([]byte{0xee}, 50) // 70 bytes on the wire
	second := first
	second.ID = 2

	iface.Send(first, addrB)
	iface.Send(second, addrB)
	require.Len(t, drainFrames(iface), 1) // just the request
	require.Equal(t, uint64(1), iface.Stats().Dropped)

	iface.Receive(arpFrame(t, arp.NewReply(hwB, addrB, hwA, addrA), hwA))

	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, uint16(1), parseDatagram(t, frames[0]).ID)
}

func TestAddNeighbourFlushesPending(t *testing.T) {
	iface := New(nil, hwA, addrA)

	iface.Send(newTestDatagram(1), addrB)
	require.Len(t, drainFrames(iface), 1)

	iface.AddNeighbour(addrB, hwB)

	frames := drainFrames(iface)
	require.Len(t, frames, 1)
	require.Equal(t, hwB, frames[0].Destination)
	require.Empty(t, iface.Pending())
}

func TestStatsAccounting(t *testing.T) {
	iface := New(nil, hwA, addrA)

	iface.Send(newTestDatagram(1), addrB)
	iface.Receive(arpFrame(t, arp.NewReply(hwB, addrB, hwA, addrA), hwA))

	dgram := newTestDatagram(2)
	payload, err := dgram.Marshal()
	require.NoError(t, err)
	iface.Receive(ethernet.Frame{Destination: hwA, Source: hwB, Type: ethernet.TypeIPv4, Payload: payload})
	iface.Receive(ethernet.Frame{Destination: hwC, Source: hwB, Type: ethernet.TypeIPv4, Payload: payload})

	want := Stats{
		TxFrames:    2, // the request and the flushed datagram
		RxFrames:    2,
		RxDatagrams: 1,
		ARPRequests: 1,
		Learned:     1,
		Discarded:   1,
	}
	require.Empty(t, cmp.Diff(want, iface.Stats()))
}
