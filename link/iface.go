// Package link implements the link-layer adaptation point of the stack: it
// turns IP datagrams into Ethernet frames, resolving next-hop hardware
// addresses over ARP, buffers datagrams while a resolution is outstanding,
// answers resolution requests from peers, and ages out stale state.
package link

import (
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/ethane-platform/ethane/arp"
	"github.com/ethane-platform/ethane/ethernet"
	"github.com/ethane-platform/ethane/ipv4"
)

// Option is a function that configures an interface.
type Option func(*options)

// WithLog configures the interface with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Interface is one station on an Ethernet segment.
//
// All state is owned by the instance: the neighbour cache, the table of
// resolutions in flight with their queued datagrams, the outbound frame
// queue and the interface clock. An Interface performs no locking and
// starts no goroutines; the driver owns it and must serialize Send,
// Receive, Tick and PollFrame. None of these operations blocks.
type Interface struct {
	cfg *Config
	log *zap.SugaredLogger

	hwAddr net.HardwareAddr
	addr   netip.Addr

	// clock is interface time: it starts at zero and moves only when the
	// driver calls Tick. Every TTL comparison is relative to it.
	clock time.Duration

	neighbours *neighbourCache
	pending    *pendingTable
	outbound   *frameQueue

	stats Stats
}

// New creates an interface owning the given identity. A nil cfg means
// DefaultConfig.
func New(cfg *Config, hwAddr net.HardwareAddr, addr netip.Addr, options ...Option) *Interface {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Interface{
		cfg:        cfg,
		log:        opts.Log,
		hwAddr:     hwAddr,
		addr:       addr,
		neighbours: newNeighbourCache(),
		pending:    newPendingTable(),
		outbound:   &frameQueue{},
	}
}

// HWAddr returns the interface's hardware address.
func (i *Interface) HWAddr() net.HardwareAddr {
	return i.hwAddr
}

// Addr returns the interface's protocol address.
func (i *Interface) Addr() netip.Addr {
	return i.addr
}

// Send queues dgram for delivery to the station holding nextHop.
//
// With a cached binding the datagram leaves as a frame immediately. An
// unknown next hop triggers a single broadcast resolution request;
// datagrams submitted while that resolution is outstanding queue up behind
// it and no duplicate request is sent. Send never fails: what cannot be
// delivered is eventually dropped.
func (i *Interface) Send(dgram ipv4.Datagram, nextHop netip.Addr) {
	if linkAddr, ok := i.neighbours.Lookup(nextHop); ok {
		i.sendDatagram(dgram, linkAddr)
		return
	}

	if i.pending.Outstanding(nextHop) {
		if !i.pending.Append(nextHop, dgram, i.cfg.MaxPendingBytes) {
			i.stats.Dropped++
			i.log.Debugw("pending queue over capacity, datagram dropped",
				zap.Stringer("next_hop", nextHop),
				zap.Stringer("datagram", dgram),
			)
		}
		return
	}

	request := arp.NewRequest(i.hwAddr, i.addr, nextHop)
	i.sendMessage(request, ethernet.Broadcast)
	i.stats.ARPRequests++
	i.pending.Open(nextHop, dgram, i.clock)

	i.log.Debugw("resolving next hop", zap.Stringer("next_hop", nextHop))
}

// Receive accepts one inbound frame from the lower layer.
//
// An IPv4 frame addressed to this interface surfaces its datagram to the
// caller; that is the only case returning ok. ARP frames are absorbed: the
// sender's binding is learned, a request for the local address is answered,
// and datagrams waiting for the sender are flushed. Frames for other
// stations and payloads that do not decode are discarded silently.
func (i *Interface) Receive(frame ethernet.Frame) (ipv4.Datagram, bool) {
	if !ethernet.EqualHW(frame.Destination, i.hwAddr) && !ethernet.IsBroadcast(frame.Destination) {
		i.stats.Discarded++
		return ipv4.Datagram{}, false
	}
	i.stats.RxFrames++

	switch frame.Type {
	case ethernet.TypeIPv4:
		dgram, err := ipv4.Parse(frame.Payload)
		if err != nil {
			i.stats.Discarded++
			i.log.Debugw("discarding undecodable datagram", zap.Error(err))
			return ipv4.Datagram{}, false
		}

		i.stats.RxDatagrams++
		return dgram, true
	case ethernet.TypeARP:
		message, err := arp.Parse(frame.Payload)
		if err != nil {
			i.stats.Discarded++
			i.log.Debugw("discarding undecodable resolution message", zap.Error(err))
			return ipv4.Datagram{}, false
		}

		i.handleMessage(message)
	default:
		i.stats.Discarded++
	}

	return ipv4.Datagram{}, false
}

// handleMessage absorbs one resolution message.
func (i *Interface) handleMessage(m arp.Message) {
	// Any valid message teaches us the sender's binding, solicited or not.
	i.neighbours.Learn(m.SenderAddr, m.SenderLinkAddr, i.clock)
	i.stats.Learned++

	if m.Operation == arp.OperationRequest && m.TargetAddr == i.addr {
		reply := arp.NewReply(i.hwAddr, i.addr, m.SenderLinkAddr, m.SenderAddr)
		i.sendMessage(reply, m.SenderLinkAddr)
		i.stats.ARPReplies++

		i.log.Debugw("answered resolution request", zap.Stringer("request", m))
	}

	// The sender may be the very station an outstanding resolution was
	// waiting for; its request reveals the address just as well as a
	// reply would.
	i.flushPending(m.SenderAddr, m.SenderLinkAddr)
}

// flushPending emits everything queued for addr once its hardware address
// became known, removing the resolution.
func (i *Interface) flushPending(addr netip.Addr, linkAddr net.HardwareAddr) {
	datagrams, ok := i.pending.Take(addr)
	if !ok {
		return
	}

	i.log.Debugw("next hop resolved",
		zap.Stringer("next_hop", addr),
		zap.Stringer("link_addr", linkAddr),
		zap.Int("flushed", len(datagrams)),
	)
	for _, dgram := range datagrams {
		i.sendDatagram(dgram, linkAddr)
	}
}

// Tick advances the interface clock by elapsed and expires stale state:
// neighbour bindings older than CacheTTL and resolutions outstanding longer
// than ResolveTTL. Datagrams queued behind an expired resolution are
// dropped silently; the upper layer owns retransmission.
func (i *Interface) Tick(elapsed time.Duration) {
	i.clock += elapsed

	if purged := i.neighbours.Sweep(i.clock, i.cfg.CacheTTL); purged > 0 {
		i.log.Debugw("expired neighbour bindings", zap.Int("count", purged))
	}
	if dropped := i.pending.Sweep(i.clock, i.cfg.ResolveTTL); dropped > 0 {
		i.stats.Dropped += uint64(dropped)
		i.log.Debugw("expired resolutions", zap.Int("datagrams_dropped", dropped))
	}
}

// PollFrame removes and returns the oldest frame ready for the lower layer,
// if any. Frames appear in exactly the order operations produced them.
func (i *Interface) PollFrame() (ethernet.Frame, bool) {
	return i.outbound.Pop()
}

// AddNeighbour seeds the neighbour cache with a binding, exactly as if it
// had just been learned from the peer: the binding is restamped and any
// datagrams waiting for addr are flushed.
func (i *Interface) AddNeighbour(addr netip.Addr, linkAddr net.HardwareAddr) {
	i.neighbours.Learn(addr, linkAddr, i.clock)
	i.flushPending(addr, linkAddr)
}

// Neighbours returns a snapshot of the neighbour cache.
func (i *Interface) Neighbours() []NeighbourEntry {
	return i.neighbours.Snapshot(i.clock)
}

// Pending returns a snapshot of the resolutions in flight.
func (i *Interface) Pending() []PendingSummary {
	return i.pending.Snapshot(i.clock)
}

// QueueLen returns the number of frames waiting to be drained.
func (i *Interface) QueueLen() int {
	return i.outbound.Len()
}

// Stats returns a copy of the interface counters.
func (i *Interface) Stats() Stats {
	return i.stats
}

func (i *Interface) sendDatagram(dgram ipv4.Datagram, dst net.HardwareAddr) {
	payload, err := dgram.Marshal()
	if err != nil {
		i.stats.Dropped++
		i.log.Warnw("failed to serialize datagram", zap.Error(err))
		return
	}

	i.outbound.Push(ethernet.Frame{
		Destination: dst,
		Source:      i.hwAddr,
		Type:        ethernet.TypeIPv4,
		Payload:     payload,
	})
	i.stats.TxFrames++
}

func (i *Interface) sendMessage(m arp.Message, dst net.HardwareAddr) {
	payload, err := m.Marshal()
	if err != nil {
		i.log.Warnw("failed to serialize resolution message", zap.Error(err))
		return
	}

	i.outbound.Push(ethernet.Frame{
		Destination: dst,
		Source:      i.hwAddr,
		Type:        ethernet.TypeARP,
		Payload:     payload,
	})
	i.stats.TxFrames++
}
