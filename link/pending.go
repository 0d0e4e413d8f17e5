package link

import (
	"net/netip"
	"slices"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/ethane-platform/ethane/ipv4"
)

// PendingSummary is a snapshot of one outstanding resolution.
type PendingSummary struct {
	// Addr is the protocol address being resolved.
	Addr netip.Addr
	// Queued is the number of datagrams waiting for the resolution.
	Queued int
	// Bytes is the serialized size of the queued datagrams.
	Bytes datasize.ByteSize
	// Age is how long the resolution has been outstanding.
	Age time.Duration
}

type pendingResolution struct {
	requestedAt time.Duration
	datagrams   []ipv4.Datagram
	bytes       datasize.ByteSize
}

// pendingTable tracks resolutions in flight, keyed by the unresolved
// protocol address.
//
// An address is either absent or pending; there is no resolved resting
// state. Success drains the entry into frames and removes it, expiry drops
// it together with everything queued behind it.
type pendingTable struct {
	entries map[netip.Addr]*pendingResolution
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: map[netip.Addr]*pendingResolution{},
	}
}

// Outstanding reports whether a request for addr is already in flight.
func (t *pendingTable) Outstanding(addr netip.Addr) bool {
	_, ok := t.entries[addr]
	return ok
}

// Open records a fresh resolution for addr, with dgram as the first queued
// datagram. Callers must have checked Outstanding first.
func (t *pendingTable) Open(addr netip.Addr, dgram ipv4.Datagram, now time.Duration) {
	t.entries[addr] = &pendingResolution{
		requestedAt: now,
		datagrams:   []ipv4.Datagram{dgram},
		bytes:       datasize.ByteSize(dgram.Size()),
	}
}

// Append queues one more datagram behind the outstanding resolution for
// addr. A non-zero maxBytes bounds the queue; the datagram is rejected once
// the bound would be crossed.
func (t *pendingTable) Append(addr netip.Addr, dgram ipv4.Datagram, maxBytes datasize.ByteSize) bool {
	entry, ok := t.entries[addr]
	if !ok {
		return false
	}

	size := datasize.ByteSize(dgram.Size())
	if maxBytes > 0 && entry.bytes+size > maxBytes {
		return false
	}

	entry.datagrams = append(entry.datagrams, dgram)
	entry.bytes += size
	return true
}

// Take removes the resolution for addr and returns its queued datagrams in
// submission order.
func (t *pendingTable) Take(addr netip.Addr) ([]ipv4.Datagram, bool) {
	entry, ok := t.entries[addr]
	if !ok {
		return nil, false
	}

	delete(t.entries, addr)
	return entry.datagrams, true
}

// Sweep drops every resolution whose request is older than ttl and returns
// the number of datagrams that went with them.
func (t *pendingTable) Sweep(now time.Duration, ttl time.Duration) int {
	var doomed []netip.Addr
	for addr, entry := range t.entries {
		if now-entry.requestedAt > ttl {
			doomed = append(doomed, addr)
		}
	}

	dropped := 0
	for _, addr := range doomed {
		dropped += len(t.entries[addr].datagrams)
		delete(t.entries, addr)
	}
	return dropped
}

// Snapshot returns the outstanding resolutions ordered by protocol address.
func (t *pendingTable) Snapshot(now time.Duration) []PendingSummary {
	entries := make([]PendingSummary, 0, len(t.entries))
	for addr, entry := range t.entries {
		entries = append(entries, PendingSummary{
			Addr:   addr,
			Queued: len(entry.datagrams),
			Bytes:  entry.bytes,
			Age:    now - entry.requestedAt,
		})
	}

	slices.SortFunc(entries, func(a, b PendingSummary) int {
		return a.Addr.Compare(b.Addr)
	})
	return entries
}
