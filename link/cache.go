package link

import (
	"net"
	"net/netip"
	"slices"
	"time"
)

// NeighbourEntry is a snapshot of one learned neighbour binding.
type NeighbourEntry struct {
	// Addr is the neighbour's protocol address.
	Addr netip.Addr
	// LinkAddr is the neighbour's hardware address.
	LinkAddr net.HardwareAddr
	// Age is how long ago the binding was learned, in interface time.
	Age time.Duration
}

type neighbour struct {
	linkAddr  net.HardwareAddr
	learnedAt time.Duration
}

// neighbourCache maps protocol addresses to learned hardware addresses.
type neighbourCache struct {
	entries map[netip.Addr]neighbour
}

func newNeighbourCache() *neighbourCache {
	return &neighbourCache{
		entries: map[netip.Addr]neighbour{},
	}
}

// Lookup returns the hardware address bound to addr, if any.
//
// Staleness is deliberately not checked here: a binding is served until the
// sweep removes it, even if it already outlived its TTL.
func (c *neighbourCache) Lookup(addr netip.Addr) (net.HardwareAddr, bool) {
	entry, ok := c.entries[addr]
	if !ok {
		return nil, false
	}
	return entry.linkAddr, true
}

// Learn inserts or overwrites the binding for addr, restamping its age.
// Advertisements are taken at face value; there is no defence against
// spoofed or conflicting bindings.
func (c *neighbourCache) Learn(addr netip.Addr, linkAddr net.HardwareAddr, now time.Duration) {
	c.entries[addr] = neighbour{
		linkAddr:  linkAddr,
		learnedAt: now,
	}
}

// Sweep removes every binding older than ttl and returns how many went.
func (c *neighbourCache) Sweep(now time.Duration, ttl time.Duration) int {
	var doomed []netip.Addr
	for addr, entry := range c.entries {
		if now-entry.learnedAt > ttl {
			doomed = append(doomed, addr)
		}
	}

	for _, addr := range doomed {
		delete(c.entries, addr)
	}
	return len(doomed)
}

// Snapshot returns the current bindings ordered by protocol address.
func (c *neighbourCache) Snapshot(now time.Duration) []NeighbourEntry {
	entries := make([]NeighbourEntry, 0, len(c.entries))
	for addr, entry := range c.entries {
		entries = append(entries, NeighbourEntry{
			Addr:     addr,
			LinkAddr: entry.linkAddr,
			Age:      now - entry.learnedAt,
		})
	}

	slices.SortFunc(entries, func(a, b NeighbourEntry) int {
		return a.Addr.Compare(b.Addr)
	})
	return entries
}
