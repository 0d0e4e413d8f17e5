// Package neigh feeds a link interface's resolution cache from the host
// kernel's neighbour table, so a bridged interface starts out with the
// host's view of the segment.
//
// The kernel table is reached over rtnetlink, which makes Run linux-only;
// the entry types and filtering are portable.
package neigh

import (
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"
)

// updateBacklog is the capacity of the updates channel. A consumer that
// lags further behind loses entries until the next resync repeats them.
const updateBacklog = 64

// State is a neighbour cache entry state, mirroring the kernel's NUD set.
type State uint16

const (
	StateNone       State = 0x00
	StateIncomplete State = 0x01
	StateReachable  State = 0x02
	StateStale      State = 0x04
	StateDelay      State = 0x08
	StateProbe      State = 0x10
	StateFailed     State = 0x20
	StateNoARP      State = 0x40
	StatePermanent  State = 0x80
)

// String returns the state's kernel name.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateIncomplete:
		return "INCOMPLETE"
	case StateReachable:
		return "REACHABLE"
	case StateStale:
		return "STALE"
	case StateDelay:
		return "DELAY"
	case StateProbe:
		return "PROBE"
	case StateFailed:
		return "FAILED"
	case StateNoARP:
		return "NOARP"
	case StatePermanent:
		return "PERMANENT"
	default:
		return "UNKNOWN"
	}
}

// Usable reports whether an entry in this state carries a hardware address
// the kernel still considers valid.
func (s State) Usable() bool {
	switch s {
	case StateReachable, StateStale, StateDelay, StateProbe, StatePermanent:
		return true
	default:
		return false
	}
}

// Entry is one usable neighbour binding observed on the host.
type Entry struct {
	// Addr is the neighbour's protocol address.
	Addr netip.Addr
	// LinkAddr is the neighbour's hardware address.
	LinkAddr net.HardwareAddr
	// State is the kernel state the entry was seen in.
	State State
}

// Option is a function that configures the neighbour monitor.
type Option func(*options)

// WithUpdateInterval configures the neighbour monitor with a force-resync
// interval.
func WithUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		o.UpdateInterval = interval
	}
}

// WithLog configures the neighbour monitor with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	UpdateInterval time.Duration
	Log            *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		UpdateInterval: 5 * time.Minute,
		Log:            zap.NewNop().Sugar(),
	}
}

// Monitor watches the host neighbour table and emits usable IPv4 entries.
//
// Entries are delivered both reactively, on new-neighbour events, and
// periodically from full table snapshots.
type Monitor struct {
	updates        chan Entry
	updateInterval time.Duration
	log            *zap.SugaredLogger
}

// NewMonitor creates a new neighbour monitor. Entries start flowing once
// Run is started.
func NewMonitor(options ...Option) *Monitor {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Monitor{
		updates:        make(chan Entry, updateBacklog),
		updateInterval: opts.UpdateInterval,
		log:            opts.Log,
	}
}

// Updates returns the channel usable neighbour entries are delivered on.
func (m *Monitor) Updates() <-chan Entry {
	return m.updates
}

// publish hands an entry to the consumer without ever blocking the
// monitor; an entry lost to a lagging consumer comes back with the next
// resync.
func (m *Monitor) publish(entry Entry) {
	select {
	case m.updates <- entry:
	default:
		m.log.Warnw("neighbour update dropped", "addr", entry.Addr)
	}
}

// makeEntry validates one raw neighbour table row. Only IPv4 entries with
// an EUI-48 hardware address in a usable state pass.
func makeEntry(ip net.IP, hw net.HardwareAddr, state State) (Entry, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return Entry{}, false
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return Entry{}, false
	}
	if len(hw) != 6 {
		return Entry{}, false
	}
	if !state.Usable() {
		return Entry{}, false
	}

	return Entry{
		Addr:     addr,
		LinkAddr: hw,
		State:    state,
	}, true
}
