package vnet

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gopacket/gopacket/layers"

	"github.com/ethane-platform/ethane/ipv4"
)

// flow synthesizes periodic filler traffic from one host toward a fixed
// destination. The first datagram is due one period after the segment
// starts, not at time zero.
type flow struct {
	from   netip.Addr
	to     netip.Addr
	every  time.Duration
	size   datasize.ByteSize
	nextAt time.Duration
	seq    uint16
}

func newFlow(from netip.Addr, cfg FlowConfig) (*flow, error) {
	if !cfg.To.Is4() {
		return nil, fmt.Errorf("flow destination %q must be an IPv4 address", cfg.To)
	}
	if cfg.Every <= 0 {
		return nil, fmt.Errorf("flow period %v must be positive", cfg.Every)
	}

	return &flow{
		from:   from,
		to:     cfg.To,
		every:  cfg.Every,
		size:   cfg.Size,
		nextAt: cfg.Every,
	}, nil
}

// due returns the datagrams the flow owes at the given clock, one per
// elapsed period.
func (f *flow) due(now time.Duration) []ipv4.Datagram {
	var out []ipv4.Datagram
	for f.nextAt <= now {
		f.seq++
		out = append(out, ipv4.Datagram{
			Src:      f.from,
			Dst:      f.to,
			Protocol: layers.IPProtocolUDP,
			TTL:      64,
			ID:       f.seq,
			Payload:  make([]byte, f.size.Bytes()),
		})
		f.nextAt += f.every
	}
	return out
}
