package vnet

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/c2h5oh/datasize"
)

// HWAddr is a hardware address that parses itself from the usual
// colon-separated text form in yaml configs.
type HWAddr struct {
	net.HardwareAddr
}

func (a *HWAddr) UnmarshalText(text []byte) error {
	parsed, err := net.ParseMAC(string(text))
	if err != nil {
		return fmt.Errorf("failed to parse hardware address %q: %w", string(text), err)
	}

	a.HardwareAddr = parsed
	return nil
}

func (a HWAddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// NeighbourConfig statically seeds one binding into a host's resolution
// cache, like an "ip neigh add ... lladdr ..." entry.
type NeighbourConfig struct {
	Addr     netip.Addr `yaml:"addr"`
	LinkAddr HWAddr     `yaml:"lladdr"`
}

// FlowConfig describes a periodic traffic source originating at a host.
type FlowConfig struct {
	// To is the destination, and on this single-segment model also the
	// next hop, of the generated datagrams.
	To netip.Addr `yaml:"to"`

	// Every is the flow period in simulated time.
	Every time.Duration `yaml:"every"`

	// Size is the payload size of each generated datagram.
	Size datasize.ByteSize `yaml:"size"`
}

// PortConfig describes one simulated host attached to the segment.
type PortConfig struct {
	Name       string            `yaml:"name"`
	HWAddr     HWAddr            `yaml:"hwaddr"`
	Addr       netip.Addr        `yaml:"addr"`
	Neighbours []NeighbourConfig `yaml:"neighbours,omitempty"`
	Flows      []FlowConfig      `yaml:"flows,omitempty"`
}

// Config is the configuration of a simulated segment.
type Config struct {
	// StepInterval is the wall-clock period of the background Run loop.
	// Every period advances simulated time by the same amount.
	StepInterval time.Duration `yaml:"step_interval"`

	// Pcap is a path to record every delivered frame to, in pcap format.
	// Empty disables the capture.
	Pcap string `yaml:"pcap,omitempty"`

	// Hosts are the simulated stations attached at construction.
	Hosts []PortConfig `yaml:"hosts,omitempty"`
}

// DefaultConfig returns the segment configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		StepInterval: 10 * time.Millisecond,
	}
}
