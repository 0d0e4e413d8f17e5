// Package vnet simulates an Ethernet broadcast domain in memory.
//
// A Segment behaves like a hub: every frame emitted by an attached port is
// offered to every other port, and the interfaces do their own destination
// filtering. The segment drives the attached interfaces and serializes all
// access to them under its mutex, which is what lets the interfaces
// themselves stay lock-free.
package vnet

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ethane-platform/ethane/ethernet"
	"github.com/ethane-platform/ethane/ipv4"
	"github.com/ethane-platform/ethane/link"
)

// maxSettleRounds bounds the settle loop of the background Run ticker.
const maxSettleRounds = 64

type options struct {
	log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		log: zap.NewNop().Sugar(),
	}
}

// Option configures a segment.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Port is one station's attachment point on a segment.
type Port struct {
	name     string
	iface    *link.Interface
	flows    []*flow
	handler  func(ipv4.Datagram)
	received uint64
}

// Name returns the name the port was attached under.
func (p *Port) Name() string {
	return p.name
}

// Handle registers a callback invoked for every datagram the port's
// interface surfaces. It must be set before the segment starts moving
// frames.
func (p *Port) Handle(fn func(ipv4.Datagram)) {
	p.handler = fn
}

// PortState is a point-in-time snapshot of one port.
type PortState struct {
	Name       string
	HWAddr     net.HardwareAddr
	Addr       netip.Addr
	QueueLen   int
	Received   uint64
	Stats      link.Stats
	Neighbours []link.NeighbourEntry
	Pending    []link.PendingSummary
}

// Segment is an in-memory broadcast domain.
type Segment struct {
	log *zap.SugaredLogger

	mu       sync.Mutex
	interval time.Duration
	clock    time.Duration
	ports    []*Port
	byName   map[string]*Port
	capture  *capture
}

// New creates an empty segment. Hosts listed in the config are not attached
// here; see AttachHost.
func New(cfg *Config, options ...Option) (*Segment, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	s := &Segment{
		log:      opts.log,
		interval: cfg.StepInterval,
		byName:   map[string]*Port{},
	}
	if s.interval <= 0 {
		s.interval = DefaultConfig().StepInterval
	}

	if cfg.Pcap != "" {
		capture, err := newFileCapture(cfg.Pcap)
		if err != nil {
			return nil, err
		}
		s.capture = capture
	}
	return s, nil
}

// Attach adds an interface to the segment under the given name.
func (s *Segment) Attach(name string, iface *link.Interface) (*Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachLocked(name, iface, nil)
}

// AttachHost builds an interface from a host description, seeds its static
// neighbours, and attaches it together with its traffic flows. All hosts
// share one link configuration.
func (s *Segment) AttachHost(cfg PortConfig, linkCfg *link.Config) (*Port, error) {
	if len(cfg.HWAddr.HardwareAddr) == 0 {
		return nil, fmt.Errorf("host %q: hardware address is required", cfg.Name)
	}
	if !cfg.Addr.Is4() {
		return nil, fmt.Errorf("host %q: address %q must be IPv4", cfg.Name, cfg.Addr)
	}

	iface := link.New(linkCfg, cfg.HWAddr.HardwareAddr, cfg.Addr, link.WithLog(s.log.Named(cfg.Name)))
	for _, neighbour := range cfg.Neighbours {
		iface.AddNeighbour(neighbour.Addr, neighbour.LinkAddr.HardwareAddr)
	}

	flows := make([]*flow, 0, len(cfg.Flows))
	for idx, flowCfg := range cfg.Flows {
		f, err := newFlow(cfg.Addr, flowCfg)
		if err != nil {
			return nil, fmt.Errorf("host %q: flow #%d: %w", cfg.Name, idx, err)
		}
		flows = append(flows, f)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachLocked(cfg.Name, iface, flows)
}

func (s *Segment) attachLocked(name string, iface *link.Interface, flows []*flow) (*Port, error) {
	if name == "" {
		return nil, fmt.Errorf("port name must not be empty")
	}
	if _, ok := s.byName[name]; ok {
		return nil, fmt.Errorf("port %q is already attached", name)
	}

	port := &Port{
		name:  name,
		iface: iface,
		flows: flows,
	}
	s.ports = append(s.ports, port)
	s.byName[name] = port

	s.log.Infow("attached port",
		"name", name,
		"hwaddr", iface.HWAddr(),
		"addr", iface.Addr(),
	)
	return port, nil
}

// Tick advances simulated time on the segment and every attached interface.
func (s *Segment) Tick(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked(elapsed)
}

func (s *Segment) tickLocked(elapsed time.Duration) {
	s.clock += elapsed
	for _, port := range s.ports {
		port.iface.Tick(elapsed)
	}
}

// Step runs one synchronous round: due flows fire, then every frame queued
// on any port is delivered to all other ports. It reports how many frames
// moved.
func (s *Segment) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked()
}

func (s *Segment) stepLocked() int {
	for _, port := range s.ports {
		for _, f := range port.flows {
			for _, dgram := range f.due(s.clock) {
				port.iface.Send(dgram, f.to)
			}
		}
	}

	moved := 0
	for _, src := range s.ports {
		for {
			frame, ok := src.iface.PollFrame()
			if !ok {
				break
			}
			moved++
			s.deliverLocked(src, frame)
		}
	}
	return moved
}

// deliverLocked offers one frame to every port except its source. A hub
// does not switch: frames for unknown destinations still reach everyone.
func (s *Segment) deliverLocked(src *Port, frame ethernet.Frame) {
	s.log.Debugw("moving frame", "from", src.Name(), zap.Stringer("frame", frame))
	s.captureLocked(frame)

	for _, dst := range s.ports {
		if dst == src {
			continue
		}
		dgram, ok := dst.iface.Receive(frame)
		if !ok {
			continue
		}

		dst.received++
		if dst.handler != nil {
			dst.handler(dgram)
		}
		s.log.Debugw("delivered datagram", "port", dst.name, "datagram", dgram)
	}
}

func (s *Segment) captureLocked(frame ethernet.Frame) {
	if s.capture == nil {
		return
	}

	raw, err := frame.Marshal()
	if err != nil {
		s.log.Warnw("failed to marshal frame for capture", zap.Error(err))
		return
	}
	if err := s.capture.WritePacket(raw, s.clock); err != nil {
		s.log.Warnw("failed to capture frame", zap.Error(err))
	}
}

// Settle steps the segment until a round moves no frames, so that one call
// completes a full request/reply/flush exchange. The number of rounds is
// bounded to keep a misbehaving topology from spinning forever. It reports
// the total number of frames moved.
func (s *Segment) Settle(maxRounds int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settleLocked(maxRounds)
}

func (s *Segment) settleLocked(maxRounds int) int {
	total := 0
	for round := 0; round < maxRounds; round++ {
		moved := s.stepLocked()
		if moved == 0 {
			break
		}
		total += moved
	}
	return total
}

// Run ticks and settles the segment on its configured interval until the
// context is canceled.
func (s *Segment) Run(ctx context.Context) error {
	s.log.Infow("running segment", "interval", s.interval, "ports", len(s.ports))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Close(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			s.tickLocked(s.interval)
			s.settleLocked(maxSettleRounds)
			s.mu.Unlock()
		}
	}
}

// Close flushes and closes the capture, if one is attached.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

// Clock returns the current simulated time.
func (s *Segment) Clock() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Ports returns a snapshot of every attached port, in attach order.
func (s *Segment) Ports() []PortState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]PortState, 0, len(s.ports))
	for _, port := range s.ports {
		states = append(states, s.portStateLocked(port))
	}
	return states
}

// Port returns a snapshot of one port by name.
func (s *Segment) Port(name string) (PortState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	port, ok := s.byName[name]
	if !ok {
		return PortState{}, false
	}
	return s.portStateLocked(port), true
}

func (s *Segment) portStateLocked(port *Port) PortState {
	iface := port.iface
	return PortState{
		Name:       port.name,
		HWAddr:     iface.HWAddr(),
		Addr:       iface.Addr(),
		QueueLen:   iface.QueueLen(),
		Received:   port.received,
		Stats:      iface.Stats(),
		Neighbours: iface.Neighbours(),
		Pending:    iface.Pending(),
	}
}
