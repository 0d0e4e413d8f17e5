// Package tap bridges a link interface to a kernel TAP device, making the
// host kernel and anything bridged to the device the peers on the segment.
package tap

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/songgao/water"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ethane-platform/ethane/ethernet"
	"github.com/ethane-platform/ethane/link"
	"github.com/ethane-platform/ethane/neigh"
)

const (
	// readBufSize fits an MTU-sized payload plus the Ethernet header.
	readBufSize = 2048
	// frameBacklog bounds frames read off the device but not yet handled.
	frameBacklog = 64
)

// Config configures a tap bridge.
type Config struct {
	// Addr is the protocol address the bridged interface answers for.
	Addr netip.Addr

	// HWAddr is the interface's hardware address. Empty picks a random
	// locally administered one.
	HWAddr net.HardwareAddr

	// TickInterval is how often interface time advances.
	TickInterval time.Duration

	// Link configures the interface's cache and resolution TTLs.
	Link *link.Config
}

// DefaultConfig returns the bridge configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: 50 * time.Millisecond,
	}
}

// Option is a function that configures the pump.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithMonitor seeds the interface's resolution cache from a host
// neighbour monitor while the pump runs.
func WithMonitor(monitor *neigh.Monitor) Option {
	return func(o *options) {
		o.Monitor = monitor
	}
}

type options struct {
	Log     *zap.SugaredLogger
	Monitor *neigh.Monitor
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Pump owns one link interface and runs it against a kernel TAP device.
//
// A reader goroutine feeds raw frames to the owner loop; the owner loop is
// the only goroutine touching the interface, which keeps the interface
// lock-free. The device is reopened with exponential backoff whenever
// opening, reading, or writing fails.
type Pump struct {
	iface        *link.Interface
	monitor      *neigh.Monitor
	tickInterval time.Duration
	log          *zap.SugaredLogger
}

// New creates a pump. The device itself is opened by Run.
func New(cfg *Config, options ...Option) (*Pump, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	if !cfg.Addr.Is4() {
		return nil, fmt.Errorf("interface address %q must be IPv4", cfg.Addr)
	}

	hwAddr := cfg.HWAddr
	if len(hwAddr) == 0 {
		var err error
		if hwAddr, err = randomHWAddr(); err != nil {
			return nil, err
		}
	}
	if len(hwAddr) != 6 {
		return nil, fmt.Errorf("hardware address %q must be EUI-48", hwAddr)
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultConfig().TickInterval
	}

	return &Pump{
		iface:        link.New(cfg.Link, hwAddr, cfg.Addr, link.WithLog(opts.Log)),
		monitor:      opts.Monitor,
		tickInterval: tickInterval,
		log:          opts.Log,
	}, nil
}

// HWAddr returns the bridged interface's hardware address.
func (p *Pump) HWAddr() net.HardwareAddr {
	return p.iface.HWAddr()
}

// Run bridges the interface to the device until the context is canceled.
func (p *Pump) Run(ctx context.Context) error {
	p.log.Infow("running tap bridge",
		"addr", p.iface.Addr(),
		"hwaddr", p.iface.HWAddr(),
	)

	wg, ctx := errgroup.WithContext(ctx)
	if p.monitor != nil {
		wg.Go(func() error {
			return p.monitor.Run(ctx)
		})
	}
	wg.Go(func() error {
		return p.runDevice(ctx)
	})

	return wg.Wait()
}

func (p *Pump) runDevice(ctx context.Context) error {
	for {
		device, err := p.open(ctx)
		if err != nil {
			return err
		}

		err = p.pump(ctx, device)
		_ = device.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Warnw("device pump stopped, reopening", zap.Error(err))
	}
}

// open creates a TAP device, retrying with exponential backoff until it
// succeeds or the context is canceled.
func (p *Pump) open(ctx context.Context) (*water.Interface, error) {
	ticker := backoff.NewTicker(&backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
	})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			device, err := water.New(water.Config{DeviceType: water.TAP})
			if err != nil {
				p.log.Warnw("failed to open tap device, retrying", zap.Error(err))
				continue
			}

			p.log.Infow("opened tap device", "name", device.Name())
			return device, nil
		}
	}
}

// pump is the owner loop: every interface operation happens here.
func (p *Pump) pump(ctx context.Context, device *water.Interface) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan ethernet.Frame, frameBacklog)
	readErr := make(chan error, 1)
	go p.read(readCtx, device, frames, readErr)

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	var updates <-chan neigh.Entry
	if p.monitor != nil {
		updates = p.monitor.Updates()
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case frame := <-frames:
			if dgram, ok := p.iface.Receive(frame); ok {
				p.log.Infow("received datagram", "datagram", dgram)
			}
		case entry := <-updates:
			p.iface.AddNeighbour(entry.Addr, entry.LinkAddr)
		case now := <-ticker.C:
			p.iface.Tick(now.Sub(last))
			last = now
		}

		if err := p.flush(device); err != nil {
			return err
		}
	}
}

// read feeds decodable frames from the device to the owner loop.
func (p *Pump) read(ctx context.Context, device *water.Interface, frames chan<- ethernet.Frame, readErr chan<- error) {
	buf := make([]byte, readBufSize)
	for {
		n, err := device.Read(buf)
		if err != nil {
			readErr <- fmt.Errorf("failed to read from tap device: %w", err)
			return
		}

		frame, err := ethernet.Parse(bytes.Clone(buf[:n]))
		if err != nil {
			p.log.Debugw("dropping undecodable frame", zap.Error(err))
			continue
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// flush writes every queued outbound frame to the device.
func (p *Pump) flush(device *water.Interface) error {
	for {
		frame, ok := p.iface.PollFrame()
		if !ok {
			return nil
		}

		raw, err := frame.Marshal()
		if err != nil {
			p.log.Warnw("failed to marshal outbound frame", zap.Error(err))
			continue
		}
		if _, err := device.Write(raw); err != nil {
			return fmt.Errorf("failed to write to tap device: %w", err)
		}
	}
}

// randomHWAddr generates a locally administered unicast EUI-48 address.
func randomHWAddr() (net.HardwareAddr, error) {
	addr := make(net.HardwareAddr, 6)
	if _, err := rand.Read(addr); err != nil {
		return nil, fmt.Errorf("failed to generate hardware address: %w", err)
	}

	addr[0] = addr[0]&^0x01 | 0x02
	return addr, nil
}
