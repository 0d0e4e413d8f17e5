package neigh

import (
	"context"
	"fmt"
	"time"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Run watches the kernel neighbour table until the specified context is
// canceled. A full snapshot is published at start, after every
// new-neighbour event, and periodically.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Debugf("starting neighbour monitor")
	defer m.log.Debugf("stopped neighbour monitor")

	if err := m.resync(); err != nil {
		return err
	}

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return m.runSubscription(ctx)
	})
	wg.Go(func() error {
		return m.runPeriodicResync(ctx)
	})

	return wg.Wait()
}

func (m *Monitor) runSubscription(ctx context.Context) error {
	updates := make(chan netlink.NeighUpdate, 1)
	opts := netlink.NeighSubscribeOptions{}
	if err := netlink.NeighSubscribeWithOptions(updates, ctx.Done(), opts); err != nil {
		return fmt.Errorf("failed to subscribe to neighbour updates: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			m.processUpdate(update)
		}
	}
}

func (m *Monitor) runPeriodicResync(ctx context.Context) error {
	timer := time.NewTicker(m.updateInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := m.resync(); err != nil {
				m.log.Warnw("failed to resync neighbours", zap.Error(err))
			}
		}
	}
}

func (m *Monitor) processUpdate(update netlink.NeighUpdate) {
	m.log.Debugw("processing neighbour update",
		zap.Int("link_index", update.LinkIndex),
		zap.Stringer("state", State(update.State)),
		zap.Stringer("addr", update.IP),
		zap.Stringer("lladdr", update.HardwareAddr),
	)

	switch update.Type {
	case unix.RTM_NEWNEIGH:
		if entry, ok := makeEntry(update.IP, update.HardwareAddr, State(update.State)); ok {
			m.publish(entry)
		}
	case unix.RTM_DELNEIGH:
		// Deletion events are not processed to avoid flaps; stale
		// bindings age out of the interface cache on their own.
	default:
		m.log.Warnf("received unexpected neighbour update type: %d", update.Type)
	}
}

func (m *Monitor) resync() error {
	neighbours, err := netlink.NeighList(0, netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("failed to list neighbours: %w", err)
	}

	usable := 0
	for _, neighbour := range neighbours {
		entry, ok := makeEntry(neighbour.IP, neighbour.HardwareAddr, State(neighbour.State))
		if !ok {
			continue
		}
		m.publish(entry)
		usable++
	}

	m.log.Infow("resynced neighbours", "total", len(neighbours), "usable", usable)
	return nil
}
