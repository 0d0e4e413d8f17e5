package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ethane-platform/ethane/common/logging"
	"github.com/ethane-platform/ethane/neigh"
	"github.com/ethane-platform/ethane/tap"
)

var tapCmdArgs struct {
	addr           string
	hwAddr         string
	tickInterval   time.Duration
	logLevel       string
	seedNeighbours bool
}

var tapCmd = &cobra.Command{
	Use:   "tap",
	Short: "Bridge the link layer to a kernel TAP device",
	Long: "Attach a single interface to a freshly created TAP device. The " +
		"interface answers ARP requests for its address and delivers the " +
		"datagrams it receives, which makes the bridge reachable with " +
		"ordinary tools like ping once the device is configured.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTap(); err != nil {
			var interrupted Interrupted
			if errors.As(err, &interrupted) || errors.Is(err, context.Canceled) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	tapCmd.Flags().StringVar(&tapCmdArgs.addr, "addr", "", "IPv4 address the bridged interface answers for")
	tapCmd.Flags().StringVar(&tapCmdArgs.hwAddr, "hwaddr", "", "hardware address of the interface, random when omitted")
	tapCmd.Flags().DurationVar(&tapCmdArgs.tickInterval, "tick-interval", 50*time.Millisecond, "period between interface clock advances")
	tapCmd.Flags().StringVar(&tapCmdArgs.logLevel, "log-level", "info", "logging level")
	tapCmd.Flags().BoolVar(&tapCmdArgs.seedNeighbours, "seed-neighbours", false, "learn bindings from the kernel neighbour table (linux only)")
	tapCmd.MarkFlagRequired("addr")
}

func runTap() error {
	level, err := zapcore.ParseLevel(tapCmdArgs.logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse logging level: %w", err)
	}

	log, _, err := logging.Init(&logging.Config{Level: level})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	addr, err := netip.ParseAddr(tapCmdArgs.addr)
	if err != nil {
		return fmt.Errorf("failed to parse address: %w", err)
	}

	cfg := tap.DefaultConfig()
	cfg.Addr = addr
	cfg.TickInterval = tapCmdArgs.tickInterval
	if tapCmdArgs.hwAddr != "" {
		if cfg.HWAddr, err = net.ParseMAC(tapCmdArgs.hwAddr); err != nil {
			return fmt.Errorf("failed to parse hardware address: %w", err)
		}
	}

	options := []tap.Option{tap.WithLog(log)}
	if tapCmdArgs.seedNeighbours {
		monitor := neigh.NewMonitor(neigh.WithLog(log))
		options = append(options, tap.WithMonitor(monitor))
	}

	pump, err := tap.New(cfg, options...)
	if err != nil {
		return fmt.Errorf("failed to initialize the tap bridge: %w", err)
	}

	wg, ctx := errgroup.WithContext(context.Background())
	wg.Go(func() error {
		return pump.Run(ctx)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}
