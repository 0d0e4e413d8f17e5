package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ethane-platform/ethane/common/logging"
	"github.com/ethane-platform/ethane/stand"
)

var runCmdArgs struct {
	configPath string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulated stand with the inspection API",
	Long: "Run a segment of simulated hosts that resolve each other over ARP " +
		"and exchange the datagrams their flows generate. Without a " +
		"configuration file a builtin two-host demo stand is used.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStand(); err != nil {
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
	runCmd.Flags().StringVarP(&runCmdArgs.configPath, "config", "c", "", "path to the YAML configuration file")
}

func runStand() error {
	cfg := stand.DemoConfig()
	if runCmdArgs.configPath != "" {
		var err error
		if cfg, err = stand.LoadConfig(runCmdArgs.configPath); err != nil {
			return err
		}
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	service, err := stand.New(cfg, stand.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to initialize the stand: %w", err)
	}

	wg, ctx := errgroup.WithContext(context.Background())
	wg.Go(func() error {
		return service.Run(ctx)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}
