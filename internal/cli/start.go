package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evolvd/evolvd/internal/control"
	"github.com/evolvd/evolvd/internal/discovery"
	"github.com/evolvd/evolvd/internal/eventbus"
	"github.com/evolvd/evolvd/internal/eventlog"
	"github.com/evolvd/evolvd/internal/genome"
	"github.com/evolvd/evolvd/internal/lineage"
	"github.com/evolvd/evolvd/internal/supervisor"
)

var (
	startConfigPath string
	startSeedDir    string
	startForce      bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the supervisor in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfigFlag(startConfigPath); err != nil {
			return err
		}
		cfg, err := loadConfigPath(startConfigPath)
		if err != nil {
			return err
		}
		if startSeedDir == "" {
			return fmt.Errorf("--seed is required on first start")
		}

		if err := control.WritePIDFile(cfg.Control.PIDPath, startForce); err != nil {
			return err
		}
		defer control.RemovePIDFile(cfg.Control.PIDPath)

		genomeStore, err := genome.NewStore(cfg.GenomesDir())
		if err != nil {
			return err
		}
		lineageStore, err := lineage.Open(cfg.LineageDir())
		if err != nil {
			return err
		}

		capacity := cfg.Control.EventBusCapacity
		if capacity <= 0 {
			capacity = eventbus.DefaultCapacity
		}
		bus := eventbus.New(capacity)

		eventWriter, err := eventlog.OpenWriter(eventsLogPath(cfg))
		if err != nil {
			return err
		}
		defer eventWriter.Close()

		sup := supervisor.New(cfg, genomeStore, lineageStore, bus, startSeedDir)
		sup.OnStatus(func(status supervisor.Status) {
			control.WriteStatusFile(cfg.Control.StatusPath, status)
		})
		sup.OnEvent(eventWriter.Write)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Control.AdvertiseMDNS {
			shutdown, err := discovery.Advertise(cfg.Root, []string{cfg.Control.SocketPath})
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: mdns advertise failed: %v\n", err)
			} else {
				defer shutdown()
			}
		}

		group, groupCtx := errgroup.WithContext(ctx)

		group.Go(func() error {
			handler := control.Handler{Supervisor: sup, Lineage: lineageStore, Cancel: stop}
			return control.Serve(groupCtx, cfg.Control.SocketPath, handler)
		})

		group.Go(func() error {
			err := sup.Run(groupCtx)
			if err == context.Canceled {
				return nil
			}
			return err
		})

		return group.Wait()
	},
}

func init() {
	startCmd.Flags().StringVar(&startConfigPath, "config", "", "path to the evolvd JSON config file")
	startCmd.Flags().StringVar(&startSeedDir, "seed", "", "initial, unmutated genome directory (required on first start)")
	startCmd.Flags().BoolVar(&startForce, "force", false, "overwrite an existing pid file even if its process appears alive")
}
