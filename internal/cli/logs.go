package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evolvd/evolvd/internal/eventlog"
	"github.com/evolvd/evolvd/internal/protocol"
)

var (
	logsConfigPath string
	logsFollow     bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the worker's event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfigFlag(logsConfigPath); err != nil {
			return err
		}
		cfg, err := loadConfigPath(logsConfigPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return eventlog.Tail(ctx, eventsLogPath(cfg), logsFollow, printEvent)
	},
}

func printEvent(evt protocol.AgentEvent) {
	line := fmt.Sprintf("%s  %-18s  %s", evt.Timestamp.Format("15:04:05"), evt.Kind, evt.Message)
	if evt.Fitness != nil {
		line += fmt.Sprintf("  success_rate=%.3f sample_size=%d", evt.Fitness.SuccessRate, evt.Fitness.SampleSize)
	}
	if len(evt.Payload) > 0 {
		if data, err := json.Marshal(evt.Payload); err == nil {
			line += "  " + string(data)
		}
	}
	fmt.Println(line)
}

func init() {
	logsCmd.Flags().StringVar(&logsConfigPath, "config", "", "path to the evolvd JSON config file")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep streaming new events as they arrive")
}
