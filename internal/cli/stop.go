package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evolvd/evolvd/internal/control"
)

var stopConfigPath string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running daemon to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfigFlag(stopConfigPath); err != nil {
			return err
		}
		cfg, err := loadConfigPath(stopConfigPath)
		if err != nil {
			return err
		}
		resp, err := control.Request(cfg.Control.SocketPath, control.Request{Action: control.ActionStop}, 5*time.Second)
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("stop: %s", resp.Error)
		}
		fmt.Println("stop requested")
		return nil
	},
}

func init() {
	stopCmd.Flags().StringVar(&stopConfigPath, "config", "", "path to the evolvd JSON config file")
}
