package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evolvd/evolvd/internal/control"
	"github.com/evolvd/evolvd/internal/lineage"
)

var (
	rollbackConfigPath string
	rollbackBranch     string
	rollbackTo         uint32
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Move a branch's active generation back to an earlier one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfigFlag(rollbackConfigPath); err != nil {
			return err
		}
		if rollbackBranch == "" {
			return fmt.Errorf("--branch is required")
		}
		cfg, err := loadConfigPath(rollbackConfigPath)
		if err != nil {
			return err
		}

		// Rollback mutates the same lineage store a running supervisor reads
		// and appends to, so it must refuse while the daemon is up rather
		// than race it; only a stopped daemon's lineage store is safe to
		// touch directly here.
		if control.IsDaemonRunning(cfg.Control.PIDPath) {
			return fmt.Errorf("rollback: daemon is running; stop it first with `evolvd stop`")
		}

		store, err := lineage.Open(cfg.LineageDir())
		if err != nil {
			return err
		}
		if err := store.Rollback(rollbackBranch, rollbackTo); err != nil {
			return err
		}
		fmt.Printf("branch %q now active at generation %d\n", rollbackBranch, rollbackTo)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackConfigPath, "config", "", "path to the evolvd JSON config file")
	rollbackCmd.Flags().StringVar(&rollbackBranch, "branch", "", "branch to roll back")
	rollbackCmd.Flags().Uint32Var(&rollbackTo, "to", 0, "generation number to roll the branch back to")
}
