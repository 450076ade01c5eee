package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evolvd/evolvd/internal/control"
)

var (
	branchConfigPath string
	branchName       string
	branchFromBranch string
	branchFromGen    uint32
	branchDesc       string
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Fork a new lineage branch from an existing generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfigFlag(branchConfigPath); err != nil {
			return err
		}
		if branchName == "" {
			return fmt.Errorf("--name is required")
		}
		cfg, err := loadConfigPath(branchConfigPath)
		if err != nil {
			return err
		}
		resp, err := control.Request(cfg.Control.SocketPath, control.Request{
			Action:         control.ActionBranch,
			Name:           branchName,
			FromBranch:     branchFromBranch,
			FromGeneration: branchFromGen,
			Description:    branchDesc,
		}, 5*time.Second)
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("branch: %s", resp.Error)
		}
		fmt.Printf("created branch %q at generation %d (forked from %s/%d)\n",
			resp.Branch.Name, resp.Branch.RootGeneration, resp.Branch.ParentBranch, resp.Branch.ParentGeneration)
		return nil
	},
}

func init() {
	branchCmd.Flags().StringVar(&branchConfigPath, "config", "", "path to the evolvd JSON config file")
	branchCmd.Flags().StringVar(&branchName, "name", "", "new branch name")
	branchCmd.Flags().StringVar(&branchFromBranch, "from-branch", "main", "branch to fork from")
	branchCmd.Flags().Uint32Var(&branchFromGen, "from", 0, "generation number to branch from")
	branchCmd.Flags().StringVar(&branchDesc, "description", "", "optional human-readable note describing why this branch exists")
}
