package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/evolvd/evolvd/internal/control"
	"github.com/evolvd/evolvd/internal/lineage"
)

var (
	historyConfigPath string
	historyGraph      bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the lineage DAG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfigFlag(historyConfigPath); err != nil {
			return err
		}
		cfg, err := loadConfigPath(historyConfigPath)
		if err != nil {
			return err
		}
		resp, err := control.Request(cfg.Control.SocketPath, control.Request{Action: control.ActionHistory}, 5*time.Second)
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("history: %s", resp.Error)
		}
		if historyGraph {
			printHistoryGraph(resp.History)
		} else {
			printHistoryList(resp.History)
		}
		return nil
	},
}

func printHistoryList(entries []lineage.Entry) {
	for _, e := range entries {
		fmt.Printf("%4d  parent=%-4d  gen=%-4d  branch=%-10s  status=%-8s  op=%-22s  %s\n",
			e.ID, e.ParentID, e.Generation, e.Branch, e.Status, e.Operator, e.FitnessNote)
	}
}

// printHistoryGraph renders each entry indented under its parent, giving a
// shallow ASCII tree rather than a full graph layout — sufficient for a
// lineage where every entry has exactly one parent.
func printHistoryGraph(entries []lineage.Entry) {
	byParent := make(map[int][]lineage.Entry)
	for _, e := range entries {
		byParent[e.ParentID] = append(byParent[e.ParentID], e)
	}
	id := lipgloss.NewStyle().Bold(true)
	var walk func(parent int, depth int)
	walk = func(parent int, depth int) {
		for _, e := range byParent[parent] {
			if e.ID == parent {
				continue
			}
			prefix := ""
			for i := 0; i < depth; i++ {
				prefix += "  "
			}
			fmt.Printf("%s%s %s (%s) %s\n", prefix, id.Render(fmt.Sprint(e.ID)), e.Branch, e.Operator, e.FitnessNote)
			walk(e.ID, depth+1)
		}
	}
	walk(0, 0)
}

func init() {
	historyCmd.Flags().StringVar(&historyConfigPath, "config", "", "path to the evolvd JSON config file")
	historyCmd.Flags().BoolVar(&historyGraph, "graph", false, "render the lineage as an indented tree instead of a flat list")
}
