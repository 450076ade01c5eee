// Package cli implements evolvd's command-line interface: start/stop a
// daemon, inspect its status and lineage history, and manage branches.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evolvd/evolvd/internal/buildinfo"
	"github.com/evolvd/evolvd/internal/debug"
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"

	styleBoldCyan  = "\033[1;36m"
	styleBoldWhite = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "evolvd",
	Short: "Supervise and evolve a long-running agent worker across generations",
	Long: colorBold + `
  _____            _             _
 | ____|_   _____ | |_   ____ __| |
 |  _| \ \ / / _ \| \ \ / / '__/ _` + "`" + ` |
 | |___ \ V / (_) | |\ V /| | | (_| |
 |_____| \_/ \___/|_| \_/ |_|  \__,_|` + colorReset + `

  ` + styleBoldCyan + `evolvd` + colorReset + ` v` + buildinfo.Current().Version + `

  Supervises a worker process generation over generation: restarts it on
  crash, and periodically snapshots its genome, mutates it, and relaunches
  the worker against the mutated generation. Every transition is recorded
  in an append-only lineage DAG so any generation can be inspected, rolled
  back to, or forked into a branch later.

` + colorBold + `Getting Started:` + colorReset + `
  evolvd start --config evolvd.json --seed ./genome     Start the daemon in the foreground
  evolvd status --config evolvd.json                    Show current state and generation
  evolvd history --config evolvd.json --graph           Show the lineage DAG
  evolvd branch --config evolvd.json --name experiment  Fork a new lineage branch
  evolvd rollback --config evolvd.json --branch main --to 4
                                                        Move a branch's head back

` + colorBold + `More Info:` + colorReset + `
  https://github.com/evolvd/evolvd`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.evolvd/debug/")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "evolvd state directory (defaults to the config file's \"root\")")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, logPath)
		bi := buildinfo.Current()
		debug.LogKV("cli", "evolvd starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logsCmd)
}

var rootFlag string

// Execute runs the root command.
func Execute() {
	defer debug.Close()
	if err := rootCmd.Execute(); err != nil {
		debug.Logf("cli", "exit with error: %v", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	debug.Log("cli", "exit success")
}
