package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/evolvd/evolvd/internal/control"
	"github.com/evolvd/evolvd/internal/webstatus"
)

var (
	statusConfigPath string
	statusServeAddr  string
	statusQR         bool
)

var stateStyles = map[string]lipgloss.Color{
	"Idle":              lipgloss.Color("8"),
	"Running":           lipgloss.Color("2"),
	"TransitionPending": lipgloss.Color("3"),
	"Snapshotting":      lipgloss.Color("3"),
	"Mutating":          lipgloss.Color("3"),
	"LineageAppending":  lipgloss.Color("3"),
	"Relaunching":       lipgloss.Color("3"),
	"Stopped":           lipgloss.Color("8"),
	"Failed":            lipgloss.Color("1"),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current state and generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfigFlag(statusConfigPath); err != nil {
			return err
		}
		cfg, err := loadConfigPath(statusConfigPath)
		if err != nil {
			return err
		}

		if statusServeAddr != "" {
			srv := webstatus.Server{SocketPath: cfg.Control.SocketPath, EventsPath: eventsLogPath(cfg)}
			fmt.Printf("serving status on http://%s\n", statusServeAddr)
			return http.ListenAndServe(statusServeAddr, srv.Handler())
		}

		resp, err := control.Request(cfg.Control.SocketPath, control.Request{Action: control.ActionStatus}, 3*time.Second)
		if err != nil {
			status, readErr := control.ReadStatusFile(cfg.Control.StatusPath)
			if readErr != nil {
				return err
			}
			printStatus(string(status.State), status.Branch, status.Generation, status.GenomeHash, status.RestartCount, status.EvolutionsInGeneration, status.TransitionsTotal, status.WorkerPID, status.LastError)
			return nil
		}
		if !resp.OK {
			return fmt.Errorf("status: %s", resp.Error)
		}
		s := resp.Status
		printStatus(string(s.State), s.Branch, s.Generation, s.GenomeHash, s.RestartCount, s.EvolutionsInGeneration, s.TransitionsTotal, s.WorkerPID, s.LastError)

		if statusQR {
			art, err := qrcode.New(cfg.Control.SocketPath, qrcode.Medium)
			if err == nil {
				fmt.Println(art.ToString(false))
			}
		}
		return nil
	},
}

func printStatus(state, branch string, generation uint32, genomeHash string, restarts, evolutions, transitions, pid int, lastError string) {
	color, ok := stateStyles[state]
	if !ok {
		color = lipgloss.Color("7")
	}
	label := lipgloss.NewStyle().Foreground(color).Bold(true)
	dim := lipgloss.NewStyle().Faint(true)

	plain := !isatty.IsTerminal(os.Stdout.Fd())

	if plain {
		fmt.Printf("state=%s branch=%s generation=%d genome=%s restarts=%d evolutions_this_gen=%d transitions_total=%d pid=%d\n",
			state, branch, generation, genomeHash, restarts, evolutions, transitions, pid)
	} else {
		fmt.Println(label.Render(state))
		fmt.Println(dim.Render("branch      ") + branch)
		fmt.Println(dim.Render("generation  ") + fmt.Sprint(generation))
		fmt.Println(dim.Render("genome hash ") + genomeHash)
		fmt.Println(dim.Render("restarts    ") + fmt.Sprint(restarts))
		fmt.Println(dim.Render("evolutions/gen ") + fmt.Sprint(evolutions))
		fmt.Println(dim.Render("transitions ") + fmt.Sprint(transitions))
		if pid != 0 {
			fmt.Println(dim.Render("worker pid  ") + fmt.Sprint(pid))
		}
	}
	if lastError != "" {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render("last error: " + lastError))
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "path to the evolvd JSON config file")
	statusCmd.Flags().StringVar(&statusServeAddr, "serve", "", "serve a live JSON/websocket status endpoint at this address instead of printing once")
	statusCmd.Flags().BoolVar(&statusQR, "qr", false, "print a QR code encoding the control socket path")
}
