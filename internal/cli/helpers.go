package cli

import (
	"fmt"
	"path/filepath"

	"github.com/evolvd/evolvd/internal/config"
)

// loadConfigPath loads and validates the config file at path, applies the
// --root flag over the file's "root" when it is set, then fills in any
// socket/pid/status paths the user left unset with defaults under cfg.Root.
func loadConfigPath(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if rootFlag != "" {
		cfg.Root = rootFlag
	}
	if cfg.Control.SocketPath == "" {
		cfg.Control.SocketPath = filepath.Join(cfg.Root, "control.sock")
	}
	if cfg.Control.PIDPath == "" {
		cfg.Control.PIDPath = filepath.Join(cfg.Root, "daemon.pid")
	}
	if cfg.Control.StatusPath == "" {
		cfg.Control.StatusPath = filepath.Join(cfg.Root, "daemon.status.json")
	}
	return cfg, nil
}

func eventsLogPath(cfg config.Config) string {
	return filepath.Join(cfg.Root, "events.log")
}

func requireConfigFlag(path string) error {
	if path == "" {
		return fmt.Errorf("--config is required")
	}
	return nil
}
