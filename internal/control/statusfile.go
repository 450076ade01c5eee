package control

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/evolvd/evolvd/internal/clock"
	"github.com/evolvd/evolvd/internal/supervisor"
)

// WriteStatusFile atomically persists a supervisor.Status snapshot, read by
// `evolvd status` without needing to talk to the daemon over the control
// socket (useful when the daemon is unresponsive).
func WriteStatusFile(path string, status supervisor.Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("control: marshal status: %w", err)
	}
	return clock.WriteFileAtomic(path, data, 0o644)
}

// ReadStatusFile reads the last persisted status snapshot.
func ReadStatusFile(path string) (supervisor.Status, error) {
	var status supervisor.Status
	data, err := os.ReadFile(path)
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return status, fmt.Errorf("control: unmarshal status: %w", err)
	}
	return status, nil
}
