package control

import (
	"github.com/evolvd/evolvd/internal/lineage"
	"github.com/evolvd/evolvd/internal/supervisor"
)

// Action names understood by the control socket server.
const (
	ActionStatus   = "status"
	ActionStop     = "stop"
	ActionRollback = "rollback"
	ActionBranch   = "branch"
	ActionHistory  = "history"
)

// Request is a single client -> daemon control request. Each connection to
// the control socket carries exactly one JSON-encoded Request line and
// receives exactly one JSON-encoded Response line in return, matching the
// teacher's line-delimited-JSON control protocol.
type Request struct {
	Action string `json:"action"`

	// ActionRollback
	Branch     string `json:"branch,omitempty"`
	Generation uint32 `json:"generation,omitempty"`

	// ActionBranch
	Name           string `json:"name,omitempty"`
	FromBranch     string `json:"from_branch,omitempty"`
	FromGeneration uint32 `json:"from_generation,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Response is the daemon's reply to a Request.
type Response struct {
	OK      bool                `json:"ok"`
	Error   string              `json:"error,omitempty"`
	Status  *supervisor.Status  `json:"status,omitempty"`
	Branch  *lineage.Branch     `json:"branch,omitempty"`
	History []lineage.Entry     `json:"history,omitempty"`
}
