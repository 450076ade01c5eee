package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sort"

	"github.com/evolvd/evolvd/internal/lineage"
	"github.com/evolvd/evolvd/internal/supervisor"
)

// Handler answers control requests against a running supervisor and
// lineage store.
type Handler struct {
	Supervisor *supervisor.Supervisor
	Lineage    *lineage.Store
	Cancel     context.CancelFunc // stops the supervisor's Run loop on ActionStop
}

// Serve accepts connections on a Unix socket at socketPath until ctx is
// cancelled, handling each connection's single request/response exchange
// synchronously before closing it — there is exactly one short-lived
// client per connection, not a persistent stream, so no broadcaster
// fan-out is needed here.
func Serve(ctx context.Context, socketPath string, h Handler) error {
	os.Remove(socketPath) // clear a stale socket from an unclean shutdown

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("control: accept: %w", err)
			}
		}
		go h.handleConn(conn)
	}
}

func (h Handler) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scanner.Scan() {
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		writeResponse(conn, Response{OK: false, Error: "malformed request: " + err.Error()})
		return
	}

	resp := h.dispatch(req)
	writeResponse(conn, resp)
}

func (h Handler) dispatch(req Request) Response {
	switch req.Action {
	case ActionStatus:
		status := h.Supervisor.Snapshot()
		return Response{OK: true, Status: &status}

	case ActionStop:
		if h.Cancel != nil {
			h.Cancel()
		}
		return Response{OK: true}

	case ActionRollback:
		// The socket only exists while the daemon runs, and rollback is
		// refused while it runs; `evolvd rollback` performs it offline.
		return Response{OK: false, Error: "rollback refused while the daemon is running; stop it first"}

	case ActionBranch:
		if req.Name == "" {
			return Response{OK: false, Error: "branch requires a name"}
		}
		fromBranch := req.FromBranch
		if fromBranch == "" {
			fromBranch = "main"
		}
		b, err := h.Lineage.CreateBranch(req.Name, fromBranch, req.FromGeneration, req.Description)
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, Branch: &b}

	case ActionHistory:
		entries := collectHistory(h.Lineage)
		return Response{OK: true, History: entries}

	default:
		return Response{OK: false, Error: "unknown action: " + req.Action}
	}
}

// collectHistory walks every branch head back to the root, returning the
// union of visited entries sorted by ID, giving `evolvd history` a
// complete picture of the DAG rather than just the active branch.
func collectHistory(store *lineage.Store) []lineage.Entry {
	seen := make(map[int]lineage.Entry)
	for _, b := range store.Branches() {
		id := b.HeadID
		for id != 0 {
			entry, ok := store.Get(id)
			if !ok {
				break
			}
			if _, visited := seen[id]; visited {
				break
			}
			seen[id] = entry
			id = entry.ParentID
		}
	}
	out := make([]lineage.Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	conn.Write(append(data, '\n'))
}
