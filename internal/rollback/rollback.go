// Package rollback consumes a stored checkpoint and relaunches the processes
// it records. Rollback is best-effort and independently fallible per entry;
// it never terminates anything, not even a process squatting on a recorded
// port.
package rollback

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/fennwick/cull/internal/checkpoint"
)

// EntryStatus is the terminal outcome of one checkpoint entry.
type EntryStatus string

const (
	// StatusRelaunched means a detached process was started.
	StatusRelaunched EntryStatus = "relaunched"
	// StatusConflict means the recorded port is already occupied; the
	// occupier is reported and left alone.
	StatusConflict EntryStatus = "conflict"
	// StatusWorkspaceMissing means the recorded working directory no
	// longer exists.
	StatusWorkspaceMissing EntryStatus = "workspace-missing"
	// StatusFailed covers inference and launch failures.
	StatusFailed EntryStatus = "failed"
)

// EntryResult reports what happened to one entry.
type EntryResult struct {
	Entry  checkpoint.Entry
	Status EntryStatus
	Detail string
	// NewPID is the pid of the relaunched process, when one was started.
	NewPID int
	Err    error
}

// Report aggregates a rollback invocation.
type Report struct {
	CheckpointID string
	Results      []EntryResult
	Relaunched   int
}

// Partial reports whether any entry failed to relaunch.
func (r *Report) Partial() bool {
	return r.Relaunched < len(r.Results)
}

// Reader loads checkpoints; satisfied by *checkpoint.Store.
type Reader interface {
	Read(id string) (*checkpoint.Checkpoint, error)
}

// Launcher starts a command detached from the caller's lifecycle so it
// outlives the rollback invocation. The production implementation starts a
// new session; tests inject fakes.
type Launcher interface {
	Launch(ctx context.Context, argv []string, dir string) (pid int, err error)
}

// Engine relaunches checkpointed processes.
type Engine struct {
	Store  Reader
	Launch Launcher
	// PortFree reports whether a TCP port can be bound. Nil selects the
	// default bind test.
	PortFree func(port int) bool
}

// Rollback reads the checkpoint and processes every entry in original order.
// A checkpoint that cannot be read fails the whole invocation; after that,
// one entry's failure never aborts the remaining entries.
func (e *Engine) Rollback(ctx context.Context, id string) (*Report, error) {
	cp, err := e.Store.Read(id)
	if err != nil {
		return nil, err
	}

	portFree := e.PortFree
	if portFree == nil {
		portFree = defaultPortFree
	}

	report := &Report{CheckpointID: cp.ID}
	for _, entry := range cp.Entries {
		report.add(e.restore(ctx, entry, portFree))
	}
	return report, nil
}

func (e *Engine) restore(ctx context.Context, entry checkpoint.Entry, portFree func(int) bool) EntryResult {
	argv, err := InferRestart(entry.Command, entry.WorkingDir)
	if err != nil {
		return EntryResult{Entry: entry, Status: StatusFailed, Err: err}
	}

	if entry.ListenPort > 0 && !portFree(entry.ListenPort) {
		return EntryResult{
			Entry:  entry,
			Status: StatusConflict,
			Detail: fmt.Sprintf("port %d already in use; not relaunching", entry.ListenPort),
		}
	}

	dir := entry.WorkingDir
	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return EntryResult{
				Entry:  entry,
				Status: StatusWorkspaceMissing,
				Detail: fmt.Sprintf("working directory %s is gone", dir),
			}
		}
	}

	pid, err := e.Launch.Launch(ctx, argv, dir)
	if err != nil {
		return EntryResult{Entry: entry, Status: StatusFailed, Err: fmt.Errorf("launch: %w", err)}
	}
	return EntryResult{
		Entry:  entry,
		Status: StatusRelaunched,
		Detail: describeInference(argv),
		NewPID: pid,
	}
}

func (r *Report) add(res EntryResult) {
	r.Results = append(r.Results, res)
	if res.Status == StatusRelaunched {
		r.Relaunched++
	}
}

// defaultPortFree bind-tests the port on the loopback interface. A failed
// bind means something (possibly bound to all interfaces) already owns it.
func defaultPortFree(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
