// Package terminate executes the graceful-then-forceful termination state
// machine against a frozen kill-list. Every target is fully resolved before
// the next begins, so the operator is never asked about two processes at
// once.
package terminate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fennwick/cull/internal/checkpoint"
	"github.com/fennwick/cull/internal/classify"
	"github.com/fennwick/cull/internal/confirm"
	"github.com/fennwick/cull/internal/metrics"
)

// Status is the terminal state of one target's state machine.
type Status string

const (
	// StatusDead means the process exited after the graceful or forceful
	// signal.
	StatusDead Status = "dead"
	// StatusSkipped means the process is still running by choice: the
	// operator declined escalation, or cancellation stopped the run
	// before the target was signaled.
	StatusSkipped Status = "skipped"
	// StatusFailed means a signal could not be delivered or the process
	// survived a forceful signal. Never retried automatically.
	StatusFailed Status = "failed"
)

// ErrCheckpoint reports that the pre-kill checkpoint could not be written.
// Checkpoint-before-kill is a hard precondition: when this error is returned
// no process has been signaled.
var ErrCheckpoint = errors.New("checkpoint write failed")

// Signaler delivers termination signals and answers liveness queries. The
// production implementation talks to the OS; tests inject fakes.
type Signaler interface {
	Graceful(pid int32) error
	Force(pid int32) error
	Alive(pid int32) bool
}

// Gate asks the operator the per-process force-kill question. It is stage 4
// of the confirmation protocol, reached only after a graceful signal failed
// to take effect within the grace window.
type Gate interface {
	ApproveEscalation(rec classify.Classified) (bool, error)
}

// Checkpointer persists the pre-kill snapshot. Satisfied by
// *checkpoint.Store.
type Checkpointer interface {
	Write(entries []checkpoint.Entry) (string, error)
}

// Result is the terminal outcome for one target.
type Result struct {
	Target    classify.Classified
	Status    Status
	Escalated bool
	Err       error
}

// Summary aggregates a run. ReclaimedBytes sums the pre-kill resident memory
// of every dead target; it is an estimate, never re-measured after the kill.
type Summary struct {
	CheckpointID   string
	Results        []Result
	Dead           int
	Skipped        int
	Failed         int
	ReclaimedBytes uint64
}

const (
	// DefaultGraceWindow bounds the wait after a graceful signal before
	// escalation is offered.
	DefaultGraceWindow = 10 * time.Second

	defaultPollInterval = 100 * time.Millisecond
	forceRecheckWindow  = 2 * time.Second
)

// Engine runs the per-process termination state machine.
type Engine struct {
	Signals      Signaler
	Gate         Gate
	Store        Checkpointer
	GraceWindow  time.Duration
	PollInterval time.Duration
}

// Execute terminates every approved decision in order. The full checkpoint
// is durably written before the first signal is sent; a write failure means
// nothing is signaled. Failures on one target never block the next.
func (e *Engine) Execute(ctx context.Context, decisions []confirm.KillDecision) (*Summary, error) {
	grace := e.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	interval := e.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	targets := make([]classify.Classified, 0, len(decisions))
	for _, d := range decisions {
		if d.Approved {
			targets = append(targets, d.Target)
		}
	}
	if len(targets) == 0 {
		return nil, errors.New("empty kill-list")
	}

	checkpointID, err := e.Store.Write(buildEntries(targets))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}

	summary := &Summary{CheckpointID: checkpointID}
	for i, target := range targets {
		if ctx.Err() != nil {
			// Remaining targets were never signaled; report them as
			// skipped so the operator sees exactly what still runs.
			for _, rest := range targets[i:] {
				summary.record(Result{Target: rest, Status: StatusSkipped, Err: ctx.Err()})
			}
			break
		}
		summary.record(e.terminate(ctx, target, grace, interval))
	}
	return summary, nil
}

// terminate runs one target through
// PENDING → SIGNALED_GRACEFUL → (DEAD | AWAITING_ESCALATION) →
// (DEAD | SIGNALED_FORCE) → DEAD | SKIPPED | FAILED.
func (e *Engine) terminate(ctx context.Context, target classify.Classified, grace, interval time.Duration) Result {
	pid := target.Record.PID

	if err := e.Signals.Graceful(pid); err != nil {
		if !e.Signals.Alive(pid) {
			// Exited between scan and signal.
			return Result{Target: target, Status: StatusDead}
		}
		return Result{Target: target, Status: StatusFailed, Err: fmt.Errorf("graceful signal: %w", err)}
	}

	waitStart := time.Now()
	gone, waitErr := waitGone(ctx, e.Signals.Alive, pid, grace, interval)
	metrics.ObserveGraceWait(time.Since(waitStart))
	if gone {
		return Result{Target: target, Status: StatusDead}
	}
	if waitErr != nil {
		// Cancelled mid-wait: the graceful signal is already out and the
		// checkpoint entry is durable, so state stays recoverable.
		return Result{Target: target, Status: StatusSkipped, Err: fmt.Errorf("cancelled after graceful signal: %w", waitErr)}
	}

	// AWAITING_ESCALATION: the grace window elapsed with the process alive.
	approved, err := e.Gate.ApproveEscalation(target)
	if err != nil || !approved {
		return Result{Target: target, Status: StatusSkipped, Err: err}
	}

	if err := e.Signals.Force(pid); err != nil {
		if !e.Signals.Alive(pid) {
			return Result{Target: target, Status: StatusDead, Escalated: true}
		}
		return Result{Target: target, Status: StatusFailed, Escalated: true, Err: fmt.Errorf("force signal: %w", err)}
	}

	gone, _ = waitGone(ctx, e.Signals.Alive, pid, forceRecheckWindow, interval)
	if !gone {
		// Survived SIGKILL: OS-level protection on the target. Hard
		// failure, never retried.
		return Result{Target: target, Status: StatusFailed, Escalated: true, Err: errors.New("process survived forceful signal")}
	}
	return Result{Target: target, Status: StatusDead, Escalated: true}
}

func (s *Summary) record(res Result) {
	s.Results = append(s.Results, res)
	metrics.AddTermination(string(res.Status))
	switch res.Status {
	case StatusDead:
		s.Dead++
		s.ReclaimedBytes += res.Target.Record.MemoryBytes
		metrics.AddReclaimed(res.Target.Record.MemoryBytes)
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// Partial reports whether any target ended somewhere other than DEAD.
func (s *Summary) Partial() bool {
	return s.Skipped > 0 || s.Failed > 0
}

func buildEntries(targets []classify.Classified) []checkpoint.Entry {
	now := time.Now().UTC()
	entries := make([]checkpoint.Entry, 0, len(targets))
	for _, t := range targets {
		entry := checkpoint.Entry{
			PID:         t.Record.PID,
			Name:        t.Record.Name,
			Command:     t.Record.Command,
			WorkingDir:  t.Record.WorkingDir,
			MemoryBytes: t.Record.MemoryBytes,
			Timestamp:   now,
		}
		if len(t.Record.ListenPorts) > 0 {
			entry.ListenPort = t.Record.ListenPorts[0]
		}
		entries = append(entries, entry)
	}
	return entries
}
