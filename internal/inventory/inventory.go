package inventory

import (
	"context"
	"sort"
	"time"
)

// Record is an immutable snapshot of one running process taken during a scan.
// A later scan produces fresh records; nothing mutates a record after the
// scanner returns it. The pid may be reused by the OS once the process dies,
// so records must be treated as stale the moment anything is terminated.
type Record struct {
	PID         int32
	Name        string
	Command     string
	WorkingDir  string
	MemoryBytes uint64
	ListenPorts []int
}

// HasPortIn reports whether the record listens on any port inside [lo, hi].
func (r Record) HasPortIn(lo, hi int) bool {
	for _, p := range r.ListenPorts {
		if p >= lo && p <= hi {
			return true
		}
	}
	return false
}

// HasPort reports whether the record listens on the given port.
func (r Record) HasPort(port int) bool {
	for _, p := range r.ListenPorts {
		if p == port {
			return true
		}
	}
	return false
}

// Source abstracts the OS process and socket tables so scans can run against
// fakes in tests.
type Source interface {
	// Pids lists every pid visible to the invoking user.
	Pids(ctx context.Context) ([]int32, error)
	// Describe enriches a single pid. It returns an error when the process
	// vanished between listing and enrichment; callers skip such pids.
	Describe(ctx context.Context, pid int32) (Record, error)
	// ListenPorts maps owning pid to the TCP ports it listens on,
	// best-effort: ambiguous or unreadable ownership yields no entry.
	ListenPorts(ctx context.Context) (map[int32][]int, error)
	// Parent returns the parent pid of the given pid.
	Parent(ctx context.Context, pid int32) (int32, error)
}

// Snapshot is the result of one scan.
type Snapshot struct {
	Records []Record
	TakenAt time.Time
	// Partial is set when the time budget ran out before every pid was
	// enriched. Callers treat this as "enumeration incomplete", not fatal.
	Partial bool
}

const defaultBudget = 5 * time.Second

// Scanner enumerates processes through a Source within a bounded time budget.
type Scanner struct {
	source Source
	budget time.Duration
}

// NewScanner constructs a scanner. A zero budget selects the default.
func NewScanner(source Source, budget time.Duration) *Scanner {
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Scanner{source: source, budget: budget}
}

// Scan produces one record per currently running process. Enrichment is
// best-effort: a process that exits mid-scan is skipped, and an exhausted
// budget returns whatever was collected with Partial set.
func (s *Scanner) Scan(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	snap := &Snapshot{TakenAt: time.Now()}

	// One read of the socket table covers every pid; a failure here only
	// degrades port enrichment, never the scan.
	ports, err := s.source.ListenPorts(ctx)
	if err != nil {
		ports = nil
	}

	pids, err := s.source.Pids(ctx)
	if err != nil {
		return nil, err
	}

	for _, pid := range pids {
		if ctx.Err() != nil {
			snap.Partial = true
			break
		}
		rec, err := s.source.Describe(ctx, pid)
		if err != nil {
			// Exited between listing and enrichment.
			continue
		}
		if owned := ports[pid]; len(owned) > 0 {
			rec.ListenPorts = append([]int(nil), owned...)
			sort.Ints(rec.ListenPorts)
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

const maxAncestryDepth = 64

// Ancestry returns pid followed by its parents up to (and including) pid 1.
// The walk is best-effort: an unreadable parent ends the chain early.
func Ancestry(ctx context.Context, source Source, pid int32) []int32 {
	chain := []int32{pid}
	seen := map[int32]struct{}{pid: {}}
	for i := 0; i < maxAncestryDepth; i++ {
		if pid <= 1 {
			break
		}
		parent, err := source.Parent(ctx, pid)
		if err != nil {
			break
		}
		if _, dup := seen[parent]; dup {
			break
		}
		seen[parent] = struct{}{}
		chain = append(chain, parent)
		pid = parent
	}
	return chain
}
