package terminate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fennwick/cull/internal/checkpoint"
	"github.com/fennwick/cull/internal/classify"
	"github.com/fennwick/cull/internal/confirm"
	"github.com/fennwick/cull/internal/inventory"
)

// fakeSignaler is an in-memory liveness oracle. Processes in stubborn ignore
// the graceful signal; processes in immortal survive even the forceful one.
type fakeSignaler struct {
	mu       sync.Mutex
	alive    map[int32]bool
	stubborn map[int32]bool
	immortal map[int32]bool

	gracefulSent []int32
	forceSent    []int32
	gracefulErr  map[int32]error
}

func newFakeSignaler(pids ...int32) *fakeSignaler {
	alive := make(map[int32]bool, len(pids))
	for _, pid := range pids {
		alive[pid] = true
	}
	return &fakeSignaler{
		alive:    alive,
		stubborn: map[int32]bool{},
		immortal: map[int32]bool{},
	}
}

func (f *fakeSignaler) Graceful(pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gracefulSent = append(f.gracefulSent, pid)
	if err := f.gracefulErr[pid]; err != nil {
		return err
	}
	if !f.stubborn[pid] && !f.immortal[pid] {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeSignaler) Force(pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceSent = append(f.forceSent, pid)
	if !f.immortal[pid] {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeSignaler) Alive(pid int32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

// scriptedGate answers the force-kill question from a per-pid table.
type scriptedGate struct {
	approve map[int32]bool
	asked   []int32
	askedAt []time.Time
}

func (g *scriptedGate) ApproveEscalation(rec classify.Classified) (bool, error) {
	g.asked = append(g.asked, rec.Record.PID)
	g.askedAt = append(g.askedAt, time.Now())
	return g.approve[rec.Record.PID], nil
}

// memStore collects entries in memory; failErr simulates an unwritable
// checkpoint.
type memStore struct {
	entries []checkpoint.Entry
	failErr error
	id      string
}

func (m *memStore) Write(entries []checkpoint.Entry) (string, error) {
	if m.failErr != nil {
		return "", m.failErr
	}
	m.entries = entries
	if m.id == "" {
		m.id = "test-checkpoint"
	}
	return m.id, nil
}

func decision(pid int32, name string, mem uint64, ports ...int) confirm.KillDecision {
	return confirm.KillDecision{
		Target: classify.Classified{
			Record: inventory.Record{PID: pid, Name: name, Command: name + " --serve", WorkingDir: "/proj", MemoryBytes: mem, ListenPorts: ports},
			Tier:   classify.TierSafeCandidate,
		},
		Approved: true,
	}
}

func testEngine(sig *fakeSignaler, gate Gate, store Checkpointer) *Engine {
	return &Engine{
		Signals:      sig,
		Gate:         gate,
		Store:        store,
		GraceWindow:  80 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
}

func TestGracefulExitWithinWindow(t *testing.T) {
	sig := newFakeSignaler(5012)
	store := &memStore{}
	engine := testEngine(sig, &scriptedGate{}, store)

	summary, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(5012, "next-server", 550_000_000, 3000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if summary.Dead != 1 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.ReclaimedBytes != 550_000_000 {
		t.Fatalf("reclaimed %d, want pre-kill estimate 550000000", summary.ReclaimedBytes)
	}
	if summary.CheckpointID != "test-checkpoint" {
		t.Fatalf("missing checkpoint id in summary: %+v", summary)
	}
	if len(sig.forceSent) != 0 {
		t.Fatal("force signal sent without escalation")
	}
}

func TestCheckpointPrecedesEverySignal(t *testing.T) {
	sig := newFakeSignaler(5012)
	store := &memStore{failErr: errors.New("disk full")}
	engine := testEngine(sig, &scriptedGate{}, store)

	_, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(5012, "next-server", 550_000_000, 3000),
	})
	if !errors.Is(err, ErrCheckpoint) {
		t.Fatalf("expected ErrCheckpoint, got %v", err)
	}
	if len(sig.gracefulSent) != 0 || len(sig.forceSent) != 0 {
		t.Fatal("a signal was sent despite the checkpoint write failing")
	}
}

func TestCheckpointEntriesMatchTargets(t *testing.T) {
	sig := newFakeSignaler(5012, 6100)
	store := &memStore{}
	engine := testEngine(sig, &scriptedGate{}, store)

	if _, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(5012, "next-server", 550_000_000, 3000),
		decision(6100, "vite", 120_000_000, 5173),
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(store.entries) != 2 {
		t.Fatalf("expected 2 checkpoint entries, got %d", len(store.entries))
	}
	if store.entries[0].PID != 5012 || store.entries[0].ListenPort != 3000 {
		t.Fatalf("entry 0 wrong: %+v", store.entries[0])
	}
	if store.entries[1].Command != "vite --serve" || store.entries[1].WorkingDir != "/proj" {
		t.Fatalf("entry 1 wrong: %+v", store.entries[1])
	}
}

func TestGraceWindowElapsesBeforeEscalation(t *testing.T) {
	sig := newFakeSignaler(7000)
	sig.stubborn[7000] = true
	gate := &scriptedGate{approve: map[int32]bool{7000: true}}
	engine := testEngine(sig, gate, &memStore{})

	start := time.Now()
	summary, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(7000, "watchman", 50_000_000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(gate.asked) != 1 {
		t.Fatalf("escalation asked %d times, want 1", len(gate.asked))
	}
	// The gate must not be offered before the configured window elapses.
	if waited := gate.askedAt[0].Sub(start); waited < engine.GraceWindow {
		t.Fatalf("escalation offered after %v, before the %v grace window", waited, engine.GraceWindow)
	}
	if summary.Dead != 1 {
		t.Fatalf("expected forced kill to succeed, got %+v", summary)
	}
	if summary.Results[0].Status != StatusDead || !summary.Results[0].Escalated {
		t.Fatalf("expected escalated dead result, got %+v", summary.Results[0])
	}
}

func TestDeclinedEscalationSkips(t *testing.T) {
	sig := newFakeSignaler(7000)
	sig.stubborn[7000] = true
	gate := &scriptedGate{approve: map[int32]bool{7000: false}}
	engine := testEngine(sig, gate, &memStore{})

	summary, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(7000, "watchman", 50_000_000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if summary.Skipped != 1 || summary.Dead != 0 {
		t.Fatalf("expected skip, got %+v", summary)
	}
	if len(sig.forceSent) != 0 {
		t.Fatal("force signal sent after the operator declined")
	}
	if !sig.Alive(7000) {
		t.Fatal("skipped process should still be running")
	}
	if !summary.Partial() {
		t.Fatal("summary with skips must report partial")
	}
	if summary.ReclaimedBytes != 0 {
		t.Fatalf("skipped process counted as reclaimed: %d", summary.ReclaimedBytes)
	}
}

func TestImmortalProcessFailsHard(t *testing.T) {
	sig := newFakeSignaler(8000)
	sig.stubborn[8000] = true
	sig.immortal[8000] = true
	gate := &scriptedGate{approve: map[int32]bool{8000: true}}
	engine := &Engine{
		Signals:      sig,
		Gate:         gate,
		Store:        &memStore{},
		GraceWindow:  30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}

	summary, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(8000, "kernel-pinned", 10_000_000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected hard failure, got %+v", summary)
	}
	if len(sig.forceSent) != 1 {
		t.Fatalf("force signal sent %d times, want exactly 1 (no automatic retry)", len(sig.forceSent))
	}
}

func TestFailureNeverBlocksNextTarget(t *testing.T) {
	sig := newFakeSignaler(8000, 5012)
	sig.gracefulErr = map[int32]error{8000: errors.New("operation not permitted")}
	engine := testEngine(sig, &scriptedGate{}, &memStore{})

	summary, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(8000, "rootd", 10_000_000),
		decision(5012, "next-server", 550_000_000, 3000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Failed != 1 || summary.Dead != 1 {
		t.Fatalf("expected one failure and one kill, got %+v", summary)
	}
	if summary.Results[1].Status != StatusDead {
		t.Fatalf("second target blocked by first failure: %+v", summary.Results[1])
	}
}

func TestCancellationMidWaitLeavesStateRecoverable(t *testing.T) {
	sig := newFakeSignaler(7000, 7001)
	sig.stubborn[7000] = true
	sig.stubborn[7001] = true

	store := &memStore{}
	engine := &Engine{
		Signals:      sig,
		Gate:         &scriptedGate{},
		Store:        store,
		GraceWindow:  5 * time.Second,
		PollInterval: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	summary, err := engine.Execute(ctx, []confirm.KillDecision{
		decision(7000, "watchman", 50_000_000),
		decision(7001, "esbuild", 40_000_000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// The first target was signaled before cancellation; the second was
	// never touched. Both report skipped, and the checkpoint covering them
	// was written before any signal.
	if summary.Skipped != 2 {
		t.Fatalf("expected both targets skipped, got %+v", summary)
	}
	if len(sig.gracefulSent) != 1 || sig.gracefulSent[0] != 7000 {
		t.Fatalf("unexpected signals after cancellation: %v", sig.gracefulSent)
	}
	if len(store.entries) != 2 {
		t.Fatal("checkpoint must cover every target before the first signal")
	}
}

func TestAlreadyExitedTargetCountsDead(t *testing.T) {
	sig := newFakeSignaler() // pid not alive at all
	sig.gracefulErr = map[int32]error{9000: errors.New("no such process")}
	engine := testEngine(sig, &scriptedGate{}, &memStore{})

	summary, err := engine.Execute(context.Background(), []confirm.KillDecision{
		decision(9000, "ghost", 5_000_000),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Dead != 1 {
		t.Fatalf("expected already-exited target to count dead, got %+v", summary)
	}
}
