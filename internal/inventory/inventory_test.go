package inventory

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	pids    []int32
	records map[int32]Record
	ports   map[int32][]int
	parents map[int32]int32

	portsErr     error
	describeHook func(pid int32)
}

func (f *fakeSource) Pids(ctx context.Context) ([]int32, error) {
	return f.pids, nil
}

func (f *fakeSource) Describe(ctx context.Context, pid int32) (Record, error) {
	if f.describeHook != nil {
		f.describeHook(pid)
	}
	rec, ok := f.records[pid]
	if !ok {
		return Record{}, errors.New("no such process")
	}
	return rec, nil
}

func (f *fakeSource) ListenPorts(ctx context.Context) (map[int32][]int, error) {
	if f.portsErr != nil {
		return nil, f.portsErr
	}
	return f.ports, nil
}

func (f *fakeSource) Parent(ctx context.Context, pid int32) (int32, error) {
	parent, ok := f.parents[pid]
	if !ok {
		return 0, errors.New("no such process")
	}
	return parent, nil
}

func TestScanEnrichesRecordsWithPorts(t *testing.T) {
	src := &fakeSource{
		pids: []int32{100, 5012},
		records: map[int32]Record{
			100:  {PID: 100, Name: "launchd"},
			5012: {PID: 5012, Name: "next-server", Command: "node next dev", WorkingDir: "/proj", MemoryBytes: 550_000_000},
		},
		ports: map[int32][]int{5012: {3001, 3000}},
	}

	snap, err := NewScanner(src, time.Second).Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if snap.Partial {
		t.Fatal("expected complete scan")
	}
	if len(snap.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(snap.Records))
	}

	var dev Record
	for _, rec := range snap.Records {
		if rec.PID == 5012 {
			dev = rec
		}
	}
	if len(dev.ListenPorts) != 2 || dev.ListenPorts[0] != 3000 {
		t.Fatalf("expected sorted ports [3000 3001], got %v", dev.ListenPorts)
	}
	if !dev.HasPortIn(3000, 3999) {
		t.Fatal("expected port-range match")
	}
}

func TestScanSkipsVanishedProcess(t *testing.T) {
	src := &fakeSource{
		pids: []int32{1, 42, 2},
		records: map[int32]Record{
			1: {PID: 1, Name: "init"},
			2: {PID: 2, Name: "kthreadd"},
			// pid 42 exited between listing and enrichment.
		},
	}

	snap, err := NewScanner(src, time.Second).Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(snap.Records) != 2 {
		t.Fatalf("expected vanished pid to be skipped, got %d records", len(snap.Records))
	}
}

func TestScanDegradesWithoutSocketTable(t *testing.T) {
	src := &fakeSource{
		pids:     []int32{7},
		records:  map[int32]Record{7: {PID: 7, Name: "vite"}},
		portsErr: errors.New("socket table unreadable"),
	}

	snap, err := NewScanner(src, time.Second).Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(snap.Records) != 1 || len(snap.Records[0].ListenPorts) != 0 {
		t.Fatalf("expected record without ports, got %+v", snap.Records)
	}
}

func TestScanMarksPartialOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &fakeSource{
		pids: []int32{1, 2, 3},
		records: map[int32]Record{
			1: {PID: 1, Name: "init"},
			2: {PID: 2, Name: "two"},
			3: {PID: 3, Name: "three"},
		},
	}
	src.describeHook = func(pid int32) {
		if pid == 1 {
			cancel()
		}
	}

	snap, err := NewScanner(src, time.Minute).Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !snap.Partial {
		t.Fatal("expected partial snapshot after cancellation")
	}
	if len(snap.Records) != 1 {
		t.Fatalf("expected 1 record before cancellation, got %d", len(snap.Records))
	}
}

func TestAncestryWalksToInit(t *testing.T) {
	src := &fakeSource{
		parents: map[int32]int32{500: 300, 300: 1},
	}

	chain := Ancestry(context.Background(), src, 500)
	want := []int32{500, 300, 1}
	if len(chain) != len(want) {
		t.Fatalf("expected chain %v, got %v", want, chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("expected chain %v, got %v", want, chain)
		}
	}
}

func TestAncestryStopsOnCycle(t *testing.T) {
	src := &fakeSource{
		parents: map[int32]int32{500: 300, 300: 500},
	}

	chain := Ancestry(context.Background(), src, 500)
	if len(chain) != 2 {
		t.Fatalf("expected cycle guard to stop the walk, got %v", chain)
	}
}
