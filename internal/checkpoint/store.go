package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion identifies the checkpoint artifact layout. Readers reject
// versions they do not understand instead of guessing at field meanings.
const SchemaVersion = 1

var (
	// ErrNotFound reports that no checkpoint exists under the given id.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt reports a checkpoint that exists but fails structural
	// validation. Corruption is detected, never silently tolerated.
	ErrCorrupt = errors.New("checkpoint corrupt")
)

// Entry captures everything needed to relaunch one process after it has been
// terminated. Written once, immediately before the kill signal, never
// mutated afterward.
type Entry struct {
	PID         int32     `json:"pid"`
	Name        string    `json:"name"`
	Command     string    `json:"command"`
	WorkingDir  string    `json:"workingDirectory"`
	ListenPort  int       `json:"listeningPort,omitempty"`
	MemoryBytes uint64    `json:"memoryBytes"`
	Timestamp   time.Time `json:"timestamp"`
}

// Checkpoint is the unit of rollback: an ordered sequence of entries plus
// creation metadata.
type Checkpoint struct {
	SchemaVersion int       `json:"schemaVersion"`
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Entries       []Entry   `json:"entries"`
}

// Summary describes a stored checkpoint without loading its entries for
// display purposes.
type Summary struct {
	ID        string
	CreatedAt time.Time
	Entries   int
}

// Store persists checkpoints as one JSON file per checkpoint under a single
// directory. Checkpoints are append-only artifacts: the store creates and
// reads them but never deletes without an explicit external request.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a checkpoint directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("checkpoint store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Write persists a checkpoint durably and atomically and returns its id.
// The artifact is written to a temporary file in the same directory, synced,
// then renamed into place so a crash mid-write can never leave a
// readable-but-truncated checkpoint behind.
func (s *Store) Write(entries []Entry) (string, error) {
	if len(entries) == 0 {
		return "", errors.New("checkpoint requires at least one entry")
	}

	cp := Checkpoint{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Entries:       entries,
	}

	data, err := json.MarshalIndent(&cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(cp.ID)); err != nil {
		return "", fmt.Errorf("finalize checkpoint: %w", err)
	}
	return cp.ID, nil
}

// Read loads a checkpoint by id. A missing artifact yields ErrNotFound; an
// artifact that fails structural validation yields ErrCorrupt.
func (s *Store) Read(id string) (*Checkpoint, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", id, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	if err := cp.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	return &cp, nil
}

// List returns summaries of every readable checkpoint, newest first.
// Unreadable artifacts are skipped rather than failing the listing.
func (s *Store) List() ([]Summary, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var summaries []Summary
	for _, ent := range dirents {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		cp, err := s.Read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			ID:        cp.ID,
			CreatedAt: cp.CreatedAt,
			Entries:   len(cp.Entries),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validID guards against path traversal through a caller-supplied id.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

func (cp *Checkpoint) validate() error {
	if cp.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d", cp.SchemaVersion)
	}
	if cp.ID == "" {
		return errors.New("missing id")
	}
	if cp.CreatedAt.IsZero() {
		return errors.New("missing creation timestamp")
	}
	if len(cp.Entries) == 0 {
		return errors.New("no entries")
	}
	for i, entry := range cp.Entries {
		if entry.PID <= 0 {
			return fmt.Errorf("entry %d: invalid pid %d", i, entry.PID)
		}
		if entry.Command == "" {
			return fmt.Errorf("entry %d: missing command", i)
		}
	}
	return nil
}
