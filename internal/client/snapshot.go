package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotKey names the single JSON array kept in the snapshot directory.
const SnapshotKey = "expense-tracker-data"

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no local snapshot")

// SnapshotStore keeps the last successfully loaded list on disk.
type SnapshotStore struct {
	mu  sync.Mutex
	dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

// Path is the snapshot file location.
func (s *SnapshotStore) Path() string {
	return filepath.Join(s.dir, SnapshotKey+".json")
}

// Save replaces the snapshot. The write goes through a temporary file so a
// crash never leaves a truncated array behind.
func (s *SnapshotStore) Save(list []Expense) error {
	if list == nil {
		list = []Expense{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, SnapshotKey+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the raw records. Entries are not reshaped here; an entry that
// does not decode as a record is skipped and counted in skipped.
func (s *SnapshotStore) Load() (records []Record, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, ErrNoSnapshot
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, 0, fmt.Errorf("decode snapshot: %w", err)
	}
	records = make([]Record, 0, len(entries))
	for _, raw := range entries {
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped, nil
}

// Clear removes the snapshot if present.
func (s *SnapshotStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}
