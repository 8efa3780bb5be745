package pk

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSnapshot is returned when an increase-mode report runs before any
// checkpoint has been recorded. The report must fail rather than default to
// zero deltas.
var ErrNoSnapshot = errors.New("no snapshot recorded for session")

// SnapshotStore persists one amount snapshot per session title as a JSON
// file, overwritten at every checkpoint.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates a snapshot store rooted at dir.
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

// Save writes the snapshot for a session, replacing any prior one.
func (s *SnapshotStore) Save(title string, amounts map[string]float64) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(amounts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %q: %w", title, err)
	}
	if err := os.WriteFile(s.path(title), data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot for %q: %w", title, err)
	}
	return nil
}

// Load reads the snapshot for a session. A missing file yields ErrNoSnapshot.
func (s *SnapshotStore) Load(title string) (map[string]float64, error) {
	data, err := os.ReadFile(s.path(title))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrNoSnapshot, title)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot for %q: %w", title, err)
	}
	var amounts map[string]float64
	if err := json.Unmarshal(data, &amounts); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %q: %w", title, err)
	}
	return amounts, nil
}

// Exists reports whether a snapshot has been recorded for a session.
func (s *SnapshotStore) Exists(title string) bool {
	_, err := os.Stat(s.path(title))
	return err == nil
}

func (s *SnapshotStore) path(title string) string {
	// Titles are operator-chosen display strings; keep them out of path syntax.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(title)
	return filepath.Join(s.dir, safe+".json")
}
