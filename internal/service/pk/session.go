// Package pk implements head-to-head comparison sessions between campaigns:
// point-in-time snapshots of campaign amounts and reports ranking entries by
// current total or by growth since the last checkpoint.
package pk

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Session modes.
const (
	ModeSimple   = "simple"   // rank by current totals
	ModeIncrease = "increase" // rank by growth since the last checkpoint
)

// State is the lifecycle position of a session relative to its window.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateEnded
)

// Entry is one tracked campaign inside a session. The label is the display
// name rows are reported under; the optional multiplier scales the amount
// before rounding, for handicapped match-ups.
type Entry struct {
	Label      string  `yaml:"label"`
	Platform   int     `yaml:"platform"`
	CampaignID int64   `yaml:"campaign_id"`
	Multiplier float64 `yaml:"multiplier,omitempty"`
}

// Group is a named team of entries whose amounts aggregate before ranking.
type Group struct {
	Title   string  `yaml:"title"`
	Entries []Entry `yaml:"entries"`
}

// Session is one configured comparison, loaded from a YAML file. A session
// has either flat entries or groups, never both.
type Session struct {
	Title     string   `yaml:"title"`
	Mode      string   `yaml:"mode"`
	StartTime int64    `yaml:"start_time"`
	EndTime   int64    `yaml:"end_time"`
	TimeSpots []int64  `yaml:"time_spots,omitempty"` // checkpoint times, unix seconds
	Keywords  []string `yaml:"keywords,omitempty"`
	Entries   []Entry  `yaml:"entries,omitempty"`
	Groups    []Group  `yaml:"groups,omitempty"`
}

// Grouped reports whether the session ranks teams rather than single entries.
func (s *Session) Grouped() bool {
	return len(s.Groups) > 0
}

// AllEntries returns every tracked entry, flattening groups.
func (s *Session) AllEntries() []Entry {
	if !s.Grouped() {
		return s.Entries
	}
	var all []Entry
	for _, g := range s.Groups {
		all = append(all, g.Entries...)
	}
	return all
}

// State returns the session's lifecycle position at the given time.
func (s *Session) State(now time.Time) State {
	switch {
	case now.Unix() < s.StartTime:
		return StateNotStarted
	case now.Unix() > s.EndTime:
		return StateEnded
	default:
		return StateRunning
	}
}

// Validate checks the session definition for the mistakes a hand-edited YAML
// file typically carries.
func (s *Session) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("session title is required")
	}
	if s.Mode != ModeSimple && s.Mode != ModeIncrease {
		return fmt.Errorf("session %q: mode must be %q or %q, got %q", s.Title, ModeSimple, ModeIncrease, s.Mode)
	}
	if s.StartTime >= s.EndTime {
		return fmt.Errorf("session %q: start_time must precede end_time", s.Title)
	}
	if len(s.Entries) == 0 && len(s.Groups) == 0 {
		return fmt.Errorf("session %q: needs entries or groups", s.Title)
	}
	if len(s.Entries) > 0 && len(s.Groups) > 0 {
		return fmt.Errorf("session %q: entries and groups are mutually exclusive", s.Title)
	}
	seen := make(map[string]bool)
	for _, e := range s.AllEntries() {
		if e.Label == "" {
			return fmt.Errorf("session %q: entry label is required", s.Title)
		}
		if seen[e.Label] {
			return fmt.Errorf("session %q: duplicate entry label %q", s.Title, e.Label)
		}
		seen[e.Label] = true
		if e.Multiplier < 0 {
			return fmt.Errorf("session %q: entry %q: multiplier must not be negative", s.Title, e.Label)
		}
	}
	return nil
}

// LoadSession reads and validates one session file.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", path, err)
	}
	var session Session
	if err := yaml.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	return &session, nil
}

// LoadSessions reads every .yaml/.yml session file in a directory. A missing
// directory means no sessions, not an error.
func LoadSessions(dir string) ([]*Session, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session dir %s: %w", dir, err)
	}

	var sessions []*Session
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		session, err := LoadSession(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
