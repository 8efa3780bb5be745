package pk

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validSession() *Session {
	return &Session{
		Title:     "battle",
		Mode:      ModeSimple,
		StartTime: 100,
		EndTime:   200,
		Entries: []Entry{
			{Label: "a", Platform: 1, CampaignID: 10},
			{Label: "b", Platform: 2, CampaignID: 20},
		},
	}
}

func TestSessionValidate(t *testing.T) {
	if err := validSession().Validate(); err != nil {
		t.Fatalf("Expected valid session, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Session)
	}{
		{"missing title", func(s *Session) { s.Title = "" }},
		{"bad mode", func(s *Session) { s.Mode = "versus" }},
		{"inverted window", func(s *Session) { s.StartTime, s.EndTime = 200, 100 }},
		{"no entries", func(s *Session) { s.Entries = nil }},
		{"entries and groups", func(s *Session) {
			s.Groups = []Group{{Title: "g", Entries: []Entry{{Label: "c", Platform: 1, CampaignID: 1}}}}
		}},
		{"blank label", func(s *Session) { s.Entries[0].Label = "" }},
		{"duplicate label", func(s *Session) { s.Entries[1].Label = "a" }},
		{"negative multiplier", func(s *Session) { s.Entries[0].Multiplier = -1 }},
	}
	for _, c := range cases {
		s := validSession()
		c.mutate(s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestSessionValidateRejectsDuplicateLabelAcrossGroups(t *testing.T) {
	s := &Session{
		Title:     "team battle",
		Mode:      ModeIncrease,
		StartTime: 100,
		EndTime:   200,
		Groups: []Group{
			{Title: "red", Entries: []Entry{{Label: "a", Platform: 1, CampaignID: 1}}},
			{Title: "blue", Entries: []Entry{{Label: "a", Platform: 1, CampaignID: 2}}},
		},
	}
	if err := s.Validate(); err == nil {
		t.Error("Expected duplicate label across groups to fail")
	}
}

func TestSessionState(t *testing.T) {
	s := validSession()
	if got := s.State(time.Unix(50, 0)); got != StateNotStarted {
		t.Errorf("Expected StateNotStarted, got %v", got)
	}
	if got := s.State(time.Unix(100, 0)); got != StateRunning {
		t.Errorf("Expected StateRunning at the opening bound, got %v", got)
	}
	if got := s.State(time.Unix(200, 0)); got != StateRunning {
		t.Errorf("Expected StateRunning at the closing bound, got %v", got)
	}
	if got := s.State(time.Unix(201, 0)); got != StateEnded {
		t.Errorf("Expected StateEnded, got %v", got)
	}
}

func TestAllEntriesFlattensGroups(t *testing.T) {
	s := &Session{
		Groups: []Group{
			{Title: "red", Entries: []Entry{{Label: "a"}, {Label: "b"}}},
			{Title: "blue", Entries: []Entry{{Label: "c"}}},
		},
	}
	if !s.Grouped() {
		t.Fatal("Expected grouped session")
	}
	all := s.AllEntries()
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[0].Label != "a" || all[2].Label != "c" {
		t.Errorf("Unexpected flatten order: %q .. %q", all[0].Label, all[2].Label)
	}
}

const sampleSessionYAML = `title: birthday battle
mode: increase
start_time: 1700000000
end_time: 1700086400
time_spots:
  - 1700043200
entries:
  - label: 团子
    platform: 1
    campaign_id: 114514
  - label: 丸子
    platform: 2
    campaign_id: 1919
    multiplier: 1.5
`

func TestLoadSessions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "battle.yaml"), []byte(sampleSessionYAML), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a session"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	sessions, err := LoadSessions(dir)
	if err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}

	s := sessions[0]
	if s.Title != "birthday battle" || s.Mode != ModeIncrease {
		t.Errorf("Unexpected session header: %+v", s)
	}
	if len(s.TimeSpots) != 1 || s.TimeSpots[0] != 1700043200 {
		t.Errorf("Unexpected time spots: %v", s.TimeSpots)
	}
	if len(s.Entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(s.Entries))
	}
	if s.Entries[1].Multiplier != 1.5 {
		t.Errorf("Expected multiplier 1.5, got %v", s.Entries[1].Multiplier)
	}
}

func TestLoadSessionsMissingDir(t *testing.T) {
	sessions, err := LoadSessions(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Expected missing dir to mean no sessions, got %v", err)
	}
	if sessions != nil {
		t.Errorf("Expected nil sessions, got %v", sessions)
	}
}

func TestLoadSessionsRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("title: broken\nmode: nope\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadSessions(dir); err == nil {
		t.Error("Expected invalid session file to fail the load")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := validSession()

	if !r.Register(s) {
		t.Fatal("Expected first registration to succeed")
	}
	if r.Register(s) {
		t.Error("Expected repeated registration to report already present")
	}
	if got := len(r.Active()); got != 1 {
		t.Fatalf("Expected 1 active session, got %d", got)
	}

	r.Unregister(s.Title)
	if got := len(r.Active()); got != 0 {
		t.Errorf("Expected no active sessions, got %d", got)
	}
}
