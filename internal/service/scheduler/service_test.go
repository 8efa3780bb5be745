package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/config"
	"github.com/aimd54/fanfund-tracker/internal/service/pk"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
	"github.com/aimd54/fanfund-tracker/test/mocks"
)

type stubPK struct {
	initialized []string
	checkpoints []string
	reports     []string
	reportErr   error
}

func (s *stubPK) Initialize(ctx context.Context, session *pk.Session, now time.Time) error {
	s.initialized = append(s.initialized, session.Title)
	return nil
}

func (s *stubPK) Checkpoint(ctx context.Context, session *pk.Session) error {
	s.checkpoints = append(s.checkpoints, session.Title)
	return nil
}

func (s *stubPK) Report(ctx context.Context, session *pk.Session) (string, error) {
	if s.reportErr != nil {
		return "", s.reportErr
	}
	s.reports = append(s.reports, session.Title)
	return session.Title + ": report", nil
}

type stubTracker struct {
	ticks     int
	discovers int
}

func (s *stubTracker) Tick(ctx context.Context, force bool) error {
	s.ticks++
	return nil
}

func (s *stubTracker) Discover(ctx context.Context) error {
	s.discovers++
	return nil
}

type fixture struct {
	service     *Service
	pk          *stubPK
	tracker     *stubTracker
	registry    *pk.Registry
	broadcaster *mocks.MockBroadcaster
	sessionDir  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.PK.SessionDir = dir

	f := &fixture{
		pk:          &stubPK{},
		tracker:     &stubTracker{},
		registry:    pk.NewRegistry(),
		broadcaster: &mocks.MockBroadcaster{},
		sessionDir:  dir,
	}
	f.service = NewService(cfg, f.tracker, f.pk, f.registry, f.broadcaster, logger.New("error", "json", "stdout"))
	return f
}

func writeSession(t *testing.T, dir, title string, start, end int64, spots []int64) {
	t.Helper()
	body := fmt.Sprintf("title: %s\nmode: increase\nstart_time: %d\nend_time: %d\n", title, start, end)
	if len(spots) > 0 {
		body += "time_spots:\n"
		for _, spot := range spots {
			body += fmt.Sprintf("  - %d\n", spot)
		}
	}
	body += "entries:\n  - label: a\n    platform: 1\n    campaign_id: 1\n  - label: b\n    platform: 1\n    campaign_id: 2\n"
	if err := os.WriteFile(filepath.Join(dir, title+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestSweepRegistersAndInitializesOnce(t *testing.T) {
	f := setup(t)
	now := time.Now().Unix()
	writeSession(t, f.sessionDir, "battle", now-3600, now+3600, nil)

	f.service.runPKSweep(context.Background())
	if len(f.registry.Active()) != 1 {
		t.Fatalf("Expected 1 registered session, got %d", len(f.registry.Active()))
	}
	if len(f.pk.initialized) != 1 || f.pk.initialized[0] != "battle" {
		t.Fatalf("Expected one initialize call, got %v", f.pk.initialized)
	}

	// A repeat sweep must not re-initialize.
	f.service.runPKSweep(context.Background())
	if len(f.pk.initialized) != 1 {
		t.Errorf("Expected no repeat initialization, got %v", f.pk.initialized)
	}
}

func TestSweepIgnoresStaleSessionFiles(t *testing.T) {
	f := setup(t)
	now := time.Now().Unix()
	writeSession(t, f.sessionDir, "old", now-7200, now-3600, nil)

	f.service.runPKSweep(context.Background())
	if len(f.registry.Active()) != 0 {
		t.Errorf("Expected stale session to stay unregistered, got %d", len(f.registry.Active()))
	}
	if len(f.pk.initialized) != 0 {
		t.Errorf("Expected no initialization, got %v", f.pk.initialized)
	}
}

func TestSweepFiresDueCheckpointsOnce(t *testing.T) {
	f := setup(t)
	f.service.startedAt = time.Now().Add(-5 * time.Minute)
	now := time.Now().Unix()
	writeSession(t, f.sessionDir, "battle", now-3600, now+3600, []int64{now - 60, now + 3000})

	f.service.runPKSweep(context.Background())
	if len(f.pk.checkpoints) != 1 {
		t.Fatalf("Expected the past spot to fire once, got %v", f.pk.checkpoints)
	}

	// The fired spot stays fired; the future spot stays pending.
	f.service.runPKSweep(context.Background())
	if len(f.pk.checkpoints) != 1 {
		t.Errorf("Expected no repeat checkpoint, got %v", f.pk.checkpoints)
	}
}

func TestSweepSkipsSpotsFromBeforeProcessStart(t *testing.T) {
	f := setup(t)
	f.service.startedAt = time.Now().Add(-5 * time.Minute)
	now := time.Now().Unix()
	// One spot fired during a previous run, one came due in this one. After
	// a restart only the fresh spot may fire: re-running the old one would
	// rewrite the snapshot baseline with current amounts.
	writeSession(t, f.sessionDir, "battle", now-7200, now+3600, []int64{now - 3600, now - 60})

	f.service.runPKSweep(context.Background())
	if len(f.pk.checkpoints) != 1 {
		t.Errorf("Expected only the spot from this run to fire, got %v", f.pk.checkpoints)
	}
}

func TestSweepRetiresEndedSessionWithFinalReport(t *testing.T) {
	f := setup(t)
	now := time.Now().Unix()
	writeSession(t, f.sessionDir, "battle", now-3600, now+3600, nil)

	f.service.runPKSweep(context.Background())
	if len(f.registry.Active()) != 1 {
		t.Fatalf("Expected 1 registered session, got %d", len(f.registry.Active()))
	}

	// The window closes between sweeps.
	f.registry.Active()[0].EndTime = now - 1
	f.service.runPKSweep(context.Background())

	if len(f.registry.Active()) != 0 {
		t.Errorf("Expected the session to be retired, got %d active", len(f.registry.Active()))
	}
	if len(f.pk.reports) != 1 {
		t.Errorf("Expected one final report, got %v", f.pk.reports)
	}
	sent := f.broadcaster.Sent()
	if len(sent) != 1 || sent[0] != "battle: report" {
		t.Errorf("Expected the final report broadcast, got %q", sent)
	}
}

func TestRunPKReports(t *testing.T) {
	f := setup(t)
	now := time.Now().Unix()

	running := &pk.Session{Title: "running", Mode: pk.ModeSimple, StartTime: now - 100, EndTime: now + 100,
		Entries: []pk.Entry{{Label: "a", Platform: 1, CampaignID: 1}}}
	pending := &pk.Session{Title: "pending", Mode: pk.ModeSimple, StartTime: now + 100, EndTime: now + 200,
		Entries: []pk.Entry{{Label: "b", Platform: 1, CampaignID: 2}}}
	f.registry.Register(running)
	f.registry.Register(pending)

	f.service.runPKReports(context.Background())

	if len(f.pk.reports) != 1 || f.pk.reports[0] != "running" {
		t.Fatalf("Expected only the running session to report, got %v", f.pk.reports)
	}
	sent := f.broadcaster.Sent()
	if len(sent) != 1 || sent[0] != "running: report" {
		t.Errorf("Expected the report broadcast, got %q", sent)
	}
}

func TestRunIngestAndDiscovery(t *testing.T) {
	f := setup(t)
	f.service.runIngestTick(context.Background())
	f.service.runDiscovery(context.Background())
	if f.tracker.ticks != 1 || f.tracker.discovers != 1 {
		t.Errorf("Expected one tick and one discovery, got %d and %d", f.tracker.ticks, f.tracker.discovers)
	}
}
