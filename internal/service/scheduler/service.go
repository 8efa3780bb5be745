// Package scheduler drives the periodic work: ingest ticks, campaign
// discovery sweeps and PK session management.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/fanfund-tracker/internal/config"
	prommetrics "github.com/aimd54/fanfund-tracker/internal/metrics"
	"github.com/aimd54/fanfund-tracker/internal/service/pk"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// Tracker is the ingest surface the scheduler drives.
type Tracker interface {
	Tick(ctx context.Context, force bool) error
	Discover(ctx context.Context) error
}

// PKService runs checkpoints and reports for PK sessions.
type PKService interface {
	Initialize(ctx context.Context, session *pk.Session, now time.Time) error
	Checkpoint(ctx context.Context, session *pk.Session) error
	Report(ctx context.Context, session *pk.Session) (string, error)
}

// Broadcaster delivers PK reports.
type Broadcaster interface {
	SendText(text string) error
}

// Service owns the cron runner and the PK session registry.
type Service struct {
	cfg         *config.Config
	tracker     Tracker
	pkService   PKService
	registry    *pk.Registry
	broadcaster Broadcaster
	log         *logger.Logger
	cron        *cron.Cron
	startedAt   time.Time

	mu    sync.Mutex
	fired map[string]map[int64]bool // session title -> checkpoint spots already run
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	tracker Tracker,
	pkService PKService,
	registry *pk.Registry,
	broadcaster Broadcaster,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		tracker:     tracker,
		pkService:   pkService,
		registry:    registry,
		broadcaster: broadcaster,
		log:         log,
		startedAt:   time.Now(),
		fired:       make(map[string]map[int64]bool),
	}
}

// Start registers and starts the cron jobs. Intervals set to zero disable
// their job.
func (s *Service) Start() error {
	s.cron = cron.New()

	if interval := s.cfg.Fund.ScanInterval; interval > 0 {
		_, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", interval), func() {
			s.runIngestTick(context.Background())
		})
		if err != nil {
			return fmt.Errorf("failed to register ingest job: %w", err)
		}
	}

	if interval := s.cfg.Fund.DiscoveryInterval; interval > 0 {
		_, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", interval), func() {
			s.runDiscovery(context.Background())
		})
		if err != nil {
			return fmt.Errorf("failed to register discovery job: %w", err)
		}
	}

	_, err := s.cron.AddFunc("@every 1m", func() {
		s.runPKSweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register pk sweep job: %w", err)
	}

	if interval := s.cfg.PK.ReportInterval; interval > 0 {
		_, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", interval), func() {
			s.runPKReports(context.Background())
		})
		if err != nil {
			return fmt.Errorf("failed to register pk report job: %w", err)
		}
	}

	// Pick up sessions that are already due before the first sweep fires.
	s.runPKSweep(context.Background())

	s.cron.Start()
	s.log.Info().
		Int("scan_interval", s.cfg.Fund.ScanInterval).
		Int("discovery_interval", s.cfg.Fund.DiscoveryInterval).
		Int("pk_report_interval", s.cfg.PK.ReportInterval).
		Msg("Scheduler started successfully")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

func (s *Service) runIngestTick(ctx context.Context) {
	if err := s.tracker.Tick(ctx, false); err != nil {
		s.log.Error().Err(err).Msg("Ingest tick failed")
	}
}

func (s *Service) runDiscovery(ctx context.Context) {
	if err := s.tracker.Discover(ctx); err != nil {
		s.log.Error().Err(err).Msg("Discovery sweep failed")
	}
}

// runPKSweep reloads session files, initializes newly seen sessions, fires
// due checkpoint spots and retires ended sessions with a final report.
func (s *Service) runPKSweep(ctx context.Context) {
	sessions, err := pk.LoadSessions(s.cfg.PK.SessionDir)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load PK sessions")
		return
	}
	now := time.Now()

	for _, session := range sessions {
		if session.State(now) == pk.StateEnded {
			// Stale definition file; never picked up, nothing to retire.
			continue
		}
		if s.registry.Register(session) {
			s.log.Info().
				Str("session", session.Title).
				Str("mode", session.Mode).
				Msg("Registered PK session")
			if err := s.pkService.Initialize(ctx, session, now); err != nil {
				s.log.Error().Err(err).Str("session", session.Title).Msg("Failed to initialize PK session")
			}
		}
	}

	for _, session := range s.registry.Active() {
		switch session.State(now) {
		case pk.StateRunning:
			s.fireDueCheckpoints(ctx, session, now)
		case pk.StateEnded:
			s.finishSession(ctx, session)
		}
	}
}

func (s *Service) fireDueCheckpoints(ctx context.Context, session *pk.Session, now time.Time) {
	for _, spot := range session.TimeSpots {
		if spot > now.Unix() || s.alreadyFired(session.Title, spot) {
			continue
		}
		// Spots due before this process started ran in a previous life; the
		// fired-set does not survive a restart, and re-firing them would
		// overwrite the snapshot baseline with current amounts.
		if spot < s.startedAt.Unix() {
			continue
		}
		if err := s.pkService.Checkpoint(ctx, session); err != nil {
			s.log.Error().Err(err).Str("session", session.Title).Msg("PK checkpoint failed")
			continue
		}
		s.markFired(session.Title, spot)
	}
}

func (s *Service) finishSession(ctx context.Context, session *pk.Session) {
	text, err := s.pkService.Report(ctx, session)
	if err != nil {
		s.log.Error().Err(err).Str("session", session.Title).Msg("Final PK report failed")
	} else if err := s.broadcaster.SendText(text); err != nil {
		s.log.Error().Err(err).Str("session", session.Title).Msg("Failed to send final PK report")
	}

	s.registry.Unregister(session.Title)
	s.mu.Lock()
	delete(s.fired, session.Title)
	s.mu.Unlock()
	s.log.Info().Str("session", session.Title).Msg("PK session ended")
}

func (s *Service) runPKReports(ctx context.Context) {
	now := time.Now()
	for _, session := range s.registry.Active() {
		if session.State(now) != pk.StateRunning {
			continue
		}
		text, err := s.pkService.Report(ctx, session)
		if err != nil {
			s.log.Error().Err(err).Str("session", session.Title).Msg("PK report failed")
			prommetrics.RecordBroadcast("pk", "error")
			continue
		}
		if err := s.broadcaster.SendText(text); err != nil {
			s.log.Error().Err(err).Str("session", session.Title).Msg("Failed to send PK report")
			prommetrics.RecordBroadcast("pk", "error")
			continue
		}
		prommetrics.RecordBroadcast("pk", "success")
	}
}

func (s *Service) alreadyFired(title string, spot int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[title][spot]
}

func (s *Service) markFired(title string, spot int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[title] == nil {
		s.fired[title] = make(map[int64]bool)
	}
	s.fired[title][spot] = true
}
