// Package scanner detects new contributions on a campaign feed. A scan
// refreshes the campaign totals, walks feed pages newest-first and stops at
// the first already-seen record, so steady state costs one page per tick.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/cache"
	"github.com/aimd54/fanfund-tracker/internal/metrics"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/internal/platform"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// ContributionRepository interface for dedup lookups.
type ContributionRepository interface {
	ExistsBySignature(platformTag int, campaignID int64, signature string) (bool, error)
}

// NewRecord is a scraped record that passed dedup, with its computed
// signature attached.
type NewRecord struct {
	platform.Record
	Signature string
}

// Service scans campaign feeds for unseen contributions.
type Service struct {
	contribRepo ContributionRepository
	cache       cache.Cache
	lockTTL     time.Duration
	log         *logger.Logger
}

// NewService creates a new scanner service. The lock TTL bounds how long a
// crashed scan can keep its campaign locked.
func NewService(contribRepo ContributionRepository, c cache.Cache, lockTTL time.Duration, log *logger.Logger) *Service {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Service{contribRepo: contribRepo, cache: c, lockTTL: lockTTL, log: log}
}

// Scan refreshes the campaign and returns its unseen records in feed order,
// newest first. An unchanged total skips the feed walk unless force is set;
// force also walks past seen records to recover drops instead of stopping at
// the first one. A scan already in flight for the campaign is skipped, not
// queued.
func (s *Service) Scan(ctx context.Context, campaign *models.Campaign, adapter platform.Adapter, force bool) ([]NewRecord, error) {
	lockKey := fmt.Sprintf("fund:scan:%s:%d", models.PlatformName(campaign.Platform), campaign.CampaignID)
	acquired, err := s.cache.SetNX(ctx, lockKey, time.Now().Unix(), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	if !acquired {
		s.log.Debug().Str("title", campaign.Title).Msg("Scan already in flight, skipping")
		return nil, nil
	}
	defer func() {
		if err := s.cache.Del(context.Background(), lockKey); err != nil {
			s.log.Warn().Err(err).Str("key", lockKey).Msg("Failed to release scan lock")
		}
	}()

	started := time.Now()
	changed, err := adapter.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if !changed && !force {
		s.log.Info().Str("title", campaign.Title).Msg("Campaign amount unchanged, skipping feed scan")
		return nil, nil
	}

	records, err := s.walkFeed(ctx, lockKey, campaign, adapter, force)
	if err != nil {
		return nil, err
	}

	metrics.ObserveScanDuration(models.PlatformName(campaign.Platform), time.Since(started).Seconds())
	s.log.Info().
		Str("title", campaign.Title).
		Int("new_records", len(records)).
		Msg("Scanned campaign feed")
	return records, nil
}

func (s *Service) walkFeed(ctx context.Context, lockKey string, campaign *models.Campaign, adapter platform.Adapter, force bool) ([]NewRecord, error) {
	var out []NewRecord
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		records, isLast, err := adapter.FetchPage(ctx, page)
		if errors.Is(err, platform.ErrNoFeed) {
			// Total-only platform; the refresh above is all there is.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		// A forced walk over a long feed can outlive the initial lock TTL.
		if err := s.cache.Expire(ctx, lockKey, s.lockTTL); err != nil {
			s.log.Warn().Err(err).Str("key", lockKey).Msg("Failed to extend scan lock")
		}

		for _, rec := range records {
			sig := platform.Signature(rec.SignatureInput)
			if seen[sig] {
				continue
			}
			seen[sig] = true

			exists, err := s.contribRepo.ExistsBySignature(campaign.Platform, campaign.CampaignID, sig)
			if err != nil {
				return nil, err
			}
			if exists {
				if force {
					continue
				}
				// Everything older than this record has been ingested.
				return out, nil
			}
			out = append(out, NewRecord{Record: rec, Signature: sig})
		}

		if isLast {
			return out, nil
		}
	}
}
