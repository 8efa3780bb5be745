// Package tracker orchestrates the ingest tick: it scans every active
// campaign, persists each new contribution atomically with its ranking and
// reward effects, and hands the rendered messages to the broadcaster.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/broadcast"
	"github.com/aimd54/fanfund-tracker/internal/cache"
	"github.com/aimd54/fanfund-tracker/internal/metrics"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/internal/platform"
	"github.com/aimd54/fanfund-tracker/internal/repository"
	"github.com/aimd54/fanfund-tracker/internal/service/cards"
	"github.com/aimd54/fanfund-tracker/internal/service/ranking"
	"github.com/aimd54/fanfund-tracker/internal/service/scanner"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// Broadcaster is the delivery surface the tracker needs.
type Broadcaster interface {
	SendText(text string) error
	SendBatch(messages []string) error
}

// Scanner detects unseen contributions on one campaign feed.
type Scanner interface {
	Scan(ctx context.Context, campaign *models.Campaign, adapter platform.Adapter, force bool) ([]scanner.NewRecord, error)
}

// AdapterFactory builds platform adapters and discovers new campaigns.
type AdapterFactory interface {
	ForCampaign(campaign *models.Campaign) (platform.Adapter, error)
	Discover(ctx context.Context) ([]platform.Discovered, error)
}

// Service runs ingest ticks and campaign discovery.
type Service struct {
	db             *repository.DB
	campaignRepo   *repository.CampaignRepository
	factory        AdapterFactory
	scanner        Scanner
	composer       *broadcast.Composer
	broadcaster    Broadcaster
	cache          cache.Cache
	threshold      float64
	maxConcurrency int
	tierNames      func(tier int) string
	log            *logger.Logger
}

// NewService creates a new tracker service.
func NewService(
	db *repository.DB,
	campaignRepo *repository.CampaignRepository,
	factory AdapterFactory,
	scan Scanner,
	composer *broadcast.Composer,
	broadcaster Broadcaster,
	c cache.Cache,
	threshold float64,
	maxConcurrency int,
	log *logger.Logger,
) *Service {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Service{
		db:             db,
		campaignRepo:   campaignRepo,
		factory:        factory,
		scanner:        scan,
		composer:       composer,
		broadcaster:    broadcaster,
		cache:          c,
		threshold:      threshold,
		maxConcurrency: maxConcurrency,
		log:            log,
	}
}

// Tick scans every active campaign once. Campaigns run concurrently up to the
// configured bound; one campaign's failure never aborts the others. Force
// rescans feeds even when totals look unchanged, to recover dropped records.
func (s *Service) Tick(ctx context.Context, force bool) error {
	campaigns, err := s.campaignRepo.GetActive(time.Now())
	if err != nil {
		return err
	}
	s.publishActiveCounts(campaigns)

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrency)
	for i := range campaigns {
		campaign := campaigns[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.trackCampaign(ctx, &campaign, force); err != nil {
				metrics.RecordScan(models.PlatformName(campaign.Platform), "error")
				s.log.Error().Err(err).
					Str("title", campaign.Title).
					Msg("Campaign tick failed")
				return
			}
			metrics.RecordScan(models.PlatformName(campaign.Platform), "success")
		}()
	}
	wg.Wait()

	metrics.SetSchedulerLastTick()
	return nil
}

func (s *Service) trackCampaign(ctx context.Context, campaign *models.Campaign, force bool) error {
	adapter, err := s.factory.ForCampaign(campaign)
	if err != nil {
		return err
	}

	records, err := s.scanner.Scan(ctx, campaign, adapter, force)
	if err != nil {
		return err
	}

	// The refresh mutated the campaign even when nothing new was found.
	if err := s.campaignRepo.Update(campaign); err != nil {
		return err
	}
	metrics.SetCampaignAmount(models.PlatformName(campaign.Platform), campaign.Title, campaign.Amount)

	var messages []string
	for _, record := range records {
		msgs, err := s.ingest(campaign, adapter, record)
		if err != nil {
			// One bad contribution is dropped; the rest of the batch proceeds.
			s.log.Error().Err(err).
				Str("title", campaign.Title).
				Str("signature", record.Signature).
				Msg("Failed to ingest contribution")
			continue
		}
		messages = append(messages, msgs...)
	}

	if len(messages) == 0 {
		return nil
	}
	if err := s.broadcaster.SendBatch(messages); err != nil {
		metrics.RecordBroadcast("fund", "error")
		return err
	}
	metrics.RecordBroadcast("fund", "success")
	return nil
}

// ingest persists one contribution with its ranking and reward effects in a
// single transaction and returns the messages to broadcast once committed.
func (s *Service) ingest(campaign *models.Campaign, adapter platform.Adapter, record scanner.NewRecord) ([]string, error) {
	var messages []string
	var nickname string
	err := s.db.Transaction(func(tx *repository.DB) error {
		messages = messages[:0]

		contribution := &models.Contribution{
			Platform:      campaign.Platform,
			CampaignID:    campaign.CampaignID,
			ContributorID: record.ContributorID,
			Amount:        record.Amount,
			Signature:     record.Signature,
			Nickname:      record.Nickname,
		}
		if err := repository.NewContributionRepository(tx).Create(contribution); err != nil {
			return err
		}

		contributor, err := repository.NewContributorRepository(tx).
			FindOrCreateByPlatformID(campaign.Platform, record.ContributorID, record.Nickname)
		if err != nil {
			return err
		}
		nickname = contributor.Nickname

		rankSvc := ranking.NewService(repository.NewRankRepository(tx), s.log)
		facts, err := rankSvc.Apply(campaign, record.ContributorID, record.Amount, time.Now())
		if err != nil {
			return err
		}

		fundMsg, err := s.composer.ComposeFund(&broadcast.FundFacts{
			Title:          campaign.Title,
			Nickname:       contributor.Nickname,
			Amount:         record.Amount,
			UserAmount:     facts.UserAmount,
			Ranking:        facts.Ranking,
			AmountDistance: facts.AmountDistance,
			TotalAmount:    campaign.Amount,
			SupporterNum:   facts.SupporterNum,
			AverageAmount:  facts.AverageAmount,
			TimeToEnd:      facts.TimeToEnd,
			Link:           adapter.Link(),
		})
		if err != nil {
			return err
		}

		cardSvc := cards.NewService(repository.NewCardRepository(tx), s.threshold, s.log)
		if !cardSvc.Qualifies(record.Amount) {
			messages = append(messages, fundMsg+"\n"+s.composer.Encouragement())
			return nil
		}
		messages = append(messages, fundMsg)

		result, err := cardSvc.Draw(contribution, contributor)
		if err != nil {
			return err
		}
		cardMsg, err := s.composer.ComposeCard(&broadcast.CardFacts{
			Nickname:    contributor.Nickname,
			TierName:    s.tierName(result.Tier),
			Name:        result.Card.Name,
			Description: result.Card.Description,
			OwnedCount:  result.OwnedCount,
			TierTotal:   result.TierTotal,
			Image:       result.Card.FileName,
		})
		if err != nil {
			return err
		}
		messages = append(messages, cardMsg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Refresh the nickname the dashboard serves; a stale or lost key only
	// costs a database lookup there.
	nickKey := cache.NicknameKey(campaign.Platform, record.ContributorID)
	if err := s.cache.Set(context.Background(), nickKey, nickname, cache.NicknameTTL); err != nil {
		s.log.Warn().Err(err).Str("key", nickKey).Msg("Failed to cache nickname")
	}

	metrics.RecordContribution(models.PlatformName(campaign.Platform), record.Amount)
	return messages, nil
}

// SetTierNames installs the tier display-name lookup; kept off the
// constructor because most tests never render card messages.
func (s *Service) SetTierNames(fn func(tier int) string) {
	s.tierNames = fn
}

func (s *Service) tierName(tier int) string {
	if s.tierNames == nil {
		return fmt.Sprintf("Tier %d", tier)
	}
	return s.tierNames(tier)
}

// Discover sweeps the configured fan-club accounts for campaigns that are not
// tracked yet, registers them and announces each find.
func (s *Service) Discover(ctx context.Context) error {
	found, err := s.factory.Discover(ctx)
	if err != nil {
		metrics.RecordDiscoveryRun("error")
		return err
	}

	for _, d := range found {
		exists, err := s.campaignRepo.Exists(d.Platform, d.CampaignID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		campaign := &models.Campaign{Platform: d.Platform, CampaignID: d.CampaignID}
		adapter, err := s.factory.ForCampaign(campaign)
		if err != nil {
			return err
		}
		if _, err := adapter.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).
				Str("platform", models.PlatformName(d.Platform)).
				Int64("campaign_id", d.CampaignID).
				Msg("Failed to refresh discovered campaign")
			continue
		}
		if err := s.campaignRepo.Create(campaign); err != nil {
			return err
		}

		s.log.Info().Str("title", campaign.Title).Msg("Discovered new campaign")
		text := fmt.Sprintf("发现新项目：%s\n%s", campaign.Title, adapter.Link())
		if err := s.broadcaster.SendText(text); err != nil {
			s.log.Warn().Err(err).Msg("Failed to announce new campaign")
		}
	}

	metrics.RecordDiscoveryRun("success")
	return nil
}

func (s *Service) publishActiveCounts(campaigns []models.Campaign) {
	counts := make(map[int]int)
	for _, c := range campaigns {
		counts[c.Platform]++
	}
	for _, p := range []int{models.PlatformModian, models.PlatformTaoba, models.PlatformOwhat} {
		metrics.SetActiveCampaigns(models.PlatformName(p), counts[p])
	}
}
