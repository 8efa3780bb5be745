// Package ranking maintains the per-campaign leaderboard aggregates and
// derives the broadcast facts for a freshly ingested contribution.
package ranking

import (
	"fmt"
	"math"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// RankRepository interface for leaderboard aggregate operations.
type RankRepository interface {
	AddAmount(platform int, campaignID, contributorID int64, amount float64) (*models.RankEntry, error)
	CountGreater(platform int, campaignID int64, amount float64) (int64, error)
	AmountAbove(platform int, campaignID int64, amount float64) (float64, error)
	SupporterCount(platform int, campaignID int64) (int64, error)
}

// Facts are the leaderboard-derived values for one contribution, computed
// right after the contributor's running total has been updated.
type Facts struct {
	UserAmount     float64
	Ranking        int
	AmountDistance float64
	SupporterNum   int64
	AverageAmount  float64
	TimeToEnd      string
}

// Service applies contributions to the leaderboard.
type Service struct {
	rankRepo RankRepository
	log      *logger.Logger
}

// NewService creates a new ranking service.
func NewService(rankRepo RankRepository, log *logger.Logger) *Service {
	return &Service{rankRepo: rankRepo, log: log}
}

// Apply accumulates the contribution into the contributor's running total and
// computes the broadcast facts against the updated leaderboard. Rank is
// 1 + the number of strictly greater totals, so equal totals share a rank.
func (s *Service) Apply(campaign *models.Campaign, contributorID int64, amount float64, now time.Time) (*Facts, error) {
	entry, err := s.rankRepo.AddAmount(campaign.Platform, campaign.CampaignID, contributorID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to accumulate rank amount: %w", err)
	}

	greater, err := s.rankRepo.CountGreater(campaign.Platform, campaign.CampaignID, entry.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ranking: %w", err)
	}

	distance := 0.0
	if greater > 0 {
		distance, err = s.rankRepo.AmountAbove(campaign.Platform, campaign.CampaignID, entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to compute amount distance: %w", err)
		}
		distance = round2(distance - entry.Amount)
	}

	supporters, err := s.rankRepo.SupporterCount(campaign.Platform, campaign.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to count supporters: %w", err)
	}

	average := 0.0
	if supporters > 0 {
		average = round2(campaign.Amount / float64(supporters))
	}

	return &Facts{
		UserAmount:     entry.Amount,
		Ranking:        int(greater) + 1,
		AmountDistance: distance,
		SupporterNum:   supporters,
		AverageAmount:  average,
		TimeToEnd:      TimeToEnd(campaign.EndTime, now),
	}, nil
}

// TimeToEnd formats the remaining funding window: whole days above one day,
// hours to two decimals below, and a closed marker after the end.
func TimeToEnd(endTime int64, now time.Time) string {
	remaining := endTime - now.Unix()
	switch {
	case remaining >= 86400:
		return fmt.Sprintf("%d天", remaining/86400)
	case remaining > 0:
		return fmt.Sprintf("%.2f小时", float64(remaining)/3600)
	default:
		return "已经结束"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
