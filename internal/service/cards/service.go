// Package cards implements the probabilistic collectible reward draw.
//
// Each qualifying contribution rolls a half-normal variate whose spread grows
// with the contribution size, maps the roll to a rarity tier and picks a
// uniform random card inside that tier.
package cards

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/aimd54/fanfund-tracker/internal/metrics"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// ErrEmptyTier is returned when the catalog holds no card for the tier the
// draw landed on; the draw fails hard instead of silently degrading.
var ErrEmptyTier = errors.New("no cards configured for tier")

// CardRepository interface for card catalog and possession operations.
type CardRepository interface {
	GetByTier(tier int) ([]models.Card, error)
	RecordContributionCard(record *models.ContributionCard) error
	UpsertContributorCard(record *models.ContributorCard) error
	CountOwnedAtTier(contributorID uint, tier int) (int64, error)
}

// Result is the outcome of one draw.
type Result struct {
	Card       models.Card
	Tier       int
	OwnedCount int64
	TierTotal  int64
}

// Service draws cards for qualifying contributions.
type Service struct {
	cardRepo  CardRepository
	threshold float64
	log       *logger.Logger

	// Randomness seams, overridable in tests.
	normFloat64 func() float64
	intN        func(n int) int
}

// NewService creates a new card draw service.
func NewService(cardRepo CardRepository, threshold float64, log *logger.Logger) *Service {
	return &Service{
		cardRepo:    cardRepo,
		threshold:   threshold,
		log:         log,
		normFloat64: rand.NormFloat64,
		intN:        rand.Intn,
	}
}

// Qualifies reports whether an amount is large enough for a draw.
func (s *Service) Qualifies(amount float64) bool {
	return amount >= s.threshold
}

// Draw rolls a tier for the contribution, picks a card, and records both the
// per-contribution draw and the contributor's possession. The caller runs it
// inside the contribution's transaction.
func (s *Service) Draw(contribution *models.Contribution, contributor *models.Contributor) (*Result, error) {
	tier := s.rollTier(contribution.Amount)

	cards, err := s.cardRepo.GetByTier(tier)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w %d", ErrEmptyTier, tier)
	}
	card := cards[s.intN(len(cards))]

	err = s.cardRepo.RecordContributionCard(&models.ContributionCard{
		ContributionID: contribution.ID,
		Tier:           card.Tier,
		TypeID:         card.TypeID,
	})
	if err != nil {
		return nil, err
	}
	err = s.cardRepo.UpsertContributorCard(&models.ContributorCard{
		ContributorID: contributor.ID,
		Tier:          card.Tier,
		TypeID:        card.TypeID,
	})
	if err != nil {
		return nil, err
	}

	owned, err := s.cardRepo.CountOwnedAtTier(contributor.ID, tier)
	if err != nil {
		return nil, err
	}

	metrics.RecordCardDraw(tier)
	s.log.Debug().
		Str("nickname", contributor.Nickname).
		Int("tier", tier).
		Str("card", card.Name).
		Msg("Drew a card")

	return &Result{
		Card:       card,
		Tier:       tier,
		OwnedCount: owned,
		TierTotal:  int64(len(cards)),
	}, nil
}

// rollTier maps a contribution amount to a rarity tier. The roll is the
// absolute value of a normal variate with variance amount/threshold, plus a
// logarithmic bonus once the ratio exceeds 25, bucketed at 1, 2.5 and 5.
func (s *Service) rollTier(amount float64) int {
	d := amount / s.threshold
	r := math.Abs(s.normFloat64() * math.Sqrt(d))
	if d > 25 {
		r += math.Log2(d / 25)
	}
	switch {
	case r <= 1:
		return 0
	case r <= 2.5:
		return 1
	case r <= 5:
		return 2
	default:
		return 3
	}
}
