package repository

import (
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/aimd54/fanfund-tracker/internal/models"
)

// CardRepository handles the card catalog and the contribution/contributor
// join records produced by draws.
type CardRepository struct {
	db *DB
}

// NewCardRepository creates a new card repository.
func NewCardRepository(db *DB) *CardRepository {
	return &CardRepository{db: db}
}

// CreateCard inserts a catalog entry. Catalog data is loaded out of band.
func (r *CardRepository) CreateCard(card *models.Card) error {
	if err := r.db.Create(card).Error; err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// GetByTier lists the catalog cards in one tier, ordered by type id.
func (r *CardRepository) GetByTier(tier int) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.Where("tier = ?", tier).Order("type_id ASC").Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for tier %d: %w", tier, err)
	}
	return cards, nil
}

// CountByTier returns the catalog size of one tier.
func (r *CardRepository) CountByTier(tier int) (int64, error) {
	var count int64
	err := r.db.Model(&models.Card{}).Where("tier = ?", tier).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count cards for tier %d: %w", tier, err)
	}
	return count, nil
}

// RecordContributionCard appends the contribution-level draw record.
func (r *CardRepository) RecordContributionCard(record *models.ContributionCard) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to record contribution card: %w", err)
	}
	return nil
}

// UpsertContributorCard marks possession; a repeat draw of the same card is a
// no-op rather than a duplicate row.
func (r *CardRepository) UpsertContributorCard(record *models.ContributorCard) error {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert contributor card: %w", err)
	}
	return nil
}

// CountOwnedAtTier returns how many distinct cards of a tier a contributor owns.
func (r *CardRepository) CountOwnedAtTier(contributorID uint, tier int) (int64, error) {
	var count int64
	err := r.db.Model(&models.ContributorCard{}).
		Where("contributor_id = ? AND tier = ?", contributorID, tier).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count owned cards: %w", err)
	}
	return count, nil
}

// GetContributorCards lists the cards a contributor owns, with catalog details.
func (r *CardRepository) GetContributorCards(contributorID uint) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.Model(&models.Card{}).
		Joins("JOIN contributor_cards ON contributor_cards.tier = cards.tier AND contributor_cards.type_id = cards.type_id").
		Where("contributor_cards.contributor_id = ?", contributorID).
		Order("cards.tier ASC, cards.type_id ASC").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contributor cards: %w", err)
	}
	return cards, nil
}
