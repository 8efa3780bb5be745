package repository

import (
	"fmt"

	"github.com/aimd54/fanfund-tracker/internal/models"
)

// ContributionRepository handles the contribution log and its signature index.
type ContributionRepository struct {
	db *DB
}

// NewContributionRepository creates a new contribution repository.
func NewContributionRepository(db *DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// Create appends a contribution. The signature unique index rejects a second
// insert of the same real-world event within a campaign scope.
func (r *ContributionRepository) Create(contribution *models.Contribution) error {
	if err := r.db.Create(contribution).Error; err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// ExistsBySignature reports whether a contribution with this signature was
// already recorded for the campaign.
func (r *ContributionRepository) ExistsBySignature(platform int, campaignID int64, signature string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Contribution{}).
		Where("platform = ? AND campaign_id = ? AND signature = ?", platform, campaignID, signature).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check contribution signature: %w", err)
	}
	return count > 0, nil
}

// CountByCampaign returns the number of recorded contributions for a campaign.
func (r *ContributionRepository) CountByCampaign(platform int, campaignID int64) (int64, error) {
	var count int64
	err := r.db.Model(&models.Contribution{}).
		Where("platform = ? AND campaign_id = ?", platform, campaignID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count contributions: %w", err)
	}
	return count, nil
}

// GetRecent retrieves the latest contributions for a campaign.
func (r *ContributionRepository) GetRecent(platform int, campaignID int64, limit int) ([]models.Contribution, error) {
	var contributions []models.Contribution
	q := r.db.Where("platform = ? AND campaign_id = ?", platform, campaignID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&contributions).Error; err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	return contributions, nil
}
