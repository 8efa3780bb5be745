package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/fanfund-tracker/internal/models"
)

// RankRepository maintains the running per-contributor totals for each
// campaign and answers the ranking queries the broadcast needs.
type RankRepository struct {
	db *DB
}

// NewRankRepository creates a new rank repository.
func NewRankRepository(db *DB) *RankRepository {
	return &RankRepository{db: db}
}

// AddAmount applies one contribution to the contributor's running total.
// The increment happens in the database via an upsert so two contributions
// landing in the same tick cannot lose an update, and the fresh total is read
// back through the same connection.
func (r *RankRepository) AddAmount(platform int, campaignID, contributorID int64, amount float64) (*models.RankEntry, error) {
	entry := models.RankEntry{
		Platform:      platform,
		CampaignID:    campaignID,
		ContributorID: contributorID,
		Amount:        amount,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "platform"},
			{Name: "campaign_id"},
			{Name: "contributor_platform_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount": gorm.Expr("rank_entries.amount + excluded.amount"),
		}),
	}).Create(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rank entry: %w", err)
	}

	var updated models.RankEntry
	err = r.db.Where("platform = ? AND campaign_id = ? AND contributor_platform_id = ?",
		platform, campaignID, contributorID).
		First(&updated).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read back rank entry: %w", err)
	}
	return &updated, nil
}

// CountGreater returns how many entries in the campaign hold a strictly
// greater total; rank is this count plus one.
func (r *RankRepository) CountGreater(platform int, campaignID int64, amount float64) (int64, error) {
	var count int64
	err := r.db.Model(&models.RankEntry{}).
		Where("platform = ? AND campaign_id = ? AND amount > ?", platform, campaignID, amount).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count greater rank entries: %w", err)
	}
	return count, nil
}

// AmountAbove returns the total of the entry immediately above the given
// amount in the campaign ordering, or 0 when the amount already leads.
func (r *RankRepository) AmountAbove(platform int, campaignID int64, amount float64) (float64, error) {
	var above float64
	err := r.db.Model(&models.RankEntry{}).
		Where("platform = ? AND campaign_id = ? AND amount > ?", platform, campaignID, amount).
		Select("COALESCE(MIN(amount), 0)").
		Scan(&above).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find rank entry above: %w", err)
	}
	return above, nil
}

// SupporterCount returns the number of distinct contributors in a campaign.
func (r *RankRepository) SupporterCount(platform int, campaignID int64) (int64, error) {
	var count int64
	err := r.db.Model(&models.RankEntry{}).
		Where("platform = ? AND campaign_id = ?", platform, campaignID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count supporters: %w", err)
	}
	return count, nil
}

// Leaderboard lists campaign entries ordered by total descending.
func (r *RankRepository) Leaderboard(platform int, campaignID int64, limit int) ([]models.RankEntry, error) {
	var entries []models.RankEntry
	q := r.db.Where("platform = ? AND campaign_id = ?", platform, campaignID).
		Order("amount DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list rank entries: %w", err)
	}
	return entries, nil
}
