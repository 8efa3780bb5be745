package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/fanfund-tracker/internal/models"
)

// CampaignRepository handles campaign-related database operations.
type CampaignRepository struct {
	db *DB
}

// NewCampaignRepository creates a new campaign repository.
func NewCampaignRepository(db *DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign record.
func (r *CampaignRepository) Create(campaign *models.Campaign) error {
	if err := r.db.Create(campaign).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// Get retrieves a campaign by platform and campaign id.
func (r *CampaignRepository) Get(platform int, campaignID int64) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.Where("platform = ? AND campaign_id = ?", platform, campaignID).
		First(&campaign).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign %s/%d: %w", models.PlatformName(platform), campaignID, err)
	}
	return &campaign, nil
}

// Exists reports whether a campaign is already tracked.
func (r *CampaignRepository) Exists(platform int, campaignID int64) (bool, error) {
	var count int64
	err := r.db.Model(&models.Campaign{}).
		Where("platform = ? AND campaign_id = ?", platform, campaignID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check campaign %s/%d: %w", models.PlatformName(platform), campaignID, err)
	}
	return count > 0, nil
}

// Update persists refreshed campaign fields.
func (r *CampaignRepository) Update(campaign *models.Campaign) error {
	if err := r.db.Save(campaign).Error; err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

// GetActive lists campaigns whose window contains now.
func (r *CampaignRepository) GetActive(now time.Time) ([]models.Campaign, error) {
	ts := now.Unix()
	var campaigns []models.Campaign
	err := r.db.Where("start_time <= ? AND end_time >= ?", ts, ts).
		Order("start_time ASC").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	return campaigns, nil
}

// GetUpcoming lists campaigns that have not started yet.
func (r *CampaignRepository) GetUpcoming(now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.Where("start_time > ?", now.Unix()).
		Order("start_time ASC").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming campaigns: %w", err)
	}
	return campaigns, nil
}

// List retrieves all tracked campaigns, newest first.
func (r *CampaignRepository) List() ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.Order("start_time DESC").Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
