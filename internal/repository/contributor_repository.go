package repository

import (
	"fmt"

	"github.com/aimd54/fanfund-tracker/internal/models"
)

// ContributorRepository handles cross-platform contributor identities.
type ContributorRepository struct {
	db *DB
}

// NewContributorRepository creates a new contributor repository.
func NewContributorRepository(db *DB) *ContributorRepository {
	return &ContributorRepository{db: db}
}

// GetByID retrieves a contributor by internal id.
func (r *ContributorRepository) GetByID(id uint) (*models.Contributor, error) {
	var contributor models.Contributor
	if err := r.db.First(&contributor, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get contributor %d: %w", id, err)
	}
	return &contributor, nil
}

// FindByPlatformID retrieves a contributor by a platform user id without
// creating one.
func (r *ContributorRepository) FindByPlatformID(platform int, platformUserID int64) (*models.Contributor, error) {
	column, err := platformColumn(platform)
	if err != nil {
		return nil, err
	}
	var contributor models.Contributor
	if err := r.db.Where(column+" = ?", platformUserID).First(&contributor).Error; err != nil {
		return nil, fmt.Errorf("failed to look up contributor on %s: %w", models.PlatformName(platform), err)
	}
	return &contributor, nil
}

// FindOrCreateByPlatformID maps a platform user id to the internal identity,
// creating the record lazily the first time a contributor is seen. The
// nickname refreshes on change unless a chat id has been bound, after which
// the self-chosen name wins.
func (r *ContributorRepository) FindOrCreateByPlatformID(platform int, platformUserID int64, nickname string) (*models.Contributor, error) {
	column, err := platformColumn(platform)
	if err != nil {
		return nil, err
	}

	var contributor models.Contributor
	err = r.db.Where(column+" = ?", platformUserID).First(&contributor).Error
	if err == nil {
		if contributor.ChatID == "" && nickname != "" && contributor.Nickname != nickname {
			contributor.Nickname = nickname
			if err := r.db.Save(&contributor).Error; err != nil {
				return nil, fmt.Errorf("failed to refresh contributor nickname: %w", err)
			}
		}
		return &contributor, nil
	}
	if !IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up contributor on %s: %w", models.PlatformName(platform), err)
	}

	contributor = models.Contributor{Nickname: nickname}
	switch platform {
	case models.PlatformModian:
		contributor.ModianID = platformUserID
	case models.PlatformTaoba:
		contributor.TaobaID = platformUserID
	case models.PlatformOwhat:
		contributor.OwhatID = platformUserID
	}
	if err := r.db.Create(&contributor).Error; err != nil {
		return nil, fmt.Errorf("failed to create contributor: %w", err)
	}
	return &contributor, nil
}

// platformColumn maps a platform tag to the external-id column.
func platformColumn(platform int) (string, error) {
	switch platform {
	case models.PlatformModian:
		return "modian_id", nil
	case models.PlatformTaoba:
		return "taoba_id", nil
	case models.PlatformOwhat:
		return "owhat_id", nil
	default:
		return "", fmt.Errorf("unknown platform %d", platform)
	}
}
