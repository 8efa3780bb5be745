// Package dashboard provides REST API handlers for the tracker dashboard:
// tracked campaigns, per-campaign leaderboards and contributor collections.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/fanfund-tracker/internal/cache"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/internal/repository"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// CampaignRepository interface for campaign reads.
type CampaignRepository interface {
	List() ([]models.Campaign, error)
	Get(platform int, campaignID int64) (*models.Campaign, error)
}

// RankRepository interface for leaderboard reads.
type RankRepository interface {
	Leaderboard(platform int, campaignID int64, limit int) ([]models.RankEntry, error)
}

// CardRepository interface for contributor collection reads.
type CardRepository interface {
	GetContributorCards(contributorID uint) ([]models.Card, error)
}

// ContributorRepository interface for contributor reads.
type ContributorRepository interface {
	GetByID(id uint) (*models.Contributor, error)
	FindByPlatformID(platform int, platformUserID int64) (*models.Contributor, error)
}

// Handler handles dashboard API requests.
type Handler struct {
	campaignRepo    CampaignRepository
	rankRepo        RankRepository
	cardRepo        CardRepository
	contributorRepo ContributorRepository
	cache           cache.Cache
	log             *logger.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(
	campaignRepo *repository.CampaignRepository,
	rankRepo *repository.RankRepository,
	cardRepo *repository.CardRepository,
	contributorRepo *repository.ContributorRepository,
	c cache.Cache,
	log *logger.Logger,
) *Handler {
	return &Handler{
		campaignRepo:    campaignRepo,
		rankRepo:        rankRepo,
		cardRepo:        cardRepo,
		contributorRepo: contributorRepo,
		cache:           c,
		log:             log,
	}
}

// NewHandlerWithInterfaces creates a new dashboard handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	campaignRepo CampaignRepository,
	rankRepo RankRepository,
	cardRepo CardRepository,
	contributorRepo ContributorRepository,
	c cache.Cache,
	log *logger.Logger,
) *Handler {
	return &Handler{
		campaignRepo:    campaignRepo,
		rankRepo:        rankRepo,
		cardRepo:        cardRepo,
		contributorRepo: contributorRepo,
		cache:           c,
		log:             log,
	}
}

// ListCampaigns returns every tracked campaign.
// GET /api/campaigns.
func (h *Handler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.campaignRepo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list campaigns")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve campaigns")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaigns":    campaigns,
		"total":        len(campaigns),
		"generated_at": time.Now().UTC(),
	})
}

// GetLeaderboard returns the contribution leaderboard for one campaign.
// GET /api/campaigns/:platform/:id/leaderboard?limit=20.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	platform, campaignID, err := h.parseCampaignKey(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(c, 20)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	campaign, err := h.campaignRepo.Get(platform, campaignID)
	if err != nil {
		if repository.IsNotFound(err) {
			h.errorResponse(c, http.StatusNotFound, "Campaign not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to get campaign")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve campaign")
		return
	}

	entries, err := h.rankRepo.Leaderboard(platform, campaignID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaign":     campaign,
		"leaderboard":  h.withNicknames(c.Request.Context(), entries),
		"total":        len(entries),
		"generated_at": time.Now().UTC(),
	})
}

// leaderboardRow is a rank entry with the contributor's display name attached.
type leaderboardRow struct {
	models.RankEntry
	Nickname string `json:"nickname,omitempty"`
}

// withNicknames resolves display names for leaderboard rows: the cache entry
// the tracker maintains first, the contributor table on a miss. Rows whose
// contributor cannot be resolved stay nameless rather than failing the page.
func (h *Handler) withNicknames(ctx context.Context, entries []models.RankEntry) []leaderboardRow {
	rows := make([]leaderboardRow, 0, len(entries))
	for _, entry := range entries {
		row := leaderboardRow{RankEntry: entry}
		key := cache.NicknameKey(entry.Platform, entry.ContributorID)
		if nick, err := h.cache.Get(ctx, key); err == nil && nick != "" {
			row.Nickname = nick
			rows = append(rows, row)
			continue
		}
		contributor, err := h.contributorRepo.FindByPlatformID(entry.Platform, entry.ContributorID)
		if err != nil {
			if !repository.IsNotFound(err) {
				h.log.Warn().Err(err).Int64("contributor", entry.ContributorID).Msg("Failed to resolve nickname")
			}
			rows = append(rows, row)
			continue
		}
		row.Nickname = contributor.Nickname
		if err := h.cache.Set(ctx, key, contributor.Nickname, cache.NicknameTTL); err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("Failed to cache nickname")
		}
		rows = append(rows, row)
	}
	return rows
}

// GetContributorCards returns the cards a contributor has collected.
// GET /api/contributors/:id/cards.
func (h *Handler) GetContributorCards(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid contributor ID: %s", idStr))
		return
	}

	contributor, err := h.contributorRepo.GetByID(uint(id))
	if err != nil {
		if repository.IsNotFound(err) {
			h.errorResponse(c, http.StatusNotFound, "Contributor not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to get contributor")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve contributor")
		return
	}

	collection, err := h.cardRepo.GetContributorCards(uint(id))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get contributor cards")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve cards")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contributor":  contributor,
		"cards":        collection,
		"total_cards":  len(collection),
		"generated_at": time.Now().UTC(),
	})
}

// parseCampaignKey extracts the (platform, campaign id) pair from the URL.
func (h *Handler) parseCampaignKey(c *gin.Context) (int, int64, error) {
	platform, err := strconv.Atoi(c.Param("platform"))
	if err != nil || platform < models.PlatformModian || platform > models.PlatformOwhat {
		return 0, 0, fmt.Errorf("invalid platform: %s", c.Param("platform"))
	}
	campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid campaign ID: %s", c.Param("id"))
	}
	return platform, campaignID, nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}
	return limit, nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
