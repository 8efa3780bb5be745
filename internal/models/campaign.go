// Package models defines domain models for the fundraising tracker.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Platform identifies the external crowdfunding platform a campaign runs on.
const (
	PlatformModian = 1
	PlatformTaoba  = 2
	PlatformOwhat  = 3
)

// PlatformName returns a human-readable platform label.
func PlatformName(platform int) string {
	switch platform {
	case PlatformModian:
		return "modian"
	case PlatformTaoba:
		return "taoba"
	case PlatformOwhat:
		return "owhat"
	default:
		return fmt.Sprintf("platform-%d", platform)
	}
}

// Campaign represents a tracked crowdfunding campaign on one platform.
// Amount and ContributionCount only move forward while the campaign is active
// and are refreshed exclusively by the campaign's own platform adapter.
type Campaign struct {
	Platform          int       `gorm:"primaryKey;autoIncrement:false" json:"platform"`
	CampaignID        int64     `gorm:"primaryKey;autoIncrement:false;column:campaign_id" json:"campaign_id"`
	Title             string    `gorm:"size:200;not null" json:"title"`
	StartTime         int64     `gorm:"not null" json:"start_time"` // unix seconds
	EndTime           int64     `gorm:"not null" json:"end_time"`   // unix seconds
	Amount            float64   `gorm:"not null" json:"amount"`
	ContributionCount int       `gorm:"not null" json:"contribution_count"`
	ExtraJSON         string    `gorm:"column:extra;size:4000" json:"extra,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for Campaign model.
func (Campaign) TableName() string {
	return "campaigns"
}

// IsActive reports whether the campaign window contains the given time.
func (c *Campaign) IsActive(now time.Time) bool {
	ts := now.Unix()
	return c.StartTime <= ts && c.EndTime >= ts
}

// ModianExtra is the Modian-specific campaign payload. The comment feed lives
// under a separate post id and product class, both learned on refresh.
type ModianExtra struct {
	MoxiPostID int64 `json:"moxi_pid"`
	ProClass   int   `json:"pro_class"`
}

// ModianExtra decodes the extra payload for a Modian campaign.
func (c *Campaign) ModianExtra() (*ModianExtra, error) {
	if c.Platform != PlatformModian {
		return nil, fmt.Errorf("campaign %d is not a modian campaign", c.CampaignID)
	}
	if c.ExtraJSON == "" {
		return nil, fmt.Errorf("modian campaign %d has no extra payload yet", c.CampaignID)
	}
	var extra ModianExtra
	if err := json.Unmarshal([]byte(c.ExtraJSON), &extra); err != nil {
		return nil, fmt.Errorf("failed to decode modian extra payload: %w", err)
	}
	return &extra, nil
}

// SetModianExtra encodes and stores the Modian-specific payload.
func (c *Campaign) SetModianExtra(extra ModianExtra) error {
	raw, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("failed to encode modian extra payload: %w", err)
	}
	c.ExtraJSON = string(raw)
	return nil
}
