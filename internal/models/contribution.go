package models

import (
	"time"
)

// Contribution records one financial pledge event tied to a campaign.
// The signature is a SHA-1 hex digest over platform-stable fields and is
// unique within its (platform, campaign_id) scope; a persisted Contribution
// is never mutated.
type Contribution struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Platform      int       `gorm:"not null;index:idx_contributions_campaign;uniqueIndex:idx_contributions_signature" json:"platform"`
	CampaignID    int64     `gorm:"not null;column:campaign_id;index:idx_contributions_campaign;uniqueIndex:idx_contributions_signature" json:"campaign_id"`
	ContributorID int64     `gorm:"not null;column:contributor_platform_id" json:"contributor_platform_id"`
	Amount        float64   `gorm:"not null" json:"amount"`
	Signature     string    `gorm:"size:40;not null;uniqueIndex:idx_contributions_signature" json:"signature"`
	CreatedAt     time.Time `json:"created_at"`

	// Nickname travels with a freshly scraped record but is not a column;
	// the authoritative nickname lives on the Contributor.
	Nickname string `gorm:"-" json:"nickname,omitempty"`
}

// TableName specifies the table name for Contribution model.
func (Contribution) TableName() string {
	return "contributions"
}

// RankEntry holds the running total one contributor has pledged to one
// campaign. It is maintained by accumulation only, never recomputed from the
// contribution log.
type RankEntry struct {
	Platform      int     `gorm:"primaryKey;autoIncrement:false" json:"platform"`
	CampaignID    int64   `gorm:"primaryKey;autoIncrement:false;column:campaign_id" json:"campaign_id"`
	ContributorID int64   `gorm:"primaryKey;autoIncrement:false;column:contributor_platform_id" json:"contributor_platform_id"`
	Amount        float64 `gorm:"not null" json:"amount"`
}

// TableName specifies the table name for RankEntry model.
func (RankEntry) TableName() string {
	return "rank_entries"
}

// Contributor is the cross-platform identity record. Platform ids are
// optional; the nickname is a display convenience, not history, and stops
// refreshing once a chat id is bound.
type Contributor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Nickname  string    `gorm:"size:100" json:"nickname"`
	ChatID    string    `gorm:"size:50;column:chat_id" json:"chat_id"`
	ModianID  int64     `gorm:"column:modian_id;index" json:"modian_id"`
	TaobaID   int64     `gorm:"column:taoba_id;index" json:"taoba_id"`
	OwhatID   int64     `gorm:"column:owhat_id" json:"owhat_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Contributor model.
func (Contributor) TableName() string {
	return "contributors"
}
