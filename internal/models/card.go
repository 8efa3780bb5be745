package models

// Card is an immutable catalog entry for a collectible reward, keyed by
// (tier, type id within tier). Catalog rows are loaded out of band.
type Card struct {
	Tier        int    `gorm:"primaryKey;autoIncrement:false" json:"tier"`
	TypeID      int    `gorm:"primaryKey;autoIncrement:false;column:type_id" json:"type_id"`
	Name        string `gorm:"size:50" json:"name"`
	Description string `gorm:"size:200" json:"description"`
	FileName    string `gorm:"size:200;column:file_name" json:"file_name"`
}

// TableName specifies the table name for Card model.
func (Card) TableName() string {
	return "cards"
}

// ContributionCard links one contribution to the card it drew. Append-only
// draw log; one row per qualifying contribution.
type ContributionCard struct {
	ContributionID uint `gorm:"primaryKey;autoIncrement:false;column:contribution_id" json:"contribution_id"`
	Tier           int  `gorm:"primaryKey;autoIncrement:false" json:"tier"`
	TypeID         int  `gorm:"primaryKey;autoIncrement:false;column:type_id" json:"type_id"`
}

// TableName specifies the table name for ContributionCard model.
func (ContributionCard) TableName() string {
	return "contribution_cards"
}

// ContributorCard marks that a contributor owns at least one copy of a card.
// Repeated draws of the same (contributor, tier, type) collapse to one row.
type ContributorCard struct {
	ContributorID uint `gorm:"primaryKey;autoIncrement:false;column:contributor_id" json:"contributor_id"`
	Tier          int  `gorm:"primaryKey;autoIncrement:false" json:"tier"`
	TypeID        int  `gorm:"primaryKey;autoIncrement:false;column:type_id" json:"type_id"`
}

// TableName specifies the table name for ContributorCard model.
func (ContributorCard) TableName() string {
	return "contributor_cards"
}
