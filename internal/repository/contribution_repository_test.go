package repository

import (
	"testing"

	"github.com/aimd54/fanfund-tracker/internal/models"
)

func TestContributionRepository_SignatureDedup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContributionRepository(db)

	contribution := &models.Contribution{
		Platform:      models.PlatformModian,
		CampaignID:    1,
		ContributorID: 42,
		Amount:        66.6,
		Signature:     "da39a3ee5e6b4b0d3255bfef95601890afd80709",
	}
	if err := repo.Create(contribution); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	exists, err := repo.ExistsBySignature(models.PlatformModian, 1, contribution.Signature)
	if err != nil {
		t.Fatalf("ExistsBySignature failed: %v", err)
	}
	if !exists {
		t.Error("Expected signature to exist")
	}

	// Same signature in another campaign scope is a different event.
	exists, err = repo.ExistsBySignature(models.PlatformModian, 2, contribution.Signature)
	if err != nil {
		t.Fatalf("ExistsBySignature failed: %v", err)
	}
	if exists {
		t.Error("Expected signature to be scoped per campaign")
	}

	// The unique index rejects a second insert of the same event.
	dup := &models.Contribution{
		Platform:      models.PlatformModian,
		CampaignID:    1,
		ContributorID: 42,
		Amount:        66.6,
		Signature:     contribution.Signature,
	}
	if err := repo.Create(dup); err == nil {
		t.Error("Expected duplicate signature insert to fail")
	}
}

func TestContributionRepository_GetRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContributionRepository(db)

	for i := 0; i < 5; i++ {
		c := &models.Contribution{
			Platform:      models.PlatformTaoba,
			CampaignID:    9,
			ContributorID: int64(i),
			Amount:        float64(i + 1),
			Signature:     string(rune('a' + i)),
		}
		if err := repo.Create(c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	recent, err := repo.GetRecent(models.PlatformTaoba, 9, 3)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 contributions, got %d", len(recent))
	}
	if recent[0].Amount != 5 {
		t.Errorf("Expected newest first, got amount %v", recent[0].Amount)
	}

	count, err := repo.CountByCampaign(models.PlatformTaoba, 9)
	if err != nil {
		t.Fatalf("CountByCampaign failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 contributions, got %d", count)
	}
}
