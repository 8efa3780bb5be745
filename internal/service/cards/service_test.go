package cards

import (
	"errors"
	"math"
	"testing"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gorm.io/driver/sqlite"

	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/internal/repository"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

func setupService(t *testing.T, threshold float64) (*Service, *repository.CardRepository) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db := &repository.DB{DB: gdb}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	repo := repository.NewCardRepository(db)
	return NewService(repo, threshold, logger.New("error", "json", "stdout")), repo
}

func TestQualifies(t *testing.T) {
	svc, _ := setupService(t, 25)
	if svc.Qualifies(24.99) {
		t.Error("Expected amount below threshold not to qualify")
	}
	if !svc.Qualifies(25) {
		t.Error("Expected amount at threshold to qualify")
	}
	if !svc.Qualifies(1000) {
		t.Error("Expected amount above threshold to qualify")
	}
}

func TestRollTierBuckets(t *testing.T) {
	svc, _ := setupService(t, 25)

	cases := []struct {
		name   string
		amount float64
		roll   float64
		want   int
	}{
		// amount == threshold: d = 1, r = |roll|.
		{"common", 25, 0.5, 0},
		{"common boundary", 25, 1.0, 0},
		{"rare", 25, 2.0, 1},
		{"rare boundary", 25, 2.5, 1},
		{"epic", 25, 4.0, 2},
		{"epic boundary", 25, 5.0, 2},
		{"legendary", 25, 5.01, 3},
		{"negative roll mirrors", 25, -2.0, 1},
		// amount = 4x threshold: d = 4, r = |roll| * 2.
		{"spread grows with amount", 100, 2.0, 2},
	}
	for _, c := range cases {
		svc.normFloat64 = func() float64 { return c.roll }
		if got := svc.rollTier(c.amount); got != c.want {
			t.Errorf("%s: rollTier(%v) with roll %v = %d, want %d", c.name, c.amount, c.roll, got, c.want)
		}
	}
}

func TestRollTierLogBonusAboveRatio25(t *testing.T) {
	svc, _ := setupService(t, 25)
	svc.normFloat64 = func() float64 { return 0 }

	// d = 100/25 = 4, no bonus: a zero roll lands in the lowest tier.
	if got := svc.rollTier(100); got != 0 {
		t.Errorf("Expected tier 0 without bonus, got %d", got)
	}

	// d = 25*25, bonus = log2(25) ≈ 4.64: even a zero roll reaches tier 2.
	bonus := math.Log2(25)
	if bonus <= 2.5 || bonus > 5 {
		t.Fatalf("Test premise broken, bonus = %v", bonus)
	}
	if got := svc.rollTier(25 * 25 * 25); got != 2 {
		t.Errorf("Expected tier 2 from log bonus alone, got %d", got)
	}
}

func seedCards(t *testing.T, repo *repository.CardRepository) {
	t.Helper()
	catalog := []models.Card{
		{Tier: 0, TypeID: 1, Name: "polaroid", FileName: "p1.jpg"},
		{Tier: 0, TypeID: 2, Name: "ticket stub", FileName: "p2.jpg"},
		{Tier: 1, TypeID: 1, Name: "signed photo", FileName: "s1.jpg"},
	}
	for i := range catalog {
		if err := repo.CreateCard(&catalog[i]); err != nil {
			t.Fatalf("CreateCard failed: %v", err)
		}
	}
}

func TestDrawRecordsPossession(t *testing.T) {
	svc, repo := setupService(t, 25)
	seedCards(t, repo)
	svc.normFloat64 = func() float64 { return 0.5 } // tier 0
	svc.intN = func(n int) int { return 1 }         // second card

	contribution := &models.Contribution{Amount: 25}
	contribution.ID = 11
	contributor := &models.Contributor{Nickname: "fan"}
	contributor.ID = 3

	result, err := svc.Draw(contribution, contributor)
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if result.Tier != 0 {
		t.Errorf("Expected tier 0, got %d", result.Tier)
	}
	if result.Card.Name != "ticket stub" {
		t.Errorf("Expected the second tier-0 card, got %q", result.Card.Name)
	}
	if result.OwnedCount != 1 {
		t.Errorf("Expected 1 owned card, got %d", result.OwnedCount)
	}
	if result.TierTotal != 2 {
		t.Errorf("Expected tier total 2, got %d", result.TierTotal)
	}

	// Drawing the same card again bumps nothing: possession is a set.
	contribution.ID = 12
	result, err = svc.Draw(contribution, contributor)
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if result.OwnedCount != 1 {
		t.Errorf("Expected possession to stay at 1, got %d", result.OwnedCount)
	}

	svc.intN = func(n int) int { return 0 }
	contribution.ID = 13
	result, err = svc.Draw(contribution, contributor)
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if result.OwnedCount != 2 {
		t.Errorf("Expected possession to grow to 2, got %d", result.OwnedCount)
	}
}

func TestDrawEmptyTierFailsHard(t *testing.T) {
	svc, repo := setupService(t, 25)
	seedCards(t, repo)
	svc.normFloat64 = func() float64 { return 100 } // tier 3, not in catalog

	contribution := &models.Contribution{Amount: 25}
	contribution.ID = 1
	contributor := &models.Contributor{Nickname: "fan"}
	contributor.ID = 1

	_, err := svc.Draw(contribution, contributor)
	if err == nil {
		t.Fatal("Expected draw on an empty tier to fail")
	}
	if !errors.Is(err, ErrEmptyTier) {
		t.Errorf("Expected ErrEmptyTier, got %v", err)
	}
}
