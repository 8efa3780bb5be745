package tracker

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gorm.io/driver/sqlite"

	"github.com/aimd54/fanfund-tracker/internal/broadcast"
	"github.com/aimd54/fanfund-tracker/internal/cache"
	"github.com/aimd54/fanfund-tracker/internal/config"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/internal/platform"
	"github.com/aimd54/fanfund-tracker/internal/repository"
	"github.com/aimd54/fanfund-tracker/internal/service/scanner"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
	"github.com/aimd54/fanfund-tracker/test/mocks"
)

type trackerFixture struct {
	db          *repository.DB
	service     *Service
	factory     *mocks.MockFactory
	broadcaster *mocks.MockBroadcaster
	cache       *mocks.MockCache
}

func setupTracker(t *testing.T) *trackerFixture {
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

	log := logger.New("error", "json", "stdout")
	composer, err := broadcast.NewComposer(
		&config.FundConfig{Pattern: `{{.Nickname}} 支持了 {{printf "%.2f" .Amount}}元 排名{{.Ranking}}`},
		&config.CardConfig{
			Pattern:       `{{.Nickname}} 抽中{{.TierName}}卡 {{.Name}} ({{.OwnedCount}}/{{.TierTotal}})`,
			Encouragement: "再努把力吧！",
		},
	)
	if err != nil {
		t.Fatalf("NewComposer failed: %v", err)
	}

	factory := mocks.NewMockFactory()
	broadcaster := &mocks.MockBroadcaster{}
	c := mocks.NewMockCache()
	scan := scanner.NewService(repository.NewContributionRepository(db), c, time.Minute, log)

	svc := NewService(db, repository.NewCampaignRepository(db), factory, scan, composer, broadcaster, c, 25, 2, log)
	svc.SetTierNames(func(tier int) string {
		names := []string{"普通", "稀有", "史诗", "传说"}
		if tier < 0 || tier >= len(names) {
			return "未知"
		}
		return names[tier]
	})
	return &trackerFixture{db: db, service: svc, factory: factory, broadcaster: broadcaster, cache: c}
}

// seedAllTiers fills the catalog so a draw succeeds whatever tier the roll
// lands on.
func seedAllTiers(t *testing.T, db *repository.DB) {
	t.Helper()
	repo := repository.NewCardRepository(db)
	for tier := 0; tier <= 3; tier++ {
		card := models.Card{Tier: tier, TypeID: 1, Name: "card", FileName: "c.jpg"}
		if err := repo.CreateCard(&card); err != nil {
			t.Fatalf("CreateCard failed: %v", err)
		}
	}
}

func activeCampaign(t *testing.T, f *trackerFixture) *models.Campaign {
	t.Helper()
	now := time.Now().Unix()
	campaign := &models.Campaign{
		Platform:   models.PlatformTaoba,
		CampaignID: 42,
		Title:      "tour fund",
		StartTime:  now - 3600,
		EndTime:    now + 3600,
	}
	if err := repository.NewCampaignRepository(f.db).Create(campaign); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return campaign
}

func TestTickIngestsNewContributions(t *testing.T) {
	f := setupTracker(t)
	seedAllTiers(t, f.db)
	activeCampaign(t, f)

	f.factory.Register(models.PlatformTaoba, 42, &mocks.MockAdapter{
		Amount:  500,
		Changed: true,
		Pages: [][]platform.Record{
			{
				{ContributorID: 1, Nickname: "大粉", Amount: 100, SignatureInput: "order-2"},
				{ContributorID: 2, Nickname: "小粉", Amount: 5, SignatureInput: "order-1"},
			},
		},
	})

	if err := f.service.Tick(context.Background(), false); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	var contributions int64
	if err := f.db.Model(&models.Contribution{}).Count(&contributions).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if contributions != 2 {
		t.Errorf("Expected 2 contributions, got %d", contributions)
	}
	var ranks int64
	if err := f.db.Model(&models.RankEntry{}).Count(&ranks).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if ranks != 2 {
		t.Errorf("Expected 2 rank entries, got %d", ranks)
	}

	// Only the qualifying contribution drew a card.
	var draws int64
	if err := f.db.Model(&models.ContributionCard{}).Count(&draws).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if draws != 1 {
		t.Errorf("Expected 1 card draw, got %d", draws)
	}

	// Qualifying contribution: fund message plus card message. Below
	// threshold: one message with the encouragement line attached.
	sent := f.broadcaster.Sent()
	if len(sent) != 3 {
		t.Fatalf("Expected 3 messages, got %d: %q", len(sent), sent)
	}
	if !strings.Contains(sent[0], "大粉 支持了 100.00元") {
		t.Errorf("Unexpected fund message: %q", sent[0])
	}
	if !strings.Contains(sent[1], "抽中") {
		t.Errorf("Expected a card message, got %q", sent[1])
	}
	if !strings.Contains(sent[2], "再努把力吧！") {
		t.Errorf("Expected the encouragement line, got %q", sent[2])
	}

	// The refreshed amount was persisted.
	stored, err := repository.NewCampaignRepository(f.db).Get(models.PlatformTaoba, 42)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Amount != 500 {
		t.Errorf("Expected persisted amount 500, got %v", stored.Amount)
	}
}

func TestTickCachesContributorNicknames(t *testing.T) {
	f := setupTracker(t)
	seedAllTiers(t, f.db)
	activeCampaign(t, f)

	f.factory.Register(models.PlatformTaoba, 42, &mocks.MockAdapter{
		Amount:  500,
		Changed: true,
		Pages: [][]platform.Record{
			{{ContributorID: 7, Nickname: "大粉", Amount: 100, SignatureInput: "order-1"}},
		},
	})

	if err := f.service.Tick(context.Background(), false); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	nick, err := f.cache.Get(context.Background(), cache.NicknameKey(models.PlatformTaoba, 7))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if nick != "大粉" {
		t.Errorf("Expected cached nickname 大粉, got %q", nick)
	}
}

func TestTickIsIdempotent(t *testing.T) {
	f := setupTracker(t)
	seedAllTiers(t, f.db)
	activeCampaign(t, f)

	f.factory.Register(models.PlatformTaoba, 42, &mocks.MockAdapter{
		Amount:  500,
		Changed: true,
		Pages: [][]platform.Record{
			{{ContributorID: 1, Nickname: "大粉", Amount: 100, SignatureInput: "order-1"}},
		},
	})

	if err := f.service.Tick(context.Background(), false); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	firstBatch := len(f.broadcaster.Sent())

	// The feed has not moved: the second tick must ingest nothing.
	if err := f.service.Tick(context.Background(), false); err != nil {
		t.Fatalf("Second tick failed: %v", err)
	}

	var contributions int64
	if err := f.db.Model(&models.Contribution{}).Count(&contributions).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if contributions != 1 {
		t.Errorf("Expected 1 contribution after the repeat tick, got %d", contributions)
	}
	if got := len(f.broadcaster.Sent()); got != firstBatch {
		t.Errorf("Expected no new messages, got %d extra", got-firstBatch)
	}
}

func TestTickSurvivesAdapterFailure(t *testing.T) {
	f := setupTracker(t)
	activeCampaign(t, f)
	// No adapter registered for the campaign: the tick logs and moves on.
	if err := f.service.Tick(context.Background(), false); err != nil {
		t.Fatalf("Expected tick to absorb the failure, got %v", err)
	}
}

func TestDiscoverRegistersAndAnnounces(t *testing.T) {
	f := setupTracker(t)

	now := time.Now().Unix()
	f.factory.Discovered = []platform.Discovered{
		{Platform: models.PlatformModian, CampaignID: 99},
	}
	f.factory.Register(models.PlatformModian, 99, &mocks.MockAdapter{
		Title:     "new campaign",
		StartTime: now - 100,
		EndTime:   now + 100,
		Amount:    1,
	})

	if err := f.service.Discover(context.Background()); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	exists, err := repository.NewCampaignRepository(f.db).Exists(models.PlatformModian, 99)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Expected the discovered campaign to be tracked")
	}
	sent := f.broadcaster.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "发现新项目") {
		t.Fatalf("Expected one announcement, got %q", sent)
	}

	// A repeat sweep finds nothing new.
	if err := f.service.Discover(context.Background()); err != nil {
		t.Fatalf("Second discover failed: %v", err)
	}
	if got := len(f.broadcaster.Sent()); got != 1 {
		t.Errorf("Expected no repeat announcement, got %d messages", got)
	}
}
