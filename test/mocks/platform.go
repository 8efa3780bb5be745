package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/internal/platform"
)

// MockAdapter is a scripted implementation of the platform Adapter interface.
// Refresh applies the configured detail to the wrapped campaign; FetchPage
// serves the configured pages in order.
type MockAdapter struct {
	Campaign *models.Campaign

	// Refresh script.
	Title      string
	StartTime  int64
	EndTime    int64
	Amount     float64
	Changed    bool
	RefreshErr error

	// FetchPage script, indexed by page-1.
	Pages    [][]platform.Record
	FetchErr error
	NoFeed   bool

	RefreshCalls int
	FetchCalls   int
}

// Refresh applies the scripted detail to the campaign.
func (m *MockAdapter) Refresh(ctx context.Context) (bool, error) {
	m.RefreshCalls++
	if m.RefreshErr != nil {
		return false, m.RefreshErr
	}
	if m.Title != "" {
		m.Campaign.Title = m.Title
	}
	if m.StartTime != 0 {
		m.Campaign.StartTime = m.StartTime
	}
	if m.EndTime != 0 {
		m.Campaign.EndTime = m.EndTime
	}
	m.Campaign.Amount = m.Amount
	return m.Changed, nil
}

// FetchPage serves the scripted page; the last configured page reports isLast.
func (m *MockAdapter) FetchPage(ctx context.Context, page int) ([]platform.Record, bool, error) {
	m.FetchCalls++
	if m.NoFeed {
		return nil, false, platform.ErrNoFeed
	}
	if m.FetchErr != nil {
		return nil, false, m.FetchErr
	}
	if page < 1 || page > len(m.Pages) {
		return nil, true, nil
	}
	return m.Pages[page-1], page == len(m.Pages), nil
}

// Link returns a synthetic campaign URL.
func (m *MockAdapter) Link() string {
	return fmt.Sprintf("https://example.com/campaign/%d", m.Campaign.CampaignID)
}

// MockFactory hands out pre-registered adapters keyed by campaign.
type MockFactory struct {
	Adapters   map[string]*MockAdapter
	Discovered []platform.Discovered
}

// NewMockFactory creates an empty mock factory.
func NewMockFactory() *MockFactory {
	return &MockFactory{Adapters: make(map[string]*MockAdapter)}
}

// Register binds an adapter to a campaign key.
func (f *MockFactory) Register(platformTag int, campaignID int64, adapter *MockAdapter) {
	f.Adapters[factoryKey(platformTag, campaignID)] = adapter
}

// ForCampaign returns the registered adapter, rebound to the passed campaign
// so refreshes mutate the caller's copy.
func (f *MockFactory) ForCampaign(campaign *models.Campaign) (platform.Adapter, error) {
	adapter, ok := f.Adapters[factoryKey(campaign.Platform, campaign.CampaignID)]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %d/%d", campaign.Platform, campaign.CampaignID)
	}
	adapter.Campaign = campaign
	return adapter, nil
}

// Discover returns the scripted discovery result.
func (f *MockFactory) Discover(ctx context.Context) ([]platform.Discovered, error) {
	return f.Discovered, nil
}

func factoryKey(platformTag int, campaignID int64) string {
	return fmt.Sprintf("%d/%d", platformTag, campaignID)
}

// MockBroadcaster records every message instead of delivering it.
type MockBroadcaster struct {
	mu       sync.Mutex
	Messages []string
	Err      error
}

// SendText records one message.
func (m *MockBroadcaster) SendText(text string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, text)
	return nil
}

// SendBatch records messages in order.
func (m *MockBroadcaster) SendBatch(messages []string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, messages...)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockBroadcaster) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Messages))
	copy(out, m.Messages)
	return out
}
