package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

const (
	owhatAPIURL  = "https://m.owhat.cn/api"
	owhatVersion = "1.4.3L"
	owhatClient  = `{"platform":"mobile","version":"1.4.3L","deviceid":"xyz","channel":"owhat"}`
)

// owhatAdapter reads Owhat campaigns. The platform exposes goods detail and
// price/stock but no public order feed, so campaigns here carry totals only
// and never produce contribution records.
type owhatAdapter struct {
	campaign *models.Campaign
	client   *http.Client
	log      *logger.Logger
}

func newOwhatAdapter(campaign *models.Campaign, client *http.Client, log *logger.Logger) *owhatAdapter {
	return &owhatAdapter{campaign: campaign, client: client, log: log}
}

// Link returns the public campaign page.
func (a *owhatAdapter) Link() string {
	return fmt.Sprintf("https://m.owhat.cn/shop/shopdetail.html?id=%d", a.campaign.CampaignID)
}

type owhatResponse struct {
	Result string          `json:"result"`
	Data   json.RawMessage `json:"data"`
}

// Refresh re-reads the goods detail and recomputes the total from per-price
// sales, since the platform reports no aggregate figure directly.
func (a *owhatAdapter) Refresh(ctx context.Context) (bool, error) {
	detailResp, err := a.command(ctx, "shop.goods", "findgoodsbyid",
		fmt.Sprintf(`{"goodsid":"%d"}`, a.campaign.CampaignID))
	if err != nil {
		return false, err
	}

	var detail struct {
		Title       string          `json:"title"`
		SaleStartAt json.RawMessage `json:"salestartat"`
		SaleEndAt   json.RawMessage `json:"saleendat"`
		PayStock    json.RawMessage `json:"paystock"`
	}
	if err := json.Unmarshal(detailResp.Data, &detail); err != nil {
		return false, fmt.Errorf("failed to decode owhat detail: %w", err)
	}

	oriAmount := a.campaign.Amount
	a.campaign.Title = detail.Title
	a.campaign.StartTime = rawInt(detail.SaleStartAt) / 1000
	a.campaign.EndTime = rawInt(detail.SaleEndAt) / 1000
	a.campaign.ContributionCount = int(rawInt(detail.PayStock))

	if a.campaign.StartTime > time.Now().Unix() {
		// Sales have not opened; price stock still shows presale noise.
		a.campaign.Amount = 0
	} else {
		amount, err := a.fetchTotal(ctx)
		if err != nil {
			return false, err
		}
		a.campaign.Amount = amount
	}

	a.log.Debug().
		Str("title", a.campaign.Title).
		Float64("amount", a.campaign.Amount).
		Msg("Refreshed owhat campaign")
	return a.campaign.Amount != oriAmount, nil
}

// fetchTotal sums price * sold stock over every price entry of the goods.
func (a *owhatAdapter) fetchTotal(ctx context.Context) (float64, error) {
	resp, err := a.command(ctx, "shop.price", "findPricesAndStock",
		fmt.Sprintf(`{"fk_goods_id":"%d"}`, a.campaign.CampaignID))
	if err != nil {
		return 0, err
	}

	var data struct {
		Prices []struct {
			Price     json.RawMessage `json:"price"`
			SaleStock json.RawMessage `json:"salestock"`
		} `json:"prices"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, fmt.Errorf("failed to decode owhat prices: %w", err)
	}

	total := 0.0
	for _, entry := range data.Prices {
		price, err := parseAmount(rawString(entry.Price))
		if err != nil {
			return 0, fmt.Errorf("failed to parse owhat price: %w", err)
		}
		total += price * float64(rawInt(entry.SaleStock))
	}
	return total, nil
}

// FetchPage always fails with ErrNoFeed; the scanner treats such campaigns as
// total-only.
func (a *owhatAdapter) FetchPage(ctx context.Context, page int) ([]Record, bool, error) {
	return nil, false, ErrNoFeed
}

// command posts one form-encoded API command and checks the result marker.
func (a *owhatAdapter) command(ctx context.Context, cmdS, cmdM, data string) (*owhatResponse, error) {
	form := url.Values{
		"cmd_s":  {cmdS},
		"cmd_m":  {cmdM},
		"v":      {owhatVersion},
		"client": {owhatClient},
		"data":   {data},
	}
	endpoint := fmt.Sprintf("%s?requesttimestap=%d", owhatAPIURL, time.Now().UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build owhat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transientf("owhat request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transientf("owhat returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientf("failed to read owhat response: %v", err)
	}
	var decoded owhatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode owhat response: %w", err)
	}
	if decoded.Result != "success" {
		return nil, transientf("owhat command %s.%s failed with result %q", cmdS, cmdM, decoded.Result)
	}
	return &decoded, nil
}
