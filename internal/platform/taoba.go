package platform

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/config"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

const (
	taobaBaseURL    = "https://www.tao-ba.club"
	taobaSalt       = "%#54$^%&SDF^A*52#@7"
	taobaPageSize   = 25
	taobaAuthFailed = 99999
)

// taobaAuth holds the login token shared by every Taoba adapter. The token is
// refreshed at most once per failing call.
type taobaAuth struct {
	cfg *config.TaobaConfig

	mu    sync.Mutex
	token string
}

func newTaobaAuth(cfg *config.TaobaConfig) *taobaAuth {
	return &taobaAuth{cfg: cfg, token: cfg.Token}
}

func (a *taobaAuth) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *taobaAuth) setToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// xorKeystream XORs even offsets of data with the rolling salt, matching the
// platform's request obfuscation. The transform is its own inverse.
func xorKeystream(data []byte) []byte {
	for i, ch := range data {
		if i%2 == 0 {
			data[i] = ch ^ taobaSalt[(i/2)%len(taobaSalt)]
		}
	}
	return data
}

// encodeEnvelope wraps a JSON payload the way the platform expects:
// zlib-compress, XOR, base64, prefixed with the plaintext length.
func encodeEnvelope(payload string) (string, error) {
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write([]byte(payload)); err != nil {
		return "", fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to compress payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(xorKeystream(compressed.Bytes()))
	return strconv.Itoa(len(payload)) + "$" + encoded, nil
}

// decodeEnvelope reverses encodeEnvelope on a response body.
func decodeEnvelope(envelope string) ([]byte, error) {
	parts := strings.SplitN(envelope, "$", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("missing envelope length header")
	}
	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(xorKeystream(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress envelope: %w", err)
	}
	defer r.Close()
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress envelope: %w", err)
	}
	return payload, nil
}

type taobaResponse struct {
	Code  int             `json:"code"`
	Token string          `json:"token"`
	Datas json.RawMessage `json:"datas"`
	List  json.RawMessage `json:"list"`
}

// taobaClient sends encrypted envelopes and refreshes the auth token once on
// an auth failure before giving up on the call.
type taobaClient struct {
	client *http.Client
	auth   *taobaAuth
	log    *logger.Logger
}

func (c *taobaClient) send(ctx context.Context, url, payload string) (*taobaResponse, error) {
	body, err := encodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build taoba request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SIGNATURE", c.auth.Token())
	req.Header.Set("Origin", taobaBaseURL)
	req.Header.Set("Referer", taobaBaseURL+"/")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transientf("taoba request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transientf("taoba returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientf("failed to read taoba response: %v", err)
	}
	payloadBytes, err := decodeEnvelope(string(raw))
	if err != nil {
		return nil, fmt.Errorf("taoba response: %w", err)
	}
	var decoded taobaResponse
	if err := json.Unmarshal(payloadBytes, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode taoba response: %w", err)
	}
	return &decoded, nil
}

// do sends a call and retries it once behind a fresh token when the platform
// reports an auth failure.
func (c *taobaClient) do(ctx context.Context, url, payload string) (*taobaResponse, error) {
	resp, err := c.send(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	if resp.Code != taobaAuthFailed {
		return resp, nil
	}

	c.log.Warn().Msg("Taoba rejected the request signature, re-authenticating")
	if err := c.signIn(ctx); err != nil {
		return nil, err
	}
	resp, err = c.send(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	if resp.Code == taobaAuthFailed {
		return nil, transientf("taoba auth failed after token refresh, check account permissions")
	}
	return resp, nil
}

// signIn obtains a fresh token with the configured credentials.
func (c *taobaClient) signIn(ctx context.Context) error {
	payload, err := json.Marshal(map[string]interface{}{
		"account": c.auth.cfg.Account,
		"pushid":  "",
		"loginpw": c.auth.cfg.Password,
		"device": map[string]string{
			"platform": "other",
			"screen":   "1680*1050",
			"version":  "v1.0.0",
		},
		"requestTime": time.Now().UnixMilli(),
		"pf":          "h5",
	})
	if err != nil {
		return fmt.Errorf("failed to build taoba sign-in payload: %w", err)
	}
	resp, err := c.send(ctx, taobaBaseURL+"/signin/phone", string(payload))
	if err != nil {
		return err
	}
	if resp.Code != 0 {
		return transientf("taoba sign-in rejected with code %d, check credentials", resp.Code)
	}
	c.auth.setToken(resp.Token)
	return nil
}

// taobaAdapter reads Taoba campaigns through the encrypted command API.
// Order numbers are stable and feed the dedup signature.
type taobaAdapter struct {
	campaign *models.Campaign
	api      *taobaClient
	log      *logger.Logger
}

func newTaobaAdapter(campaign *models.Campaign, client *http.Client, auth *taobaAuth, log *logger.Logger) *taobaAdapter {
	return &taobaAdapter{
		campaign: campaign,
		api:      &taobaClient{client: client, auth: auth, log: log},
		log:      log,
	}
}

// Link returns the public campaign page.
func (a *taobaAdapter) Link() string {
	return fmt.Sprintf("%s/#/pages/idols/detail?id=%d", taobaBaseURL, a.campaign.CampaignID)
}

// Refresh re-reads the campaign detail.
func (a *taobaAdapter) Refresh(ctx context.Context) (bool, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"id":          a.campaign.CampaignID,
		"requestTime": time.Now().UnixMilli(),
		"pf":          "h5",
	})
	if err != nil {
		return false, fmt.Errorf("failed to build taoba detail payload: %w", err)
	}
	resp, err := a.api.do(ctx, taobaBaseURL+"/idols/detail", string(payload))
	if err != nil {
		return false, err
	}

	var detail struct {
		Title     string          `json:"title"`
		Start     json.RawMessage `json:"start"`
		Expire    json.RawMessage `json:"expire"`
		Donation  json.RawMessage `json:"donation"`
		SellStats json.RawMessage `json:"sellstats"`
	}
	if err := json.Unmarshal(resp.Datas, &detail); err != nil {
		return false, fmt.Errorf("failed to decode taoba detail: %w", err)
	}
	amount, err := parseAmount(rawString(detail.Donation))
	if err != nil {
		return false, fmt.Errorf("failed to parse taoba amount: %w", err)
	}

	oriAmount := a.campaign.Amount
	a.campaign.Title = detail.Title
	a.campaign.StartTime = rawInt(detail.Start)
	a.campaign.EndTime = rawInt(detail.Expire)
	a.campaign.Amount = amount
	a.campaign.ContributionCount = int(rawInt(detail.SellStats))

	a.log.Debug().
		Str("title", a.campaign.Title).
		Float64("amount", a.campaign.Amount).
		Msg("Refreshed taoba campaign")
	return a.campaign.Amount != oriAmount, nil
}

// FetchPage reads one page of the order list, newest first.
func (a *taobaAdapter) FetchPage(ctx context.Context, page int) ([]Record, bool, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"id":          a.campaign.CampaignID,
		"offset":      (page - 1) * taobaPageSize,
		"ismore":      page > 1,
		"limit":       taobaPageSize,
		"requestTime": time.Now().UnixMilli(),
		"pf":          "h5",
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to build taoba orders payload: %w", err)
	}
	resp, err := a.api.do(ctx, taobaBaseURL+"/idols/refund/orders", string(payload))
	if err != nil {
		return nil, false, err
	}

	var rows []struct {
		UserID   json.RawMessage `json:"userid"`
		Nickname string          `json:"nickname"`
		Amount   json.RawMessage `json:"amount"`
		OrderSN  string          `json:"ordersn"`
	}
	if err := json.Unmarshal(resp.List, &rows); err != nil {
		return nil, false, fmt.Errorf("failed to decode taoba orders: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		amount, err := parseAmount(rawString(row.Amount))
		if err != nil {
			a.log.Warn().Err(err).Str("ordersn", row.OrderSN).Msg("Malformed amount, dropping record")
			continue
		}
		records = append(records, Record{
			ContributorID:  rawInt(row.UserID),
			Nickname:       row.Nickname,
			Amount:         amount,
			SignatureInput: row.OrderSN,
		})
	}

	a.log.Debug().
		Str("title", a.campaign.Title).
		Int("page", page).
		Int("records", len(records)).
		Msg("Fetched taoba order page")
	return records, len(rows) < taobaPageSize, nil
}
