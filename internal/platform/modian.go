package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

const (
	modianTimeLayout = "2006-01-02 15:04:05"
	modianPageSize   = 10
)

var (
	modianCommentRe = regexp.MustCompile(`(?s)<li[^>]+class="comment-list"[^>]*?data-reply-id="([^"]+)"(.*?)</li>`)
	modianAmountRe  = regexp.MustCompile(`支持了\s*([0-9][0-9,.]*)\s*元`)
	modianUserRe    = regexp.MustCompile(`(?s)<p[^>]*class="nickname"[^>]*>.*?<a[^>]+href="([^"]*)"[^>]*>(.*?)</a>`)
)

// modianAdapter reads Modian campaigns. The contribution feed is the
// campaign's comment stream; payment comments carry the pledged amount and
// every comment carries a reply id that is stable across scrapes.
type modianAdapter struct {
	campaign *models.Campaign
	client   *http.Client
	log      *logger.Logger
}

func newModianAdapter(campaign *models.Campaign, client *http.Client, log *logger.Logger) *modianAdapter {
	return &modianAdapter{campaign: campaign, client: client, log: log}
}

// Link returns the public campaign page.
func (a *modianAdapter) Link() string {
	return fmt.Sprintf("https://zhongchou.modian.com/item/%d.html", a.campaign.CampaignID)
}

type modianDetail struct {
	Name         string          `json:"name"`
	BackerMoney  json.RawMessage `json:"backer_money"`
	StartTime    string          `json:"start_time"`
	EndTime      string          `json:"end_time"`
	CommentCount json.RawMessage `json:"comment_count"`
	MoxiPostID   json.RawMessage `json:"moxi_post_id"`
	ProClass     json.RawMessage `json:"pro_class"`
}

// Refresh re-reads the campaign detail from the realtime endpoint.
func (a *modianAdapter) Refresh(ctx context.Context) (bool, error) {
	url := fmt.Sprintf(
		"https://zhongchou.modian.com/realtime/get_simple_product?jsonpcallback=jQuery1_1&ids=%d&if_all=1&_=2",
		a.campaign.CampaignID,
	)
	body, err := a.get(ctx, url)
	if err != nil {
		return false, err
	}

	payload, err := stripJSONP(body)
	if err != nil {
		return false, fmt.Errorf("modian detail response: %w", err)
	}
	var detail modianDetail
	if err := json.Unmarshal(payload, &detail); err != nil {
		return false, fmt.Errorf("failed to decode modian detail: %w", err)
	}

	amount, err := parseAmount(rawString(detail.BackerMoney))
	if err != nil {
		return false, fmt.Errorf("failed to parse modian amount: %w", err)
	}
	startTime, err := time.ParseInLocation(modianTimeLayout, detail.StartTime, time.Local)
	if err != nil {
		return false, fmt.Errorf("failed to parse modian start time: %w", err)
	}
	endTime, err := time.ParseInLocation(modianTimeLayout, detail.EndTime, time.Local)
	if err != nil {
		return false, fmt.Errorf("failed to parse modian end time: %w", err)
	}

	extra := models.ModianExtra{
		MoxiPostID: rawInt(detail.MoxiPostID),
		ProClass:   int(rawInt(detail.ProClass)),
	}

	oriAmount := a.campaign.Amount
	a.campaign.Title = detail.Name
	a.campaign.StartTime = startTime.Unix()
	a.campaign.EndTime = endTime.Unix()
	a.campaign.Amount = amount
	a.campaign.ContributionCount = int(rawInt(detail.CommentCount))
	if err := a.campaign.SetModianExtra(extra); err != nil {
		return false, err
	}

	a.log.Debug().
		Str("title", a.campaign.Title).
		Float64("amount", a.campaign.Amount).
		Msg("Refreshed modian campaign")
	return a.campaign.Amount != oriAmount, nil
}

// FetchPage scrapes one page of the comment feed. The page markup arrives
// wrapped in a JSONP envelope with an html field.
func (a *modianAdapter) FetchPage(ctx context.Context, page int) ([]Record, bool, error) {
	extra, err := a.campaign.ModianExtra()
	if err != nil {
		return nil, false, err
	}
	url := fmt.Sprintf(
		"https://zhongchou.modian.com/comment/ajax_comments?jsonpcallback=jQuery1_1&post_id=%d&pro_class=%d&page=%d&page_size=%d&_=2",
		extra.MoxiPostID, extra.ProClass, page, modianPageSize,
	)
	body, err := a.get(ctx, url)
	if err != nil {
		return nil, false, err
	}

	payload, err := stripJSONP(body)
	if err != nil {
		return nil, false, fmt.Errorf("modian comment response: %w", err)
	}
	var envelope struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, false, fmt.Errorf("failed to decode modian comment page: %w", err)
	}

	records := parseModianComments(envelope.HTML, a.log)
	a.log.Debug().
		Str("title", a.campaign.Title).
		Int("page", page).
		Int("records", len(records)).
		Msg("Fetched modian comment page")
	return records, len(records) < modianPageSize, nil
}

// parseModianComments extracts contribution records from a comment page.
// Non-payment comments are kept with a zero amount so their reply id still
// enters the dedup index.
func parseModianComments(pageHTML string, log *logger.Logger) []Record {
	var records []Record
	for _, match := range modianCommentRe.FindAllStringSubmatch(pageHTML, -1) {
		replyID := match[1]
		block := match[2]

		amount := 0.0
		if strings.Contains(block, "icon-payment") {
			amountMatch := modianAmountRe.FindStringSubmatch(block)
			if amountMatch == nil {
				log.Warn().Str("reply_id", replyID).Msg("Payment comment without amount, dropping record")
				continue
			}
			parsed, err := parseAmount(amountMatch[1])
			if err != nil {
				log.Warn().Err(err).Str("reply_id", replyID).Msg("Malformed amount, dropping record")
				continue
			}
			amount = parsed
		}

		userMatch := modianUserRe.FindStringSubmatch(block)
		if userMatch == nil {
			log.Warn().Str("reply_id", replyID).Msg("Comment without user block, dropping record")
			continue
		}
		records = append(records, Record{
			ContributorID:  modianUserID(userMatch[1]),
			Nickname:       strings.TrimSpace(html.UnescapeString(userMatch[2])),
			Amount:         amount,
			SignatureInput: replyID,
		})
	}
	return records
}

// modianUserID extracts the platform user id from a profile href.
// Anonymous backers link to javascript:; and map to id 0.
func modianUserID(href string) int64 {
	idx := strings.Index(href, "uid=")
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseInt(href[idx+len("uid="):], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (a *modianAdapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build modian request: %w", err)
	}
	req.Header.Set("Accept", "text/javascript, application/javascript, */*; q=0.01")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transientf("modian request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transientf("modian returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientf("failed to read modian response: %v", err)
	}
	return body, nil
}

// stripJSONP unwraps a jQuery-style JSONP envelope.
func stripJSONP(body []byte) (json.RawMessage, error) {
	s := string(body)
	open := strings.Index(s, "(")
	closing := strings.LastIndex(s, ")")
	if open < 0 || closing <= open {
		return nil, fmt.Errorf("no jsonp envelope found")
	}
	return json.RawMessage(s[open+1 : closing]), nil
}

// parseAmount parses a display amount that may carry thousands separators.
func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}

// rawString renders a JSON value that may arrive quoted or bare.
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	return strings.Trim(s, `"`)
}

// rawInt renders a JSON value that may arrive quoted or bare as an integer.
func rawInt(raw json.RawMessage) int64 {
	s := rawString(raw)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_3) " +
	"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.0.5 Safari/605.1.15"
