package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/models"
)

const taobaDiscoverPageSize = 20

var modianItemRe = regexp.MustCompile(`zhongchou\.modian\.com/item/(\d+)\.html`)

// Discovered is a campaign id found on a fan-club account page that may or
// may not be tracked yet.
type Discovered struct {
	Platform   int
	CampaignID int64
}

// Discover lists the campaign ids published by the configured fan-club
// accounts across all platforms that support discovery. A platform failure
// skips that platform only.
func (f *Factory) Discover(ctx context.Context) ([]Discovered, error) {
	var found []Discovered

	if f.cfg.Modian.AccountID != "" {
		ids, err := f.discoverModian(ctx)
		if err != nil {
			f.log.Warn().Err(err).Msg("Modian discovery failed")
		} else {
			for _, id := range ids {
				found = append(found, Discovered{Platform: models.PlatformModian, CampaignID: id})
			}
		}
	}

	if f.cfg.Taoba.Account != "" {
		ids, err := f.discoverTaoba(ctx)
		if err != nil {
			f.log.Warn().Err(err).Msg("Taoba discovery failed")
		} else {
			for _, id := range ids {
				found = append(found, Discovered{Platform: models.PlatformTaoba, CampaignID: id})
			}
		}
	}

	return found, nil
}

// discoverModian scrapes the fan-club profile page for campaign item links.
func (f *Factory) discoverModian(ctx context.Context) ([]int64, error) {
	url := fmt.Sprintf("https://me.modian.com/user?type=index&id=%s", f.cfg.Modian.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build modian profile request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transientf("modian profile request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transientf("modian profile returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientf("failed to read modian profile: %v", err)
	}

	var ids []int64
	seen := make(map[int64]bool)
	for _, match := range modianItemRe.FindAllStringSubmatch(string(body), -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	f.log.Debug().Int("campaigns", len(ids)).Msg("Discovered modian campaigns")
	return ids, nil
}

// discoverTaoba pages through the fan-club's published campaign list.
func (f *Factory) discoverTaoba(ctx context.Context) ([]int64, error) {
	api := &taobaClient{client: f.client, auth: f.taoba, log: f.log}

	var ids []int64
	for page := 1; ; page++ {
		payload, err := json.Marshal(map[string]interface{}{
			"limit":       taobaDiscoverPageSize,
			"offset":      (page - 1) * taobaDiscoverPageSize,
			"ismore":      page > 1,
			"requestTime": time.Now().UnixMilli(),
			"pf":          "h5",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build taoba discovery payload: %w", err)
		}
		resp, err := api.do(ctx, taobaBaseURL+"/idols/mine/main", string(payload))
		if err != nil {
			return nil, err
		}

		var rows []struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(resp.List, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode taoba campaign list: %w", err)
		}
		for _, row := range rows {
			if id := rawInt(row.ID); id != 0 {
				ids = append(ids, id)
			}
		}
		if len(rows) < taobaDiscoverPageSize {
			break
		}
	}
	f.log.Debug().Int("campaigns", len(ids)).Msg("Discovered taoba campaigns")
	return ids, nil
}
