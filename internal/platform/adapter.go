// Package platform implements the per-platform campaign adapters: refreshing
// campaign totals, paging through contribution feeds and building campaign
// links. Wire details differ per platform; the contract does not.
package platform

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/aimd54/fanfund-tracker/internal/config"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// ErrTransient marks network, timeout or auth failures that should abort only
// the current campaign's scan, never the whole run.
var ErrTransient = errors.New("transient platform error")

// ErrNoFeed marks platforms that expose campaign totals but no contribution
// feed; such campaigns participate in PK sessions only.
var ErrNoFeed = errors.New("platform exposes no contribution feed")

// Record is one raw contribution record scraped from a feed page. The core
// computes the dedup signature from SignatureInput so the hash algorithm stays
// uniform across platforms.
type Record struct {
	ContributorID  int64
	Nickname       string
	Amount         float64
	SignatureInput string
}

// Adapter is the capability every tracked campaign supports regardless of
// platform. Refresh mutates the wrapped campaign in place and reports whether
// the cumulative amount moved; callers use that to skip expensive feed scans.
type Adapter interface {
	// Refresh re-reads title, window, amount and contribution count from the
	// source of truth.
	Refresh(ctx context.Context) (changed bool, err error)
	// FetchPage returns the contribution records of one page, newest first,
	// and whether this is the last page. Pages start at 1.
	FetchPage(ctx context.Context, page int) (records []Record, isLast bool, err error)
	// Link returns the stable public URL for the campaign.
	Link() string
}

// Signature derives the content signature for a record: SHA-1 hex over the
// platform's stable identifying field.
func Signature(input string) string {
	sum := sha1.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Factory builds the adapter matching a campaign's platform tag.
type Factory struct {
	cfg    *config.PlatformsConfig
	client *http.Client
	taoba  *taobaAuth
	log    *logger.Logger
}

// NewFactory creates an adapter factory. The timeout applies to every
// platform call; upstream platforms are occasionally slow or hung.
func NewFactory(cfg *config.PlatformsConfig, fund *config.FundConfig, log *logger.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		client: &http.Client{Timeout: fund.GetRequestTimeout()},
		taoba:  newTaobaAuth(&cfg.Taoba),
		log:    log,
	}
}

// ForCampaign returns the adapter for the campaign's platform.
func (f *Factory) ForCampaign(campaign *models.Campaign) (Adapter, error) {
	switch campaign.Platform {
	case models.PlatformModian:
		return newModianAdapter(campaign, f.client, f.log), nil
	case models.PlatformTaoba:
		return newTaobaAdapter(campaign, f.client, f.taoba, f.log), nil
	case models.PlatformOwhat:
		return newOwhatAdapter(campaign, f.client, f.log), nil
	default:
		return nil, fmt.Errorf("no adapter for platform %d", campaign.Platform)
	}
}

// transientf wraps err as a transient failure with call context.
func transientf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}
