package pk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/metrics"
	"github.com/aimd54/fanfund-tracker/internal/models"
	"github.com/aimd54/fanfund-tracker/internal/platform"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// AdapterFactory builds the platform adapter for a campaign.
type AdapterFactory interface {
	ForCampaign(campaign *models.Campaign) (platform.Adapter, error)
}

// Service runs PK checkpoints and reports.
type Service struct {
	factory   AdapterFactory
	snapshots *SnapshotStore
	log       *logger.Logger
}

// NewService creates a new PK service.
func NewService(factory AdapterFactory, snapshots *SnapshotStore, log *logger.Logger) *Service {
	return &Service{factory: factory, snapshots: snapshots, log: log}
}

// Initialize prepares a session for its first report. An increase session
// without a snapshot gets one immediately: zeroes before the window opens
// (nothing can have been raised yet), live amounts when the sweep first sees
// a session already running.
func (s *Service) Initialize(ctx context.Context, session *Session, now time.Time) error {
	if session.Mode != ModeIncrease || s.snapshots.Exists(session.Title) {
		return nil
	}
	if session.State(now) == StateNotStarted {
		zeroes := make(map[string]float64, len(session.AllEntries()))
		for _, entry := range session.AllEntries() {
			zeroes[entry.Label] = 0
		}
		if err := s.snapshots.Save(session.Title, zeroes); err != nil {
			return err
		}
		s.log.Info().Str("session", session.Title).Msg("Wrote zero-state snapshot")
		return nil
	}
	return s.Checkpoint(ctx, session)
}

// Checkpoint refreshes every tracked entry and overwrites the session's
// snapshot with the current amounts.
func (s *Service) Checkpoint(ctx context.Context, session *Session) error {
	amounts, err := s.amounts(ctx, session.AllEntries())
	if err != nil {
		return err
	}
	if err := s.snapshots.Save(session.Title, amounts); err != nil {
		return err
	}
	s.log.Info().
		Str("session", session.Title).
		Int("entries", len(amounts)).
		Msg("Recorded PK snapshot")
	return nil
}

// Report re-reads current amounts and renders the session standings: ranked
// by current total in simple mode, by growth since the snapshot in increase
// mode, with each row annotated with its gap to the row above.
func (s *Service) Report(ctx context.Context, session *Session) (string, error) {
	var snapshot map[string]float64
	if session.Mode == ModeIncrease {
		var err error
		snapshot, err = s.snapshots.Load(session.Title)
		if err != nil {
			return "", err
		}
	}

	var body string
	var err error
	if session.Grouped() {
		body, err = s.reportGrouped(ctx, session, snapshot)
	} else {
		body, err = s.reportFlat(ctx, session.Entries, snapshot)
	}
	if err != nil {
		return "", err
	}

	metrics.RecordPKReport(session.Title, session.Mode)
	return session.Title + ":" + body, nil
}

type row struct {
	label  string
	amount float64
	delta  float64
}

// amounts refreshes every entry and returns its current amount by label,
// scaled by the entry's multiplier and rounded to 2 decimals.
func (s *Service) amounts(ctx context.Context, entries []Entry) (map[string]float64, error) {
	out := make(map[string]float64, len(entries))
	for _, entry := range entries {
		campaign := &models.Campaign{Platform: entry.Platform, CampaignID: entry.CampaignID}
		adapter, err := s.factory.ForCampaign(campaign)
		if err != nil {
			return nil, err
		}
		if _, err := adapter.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("failed to refresh %q: %w", entry.Label, err)
		}
		amount := campaign.Amount
		if entry.Multiplier > 0 {
			amount *= entry.Multiplier
		}
		out[entry.Label] = round2(amount)
	}
	return out, nil
}

func (s *Service) rows(ctx context.Context, entries []Entry, snapshot map[string]float64) ([]row, error) {
	amounts, err := s.amounts(ctx, entries)
	if err != nil {
		return nil, err
	}
	rows := make([]row, 0, len(entries))
	for _, entry := range entries {
		r := row{label: entry.Label, amount: amounts[entry.Label]}
		if snapshot != nil {
			// An entry added after the last checkpoint has no baseline; a
			// defaulted zero would report its full total as growth.
			base, ok := snapshot[entry.Label]
			if !ok {
				return nil, fmt.Errorf("%w: no baseline for entry %q", ErrNoSnapshot, entry.Label)
			}
			r.delta = round2(r.amount - base)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (s *Service) reportFlat(ctx context.Context, entries []Entry, snapshot map[string]float64) (string, error) {
	rows, err := s.rows(ctx, entries, snapshot)
	if err != nil {
		return "", err
	}
	if snapshot == nil {
		return renderSimple(rows, "  "), nil
	}
	return renderIncrease(rows, "  "), nil
}

func (s *Service) reportGrouped(ctx context.Context, session *Session, snapshot map[string]float64) (string, error) {
	type groupResult struct {
		title     string
		aggregate float64
		body      string
	}
	results := make([]groupResult, 0, len(session.Groups))
	for _, group := range session.Groups {
		rows, err := s.rows(ctx, group.Entries, snapshot)
		if err != nil {
			return "", err
		}
		total := 0.0
		var body string
		if snapshot == nil {
			for _, r := range rows {
				total += r.amount
			}
			body = renderSimple(rows, "  ")
		} else {
			for _, r := range rows {
				total += r.delta
			}
			body = renderIncrease(rows, "  ")
		}
		results = append(results, groupResult{title: group.Title, aggregate: round2(total), body: body})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].aggregate > results[j].aggregate })

	var sb strings.Builder
	for i, g := range results {
		if snapshot == nil {
			sb.WriteString(fmt.Sprintf("\n %s:%s", g.title, fmtAmount(g.aggregate)))
		} else {
			sb.WriteString(fmt.Sprintf("\n %s(涨幅):%s", g.title, fmtAmount(g.aggregate)))
		}
		if i > 0 {
			sb.WriteString(fmt.Sprintf(" ↑%s", fmtAmount(results[i-1].aggregate-g.aggregate)))
		}
		sb.WriteString(g.body)
	}
	return sb.String(), nil
}

// renderSimple ranks rows by current amount descending.
func renderSimple(rows []row, indent string) string {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].amount > rows[j].amount })
	var sb strings.Builder
	for i, r := range rows {
		sb.WriteString(fmt.Sprintf("\n%s%s:%s", indent, r.label, fmtAmount(r.amount)))
		if i > 0 {
			sb.WriteString(fmt.Sprintf(" ↑%s", fmtAmount(rows[i-1].amount-r.amount)))
		}
	}
	return sb.String()
}

// renderIncrease ranks rows by growth descending; each row shows the current
// amount on the first line and the growth beneath it.
func renderIncrease(rows []row, indent string) string {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].delta > rows[j].delta })
	var sb strings.Builder
	for i, r := range rows {
		sb.WriteString(fmt.Sprintf("\n%s%s:%s", indent, r.label, fmtAmount(r.amount)))
		if i > 0 {
			sb.WriteString(fmt.Sprintf(" ↑%s", fmtAmount(rows[i-1].delta-r.delta)))
		}
		sb.WriteString(fmt.Sprintf("\n%s 涨幅:%s", indent, fmtAmount(r.delta)))
	}
	return sb.String()
}

func fmtAmount(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
