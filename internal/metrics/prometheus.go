// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the fan fund tracker.
var (
	// Counters.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_scans_total",
			Help: "Total number of campaign scans executed",
		},
		[]string{"platform", "status"},
	)

	ContributionsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_contributions_ingested_total",
			Help: "Total number of new contributions ingested",
		},
		[]string{"platform"},
	)

	CardDrawsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_card_draws_total",
			Help: "Total number of card draws by awarded tier",
		},
		[]string{"tier"},
	)

	BroadcastsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_broadcasts_sent_total",
			Help: "Total broadcast messages sent",
		},
		[]string{"kind", "status"},
	)

	PKReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_pk_reports_total",
			Help: "Total PK progress reports generated",
		},
		[]string{"session", "mode"},
	)

	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_discovery_runs_total",
			Help: "Total campaign discovery sweeps",
		},
		[]string{"status"},
	)

	// Gauges.
	ActiveCampaigns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fund_active_campaigns",
			Help: "Current number of campaigns inside their funding window",
		},
		[]string{"platform"},
	)

	CampaignAmount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fund_campaign_amount",
			Help: "Latest cumulative amount per tracked campaign",
		},
		[]string{"platform", "campaign"},
	)

	SchedulerLastTickTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fund_scheduler_last_tick_timestamp",
			Help: "Unix timestamp of the last ingest tick",
		},
	)

	// Histograms.
	ScanDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fund_scan_duration_seconds",
			Help:    "Time taken to scan one campaign feed",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"platform"},
	)

	ContributionAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fund_contribution_amount",
			Help:    "Amount distribution of ingested contributions",
			Buckets: prometheus.ExponentialBuckets(1, 2.5, 10), // 1 to ~9537
		},
		[]string{"platform"},
	)
)

// RecordScan records a campaign scan outcome.
func RecordScan(platform, status string) {
	ScansTotal.WithLabelValues(platform, status).Inc()
}

// RecordContribution records an ingested contribution.
func RecordContribution(platform string, amount float64) {
	ContributionsIngestedTotal.WithLabelValues(platform).Inc()
	ContributionAmount.WithLabelValues(platform).Observe(amount)
}

// RecordCardDraw records a draw outcome at the awarded tier.
func RecordCardDraw(tier int) {
	CardDrawsTotal.WithLabelValues(strconv.Itoa(tier)).Inc()
}

// RecordBroadcast records a broadcast attempt.
func RecordBroadcast(kind, status string) {
	BroadcastsSentTotal.WithLabelValues(kind, status).Inc()
}

// RecordPKReport records a generated PK progress report.
func RecordPKReport(session, mode string) {
	PKReportsTotal.WithLabelValues(session, mode).Inc()
}

// RecordDiscoveryRun records a discovery sweep.
func RecordDiscoveryRun(status string) {
	DiscoveryRunsTotal.WithLabelValues(status).Inc()
}

// SetActiveCampaigns sets the number of in-window campaigns on a platform.
func SetActiveCampaigns(platform string, count int) {
	ActiveCampaigns.WithLabelValues(platform).Set(float64(count))
}

// SetCampaignAmount publishes a campaign's latest cumulative amount.
func SetCampaignAmount(platform, campaign string, amount float64) {
	CampaignAmount.WithLabelValues(platform, campaign).Set(amount)
}

// SetSchedulerLastTick sets the timestamp of the last ingest tick.
func SetSchedulerLastTick() {
	SchedulerLastTickTimestamp.SetToCurrentTime()
}

// ObserveScanDuration observes how long one feed scan took.
func ObserveScanDuration(platform string, seconds float64) {
	ScanDurationSeconds.WithLabelValues(platform).Observe(seconds)
}
