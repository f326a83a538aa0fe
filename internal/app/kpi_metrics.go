package app

import (
	"math"
	"strings"
	"sync"
	"time"
)

const (
	kpiWindow30d                  = 30 * 24 * time.Hour
	defaultTrendRealizationWindow = 5 * time.Minute
)

type kpiRiskSample struct {
	at       time.Time
	canTrade bool
}

type kpiPnLSample struct {
	at       time.Time
	realized float64
	total    float64
}

type kpiPendingSignal struct {
	marketID   string
	side       string
	triggerMid float64
	dueAt      time.Time
}

// kpiCollector is §10's daily/30-day operator KPI aggregator, adapted from
// the teacher's maker/taker dashboard counters onto this engine's
// scalp/trend open-decision model and guard-rejection reasons.
type kpiCollector struct {
	mu sync.RWMutex

	dayStartUTC time.Time
	lastUpdated time.Time

	scalpSignalCountDaily int
	trendSignalCountDaily int
	submittedOrdersDaily  int
	filledOrdersDaily     int

	guardBlockEventsDaily         int
	guardBlockEventsDailyByReason map[string]int
	guardBlockLastReason          string

	cooldownTriggerCountDaily int

	globalPauseActive              bool
	globalPauseActiveSinceUTC      time.Time
	globalPauseActiveDurationDaily time.Duration
	scalpEdgeCaptureBpsSumDaily    float64
	scalpEdgeCaptureSamplesDaily   int
	trendRealizationCorrectDaily   int
	trendRealizationEvaluatedDaily int
	trendRealizationWindowMinutes  int

	pendingTrendSignals   []kpiPendingSignal
	riskComplianceSamples []kpiRiskSample

	pnlSamples                         []kpiPnLSample
	currentRealizedPnL                 float64
	currentTotalPnL                    float64
	dailyBaselineSet                   bool
	dailyBaselineRealizedPnL           float64
	dailyBaselineTotalPnL              float64
	netPnL30dWindowEffectiveDaysCached int
}

func newKPICollector() *kpiCollector {
	now := time.Now().UTC()
	return &kpiCollector{
		dayStartUTC:                   startOfUTCDay(now),
		lastUpdated:                   now,
		guardBlockEventsDailyByReason:  make(map[string]int),
		trendRealizationWindowMinutes: int(defaultTrendRealizationWindow / time.Minute),
	}
}

func startOfUTCDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *kpiCollector) ensureDayLocked(now time.Time) {
	day := startOfUTCDay(now)
	if day.Equal(c.dayStartUTC) {
		return
	}

	if c.globalPauseActive {
		activeSince := c.globalPauseActiveSinceUTC
		if activeSince.Before(c.dayStartUTC) {
			activeSince = c.dayStartUTC
		}
		if day.After(activeSince) {
			c.globalPauseActiveDurationDaily += day.Sub(activeSince)
		}
		c.globalPauseActiveSinceUTC = day
	}

	c.dayStartUTC = day
	c.scalpSignalCountDaily = 0
	c.trendSignalCountDaily = 0
	c.submittedOrdersDaily = 0
	c.filledOrdersDaily = 0
	c.guardBlockEventsDaily = 0
	c.guardBlockEventsDailyByReason = make(map[string]int)
	c.guardBlockLastReason = ""
	c.cooldownTriggerCountDaily = 0
	c.globalPauseActiveDurationDaily = 0
	c.scalpEdgeCaptureBpsSumDaily = 0
	c.scalpEdgeCaptureSamplesDaily = 0
	c.trendRealizationCorrectDaily = 0
	c.trendRealizationEvaluatedDaily = 0
	c.pendingTrendSignals = nil

	c.dailyBaselineRealizedPnL = c.currentRealizedPnL
	c.dailyBaselineTotalPnL = c.currentTotalPnL
	c.dailyBaselineSet = true
}

func (c *kpiCollector) pruneLocked(now time.Time) {
	cutoff := now.Add(-kpiWindow30d)

	for len(c.riskComplianceSamples) > 0 && c.riskComplianceSamples[0].at.Before(cutoff) {
		c.riskComplianceSamples = c.riskComplianceSamples[1:]
	}

	for len(c.pnlSamples) > 2 && c.pnlSamples[1].at.Before(cutoff) {
		c.pnlSamples = c.pnlSamples[1:]
	}

	filtered := c.pendingTrendSignals[:0]
	for _, pending := range c.pendingTrendSignals {
		if pending.dueAt.Before(cutoff) {
			continue
		}
		filtered = append(filtered, pending)
	}
	c.pendingTrendSignals = filtered
}

// normalizeRiskReason canonicalizes strategy.OpenGuardsOK/DecideOpen's
// rejection reasons for the by-reason daily breakdown.
func normalizeRiskReason(reason string) string {
	clean := strings.ToLower(strings.TrimSpace(reason))
	if clean == "" {
		return "unknown"
	}
	switch clean {
	case "market_locked", "global_open_paused", "cool_ok=false", "late_contrarian",
		"winner_stability_too_low", "opposing_impulse", "edge_below_required",
		"persistence_failed", "confidence_consensus_floor":
		return clean
	default:
		return "unknown"
	}
}

func normalizeSide(side string) string {
	upper := strings.ToUpper(strings.TrimSpace(side))
	if upper == "BUY" || upper == "SELL" {
		return upper
	}
	// Strategy sides: BUY_YES predicts the YES mid rising, BUY_NO falling.
	if upper == "BUY_YES" {
		return "BUY"
	}
	if upper == "BUY_NO" {
		return "SELL"
	}
	return ""
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// recordScalpSignal counts a DecideOpen "SCALP:<reason>" acceptance and its
// captured edge (in bps) at entry.
func (c *kpiCollector) recordScalpSignal(now time.Time, edgeCaptureBps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.scalpSignalCountDaily++
	if !math.IsNaN(edgeCaptureBps) && !math.IsInf(edgeCaptureBps, 0) {
		c.scalpEdgeCaptureBpsSumDaily += edgeCaptureBps
		c.scalpEdgeCaptureSamplesDaily++
	}
	c.lastUpdated = now
}

// recordTrendSignal counts a DecideOpen "TREND"/"REVERSAL" acceptance and
// queues it for later realization scoring against the BTC mid at horizon.
func (c *kpiCollector) recordTrendSignal(now time.Time, marketID, side string, triggerMid float64, horizon time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.trendSignalCountDaily++
	if horizon <= 0 {
		horizon = defaultTrendRealizationWindow
	}
	side = normalizeSide(side)
	if side != "" && marketID != "" && triggerMid > 0 {
		c.pendingTrendSignals = append(c.pendingTrendSignals, kpiPendingSignal{
			marketID:   marketID,
			side:       side,
			triggerMid: triggerMid,
			dueAt:      now.Add(horizon),
		})
		c.trendRealizationWindowMinutes = int(horizon / time.Minute)
	}
	c.lastUpdated = now
}

// evaluateTrendRealization scores due pending trend signals against the
// market's current mid: did price move the predicted direction by horizon?
func (c *kpiCollector) evaluateTrendRealization(now time.Time, marketID string, currentMid float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	if marketID == "" || currentMid <= 0 || len(c.pendingTrendSignals) == 0 {
		return
	}

	filtered := c.pendingTrendSignals[:0]
	for _, pending := range c.pendingTrendSignals {
		if pending.marketID != marketID {
			filtered = append(filtered, pending)
			continue
		}
		if now.Before(pending.dueAt) {
			filtered = append(filtered, pending)
			continue
		}

		c.trendRealizationEvaluatedDaily++
		if (pending.side == "BUY" && currentMid > pending.triggerMid) ||
			(pending.side == "SELL" && currentMid < pending.triggerMid) {
			c.trendRealizationCorrectDaily++
		}
	}
	c.pendingTrendSignals = filtered
	c.lastUpdated = now
}

func (c *kpiCollector) recordOrderSubmitted(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.submittedOrdersDaily++
	c.lastUpdated = now
}

func (c *kpiCollector) recordFill(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.filledOrdersDaily++
	c.lastUpdated = now
}

// recordGuardBlock counts a DecideOpen rejection, keyed by its reason.
func (c *kpiCollector) recordGuardBlock(now time.Time, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.guardBlockEventsDaily++
	reason = normalizeRiskReason(reason)
	c.guardBlockEventsDailyByReason[reason]++
	c.guardBlockLastReason = reason
	c.lastUpdated = now
}

func (c *kpiCollector) recordCooldownTrigger(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.cooldownTriggerCountDaily++
	c.lastUpdated = now
}

// setGlobalPause tracks strategy.GlobalMemory's flip-stop pause state for
// the daily active-duration figure.
func (c *kpiCollector) setGlobalPause(now time.Time, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	if c.globalPauseActive == active {
		return
	}
	if active {
		c.globalPauseActive = true
		c.globalPauseActiveSinceUTC = now
	} else {
		activeSince := c.globalPauseActiveSinceUTC
		if activeSince.Before(c.dayStartUTC) {
			activeSince = c.dayStartUTC
		}
		if now.After(activeSince) {
			c.globalPauseActiveDurationDaily += now.Sub(activeSince)
		}
		c.globalPauseActive = false
		c.globalPauseActiveSinceUTC = time.Time{}
	}
	c.lastUpdated = now
}

func (c *kpiCollector) recordRiskCompliance(now time.Time, canTrade bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.riskComplianceSamples = append(c.riskComplianceSamples, kpiRiskSample{at: now, canTrade: canTrade})
	c.pruneLocked(now)
	c.lastUpdated = now
}

// recordPnLSample tracks the ledger's realized P&L alongside total P&L
// (realized + mark-to-market unrealized across open positions) for the
// daily and 30-day net-P&L figures.
func (c *kpiCollector) recordPnLSample(now time.Time, realizedPnL, totalPnL float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)

	c.currentRealizedPnL = realizedPnL
	c.currentTotalPnL = totalPnL
	if !c.dailyBaselineSet {
		c.dailyBaselineRealizedPnL = realizedPnL
		c.dailyBaselineTotalPnL = totalPnL
		c.dailyBaselineSet = true
	}

	c.pnlSamples = append(c.pnlSamples, kpiPnLSample{
		at:       now,
		realized: realizedPnL,
		total:    totalPnL,
	})
	c.pruneLocked(now)
	c.lastUpdated = now
}

func (c *kpiCollector) snapshot(now time.Time) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureDayLocked(now)
	c.pruneLocked(now)

	totalSignals := c.scalpSignalCountDaily + c.trendSignalCountDaily
	scalpEdgeCaptureBps := 0.0
	if c.scalpEdgeCaptureSamplesDaily > 0 {
		scalpEdgeCaptureBps = c.scalpEdgeCaptureBpsSumDaily / float64(c.scalpEdgeCaptureSamplesDaily)
	}
	trendSignalRealizationRate := 0.0
	if c.trendRealizationEvaluatedDaily > 0 {
		trendSignalRealizationRate = float64(c.trendRealizationCorrectDaily) / float64(c.trendRealizationEvaluatedDaily)
	}
	pauseDuration := c.globalPauseActiveDurationDaily
	if c.globalPauseActive {
		activeSince := c.globalPauseActiveSinceUTC
		if activeSince.Before(c.dayStartUTC) {
			activeSince = c.dayStartUTC
		}
		if now.After(activeSince) {
			pauseDuration += now.Sub(activeSince)
		}
	}

	riskSamplesTotal := len(c.riskComplianceSamples)
	riskSamplesTradable := 0
	for _, sample := range c.riskComplianceSamples {
		if sample.canTrade {
			riskSamplesTradable++
		}
	}
	riskCompliance30d := 0.0
	if riskSamplesTotal > 0 {
		riskCompliance30d = float64(riskSamplesTradable) / float64(riskSamplesTotal)
	}

	netPnL30dRealized := 0.0
	netPnL30dTotal := 0.0
	windowDays := 0
	if len(c.pnlSamples) > 0 {
		latest := c.pnlSamples[len(c.pnlSamples)-1]
		base := c.pnlSamples[0]
		netPnL30dRealized = latest.realized - base.realized
		netPnL30dTotal = latest.total - base.total
		windowStart := base.at
		cutoff := now.Add(-kpiWindow30d)
		if windowStart.Before(cutoff) {
			windowStart = cutoff
		}
		if latest.at.After(windowStart) {
			windowDays = int(math.Ceil(latest.at.Sub(windowStart).Hours() / 24))
		}
		if windowDays <= 0 {
			windowDays = 1
		}
	}
	c.netPnL30dWindowEffectiveDaysCached = windowDays

	dailyRealized := 0.0
	dailyTotal := 0.0
	if c.dailyBaselineSet {
		dailyRealized = c.currentRealizedPnL - c.dailyBaselineRealizedPnL
		dailyTotal = c.currentTotalPnL - c.dailyBaselineTotalPnL
	}

	byReason := make(map[string]interface{}, len(c.guardBlockEventsDailyByReason))
	for reason, count := range c.guardBlockEventsDailyByReason {
		byReason[reason] = count
	}

	var pauseActiveSince interface{}
	if c.globalPauseActive && !c.globalPauseActiveSinceUTC.IsZero() {
		pauseActiveSince = c.globalPauseActiveSinceUTC.UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"signal_count_daily":                      totalSignals,
		"scalp_signal_count_daily":                c.scalpSignalCountDaily,
		"trend_signal_count_daily":                c.trendSignalCountDaily,
		"submitted_orders_daily":                  c.submittedOrdersDaily,
		"filled_orders_daily":                     c.filledOrdersDaily,
		"guard_block_events_daily":                c.guardBlockEventsDaily,
		"guard_block_events_daily_by_reason":       byReason,
		"guard_block_last_reason":                 c.guardBlockLastReason,
		"cooldown_trigger_count_daily":            c.cooldownTriggerCountDaily,
		"global_pause_active_duration_s_daily":    round6(pauseDuration.Seconds()),
		"global_pause_is_active":                  c.globalPauseActive,
		"global_pause_active_started_at_utc":      pauseActiveSince,
		"scalp_edge_capture_bps":                  round6(scalpEdgeCaptureBps),
		"scalp_edge_capture_samples_daily":        c.scalpEdgeCaptureSamplesDaily,
		"trend_signal_realization_rate":           round6(trendSignalRealizationRate),
		"trend_signal_realization_window_minutes": c.trendRealizationWindowMinutes,
		"risk_compliance_30d":                     round6(clampFloat(riskCompliance30d, 0, 1)),
		"risk_compliance_samples_30d":             riskSamplesTotal,
		"risk_compliance_tradable_samples_30d":    riskSamplesTradable,
		"net_pnl_30d_realized_usdc":               round6(netPnL30dRealized),
		"net_pnl_30d_total_usdc":                  round6(netPnL30dTotal),
		"net_pnl_30d_window_effective_days":       windowDays,
		"net_pnl_daily_realized_usdc":              round6(dailyRealized),
		"net_pnl_daily_total_usdc":                round6(dailyTotal),
		"last_updated_at_utc":                     now.UTC().Format(time.RFC3339),
	}
}
