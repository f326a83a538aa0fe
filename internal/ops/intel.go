// Package ops implements the supplemented ops-intelligence events
// (market_radar, inefficiency_report, flow_watch) that original_source's
// run_once emits alongside the trading decision each cycle, per
// SPEC_FULL.md's supplemented-features section. Grounded on
// original_source/ops_intel.py, generalized onto market.Snapshot and
// the teacher's FlowTracker shape (internal/strategy/flow.go) which this
// package repurposes for per-market mid-price pressure instead of
// fill-tape flow, since this engine has no continuous trade tape to
// sample from.
package ops

import (
	"math"
	"sort"

	"github.com/GoPolymarket/polymarket-trader/internal/market"
	"github.com/GoPolymarket/polymarket-trader/internal/snapshot"
)

func safeMid(bid, ask float64) float64 {
	if bid > 0 && ask > 0 {
		return (bid + ask) / 2
	}
	return math.Max(math.Max(bid, ask), 0)
}

// RadarRow is one market_radar entry: a book-quality/tradability score.
type RadarRow struct {
	MarketID   string
	MarketName string
	Score      float64
	Quality    string // "dead" | "weak" | "tradable"
	DepthUSD   float64
	SpreadYes  float64
	SpreadNo   float64
	YesMid     float64
	NoMid      float64
}

// BuildMarketRadar scores and ranks snapshots by book depth and
// tightness, penalizing dead books, per original_source's
// build_market_radar.
func BuildMarketRadar(snaps []market.Snapshot, limit int) []RadarRow {
	rows := make([]RadarRow, 0, len(snaps))
	for _, s := range snaps {
		spreadYes := math.Max(0, s.YesAsk-s.YesBid)
		spreadNo := math.Max(0, s.NoAsk-s.NoBid)
		spreadPenalty := (spreadYes + spreadNo) / 2

		var deadPenalty float64
		if spreadYes >= 0.9 && spreadNo >= 0.9 {
			deadPenalty += 55
		}

		depthScore := math.Min(50, math.Log10(math.Max(s.DepthUSD, 1))*12)
		tightnessScore := math.Max(0, 100*(1-spreadPenalty))
		score := depthScore + tightnessScore - deadPenalty

		quality := "tradable"
		switch {
		case deadPenalty > 0:
			quality = "dead"
		case spreadPenalty > 0.2:
			quality = "weak"
		}

		rows = append(rows, RadarRow{
			MarketID:   s.MarketID,
			MarketName: s.Question,
			Score:      score,
			Quality:    quality,
			DepthUSD:   s.DepthUSD,
			SpreadYes:  spreadYes,
			SpreadNo:   spreadNo,
			YesMid:     safeMid(s.YesBid, s.YesAsk),
			NoMid:      safeMid(s.NoBid, s.NoAsk),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// InefficiencyRow compares theoretical (Gamma hint) pricing against
// depth-aware executable pricing, surfacing markets where execution
// lags the theoretical edge.
type InefficiencyRow struct {
	MarketID        string
	MarketName      string
	ExecSum         float64
	ExecEdgeBps     float64
	HasTheoretical  bool
	TheoSum         float64
	TheoEdgeBps     float64
	ExecutionGapBps float64
}

// BuildInefficiencyReport implements original_source's
// build_inefficiency_report.
func BuildInefficiencyReport(snaps []market.Snapshot, feeBps, slippageBps, targetSizeUSD float64, limit int) []InefficiencyRow {
	rows := make([]InefficiencyRow, 0, len(snaps))
	for _, s := range snaps {
		yesBuy := snapshot.BookWalkBuyPrice(s.YesAsks, targetSizeUSD, s.YesAsk)
		noBuy := snapshot.BookWalkBuyPrice(s.NoAsks, targetSizeUSD, s.NoAsk)
		execSum := yesBuy + noBuy
		execEdgeBps := (1-execSum)*10000 - feeBps - slippageBps

		row := InefficiencyRow{
			MarketID:    s.MarketID,
			MarketName:  s.Question,
			ExecSum:     execSum,
			ExecEdgeBps: execEdgeBps,
		}
		if s.YesHint > 0 && s.NoHint > 0 {
			row.HasTheoretical = true
			row.TheoSum = s.YesHint + s.NoHint
			row.TheoEdgeBps = (1-row.TheoSum)*10000 - feeBps - slippageBps
			row.ExecutionGapBps = row.TheoEdgeBps - execEdgeBps
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		gi, gj := rows[i].ExecutionGapBps, rows[j].ExecutionGapBps
		if !rows[i].HasTheoretical {
			gi = -1e9
		}
		if !rows[j].HasTheoretical {
			gj = -1e9
		}
		return gi > gj
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// FlowRow is one flow_watch entry: the YES/NO mid-price imbalance.
type FlowRow struct {
	MarketID     string
	MarketName   string
	YesMid       float64
	NoMid        float64
	MidImbalance float64
	Tag          string // "yes_pressure" | "no_pressure" | "balanced"
}

// BuildFlowWatch implements original_source's build_flow_watch: ranks
// markets by how far YES/NO mids have drifted apart from parity.
func BuildFlowWatch(snaps []market.Snapshot, limit int) []FlowRow {
	rows := make([]FlowRow, 0, len(snaps))
	for _, s := range snaps {
		yesMid := safeMid(s.YesBid, s.YesAsk)
		noMid := safeMid(s.NoBid, s.NoAsk)
		imbalance := yesMid - noMid
		tag := "balanced"
		switch {
		case imbalance > 0.03:
			tag = "yes_pressure"
		case imbalance < -0.03:
			tag = "no_pressure"
		}
		rows = append(rows, FlowRow{
			MarketID:     s.MarketID,
			MarketName:   s.Question,
			YesMid:       yesMid,
			NoMid:        noMid,
			MidImbalance: imbalance,
			Tag:          tag,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return math.Abs(rows[i].MidImbalance) > math.Abs(rows[j].MidImbalance) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
