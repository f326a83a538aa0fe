// Package strategy implements C6: the per-market trade lifecycle state
// machine of spec.md §4.6 — derived values, the open guard set, the
// trend/reversal/scalp open paths, sizing, the ordered close-rule
// cascade, and post-close guardrail bookkeeping.
package strategy

import (
	"math"
	"time"

	"github.com/GoPolymarket/polymarket-trader/internal/forecast"
)

// Config mirrors spec.md §6's strategy.* keys.
type Config struct {
	TradeCapUSD           float64
	MaxTradeCashFraction  float64
	MaxOpenPositions      int
	BaseReentryCooldownS  float64
	FlipReentryCooldownS  float64
	MinHoldForFlipExitS   float64
	FlipSignalConfMin     int
	FlipStopLossPct       float64 // BUY_YES, e.g. -0.12
	BuyNoFlipStopLossPct  float64 // e.g. -0.10
	FlipStopLossLockS     float64

	GlobalFlipStopTriggerCount int
	GlobalFlipStopWindowS      float64
	GlobalFlipStopPauseS       float64

	NormalOpenMinWinnerStability        float64 // 0.12, BUY_NO floor
	NormalOpenBuyYesMinWinnerStability  float64 // 0.30, BUY_YES floor
	NormalOpenMaxOpposingImpulseBps     float64 // 3

	BuyYesConfFloor          int
	BuyYesConsensusFloor     int
	BuyYesReentryCooldownMult float64 // 1.2
	BuyNoConfFloor           int
	BuyNoConsensusFloor      int
	BuyNoReentryCooldownMult float64 // 1.35

	ScalpMinImpulseBps       float64 // 9
	ScalpBuyYesMinImpulseBps float64
	ScalpBuyNoMinImpulseBps  float64
	ImpulseSource            string
}

// DefaultConfig returns the spec.md-documented defaults.
func DefaultConfig() Config {
	return Config{
		TradeCapUSD:                        100,
		MaxTradeCashFraction:                0.10,
		MaxOpenPositions:                    2,
		BaseReentryCooldownS:                120,
		FlipReentryCooldownS:                240,
		MinHoldForFlipExitS:                 20,
		FlipSignalConfMin:                   62,
		FlipStopLossPct:                     -0.12,
		BuyNoFlipStopLossPct:                -0.10,
		FlipStopLossLockS:                   480,
		GlobalFlipStopTriggerCount:          2,
		GlobalFlipStopWindowS:               1200,
		GlobalFlipStopPauseS:                900,
		NormalOpenMinWinnerStability:        0.12,
		NormalOpenBuyYesMinWinnerStability:  0.30,
		NormalOpenMaxOpposingImpulseBps:     3,
		BuyYesConfFloor:                     52,
		BuyYesConsensusFloor:                4,
		BuyYesReentryCooldownMult:           1.2,
		BuyNoConfFloor:                      52,
		BuyNoConsensusFloor:                 4,
		BuyNoReentryCooldownMult:            1.35,
		ScalpMinImpulseBps:                  9,
		ScalpBuyYesMinImpulseBps:            9,
		ScalpBuyNoMinImpulseBps:             9,
		ImpulseSource:                       "primary_exchange",
	}
}

// Impulse is a short-window log-return reading from a secondary spot
// source, spec.md Glossary.
type Impulse struct {
	Bps3s, Bps8s float64
}

// ImpulseSide applies spec.md §4.6's impulse_side rule.
func (i Impulse) Side() (forecast.Side, bool) {
	if i.Bps3s >= 7 && i.Bps8s >= 10 {
		return forecast.BuyYes, true
	}
	if i.Bps3s <= -7 && i.Bps8s <= -10 {
		return forecast.BuyNo, true
	}
	return "", false
}

// Derived holds the per-cycle derived values of spec.md §4.6.
type Derived struct {
	WinnerSide      forecast.Side
	WinnerStability float64
	EdgeYes         float64
	EdgeNo          float64
	Impulse         Impulse
}

// DeriveWinner computes winner_side, winner_stability, edge_yes/no.
func DeriveWinner(btcCurrent, btcTarget float64, fc forecast.Output, bestAskYes, bestAskNo float64, mem *PerMarketMemory, imp Impulse) Derived {
	winner := forecast.BuyYes
	if btcCurrent < btcTarget {
		winner = forecast.BuyNo
	}
	mem.pushWinner(winner)
	return Derived{
		WinnerSide:      winner,
		WinnerStability: mem.winnerStability(winner),
		EdgeYes:         fc.PYesEnsemble - bestAskYes,
		EdgeNo:           (1 - fc.PYesEnsemble) - bestAskNo,
		Impulse:          imp,
	}
}

// effectiveCooldown computes spec.md §4.6's reentry cooldown for a
// proposed side, given the last close's reason/side/pnl/time.
func (c Config) effectiveCooldown(proposedSide forecast.Side, mem *PerMarketMemory) float64 {
	base := c.BaseReentryCooldownS
	mult := 1.0

	isFlipReason := mem.LastCloseReason == "flip_stop" || mem.LastCloseReason == "edge_flip_wrong_way"
	switch {
	case isFlipReason:
		mult = 2.0
	case proposedSide == forecast.BuyYes:
		mult = c.BuyYesReentryCooldownMult
	case proposedSide == forecast.BuyNo:
		mult = c.BuyNoReentryCooldownMult
	}

	recentLossSameSide := mem.LastCloseSide == proposedSide && mem.LastClosePnL < 0 &&
		time.Since(mem.LastCloseTS) < 1800*time.Second
	if recentLossSameSide {
		mult *= 1.35
	}

	cooldown := base * mult

	if mem.LastCloseReason == "hard_stop_25" && mem.LastCloseSide == proposedSide {
		cooldown = math.Max(cooldown, 600)
	}
	if mem.LastCloseReason == "against_winner_no_reversal" || mem.LastCloseReason == "edge_flip_wrong_way" {
		cooldown = math.Max(cooldown, 420)
	}
	return cooldown
}

// OpenGuardsOK evaluates spec.md §4.6's open guard set, excluding the
// "no existing open position"/"|open|<max_open" checks which the caller
// (the cycle loop, via Ledger) is expected to perform first.
func (c Config) OpenGuardsOK(now time.Time, proposedSide forecast.Side, tLeftS float64, d Derived, mem *PerMarketMemory, glob *GlobalMemory) (bool, string) {
	if now.Before(mem.MarketLockUntilTS) {
		return false, "market_locked"
	}
	if now.Before(glob.openPausedUntil()) {
		return false, "global_open_paused"
	}
	cooldown := c.effectiveCooldown(proposedSide, mem)
	if now.Sub(mem.LastCloseTS).Seconds() < cooldown {
		return false, "cool_ok=false"
	}
	if tLeftS < 240 && d.WinnerStability >= 0.70 && proposedSide != d.WinnerSide {
		return false, "late_contrarian"
	}
	minStability := c.NormalOpenMinWinnerStability
	if proposedSide == forecast.BuyYes {
		minStability = c.NormalOpenBuyYesMinWinnerStability
	}
	if d.WinnerStability < minStability {
		return false, "winner_stability_too_low"
	}
	if side, ok := d.Impulse.Side(); ok && side != proposedSide {
		if math.Abs(d.Impulse.Bps3s) >= c.NormalOpenMaxOpposingImpulseBps {
			return false, "opposing_impulse"
		}
	}
	return true, ""
}

// OpenDecision is the result of evaluating the open paths.
type OpenDecision struct {
	Open       bool
	Side       forecast.Side
	SizeMult   float64
	Model      string // "TREND" | "REVERSAL" | "SCALP:<reason>"
	Reason     string
}

// DecideOpen implements the trend, reversal-belief, and scalp open paths
// of spec.md §4.6.
func (c Config) DecideOpen(now time.Time, fc forecast.Output, d Derived, tLeftS float64, mem *PerMarketMemory, glob *GlobalMemory) OpenDecision {
	if scalp := c.decideScalp(now, fc, d, tLeftS, mem, glob); scalp.Open {
		return scalp
	}
	return c.decideTrend(now, fc, d, tLeftS, mem, glob)
}

func (c Config) decideTrend(now time.Time, fc forecast.Output, d Derived, tLeftS float64, mem *PerMarketMemory, glob *GlobalMemory) OpenDecision {
	side := d.WinnerSide
	model := "TREND"
	requiredEdge := 0.04

	reversal := ((d.WinnerSide == forecast.BuyYes && fc.PYesEnsemble < 0.42) ||
		(d.WinnerSide == forecast.BuyNo && fc.PYesEnsemble > 0.58)) &&
		fc.PHitTarget < 0.45 && d.WinnerStability < 0.65
	if reversal {
		side = oppositeSide(d.WinnerSide)
		model = "REVERSAL"
		requiredEdge = 0.06
	}

	edge := d.EdgeYes
	if side == forecast.BuyNo {
		edge = d.EdgeNo
	}
	if edge < requiredEdge {
		return OpenDecision{Reason: "edge_below_required"}
	}

	if !mem.persistenceOK(side) {
		return OpenDecision{Reason: "persistence_failed"}
	}

	confFloor, consensusFloor := c.BuyYesConfFloor, c.BuyYesConsensusFloor
	if side == forecast.BuyNo {
		confFloor, consensusFloor = c.BuyNoConfFloor, c.BuyNoConsensusFloor
	}
	recentLossSameSide := mem.LastCloseSide == side && mem.LastClosePnL < 0 &&
		time.Since(mem.LastCloseTS) < 1800*time.Second
	if recentLossSameSide {
		confFloor += 3
		consensusFloor++
		if consensusFloor > 6 {
			consensusFloor = 6
		}
	}
	if fc.Confidence < confFloor || fc.Consensus < consensusFloor {
		return OpenDecision{Reason: "confidence_consensus_floor"}
	}

	ok, reason := c.OpenGuardsOK(now, side, tLeftS, d, mem, glob)
	if !ok {
		return OpenDecision{Reason: reason}
	}

	return OpenDecision{Open: true, Side: side, SizeMult: confMult(fc.Confidence), Model: model}
}

func (c Config) decideScalp(now time.Time, fc forecast.Output, d Derived, tLeftS float64, mem *PerMarketMemory, glob *GlobalMemory) OpenDecision {
	if tLeftS < 75 {
		return OpenDecision{}
	}
	side, ok := d.Impulse.Side()
	if !ok {
		return OpenDecision{}
	}
	if math.Abs(d.Impulse.Bps3s) < c.ScalpMinImpulseBps {
		return OpenDecision{}
	}
	edge := d.EdgeYes
	if side == forecast.BuyNo {
		edge = d.EdgeNo
	}
	if edge < 0.02 {
		return OpenDecision{}
	}
	guardsOK, reason := c.OpenGuardsOK(now, side, tLeftS, d, mem, glob)
	if !guardsOK {
		return OpenDecision{Reason: reason}
	}
	sizeMult := math.Min(confMult(fc.Confidence), 0.65)
	return OpenDecision{Open: true, Side: side, SizeMult: sizeMult, Model: "SCALP:impulse"}
}

func confMult(confidence int) float64 {
	return clipF(0.5+0.6*float64(confidence)/100, 0.5, 1.0)
}

// Size computes the sizing formula of spec.md §4.6.
func (c Config) Size(cashUSD float64, sizeMult float64) float64 {
	return math.Min(math.Min(c.TradeCapUSD*sizeMult, cashUSD*c.MaxTradeCashFraction), cashUSD)
}

func oppositeSide(s forecast.Side) forecast.Side {
	if s == forecast.BuyYes {
		return forecast.BuyNo
	}
	return forecast.BuyYes
}

func clipF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
