package strategy

import (
	"math"
	"time"

	"github.com/GoPolymarket/polymarket-trader/internal/forecast"
)

// CloseInputs bundles everything the close-rule cascade (spec.md §4.6)
// needs for one held position at the current cycle's mark.
type CloseInputs struct {
	Side                forecast.Side
	Entry               float64
	Mark                float64 // current price of the held-side token
	HeldSeconds         float64
	TLeftS              float64
	Confidence          int
	CurrentPredictedSide forecast.Side
	EdgeHeld            float64
	EdgeOpp             float64
	EdgePeak            float64
	TP35Taken           bool
	ModelTag            string // "SCALP:..." for scalp positions
	WinnerSide          forecast.Side
	ReversalBelief      bool
}

// CloseDecision is the outcome of evaluating the cascade for one cycle.
type CloseDecision struct {
	Close    bool
	Fraction float64 // 1.0 for full close, 0.5 for the tp_35_half partial
	Reason   string
}

func (ci CloseInputs) uPnL() float64 {
	if ci.Entry == 0 {
		return 0
	}
	return ci.Mark/ci.Entry - 1
}

func isScalp(modelTag string) bool {
	return len(modelTag) >= 6 && modelTag[:6] == "SCALP:"
}

// DecideClose evaluates spec.md §4.6's 11-step ordered close-rule
// cascade; the first matching rule wins.
func (c Config) DecideClose(ci CloseInputs) CloseDecision {
	uPnL := ci.uPnL()

	// 1. resolve-win proxy
	if ci.Mark >= 0.99 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "resolved_win_proxy"}
	}
	// 2. resolve-loss proxy
	if ci.Mark <= 0.01 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "resolved_loss_proxy"}
	}
	// 3. hard stop
	if uPnL <= -0.25 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "hard_stop_25"}
	}
	// 4. flip stop
	flipSL := c.FlipStopLossPct
	if ci.Side == forecast.BuyNo {
		flipSL = c.BuyNoFlipStopLossPct
	}
	signalFlipped := ci.CurrentPredictedSide != "" && ci.CurrentPredictedSide != ci.Side
	if signalFlipped && ci.Confidence >= c.FlipSignalConfMin && uPnL <= flipSL {
		return CloseDecision{Close: true, Fraction: 1, Reason: "flip_stop"}
	}
	// 5. scalp-specific exits
	if isScalp(ci.ModelTag) {
		if uPnL >= 0.02 {
			return CloseDecision{Close: true, Fraction: 1, Reason: "scalp_take_quick"}
		}
		if ci.HeldSeconds >= 30 {
			return CloseDecision{Close: true, Fraction: 1, Reason: "scalp_timeout"}
		}
		if ci.EdgeHeld < 0.004 {
			return CloseDecision{Close: true, Fraction: 1, Reason: "scalp_edge_faded"}
		}
	}
	// 6-8. edge-based exits, held >= 20s
	if ci.HeldSeconds >= 20 {
		if ci.EdgeHeld <= -0.012 && ci.EdgeOpp >= 0.025 {
			return CloseDecision{Close: true, Fraction: 1, Reason: "edge_flip_wrong_way"}
		}
		if ci.EdgeHeld < 0 && uPnL < 0 {
			return CloseDecision{Close: true, Fraction: 1, Reason: "edge_decay_stop"}
		}
		if ci.EdgeHeld < 0.45*ci.EdgePeak && uPnL > 0 {
			return CloseDecision{Close: true, Fraction: 1, Reason: "edge_trailing_stop"}
		}
	}
	// 9. against winner, no reversal belief
	if ci.Side != ci.WinnerSide && !ci.ReversalBelief && ci.TLeftS < 300 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "against_winner_no_reversal"}
	}
	// 10. time-based exits
	if ci.TLeftS < 45 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "time_lt_45s"}
	}
	if ci.TLeftS < 90 && uPnL > 0 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "time_lt_90s_bank"}
	}
	if ci.TLeftS < 180 && ci.Confidence < 58 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "time_lt_180s_low_conf"}
	}
	// 11. take-profit ladder
	if uPnL >= 0.50 {
		return CloseDecision{Close: true, Fraction: 1, Reason: "tp_50"}
	}
	if uPnL >= 0.35 && !ci.TP35Taken {
		return CloseDecision{Close: true, Fraction: 0.5, Reason: "tp_35_half"}
	}

	return CloseDecision{}
}

// PostCloseUpdate applies spec.md §4.6's post-close memory updates and
// guardrails. Call only for the terminal close of a position (full close
// or the "tp_35_half" partial, which does not end the position but still
// needs edge_peak/tp35Taken bookkeeping handled by the caller).
func (c Config) PostCloseUpdate(now time.Time, mem *PerMarketMemory, glob *GlobalMemory, side forecast.Side, reason string, pnl float64) {
	mem.LastCloseTS = now
	mem.LastCloseReason = reason
	mem.LastCloseSide = side
	mem.LastClosePnL = pnl

	switch reason {
	case "edge_flip_wrong_way":
		if pnl <= 0 {
			mem.MarketLockUntilTS = latest(mem.MarketLockUntilTS, now.Add(360*time.Second))
			mem.FlipFailStreak++
		}
	case "hard_stop_25":
		if pnl <= 0 {
			mem.MarketLockUntilTS = latest(mem.MarketLockUntilTS, now.Add(720*time.Second))
		}
	case "flip_stop":
		if pnl <= 0 {
			lockS := c.FlipStopLossLockS
			if lockS <= 0 {
				lockS = 480
			}
			mem.MarketLockUntilTS = latest(mem.MarketLockUntilTS, now.Add(time.Duration(lockS)*time.Second))
			count := glob.recordFlipStopLoss(now, c.GlobalFlipStopWindowS)
			if count >= c.GlobalFlipStopTriggerCount {
				glob.setGlobalPause(now.Add(time.Duration(c.GlobalFlipStopPauseS) * time.Second))
			}
		}
	}

	if mem.FlipFailStreak >= 2 {
		lockS := math.Min(900, 300+float64(mem.FlipFailStreak-2)*180)
		mem.MarketLockUntilTS = latest(mem.MarketLockUntilTS, now.Add(time.Duration(lockS)*time.Second))
	}

	if isWinningReason(reason) {
		if mem.FlipFailStreak > 0 {
			mem.FlipFailStreak--
		}
	} else if isNeutralReason(reason) {
		if mem.FlipFailStreak > 0 {
			mem.FlipFailStreak--
		}
	}
}

func isWinningReason(reason string) bool {
	switch reason {
	case "resolved_win_proxy", "tp_50", "tp_35_half", "time_lt_90s_bank":
		return true
	default:
		return false
	}
}

func isNeutralReason(reason string) bool {
	switch reason {
	case "time_lt_45s", "time_lt_180s_low_conf":
		return true
	default:
		return false
	}
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
