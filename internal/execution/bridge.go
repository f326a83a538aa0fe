// Package execution implements C7 ExecutionBridge: converts strategy
// decisions into paper fills or live limit/taker orders with timeout and
// reprice semantics, per spec.md §4.7. Paper and live share the same
// decision logic in this file; only the final order placement differs
// (see internal/app for the live wiring through clob.Client).
package execution

import (
	"math"
	"strings"
	"time"
)

// Mode selects how an open or close is executed.
type Mode string

const (
	ModeMarket     Mode = "market"
	ModeLimitFirst Mode = "limit_first"
)

// Config mirrors spec.md §6's execution.* keys.
type Config struct {
	OpenMode               Mode
	CloseMode              Mode
	TickSize               float64
	OpenLimitImproveTicks  int
	CloseLimitImproveTicks int
	CloseLimitTimeoutS     float64
	CloseLimitRepriceS     float64
	OpenLimitFallbackTaker bool
	CloseForceTakerReasons []string
	MaxExecSum             float64
}

// PendingCloseState tracks an in-flight limit-ladder close for a position,
// stored in PerMarketMemory per spec.md §3.
type PendingCloseState struct {
	CreatedTS    time.Time
	LastRepriceTS time.Time
	Attempts     int
	LimitPrice   float64
	Reason       string
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

func (c Config) forcesTaker(reason string) bool {
	for _, r := range c.CloseForceTakerReasons {
		if strings.EqualFold(r, reason) {
			return true
		}
	}
	return false
}

// OpenResult is the outcome of an open execution attempt.
type OpenResult struct {
	Filled bool
	Price  float64
	Tag    string // "open_market_fill" | "open_limit_fill" | "open_limit_skip"
}

// ExecuteOpen implements spec.md §4.7's open logic. bestBid/bestAsk are
// the side-specific book top-of-book for the token being bought.
func (c Config) ExecuteOpen(bestBid, bestAsk float64) OpenResult {
	if c.OpenMode == ModeMarket {
		return OpenResult{Filled: true, Price: bestAsk, Tag: "open_market_fill"}
	}

	limit := roundToTick(bestBid+float64(c.OpenLimitImproveTicks)*c.TickSize, c.TickSize)
	if limit >= bestAsk {
		// Already crosses best ask within this cycle: taker-priced fill.
		return OpenResult{Filled: true, Price: bestAsk, Tag: "open_limit_crossed_fill"}
	}
	if c.OpenLimitFallbackTaker {
		return OpenResult{Filled: true, Price: bestAsk, Tag: "open_limit_fallback_taker"}
	}
	return OpenResult{Filled: false, Tag: "open_limit_skip"}
}

// CloseResult is the outcome of a close execution attempt (full or
// partial) for one cycle.
type CloseResult struct {
	Filled  bool
	Price   float64
	Tag     string
	Pending *PendingCloseState // non-nil when the ladder is still live
}

// ExecuteClose implements spec.md §4.7's close logic, including the
// pending-close reprice ladder. fraction<1 (a partial close) always
// executes as immediate taker, per the Open Question decision recorded
// in DESIGN.md. reason is the Strategy close-rule name driving this close.
func (c Config) ExecuteClose(bestBid, bestAsk float64, fraction float64, reason string, now time.Time, pending *PendingCloseState) CloseResult {
	if fraction < 1 {
		return CloseResult{Filled: true, Price: bestBid, Tag: "close_force_taker_partial"}
	}
	if c.forcesTaker(reason) {
		return CloseResult{Filled: true, Price: bestBid, Tag: "close_force_taker"}
	}
	if c.CloseMode == ModeMarket {
		return CloseResult{Filled: true, Price: bestBid, Tag: "close_market_fill"}
	}

	if pending == nil {
		limit := roundToTick(math.Min(bestAsk, bestBid+float64(c.CloseLimitImproveTicks)*c.TickSize), c.TickSize)
		pending = &PendingCloseState{CreatedTS: now, LastRepriceTS: now, LimitPrice: limit, Reason: reason}
	}

	if bestBid >= pending.LimitPrice {
		return CloseResult{Filled: true, Price: pending.LimitPrice, Tag: "close_limit_fill"}
	}

	if now.Sub(pending.CreatedTS).Seconds() >= c.CloseLimitTimeoutS {
		return CloseResult{Filled: true, Price: bestBid, Tag: "close_limit_timeout_fallback"}
	}

	if now.Sub(pending.LastRepriceTS).Seconds() >= c.CloseLimitRepriceS {
		pending.LimitPrice = roundToTick(pending.LimitPrice-c.TickSize, c.TickSize)
		pending.LastRepriceTS = now
		pending.Attempts++
	}

	return CloseResult{Filled: false, Tag: "close_pending", Pending: pending}
}
