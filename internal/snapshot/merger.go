// Package snapshot implements C4 SnapshotMerger: composes a REST order
// book read with any fresher BookFeed (C1) override into one
// market.Snapshot, then classifies its signal via the ask-sum arbitrage
// test, per spec.md §4.4. Grounded on original_source's scoring.py
// (effective_buy_prices / depth_aware_buy_prices book-walk, parity-floor
// logic) ported onto the teacher's clobtypes.OrderBook shape.
package snapshot

import (
	"sort"
	"strconv"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"

	"github.com/GoPolymarket/polymarket-trader/internal/feed"
	"github.com/GoPolymarket/polymarket-trader/internal/market"
)

// Config mirrors spec.md §6's scoring.* keys used at merge time.
type Config struct {
	FeeBps        float64
	TargetSizeUSD float64
}

func levels(raw []clobtypes.PriceLevel) []market.PriceLevel {
	out := make([]market.PriceLevel, 0, len(raw))
	for _, l := range raw {
		px, _ := strconv.ParseFloat(l.Price, 64)
		sz, _ := strconv.ParseFloat(l.Size, 64)
		out = append(out, market.PriceLevel{Price: px, Size: sz})
	}
	return out
}

func bestBid(raw []clobtypes.PriceLevel) float64 {
	var best float64
	for _, l := range raw {
		px, _ := strconv.ParseFloat(l.Price, 64)
		if px > best {
			best = px
		}
	}
	return best
}

func bestAsk(raw []clobtypes.PriceLevel) float64 {
	var best float64
	for _, l := range raw {
		px, _ := strconv.ParseFloat(l.Price, 64)
		if px > 0 && (best == 0 || px < best) {
			best = px
		}
	}
	return best
}

func depthUSD(raw []clobtypes.PriceLevel) float64 {
	var total float64
	for _, l := range raw {
		px, _ := strconv.ParseFloat(l.Price, 64)
		sz, _ := strconv.ParseFloat(l.Size, 64)
		total += px * sz
	}
	return total
}

// top3DepthUSD sums notional over the best 3 rungs of one side of a ladder,
// per spec.md §3's "combined top-3 depth" dead-book threshold. bids sort
// best-first by descending price, asks by ascending price.
func top3DepthUSD(raw []clobtypes.PriceLevel, descending bool) float64 {
	lvls := levels(raw)
	sort.Slice(lvls, func(i, j int) bool {
		if descending {
			return lvls[i].Price > lvls[j].Price
		}
		return lvls[i].Price < lvls[j].Price
	})
	if len(lvls) > 3 {
		lvls = lvls[:3]
	}
	var total float64
	for _, l := range lvls {
		total += l.Price * l.Size
	}
	return total
}

// Merge composes one REST book read for a market's yes/no tokens with any
// fresher BookFeed top-of-book, into a scored market.Snapshot.
func Merge(ref market.Ref, yesBook, noBook clobtypes.OrderBook, bf *feed.BookFeed, cfg Config) market.Snapshot {
	s := market.Snapshot{
		MarketID:        ref.MarketID,
		YesToken:        ref.YesToken,
		NoToken:         ref.NoToken,
		Question:        ref.Question,
		YesBid:          bestBid(yesBook.Bids),
		YesAsk:          bestAsk(yesBook.Asks),
		NoBid:           bestBid(noBook.Bids),
		NoAsk:           bestAsk(noBook.Asks),
		YesAsks:         levels(yesBook.Asks),
		NoAsks:          levels(noBook.Asks),
		YesBids:         levels(yesBook.Bids),
		NoBids:          levels(noBook.Bids),
		AcceptingOrders: ref.AcceptingOrders,
		YesHint:         ref.YesPriceHint,
		NoHint:          ref.NoPriceHint,
		Ref:             ref,
		Ts:              time.Now(),
	}
	s.DepthUSD = depthUSD(yesBook.Bids) + depthUSD(yesBook.Asks) + depthUSD(noBook.Bids) + depthUSD(noBook.Asks)
	s.Top3DepthUSD = top3DepthUSD(yesBook.Bids, true) + top3DepthUSD(yesBook.Asks, false) +
		top3DepthUSD(noBook.Bids, true) + top3DepthUSD(noBook.Asks, false)

	if bf != nil {
		if bid, ask, ok := bf.GetBest(ref.YesToken); ok {
			if bid > 0 {
				s.YesBid = bid
			}
			if ask > 0 {
				s.YesAsk = ask
			}
		}
		if bid, ask, ok := bf.GetBest(ref.NoToken); ok {
			if bid > 0 {
				s.NoBid = bid
			}
			if ask > 0 {
				s.NoAsk = ask
			}
		}
	}

	s.AskSumNoFees = s.YesAsk + s.NoAsk
	s.SpreadSum = (s.YesAsk - s.YesBid) + (s.NoAsk - s.NoBid)
	feeFrac := cfg.FeeBps / 10000
	s.AskSumWithFees = s.AskSumNoFees * (1 + feeFrac)

	s.Signal = classify(s)
	return s
}

// classify applies spec.md §4.4's ask-sum arbitrage test per the
// ask_sum_no_fees Open Question decision recorded in DESIGN.md:
// OPPORTUNITY requires ask_sum_with_fees < 1.0 (fee-inclusive, strict);
// WATCH covers the case where the no-fees sum already clears but fees
// push the total back over 1.0. The separate, more permissive
// opportunity_seen event-emission threshold is applied by the caller.
func classify(s market.Snapshot) market.Signal {
	if s.DeadBook() || !s.AcceptingOrders {
		return market.SignalNoOpportunity
	}
	switch {
	case s.AskSumWithFees < 1.0:
		return market.SignalOpportunity
	case s.AskSumNoFees < 1.0:
		return market.SignalWatch
	default:
		return market.SignalNoOpportunity
	}
}

// BookWalkBuyPrice walks the ask ladder to fill target_size_usd,
// returning the size-weighted average fill price, falling back to
// fallbackPrice for any unfilled remainder (original_source's
// _bookwalk_buy_price, depth-aware pricing for sizing beyond top-of-book).
func BookWalkBuyPrice(asks []market.PriceLevel, targetSizeUSD, fallbackPrice float64) float64 {
	remaining := targetSizeUSD
	var totalCost, totalQty float64
	for _, lvl := range asks {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		lvlNotional := lvl.Price * lvl.Size
		take := remaining
		if lvlNotional < take {
			take = lvlNotional
		}
		totalCost += take
		totalQty += take / lvl.Price
		remaining -= take
		if remaining <= 1e-9 {
			break
		}
	}
	if totalQty <= 0 {
		if fallbackPrice > 0 {
			return fallbackPrice
		}
		return 1.0
	}
	avg := totalCost / totalQty
	if remaining > 0 {
		fb := fallbackPrice
		if fb <= 0 {
			fb = 1.0
		}
		totalCost += remaining
		totalQty += remaining / fb
		avg = totalCost / totalQty
	}
	return clip01(avg)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
