// Package market holds the data model shared across the cycle: market
// references from catalog discovery, per-cycle snapshots, and spot ticks.
package market

import "time"

// Ref is an immutable per-discovery-pass market reference.
type Ref struct {
	MarketID         string
	Question         string
	YesToken         string
	NoToken          string
	AcceptingOrders  bool
	LiquidityHint    float64
	YesPriceHint     float64
	NoPriceHint      float64
	EndTime          time.Time
	EventStartTime   time.Time
	ResolutionSource string
	Slug             string
}

// PriceLevel is a single price/size rung of an order-book ladder.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Signal classifies a market's arbitrage opportunity for a cycle.
type Signal string

const (
	SignalOpportunity  Signal = "OPPORTUNITY"
	SignalWatch        Signal = "WATCH"
	SignalNoOpportunity Signal = "NO_OPPORTUNITY"
)

// Snapshot is the merged per-cycle view of a market: REST book composed
// with BookFeed's live overrides.
type Snapshot struct {
	MarketID        string
	YesToken        string
	NoToken         string
	Question        string
	YesBid, YesAsk  float64
	NoBid, NoAsk    float64
	YesAsks         []PriceLevel
	NoAsks          []PriceLevel
	YesBids         []PriceLevel
	NoBids          []PriceLevel
	DepthUSD        float64
	Top3DepthUSD    float64
	AcceptingOrders bool
	YesHint         float64
	NoHint          float64

	AskSumNoFees   float64
	AskSumWithFees float64
	SpreadSum      float64
	Signal         Signal

	Ref Ref
	Ts  time.Time
}

// Valid reports the MarketSnapshot bid<=ask invariant from spec.md §3/§8:
// every side non-negative, bid<=ask<=1 per side, and no side quoting zero
// (a zero quote means that side of the book is missing, not merely thin).
func (s Snapshot) Valid() bool {
	if s.YesBid < 0 || s.YesAsk < 0 || s.NoBid < 0 || s.NoAsk < 0 {
		return false
	}
	if s.YesBid == 0 || s.YesAsk == 0 || s.NoBid == 0 || s.NoAsk == 0 {
		return false
	}
	if s.YesBid > s.YesAsk || s.YesAsk > 1 {
		return false
	}
	if s.NoBid > s.NoAsk || s.NoAsk > 1 {
		return false
	}
	return true
}

// DeadBook applies the dead-book filter of spec.md §3: both asks high,
// both bids near zero, and thin combined top-3-per-side depth.
func (s Snapshot) DeadBook() bool {
	return s.YesAsk >= 0.985 && s.NoAsk >= 0.985 &&
		s.YesBid <= 0.015 && s.NoBid <= 0.015 &&
		s.Top3DepthUSD < 25
}

// SourceName enumerates SpotTick sources.
type SourceName string

const (
	SourceOracle    SourceName = "oracle"
	SourcePrimary   SourceName = "primary_exchange"
	SourceCoinbase  SourceName = "coinbase"
	SourceKraken    SourceName = "kraken"
	SourceBybit     SourceName = "bybit"
)

// SpotTick is a single timestamped price sample from a spot source.
type SpotTick struct {
	Ts     time.Time
	Source SourceName
	Price  float64
}
