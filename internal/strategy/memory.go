package strategy

import (
	"sync"
	"time"

	"github.com/GoPolymarket/polymarket-trader/internal/execution"
	"github.com/GoPolymarket/polymarket-trader/internal/forecast"
)

const historyCap = 12

// PerMarketMemory is §3's per-market decision state, owned by the
// decision engine and keyed by market_id — replacing the source's
// process-wide dictionaries per spec.md §9's redesign note.
type PerMarketMemory struct {
	LastCloseTS       time.Time
	LastCloseReason   string
	LastCloseSide     forecast.Side
	LastClosePnL      float64
	FlipFailStreak    int
	MarketLockUntilTS time.Time

	EdgeHistory   []edgeSample
	WinnerHistory []forecast.Side

	BTCTargetCache float64

	PendingClose *execution.PendingCloseState
}

type edgeSample struct {
	Side     forecast.Side
	Positive bool
}

func (m *PerMarketMemory) pushEdge(side forecast.Side, positive bool) {
	m.EdgeHistory = append(m.EdgeHistory, edgeSample{Side: side, Positive: positive})
	if len(m.EdgeHistory) > historyCap {
		m.EdgeHistory = m.EdgeHistory[len(m.EdgeHistory)-historyCap:]
	}
}

func (m *PerMarketMemory) pushWinner(side forecast.Side) {
	m.WinnerHistory = append(m.WinnerHistory, side)
	if len(m.WinnerHistory) > historyCap {
		m.WinnerHistory = m.WinnerHistory[len(m.WinnerHistory)-historyCap:]
	}
}

// winnerStability is |{x : x==side}| / |history|.
func (m *PerMarketMemory) winnerStability(side forecast.Side) float64 {
	if len(m.WinnerHistory) == 0 {
		return 0
	}
	n := 0
	for _, x := range m.WinnerHistory {
		if x == side {
			n++
		}
	}
	return float64(n) / float64(len(m.WinnerHistory))
}

// persistenceOK checks "in the last 5 edge-history entries, >=3 were
// positive on the proposed side" (spec.md §4.6 open — trend path).
func (m *PerMarketMemory) persistenceOK(side forecast.Side) bool {
	n := len(m.EdgeHistory)
	start := 0
	if n > 5 {
		start = n - 5
	}
	count := 0
	for _, e := range m.EdgeHistory[start:] {
		if e.Side == side && e.Positive {
			count++
		}
	}
	return count >= 3
}

// GlobalMemory is §3's process-wide decision state.
type GlobalMemory struct {
	mu sync.Mutex

	GlobalOpenPauseUntilTS time.Time
	RecentFlipStopLossTS   []time.Time
	ModelStats             [6]forecast.Stats // indexed by forecast.Component
}

// NewGlobalMemory constructs an empty GlobalMemory.
func NewGlobalMemory() *GlobalMemory {
	return &GlobalMemory{}
}

func (g *GlobalMemory) recordFlipStopLoss(now time.Time, windowS float64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RecentFlipStopLossTS = append(g.RecentFlipStopLossTS, now)
	cutoff := now.Add(-time.Duration(windowS) * time.Second)
	kept := g.RecentFlipStopLossTS[:0]
	for _, ts := range g.RecentFlipStopLossTS {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.RecentFlipStopLossTS = kept
	return len(g.RecentFlipStopLossTS)
}

func (g *GlobalMemory) setGlobalPause(until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GlobalOpenPauseUntilTS = until
}

func (g *GlobalMemory) openPausedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.GlobalOpenPauseUntilTS
}

// Stats returns a point-in-time copy of the per-component rolling
// win/trade/pnl figures, safe to read concurrently with UpdateModelStats.
func (g *GlobalMemory) Stats() [6]forecast.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ModelStats
}

// PauseActive reports whether opens are currently globally paused.
func (g *GlobalMemory) PauseActive(now time.Time) bool {
	return now.Before(g.openPausedUntil())
}

// OpenPausedUntil returns the timestamp opens are paused until (zero if
// not currently paused).
func (g *GlobalMemory) OpenPausedUntil() time.Time {
	return g.openPausedUntil()
}

// UpdateModelStats records a full-close result against every component on
// the closed side, used to re-derive TA/LL/RG/BK weights next cycle.
func (g *GlobalMemory) UpdateModelStats(side forecast.Side, probs [6]float64, won bool, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := 0; c < 6; c++ {
		onSide := (side == forecast.BuyYes && probs[c] >= 0.5) || (side == forecast.BuyNo && probs[c] < 0.5)
		if !onSide {
			continue
		}
		st := &g.ModelStats[c]
		st.Trades++
		if won {
			st.Wins++
		}
		st.PnL += pnl
	}
}
