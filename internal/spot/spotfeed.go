// Package spot implements C2 SpotFeed: a blended oracle+primary rolling
// window, per-source impulse rings, and ingestion of secondary-source
// readings via OnSecondaryTick (this package does not poll them), per
// spec.md §4.2. Grounded on original_source's BtcRtdsHook (single
// reconnect-loop websocket feeding a locked last-tick cache) generalized
// with bounded rolling history and a second tier of polled sources.
package spot

import (
	"math"
	"sync"
	"time"

	"github.com/GoPolymarket/polymarket-trader/internal/market"
)

const (
	blendWindow  = 700 * time.Second
	impulseWindow = 120 * time.Second
)

// Tick is one timestamped spot reading from any source.
type Tick struct {
	Ts    time.Time
	Price float64
}

// Feed tracks the oracle (chainlink) and primary (binance/coinbase-style)
// exchange streams plus a handful of lower-rate secondary sources.
type Feed struct {
	mu sync.Mutex

	oracle  []Tick
	primary []Tick

	impulseRings map[market.SourceName][]Tick
	secondary    map[market.SourceName]Tick
}

// New constructs an empty Feed.
func New() *Feed {
	return &Feed{
		impulseRings: make(map[market.SourceName][]Tick),
		secondary:    make(map[market.SourceName]Tick),
	}
}

// OnOracleTick ingests one chainlink-style oracle reading.
func (f *Feed) OnOracleTick(ts time.Time, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oracle = pushBounded(f.oracle, Tick{ts, price}, blendWindow)
	f.impulseRings[market.SourceOracle] = pushBounded(f.impulseRings[market.SourceOracle], Tick{ts, price}, impulseWindow)
}

// OnPrimaryTick ingests one primary-exchange reading.
func (f *Feed) OnPrimaryTick(ts time.Time, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primary = pushBounded(f.primary, Tick{ts, price}, blendWindow)
	f.impulseRings[market.SourcePrimary] = pushBounded(f.impulseRings[market.SourcePrimary], Tick{ts, price}, impulseWindow)
}

// OnSecondaryTick ingests a low-rate secondary source poll (coinbase,
// kraken, bybit), keeping only an impulse ring and last-value cache.
func (f *Feed) OnSecondaryTick(source market.SourceName, ts time.Time, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secondary[source] = Tick{ts, price}
	f.impulseRings[source] = pushBounded(f.impulseRings[source], Tick{ts, price}, impulseWindow)
}

func pushBounded(ring []Tick, t Tick, window time.Duration) []Tick {
	ring = append(ring, t)
	cutoff := t.Ts.Add(-window)
	i := 0
	for i < len(ring) && ring[i].Ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		ring = ring[i:]
	}
	return ring
}

// Blended returns spec.md §4.2's 0.4*oracle + 0.6*primary composite using
// the latest reading from each source, and whether both sources have data.
func (f *Feed) Blended() (price float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.oracle) == 0 || len(f.primary) == 0 {
		return 0, false
	}
	o := f.oracle[len(f.oracle)-1].Price
	p := f.primary[len(f.primary)-1].Price
	return 0.4*o + 0.6*p, true
}

// Current returns the best single current spot estimate: the blend when
// both sources are live, else whichever of oracle/primary is available.
func (f *Feed) Current() (price float64, ok bool) {
	if price, ok = f.Blended(); ok {
		return price, true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.primary) > 0 {
		return f.primary[len(f.primary)-1].Price, true
	}
	if len(f.oracle) > 0 {
		return f.oracle[len(f.oracle)-1].Price, true
	}
	return 0, false
}

// Impulse computes the short-window log-return-derived bps move for a
// source over the trailing `since` duration.
func (f *Feed) Impulse(source market.SourceName, since time.Duration) float64 {
	f.mu.Lock()
	ring := f.impulseRings[source]
	f.mu.Unlock()
	if len(ring) < 2 {
		return 0
	}
	now := ring[len(ring)-1].Ts
	cutoff := now.Add(-since)
	var base Tick
	found := false
	for _, t := range ring {
		if !t.Ts.Before(cutoff) {
			base = t
			found = true
			break
		}
	}
	if !found || base.Price == 0 {
		return 0
	}
	last := ring[len(ring)-1].Price
	if last <= 0 {
		return 0
	}
	return math.Log(last/base.Price) * 10000
}

// ReturnsWindow returns raw price samples within the trailing window,
// oldest first, for use by the forecaster's log-return/RSI inputs.
func (f *Feed) ReturnsWindow(window time.Duration) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.primary) == 0 {
		return nil
	}
	cutoff := f.primary[len(f.primary)-1].Ts.Add(-window)
	out := make([]float64, 0, len(f.primary))
	for _, t := range f.primary {
		if !t.Ts.Before(cutoff) {
			out = append(out, t.Price)
		}
	}
	return out
}

// PriceAgo returns the primary price at least `ago` old, scanning from
// the newest sample backwards, per original_source's _price_ago.
func (f *Feed) PriceAgo(ago time.Duration) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.primary) == 0 {
		return 0, false
	}
	now := f.primary[len(f.primary)-1].Ts
	for i := len(f.primary) - 1; i >= 0; i-- {
		if now.Sub(f.primary[i].Ts) >= ago {
			return f.primary[i].Price, true
		}
	}
	return f.primary[0].Price, true
}

// RSI computes the magnitude-weighted up/down RSI over the trailing
// window, per original_source's _compute_btc_signal rsi_window.
func (f *Feed) RSI(window time.Duration) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.primary) == 0 {
		return 50
	}
	cutoff := f.primary[len(f.primary)-1].Ts.Add(-window)
	var up, down float64
	var prev float64
	have := false
	for _, t := range f.primary {
		if t.Ts.Before(cutoff) {
			continue
		}
		if have {
			d := t.Price - prev
			if d > 0 {
				up += d
			} else {
				down += -d
			}
		}
		prev = t.Price
		have = true
	}
	if up+down <= 0 {
		return 50
	}
	return 100 * up / (up + down)
}

// OracleLatest returns the most recent oracle tick, if any.
func (f *Feed) OracleLatest() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.oracle) == 0 {
		return 0, false
	}
	return f.oracle[len(f.oracle)-1].Price, true
}

// PrimaryLatest returns the most recent primary tick, if any.
func (f *Feed) PrimaryLatest() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.primary) == 0 {
		return 0, false
	}
	return f.primary[len(f.primary)-1].Price, true
}
