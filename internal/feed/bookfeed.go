package feed

import (
	"sync"
	"time"
)

// MsgKind enumerates the three exchange stream message kinds of
// spec.md §4.1.
type MsgKind string

const (
	MsgBestBidAsk  MsgKind = "best_bid_ask"
	MsgBook        MsgKind = "book"
	MsgPriceChange MsgKind = "price_change"
)

// Level is a single best bid/ask reading for an asset token.
type Level struct {
	Bid, Ask float64
}

// BookMsg is a normalized inbound message; the websocket reader parses the
// exchange wire format into this shape before handing it to BookFeed.
type BookMsg struct {
	Kind    MsgKind
	AssetID string
	BestBid float64
	BestAsk float64
	Bids    []struct{ Price, Size float64 }
	Asks    []struct{ Price, Size float64 }
	Changes []BookMsg // for MsgPriceChange
}

// MarketTick is the throttled per-market publication of spec.md §4.1.
type MarketTick struct {
	MarketID     string
	BestAskYes   float64
	BestAskNo    float64
	AskSumNoFees float64
	Ts           time.Time
}

const tickHistoryCap = 5000
const publishThrottle = 250 * time.Millisecond

// BookFeed is C1: best-bid/ask per asset, bounded per-market tick
// history, and a wake channel for event-driven scheduling.
type BookFeed struct {
	mu          sync.Mutex
	cond        *sync.Cond
	best        map[string]Level                 // assetID -> best
	marketAsset map[string][2]string              // marketID -> [yesToken, noToken]
	history     map[string][]MarketTick           // marketID -> bounded history
	lastPublish map[string]time.Time              // marketID -> last publish ts
	lastTs      int64                             // monotonically increasing update counter
	subscribed  map[string]bool
}

// NewBookFeed constructs an empty BookFeed.
func NewBookFeed() *BookFeed {
	bf := &BookFeed{
		best:        make(map[string]Level),
		marketAsset: make(map[string][2]string),
		history:     make(map[string][]MarketTick),
		lastPublish: make(map[string]time.Time),
		subscribed:  make(map[string]bool),
	}
	bf.cond = sync.NewCond(&bf.mu)
	return bf
}

// Subscribe is idempotent: it records the asset set as wanted. The
// websocket reader consults TrackedAssets() to know what to (re)send on
// reconnect, per spec.md's "re-send full subscription on reconnect".
func (bf *BookFeed) Subscribe(assetIDs []string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	for _, a := range assetIDs {
		bf.subscribed[a] = true
	}
}

// RegisterMarket associates a market id with its yes/no token ids so
// per-market ticks can be derived from per-asset best-bid/ask updates.
func (bf *BookFeed) RegisterMarket(marketID, yesToken, noToken string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.marketAsset[marketID] = [2]string{yesToken, noToken}
}

// TrackedAssets returns all subscribed asset ids.
func (bf *BookFeed) TrackedAssets() []string {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	out := make([]string, 0, len(bf.subscribed))
	for a := range bf.subscribed {
		out = append(out, a)
	}
	return out
}

// GetBest returns the best bid/ask for an asset, if any level is known.
func (bf *BookFeed) GetBest(assetID string) (bid, ask float64, ok bool) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	lvl, exists := bf.best[assetID]
	if !exists {
		return 0, 0, false
	}
	return lvl.Bid, lvl.Ask, lvl.Bid > 0 || lvl.Ask > 0
}

// Apply ingests one normalized exchange message, per spec.md §4.1's
// positive-values-only / zero-means-no-level rule.
func (bf *BookFeed) Apply(msg BookMsg) {
	switch msg.Kind {
	case MsgBestBidAsk:
		bf.setLevel(msg.AssetID, msg.BestBid, msg.BestAsk)
	case MsgBook:
		bid := maxPositive(msg.Bids)
		ask := minPositive(msg.Asks)
		bf.setLevel(msg.AssetID, bid, ask)
	case MsgPriceChange:
		for _, c := range msg.Changes {
			bf.setLevel(c.AssetID, c.BestBid, c.BestAsk)
		}
	}
}

func (bf *BookFeed) setLevel(assetID string, bid, ask float64) {
	bf.mu.Lock()
	cur := bf.best[assetID]
	if bid > 0 {
		cur.Bid = bid
	}
	if ask > 0 {
		cur.Ask = ask
	}
	bf.best[assetID] = cur
	bf.lastTs++
	bf.maybePublishLocked(assetID)
	bf.cond.Broadcast()
	bf.mu.Unlock()
}

// maybePublishLocked emits a throttled MarketTick for any market whose
// yes/no tokens include assetID. Caller must hold bf.mu.
func (bf *BookFeed) maybePublishLocked(assetID string) {
	now := time.Now()
	for marketID, pair := range bf.marketAsset {
		if pair[0] != assetID && pair[1] != assetID {
			continue
		}
		if last, ok := bf.lastPublish[marketID]; ok && now.Sub(last) < publishThrottle {
			continue
		}
		yesAsk := bf.best[pair[0]].Ask
		noAsk := bf.best[pair[1]].Ask
		tick := MarketTick{
			MarketID:     marketID,
			BestAskYes:   yesAsk,
			BestAskNo:    noAsk,
			AskSumNoFees: yesAsk + noAsk,
			Ts:           now,
		}
		hist := append(bf.history[marketID], tick)
		if len(hist) > tickHistoryCap {
			hist = hist[len(hist)-tickHistoryCap:]
		}
		bf.history[marketID] = hist
		bf.lastPublish[marketID] = now
	}
}

// WaitForUpdate blocks until a new update has landed after `afterTs` or
// timeout elapses, returning the new last-update counter. Used by the
// Scheduler's event-driven mode.
func (bf *BookFeed) WaitForUpdate(afterTs int64, timeout time.Duration) int64 {
	done := make(chan struct{})
	var result int64

	go func() {
		bf.mu.Lock()
		defer bf.mu.Unlock()
		for bf.lastTs <= afterTs {
			bf.cond.Wait()
		}
		result = bf.lastTs
		close(done)
	}()

	select {
	case <-done:
		return result
	case <-time.After(timeout):
		bf.mu.Lock()
		ts := bf.lastTs
		bf.mu.Unlock()
		bf.cond.Broadcast() // unblock the waiter goroutine above
		return ts
	}
}

// Metrics reports per-market updates_per_min and ask_volatility over the
// trailing window_s seconds, per spec.md §4.1.
type Metrics struct {
	UpdatesPerMin float64
	AskVolatility float64
	LastSum       float64
}

func (bf *BookFeed) Metrics(marketID string, windowS float64) Metrics {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	hist := bf.history[marketID]
	if len(hist) == 0 {
		return Metrics{}
	}
	cutoff := time.Now().Add(-time.Duration(windowS) * time.Second)
	var inWindow []MarketTick
	for _, t := range hist {
		if t.Ts.After(cutoff) {
			inWindow = append(inWindow, t)
		}
	}
	if len(inWindow) == 0 {
		last := hist[len(hist)-1]
		return Metrics{LastSum: last.AskSumNoFees}
	}
	minYes, maxYes := inWindow[0].BestAskYes, inWindow[0].BestAskYes
	minNo, maxNo := inWindow[0].BestAskNo, inWindow[0].BestAskNo
	for _, t := range inWindow {
		minYes, maxYes = minF(minYes, t.BestAskYes), maxF(maxYes, t.BestAskYes)
		minNo, maxNo = minF(minNo, t.BestAskNo), maxF(maxNo, t.BestAskNo)
	}
	return Metrics{
		UpdatesPerMin: float64(len(inWindow)) / (windowS / 60),
		AskVolatility: (maxYes - minYes) + (maxNo - minNo),
		LastSum:       inWindow[len(inWindow)-1].AskSumNoFees,
	}
}

func maxPositive(levels []struct{ Price, Size float64 }) float64 {
	var max float64
	for _, l := range levels {
		if l.Price > 0 && l.Price > max {
			max = l.Price
		}
	}
	return max
}

func minPositive(levels []struct{ Price, Size float64 }) float64 {
	var min float64
	for _, l := range levels {
		if l.Price > 0 && (min == 0 || l.Price < min) {
			min = l.Price
		}
	}
	return min
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
