// Package ledger implements C8: cash, open/closed positions, and realized
// P&L, with pure open/close_fraction/close operations per spec.md §4.8.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the held outcome-token direction.
type Side string

const (
	BuyYes Side = "BUY_YES"
	BuyNo  Side = "BUY_NO"
)

// Status is a Position's lifecycle state.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Position is §3's Position record.
type Position struct {
	ID          string
	MarketID    string
	MarketName  string
	Side        Side
	Status      Status
	EntryPrice  decimal.Decimal
	Qty         decimal.Decimal
	NotionalUSD decimal.Decimal
	OpenedAt    time.Time
	ClosedAt    *time.Time
	ExitPrice   *decimal.Decimal
	PnLUSD      *decimal.Decimal

	ModelOpen    string
	ModelClose   string
	CloseReason  string
	EdgeEntry    float64
	EdgePeak     float64
	TP35Taken    bool
}

// Ledger holds cash and positions. All mutating methods are safe for
// concurrent use, but per spec.md §5 only the cycle goroutine calls them.
type Ledger struct {
	mu            sync.Mutex
	CashUSD       decimal.Decimal
	Open          map[string]*Position // keyed by position id
	Closed        []*Position
	RealizedPnL   decimal.Decimal
	startingCash  decimal.Decimal
}

// New creates a Ledger starting with the given cash balance.
func New(startingCashUSD decimal.Decimal) *Ledger {
	return &Ledger{
		CashUSD:      startingCashUSD,
		startingCash: startingCashUSD,
		Open:         make(map[string]*Position),
	}
}

// OpenPositionForMarket returns the current open position for a market,
// if any. At most one OPEN position per market_id may exist (spec.md §8).
func (l *Ledger) OpenPositionForMarket(marketID string) *Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.Open {
		if p.MarketID == marketID {
			return p
		}
	}
	return nil
}

// OpenCount returns the number of currently open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Open)
}

// Open books a new position. Requires entry>0 and 0<size<=cash; deducts
// size from cash immediately.
func (l *Ledger) OpenPosition(marketID, marketName string, side Side, entry, size decimal.Decimal, model string) (*Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !entry.IsPositive() {
		return nil, fmt.Errorf("ledger: entry price must be > 0, got %s", entry)
	}
	if !size.IsPositive() || size.GreaterThan(l.CashUSD) {
		return nil, fmt.Errorf("ledger: size must be in (0, cash]; size=%s cash=%s", size, l.CashUSD)
	}

	qty := size.Div(entry)
	pos := &Position{
		ID:          uuid.NewString(),
		MarketID:    marketID,
		MarketName:  marketName,
		Side:        side,
		Status:      StatusOpen,
		EntryPrice:  entry,
		Qty:         qty,
		NotionalUSD: size,
		OpenedAt:    time.Now().UTC(),
		ModelOpen:   model,
	}
	l.CashUSD = l.CashUSD.Sub(size)
	l.Open[pos.ID] = pos
	return pos, nil
}

// CloseFraction closes a fraction f∈(0,1] of pos at exit, updating cash
// and realized P&L, and reducing the position's remaining qty/notional.
// Returns the realized P&L of this fraction.
func (l *Ledger) CloseFraction(pos *Position, exit decimal.Decimal, f float64, model, reason string) (decimal.Decimal, error) {
	if f <= 0 || f > 1 {
		return decimal.Zero, fmt.Errorf("ledger: fraction must be in (0,1], got %f", f)
	}
	if !exit.IsPositive() {
		return decimal.Zero, fmt.Errorf("ledger: exit price must be > 0, got %s", exit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.Open[pos.ID]; !ok {
		return decimal.Zero, fmt.Errorf("ledger: position %s is not open", pos.ID)
	}

	frac := decimal.NewFromFloat(f)
	closeQty := pos.Qty.Mul(frac)
	closeNotional := pos.NotionalUSD.Mul(frac)
	proceeds := closeQty.Mul(exit)
	pnl := proceeds.Sub(closeNotional)

	l.CashUSD = l.CashUSD.Add(proceeds)
	l.RealizedPnL = l.RealizedPnL.Add(pnl)
	pos.Qty = pos.Qty.Sub(closeQty)
	pos.NotionalUSD = pos.NotionalUSD.Sub(closeNotional)
	pos.ModelClose = model
	pos.CloseReason = reason

	if f == 1 || pos.Qty.IsZero() || pos.Qty.IsNegative() {
		now := time.Now().UTC()
		pos.ClosedAt = &now
		exitCopy := exit
		pos.ExitPrice = &exitCopy
		pnlCopy := pnl
		pos.PnLUSD = &pnlCopy
		pos.Status = StatusClosed
		delete(l.Open, pos.ID)
		l.Closed = append(l.Closed, pos)
	}

	return pnl, nil
}

// Close fully closes a position — CloseFraction(pos, exit, 1).
func (l *Ledger) Close(pos *Position, exit decimal.Decimal, model, reason string) (decimal.Decimal, error) {
	return l.CloseFraction(pos, exit, 1, model, reason)
}

// ConservationOK checks the cash-conservation invariant of spec.md §8:
// cash + Σopen.notional == starting_cash + realized_pnl − Σ(close.notional−close.proceeds).
// Because CloseFraction already folds proceeds into cash and pnl into
// RealizedPnL at the moment of each close, the identity reduces to
// cash + Σopen.notional == starting_cash + realized_pnl.
func (l *Ledger) ConservationOK() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := l.CashUSD.Add(l.sumOpenNotionalLocked())
	want := l.startingCash.Add(l.RealizedPnL)
	return sum.Sub(want).Abs().LessThan(decimal.New(1, -6))
}

// OpenPositions returns a snapshot of all currently open positions.
func (l *Ledger) OpenPositions() []*Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Position, 0, len(l.Open))
	for _, p := range l.Open {
		out = append(out, p)
	}
	return out
}

// ClosedPositions returns the most recent closed positions, newest first,
// capped at limit (0 or negative means no cap).
func (l *Ledger) ClosedPositions(limit int) []*Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.Closed)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Position, limit)
	for i := 0; i < limit; i++ {
		out[i] = l.Closed[n-1-i]
	}
	return out
}

// CashUSD returns the current cash balance.
func (l *Ledger) CashBalance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, _ := l.CashUSD.Float64()
	return f
}

// RealizedPnLUSD returns cumulative realized P&L.
func (l *Ledger) RealizedPnLUSD() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, _ := l.RealizedPnL.Float64()
	return f
}

// UnrealizedPnLUSD mark-to-markets every open position against the current
// mid for the side it holds (yesMid/noMid keyed by market_id) and sums the
// result. Positions for a market missing from either map are skipped.
func (l *Ledger) UnrealizedPnLUSD(yesMid, noMid map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, p := range l.Open {
		var mid float64
		switch p.Side {
		case BuyYes:
			mid = yesMid[p.MarketID]
		case BuyNo:
			mid = noMid[p.MarketID]
		}
		if mid <= 0 {
			continue
		}
		entry, _ := p.EntryPrice.Float64()
		qty, _ := p.Qty.Float64()
		total += (mid - entry) * qty
	}
	return total
}

func (l *Ledger) sumOpenNotionalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.Open {
		total = total.Add(p.NotionalUSD)
	}
	return total
}
