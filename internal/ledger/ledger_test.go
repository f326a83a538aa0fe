package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestOpenPositionDeductsCash(t *testing.T) {
	l := New(dec(1000))
	pos, err := l.OpenPosition("m1", "Will BTC hit 100k?", BuyYes, dec(0.5), dec(100), "scalp")
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if l.CashBalance() != 900 {
		t.Fatalf("expected cash 900, got %f", l.CashBalance())
	}
	if !pos.Qty.Equal(dec(200)) {
		t.Fatalf("expected qty 200, got %s", pos.Qty)
	}
}

func TestOpenPositionRejectsOversizedTrade(t *testing.T) {
	l := New(dec(100))
	if _, err := l.OpenPosition("m1", "q", BuyYes, dec(0.5), dec(200), "scalp"); err == nil {
		t.Fatal("expected error for size exceeding cash")
	}
}

func TestCloseFractionRealizesPnLAndConserves(t *testing.T) {
	l := New(dec(1000))
	pos, err := l.OpenPosition("m1", "q", BuyYes, dec(0.5), dec(100), "scalp")
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	pnl, err := l.Close(pos, dec(0.6), "scalp", "take_profit")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pnl.Equal(dec(20)) {
		t.Fatalf("expected realized pnl 20, got %s", pnl)
	}
	if !l.ConservationOK() {
		t.Fatal("expected cash-conservation invariant to hold after a full close")
	}
	if l.OpenCount() != 0 {
		t.Fatalf("expected 0 open positions after full close, got %d", l.OpenCount())
	}
}

func TestCloseFractionPartialKeepsPositionOpen(t *testing.T) {
	l := New(dec(1000))
	pos, err := l.OpenPosition("m1", "q", BuyYes, dec(0.5), dec(100), "scalp")
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	if _, err := l.CloseFraction(pos, dec(0.6), 0.5, "scalp", "take_profit_35"); err != nil {
		t.Fatalf("CloseFraction: %v", err)
	}
	if l.OpenCount() != 1 {
		t.Fatalf("expected position to stay open after a partial close, got %d open", l.OpenCount())
	}
	if !pos.NotionalUSD.Equal(dec(50)) {
		t.Fatalf("expected remaining notional 50, got %s", pos.NotionalUSD)
	}
}

func TestUnrealizedPnLUSDMarksOpenPositions(t *testing.T) {
	l := New(dec(1000))
	yesPos, err := l.OpenPosition("m1", "q", BuyYes, dec(0.5), dec(100), "scalp")
	if err != nil {
		t.Fatalf("OpenPosition yes: %v", err)
	}
	noPos, err := l.OpenPosition("m2", "q2", BuyNo, dec(0.4), dec(40), "trend")
	if err != nil {
		t.Fatalf("OpenPosition no: %v", err)
	}

	yesMid := map[string]float64{"m1": 0.6}
	noMid := map[string]float64{"m2": 0.3}
	got := l.UnrealizedPnLUSD(yesMid, noMid)

	yesQty, _ := yesPos.Qty.Float64()
	noQty, _ := noPos.Qty.Float64()
	want := (0.6-0.5)*yesQty + (0.3-0.4)*noQty
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected unrealized pnl %f, got %f", want, got)
	}
}

func TestUnrealizedPnLUSDSkipsMarketsMissingAMark(t *testing.T) {
	l := New(dec(1000))
	if _, err := l.OpenPosition("m1", "q", BuyYes, dec(0.5), dec(100), "scalp"); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if got := l.UnrealizedPnLUSD(nil, nil); got != 0 {
		t.Fatalf("expected 0 unrealized pnl with no marks available, got %f", got)
	}
}
