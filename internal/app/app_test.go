package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/polymarket-trader/internal/config"
	"github.com/GoPolymarket/polymarket-trader/internal/eventlog"
	"github.com/GoPolymarket/polymarket-trader/internal/forecast"
	"github.com/GoPolymarket/polymarket-trader/internal/ledger"
	"github.com/GoPolymarket/polymarket-trader/internal/market"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	evlog, err := eventlog.Open(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	t.Cleanup(func() { _ = evlog.Close() })
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(cfg, nil, nil, nil, nil, nil, nil, evlog, logger)
}

func TestNewAppInitializesState(t *testing.T) {
	a := testApp(t)
	if a.ledger == nil {
		t.Fatal("expected initialized ledger")
	}
	if a.global == nil {
		t.Fatal("expected initialized global memory")
	}
	if a.kpi == nil {
		t.Fatal("expected initialized kpi collector")
	}
	if a.perMarket == nil || a.refs == nil {
		t.Fatal("expected initialized perMarket/refs maps")
	}
	if a.CashUSD() != 1000 {
		t.Fatalf("expected starting cash 1000, got %f", a.CashUSD())
	}
	if a.TradingMode() != "paper" {
		t.Fatalf("expected default trading mode paper, got %q", a.TradingMode())
	}
	if a.IsRunning() {
		t.Fatal("expected running=false before Run")
	}
}

func TestMemoryForIsStableAcrossCalls(t *testing.T) {
	a := testApp(t)
	m1 := a.memoryFor("market-1")
	m1.BTCTargetCache = 50000
	m2 := a.memoryFor("market-1")
	if m2.BTCTargetCache != 50000 {
		t.Fatalf("expected same memory instance to be returned, got BTCTargetCache=%f", m2.BTCTargetCache)
	}
	other := a.memoryFor("market-2")
	if other.BTCTargetCache != 0 {
		t.Fatal("expected a fresh memory for a different market id")
	}
}

func TestResolveBTCTargetUsesCache(t *testing.T) {
	a := testApp(t)
	ref := market.Ref{MarketID: "m1"}
	a.memoryFor(ref.MarketID).BTCTargetCache = 61000

	target, ok := a.resolveBTCTarget(ref, time.Now())
	if !ok || target != 61000 {
		t.Fatalf("expected cached target 61000, got %f ok=%v", target, ok)
	}
}

func TestResolveBTCTargetFallsBackToSpotTick(t *testing.T) {
	a := testApp(t)
	now := time.Now().UTC()
	a.spotFeed.OnPrimaryTick(now.Add(-30*time.Second), 59500)

	ref := market.Ref{MarketID: "m2", EventStartTime: now.Add(-30 * time.Second)}
	target, ok := a.resolveBTCTarget(ref, now)
	if !ok || target != 59500 {
		t.Fatalf("expected fallback to spot tick near event start, got %f ok=%v", target, ok)
	}
}

func TestResolveBTCTargetFallsBackToCurrentSpot(t *testing.T) {
	a := testApp(t)
	now := time.Now().UTC()
	a.spotFeed.OnPrimaryTick(now, 62000)

	ref := market.Ref{MarketID: "m3"}
	target, ok := a.resolveBTCTarget(ref, now)
	if !ok || target != 62000 {
		t.Fatalf("expected fallback to current spot price, got %f ok=%v", target, ok)
	}
}

func TestResolveBTCTargetMissingWithNoSpotData(t *testing.T) {
	a := testApp(t)
	ref := market.Ref{MarketID: "m4"}
	if _, ok := a.resolveBTCTarget(ref, time.Now()); ok {
		t.Fatal("expected no target with no cache or spot feed data")
	}
}

func TestLedgerSideRoundTrip(t *testing.T) {
	if ledgerSide(forecast.BuyYes) != ledger.BuyYes {
		t.Fatal("expected BuyYes to map to ledger.BuyYes")
	}
	if ledgerSide(forecast.BuyNo) != ledger.BuyNo {
		t.Fatal("expected BuyNo to map to ledger.BuyNo")
	}
	if forecastSide(ledger.BuyYes) != forecast.BuyYes {
		t.Fatal("expected ledger.BuyYes to map back to forecast.BuyYes")
	}
	if forecastSide(ledger.BuyNo) != forecast.BuyNo {
		t.Fatal("expected ledger.BuyNo to map back to forecast.BuyNo")
	}
}

func TestLogReturns(t *testing.T) {
	if got := logReturns([]float64{100}); got != nil {
		t.Fatalf("expected nil for a single sample, got %v", got)
	}
	returns := logReturns([]float64{100, 110, 99})
	if len(returns) != 2 {
		t.Fatalf("expected 2 log returns, got %d", len(returns))
	}
	if returns[0] <= 0 {
		t.Fatalf("expected a positive log return for an increasing price, got %f", returns[0])
	}
	if returns[1] >= 0 {
		t.Fatalf("expected a negative log return for a decreasing price, got %f", returns[1])
	}
}

func TestAssetSetsDiffer(t *testing.T) {
	if assetSetsDiffer([]string{"a", "b"}, []string{"b", "a"}) {
		t.Fatal("expected reordered but identical sets to compare equal")
	}
	if !assetSetsDiffer([]string{"a"}, []string{"a", "b"}) {
		t.Fatal("expected different-length sets to differ")
	}
	if !assetSetsDiffer([]string{"a", "b"}, []string{"a", "c"}) {
		t.Fatal("expected sets with a swapped member to differ")
	}
}

func TestSendScheduledTelegramReportsOncePerDay(t *testing.T) {
	a := testApp(t)
	mockN := &mockNotifier{}
	a.notifier = mockN

	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday
	a.sendScheduledTelegramReports(context.Background(), day)
	a.sendScheduledTelegramReports(context.Background(), day.Add(time.Hour))

	if mockN.dailyTemplateCalls != 1 {
		t.Fatalf("expected exactly 1 daily template call across same-day invocations, got %d", mockN.dailyTemplateCalls)
	}
	if mockN.weeklyTemplateCalls != 1 {
		t.Fatalf("expected 1 weekly template call on Monday, got %d", mockN.weeklyTemplateCalls)
	}
	if !strings.Contains(mockN.lastDailyTemplate, "Daily Trading Coach") {
		t.Fatalf("expected daily template text, got %q", mockN.lastDailyTemplate)
	}
	if !strings.Contains(mockN.lastWeeklyTemplate, "Weekly Trading Review") {
		t.Fatalf("expected weekly template text, got %q", mockN.lastWeeklyTemplate)
	}

	tuesday := day.Add(24 * time.Hour)
	a.sendScheduledTelegramReports(context.Background(), tuesday)
	if mockN.dailyTemplateCalls != 2 {
		t.Fatalf("expected a new daily template call on the next day, got %d", mockN.dailyTemplateCalls)
	}
	if mockN.weeklyTemplateCalls != 1 {
		t.Fatalf("expected no additional weekly template call on a non-Monday, got %d", mockN.weeklyTemplateCalls)
	}
}

type mockNotifier struct {
	dailyTemplateCalls  int
	weeklyTemplateCalls int
	lastDailyTemplate   string
	lastWeeklyTemplate  string
}

func (m *mockNotifier) NotifyOpen(_ context.Context, _, _, _ string, _, _ float64) error { return nil }
func (m *mockNotifier) NotifyClose(_ context.Context, _, _, _ string, _ float64) error   { return nil }
func (m *mockNotifier) NotifyGlobalFlipStopPause(_ context.Context, _ time.Duration) error {
	return nil
}
func (m *mockNotifier) NotifyDailySummary(_ context.Context, _ float64, _ int, _ float64) error {
	return nil
}

func (m *mockNotifier) NotifyDailyCoachTemplate(_ context.Context, textHTML string) error {
	m.dailyTemplateCalls++
	m.lastDailyTemplate = textHTML
	return nil
}

func (m *mockNotifier) NotifyWeeklyReviewTemplate(_ context.Context, textHTML string) error {
	m.weeklyTemplateCalls++
	m.lastWeeklyTemplate = textHTML
	return nil
}

func TestAppStateGettersEmptyByDefault(t *testing.T) {
	a := testApp(t)
	if len(a.OpenPositions()) != 0 {
		t.Fatal("expected no open positions for a fresh app")
	}
	if len(a.ClosedPositions(10)) != 0 {
		t.Fatal("expected no closed positions for a fresh app")
	}
	if a.RealizedPnLUSD() != 0 {
		t.Fatal("expected zero realized pnl for a fresh app")
	}
	if a.GlobalPauseActive() {
		t.Fatal("expected global pause inactive for a fresh app")
	}
	if len(a.MonitoredMarkets()) != 0 {
		t.Fatal("expected no monitored markets before a discovery cycle")
	}
	if len(a.Radar()) != 0 || len(a.Inefficiency()) != 0 || len(a.FlowWatch()) != 0 {
		t.Fatal("expected empty ops-intelligence reports before a cycle runs")
	}
	snap := a.KPISnapshot()
	if snap == nil {
		t.Fatal("expected a non-nil kpi snapshot")
	}
}
