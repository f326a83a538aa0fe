package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GoPolymarket/polymarket-trader/internal/ledger"
	"github.com/GoPolymarket/polymarket-trader/internal/ops"
)

type mockAppState struct {
	running      bool
	tradingMode  string
	markets      []string
	open         []*ledger.Position
	closed       []*ledger.Position
	cashUSD      float64
	realizedPnL  float64
	globalPaused bool
	radar        []ops.RadarRow
	inefficiency []ops.InefficiencyRow
	flow         []ops.FlowRow
	kpi          map[string]interface{}
}

func (m *mockAppState) IsRunning() bool                              { return m.running }
func (m *mockAppState) TradingMode() string                          { return m.tradingMode }
func (m *mockAppState) MonitoredMarkets() []string                   { return m.markets }
func (m *mockAppState) OpenPositions() []*ledger.Position            { return m.open }
func (m *mockAppState) ClosedPositions(limit int) []*ledger.Position { return m.closed }
func (m *mockAppState) CashUSD() float64                             { return m.cashUSD }
func (m *mockAppState) RealizedPnLUSD() float64                      { return m.realizedPnL }
func (m *mockAppState) GlobalPauseActive() bool                      { return m.globalPaused }
func (m *mockAppState) Radar() []ops.RadarRow                        { return m.radar }
func (m *mockAppState) Inefficiency() []ops.InefficiencyRow          { return m.inefficiency }
func (m *mockAppState) FlowWatch() []ops.FlowRow                     { return m.flow }
func (m *mockAppState) KPISnapshot() map[string]interface{}          { return m.kpi }

type mockPortfolio struct {
	value    float64
	lastSync time.Time
}

func (m *mockPortfolio) TotalValue() float64 { return m.value }
func (m *mockPortfolio) LastSync() time.Time { return m.lastSync }

type mockBuilder struct {
	lastSync    time.Time
	dailyVolume interface{}
	leaderboard interface{}
}

func (m *mockBuilder) DailyVolumeJSON() interface{} { return m.dailyVolume }
func (m *mockBuilder) LeaderboardJSON() interface{} { return m.leaderboard }
func (m *mockBuilder) LastSync() time.Time          { return m.lastSync }

func decodeJSON(t *testing.T, body *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(body.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(":0", &mockAppState{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decodeJSON(t, w)["ok"] != true {
		t.Error("expected ok=true")
	}
}

func TestHandleReadyNotRunning(t *testing.T) {
	s := NewServer(":0", &mockAppState{running: false, tradingMode: "paper"}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	resp := decodeJSON(t, w)
	if resp["ready"] != false {
		t.Error("expected ready=false")
	}
	if resp["reason"] != "engine_not_running" {
		t.Errorf("expected reason=engine_not_running, got %v", resp["reason"])
	}
}

func TestHandleStatus(t *testing.T) {
	pos := &ledger.Position{ID: "p1", MarketID: "m1", Status: ledger.StatusOpen}
	state := &mockAppState{
		running:     true,
		tradingMode: "paper",
		cashUSD:     980.5,
		realizedPnL: 12.3,
		markets:     []string{"m1", "m2"},
		open:        []*ledger.Position{pos},
	}
	portfolio := &mockPortfolio{value: 1005.0, lastSync: time.Now()}
	s := NewServer(":0", state, portfolio, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeJSON(t, w)
	if resp["running"] != true {
		t.Error("expected running=true")
	}
	if resp["cash_usd"].(float64) != 980.5 {
		t.Errorf("expected cash_usd=980.5, got %v", resp["cash_usd"])
	}
	if int(resp["open_positions"].(float64)) != 1 {
		t.Errorf("expected open_positions=1, got %v", resp["open_positions"])
	}
	if resp["onchain_portfolio_value"].(float64) != 1005.0 {
		t.Errorf("expected onchain_portfolio_value=1005.0, got %v", resp["onchain_portfolio_value"])
	}
}

func TestHandlePositions(t *testing.T) {
	state := &mockAppState{
		open: []*ledger.Position{
			{ID: "p1", MarketID: "m1", Side: ledger.BuyYes, Status: ledger.StatusOpen,
				EntryPrice: decimal.NewFromFloat(0.55), Qty: decimal.NewFromFloat(18.18), NotionalUSD: decimal.NewFromFloat(10)},
		},
	}
	s := NewServer(":0", state, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	w := httptest.NewRecorder()
	s.handlePositions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeJSON(t, w)
	positions := resp["positions"].([]interface{})
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
}

func TestHandleTrades(t *testing.T) {
	closedAt := time.Now()
	exit := decimal.NewFromFloat(0.62)
	pnl := decimal.NewFromFloat(1.4)
	state := &mockAppState{
		closed: []*ledger.Position{
			{ID: "p1", MarketID: "m1", Side: ledger.BuyYes, Status: ledger.StatusClosed,
				EntryPrice: decimal.NewFromFloat(0.55), ClosedAt: &closedAt, ExitPrice: &exit, PnLUSD: &pnl},
		},
	}
	s := NewServer(":0", state, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/trades?limit=10", nil)
	w := httptest.NewRecorder()
	s.handleTrades(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeJSON(t, w)
	trades := resp["trades"].([]interface{})
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	trade := trades[0].(map[string]interface{})
	if trade["pnl_usd"] != "1.4" {
		t.Errorf("expected pnl_usd=1.4, got %v", trade["pnl_usd"])
	}
}

func TestHandlePnL(t *testing.T) {
	state := &mockAppState{cashUSD: 500, realizedPnL: 25.5}
	s := NewServer(":0", state, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/pnl", nil)
	w := httptest.NewRecorder()
	s.handlePnL(w, req)

	resp := decodeJSON(t, w)
	if resp["realized_pnl_usd"].(float64) != 25.5 {
		t.Errorf("expected realized_pnl_usd=25.5, got %v", resp["realized_pnl_usd"])
	}
}

func TestHandleMarkets(t *testing.T) {
	state := &mockAppState{markets: []string{"m1", "m2", "m3"}}
	s := NewServer(":0", state, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	w := httptest.NewRecorder()
	s.handleMarkets(w, req)

	resp := decodeJSON(t, w)
	if int(resp["count"].(float64)) != 3 {
		t.Errorf("expected count=3, got %v", resp["count"])
	}
}

func TestHandleRadarInefficiencyFlow(t *testing.T) {
	state := &mockAppState{
		radar:        []ops.RadarRow{{MarketID: "m1", Score: 1.5}},
		inefficiency: []ops.InefficiencyRow{{MarketID: "m1", ExecutionGapBps: 40}},
		flow:         []ops.FlowRow{{MarketID: "m1", Tag: "yes_pressure"}},
	}
	s := NewServer(":0", state, nil, nil)

	for path, handler := range map[string]http.HandlerFunc{
		"/api/radar":        s.handleRadar,
		"/api/inefficiency": s.handleInefficiency,
		"/api/flow":         s.handleFlow,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestHandleBuilderConfigured(t *testing.T) {
	builder := &mockBuilder{
		lastSync:    time.Now(),
		dailyVolume: []string{"v1", "v2"},
		leaderboard: []string{"l1"},
	}
	s := NewServer(":0", &mockAppState{}, nil, builder)

	req := httptest.NewRequest(http.MethodGet, "/api/builder", nil)
	w := httptest.NewRecorder()
	s.handleBuilder(w, req)

	resp := decodeJSON(t, w)
	if resp["configured"] != true {
		t.Error("expected configured=true")
	}
	if resp["stale"] != false {
		t.Errorf("expected stale=false, got %v", resp["stale"])
	}
}

func TestHandleBuilderUnconfigured(t *testing.T) {
	s := NewServer(":0", &mockAppState{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/builder", nil)
	w := httptest.NewRecorder()
	s.handleBuilder(w, req)

	resp := decodeJSON(t, w)
	if resp["configured"] != false {
		t.Error("expected configured=false")
	}
}

func TestHandleKPI(t *testing.T) {
	state := &mockAppState{kpi: map[string]interface{}{
		"scalp_signal_count_daily": 3,
		"trend_signal_count_daily": 5,
	}}
	s := NewServer(":0", state, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/kpi", nil)
	w := httptest.NewRecorder()
	s.handleKPI(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeJSON(t, w)
	if int(resp["trend_signal_count_daily"].(float64)) != 5 {
		t.Errorf("expected trend_signal_count_daily=5, got %v", resp["trend_signal_count_daily"])
	}
}
