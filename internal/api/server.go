// Package api serves a lightweight dashboard over the trading cycle's
// Ledger/Strategy/EventLog state, grounded on the teacher's own
// internal/api/server.go (net/http ServeMux + AppState interface shape),
// re-pointed from the teacher's maker/taker/risk dashboard data onto
// this engine's BTC-window Ledger positions and ops-intelligence reports.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/polymarket-trader/internal/ledger"
	"github.com/GoPolymarket/polymarket-trader/internal/ops"
)

const builderStaleAfter = 30 * time.Minute

// AppState exposes the trading engine's state for the API layer.
type AppState interface {
	IsRunning() bool
	TradingMode() string
	MonitoredMarkets() []string
	OpenPositions() []*ledger.Position
	ClosedPositions(limit int) []*ledger.Position
	CashUSD() float64
	RealizedPnLUSD() float64
	GlobalPauseActive() bool
	Radar() []ops.RadarRow
	Inefficiency() []ops.InefficiencyRow
	FlowWatch() []ops.FlowRow
	KPISnapshot() map[string]interface{}
}

// PortfolioProvider exposes on-chain portfolio data (nil if unavailable).
type PortfolioProvider interface {
	TotalValue() float64
	LastSync() time.Time
}

// BuilderProvider exposes builder volume data (nil if unavailable).
type BuilderProvider interface {
	DailyVolumeJSON() interface{}
	LeaderboardJSON() interface{}
	LastSync() time.Time
}

// Server is a lightweight HTTP API for the trading dashboard.
type Server struct {
	httpServer *http.Server
	appState   AppState
	portfolio  PortfolioProvider
	builder    BuilderProvider
	startedAt  time.Time
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, appState AppState, portfolio PortfolioProvider, builder BuilderProvider) *Server {
	s := &Server{
		appState:  appState,
		portfolio: portfolio,
		builder:   builder,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/ready", s.handleReady)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/pnl", s.handlePnL)
	mux.HandleFunc("/api/markets", s.handleMarkets)
	mux.HandleFunc("/api/radar", s.handleRadar)
	mux.HandleFunc("/api/inefficiency", s.handleInefficiency)
	mux.HandleFunc("/api/flow", s.handleFlow)
	mux.HandleFunc("/api/builder", s.handleBuilder)
	mux.HandleFunc("/api/kpi", s.handleKPI)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	go func() {
		_ = s.httpServer.Serve(ln)
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/ready — readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.appState.IsRunning()
	resp := map[string]interface{}{
		"ready":        ready,
		"trading_mode": s.appState.TradingMode(),
		"uptime_s":     time.Since(s.startedAt).Seconds(),
	}
	if !ready {
		resp["reason"] = "engine_not_running"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, resp)
}

// GET /api/status — overall cycle status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"running":             s.appState.IsRunning(),
		"trading_mode":        s.appState.TradingMode(),
		"uptime_s":            time.Since(s.startedAt).Seconds(),
		"cash_usd":            s.appState.CashUSD(),
		"realized_pnl_usd":    s.appState.RealizedPnLUSD(),
		"open_positions":      len(s.appState.OpenPositions()),
		"global_pause_active": s.appState.GlobalPauseActive(),
		"markets":             s.appState.MonitoredMarkets(),
	}
	if s.portfolio != nil {
		resp["onchain_portfolio_value"] = s.portfolio.TotalValue()
		resp["onchain_portfolio_sync"] = s.portfolio.LastSync()
	}
	s.writeJSON(w, resp)
}

func positionJSON(p *ledger.Position) map[string]interface{} {
	m := map[string]interface{}{
		"id":           p.ID,
		"market_id":    p.MarketID,
		"market_name":  p.MarketName,
		"side":         p.Side,
		"status":       p.Status,
		"entry_price":  p.EntryPrice.String(),
		"qty":          p.Qty.String(),
		"notional_usd": p.NotionalUSD.String(),
		"opened_at":    p.OpenedAt,
		"model_open":   p.ModelOpen,
		"edge_entry":   p.EdgeEntry,
		"edge_peak":    p.EdgePeak,
		"tp35_taken":   p.TP35Taken,
	}
	if p.ClosedAt != nil {
		m["closed_at"] = *p.ClosedAt
		m["exit_price"] = p.ExitPrice.String()
		m["pnl_usd"] = p.PnLUSD.String()
		m["model_close"] = p.ModelClose
		m["close_reason"] = p.CloseReason
	}
	return m
}

// GET /api/positions — currently open positions.
func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	open := s.appState.OpenPositions()
	entries := make([]map[string]interface{}, len(open))
	for i, p := range open {
		entries[i] = positionJSON(p)
	}
	s.writeJSON(w, map[string]interface{}{"positions": entries, "count": len(entries)})
}

// GET /api/trades?limit=50 — recently closed positions.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	closed := s.appState.ClosedPositions(limit)
	entries := make([]map[string]interface{}, len(closed))
	for i, p := range closed {
		entries[i] = positionJSON(p)
	}
	s.writeJSON(w, map[string]interface{}{"trades": entries, "count": len(entries)})
}

// GET /api/pnl — cash + realized P&L snapshot.
func (s *Server) handlePnL(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"cash_usd":         s.appState.CashUSD(),
		"realized_pnl_usd": s.appState.RealizedPnLUSD(),
	})
}

// GET /api/markets — monitored BTC-window markets.
func (s *Server) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	markets := s.appState.MonitoredMarkets()
	s.writeJSON(w, map[string]interface{}{"markets": markets, "count": len(markets)})
}

// GET /api/radar — latest market_radar ranking.
func (s *Server) handleRadar(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{"radar": s.appState.Radar()})
}

// GET /api/inefficiency — latest inefficiency_report ranking.
func (s *Server) handleInefficiency(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{"inefficiency": s.appState.Inefficiency()})
}

// GET /api/flow — latest flow_watch ranking.
func (s *Server) handleFlow(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{"flow": s.appState.FlowWatch()})
}

// GET /api/kpi — daily/30-day signal, order, guard, and P&L KPI figures.
func (s *Server) handleKPI(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.appState.KPISnapshot())
}

// GET /api/builder — builder volume and leaderboard data (live mode only).
func (s *Server) handleBuilder(w http.ResponseWriter, _ *http.Request) {
	if s.builder == nil {
		s.writeJSON(w, map[string]interface{}{"configured": false})
		return
	}
	lastSync := s.builder.LastSync()
	neverSynced := lastSync.IsZero()
	stale := neverSynced || time.Since(lastSync) > builderStaleAfter
	s.writeJSON(w, map[string]interface{}{
		"configured":    true,
		"daily_volume":  s.builder.DailyVolumeJSON(),
		"leaderboard":   s.builder.LeaderboardJSON(),
		"last_sync":     lastSync,
		"never_synced":  neverSynced,
		"stale":         stale,
		"stale_after_s": builderStaleAfter.Seconds(),
	})
}
