// Package app wires C1-C10 into the single per-cycle trading loop of
// spec.md §5: one cycle goroutine owns Ledger/PerMarketMemory/
// GlobalMemory, driven by engine.Scheduler and fed by two
// errgroup-supervised background goroutines (BookFeed, SpotFeed),
// grounded on the teacher's own internal/app/app.go Run() shape
// (ws/rtds subscribe-with-reconnect select loop, heartbeat ticker,
// Portfolio/BuilderTracker side-goroutines) re-pointed from maker/taker
// quoting onto this engine's discover->snapshot->forecast->decide->
// execute->ledger pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/heartbeat"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/ws"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/data"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/gamma"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/rtds"

	"github.com/GoPolymarket/polymarket-trader/internal/builder"
	"github.com/GoPolymarket/polymarket-trader/internal/catalog"
	"github.com/GoPolymarket/polymarket-trader/internal/config"
	"github.com/GoPolymarket/polymarket-trader/internal/engine"
	"github.com/GoPolymarket/polymarket-trader/internal/eventlog"
	"github.com/GoPolymarket/polymarket-trader/internal/execution"
	"github.com/GoPolymarket/polymarket-trader/internal/feed"
	"github.com/GoPolymarket/polymarket-trader/internal/forecast"
	"github.com/GoPolymarket/polymarket-trader/internal/ledger"
	"github.com/GoPolymarket/polymarket-trader/internal/market"
	"github.com/GoPolymarket/polymarket-trader/internal/notify"
	"github.com/GoPolymarket/polymarket-trader/internal/ops"
	"github.com/GoPolymarket/polymarket-trader/internal/portfolio"
	"github.com/GoPolymarket/polymarket-trader/internal/snapshot"
	"github.com/GoPolymarket/polymarket-trader/internal/spot"
	"github.com/GoPolymarket/polymarket-trader/internal/strategy"
	"github.com/GoPolymarket/polymarket-trader/internal/telegramtmpl"
)

// notifier is the subset of *notify.Notifier the cycle loop depends on,
// accepted as an interface so tests can substitute a mock.
type notifier interface {
	NotifyOpen(ctx context.Context, marketID, side, model string, entry, sizeUSD float64) error
	NotifyClose(ctx context.Context, marketID, side, reason string, pnl float64) error
	NotifyGlobalFlipStopPause(ctx context.Context, until time.Duration) error
	NotifyDailyCoachTemplate(ctx context.Context, textHTML string) error
	NotifyWeeklyReviewTemplate(ctx context.Context, textHTML string) error
}

// eventNearTargetS bounds how stale an event's start time may be before
// spot-history inference for the BTC target is abandoned, mirroring
// original_source's _price_near_ts(max_delta_s=1200.0).
const eventNearTargetS = 1200 * time.Second

// App orchestrates one cycle of discovery, scoring, forecasting,
// decisioning, execution and ledger bookkeeping across every monitored
// BTC-window market.
type App struct {
	cfg    config.Config
	evlog  *eventlog.Log
	logger *slog.Logger

	clobClient      clob.Client
	wsClient        ws.Client
	signer          auth.Signer
	gammaClient     gamma.Client
	dataClient      data.Client
	rtdsClient      rtds.Client
	heartbeatClient heartbeat.Client

	catalog  *catalog.Catalog
	bookFeed *feed.BookFeed
	spotFeed *spot.Feed
	notifier notifier

	ledger *ledger.Ledger
	global *strategy.GlobalMemory
	kpi    *kpiCollector

	Portfolio      *portfolio.PortfolioTracker
	BuilderTracker *builder.VolumeTracker

	tradingMode string

	mu                  sync.Mutex
	running             bool
	perMarket           map[string]*strategy.PerMarketMemory
	refs                map[string]market.Ref
	radar               []ops.RadarRow
	inefficiency        []ops.InefficiencyRow
	flow                []ops.FlowRow
	lastDailyReportDate string
}

// New constructs an App wired to the given SDK clients. gammaClient,
// dataClient and rtdsClient may be nil in paper mode with no live feeds.
func New(cfg config.Config, clobClient clob.Client, wsClient ws.Client, signer auth.Signer, gammaClient gamma.Client, dataClient data.Client, rtdsClient rtds.Client, evlog *eventlog.Log, logger *slog.Logger) *App {
	a := &App{
		cfg:         cfg,
		evlog:       evlog,
		logger:      logger,
		clobClient:  clobClient,
		wsClient:    wsClient,
		signer:      signer,
		gammaClient: gammaClient,
		dataClient:  dataClient,
		rtdsClient:  rtdsClient,
		catalog:     catalog.New(gammaClient, cfg.Catalog),
		bookFeed:    feed.NewBookFeed(),
		spotFeed:    spot.New(),
		ledger:      ledger.New(decimal.NewFromFloat(cfg.App.StartingCashUSD)),
		global:      strategy.NewGlobalMemory(),
		kpi:         newKPICollector(),
		perMarket:   make(map[string]*strategy.PerMarketMemory),
		refs:        make(map[string]market.Ref),
		tradingMode: cfg.App.Mode,
	}

	if cfg.Telegram.Enabled {
		a.notifier = notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	if dataClient != nil && signer != nil {
		a.Portfolio = portfolio.NewTracker(dataClient, signer.Address(), 5*time.Minute)
	}
	if dataClient != nil && cfg.BuilderKey != "" {
		a.BuilderTracker = builder.NewVolumeTracker(dataClient, cfg.BuilderSyncInterval)
	}
	if clobClient != nil {
		a.heartbeatClient = clobClient.Heartbeat()
	}

	return a
}

// Run drives the cycle loop until ctx is cancelled, supervising the
// book feed and spot feed background goroutines under one errgroup.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.Portfolio != nil {
		go func() {
			if err := a.Portfolio.Run(ctx); err != nil && err != context.Canceled {
				a.logger.Error("portfolio tracker stopped", "error", err)
			}
		}()
	}
	if a.BuilderTracker != nil {
		go func() {
			if err := a.BuilderTracker.Run(ctx); err != nil && err != context.Canceled {
				a.logger.Error("builder tracker stopped", "error", err)
			}
		}()
	}
	if a.heartbeatClient != nil {
		go a.runHeartbeat(ctx)
	}

	schedCfg := engine.Config{
		LoopSeconds:     a.cfg.App.LoopSeconds,
		EventDriven:     a.cfg.App.EventDriven,
		UseBookFeedWait: a.cfg.App.EventDriven,
		MinCycleSeconds: a.cfg.App.MinCycleSeconds,
	}
	sched := engine.New(schedCfg, a.cycle, a.bookFeed.WaitForUpdate, a.evlog, a.logger)

	return engine.RunBackground(ctx, sched, a.runBookFeed, a.runSpotFeed)
}

func (a *App) runHeartbeat(ctx context.Context) {
	interval := a.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.heartbeatClient.Heartbeat(ctx, nil); err != nil {
				a.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// runBookFeed is C1's background goroutine: subscribes to the currently
// tracked asset set and re-subscribes both on channel closure and on a
// periodic refresh when Catalog discovery adds new markets, grounded on
// the teacher's bookCh-closed reconnect loop generalized to a changing
// asset set.
func (a *App) runBookFeed(ctx context.Context) error {
	if a.wsClient == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	const refreshEvery = 60 * time.Second

	for {
		assets := a.bookFeed.TrackedAssets()
		if len(assets) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}

		ch, err := a.wsClient.SubscribeOrderbook(ctx, assets)
		if err != nil {
			_ = a.evlog.Emit(eventlog.KindAdapterError, map[string]any{"source": "book_feed_subscribe", "error": err.Error()})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}

		if !a.readBookEvents(ctx, ch, assets, refreshEvery) {
			return ctx.Err()
		}
	}
}

// readBookEvents drains one subscription's events until it closes, the
// tracked asset set changes, or ctx is cancelled. Returns false when ctx
// is done (caller should stop); true when it should resubscribe.
func (a *App) readBookEvents(ctx context.Context, ch <-chan ws.OrderbookEvent, assets []string, refreshEvery time.Duration) bool {
	refreshTimer := time.NewTimer(refreshEvery)
	defer refreshTimer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return true
			}
			a.bookFeed.Apply(bookMsgFromEvent(ev))
		case <-refreshTimer.C:
			if assetSetsDiffer(assets, a.bookFeed.TrackedAssets()) {
				return true
			}
			refreshTimer.Reset(refreshEvery)
		}
	}
}

func assetSetsDiffer(a, b []string) bool {
	if len(a) != len(b) {
		return true
	}
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return true
		}
	}
	return false
}

func convertLevels(raw []ws.OrderbookLevel) []struct{ Price, Size float64 } {
	out := make([]struct{ Price, Size float64 }, 0, len(raw))
	for _, l := range raw {
		px, _ := strconv.ParseFloat(l.Price, 64)
		sz, _ := strconv.ParseFloat(l.Size, 64)
		out = append(out, struct{ Price, Size float64 }{px, sz})
	}
	return out
}

func bestBidOf(levels []struct{ Price, Size float64 }) float64 {
	var best float64
	for _, l := range levels {
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

func bestAskOf(levels []struct{ Price, Size float64 }) float64 {
	best := math.MaxFloat64
	found := false
	for _, l := range levels {
		if l.Price < best {
			best = l.Price
			found = true
		}
	}
	if !found {
		return 0
	}
	return best
}

func bookMsgFromEvent(ev ws.OrderbookEvent) feed.BookMsg {
	bids := convertLevels(ev.Bids)
	asks := convertLevels(ev.Asks)
	return feed.BookMsg{
		Kind:    feed.MsgBook,
		AssetID: ev.AssetID,
		BestBid: bestBidOf(bids),
		BestAsk: bestAskOf(asks),
		Bids:    bids,
		Asks:    asks,
	}
}

// runSpotFeed is C2's background goroutine: a single RTDS subscription
// carries both the chainlink oracle and binance-style primary readings,
// routed by inspecting the symbol, grounded on original_source's
// BtcRtdsHook (one websocket, two topic filters: "btc/usd" for the
// oracle, "btcusdt" for the primary exchange tick).
func (a *App) runSpotFeed(ctx context.Context) error {
	if a.rtdsClient == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ch, err := a.rtdsClient.SubscribeCryptoPrices(ctx, []string{"btc/usd", "btcusdt"})
	if err != nil {
		return fmt.Errorf("spot feed subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return fmt.Errorf("spot feed: crypto price channel closed")
			}
			price, _ := ev.Value.Float64()
			ts := time.Unix(ev.Timestamp/1000, (ev.Timestamp%1000)*1e6)
			if strings.Contains(strings.ToLower(ev.Symbol), "usdt") {
				a.spotFeed.OnPrimaryTick(ts, price)
			} else {
				a.spotFeed.OnOracleTick(ts, price)
			}
			_ = a.evlog.EmitThrottled("btc_price_tick", 5*time.Second, eventlog.KindBTCPriceTick, map[string]any{"symbol": ev.Symbol, "price": price})
		}
	}
}

// cycle is C10's run_once: discover markets, merge each one's snapshot,
// run the per-market forecast/strategy/execution pipeline, then refresh
// the cached ops-intelligence reports. Errors here are logged, not
// returned, so one bad cycle never kills the scheduler.
func (a *App) cycle(ctx context.Context) error {
	now := time.Now().UTC()

	refs, err := a.catalog.Discover(ctx, now)
	if err != nil {
		_ = a.evlog.Emit(eventlog.KindAdapterError, map[string]any{"source": "catalog", "error": err.Error()})
		return nil
	}
	if len(refs) == 0 {
		_ = a.evlog.Emit(eventlog.KindMarketScanEmpty, map[string]any{"ts": now})
		return nil
	}
	_ = a.evlog.Emit(eventlog.KindMarketScan, map[string]any{"count": len(refs)})

	a.mu.Lock()
	a.refs = make(map[string]market.Ref, len(refs))
	for _, ref := range refs {
		a.refs[ref.MarketID] = ref
	}
	a.mu.Unlock()

	snapCfg := snapshot.Config{FeeBps: a.cfg.Scoring.FeeBps, TargetSizeUSD: a.cfg.Scoring.TargetSizeUSD}
	snaps := make([]market.Snapshot, 0, len(refs))

	for _, ref := range refs {
		a.bookFeed.RegisterMarket(ref.MarketID, ref.YesToken, ref.NoToken)
		a.bookFeed.Subscribe([]string{ref.YesToken, ref.NoToken})

		yesRaw, err := a.clobClient.OrderBook(ctx, &clobtypes.BookRequest{TokenID: ref.YesToken})
		if err != nil {
			_ = a.evlog.EmitThrottled("book:"+ref.YesToken, time.Minute, eventlog.KindAdapterError, map[string]any{"source": "orderbook", "token": ref.YesToken, "error": err.Error()})
			continue
		}
		noRaw, err := a.clobClient.OrderBook(ctx, &clobtypes.BookRequest{TokenID: ref.NoToken})
		if err != nil {
			_ = a.evlog.EmitThrottled("book:"+ref.NoToken, time.Minute, eventlog.KindAdapterError, map[string]any{"source": "orderbook", "token": ref.NoToken, "error": err.Error()})
			continue
		}

		snap := snapshot.Merge(ref, clobtypes.OrderBook(yesRaw), clobtypes.OrderBook(noRaw), a.bookFeed, snapCfg)
		snaps = append(snaps, snap)

		if snap.AskSumNoFees <= a.cfg.Scoring.OpportunitySeenMax {
			_ = a.evlog.Emit(eventlog.KindOpportunitySeen, map[string]any{
				"market_id": snap.MarketID, "ask_sum_no_fees": snap.AskSumNoFees, "signal": snap.Signal,
			})
		}

		a.processMarket(ctx, now, ref, snap)
	}

	radar := ops.BuildMarketRadar(snaps, 10)
	inefficiency := ops.BuildInefficiencyReport(snaps, a.cfg.Scoring.FeeBps, a.cfg.Scoring.SlippageBps, a.cfg.Scoring.TargetSizeUSD, 10)
	flow := ops.BuildFlowWatch(snaps, 10)

	a.mu.Lock()
	a.radar, a.inefficiency, a.flow = radar, inefficiency, flow
	a.mu.Unlock()

	_ = a.evlog.Emit(eventlog.KindMarketRadar, radar)
	_ = a.evlog.Emit(eventlog.KindInefficiencyReport, inefficiency)
	_ = a.evlog.Emit(eventlog.KindFlowWatch, flow)

	paused := a.global.PauseActive(now)
	a.kpi.setGlobalPause(now, paused)
	a.kpi.recordRiskCompliance(now, !paused)

	yesMid := make(map[string]float64, len(snaps))
	noMid := make(map[string]float64, len(snaps))
	for _, snap := range snaps {
		if snap.YesBid > 0 && snap.YesAsk > 0 {
			yesMid[snap.MarketID] = (snap.YesBid + snap.YesAsk) / 2
		}
		if snap.NoBid > 0 && snap.NoAsk > 0 {
			noMid[snap.MarketID] = (snap.NoBid + snap.NoAsk) / 2
		}
	}
	realized := a.ledger.RealizedPnLUSD()
	unrealized := a.ledger.UnrealizedPnLUSD(yesMid, noMid)
	a.kpi.recordPnLSample(now, realized, realized+unrealized)

	if a.notifier != nil {
		a.sendScheduledTelegramReports(ctx, now)
	}

	return nil
}

// sendScheduledTelegramReports sends the daily coaching digest at most once
// per UTC day, and the weekly review digest on top of it on Mondays,
// grounded on the teacher's own scheduled Telegram coach/review templates
// (internal/telegramtmpl), re-pointed from maker/taker risk-mode fills onto
// this engine's ledger/global-pause/KPI state.
func (a *App) sendScheduledTelegramReports(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	a.mu.Lock()
	already := a.lastDailyReportDate == day
	a.lastDailyReportDate = day
	bestMarket := ""
	if len(a.radar) > 0 {
		bestMarket = a.radar[0].MarketName
	}
	a.mu.Unlock()
	if already {
		return
	}

	canTrade := !a.global.PauseActive(now)
	riskMode := "NORMAL"
	if !canTrade {
		riskMode = "DEFENSIVE"
	}
	fills := len(a.ledger.ClosedPositions(0))
	netPnL := a.ledger.RealizedPnLUSD()

	adviceIn := telegramtmpl.DailyAdviceInput{
		CanTrade:        canTrade,
		RiskMode:        riskMode,
		Fills:           fills,
		NetPnLAfterFees: netPnL,
		BestMarket:      bestMarket,
	}
	daily := telegramtmpl.BuildDailyData(a.tradingMode, canTrade, riskMode, netPnL, fills,
		telegramtmpl.BuildDailyActions(adviceIn), telegramtmpl.BuildRiskHints(adviceIn))
	_ = a.notifier.NotifyDailyCoachTemplate(ctx, telegramtmpl.RenderDailyHTML(daily))

	if now.Weekday() != time.Monday {
		return
	}
	netEdgeBps, _ := a.kpi.snapshot(now)["scalp_edge_capture_bps"].(float64)
	highlights, warnings := telegramtmpl.BuildWeeklyHighlightsWarnings(telegramtmpl.WeeklyAdviceInput{
		NetEdgeBps: netEdgeBps,
		TopMarket:  bestMarket,
		CanTrade:   canTrade,
	})
	weekly := telegramtmpl.BuildWeeklyData(a.tradingMode, "7d", 7, netPnL, netPnL, fills, netEdgeBps, 0, highlights, warnings)
	_ = a.notifier.NotifyWeeklyReviewTemplate(ctx, telegramtmpl.RenderWeeklyHTML(weekly))
}

// processMarket runs the forecast -> derive -> open/close pipeline for
// one market's merged snapshot.
func (a *App) processMarket(ctx context.Context, now time.Time, ref market.Ref, snap market.Snapshot) {
	if !snap.Valid() || snap.DeadBook() || !snap.AcceptingOrders {
		return
	}

	target, ok := a.resolveBTCTarget(ref, now)
	if !ok {
		_ = a.evlog.EmitThrottled("btc_target:"+ref.MarketID, 300*time.Second, eventlog.KindBTCTargetMissing, map[string]any{"market_id": ref.MarketID})
		return
	}

	spotNow, ok := a.spotFeed.Current()
	if !ok {
		return
	}
	p20, ok := a.spotFeed.PriceAgo(20 * time.Second)
	if !ok {
		p20 = spotNow
	}
	p120, ok := a.spotFeed.PriceAgo(120 * time.Second)
	if !ok {
		p120 = spotNow
	}
	primary, _ := a.spotFeed.PrimaryLatest()
	oracle, _ := a.spotFeed.OracleLatest()

	mem := a.memoryFor(ref.MarketID)
	tLeftS := ref.EndTime.Sub(now).Seconds()

	fc := forecast.Compute(forecast.Inputs{
		Now:           spotNow,
		P20s:          p20,
		P120s:         p120,
		RSI30s:        a.spotFeed.RSI(30 * time.Second),
		LogReturns60s: logReturns(a.spotFeed.ReturnsWindow(60 * time.Second)),
		Primary:       primary,
		Oracle:        oracle,
		YesBid:        snap.YesBid,
		YesAsk:        snap.YesAsk,
		NoBid:         snap.NoBid,
		NoAsk:         snap.NoAsk,
		Target:        target,
		TLeftS:        tLeftS,
		Stats:         a.global.Stats(),
	}, now.UnixNano())

	impulseSource := market.SourceName(a.cfg.Strategy.ImpulseSource)
	imp := strategy.Impulse{
		Bps3s: a.spotFeed.Impulse(impulseSource, 3*time.Second),
		Bps8s: a.spotFeed.Impulse(impulseSource, 8*time.Second),
	}
	derived := strategy.DeriveWinner(spotNow, target, fc, snap.YesAsk, snap.NoAsk, mem, imp)

	if snap.YesBid > 0 && snap.YesAsk > 0 {
		a.kpi.evaluateTrendRealization(now, ref.MarketID, (snap.YesBid+snap.YesAsk)/2)
	}

	if pos := a.ledger.OpenPositionForMarket(ref.MarketID); pos != nil {
		a.processHeldPosition(ctx, now, ref, snap, fc, derived, mem, pos, tLeftS)
		return
	}

	if a.ledger.OpenCount() >= a.cfg.Strategy.MaxOpenPositions {
		return
	}

	a.tryOpen(ctx, now, ref, snap, fc, derived, mem, tLeftS)
}

func (a *App) tryOpen(ctx context.Context, now time.Time, ref market.Ref, snap market.Snapshot, fc forecast.Output, derived strategy.Derived, mem *strategy.PerMarketMemory, tLeftS float64) {
	decision := a.cfg.Strategy.DecideOpen(now, fc, derived, tLeftS, mem, a.global)
	if !decision.Open {
		if decision.Reason != "" {
			a.kpi.recordGuardBlock(now, decision.Reason)
			if decision.Reason == "cool_ok=false" {
				a.kpi.recordCooldownTrigger(now)
			}
		}
		return
	}

	edgeAtEntry := derived.EdgeYes
	if decision.Side == forecast.BuyNo {
		edgeAtEntry = derived.EdgeNo
	}
	if strings.HasPrefix(decision.Model, "SCALP") {
		a.kpi.recordScalpSignal(now, edgeAtEntry*10000)
	} else {
		a.kpi.recordTrendSignal(now, ref.MarketID, string(decision.Side), (snap.YesBid+snap.YesAsk)/2, 5*time.Minute)
	}

	cashUSD := a.ledger.CashBalance()
	sizeUSD := a.cfg.Strategy.Size(cashUSD, decision.SizeMult)
	if sizeUSD <= 0 {
		return
	}

	bestBid, bestAsk, tokenID := snap.YesBid, snap.YesAsk, ref.YesToken
	if decision.Side == forecast.BuyNo {
		bestBid, bestAsk, tokenID = snap.NoBid, snap.NoAsk, ref.NoToken
	}

	openResult := a.cfg.Exec.ExecuteOpen(bestBid, bestAsk)
	if !openResult.Filled {
		return
	}

	if a.tradingMode == "live" {
		resp := a.placeOrder(ctx, tokenID, "BUY", a.cfg.Exec.OpenMode, openResult.Price, sizeUSD)
		if resp.ID == "" {
			return
		}
	}

	pos, err := a.ledger.OpenPosition(ref.MarketID, ref.Question, ledgerSide(decision.Side), decimal.NewFromFloat(openResult.Price), decimal.NewFromFloat(sizeUSD), decision.Model)
	if err != nil {
		_ = a.evlog.Emit(eventlog.KindAdapterError, map[string]any{"source": "ledger_open", "error": err.Error()})
		return
	}

	edgeEntry := derived.EdgeYes
	if decision.Side == forecast.BuyNo {
		edgeEntry = derived.EdgeNo
	}
	pos.EdgeEntry = edgeEntry
	pos.EdgePeak = edgeEntry

	kind := eventlog.KindPaperTrade
	if a.tradingMode == "live" {
		kind = eventlog.KindLiveTrade
	}
	_ = a.evlog.Emit(kind, map[string]any{
		"action": eventlog.ActionOpen, "market_id": ref.MarketID, "side": decision.Side,
		"model": decision.Model, "entry": openResult.Price, "size_usd": sizeUSD, "tag": openResult.Tag,
	})
	if a.notifier != nil {
		_ = a.notifier.NotifyOpen(ctx, ref.MarketID, string(decision.Side), decision.Model, openResult.Price, sizeUSD)
	}
}

func (a *App) processHeldPosition(ctx context.Context, now time.Time, ref market.Ref, snap market.Snapshot, fc forecast.Output, derived strategy.Derived, mem *strategy.PerMarketMemory, pos *ledger.Position, tLeftS float64) {
	side := forecastSide(pos.Side)
	bestBid, bestAsk, tokenID := snap.YesBid, snap.YesAsk, ref.YesToken
	if side == forecast.BuyNo {
		bestBid, bestAsk, tokenID = snap.NoBid, snap.NoAsk, ref.NoToken
	}
	mark := bestBid

	edgeHeld, edgeOpp := derived.EdgeYes, derived.EdgeNo
	if side == forecast.BuyNo {
		edgeHeld, edgeOpp = derived.EdgeNo, derived.EdgeYes
	}
	if edgeHeld > pos.EdgePeak {
		pos.EdgePeak = edgeHeld
	}

	entry, _ := pos.EntryPrice.Float64()
	reversalBelief := (derived.WinnerSide == forecast.BuyYes && fc.PYesEnsemble < 0.42) ||
		(derived.WinnerSide == forecast.BuyNo && fc.PYesEnsemble > 0.58)

	closeDec := a.cfg.Strategy.DecideClose(strategy.CloseInputs{
		Side: side, Entry: entry, Mark: mark, HeldSeconds: now.Sub(pos.OpenedAt).Seconds(),
		TLeftS: tLeftS, Confidence: fc.Confidence, CurrentPredictedSide: fc.PredictedSide,
		EdgeHeld: edgeHeld, EdgeOpp: edgeOpp, EdgePeak: pos.EdgePeak, TP35Taken: pos.TP35Taken,
		ModelTag: pos.ModelOpen, WinnerSide: derived.WinnerSide, ReversalBelief: reversalBelief,
	})
	if !closeDec.Close {
		return
	}

	closeResult := a.cfg.Exec.ExecuteClose(bestBid, bestAsk, closeDec.Fraction, closeDec.Reason, now, mem.PendingClose)
	mem.PendingClose = closeResult.Pending
	if !closeResult.Filled {
		_ = a.evlog.Emit(eventlog.KindMarketGuardrail, map[string]any{"market_id": ref.MarketID, "reason": "close_pending", "close_reason": closeDec.Reason})
		return
	}

	if a.tradingMode == "live" {
		notional, _ := pos.NotionalUSD.Float64()
		a.placeOrder(ctx, tokenID, "SELL", a.cfg.Exec.CloseMode, closeResult.Price, notional*closeDec.Fraction)
	}

	pnl, err := a.ledger.CloseFraction(pos, decimal.NewFromFloat(closeResult.Price), closeDec.Fraction, "CLOSE:"+closeDec.Reason, closeDec.Reason)
	if err != nil {
		_ = a.evlog.Emit(eventlog.KindAdapterError, map[string]any{"source": "ledger_close", "error": err.Error()})
		return
	}
	pnlF, _ := pnl.Float64()

	if closeDec.Reason == "tp_35_half" {
		pos.TP35Taken = true
	}

	if closeDec.Fraction >= 1 {
		a.cfg.Strategy.PostCloseUpdate(now, mem, a.global, side, closeDec.Reason, pnlF)
		a.global.UpdateModelStats(side, fc.ComponentProbs, pnlF > 0, pnlF)
		mem.PendingClose = nil
		if closeDec.Reason == "flip_stop" && a.global.PauseActive(now) && a.notifier != nil {
			_ = a.notifier.NotifyGlobalFlipStopPause(ctx, time.Until(a.global.OpenPausedUntil()))
		}
	}

	action := eventlog.ActionClose
	if closeDec.Fraction < 1 {
		action = eventlog.ActionPartialClose
	}
	kind := eventlog.KindPaperTrade
	if a.tradingMode == "live" {
		kind = eventlog.KindLiveTrade
	}
	_ = a.evlog.Emit(kind, map[string]any{
		"action": action, "market_id": ref.MarketID, "side": side, "reason": closeDec.Reason,
		"exit": closeResult.Price, "pnl_usd": pnlF, "tag": closeResult.Tag,
	})
	if a.notifier != nil {
		_ = a.notifier.NotifyClose(ctx, ref.MarketID, string(side), closeDec.Reason, pnlF)
	}
}

// resolveBTCTarget derives the BTC target price for a market, caching it
// in PerMarketMemory. Grounded on original_source's fallback chain for
// _polymarket_btc_prices: (a) the cached value, (b) inferring from a
// spot tick near the event's start time, (c) locking in the current
// live price. The original's primary path — an external
// polymarket.com/api/crypto/crypto-price HTTP lookup — has no Go SDK
// equivalent anywhere in the teacher's client surface, so this always
// takes the original's own fallback path rather than inventing an
// unvalidated HTTP client.
func (a *App) resolveBTCTarget(ref market.Ref, now time.Time) (float64, bool) {
	mem := a.memoryFor(ref.MarketID)
	if mem.BTCTargetCache > 0 {
		return mem.BTCTargetCache, true
	}

	if !ref.EventStartTime.IsZero() && now.After(ref.EventStartTime) {
		if delta := now.Sub(ref.EventStartTime); delta <= eventNearTargetS {
			if px, ok := a.spotFeed.PriceAgo(delta); ok {
				mem.BTCTargetCache = px
				return px, true
			}
		}
	}

	if px, ok := a.spotFeed.Current(); ok {
		mem.BTCTargetCache = px
		return px, true
	}
	return 0, false
}

func (a *App) memoryFor(marketID string) *strategy.PerMarketMemory {
	a.mu.Lock()
	defer a.mu.Unlock()
	mem, ok := a.perMarket[marketID]
	if !ok {
		mem = &strategy.PerMarketMemory{}
		a.perMarket[marketID] = mem
	}
	return mem
}

// placeOrder mirrors the teacher's placeLimit/placeMarket call shape
// (clob.NewOrderBuilder -> Build*WithContext -> CreateOrderFromSignable),
// parameterized by execution.Mode instead of a fixed maker/taker split.
func (a *App) placeOrder(ctx context.Context, tokenID, side string, mode execution.Mode, price, sizeUSDC float64) clobtypes.OrderResponse {
	builder := clob.NewOrderBuilder(a.clobClient, a.signer).TokenID(tokenID).Side(side).AmountUSDC(sizeUSDC)
	a.kpi.recordOrderSubmitted(time.Now().UTC())

	if mode == execution.ModeMarket {
		signable, err := builder.OrderType(clobtypes.OrderTypeFAK).BuildMarketWithContext(ctx)
		if err != nil {
			a.logger.Error("build market order", "side", side, "token", tokenID, "error", err)
			return clobtypes.OrderResponse{}
		}
		resp, err := a.clobClient.CreateOrderFromSignable(ctx, signable)
		if err != nil {
			a.logger.Error("place market order", "side", side, "token", tokenID, "error", err)
			return clobtypes.OrderResponse{}
		}
		a.kpi.recordFill(time.Now().UTC())
		return resp
	}

	signable, err := builder.Price(price).OrderType(clobtypes.OrderTypeGTC).BuildSignableWithContext(ctx)
	if err != nil {
		a.logger.Error("build limit order", "side", side, "token", tokenID, "error", err)
		return clobtypes.OrderResponse{}
	}
	resp, err := a.clobClient.CreateOrderFromSignable(ctx, signable)
	if err != nil {
		a.logger.Error("place limit order", "side", side, "token", tokenID, "error", err)
		return clobtypes.OrderResponse{}
	}
	a.kpi.recordFill(time.Now().UTC())
	return resp
}

func ledgerSide(s forecast.Side) ledger.Side {
	if s == forecast.BuyYes {
		return ledger.BuyYes
	}
	return ledger.BuyNo
}

func forecastSide(s ledger.Side) forecast.Side {
	if s == ledger.BuyYes {
		return forecast.BuyYes
	}
	return forecast.BuyNo
}

func logReturns(samples []float64) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		if samples[i-1] <= 0 || samples[i] <= 0 {
			continue
		}
		out = append(out, math.Log(samples[i]/samples[i-1]))
	}
	return out
}

// --- AppState (internal/api.AppState) ---

func (a *App) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *App) TradingMode() string { return a.tradingMode }

func (a *App) MonitoredMarkets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.refs))
	for id := range a.refs {
		out = append(out, id)
	}
	return out
}

func (a *App) OpenPositions() []*ledger.Position             { return a.ledger.OpenPositions() }
func (a *App) ClosedPositions(limit int) []*ledger.Position  { return a.ledger.ClosedPositions(limit) }
func (a *App) CashUSD() float64                              { return a.ledger.CashBalance() }
func (a *App) RealizedPnLUSD() float64                       { return a.ledger.RealizedPnLUSD() }
func (a *App) GlobalPauseActive() bool                       { return a.global.PauseActive(time.Now()) }

func (a *App) Radar() []ops.RadarRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.radar
}

func (a *App) Inefficiency() []ops.InefficiencyRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inefficiency
}

func (a *App) FlowWatch() []ops.FlowRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flow
}

// KPISnapshot returns the daily/30-day operator KPI figures for the
// dashboard's /api/kpi endpoint.
func (a *App) KPISnapshot() map[string]interface{} {
	return a.kpi.snapshot(time.Now().UTC())
}
