package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints against
// spec.md §6's app/data/scoring/strategy/execution/live schema.
func (c Config) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.TradingMode))
	if mode != "" && mode != "paper" && mode != "live" {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}
	appMode := strings.ToLower(strings.TrimSpace(c.App.Mode))
	if appMode != "" && appMode != "paper" && appMode != "live" {
		return fmt.Errorf("app.mode must be 'paper' or 'live', got %q", c.App.Mode)
	}
	if c.BuilderSyncInterval <= 0 {
		return fmt.Errorf("builder_sync_interval must be > 0, got %s", c.BuilderSyncInterval)
	}

	if c.App.LoopSeconds <= 0 {
		return fmt.Errorf("app.loop_seconds must be > 0, got %f", c.App.LoopSeconds)
	}
	if c.App.MinCycleSeconds < 0 {
		return fmt.Errorf("app.min_cycle_seconds must be >= 0, got %f", c.App.MinCycleSeconds)
	}
	if c.App.StartingCashUSD <= 0 {
		return fmt.Errorf("app.starting_cash_usd must be > 0, got %f", c.App.StartingCashUSD)
	}

	if c.Data.SpotPollIntervalS <= 0 {
		return fmt.Errorf("data.spot_poll_interval_s must be > 0, got %f", c.Data.SpotPollIntervalS)
	}
	if c.Data.SecondaryPollHz <= 0 {
		return fmt.Errorf("data.secondary_poll_hz must be > 0, got %f", c.Data.SecondaryPollHz)
	}
	if c.Data.BookFeedThrottleMS < 0 {
		return fmt.Errorf("data.book_feed_throttle_ms must be >= 0, got %d", c.Data.BookFeedThrottleMS)
	}

	if c.Scoring.FeeBps < 0 {
		return fmt.Errorf("scoring.fee_bps must be >= 0, got %f", c.Scoring.FeeBps)
	}
	if c.Scoring.SlippageBps < 0 {
		return fmt.Errorf("scoring.slippage_bps must be >= 0, got %f", c.Scoring.SlippageBps)
	}
	if c.Scoring.TargetSizeUSD <= 0 {
		return fmt.Errorf("scoring.target_size_usd must be > 0, got %f", c.Scoring.TargetSizeUSD)
	}
	if c.Scoring.MinEdgeBps < 0 {
		return fmt.Errorf("scoring.min_edge_bps must be >= 0, got %f", c.Scoring.MinEdgeBps)
	}

	if c.Strategy.MaxOpenPositions <= 0 {
		return fmt.Errorf("strategy.max_open_positions must be > 0, got %d", c.Strategy.MaxOpenPositions)
	}
	if c.Strategy.TradeCapUSD <= 0 {
		return fmt.Errorf("strategy.trade_cap_usd must be > 0, got %f", c.Strategy.TradeCapUSD)
	}
	if c.Strategy.MaxTradeCashFraction <= 0 || c.Strategy.MaxTradeCashFraction > 1 {
		return fmt.Errorf("strategy.max_trade_cash_fraction must be within (0,1], got %f", c.Strategy.MaxTradeCashFraction)
	}

	if c.Exec.TickSize <= 0 {
		return fmt.Errorf("execution.tick_size must be > 0, got %f", c.Exec.TickSize)
	}
	if c.Exec.MaxExecSum <= 0 {
		return fmt.Errorf("execution.max_exec_sum must be > 0, got %f", c.Exec.MaxExecSum)
	}

	if c.Live.Enabled {
		if c.Live.MaxSlippageBps < 0 {
			return fmt.Errorf("live.max_slippage_bps must be >= 0, got %f", c.Live.MaxSlippageBps)
		}
		if c.Live.ConfirmTimeoutS <= 0 {
			return fmt.Errorf("live.confirm_timeout_s must be > 0, got %f", c.Live.ConfirmTimeoutS)
		}
	}

	return nil
}
