package config

import "testing"

func TestApplyRolloutPhasePaper(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "live"
	cfg.DryRun = true

	if err := ApplyRolloutPhase(&cfg, "paper"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "paper" {
		t.Fatalf("expected paper mode, got %q", cfg.TradingMode)
	}
	if cfg.App.Mode != "paper" {
		t.Fatalf("expected app.mode=paper, got %q", cfg.App.Mode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for paper phase")
	}
	if cfg.Live.Enabled {
		t.Fatal("expected live.enabled=false for paper phase")
	}
}

func TestApplyRolloutPhaseShadow(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "paper"
	cfg.DryRun = false

	if err := ApplyRolloutPhase(&cfg, "shadow"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if !cfg.DryRun {
		t.Fatal("expected dry_run=true for shadow phase")
	}
	if cfg.Live.Enabled {
		t.Fatal("expected live.enabled=false for a dry-run shadow phase")
	}
}

func TestApplyRolloutPhaseLiveSmallClamps(t *testing.T) {
	cfg := Default()
	cfg.Strategy.MaxOpenPositions = 50
	cfg.Strategy.TradeCapUSD = 500
	cfg.Strategy.MaxTradeCashFraction = 0.5
	cfg.Live.MaxSlippageBps = 100

	if err := ApplyRolloutPhase(&cfg, "live-small"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for live-small phase")
	}
	if !cfg.Live.Enabled {
		t.Fatal("expected live.enabled=true for live-small phase")
	}
	if cfg.Strategy.MaxOpenPositions != 1 {
		t.Fatalf("expected max_open_positions=1, got %d", cfg.Strategy.MaxOpenPositions)
	}
	if cfg.Strategy.TradeCapUSD != 10 {
		t.Fatalf("expected trade_cap_usd=10, got %f", cfg.Strategy.TradeCapUSD)
	}
	if cfg.Strategy.MaxTradeCashFraction != 0.02 {
		t.Fatalf("expected max_trade_cash_fraction=0.02, got %f", cfg.Strategy.MaxTradeCashFraction)
	}
	if cfg.Live.MaxSlippageBps != 15 {
		t.Fatalf("expected max_slippage_bps=15, got %f", cfg.Live.MaxSlippageBps)
	}
}

func TestApplyRolloutPhaseLive(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "paper"
	cfg.DryRun = true

	if err := ApplyRolloutPhase(&cfg, "live"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for live phase")
	}
	if !cfg.Live.Enabled {
		t.Fatal("expected live.enabled=true for live phase")
	}
}

func TestApplyRolloutPhaseUnknown(t *testing.T) {
	cfg := Default()
	if err := ApplyRolloutPhase(&cfg, "unknown-phase"); err == nil {
		t.Fatal("expected error for unknown rollout phase")
	}
}
