package config

import "testing"

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidateInvalidTradingMode(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "invalid-mode"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid trading_mode to fail validation")
	}
}

func TestValidateInvalidAppMode(t *testing.T) {
	cfg := Default()
	cfg.App.Mode = "invalid-mode"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid app.mode to fail validation")
	}
}

func TestValidateNonPositiveLoopSeconds(t *testing.T) {
	cfg := Default()
	cfg.App.LoopSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-positive app.loop_seconds to fail validation")
	}
}

func TestValidateNonPositiveStartingCash(t *testing.T) {
	cfg := Default()
	cfg.App.StartingCashUSD = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-positive app.starting_cash_usd to fail validation")
	}
}

func TestValidateInvalidScoringConfig(t *testing.T) {
	cfg := Default()
	cfg.Scoring.TargetSizeUSD = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-positive scoring.target_size_usd to fail validation")
	}

	cfg = Default()
	cfg.Scoring.FeeBps = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative scoring.fee_bps to fail validation")
	}
}

func TestValidateInvalidStrategyConfig(t *testing.T) {
	cfg := Default()
	cfg.Strategy.MaxOpenPositions = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-positive strategy.max_open_positions to fail validation")
	}

	cfg = Default()
	cfg.Strategy.MaxTradeCashFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected strategy.max_trade_cash_fraction > 1 to fail validation")
	}
}

func TestValidateInvalidExecConfig(t *testing.T) {
	cfg := Default()
	cfg.Exec.TickSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-positive execution.tick_size to fail validation")
	}
}

func TestValidateLiveConfigOnlyWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Live.Enabled = false
	cfg.Live.ConfirmTimeoutS = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled live config to skip its own checks, got: %v", err)
	}

	cfg.Live.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-positive live.confirm_timeout_s to fail validation once live is enabled")
	}
}
