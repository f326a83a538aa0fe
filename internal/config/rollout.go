package config

import (
	"fmt"
	"strings"
)

// ApplyRolloutPhase applies a staged rollout preset to the config.
// Supported phases:
// - paper:       paper mode, real paper fills (dry_run=false)
// - shadow:      live mode, dry-run only (no order placement)
// - live-small:  live mode with conservative small-size caps
// - live:        live mode using configured values
func ApplyRolloutPhase(cfg *Config, phase string) error {
	p := strings.ToLower(strings.TrimSpace(phase))
	if p == "" {
		return nil
	}

	switch p {
	case "paper":
		cfg.TradingMode = "paper"
		cfg.App.Mode = "paper"
		cfg.DryRun = false
		cfg.Live.Enabled = false
	case "shadow", "live-dryrun", "live-dry-run":
		cfg.TradingMode = "live"
		cfg.App.Mode = "live"
		cfg.DryRun = true
		cfg.Live.Enabled = false
	case "live-small", "small":
		cfg.TradingMode = "live"
		cfg.App.Mode = "live"
		cfg.DryRun = false
		cfg.Live.Enabled = true

		clampMaxInt(&cfg.Strategy.MaxOpenPositions, 1)
		clampMaxFloat(&cfg.Strategy.TradeCapUSD, 10)
		clampMaxFloat(&cfg.Strategy.MaxTradeCashFraction, 0.02)
		clampMaxFloat(&cfg.Live.MaxSlippageBps, 15)
	case "live":
		cfg.TradingMode = "live"
		cfg.App.Mode = "live"
		cfg.DryRun = false
		cfg.Live.Enabled = true
	default:
		return fmt.Errorf("unknown rollout phase %q (supported: paper|shadow|live-small|live)", phase)
	}

	return nil
}

func clampMaxFloat(v *float64, max float64) {
	if max <= 0 {
		return
	}
	if *v <= 0 || *v > max {
		*v = max
	}
}

func clampMaxInt(v *int, max int) {
	if max <= 0 {
		return
	}
	if *v <= 0 || *v > max {
		*v = max
	}
}
