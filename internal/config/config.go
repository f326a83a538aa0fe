package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GoPolymarket/polymarket-trader/internal/catalog"
	"github.com/GoPolymarket/polymarket-trader/internal/execution"
	"github.com/GoPolymarket/polymarket-trader/internal/strategy"
)

type Config struct {
	PrivateKey        string `yaml:"private_key"`
	APIKey            string `yaml:"api_key"`
	APISecret         string `yaml:"api_secret"`
	APIPassphrase     string `yaml:"api_passphrase"`
	BuilderKey        string `yaml:"builder_key"`
	BuilderSecret     string `yaml:"builder_secret"`
	BuilderPassphrase string `yaml:"builder_passphrase"`

	ScanInterval        time.Duration `yaml:"scan_interval"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	BuilderSyncInterval time.Duration `yaml:"builder_sync_interval"`
	DryRun              bool          `yaml:"dry_run"`
	TradingMode       string        `yaml:"trading_mode"`
	LogLevel          string        `yaml:"log_level"`

	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`

	App      AppConfig         `yaml:"app"`
	Data     DataConfig        `yaml:"data"`
	Scoring  ScoringConfig     `yaml:"scoring"`
	Catalog  catalog.Config    `yaml:"catalog"`
	Strategy strategy.Config   `yaml:"strategy"`
	Exec     execution.Config  `yaml:"execution"`
	Storage  StorageConfig     `yaml:"storage"`
	Live     LiveConfig        `yaml:"live"`
}

// AppConfig mirrors spec.md §6's app.* scheduling and mode keys.
type AppConfig struct {
	Mode            string  `yaml:"mode"` // "paper" | "live"
	LoopSeconds     float64 `yaml:"loop_seconds"`
	EventDriven     bool    `yaml:"event_driven"`
	MinCycleSeconds float64 `yaml:"min_cycle_seconds"`
	StartingCashUSD float64 `yaml:"starting_cash_usd"`
}

// DataConfig mirrors spec.md §6's data.* feed keys.
type DataConfig struct {
	UseClobWS          bool    `yaml:"use_clob_ws"`
	SpotPollIntervalS   float64 `yaml:"spot_poll_interval_s"`
	SecondaryPollHz    float64 `yaml:"secondary_poll_hz"`
	BookFeedThrottleMS int     `yaml:"book_feed_throttle_ms"`
}

// ScoringConfig mirrors spec.md §6's scoring.* keys.
type ScoringConfig struct {
	FeeBps              float64 `yaml:"fee_bps"`
	SlippageBps         float64 `yaml:"slippage_bps"`
	TargetSizeUSD       float64 `yaml:"target_size_usd"`
	MinEdgeBps          float64 `yaml:"min_edge_bps"`
	OpportunitySeenMax  float64 `yaml:"opportunity_seen_ask_sum_max"`
}

// StorageConfig mirrors spec.md §6's storage.* keys.
type StorageConfig struct {
	StatePath  string `yaml:"state_path"`
	EventsPath string `yaml:"events_path"`
}

// LiveConfig mirrors spec.md §6's live.* execution keys.
type LiveConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MaxSlippageBps float64 `yaml:"max_slippage_bps"`
	ConfirmTimeoutS float64 `yaml:"confirm_timeout_s"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		ScanInterval:        10 * time.Second,
		HeartbeatInterval:   30 * time.Second,
		BuilderSyncInterval: 10 * time.Minute,
		DryRun:              true,
		TradingMode:       "paper",
		LogLevel:          "info",
		API: APIConfig{
			Addr: ":8080",
		},
		App: AppConfig{
			Mode:            "paper",
			LoopSeconds:     15,
			EventDriven:     true,
			MinCycleSeconds: 0.2,
			StartingCashUSD: 1000,
		},
		Data: DataConfig{
			UseClobWS:          true,
			SpotPollIntervalS:  1,
			SecondaryPollHz:    1,
			BookFeedThrottleMS: 250,
		},
		Scoring: ScoringConfig{
			FeeBps:             10,
			SlippageBps:        10,
			TargetSizeUSD:      20,
			MinEdgeBps:         0,
			OpportunitySeenMax: 1.0,
		},
		Catalog: catalog.Config{
			RollingPrefixes: []string{"btc-updown-15m-", "btc-updown-5m-"},
			BucketSeconds:   900,
			Windows:         8,
			LookbackWindows: 8,
			FallbackLimit:   200,
			AltRefreshS:     300,
		},
		Strategy: strategy.DefaultConfig(),
		Exec: execution.Config{
			OpenMode:               execution.ModeMarket,
			CloseMode:              execution.ModeMarket,
			TickSize:               0.01,
			OpenLimitImproveTicks:  1,
			CloseLimitImproveTicks: 1,
			CloseLimitTimeoutS:     20,
			CloseLimitRepriceS:     3,
			OpenLimitFallbackTaker: true,
			CloseForceTakerReasons: []string{"hard_stop_25", "resolved_win_proxy", "resolved_loss_proxy", "flip_stop"},
			MaxExecSum:             1.02,
		},
		Storage: StorageConfig{
			StatePath:  "state/ledger.json",
			EventsPath: "state/events.jsonl",
		},
		Live: LiveConfig{
			Enabled:         false,
			MaxSlippageBps:  30,
			ConfirmTimeoutS: 10,
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("POLYMARKET_PK"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("POLYMARKET_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("POLYMARKET_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("POLYMARKET_API_PASSPHRASE"); v != "" {
		c.APIPassphrase = v
	}
	if v := os.Getenv("BUILDER_KEY"); v != "" {
		c.BuilderKey = v
	}
	if v := os.Getenv("BUILDER_SECRET"); v != "" {
		c.BuilderSecret = v
	}
	if v := os.Getenv("BUILDER_PASSPHRASE"); v != "" {
		c.BuilderPassphrase = v
	}
	if v := os.Getenv("TRADER_DRY_RUN"); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("TRADER_TRADING_MODE")); v != "" {
		c.TradingMode = strings.ToLower(v)
	}
}
