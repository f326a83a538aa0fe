// Package eventlog implements C9: an append-only, single-writer JSONL
// event stream, the sole audit surface per spec.md §4.9.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Kind enumerates the event kinds spec.md §4.9 requires, plus the
// supplemented ops-intel kinds (see SPEC_FULL.md).
type Kind string

const (
	KindMarketScan         Kind = "market_scan"
	KindMarketGroups       Kind = "market_groups"
	KindOpportunitySeen    Kind = "opportunity_seen"
	KindWSOpportunitySeen  Kind = "ws_opportunity_seen"
	KindWSMarketTick       Kind = "ws_market_tick"
	KindWSUsage            Kind = "ws_usage"
	KindAPIUsage           Kind = "api_usage"
	KindMarketRadar        Kind = "market_radar"
	KindInefficiencyReport Kind = "inefficiency_report"
	KindFlowWatch          Kind = "flow_watch"
	KindStrategySnapshot   Kind = "strategy_snapshot"
	KindPaperTrade         Kind = "paper_trade"
	KindLiveTrade          Kind = "live_trade"
	KindModelStats         Kind = "model_stats"
	KindMarketGuardrail    Kind = "market_guardrail"
	KindBTCTargetMissing   Kind = "btc_target_missing"
	KindAdapterError       Kind = "adapter_error"
	KindLoopError          Kind = "loop_error"
	KindFocusFallback      Kind = "focus_fallback"
	KindBTCPriceTick       Kind = "btc_price_tick"
	KindMarketScanEmpty    Kind = "market_scan_empty"
)

// TradeAction enumerates paper_trade/live_trade action discriminators.
type TradeAction string

const (
	ActionOpen         TradeAction = "OPEN"
	ActionClose        TradeAction = "CLOSE"
	ActionPartialClose TradeAction = "PARTIAL_CLOSE"
	ActionClosePending TradeAction = "CLOSE_PENDING"
)

// Event is the tagged-union envelope every record is serialized as: a
// `ts` field plus a `type` discriminator, per spec.md §9's redesign note.
type Event struct {
	Ts   time.Time   `json:"ts"`
	Type Kind        `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Log is a single-writer, thread-safe JSONL appender.
type Log struct {
	mu  sync.Mutex
	w   *bufio.Writer
	f   *os.File
	throttled map[string]time.Time
}

// Open opens (creating if necessary) the JSONL file at path for append.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	return &Log{w: bufio.NewWriter(f), f: f, throttled: make(map[string]time.Time)}, nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// Emit appends one event as a JSON line, ISO-8601 UTC ts-prefixed.
func (l *Log) Emit(kind Kind, data interface{}) error {
	ev := Event{Ts: time.Now().UTC(), Type: kind, Data: data}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshal %s: %w", kind, err)
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

// EmitThrottled emits at most once per `every` for the given key, used
// for e.g. btc_target_missing (throttled to once/300s per market).
func (l *Log) EmitThrottled(key string, every time.Duration, kind Kind, data interface{}) error {
	l.mu.Lock()
	last, ok := l.throttled[key]
	now := time.Now()
	if ok && now.Sub(last) < every {
		l.mu.Unlock()
		return nil
	}
	l.throttled[key] = now
	l.mu.Unlock()
	return l.Emit(kind, data)
}
