package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Notifier sends alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyOpen sends a position-open alert.
func (n *Notifier) NotifyOpen(ctx context.Context, marketID, side, model string, entry, sizeUSD float64) error {
	msg := fmt.Sprintf("<b>Open</b>\nMarket: <code>%s</code>\nSide: %s\nModel: %s\nEntry: %.4f\nSize: %.2f USD",
		marketID, side, model, entry, sizeUSD)
	return n.Send(ctx, msg)
}

// NotifyClose sends a position-close alert with the triggering close rule.
func (n *Notifier) NotifyClose(ctx context.Context, marketID, side, reason string, pnl float64) error {
	msg := fmt.Sprintf("<b>Close</b>\nMarket: <code>%s</code>\nSide: %s\nReason: %s\nPnL: %.2f USD",
		marketID, side, reason, pnl)
	return n.Send(ctx, msg)
}

// NotifyGlobalFlipStopPause sends an alert when the global flip-stop
// pause trips and all opens are suspended.
func (n *Notifier) NotifyGlobalFlipStopPause(ctx context.Context, until time.Duration) error {
	msg := fmt.Sprintf("<b>Global Flip-Stop Pause</b>\nOpens suspended for %.0fs", until.Seconds())
	return n.Send(ctx, msg)
}

// NotifyDailySummary sends a daily performance summary.
func (n *Notifier) NotifyDailySummary(ctx context.Context, realizedPnL float64, closedTrades int, cashUSD float64) error {
	msg := fmt.Sprintf("<b>Daily Summary</b>\nRealized PnL: %.2f USD\nClosed Trades: %d\nCash: %.2f USD",
		realizedPnL, closedTrades, cashUSD)
	return n.Send(ctx, msg)
}

// NotifyDailyCoachTemplate sends a pre-rendered daily coaching template.
func (n *Notifier) NotifyDailyCoachTemplate(ctx context.Context, textHTML string) error {
	return n.Send(ctx, textHTML)
}

// NotifyWeeklyReviewTemplate sends a pre-rendered weekly review template.
func (n *Notifier) NotifyWeeklyReviewTemplate(ctx context.Context, textHTML string) error {
	return n.Send(ctx, textHTML)
}
