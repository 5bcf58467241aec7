package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers triggered alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert ActiveAlert) error
}

// TelegramNotifier pushes alert messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram alert channel.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify renders the alert as text and calls the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, alert ActiveAlert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderNotification(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().
		Str("rule", alert.CriteriaID).
		Str("severity", string(alert.Severity)).
		Msg("alert dispatched to telegram")
	return nil
}

func renderNotification(alert ActiveAlert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Space Weather %s] %s\n", strings.ToUpper(string(alert.Severity)), alert.Category))
	builder.WriteString(alert.Message + "\n")
	builder.WriteString(fmt.Sprintf("Triggered: %s\n", alert.TriggeredAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Next possible alert: %s\n", alert.ExpiresAt.UTC().Format(time.RFC3339)))
	for _, rec := range alert.Recommendations {
		builder.WriteString("- " + rec + "\n")
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
