// Package notify delivers operator alerts over the Telegram Bot API.
// Delivery is best-effort: failures are logged and swallowed, never
// propagated into the trading path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

type Telegram struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	log     *zap.Logger
}

// NewTelegram returns a sender for the given bot token and chat ID, or nil
// when either is empty. A nil *Telegram is safe to call.
func NewTelegram(token, chatID string, log *zap.Logger) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	return &Telegram{
		token:   token,
		chatID:  chatID,
		apiBase: defaultAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Notify posts an HTML-formatted message to the configured chat. Errors are
// logged locally and never returned.
func (t *Telegram) Notify(ctx context.Context, text string) {
	if t == nil {
		return
	}
	if err := t.send(ctx, text); err != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (t *Telegram) send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)

	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
