package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	// telegramMaxText is the sendMessage text limit.
	telegramMaxText = 4096
)

// TelegramSender delivers notifications via the Telegram Bot API. Messages
// are sent as MarkdownV2, so callers pass already-escaped bodies.
type TelegramSender struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// TelegramOption configures a TelegramSender.
type TelegramOption func(*TelegramSender)

// WithTelegramAPI points the sender at a different Bot API host.
func WithTelegramAPI(base string) TelegramOption {
	return func(t *TelegramSender) { t.apiBase = strings.TrimRight(base, "/") }
}

// WithTelegramHTTPClient replaces the default HTTP client.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(t *TelegramSender) { t.client = c }
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, chatID string, opts ...TelegramOption) *TelegramSender {
	t := &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: defaultTelegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Send posts a message to the configured Telegram chat using the sendMessage
// API. A non-empty title is escaped and rendered in bold above the message.
// Bodies over the Telegram limit go out as several messages.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := message
	if title != "" {
		text = fmt.Sprintf("*%s*\n%s", EscapeMarkdown(title), message)
	}
	for _, chunk := range SplitMessage(text, telegramMaxText) {
		if err := t.sendMessage(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramSender) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)

	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "MarkdownV2",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL carries the bot token; keep it out of the error.
		return fmt.Errorf("telegram: send request: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
