package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

type Telegram struct {
	Token   string
	ChatID  string
	APIBase string
	HTTP    *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		APIBase: defaultAPIBase,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

// StatusError is a non-2xx answer from the Bot API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telegram status %d: %s", e.Code, e.Body)
}

// Retryable reports whether resending the same request may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func (t *Telegram) Send(ctx context.Context, msg string) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram not configured")
	}
	payload := map[string]any{"chat_id": t.ChatID, "text": msg, "disable_web_page_preview": true}
	b, _ := json.Marshal(payload)
	u := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return &StatusError{Code: res.StatusCode, Body: string(resp)}
	}
	return nil
}
