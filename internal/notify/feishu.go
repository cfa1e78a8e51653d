package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/logging"
)

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of the webhook reply is read.
const maxResponseBytes = 64 * 1024

type textContent struct {
	Text string `json:"text"`
}

type textMessage struct {
	MsgType string      `json:"msg_type"`
	Content textContent `json:"content"`
}

// reply is the body Feishu answers with. A non-zero code is a rejection
// even when the HTTP status is 200.
type reply struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Feishu posts plain-text messages to a custom bot webhook.
type Feishu struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewFeishu returns a notifier for url. An empty url disables it: Notify
// logs and returns nil.
func NewFeishu(url string, log *slog.Logger) *Feishu {
	f := &Feishu{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
		log:    logging.Component(log, "feishu"),
	}
	if url == "" {
		f.log.Info("webhook URL not set, notifications disabled")
	}
	return f
}

// Enabled reports whether a webhook URL is configured.
func (f *Feishu) Enabled() bool { return f.url != "" }

// Notify sends message once. Failures are domain.KindNotify errors; there
// is no retry.
func (f *Feishu) Notify(ctx context.Context, message string) error {
	if !f.Enabled() {
		f.log.Debug("notification skipped", "message", message)
		return nil
	}

	body, err := json.Marshal(textMessage{MsgType: "text", Content: textContent{Text: message}})
	if err != nil {
		return domain.Wrap(domain.KindNotify, "notify", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return domain.Wrap(domain.KindNotify, "notify", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindNotify, "notify", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if readErr != nil {
			return domain.Wrap(domain.KindNotify, "notify",
				fmt.Errorf("webhook returned %d: read body: %w", resp.StatusCode, readErr))
		}
		return domain.Errorf(domain.KindNotify, "notify", "webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	// Without the full body a rejection code cannot be ruled out.
	if readErr != nil {
		return domain.Wrap(domain.KindNotify, "notify", fmt.Errorf("read webhook reply: %w", readErr))
	}

	var r reply
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &r); err == nil && r.Code != 0 {
			return domain.Errorf(domain.KindNotify, "notify", "webhook rejected message: code %d: %s", r.Code, r.Msg)
		}
	}

	f.log.Info("notification sent")
	return nil
}

// String hides the webhook token in logs.
func (f *Feishu) String() string {
	if !f.Enabled() {
		return "feishu(disabled)"
	}
	return "feishu(configured)"
}
