// Package notify forwards high-severity log records to a Discord webhook,
// so moderation failures surface in the team's channel without anyone
// tailing process logs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type discordWebhookBody struct {
	Content string `json:"content"`
}

// DiscordHandler is an slog.Handler that delegates to an inner handler
// and additionally posts records at or above MinLevel to a Discord
// "incoming webhook" channel.
type DiscordHandler struct {
	inner      slog.Handler
	webhookURL string
	minLevel   slog.Level
	client     *http.Client
	attrs      []slog.Attr
}

func NewDiscordHandler(inner slog.Handler, webhookURL string, minLevel slog.Level) *DiscordHandler {
	return &DiscordHandler{
		inner:      inner,
		webhookURL: webhookURL,
		minLevel:   minLevel,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *DiscordHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel || h.inner.Enabled(ctx, level)
}

func (h *DiscordHandler) Handle(ctx context.Context, record slog.Record) error {
	var innerErr error
	if h.inner.Enabled(ctx, record.Level) {
		innerErr = h.inner.Handle(ctx, record)
	}
	if record.Level < h.minLevel {
		return innerErr
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** %s", record.Level, record.Message)
	for _, attr := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
		return true
	})

	body, err := json.Marshal(discordWebhookBody{Content: b.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		// alerting must never take the bot down with it
		return innerErr
	}
	defer resp.Body.Close()
	return innerErr
}

func (h *DiscordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *DiscordHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	return &clone
}
