package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// WebhookChannel posts the JSON payload to a generic HTTP endpoint
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
	builder *Builder
	logger  *zap.Logger
}

// NewWebhookChannel creates a webhook channel; an empty or placeholder URL
// disables it
func NewWebhookChannel(endpoint string, client *http.Client, builder *Builder, logger *zap.Logger) *WebhookChannel {
	if client == nil {
		client = http.DefaultClient
	}
	enabled := validHTTPURL(endpoint)
	if !enabled && strings.TrimSpace(endpoint) != "" {
		logger.Warn("Webhook channel disabled, endpoint looks like a placeholder", zap.String("url", endpoint))
	}
	return &WebhookChannel{
		url:     endpoint,
		enabled: enabled,
		client:  client,
		builder: builder,
		logger:  logger,
	}
}

// Name returns the channel name
func (w *WebhookChannel) Name() string { return "webhook" }

// Enabled reports whether a usable endpoint is configured
func (w *WebhookChannel) Enabled() bool { return w.enabled }

// Send posts the payload for msg
func (w *WebhookChannel) Send(ctx context.Context, msg *core.Message) error {
	if !w.enabled {
		return nil
	}
	return postJSON(ctx, w.client, w.url, w.builder.Build(msg))
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
