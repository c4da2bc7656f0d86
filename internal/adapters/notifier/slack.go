package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// SlackChannel posts a formatted message to a Slack incoming webhook
type SlackChannel struct {
	url     string
	enabled bool
	client  *http.Client
	builder *Builder
	logger  *zap.Logger
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewSlackChannel creates a Slack channel; an empty or placeholder URL
// disables it
func NewSlackChannel(webhookURL string, client *http.Client, builder *Builder, logger *zap.Logger) *SlackChannel {
	if client == nil {
		client = http.DefaultClient
	}
	enabled := validHTTPURL(webhookURL)
	if !enabled && strings.TrimSpace(webhookURL) != "" {
		logger.Warn("Slack channel disabled, webhook looks like a placeholder")
	}
	return &SlackChannel{
		url:     webhookURL,
		enabled: enabled,
		client:  client,
		builder: builder,
		logger:  logger,
	}
}

// Name returns the channel name
func (s *SlackChannel) Name() string { return "slack" }

// Enabled reports whether a usable webhook is configured
func (s *SlackChannel) Enabled() bool { return s.enabled }

// Send posts a summary of msg
func (s *SlackChannel) Send(ctx context.Context, msg *core.Message) error {
	if !s.enabled {
		return nil
	}
	return postJSON(ctx, s.client, s.url, s.format(s.builder.Build(msg)))
}

func (s *SlackChannel) format(p Payload) slackMessage {
	headline := fmt.Sprintf("New %s reply from %s (%.0f%%)",
		strings.ReplaceAll(p.Message.Category, "_", " "), p.Message.From, p.Message.Confidence*100)

	var body strings.Builder
	fmt.Fprintf(&body, "*%s*\n", escapeSlack(p.Message.Subject))
	if p.Message.Excerpt != "" {
		fmt.Fprintf(&body, ">%s\n", escapeSlack(p.Message.Excerpt))
	}
	if p.Links.View != "" {
		fmt.Fprintf(&body, "<%s|View> | <%s|Reply>", p.Links.View, p.Links.Reply)
	}

	return slackMessage{
		Text: headline,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: headline}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: body.String()}},
		},
	}
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeSlack(s string) string {
	return slackEscaper.Replace(s)
}
