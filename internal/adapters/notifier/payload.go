package notifier

import (
	"net/url"
	"strings"
	"time"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
)

const (
	eventHighValue = "message.high_value"
	excerptLength  = 280
)

// Payload is the JSON body posted to generic webhooks
type Payload struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Message   MessageSummary `json:"message"`
	Links     Links          `json:"links"`
}

// MessageSummary is the message part of a webhook payload
type MessageSummary struct {
	ID         string   `json:"id"`
	From       string   `json:"from"`
	To         []string `json:"to"`
	Subject    string   `json:"subject"`
	Excerpt    string   `json:"excerpt"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
}

// Links are deep links into the mail client
type Links struct {
	View  string `json:"view"`
	Reply string `json:"reply"`
}

// Builder renders notification payloads
type Builder struct {
	linksBaseURL string
	text         *utils.TextProcessor
	now          func() time.Time
}

// NewBuilder creates a payload builder
func NewBuilder(linksBaseURL string, text *utils.TextProcessor) *Builder {
	if text == nil {
		text = utils.NewTextProcessor(nil)
	}
	return &Builder{
		linksBaseURL: strings.TrimRight(linksBaseURL, "/"),
		text:         text,
		now:          time.Now,
	}
}

// Build returns the webhook payload for msg
func (b *Builder) Build(msg *core.Message) Payload {
	p := Payload{
		Event:     eventHighValue,
		Timestamp: b.now().UTC().Format(time.RFC3339),
		Message: MessageSummary{
			ID:      msg.CanonicalID,
			From:    msg.From.String(),
			To:      []string{},
			Subject: msg.Subject,
			Excerpt: b.text.Excerpt(b.text.BodyText(msg.TextBody, msg.HTMLBody), excerptLength),
		},
		Links: b.links(msg.CanonicalID),
	}
	for _, to := range msg.To {
		p.Message.To = append(p.Message.To, to.String())
	}
	if msg.Classification != nil {
		p.Message.Category = string(msg.Classification.Category)
		p.Message.Confidence = msg.Classification.Confidence
	}
	return p
}

func (b *Builder) links(id string) Links {
	if b.linksBaseURL == "" {
		return Links{}
	}
	escaped := url.PathEscape(id)
	return Links{
		View:  b.linksBaseURL + "/messages/" + escaped,
		Reply: b.linksBaseURL + "/messages/" + escaped + "/reply",
	}
}

var placeholderMarkers = []string{
	"example.com", "example.org", "example.net", "your-", "your_", "xxx",
	"placeholder", "changeme", "change-me", "<", "{{",
}

// IsPlaceholder reports whether a configured destination is empty or one
// of the stock sample values
func IsPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

func validHTTPURL(raw string) bool {
	if IsPlaceholder(raw) {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
