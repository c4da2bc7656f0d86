package index

import (
	"time"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
)

// maxIndexedBody bounds the body text stored in a search document
const maxIndexedBody = 32 << 10

// Document is the search representation of a message
type Document struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	From        string    `json:"from"`
	FromName    string    `json:"from_name,omitempty"`
	To          []string  `json:"to,omitempty"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Folder      string    `json:"folder"`
	IsRead      bool      `json:"is_read"`
	ReceivedAt  time.Time `json:"received_at"`
	Attachments []string  `json:"attachments,omitempty"`
	Category    string    `json:"category,omitempty"`
	Confidence  float64   `json:"confidence"`
}

// NewDocument flattens a message for indexing
func NewDocument(msg *core.Message, text *utils.TextProcessor) Document {
	if text == nil {
		text = utils.NewTextProcessor(nil)
	}
	doc := Document{
		ID:         msg.CanonicalID,
		AccountID:  msg.AccountID,
		From:       msg.From.Email,
		FromName:   msg.From.Name,
		Subject:    msg.Subject,
		Body:       text.ProcessText(text.BodyText(msg.TextBody, msg.HTMLBody), maxIndexedBody),
		Folder:     msg.Folder,
		IsRead:     msg.IsRead,
		ReceivedAt: msg.ReceivedAt,
	}
	for _, to := range msg.To {
		doc.To = append(doc.To, to.Email)
	}
	for _, a := range msg.Attachments {
		if a.Filename != "" {
			doc.Attachments = append(doc.Attachments, a.Filename)
		}
	}
	if msg.Classification != nil {
		doc.Category = string(msg.Classification.Category)
		doc.Confidence = msg.Classification.Confidence
	}
	return doc
}
