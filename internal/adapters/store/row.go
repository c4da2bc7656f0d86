package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// messageRow is the flattened SQL representation of a message
type messageRow struct {
	CanonicalID    string    `db:"canonical_id"`
	AccountID      string    `db:"account_id"`
	UID            int64     `db:"uid"`
	FromName       string    `db:"from_name"`
	FromEmail      string    `db:"from_email"`
	Recipients     string    `db:"recipients"`
	Subject        string    `db:"subject"`
	TextBody       string    `db:"text_body"`
	HTMLBody       string    `db:"html_body"`
	Folder         string    `db:"folder"`
	IsRead         bool      `db:"is_read"`
	ReceivedAt     time.Time `db:"received_at"`
	Attachments    string    `db:"attachments"`
	Category       string    `db:"category"`
	Confidence     float64   `db:"confidence"`
	Classification string    `db:"classification"`
}

type recipients struct {
	To  []core.Address `json:"to,omitempty"`
	Cc  []core.Address `json:"cc,omitempty"`
	Bcc []core.Address `json:"bcc,omitempty"`
}

func toRow(msg *core.Message) (*messageRow, error) {
	rcpt, err := json.Marshal(recipients{To: msg.To, Cc: msg.Cc, Bcc: msg.Bcc})
	if err != nil {
		return nil, fmt.Errorf("failed to encode recipients: %w", err)
	}
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}

	row := &messageRow{
		CanonicalID: msg.CanonicalID,
		AccountID:   msg.AccountID,
		UID:         int64(msg.UID),
		FromName:    msg.From.Name,
		FromEmail:   msg.From.Email,
		Recipients:  string(rcpt),
		Subject:     msg.Subject,
		TextBody:    msg.TextBody,
		HTMLBody:    msg.HTMLBody,
		Folder:      msg.Folder,
		IsRead:      msg.IsRead,
		ReceivedAt:  msg.ReceivedAt.UTC(),
		Attachments: string(attachments),
	}
	if err := row.setClassification(msg.Classification); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *messageRow) setClassification(cls *core.Classification) error {
	r.Category, r.Confidence, r.Classification = "", 0, "null"
	if cls == nil {
		return nil
	}
	data, err := json.Marshal(cls)
	if err != nil {
		return fmt.Errorf("failed to encode classification: %w", err)
	}
	r.Category = string(cls.Category)
	r.Confidence = cls.Confidence
	r.Classification = string(data)
	return nil
}

func (r *messageRow) toMessage() (*core.Message, error) {
	msg := &core.Message{
		CanonicalID: r.CanonicalID,
		AccountID:   r.AccountID,
		UID:         uint32(r.UID),
		From:        core.Address{Name: r.FromName, Email: r.FromEmail},
		Subject:     r.Subject,
		TextBody:    r.TextBody,
		HTMLBody:    r.HTMLBody,
		Folder:      r.Folder,
		IsRead:      r.IsRead,
		ReceivedAt:  r.ReceivedAt.UTC(),
	}

	var rcpt recipients
	if err := json.Unmarshal([]byte(r.Recipients), &rcpt); err != nil {
		return nil, fmt.Errorf("failed to decode recipients of %s: %w", r.CanonicalID, err)
	}
	msg.To, msg.Cc, msg.Bcc = rcpt.To, rcpt.Cc, rcpt.Bcc

	if err := json.Unmarshal([]byte(r.Attachments), &msg.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments of %s: %w", r.CanonicalID, err)
	}
	if err := json.Unmarshal([]byte(r.Classification), &msg.Classification); err != nil {
		return nil, fmt.Errorf("failed to decode classification of %s: %w", r.CanonicalID, err)
	}
	return msg, nil
}
