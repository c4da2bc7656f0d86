package core

import (
	"time"
)

// Category is the wire-stable classification label of a message
type Category string

const (
	CategoryInterested    Category = "interested"
	CategoryMeetingBooked Category = "meeting_booked"
	CategoryNotInterested Category = "not_interested"
	CategorySpam          Category = "spam"
	CategoryOutOfOffice   Category = "out_of_office"
)

// Categories lists every valid category in a fixed order
var Categories = []Category{
	CategoryInterested,
	CategoryMeetingBooked,
	CategoryNotInterested,
	CategorySpam,
	CategoryOutOfOffice,
}

// Valid reports whether c is one of the five known categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// HighValue reports whether the category should be fanned out to notification channels
func (c Category) HighValue() bool {
	return c == CategoryInterested || c == CategoryMeetingBooked
}

// ParseCategory converts a raw label into a Category
func ParseCategory(raw string) (Category, bool) {
	c := Category(raw)
	return c, c.Valid()
}

// ClassificationSource records which tier produced a classification
type ClassificationSource string

const (
	SourceRules   ClassificationSource = "rules"
	SourceModel   ClassificationSource = "model"
	SourceDefault ClassificationSource = "default"
)

// Insights is the optional analysis bundle attached to a classification
type Insights struct {
	Sentiment string   `json:"sentiment"`
	Urgency   string   `json:"urgency"`
	Intent    string   `json:"intent"`
	Signals   []string `json:"signals,omitempty"`
	NextStep  string   `json:"next_step"`
}

// Classification is the outcome of the classification engine
type Classification struct {
	Category     Category             `json:"category"`
	Confidence   float64              `json:"confidence"`
	Source       ClassificationSource `json:"source"`
	Model        string               `json:"model,omitempty"`
	ClassifiedAt time.Time            `json:"classified_at"`
	Insights     *Insights            `json:"insights,omitempty"`
}

// Address is a display name and email pair
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String renders the address the way a mail client would
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// Attachment holds attachment metadata; content is never stored
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Inline      bool   `json:"inline,omitempty"`
}

// Message is the canonical structured message shared by every component
type Message struct {
	CanonicalID    string          `json:"id"`
	AccountID      string          `json:"account_id"`
	UID            uint32          `json:"uid,omitempty"`
	From           Address         `json:"from"`
	To             []Address       `json:"to,omitempty"`
	Cc             []Address       `json:"cc,omitempty"`
	Bcc            []Address       `json:"bcc,omitempty"`
	Subject        string          `json:"subject"`
	TextBody       string          `json:"text_body,omitempty"`
	HTMLBody       string          `json:"html_body,omitempty"`
	Folder         string          `json:"folder"`
	IsRead         bool            `json:"is_read"`
	ReceivedAt     time.Time       `json:"received_at"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// AccountStatus is the lifecycle status of an account
type AccountStatus string

const (
	AccountPending   AccountStatus = "pending"
	AccountConnected AccountStatus = "connected"
	AccountSyncing   AccountStatus = "syncing"
	AccountWatching  AccountStatus = "watching"
	AccountError     AccountStatus = "error"
	AccountFailed    AccountStatus = "failed"
	AccountDisabled  AccountStatus = "disabled"
)

// AccountStats holds sync statistics for an account
type AccountStats struct {
	SyncCount  int64  `json:"sync_count"`
	ErrorCount int64  `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`
}

// Account is a configured remote mailbox
type Account struct {
	ID         string        `json:"id"`
	Owner      string        `json:"owner"`
	Address    string        `json:"address"`
	Provider   string        `json:"provider"`
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	TLS        bool          `json:"tls"`
	Username   string        `json:"username"`
	Password   string        `json:"-"`
	Mailbox    string        `json:"mailbox"`
	Active     bool          `json:"active"`
	Status     AccountStatus `json:"status"`
	LastSyncAt time.Time     `json:"last_sync_at"`
	Stats      AccountStats  `json:"stats"`
}

// SyncProgress tracks an in-flight backfill
type SyncProgress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ProcessedEvent is emitted after every successful parse and classify cycle
type ProcessedEvent struct {
	AccountID   string               `json:"account_id"`
	CanonicalID string               `json:"id"`
	Category    Category             `json:"category"`
	Confidence  float64              `json:"confidence"`
	Source      ClassificationSource `json:"source"`
	At          time.Time            `json:"at"`
}

// RawMessage is a fetched protocol payload before parsing
type RawMessage struct {
	SeqNum       uint32
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Envelope     *Envelope
	Body         []byte
}

// MailboxUpdate is the mailbox state observed by a wait or poll
type MailboxUpdate struct {
	Count uint32
	// Expunged counts removals reported since the previous update
	Expunged uint32
}

// Envelope carries the IMAP envelope, used when headers cannot be parsed
type Envelope struct {
	MessageID string
	Subject   string
	Date      time.Time
	From      []Address
	To        []Address
	Cc        []Address
	Bcc       []Address
}

// CompletionRequest is a single generative-model call
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Stop        []string
}

// QueryOptions selects a page of stored messages
type QueryOptions struct {
	AccountID string
	Since     time.Time
	Limit     int
	Offset    int
}
