package core

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// Complete sends a prompt and returns the raw text response
	Complete(ctx context.Context, req *CompletionRequest) (string, error)

	// Ping checks that the model endpoint is reachable
	Ping(ctx context.Context) error

	// ModelName returns the configured model identifier
	ModelName() string
}

// MessageRepository persists structured messages keyed by canonical id
type MessageRepository interface {
	// FindByCanonicalID returns ErrNotFound when no message exists
	FindByCanonicalID(ctx context.Context, canonicalID string) (*Message, error)

	// Create stores a message; ErrDuplicateMessage when the id already exists
	Create(ctx context.Context, msg *Message) error

	// UpdateClassification rewrites the classification of a stored message
	UpdateClassification(ctx context.Context, canonicalID string, cls *Classification) error

	// Query returns a page of messages ordered by received time
	Query(ctx context.Context, opts QueryOptions) ([]*Message, error)

	// DeleteAll removes every stored message
	DeleteAll(ctx context.Context) error

	// Cleanup removes messages received before the cutoff
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// SearchIndexer upserts message documents into a search index
type SearchIndexer interface {
	Index(ctx context.Context, msg *Message) error
	BulkIndex(ctx context.Context, msgs []*Message) error
}

// AccountRepository stores accounts and their lifecycle state
type AccountRepository interface {
	ListActive(ctx context.Context) ([]*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Get(ctx context.Context, id string) (*Account, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdateStatus(ctx context.Context, id string, status AccountStatus, lastErr string) error
	RecordSync(ctx context.Context, id string, processed int64, at time.Time) error
	RecordError(ctx context.Context, id string, errMsg string) error
	ResetErrors(ctx context.Context, id string) error
}

// MailboxDialer opens authenticated mailbox connections
type MailboxDialer interface {
	Dial(ctx context.Context, account *Account) (MailboxConn, error)
}

// MailboxConn is one live, authenticated mailbox connection
type MailboxConn interface {
	// Select opens a mailbox and returns its message count
	Select(ctx context.Context, mailbox string, readOnly bool) (uint32, error)

	// FetchRange fetches messages by sequence number, inclusive
	FetchRange(ctx context.Context, from, to uint32) ([]*RawMessage, error)

	// FetchSeqNums fetches the given sequence numbers
	FetchSeqNums(ctx context.Context, seqNums []uint32) ([]*RawMessage, error)

	// SearchUnseen returns sequence numbers of unseen messages
	SearchUnseen(ctx context.Context) ([]uint32, error)

	// SupportsIdle reports whether native change notification is available
	SupportsIdle() bool

	// WaitForChange blocks until the server reports a mailbox update or the
	// refresh interval elapses
	WaitForChange(ctx context.Context, refresh time.Duration) (MailboxUpdate, error)

	// Poll pings the server and returns the latest mailbox state
	Poll(ctx context.Context) (MailboxUpdate, error)

	Close() error
}

// NotificationChannel delivers a high-value message to one destination
type NotificationChannel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg *Message) error
}
