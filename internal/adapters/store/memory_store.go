package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// MemoryStore is an in-memory implementation of the MessageRepository interface
type MemoryStore struct {
	messages  map[string]*core.Message
	purged    map[string]time.Time
	mu        sync.RWMutex
	logger    *zap.Logger
	retention *retention
}

// NewMemoryStore creates a new in-memory message store
func NewMemoryStore(logger *zap.Logger, window, cleanupFreq time.Duration) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		messages:  make(map[string]*core.Message),
		purged:    make(map[string]time.Time),
		logger:    logger,
		retention: newRetention(window, cleanupFreq, logger),
	}
	s.retention.start(s)
	return s
}

// FindByCanonicalID returns a copy of the stored message
func (s *MemoryStore) FindByCanonicalID(ctx context.Context, canonicalID string) (*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[canonicalID]
	if !ok {
		if _, purged := s.purged[canonicalID]; purged {
			return nil, core.ErrMessagePurged
		}
		return nil, core.ErrNotFound
	}
	return cloneMessage(msg), nil
}

// Create stores a copy of msg unless its canonical id is already known or
// was purged
func (s *MemoryStore) Create(ctx context.Context, msg *core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.CanonicalID]; ok {
		return core.ErrDuplicateMessage
	}
	if _, ok := s.purged[msg.CanonicalID]; ok {
		return core.ErrDuplicateMessage
	}
	s.messages[msg.CanonicalID] = cloneMessage(msg)
	return nil
}

// UpdateClassification rewrites the classification of a stored message
func (s *MemoryStore) UpdateClassification(ctx context.Context, canonicalID string, cls *core.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[canonicalID]
	if !ok {
		return core.ErrNotFound
	}
	msg.Classification = cloneClassification(cls)
	return nil
}

// Query returns a page of messages, newest first
func (s *MemoryStore) Query(ctx context.Context, opts core.QueryOptions) ([]*core.Message, error) {
	s.mu.RLock()
	matched := make([]*core.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if opts.AccountID != "" && msg.AccountID != opts.AccountID {
			continue
		}
		if !opts.Since.IsZero() && msg.ReceivedAt.Before(opts.Since) {
			continue
		}
		matched = append(matched, cloneMessage(msg))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ReceivedAt.Equal(matched[j].ReceivedAt) {
			return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
		}
		return matched[i].CanonicalID < matched[j].CanonicalID
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if opts.Offset >= len(matched) {
		return []*core.Message{}, nil
	}
	end := opts.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[opts.Offset:end], nil
}

// DeleteAll removes every stored message along with the purge history
func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make(map[string]*core.Message)
	s.purged = make(map[string]time.Time)
	return nil
}

// Cleanup removes messages received before the cutoff
func (s *MemoryStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	now := time.Now()
	for id, msg := range s.messages {
		if msg.ReceivedAt.Before(before) {
			delete(s.messages, id)
			s.purged[id] = now
			removed++
		}
	}
	return removed, nil
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.retention.stop()
}

func cloneMessage(msg *core.Message) *core.Message {
	c := *msg
	c.To = append([]core.Address(nil), msg.To...)
	c.Cc = append([]core.Address(nil), msg.Cc...)
	c.Bcc = append([]core.Address(nil), msg.Bcc...)
	c.Attachments = append([]core.Attachment(nil), msg.Attachments...)
	c.Classification = cloneClassification(msg.Classification)
	return &c
}

func cloneClassification(cls *core.Classification) *core.Classification {
	if cls == nil {
		return nil
	}
	c := *cls
	if cls.Insights != nil {
		ins := *cls.Insights
		ins.Signals = append([]string(nil), cls.Insights.Signals...)
		c.Insights = &ins
	}
	return &c
}
