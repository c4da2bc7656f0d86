package index

import (
	"context"
	"sync"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
)

// NoopIndexer discards documents
type NoopIndexer struct{}

// Index does nothing
func (NoopIndexer) Index(ctx context.Context, msg *core.Message) error { return nil }

// BulkIndex does nothing
func (NoopIndexer) BulkIndex(ctx context.Context, msgs []*core.Message) error { return nil }

// MemoryIndex keeps documents in memory keyed by canonical id
type MemoryIndex struct {
	docs map[string]Document
	mu   sync.RWMutex
	text *utils.TextProcessor
}

// NewMemoryIndex creates an in-memory index
func NewMemoryIndex(text *utils.TextProcessor) *MemoryIndex {
	if text == nil {
		text = utils.NewTextProcessor(nil)
	}
	return &MemoryIndex{docs: make(map[string]Document), text: text}
}

// Index upserts one document
func (m *MemoryIndex) Index(ctx context.Context, msg *core.Message) error {
	doc := NewDocument(msg, m.text)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

// BulkIndex upserts many documents
func (m *MemoryIndex) BulkIndex(ctx context.Context, msgs []*core.Message) error {
	for _, msg := range msgs {
		if err := m.Index(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Get returns an indexed document
func (m *MemoryIndex) Get(id string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return doc, ok
}

// Len returns the number of indexed documents
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
