package factory

import (
	"github.com/mikey/llm-mail-pipeline/internal/adapters/imap"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/mailsync"
	"github.com/mikey/llm-mail-pipeline/internal/notify"
	"github.com/mikey/llm-mail-pipeline/internal/parser"
	"go.uber.org/zap"
)

// SyncFactory creates the mailbox dialer, pipeline and session manager
type SyncFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSyncFactory creates a new sync factory
func NewSyncFactory(cfg *config.Config, logger *zap.Logger) *SyncFactory {
	return &SyncFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateDialer creates the IMAP dialer
func (f *SyncFactory) CreateDialer() core.MailboxDialer {
	return imap.NewDialer(f.cfg.GetSync().HandshakeTimeout, f.logger)
}

// CreatePipeline creates the ingest pipeline. Indexing is skipped when no
// search index is configured.
func (f *SyncFactory) CreatePipeline(
	classifier mailsync.Classifier,
	messages core.MessageRepository,
	indexer core.SearchIndexer,
	dispatcher *notify.Dispatcher,
	accounts core.AccountRepository,
	registry *mailsync.Registry,
) *mailsync.Pipeline {
	indexType := f.cfg.GetIndex().Type
	return mailsync.NewPipeline(
		parser.New(f.logger),
		classifier,
		messages,
		indexer,
		dispatcher,
		accounts,
		registry,
		mailsync.PipelineOptions{
			Notify:         len(dispatcher.Channels()) > 0,
			Index:          indexType != "" && indexType != "none",
			SkipKnown:      true,
			ProcessTimeout: f.cfg.GetSync().ProcessTimeout,
		},
		f.logger,
	)
}

// CreateManager creates the session manager
func (f *SyncFactory) CreateManager(
	dialer core.MailboxDialer,
	pipeline *mailsync.Pipeline,
	accounts core.AccountRepository,
	registry *mailsync.Registry,
) *mailsync.Manager {
	return mailsync.NewManager(dialer, pipeline, accounts, registry, f.cfg.GetSync(), f.logger)
}
