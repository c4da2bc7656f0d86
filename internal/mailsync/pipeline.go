package mailsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/notify"
	"github.com/mikey/llm-mail-pipeline/internal/parser"
)

// Classifier assigns a classification to a message and never fails
type Classifier interface {
	Classify(ctx context.Context, msg *core.Message) core.Classification
}

// Dispatcher delivers high-value messages to notification channels
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *core.Message) notify.Report
}

// PipelineOptions toggles the optional stages of the pipeline
type PipelineOptions struct {
	Notify         bool
	Index          bool
	SkipKnown      bool
	ProcessTimeout time.Duration
	EventBuffer    int
}

// Pipeline routes one fetched message through parse, classify, persist,
// index and notify
type Pipeline struct {
	parser     *parser.Parser
	classifier Classifier
	messages   core.MessageRepository
	indexer    core.SearchIndexer
	dispatcher Dispatcher
	accounts   core.AccountRepository
	registry   *Registry
	opts       PipelineOptions
	logger     *zap.Logger

	events  chan core.ProcessedEvent
	dropped sync.Once
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewPipeline creates a pipeline. indexer and dispatcher may be nil.
func NewPipeline(
	p *parser.Parser,
	classifier Classifier,
	messages core.MessageRepository,
	indexer core.SearchIndexer,
	dispatcher Dispatcher,
	accounts core.AccountRepository,
	registry *Registry,
	opts PipelineOptions,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = parser.New(logger)
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 90 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	return &Pipeline{
		parser:     p,
		classifier: classifier,
		messages:   messages,
		indexer:    indexer,
		dispatcher: dispatcher,
		accounts:   accounts,
		registry:   registry,
		opts:       opts,
		logger:     logger,
		events:     make(chan core.ProcessedEvent, opts.EventBuffer),
		now:        time.Now,
	}
}

// Events returns the processed-message event stream. Events are dropped
// when nobody keeps up with the channel.
func (p *Pipeline) Events() <-chan core.ProcessedEvent {
	return p.events
}

// Process handles one raw message for the session and reports whether a
// new message was stored. Errors are logged and never returned; a failed
// message never affects the rest of the batch.
func (p *Pipeline) Process(ctx context.Context, sess *Session, raw *core.RawMessage) bool {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ProcessTimeout)
	defer cancel()

	account := sess.Account()
	logger := sess.logger

	msg, err := p.parser.Parse(raw.Body, raw.Flags, parser.Meta{
		AccountID:    account.ID,
		Folder:       sess.mailbox,
		UID:          raw.UID,
		SeqNum:       raw.SeqNum,
		InternalDate: raw.InternalDate,
		Envelope:     raw.Envelope,
	})
	if err != nil {
		logger.Warn("Skipping unparseable message", zap.Uint32("uid", raw.UID), zap.Error(err))
		return false
	}

	if p.opts.SkipKnown {
		_, err := p.messages.FindByCanonicalID(ctx, msg.CanonicalID)
		switch {
		case err == nil:
			logger.Debug("Message already stored", zap.String("message_id", msg.CanonicalID))
			return false
		case errors.Is(err, core.ErrMessagePurged):
			logger.Debug("Message purged by retention", zap.String("message_id", msg.CanonicalID))
			return false
		case !errors.Is(err, core.ErrNotFound):
			logger.Warn("Failed to look up message, continuing",
				zap.String("message_id", msg.CanonicalID),
				zap.Error(err))
		}
	}

	cls := p.classifier.Classify(ctx, msg)
	msg.Classification = &cls
	p.emit(core.ProcessedEvent{
		AccountID:   account.ID,
		CanonicalID: msg.CanonicalID,
		Category:    cls.Category,
		Confidence:  cls.Confidence,
		Source:      cls.Source,
		At:          p.now(),
	})

	if !p.registry.IsCurrent(account.ID, sess) {
		logger.Debug("Session retired, discarding result", zap.String("message_id", msg.CanonicalID))
		return false
	}

	if err := p.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, core.ErrDuplicateMessage) {
			logger.Debug("Duplicate message ignored", zap.String("message_id", msg.CanonicalID))
			return false
		}
		logger.Error("Failed to store message",
			zap.String("message_id", msg.CanonicalID),
			zap.Error(err))
		return false
	}

	if p.opts.Index && p.indexer != nil {
		if err := p.indexer.Index(ctx, msg); err != nil {
			logger.Warn("Failed to index message",
				zap.String("message_id", msg.CanonicalID),
				zap.Error(err))
		}
	}

	if err := p.accounts.RecordSync(ctx, account.ID, 1, p.now()); err != nil {
		logger.Warn("Failed to record sync", zap.Error(err))
	}

	logger.Info("Message processed",
		zap.String("message_id", msg.CanonicalID),
		zap.String("category", string(cls.Category)),
		zap.Float64("confidence", cls.Confidence),
		zap.String("source", string(cls.Source)))

	if p.opts.Notify && p.dispatcher != nil && cls.Category.HighValue() {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.dispatcher.Dispatch(context.WithoutCancel(ctx), msg)
		}()
	}
	return true
}

func (p *Pipeline) emit(ev core.ProcessedEvent) {
	select {
	case p.events <- ev:
	default:
		p.dropped.Do(func() {
			p.logger.Warn("Event channel full, dropping processed events")
		})
	}
}

// Wait blocks until in-flight notifications finish
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
