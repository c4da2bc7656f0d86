package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
	"github.com/mikey/llm-mail-pipeline/internal/whitelist"
)

// modelFailureLimit consecutive model errors mark the endpoint unavailable
// until the next successful probe
const modelFailureLimit = 3

// Engine is the tiered classification engine. Classify never fails: the
// model tier is optional and every failure falls back to the rule tier.
type Engine struct {
	rules     *RuleScorer
	llm       core.LLMClient
	whitelist *whitelist.Checker
	text      *utils.TextProcessor
	cfg       config.ClassifierConfig
	replyCfg  config.ReplyConfig
	logger    *zap.Logger

	sem       *semaphore.Weighted
	available atomic.Bool
	failures  atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewEngine creates a classification engine. llm may be nil, in which case
// only the rule tier is used.
func NewEngine(
	llm core.LLMClient,
	checker *whitelist.Checker,
	textProcessor *utils.TextProcessor,
	cfg config.ClassifierConfig,
	replyCfg config.ReplyConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 4096
	}
	if replyCfg.MaxAttempts <= 0 {
		replyCfg.MaxAttempts = 3
	}
	if replyCfg.MaxLength <= 0 {
		replyCfg.MaxLength = 1500
	}
	if replyCfg.Timeout <= 0 {
		replyCfg.Timeout = 30 * time.Second
	}

	return &Engine{
		rules:     NewRuleScorer(textProcessor, cfg.FallbackConfidence),
		llm:       llm,
		whitelist: checker,
		text:      textProcessor,
		cfg:       cfg,
		replyCfg:  replyCfg,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start probes the model endpoint and keeps re-probing while it is
// unavailable
func (e *Engine) Start(ctx context.Context) {
	if !e.modelConfigured() {
		e.logger.Info("Model tier disabled, classifying with rules only")
		return
	}

	e.probe(ctx)

	if e.cfg.ReprobeInterval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.ReprobeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !e.available.Load() {
					e.probe(ctx)
				}
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop stops the re-probe loop
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
}

// ModelAvailable reports whether the last probe succeeded
func (e *Engine) ModelAvailable() bool {
	return e.available.Load()
}

// ModelName returns the configured model, or "rules" without one
func (e *Engine) ModelName() string {
	if !e.modelConfigured() {
		return string(core.SourceRules)
	}
	return e.llm.ModelName()
}

func (e *Engine) modelConfigured() bool {
	return e.llm != nil && e.cfg.ModelEnabled
}

func (e *Engine) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	if err := e.llm.Ping(probeCtx); err != nil {
		e.available.Store(false)
		e.logger.Warn("Model endpoint unavailable, using rule fallback",
			zap.String("model", e.llm.ModelName()),
			zap.Error(err))
		return
	}

	e.failures.Store(0)
	if !e.available.Swap(true) {
		e.logger.Info("Model endpoint available", zap.String("model", e.llm.ModelName()))
	}
}

// Classify assigns a category and confidence to a message
func (e *Engine) Classify(ctx context.Context, msg *core.Message) (result core.Classification) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Classification panicked, using default",
				zap.String("message_id", msg.CanonicalID),
				zap.Any("panic", r))
			result = e.defaultClassification()
		}
	}()

	body := e.text.BodyText(msg.TextBody, msg.HTMLBody)
	rules := e.rules.Score(msg.Subject, body)
	result = e.ruleClassification(rules, msg)

	modelResult, err := e.classifyWithModel(ctx, msg, body, rules)
	switch {
	case err == nil:
		result = modelResult
	case errors.Is(err, core.ErrModelUnavailable):
	default:
		e.logger.Debug("Model classification fell back to rules",
			zap.String("message_id", msg.CanonicalID),
			zap.String("category", string(result.Category)),
			zap.Error(err))
	}

	result.ClassifiedAt = e.now()
	result.Insights = buildInsights(result.Category, rules)
	return result
}

// ruleClassification turns a rule result into a classification, keeping
// whitelisted senders out of spam
func (e *Engine) ruleClassification(rules RuleResult, msg *core.Message) core.Classification {
	category, confidence := rules.Category, rules.Confidence
	if category == core.CategorySpam && e.whitelist.IsWhitelisted(msg.From.Email) {
		category, confidence = e.rules.NextBest(rules, core.CategorySpam)
	}

	source := core.SourceRules
	if !rules.Matched {
		source = core.SourceDefault
	}

	return core.Classification{
		Category:   category,
		Confidence: confidence,
		Source:     source,
	}
}

func (e *Engine) defaultClassification() core.Classification {
	return core.Classification{
		Category:     core.CategoryInterested,
		Confidence:   clamp(e.cfg.FallbackConfidence),
		Source:       core.SourceDefault,
		ClassifiedAt: e.now(),
	}
}

// classifyWithModel runs the model tier. It never waits for a free slot and
// never outlives the configured timeout.
func (e *Engine) classifyWithModel(ctx context.Context, msg *core.Message, body string, rules RuleResult) (core.Classification, error) {
	if !e.modelConfigured() || !e.available.Load() {
		return core.Classification{}, core.ErrModelUnavailable
	}
	if !e.sem.TryAcquire(1) {
		return core.Classification{}, core.ErrModelSaturated
	}

	req := &core.CompletionRequest{
		Model:       e.llm.ModelName(),
		System:      classifySystemPrompt,
		Prompt:      buildClassifyPrompt(msg, e.text.ProcessText(body, e.cfg.MaxBodySize)),
		Temperature: 0,
		MaxTokens:   16,
		Stop:        []string{"\n"},
	}

	raw, err := e.complete(ctx, e.cfg.Timeout, req)
	if err != nil {
		return core.Classification{}, err
	}

	category, confidence, err := ParseModelResponse(raw)
	if err != nil {
		return core.Classification{}, err
	}
	if err := validateModelCategory(category, rules); err != nil {
		return core.Classification{}, fmt.Errorf("%w: %v", core.ErrInvalidModelResponse, err)
	}
	if category == core.CategorySpam && e.whitelist.IsWhitelisted(msg.From.Email) {
		return core.Classification{}, fmt.Errorf("%w: whitelisted sender labelled spam", core.ErrInvalidModelResponse)
	}

	return core.Classification{
		Category:   category,
		Confidence: confidence,
		Source:     core.SourceModel,
		Model:      e.llm.ModelName(),
	}, nil
}

type completion struct {
	text string
	err  error
}

// complete calls the model in its own goroutine so a client that ignores
// its context cannot stall the caller. The caller must hold one semaphore
// slot, which is released once the call actually returns.
func (e *Engine) complete(ctx context.Context, timeout time.Duration, req *core.CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	done := make(chan completion, 1)
	go func() {
		defer e.sem.Release(1)
		defer cancel()
		text, err := e.llm.Complete(callCtx, req)
		done <- completion{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			e.recordFailure(res.err)
			return "", fmt.Errorf("failed to complete with model: %w", res.err)
		}
		e.failures.Store(0)
		return res.text, nil
	case <-callCtx.Done():
		return "", fmt.Errorf("model call abandoned: %w", callCtx.Err())
	}
}

func (e *Engine) recordFailure(err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return
	}
	if e.failures.Add(1) >= modelFailureLimit && e.available.Swap(false) {
		e.logger.Warn("Model endpoint failing, switching to rule fallback",
			zap.String("model", e.llm.ModelName()),
			zap.Error(err))
	}
}
