package factory

import (
	"github.com/mikey/llm-mail-pipeline/internal/classifier"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
	"github.com/mikey/llm-mail-pipeline/internal/whitelist"
	"go.uber.org/zap"
)

// ClassifierFactory creates the text processor, whitelist and engine
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *ClassifierFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateWhitelistChecker creates the sender whitelist
func (f *ClassifierFactory) CreateWhitelistChecker() *whitelist.Checker {
	domains := f.cfg.GetClassifier().WhitelistedDomains
	if len(domains) > 0 {
		f.logger.Info("Loaded whitelisted domains", zap.Strings("domains", domains))
	}
	return whitelist.NewChecker(domains, f.logger)
}

// CreateEngine creates the classification engine; llm may be nil
func (f *ClassifierFactory) CreateEngine(llm core.LLMClient, text *utils.TextProcessor, checker *whitelist.Checker) *classifier.Engine {
	return classifier.NewEngine(llm, checker, text, f.cfg.GetClassifier(), f.cfg.GetReply(), f.logger)
}
