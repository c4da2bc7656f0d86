package factory

import (
	"fmt"

	"github.com/mikey/llm-mail-pipeline/internal/adapters/index"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
	"go.uber.org/zap"
)

// IndexFactory creates search indexers based on configuration
type IndexFactory struct {
	cfg    *config.Config
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewIndexFactory creates a new index factory
func NewIndexFactory(cfg *config.Config, text *utils.TextProcessor, logger *zap.Logger) *IndexFactory {
	return &IndexFactory{
		cfg:    cfg,
		text:   text,
		logger: logger,
	}
}

// CreateSearchIndexer creates the configured indexer. The "none" type
// yields an indexer that discards documents.
func (f *IndexFactory) CreateSearchIndexer() (core.SearchIndexer, error) {
	indexCfg := f.cfg.GetIndex()

	switch indexCfg.Type {
	case "none", "":
		return index.NoopIndexer{}, nil
	case "memory":
		return index.NewMemoryIndex(f.text), nil
	case "elasticsearch", "opensearch":
		if indexCfg.URL == "" || indexCfg.Name == "" {
			return nil, fmt.Errorf("index.url and index.name are required for %s", indexCfg.Type)
		}
		f.logger.Info("Using search index",
			zap.String("type", indexCfg.Type),
			zap.String("url", indexCfg.URL),
			zap.String("index", indexCfg.Name))
		return index.NewElasticIndexer(indexCfg.URL, indexCfg.Name, indexCfg.Timeout, f.text, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported index type: %s", indexCfg.Type)
	}
}
