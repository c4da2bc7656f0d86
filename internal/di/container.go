package di

import (
	"go.uber.org/dig"

	"github.com/mikey/llm-mail-pipeline/internal/api"
	"github.com/mikey/llm-mail-pipeline/internal/classifier"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/credential"
	"github.com/mikey/llm-mail-pipeline/internal/factory"
	"github.com/mikey/llm-mail-pipeline/internal/logging"
	"github.com/mikey/llm-mail-pipeline/internal/mailsync"
	"github.com/mikey/llm-mail-pipeline/internal/notify"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
	"github.com/mikey/llm-mail-pipeline/internal/whitelist"
	"go.uber.org/zap"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	if err := provideDaemon(container); err != nil {
		return nil, err
	}
	return container, nil
}

// BuildContainerFromConfig creates a container around an already loaded
// configuration
func BuildContainerFromConfig(cfg *config.Config) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}

	if err := provideDaemon(container); err != nil {
		return nil, err
	}
	return container, nil
}

func provideDaemon(container *dig.Container) error {
	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return err
	}

	// Register credential resolver
	if err := container.Provide(credential.NewResolver); err != nil {
		return err
	}

	// Register factories
	for _, constructor := range []interface{}{
		factory.NewLLMFactory,
		factory.NewStoreFactory,
		factory.NewAccountFactory,
		factory.NewClassifierFactory,
		factory.NewIndexFactory,
		factory.NewNotifierFactory,
		factory.NewSyncFactory,
	} {
		if err := container.Provide(constructor); err != nil {
			return err
		}
	}

	if err := provideClassifier(container); err != nil {
		return err
	}

	// Register message store
	if err := container.Provide(func(f *factory.StoreFactory) (factory.MessageStore, error) {
		return f.CreateMessageStore()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s factory.MessageStore) core.MessageRepository {
		return s
	}); err != nil {
		return err
	}

	// Register account repository
	if err := container.Provide(func(f *factory.AccountFactory) (core.AccountRepository, error) {
		return f.CreateAccountRepository()
	}); err != nil {
		return err
	}

	// Register search indexer
	if err := container.Provide(func(f *factory.IndexFactory) (core.SearchIndexer, error) {
		return f.CreateSearchIndexer()
	}); err != nil {
		return err
	}

	// Register notification dispatcher
	if err := container.Provide(func(f *factory.NotifierFactory) *notify.Dispatcher {
		return f.CreateDispatcher()
	}); err != nil {
		return err
	}

	// Register session plumbing
	if err := container.Provide(mailsync.NewRegistry); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.SyncFactory) core.MailboxDialer {
		return f.CreateDialer()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		f *factory.SyncFactory,
		engine *classifier.Engine,
		messages core.MessageRepository,
		indexer core.SearchIndexer,
		dispatcher *notify.Dispatcher,
		accounts core.AccountRepository,
		registry *mailsync.Registry,
	) *mailsync.Pipeline {
		return f.CreatePipeline(engine, messages, indexer, dispatcher, accounts, registry)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		f *factory.SyncFactory,
		dialer core.MailboxDialer,
		pipeline *mailsync.Pipeline,
		accounts core.AccountRepository,
		registry *mailsync.Registry,
	) *mailsync.Manager {
		return f.CreateManager(dialer, pipeline, accounts, registry)
	}); err != nil {
		return err
	}

	// Register orchestrator
	if err := container.Provide(func(
		accounts core.AccountRepository,
		messages core.MessageRepository,
		indexer core.SearchIndexer,
		engine *classifier.Engine,
		manager *mailsync.Manager,
		pipeline *mailsync.Pipeline,
		logger *zap.Logger,
	) *mailsync.Orchestrator {
		return mailsync.NewOrchestrator(accounts, messages, indexer, engine, engine, manager, pipeline, logger)
	}); err != nil {
		return err
	}

	// Register status server
	if err := container.Provide(func(
		cfg *config.Config,
		orch *mailsync.Orchestrator,
		logger *zap.Logger,
	) *api.StatusServer {
		return api.NewStatusServer(orch, cfg.GetServer().StatusAddress, logger)
	}); err != nil {
		return err
	}

	return nil
}

// provideClassifier registers the LLM client and the classification engine.
// Shared with the CLI container.
func provideClassifier(container *dig.Container) error {
	// Register LLM client; nil when no provider is configured
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.ClassifierFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register whitelist checker
	if err := container.Provide(func(f *factory.ClassifierFactory) *whitelist.Checker {
		return f.CreateWhitelistChecker()
	}); err != nil {
		return err
	}

	// Register classification engine
	if err := container.Provide(func(
		f *factory.ClassifierFactory,
		llm core.LLMClient,
		text *utils.TextProcessor,
		checker *whitelist.Checker,
	) *classifier.Engine {
		return f.CreateEngine(llm, text, checker)
	}); err != nil {
		return err
	}

	return nil
}
