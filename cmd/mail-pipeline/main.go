package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/api"
	"github.com/mikey/llm-mail-pipeline/internal/classifier"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/di"
	"github.com/mikey/llm-mail-pipeline/internal/factory"
	"github.com/mikey/llm-mail-pipeline/internal/mailsync"
	"github.com/mikey/llm-mail-pipeline/internal/ports"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "mail-pipeline",
	Short: "Ingest, classify and route mail from many IMAP accounts",
	Long: `mail-pipeline keeps one live IMAP session per configured account,
classifies every new message, persists and indexes it, and alerts on
high-value replies.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := buildContainer()
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(run)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to config file (default: search standard locations)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func buildContainer() (*dig.Container, error) {
	if configFile == "" {
		return di.BuildContainer()
	}
	cfg, err := config.NewFromFile(configFile)
	if err != nil {
		return nil, err
	}
	return di.BuildContainerFromConfig(cfg)
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	engine *classifier.Engine,
	orch *mailsync.Orchestrator,
	server *api.StatusServer,
	llmClient core.LLMClient,
	messageStore factory.MessageStore,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start(ctx)

	services := []ports.Service{orch}
	if cfg.GetServer().Enabled {
		services = append(services, server)
	}
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			logger.Error("Failed to start service", zap.Error(err))
			stopAll(services, logger)
			engine.Stop()
			return err
		}
	}

	go func() {
		for ev := range orch.Events() {
			logger.Debug("Message processed",
				zap.String("account_id", ev.AccountID),
				zap.String("message_id", ev.CanonicalID),
				zap.String("category", string(ev.Category)),
				zap.Float64("confidence", ev.Confidence),
				zap.String("source", string(ev.Source)))
		}
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")
	cancel()

	stopAll(services, logger)
	engine.Stop()

	// Close any resources that need closing
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}

	messageStore.Stop()

	logger.Info("Shutdown complete")
	return nil
}

// stopAll stops services in reverse start order
func stopAll(services []ports.Service, logger *zap.Logger) {
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(); err != nil {
			logger.Error("Failed to stop service", zap.Error(err))
		}
	}
}
