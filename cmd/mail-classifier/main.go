package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/classifier"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/credential"
	"github.com/mikey/llm-mail-pipeline/internal/di"
	"github.com/mikey/llm-mail-pipeline/internal/parser"
)

var (
	flags = &di.CLIFlags{}

	inputFile   string
	replyTo     string
	instruction string
	tone        string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "mail-classifier [file]",
	Short: "Classify a single message and optionally draft a reply",
	Long: `mail-classifier reads one RFC 5322 message from a file or stdin, runs it
through the rule and model tiers, and prints the classification.

Examples:
  mail-classifier reply.eml
  mail-classifier --provider none < reply.eml
  mail-classifier --reply interested --tone friendly reply.eml
  mail-classifier credential set imap-work`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			inputFile = args[0]
		}
		container, err := di.BuildCLIContainer(flags)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return container.Invoke(classify)
	},
}

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage secrets referenced as keyring:KEY in the config file",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set KEY",
	Short: "Store a secret in the system keyring",
	Long:  `Reads the secret from stdin and stores it under KEY.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(os.Stderr, "Secret for %s: ", args[0])
		secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		secret = strings.TrimRight(secret, "\r\n")
		if secret == "" {
			return fmt.Errorf("empty secret")
		}
		if err := credential.NewResolver().Set(args[0], secret); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nStored %s\n", args[0])
		return nil
	},
}

func init() {
	f := rootCmd.Flags()

	// LLM provider flags
	f.StringVar(&flags.Provider, "provider", "openai", "LLM provider (openai, gemini, bedrock, none)")
	f.IntVar(&flags.MaxTokens, "max-tokens", 256, "Maximum tokens for LLM response")
	f.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for LLM generation")
	f.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for LLM generation")
	f.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum message body size to send to LLM")

	// Bedrock flags
	f.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	f.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	f.StringVar(&flags.GeminiAPIKey, "gemini-api-key", os.Getenv("GEMINI_API_KEY"), "API key for Google Gemini")
	f.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-1.5-flash", "Gemini model name")

	// OpenAI flags
	f.StringVar(&flags.OpenAIAPIKey, "openai-api-key", os.Getenv("OPENAI_API_KEY"), "API key for OpenAI")
	f.StringVar(&flags.OpenAIBaseURL, "openai-base-url", "", "Base URL of an OpenAI-compatible endpoint")
	f.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4o-mini", "OpenAI model name")

	// Classification flags
	f.Float64Var(&flags.FallbackConfidence, "fallback-confidence", 0.3, "Confidence reported when no tier decides")
	f.StringSliceVar(&flags.WhitelistedDomains, "whitelist", nil, "Comma-separated list of whitelisted sender domains")
	f.StringVar(&flags.Timeout, "timeout", "15s", "Model call timeout")

	// Reply flags
	f.StringVar(&replyTo, "reply", "", "Draft a reply for this category (e.g. interested)")
	f.StringVar(&instruction, "instruction", "", "Extra instruction for the drafted reply")
	f.StringVar(&tone, "tone", "", "Reply tone (formal, friendly); detected when empty")

	// Output flags
	f.BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose logging")
	f.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	f.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	credentialCmd.AddCommand(credentialSetCmd)
	rootCmd.AddCommand(credentialCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type result struct {
	Message        *core.Message       `json:"message"`
	Classification core.Classification `json:"classification"`
	Reply          *classifier.Reply   `json:"reply,omitempty"`
	Duration       string              `json:"duration"`
}

// classify gets all dependencies injected
func classify(
	cfg *config.Config,
	logger *zap.Logger,
	engine *classifier.Engine,
	p *parser.Parser,
	llmClient core.LLMClient,
) error {
	defer logger.Sync()

	// Close any resources that need closing
	defer func() {
		if closer, ok := llmClient.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close LLM client", zap.Error(err))
			}
		}
	}()

	raw, err := readInput(logger)
	if err != nil {
		return err
	}

	msg, err := p.Parse(raw, nil, parser.Meta{AccountID: "cli", Folder: "INBOX", InternalDate: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}

	ctx := context.Background()
	engine.Start(ctx)
	defer engine.Stop()

	startTime := time.Now()
	out := result{Message: msg, Classification: engine.Classify(ctx, msg)}

	if replyTo != "" {
		category, ok := core.ParseCategory(replyTo)
		if !ok {
			return fmt.Errorf("unknown category: %s", replyTo)
		}
		reply := engine.DraftReply(ctx, msg, category, instruction, classifier.Tone(tone))
		out.Reply = &reply
	}
	out.Duration = time.Since(startTime).String()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printResult(cfg, out)
	return nil
}

func readInput(logger *zap.Logger) ([]byte, error) {
	if inputFile == "" {
		logger.Info("Reading message from stdin")
		return io.ReadAll(os.Stdin)
	}
	logger.Info("Reading message from file", zap.String("file", inputFile))
	raw, err := os.ReadFile(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	return raw, nil
}

func printResult(cfg *config.Config, out result) {
	msg := out.Message
	cls := out.Classification

	fmt.Printf("\n=== Message Summary ===\n")
	fmt.Printf("ID: %s\n", msg.CanonicalID)
	fmt.Printf("From: %s\n", msg.From.String())
	fmt.Printf("Subject: %s\n", msg.Subject)
	fmt.Printf("Body length: %d bytes\n", len(msg.TextBody))
	fmt.Printf("Attachments: %d\n", len(msg.Attachments))

	fmt.Printf("\n=== Classification ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetLLM().Provider)
	fmt.Printf("Category: %s\n", cls.Category)
	fmt.Printf("Confidence: %.2f\n", cls.Confidence)
	fmt.Printf("Source: %s\n", cls.Source)
	if cls.Model != "" {
		fmt.Printf("Model used: %s\n", cls.Model)
	}
	if cls.Insights != nil {
		fmt.Printf("Sentiment: %s\n", cls.Insights.Sentiment)
		fmt.Printf("Urgency: %s\n", cls.Insights.Urgency)
		fmt.Printf("Next step: %s\n", cls.Insights.NextStep)
	}

	if out.Reply != nil {
		fmt.Printf("\n=== Draft Reply (%s, %s) ===\n", out.Reply.Tone, out.Reply.Source)
		fmt.Println(out.Reply.Body)
	}
	fmt.Printf("\nProcessing time: %s\n", out.Duration)
}
