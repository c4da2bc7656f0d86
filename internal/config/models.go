package config

import (
	"fmt"
	"strings"
	"time"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	Profile     string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI and compatible endpoints
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// SyncConfig controls the per-account sessions
type SyncConfig struct {
	Mailbox              string
	BackfillWindow       int
	BatchSize            int
	PollInterval         time.Duration
	IdleRefresh          time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxConsecutiveErrors int
	HandshakeTimeout     time.Duration
	FetchTimeout         time.Duration
	ProcessTimeout       time.Duration
}

// ClassifierConfig controls the tiered classification engine
type ClassifierConfig struct {
	ModelEnabled       bool
	MaxConcurrent      int
	Timeout            time.Duration
	ProbeTimeout       time.Duration
	ReprobeInterval    time.Duration
	FallbackConfidence float64
	WhitelistedDomains []string
	MaxBodySize        int
}

// ReplyConfig controls reply drafting
type ReplyConfig struct {
	MaxAttempts int
	MinLength   int
	MaxLength   int
	Timeout     time.Duration
}

// StoreConfig selects the message store backend
type StoreConfig struct {
	Type             string
	SQLitePath       string
	MySQLDSN         string
	PostgresDSN      string
	Retention        time.Duration
	CleanupFrequency time.Duration
}

// IndexConfig selects the search index backend
type IndexConfig struct {
	Type    string
	URL     string
	Name    string
	Timeout time.Duration
}

// SMTPNotifyConfig is the SMTP alert channel
type SMTPNotifyConfig struct {
	Host string
	Port int
	TLS  bool
	// Insecure allows plaintext relays that do not offer STARTTLS
	Insecure bool
	Username string
	Password string
	From     string
	To       []string
}

// NotifyConfig lists notification channel endpoints
type NotifyConfig struct {
	Timeout         time.Duration
	WebhookURL      string
	SlackWebhookURL string
	SMTP            SMTPNotifyConfig
	LinksBaseURL    string
}

// ServerConfig is the status server configuration
type ServerConfig struct {
	Enabled       bool
	StatusAddress string
}

// AccountConfig is one configured mailbox as written in the config file
type AccountConfig struct {
	ID       string `mapstructure:"id"`
	Owner    string `mapstructure:"owner"`
	Address  string `mapstructure:"address"`
	Provider string `mapstructure:"provider"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	TLS      *bool  `mapstructure:"tls"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
	Active   *bool  `mapstructure:"active"`
}

// UseTLS defaults to implicit TLS unless explicitly disabled
func (a AccountConfig) UseTLS() bool {
	return a.TLS == nil || *a.TLS
}

// IsActive defaults to true unless explicitly disabled
func (a AccountConfig) IsActive() bool {
	return a.Active == nil || *a.Active
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		Profile:     c.GetString("bedrock.profile"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetSync returns the session configuration
func (c *Config) GetSync() SyncConfig {
	return SyncConfig{
		Mailbox:              c.GetString("sync.mailbox"),
		BackfillWindow:       c.GetInt("sync.backfill_window"),
		BatchSize:            c.GetInt("sync.batch_size"),
		PollInterval:         c.durationOr("sync.poll_interval", 30*time.Second),
		IdleRefresh:          c.durationOr("sync.idle_refresh", 20*time.Minute),
		ReconnectBaseDelay:   c.durationOr("sync.reconnect_base_delay", 5*time.Second),
		ReconnectMaxDelay:    c.durationOr("sync.reconnect_max_delay", 5*time.Minute),
		MaxConsecutiveErrors: c.GetInt("sync.max_consecutive_errors"),
		HandshakeTimeout:     c.durationOr("sync.handshake_timeout", 30*time.Second),
		FetchTimeout:         c.durationOr("sync.fetch_timeout", time.Minute),
		ProcessTimeout:       c.durationOr("sync.process_timeout", 90*time.Second),
	}
}

// GetClassifier returns the classification engine configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		ModelEnabled:       c.GetBool("classifier.model_enabled"),
		MaxConcurrent:      c.GetInt("classifier.max_concurrent"),
		Timeout:            c.durationOr("classifier.timeout", 15*time.Second),
		ProbeTimeout:       c.durationOr("classifier.probe_timeout", 5*time.Second),
		ReprobeInterval:    c.durationOr("classifier.reprobe_interval", 5*time.Minute),
		FallbackConfidence: c.GetFloat64("classifier.fallback_confidence"),
		WhitelistedDomains: c.GetStringSlice("classifier.whitelisted_domains"),
		MaxBodySize:        c.GetInt("classifier.max_body_size"),
	}
}

// GetReply returns the reply drafting configuration
func (c *Config) GetReply() ReplyConfig {
	return ReplyConfig{
		MaxAttempts: c.GetInt("reply.max_attempts"),
		MinLength:   c.GetInt("reply.min_length"),
		MaxLength:   c.GetInt("reply.max_length"),
		Timeout:     c.durationOr("reply.timeout", 30*time.Second),
	}
}

// GetStore returns the message store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:             c.GetString("store.type"),
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
		PostgresDSN:      c.GetString("store.postgres_dsn"),
		Retention:        c.durationOr("store.retention", 0),
		CleanupFrequency: c.durationOr("store.cleanup_frequency", time.Hour),
	}
}

// GetIndex returns the search index configuration
func (c *Config) GetIndex() IndexConfig {
	return IndexConfig{
		Type:    c.GetString("index.type"),
		URL:     c.GetString("index.url"),
		Name:    c.GetString("index.name"),
		Timeout: c.durationOr("index.timeout", 10*time.Second),
	}
}

// GetNotify returns the notification channel configuration
func (c *Config) GetNotify() NotifyConfig {
	return NotifyConfig{
		Timeout:         c.durationOr("notify.timeout", 10*time.Second),
		WebhookURL:      c.GetString("notify.webhook.url"),
		SlackWebhookURL: c.GetString("notify.slack.webhook_url"),
		SMTP: SMTPNotifyConfig{
			Host:     c.GetString("notify.smtp.host"),
			Port:     c.GetInt("notify.smtp.port"),
			TLS:      c.GetBool("notify.smtp.tls"),
			Insecure: c.GetBool("notify.smtp.insecure"),
			Username: c.GetString("notify.smtp.username"),
			Password: c.GetString("notify.smtp.password"),
			From:     c.GetString("notify.smtp.from"),
			To:       c.GetStringSlice("notify.smtp.to"),
		},
		LinksBaseURL: c.GetString("notify.links.base_url"),
	}
}

// GetServer returns the status server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		Enabled:       c.GetBool("server.enabled"),
		StatusAddress: c.GetString("server.status_address"),
	}
}

// GetAccounts returns the configured accounts
func (c *Config) GetAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig
	if err := c.v.UnmarshalKey("accounts", &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	seen := make(map[string]bool, len(accounts))
	for i := range accounts {
		acc := &accounts[i]
		if acc.ID == "" {
			acc.ID = strings.ToLower(acc.Address)
		}
		if acc.ID == "" {
			return nil, fmt.Errorf("account %d has neither id nor address", i)
		}
		if seen[acc.ID] {
			return nil, fmt.Errorf("duplicate account id: %s", acc.ID)
		}
		seen[acc.ID] = true
		if acc.Username == "" {
			acc.Username = acc.Address
		}
		if acc.Port == 0 {
			if acc.UseTLS() {
				acc.Port = 993
			} else {
				acc.Port = 143
			}
		}
	}
	return accounts, nil
}
