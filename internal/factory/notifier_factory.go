package factory

import (
	"net/http"

	"github.com/mikey/llm-mail-pipeline/internal/adapters/notifier"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/notify"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
	"go.uber.org/zap"
)

// NotifierFactory creates notification channels and the dispatcher
type NotifierFactory struct {
	cfg    *config.Config
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, text *utils.TextProcessor, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		text:   text,
		logger: logger,
	}
}

// CreateChannels builds every channel; unconfigured ones report disabled
func (f *NotifierFactory) CreateChannels() []core.NotificationChannel {
	notifyCfg := f.cfg.GetNotify()
	builder := notifier.NewBuilder(notifyCfg.LinksBaseURL, f.text)
	client := &http.Client{Timeout: notifyCfg.Timeout}

	return []core.NotificationChannel{
		notifier.NewWebhookChannel(notifyCfg.WebhookURL, client, builder, f.logger),
		notifier.NewSlackChannel(notifyCfg.SlackWebhookURL, client, builder, f.logger),
		notifier.NewSMTPChannel(notifyCfg.SMTP, builder, f.logger),
	}
}

// CreateDispatcher builds the dispatcher over the enabled channels
func (f *NotifierFactory) CreateDispatcher() *notify.Dispatcher {
	return notify.NewDispatcher(f.CreateChannels(), f.cfg.GetNotify().Timeout, f.logger)
}
