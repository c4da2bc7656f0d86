package factory

import (
	"fmt"

	"github.com/mikey/llm-mail-pipeline/internal/adapters/store"
	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/credential"
	"go.uber.org/zap"
)

// AccountFactory builds the account repository from configuration
type AccountFactory struct {
	cfg      *config.Config
	resolver *credential.Resolver
	logger   *zap.Logger
}

// NewAccountFactory creates a new account factory
func NewAccountFactory(cfg *config.Config, resolver *credential.Resolver, logger *zap.Logger) *AccountFactory {
	return &AccountFactory{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger,
	}
}

// CreateAccountRepository loads configured accounts. An account whose
// credential cannot be resolved is kept but deactivated.
func (f *AccountFactory) CreateAccountRepository() (core.AccountRepository, error) {
	accountCfgs, err := f.cfg.GetAccounts()
	if err != nil {
		return nil, err
	}
	defaultMailbox := f.cfg.GetSync().Mailbox

	accounts := make([]*core.Account, 0, len(accountCfgs))
	for _, ac := range accountCfgs {
		acc := &core.Account{
			ID:       ac.ID,
			Owner:    ac.Owner,
			Address:  ac.Address,
			Provider: ac.Provider,
			Host:     ac.Host,
			Port:     ac.Port,
			TLS:      ac.UseTLS(),
			Username: ac.Username,
			Mailbox:  ac.Mailbox,
			Active:   ac.IsActive(),
			Status:   core.AccountPending,
		}
		if acc.Mailbox == "" {
			acc.Mailbox = defaultMailbox
		}
		if acc.Host == "" {
			acc.Active = false
			acc.Stats.LastError = "no IMAP host configured"
		}

		if acc.Active {
			password, err := f.resolver.Resolve(ac.Password)
			if err != nil {
				f.logger.Error("Deactivating account with unresolved credential",
					zap.String("account_id", acc.ID),
					zap.Error(err))
				acc.Active = false
				acc.Stats.LastError = fmt.Sprintf("credential: %v", err)
			}
			acc.Password = password
		}

		accounts = append(accounts, acc)
	}

	f.logger.Info("Loaded accounts", zap.Int("count", len(accounts)))
	return store.NewMemoryAccounts(accounts), nil
}
