package mailsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/logging"
)

// Manager starts and stops session actors, one per account
type Manager struct {
	dialer   core.MailboxDialer
	pipeline *Pipeline
	accounts core.AccountRepository
	registry *Registry
	cfg      config.SyncConfig
	logger   *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a connection manager
func NewManager(
	dialer core.MailboxDialer,
	pipeline *Pipeline,
	accounts core.AccountRepository,
	registry *Registry,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dialer:   dialer,
		pipeline: pipeline,
		accounts: accounts,
		registry: registry,
		cfg:      withDefaults(cfg),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func withDefaults(cfg config.SyncConfig) config.SyncConfig {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.BackfillWindow <= 0 {
		cfg.BackfillWindow = 150
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.IdleRefresh <= 0 {
		cfg.IdleRefresh = 20 * time.Minute
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 5 * time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 5 * time.Minute
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 10
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Minute
	}
	return cfg
}

// Connect starts a session for the account. It is a no-op when a live
// session already exists; a failed or stopped session is replaced. The
// displaced session is torn down after the lock is released.
func (m *Manager) Connect(ctx context.Context, account *core.Account) bool {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	if existing := m.registry.Get(account.ID); existing != nil && existing.Alive() {
		m.mu.Unlock()
		return false
	}

	acc := *account
	logger := logging.ForAccount(m.logger, acc.ID, acc.Address)
	sess := newSession(&acc, m.dialer, m.pipeline, m.accounts, m.cfg, logger)

	prev := m.registry.Replace(acc.ID, sess)
	if prev != nil {
		prev.cancelRun()
	}
	if err := m.accounts.UpdateStatus(ctx, acc.ID, core.AccountPending, ""); err != nil {
		logger.Warn("Failed to update account status", zap.Error(err))
	}
	sess.start(m.ctx)
	m.mu.Unlock()

	logger.Info("Session started")
	if prev != nil {
		prev.wait()
	}
	return true
}

// Disconnect stops the account's session, cancelling any pending reconnect,
// and waits for it to exit. It is a no-op when no session exists.
func (m *Manager) Disconnect(accountID string) bool {
	m.mu.Lock()
	sess := m.registry.Get(accountID)
	if sess == nil || !m.registry.Remove(accountID, sess) {
		m.mu.Unlock()
		return false
	}
	sess.cancelRun()
	m.mu.Unlock()

	sess.wait()
	sess.logger.Info("Session disconnected")
	return true
}

// DisconnectAll stops every session
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	var removed []*Session
	for _, sess := range m.registry.List() {
		if m.registry.Remove(sess.AccountID(), sess) {
			sess.cancelRun()
			removed = append(removed, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range removed {
		sess.wait()
	}
}

// Session returns the registered session for an account
func (m *Manager) Session(accountID string) *Session {
	return m.registry.Get(accountID)
}

// Sessions returns every registered session
func (m *Manager) Sessions() []*Session {
	return m.registry.List()
}

// Stop stops every session and refuses new ones
func (m *Manager) Stop() {
	m.DisconnectAll()
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
}
