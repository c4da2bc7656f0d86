package mailsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

const reindexPageSize = 100

// ModelInfo reports the state of the generative model tier
type ModelInfo interface {
	ModelName() string
	ModelAvailable() bool
}

// AccountStatus is the observable state of one account
type AccountStatus struct {
	ID           string             `json:"id"`
	Address      string             `json:"address"`
	Active       bool               `json:"active"`
	Status       core.AccountStatus `json:"status"`
	Session      State              `json:"session_state"`
	Connected    bool               `json:"connected"`
	Progress     *core.SyncProgress `json:"progress,omitempty"`
	LastSyncAt   time.Time          `json:"last_sync_at"`
	LastActivity time.Time          `json:"last_activity"`
	Stats        core.AccountStats  `json:"stats"`
}

// ModelStatus describes the model tier
type ModelStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Status is the aggregate pipeline status
type Status struct {
	Accounts  []AccountStatus `json:"accounts"`
	Connected int             `json:"connected"`
	Total     int             `json:"total"`
	Model     ModelStatus     `json:"model"`
}

// Orchestrator owns the set of account sessions and the maintenance
// operations around them
type Orchestrator struct {
	accounts   core.AccountRepository
	messages   core.MessageRepository
	indexer    core.SearchIndexer
	classifier Classifier
	model      ModelInfo
	manager    *Manager
	pipeline   *Pipeline
	logger     *zap.Logger
}

// NewOrchestrator creates a sync orchestrator. indexer and model may be nil.
func NewOrchestrator(
	accounts core.AccountRepository,
	messages core.MessageRepository,
	indexer core.SearchIndexer,
	classifier Classifier,
	model ModelInfo,
	manager *Manager,
	pipeline *Pipeline,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		accounts:   accounts,
		messages:   messages,
		indexer:    indexer,
		classifier: classifier,
		model:      model,
		manager:    manager,
		pipeline:   pipeline,
		logger:     logger,
	}
}

// Start connects every active account
func (o *Orchestrator) Start(ctx context.Context) error {
	accounts, err := o.accounts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active accounts: %w", err)
	}

	started := 0
	for _, acc := range accounts {
		if o.manager.Connect(ctx, acc) {
			started++
		}
	}
	o.logger.Info("Sync orchestrator started",
		zap.Int("active_accounts", len(accounts)),
		zap.Int("sessions_started", started))
	return nil
}

// Stop tears down every session and waits for in-flight notifications
func (o *Orchestrator) Stop() error {
	o.manager.Stop()
	o.pipeline.Wait()
	o.logger.Info("Sync orchestrator stopped")
	return nil
}

// Events returns the processed-message event stream
func (o *Orchestrator) Events() <-chan core.ProcessedEvent {
	return o.pipeline.Events()
}

// Status returns connectivity, progress and error counts for every account
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	accounts, err := o.accounts.List(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	st := Status{Accounts: make([]AccountStatus, 0, len(accounts))}
	for _, acc := range accounts {
		as := AccountStatus{
			ID:         acc.ID,
			Address:    acc.Address,
			Active:     acc.Active,
			Status:     acc.Status,
			Session:    StateDisconnected,
			LastSyncAt: acc.LastSyncAt,
			Stats:      acc.Stats,
		}
		if acc.Active {
			st.Total++
		} else {
			as.Session = StateDisabled
		}
		if sess := o.manager.Session(acc.ID); sess != nil {
			snap := sess.Snapshot()
			as.Session = snap.State
			as.Connected = snap.Connected
			as.Progress = snap.Progress
			as.LastActivity = snap.LastActivity
		}
		if as.Connected {
			st.Connected++
		}
		st.Accounts = append(st.Accounts, as)
	}

	st.Model = ModelStatus{Name: string(core.SourceRules)}
	if o.model != nil {
		st.Model = ModelStatus{Name: o.model.ModelName(), Available: o.model.ModelAvailable()}
	}
	return st, nil
}

// SyncAll starts sessions for active accounts without a live one. Failed
// accounts get their error count cleared and are retried.
func (o *Orchestrator) SyncAll(ctx context.Context) (int, error) {
	accounts, err := o.accounts.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active accounts: %w", err)
	}

	started := 0
	for _, acc := range accounts {
		if acc.Status == core.AccountFailed {
			if err := o.accounts.ResetErrors(ctx, acc.ID); err != nil {
				o.logger.Warn("Failed to reset account errors", zap.String("account_id", acc.ID), zap.Error(err))
			}
		}
		if o.manager.Connect(ctx, acc) {
			started++
		}
	}
	o.logger.Info("Sync all requested", zap.Int("sessions_started", started))
	return started, nil
}

// ForceResync clears persisted messages, tears down every session and
// starts again from a fresh backfill
func (o *Orchestrator) ForceResync(ctx context.Context) error {
	o.logger.Warn("Forcing full resync")
	o.manager.DisconnectAll()

	if err := o.messages.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear stored messages: %w", err)
	}
	return o.Start(ctx)
}

// Activate marks the account active and connects it
func (o *Orchestrator) Activate(ctx context.Context, accountID string) error {
	if err := o.accounts.SetActive(ctx, accountID, true); err != nil {
		return fmt.Errorf("failed to activate account %s: %w", accountID, err)
	}
	acc, err := o.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	o.manager.Connect(ctx, acc)
	return nil
}

// Deactivate disconnects the account and marks it disabled
func (o *Orchestrator) Deactivate(ctx context.Context, accountID string) error {
	if _, err := o.accounts.Get(ctx, accountID); err != nil {
		return fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	o.manager.Disconnect(accountID)
	if err := o.accounts.SetActive(ctx, accountID, false); err != nil {
		return fmt.Errorf("failed to deactivate account %s: %w", accountID, err)
	}
	return nil
}

// Reclassify runs the engine again on a stored message and persists the
// new classification and insights
func (o *Orchestrator) Reclassify(ctx context.Context, canonicalID string) (*core.Classification, error) {
	msg, err := o.messages.FindByCanonicalID(ctx, canonicalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", canonicalID, err)
	}

	cls := o.classifier.Classify(ctx, msg)
	if err := o.messages.UpdateClassification(ctx, canonicalID, &cls); err != nil {
		return nil, fmt.Errorf("failed to update classification: %w", err)
	}
	msg.Classification = &cls

	if o.indexer != nil {
		if err := o.indexer.Index(ctx, msg); err != nil {
			o.logger.Warn("Failed to index reclassified message",
				zap.String("message_id", canonicalID),
				zap.Error(err))
		}
	}
	return &cls, nil
}

// Reindex pages through stored messages and bulk upserts them into the
// search index
func (o *Orchestrator) Reindex(ctx context.Context) (int, error) {
	if o.indexer == nil {
		return 0, errors.New("no search index configured")
	}

	total := 0
	for offset := 0; ; offset += reindexPageSize {
		page, err := o.messages.Query(ctx, core.QueryOptions{Limit: reindexPageSize, Offset: offset})
		if err != nil {
			return total, fmt.Errorf("failed to read messages at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		if err := o.indexer.BulkIndex(ctx, page); err != nil {
			return total, fmt.Errorf("failed to index messages at offset %d: %w", offset, err)
		}
		total += len(page)
		if len(page) < reindexPageSize {
			break
		}
	}

	o.logger.Info("Reindex complete", zap.Int("documents", total))
	return total, nil
}
