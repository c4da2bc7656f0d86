package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// MemoryAccounts is an in-memory AccountRepository seeded from configuration
type MemoryAccounts struct {
	accounts map[string]*core.Account
	mu       sync.RWMutex
}

// NewMemoryAccounts creates an account repository holding copies of accounts
func NewMemoryAccounts(accounts []*core.Account) *MemoryAccounts {
	r := &MemoryAccounts{accounts: make(map[string]*core.Account, len(accounts))}
	for _, acc := range accounts {
		c := *acc
		if c.Status == "" {
			c.Status = core.AccountPending
		}
		if !c.Active {
			c.Status = core.AccountDisabled
		}
		r.accounts[c.ID] = &c
	}
	return r
}

// ListActive returns active accounts ordered by id
func (r *MemoryAccounts) ListActive(ctx context.Context) ([]*core.Account, error) {
	return r.list(true), nil
}

// List returns every account ordered by id
func (r *MemoryAccounts) List(ctx context.Context) ([]*core.Account, error) {
	return r.list(false), nil
}

func (r *MemoryAccounts) list(activeOnly bool) []*core.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		if activeOnly && !acc.Active {
			continue
		}
		c := *acc
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one account
func (r *MemoryAccounts) Get(ctx context.Context, id string) (*core.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	c := *acc
	return &c, nil
}

// SetActive flips the activation flag; activation clears a failed state
func (r *MemoryAccounts) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(id, func(acc *core.Account) {
		acc.Active = active
		if active {
			acc.Status = core.AccountPending
			acc.Stats.ErrorCount = 0
		} else {
			acc.Status = core.AccountDisabled
		}
	})
}

// UpdateStatus records the lifecycle status and, when set, the last error
func (r *MemoryAccounts) UpdateStatus(ctx context.Context, id string, status core.AccountStatus, lastErr string) error {
	return r.update(id, func(acc *core.Account) {
		acc.Status = status
		if lastErr != "" {
			acc.Stats.LastError = lastErr
		}
	})
}

// RecordSync adds processed messages to the sync statistics
func (r *MemoryAccounts) RecordSync(ctx context.Context, id string, processed int64, at time.Time) error {
	return r.update(id, func(acc *core.Account) {
		acc.Stats.SyncCount += processed
		acc.LastSyncAt = at
	})
}

// RecordError increments the error statistics
func (r *MemoryAccounts) RecordError(ctx context.Context, id string, errMsg string) error {
	return r.update(id, func(acc *core.Account) {
		acc.Stats.ErrorCount++
		acc.Stats.LastError = errMsg
	})
}

// ResetErrors clears the consecutive error count after a successful connect
func (r *MemoryAccounts) ResetErrors(ctx context.Context, id string) error {
	return r.update(id, func(acc *core.Account) {
		acc.Stats.ErrorCount = 0
	})
}

func (r *MemoryAccounts) update(id string, fn func(*core.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[id]
	if !ok {
		return core.ErrNotFound
	}
	fn(acc)
	return nil
}
