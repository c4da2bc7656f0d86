package mailsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// State is the lifecycle state of a session actor
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSyncing      State = "syncing"
	StateWatching     State = "watching"
	StateError        State = "error"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateDisabled     State = "disabled"
)

// Snapshot is a point-in-time view of a session
type Snapshot struct {
	State        State              `json:"state"`
	Connected    bool               `json:"connected"`
	Errors       int                `json:"consecutive_errors"`
	LastActivity time.Time          `json:"last_activity"`
	Reconnecting bool               `json:"reconnecting"`
	Progress     *core.SyncProgress `json:"progress,omitempty"`
}

// Session is the actor that owns one account's mailbox connection. All
// protocol work happens on its own goroutine, so backfill always finishes
// before change notifications are handled.
type Session struct {
	account  *core.Account
	mailbox  string
	dialer   core.MailboxDialer
	pipeline *Pipeline
	accounts core.AccountRepository
	cfg      config.SyncConfig
	backoff  Backoff
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.RWMutex
	state        State
	connected    bool
	errors       int
	lastActivity time.Time
	reconnecting bool
	progress     *core.SyncProgress
}

func newSession(
	account *core.Account,
	dialer core.MailboxDialer,
	pipeline *Pipeline,
	accounts core.AccountRepository,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *Session {
	mailbox := account.Mailbox
	if mailbox == "" {
		mailbox = cfg.Mailbox
	}
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Session{
		account:  account,
		mailbox:  mailbox,
		dialer:   dialer,
		pipeline: pipeline,
		accounts: accounts,
		cfg:      cfg,
		backoff:  Backoff{Base: cfg.ReconnectBaseDelay, Max: cfg.ReconnectMaxDelay},
		logger:   logger,
		done:     make(chan struct{}),
		state:    StateDisconnected,
	}
}

// AccountID returns the owning account id
func (s *Session) AccountID() string {
	return s.account.ID
}

// Account returns the account the session was started with
func (s *Session) Account() *core.Account {
	return s.account
}

// Snapshot returns the current session state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		State:        s.state,
		Connected:    s.connected,
		Errors:       s.errors,
		LastActivity: s.lastActivity,
		Reconnecting: s.reconnecting,
	}
	if s.progress != nil {
		p := *s.progress
		snap.Progress = &p
	}
	return snap
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Alive reports whether the actor goroutine is still running
func (s *Session) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed once the actor exits
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	go s.run(ctx)
}

// cancelRun cancels the actor, including any pending reconnect wait,
// without waiting for it to exit
func (s *Session) cancelRun() {
	if s.cancel != nil {
		s.cancel()
	}
}

// wait blocks until the actor has exited and closed its connection
func (s *Session) wait() {
	<-s.done
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) setProgress(p *core.SyncProgress) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

func (s *Session) addProgress(n int) {
	s.mu.Lock()
	if s.progress != nil {
		s.progress.Processed += n
	}
	s.mu.Unlock()
}

// updateStatus mirrors the session state onto the account record
func (s *Session) updateStatus(ctx context.Context, status core.AccountStatus, lastErr string) {
	if err := s.accounts.UpdateStatus(context.WithoutCancel(ctx), s.account.ID, status, lastErr); err != nil {
		s.logger.Warn("Failed to update account status", zap.String("status", string(status)), zap.Error(err))
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session panicked", zap.Any("panic", r))
			s.setState(StateFailed)
			s.updateStatus(ctx, core.AccountFailed, fmt.Sprintf("session panicked: %v", r))
		}
	}()

	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.mu.Lock()
			s.connected = false
			s.reconnecting = false
			if s.state != StateFailed {
				s.state = StateDisconnected
			}
			s.mu.Unlock()
			s.logger.Info("Session stopped")
			return
		}
		if err == nil {
			err = errors.New("session ended unexpectedly")
		}

		s.mu.Lock()
		s.errors++
		attempt := s.errors
		s.connected = false
		s.progress = nil
		s.state = StateError
		s.mu.Unlock()

		if recErr := s.accounts.RecordError(context.WithoutCancel(ctx), s.account.ID, err.Error()); recErr != nil {
			s.logger.Warn("Failed to record account error", zap.Error(recErr))
		}

		if s.cfg.MaxConsecutiveErrors > 0 && attempt > s.cfg.MaxConsecutiveErrors {
			s.setState(StateFailed)
			s.updateStatus(ctx, core.AccountFailed, err.Error())
			s.logger.Error("Account failed, manual reactivation required",
				zap.Int("consecutive_errors", attempt),
				zap.Error(err))
			return
		}

		delay := s.backoff.Delay(attempt)
		s.mu.Lock()
		s.state = StateReconnecting
		s.reconnecting = true
		s.mu.Unlock()
		s.updateStatus(ctx, core.AccountError, err.Error())
		s.logger.Warn("Session error, reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}
}

// runOnce connects, backfills and watches until an error or cancellation
func (s *Session) runOnce(ctx context.Context) error {
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	conn, err := s.dialer.Dial(dialCtx, s.account)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Failed to close connection", zap.Error(err))
		}
	}()

	s.mu.Lock()
	s.connected = true
	s.errors = 0
	s.state = StateConnected
	s.lastActivity = time.Now()
	s.mu.Unlock()
	if err := s.accounts.ResetErrors(ctx, s.account.ID); err != nil {
		s.logger.Warn("Failed to reset account errors", zap.Error(err))
	}
	s.updateStatus(ctx, core.AccountConnected, "")
	s.logger.Info("Connected", zap.String("mailbox", s.mailbox))

	total, err := s.backfill(ctx, conn)
	if err != nil {
		return err
	}
	return s.watch(ctx, conn, total)
}

// backfill processes the most recent window of the mailbox and returns the
// message count it saw
func (s *Session) backfill(ctx context.Context, conn core.MailboxConn) (uint32, error) {
	s.setState(StateSyncing)
	s.updateStatus(ctx, core.AccountSyncing, "")

	selCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	total, err := conn.Select(selCtx, s.mailbox, true)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to open mailbox for backfill: %w", err)
	}
	if total == 0 {
		s.logger.Info("Mailbox empty, nothing to backfill")
		return 0, nil
	}

	window := uint32(s.cfg.BackfillWindow)
	if window == 0 {
		window = 150
	}
	batch := uint32(s.cfg.BatchSize)
	if batch == 0 {
		batch = 25
	}
	start := uint32(1)
	if total > window {
		start = total - window + 1
	}

	s.setProgress(&core.SyncProgress{Total: int(total - start + 1)})
	defer s.setProgress(nil)

	stored := 0
	for from := start; from <= total; from += batch {
		to := from + batch - 1
		if to > total {
			to = total
		}
		n, err := s.fetchAndProcess(ctx, func(ctx context.Context) ([]*core.RawMessage, error) {
			return conn.FetchRange(ctx, from, to)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to backfill %d:%d: %w", from, to, err)
		}
		stored += n
	}

	s.logger.Info("Backfill complete",
		zap.Uint32("total", total),
		zap.Uint32("window_start", start),
		zap.Int("stored", stored))
	return total, nil
}

// watch reopens the mailbox read-write and processes arrivals until an
// error or cancellation
func (s *Session) watch(ctx context.Context, conn core.MailboxConn, seen uint32) error {
	selCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	count, err := conn.Select(selCtx, s.mailbox, false)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open mailbox for watching: %w", err)
	}

	s.setState(StateWatching)
	s.updateStatus(ctx, core.AccountWatching, "")
	idle := conn.SupportsIdle()
	s.logger.Info("Watching mailbox", zap.Bool("idle", idle), zap.Uint32("count", count))

	if err := s.handleUpdate(ctx, conn, seen, core.MailboxUpdate{Count: count}); err != nil {
		return err
	}

	for {
		var upd core.MailboxUpdate
		if idle {
			upd, err = conn.WaitForChange(ctx, s.cfg.IdleRefresh)
		} else {
			timer := time.NewTimer(s.cfg.PollInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			pollCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
			upd, err = conn.Poll(pollCtx)
			cancel()
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to wait for changes: %w", err)
		}
		s.touch()

		if err := s.handleUpdate(ctx, conn, count, upd); err != nil {
			return err
		}
		count = upd.Count
	}
}

// handleUpdate fetches new arrivals when the count grew. Once messages were
// expunged sequence numbers have shifted, so it resynchronises with an
// unseen search instead, even when the count is unchanged.
func (s *Session) handleUpdate(ctx context.Context, conn core.MailboxConn, prev uint32, upd core.MailboxUpdate) error {
	cur := upd.Count
	switch {
	case cur > prev && upd.Expunged == 0:
		_, err := s.fetchAndProcess(ctx, func(ctx context.Context) ([]*core.RawMessage, error) {
			return conn.FetchRange(ctx, prev+1, cur)
		})
		if err != nil {
			return fmt.Errorf("failed to fetch new messages: %w", err)
		}
	case cur < prev || upd.Expunged > 0:
		searchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		unseen, err := conn.SearchUnseen(searchCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to search unseen messages: %w", err)
		}
		_, err = s.fetchAndProcess(ctx, func(ctx context.Context) ([]*core.RawMessage, error) {
			return conn.FetchSeqNums(ctx, unseen)
		})
		if err != nil {
			return fmt.Errorf("failed to fetch unseen messages: %w", err)
		}
	}
	return nil
}

func (s *Session) fetchAndProcess(ctx context.Context, fetch func(context.Context) ([]*core.RawMessage, error)) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	raws, err := fetch(fetchCtx)
	cancel()
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, raw := range raws {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}
		if s.pipeline.Process(ctx, s, raw) {
			stored++
		}
		s.addProgress(1)
		s.touch()
	}
	return stored, nil
}
