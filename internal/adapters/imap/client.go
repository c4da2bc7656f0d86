package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// Dialer opens authenticated IMAP connections with go-imap v2
type Dialer struct {
	handshakeTimeout time.Duration
	tlsConfig        *tls.Config
	logger           *zap.Logger
}

// NewDialer creates a new IMAP dialer
func NewDialer(handshakeTimeout time.Duration, logger *zap.Logger) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		handshakeTimeout: handshakeTimeout,
		logger:           logger,
	}
}

// Dial connects, greets and logs in. Implicit TLS is used when the account
// asks for it, STARTTLS otherwise.
func (d *Dialer) Dial(ctx context.Context, account *core.Account) (core.MailboxConn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.handshakeTimeout)
	defer cancel()

	addr := net.JoinHostPort(account.Host, strconv.Itoa(account.Port))
	tlsConfig := d.tlsConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: account.Host}
	}

	dialer := &net.Dialer{}
	var raw net.Conn
	var err error
	if account.TLS {
		raw, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		raw, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	// Closing the raw connection unblocks every handshake step, STARTTLS
	// included, once the handshake timeout or ctx expires
	stop := context.AfterFunc(ctx, func() { raw.Close() })
	defer stop()

	c, err := newConn(raw, tlsConfig, !account.TLS, d.logger.With(
		zap.String("account_id", account.ID),
		zap.String("host", account.Host)))
	if err != nil {
		return nil, fmt.Errorf("failed to negotiate STARTTLS with %s: %w", addr, ctxErr(ctx, err))
	}

	if err := c.client.WaitGreeting(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to read greeting from %s: %w", addr, ctxErr(ctx, err))
	}
	if err := c.client.Login(account.Username, account.Password).Wait(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to login as %s: %w", account.Username, ctxErr(ctx, err))
	}
	idle := c.SupportsIdle()
	if !stop() {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, ctx.Err())
	}

	c.logger.Debug("IMAP session established", zap.Bool("idle", idle))
	return c, nil
}

// Conn is one authenticated IMAP connection
type Conn struct {
	client  *imapclient.Client
	logger  *zap.Logger
	updates chan struct{}

	// doneTimeout bounds how long the server may take to end IDLE
	doneTimeout time.Duration

	mu          sync.Mutex
	numMessages uint32
	expunged    uint32
}

// newConn wraps raw in an IMAP client, negotiating STARTTLS when asked
func newConn(raw net.Conn, tlsConfig *tls.Config, startTLS bool, logger *zap.Logger) (*Conn, error) {
	c := &Conn{
		updates:     make(chan struct{}, 1),
		logger:      logger,
		doneTimeout: 10 * time.Second,
	}
	opts := &imapclient.Options{
		TLSConfig: tlsConfig,
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: c.handleMailbox,
			Expunge: c.handleExpunge,
		},
	}

	if !startTLS {
		c.client = imapclient.New(raw, opts)
		return c, nil
	}
	client, err := imapclient.NewStartTLS(raw, opts)
	if err != nil {
		raw.Close()
		return nil, err
	}
	c.client = client
	return c, nil
}

func (c *Conn) handleMailbox(data *imapclient.UnilateralDataMailbox) {
	if data.NumMessages == nil {
		return
	}
	c.mu.Lock()
	c.numMessages = *data.NumMessages
	c.mu.Unlock()
	c.notify()
}

func (c *Conn) handleExpunge(seqNum uint32) {
	c.mu.Lock()
	if c.numMessages > 0 {
		c.numMessages--
	}
	c.expunged++
	c.mu.Unlock()
	c.notify()
}

func (c *Conn) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// update returns the current count and the expunges seen since the last
// update
func (c *Conn) update() core.MailboxUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	upd := core.MailboxUpdate{Count: c.numMessages, Expunged: c.expunged}
	c.expunged = 0
	return upd
}

// Select opens a mailbox and returns its message count
func (c *Conn) Select(ctx context.Context, mailbox string, readOnly bool) (uint32, error) {
	stop := context.AfterFunc(ctx, func() { c.client.Close() })
	defer stop()

	data, err := c.client.Select(mailbox, &goimap.SelectOptions{ReadOnly: readOnly}).Wait()
	if err != nil {
		return 0, fmt.Errorf("failed to select %s: %w", mailbox, ctxErr(ctx, err))
	}

	c.mu.Lock()
	c.numMessages = data.NumMessages
	c.expunged = 0
	c.mu.Unlock()
	// drop notifications from the previous selection
	select {
	case <-c.updates:
	default:
	}
	return data.NumMessages, nil
}

// FetchRange fetches messages from..to by sequence number
func (c *Conn) FetchRange(ctx context.Context, from, to uint32) ([]*core.RawMessage, error) {
	if from == 0 || to < from {
		return nil, nil
	}
	var set goimap.SeqSet
	set.AddRange(from, to)
	return c.fetch(ctx, set)
}

// FetchSeqNums fetches the given sequence numbers
func (c *Conn) FetchSeqNums(ctx context.Context, seqNums []uint32) ([]*core.RawMessage, error) {
	if len(seqNums) == 0 {
		return nil, nil
	}
	return c.fetch(ctx, goimap.SeqSetNum(seqNums...))
}

func (c *Conn) fetch(ctx context.Context, set goimap.SeqSet) ([]*core.RawMessage, error) {
	stop := context.AfterFunc(ctx, func() { c.client.Close() })
	defer stop()

	section := &goimap.FetchItemBodySection{Peek: true}
	cmd := c.client.Fetch(set, &goimap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*goimap.FetchItemBodySection{section},
	})

	var out []*core.RawMessage
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			c.logger.Warn("Failed to collect fetched message",
				zap.Uint32("seq_num", msg.SeqNum),
				zap.Error(err))
			continue
		}
		out = append(out, toRawMessage(buf, buf.FindBodySection(section)))
	}

	if err := cmd.Close(); err != nil {
		return out, fmt.Errorf("failed to fetch %s: %w", set.String(), ctxErr(ctx, err))
	}
	return out, nil
}

// SearchUnseen returns the sequence numbers of unseen messages
func (c *Conn) SearchUnseen(ctx context.Context) ([]uint32, error) {
	stop := context.AfterFunc(ctx, func() { c.client.Close() })
	defer stop()

	data, err := c.client.Search(&goimap.SearchCriteria{
		NotFlag: []goimap.Flag{goimap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen: %w", ctxErr(ctx, err))
	}
	return data.AllSeqNums(), nil
}

// SupportsIdle reports whether the server advertises IDLE
func (c *Conn) SupportsIdle() bool {
	return c.client.Caps().Has(goimap.CapIdle)
}

// WaitForChange runs IDLE until the server reports a mailbox update, the
// refresh interval elapses or ctx is done. The connection is closed when ctx
// ends or the server does not acknowledge DONE in time.
func (c *Conn) WaitForChange(ctx context.Context, refresh time.Duration) (core.MailboxUpdate, error) {
	if refresh <= 0 {
		refresh = 25 * time.Minute
	}

	stop := context.AfterFunc(ctx, func() { c.client.Close() })
	defer stop()

	idle, err := c.client.Idle()
	if err != nil {
		return c.update(), fmt.Errorf("failed to start idle: %w", ctxErr(ctx, err))
	}

	timer := time.NewTimer(refresh)
	defer timer.Stop()

	var waitErr error
	select {
	case <-c.updates:
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	watchdog := time.AfterFunc(c.doneTimeout, func() {
		c.logger.Warn("Server did not end IDLE, closing connection")
		c.client.Close()
	})
	defer watchdog.Stop()

	if err := idle.Close(); err != nil && waitErr == nil {
		return c.update(), fmt.Errorf("failed to stop idle: %w", err)
	}
	if err := idle.Wait(); err != nil && waitErr == nil {
		return c.update(), fmt.Errorf("idle failed: %w", err)
	}
	return c.update(), waitErr
}

// Poll sends NOOP so pending EXISTS/EXPUNGE responses are delivered
func (c *Conn) Poll(ctx context.Context) (core.MailboxUpdate, error) {
	stop := context.AfterFunc(ctx, func() { c.client.Close() })
	defer stop()

	if err := c.client.Noop().Wait(); err != nil {
		return c.update(), fmt.Errorf("failed to poll: %w", ctxErr(ctx, err))
	}
	// drained by the count comparison of the caller
	select {
	case <-c.updates:
	default:
	}
	return c.update(), nil
}

// Close logs out and closes the connection
func (c *Conn) Close() error {
	done := make(chan error, 1)
	go func() { done <- c.client.Logout().Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.logger.Debug("Logout timed out, closing connection")
	}
	return c.client.Close()
}

// ctxErr prefers the context error when a command failed because the
// connection was closed on cancellation
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w (%v)", ctx.Err(), err)
	}
	return err
}
