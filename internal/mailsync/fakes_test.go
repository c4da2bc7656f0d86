package mailsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// rawMessage builds a fetched message with the given Message-ID
func rawMessage(seq uint32, messageID, subject, body string) *core.RawMessage {
	payload := fmt.Sprintf("Message-ID: <%s>\r\n"+
		"From: Jane Doe <jane@acme.io>\r\n"+
		"To: sales@corp.test\r\n"+
		"Subject: %s\r\n"+
		"Date: Mon, 01 Apr 2024 10:00:00 +0000\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n%s\r\n", messageID, subject, body)
	return &core.RawMessage{
		SeqNum:       seq,
		UID:          1000 + seq,
		InternalDate: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC),
		Body:         []byte(payload),
	}
}

type fakeConn struct {
	mu        sync.Mutex
	messages  []*core.RawMessage
	idle      bool
	changes   chan struct{}
	closed    atomic.Bool
	selects   []bool
	fetchErr  error
	expunged  uint32
	closeGate chan struct{}
}

func newFakeConn(idle bool, messages ...*core.RawMessage) *fakeConn {
	return &fakeConn{messages: messages, idle: idle, changes: make(chan struct{}, 1)}
}

func (c *fakeConn) add(raw *core.RawMessage) {
	c.mu.Lock()
	raw.SeqNum = uint32(len(c.messages) + 1)
	c.messages = append(c.messages, raw)
	c.mu.Unlock()
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// expungeAndAdd removes the first message and appends raw, leaving the
// count unchanged
func (c *fakeConn) expungeAndAdd(raw *core.RawMessage) {
	c.mu.Lock()
	kept := make([]*core.RawMessage, 0, len(c.messages))
	for _, m := range c.messages[1:] {
		cp := *m
		cp.SeqNum = uint32(len(kept) + 1)
		kept = append(kept, &cp)
	}
	raw.SeqNum = uint32(len(kept) + 1)
	c.messages = append(kept, raw)
	c.expunged++
	c.mu.Unlock()
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *fakeConn) update() core.MailboxUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	upd := core.MailboxUpdate{Count: uint32(len(c.messages)), Expunged: c.expunged}
	c.expunged = 0
	return upd
}

func (c *fakeConn) count() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(len(c.messages))
}

func (c *fakeConn) Select(ctx context.Context, mailbox string, readOnly bool) (uint32, error) {
	c.mu.Lock()
	c.selects = append(c.selects, readOnly)
	c.mu.Unlock()
	return c.count(), nil
}

func (c *fakeConn) FetchRange(ctx context.Context, from, to uint32) ([]*core.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	var out []*core.RawMessage
	for seq := from; seq <= to && int(seq) <= len(c.messages); seq++ {
		out = append(out, c.messages[seq-1])
	}
	return out, nil
}

func (c *fakeConn) FetchSeqNums(ctx context.Context, seqNums []uint32) ([]*core.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*core.RawMessage
	for _, seq := range seqNums {
		if seq >= 1 && int(seq) <= len(c.messages) {
			out = append(out, c.messages[seq-1])
		}
	}
	return out, nil
}

func (c *fakeConn) SearchUnseen(ctx context.Context) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []uint32
	for i := range c.messages {
		out = append(out, uint32(i+1))
	}
	return out, nil
}

func (c *fakeConn) SupportsIdle() bool { return c.idle }

func (c *fakeConn) WaitForChange(ctx context.Context, refresh time.Duration) (core.MailboxUpdate, error) {
	timer := time.NewTimer(refresh)
	defer timer.Stop()
	select {
	case <-c.changes:
	case <-timer.C:
	case <-ctx.Done():
		return core.MailboxUpdate{Count: c.count()}, ctx.Err()
	}
	return c.update(), nil
}

func (c *fakeConn) Poll(ctx context.Context) (core.MailboxUpdate, error) {
	return c.update(), nil
}

// Close blocks on closeGate when set, like a server slow to answer LOGOUT
func (c *fakeConn) Close() error {
	if c.closeGate != nil {
		<-c.closeGate
	}
	c.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	conn     *fakeConn
	failures int // -1 fails forever
	dials    atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, account *core.Account) (core.MailboxConn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	return d.conn, nil
}

// accountDialer hands each account its own connection
type accountDialer struct {
	conns map[string]*fakeConn
}

func (d *accountDialer) Dial(ctx context.Context, account *core.Account) (core.MailboxConn, error) {
	conn, ok := d.conns[account.ID]
	if !ok {
		return nil, errors.New("unknown account")
	}
	return conn, nil
}
