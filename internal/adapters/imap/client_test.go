package imap

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// stuckIdleServer greets with IDLE support, enters IDLE on request and then
// ignores DONE
func stuckIdleServer(t *testing.T) net.Conn {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("* OK [CAPABILITY IMAP4rev1 IDLE] ready\r\n"))
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 2 && strings.EqualFold(fields[1], "IDLE") {
				conn.Write([]byte("+ idling\r\n"))
			}
		}
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	return raw
}

func TestWaitForChangeReturnsOnCancelWhenDoneIgnored(t *testing.T) {
	c, err := newConn(stuckIdleServer(t), nil, false, zap.NewNop())
	require.NoError(t, err)
	defer c.client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.WaitForChange(ctx, time.Hour)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("WaitForChange did not return after cancel")
	}
}

func TestWaitForChangeClosesWhenDoneNotAcknowledged(t *testing.T) {
	c, err := newConn(stuckIdleServer(t), nil, false, zap.NewNop())
	require.NoError(t, err)
	defer c.client.Close()
	c.doneTimeout = 200 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := c.WaitForChange(context.Background(), 100*time.Millisecond)
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("WaitForChange did not give up on the stalled IDLE")
	}
}

func TestDialTimesOutOnSilentServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	}()

	account := &core.Account{
		ID:       "acc-1",
		Host:     "127.0.0.1",
		Port:     ln.Addr().(*net.TCPAddr).Port,
		Username: "u",
		Password: "p",
	}

	d := NewDialer(300*time.Millisecond, zap.NewNop())
	start := time.Now()
	conn, err := d.Dial(context.Background(), account)

	require.Error(t, err)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}
