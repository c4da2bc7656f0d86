package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	sync := cfg.GetSync()
	assert.Equal(t, "INBOX", sync.Mailbox)
	assert.Equal(t, 150, sync.BackfillWindow)
	assert.Equal(t, 30*time.Second, sync.PollInterval)
	assert.Equal(t, 5*time.Second, sync.ReconnectBaseDelay)
	assert.Equal(t, 10, sync.MaxConsecutiveErrors)

	cls := cfg.GetClassifier()
	assert.Equal(t, 3, cls.MaxConcurrent)
	assert.Equal(t, 0.3, cls.FallbackConfidence)

	assert.Equal(t, "sqlite", cfg.GetStore().Type)
	assert.Equal(t, "none", cfg.GetIndex().Type)
}

func TestMalformedDurationFallsBack(t *testing.T) {
	v := NewEmptyViper()
	v.Set("sync.poll_interval", "soon")
	cfg := NewFromViper(v)

	assert.Equal(t, 30*time.Second, cfg.GetSync().PollInterval)
}

func TestGetAccountsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
accounts:
  - address: Sales@Example.org
    host: imap.example.org
    password: env:SALES_PASSWORD
  - id: support
    address: support@example.org
    host: mail.example.org
    tls: false
    active: false
sync:
  backfill_window: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	accounts, err := cfg.GetAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "sales@example.org", accounts[0].ID)
	assert.Equal(t, "Sales@Example.org", accounts[0].Username)
	assert.Equal(t, 993, accounts[0].Port)
	assert.True(t, accounts[0].UseTLS())
	assert.True(t, accounts[0].IsActive())

	assert.Equal(t, "support", accounts[1].ID)
	assert.Equal(t, 143, accounts[1].Port)
	assert.False(t, accounts[1].UseTLS())
	assert.False(t, accounts[1].IsActive())

	assert.Equal(t, 100, cfg.GetSync().BackfillWindow)
}

func TestGetAccountsRejectsDuplicates(t *testing.T) {
	v := NewEmptyViper()
	v.Set("accounts", []map[string]interface{}{
		{"id": "a", "address": "a@example.org"},
		{"id": "a", "address": "b@example.org"},
	})

	_, err := NewFromViper(v).GetAccounts()
	assert.Error(t, err)
}
