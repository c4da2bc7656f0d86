package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLiteralAndEnv(t *testing.T) {
	t.Setenv("MAIL_PIPELINE_TEST_SECRET", "s3cret")
	r := NewResolverWithOpener(func() (keyring.Keyring, error) {
		return nil, errors.New("must not open")
	})

	v, err := r.Resolve("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	v, err = r.Resolve("env:MAIL_PIPELINE_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = r.Resolve("env:MAIL_PIPELINE_TEST_MISSING")
	assert.Error(t, err)
}

func TestResolveKeyring(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	opened := 0
	r := NewResolverWithOpener(func() (keyring.Keyring, error) {
		opened++
		return ring, nil
	})

	require.NoError(t, r.Set("imap/dana", "app-password"))
	v, err := r.Resolve("keyring:imap/dana")
	require.NoError(t, err)
	assert.Equal(t, "app-password", v)

	_, err = r.Resolve("keyring:missing")
	assert.Error(t, err)
	assert.Equal(t, 1, opened)
}

func TestResolveKeyringOpenFailure(t *testing.T) {
	r := NewResolverWithOpener(func() (keyring.Keyring, error) {
		return nil, errors.New("no backend")
	})
	_, err := r.Resolve("keyring:x")
	assert.Error(t, err)
}
