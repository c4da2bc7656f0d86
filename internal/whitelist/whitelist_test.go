package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWhitelisted(t *testing.T) {
	c := NewChecker([]string{" Partner.com ", "*.trusted.io", "@corp.net", ""}, nil)

	cases := map[string]bool{
		"bob@partner.com":      true,
		"bob@PARTNER.COM":      true,
		"ann@mail.partner.com": true,
		"ann@trusted.io":       true,
		"ann@eu.trusted.io":    true,
		"joe@corp.net":         true,
		"joe@notpartner.com":   false,
		"joe@partner.com.evil": false,
		"no-at-sign":           false,
		"trailing@":            false,
	}
	for email, want := range cases {
		assert.Equal(t, want, c.IsWhitelisted(email), email)
	}
}

func TestNilCheckerIsEmpty(t *testing.T) {
	var c *Checker
	assert.False(t, c.IsWhitelisted("a@b.com"))
	assert.False(t, NewChecker(nil, nil).IsWhitelisted("a@b.com"))
}
