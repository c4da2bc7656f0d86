package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const multipartMessage = `From: "Dana Reyes" <Dana@Example.com>
To: sales@acme.io, "Ops" <ops@acme.io>
Cc: boss@example.com
Subject: Re: Pricing
Date: Tue, 02 Jan 2024 15:04:05 +0000
Message-ID: <abc123@mail.example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Budget approved, ready to purchase.
--inner
Content-Type: text/html; charset=utf-8

<p>Budget approved, ready to purchase.</p>
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="quote.pdf"

%PDF-1.4 fake
--outer--
`

func TestParseMultipart(t *testing.T) {
	p := New(nil)

	msg, err := p.Parse(crlf(multipartMessage), []string{`\Seen`, `\Answered`}, Meta{
		AccountID: "acc-1",
		Folder:    "INBOX",
		UID:       42,
	})
	require.NoError(t, err)

	assert.Equal(t, "abc123@mail.example.com", msg.CanonicalID)
	assert.Equal(t, "acc-1", msg.AccountID)
	assert.Equal(t, uint32(42), msg.UID)
	assert.Equal(t, "Re: Pricing", msg.Subject)
	assert.Equal(t, core.Address{Name: "Dana Reyes", Email: "dana@example.com"}, msg.From)
	require.Len(t, msg.To, 2)
	assert.Equal(t, "ops@acme.io", msg.To[1].Email)
	require.Len(t, msg.Cc, 1)
	assert.True(t, msg.IsRead)
	assert.Equal(t, "Budget approved, ready to purchase.", msg.TextBody)
	assert.Contains(t, msg.HTMLBody, "<p>")
	assert.Equal(t, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), msg.ReceivedAt)

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "quote.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Positive(t, msg.Attachments[0].Size)
}

func TestParseSinglePartUnread(t *testing.T) {
	raw := crlf(`From: a@b.com
Subject: hello
Message-ID: <one@b.com>

I'm out of office until Monday.
`)
	msg, err := New(nil).Parse(raw, nil, Meta{AccountID: "acc"})
	require.NoError(t, err)

	assert.False(t, msg.IsRead)
	assert.Equal(t, "one@b.com", msg.CanonicalID)
	assert.Contains(t, msg.TextBody, "out of office")
	assert.Empty(t, msg.HTMLBody)
}

func TestParseSynthesizesStableID(t *testing.T) {
	raw := crlf(`From: a@b.com
Subject: no id here
Date: Tue, 02 Jan 2024 15:04:05 +0000

body
`)
	meta := Meta{AccountID: "acc", Folder: "INBOX", UID: 7}
	p := New(nil)

	first, err := p.Parse(raw, nil, meta)
	require.NoError(t, err)
	second, err := p.Parse(raw, nil, meta)
	require.NoError(t, err)

	assert.True(t, IsSynthesizedID(first.CanonicalID))
	assert.Equal(t, first.CanonicalID, second.CanonicalID)

	meta.UID = 8
	third, err := p.Parse(raw, nil, meta)
	require.NoError(t, err)
	assert.NotEqual(t, first.CanonicalID, third.CanonicalID)
}

func TestParseUndatedMessageKeepsStableID(t *testing.T) {
	raw := crlf(`From: a@b.com
Subject: no id or date

body
`)
	meta := Meta{AccountID: "acc", Folder: "INBOX", UID: 7}
	p := New(nil)

	first, err := p.Parse(raw, nil, meta)
	require.NoError(t, err)
	assert.False(t, first.ReceivedAt.IsZero())

	undated := &core.Message{From: first.From, Subject: first.Subject}
	assert.Equal(t, SynthesizeID(undated, meta), first.CanonicalID)

	time.Sleep(1100 * time.Millisecond)
	second, err := p.Parse(raw, nil, meta)
	require.NoError(t, err)
	assert.Equal(t, first.CanonicalID, second.CanonicalID)
}

func TestParseUsesEnvelopeFallback(t *testing.T) {
	env := &core.Envelope{
		MessageID: "<env@b.com>",
		Subject:   "from envelope",
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		From:      []core.Address{{Name: "Env", Email: "env@b.com"}},
	}
	raw := crlf(`X-Only: header

text
`)
	msg, err := New(nil).Parse(raw, nil, Meta{AccountID: "acc", Envelope: env})
	require.NoError(t, err)

	assert.Equal(t, "env@b.com", msg.CanonicalID)
	assert.Equal(t, "from envelope", msg.Subject)
	assert.Equal(t, "env@b.com", msg.From.Email)
	assert.Equal(t, env.Date, msg.ReceivedAt)
}

func TestParseEmptyPayload(t *testing.T) {
	_, err := New(nil).Parse(nil, nil, Meta{AccountID: "acc", UID: 3})

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, uint32(3), perr.UID)
}

func TestParseMalformedAddressList(t *testing.T) {
	raw := crlf(`From: broken <<x@y.com
To: "unterminated <z@y.com>
Subject: odd

body
`)
	msg, err := New(nil).Parse(raw, nil, Meta{AccountID: "acc"})
	require.NoError(t, err)
	assert.Equal(t, "odd", msg.Subject)
	assert.NotEmpty(t, msg.CanonicalID)
}
