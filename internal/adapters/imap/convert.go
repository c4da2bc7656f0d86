package imap

import (
	"strings"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

func toRawMessage(buf *imapclient.FetchMessageBuffer, body []byte) *core.RawMessage {
	raw := &core.RawMessage{
		SeqNum:       buf.SeqNum,
		UID:          uint32(buf.UID),
		InternalDate: buf.InternalDate,
		Envelope:     toEnvelope(buf.Envelope),
		Body:         body,
	}
	for _, f := range buf.Flags {
		raw.Flags = append(raw.Flags, string(f))
	}
	return raw
}

func toEnvelope(env *goimap.Envelope) *core.Envelope {
	if env == nil {
		return nil
	}
	return &core.Envelope{
		MessageID: strings.Trim(env.MessageID, "<> "),
		Subject:   env.Subject,
		Date:      env.Date,
		From:      toAddresses(env.From),
		To:        toAddresses(env.To),
		Cc:        toAddresses(env.Cc),
		Bcc:       toAddresses(env.Bcc),
	}
}

func toAddresses(in []goimap.Address) []core.Address {
	var out []core.Address
	for _, a := range in {
		if a.IsGroupStart() || a.IsGroupEnd() {
			continue
		}
		out = append(out, core.Address{
			Name:  a.Name,
			Email: strings.ToLower(a.Addr()),
		})
	}
	return out
}
