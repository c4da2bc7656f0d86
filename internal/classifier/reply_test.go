package classifier

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

const goodDraft = `Hi Dana,

Thanks for the quick answer. I have attached the contract and pricing for the
annual plan, and Tuesday at 10am works for a kickoff call on our side.

Best, Sam`

func TestDraftReplyAcceptsValidDraft(t *testing.T) {
	llm := &fakeLLM{responses: []string{goodDraft}}
	e := newTestEngine(t, llm)

	reply := e.DraftReply(context.Background(), message("Re: pricing", "Ready to buy"), core.CategoryInterested, "mention the contract", ToneFormal)

	assert.Equal(t, core.SourceModel, reply.Source)
	assert.Equal(t, 1, reply.Attempts)
	assert.Equal(t, goodDraft, reply.Body)
}

func TestDraftReplyRetriesThenAccepts(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"As an AI language model I cannot write emails but here is something long enough.",
		"Hi Dana, I hope this email finds you well. Sharing the contract details now for you.",
		goodDraft,
	}}
	e := newTestEngine(t, llm)

	reply := e.DraftReply(context.Background(), message("", "Ready to buy"), core.CategoryInterested, "", ToneFriendly)

	assert.Equal(t, core.SourceModel, reply.Source)
	assert.Equal(t, 3, reply.Attempts)
}

func TestDraftReplyFallsBackToTemplate(t *testing.T) {
	llm := &fakeLLM{responses: []string{"Hello [Your Name], too short"}}
	e := newTestEngine(t, llm)

	reply := e.DraftReply(context.Background(), message("", "cheers!"), core.CategoryMeetingBooked, "", "")

	assert.Equal(t, core.SourceDefault, reply.Source)
	assert.Equal(t, 3, reply.Attempts)
	assert.Equal(t, ToneFriendly, reply.Tone)
	assert.True(t, strings.HasPrefix(reply.Body, "Hi Dana,"))
	assert.Equal(t, int32(3), llm.calls.Load())
}

func TestDraftReplyWithoutModel(t *testing.T) {
	e := newTestEngine(t, nil)

	reply := e.DraftReply(context.Background(), message("", "Please advise."), core.CategoryNotInterested, "", "")

	assert.Equal(t, core.SourceDefault, reply.Source)
	assert.Zero(t, reply.Attempts)
	assert.Equal(t, ToneFormal, reply.Tone)
	assert.True(t, strings.HasPrefix(reply.Body, "Dear Dana,"))
}

func TestValidateReply(t *testing.T) {
	e := newTestEngine(t, nil)

	require.NoError(t, e.validateReply(goodDraft, "Dana", "attach the contract"))
	assert.Error(t, e.validateReply(goodDraft, "Dana", "offer a discount"))
	assert.Error(t, e.validateReply(goodDraft, "Morgan", ""))
	assert.Error(t, e.validateReply("Hi Dana, ok", "Dana", ""))
	assert.Error(t, e.validateReply(strings.Repeat("Hi Dana ", 300), "Dana", ""))
	assert.Error(t, e.validateReply("Highly recommended product for you and your team members.", "", ""))
}

func TestSenderFirstName(t *testing.T) {
	cases := map[core.Address]string{
		{Name: "Dana Reyes", Email: "x@y.com"}:  "Dana",
		{Name: "Reyes, Dana", Email: "x@y.com"}: "Dana",
		{Name: `"jo"`, Email: "x@y.com"}:        "Jo",
		{Email: "sam.taylor@y.com"}:             "Sam",
		{Email: "info@y.com"}:                   "there",
		{Email: "a.b@y.com", Name: "ops@y.com"}: "A",
	}
	for addr, want := range cases {
		assert.Equal(t, want, SenderFirstName(addr), addr.String())
	}
}

func TestRenderTemplateCoversEveryCategory(t *testing.T) {
	for _, c := range core.Categories {
		for _, tone := range []Tone{ToneFormal, ToneFriendly} {
			body := renderTemplate(c, tone, "Dana")
			assert.Contains(t, body, "Dana", "%s/%s", c, tone)
			assert.NotContains(t, body, "%!")
		}
	}
}
