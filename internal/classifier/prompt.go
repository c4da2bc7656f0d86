package classifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

const classifySystemPrompt = "You are an email triage system for a sales team. Respond with a single category:confidence token and nothing else."

const classifyPromptFormat = `Classify the following email reply into exactly one category:
- interested: the sender wants to buy, learn more or continue the conversation
- meeting_booked: a meeting or call has been scheduled or confirmed
- not_interested: the sender declines or asks to stop contact
- spam: unsolicited bulk or fraudulent content
- out_of_office: an automatic away or vacation reply

Respond with one token in the form category:confidence where confidence is
a number between 0 and 1, for example interested:0.82

Email:
From: %s
Subject: %s
Body:
%s

Answer:`

const replySystemPrompt = "You write short, specific email replies on behalf of a sales representative. Write only the email body."

const replyPromptFormat = `Write a %s reply to the email below.
The email was classified as %s.
Start with a greeting that addresses %s by name.
Keep it between %d and %d characters, avoid generic filler and never mention being an AI.
%s
Original email:
From: %s
Subject: %s
Body:
%s

Reply:`

var responseRe = regexp.MustCompile(`(not[_ ]interested|meeting[_ ]booked|out[_ ]of[_ ]office|interested|spam)\s*[:=]\s*([0-9]*\.?[0-9]+)\s*(%)?`)

// buildClassifyPrompt renders the classification prompt for a message
func buildClassifyPrompt(msg *core.Message, body string) string {
	return fmt.Sprintf(classifyPromptFormat, msg.From.String(), msg.Subject, body)
}

// buildReplyPrompt renders the reply drafting prompt for a message
func buildReplyPrompt(msg *core.Message, body string, category core.Category, tone Tone, name, instruction string, minLen, maxLen int) string {
	extra := ""
	if instruction != "" {
		extra = "Follow this instruction: " + instruction + "\n"
	}
	return fmt.Sprintf(replyPromptFormat,
		tone, strings.ReplaceAll(string(category), "_", " "), name, minLen, maxLen, extra,
		msg.From.String(), msg.Subject, body)
}

// ParseModelResponse extracts a category:confidence token from free text.
// Percentages and values above one are normalized into [0,1].
func ParseModelResponse(raw string) (core.Category, float64, error) {
	m := responseRe.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		return "", 0, fmt.Errorf("%w: no category token in %q", core.ErrInvalidModelResponse, truncate(raw, 80))
	}

	category, ok := core.ParseCategory(strings.ReplaceAll(m[1], " ", "_"))
	if !ok {
		return "", 0, fmt.Errorf("%w: unknown category %q", core.ErrInvalidModelResponse, m[1])
	}

	confidence, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad confidence %q", core.ErrInvalidModelResponse, m[2])
	}
	// bare values from 2 up are percentages; anything just above 1 is clamped
	if m[3] == "%" || confidence >= 2 {
		confidence /= 100
	}
	if confidence > 1 {
		return "", 0, fmt.Errorf("%w: confidence out of range %q", core.ErrInvalidModelResponse, m[2])
	}

	return category, clamp(confidence), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
