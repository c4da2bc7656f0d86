package classifier

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// Tone selects the register of a drafted reply
type Tone string

const (
	ToneFormal   Tone = "formal"
	ToneFriendly Tone = "friendly"
)

// Reply is a drafted response to a message
type Reply struct {
	Body     string                    `json:"body"`
	Source   core.ClassificationSource `json:"source"`
	Tone     Tone                      `json:"tone"`
	Attempts int                       `json:"attempts"`
}

var artifactPhrases = []string{
	"as an ai", "language model", "i'm an ai", "i am an ai",
	"[your name]", "[name]", "[company]", "<name>", "{{", "}}",
	"lorem ipsum", "insert ", "placeholder",
}

var genericPhrases = []string{
	"i hope this email finds you well",
	"i hope this message finds you well",
	"i hope you are doing well",
	"i am writing to",
	"please do not hesitate",
	"thank you for your email",
	"at your earliest convenience",
}

var greetingWords = []string{"hi", "hello", "hey", "dear", "good morning", "good afternoon", "good evening"}

var friendlyMarkers = []string{"cheers", "thanks!", "awesome", "great!", ":)"}

var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "their": true, "there": true,
	"these": true, "they": true, "this": true, "that": true, "them": true, "then": true,
	"with": true, "would": true, "should": true, "could": true, "from": true, "your": true,
	"have": true, "will": true, "what": true, "when": true, "which": true, "into": true,
	"mention": true, "please": true, "reply": true, "tell": true, "make": true, "sure": true,
}

// DraftReply writes a reply to msg for the target category. The model is
// tried up to the configured number of attempts; drafts failing validation
// are discarded and a template is used instead.
func (e *Engine) DraftReply(ctx context.Context, msg *core.Message, category core.Category, instruction string, tone Tone) Reply {
	if !category.Valid() {
		category = core.CategoryInterested
	}
	if tone != ToneFormal && tone != ToneFriendly {
		tone = e.detectTone(msg)
	}
	name := SenderFirstName(msg.From)
	instruction = strings.TrimSpace(instruction)

	attempts := 0
	if e.modelConfigured() && e.available.Load() {
		body := e.text.ProcessText(e.text.BodyText(msg.TextBody, msg.HTMLBody), e.cfg.MaxBodySize)
		prompt := buildReplyPrompt(msg, body, category, tone, name, instruction, e.replyCfg.MinLength, e.replyCfg.MaxLength)

		for attempts < e.replyCfg.MaxAttempts {
			attempts++
			draft, err := e.draftOnce(ctx, prompt)
			if err == nil {
				err = e.validateReply(draft, name, instruction)
			}
			if err == nil {
				return Reply{Body: draft, Source: core.SourceModel, Tone: tone, Attempts: attempts}
			}
			e.logger.Debug("Discarding reply draft",
				zap.String("message_id", msg.CanonicalID),
				zap.Int("attempt", attempts),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	return Reply{
		Body:     renderTemplate(category, tone, name),
		Source:   core.SourceDefault,
		Tone:     tone,
		Attempts: attempts,
	}
}

// draftOnce waits for a model slot since drafting is not on the ingest path
func (e *Engine) draftOnce(ctx context.Context, prompt string) (string, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, e.replyCfg.Timeout)
	defer cancel()
	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrModelSaturated, err)
	}

	text, err := e.complete(ctx, e.replyCfg.Timeout, &core.CompletionRequest{
		Model:       e.llm.ModelName(),
		System:      replySystemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// validateReply checks a draft for length, artifacts, greeting, generic
// filler and instruction relevance
func (e *Engine) validateReply(draft, name, instruction string) error {
	n := utf8.RuneCountInString(draft)
	if n < e.replyCfg.MinLength || n > e.replyCfg.MaxLength {
		return fmt.Errorf("length %d outside [%d, %d]", n, e.replyCfg.MinLength, e.replyCfg.MaxLength)
	}

	lower := strings.ToLower(draft)
	for _, p := range artifactPhrases {
		if strings.Contains(lower, p) {
			return fmt.Errorf("contains artifact %q", p)
		}
	}
	for _, p := range genericPhrases {
		if strings.Contains(lower, p) {
			return fmt.Errorf("contains generic phrase %q", p)
		}
	}

	if !hasGreeting(lower, strings.ToLower(name)) {
		return fmt.Errorf("missing greeting for %q", name)
	}

	if keywords := instructionKeywords(instruction); len(keywords) > 0 {
		relevant := false
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				relevant = true
				break
			}
		}
		if !relevant {
			return fmt.Errorf("ignores instruction %q", instruction)
		}
	}

	return nil
}

func hasGreeting(lower, name string) bool {
	first := lower
	if i := strings.IndexByte(lower, '\n'); i >= 0 {
		first = lower[:i]
	}
	first = strings.TrimSpace(first)
	for _, g := range greetingWords {
		rest, ok := strings.CutPrefix(first, g)
		if ok && (rest == "" || !unicode.IsLetter([]rune(rest)[0])) {
			return name == "" || name == "there" || strings.Contains(first, name)
		}
	}
	return false
}

func instructionKeywords(instruction string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(instruction), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if utf8.RuneCountInString(w) >= 4 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

// detectTone mirrors the register of the incoming message
func (e *Engine) detectTone(msg *core.Message) Tone {
	text := strings.ToLower(strings.TrimSpace(e.text.BodyText(msg.TextBody, msg.HTMLBody)))
	if strings.HasPrefix(text, "hi ") || strings.HasPrefix(text, "hey") {
		return ToneFriendly
	}
	for _, m := range friendlyMarkers {
		if strings.Contains(text, m) {
			return ToneFriendly
		}
	}
	return ToneFormal
}

// SenderFirstName picks the name to greet: the first word of the display
// name, or the first token of the mailbox local part
func SenderFirstName(addr core.Address) string {
	name := strings.Trim(strings.TrimSpace(addr.Name), `"'`)
	if i := strings.IndexByte(name, ','); i >= 0 {
		// "Last, First"
		name = strings.TrimSpace(name[i+1:])
	}
	if fields := strings.Fields(name); len(fields) > 0 && !strings.Contains(fields[0], "@") {
		return capitalize(fields[0])
	}

	local := addr.Email
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 || isRoleMailbox(parts[0]) {
		return "there"
	}
	return capitalize(parts[0])
}

func isRoleMailbox(local string) bool {
	switch strings.ToLower(local) {
	case "info", "sales", "support", "admin", "noreply", "no", "hello", "contact", "team", "office":
		return true
	}
	return false
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
