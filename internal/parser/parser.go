package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

const (
	// defaultMaxPartSize bounds how much of a single MIME part is read
	defaultMaxPartSize = 10 << 20

	synthesizedDomain = "synthesized.local"
)

var synthNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("llm-mail-pipeline/synthesized-message-id"))

// Meta carries the protocol context of a fetched message
type Meta struct {
	AccountID    string
	Folder       string
	UID          uint32
	SeqNum       uint32
	InternalDate time.Time
	Envelope     *core.Envelope
}

// ParseError reports a message that could not be turned into a record
type ParseError struct {
	AccountID string
	UID       uint32
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse message uid=%d account=%s: %v", e.UID, e.AccountID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser converts raw RFC 5322 payloads into structured messages
type Parser struct {
	logger      *zap.Logger
	maxPartSize int64
}

// New creates a parser
func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		logger:      logger,
		maxPartSize: defaultMaxPartSize,
	}
}

// Parse builds a structured message from raw bytes and IMAP flags. Malformed
// parts are skipped; only a payload with neither parseable headers nor an
// envelope yields a ParseError.
func (p *Parser) Parse(raw []byte, flags []string, meta Meta) (*core.Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 && meta.Envelope == nil {
		return nil, &ParseError{AccountID: meta.AccountID, UID: meta.UID, Err: errors.New("empty payload")}
	}

	msg := &core.Message{
		AccountID: meta.AccountID,
		UID:       meta.UID,
		Folder:    meta.Folder,
		IsRead:    hasFlag(flags, `\Seen`),
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		if meta.Envelope == nil {
			return nil, &ParseError{AccountID: meta.AccountID, UID: meta.UID, Err: err}
		}
		p.logger.Debug("Headers unreadable, using envelope",
			zap.String("account_id", meta.AccountID),
			zap.Uint32("uid", meta.UID),
			zap.Error(err))
		applyEnvelope(msg, meta.Envelope, true)
		msg.TextBody = rawBody(raw)
		p.finish(msg, meta, "")
		return msg, nil
	}
	defer mr.Close()

	messageID := p.readHeader(msg, &mr.Header)
	if meta.Envelope != nil {
		applyEnvelope(msg, meta.Envelope, false)
		if messageID == "" {
			messageID = meta.Envelope.MessageID
		}
	}

	p.readParts(msg, mr, meta)
	p.finish(msg, meta, messageID)

	return msg, nil
}

// readHeader fills envelope fields from the message header and returns the
// Message-ID
func (p *Parser) readHeader(msg *core.Message, h *mail.Header) string {
	if subject, err := h.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(h.Get("Subject"))
	}

	if from := addressList(h, "From"); len(from) > 0 {
		msg.From = from[0]
	}
	msg.To = addressList(h, "To")
	msg.Cc = addressList(h, "Cc")
	msg.Bcc = addressList(h, "Bcc")

	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date
	}

	id, err := h.MessageID()
	if err != nil || id == "" {
		id = h.Get("Message-Id")
	}
	return normalizeMessageID(id)
}

// readParts walks the MIME tree collecting bodies and attachment metadata
func (p *Parser) readParts(msg *core.Message, mr *mail.Reader, meta Meta) {
	var textParts []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) && part != nil {
				p.logger.Debug("Unknown charset in part", zap.Uint32("uid", meta.UID), zap.Error(err))
			} else {
				p.logger.Debug("Stopping at malformed part",
					zap.String("account_id", meta.AccountID),
					zap.Uint32("uid", meta.UID),
					zap.Error(err))
				break
			}
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			contentType = strings.ToLower(contentType)
			disposition, params, _ := h.ContentDisposition()

			if filename := params["filename"]; filename != "" || (contentType != "" && !strings.HasPrefix(contentType, "text/")) {
				size, _ := io.Copy(io.Discard, io.LimitReader(part.Body, p.maxPartSize))
				msg.Attachments = append(msg.Attachments, core.Attachment{
					Filename:    filename,
					ContentType: contentType,
					Size:        size,
					Inline:      disposition != "attachment",
				})
				continue
			}

			body, err := io.ReadAll(io.LimitReader(part.Body, p.maxPartSize))
			if err != nil {
				p.logger.Debug("Skipping unreadable part", zap.Uint32("uid", meta.UID), zap.Error(err))
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/html"):
				if msg.HTMLBody == "" {
					msg.HTMLBody = string(body)
				}
			default:
				textParts = append(textParts, strings.TrimRight(string(body), "\r\n"))
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, err := io.Copy(io.Discard, io.LimitReader(part.Body, p.maxPartSize))
			if err != nil {
				p.logger.Debug("Attachment body unreadable", zap.String("filename", filename), zap.Error(err))
			}
			msg.Attachments = append(msg.Attachments, core.Attachment{
				Filename:    filename,
				ContentType: strings.ToLower(contentType),
				Size:        size,
			})
		}
	}
	msg.TextBody = strings.Join(textParts, "\n")
}

// finish resolves the canonical id and received time. The id is settled
// before the wall-clock fallback so it only depends on the message.
func (p *Parser) finish(msg *core.Message, meta Meta, messageID string) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = meta.InternalDate
	}
	msg.ReceivedAt = msg.ReceivedAt.UTC()

	if messageID == "" && meta.Envelope != nil {
		messageID = normalizeMessageID(meta.Envelope.MessageID)
	}
	if messageID == "" {
		messageID = SynthesizeID(msg, meta)
	}
	msg.CanonicalID = messageID

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
}

// SynthesizeID derives a stable identifier for a message lacking a Message-ID,
// so refetching the same message yields the same id
func SynthesizeID(msg *core.Message, meta Meta) string {
	num := meta.UID
	if num == 0 {
		num = meta.SeqNum
	}
	date := msg.ReceivedAt
	if date.IsZero() {
		date = meta.InternalDate
	}
	key := fmt.Sprintf("%s|%s|%d|%d|%s|%s",
		meta.AccountID, meta.Folder, num, date.Unix(), msg.From.Email, msg.Subject)
	return uuid.NewSHA1(synthNamespace, []byte(key)).String() + "@" + synthesizedDomain
}

// IsSynthesizedID reports whether an id was produced by SynthesizeID
func IsSynthesizedID(id string) bool {
	return strings.HasSuffix(id, "@"+synthesizedDomain)
}

func applyEnvelope(msg *core.Message, env *core.Envelope, override bool) {
	if env == nil {
		return
	}
	if msg.Subject == "" || override {
		msg.Subject = env.Subject
	}
	if (msg.From.Email == "" || override) && len(env.From) > 0 {
		msg.From = env.From[0]
	}
	if len(msg.To) == 0 || override {
		msg.To = env.To
	}
	if len(msg.Cc) == 0 || override {
		msg.Cc = env.Cc
	}
	if len(msg.Bcc) == 0 || override {
		msg.Bcc = env.Bcc
	}
	if msg.ReceivedAt.IsZero() || override {
		msg.ReceivedAt = env.Date
	}
}

func addressList(h *mail.Header, key string) []core.Address {
	list, err := h.AddressList(key)
	if err != nil {
		// Tolerate malformed lists by keeping anything that looks like an address
		var out []core.Address
		for _, field := range strings.Split(h.Get(key), ",") {
			field = strings.Trim(strings.TrimSpace(field), "<>")
			if strings.Contains(field, "@") {
				out = append(out, core.Address{Email: strings.ToLower(field)})
			}
		}
		return out
	}

	out := make([]core.Address, 0, len(list))
	for _, addr := range list {
		out = append(out, core.Address{
			Name:  strings.TrimSpace(addr.Name),
			Email: strings.ToLower(addr.Address),
		})
	}
	return out
}

func normalizeMessageID(id string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(id), "<>"))
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

// rawBody returns whatever follows the header block of an unparseable payload
func rawBody(raw []byte) string {
	text := string(raw)
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if i := strings.Index(text, sep); i >= 0 {
			return strings.TrimSpace(text[i+len(sep):])
		}
	}
	return strings.TrimSpace(text)
}
