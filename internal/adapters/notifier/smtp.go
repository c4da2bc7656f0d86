package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/config"
	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// SMTPChannel sends a plain-text alert email through an SMTP relay
type SMTPChannel struct {
	cfg     config.SMTPNotifyConfig
	enabled bool
	builder *Builder
	logger  *zap.Logger
}

// NewSMTPChannel creates an SMTP alert channel. It is disabled unless a
// host, sender and at least one recipient are configured.
func NewSMTPChannel(cfg config.SMTPNotifyConfig, builder *Builder, logger *zap.Logger) *SMTPChannel {
	var recipients []string
	for _, to := range cfg.To {
		if !IsPlaceholder(to) {
			recipients = append(recipients, strings.TrimSpace(to))
		}
	}
	cfg.To = recipients
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	enabled := !IsPlaceholder(cfg.Host) && !IsPlaceholder(cfg.From) && len(recipients) > 0
	if !enabled && cfg.Host != "" {
		logger.Warn("SMTP channel disabled, host, sender or recipients missing",
			zap.String("host", cfg.Host))
	}

	return &SMTPChannel{
		cfg:     cfg,
		enabled: enabled,
		builder: builder,
		logger:  logger,
	}
}

// Name returns the channel name
func (s *SMTPChannel) Name() string { return "smtp" }

// Enabled reports whether the relay is configured
func (s *SMTPChannel) Enabled() bool { return s.enabled }

// Send delivers the alert for msg
func (s *SMTPChannel) Send(ctx context.Context, msg *core.Message) error {
	if !s.enabled {
		return nil
	}

	body, err := s.compose(s.builder.Build(msg))
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	if s.cfg.TLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP relay: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c, err := s.newClient(conn, tlsConfig)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := c.SendMail(s.cfg.From, s.cfg.To, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// newClient greets the relay. Without implicit TLS the session is upgraded
// with STARTTLS unless the relay is marked insecure.
func (s *SMTPChannel) newClient(conn net.Conn, tlsConfig *tls.Config) (*smtp.Client, error) {
	if !s.cfg.TLS && !s.cfg.Insecure {
		c, err := smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
		return c, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	c := smtp.NewClient(conn)
	if err := c.Hello(hostname); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}
	return c, nil
}

func (s *SMTPChannel) compose(p Payload) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(fmt.Sprintf("[%s] %s", p.Message.Category, p.Message.Subject))
	h.SetAddressList("From", []*mail.Address{{Address: s.cfg.From}})
	to := make([]*mail.Address, 0, len(s.cfg.To))
	for _, addr := range s.cfg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert message: %w", err)
	}

	fmt.Fprintf(w, "From: %s\n", p.Message.From)
	fmt.Fprintf(w, "Subject: %s\n", p.Message.Subject)
	fmt.Fprintf(w, "Category: %s (%.2f)\n\n", p.Message.Category, p.Message.Confidence)
	fmt.Fprintf(w, "%s\n", p.Message.Excerpt)
	if p.Links.View != "" {
		fmt.Fprintf(w, "\nView: %s\nReply: %s\n", p.Links.View, p.Links.Reply)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish alert message: %w", err)
	}
	return buf.Bytes(), nil
}
