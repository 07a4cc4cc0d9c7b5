// Package notify delivers access links to purchasers.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
)

// SMTPConfig holds the relay settings for SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

var messageTemplate = template.Must(template.New("access").Parse(
	"From: {{.From}}\r\n" +
		"To: {{.To}}\r\n" +
		"Subject: Your {{.Resource}} audio tour\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		"Thank you for your purchase.\r\n\r\n" +
		"Open your {{.Resource}} tour here:\r\n{{.URL}}\r\n"))

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends the access link as a plain-text email.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
	send   sendFunc
}

// NewSMTPNotifier creates and returns a new SMTPNotifier instance.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{cfg: cfg, logger: logger, send: smtp.SendMail}
}

func (n *SMTPNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	if err := validateHeader(msg.Recipient); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotifierUnavailable, err)
	}

	var body bytes.Buffer
	err := messageTemplate.Execute(&body, map[string]string{
		"From":     n.cfg.From,
		"To":       msg.Recipient,
		"Resource": msg.ResourceName,
		"URL":      msg.AccessURL,
	})
	if err != nil {
		return fmt.Errorf("render message: %w", err)
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	// net/smtp has no context support; run the send so ctx can abandon it.
	done := make(chan error, 1)
	go func() {
		done <- n.send(addr, auth, n.cfg.From, []string{msg.Recipient}, body.Bytes())
	}()

	start := time.Now()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrNotifierUnavailable, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: send to %s: %w", domain.ErrNotifierUnavailable, addr, err)
		}
	}

	n.logger.Info("access email sent", "resource", msg.ResourceName, "duration", time.Since(start))
	return nil
}

func validateHeader(v string) error {
	if v == "" {
		return fmt.Errorf("empty recipient")
	}
	if strings.ContainsAny(v, "\r\n") {
		return fmt.Errorf("recipient contains line breaks")
	}
	return nil
}
