package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/mailerpro/mailerpro/internal/models"
)

// SMTPMailer sends mail through the account's own SMTP submission
// server using its stored credentials.
type SMTPMailer struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(timeout time.Duration, logger *slog.Logger) *SMTPMailer {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SMTPMailer{timeout: timeout, logger: logger}
}

// Send delivers one message via the account's SMTP server.
func (m *SMTPMailer) Send(ctx context.Context, account *models.SmtpAccount, msg *Message) error {
	addr := net.JoinHostPort(account.Host, fmt.Sprintf("%d", account.Port))

	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &Error{Kind: KindConnection, Raw: fmt.Sprintf("connection failed to %s: %v", addr, err)}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(m.timeout))
	}

	// Port 465 expects implicit TLS before the SMTP banner.
	if account.Port == 465 {
		tlsConn := tls.Client(conn, m.tlsConfig(account.Host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return &Error{Kind: KindTLS, Raw: fmt.Sprintf("TLS handshake failed: %v", err)}
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, account.Host)
	if err != nil {
		return &Error{Kind: KindConnection, Raw: fmt.Sprintf("SMTP client creation failed: %v", err)}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return m.categorizeError(err, "HELO")
	}

	if account.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tlsConfig(account.Host)); err != nil {
				return &Error{Kind: KindTLS, Raw: fmt.Sprintf("STARTTLS failed: %v", err)}
			}
		}
	}

	if account.Username != "" {
		auth := smtp.PlainAuth("", account.Username, account.Password, account.Host)
		if err := client.Auth(auth); err != nil {
			return m.categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(account.Username); err != nil {
		return m.categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(msg.To); err != nil {
		return m.categorizeError(err, "RCPT TO")
	}

	wc, err := client.Data()
	if err != nil {
		return m.categorizeError(err, "DATA")
	}
	if _, err := wc.Write(buildMessage(account, msg)); err != nil {
		wc.Close()
		return &Error{Kind: KindConnection, Raw: fmt.Sprintf("failed to write message data: %v", err)}
	}
	if err := wc.Close(); err != nil {
		return m.categorizeError(err, "DATA close")
	}

	client.Quit()

	m.logger.Debug("message delivered", "host", account.Host, "to", msg.To)
	return nil
}

func (m *SMTPMailer) tlsConfig(host string) *tls.Config {
	return &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
}

// buildMessage assembles an RFC 5322 plain-text message.
func buildMessage(account *models.SmtpAccount, msg *Message) []byte {
	var b strings.Builder

	from := account.Username
	if account.FromName != "" {
		from = account.FromName + " <" + account.Username + ">"
	}

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	return []byte(b.String())
}

// smtpCodePattern matches SMTP response codes at word boundaries.
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError maps an SMTP response to a transport failure kind.
func (m *SMTPMailer) categorizeError(err error, stage string) *Error {
	raw := fmt.Sprintf("%s failed: %v", stage, err)

	code := 0
	if te, ok := err.(*textproto.Error); ok {
		code = te.Code
	} else if matches := smtpCodePattern.FindStringSubmatch(err.Error()); len(matches) > 1 {
		fmt.Sscanf(matches[1], "%d", &code)
	}

	switch {
	case code == 534 || code == 535 || code == 530:
		return &Error{Kind: KindAuth, Raw: raw}
	case code == 421 || code == 450 || code == 451 || code == 452:
		return &Error{Kind: KindRateLimit, Raw: raw}
	case code >= 400 && code < 500:
		return &Error{Kind: KindRateLimit, Raw: raw}
	case code >= 500:
		return &Error{Kind: "permanent_rejection", Raw: raw}
	}

	return &Error{Kind: KindConnection, Raw: raw}
}
