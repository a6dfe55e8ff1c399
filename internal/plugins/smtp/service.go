package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

// dialTimeout bounds the connection attempt when ctx has no deadline.
const dialTimeout = 10 * time.Second

// MailService is the interface other plugins use to send email. The order
// log depends on it through its own Mailer interface.
type MailService interface {
	SendMail(ctx context.Context, to, from, subject, body string) error
	IsConfigured() bool
}

// mailService implements MailService.
type mailService struct {
	settings Settings
}

// NewMailService creates a mail service with the given transport settings.
func NewMailService(settings Settings) MailService {
	if settings.Port <= 0 {
		settings.Port = 587
	}
	if settings.Encryption == "" {
		settings.Encryption = EncryptionStartTLS
	}
	return &mailService{settings: settings}
}

// IsConfigured returns true if an SMTP host is configured.
func (s *mailService) IsConfigured() bool {
	return s.settings.Configured()
}

// SendMail sends one HTML email. to and from may be bare addresses or
// "Name <address>".
func (s *mailService) SendMail(ctx context.Context, to, from, subject, body string) error {
	if !s.settings.Configured() {
		return apperror.NewBadRequest("SMTP is not configured")
	}

	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return apperror.NewBadRequest(fmt.Sprintf("invalid recipient %q", to))
	}
	sender, err := parseSender(from, s.settings.FromName)
	if err != nil {
		return apperror.NewBadRequest(fmt.Sprintf("invalid sender %q", from))
	}

	msg := buildMessage(rcpt, sender, subject, body, time.Now().UTC())
	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))

	switch s.settings.Encryption {
	case EncryptionSSL:
		err = s.sendSSL(ctx, addr, sender.Address, rcpt.Address, msg)
	case EncryptionNone:
		err = s.sendPlain(ctx, addr, sender.Address, rcpt.Address, msg)
	default:
		err = s.sendStartTLS(ctx, addr, sender.Address, rcpt.Address, msg)
	}
	if err != nil {
		return err
	}

	slog.Debug("mail sent",
		slog.String("to", rcpt.Address),
		slog.String("subject", subject),
	)
	return nil
}

// parseSender parses from and gives a bare address the configured
// display name.
func parseSender(from, fromName string) (*mail.Address, error) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, err
	}
	if addr.Name == "" {
		addr.Name = fromName
	}
	return addr, nil
}

// buildMessage renders an RFC 5322 message with an HTML body. The subject
// is Q-encoded so non-ASCII text survives.
func buildMessage(to, from *mail.Address, subject, body string, now time.Time) string {
	domain := "localhost"
	if at := strings.LastIndex(from.Address, "@"); at >= 0 {
		domain = from.Address[at+1:]
	}

	var msg strings.Builder
	msg.WriteString("From: " + from.String() + "\r\n")
	msg.WriteString("To: " + to.String() + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	msg.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("Message-ID: <" + uuid.NewString() + "@" + domain + ">\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// dial opens a TCP connection honouring ctx.
func dial(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// sendStartTLS sends email using STARTTLS (port 587 typical).
func (s *mailService) sendStartTLS(ctx context.Context, addr, from, to, msg string) error {
	conn, err := dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.settings.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}

	return s.deliver(client, from, to, msg)
}

// sendSSL sends email using implicit SSL/TLS (port 465 typical).
func (s *mailService) sendSSL(ctx context.Context, addr, from, to, msg string) error {
	raw, err := dial(ctx, addr)
	if err != nil {
		return err
	}
	conn := tls.Client(raw, &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12})
	defer conn.Close()

	if err := conn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("TLS handshake with %s: %w", addr, err)
	}

	client, err := gosmtp.NewClient(conn, s.settings.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	return s.deliver(client, from, to, msg)
}

// sendPlain sends email without encryption.
func (s *mailService) sendPlain(ctx context.Context, addr, from, to, msg string) error {
	conn, err := dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.settings.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	return s.deliver(client, from, to, msg)
}

// deliver authenticates when credentials are set, then runs MAIL FROM,
// RCPT TO and DATA.
func (s *mailService) deliver(client *gosmtp.Client, from, to, msg string) error {
	if s.settings.Username != "" {
		auth := gosmtp.PlainAuth("", s.settings.Username, s.settings.Password, s.settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}
